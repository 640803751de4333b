// Package session observes the hosted auth provider's session and notifies
// subscribers whenever it changes.
package session

import (
	"context"
	"errors"
	"time"

	"card-tracker-backend/pkg/models"
)

// ErrNoSession is returned when nobody is signed in.
var ErrNoSession = errors.New("no active session")

// EventType 会话事件类型（与认证服务的事件名一致）
type EventType string

const (
	EventInitialSession EventType = "INITIAL_SESSION"
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
)

// Event 会话变化事件；SIGNED_OUT 时 Session 为 nil
type Event struct {
	Type    EventType       `json:"type"`
	Session *models.Session `json:"session,omitempty"`
	At      time.Time       `json:"at"`
}

// Provider 提供当前会话与变化通知
type Provider interface {
	// Current 返回当前会话；未登录时返回 ErrNoSession
	Current(ctx context.Context) (*models.Session, error)
	// Subscribe 注册变化通知；调用方负责 Close
	Subscribe() *Subscription
}

// Publisher 把事件转发到进程外
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}
