package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"card-tracker-backend/pkg/logger"
	"card-tracker-backend/pkg/models"
)

// Counter 会话变化时重新读取的数量（游戏收藏数量）
type Counter interface {
	Count(ctx context.Context, userID string) (int, error)
}

// State 观察到的会话状态
type State struct {
	LoggedIn  bool      `json:"logged_in"`
	UserID    string    `json:"user_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	Event     EventType `json:"event,omitempty"`
	GameCount int       `json:"game_count"`
	// CountError 非空表示数量读取失败，GameCount 为 0
	CountError string `json:"count_error,omitempty"`
}

// Observer 订阅会话变化并维护派生状态
type Observer struct {
	provider Provider
	counter  Counter
	log      *zap.Logger

	mu      sync.RWMutex
	state   State
	changes chan State

	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	sub       *Subscription
	done      chan struct{}
}

// NewObserver 创建观察者；counter 可为 nil
func NewObserver(provider Provider, counter Counter, log *zap.Logger) *Observer {
	return &Observer{
		provider: provider,
		counter:  counter,
		log:      logger.OrNop(log),
		changes:  make(chan State, 1),
		done:     make(chan struct{}),
	}
}

// Start 读取初始会话并开始监听；重复调用无效。
// ctx 结束或 Close 时停止监听。
func (o *Observer) Start(ctx context.Context) error {
	err := errors.New("observer already started")
	o.startOnce.Do(func() {
		err = nil
		ctx, o.cancel = context.WithCancel(ctx)

		// 先订阅再读取，避免漏掉两者之间的事件
		o.sub = o.provider.Subscribe()

		sess, cerr := o.provider.Current(ctx)
		if cerr != nil && !errors.Is(cerr, ErrNoSession) {
			o.log.Warn("⚠️ failed to read initial session", zap.Error(cerr))
		}
		o.apply(ctx, EventInitialSession, sess)

		go o.loop(ctx)
	})
	return err
}

func (o *Observer) loop(ctx context.Context) {
	defer close(o.done)
	defer close(o.changes)
	defer o.sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-o.sub.C:
			if !ok {
				return
			}
			o.apply(ctx, ev.Type, ev.Session)
		}
	}
}

// apply 从会话重新派生状态，并重新读取依赖数据
func (o *Observer) apply(ctx context.Context, typ EventType, sess *models.Session) {
	next := State{Event: typ}
	if sess != nil && sess.User.ID != "" {
		next.LoggedIn = true
		next.UserID = sess.User.ID
		next.Username = sess.User.DisplayName()
	}

	if next.LoggedIn && o.counter != nil {
		n, err := o.counter.Count(ctx, next.UserID)
		if err != nil {
			o.log.Warn("⚠️ failed to load game collection count", zap.String("user_id", next.UserID), zap.Error(err))
			next.CountError = err.Error()
		} else {
			next.GameCount = n
		}
	}

	o.mu.Lock()
	o.state = next
	o.mu.Unlock()

	o.log.Debug("session state changed",
		zap.String("event", string(typ)), zap.Bool("logged_in", next.LoggedIn), zap.String("user_id", next.UserID))

	// 只保留最新状态
	select {
	case <-o.changes:
	default:
	}
	select {
	case o.changes <- next:
	default:
	}
}

// State 返回当前状态
func (o *Observer) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Changes 状态变化通道（只保留最新一次）；观察者停止后关闭
func (o *Observer) Changes() <-chan State {
	return o.changes
}

// Done 观察者停止后关闭
func (o *Observer) Done() <-chan struct{} {
	return o.done
}

// Close 取消订阅并等待后台 goroutine 退出；可重复调用
func (o *Observer) Close() {
	o.closeOnce.Do(func() {
		started := true
		o.startOnce.Do(func() { started = false })
		if !started {
			close(o.changes)
			close(o.done)
			return
		}
		o.cancel()
		o.sub.Close()
		<-o.done
	})
}
