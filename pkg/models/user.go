package models

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionUser is the identity carried by a session.
type SessionUser struct {
	ID       string `json:"id"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
}

// DisplayName returns the username, falling back to the local part of the email.
func (u SessionUser) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	if at := strings.Index(u.Email, "@"); at > 0 {
		return u.Email[:at]
	}
	return u.Email
}

// Session is the auth provider's current-session object.
type Session struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token,omitempty"`
	TokenType    string      `json:"token_type,omitempty"`
	ExpiresAt    time.Time   `json:"expires_at"`
	User         SessionUser `json:"user"`
}

// Expired reports whether the access token is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	if s == nil || s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt)
}

// TokenClaims are the claims of an access token issued by the hosted auth
// provider (HS256, subject is the user id).
type TokenClaims struct {
	Email        string                 `json:"email,omitempty"`
	Role         string                 `json:"role,omitempty"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
	jwt.RegisteredClaims
}

// User converts the claims into a SessionUser.
func (c *TokenClaims) User() SessionUser {
	u := SessionUser{ID: c.Subject, Email: c.Email}
	if name, ok := c.UserMetadata["username"].(string); ok {
		u.Username = name
	}
	return u
}
