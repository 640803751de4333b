package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"card-tracker-backend/pkg/logger"
	"card-tracker-backend/pkg/models"
)

// AuthError 认证服务返回的错误
type AuthError struct {
	StatusCode  int
	Code        string `json:"error"`
	Description string `json:"error_description"`
	Msg         string `json:"msg"`
}

func (e *AuthError) Error() string {
	msg := e.Description
	if msg == "" {
		msg = e.Msg
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("auth request failed (%d): %s", e.StatusCode, msg)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         struct {
		ID           string                 `json:"id"`
		Email        string                 `json:"email"`
		UserMetadata map[string]interface{} `json:"user_metadata"`
	} `json:"user"`
}

// GoTrueClient 托管认证服务（GoTrue）客户端
type GoTrueClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	store      *FileStore
	publisher  Publisher
	bus        *Broadcaster
	log        *zap.Logger
	now        func() time.Time

	mu      sync.Mutex
	session *models.Session
	loaded  bool
}

// GoTrueOption 配置 GoTrueClient
type GoTrueOption func(*GoTrueClient)

// WithAuthHTTPClient 替换默认 HTTP 客户端
func WithAuthHTTPClient(c *http.Client) GoTrueOption {
	return func(g *GoTrueClient) { g.httpClient = c }
}

// WithFileStore 会话持久化位置
func WithFileStore(s *FileStore) GoTrueOption {
	return func(g *GoTrueClient) { g.store = s }
}

// WithPublisher 把会话事件同时转发到进程外（例如 RedisRelay）
func WithPublisher(p Publisher) GoTrueOption {
	return func(g *GoTrueClient) { g.publisher = p }
}

// WithAuthLogger 设置 logger
func WithAuthLogger(l *zap.Logger) GoTrueOption {
	return func(g *GoTrueClient) { g.log = logger.OrNop(l) }
}

// NewGoTrueClient 创建认证客户端；baseURL 为项目地址（不含 /auth/v1）
func NewGoTrueClient(baseURL, apiKey string, opts ...GoTrueOption) *GoTrueClient {
	if !strings.HasPrefix(baseURL, "http") {
		baseURL = "https://" + baseURL
	}
	g := &GoTrueClient{
		baseURL:    strings.TrimRight(baseURL, "/") + "/auth/v1",
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		bus:        NewBroadcaster(),
		log:        zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Subscribe 订阅会话变化
func (g *GoTrueClient) Subscribe() *Subscription {
	return g.bus.Subscribe()
}

// Current 返回当前会话；过期且有 refresh token 时自动刷新
func (g *GoTrueClient) Current(ctx context.Context) (*models.Session, error) {
	g.mu.Lock()
	if !g.loaded && g.store != nil {
		if sess, err := g.store.Load(); err == nil {
			g.session = sess
		} else if !errors.Is(err, ErrNoSession) {
			g.log.Warn("⚠️ ignoring unreadable session file", zap.Error(err))
		}
	}
	g.loaded = true
	sess := g.session
	g.mu.Unlock()

	if sess == nil {
		return nil, ErrNoSession
	}
	if sess.Expired(g.now()) {
		if sess.RefreshToken == "" {
			return nil, ErrNoSession
		}
		return g.Refresh(ctx)
	}
	return sess, nil
}

// SignInWithPassword 邮箱密码登录
func (g *GoTrueClient) SignInWithPassword(ctx context.Context, email, password string) (*models.Session, error) {
	sess, err := g.token(ctx, "password", map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	g.setSession(ctx, EventSignedIn, sess)
	g.log.Info("🔐 signed in", zap.String("user_id", sess.User.ID))
	return sess, nil
}

// Refresh 使用 refresh token 换取新的 access token
func (g *GoTrueClient) Refresh(ctx context.Context) (*models.Session, error) {
	g.mu.Lock()
	cur := g.session
	g.mu.Unlock()
	if cur == nil || cur.RefreshToken == "" {
		return nil, ErrNoSession
	}

	sess, err := g.token(ctx, "refresh_token", map[string]string{"refresh_token": cur.RefreshToken})
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) && authErr.StatusCode < 500 {
			// refresh token 已失效，视为登出
			g.setSession(ctx, EventSignedOut, nil)
		}
		return nil, err
	}
	g.setSession(ctx, EventTokenRefreshed, sess)
	return sess, nil
}

// SignOut 注销；服务端调用失败时本地会话仍会清除
func (g *GoTrueClient) SignOut(ctx context.Context) error {
	g.mu.Lock()
	cur := g.session
	g.mu.Unlock()

	var remoteErr error
	if cur != nil {
		req, err := g.newRequest(ctx, http.MethodPost, "/logout", nil)
		if err == nil {
			req.Header.Set("Authorization", "Bearer "+cur.AccessToken)
			remoteErr = g.do(req, nil)
		} else {
			remoteErr = err
		}
	}
	g.setSession(ctx, EventSignedOut, nil)
	if remoteErr != nil {
		g.log.Warn("⚠️ remote sign out failed", zap.Error(remoteErr))
	}
	return remoteErr
}

// AutoRefresh 在 access token 过期前 margin 时刷新，直到 ctx 结束
func (g *GoTrueClient) AutoRefresh(ctx context.Context, margin time.Duration) {
	for {
		g.mu.Lock()
		sess := g.session
		g.mu.Unlock()

		wait := time.Minute
		if sess != nil && !sess.ExpiresAt.IsZero() {
			wait = sess.ExpiresAt.Sub(g.now()) - margin
		}
		if wait < time.Second {
			wait = time.Second
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if sess != nil && sess.RefreshToken != "" && sess.ExpiresAt.Sub(g.now()) <= margin {
			if _, err := g.Refresh(ctx); err != nil && ctx.Err() == nil {
				g.log.Warn("⚠️ token refresh failed", zap.Error(err))
			}
		}
	}
}

func (g *GoTrueClient) setSession(ctx context.Context, typ EventType, sess *models.Session) {
	g.mu.Lock()
	g.session = sess
	g.loaded = true
	g.mu.Unlock()

	if g.store != nil {
		var err error
		if sess == nil {
			err = g.store.Clear()
		} else {
			err = g.store.Save(sess)
		}
		if err != nil {
			g.log.Warn("⚠️ failed to persist session", zap.Error(err))
		}
	}

	ev := Event{Type: typ, Session: sess, At: g.now()}
	g.bus.Publish(ev)
	if g.publisher != nil {
		if err := g.publisher.Publish(ctx, ev); err != nil {
			g.log.Warn("⚠️ failed to relay session event", zap.String("event", string(typ)), zap.Error(err))
		}
	}
}

func (g *GoTrueClient) token(ctx context.Context, grantType string, body map[string]string) (*models.Session, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := g.newRequest(ctx, http.MethodPost, "/token?grant_type="+grantType, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var resp tokenResponse
	if err := g.do(req, &resp); err != nil {
		return nil, err
	}
	return g.sessionFromToken(&resp)
}

func (g *GoTrueClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", g.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (g *GoTrueClient) do(req *http.Request, out interface{}) error {
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		authErr := &AuthError{}
		_ = json.Unmarshal(body, authErr)
		authErr.StatusCode = resp.StatusCode
		return authErr
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse auth response: %w", err)
	}
	return nil
}

// sessionFromToken 组装会话；缺少的字段从 access token 的声明中补齐
func (g *GoTrueClient) sessionFromToken(resp *tokenResponse) (*models.Session, error) {
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("auth response did not contain an access token")
	}
	sess := &models.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		User: models.SessionUser{
			ID:    resp.User.ID,
			Email: resp.User.Email,
		},
	}
	if name, ok := resp.User.UserMetadata["username"].(string); ok {
		sess.User.Username = name
	}
	switch {
	case resp.ExpiresAt > 0:
		sess.ExpiresAt = time.Unix(resp.ExpiresAt, 0)
	case resp.ExpiresIn > 0:
		sess.ExpiresAt = g.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	// 签名由服务端校验，这里只读取声明
	claims := &models.TokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(resp.AccessToken, claims); err == nil {
		fromClaims := claims.User()
		if sess.User.ID == "" {
			sess.User.ID = fromClaims.ID
		}
		if sess.User.Email == "" {
			sess.User.Email = fromClaims.Email
		}
		if sess.User.Username == "" {
			sess.User.Username = fromClaims.Username
		}
		if sess.ExpiresAt.IsZero() && claims.ExpiresAt != nil {
			sess.ExpiresAt = claims.ExpiresAt.Time
		}
	}
	if sess.User.ID == "" {
		return nil, fmt.Errorf("auth response did not identify the user")
	}
	return sess, nil
}
