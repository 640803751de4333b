package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"card-tracker-backend/pkg/logger"
	"card-tracker-backend/pkg/models"
	"card-tracker-backend/pkg/utils"
)

// ContextKey 用于在context中存储用户信息的键
type ContextKey string

const (
	UserContextKey  ContextKey = "user"
	TokenContextKey ContextKey = "access_token"
)

// ErrNotAuthenticated is returned by RequireUser when no user is attached to the request.
var ErrNotAuthenticated = errors.New("user not authenticated")

// TokenVerifier 校验 access token
type TokenVerifier interface {
	ValidateToken(tokenString string) (*models.TokenClaims, error)
}

// bearerToken 从 Authorization 头中取出 token；格式不正确时返回 false
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if tokenString == authHeader || tokenString == "" {
		return "", false
	}
	return tokenString, true
}

func withUser(r *http.Request, claims *models.TokenClaims, token string) *http.Request {
	user := claims.User()
	if info, ok := r.Context().Value(requestInfoKey).(*requestInfo); ok {
		info.userID = user.ID
	}
	ctx := context.WithValue(r.Context(), UserContextKey, &user)
	ctx = context.WithValue(ctx, TokenContextKey, token)
	return r.WithContext(ctx)
}

// AuthMiddleware JWT认证中间件
func AuthMiddleware(verifier TokenVerifier, log *zap.Logger) func(http.Handler) http.Handler {
	log = logger.OrNop(log)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				utils.WriteAuthRequiredResponse(w, "Sign in to continue")
				return
			}

			tokenString, ok := bearerToken(r)
			if !ok {
				log.Debug("❌ invalid authorization header format", zap.String("path", r.URL.Path))
				utils.WriteUnauthorizedResponse(w, "Invalid authorization header format")
				return
			}

			claims, err := verifier.ValidateToken(tokenString)
			if err != nil {
				log.Debug("❌ token rejected", zap.String("path", r.URL.Path), zap.Error(err))
				utils.WriteUnauthorizedResponse(w, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, withUser(r, claims, tokenString))
		})
	}
}

// OptionalAuthMiddleware 可选的认证中间件（不强制要求认证，无效 token 视为未登录）
func OptionalAuthMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenString, ok := bearerToken(r); ok {
				if claims, err := verifier.ValidateToken(tokenString); err == nil {
					next.ServeHTTP(w, withUser(r, claims, tokenString))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUserFromContext 从context中获取用户信息
func GetUserFromContext(ctx context.Context) (*models.SessionUser, bool) {
	user, ok := ctx.Value(UserContextKey).(*models.SessionUser)
	return user, ok && user != nil
}

// GetAccessToken 返回请求携带的已校验 access token
func GetAccessToken(ctx context.Context) string {
	token, _ := ctx.Value(TokenContextKey).(string)
	return token
}

// UserID 返回已认证用户的 id，未登录时为空字符串
func UserID(ctx context.Context) string {
	if user, ok := GetUserFromContext(ctx); ok {
		return user.ID
	}
	return ""
}

// RequireUser 要求用户必须已认证的辅助函数
func RequireUser(ctx context.Context) (*models.SessionUser, error) {
	user, ok := GetUserFromContext(ctx)
	if !ok {
		return nil, ErrNotAuthenticated
	}
	return user, nil
}
