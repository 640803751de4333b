package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"card-tracker-backend/pkg/models"
)

// 认证服务给已登录用户签发的角色
const RoleAuthenticated = "authenticated"

var (
	// ErrMissingSecret is returned when no JWT secret is configured.
	ErrMissingSecret = errors.New("jwt secret is not configured")
	// ErrInvalidToken wraps every verification failure.
	ErrInvalidToken = errors.New("invalid token")
)

// JWTService 校验（以及在开发环境签发）托管认证服务格式的 access token
type JWTService struct {
	secretKey []byte
	issuer    string
}

// NewJWTService 创建JWT服务；issuer 为空时不校验 iss
func NewJWTService(secretKey, issuer string) *JWTService {
	return &JWTService{
		secretKey: []byte(secretKey),
		issuer:    issuer,
	}
}

// GenerateAccessToken 签发 access token（本地开发与测试用，生产令牌由认证服务签发）
func (j *JWTService) GenerateAccessToken(user models.SessionUser, ttl time.Duration) (string, time.Time, error) {
	if len(j.secretKey) == 0 {
		return "", time.Time{}, ErrMissingSecret
	}
	now := time.Now()
	expiry := now.Add(ttl)

	claims := &models.TokenClaims{
		Email: user.Email,
		Role:  RoleAuthenticated,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    j.issuer,
			Audience:  jwt.ClaimStrings{RoleAuthenticated},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	}
	if user.Username != "" {
		claims.UserMetadata = map[string]interface{}{"username": user.Username}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate access token: %w", err)
	}
	return tokenString, expiry, nil
}

// ValidateToken 验证令牌：HMAC 签名、未过期、已登录角色、包含用户 id
func (j *JWTService) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	if len(j.secretKey) == 0 {
		return nil, ErrMissingSecret
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	claims := &models.TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// 验证签名方法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Role != RoleAuthenticated {
		return nil, fmt.Errorf("%w: role %q is not allowed", ErrInvalidToken, claims.Role)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

// ExtractUserFromToken 从令牌中提取用户信息
func (j *JWTService) ExtractUserFromToken(tokenString string) (*models.SessionUser, error) {
	claims, err := j.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	user := claims.User()
	return &user, nil
}
