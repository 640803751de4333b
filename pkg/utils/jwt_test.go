package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"card-tracker-backend/pkg/models"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService("super-secret", "")
	token, exp, err := svc.GenerateAccessToken(models.SessionUser{ID: "u1", Email: "ash@example.com", Username: "ash"}, time.Hour)
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	user, err := svc.ExtractUserFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "ash", user.Username)
	assert.Equal(t, "ash@example.com", user.Email)
}

func sign(t *testing.T, claims *models.TokenClaims, method jwt.SigningMethod, key interface{}) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestJWTService_Rejects(t *testing.T) {
	svc := NewJWTService("super-secret", "")
	valid := func() *models.TokenClaims {
		return &models.TokenClaims{
			Role: RoleAuthenticated,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "u1",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
	}

	tests := []struct {
		name  string
		token func() string
	}{
		{"wrong secret", func() string { return sign(t, valid(), jwt.SigningMethodHS256, []byte("other")) }},
		{"expired", func() string {
			c := valid()
			c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
			return sign(t, c, jwt.SigningMethodHS256, []byte("super-secret"))
		}},
		{"no expiry", func() string {
			c := valid()
			c.ExpiresAt = nil
			return sign(t, c, jwt.SigningMethodHS256, []byte("super-secret"))
		}},
		{"anon role", func() string {
			c := valid()
			c.Role = "anon"
			return sign(t, c, jwt.SigningMethodHS256, []byte("super-secret"))
		}},
		{"no subject", func() string {
			c := valid()
			c.Subject = ""
			return sign(t, c, jwt.SigningMethodHS256, []byte("super-secret"))
		}},
		{"none alg", func() string {
			return sign(t, valid(), jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType)
		}},
		{"garbage", func() string { return "not.a.token" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateToken(tt.token())
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestJWTService_Issuer(t *testing.T) {
	issuer := NewJWTService("super-secret", "https://project.supabase.co/auth/v1")
	other := NewJWTService("super-secret", "")

	token, _, err := other.GenerateAccessToken(models.SessionUser{ID: "u1"}, time.Minute)
	require.NoError(t, err)
	_, err = issuer.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	token, _, err = issuer.GenerateAccessToken(models.SessionUser{ID: "u1"}, time.Minute)
	require.NoError(t, err)
	_, err = issuer.ValidateToken(token)
	assert.NoError(t, err)
}

func TestJWTService_MissingSecret(t *testing.T) {
	svc := NewJWTService("", "")
	_, _, err := svc.GenerateAccessToken(models.SessionUser{ID: "u1"}, time.Minute)
	assert.ErrorIs(t, err, ErrMissingSecret)
	_, err = svc.ValidateToken("x")
	assert.ErrorIs(t, err, ErrMissingSecret)
}
