package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"card-tracker-backend/pkg/config"
	"card-tracker-backend/pkg/models"
	"card-tracker-backend/pkg/utils"
)

const testSecret = "test-secret"

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp utils.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func echoUser(w http.ResponseWriter, r *http.Request) {
	if user, ok := GetUserFromContext(r.Context()); ok {
		_, _ = w.Write([]byte(user.ID + "|" + GetAccessToken(r.Context())))
		return
	}
	_, _ = w.Write([]byte("anonymous"))
}

func TestAuthMiddleware(t *testing.T) {
	svc := utils.NewJWTService(testSecret, "")
	token, _, err := svc.GenerateAccessToken(models.SessionUser{ID: "u1"}, time.Hour)
	require.NoError(t, err)
	handler := AuthMiddleware(svc, nil)(http.HandlerFunc(echoUser))

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, utils.CodeAuthRequired, errorCode(t, rec))
	})

	t.Run("bad format", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Token "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, utils.CodeUnauthorized, errorCode(t, rec))
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u1|"+token, rec.Body.String())
	})
}

func TestOptionalAuthMiddleware(t *testing.T) {
	svc := utils.NewJWTService(testSecret, "")
	token, _, err := svc.GenerateAccessToken(models.SessionUser{ID: "u1"}, time.Hour)
	require.NoError(t, err)
	handler := OptionalAuthMiddleware(svc)(http.HandlerFunc(echoUser))

	for header, want := range map[string]string{
		"":                   "anonymous",
		"Bearer garbage":     "anonymous",
		"Bearer " + token:    "u1|" + token,
		"Basic dXNlcjpwdw==": "anonymous",
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, want, rec.Body.String())
	}
}

func TestRequireUser(t *testing.T) {
	_, err := RequireUser(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Empty(t, UserID(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}

func TestRequestLogger_RecordsUser(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	svc := utils.NewJWTService(testSecret, "")
	token, _, err := svc.GenerateAccessToken(models.SessionUser{ID: "u1"}, time.Hour)
	require.NoError(t, err)

	handler := RequestLogger(zap.New(core))(AuthMiddleware(svc, nil)(http.HandlerFunc(echoUser)))
	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "u1", fields["user"])
	assert.Equal(t, int64(http.StatusOK), fields["status"])
	assert.Equal(t, "10.0.0.1", fields["ip"])
}

func TestRequestLogger_ErrorLevels(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFoundResponse(w, "card not found")
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/cards/base1-4", nil))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zap.WarnLevel, logs.All()[0].Level)
	assert.Equal(t, "anonymous", logs.All()[0].ContextMap()["user"])
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { panic("boom") })

	prod := &config.Config{Environment: "production"}
	rec := httptest.NewRecorder()
	Recovery(prod, zap.New(core))(panicking).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
	assert.Equal(t, 1, logs.Len())

	dev := &config.Config{Environment: "development"}
	rec = httptest.NewRecorder()
	Recovery(dev, nil)(panicking).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rec.Body.String(), "boom")
}

func TestNormalize(t *testing.T) {
	var gotPath, gotHost string
	handler := Normalize()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotHost = r.URL.Path, r.Host
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/sets/base1/", nil)
	req.Header.Set("X-Forwarded-Host", "cards.example.com")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "/api/sets/base1", gotPath)
	assert.Equal(t, "cards.example.com", gotHost)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "/", gotPath)
}

func TestContentTypeJSON(t *testing.T) {
	handler := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`card_id=1`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
