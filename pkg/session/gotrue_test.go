package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"card-tracker-backend/pkg/models"
)

// fakeGoTrue serves the token and logout endpoints of the auth provider.
type fakeGoTrue struct {
	mu        sync.Mutex
	refreshes int
	logouts   int
	expiresIn int64
}

func (f *fakeGoTrue) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("grant_type") {
		case "password":
			if body["password"] != "pikachu" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
				return
			}
			f.writeToken(t, w, "refresh-1")
		case "refresh_token":
			f.mu.Lock()
			f.refreshes++
			f.mu.Unlock()
			if body["refresh_token"] == "revoked" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Refresh Token Not Found"}`))
				return
			}
			f.writeToken(t, w, "refresh-2")
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	mux.HandleFunc("/auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Authorization"), "Bearer ")
		f.mu.Lock()
		f.logouts++
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func (f *fakeGoTrue) writeToken(t *testing.T, w http.ResponseWriter, refresh string) {
	claims := models.TokenClaims{
		Email:        "ash@example.com",
		Role:         "authenticated",
		UserMetadata: map[string]interface{}{"username": "ash"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	assert.NoError(t, err)

	// user 对象只包含 id，其余字段从令牌声明补齐
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token":  token,
		"token_type":    "bearer",
		"expires_in":    f.expiresIn,
		"refresh_token": refresh,
		"user":          map[string]interface{}{"id": "u1"},
	})
}

func newTestClient(t *testing.T, fake *fakeGoTrue) (*GoTrueClient, *FileStore) {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	store, err := NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	require.NoError(t, err)

	httpClient := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	return NewGoTrueClient(srv.URL, "anon-key", WithAuthHTTPClient(httpClient), WithFileStore(store)), store
}

func TestGoTrue_SignInPersistsAndNotifies(t *testing.T) {
	client, store := newTestClient(t, &fakeGoTrue{expiresIn: 3600})
	sub := client.Subscribe()
	defer sub.Close()

	sess, err := client.SignInWithPassword(context.Background(), "ash@example.com", "pikachu")
	require.NoError(t, err)
	assert.Equal(t, "u1", sess.User.ID)
	assert.Equal(t, "ash", sess.User.Username)
	assert.Equal(t, "ash@example.com", sess.User.Email)
	assert.False(t, sess.Expired(time.Now()))

	ev := <-sub.C
	assert.Equal(t, EventSignedIn, ev.Type)
	assert.Equal(t, "u1", ev.Session.User.ID)

	saved, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, sess.AccessToken, saved.AccessToken)
}

func TestGoTrue_InvalidCredentials(t *testing.T) {
	client, _ := newTestClient(t, &fakeGoTrue{})

	_, err := client.SignInWithPassword(context.Background(), "ash@example.com", "wrong")
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusBadRequest, authErr.StatusCode)
	assert.Contains(t, authErr.Error(), "Invalid login credentials")

	_, err = client.Current(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestGoTrue_CurrentRefreshesExpiredSession(t *testing.T) {
	fake := &fakeGoTrue{expiresIn: 3600}
	client, store := newTestClient(t, fake)
	require.NoError(t, store.Save(&models.Session{
		AccessToken:  "old",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Minute),
		User:         models.SessionUser{ID: "u1"},
	}))
	sub := client.Subscribe()
	defer sub.Close()

	sess, err := client.Current(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, "old", sess.AccessToken)
	assert.Equal(t, "refresh-2", sess.RefreshToken)
	assert.Equal(t, 1, fake.refreshes)
	assert.Equal(t, EventTokenRefreshed, (<-sub.C).Type)
}

func TestGoTrue_RevokedRefreshSignsOut(t *testing.T) {
	client, store := newTestClient(t, &fakeGoTrue{})
	require.NoError(t, store.Save(&models.Session{
		AccessToken:  "old",
		RefreshToken: "revoked",
		ExpiresAt:    time.Now().Add(-time.Minute),
		User:         models.SessionUser{ID: "u1"},
	}))
	sub := client.Subscribe()
	defer sub.Close()

	_, err := client.Current(context.Background())
	require.Error(t, err)
	assert.Equal(t, EventSignedOut, (<-sub.C).Type)

	_, err = store.Load()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestGoTrue_SignOut(t *testing.T) {
	fake := &fakeGoTrue{expiresIn: 3600}
	client, store := newTestClient(t, fake)
	_, err := client.SignInWithPassword(context.Background(), "ash@example.com", "pikachu")
	require.NoError(t, err)

	sub := client.Subscribe()
	defer sub.Close()
	require.NoError(t, client.SignOut(context.Background()))

	ev := <-sub.C
	assert.Equal(t, EventSignedOut, ev.Type)
	assert.Nil(t, ev.Session)
	assert.Equal(t, 1, fake.logouts)

	_, err = store.Load()
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = client.Current(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
}

type recordingPublisher struct {
	events []Event
}

func (p *recordingPublisher) Publish(ctx context.Context, ev Event) error {
	p.events = append(p.events, ev)
	return nil
}

func TestGoTrue_ForwardsToPublisher(t *testing.T) {
	srv := httptest.NewServer((&fakeGoTrue{expiresIn: 60}).handler(t))
	defer srv.Close()

	pub := &recordingPublisher{}
	client := NewGoTrueClient(srv.URL, "anon-key",
		WithAuthHTTPClient(&http.Client{Transport: &http.Transport{DisableKeepAlives: true}}),
		WithPublisher(pub))

	_, err := client.SignInWithPassword(context.Background(), "ash@example.com", "pikachu")
	require.NoError(t, err)
	require.NoError(t, client.SignOut(context.Background()))

	require.Len(t, pub.events, 2)
	assert.Equal(t, EventSignedIn, pub.events[0].Type)
	assert.Equal(t, EventSignedOut, pub.events[1].Type)
}
