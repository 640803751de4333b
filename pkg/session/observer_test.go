package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"card-tracker-backend/pkg/models"
)

type countingCounter struct {
	mu    sync.Mutex
	calls []string
	n     int
	err   error
}

func (c *countingCounter) Count(ctx context.Context, userID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, userID)
	return c.n, c.err
}

func (c *countingCounter) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func nextState(t *testing.T, o *Observer) State {
	t.Helper()
	select {
	case s := <-o.Changes():
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for state change")
		return State{}
	}
}

func TestObserver_InitialAndEvents(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	provider := &staticProvider{Broadcaster: NewBroadcaster()}
	counter := &countingCounter{n: 3}
	o := NewObserver(provider, counter, nil)
	require.NoError(t, o.Start(context.Background()))
	defer o.Close()

	initial := nextState(t, o)
	assert.False(t, initial.LoggedIn)
	assert.Equal(t, EventInitialSession, initial.Event)
	assert.Empty(t, counter.Calls())

	provider.Publish(Event{Type: EventSignedIn, Session: &models.Session{
		User: models.SessionUser{ID: "u1", Email: "ash@example.com"},
	}})
	st := nextState(t, o)
	assert.True(t, st.LoggedIn)
	assert.Equal(t, "u1", st.UserID)
	assert.Equal(t, "ash", st.Username)
	assert.Equal(t, 3, st.GameCount)
	assert.Equal(t, st, o.State())

	// 每次会话事件都会重新读取数量
	counter.mu.Lock()
	counter.n = 4
	counter.mu.Unlock()
	provider.Publish(Event{Type: EventTokenRefreshed, Session: &models.Session{User: models.SessionUser{ID: "u1"}}})
	assert.Equal(t, 4, nextState(t, o).GameCount)
	assert.Equal(t, []string{"u1", "u1"}, counter.Calls())

	provider.Publish(Event{Type: EventSignedOut})
	st = nextState(t, o)
	assert.False(t, st.LoggedIn)
	assert.Empty(t, st.UserID)
	assert.Zero(t, st.GameCount)
	assert.Len(t, counter.Calls(), 2)
}

func TestObserver_InitialSessionLoggedIn(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	provider := &staticProvider{
		Broadcaster: NewBroadcaster(),
		session:     &models.Session{User: models.SessionUser{ID: "u2", Username: "misty"}},
	}
	o := NewObserver(provider, &countingCounter{err: errors.New("rpc down")}, nil)
	require.NoError(t, o.Start(context.Background()))
	defer o.Close()

	st := o.State()
	assert.True(t, st.LoggedIn)
	assert.Equal(t, "misty", st.Username)
	assert.Zero(t, st.GameCount)
	assert.Equal(t, "rpc down", st.CountError)
}

func TestObserver_CloseUnsubscribes(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	provider := &staticProvider{Broadcaster: NewBroadcaster()}
	o := NewObserver(provider, nil, nil)
	require.NoError(t, o.Start(context.Background()))
	assert.Equal(t, 1, provider.Len())

	o.Close()
	o.Close()

	assert.Zero(t, provider.Len())
	<-o.Done()
	assert.Error(t, o.Start(context.Background()))

	// 已关闭的观察者不会再收到事件
	provider.Publish(Event{Type: EventSignedIn, Session: &models.Session{User: models.SessionUser{ID: "u1"}}})
	assert.False(t, o.State().LoggedIn)
}

func TestObserver_ContextCancelStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	provider := &staticProvider{Broadcaster: NewBroadcaster()}
	o := NewObserver(provider, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, o.Start(ctx))

	cancel()
	select {
	case <-o.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("observer did not stop")
	}
	// 订阅在 Close 之前就已释放
	assert.Zero(t, provider.Len())
	o.Close()
	assert.Zero(t, provider.Len())
}

func TestObserver_CloseBeforeStart(t *testing.T) {
	o := NewObserver(&staticProvider{Broadcaster: NewBroadcaster()}, nil, nil)
	o.Close()
	<-o.Done()
	_, ok := <-o.Changes()
	assert.False(t, ok)
}
