package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewBroadcaster()
	a := b.Subscribe()
	c := b.Subscribe()
	defer a.Close()
	defer c.Close()

	b.Publish(Event{Type: EventSignedIn})

	assert.Equal(t, EventSignedIn, (<-a.C).Type)
	assert.Equal(t, EventSignedIn, (<-c.C).Type)
	assert.Equal(t, 2, b.Len())
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe()

	sub.Close()
	sub.Close()

	_, ok := <-sub.C
	assert.False(t, ok)
	assert.Zero(t, b.Len())

	// 取消订阅后不再收到事件，也不会 panic
	b.Publish(Event{Type: EventSignedOut})
}

func TestBroadcaster_SlowSubscriberKeepsNewest(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe()
	defer sub.Close()

	for i := 0; i < subscriptionBuffer+3; i++ {
		b.Publish(Event{Type: EventTokenRefreshed})
	}
	b.Publish(Event{Type: EventSignedOut})

	var last Event
	for i := 0; i < subscriptionBuffer; i++ {
		last = <-sub.C
	}
	assert.Equal(t, EventSignedOut, last.Type)
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe()

	b.Close()
	_, ok := <-sub.C
	assert.False(t, ok)
	sub.Close()

	late := b.Subscribe()
	_, ok = <-late.C
	require.False(t, ok)
	late.Close()
}
