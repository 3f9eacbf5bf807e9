package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishOrderPerSubscriber(t *testing.T) {
	b := NewBus()
	defer b.Close()

	var mu sync.Mutex
	var got []Type
	b.SubscribeAll(func(e Event) {
		mu.Lock()
		got = append(got, e.Type)
		mu.Unlock()
	})

	want := []Type{SessionUpdated, MessageUpdated, MessagePartUpdated, SessionIdle}
	for _, w := range want {
		b.Publish(w, nil)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, got)
}

func TestSubscribersInvokedInRegistrationOrder(t *testing.T) {
	b := NewBus()
	defer b.Close()

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		b.Subscribe(SessionIdle, func(Event) { order = append(order, i) })
	}

	b.Publish(SessionIdle, SessionIdleData{SessionID: "ses_1"})
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestPanickingSubscriberDoesNotPropagate(t *testing.T) {
	b := NewBus()
	defer b.Close()

	called := false
	b.Subscribe(SessionError, func(Event) { panic("boom") })
	b.Subscribe(SessionError, func(Event) { called = true })

	assert.NotPanics(t, func() {
		b.Publish(SessionError, SessionErrorData{SessionID: "ses_1"})
	})
	assert.True(t, called, "later subscribers still run")
}

func TestStreamFiltersByType(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := b.Stream(ctx, SessionIdle)

	b.Publish(MessageUpdated, nil)
	b.Publish(SessionIdle, SessionIdleData{SessionID: "ses_1"})

	select {
	case e := <-ch:
		assert.Equal(t, SessionIdle, e.Type)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestStreamClosesOnContextCancel(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Stream(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel must close")
	case <-time.After(time.Second):
		t.Fatal("channel did not close")
	}
}

func TestSlowSubscriberDropsOldestWithMarker(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := b.Stream(ctx)

	// Nobody reads: overflow the buffer by a margin.
	total := DefaultBufferSize + 50
	for i := 0; i < total; i++ {
		b.Publish(SessionIdle, SessionIdleData{SessionID: "ses_1"})
	}

	var received int
	var sawMarker bool
	for {
		select {
		case e := <-ch:
			received++
			if e.Type == Dropped {
				sawMarker = true
			}
		default:
			assert.True(t, sawMarker, "dropped marker must be delivered")
			assert.LessOrEqual(t, received, DefaultBufferSize)
			return
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()
	defer b.Close()

	count := 0
	unsub := b.Subscribe(TodoUpdated, func(Event) { count++ })
	b.Publish(TodoUpdated, nil)
	unsub()
	b.Publish(TodoUpdated, nil)

	assert.Equal(t, 1, count)
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	b := NewBus()
	require.NoError(t, b.Close())
	assert.NotPanics(t, func() { b.Publish(SessionIdle, nil) })
}
