// Package event provides the typed in-process pub/sub bus. Fan-out to
// callback subscribers is synchronous in registration order; channel
// subscribers get a bounded buffer that drops oldest entries under
// pressure, surfacing the loss as an event.dropped marker on that
// subscriber only.
package event

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/opencode-ai/core/internal/logging"
)

// DefaultBufferSize bounds each channel subscriber.
const DefaultBufferSize = 256

// Subscriber is a synchronous callback subscriber.
type Subscriber func(Event)

type callbackEntry struct {
	id uint64
	fn Subscriber
}

// streamSub is a channel subscriber with its own bounded buffer.
type streamSub struct {
	mu      sync.Mutex
	ch      chan Event
	types   map[Type]bool // nil means all
	dropped int
	closed  bool
}

// deliver enqueues e, evicting the oldest buffered events when full.
// The first eviction of a burst also enqueues a Dropped marker.
func (s *streamSub) deliver(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.types != nil && !s.types[e.Type] {
		return
	}

	evicted := false
	for {
		select {
		case s.ch <- e:
			if !evicted {
				// Delivered without eviction: the burst is over.
				s.dropped = 0
			}
			return
		default:
		}

		// Buffer full: evict the oldest entry to keep the stream
		// moving, then surface the loss once per burst.
		select {
		case old := <-s.ch:
			evicted = true
			s.dropped++
			if old.Type != Dropped && s.dropped == 1 {
				select {
				case s.ch <- Event{Type: Dropped, Properties: DroppedData{Count: s.dropped}}:
				default:
				}
			}
		default:
		}
	}
}

func (s *streamSub) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Bus is the event bus. Publish fans out directly to the tracked
// callback and stream subscribers, so payloads keep their Go types.
// The bus also holds a watermill gochannel that it creates and closes;
// no event passes through it.
type Bus struct {
	mu sync.RWMutex

	pubsub *gochannel.GoChannel

	callbacks map[Type][]callbackEntry
	global    []callbackEntry
	streams   map[*streamSub]struct{}

	nextID uint64
	closed bool
}

// NewBus creates a bus.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: DefaultBufferSize},
			watermill.NopLogger{},
		),
		callbacks: make(map[Type][]callbackEntry),
		streams:   make(map[*streamSub]struct{}),
	}
}

// Subscribe registers a callback for one event kind. It returns an
// unsubscribe function.
func (b *Bus) Subscribe(t Type, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}

	id := atomic.AddUint64(&b.nextID, 1)
	b.callbacks[t] = append(b.callbacks[t], callbackEntry{id: id, fn: fn})
	return func() { b.unsubscribe(t, id) }
}

// SubscribeAll registers a callback for every event kind.
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}

	id := atomic.AddUint64(&b.nextID, 1)
	b.global = append(b.global, callbackEntry{id: id, fn: fn})
	return func() { b.unsubscribeGlobal(id) }
}

// Stream returns a channel delivering future events of the given
// kinds (all kinds when none are named). The channel closes when ctx
// is done or the bus shuts down.
func (b *Bus) Stream(ctx context.Context, kinds ...Type) <-chan Event {
	sub := &streamSub{ch: make(chan Event, DefaultBufferSize)}
	if len(kinds) > 0 {
		sub.types = make(map[Type]bool, len(kinds))
		for _, k := range kinds {
			sub.types[k] = true
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.close()
		return sub.ch
	}
	b.streams[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.streams, sub)
		b.mu.Unlock()
		sub.close()
	}()

	return sub.ch
}

// Publish fans an event out to all subscribers. Callback subscribers
// run synchronously in registration order; a panicking subscriber is
// logged and skipped, never propagated to the publisher.
func (b *Bus) Publish(t Type, properties any) {
	e := Event{Type: t, Properties: properties}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	cbs := make([]callbackEntry, 0, len(b.callbacks[t])+len(b.global))
	cbs = append(cbs, b.callbacks[t]...)
	cbs = append(cbs, b.global...)
	streams := make([]*streamSub, 0, len(b.streams))
	for s := range b.streams {
		streams = append(streams, s)
	}
	b.mu.RUnlock()

	for _, cb := range cbs {
		invoke(cb.fn, e)
	}
	for _, s := range streams {
		s.deliver(e)
	}
}

func invoke(fn Subscriber, e Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Str("eventType", string(e.Type)).
				Any("panic", r).
				Msg("event subscriber panicked")
		}
	}()
	fn(e)
}

func (b *Bus) unsubscribe(t Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.callbacks[t]
	for i, entry := range subs {
		if entry.id == id {
			b.callbacks[t] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

func (b *Bus) unsubscribeGlobal(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, entry := range b.global {
		if entry.id == id {
			b.global = append(b.global[:i], b.global[i+1:]...)
			return
		}
	}
}

// Close shuts the bus down and closes all stream subscribers.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.callbacks = make(map[Type][]callbackEntry)
	b.global = nil
	streams := b.streams
	b.streams = make(map[*streamSub]struct{})
	b.mu.Unlock()

	for s := range streams {
		s.close()
	}
	return b.pubsub.Close()
}
