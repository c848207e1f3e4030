// Package freshness carries "data changed" signals from mutating
// operations to the views that display derived data.
package freshness

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// TopicDataUpdated is published after a successful server-side mutation
const TopicDataUpdated = "data-updated"

// Listener reacts to a published topic. It runs synchronously on the
// publisher's goroutine and should hand long work off.
type Listener func()

type subscription struct {
	id uint64
	fn Listener
}

// Bus is a topic keyed list of listeners. The zero value is not usable;
// use NewBus.
type Bus struct {
	log zerolog.Logger

	mu     sync.Mutex
	topics map[string][]subscription
	nextID uint64
}

// NewBus creates an empty bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		log:    log.With().Str("component", "freshness").Logger(),
		topics: make(map[string][]subscription),
	}
}

// Subscribe registers fn for topic and returns a function that removes it.
// Calling the returned function more than once is a no-op.
func (b *Bus) Subscribe(topic string, fn Listener) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.topics[topic] = append(b.topics[topic], subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(topic, id) })
	}
}

// SubscribeContext is Subscribe with automatic removal when ctx is done.
func (b *Bus) SubscribeContext(ctx context.Context, topic string, fn Listener) (unsubscribe func()) {
	unsub := b.Subscribe(topic, fn)
	stop := context.AfterFunc(ctx, unsub)
	return func() {
		stop()
		unsub()
	}
}

// Publish invokes every listener of topic in subscription order and
// returns how many ran. A panicking listener is logged and skipped.
func (b *Bus) Publish(topic string) int {
	b.mu.Lock()
	subs := make([]subscription, len(b.topics[topic]))
	copy(subs, b.topics[topic])
	b.mu.Unlock()

	for _, s := range subs {
		b.invoke(topic, s)
	}

	b.log.Debug().
		Str("topic", topic).
		Int("listeners", len(subs)).
		Msg("Published")

	return len(subs)
}

// Listeners returns the number of listeners registered for topic
func (b *Bus) Listeners(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}

func (b *Bus) invoke(topic string, s subscription) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Str("topic", topic).
				Uint64("listener", s.id).
				Err(fmt.Errorf("panic: %v", r)).
				Msg("Listener panicked")
		}
	}()
	s.fn()
}

func (b *Bus) remove(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[topic]
	for i, s := range subs {
		if s.id == id {
			b.topics[topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.topics[topic]) == 0 {
		delete(b.topics, topic)
	}
}
