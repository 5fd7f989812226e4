// Package event provides an in-memory implementation of plugin.EventBus.
package event

import (
	"context"
	"strings"
	"sync"

	"github.com/HerbHall/netsweep/pkg/plugin"
	"go.uber.org/zap"
)

var _ plugin.EventBus = (*Bus)(nil)

// Bus is an in-memory event bus.
//
// Publish runs handlers in the caller's goroutine; PublishAsync runs each
// handler in its own goroutine. A subscription topic ending in ".*" matches
// every topic with that prefix, so "discovery.*" receives
// "discovery.device.discovered".
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
	logger *zap.Logger
}

type subscription struct {
	id      uint64
	topic   string // empty matches everything
	handler plugin.EventHandler
}

func (s subscription) matches(topic string) bool {
	switch {
	case s.topic == "":
		return true
	case strings.HasSuffix(s.topic, ".*"):
		return strings.HasPrefix(topic, strings.TrimSuffix(s.topic, "*"))
	default:
		return s.topic == topic
	}
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{logger: logger}
}

// Publish dispatches an event synchronously to all matching handlers.
func (b *Bus) Publish(ctx context.Context, event plugin.Event) error {
	for _, h := range b.matching(event.Topic) {
		b.safeCall(ctx, h, event)
	}
	return nil
}

// PublishAsync dispatches an event to all matching handlers without waiting.
func (b *Bus) PublishAsync(ctx context.Context, event plugin.Event) {
	for _, h := range b.matching(event.Topic) {
		go b.safeCall(ctx, h, event)
	}
}

// Subscribe registers a handler for a topic or topic prefix.
func (b *Bus) Subscribe(topic string, handler plugin.EventHandler) (unsubscribe func()) {
	return b.add(topic, handler)
}

// SubscribeAll registers a handler for every topic.
func (b *Bus) SubscribeAll(handler plugin.EventHandler) (unsubscribe func()) {
	return b.add("", handler)
}

func (b *Bus) add(topic string, handler plugin.EventHandler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscription{id: id, topic: topic, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// matching snapshots the handlers for a topic so dispatch runs without the lock.
func (b *Bus) matching(topic string) []plugin.EventHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []plugin.EventHandler
	for _, s := range b.subs {
		if s.matches(topic) {
			out = append(out, s.handler)
		}
	}
	return out
}

func (b *Bus) safeCall(ctx context.Context, handler plugin.EventHandler, event plugin.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("topic", event.Topic),
				zap.String("source", event.Source),
				zap.Any("panic", r),
			)
		}
	}()
	handler(ctx, event)
}
