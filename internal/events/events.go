// Package events broadcasts lifecycle events to subscribers. The store's
// append-only event table is the system of record; Sinks here are
// best-effort fan-out (an external audit log, metrics) that must never be
// required for a core operation to succeed (spec.md §4.7).
package events

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/memoric/memoric/internal/model"
)

// Sink receives lifecycle events after they have been durably appended to
// the store. Implementations must not block the caller for long; the
// Broadcaster recovers from panics but does not time out slow sinks.
type Sink interface {
	Notify(ctx context.Context, event model.LifecycleEvent)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, event model.LifecycleEvent)

func (f SinkFunc) Notify(ctx context.Context, event model.LifecycleEvent) { f(ctx, event) }

// Broadcaster fans an event out to every registered Sink, isolating each
// one from the others' failures.
type Broadcaster struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewBroadcaster returns an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Subscribe registers a Sink. Safe to call concurrently with Publish.
func (b *Broadcaster) Subscribe(sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, sink)
}

// Publish notifies every subscribed Sink. A panicking or slow sink never
// prevents the others from being notified, and never propagates to the
// caller.
func (b *Broadcaster) Publish(ctx context.Context, event model.LifecycleEvent) {
	b.mu.RLock()
	sinks := make([]Sink, len(b.sinks))
	copy(sinks, b.sinks)
	b.mu.RUnlock()

	for _, sink := range sinks {
		notifySafely(ctx, sink, event)
	}
}

func notifySafely(ctx context.Context, sink Sink, event model.LifecycleEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("events: sink panicked", "kind", event.Kind, "recovered", r)
		}
	}()
	sink.Notify(ctx, event)
}
