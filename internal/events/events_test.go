package events

import (
	"context"
	"testing"

	"github.com/memoric/memoric/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestBroadcaster_NotifiesAllSubscribers(t *testing.T) {
	b := NewBroadcaster()
	var calls []string
	b.Subscribe(SinkFunc(func(_ context.Context, e model.LifecycleEvent) {
		calls = append(calls, "a:"+string(e.Kind))
	}))
	b.Subscribe(SinkFunc(func(_ context.Context, e model.LifecycleEvent) {
		calls = append(calls, "b:"+string(e.Kind))
	}))

	b.Publish(context.Background(), model.LifecycleEvent{Kind: model.EventCreated})
	assert.ElementsMatch(t, []string{"a:created", "b:created"}, calls)
}

func TestBroadcaster_PanickingSinkDoesNotBlockOthers(t *testing.T) {
	b := NewBroadcaster()
	var secondCalled bool
	b.Subscribe(SinkFunc(func(context.Context, model.LifecycleEvent) {
		panic("boom")
	}))
	b.Subscribe(SinkFunc(func(context.Context, model.LifecycleEvent) {
		secondCalled = true
	}))

	assert.NotPanics(t, func() {
		b.Publish(context.Background(), model.LifecycleEvent{Kind: model.EventCreated})
	})
	assert.True(t, secondCalled)
}

func TestBroadcaster_NoSubscribersIsNoop(t *testing.T) {
	b := NewBroadcaster()
	assert.NotPanics(t, func() {
		b.Publish(context.Background(), model.LifecycleEvent{Kind: model.EventCreated})
	})
}
