package limiter

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KOMKZ/go-yogan-throttle/logger"
	"github.com/stretchr/testify/assert"
)

func TestEventBus_DispatchAndPanicIsolation(t *testing.T) {
	log, logs := logger.NewTestLogger("limiter")
	bus := NewEventBus(10, log)

	var seen atomic.Int32
	bus.Subscribe(EventListenerFunc(func(Event) { panic("boom") }))
	bus.Subscribe(EventListenerFunc(func(Event) { seen.Add(1) }))

	for i := 0; i < 3; i++ {
		bus.Publish(&AllowedEvent{BaseEvent: NewBaseEvent(context.Background(), EventAllowed, "u", time.Now())})
	}
	bus.Close()

	assert.Equal(t, int32(3), seen.Load())
	assert.Equal(t, 3, logs.CountLogs("error"))

	// closed bus ignores everything
	bus.Publish(&AllowedEvent{})
	bus.Subscribe(EventListenerFunc(func(Event) {}))
	bus.Close()
}

func TestEventBus_DropsWhenFull(t *testing.T) {
	bus := NewEventBus(1, nil).(*eventBus)
	block := make(chan struct{})
	bus.Subscribe(EventListenerFunc(func(Event) { <-block }))

	for i := 0; i < 10; i++ {
		bus.Publish(&RejectedEvent{BaseEvent: NewBaseEvent(context.Background(), EventRejected, "u", time.Now())})
	}
	close(block)
	bus.Close()

	assert.Positive(t, bus.Dropped())
}
