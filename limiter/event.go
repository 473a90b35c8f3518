package limiter

import (
	"context"
	"time"
)

// EventType limiter event kind
type EventType string

const (
	// EventAllowed request admitted and counted
	EventAllowed EventType = "allowed"

	// EventRejected request denied, window quota used up
	EventRejected EventType = "rejected"

	// EventDegraded Redis failed during the check; request admitted (fail open)
	EventDegraded EventType = "degraded"

	// EventTierChanged usage pattern moved the identity into another limit band
	EventTierChanged EventType = "tier_changed"
)

// Event interface
type Event interface {
	Type() EventType
	Identity() string
	Context() context.Context
	Timestamp() time.Time
}

// BaseEvent basic event
type BaseEvent struct {
	eventType EventType
	identity  string
	ctx       context.Context
	timestamp time.Time
}

// NewBaseEvent creates a base event
func NewBaseEvent(ctx context.Context, eventType EventType, identity string, at time.Time) BaseEvent {
	return BaseEvent{
		eventType: eventType,
		identity:  identity,
		ctx:       ctx,
		timestamp: at,
	}
}

// Type returns event type
func (e *BaseEvent) Type() EventType {
	return e.eventType
}

// Identity the rate-limited key (user id, API key, client IP)
func (e *BaseEvent) Identity() string {
	return e.identity
}

// Context returns the context of the request that produced the event
func (e *BaseEvent) Context() context.Context {
	return e.ctx
}

// Timestamp on the limiter clock
func (e *BaseEvent) Timestamp() time.Time {
	return e.timestamp
}

// AllowedEvent admitted request
type AllowedEvent struct {
	BaseEvent
	Count int64 // window count including this request
	Limit int
}

// RejectedEvent denied request
type RejectedEvent struct {
	BaseEvent
	Count      int64
	Limit      int
	RetryAfter time.Duration
}

// DegradedEvent fail-open admission
type DegradedEvent struct {
	BaseEvent
	Op  string
	Err error
}

// TierChangedEvent effective limit changed after a usage update
type TierChangedEvent struct {
	BaseEvent
	OldLimit int
	NewLimit int
	Pattern  float64
}

// EventListener event listener interface
type EventListener interface {
	OnEvent(event Event)
}

// EventListenerFunc event listener function type
type EventListenerFunc func(event Event)

// OnEvent implements EventListener interface
func (f EventListenerFunc) OnEvent(event Event) {
	f(event)
}

// EventBus event bus interface
type EventBus interface {
	// Subscribe to event
	Subscribe(listener EventListener)

	// Publish never blocks; events are dropped when the buffer is full
	Publish(event Event)

	// Close drains queued events and stops dispatching
	Close()
}
