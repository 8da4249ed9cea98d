package bus

import "time"

// EventBus is a thread-safe, in-process pub/sub bus used to observe scene
// lifecycle changes.
//
// Handlers subscribe by Event.Type(). Delivery is synchronous in the
// publisher goroutine and handler errors are joined and returned from
// Publish. Subscribing to Wildcard receives every event type.
type EventBus interface {
	// Publish delivers the event to all active subscribers of event.Type()
	// and of Wildcard.
	Publish(event Event) error
	// Subscribe registers a handler for one event type.
	Subscribe(eventType string, handler EventHandler) (Subscription, error)
	// Unsubscribe cancels the given Subscription. It is safe to call with nil.
	Unsubscribe(Subscription) error
	// PublishBatch publishes events in order and aggregates their errors.
	PublishBatch(events ...Event) error
	// Subscribers reports how many handlers are registered for eventType.
	Subscribers(eventType string) int
}

// Wildcard subscribes a handler to every event type.
const Wildcard = "*"

// Event is an immutable message transported by the EventBus.
type Event interface {
	Type() string
	Source() string
	Timestamp() time.Time
	Data() any
	Metadata() map[string]any
}

type (
	// EventHandler is invoked per delivered event.
	EventHandler func(event Event) error
	// EventFilter decides whether an event should be delivered.
	EventFilter func(event Event) bool
)

// Subscription represents a registered handler bound to an event type.
type Subscription interface {
	ID() string
	EventType() string
	IsActive() bool
	// Cancel de-registers the handler. Multiple calls are safe.
	Cancel() error
}
