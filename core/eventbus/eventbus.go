// Package eventbus provides the named-topic event bus for publishing and subscribing to events.
package eventbus

import (
	"worldlink/core/event"
)

// EventBus is the interface for the event bus.
type EventBus interface {
	// Publish delivers an event to every handler subscribed to its name.
	// Delivery is synchronous and follows registration order. A panicking
	// handler is logged and skipped; the remaining handlers still run.
	Publish(e event.Event)

	// Subscribe registers a handler for one event name.
	// Returns a subscription ID that can be used to unsubscribe.
	Subscribe(name string, handler EventHandler) string

	// Unsubscribe removes a subscription by its ID.
	Unsubscribe(subscriptionID string)

	// Close shuts down the event bus.
	// After Close is called, Publish will be a no-op.
	Close()
}

// EventHandler is a function that handles an event.
type EventHandler func(e event.Event)

// Observer receives delivery statistics. Implementations must be safe for concurrent use.
type Observer interface {
	EventPublished(name string)
	HandlerPanicked(name string)
}
