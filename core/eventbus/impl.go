package eventbus

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"worldlink/core/event"
)

// subscription represents a single event subscription.
type subscription struct {
	id      string
	name    string
	handler EventHandler
}

// syncEventBus is a synchronous, name-keyed implementation of EventBus.
type syncEventBus struct {
	topics   map[string][]*subscription
	byID     map[string]*subscription
	mu       sync.RWMutex
	closed   atomic.Bool
	nextID   atomic.Uint64
	logger   *slog.Logger
	observer Observer
}

// Config holds configuration for creating an EventBus.
type Config struct {
	Logger   *slog.Logger
	Observer Observer
}

// New creates a new EventBus.
func New(cfg *Config) EventBus {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &syncEventBus{
		topics:   make(map[string][]*subscription),
		byID:     make(map[string]*subscription),
		logger:   cfg.Logger,
		observer: cfg.Observer,
	}
}

// Publish delivers an event to all subscribers of its name.
func (b *syncEventBus) Publish(e event.Event) {
	if e == nil || b.closed.Load() {
		return
	}
	name := e.EventName()

	// Snapshot so handlers may subscribe or unsubscribe during delivery
	b.mu.RLock()
	subs := append([]*subscription(nil), b.topics[name]...)
	b.mu.RUnlock()

	if b.observer != nil {
		b.observer.EventPublished(name)
	}

	for _, sub := range subs {
		b.deliver(sub, e)
	}
}

// deliver calls one handler, containing any panic it raises.
func (b *syncEventBus) deliver(sub *subscription, e event.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked",
				"event", sub.name,
				"subscription", sub.id,
				"error", fmt.Sprint(r))
			if b.observer != nil {
				b.observer.HandlerPanicked(sub.name)
			}
		}
	}()
	sub.handler(e)
}

// Subscribe registers handler for events named name.
func (b *syncEventBus) Subscribe(name string, handler EventHandler) string {
	id := b.generateID()
	sub := &subscription{id: id, name: name, handler: handler}

	b.mu.Lock()
	b.topics[name] = append(b.topics[name], sub)
	b.byID[id] = sub
	b.mu.Unlock()

	return id
}

// Unsubscribe removes a subscription by its ID.
func (b *syncEventBus) Unsubscribe(subscriptionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.byID[subscriptionID]
	if !ok {
		return
	}
	delete(b.byID, subscriptionID)

	subs := b.topics[sub.name]
	kept := make([]*subscription, 0, len(subs))
	for _, s := range subs {
		if s.id != subscriptionID {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(b.topics, sub.name)
		return
	}
	b.topics[sub.name] = kept
}

// Close shuts down the event bus.
func (b *syncEventBus) Close() {
	if b.closed.Swap(true) {
		return // Already closed
	}

	b.mu.Lock()
	b.topics = make(map[string][]*subscription)
	b.byID = make(map[string]*subscription)
	b.mu.Unlock()
}

func (b *syncEventBus) generateID() string {
	return fmt.Sprintf("sub-%d", b.nextID.Add(1))
}
