package eventbus

import (
	"reflect"
	"sync"
)

// Handler is a function that handles an event.
type Handler func(event interface{})

// EventBus provides in-process pub/sub, keyed by event type.
// Lifecycle components subscribe to transaction transition events here;
// external distribution (NATS) is layered on top by a bridge subscriber.
type EventBus struct {
	handlers map[reflect.Type][]Handler
	mu       sync.RWMutex
}

// New creates a new EventBus.
func New() *EventBus {
	return &EventBus{
		handlers: make(map[reflect.Type][]Handler),
	}
}

// Subscribe registers a handler for the concrete type of eventType.
func (e *EventBus) Subscribe(eventType interface{}, handler Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := reflect.TypeOf(eventType)
	e.handlers[t] = append(e.handlers[t], handler)
}

// Publish delivers an event to all subscribers asynchronously.
func (e *EventBus) Publish(event interface{}) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, handler := range e.handlers[reflect.TypeOf(event)] {
		go handler(event)
	}
}

// PublishSync delivers an event to all subscribers on the caller's goroutine,
// in subscription order. Used where ordering matters (transition events).
func (e *EventBus) PublishSync(event interface{}) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, handler := range e.handlers[reflect.TypeOf(event)] {
		handler(event)
	}
}

// SubscriberCount returns the number of subscribers for an event type.
func (e *EventBus) SubscriberCount(eventType interface{}) int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.handlers[reflect.TypeOf(eventType)])
}
