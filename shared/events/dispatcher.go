package events

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Dispatcher delivers events synchronously to in-process handlers. Handlers
// run on the caller's goroutine with the caller's context, so they take part
// in whatever transaction the context carries; the first error aborts
// delivery and is returned to the caller.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string][]Handler)}
}

// Subscribe registers h for eventType. Handlers are called in registration order.
func (d *Dispatcher) Subscribe(eventType string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], h)
}

// Dispatch delivers event to every handler subscribed to its type.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	d.mu.RLock()
	handlers := append([]Handler(nil), d.handlers[event.Type]...)
	d.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			return fmt.Errorf("handle %s: %w", event.Type, err)
		}
	}
	return nil
}
