package events

import (
	"context"
	"errors"
	"sync"
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Notifier fans events out to whoever listens on a channel. Delivery is
// best effort and at most once.
type Notifier interface {
	Publish(ctx context.Context, channel string, event Event) error
}

// InMemoryNotifier is a synchronous in-process notifier.
type InMemoryNotifier struct {
	mu        sync.RWMutex
	listeners map[string][]EventHandler
}

// NewInMemoryNotifier creates a notifier instance.
func NewInMemoryNotifier() *InMemoryNotifier {
	return &InMemoryNotifier{
		listeners: make(map[string][]EventHandler),
	}
}

// Publish synchronously invokes handlers for the channel. Every handler runs
// even when an earlier one fails; the failures are joined.
func (n *InMemoryNotifier) Publish(ctx context.Context, channel string, event Event) error {
	n.mu.RLock()
	handlers := append([]EventHandler{}, n.listeners[channel]...)
	n.mu.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers a handler for the given channel.
func (n *InMemoryNotifier) Subscribe(channel string, handler EventHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners[channel] = append(n.listeners[channel], handler)
}

// Recorder collects every published event. Tests and local runs use it to
// observe what the core emitted.
type Recorder struct {
	mu        sync.Mutex
	published []Published
}

// Published pairs an event with its channel.
type Published struct {
	Channel string
	Event   Event
}

func (r *Recorder) Publish(_ context.Context, channel string, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, Published{Channel: channel, Event: event})
	return nil
}

// Events returns a snapshot of what was published on channel.
func (r *Recorder) Events(channel string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, p := range r.published {
		if p.Channel == channel {
			out = append(out, p.Event)
		}
	}
	return out
}
