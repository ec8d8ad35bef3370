package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/aescanero/capo/pkg/domain"
	"github.com/aescanero/capo/pkg/ports"
)

const subscriptionBuffer = 64

// InMemoryEventBus implements EventBus with in-process fan-out. Each
// subscription receives events in publish order on its own goroutine.
type InMemoryEventBus struct {
	subscribers map[string]map[*subscription]struct{}
	mu          sync.RWMutex
	closed      bool
}

type subscription struct {
	events chan domain.Event
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus() *InMemoryEventBus {
	return &InMemoryEventBus{
		subscribers: make(map[string]map[*subscription]struct{}),
	}
}

// Publish delivers an event to every subscriber of topic
func (e *InMemoryEventBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	e.mu.RLock()
	subs := make([]*subscription, 0, len(e.subscribers[topic]))
	for sub := range e.subscribers[topic] {
		subs = append(subs, sub)
	}
	e.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.events <- event:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// Subscribe registers handler for topic until ctx is done
func (e *InMemoryEventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	sub := &subscription{
		events: make(chan domain.Event, subscriptionBuffer),
		done:   make(chan struct{}),
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errors.New("event bus is closed")
	}
	if e.subscribers[topic] == nil {
		e.subscribers[topic] = make(map[*subscription]struct{})
	}
	e.subscribers[topic][sub] = struct{}{}
	e.mu.Unlock()

	go func() {
		defer e.remove(topic, sub)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.done:
				return
			case event := <-sub.events:
				// Handler errors are the subscriber's concern.
				_ = handler(ctx, event)
			}
		}
	}()

	return nil
}

// Close closes the event bus and stops every subscription
func (e *InMemoryEventBus) Close() error {
	e.mu.Lock()
	all := e.subscribers
	e.subscribers = make(map[string]map[*subscription]struct{})
	e.closed = true
	e.mu.Unlock()

	for _, subs := range all {
		for sub := range subs {
			sub.stop()
		}
	}
	return nil
}

// SubscriberCount returns the number of live subscriptions on topic
func (e *InMemoryEventBus) SubscriberCount(topic string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subscribers[topic])
}

func (e *InMemoryEventBus) remove(topic string, sub *subscription) {
	sub.stop()

	e.mu.Lock()
	defer e.mu.Unlock()

	if subs, ok := e.subscribers[topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(e.subscribers, topic)
		}
	}
}
