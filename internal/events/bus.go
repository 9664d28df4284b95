// internal/events/bus.go
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrBusClosed is returned by Publish after Shutdown.
	ErrBusClosed = errors.New("event bus is shutting down")
	// ErrBusFull is returned when the queue is full and the event was dropped.
	ErrBusFull = errors.New("event channel full")
)

const defaultBufferSize = 256

type registration struct {
	id      string
	handler Handler
}

// Bus is an in-memory event bus. Published events are queued on a bounded
// channel and dispatched one at a time in publish order; handlers of one
// type run in subscription order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]registration
	logger   *zap.Logger

	queue   chan Event
	closing chan struct{}
	closed  sync.Once
	done    chan struct{}
	dropped atomic.Uint64
}

// NewBus creates a bus with a queue of bufferSize events and starts its
// dispatcher.
func NewBus(logger *zap.Logger, bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	b := &Bus{
		handlers: make(map[EventType][]registration),
		logger:   logger.Named("event_bus"),
		queue:    make(chan Event, bufferSize),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// Subscribe registers a handler for a specific event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) Subscription {
	id := uuid.NewString()

	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], registration{id: id, handler: handler})
	b.mu.Unlock()

	b.logger.Debug("Handler subscribed",
		zap.String("event_type", string(eventType)),
		zap.String("subscription_id", id))

	return &subscription{id: id, eventBus: b, typ: eventType}
}

// SubscribeFunc is a convenience method for subscribing with a function.
func (b *Bus) SubscribeFunc(eventType EventType, fn func(context.Context, Event) error) Subscription {
	return b.Subscribe(eventType, HandlerFunc(fn))
}

// Publish queues an event without blocking. When the queue is full the
// event is dropped and counted.
func (b *Bus) Publish(event Event) error {
	select {
	case <-b.closing:
		return ErrBusClosed
	default:
	}

	select {
	case b.queue <- event:
		return nil
	default:
		b.dropped.Add(1)
		b.logger.Warn("Event channel full, dropping event",
			zap.String("event_type", string(event.Type())))
		return ErrBusFull
	}
}

// PublishSync delivers an event to every handler on the caller's goroutine.
func (b *Bus) PublishSync(ctx context.Context, event Event) error {
	b.mu.RLock()
	regs := append([]registration(nil), b.handlers[event.Type()]...)
	b.mu.RUnlock()

	var errs []error
	for _, reg := range regs {
		if err := reg.handler.Handle(ctx, event); err != nil {
			b.logger.Error("Handler error",
				zap.String("event_type", string(event.Type())),
				zap.String("handler_id", reg.id),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("handlers failed: %w", errors.Join(errs...))
	}
	return nil
}

// dispatch delivers queued events until Shutdown, then drains what is left.
func (b *Bus) dispatch() {
	defer close(b.done)
	ctx := context.Background()
	for {
		select {
		case event := <-b.queue:
			_ = b.PublishSync(ctx, event)
		case <-b.closing:
			for {
				select {
				case event := <-b.queue:
					_ = b.PublishSync(ctx, event)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) unsubscribe(id string, eventType EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.handlers[eventType]
	for i, reg := range regs {
		if reg.id != id {
			continue
		}
		regs = append(regs[:i:i], regs[i+1:]...)
		break
	}
	if len(regs) == 0 {
		delete(b.handlers, eventType)
	} else {
		b.handlers[eventType] = regs
	}

	b.logger.Debug("Handler unsubscribed",
		zap.String("event_type", string(eventType)),
		zap.String("subscription_id", id))
}

// Shutdown stops accepting events, drains the queue and waits for the
// dispatcher to exit or ctx to expire. It is safe to call more than once.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.closed.Do(func() {
		b.logger.Debug("Shutting down event bus")
		close(b.closing)
	})

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		b.logger.Warn("Event bus shutdown timeout")
		return ctx.Err()
	}
}

// Stats describes the bus state.
type Stats struct {
	BufferSize      int
	PendingEvents   int
	Dropped         uint64
	HandlersPerType map[EventType]int
}

// Stats returns statistics about the event bus.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	counts := make(map[EventType]int, len(b.handlers))
	for eventType, regs := range b.handlers {
		counts[eventType] = len(regs)
	}
	return Stats{
		BufferSize:      cap(b.queue),
		PendingEvents:   len(b.queue),
		Dropped:         b.dropped.Load(),
		HandlersPerType: counts,
	}
}
