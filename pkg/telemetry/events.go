package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/panelflow/panelflow/pkg/engine"
)

// Event levels.
const (
	EventLevelDebug = "debug"
	EventLevelInfo  = "info"
	EventLevelWarn  = "warn"
	EventLevelError = "error"
)

var (
	// ErrBusClosed is returned when publishing to a bus that has been shut down.
	ErrBusClosed = errors.New("event bus closed")

	// ErrBufferFull is returned when the async queue cannot accept another event.
	ErrBufferFull = errors.New("event buffer full, event dropped")
)

// Bus delivers engine events to subscribers. It implements engine.EventPublisher
// and engine.EventSubscriber.
//
// In async mode a single worker delivers events in publish order, so a
// subscriber never sees notifications out of sequence. Handlers must not block
// on the panel system's cooperative context when the bus runs synchronously.
type Bus struct {
	config EventsConfig
	logger zerolog.Logger

	mu          sync.RWMutex
	subscribers map[string]subscriberEntry
	order       []string

	queue  chan envelope
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

type subscriberEntry struct {
	filter  engine.EventFilter
	handler engine.EventHandler
}

type envelope struct {
	ctx   context.Context
	event *engine.Event
	ack   chan struct{}
}

// NewBus creates an event bus. Async buses start their worker immediately.
func NewBus(cfg EventsConfig, logger zerolog.Logger) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		config:      cfg,
		logger:      logger.With().Str("component", "event-bus").Logger(),
		subscribers: make(map[string]subscriberEntry),
		ctx:         ctx,
		cancel:      cancel,
	}

	if cfg.EnableAsync {
		size := cfg.BufferSize
		if size <= 0 {
			size = 1
		}
		b.queue = make(chan envelope, size)
		b.wg.Add(1)
		go b.processEvents()
	}
	return b
}

// Publish delivers an event to every matching subscriber.
func (b *Bus) Publish(ctx context.Context, event *engine.Event) error {
	if event == nil {
		return fmt.Errorf("event is nil")
	}
	if b.ctx.Err() != nil {
		return ErrBusClosed
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Level == "" {
		event.Level = EventLevelInfo
	}

	if !b.config.EnableAsync {
		b.deliver(ctx, event)
		return nil
	}

	select {
	case b.queue <- envelope{ctx: context.WithoutCancel(ctx), event: event}:
		return nil
	case <-b.ctx.Done():
		return ErrBusClosed
	default:
		return ErrBufferFull
	}
}

// Subscribe registers a handler for events matching filter.
func (b *Bus) Subscribe(ctx context.Context, filter engine.EventFilter, handler engine.EventHandler) (string, error) {
	if handler == nil {
		return "", fmt.Errorf("handler is nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	b.subscribers[id] = subscriberEntry{filter: filter, handler: handler}
	b.order = append(b.order, id)
	return id, nil
}

// Unsubscribe removes a subscription.
func (b *Bus) Unsubscribe(ctx context.Context, subscriptionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[subscriptionID]; !ok {
		return fmt.Errorf("subscription not found: %s", subscriptionID)
	}
	delete(b.subscribers, subscriptionID)
	for i, id := range b.order {
		if id == subscriptionID {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return nil
}

// Flush blocks until every event published before the call has been delivered.
func (b *Bus) Flush(ctx context.Context) error {
	if !b.config.EnableAsync {
		return nil
	}

	ack := make(chan struct{})
	select {
	case b.queue <- envelope{ack: ack}:
	case <-b.ctx.Done():
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops the worker after delivering whatever is still queued.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event bus shutdown timed out: %w", ctx.Err())
	}
}

// processEvents delivers queued events one at a time.
func (b *Bus) processEvents() {
	defer b.wg.Done()

	for {
		select {
		case env := <-b.queue:
			b.dispatch(env)
		case <-b.ctx.Done():
			for {
				select {
				case env := <-b.queue:
					b.dispatch(env)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) dispatch(env envelope) {
	if env.ack != nil {
		close(env.ack)
		return
	}
	b.deliver(env.ctx, env.event)
}

// deliver calls matching handlers in subscription order.
func (b *Bus) deliver(ctx context.Context, event *engine.Event) {
	b.mu.RLock()
	handlers := make([]engine.EventHandler, 0, len(b.order))
	for _, id := range b.order {
		entry := b.subscribers[id]
		if entry.filter.Matches(event) {
			handlers = append(handlers, entry.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.safeHandle(ctx, h, event)
	}
}

func (b *Bus) safeHandle(ctx context.Context, h engine.EventHandler, event *engine.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Interface("panic", r).
				Str("event_type", string(event.Type)).
				Str("stack", string(debug.Stack())).
				Msg("Event handler panicked")
		}
	}()
	h(ctx, event)
}
