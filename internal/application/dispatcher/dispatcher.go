package dispatcher

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/garyjia/agency-ops/internal/domain/event"
)

// Dispatcher is an in-process publish/subscribe bus for workflow events.
// Delivery is best-effort: there is no buffering or replay, so a handler only
// sees events published while it is subscribed.
type Dispatcher interface {
	// Subscribe registers a handler for every event and returns its unsubscribe func
	Subscribe(handler Handler) (unsubscribe func())

	// SubscribeNamed registers a handler with a name for debugging
	SubscribeNamed(name string, handler Handler) (unsubscribe func())

	// Publish invokes every current handler concurrently and returns once all
	// of them finished. Handler errors and panics are logged, never returned.
	Publish(ctx context.Context, evt *event.Event)

	// PublishAsync publishes without waiting for handlers
	PublishAsync(ctx context.Context, evt *event.Event)

	// SubscriberCount returns the number of registered handlers
	SubscriberCount() int

	// ListHandlers returns registered handlers in subscription order
	ListHandlers() []HandlerInfo

	// Close stops accepting events and waits for async publishes
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// eventDispatcher is the concrete implementation of Dispatcher
type eventDispatcher struct {
	mu       sync.RWMutex
	handlers map[uint64]HandlerInfo
	nextID   uint64
	logger   Logger

	// For async publish; closeMu orders wg.Add against Close
	wg      sync.WaitGroup
	closeMu sync.RWMutex
	closed  atomic.Bool
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a new, isolated event bus
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		handlers: make(map[uint64]HandlerInfo),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Subscribe registers a handler with an auto-generated name
func (d *eventDispatcher) Subscribe(handler Handler) func() {
	return d.subscribe("", handler)
}

// SubscribeNamed registers a handler with a specific name for debugging
func (d *eventDispatcher) SubscribeNamed(name string, handler Handler) func() {
	return d.subscribe(name, handler)
}

func (d *eventDispatcher) subscribe(name string, handler Handler) func() {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	if name == "" {
		name = fmt.Sprintf("handler-%d", id)
	}
	d.handlers[id] = HandlerInfo{
		Name:    name,
		Handler: handler,
	}
	d.mu.Unlock()

	if d.logger != nil {
		d.logger.Info("Handler registered", "handler_name", name)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.handlers, id)
			d.mu.Unlock()

			if d.logger != nil {
				d.logger.Info("Handler unregistered", "handler_name", name)
			}
		})
	}
}

// Publish fans evt out to a snapshot of the current handlers
func (d *eventDispatcher) Publish(ctx context.Context, evt *event.Event) {
	if d.closed.Load() {
		if d.logger != nil {
			d.logger.Error("Cannot publish event, dispatcher is closed",
				"event_type", evt.Type,
				"event_id", evt.ID,
			)
		}
		return
	}

	d.publish(ctx, evt)
}

// publish delivers without checking closed, so async publishes accepted
// before Close still reach their handlers
func (d *eventDispatcher) publish(ctx context.Context, evt *event.Event) {
	handlers := d.snapshot()
	if len(handlers) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, info := range handlers {
		wg.Add(1)
		go func(h HandlerInfo) {
			defer wg.Done()

			if err := d.safeExecute(ctx, evt, h); err != nil && d.logger != nil {
				d.logger.Error("Handler error",
					"event_type", evt.Type,
					"event_id", evt.ID,
					"handler_name", h.Name,
					"error", err,
				)
			}
		}(info)
	}
	wg.Wait()
}

// PublishAsync publishes evt in the background; Close waits for it
func (d *eventDispatcher) PublishAsync(ctx context.Context, evt *event.Event) {
	d.closeMu.RLock()
	defer d.closeMu.RUnlock()

	if d.closed.Load() {
		if d.logger != nil {
			d.logger.Error("Cannot publish async event, dispatcher is closed",
				"event_type", evt.Type,
				"event_id", evt.ID,
			)
		}
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.publish(ctx, evt)
	}()
}

// SubscriberCount returns the number of registered handlers
func (d *eventDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers)
}

// ListHandlers returns registered handlers without their functions
func (d *eventDispatcher) ListHandlers() []HandlerInfo {
	handlers := d.snapshot()
	result := make([]HandlerInfo, len(handlers))

	for i, h := range handlers {
		result[i] = HandlerInfo{
			Name:        h.Name,
			Description: h.Description,
		}
	}

	return result
}

// Close shuts down the dispatcher and waits for async publishes to complete
func (d *eventDispatcher) Close() error {
	d.closeMu.Lock()
	swapped := d.closed.CompareAndSwap(false, true)
	d.closeMu.Unlock()
	if !swapped {
		return fmt.Errorf("dispatcher already closed")
	}

	if d.logger != nil {
		d.logger.Info("Closing dispatcher, waiting for async handlers")
	}

	d.wg.Wait()

	if d.logger != nil {
		d.logger.Info("Dispatcher closed")
	}

	return nil
}

// snapshot copies the handler set in subscription order
func (d *eventDispatcher) snapshot() []HandlerInfo {
	d.mu.RLock()
	ids := make([]uint64, 0, len(d.handlers))
	for id := range d.handlers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	handlers := make([]HandlerInfo, len(ids))
	for i, id := range ids {
		handlers[i] = d.handlers[id]
	}
	d.mu.RUnlock()

	return handlers
}

// safeExecute runs a handler with panic recovery
func (d *eventDispatcher) safeExecute(ctx context.Context, evt *event.Event, info HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			if d.logger != nil {
				d.logger.Error("Handler panic recovered",
					"event_type", evt.Type,
					"event_id", evt.ID,
					"handler_name", info.Name,
					"panic", r,
				)
			}
		}
	}()

	return info.Handler(ctx, evt)
}
