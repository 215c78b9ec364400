package eventbus

import (
	"runtime/debug"
	"sync"

	"snaphound/internal/domain"
	"snaphound/internal/logging"
)

// Re-export domain types for convenience
type DomainEvent = domain.DomainEvent
type EventType = domain.EventType

// Event type constants
const (
	EventPushReceived          = domain.EventPushReceived
	EventCatalogChanged        = domain.EventCatalogChanged
	EventCatalogResetRequested = domain.EventCatalogResetRequested
	EventStatusUpdated         = domain.EventStatusUpdated
	EventHostReady             = domain.EventHostReady
	EventReloadRequested       = domain.EventReloadRequested
	EventSearchDispatched      = domain.EventSearchDispatched
	EventError                 = domain.EventError
	EventConfigLoaded          = domain.EventConfigLoaded
	EventConfigSaved           = domain.EventConfigSaved
	EventSearchPathsLoaded     = domain.EventSearchPathsLoaded
	EventSearchPathsSaved      = domain.EventSearchPathsSaved
	EventResourceFailed        = domain.EventResourceFailed
)

// Re-export domain event types
type PushReceivedEvent = domain.PushReceivedEvent
type CatalogChangedEvent = domain.CatalogChangedEvent
type CatalogResetRequestedEvent = domain.CatalogResetRequestedEvent
type StatusUpdatedEvent = domain.StatusUpdatedEvent
type HostReadyEvent = domain.HostReadyEvent
type ReloadRequestedEvent = domain.ReloadRequestedEvent
type SearchDispatchedEvent = domain.SearchDispatchedEvent
type ErrorEvent = domain.ErrorEvent
type ConfigLoadedEvent = domain.ConfigLoadedEvent
type ConfigSavedEvent = domain.ConfigSavedEvent
type SearchPathsLoadedEvent = domain.SearchPathsLoadedEvent
type SearchPathsSavedEvent = domain.SearchPathsSavedEvent
type ResourceFailedEvent = domain.ResourceFailedEvent

// EventHandler is a function that handles domain events
type EventHandler func(DomainEvent)

// EventBus is the interface for the event bus
type EventBus interface {
	Publish(event DomainEvent)
	Subscribe(eventType EventType, handler EventHandler) func()
	Close()
}

type subscription struct {
	id      uint64
	handler EventHandler
}

// bus is the concrete implementation of EventBus.
// Events are queued in an unbounded FIFO and handled one at a time by a
// single dispatcher goroutine, so handlers never run concurrently and always
// observe events in publish order.
type bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]subscription
	nextID   uint64

	qmu    sync.Mutex
	queue  []DomainEvent
	signal chan struct{}
	closed bool

	wg   sync.WaitGroup
	quit chan struct{}
}

// New creates a new event bus
func New() EventBus {
	b := &bus{
		handlers: make(map[EventType][]subscription),
		signal:   make(chan struct{}, 1),
		quit:     make(chan struct{}),
	}

	// Start the event dispatcher
	b.wg.Add(1)
	go b.dispatch()

	return b
}

// Publish queues an event for all subscribers. It never blocks on handlers.
func (b *bus) Publish(event DomainEvent) {
	switch event.Type() {
	case EventPushReceived, EventCatalogChanged, EventStatusUpdated:
		// Too frequent to log
	default:
		logging.Debug("EventBus: publishing event %s", event.Type())
	}

	b.qmu.Lock()
	if b.closed {
		b.qmu.Unlock()
		logging.Debug("EventBus: closed, dropping event %s", event.Type())
		return
	}
	b.queue = append(b.queue, event)
	b.qmu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
		// dispatcher already signalled
	}
}

// Subscribe subscribes to events of a specific type
// Returns an unsubscribe function
func (b *bus) Subscribe(eventType EventType, handler EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[eventType] = append(b.handlers[eventType], subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.handlers[eventType]
		for i, s := range subs {
			if s.id == id {
				b.handlers[eventType] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Close stops the dispatcher after the queued events have been handled
func (b *bus) Close() {
	b.qmu.Lock()
	if b.closed {
		b.qmu.Unlock()
		return
	}
	b.closed = true
	b.qmu.Unlock()

	close(b.quit)
	b.wg.Wait()
}

// dispatch delivers queued events to subscribers
func (b *bus) dispatch() {
	defer b.wg.Done()

	for {
		for {
			event, ok := b.next()
			if !ok {
				break
			}
			b.deliver(event)
		}

		select {
		case <-b.signal:
		case <-b.quit:
			// Drain what was queued before Close
			for {
				event, ok := b.next()
				if !ok {
					return
				}
				b.deliver(event)
			}
		}
	}
}

func (b *bus) next() (DomainEvent, bool) {
	b.qmu.Lock()
	defer b.qmu.Unlock()

	if len(b.queue) == 0 {
		return nil, false
	}
	event := b.queue[0]
	b.queue[0] = nil
	b.queue = b.queue[1:]
	return event, true
}

func (b *bus) deliver(event DomainEvent) {
	// Copy handlers so subscribers can (un)subscribe from inside a handler
	b.mu.RLock()
	subs := b.handlers[event.Type()]
	handlersCopy := make([]EventHandler, len(subs))
	for i, s := range subs {
		handlersCopy[i] = s.handler
	}
	b.mu.RUnlock()

	for _, handler := range handlersCopy {
		b.call(handler, event)
	}
}

func (b *bus) call(h EventHandler, event DomainEvent) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Event handler panic for %s: %v\nStack: %s", event.Type(), r, debug.Stack())
		}
	}()
	h(event)
}
