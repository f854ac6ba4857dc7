package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType represents the type of event.
type EventType string

const (
	EventOfferCreated EventType = "offer.created"
	EventOfferViewed  EventType = "offer.viewed"
	EventOfferDeleted EventType = "offer.deleted"
)

// Event represents an event in the system.
type Event struct {
	Type      EventType
	Timestamp time.Time
	OfferID   int64
	Data      interface{}
}

// OfferCreatedData contains data for offer created events.
type OfferCreatedData struct {
	Title string
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Manager fans events out to subscribed handlers.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	enabled  bool
	log      zerolog.Logger
	wg       sync.WaitGroup
}

// NewManager creates a new event manager. Handler errors are logged to log.
func NewManager(enabled bool, log zerolog.Logger) *Manager {
	return &Manager{
		handlers: make(map[EventType][]Handler),
		enabled:  enabled,
		log:      log,
	}
}

// Enabled reports whether events are delivered.
func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Subscribe subscribes a handler to a specific event type.
func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		return
	}
	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// Publish runs every handler for the event in its own goroutine.
func (m *Manager) Publish(ctx context.Context, eventType EventType, offerID int64, data interface{}) {
	// Add runs under the lock so Shutdown's Wait never races it.
	m.mu.RLock()
	handlers := m.handlers[eventType]
	if !m.enabled || len(handlers) == 0 {
		m.mu.RUnlock()
		return
	}
	m.wg.Add(len(handlers))
	m.mu.RUnlock()

	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		OfferID:   offerID,
		Data:      data,
	}

	// Handlers outlive the invocation, so they get a detached context.
	hctx := context.WithoutCancel(ctx)
	for _, handler := range handlers {
		go func(h Handler) {
			defer m.wg.Done()
			if err := h(hctx, event); err != nil {
				m.log.Error().Err(err).
					Str("event", string(event.Type)).
					Int64("offer_id", event.OfferID).
					Msg("event handler failed")
			}
		}(handler)
	}
}

// PublishOfferCreated publishes an offer created event.
func (m *Manager) PublishOfferCreated(ctx context.Context, id int64, title string) {
	m.Publish(ctx, EventOfferCreated, id, OfferCreatedData{Title: title})
}

// PublishOfferViewed publishes an offer viewed event.
func (m *Manager) PublishOfferViewed(ctx context.Context, id int64) {
	m.Publish(ctx, EventOfferViewed, id, nil)
}

// PublishOfferDeleted publishes an offer deleted event.
func (m *Manager) PublishOfferDeleted(ctx context.Context, id int64) {
	m.Publish(ctx, EventOfferDeleted, id, nil)
}

// Wait blocks until in-flight handlers return.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown stops accepting events and waits for in-flight handlers.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.enabled = false
	m.handlers = make(map[EventType][]Handler)
	m.mu.Unlock()

	m.wg.Wait()
}

// LogSubscriber returns a handler that records events in the log.
func LogSubscriber(log zerolog.Logger) Handler {
	return func(_ context.Context, event Event) error {
		log.Info().
			Str("event", string(event.Type)).
			Int64("offer_id", event.OfferID).
			Time("at", event.Timestamp).
			Msg("offer event")
		return nil
	}
}
