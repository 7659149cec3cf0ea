package events

import (
	"context"
	"sync"
	"time"

	"ticket-validation-api/internal/logging"
	"ticket-validation-api/internal/models"
)

// EventType represents the type of event.
type EventType string

const (
	// EventValidationCompleted is emitted after every tap, whatever its status
	EventValidationCompleted EventType = "validation.completed"
	// EventCardIssued is emitted when a card is personalized
	EventCardIssued EventType = "card.issued"
)

// Event represents an event in the system.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      any
}

// ValidationCompletedData contains data for validation completed events.
type ValidationCompletedData struct {
	Receipt models.ValidationReceipt
}

// CardIssuedData contains data for card issued events.
type CardIssuedData struct {
	CardID   string
	Product  string
	CardType string
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Manager manages event handlers and event publishing.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	enabled  bool
	wg       sync.WaitGroup
	now      func() time.Time
}

// NewManager creates a new event manager.
func NewManager(enabled bool) *Manager {
	return &Manager{
		handlers: make(map[EventType][]Handler),
		enabled:  enabled,
		now:      time.Now,
	}
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

// Publish runs every handler subscribed to eventType in its own goroutine.
// Handlers get a context that outlives the publishing request.
func (m *Manager) Publish(ctx context.Context, eventType EventType, data any) {
	m.mu.RLock()
	if !m.enabled {
		m.mu.RUnlock()
		return
	}
	handlers := m.handlers[eventType]
	m.wg.Add(len(handlers))
	m.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: m.now(),
		Data:      data,
	}

	hctx := context.WithoutCancel(ctx)
	for _, handler := range handlers {
		go func(h Handler) {
			defer m.wg.Done()
			if err := h(hctx, event); err != nil {
				logging.FromContext(hctx).Warn("event handler failed", "event", string(eventType), "error", err)
			}
		}(handler)
	}
}

// PublishValidationCompleted publishes a validation completed event.
func (m *Manager) PublishValidationCompleted(ctx context.Context, receipt models.ValidationReceipt) {
	m.Publish(ctx, EventValidationCompleted, ValidationCompletedData{Receipt: receipt})
}

// PublishCardIssued publishes a card issued event.
func (m *Manager) PublishCardIssued(ctx context.Context, summary models.CardSummary) {
	m.Publish(ctx, EventCardIssued, CardIssuedData{
		CardID:   summary.ID,
		Product:  summary.Product,
		CardType: summary.CardType,
	})
}

// Wait blocks until every running handler returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown stops accepting events and waits for running handlers.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.enabled = false
	m.handlers = make(map[EventType][]Handler)
	m.mu.Unlock()

	m.wg.Wait()
}
