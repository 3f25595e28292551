package bridge

import (
	"log/slog"
	"sync"
	"time"

	"github.com/agora-at/agorat/pkg/payload"
	"github.com/agora-at/agorat/pkg/protocol"
	"github.com/agora-at/agorat/pkg/telemetry"
)

// EventKind enumerates the fixed set of observable bridge lifecycle
// events.
type EventKind string

const (
	EventMessage            EventKind = "message"
	EventPost               EventKind = "post"
	EventProtocolNegotiated EventKind = "protocol_negotiated"
	EventError              EventKind = "error"
)

// Event is delivered to subscribed handlers. Fields are populated per
// kind; unused fields stay zero.
type Event struct {
	Kind        EventKind
	Direction   Direction
	MessageType string
	Content     payload.Value
	Protocol    *protocol.Negotiated
	Err         string
	At          time.Time
}

type Handler func(Event)

// EventBus fans events out to handlers in registration order,
// synchronously. A handler that panics is recovered and logged; it never
// aborts the triggering operation or its sibling handlers.
type EventBus struct {
	mu       sync.RWMutex
	logger   *slog.Logger
	handlers map[EventKind][]Handler
}

func NewEventBus(logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{
		logger:   logger,
		handlers: make(map[EventKind][]Handler),
	}
}

func (b *EventBus) Subscribe(kind EventKind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

func (b *EventBus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if ev.Kind == EventError {
		telemetry.Metrics.ErrorsTotal.WithLabelValues("bridge").Inc()
	}

	b.mu.RLock()
	handlers := b.handlers[ev.Kind]
	b.mu.RUnlock()

	for _, h := range handlers {
		b.invoke(ev, h)
	}
}

func (b *EventBus) invoke(ev Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.Metrics.EventHandlerPanics.WithLabelValues(string(ev.Kind)).Inc()
			b.logger.Error("event handler panicked",
				slog.String("kind", string(ev.Kind)),
				slog.Any("panic", r),
			)
		}
	}()
	h(ev)
}
