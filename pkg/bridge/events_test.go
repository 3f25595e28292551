package bridge

import (
	"testing"
)

func TestEventOrdering(t *testing.T) {
	bus := NewEventBus(nil)

	var order []string
	bus.Subscribe(EventMessage, func(Event) { order = append(order, "A") })
	bus.Subscribe(EventMessage, func(Event) { order = append(order, "B") })

	bus.Publish(Event{Kind: EventMessage})

	if len(order) != 2 || order[0] != "A" || order[1] != "B" {
		t.Errorf("order = %v, want [A B]", order)
	}
}

func TestPanickingHandlerIsolated(t *testing.T) {
	bus := NewEventBus(nil)

	ranB := false
	bus.Subscribe(EventMessage, func(Event) { panic("boom") })
	bus.Subscribe(EventMessage, func(Event) { ranB = true })

	// Must not propagate to the publisher.
	bus.Publish(Event{Kind: EventMessage})

	if !ranB {
		t.Error("second handler should run despite first panicking")
	}
}

func TestHandlersScopedToKind(t *testing.T) {
	bus := NewEventBus(nil)

	ran := false
	bus.Subscribe(EventError, func(Event) { ran = true })

	bus.Publish(Event{Kind: EventMessage})
	if ran {
		t.Error("message event should not reach error handlers")
	}

	bus.Publish(Event{Kind: EventError})
	if !ran {
		t.Error("error handler should run for error events")
	}
}

func TestPublishSetsTimestamp(t *testing.T) {
	bus := NewEventBus(nil)

	var got Event
	bus.Subscribe(EventPost, func(ev Event) { got = ev })
	bus.Publish(Event{Kind: EventPost})

	if got.At.IsZero() {
		t.Error("published event should carry a timestamp")
	}
}
