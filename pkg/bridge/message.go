// Package bridge translates messages between the Agora agent protocol
// and the AT Protocol. It owns the directional message envelope, the
// error taxonomy, the event bus and the orchestrator coordinating both
// side adapters.
package bridge

import (
	"fmt"

	"github.com/agora-at/agorat/pkg/payload"
	"github.com/agora-at/agorat/pkg/protocol"
)

// Side names one of the two ecosystems being bridged.
type Side string

const (
	SideAgora   Side = "agora"
	SideATProto Side = "atproto"
)

func (s Side) valid() bool {
	return s == SideAgora || s == SideATProto
}

// Direction names a send orientation and fixes the source/target pair.
type Direction string

const (
	ToAgora   Direction = "to_agora"
	ToATProto Direction = "to_atproto"
)

// ParseDirection maps the wire form to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case ToAgora:
		return ToAgora, nil
	case ToATProto:
		return ToATProto, nil
	}
	return "", fmt.Errorf("bridge: unknown direction %q", s)
}

func (d Direction) Source() Side {
	if d == ToAgora {
		return SideATProto
	}
	return SideAgora
}

func (d Direction) Target() Side {
	if d == ToAgora {
		return SideAgora
	}
	return SideATProto
}

// Message is the unit of cross-protocol exchange. Construct via
// NewMessage; messages are never mutated after construction and never
// persisted. Routing uses Target exclusively, never the content.
type Message struct {
	Source   Side
	Target   Side
	Content  payload.Value
	Protocol *protocol.Negotiated
	// Meta is a diagnostics-only bag (timestamp, logical message type).
	Meta map[string]string
}

// NewMessage validates the source/target pair. Source and target must
// each name a known side and must differ.
func NewMessage(source, target Side, content payload.Value, p *protocol.Negotiated, meta map[string]string) (Message, error) {
	if !source.valid() {
		return Message{}, &ValidationError{Reason: fmt.Sprintf("unknown source side %q", source)}
	}
	if !target.valid() {
		return Message{}, &ValidationError{Reason: fmt.Sprintf("unknown target side %q", target)}
	}
	if source == target {
		return Message{}, &ValidationError{Reason: fmt.Sprintf("source and target are both %q", source)}
	}

	return Message{
		Source:   source,
		Target:   target,
		Content:  content,
		Protocol: p,
		Meta:     meta,
	}, nil
}
