package agora

import (
	"context"
	"errors"
	"testing"

	"github.com/agora-at/agorat/pkg/bridge"
	"github.com/agora-at/agorat/pkg/identity"
	"github.com/agora-at/agorat/pkg/payload"
	"github.com/agora-at/agorat/pkg/protocol"
)

type stubTransport struct {
	sendCalls      int
	negotiateCalls int
	lastProtocolID string
	lastBody       payload.Value
	result         payload.Value
	err            error
}

func (s *stubTransport) Send(ctx context.Context, protocolID string, body payload.Value) (payload.Value, error) {
	s.sendCalls++
	s.lastProtocolID = protocolID
	s.lastBody = body
	if s.err != nil {
		return payload.Value{}, s.err
	}
	return s.result, nil
}

func (s *stubTransport) Negotiate(ctx context.Context, description string) (protocol.Negotiated, error) {
	s.negotiateCalls++
	if s.err != nil {
		return protocol.Negotiated{}, s.err
	}
	return protocol.Negotiated{ID: "p1", Version: "1.0", Description: description}, nil
}

func testAgent(t *testing.T) *identity.Agent {
	t.Helper()
	agent, err := identity.NewAgent(identity.Spec{
		DID:          "did:web:alice.example.com",
		Handle:       "alice",
		Capabilities: []identity.Capability{identity.CapInteractUsers},
		Endpoint:     "https://alice.example.com",
	})
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}
	return agent
}

func TestDispatchTargetMismatch(t *testing.T) {
	transport := &stubTransport{}
	a, err := NewAdapter(testAgent(t), transport, nil)
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}

	msg, _ := bridge.NewMessage(bridge.SideAgora, bridge.SideATProto, payload.Null(), nil, nil)
	_, err = a.Dispatch(context.Background(), msg)

	var verr *bridge.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if transport.sendCalls != 0 {
		t.Errorf("transport calls = %d, want 0 before validation failure", transport.sendCalls)
	}
}

func TestDispatchWithProtocol(t *testing.T) {
	transport := &stubTransport{result: payload.Map(map[string]payload.Value{"ok": payload.Bool(true)})}
	a, _ := NewAdapter(testAgent(t), transport, nil)

	p := &protocol.Negotiated{ID: "p7", Version: "1.0"}
	msg, _ := bridge.NewMessage(bridge.SideATProto, bridge.SideAgora, payload.String("hi"), p, nil)

	if _, err := a.Dispatch(context.Background(), msg); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if transport.lastProtocolID != "p7" {
		t.Errorf("protocol hint = %q, want p7", transport.lastProtocolID)
	}
}

func TestDispatchWithoutProtocolOmitsHint(t *testing.T) {
	transport := &stubTransport{}
	a, _ := NewAdapter(testAgent(t), transport, nil)

	msg, _ := bridge.NewMessage(bridge.SideATProto, bridge.SideAgora, payload.String("hi"), nil, nil)
	if _, err := a.Dispatch(context.Background(), msg); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if transport.lastProtocolID != "" {
		t.Errorf("protocol hint = %q, want empty", transport.lastProtocolID)
	}
}

func TestNegotiatePassesThrough(t *testing.T) {
	transport := &stubTransport{}
	a, _ := NewAdapter(testAgent(t), transport, nil)

	p, err := a.Negotiate(context.Background(), "structured updates")
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if p.ID != "p1" || p.Description != "structured updates" {
		t.Errorf("protocol = %+v", p)
	}
	if transport.negotiateCalls != 1 {
		t.Errorf("negotiate calls = %d, want 1", transport.negotiateCalls)
	}
}
