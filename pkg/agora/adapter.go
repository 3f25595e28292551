package agora

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agora-at/agorat/pkg/bridge"
	"github.com/agora-at/agorat/pkg/identity"
	"github.com/agora-at/agorat/pkg/payload"
	"github.com/agora-at/agorat/pkg/protocol"
)

// Adapter is the Agora side of the bridge. It owns one immutable agent
// identity for the process lifetime and translates bridge messages into
// transport calls.
type Adapter struct {
	agent     *identity.Agent
	transport Transport
	logger    *slog.Logger
}

func NewAdapter(agent *identity.Agent, transport Transport, logger *slog.Logger) (*Adapter, error) {
	if agent == nil {
		return nil, fmt.Errorf("agora: agent identity is required")
	}
	if transport == nil {
		return nil, fmt.Errorf("agora: transport is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{agent: agent, transport: transport, logger: logger}, nil
}

func (a *Adapter) Agent() *identity.Agent { return a.agent }

func (a *Adapter) Side() bridge.Side { return bridge.SideAgora }

// Dispatch validates the message targets this side, then sends its
// content, attaching the message's protocol identifier as a hint when
// one travels with it.
func (a *Adapter) Dispatch(ctx context.Context, msg bridge.Message) (payload.Value, error) {
	if msg.Target != bridge.SideAgora {
		return payload.Value{}, &bridge.ValidationError{
			Reason: fmt.Sprintf("message target %q dispatched to the agora side", msg.Target),
		}
	}

	protocolID := ""
	if msg.Protocol != nil {
		protocolID = msg.Protocol.ID
	}

	return a.transport.Send(ctx, protocolID, msg.Content)
}

// Negotiate establishes a new protocol with the remote agent. The result
// is not registered here; the orchestrator decides whether to persist
// it.
func (a *Adapter) Negotiate(ctx context.Context, description string) (protocol.Negotiated, error) {
	p, err := a.transport.Negotiate(ctx, description)
	if err != nil {
		return protocol.Negotiated{}, err
	}

	a.logger.Info("protocol negotiated",
		slog.String("protocol_id", p.ID),
		slog.String("version", p.Version),
	)
	return p, nil
}
