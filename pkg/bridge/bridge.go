package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/agora-at/agorat/pkg/payload"
	"github.com/agora-at/agorat/pkg/protocol"
	"github.com/agora-at/agorat/pkg/telemetry"
)

// SideAdapter performs the network exchange for one side of the bridge.
// Dispatch must reject messages whose target names the other side.
type SideAdapter interface {
	Side() Side
	Dispatch(ctx context.Context, msg Message) (payload.Value, error)
}

// Negotiator establishes new protocols with the remote Agora party.
type Negotiator interface {
	Negotiate(ctx context.Context, description string) (protocol.Negotiated, error)
}

// Bridge is the single entry point for sending messages across the two
// ecosystems and for negotiating protocols. It owns both side adapters,
// the protocol registry and the event bus. It never retries and never
// swallows an adapter failure.
type Bridge struct {
	agora      SideAdapter
	atproto    SideAdapter
	negotiator Negotiator
	registry   *protocol.Registry
	events     *EventBus
	logger     *slog.Logger
}

type Config struct {
	Agora      SideAdapter
	ATProto    SideAdapter
	Negotiator Negotiator
	Registry   *protocol.Registry
	Logger     *slog.Logger
}

func New(cfg Config) (*Bridge, error) {
	if cfg.Agora == nil || cfg.ATProto == nil {
		return nil, fmt.Errorf("bridge: both side adapters are required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("bridge: registry is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	b := &Bridge{
		agora:      cfg.Agora,
		atproto:    cfg.ATProto,
		negotiator: cfg.Negotiator,
		registry:   cfg.Registry,
		events:     NewEventBus(cfg.Logger),
		logger:     cfg.Logger,
	}

	cfg.Registry.OnRegister = func(messageType string, p protocol.Negotiated) {
		proto := p
		b.events.Publish(Event{
			Kind:        EventProtocolNegotiated,
			MessageType: messageType,
			Protocol:    &proto,
		})
	}

	return b, nil
}

// On subscribes a handler to an event kind. Handlers registered for the
// same kind run in registration order.
func (b *Bridge) On(kind EventKind, h Handler) {
	b.events.Subscribe(kind, h)
}

// Registry exposes the protocol registry for read surfaces.
func (b *Bridge) Registry() *protocol.Registry {
	return b.registry
}

// Send routes content to the side named by dir. When messageType is
// non-empty and a negotiated protocol is registered for it, the protocol
// travels with the message as a routing hint; an absent mapping falls
// back to an unstructured exchange. The message event fires before
// dispatch; on adapter failure the error event fires and the error is
// returned unchanged.
func (b *Bridge) Send(ctx context.Context, dir Direction, content payload.Value, messageType string) (payload.Value, error) {
	ctx, span := telemetry.StartSpan(ctx, "bridge.Send")
	defer span.End()

	start := time.Now()

	var proto *protocol.Negotiated
	if messageType != "" {
		if p, ok := b.registry.Lookup(messageType); ok {
			proto = &p
		}
	}

	meta := map[string]string{
		"message_id": uuid.NewString(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	if messageType != "" {
		meta["message_type"] = messageType
	}

	msg, err := NewMessage(dir.Source(), dir.Target(), content, proto, meta)
	if err != nil {
		telemetry.Metrics.BridgeSends.WithLabelValues(string(dir), "invalid").Inc()
		return payload.Value{}, err
	}

	b.events.Publish(Event{
		Kind:        EventMessage,
		Direction:   dir,
		MessageType: messageType,
		Content:     content,
		Protocol:    proto,
	})

	b.logger.Debug("dispatching bridge message",
		slog.String("direction", string(dir)),
		slog.String("message_type", messageType),
		slog.Bool("protocol_attached", proto != nil),
	)

	result, err := b.adapterFor(dir.Target()).Dispatch(ctx, msg)
	if err != nil {
		telemetry.Metrics.BridgeSends.WithLabelValues(string(dir), "error").Inc()
		b.events.Publish(Event{
			Kind:        EventError,
			Direction:   dir,
			MessageType: messageType,
			Err:         err.Error(),
		})
		return payload.Value{}, err
	}

	telemetry.Metrics.BridgeSends.WithLabelValues(string(dir), "ok").Inc()
	telemetry.Metrics.SendDuration.WithLabelValues(string(dir)).Observe(time.Since(start).Seconds())
	return result, nil
}

// Negotiate establishes a new protocol through the Agora side. When
// messageType is non-empty the result is registered, firing the
// negotiation event; with an empty messageType the caller receives the
// protocol without any persistence.
func (b *Bridge) Negotiate(ctx context.Context, description, messageType string) (protocol.Negotiated, error) {
	if b.negotiator == nil {
		return protocol.Negotiated{}, fmt.Errorf("bridge: no negotiator configured")
	}

	ctx, span := telemetry.StartSpan(ctx, "bridge.Negotiate")
	defer span.End()

	p, err := b.negotiator.Negotiate(ctx, description)
	if err != nil {
		telemetry.Metrics.Negotiations.WithLabelValues("error").Inc()
		b.events.Publish(Event{
			Kind: EventError,
			Err:  err.Error(),
		})
		return protocol.Negotiated{}, err
	}
	telemetry.Metrics.Negotiations.WithLabelValues("ok").Inc()

	if messageType != "" {
		if err := b.registry.Register(ctx, messageType, p); err != nil {
			return protocol.Negotiated{}, err
		}
	}

	return p, nil
}

// PostAndNotify sends a post to the AT side and fires the post event on
// success. A thin composition of Send; no extra invariants.
func (b *Bridge) PostAndNotify(ctx context.Context, text string) (payload.Value, error) {
	content := payload.Map(map[string]payload.Value{
		"type": payload.String("post"),
		"text": payload.String(text),
	})

	result, err := b.Send(ctx, ToATProto, content, "")
	if err != nil {
		return payload.Value{}, err
	}

	b.events.Publish(Event{
		Kind:    EventPost,
		Content: result,
	})
	return result, nil
}

// AnalyzeFeed fetches the AT-side timeline and hands the items to the
// Agora side for analysis, using messageType's protocol when registered.
func (b *Bridge) AnalyzeFeed(ctx context.Context, limit int, messageType string) (payload.Value, error) {
	feedReq := payload.Map(map[string]payload.Value{
		"type":  payload.String("get_feed"),
		"limit": payload.Int(limit),
	})

	feed, err := b.Send(ctx, ToATProto, feedReq, "")
	if err != nil {
		return payload.Value{}, err
	}

	analysis := payload.Map(map[string]payload.Value{
		"task": payload.String("analyze_feed"),
		"feed": feed,
	})
	return b.Send(ctx, ToAgora, analysis, messageType)
}

func (b *Bridge) adapterFor(target Side) SideAdapter {
	if target == SideAgora {
		return b.agora
	}
	return b.atproto
}
