package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/agora-at/agorat/pkg/store"
	"github.com/agora-at/agorat/pkg/telemetry"
)

// Registry maps logical message types to negotiated protocols and
// persists the mapping per owning agent. Registering under an existing
// message type silently replaces the mapping (last write wins):
// renegotiation is expected to supersede a prior schema.
//
// The in-memory map carries no lock. Concurrent registers for different
// message types are independent; concurrent writers to the same key race
// and the surviving mapping is whichever write lands last.
type Registry struct {
	agentID   string
	store     *store.Store
	logger    *slog.Logger
	protocols map[string]Negotiated

	// OnRegister, when set, is invoked after a mapping has been
	// persisted. The orchestrator uses it to publish the negotiation
	// event.
	OnRegister func(messageType string, p Negotiated)
}

// NewRegistry builds a registry for the agent identified by agentID
// (already normalized). A nil store keeps the mapping memory-only.
func NewRegistry(agentID string, st *store.Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		agentID:   agentID,
		store:     st,
		logger:    logger,
		protocols: make(map[string]Negotiated),
	}
}

// Load restores the persisted mapping. A record that fails to decode is
// skipped with a warning; the rest of the load continues.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	recs, err := r.store.ListProtocols(ctx, r.agentID)
	if err != nil {
		return fmt.Errorf("registry: loading protocols: %w", err)
	}

	for _, rec := range recs {
		var p Negotiated
		if err := json.Unmarshal(rec.Record, &p); err != nil {
			r.logger.Warn("registry: skipping corrupt protocol record",
				slog.String("message_type", rec.MessageType),
				slog.String("err", err.Error()),
			)
			continue
		}
		r.protocols[rec.MessageType] = p
	}

	telemetry.Metrics.RegisteredProtocols.Set(float64(len(r.protocols)))
	return nil
}

// Register maps messageType to p, persisting synchronously before
// returning. An existing mapping for the same type is replaced.
func (r *Registry) Register(ctx context.Context, messageType string, p Negotiated) error {
	if messageType == "" {
		return fmt.Errorf("registry: message type must not be empty")
	}

	if r.store != nil {
		record, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("registry: encoding protocol %q: %w", p.ID, err)
		}
		err = r.store.UpsertProtocol(ctx, &store.ProtocolRecord{
			AgentID:     r.agentID,
			MessageType: messageType,
			Record:      record,
		})
		if err != nil {
			return fmt.Errorf("registry: persisting protocol %q: %w", p.ID, err)
		}
	}

	r.protocols[messageType] = p
	telemetry.Metrics.RegisteredProtocols.Set(float64(len(r.protocols)))

	r.logger.Info("protocol registered",
		slog.String("message_type", messageType),
		slog.String("protocol_id", p.ID),
		slog.String("version", p.Version),
	)

	if r.OnRegister != nil {
		r.OnRegister(messageType, p)
	}
	return nil
}

// Unregister drops the mapping for messageType, in memory and in the
// store. Removing an absent mapping is a no-op.
func (r *Registry) Unregister(ctx context.Context, messageType string) error {
	if r.store != nil {
		if err := r.store.DeleteProtocol(ctx, r.agentID, messageType); err != nil {
			return fmt.Errorf("registry: deleting protocol mapping %q: %w", messageType, err)
		}
	}

	delete(r.protocols, messageType)
	telemetry.Metrics.RegisteredProtocols.Set(float64(len(r.protocols)))
	return nil
}

// Lookup returns the protocol mapped to messageType. Absence is a normal
// case; callers fall back to an unstructured exchange.
func (r *Registry) Lookup(messageType string) (Negotiated, bool) {
	p, ok := r.protocols[messageType]
	return p, ok
}

// All returns a copy of the current mapping.
func (r *Registry) All() map[string]Negotiated {
	out := make(map[string]Negotiated, len(r.protocols))
	for k, v := range r.protocols {
		out[k] = v
	}
	return out
}

// Match scans protocol descriptions for word overlap with the query and
// returns the best-scoring mapping. This is an explicit best-effort
// fallback for callers that have no message type at hand; it makes no
// precision promise and must never be load-bearing.
func (r *Registry) Match(query string) (string, Negotiated, bool) {
	bestType := ""
	bestScore := 0
	var best Negotiated

	for messageType, p := range r.protocols {
		if score := matchScore(query, p.Description); score > bestScore {
			bestType, bestScore, best = messageType, score, p
		}
	}

	return bestType, best, bestScore > 0
}
