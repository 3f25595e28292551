// Package protocol holds negotiated protocol descriptions and the
// durable registry mapping logical message types to them.
package protocol

import (
	"strings"

	"github.com/agora-at/agorat/pkg/payload"
)

// Stats carries optional usage statistics reported for a protocol.
type Stats struct {
	CompressionRatio  float64 `json:"compressionRatio"`
	AvgProcessingTime float64 `json:"avgProcessingTime"`
}

// Negotiated is the result of a negotiation exchange. The ID is assigned
// by the remote negotiating party; the schema is opaque to the bridge.
// Values are immutable once created; renegotiating a message type
// replaces the registry mapping, never this object.
type Negotiated struct {
	ID          string        `json:"id"`
	Version     string        `json:"version"`
	Description string        `json:"description"`
	Schema      payload.Value `json:"schema"`
	Stats       *Stats        `json:"stats,omitempty"`
}

// Equal compares all identifying fields plus the schema structurally.
func (n Negotiated) Equal(other Negotiated) bool {
	return n.ID == other.ID &&
		n.Version == other.Version &&
		n.Description == other.Description &&
		n.Schema.Equal(other.Schema)
}

// matchScore counts content words shared between a free-text query and
// the protocol description. Best-effort only; see Registry.Match.
func matchScore(query, description string) int {
	words := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(description)) {
		if len(w) > 3 {
			words[strings.Trim(w, ".,;:!?")] = true
		}
	}

	score := 0
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if words[strings.Trim(w, ".,;:!?")] {
			score++
		}
	}
	return score
}
