// Package identity defines agent identities and the closed capability
// set used to gate side-effecting operations.
package identity

import (
	"fmt"
	"strings"
	"time"
)

// Capability is a named permission an agent may hold. The set is closed;
// adding a value here is a breaking schema change.
type Capability string

const (
	CapReadPublic      Capability = "read:public"
	CapWritePosts      Capability = "write:posts"
	CapGenerateFeeds   Capability = "generate:feeds"
	CapModerateContent Capability = "moderate:content"
	CapInteractUsers   Capability = "interact:users"
)

// All returns the closed capability set in declaration order.
func All() []Capability {
	return []Capability{
		CapReadPublic,
		CapWritePosts,
		CapGenerateFeeds,
		CapModerateContent,
		CapInteractUsers,
	}
}

func Parse(s string) (Capability, error) {
	c := Capability(strings.TrimSpace(s))
	for _, known := range All() {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("identity: unknown capability %q", s)
}

// Agent is an identity participating in the bridge. Agents are immutable
// after construction; capabilities are fixed at creation and never
// inferred from network responses.
type Agent struct {
	did          string
	handle       string
	capabilities []Capability
	endpoint     string
	description  string
	creator      string
}

// Spec carries the constructor inputs for an Agent, typically decoded
// from an identity record in the config file.
type Spec struct {
	DID          string
	Handle       string
	Capabilities []Capability
	Endpoint     string
	Description  string
	Creator      string
}

// NewAgent validates the spec and builds an immutable Agent. Duplicate
// capabilities collapse; the first occurrence keeps its position.
func NewAgent(spec Spec) (*Agent, error) {
	if spec.DID == "" {
		return nil, fmt.Errorf("identity: agent DID must not be empty")
	}

	seen := make(map[Capability]bool, len(spec.Capabilities))
	caps := make([]Capability, 0, len(spec.Capabilities))
	for _, c := range spec.Capabilities {
		if _, err := Parse(string(c)); err != nil {
			return nil, err
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		caps = append(caps, c)
	}

	return &Agent{
		did:          spec.DID,
		handle:       spec.Handle,
		capabilities: caps,
		endpoint:     spec.Endpoint,
		description:  spec.Description,
		creator:      spec.Creator,
	}, nil
}

func (a *Agent) DID() string         { return a.did }
func (a *Agent) Handle() string      { return a.handle }
func (a *Agent) Endpoint() string    { return a.endpoint }
func (a *Agent) Description() string { return a.description }
func (a *Agent) Creator() string     { return a.creator }

// Has reports whether the agent holds the capability. Pure and total.
func (a *Agent) Has(c Capability) bool {
	for _, held := range a.capabilities {
		if held == c {
			return true
		}
	}
	return false
}

// Capabilities returns a copy of the agent's capability list.
func (a *Agent) Capabilities() []Capability {
	out := make([]Capability, len(a.capabilities))
	copy(out, a.capabilities)
	return out
}

// NormalizeDID maps a DID to the key form used for persisted per-agent
// records: lowercased, with separators flattened.
func NormalizeDID(did string) string {
	s := strings.ToLower(did)
	s = strings.ReplaceAll(s, ":", "_")
	s = strings.ReplaceAll(s, "/", "_")
	return s
}

// Permission records a capability grant from a user to an agent.
type Permission struct {
	UserDID     string            `json:"userDid"`
	AgentDID    string            `json:"agentDid"`
	Capability  Capability        `json:"capability"`
	GrantedAt   time.Time         `json:"grantedAt"`
	ExpiresAt   *time.Time        `json:"expiresAt,omitempty"`
	Limitations map[string]string `json:"limitations,omitempty"`
}

// FeedGeneratorConfig describes an agent-powered feed.
type FeedGeneratorConfig struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	AgentDID    string            `json:"agentDid"`
	Algorithm   string            `json:"algorithm"`
	Parameters  map[string]string `json:"parameters,omitempty"`
}
