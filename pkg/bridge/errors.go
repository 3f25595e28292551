package bridge

import (
	"errors"
	"fmt"

	"github.com/agora-at/agorat/pkg/identity"
)

// ErrNotAuthenticated is returned by session-gated operations invoked
// before a login has established a session.
var ErrNotAuthenticated = errors.New("not authenticated")

// ValidationError reports a malformed bridge message. It is raised
// locally, before any network call.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid bridge message: " + e.Reason
}

// CapabilityError reports a capability check failure. Like validation
// errors it is raised before any network call.
type CapabilityError struct {
	DID        string
	Capability identity.Capability
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("agent %s lacks capability %s", e.DID, e.Capability)
}

// TransportError reports a failed remote exchange: a network failure or
// a non-success status from the remote party. Remote carries the
// remote-provided error text when one was returned.
type TransportError struct {
	Side   Side
	Op     string
	Status int
	Remote string
	Err    error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s transport: %s failed", e.Side, e.Op)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Remote != "" {
		msg += ": " + e.Remote
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// NegotiationError reports a negotiation call that failed or returned an
// unusable schema.
type NegotiationError struct {
	Reason string
	Err    error
}

func (e *NegotiationError) Error() string {
	if e.Err != nil {
		return "negotiation failed: " + e.Reason + ": " + e.Err.Error()
	}
	return "negotiation failed: " + e.Reason
}

func (e *NegotiationError) Unwrap() error { return e.Err }
