// Package agora talks to a remote Agora-compatible agent: unstructured
// or protocol-hinted message exchange plus protocol negotiation.
package agora

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agora-at/agorat/pkg/bridge"
	"github.com/agora-at/agorat/pkg/payload"
	"github.com/agora-at/agorat/pkg/protocol"
	"github.com/agora-at/agorat/pkg/telemetry"
)

// Transport is the remote exchange surface, split out so adapters can be
// exercised against counting stubs.
type Transport interface {
	Send(ctx context.Context, protocolID string, body payload.Value) (payload.Value, error)
	Negotiate(ctx context.Context, description string) (protocol.Negotiated, error)
}

// Client is the HTTP transport to an Agora agent endpoint. It performs
// no retries; that is a caller concern.
type Client struct {
	endpoint string
	http     *http.Client
}

func NewClient(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     httpClient,
	}
}

type sendRequest struct {
	ProtocolHash *string       `json:"protocolHash"`
	Body         payload.Value `json:"body"`
}

type sendResponse struct {
	Status string        `json:"status"`
	Body   payload.Value `json:"body"`
	Error  string        `json:"error"`
}

// Send posts the body to the agent's message endpoint, carrying the
// protocol identifier as a routing hint when one is supplied. The remote
// party is trusted to honor or reject the hint.
func (c *Client) Send(ctx context.Context, protocolID string, body payload.Value) (payload.Value, error) {
	req := sendRequest{Body: body}
	if protocolID != "" {
		req.ProtocolHash = &protocolID
	}

	var resp sendResponse
	if err := c.post(ctx, "/message", req, &resp); err != nil {
		return payload.Value{}, err
	}

	if resp.Status != "success" {
		return payload.Value{}, &bridge.TransportError{
			Side:   bridge.SideAgora,
			Op:     "message",
			Remote: resp.Error,
		}
	}
	return resp.Body, nil
}

type negotiateRequest struct {
	Description string `json:"description"`
}

type negotiateResponse struct {
	ID      string        `json:"id"`
	Version string        `json:"version"`
	Schema  payload.Value `json:"schema"`
}

// Negotiate sends a natural-language description to the agent's
// negotiation endpoint and builds a protocol from the response. The
// description is kept on the protocol for display and best-effort
// matching later.
func (c *Client) Negotiate(ctx context.Context, description string) (protocol.Negotiated, error) {
	var resp negotiateResponse
	if err := c.post(ctx, "/negotiate", negotiateRequest{Description: description}, &resp); err != nil {
		return protocol.Negotiated{}, &bridge.NegotiationError{Reason: "negotiation call failed", Err: err}
	}

	if resp.ID == "" {
		return protocol.Negotiated{}, &bridge.NegotiationError{Reason: "remote response carries no protocol id"}
	}

	version := resp.Version
	if version == "" {
		version = "1.0"
	}

	return protocol.Negotiated{
		ID:          resp.ID,
		Version:     version,
		Description: description,
		Schema:      resp.Schema,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	op := strings.TrimPrefix(path, "/")
	start := time.Now()

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("agora: encoding %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("agora: creating %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		telemetry.Metrics.TransportCalls.WithLabelValues("agora", op, "error").Inc()
		return &bridge.TransportError{Side: bridge.SideAgora, Op: op, Err: err}
	}
	defer resp.Body.Close()

	telemetry.Metrics.TransportDuration.WithLabelValues("agora", op).Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		telemetry.Metrics.TransportCalls.WithLabelValues("agora", op, "error").Inc()
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &bridge.TransportError{
			Side:   bridge.SideAgora,
			Op:     op,
			Status: resp.StatusCode,
			Remote: strings.TrimSpace(string(text)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		telemetry.Metrics.TransportCalls.WithLabelValues("agora", op, "error").Inc()
		return &bridge.TransportError{Side: bridge.SideAgora, Op: op, Err: fmt.Errorf("decoding response: %w", err)}
	}

	telemetry.Metrics.TransportCalls.WithLabelValues("agora", op, "ok").Inc()
	return nil
}
