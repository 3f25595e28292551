// Package atproto talks to an AT Protocol service over XRPC: session
// management, record creation, timeline, profile and search.
package atproto

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/agora-at/agorat/pkg/bridge"
	"github.com/agora-at/agorat/pkg/payload"
	"github.com/agora-at/agorat/pkg/telemetry"
)

// Session is an authenticated token pair bound to a DID.
type Session struct {
	DID        string `json:"did"`
	AccessJWT  string `json:"accessJwt"`
	RefreshJWT string `json:"refreshJwt"`
}

// Transport is the remote XRPC surface, split out so the adapter can be
// tested against counting stubs.
type Transport interface {
	CreateSession(ctx context.Context, identifier, secret string) (Session, error)
	RefreshSession(ctx context.Context, refreshJWT string) (Session, error)
	CreateRecord(ctx context.Context, accessJWT, repo, collection string, record payload.Value) (payload.Value, error)
	GetTimeline(ctx context.Context, accessJWT, algorithm string, limit int) (payload.Value, error)
	GetProfile(ctx context.Context, accessJWT, actor string) (payload.Value, error)
	SearchPosts(ctx context.Context, accessJWT, query string, limit int) (payload.Value, error)
}

// Client is the HTTP transport to an AT Protocol service. No retries;
// callers own their retry policy.
type Client struct {
	service string
	http    *http.Client
}

func NewClient(service string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		service: strings.TrimRight(service, "/"),
		http:    httpClient,
	}
}

func (c *Client) CreateSession(ctx context.Context, identifier, secret string) (Session, error) {
	var sess Session
	err := c.call(ctx, http.MethodPost, "com.atproto.server.createSession", "", nil, map[string]string{
		"identifier": identifier,
		"password":   secret,
	}, &sess)
	return sess, err
}

// RefreshSession exchanges a refresh token for a fresh pair. The refresh
// token authenticates the call itself.
func (c *Client) RefreshSession(ctx context.Context, refreshJWT string) (Session, error) {
	var sess Session
	err := c.call(ctx, http.MethodPost, "com.atproto.server.refreshSession", refreshJWT, nil, nil, &sess)
	return sess, err
}

func (c *Client) CreateRecord(ctx context.Context, accessJWT, repo, collection string, record payload.Value) (payload.Value, error) {
	var out payload.Value
	err := c.call(ctx, http.MethodPost, "com.atproto.repo.createRecord", accessJWT, nil, map[string]any{
		"repo":       repo,
		"collection": collection,
		"record":     record,
	}, &out)
	return out, err
}

func (c *Client) GetTimeline(ctx context.Context, accessJWT, algorithm string, limit int) (payload.Value, error) {
	params := url.Values{}
	if algorithm != "" {
		params.Set("algorithm", algorithm)
	}
	params.Set("limit", strconv.Itoa(limit))

	var out payload.Value
	err := c.call(ctx, http.MethodGet, "app.bsky.feed.getTimeline", accessJWT, params, nil, &out)
	return out, err
}

func (c *Client) GetProfile(ctx context.Context, accessJWT, actor string) (payload.Value, error) {
	params := url.Values{}
	params.Set("actor", actor)

	var out payload.Value
	err := c.call(ctx, http.MethodGet, "app.bsky.actor.getProfile", accessJWT, params, nil, &out)
	return out, err
}

func (c *Client) SearchPosts(ctx context.Context, accessJWT, query string, limit int) (payload.Value, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))

	var out payload.Value
	err := c.call(ctx, http.MethodGet, "app.bsky.feed.searchPosts", accessJWT, params, nil, &out)
	return out, err
}

func (c *Client) call(ctx context.Context, method, nsid, token string, params url.Values, body, out any) error {
	start := time.Now()

	endpoint := c.service + "/xrpc/" + nsid
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("atproto: encoding %s request: %w", nsid, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("atproto: creating %s request: %w", nsid, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		telemetry.Metrics.TransportCalls.WithLabelValues("atproto", nsid, "error").Inc()
		return &bridge.TransportError{Side: bridge.SideATProto, Op: nsid, Err: err}
	}
	defer resp.Body.Close()

	telemetry.Metrics.TransportDuration.WithLabelValues("atproto", nsid).Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		telemetry.Metrics.TransportCalls.WithLabelValues("atproto", nsid, "error").Inc()
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &bridge.TransportError{
			Side:   bridge.SideATProto,
			Op:     nsid,
			Status: resp.StatusCode,
			Remote: strings.TrimSpace(string(text)),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			telemetry.Metrics.TransportCalls.WithLabelValues("atproto", nsid, "error").Inc()
			return &bridge.TransportError{Side: bridge.SideATProto, Op: nsid, Err: fmt.Errorf("decoding response: %w", err)}
		}
	}

	telemetry.Metrics.TransportCalls.WithLabelValues("atproto", nsid, "ok").Inc()
	return nil
}
