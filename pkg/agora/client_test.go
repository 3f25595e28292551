package agora

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agora-at/agorat/pkg/bridge"
	"github.com/agora-at/agorat/pkg/payload"
)

func TestClientSendEchoes(t *testing.T) {
	var gotHash *string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/message" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req struct {
			ProtocolHash *string         `json:"protocolHash"`
			Body         json.RawMessage `json:"body"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotHash = req.ProtocolHash

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","body":{"echo":` + string(req.Body) + `}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)

	input := payload.Map(map[string]payload.Value{"x": payload.Int(1)})
	result, err := c.Send(context.Background(), "", input)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotHash != nil {
		t.Errorf("protocolHash = %v, want null without a protocol", *gotHash)
	}

	echo, ok := result.Get("echo")
	if !ok || !echo.Equal(input) {
		t.Errorf("result = %s, want echo of input", result)
	}
}

func TestClientSendCarriesProtocolHint(t *testing.T) {
	var gotHash *string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ProtocolHash *string `json:"protocolHash"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotHash = req.ProtocolHash
		w.Write([]byte(`{"status":"success","body":{}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	if _, err := c.Send(context.Background(), "p1", payload.Null()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotHash == nil || *gotHash != "p1" {
		t.Errorf("protocolHash = %v, want p1", gotHash)
	}
}

func TestClientSendRemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","error":"schema mismatch"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.Send(context.Background(), "", payload.Null())

	var terr *bridge.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	if terr.Remote != "schema mismatch" {
		t.Errorf("Remote = %q, want remote-provided text", terr.Remote)
	}
}

func TestClientSendHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent overloaded", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.Send(context.Background(), "", payload.Null())

	var terr *bridge.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	if terr.Status != http.StatusBadGateway {
		t.Errorf("Status = %d, want 502", terr.Status)
	}
	if terr.Remote != "agent overloaded" {
		t.Errorf("Remote = %q", terr.Remote)
	}
}

func TestClientNegotiate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/negotiate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"id":"p1","schema":{}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	p, err := c.Negotiate(context.Background(), "D")
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}

	if p.ID != "p1" {
		t.Errorf("ID = %q, want p1", p.ID)
	}
	if p.Version != "1.0" {
		t.Errorf("Version = %q, want default 1.0", p.Version)
	}
	if p.Description != "D" {
		t.Errorf("Description = %q, want request description", p.Description)
	}
}

func TestClientNegotiateMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"schema":{}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.Negotiate(context.Background(), "D")

	var nerr *bridge.NegotiationError
	if !errors.As(err, &nerr) {
		t.Fatalf("err = %v, want NegotiationError", err)
	}
}

func TestClientNegotiateTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "negotiation refused", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.Negotiate(context.Background(), "D")

	var nerr *bridge.NegotiationError
	if !errors.As(err, &nerr) {
		t.Fatalf("err = %v, want NegotiationError", err)
	}
	var terr *bridge.TransportError
	if !errors.As(err, &terr) {
		t.Errorf("NegotiationError should wrap the transport failure, got %v", err)
	}
}
