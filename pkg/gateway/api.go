package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/agora-at/agorat/pkg/bridge"
	"github.com/agora-at/agorat/pkg/payload"
	"github.com/agora-at/agorat/pkg/telemetry"
)

type sendRequest struct {
	Direction   string        `json:"direction"`
	Content     payload.Value `json:"content"`
	MessageType string        `json:"messageType,omitempty"`
}

type negotiateRequest struct {
	Description string `json:"description"`
	MessageType string `json:"messageType,omitempty"`
}

type postRequest struct {
	Text string `json:"text"`
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		return fmt.Errorf("decoding request body: %w", err)
	}
	return nil
}

func (g *Gateway) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	dir, err := bridge.ParseDirection(req.Direction)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := g.bridge.Send(r.Context(), dir, req.Content, req.MessageType)
	if err != nil {
		g.writeBridgeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func (g *Gateway) handleNegotiate(w http.ResponseWriter, r *http.Request) {
	var req negotiateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Description == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}

	negotiated, err := g.bridge.Negotiate(r.Context(), req.Description, req.MessageType)
	if err != nil {
		g.writeBridgeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, negotiated)
}

func (g *Gateway) handlePost(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	result, err := g.bridge.PostAndNotify(r.Context(), req.Text)
	if err != nil {
		g.writeBridgeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func (g *Gateway) handleFeed(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	result, err := g.bridge.AnalyzeFeed(r.Context(), limit, r.URL.Query().Get("messageType"))
	if err != nil {
		g.writeBridgeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func (g *Gateway) handleProtocols(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"protocols": g.bridge.Registry().All()})
}

func (g *Gateway) handleUnregister(w http.ResponseWriter, r *http.Request) {
	messageType := chi.URLParam(r, "messageType")
	if err := g.bridge.Registry().Unregister(r.Context(), messageType); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// writeBridgeError maps the bridge error taxonomy onto HTTP statuses.
func (g *Gateway) writeBridgeError(w http.ResponseWriter, err error) {
	var (
		verr *bridge.ValidationError
		cerr *bridge.CapabilityError
		terr *bridge.TransportError
		nerr *bridge.NegotiationError
	)

	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.As(err, &cerr):
		writeError(w, http.StatusForbidden, cerr.Error())
	case errors.Is(err, bridge.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &terr), errors.As(err, &nerr):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		telemetry.Metrics.ErrorsTotal.WithLabelValues("gateway").Inc()
		g.logger.Error("unhandled bridge error", slog.String("err", err.Error()))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
