// Package server exposes the dialogue engine over HTTP: the chat endpoint,
// liveness and readiness probes, and the Prometheus metrics scrape.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/synapsebot/synapse/internal/dialogue"
	"github.com/synapsebot/synapse/internal/observe"
	"github.com/synapsebot/synapse/internal/session"
	"github.com/synapsebot/synapse/internal/template"
)

// Server wires the HTTP surface. Construct with [New] and mount via
// [Server.Routes].
type Server struct {
	orchestrator *dialogue.Orchestrator
	health       *Health
	metrics      *observe.Metrics
	logger       *slog.Logger
}

// New creates a Server for the given orchestrator. A nil health handler
// disables the probe routes; a nil metrics falls back to
// [observe.DefaultMetrics].
func New(orchestrator *dialogue.Orchestrator, health *Health, metrics *observe.Metrics, logger *slog.Logger) *Server {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		orchestrator: orchestrator,
		health:       health,
		metrics:      metrics,
		logger:       logger,
	}
}

// Routes builds the handler tree with HTTP metrics instrumentation applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.health != nil {
		s.health.Register(mux)
	}
	return observe.Middleware(s.metrics)(mux)
}

// chatRequest is the body of POST /api/chat.
type chatRequest struct {
	SessionID string `json:"session_id"`
	Input     string `json:"input"`
}

// chatResponse is the success body of POST /api/chat.
type chatResponse struct {
	Text      string   `json:"text"`
	SessionID string   `json:"session_id"`
	TurnID    string   `json:"turn_id"`
	Source    string   `json:"source"`
	RuleID    string   `json:"rule_id,omitempty"`
	Intents   []string `json:"intents,omitempty"`
	Sentiment float64  `json:"sentiment"`
	Label     string   `json:"sentiment_label"`
	Trend     float64  `json:"sentiment_trend"`
	Degraded  []string `json:"degraded,omitempty"`
}

// errorResponse is the body of every non-2xx chat reply.
type errorResponse struct {
	Error string `json:"error"`
}

// maxChatBody bounds the request body; conversational inputs are short.
const maxChatBody = 64 << 10

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	req.SessionID = strings.TrimSpace(req.SessionID)
	req.Input = strings.TrimSpace(req.Input)
	if req.SessionID == "" || req.Input == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "session_id and input are required"})
		return
	}

	reply, err := s.orchestrator.Respond(r.Context(), req.SessionID, req.Input)
	if err != nil {
		if errors.Is(err, session.ErrSessionBusy) {
			// A turn is already running for this session. The input is not
			// dropped server-side; the client owns the retry.
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusConflict, errorResponse{Error: "a turn is already in flight for this session, retry shortly"})
			return
		}
		s.logger.Error("chat turn failed", "session_id", req.SessionID, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Text:      reply.Text,
		SessionID: reply.SessionID,
		TurnID:    reply.TurnID,
		Source:    reply.Source,
		RuleID:    reply.RuleID,
		Intents:   reply.Intents,
		Sentiment: reply.Sentiment.Polarity,
		Label:     string(reply.Sentiment.Label),
		Trend:     reply.Trend,
		Degraded:  degradedKinds(reply.Diagnostics),
	})
}

func degradedKinds(d template.Diagnostics) []string {
	var kinds []string
	if d.GraphDegraded {
		kinds = append(kinds, "graph")
	}
	if d.RecursionClipped {
		kinds = append(kinds, "recursion")
	}
	if d.UnsetVariable {
		kinds = append(kinds, "variable")
	}
	return kinds
}

// writeJSON encodes v with the given status. On encoding failure it falls
// back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failure"}`, http.StatusInternalServerError)
	}
}
