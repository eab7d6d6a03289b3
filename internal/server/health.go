package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/synapsebot/synapse/internal/brain"
	"github.com/synapsebot/synapse/pkg/graph/neo4j"
)

// checkTimeout bounds each individual readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness check. Check returns nil when the dependency
// is healthy.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Health serves the liveness and readiness probes. The checker list is fixed
// at construction; safe for concurrent use.
type Health struct {
	checkers []Checker
}

// NewHealth creates a probe handler evaluating the given checkers, in order,
// on each readiness request.
func NewHealth(checkers ...Checker) *Health {
	return &Health{checkers: append([]Checker(nil), checkers...)}
}

// BrainChecker reports ready once the live rule index holds at least one rule.
func BrainChecker(b *brain.Brain) Checker {
	return Checker{
		Name: "brain",
		Check: func(context.Context) error {
			if b.Index().Len() == 0 {
				return errors.New("no rules loaded")
			}
			return nil
		},
	}
}

// GraphChecker probes knowledge-graph connectivity.
func GraphChecker(c *neo4j.Client) Checker {
	return Checker{
		Name: "graph",
		Check: func(ctx context.Context) error {
			return c.Ping(ctx)
		},
	}
}

// probeResult is the JSON body of both probe endpoints.
type probeResult struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz always returns 200; a process able to serve HTTP is alive.
func (h *Health) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, probeResult{Status: "ok"})
}

// Readyz returns 200 only when every checker passes, with per-check results
// in the body.
func (h *Health) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	status := http.StatusOK
	res := probeResult{Status: "ok", Checks: checks}

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
		} else {
			checks[c.Name] = "ok"
		}
	}

	writeJSON(w, status, res)
}

// Register adds the probe routes to mux.
func (h *Health) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}
