// Package health provides the monitoring HTTP surface.
//
// Three endpoints:
//
//   - /healthz: liveness probe; always returns 200 OK.
//   - /readyz: readiness probe; returns 200 only when all registered
//     [Checker] functions pass.
//   - /status: operational snapshot: live sessions, routable agents and
//     the recent connection-event history.
//
// Probe responses are JSON objects with a top-level "status" field ("ok"
// or "fail") and a "checks" map containing the result of each named
// checker.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/voicebridge/byova/internal/gateway"
)

// checkTimeout is the maximum time a single readiness check may take before
// the context is cancelled.
const checkTimeout = 5 * time.Second

// Checker is a named health check function. The Check function should return
// nil when the dependency is healthy and a non-nil error describing the
// failure otherwise.
type Checker struct {
	// Name is a short, human-readable label for this check (e.g.
	// "connectors"). It appears as a key in the JSON response.
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// StatusSource feeds the /status snapshot. Implemented by the session
// router.
type StatusSource interface {
	Snapshot() []gateway.SessionInfo
	Events() []gateway.ConnectionEvent
	Agents() []string
}

// result is the JSON response body for the probe endpoints.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// statusBody is the JSON response body for /status.
type statusBody struct {
	ActiveSessions int                       `json:"active_sessions"`
	Sessions       []gateway.SessionInfo     `json:"sessions"`
	Agents         []string                  `json:"agents"`
	RecentEvents   []gateway.ConnectionEvent `json:"recent_events"`
}

// Handler serves the monitoring endpoints. It is safe for concurrent use;
// the checker list is fixed at construction time.
type Handler struct {
	checkers []Checker
	source   StatusSource
}

// New creates a [Handler] that evaluates the given checkers on each /readyz
// request and snapshots source on each /status request. source may be nil,
// in which case /status reports an empty snapshot.
func New(source StatusSource, checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c, source: source}
}

// Healthz is a liveness probe that always returns 200 OK. A running process
// that can serve HTTP is considered alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz is a readiness probe that returns 200 only when every registered
// [Checker] passes. Each checker is given a context with a [checkTimeout]
// deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	allOK := true

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := result{
		Status: "ok",
		Checks: checks,
	}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, res)
}

// Status reports the live-session table, routable agents and recent
// connection events.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	body := statusBody{
		Sessions:     []gateway.SessionInfo{},
		Agents:       []string{},
		RecentEvents: []gateway.ConnectionEvent{},
	}
	if h.source != nil {
		body.Sessions = h.source.Snapshot()
		body.Agents = h.source.Agents()
		body.RecentEvents = h.source.Events()
		body.ActiveSessions = len(body.Sessions)
	}
	writeJSON(w, http.StatusOK, body)
}

// Register adds the monitoring routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	mux.HandleFunc("GET /status", h.Status)
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
