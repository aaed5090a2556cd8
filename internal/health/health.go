// Package health serves the liveness and readiness probes.
//
// GET /healthz answers 200 while the process can serve HTTP. GET /readyz runs
// every registered [Checker] concurrently and answers 503 when a required
// check fails. Advisory checks only downgrade the reported status to
// "degraded".
//
// Both endpoints return {"status": ..., "checks": {name: outcome}}.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Overall statuses reported in the response body.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
)

// Checker probes one dependency.
type Checker struct {
	// Name keys the check in the response, e.g. "profile_store".
	Name string

	// Check returns nil when healthy. It must honour ctx.
	Check func(ctx context.Context) error

	// Advisory checks report problems the agent can keep talking through.
	Advisory bool
}

// Pinger reports its own reachability. The profile store implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck checks p.Ping.
func PingCheck(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

// FreshnessCheck passes while fresh(maxAge) returns nil. The camera frame
// buffer is checked this way.
func FreshnessCheck(name string, maxAge time.Duration, fresh func(time.Duration) error) Checker {
	return Checker{Name: name, Check: func(context.Context) error { return fresh(maxAge) }}
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. The checker list is fixed at
// construction.
type Handler struct {
	checkers []Checker
}

// New returns a Handler over a copy of checkers.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Register mounts GET /healthz and GET /readyz on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: StatusOK})
}

// Readyz answers 200 unless a required check fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	errs := h.run(r.Context())

	res := result{Status: StatusOK, Checks: make(map[string]string, len(errs))}
	code := http.StatusOK
	for i, c := range h.checkers {
		err := errs[i]
		switch {
		case err == nil:
			res.Checks[c.Name] = StatusOK
		case c.Advisory:
			res.Checks[c.Name] = StatusDegraded + ": " + err.Error()
			if res.Status == StatusOK {
				res.Status = StatusDegraded
			}
		default:
			res.Checks[c.Name] = StatusFail + ": " + err.Error()
			res.Status = StatusFail
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, res)
}

// run executes every check concurrently and returns their errors by index.
// A failing check never cancels its siblings.
func (h *Handler) run(parent context.Context) []error {
	errs := make([]error, len(h.checkers))
	var g errgroup.Group
	for i, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(parent, checkTimeout)
			defer cancel()
			errs[i] = c.Check(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
