// Package health answers /healthz and /readyz on the ops listener.
//
// /healthz reports that the assistant process is up. /readyz pings the
// assistant's dependencies (the reminder store, the speech recognizer)
// and answers 503 while any of them is unreachable.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const pingTimeout = 3 * time.Second

// Dependency is something the assistant needs to do useful work.
type Dependency struct {
	Name string
	Ping func(ctx context.Context) error
}

type liveness struct {
	Alive         bool  `json:"alive"`
	UptimeSeconds int64 `json:"uptime_seconds"`
}

type dependencyState struct {
	Name      string `json:"name"`
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

type readiness struct {
	Ready        bool              `json:"ready"`
	Dependencies []dependencyState `json:"dependencies"`
}

// Monitor is safe for concurrent use; dependencies are fixed at construction.
type Monitor struct {
	deps    []Dependency
	started time.Time
	now     func() time.Time
}

func New(deps ...Dependency) *Monitor {
	return &Monitor{
		deps:    append([]Dependency(nil), deps...),
		started: time.Now(),
		now:     time.Now,
	}
}

func (m *Monitor) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, liveness{
		Alive:         true,
		UptimeSeconds: int64(m.now().Sub(m.started) / time.Second),
	})
}

// Readyz pings every dependency at once and lists them in registration order.
func (m *Monitor) Readyz(w http.ResponseWriter, r *http.Request) {
	states := make([]dependencyState, len(m.deps))
	var g errgroup.Group
	for i, dep := range m.deps {
		g.Go(func() error {
			states[i] = m.ping(r.Context(), dep)
			return nil
		})
	}
	_ = g.Wait()

	report := readiness{Ready: true, Dependencies: states}
	for _, s := range states {
		if !s.Reachable {
			report.Ready = false
		}
	}
	status := http.StatusOK
	if !report.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (m *Monitor) ping(ctx context.Context, dep Dependency) dependencyState {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	start := m.now()
	err := dep.Ping(ctx)
	state := dependencyState{
		Name:      dep.Name,
		Reachable: err == nil,
		LatencyMS: m.now().Sub(start).Milliseconds(),
	}
	if err != nil {
		state.Error = err.Error()
	}
	return state
}

func (m *Monitor) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", m.Healthz)
	mux.HandleFunc("GET /readyz", m.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
