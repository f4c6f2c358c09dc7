// Package health serves liveness and readiness probes on the same listener
// as the metrics endpoint.
//
//   - /healthz — liveness; 200 as long as the process serves HTTP.
//   - /readyz  — readiness; 200 only while every registered probe passes.
//     The recorder registers a slot-store probe here, so readiness drops
//     when the recovery database stops accepting reads.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// probeTimeout bounds a single readiness probe.
const probeTimeout = 2 * time.Second

// Probe reports whether one dependency is usable. Probes must respect
// context cancellation.
type Probe func(ctx context.Context) error

// Registry holds named probes and serves the probe endpoints. Probes may be
// added at any time, including after the listener is up.
type Registry struct {
	mu     sync.Mutex
	probes map[string]Probe
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{probes: make(map[string]Probe)}
}

// Add registers p under name, replacing any previous probe with that name.
func (r *Registry) Add(name string, p Probe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes[name] = p
}

// Routes registers the probe endpoints on mux.
func (r *Registry) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", r.live)
	mux.HandleFunc("GET /readyz", r.ready)
}

// report is the JSON body of both endpoints.
type report struct {
	Status string            `json:"status"`
	Probes map[string]string `json:"probes,omitempty"`
}

func (r *Registry) live(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, report{Status: "ok"})
}

func (r *Registry) ready(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	probes := make(map[string]Probe, len(r.probes))
	for name, p := range r.probes {
		probes[name] = p
	}
	r.mu.Unlock()

	rep := report{Status: "ok", Probes: make(map[string]string, len(probes))}
	status := http.StatusOK

	for name, probe := range probes {
		ctx, cancel := context.WithTimeout(req.Context(), probeTimeout)
		err := probe(ctx)
		cancel()

		if err != nil {
			rep.Probes[name] = "fail: " + err.Error()
			rep.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		rep.Probes[name] = "ok"
	}

	respond(w, status, rep)
}

func respond(w http.ResponseWriter, status int, rep report) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(rep)
}
