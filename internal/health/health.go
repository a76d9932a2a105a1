// Package health exposes the bot's liveness and readiness probes.
//
// Liveness (/healthz) only asserts the process serves HTTP. Readiness
// (/readyz) probes the components the bot needs to speak: the synthesis
// backend and the Discord gateway session. A bot that is alive but cannot
// synthesise reports not-ready so an orchestrator keeps it out of rotation
// without restarting it.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// probeTimeout bounds a single component probe. A hung synthesis backend
// must not hold the readiness endpoint open indefinitely.
const probeTimeout = 3 * time.Second

// Probe checks one component, returning nil when it can serve.
type Probe func(ctx context.Context) error

// ComponentStatus is the probe outcome reported for one component.
type ComponentStatus struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// readiness is the /readyz response body.
type readiness struct {
	Ready      bool                       `json:"ready"`
	Components map[string]ComponentStatus `json:"components,omitempty"`
}

// liveness is the /healthz response body.
type liveness struct {
	Alive  bool   `json:"alive"`
	Uptime string `json:"uptime"`
}

type namedProbe struct {
	name  string
	probe Probe
}

// Handler serves the bot's health endpoints. Components are added before
// Register; the handler is safe for concurrent requests afterwards.
type Handler struct {
	started time.Time
	probes  []namedProbe
}

// NewHandler creates an empty health handler. Uptime counts from this call.
func NewHandler() *Handler {
	return &Handler{started: time.Now()}
}

// AddComponent registers a named readiness probe. Probes run sequentially in
// registration order on every /readyz request.
func (h *Handler) AddComponent(name string, p Probe) {
	h.probes = append(h.probes, namedProbe{name: name, probe: p})
}

// Liveness answers /healthz. It always reports alive: a process that can
// run this handler is alive by definition.
func (h *Handler) Liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, liveness{
		Alive:  true,
		Uptime: time.Since(h.started).Round(time.Second).String(),
	})
}

// Readiness answers /readyz: 200 when every component probe passes, 503
// otherwise, with the per-component outcomes in the body either way.
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	res := readiness{
		Ready:      true,
		Components: make(map[string]ComponentStatus, len(h.probes)),
	}

	for _, np := range h.probes {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := np.probe(ctx)
		cancel()

		if err != nil {
			res.Ready = false
			res.Components[np.name] = ComponentStatus{Error: err.Error()}
			continue
		}
		res.Components[np.name] = ComponentStatus{OK: true}
	}

	status := http.StatusOK
	if !res.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Liveness)
	mux.HandleFunc("GET /readyz", h.Readiness)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encode"}`, http.StatusInternalServerError)
	}
}
