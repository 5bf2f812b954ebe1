package handlers

import (
	"net/http"
	"time"

	"github.com/desenyon/infiniteidea-sub000/pkg/backendtypes"
	"github.com/desenyon/infiniteidea-sub000/pkg/resilience"
)

// StateReporter exposes the dispatcher's resilience state.
// *dispatch.Dispatcher satisfies it.
type StateReporter interface {
	Snapshot() []resilience.ProviderState
	QueueLen() int
}

type HealthHandler struct {
	state     StateReporter
	version   string
	startTime time.Time
}

func NewHealthHandler(state StateReporter, version string) *HealthHandler {
	return &HealthHandler{
		state:     state,
		version:   version,
		startTime: time.Now(),
	}
}

// Status returns simple liveness status
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	SendSuccess(w, r, map[string]string{"status": "ok"})
}

// Health reports every provider's breaker. The service is degraded while
// any circuit is open and unhealthy when all of them are.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	states := h.state.Snapshot()
	providers := make(map[string]backendtypes.ProviderHealth, len(states))
	open := 0
	for _, s := range states {
		health := backendtypes.ProviderHealth{Status: "ok", ConsecutiveFailures: s.ConsecutiveFailures}
		if s.IsOpen {
			open++
			health.Status = "circuit_open"
			health.Message = "requests are routed to fallback providers"
		}
		providers[s.Provider] = health
	}

	status := "healthy"
	switch {
	case len(states) > 0 && open == len(states):
		status = "unhealthy"
	case open > 0:
		status = "degraded"
	}

	SendSuccess(w, r, backendtypes.HealthResponse{
		Status:    status,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Providers: providers,
	})
}

// Version returns version information
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	SendSuccess(w, r, map[string]string{
		"version": h.version,
	})
}
