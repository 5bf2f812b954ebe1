package handlers

import (
	"net/http"

	"github.com/desenyon/infiniteidea-sub000/pkg/backendtypes"
)

type ProviderHandler struct {
	state StateReporter
}

func NewProviderHandler(state StateReporter) *ProviderHandler {
	return &ProviderHandler{state: state}
}

// ListProviders handles GET /api/providers with each provider's rate
// window and circuit state.
func (h *ProviderHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	SendSuccess(w, r, backendtypes.ProvidersResponse{
		Providers:  h.state.Snapshot(),
		QueueDepth: h.state.QueueLen(),
	})
}
