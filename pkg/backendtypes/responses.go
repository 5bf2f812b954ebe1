package backendtypes

import (
	"time"

	"github.com/desenyon/infiniteidea-sub000/pkg/resilience"
	"github.com/desenyon/infiniteidea-sub000/pkg/types"
)

// APIResponse is the standard response wrapper
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type APIError struct {
	Code       string          `json:"code"`
	Message    string          `json:"message"`
	Type       types.ErrorType `json:"type,omitempty"`
	Provider   string          `json:"provider,omitempty"`
	Step       string          `json:"step,omitempty"`
	Retryable  bool            `json:"retryable,omitempty"`
	RetryAfter int             `json:"retry_after,omitempty"`
	Details    string          `json:"details,omitempty"`
}

// ProvidersResponse lists every registered provider with its resilience
// state.
type ProvidersResponse struct {
	Providers  []resilience.ProviderState `json:"providers"`
	QueueDepth int                        `json:"queue_depth"`
}

// HealthResponse for health endpoints
type HealthResponse struct {
	Status    string                    `json:"status"`
	Version   string                    `json:"version"`
	Uptime    string                    `json:"uptime"`
	Providers map[string]ProviderHealth `json:"providers,omitempty"`
}

type ProviderHealth struct {
	Status              string `json:"status"`
	ConsecutiveFailures int    `json:"consecutive_failures,omitempty"`
	Message             string `json:"message,omitempty"`
}
