package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/desenyon/infiniteidea-sub000/pkg/backend/middleware"
	"github.com/desenyon/infiniteidea-sub000/pkg/backendtypes"
	"github.com/desenyon/infiniteidea-sub000/pkg/orchestrator"
	"github.com/desenyon/infiniteidea-sub000/pkg/types"
)

// SendSuccess sends a successful JSON response with data
func SendSuccess(w http.ResponseWriter, r *http.Request, data interface{}) {
	send(w, r, http.StatusOK, backendtypes.APIResponse{Success: true, Data: data})
}

// SendError sends an error JSON response with APIError
func SendError(w http.ResponseWriter, r *http.Request, code string, message string, statusCode int) {
	send(w, r, statusCode, backendtypes.APIResponse{
		Error: &backendtypes.APIError{Code: code, Message: message},
	})
}

// SendGenerationError reports a dispatcher or orchestrator failure. The
// status follows the error type, and retry hints become a Retry-After
// header.
func SendGenerationError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := &backendtypes.APIError{Code: "INTERNAL_ERROR", Message: err.Error()}
	status := http.StatusInternalServerError

	var stepErr *orchestrator.StepError
	if errors.As(err, &stepErr) {
		apiErr.Step = string(stepErr.Step)
	}

	var gerr *types.GenerationError
	if errors.As(err, &gerr) {
		apiErr.Code = gerr.Code
		apiErr.Message = gerr.Message
		apiErr.Type = gerr.Type
		apiErr.Provider = gerr.Provider
		apiErr.Retryable = gerr.Retryable
		apiErr.RetryAfter = gerr.RetryAfter
		status = StatusForError(gerr)
		if gerr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(gerr.RetryAfter))
		}
	}

	send(w, r, status, backendtypes.APIResponse{Error: apiErr})
}

// StatusForError maps a generation error onto an HTTP status.
func StatusForError(gerr *types.GenerationError) int {
	switch gerr.Type {
	case types.ErrTypeRateLimit:
		return http.StatusTooManyRequests
	case types.ErrTypeAuthentication:
		return http.StatusUnauthorized
	case types.ErrTypeTimeout:
		return http.StatusGatewayTimeout
	case types.ErrTypeInvalidRequest:
		if gerr.Code == types.CodeParseError {
			return http.StatusBadGateway
		}
		if gerr.Code == types.CodeUnknownProvider {
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	case types.ErrTypeServerError:
		if gerr.Code == types.CodeCircuitBreakerOpen || gerr.Code == types.CodeQueueClosed {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func send(w http.ResponseWriter, r *http.Request, status int, body backendtypes.APIResponse) {
	body.RequestID = middleware.GetRequestID(r.Context())
	body.Timestamp = time.Now()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ParseJSON parses JSON from request body into target
func ParseJSON(r *http.Request, target interface{}) error {
	decoder := json.NewDecoder(r.Body)
	return decoder.Decode(target)
}

// requireMethod writes 405 and returns false unless r uses method.
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	SendError(w, r, "METHOD_NOT_ALLOWED", "Only "+method+" is allowed", http.StatusMethodNotAllowed)
	return false
}
