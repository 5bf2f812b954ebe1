package types

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorType categorizes generation errors
type ErrorType string

const (
	ErrTypeRateLimit      ErrorType = "rate_limit"
	ErrTypeInvalidRequest ErrorType = "invalid_request"
	ErrTypeAuthentication ErrorType = "authentication"
	ErrTypeServerError    ErrorType = "server_error"
	ErrTypeTimeout        ErrorType = "timeout"
)

// Error codes surfaced to callers of the dispatcher and orchestrator.
const (
	CodeCircuitBreakerOpen   = "CIRCUIT_BREAKER_OPEN"
	CodeRateLimited          = "RATE_LIMITED"
	CodeProviderError        = "PROVIDER_ERROR"
	CodeUnknownProvider      = "UNKNOWN_PROVIDER"
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	CodeTimeout              = "TIMEOUT"
	CodeParseError           = "PARSE_ERROR"
	CodeStepFailed           = "STEP_FAILED"
	CodeQueueClosed          = "QUEUE_CLOSED"
)

// ErrClientThrottled marks a failure raised by a client's own request pacing
// before the provider was contacted.
var ErrClientThrottled = errors.New("client-side rate limit")

// GenerationError is the single error shape returned by every layer above
// the provider clients.
type GenerationError struct {
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	Type       ErrorType `json:"type"`
	Retryable  bool      `json:"retryable"`
	RetryAfter int       `json:"retryAfter,omitempty"` // seconds
	Provider   string    `json:"provider,omitempty"`
	StatusCode int       `json:"-"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *GenerationError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s (code=%s, type=%s)", e.Provider, e.Message, e.Code, e.Type)
	}
	return fmt.Sprintf("%s (code=%s, type=%s)", e.Message, e.Code, e.Type)
}

// Unwrap returns the underlying cause for errors.Is/As
func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the caller may retry the request later
func (e *GenerationError) IsRetryable() bool {
	return e.Retryable
}

// WithProvider sets the provider and returns the error for chaining
func (e *GenerationError) WithProvider(provider string) *GenerationError {
	e.Provider = provider
	return e
}

// WithCause sets the underlying error and returns the error for chaining
func (e *GenerationError) WithCause(err error) *GenerationError {
	e.Cause = err
	return e
}

// WithStatusCode sets the HTTP status reported by the provider
func (e *GenerationError) WithStatusCode(status int) *GenerationError {
	e.StatusCode = status
	return e
}

// WithRetryAfter sets the retry hint in seconds
func (e *GenerationError) WithRetryAfter(seconds int) *GenerationError {
	e.RetryAfter = seconds
	return e
}

// IsRetryableType reports the default retry policy for an error type.
func IsRetryableType(t ErrorType) bool {
	switch t {
	case ErrTypeRateLimit, ErrTypeServerError, ErrTypeTimeout:
		return true
	}
	return false
}

// NewGenerationError creates an error whose retryability follows its type
func NewGenerationError(code string, errType ErrorType, message string) *GenerationError {
	return &GenerationError{
		Code:      code,
		Message:   message,
		Type:      errType,
		Retryable: IsRetryableType(errType),
	}
}

// NewCircuitOpenError is returned when a provider's breaker rejects a request
// and no fallback could serve it.
func NewCircuitOpenError(provider string, retryAfterSeconds int) *GenerationError {
	return &GenerationError{
		Code:       CodeCircuitBreakerOpen,
		Message:    fmt.Sprintf("circuit breaker is open for provider %s", provider),
		Type:       ErrTypeServerError,
		Retryable:  true,
		RetryAfter: retryAfterSeconds,
		Provider:   provider,
	}
}

// NewRateLimitError creates a new rate limit error
func NewRateLimitError(provider string, retryAfterSeconds int) *GenerationError {
	return &GenerationError{
		Code:       CodeRateLimited,
		Message:    "rate limit exceeded",
		Type:       ErrTypeRateLimit,
		Retryable:  true,
		RetryAfter: retryAfterSeconds,
		Provider:   provider,
	}
}

// NewInvalidRequestError creates a new invalid request error
func NewInvalidRequestError(provider, message string) *GenerationError {
	return &GenerationError{
		Code:     CodeInvalidRequest,
		Message:  message,
		Type:     ErrTypeInvalidRequest,
		Provider: provider,
	}
}

// NewUnknownProviderError is returned for requests naming an unregistered provider
func NewUnknownProviderError(provider string) *GenerationError {
	return &GenerationError{
		Code:     CodeUnknownProvider,
		Message:  fmt.Sprintf("unknown provider %q", provider),
		Type:     ErrTypeInvalidRequest,
		Provider: provider,
	}
}

// NewAuthError creates a new authentication error
func NewAuthError(provider, message string) *GenerationError {
	return &GenerationError{
		Code:     CodeAuthenticationFailed,
		Message:  message,
		Type:     ErrTypeAuthentication,
		Provider: provider,
	}
}

// NewServerError creates a new server error
func NewServerError(provider string, statusCode int, message string) *GenerationError {
	return &GenerationError{
		Code:       CodeProviderError,
		Message:    message,
		Type:       ErrTypeServerError,
		Retryable:  true,
		Provider:   provider,
		StatusCode: statusCode,
	}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(provider, message string) *GenerationError {
	return &GenerationError{
		Code:      CodeTimeout,
		Message:   message,
		Type:      ErrTypeTimeout,
		Retryable: true,
		Provider:  provider,
	}
}

// NewParseError marks a provider reply that could not be decoded into the
// expected structure. It is retryable: a second generation may parse.
func NewParseError(message string, cause error) *GenerationError {
	return &GenerationError{
		Code:      CodeParseError,
		Message:   message,
		Type:      ErrTypeInvalidRequest,
		Retryable: true,
		Cause:     cause,
	}
}

// ClassifyHTTPStatus maps a provider HTTP status onto an error type
func ClassifyHTTPStatus(statusCode int) ErrorType {
	switch {
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return ErrTypeAuthentication
	case statusCode == http.StatusTooManyRequests:
		return ErrTypeRateLimit
	case statusCode == http.StatusRequestTimeout, statusCode == http.StatusGatewayTimeout:
		return ErrTypeTimeout
	case statusCode >= 400 && statusCode < 500:
		return ErrTypeInvalidRequest
	default:
		return ErrTypeServerError
	}
}

// NewHTTPError builds a GenerationError from a non-2xx provider response
func NewHTTPError(provider string, statusCode int, message string) *GenerationError {
	errType := ClassifyHTTPStatus(statusCode)
	code := CodeProviderError
	switch errType {
	case ErrTypeAuthentication:
		code = CodeAuthenticationFailed
	case ErrTypeRateLimit:
		code = CodeRateLimited
	case ErrTypeTimeout:
		code = CodeTimeout
	case ErrTypeInvalidRequest:
		code = CodeInvalidRequest
	}
	e := NewGenerationError(code, errType, message)
	e.Provider = provider
	e.StatusCode = statusCode
	return e
}

// AsGenerationError returns err as a *GenerationError, classifying foreign
// errors. Context deadlines and cancellations become timeouts; anything
// else is treated as a retryable server error.
func AsGenerationError(err error, provider string) *GenerationError {
	if err == nil {
		return nil
	}
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		if genErr.Provider == "" {
			genErr.Provider = provider
		}
		return genErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewTimeoutError(provider, err.Error()).WithCause(err)
	}
	return NewServerError(provider, 0, err.Error()).WithCause(err)
}
