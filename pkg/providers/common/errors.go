// Package common provides the pieces shared by provider clients: error
// classification, credential masking, SSE streaming and client-side pacing.
package common

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	internalhttp "github.com/desenyon/infiniteidea-sub000/internal/http"
	"github.com/desenyon/infiniteidea-sub000/pkg/ratelimit"
	"github.com/desenyon/infiniteidea-sub000/pkg/types"
)

// ResponseError converts a non-2xx provider response into a GenerationError.
// The response body is consumed but not closed. Rate limit responses carry
// the vendor's retry hint when one was sent.
func ResponseError(provider string, resp *http.Response, hint ratelimit.Hint, now time.Time) *types.GenerationError {
	msg := MaskString(internalhttp.ErrorMessage(resp))
	gerr := types.NewHTTPError(provider, resp.StatusCode, msg)
	if gerr.Type == types.ErrTypeRateLimit {
		gerr.RetryAfter = hint.RetryAfterSeconds(now)
	}
	return gerr
}

// TransportError classifies an error returned by http.Client.Do.
func TransportError(provider string, err error) *types.GenerationError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return types.NewTimeoutError(provider, "request did not complete").WithCause(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.NewTimeoutError(provider, "request timed out").WithCause(err)
	}
	return types.NewServerError(provider, 0, MaskString(err.Error())).WithCause(err)
}
