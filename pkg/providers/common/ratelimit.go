package common

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/desenyon/infiniteidea-sub000/pkg/types"
)

// NewClientLimiter paces outgoing calls to requestsPerMinute with a burst of
// the same size. A non-positive rate returns nil, meaning unpaced.
func NewClientLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), requestsPerMinute)
}

// WaitForSlot blocks until limiter admits a request or ctx ends.
func WaitForSlot(ctx context.Context, provider string, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return types.NewTimeoutError(provider, "client-side rate limiter wait aborted").
			WithCause(errors.Join(types.ErrClientThrottled, err))
	}
	return nil
}
