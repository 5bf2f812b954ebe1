package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"
)

// Hint is the rate limit state a vendor reported on a response.
type Hint struct {
	Provider          string
	RequestsLimit     int
	RequestsRemaining int
	TokensLimit       int
	TokensRemaining   int
	Reset             time.Time
	RetryAfter        time.Duration
	RequestID         string
}

// RetryAfterSeconds returns the best available wait hint rounded up to whole
// seconds, or 0 when the vendor gave none.
func (h Hint) RetryAfterSeconds(now time.Time) int {
	if h.RetryAfter > 0 {
		return int(math.Ceil(h.RetryAfter.Seconds()))
	}
	if !h.Reset.IsZero() && h.Reset.After(now) {
		return int(math.Ceil(h.Reset.Sub(now).Seconds()))
	}
	return 0
}

// ParseOpenAIHeaders reads OpenAI-style headers:
//   - x-ratelimit-limit-requests / x-ratelimit-remaining-requests
//   - x-ratelimit-reset-requests: duration until reset (e.g. "6m0s")
//   - x-ratelimit-limit-tokens / x-ratelimit-remaining-tokens
//   - x-request-id, retry-after (seconds)
func ParseOpenAIHeaders(headers http.Header, now time.Time) Hint {
	h := Hint{Provider: "openai"}
	parseInt(headers, "x-ratelimit-limit-requests", &h.RequestsLimit)
	parseInt(headers, "x-ratelimit-remaining-requests", &h.RequestsRemaining)
	parseInt(headers, "x-ratelimit-limit-tokens", &h.TokensLimit)
	parseInt(headers, "x-ratelimit-remaining-tokens", &h.TokensRemaining)

	if reset := headers.Get("x-ratelimit-reset-requests"); reset != "" {
		if d, err := time.ParseDuration(reset); err == nil {
			h.Reset = now.Add(d)
		}
	}
	h.RequestID = headers.Get("x-request-id")
	parseRetryAfter(headers, &h)
	return h
}

// ParseAnthropicHeaders reads Anthropic headers, whose reset values are
// RFC 3339 timestamps:
//   - anthropic-ratelimit-requests-{limit,remaining,reset}
//   - anthropic-ratelimit-tokens-{limit,remaining}
//   - request-id, retry-after (seconds)
func ParseAnthropicHeaders(headers http.Header) Hint {
	h := Hint{Provider: "anthropic"}
	parseInt(headers, "anthropic-ratelimit-requests-limit", &h.RequestsLimit)
	parseInt(headers, "anthropic-ratelimit-requests-remaining", &h.RequestsRemaining)
	parseInt(headers, "anthropic-ratelimit-tokens-limit", &h.TokensLimit)
	parseInt(headers, "anthropic-ratelimit-tokens-remaining", &h.TokensRemaining)

	if reset := headers.Get("anthropic-ratelimit-requests-reset"); reset != "" {
		if t, err := time.Parse(time.RFC3339, reset); err == nil {
			h.Reset = t
		}
	}
	h.RequestID = headers.Get("request-id")
	parseRetryAfter(headers, &h)
	return h
}

func parseInt(headers http.Header, name string, target *int) {
	if val := headers.Get(name); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			*target = parsed
		}
	}
}

func parseRetryAfter(headers http.Header, h *Hint) {
	if val := headers.Get("retry-after"); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil {
			h.RetryAfter = time.Duration(seconds) * time.Second
		}
	}
}
