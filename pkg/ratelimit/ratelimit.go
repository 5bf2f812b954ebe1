// Package ratelimit tracks per-provider request and token budgets.
//
// Budgets are enforced with fixed windows: counters start at zero when a
// window opens and are cleared wholesale once the window has elapsed. Bursts
// of up to twice the configured rate across a window boundary are accepted.
// The package also parses the rate limit headers vendors return so that
// retry hints can be surfaced to callers.
package ratelimit

import (
	"sync"
	"time"
)

// DefaultWindow is the length of a rate limit window.
const DefaultWindow = time.Minute

// Limits is a provider's budget for one window. Zero means unlimited.
type Limits struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	TokensPerMinute   int `json:"tokens_per_minute" yaml:"tokens_per_minute" mapstructure:"tokens_per_minute"`
}

// Window holds the counters of the current window for one provider.
type Window struct {
	// Requests counts successful requests in the current window
	Requests int `json:"request_count_in_window"`

	// Tokens counts tokens consumed in the current window
	Tokens int `json:"token_count_in_window"`

	// ResetAt is when the window expires
	ResetAt time.Time `json:"window_reset_at"`
}

// Windows provides thread-safe fixed-window accounting for many providers.
// Windows are created lazily on first touch.
type Windows struct {
	// mu protects windows and limits
	mu sync.Mutex

	windows       map[string]*Window
	limits        map[string]Limits
	defaultLimits Limits
	size          time.Duration
	now           func() time.Time
}

// Option configures Windows.
type Option func(*Windows)

// WithClock replaces the wall clock. Used by tests to drive window expiry.
func WithClock(now func() time.Time) Option {
	return func(w *Windows) {
		if now != nil {
			w.now = now
		}
	}
}

// WithWindowSize overrides DefaultWindow.
func WithWindowSize(size time.Duration) Option {
	return func(w *Windows) {
		if size > 0 {
			w.size = size
		}
	}
}

// WithDefaultLimits sets the budget for providers without explicit limits.
func WithDefaultLimits(l Limits) Option {
	return func(w *Windows) {
		w.defaultLimits = l
	}
}

// WithLimits sets the budget for a single provider.
func WithLimits(provider string, l Limits) Option {
	return func(w *Windows) {
		w.limits[provider] = l
	}
}

// NewWindows creates a new Windows tracker.
func NewWindows(opts ...Option) *Windows {
	w := &Windows{
		windows: make(map[string]*Window),
		limits:  make(map[string]Limits),
		size:    DefaultWindow,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// LimitsFor returns the budget that applies to provider.
func (w *Windows) LimitsFor(provider string) Limits {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.limitsLocked(provider)
}

func (w *Windows) limitsLocked(provider string) Limits {
	if l, ok := w.limits[provider]; ok {
		return l
	}
	return w.defaultLimits
}

// window returns the provider's window, creating it if needed. Caller holds mu.
func (w *Windows) window(provider string, now time.Time) *Window {
	win, ok := w.windows[provider]
	if !ok {
		win = &Window{ResetAt: now.Add(w.size)}
		w.windows[provider] = win
	}
	return win
}

// IsLimited reports whether provider has exhausted its request or token
// budget. An elapsed window is reset as a side effect and never limited.
func (w *Windows) IsLimited(provider string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	win := w.window(provider, now)
	if now.After(win.ResetAt) {
		win.Requests = 0
		win.Tokens = 0
		win.ResetAt = now.Add(w.size)
		return false
	}

	l := w.limitsLocked(provider)
	if l.RequestsPerMinute > 0 && win.Requests >= l.RequestsPerMinute {
		return true
	}
	if l.TokensPerMinute > 0 && win.Tokens >= l.TokensPerMinute {
		return true
	}
	return false
}

// Record counts one request consuming tokens against the current window.
func (w *Windows) Record(provider string, tokens int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	win := w.window(provider, w.now())
	win.Requests++
	if tokens > 0 {
		win.Tokens += tokens
	}
}

// Remaining returns the time until provider's current window resets.
func (w *Windows) Remaining(provider string) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	win, ok := w.windows[provider]
	if !ok || !now.Before(win.ResetAt) {
		return 0
	}
	return win.ResetAt.Sub(now)
}

// Get returns a copy of provider's window.
func (w *Windows) Get(provider string) (Window, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	win, ok := w.windows[provider]
	if !ok {
		return Window{}, false
	}
	return *win, true
}
