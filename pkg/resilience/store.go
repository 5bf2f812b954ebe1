// Package resilience holds the per-provider state that decides whether a
// request may be sent: fixed-window rate budgets and a circuit breaker.
//
// The breaker opens after FailureThreshold consecutive failures and resets
// itself once RecoveryTimeout has elapsed since the last failure. There is
// no half-open trial request: the first request after the timeout is sent normally
// and a failure counts toward a fresh threshold.
package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/desenyon/infiniteidea-sub000/pkg/ratelimit"
)

const (
	// DefaultFailureThreshold is the number of consecutive failures that opens the circuit
	DefaultFailureThreshold = 5

	// DefaultRecoveryTimeout is how long an open circuit stays open
	DefaultRecoveryTimeout = 60 * time.Second
)

// Config configures a Store.
type Config struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	DefaultLimits    ratelimit.Limits
	Limits           map[string]ratelimit.Limits
	WindowSize       time.Duration
}

// circuit is the breaker state of one provider.
type circuit struct {
	consecutiveFailures int
	lastFailureAt       time.Time
	open                bool
}

// ProviderState is a point-in-time copy of one provider's resilience state.
type ProviderState struct {
	Provider             string    `json:"provider"`
	RequestCountInWindow int       `json:"requestCountInWindow"`
	TokenCountInWindow   int       `json:"tokenCountInWindow"`
	WindowResetAt        time.Time `json:"windowResetAt"`
	ConsecutiveFailures  int       `json:"consecutiveFailures"`
	LastFailureAt        time.Time `json:"lastFailureAt,omitempty"`
	IsOpen               bool      `json:"isOpen"`
	RequestsPerMinute    int       `json:"requestsPerMinute"`
	TokensPerMinute      int       `json:"tokensPerMinute"`
}

// Transition is reported to the observer when a circuit changes state.
type Transition struct {
	Provider            string
	Open                bool
	ConsecutiveFailures int
}

// Store is the resilience state for every provider a dispatcher talks to.
// It is safe for concurrent use; each call observes all earlier mutations.
type Store struct {
	mu       sync.Mutex
	circuits map[string]*circuit
	windows  *ratelimit.Windows

	failureThreshold int
	recoveryTimeout  time.Duration
	now              func() time.Time
	onTransition     func(Transition)
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock replaces the wall clock for both the breaker and the rate windows.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTransitionObserver registers a callback fired on circuit open/reset.
// The callback runs outside the store lock.
func WithTransitionObserver(fn func(Transition)) StoreOption {
	return func(s *Store) {
		s.onTransition = fn
	}
}

// NewStore creates a Store. Zero config fields fall back to defaults.
func NewStore(cfg Config, opts ...StoreOption) *Store {
	s := &Store{
		circuits:         make(map[string]*circuit),
		failureThreshold: cfg.FailureThreshold,
		recoveryTimeout:  cfg.RecoveryTimeout,
		now:              time.Now,
	}
	if s.failureThreshold <= 0 {
		s.failureThreshold = DefaultFailureThreshold
	}
	if s.recoveryTimeout <= 0 {
		s.recoveryTimeout = DefaultRecoveryTimeout
	}
	for _, opt := range opts {
		opt(s)
	}

	windowOpts := []ratelimit.Option{
		ratelimit.WithClock(s.now),
		ratelimit.WithDefaultLimits(cfg.DefaultLimits),
		ratelimit.WithWindowSize(cfg.WindowSize),
	}
	for provider, l := range cfg.Limits {
		windowOpts = append(windowOpts, ratelimit.WithLimits(provider, l))
	}
	s.windows = ratelimit.NewWindows(windowOpts...)
	return s
}

// RecoveryTimeout returns how long an open circuit stays open.
func (s *Store) RecoveryTimeout() time.Duration {
	return s.recoveryTimeout
}

// FailureThreshold returns the number of consecutive failures that opens a circuit.
func (s *Store) FailureThreshold() int {
	return s.failureThreshold
}

// IsRateLimited reports whether provider has exhausted its current window.
func (s *Store) IsRateLimited(provider string) bool {
	return s.windows.IsLimited(provider)
}

// RecordUsage counts one request and its tokens against provider's window.
func (s *Store) RecordUsage(provider string, tokens int) {
	s.windows.Record(provider, tokens)
}

// WindowRemaining returns the time until provider's rate window resets.
func (s *Store) WindowRemaining(provider string) time.Duration {
	return s.windows.Remaining(provider)
}

func (s *Store) circuit(provider string) *circuit {
	c, ok := s.circuits[provider]
	if !ok {
		c = &circuit{}
		s.circuits[provider] = c
	}
	return c
}

// RecordSuccess closes provider's circuit and clears its failure count.
func (s *Store) RecordSuccess(provider string) {
	s.mu.Lock()
	c := s.circuit(provider)
	wasOpen := c.open
	c.consecutiveFailures = 0
	c.open = false
	s.mu.Unlock()

	if wasOpen {
		s.notify(Transition{Provider: provider, Open: false})
	}
}

// RecordFailure counts a failure and opens the circuit at the threshold.
func (s *Store) RecordFailure(provider string) {
	s.mu.Lock()
	c := s.circuit(provider)
	c.consecutiveFailures++
	c.lastFailureAt = s.now()
	opened := false
	if !c.open && c.consecutiveFailures >= s.failureThreshold {
		c.open = true
		opened = true
	}
	failures := c.consecutiveFailures
	s.mu.Unlock()

	if opened {
		s.notify(Transition{Provider: provider, Open: true, ConsecutiveFailures: failures})
	}
}

// IsCircuitOpen reports whether provider's circuit rejects requests. A
// circuit whose recovery timeout has elapsed is reset and reported closed.
func (s *Store) IsCircuitOpen(provider string) bool {
	s.mu.Lock()
	c := s.circuit(provider)
	if !c.open {
		s.mu.Unlock()
		return false
	}
	if s.now().Sub(c.lastFailureAt) > s.recoveryTimeout {
		c.open = false
		c.consecutiveFailures = 0
		s.mu.Unlock()
		s.notify(Transition{Provider: provider, Open: false})
		return false
	}
	s.mu.Unlock()
	return true
}

// State returns a copy of one provider's state.
func (s *Store) State(provider string) ProviderState {
	s.mu.Lock()
	st := ProviderState{Provider: provider}
	if c, ok := s.circuits[provider]; ok {
		st.ConsecutiveFailures = c.consecutiveFailures
		st.LastFailureAt = c.lastFailureAt
		st.IsOpen = c.open
	}
	s.mu.Unlock()

	if win, ok := s.windows.Get(provider); ok {
		st.RequestCountInWindow = win.Requests
		st.TokenCountInWindow = win.Tokens
		st.WindowResetAt = win.ResetAt
	}
	l := s.windows.LimitsFor(provider)
	st.RequestsPerMinute = l.RequestsPerMinute
	st.TokensPerMinute = l.TokensPerMinute
	return st
}

// Snapshot returns the state of the given providers sorted by name.
func (s *Store) Snapshot(providers []string) []ProviderState {
	names := append([]string(nil), providers...)
	sort.Strings(names)

	out := make([]ProviderState, 0, len(names))
	for _, name := range names {
		out = append(out, s.State(name))
	}
	return out
}

func (s *Store) notify(t Transition) {
	if s.onTransition != nil {
		s.onTransition(t)
	}
}
