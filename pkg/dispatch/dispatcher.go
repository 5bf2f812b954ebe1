// Package dispatch sends generation requests to provider clients under
// per-provider rate limits and circuit breakers.
//
// A request whose provider is open-circuited or failing is transparently
// re-routed along a configured fallback chain. A request whose provider has
// exhausted its rate window waits in a FIFO queue until the window resets.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/desenyon/infiniteidea-sub000/internal/logging"
	"github.com/desenyon/infiniteidea-sub000/pkg/metrics"
	"github.com/desenyon/infiniteidea-sub000/pkg/resilience"
	"github.com/desenyon/infiniteidea-sub000/pkg/types"
)

// DefaultQueueRetryInterval is how long the queue waits before re-checking
// a still rate limited head entry.
const DefaultQueueRetryInterval = time.Second

// Config configures a Dispatcher.
type Config struct {
	Resilience resilience.Config

	// FallbackChain is the ordered list of providers tried when the
	// requested provider is unavailable or fails.
	FallbackChain []string

	QueueRetryInterval time.Duration
}

// Dispatcher is the single entry point for provider calls.
type Dispatcher struct {
	registry      *Registry
	store         *resilience.Store
	queue         *Queue
	fallbackChain []string

	costs        metrics.CostCalculator
	collector    *metrics.Collector
	logger       logging.Logger
	now          func() time.Time
	newRequestID func() string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithCostCalculator sets the calculator used to price responses.
func WithCostCalculator(c metrics.CostCalculator) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.costs = c
		}
	}
}

// WithCollector sets the Prometheus collector.
func WithCollector(c *metrics.Collector) Option {
	return func(d *Dispatcher) {
		d.collector = c
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithClock replaces the wall clock for resilience decisions and timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithRequestIDGenerator replaces the uuid based request id generator.
func WithRequestIDGenerator(fn func() string) Option {
	return func(d *Dispatcher) {
		if fn != nil {
			d.newRequestID = fn
		}
	}
}

// New creates a Dispatcher. Every provider named by the fallback chain or
// the rate limit table must be registered.
func New(registry *Registry, cfg Config, opts ...Option) (*Dispatcher, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	for _, name := range cfg.FallbackChain {
		if _, ok := registry.Get(name); !ok {
			return nil, fmt.Errorf("fallback chain references unknown provider %q", name)
		}
	}
	for name := range cfg.Resilience.Limits {
		if _, ok := registry.Get(name); !ok {
			return nil, fmt.Errorf("rate limits reference unknown provider %q", name)
		}
	}

	d := &Dispatcher{
		registry:      registry,
		fallbackChain: append([]string(nil), cfg.FallbackChain...),
		costs:         metrics.NewNullCostCalculator(),
		logger:        logging.NewNop(),
		now:           time.Now,
		newRequestID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.collector == nil {
		d.collector = metrics.NewCollector(nil)
	}

	d.store = resilience.NewStore(cfg.Resilience,
		resilience.WithClock(d.now),
		resilience.WithTransitionObserver(d.onTransition),
	)

	retry := cfg.QueueRetryInterval
	if retry <= 0 {
		retry = DefaultQueueRetryInterval
	}
	d.queue = newQueue(retry, d.store.IsRateLimited, d.dispatchQueued)
	d.queue.onDepth = func(n int) { d.collector.QueueDepth.Set(float64(n)) }
	d.queue.onWait = func(w time.Duration) { d.collector.QueueWait.Observe(w.Seconds()) }
	return d, nil
}

// Providers returns the registered provider names.
func (d *Dispatcher) Providers() []string {
	return d.registry.Names()
}

// Client returns the client registered under name.
func (d *Dispatcher) Client(name string) (types.ProviderClient, bool) {
	return d.registry.Get(name)
}

// Snapshot returns the resilience state of every registered provider.
func (d *Dispatcher) Snapshot() []resilience.ProviderState {
	return d.store.Snapshot(d.registry.Names())
}

// QueueLen returns the number of requests waiting for a rate window.
func (d *Dispatcher) QueueLen() int {
	return d.queue.Len()
}

// Close settles every queued request with an error and stops accepting new ones.
func (d *Dispatcher) Close() {
	d.queue.Close()
}

// Dispatch sends req to its provider. The returned response is never nil;
// when it reports failure the error is a *types.GenerationError.
func (d *Dispatcher) Dispatch(ctx context.Context, req types.GenerationRequest) (*types.GenerationResponse, error) {
	client, req, gerr := d.prepare(req)
	if gerr != nil {
		return d.failed(req, gerr), gerr
	}

	if d.store.IsCircuitOpen(req.Provider) {
		return d.circuitOpen(ctx, req)
	}

	if d.store.IsRateLimited(req.Provider) {
		d.logger.Info("provider rate limited, queueing request", logging.Fields{
			"provider": req.Provider,
			"model":    req.Model,
		})
		resp, err := d.queue.Enqueue(ctx, req)
		if resp == nil {
			gerr := types.AsGenerationError(err, req.Provider)
			return d.failed(req, gerr), gerr
		}
		return resp, err
	}

	return d.execute(ctx, client, req)
}

// dispatchQueued serves a request the queue has released. The rate check
// was already done by the queue and is not repeated.
func (d *Dispatcher) dispatchQueued(ctx context.Context, req types.GenerationRequest) (*types.GenerationResponse, error) {
	client, ok := d.registry.Get(req.Provider)
	if !ok {
		gerr := types.NewUnknownProviderError(req.Provider)
		return d.failed(req, gerr), gerr
	}
	if d.store.IsCircuitOpen(req.Provider) {
		resp, err := d.circuitOpen(ctx, req)
		resp.Metadata.Queued = true
		return resp, err
	}
	resp, err := d.execute(ctx, client, req)
	resp.Metadata.Queued = true
	return resp, err
}

// prepare validates req and resolves its client and model.
func (d *Dispatcher) prepare(req types.GenerationRequest) (types.ProviderClient, types.GenerationRequest, *types.GenerationError) {
	client, ok := d.registry.Get(req.Provider)
	if !ok {
		return nil, req, types.NewUnknownProviderError(req.Provider)
	}
	if req.Model == "" {
		req.Model = client.DefaultModel()
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, req, types.NewInvalidRequestError(req.Provider, "prompt must not be empty")
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		return nil, req, types.NewInvalidRequestError(req.Provider, "temperature must be between 0 and 2")
	}
	if req.MaxTokens != nil && *req.MaxTokens < 0 {
		return nil, req, types.NewInvalidRequestError(req.Provider, "max tokens must be non-negative")
	}
	return client, req, nil
}

func (d *Dispatcher) circuitOpen(ctx context.Context, req types.GenerationRequest) (*types.GenerationResponse, error) {
	d.collector.ObserveRequest(req.Provider, metrics.OutcomeCircuitOpen, 0)
	d.logger.Warn("circuit open, skipping provider", logging.Fields{"provider": req.Provider})

	if resp, ok := d.tryFallbacks(ctx, req); ok {
		return resp, nil
	}
	gerr := types.NewCircuitOpenError(req.Provider, int(d.store.RecoveryTimeout().Seconds()))
	return d.failed(req, gerr), gerr
}

// execute calls client and falls back on failure. When every fallback is
// exhausted the primary's error is returned.
func (d *Dispatcher) execute(ctx context.Context, client types.ProviderClient, req types.GenerationRequest) (*types.GenerationResponse, error) {
	resp, gerr := d.call(ctx, client, req)
	if gerr == nil {
		return resp, nil
	}
	if ctx.Err() == nil {
		if fb, ok := d.tryFallbacks(ctx, req); ok {
			return fb, nil
		}
	}
	return d.failed(req, gerr), gerr
}

// call invokes one client and records the outcome. A failure caused by the
// caller's own context ending, or by the client's local pacing, is not held
// against the provider.
func (d *Dispatcher) call(ctx context.Context, client types.ProviderClient, req types.GenerationRequest) (*types.GenerationResponse, *types.GenerationError) {
	name := client.Name()
	start := d.now()
	result, err := client.Generate(ctx, req)
	latency := d.now().Sub(start)

	if err != nil {
		gerr := types.AsGenerationError(err, name)
		if providerFault(ctx, err) {
			d.store.RecordFailure(name)
		}
		d.collector.ObserveRequest(name, metrics.OutcomeFailure, latency)
		d.logger.WithError(err).Warn("provider call failed", logging.Fields{
			"provider":  name,
			"model":     req.Model,
			"code":      gerr.Code,
			"retryable": gerr.Retryable,
		})
		return nil, gerr
	}

	usage := result.Usage
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	d.store.RecordSuccess(name)
	d.store.RecordUsage(name, usage.TotalTokens)

	model := result.Model
	if model == "" {
		model = req.Model
	}
	usage.Cost = d.costs.CalculateCost(name, model, int64(usage.PromptTokens), int64(usage.CompletionTokens)).TotalCost

	d.collector.ObserveRequest(name, metrics.OutcomeSuccess, latency)
	d.collector.ObserveUsage(name, usage.PromptTokens, usage.CompletionTokens, usage.Cost)

	requestID := result.RequestID
	if requestID == "" {
		requestID = d.newRequestID()
	}
	return &types.GenerationResponse{
		Success: true,
		Data:    result.Text,
		Usage:   usage,
		Metadata: types.ResponseMetadata{
			Provider:  name,
			Model:     model,
			LatencyMs: latency.Milliseconds(),
			Timestamp: d.now(),
			RequestID: requestID,
		},
	}, nil
}

// providerFault reports whether a failed call counts towards the circuit.
func providerFault(ctx context.Context, err error) bool {
	return ctx.Err() == nil && !errors.Is(err, types.ErrClientThrottled)
}

// tryFallbacks walks the fallback chain, skipping the original provider and
// any candidate that is open-circuited or rate limited. Each candidate is
// asked for its default model. The first success wins.
func (d *Dispatcher) tryFallbacks(ctx context.Context, req types.GenerationRequest) (*types.GenerationResponse, bool) {
	for _, name := range d.fallbackChain {
		if name == req.Provider {
			continue
		}
		if ctx.Err() != nil {
			return nil, false
		}
		if d.store.IsCircuitOpen(name) {
			d.logger.Debug("fallback candidate circuit open", logging.Fields{"provider": name})
			continue
		}
		if d.store.IsRateLimited(name) {
			d.logger.Debug("fallback candidate rate limited", logging.Fields{"provider": name})
			continue
		}
		client, ok := d.registry.Get(name)
		if !ok {
			continue
		}

		resp, gerr := d.call(ctx, client, req.WithProvider(name, client.DefaultModel()))
		if gerr != nil {
			continue
		}
		resp.Metadata.FallbackFrom = req.Provider
		d.collector.Fallbacks.WithLabelValues(req.Provider, name).Inc()
		d.logger.Info("request served by fallback provider", logging.Fields{
			"from": req.Provider,
			"to":   name,
		})
		return resp, true
	}
	return nil, false
}

func (d *Dispatcher) failed(req types.GenerationRequest, gerr *types.GenerationError) *types.GenerationResponse {
	return &types.GenerationResponse{
		Success: false,
		Error:   gerr,
		Metadata: types.ResponseMetadata{
			Provider:  req.Provider,
			Model:     req.Model,
			Timestamp: d.now(),
			RequestID: d.newRequestID(),
		},
	}
}

func (d *Dispatcher) onTransition(t resilience.Transition) {
	d.collector.SetCircuitOpen(t.Provider, t.Open)
	if t.Open {
		d.logger.Error("circuit breaker opened", logging.Fields{
			"provider": t.Provider,
			"failures": t.ConsecutiveFailures,
		})
		return
	}
	d.logger.Info("circuit breaker reset", logging.Fields{"provider": t.Provider})
}
