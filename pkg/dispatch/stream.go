package dispatch

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"time"

	"github.com/desenyon/infiniteidea-sub000/internal/logging"
	"github.com/desenyon/infiniteidea-sub000/pkg/metrics"
	"github.com/desenyon/infiniteidea-sub000/pkg/types"
)

// DispatchStream opens a streaming completion. It applies the same circuit
// breaker and fallback rules as Dispatch but is never queued: a rate limited
// provider fails fast with a rate_limit error carrying the window's
// remaining time. Success, failure and usage are recorded when the stream
// ends. Providers without streaming support are served as a single chunk.
func (d *Dispatcher) DispatchStream(ctx context.Context, req types.GenerationRequest) (types.ChunkStream, error) {
	client, req, gerr := d.prepare(req)
	if gerr != nil {
		return nil, gerr
	}

	if d.store.IsCircuitOpen(req.Provider) {
		d.collector.ObserveRequest(req.Provider, metrics.OutcomeCircuitOpen, 0)
		if s, ok := d.tryFallbackStreams(ctx, req); ok {
			return s, nil
		}
		return nil, types.NewCircuitOpenError(req.Provider, int(d.store.RecoveryTimeout().Seconds()))
	}

	if d.store.IsRateLimited(req.Provider) {
		d.collector.ObserveRequest(req.Provider, metrics.OutcomeRateLimited, 0)
		wait := d.store.WindowRemaining(req.Provider)
		return nil, types.NewRateLimitError(req.Provider, int(math.Ceil(wait.Seconds())))
	}

	s, gerr := d.openStream(ctx, client, req)
	if gerr == nil {
		return s, nil
	}
	if ctx.Err() == nil {
		if fb, ok := d.tryFallbackStreams(ctx, req); ok {
			return fb, nil
		}
	}
	return nil, gerr
}

func (d *Dispatcher) tryFallbackStreams(ctx context.Context, req types.GenerationRequest) (types.ChunkStream, bool) {
	for _, name := range d.fallbackChain {
		if name == req.Provider || ctx.Err() != nil {
			continue
		}
		if d.store.IsCircuitOpen(name) || d.store.IsRateLimited(name) {
			continue
		}
		client, ok := d.registry.Get(name)
		if !ok {
			continue
		}
		s, gerr := d.openStream(ctx, client, req.WithProvider(name, client.DefaultModel()))
		if gerr != nil {
			continue
		}
		d.collector.Fallbacks.WithLabelValues(req.Provider, name).Inc()
		d.logger.Info("stream served by fallback provider", logging.Fields{
			"from": req.Provider,
			"to":   name,
		})
		return s, true
	}
	return nil, false
}

func (d *Dispatcher) openStream(ctx context.Context, client types.ProviderClient, req types.GenerationRequest) (types.ChunkStream, *types.GenerationError) {
	name := client.Name()
	start := d.now()

	var (
		inner types.ChunkStream
		err   error
	)
	if sc, ok := client.(types.StreamingClient); ok {
		inner, err = sc.GenerateStream(ctx, req)
	} else {
		var result *types.ProviderResult
		result, err = client.Generate(ctx, req)
		if err == nil {
			inner = newSingleChunkStream(result)
		}
	}

	if err != nil {
		gerr := types.AsGenerationError(err, name)
		if providerFault(ctx, err) {
			d.store.RecordFailure(name)
		}
		d.collector.ObserveRequest(name, metrics.OutcomeFailure, d.now().Sub(start))
		d.logger.WithError(err).Warn("provider stream failed to open", logging.Fields{"provider": name})
		return nil, gerr
	}

	return &trackedStream{
		inner:    inner,
		d:        d,
		provider: name,
		model:    req.Model,
		start:    start,
	}, nil
}

// trackedStream records the outcome of a stream on its provider once the
// stream ends.
type trackedStream struct {
	inner    types.ChunkStream
	d        *Dispatcher
	provider string
	model    string
	start    time.Time

	mu       sync.Mutex
	usage    types.Usage
	finished bool
}

func (s *trackedStream) Next() (types.Chunk, error) {
	chunk, err := s.inner.Next()
	if errors.Is(err, io.EOF) {
		s.finish(nil)
		return chunk, io.EOF
	}
	if err != nil {
		s.finish(err)
		return chunk, types.AsGenerationError(err, s.provider)
	}

	chunk.Provider = s.provider
	if chunk.Model == "" {
		chunk.Model = s.model
	}
	if chunk.Usage != nil {
		u := *chunk.Usage
		if u.TotalTokens == 0 {
			u.TotalTokens = u.PromptTokens + u.CompletionTokens
		}
		u.Cost = s.d.costs.CalculateCost(s.provider, chunk.Model, int64(u.PromptTokens), int64(u.CompletionTokens)).TotalCost
		chunk.Usage = &u
		s.mu.Lock()
		s.usage = u
		s.mu.Unlock()
	}
	return chunk, nil
}

func (s *trackedStream) finish(err error) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	usage := s.usage
	s.mu.Unlock()

	latency := s.d.now().Sub(s.start)
	if err != nil {
		s.d.store.RecordFailure(s.provider)
		s.d.collector.ObserveRequest(s.provider, metrics.OutcomeFailure, latency)
		return
	}
	s.d.store.RecordSuccess(s.provider)
	s.d.store.RecordUsage(s.provider, usage.TotalTokens)
	s.d.collector.ObserveRequest(s.provider, metrics.OutcomeSuccess, latency)
	s.d.collector.ObserveUsage(s.provider, usage.PromptTokens, usage.CompletionTokens, usage.Cost)
}

// Close releases the stream. A stream abandoned before its end still
// counts against the provider's rate window but not its breaker.
func (s *trackedStream) Close() error {
	s.mu.Lock()
	abandoned := !s.finished
	s.finished = true
	usage := s.usage
	s.mu.Unlock()

	if abandoned {
		s.d.store.RecordUsage(s.provider, usage.TotalTokens)
	}
	return s.inner.Close()
}

// singleChunkStream adapts a non-streaming result to ChunkStream.
type singleChunkStream struct {
	result *types.ProviderResult
	sent   bool
}

func newSingleChunkStream(result *types.ProviderResult) *singleChunkStream {
	return &singleChunkStream{result: result}
}

func (s *singleChunkStream) Next() (types.Chunk, error) {
	if s.sent {
		return types.Chunk{}, io.EOF
	}
	s.sent = true
	usage := s.result.Usage
	return types.Chunk{
		Content: s.result.Text,
		Done:    true,
		Usage:   &usage,
		Model:   s.result.Model,
	}, nil
}

func (s *singleChunkStream) Close() error {
	return nil
}
