// Package metrics provides cost calculation and Prometheus instrumentation
// for provider dispatch and blueprint generation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for dispatched requests.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeCircuitOpen = "circuit_open"
	OutcomeRateLimited = "rate_limited"
)

// Collector groups the Prometheus series recorded by the dispatcher and
// orchestrator. It is registered on the registerer it was built with, so
// tests can use an isolated registry.
type Collector struct {
	Requests        *prometheus.CounterVec
	Latency         *prometheus.HistogramVec
	Tokens          *prometheus.CounterVec
	Cost            *prometheus.CounterVec
	Fallbacks       *prometheus.CounterVec
	CircuitOpen     *prometheus.GaugeVec
	QueueDepth      prometheus.Gauge
	QueueWait       prometheus.Histogram
	StepDuration    *prometheus.HistogramVec
	StepFailures    *prometheus.CounterVec
	BlueprintsBuilt *prometheus.CounterVec
}

// NewCollector creates and registers the series on reg. A nil reg creates
// unregistered collectors.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_requests_total",
				Help: "Total number of dispatched generation requests",
			},
			[]string{"provider", "outcome"},
		),
		Latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dispatch_request_duration_seconds",
				Help:    "Provider call latency in seconds",
				Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"provider"},
		),
		Tokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_tokens_total",
				Help: "Tokens consumed per provider",
			},
			[]string{"provider", "kind"},
		),
		Cost: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_cost_usd_total",
				Help: "Derived request cost in USD",
			},
			[]string{"provider"},
		),
		Fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_fallbacks_total",
				Help: "Requests served by a fallback provider",
			},
			[]string{"from", "to"},
		),
		CircuitOpen: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dispatch_circuit_open",
				Help: "1 while a provider's circuit breaker is open",
			},
			[]string{"provider"},
		),
		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dispatch_queue_depth",
				Help: "Requests waiting for a rate limit window",
			},
		),
		QueueWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dispatch_queue_wait_seconds",
				Help:    "Time requests spent queued",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 9),
			},
		),
		StepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blueprint_step_duration_seconds",
				Help:    "Duration of blueprint generation steps",
				Buckets: []float64{1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"step"},
		),
		StepFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blueprint_step_failures_total",
				Help: "Failed blueprint generation steps",
			},
			[]string{"step", "error_code"},
		),
		BlueprintsBuilt: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blueprints_generated_total",
				Help: "Blueprint generation runs by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// ObserveRequest records one provider call.
func (c *Collector) ObserveRequest(provider, outcome string, latency time.Duration) {
	c.Requests.WithLabelValues(provider, outcome).Inc()
	if outcome == OutcomeSuccess || outcome == OutcomeFailure {
		c.Latency.WithLabelValues(provider).Observe(latency.Seconds())
	}
}

// ObserveUsage records token consumption and cost.
func (c *Collector) ObserveUsage(provider string, promptTokens, completionTokens int, cost float64) {
	c.Tokens.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
	c.Tokens.WithLabelValues(provider, "completion").Add(float64(completionTokens))
	if cost > 0 {
		c.Cost.WithLabelValues(provider).Add(cost)
	}
}

// SetCircuitOpen mirrors a breaker transition.
func (c *Collector) SetCircuitOpen(provider string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	c.CircuitOpen.WithLabelValues(provider).Set(v)
}
