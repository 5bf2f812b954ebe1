// Package orchestrator turns a processed idea into a five-section blueprint
// by running a partially parallel pipeline of dispatched generation
// requests, and supports regenerating, optimizing and validating blueprints.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desenyon/infiniteidea-sub000/internal/logging"
	"github.com/desenyon/infiniteidea-sub000/pkg/blueprint"
	"github.com/desenyon/infiniteidea-sub000/pkg/metrics"
	"github.com/desenyon/infiniteidea-sub000/pkg/prompts"
	"github.com/desenyon/infiniteidea-sub000/pkg/types"
)

// Dispatcher sends one generation request. *dispatch.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req types.GenerationRequest) (*types.GenerationResponse, error)
}

// BlueprintGenerationRequest is the input of GenerateBlueprint.
type BlueprintGenerationRequest struct {
	Idea        blueprint.ProcessedIdea         `json:"idea"`
	Preferences blueprint.GenerationPreferences `json:"preferences"`
}

// StepMetadata records how one pipeline step was served.
type StepMetadata struct {
	Name         blueprint.SectionName `json:"name"`
	Provider     string                `json:"provider"`
	Model        string                `json:"model"`
	LatencyMs    int64                 `json:"latencyMs"`
	Cost         float64               `json:"cost"`
	FallbackFrom string                `json:"fallbackFrom,omitempty"`
	Queued       bool                  `json:"queued,omitempty"`
}

// GenerationMetadata accounts for a whole run.
type GenerationMetadata struct {
	TotalTimeMs    int64          `json:"totalTimeMs"`
	StepsCompleted int            `json:"stepsCompleted"`
	AICallsUsed    int            `json:"aiCallsUsed"`
	TotalCost      float64        `json:"totalCost"`
	Steps          []StepMetadata `json:"steps"`
}

// BlueprintGenerationResponse is returned only when all five sections were
// generated.
type BlueprintGenerationResponse struct {
	Blueprint       *blueprint.Blueprint       `json:"blueprint"`
	Confidence      int                        `json:"confidence"`
	Warnings        []string                   `json:"warnings"`
	Recommendations []string                   `json:"recommendations"`
	Validation      blueprint.ValidationResult `json:"validation"`
	Metadata        GenerationMetadata         `json:"metadata"`
}

// SectionResult carries a parsed section with the response it came from.
type SectionResult[T any] struct {
	Section  T
	Raw      json.RawMessage
	Response *types.GenerationResponse
}

// SectionResponse is the result of regenerating one section.
type SectionResponse struct {
	Section  blueprint.SectionName     `json:"section"`
	Data     json.RawMessage           `json:"data"`
	Response *types.GenerationResponse `json:"response"`
}

// OptimizationResult is the replacement blueprint from OptimizeBlueprint.
type OptimizationResult struct {
	Blueprint *blueprint.Blueprint      `json:"blueprint"`
	Response  *types.GenerationResponse `json:"response"`
}

// StepError reports the pipeline step that aborted a run.
type StepError struct {
	Step blueprint.SectionName
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("blueprint step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Orchestrator coordinates blueprint generation over a Dispatcher.
type Orchestrator struct {
	dispatcher  Dispatcher
	renderer    prompts.Renderer
	selector    ModelSelector
	collector   *metrics.Collector
	logger      logging.Logger
	now         func() time.Time
	temperature *float64
	maxTokens   *int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithCollector sets the Prometheus collector.
func WithCollector(c *metrics.Collector) Option {
	return func(o *Orchestrator) {
		o.collector = c
	}
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSampling sets the temperature and token limit sent with every step.
// Zero values leave the provider defaults.
func WithSampling(temperature float64, maxTokens int) Option {
	return func(o *Orchestrator) {
		if temperature > 0 {
			o.temperature = &temperature
		}
		if maxTokens > 0 {
			o.maxTokens = &maxTokens
		}
	}
}

// New creates an Orchestrator.
func New(d Dispatcher, renderer prompts.Renderer, selector ModelSelector, opts ...Option) (*Orchestrator, error) {
	if d == nil {
		return nil, errors.New("dispatcher is required")
	}
	if renderer == nil {
		return nil, errors.New("prompt renderer is required")
	}
	if selector == nil {
		return nil, errors.New("model selector is required")
	}

	o := &Orchestrator{
		dispatcher: d,
		renderer:   renderer,
		selector:   selector,
		logger:     logging.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.collector == nil {
		o.collector = metrics.NewCollector(nil)
	}
	return o, nil
}

// ValidateBlueprint scores a blueprint. It makes no provider calls.
func (o *Orchestrator) ValidateBlueprint(bp *blueprint.Blueprint) blueprint.ValidationResult {
	return blueprint.Validate(bp)
}

func (o *Orchestrator) request(p prompts.Prompt, sel Selection, step string) types.GenerationRequest {
	return types.GenerationRequest{
		Provider:     sel.Provider,
		Model:        sel.Model,
		Prompt:       p.User,
		SystemPrompt: p.System,
		Temperature:  o.temperature,
		MaxTokens:    o.maxTokens,
		Metadata:     map[string]string{"step": step},
	}
}
