package orchestrator

import (
	"context"
	"errors"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/desenyon/infiniteidea-sub000/internal/logging"
	"github.com/desenyon/infiniteidea-sub000/pkg/blueprint"
	"github.com/desenyon/infiniteidea-sub000/pkg/prompts"
	"github.com/desenyon/infiniteidea-sub000/pkg/types"
)

// accounting collects per-step usage. Parallel steps record concurrently.
type accounting struct {
	mu    sync.Mutex
	calls int
	cost  float64
	steps []StepMetadata
}

func (a *accounting) call(resp *types.GenerationResponse) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.cost += resp.Usage.Cost
}

func (a *accounting) complete(step blueprint.SectionName, resp *types.GenerationResponse) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.steps = append(a.steps, StepMetadata{
		Name:         step,
		Provider:     resp.Metadata.Provider,
		Model:        resp.Metadata.Model,
		LatencyMs:    resp.Metadata.LatencyMs,
		Cost:         resp.Usage.Cost,
		FallbackFrom: resp.Metadata.FallbackFrom,
		Queued:       resp.Metadata.Queued,
	})
}

func (a *accounting) metadata() GenerationMetadata {
	a.mu.Lock()
	defer a.mu.Unlock()

	order := make(map[blueprint.SectionName]int, len(blueprint.Sections))
	for i, s := range blueprint.Sections {
		order[s] = i
	}
	steps := append([]StepMetadata(nil), a.steps...)
	sort.Slice(steps, func(i, j int) bool { return order[steps[i].Name] < order[steps[j].Name] })

	return GenerationMetadata{
		StepsCompleted: len(steps),
		AICallsUsed:    a.calls,
		TotalCost:      a.cost,
		Steps:          steps,
	}
}

// GenerateBlueprint runs the five-step pipeline. The product plan comes
// first; tech stack and AI workflow then run concurrently; roadmap and
// financial model run concurrently once the tech stack exists. Any failed
// step fails the whole run with a *StepError and no blueprint.
func (o *Orchestrator) GenerateBlueprint(ctx context.Context, req BlueprintGenerationRequest) (*BlueprintGenerationResponse, error) {
	if err := req.Idea.Validate(); err != nil {
		return nil, types.NewInvalidRequestError("", err.Error()).WithCause(err)
	}
	priority, err := blueprint.ParsePriority(string(req.Preferences.Priority))
	if err != nil {
		return nil, types.NewInvalidRequestError("", err.Error()).WithCause(err)
	}

	start := o.now()
	acc := &accounting{}
	logger := o.logger.WithFields(logging.Fields{"idea": req.Idea.Title, "priority": priority})
	logger.Info("blueprint generation started", nil)

	vars := prompts.Vars{
		"Idea":        req.Idea,
		"Preferences": req.Preferences,
	}

	plan, err := runStep[blueprint.ProductPlan](ctx, o, blueprint.SectionProductPlan, vars, priority, acc)
	if err != nil {
		return nil, o.runFailed(logger, err)
	}
	vars = withVar(vars, "ProductPlan", string(plan.Raw))

	var (
		tech     *SectionResult[blueprint.TechStack]
		workflow *SectionResult[blueprint.AIWorkflow]
	)
	g := new(errgroup.Group)
	g.Go(func() (err error) {
		tech, err = runStep[blueprint.TechStack](ctx, o, blueprint.SectionTechStack, vars, priority, acc)
		return err
	})
	g.Go(func() (err error) {
		workflow, err = runStep[blueprint.AIWorkflow](ctx, o, blueprint.SectionAIWorkflow, vars, priority, acc)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, o.runFailed(logger, err)
	}
	vars = withVar(vars, "TechStack", string(tech.Raw))

	var (
		roadmap   *SectionResult[blueprint.Roadmap]
		financial *SectionResult[blueprint.FinancialModel]
	)
	g = new(errgroup.Group)
	g.Go(func() (err error) {
		roadmap, err = runStep[blueprint.Roadmap](ctx, o, blueprint.SectionRoadmap, vars, priority, acc)
		return err
	})
	g.Go(func() (err error) {
		financial, err = runStep[blueprint.FinancialModel](ctx, o, blueprint.SectionFinancialModel, vars, priority, acc)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, o.runFailed(logger, err)
	}

	bp := &blueprint.Blueprint{
		ProductPlan:    plan.Section,
		TechStack:      tech.Section,
		AIWorkflow:     workflow.Section,
		Roadmap:        roadmap.Section,
		FinancialModel: financial.Section,
		GeneratedAt:    o.now(),
	}

	validation := o.ValidateBlueprint(bp)
	meta := acc.metadata()
	meta.TotalTimeMs = o.now().Sub(start).Milliseconds()

	o.collector.BlueprintsBuilt.WithLabelValues("success").Inc()
	logger.Info("blueprint generation completed", logging.Fields{
		"score":      validation.Score,
		"valid":      validation.IsValid,
		"ai_calls":   meta.AICallsUsed,
		"total_cost": meta.TotalCost,
		"elapsed_ms": meta.TotalTimeMs,
	})

	return &BlueprintGenerationResponse{
		Blueprint:       bp,
		Confidence:      validation.Score,
		Warnings:        nonNil(validation.Warnings()),
		Recommendations: nonNil(validation.Suggestions),
		Validation:      validation,
		Metadata:        meta,
	}, nil
}

func (o *Orchestrator) runFailed(logger logging.Logger, err error) error {
	o.collector.BlueprintsBuilt.WithLabelValues("failure").Inc()
	logger.WithError(err).Error("blueprint generation failed", nil)
	return err
}

// runStep renders, dispatches, parses and decodes one section.
func runStep[T any](
	ctx context.Context,
	o *Orchestrator,
	step blueprint.SectionName,
	vars prompts.Vars,
	priority blueprint.Priority,
	acc *accounting,
) (*SectionResult[T], error) {
	start := o.now()
	defer func() {
		o.collector.StepDuration.WithLabelValues(string(step)).Observe(o.now().Sub(start).Seconds())
	}()

	p, err := o.renderer.Render(string(step), vars)
	if err != nil {
		return nil, o.stepFailed(step, types.NewInvalidRequestError("", err.Error()).WithCause(err))
	}

	category := TaskCategory(p.Category)
	if category == "" {
		category = sectionCategories[step]
	}
	sel := o.selector.Select(category, priority)

	resp, err := o.dispatcher.Dispatch(ctx, o.request(p, sel, string(step)))
	if err != nil {
		return nil, o.stepFailed(step, err)
	}
	acc.call(resp)

	var section T
	raw, err := blueprint.DecodeSection(step, resp.Data, &section)
	if err != nil {
		var gerr *types.GenerationError
		if errors.As(err, &gerr) {
			gerr.Provider = resp.Metadata.Provider
		}
		return nil, o.stepFailed(step, err)
	}

	acc.complete(step, resp)
	o.logger.Debug("blueprint step completed", logging.Fields{
		"step":       step,
		"provider":   resp.Metadata.Provider,
		"model":      resp.Metadata.Model,
		"latency_ms": resp.Metadata.LatencyMs,
	})
	return &SectionResult[T]{Section: section, Raw: raw, Response: resp}, nil
}

func (o *Orchestrator) stepFailed(step blueprint.SectionName, err error) *StepError {
	code := "unknown"
	var gerr *types.GenerationError
	if errors.As(err, &gerr) {
		code = gerr.Code
	}
	o.collector.StepFailures.WithLabelValues(string(step), code).Inc()
	return &StepError{Step: step, Err: err}
}

// withVar returns a copy of vars with key set.
func withVar(vars prompts.Vars, key string, value interface{}) prompts.Vars {
	out := make(prompts.Vars, len(vars)+1)
	for k, v := range vars {
		out[k] = v
	}
	out[key] = value
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
