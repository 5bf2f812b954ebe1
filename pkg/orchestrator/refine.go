package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/desenyon/infiniteidea-sub000/internal/logging"
	"github.com/desenyon/infiniteidea-sub000/pkg/blueprint"
	"github.com/desenyon/infiniteidea-sub000/pkg/prompts"
	"github.com/desenyon/infiniteidea-sub000/pkg/types"
)

const (
	regenerateTemplate = "regenerateSection"
	optimizeTemplate   = "optimizeBlueprint"
)

// RegenerateSection re-runs one section with the blueprint's other sections
// as context. Only that section is returned; the blueprint is neither
// modified nor revalidated.
func (o *Orchestrator) RegenerateSection(ctx context.Context, bp *blueprint.Blueprint, section blueprint.SectionName, feedback string) (*SectionResponse, error) {
	if bp == nil {
		return nil, types.NewInvalidRequestError("", "blueprint is required")
	}
	current, err := bp.SectionJSON(section)
	if err != nil {
		return nil, types.NewInvalidRequestError("", err.Error()).WithCause(err)
	}

	others := make(map[string]string, len(blueprint.Sections)-1)
	for _, name := range blueprint.Sections {
		if name == section {
			continue
		}
		raw, err := bp.SectionJSON(name)
		if err != nil {
			return nil, types.NewInvalidRequestError("", err.Error()).WithCause(err)
		}
		others[string(name)] = string(raw)
	}

	p, err := o.renderer.Render(regenerateTemplate, prompts.Vars{
		"Section":  string(section),
		"Current":  string(current),
		"Context":  others,
		"Feedback": feedback,
	})
	if err != nil {
		return nil, types.NewInvalidRequestError("", err.Error()).WithCause(err)
	}

	sel := o.selector.Select(sectionCategories[section], blueprint.PriorityQuality)
	resp, err := o.dispatcher.Dispatch(ctx, o.request(p, sel, "regenerate:"+string(section)))
	if err != nil {
		return nil, err
	}

	data, err := blueprint.ParseSection(section, resp.Data)
	if err != nil {
		return nil, withProvider(err, resp.Metadata.Provider)
	}

	o.logger.Info("section regenerated", logging.Fields{
		"section":  section,
		"provider": resp.Metadata.Provider,
		"feedback": feedback != "",
	})
	return &SectionResponse{Section: section, Data: data, Response: resp}, nil
}

// OptimizeBlueprint asks for a complete replacement blueprint shaped by
// criteria. The reply must decode into a blueprint; its sections are not
// scored.
func (o *Orchestrator) OptimizeBlueprint(ctx context.Context, bp *blueprint.Blueprint, criteria blueprint.OptimizationCriteria) (*OptimizationResult, error) {
	if bp == nil {
		return nil, types.NewInvalidRequestError("", "blueprint is required")
	}
	serialized, err := json.MarshalIndent(bp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize blueprint: %w", err)
	}

	p, err := o.renderer.Render(optimizeTemplate, prompts.Vars{
		"Blueprint": string(serialized),
		"Criteria":  criteria,
	})
	if err != nil {
		return nil, types.NewInvalidRequestError("", err.Error()).WithCause(err)
	}

	category := TaskCategory(p.Category)
	if category == "" {
		category = CategoryRefinement
	}
	sel := o.selector.Select(category, blueprint.PriorityQuality)
	resp, err := o.dispatcher.Dispatch(ctx, o.request(p, sel, "optimize"))
	if err != nil {
		return nil, err
	}

	optimized, err := blueprint.ParseBlueprint(resp.Data)
	if err != nil {
		return nil, withProvider(err, resp.Metadata.Provider)
	}
	optimized.GeneratedAt = o.now()

	o.logger.Info("blueprint optimized", logging.Fields{
		"focus":    criteria.Focus,
		"provider": resp.Metadata.Provider,
	})
	return &OptimizationResult{Blueprint: optimized, Response: resp}, nil
}

func withProvider(err error, provider string) error {
	if gerr, ok := err.(*types.GenerationError); ok {
		return gerr.WithProvider(provider)
	}
	return err
}
