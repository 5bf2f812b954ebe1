package backendtypes

import (
	"github.com/desenyon/infiniteidea-sub000/pkg/blueprint"
	"github.com/desenyon/infiniteidea-sub000/pkg/types"
)

// GenerateRequest is a single raw generation routed through the dispatcher.
type GenerateRequest struct {
	Provider     string            `json:"provider,omitempty"`
	Model        string            `json:"model,omitempty"`
	Prompt       string            `json:"prompt"`
	SystemPrompt string            `json:"systemPrompt,omitempty"`
	Temperature  *float64          `json:"temperature,omitempty"`
	MaxTokens    *int              `json:"maxTokens,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// GenerationRequest converts the body into a dispatcher request.
func (r GenerateRequest) GenerationRequest(stream bool) types.GenerationRequest {
	return types.GenerationRequest{
		Provider:     r.Provider,
		Model:        r.Model,
		Prompt:       r.Prompt,
		SystemPrompt: r.SystemPrompt,
		Temperature:  r.Temperature,
		MaxTokens:    r.MaxTokens,
		Stream:       stream,
		Metadata:     r.Metadata,
	}
}

// BlueprintRequest asks for a complete blueprint.
type BlueprintRequest struct {
	Idea        blueprint.ProcessedIdea         `json:"idea"`
	Preferences blueprint.GenerationPreferences `json:"preferences"`
}

// RegenerateRequest asks for one section to be rewritten.
type RegenerateRequest struct {
	Blueprint *blueprint.Blueprint  `json:"blueprint"`
	Section   blueprint.SectionName `json:"section"`
	Feedback  string                `json:"feedback,omitempty"`
}

// OptimizeRequest asks for a whole blueprint to be reworked.
type OptimizeRequest struct {
	Blueprint *blueprint.Blueprint           `json:"blueprint"`
	Criteria  blueprint.OptimizationCriteria `json:"criteria"`
}

// ValidateRequest scores a blueprint without calling any provider.
type ValidateRequest struct {
	Blueprint *blueprint.Blueprint `json:"blueprint"`
}
