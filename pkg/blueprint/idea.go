package blueprint

import "fmt"

// Complexity is the idea processor's estimate of build effort.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// ProcessedIdea is a free-text product idea after upstream extraction.
type ProcessedIdea struct {
	OriginalText string     `json:"originalText"`
	Title        string     `json:"title"`
	Summary      string     `json:"summary"`
	Category     string     `json:"category"`
	Keywords     []string   `json:"keywords,omitempty"`
	TargetMarket string     `json:"targetMarket,omitempty"`
	Complexity   Complexity `json:"complexity,omitempty"`
}

// Validate checks the fields every prompt depends on.
func (p ProcessedIdea) Validate() error {
	if p.OriginalText == "" && p.Summary == "" {
		return fmt.Errorf("idea must have original text or a summary")
	}
	if p.Title == "" {
		return fmt.Errorf("idea title is required")
	}
	return nil
}

// Priority steers model selection.
type Priority string

const (
	PrioritySpeed   Priority = "speed"
	PriorityQuality Priority = "quality"
	PriorityCost    Priority = "cost"
)

// ParsePriority maps an empty string to PriorityQuality.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case "":
		return PriorityQuality, nil
	case PrioritySpeed, PriorityQuality, PriorityCost:
		return Priority(s), nil
	}
	return "", fmt.Errorf("unknown priority %q (want speed, quality or cost)", s)
}

// Budget bounds the financial model, in Currency units.
type Budget struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Currency string  `json:"currency,omitempty"`
}

// GenerationPreferences tune a blueprint run.
type GenerationPreferences struct {
	Priority   Priority `json:"priority,omitempty"`
	Budget     *Budget  `json:"budget,omitempty"`
	Timeline   string   `json:"timeline,omitempty"`
	FocusAreas []string `json:"focusAreas,omitempty"`
}

// OptimizationCriteria drive a whole-blueprint optimization pass.
type OptimizationCriteria struct {
	Focus       string   `json:"focus"`
	Constraints []string `json:"constraints,omitempty"`
	Priorities  []string `json:"priorities,omitempty"`
}
