package orchestrator

import (
	"sort"

	"github.com/desenyon/infiniteidea-sub000/pkg/blueprint"
)

// TaskCategory groups prompts by the kind of reasoning they need.
type TaskCategory string

const (
	CategoryProductPlanning       TaskCategory = "product_planning"
	CategoryTechnicalArchitecture TaskCategory = "technical_architecture"
	CategoryAIDesign              TaskCategory = "ai_design"
	CategoryProjectPlanning       TaskCategory = "project_planning"
	CategoryFinancialAnalysis     TaskCategory = "financial_analysis"
	CategoryRefinement            TaskCategory = "refinement"
)

var sectionCategories = map[blueprint.SectionName]TaskCategory{
	blueprint.SectionProductPlan:    CategoryProductPlanning,
	blueprint.SectionTechStack:      CategoryTechnicalArchitecture,
	blueprint.SectionAIWorkflow:     CategoryAIDesign,
	blueprint.SectionRoadmap:        CategoryProjectPlanning,
	blueprint.SectionFinancialModel: CategoryFinancialAnalysis,
}

// Selection names the provider and model for one request. An empty Model
// means the provider's default.
type Selection struct {
	Provider string `json:"provider" mapstructure:"provider"`
	Model    string `json:"model,omitempty" mapstructure:"model"`
}

// ModelSelector chooses a provider/model for a task.
type ModelSelector interface {
	Select(category TaskCategory, priority blueprint.Priority) Selection
}

// SelectionRule maps a category and priority to a selection. An empty
// Category or Priority matches any value.
type SelectionRule struct {
	Category  TaskCategory       `json:"category,omitempty" mapstructure:"category"`
	Priority  blueprint.Priority `json:"priority,omitempty" mapstructure:"priority"`
	Selection `mapstructure:",squash"`
}

type ruleKey struct {
	category TaskCategory
	priority blueprint.Priority
}

// TableSelector resolves selections from a static rule table. Lookups try
// the exact pair, then the category alone, then the priority alone, then
// the fallback.
type TableSelector struct {
	rules    map[ruleKey]Selection
	fallback Selection
}

// NewTableSelector builds a selector. Later rules override earlier ones
// with the same key.
func NewTableSelector(fallback Selection, rules ...SelectionRule) *TableSelector {
	s := &TableSelector{
		rules:    make(map[ruleKey]Selection, len(rules)),
		fallback: fallback,
	}
	for _, r := range rules {
		s.rules[ruleKey{r.Category, r.Priority}] = r.Selection
	}
	return s
}

// Select implements ModelSelector.
func (s *TableSelector) Select(category TaskCategory, priority blueprint.Priority) Selection {
	for _, key := range []ruleKey{
		{category, priority},
		{category, ""},
		{"", priority},
	} {
		if sel, ok := s.rules[key]; ok {
			return sel
		}
	}
	return s.fallback
}

// Providers lists every provider the table can select, fallback included.
func (s *TableSelector) Providers() []string {
	seen := map[string]bool{s.fallback.Provider: true}
	out := []string{s.fallback.Provider}
	for _, sel := range s.rules {
		if !seen[sel.Provider] {
			seen[sel.Provider] = true
			out = append(out, sel.Provider)
		}
	}
	sort.Strings(out[1:])
	return out
}
