// Package blueprint defines the five-section product blueprint, the inputs
// it is generated from, and the parsing and rule-based scoring applied to
// generated sections.
package blueprint

import (
	"encoding/json"
	"fmt"
	"time"
)

// SectionName identifies one of the five blueprint sections.
type SectionName string

const (
	SectionProductPlan    SectionName = "productPlan"
	SectionTechStack      SectionName = "techStack"
	SectionAIWorkflow     SectionName = "aiWorkflow"
	SectionRoadmap        SectionName = "roadmap"
	SectionFinancialModel SectionName = "financialModel"
)

// Sections lists every section in generation order.
var Sections = []SectionName{
	SectionProductPlan,
	SectionTechStack,
	SectionAIWorkflow,
	SectionRoadmap,
	SectionFinancialModel,
}

// ParseSectionName accepts the camelCase section id.
func ParseSectionName(s string) (SectionName, error) {
	for _, name := range Sections {
		if string(name) == s {
			return name, nil
		}
	}
	return "", fmt.Errorf("unknown blueprint section %q", s)
}

// Blueprint is only assembled once all five sections were generated.
type Blueprint struct {
	ProductPlan    ProductPlan    `json:"productPlan"`
	TechStack      TechStack      `json:"techStack"`
	AIWorkflow     AIWorkflow     `json:"aiWorkflow"`
	Roadmap        Roadmap        `json:"roadmap"`
	FinancialModel FinancialModel `json:"financialModel"`
	GeneratedAt    time.Time      `json:"generatedAt"`
}

// Section returns a pointer to the named section.
func (b *Blueprint) Section(name SectionName) (interface{}, error) {
	switch name {
	case SectionProductPlan:
		return &b.ProductPlan, nil
	case SectionTechStack:
		return &b.TechStack, nil
	case SectionAIWorkflow:
		return &b.AIWorkflow, nil
	case SectionRoadmap:
		return &b.Roadmap, nil
	case SectionFinancialModel:
		return &b.FinancialModel, nil
	}
	return nil, fmt.Errorf("unknown blueprint section %q", name)
}

// SectionJSON marshals the named section.
func (b *Blueprint) SectionJSON(name SectionName) (json.RawMessage, error) {
	section, err := b.Section(name)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(section)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	return data, nil
}

// Product plan

type ProductPlan struct {
	ProductName           string         `json:"productName"`
	Tagline               string         `json:"tagline,omitempty"`
	ProblemStatement      string         `json:"problemStatement,omitempty"`
	TargetAudience        TargetAudience `json:"targetAudience"`
	ValueProposition      string         `json:"valueProposition"`
	CoreFeatures          []Feature      `json:"coreFeatures"`
	SuccessMetrics        []string       `json:"successMetrics"`
	CompetitiveAdvantages []string       `json:"competitiveAdvantages,omitempty"`
	Monetization          Monetization   `json:"monetization"`
}

type TargetAudience struct {
	Primary    string   `json:"primary"`
	Secondary  []string `json:"secondary,omitempty"`
	PainPoints []string `json:"painPoints,omitempty"`
}

type Feature struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Priority    string `json:"priority,omitempty"`
}

type Monetization struct {
	Model        string        `json:"model"`
	PricingTiers []PricingTier `json:"pricingTiers,omitempty"`
}

type PricingTier struct {
	Name     string   `json:"name"`
	Price    float64  `json:"price"`
	Features []string `json:"features,omitempty"`
}

// Tech stack

type TechStack struct {
	Frontend           FrontendStack  `json:"frontend"`
	Backend            BackendStack   `json:"backend"`
	Database           DatabaseStack  `json:"database"`
	Infrastructure     Infrastructure `json:"infrastructure"`
	AIServices         []AIService    `json:"aiServices"`
	ThirdPartyServices []string       `json:"thirdPartyServices,omitempty"`
	Rationale          string         `json:"rationale"`
}

type FrontendStack struct {
	Framework string   `json:"framework"`
	Language  string   `json:"language,omitempty"`
	Libraries []string `json:"libraries,omitempty"`
}

type BackendStack struct {
	Framework string `json:"framework"`
	Language  string `json:"language"`
	Runtime   string `json:"runtime,omitempty"`
}

type DatabaseStack struct {
	Primary string `json:"primary"`
	Cache   string `json:"cache,omitempty"`
}

type Infrastructure struct {
	Hosting    string `json:"hosting"`
	CI         string `json:"ci,omitempty"`
	Monitoring string `json:"monitoring,omitempty"`
}

type AIService struct {
	Name     string `json:"name"`
	Provider string `json:"provider,omitempty"`
	Purpose  string `json:"purpose,omitempty"`
}

// AI workflow

type AIWorkflow struct {
	Modules      []AIModule     `json:"modules"`
	Pipeline     []PipelineStep `json:"pipeline"`
	Integrations []string       `json:"integrations,omitempty"`
	Guardrails   []string       `json:"guardrails"`
}

type AIModule struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Inputs      []string `json:"inputs,omitempty"`
	Outputs     []string `json:"outputs,omitempty"`
	Model       string   `json:"model,omitempty"`
}

type PipelineStep struct {
	Step      int      `json:"step"`
	Module    string   `json:"module"`
	DependsOn []string `json:"dependsOn,omitempty"`
}

// Roadmap

type Roadmap struct {
	Phases             []Phase           `json:"phases"`
	TotalDurationWeeks int               `json:"totalDurationWeeks"`
	TeamRequirements   []TeamRequirement `json:"teamRequirements"`
	Risks              []Risk            `json:"risks"`
}

type Phase struct {
	Name          string   `json:"name"`
	DurationWeeks int      `json:"durationWeeks"`
	Milestones    []string `json:"milestones"`
	Deliverables  []string `json:"deliverables,omitempty"`
}

type TeamRequirement struct {
	Role  string `json:"role"`
	Count int    `json:"count"`
}

type Risk struct {
	Description string `json:"description"`
	Mitigation  string `json:"mitigation"`
}

// Financial model

type FinancialModel struct {
	StartupCosts          CostBreakdown       `json:"startupCosts"`
	MonthlyOperatingCosts CostBreakdown       `json:"monthlyOperatingCosts"`
	RevenueProjections    []RevenueProjection `json:"revenueProjections"`
	PricingStrategy       string              `json:"pricingStrategy"`
	BreakEvenMonths       int                 `json:"breakEvenMonths"`
	FundingRequired       float64             `json:"fundingRequired"`
}

type CostBreakdown struct {
	Items []CostItem `json:"items"`
	Total float64    `json:"total"`
}

type CostItem struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

type RevenueProjection struct {
	Period  string  `json:"period"`
	Revenue float64 `json:"revenue"`
	Users   int     `json:"users,omitempty"`
}
