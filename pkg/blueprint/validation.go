package blueprint

import (
	"fmt"
	"math"
	"strings"
)

// Severity of a validation issue. Only errors affect validity.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one rule violation found by a section scorer.
type Issue struct {
	Section  SectionName `json:"section"`
	Field    string      `json:"field"`
	Severity Severity    `json:"severity"`
	Message  string      `json:"message"`
	Penalty  int         `json:"penalty"`
}

// ValidationResult is recomputed on demand and never stored.
type ValidationResult struct {
	IsValid       bool                `json:"isValid"`
	Score         int                 `json:"score"`
	SectionScores map[SectionName]int `json:"sectionScores"`
	Issues        []Issue             `json:"issues"`
	Suggestions   []string            `json:"suggestions"`
}

// Warnings returns the messages of warning-severity issues.
func (r ValidationResult) Warnings() []string {
	var out []string
	for _, issue := range r.Issues {
		if issue.Severity == SeverityWarning {
			out = append(out, issue.Message)
		}
	}
	return out
}

// Errors returns the error-severity issues.
func (r ValidationResult) Errors() []Issue {
	var out []Issue
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			out = append(out, issue)
		}
	}
	return out
}

// SectionScore is the outcome of one section scorer. Score starts at 100
// and each failed rule subtracts its penalty, clamped at zero.
type SectionScore struct {
	Section     SectionName `json:"section"`
	Score       int         `json:"score"`
	Issues      []Issue     `json:"issues"`
	Suggestions []string    `json:"suggestions"`
}

func newScorer(section SectionName) *SectionScore {
	return &SectionScore{Section: section, Score: 100}
}

func (s *SectionScore) check(failed bool, field string, severity Severity, penalty int, msg string) {
	if !failed {
		return
	}
	s.Score -= penalty
	if s.Score < 0 {
		s.Score = 0
	}
	s.Issues = append(s.Issues, Issue{
		Section:  s.Section,
		Field:    field,
		Severity: severity,
		Message:  msg,
		Penalty:  penalty,
	})
}

func (s *SectionScore) suggest(when bool, msg string) {
	if when {
		s.Suggestions = append(s.Suggestions, msg)
	}
}

func blank(v string) bool { return strings.TrimSpace(v) == "" }

// Validate scores every section independently. The overall score is the
// rounded unweighted mean of the five section scores, and the blueprint is
// valid iff no issue has error severity. A nil blueprint scores 0 and is
// invalid.
func Validate(bp *Blueprint) ValidationResult {
	if bp == nil {
		return ValidationResult{
			SectionScores: map[SectionName]int{},
			Issues: []Issue{{
				Field:    "blueprint",
				Severity: SeverityError,
				Message:  "Blueprint is missing",
				Penalty:  100,
			}},
			Suggestions: []string{},
		}
	}

	scorers := []*SectionScore{
		ScoreProductPlan(bp.ProductPlan),
		ScoreTechStack(bp.TechStack),
		ScoreAIWorkflow(bp.AIWorkflow),
		ScoreRoadmap(bp.Roadmap),
		ScoreFinancialModel(bp.FinancialModel),
	}

	result := ValidationResult{
		IsValid:       true,
		SectionScores: make(map[SectionName]int, len(scorers)),
		Issues:        []Issue{},
		Suggestions:   []string{},
	}

	total := 0
	for _, s := range scorers {
		result.SectionScores[s.Section] = s.Score
		total += s.Score
		result.Issues = append(result.Issues, s.Issues...)
		result.Suggestions = append(result.Suggestions, s.Suggestions...)
	}
	for _, issue := range result.Issues {
		if issue.Severity == SeverityError {
			result.IsValid = false
			break
		}
	}
	result.Score = int(math.Round(float64(total) / float64(len(scorers))))
	return result
}

// ScoreProductPlan applies the product plan rules.
func ScoreProductPlan(p ProductPlan) *SectionScore {
	s := newScorer(SectionProductPlan)
	s.check(blank(p.ProductName), "productName", SeverityError, 15, "Product name is missing")
	s.check(blank(p.TargetAudience.Primary), "targetAudience.primary", SeverityError, 20, "Primary target audience is not defined")
	s.check(len(p.CoreFeatures) == 0, "coreFeatures", SeverityError, 30, "No core features defined")
	s.check(blank(p.ValueProposition), "valueProposition", SeverityWarning, 10, "Value proposition is missing")
	s.check(blank(p.Monetization.Model), "monetization.model", SeverityWarning, 10, "No monetization model specified")
	s.check(len(p.SuccessMetrics) == 0, "successMetrics", SeverityWarning, 5, "No success metrics defined")

	s.suggest(len(p.CoreFeatures) > 0 && len(p.CoreFeatures) < 3, "Consider defining at least three core features")
	s.suggest(len(p.TargetAudience.PainPoints) == 0, "List the target audience's pain points to sharpen positioning")
	s.suggest(len(p.CompetitiveAdvantages) == 0, "Describe competitive advantages over existing solutions")
	return s
}

// ScoreTechStack applies the technology stack rules.
func ScoreTechStack(t TechStack) *SectionScore {
	s := newScorer(SectionTechStack)
	s.check(blank(t.Frontend.Framework), "frontend.framework", SeverityError, 15, "Frontend framework is not specified")
	s.check(blank(t.Backend.Framework) && blank(t.Backend.Language), "backend", SeverityError, 20, "Backend framework or language is not specified")
	s.check(blank(t.Database.Primary), "database.primary", SeverityError, 15, "Primary database is not specified")
	s.check(blank(t.Infrastructure.Hosting), "infrastructure.hosting", SeverityWarning, 10, "Hosting platform is not specified")
	s.check(len(t.AIServices) == 0, "aiServices", SeverityWarning, 10, "No AI services listed")
	s.check(blank(t.Rationale), "rationale", SeverityWarning, 5, "No rationale given for the stack")

	s.suggest(blank(t.Infrastructure.Monitoring), "Add a monitoring solution to the infrastructure")
	s.suggest(blank(t.Database.Cache), "Consider a cache layer for frequently read data")
	return s
}

// ScoreAIWorkflow applies the AI workflow rules, including that every
// pipeline step refers to a declared module.
func ScoreAIWorkflow(w AIWorkflow) *SectionScore {
	s := newScorer(SectionAIWorkflow)
	s.check(len(w.Modules) == 0, "modules", SeverityError, 40, "No AI modules defined")
	s.check(len(w.Pipeline) == 0, "pipeline", SeverityWarning, 15, "No pipeline defined for the AI modules")
	s.check(len(w.Guardrails) == 0, "guardrails", SeverityWarning, 10, "No guardrails defined for AI output")

	modules := make(map[string]bool, len(w.Modules))
	for _, m := range w.Modules {
		modules[m.Name] = true
	}
	var unknown []string
	for _, step := range w.Pipeline {
		if !modules[step.Module] {
			unknown = append(unknown, step.Module)
		}
	}
	s.check(len(unknown) > 0 && len(w.Modules) > 0, "pipeline", SeverityWarning, 10,
		fmt.Sprintf("Pipeline refers to undefined modules: %s", strings.Join(unknown, ", ")))

	s.suggest(len(w.Integrations) == 0, "List the integrations the AI workflow depends on")
	return s
}

// ScoreRoadmap applies the roadmap rules.
func ScoreRoadmap(r Roadmap) *SectionScore {
	s := newScorer(SectionRoadmap)
	s.check(len(r.Phases) == 0, "phases", SeverityError, 40, "No roadmap phases defined")
	s.check(r.TotalDurationWeeks <= 0, "totalDurationWeeks", SeverityWarning, 10, "Total duration is not specified")
	s.check(len(r.TeamRequirements) == 0, "teamRequirements", SeverityWarning, 10, "No team requirements defined")
	s.check(len(r.Risks) == 0, "risks", SeverityWarning, 10, "No risks identified")

	missingMilestones := 0
	sum := 0
	for _, phase := range r.Phases {
		if len(phase.Milestones) == 0 {
			missingMilestones++
		}
		sum += phase.DurationWeeks
	}
	s.check(missingMilestones > 0, "phases.milestones", SeverityWarning, 5,
		fmt.Sprintf("%d phase(s) have no milestones", missingMilestones))
	s.suggest(r.TotalDurationWeeks > 0 && sum > 0 && sum != r.TotalDurationWeeks,
		fmt.Sprintf("Phase durations add up to %d weeks but the total is %d", sum, r.TotalDurationWeeks))
	return s
}

// ScoreFinancialModel applies the financial model rules.
func ScoreFinancialModel(f FinancialModel) *SectionScore {
	s := newScorer(SectionFinancialModel)
	s.check(f.StartupCosts.Total <= 0 && len(f.StartupCosts.Items) == 0, "startupCosts", SeverityError, 20, "Startup costs are not estimated")
	s.check(f.MonthlyOperatingCosts.Total <= 0 && len(f.MonthlyOperatingCosts.Items) == 0, "monthlyOperatingCosts", SeverityError, 20, "Monthly operating costs are not estimated")
	s.check(len(f.RevenueProjections) == 0, "revenueProjections", SeverityWarning, 15, "No revenue projections provided")
	s.check(blank(f.PricingStrategy), "pricingStrategy", SeverityWarning, 10, "Pricing strategy is missing")
	s.check(f.BreakEvenMonths <= 0, "breakEvenMonths", SeverityWarning, 5, "Break-even point is not estimated")

	s.suggest(!sumsTo(f.StartupCosts), "Startup cost items do not add up to the stated total")
	s.suggest(!sumsTo(f.MonthlyOperatingCosts), "Monthly cost items do not add up to the stated total")
	return s
}

// sumsTo reports whether the items match the total within one percent.
// Breakdowns with no items or no total are not compared.
func sumsTo(b CostBreakdown) bool {
	if len(b.Items) == 0 || b.Total <= 0 {
		return true
	}
	sum := 0.0
	for _, item := range b.Items {
		sum += item.Amount
	}
	return math.Abs(sum-b.Total) <= b.Total*0.01
}
