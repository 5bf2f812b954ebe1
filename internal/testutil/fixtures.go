package testutil

import (
	"fmt"
	"strings"
)

// Section replies a well-behaved model would return, keyed by section id.
// Every field the scorers check is populated.
var SectionFixtures = map[string]string{
	"productPlan": `{
		"productName": "MealMind",
		"tagline": "Dinner, decided.",
		"problemStatement": "Busy families waste time deciding what to cook.",
		"targetAudience": {
			"primary": "Working parents",
			"secondary": ["Students"],
			"painPoints": ["Decision fatigue", "Food waste"]
		},
		"valueProposition": "Personalised weekly meal plans from what is already in the fridge.",
		"coreFeatures": [
			{"name": "Pantry scan", "description": "Photograph the fridge to log ingredients", "priority": "high"},
			{"name": "Weekly planner", "description": "Generate a seven-day plan", "priority": "high"},
			{"name": "Shopping list", "description": "Aggregate missing ingredients", "priority": "medium"}
		],
		"successMetrics": ["Weekly active households", "Plans completed"],
		"competitiveAdvantages": ["Uses existing pantry stock"],
		"monetization": {
			"model": "freemium",
			"pricingTiers": [
				{"name": "Free", "price": 0, "features": ["3 plans per month"]},
				{"name": "Plus", "price": 6.99, "features": ["Unlimited plans"]}
			]
		}
	}`,
	"techStack": `{
		"frontend": {"framework": "React Native", "language": "TypeScript", "libraries": ["Expo"]},
		"backend": {"framework": "Gin", "language": "Go", "runtime": "Go 1.24"},
		"database": {"primary": "PostgreSQL", "cache": "Redis"},
		"infrastructure": {"hosting": "AWS", "ci": "GitHub Actions", "monitoring": "Prometheus"},
		"aiServices": [{"name": "Vision", "provider": "openai", "purpose": "Ingredient recognition"}],
		"thirdPartyServices": ["Stripe"],
		"rationale": "A typed mobile client and a small Go API keep the team lean."
	}`,
	"aiWorkflow": `{
		"modules": [
			{"name": "recognizer", "description": "Detect ingredients", "inputs": ["photo"], "outputs": ["ingredients"], "model": "gpt-4o"},
			{"name": "planner", "description": "Plan meals", "inputs": ["ingredients"], "outputs": ["plan"], "model": "claude-3-5-sonnet"}
		],
		"pipeline": [
			{"step": 1, "module": "recognizer"},
			{"step": 2, "module": "planner", "dependsOn": ["recognizer"]}
		],
		"integrations": ["Grocery delivery API"],
		"guardrails": ["Allergy filter"]
	}`,
	"roadmap": `{
		"phases": [
			{"name": "MVP", "durationWeeks": 8, "milestones": ["Pantry scan beta"], "deliverables": ["iOS app"]},
			{"name": "Launch", "durationWeeks": 4, "milestones": ["Public release"], "deliverables": ["Android app"]}
		],
		"totalDurationWeeks": 12,
		"teamRequirements": [{"role": "Mobile engineer", "count": 2}, {"role": "Backend engineer", "count": 1}],
		"risks": [{"description": "Recognition accuracy", "mitigation": "Manual correction UI"}]
	}`,
	"financialModel": `{
		"startupCosts": {"items": [{"name": "Development", "amount": 90000}, {"name": "Design", "amount": 10000}], "total": 100000},
		"monthlyOperatingCosts": {"items": [{"name": "Hosting", "amount": 1500}, {"name": "AI usage", "amount": 2500}], "total": 4000},
		"revenueProjections": [{"period": "Year 1", "revenue": 120000, "users": 5000}],
		"pricingStrategy": "Freemium with a low-cost Plus tier",
		"breakEvenMonths": 18,
		"fundingRequired": 150000
	}`,
}

// BlueprintJSON assembles the section fixtures into one blueprint document.
func BlueprintJSON() string {
	order := []string{"productPlan", "techStack", "aiWorkflow", "roadmap", "financialModel"}
	parts := make([]string, len(order))
	for i, name := range order {
		parts[i] = fmt.Sprintf("%q: %s", name, SectionFixtures[name])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Fenced wraps text in a markdown json code fence, as chat models often do.
func Fenced(text string) string {
	return "Here is the result:\n```json\n" + text + "\n```\n"
}
