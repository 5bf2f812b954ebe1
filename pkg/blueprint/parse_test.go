package blueprint_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desenyon/infiniteidea-sub000/internal/testutil"
	"github.com/desenyon/infiniteidea-sub000/pkg/blueprint"
	"github.com/desenyon/infiniteidea-sub000/pkg/types"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"Plain", `{"a":1}`, `{"a":1}`},
		{"Whitespace", "\n  {\"a\":1}  \n", `{"a":1}`},
		{"JSONFence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"BareFence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"Prose", "Sure! Here it is: {\"a\":{\"b\":2}} Hope this helps.", `{"a":{"b":2}}`},
		{"NoObject", "no json here", "no json here"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, blueprint.ExtractJSON(tt.input))
		})
	}
}

func TestDecodeSection(t *testing.T) {
	for _, name := range blueprint.Sections {
		t.Run(string(name), func(t *testing.T) {
			var bp blueprint.Blueprint
			target, err := bp.Section(name)
			require.NoError(t, err)

			raw, err := blueprint.DecodeSection(name, testutil.Fenced(testutil.SectionFixtures[string(name)]), target)
			require.NoError(t, err)
			assert.NotEmpty(t, raw)
		})
	}
}

func TestDecodeSection_ProductPlanFields(t *testing.T) {
	var plan blueprint.ProductPlan
	_, err := blueprint.DecodeSection(blueprint.SectionProductPlan, testutil.SectionFixtures["productPlan"], &plan)
	require.NoError(t, err)

	assert.Equal(t, "MealMind", plan.ProductName)
	assert.Equal(t, "Working parents", plan.TargetAudience.Primary)
	assert.Len(t, plan.CoreFeatures, 3)
	assert.Equal(t, "freemium", plan.Monetization.Model)
	assert.InDelta(t, 6.99, plan.Monetization.PricingTiers[1].Price, 1e-9)
}

func TestParseSection_Failures(t *testing.T) {
	tests := []struct {
		name    string
		section blueprint.SectionName
		text    string
	}{
		{"Empty", blueprint.SectionProductPlan, "   "},
		{"NotJSON", blueprint.SectionProductPlan, "I cannot help with that."},
		{"Truncated", blueprint.SectionTechStack, `{"frontend": {"framework": "React"`},
		{"EmptyObject", blueprint.SectionRoadmap, `{}`},
		{"WrongType", blueprint.SectionProductPlan, `{"productName": "X", "coreFeatures": "many"}`},
		{"NegativeWeeks", blueprint.SectionRoadmap, `{"phases": [], "totalDurationWeeks": -3}`},
		{"FeatureWithoutName", blueprint.SectionProductPlan, `{"coreFeatures": [{"description": "d"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := blueprint.ParseSection(tt.section, tt.text)
			require.Error(t, err)

			var gerr *types.GenerationError
			require.ErrorAs(t, err, &gerr)
			assert.Equal(t, types.CodeParseError, gerr.Code)
			assert.Equal(t, types.ErrTypeInvalidRequest, gerr.Type)
			assert.True(t, gerr.Retryable)
		})
	}
}

func TestParseBlueprint(t *testing.T) {
	bp, err := blueprint.ParseBlueprint(testutil.Fenced(testutil.BlueprintJSON()))
	require.NoError(t, err)
	assert.Equal(t, "MealMind", bp.ProductPlan.ProductName)
	assert.Equal(t, 12, bp.Roadmap.TotalDurationWeeks)

	_, err = blueprint.ParseBlueprint(`{"productPlan": {}}`)
	var gerr *types.GenerationError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, types.CodeParseError, gerr.Code)
}

func TestBlueprintSectionJSON(t *testing.T) {
	bp, err := blueprint.ParseBlueprint(testutil.BlueprintJSON())
	require.NoError(t, err)

	raw, err := bp.SectionJSON(blueprint.SectionTechStack)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"framework":"Gin"`)

	_, err = bp.SectionJSON("pricing")
	assert.Error(t, err)

	_, err = blueprint.ParseSectionName("pricing")
	assert.Error(t, err)
	name, err := blueprint.ParseSectionName("roadmap")
	require.NoError(t, err)
	assert.Equal(t, blueprint.SectionRoadmap, name)
}
