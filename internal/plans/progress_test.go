package plans

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgress(t *testing.T) {
	plan := testPlan("2026-08-24")
	plan.Benchmarks = map[string]int{"strength": 3, "cardio run": 2}
	plan.Days[0].Types["strength"] = true
	plan.Days[2].Types["strength"] = true
	plan.Days[2].Types["cardio run"] = true
	plan.Days[4].Types["cardio run"] = true

	report := Progress(plan)

	assert.Equal(t, "2026-08-24", report.WeekOfISO)
	require.Len(t, report.Types, 2)
	assert.Equal(t, TypeProgress{
		Type: "strength", Category: CategoryResistance, Goal: 3, Done: 2,
	}, report.Types[0])
	assert.Equal(t, TypeProgress{
		Type: "cardio run", Category: CategoryCardio, Goal: 2, Done: 2,
	}, report.Types[1])
}

func TestProgress_categoryCountsDaysNotChecks(t *testing.T) {
	plan := testPlan("2026-08-24")
	plan.CustomTypes = append(plan.CustomTypes, "deadlifts")
	plan.TypeCategories["deadlifts"] = CategoryResistance

	// two resistance types checked on the same day count that day once
	plan.Days[0].Types["strength"] = true
	plan.Days[0].Types["deadlifts"] = true
	plan.Days[3].Types["strength"] = true
	plan.Days[5].Types["cardio run"] = true

	report := Progress(plan)

	require.Len(t, report.Categories, 2)
	assert.Equal(t, CategoryProgress{Category: CategoryCardio, Done: 1}, report.Categories[0])
	assert.Equal(t, CategoryProgress{Category: CategoryResistance, Done: 2}, report.Categories[1])
}

func TestProgress_uncategorizedTypesHaveNoCategoryRow(t *testing.T) {
	plan := NewDefaultPlan("2026-08-24")
	plan.CustomTypes = []string{"mystery"}
	plan.Days[0].Types["mystery"] = true

	report := Progress(plan)

	require.Len(t, report.Types, 1)
	assert.Equal(t, 1, report.Types[0].Done)
	assert.Empty(t, report.Categories)
}
