package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/house-points-api/internal/models"
	"github.com/noah-isme/house-points-api/pkg/timeutil"
)

var insightToday = time.Date(2024, 3, 20, 15, 30, 0, 0, time.UTC)

func strPtr(v string) *string { return &v }

func demerit(daysAgo int, category string) models.BehaviorEvent {
	return models.BehaviorEvent{
		StudentID: "s-1",
		Kind:      models.BehaviorDemerit,
		EventDate: timeutil.AddDays(timeutil.StartOfDay(insightToday), -daysAgo),
		Category:  category,
		Points:    -5,
	}
}

func merit(daysAgo int, category string, points int) models.BehaviorEvent {
	return models.BehaviorEvent{
		StudentID: "s-1",
		Kind:      models.BehaviorMerit,
		EventDate: timeutil.AddDays(timeutil.StartOfDay(insightToday), -daysAgo),
		Category:  category,
		Points:    points,
	}
}

func TestComputeInsightsStrengthMismatch(t *testing.T) {
	events := []models.BehaviorEvent{
		merit(25, "Leadership", 10),
		demerit(24, "Disruption"),
	}

	result := ComputeInsights(models.DefaultPolicy().Insights, "s-1", events, insightToday)

	month, ok := result.Window(models.InsightWindow30d)
	require.True(t, ok)
	assert.True(t, month.HasStrengthMismatch)
	assert.Equal(t, InterpretationStrengthMismatch, month.Interpretation)
	assert.Equal(t, 10, month.MeritPoints)
	assert.Equal(t, 5, month.DemeritPoints)
	assert.Equal(t, 5, month.NetScore)

	week, ok := result.Window(models.InsightWindow7d)
	require.True(t, ok)
	assert.False(t, week.HasStrengthMismatch)
	assert.Equal(t, InterpretationNone, week.Interpretation)

	var kinds []models.PatternType
	for _, p := range result.Patterns {
		kinds = append(kinds, p.PatternType)
	}
	assert.Contains(t, kinds, models.PatternStrengthMismatch)
}

func TestComputeInsightsEscalatingBuckets(t *testing.T) {
	var events []models.BehaviorEvent
	for i := 0; i < 5; i++ {
		events = append(events, demerit(i%7, "talking"))
	}
	for i := 0; i < 3; i++ {
		events = append(events, demerit(7+i, "lateness"))
	}
	events = append(events, demerit(15, "lateness"))

	result := ComputeInsights(models.DefaultPolicy().Insights, "s-1", events, insightToday)

	assert.Equal(t, models.WeeklyDemerits{5, 3, 1, 0}, result.Weekly)
	for _, wi := range result.Windows {
		assert.True(t, wi.Escalation)
		assert.Equal(t, models.TrendDeclining, wi.Trend)
		assert.Equal(t, models.RiskRed, wi.RiskLevel)
	}
	week, _ := result.Window(models.InsightWindow7d)
	assert.True(t, week.EarlyConcern)
	assert.Equal(t, InterpretationEscalating, week.Interpretation)

	require.Len(t, result.Patterns, 2)
	assert.Equal(t, models.PatternEarlyConcern, result.Patterns[0].PatternType)
	assert.Equal(t, 0.8, result.Patterns[0].Confidence)
	assert.Equal(t, models.PatternEscalation, result.Patterns[1].PatternType)
	assert.Equal(t, 0.9, result.Patterns[1].Confidence)
}

func TestComputeInsightsImprovingTrend(t *testing.T) {
	events := []models.BehaviorEvent{
		demerit(8, "talking"),
		demerit(15, "talking"), demerit(16, "talking"),
	}
	result := ComputeInsights(models.DefaultPolicy().Insights, "s-1", events, insightToday)

	assert.Equal(t, models.WeeklyDemerits{0, 1, 2, 0}, result.Weekly)
	month, _ := result.Window(models.InsightWindow30d)
	assert.Equal(t, models.TrendImproving, month.Trend)
	assert.Equal(t, models.RiskGreen, month.RiskLevel)
}

func TestComputeInsightsRiskDerivation(t *testing.T) {
	cases := []struct {
		name   string
		events []models.BehaviorEvent
		risk   models.RiskLevel
	}{
		{name: "none", events: nil, risk: models.RiskGreen},
		{name: "early concern only", events: []models.BehaviorEvent{demerit(0, "a"), demerit(1, "b"), demerit(2, "c")}, risk: models.RiskYellow},
		{name: "two demerits", events: []models.BehaviorEvent{demerit(0, "a"), demerit(1, "b")}, risk: models.RiskGreen},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := ComputeInsights(models.DefaultPolicy().Insights, "s-1", tc.events, insightToday)
			week, _ := result.Window(models.InsightWindow7d)
			assert.Equal(t, tc.risk, week.RiskLevel)
			if week.EarlyConcern && !week.Escalation {
				assert.Equal(t, models.RiskYellow, week.RiskLevel)
			}
		})
	}
}

func TestComputeInsightsWindowContainment(t *testing.T) {
	var events []models.BehaviorEvent
	for _, d := range []int{0, 3, 6, 7, 12, 20, 29, 30, 45, -1} {
		events = append(events, demerit(d, "talking"))
	}
	events = append(events, merit(6, "kindness", 2), merit(10, "kindness", 2))

	result := ComputeInsights(models.DefaultPolicy().Insights, "s-1", events, insightToday)
	week, _ := result.Window(models.InsightWindow7d)
	month, _ := result.Window(models.InsightWindow30d)

	assert.Equal(t, 3, week.DemeritCount)
	assert.Equal(t, 7, month.DemeritCount)
	assert.LessOrEqual(t, week.DemeritCount, month.DemeritCount)
	assert.Equal(t, 1, week.MeritCount)
	assert.Equal(t, 2, month.MeritCount)
}

func TestComputeInsightsTruncatesToday(t *testing.T) {
	late := time.Date(2024, 3, 20, 23, 59, 0, 0, time.UTC)
	event := demerit(0, "talking")
	event.EventDate = time.Date(2024, 3, 13, 23, 0, 0, 0, time.UTC)

	result := ComputeInsights(models.DefaultPolicy().Insights, "s-1", []models.BehaviorEvent{event}, late)

	assert.Equal(t, timeutil.StartOfDay(late), result.Today)
	week, _ := result.Window(models.InsightWindow7d)
	assert.Zero(t, week.DemeritCount)
	assert.Equal(t, 1, result.Weekly[1])
}

func TestContextIsolation(t *testing.T) {
	withContext := func(class, staff string) models.BehaviorEvent {
		e := demerit(1, "talking")
		if class != "" {
			e.ClassContext = strPtr(class)
		}
		if staff != "" {
			e.StaffID = strPtr(staff)
		}
		return e
	}

	t.Run("class concentration", func(t *testing.T) {
		iso := contextIsolation([]models.BehaviorEvent{
			withContext("7B Maths", "t-1"),
			withContext("7B Maths", "t-2"),
			withContext("7B Maths", "t-3"),
			withContext("7C Art", "t-4"),
		}, 0.6)
		require.NotNil(t, iso)
		assert.Equal(t, models.IsolationClass, iso.Dimension)
		assert.Equal(t, "7B Maths", iso.Value)
		assert.Equal(t, 0.75, iso.Share)
	})

	t.Run("staff wins when larger", func(t *testing.T) {
		iso := contextIsolation([]models.BehaviorEvent{
			withContext("a", "t-1"),
			withContext("a", "t-1"),
			withContext("a", "t-1"),
			withContext("b", "t-1"),
			withContext("c", "t-1"),
		}, 0.6)
		require.NotNil(t, iso)
		assert.Equal(t, models.IsolationStaff, iso.Dimension)
		assert.Equal(t, 1.0, iso.Share)
	})

	t.Run("below threshold", func(t *testing.T) {
		iso := contextIsolation([]models.BehaviorEvent{
			withContext("a", ""),
			withContext("b", ""),
			withContext("c", ""),
		}, 0.6)
		assert.Nil(t, iso)
	})

	assert.Nil(t, contextIsolation(nil, 0.6))
}

func TestMatchesAnyUsesSubcategory(t *testing.T) {
	e := merit(1, "Citizenship", 3)
	e.Subcategory = strPtr("Showed RESPONSIBILITY for the class pet")
	assert.True(t, matchesAny([]models.BehaviorEvent{e}, []string{"leadership", "responsibility"}))
	assert.False(t, matchesAny([]models.BehaviorEvent{merit(1, "Kindness", 1)}, []string{"leadership"}))
}

func TestSnapshotsFromResult(t *testing.T) {
	result := ComputeInsights(models.DefaultPolicy().Insights, "s-1", []models.BehaviorEvent{demerit(1, "talking")}, insightToday)
	computedAt := time.Date(2024, 3, 20, 16, 0, 0, 0, time.UTC)

	snapshots := snapshotsFromResult(result, computedAt)
	require.Len(t, snapshots, 2)
	assert.Equal(t, models.InsightWindow7d, snapshots[0].TimeWindow)
	assert.Equal(t, models.InsightWindow30d, snapshots[1].TimeWindow)
	require.NotNil(t, snapshots[0].PrimaryIssue)
	assert.Equal(t, "talking", *snapshots[0].PrimaryIssue)
	assert.Equal(t, computedAt, snapshots[1].ComputedAt)
}
