package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/house-points-api/internal/models"
	"github.com/noah-isme/house-points-api/pkg/timeutil"
)

// Interpretation messages, in precedence order.
const (
	InterpretationStrengthMismatch = "Shows strengths in leadership or responsibility while struggling with disruption or talking. Channel those strengths into a structured role."
	InterpretationEscalating       = "Demerits have increased for two consecutive weeks. Intervention is recommended before the pattern settles."
	InterpretationEarlyConcern     = "Three or more demerits in the past week. A brief check-in is recommended."
	InterpretationNone             = "No concerning pattern detected."
)

// insightHorizonDays is the history a computation needs: the widest window and the four weekly buckets both fit.
const insightHorizonDays = 30

var insightWindows = []models.InsightWindow{models.InsightWindow7d, models.InsightWindow30d}

// ComputeInsights derives the per-window insights and the pattern set of one student.
// today is truncated to UTC midnight once; events dated after it are ignored.
func ComputeInsights(policy models.InsightPolicy, studentID string, events []models.BehaviorEvent, today time.Time) models.InsightResult {
	today = timeutil.StartOfDay(today)
	result := models.InsightResult{StudentID: studentID, Today: today}

	type datedEvent struct {
		event models.BehaviorEvent
		days  int
	}
	dated := make([]datedEvent, 0, len(events))
	for _, e := range events {
		if e.StudentID != "" && studentID != "" && e.StudentID != studentID {
			continue
		}
		d := timeutil.DaysAgo(today, e.EventDate)
		if d < 0 || d >= insightHorizonDays {
			continue
		}
		dated = append(dated, datedEvent{event: e, days: d})
		if e.Kind == models.BehaviorDemerit && d < 28 {
			result.Weekly[d/7]++
		}
	}

	escalation, trend := weeklyTrend(result.Weekly)

	for _, window := range insightWindows {
		var merits, demerits []models.BehaviorEvent
		for _, de := range dated {
			if de.days >= window.Days() {
				continue
			}
			if de.event.Kind == models.BehaviorMerit {
				merits = append(merits, de.event)
			} else if de.event.Kind == models.BehaviorDemerit {
				demerits = append(demerits, de.event)
			}
		}

		wi := models.WindowInsight{
			Window:       window,
			MeritCount:   len(merits),
			DemeritCount: len(demerits),
			MeritPoints:  sumPoints(merits),
			Trend:        trend,
			Escalation:   escalation,
		}
		wi.DemeritPoints = sumPoints(demerits)
		wi.NetScore = wi.MeritPoints - wi.DemeritPoints
		if window == models.InsightWindow7d {
			wi.EarlyConcern = len(demerits) >= policy.EarlyConcernDemerits
		}
		wi.RiskLevel = riskLevel(wi.Escalation, wi.EarlyConcern)
		wi.ContextIsolation = contextIsolation(demerits, policy.IsolationShare)
		wi.HasStrengthMismatch = matchesAny(merits, policy.StrengthKeywords) && matchesAny(demerits, policy.StruggleKeywords)
		wi.PrimaryIssue = primaryIssue(demerits)
		wi.Interpretation = interpretation(wi)
		result.Windows = append(result.Windows, wi)
	}

	result.Patterns = detectPatterns(policy, studentID, result, today)
	return result
}

// weeklyTrend compares the three most recent buckets, most recent first.
func weeklyTrend(w models.WeeklyDemerits) (bool, models.Trend) {
	switch {
	case w[0] > w[1] && w[1] > w[2]:
		return true, models.TrendDeclining
	case w[0] < w[1] && w[1] < w[2]:
		return false, models.TrendImproving
	default:
		return false, models.TrendStable
	}
}

func riskLevel(escalation, earlyConcern bool) models.RiskLevel {
	if escalation {
		return models.RiskRed
	}
	if earlyConcern {
		return models.RiskYellow
	}
	return models.RiskGreen
}

func interpretation(wi models.WindowInsight) string {
	switch {
	case wi.HasStrengthMismatch:
		return InterpretationStrengthMismatch
	case wi.Escalation:
		return InterpretationEscalating
	case wi.EarlyConcern:
		return InterpretationEarlyConcern
	default:
		return InterpretationNone
	}
}

// sumPoints adds point magnitudes so demerits recorded as negative values count the same as positive ones.
func sumPoints(events []models.BehaviorEvent) int {
	total := 0
	for _, e := range events {
		if e.Points < 0 {
			total -= e.Points
		} else {
			total += e.Points
		}
	}
	return total
}

// contextIsolation returns the class or staff value concentrating at least threshold of the demerits.
// When both dimensions qualify the larger share wins; class wins a tie.
func contextIsolation(demerits []models.BehaviorEvent, threshold float64) *models.ContextIsolation {
	if len(demerits) == 0 {
		return nil
	}
	byClass := map[string]int{}
	byStaff := map[string]int{}
	for _, e := range demerits {
		if e.ClassContext != nil && strings.TrimSpace(*e.ClassContext) != "" {
			byClass[*e.ClassContext]++
		}
		if e.StaffID != nil && strings.TrimSpace(*e.StaffID) != "" {
			byStaff[*e.StaffID]++
		}
	}
	var best *models.ContextIsolation
	for _, candidate := range []struct {
		dim    models.IsolationDimension
		counts map[string]int
	}{{models.IsolationClass, byClass}, {models.IsolationStaff, byStaff}} {
		value, count := mostFrequent(candidate.counts)
		if count == 0 {
			continue
		}
		share := float64(count) / float64(len(demerits))
		if share < threshold {
			continue
		}
		if best == nil || share > best.Share {
			best = &models.ContextIsolation{Dimension: candidate.dim, Value: value, Share: models.RoundTo(share, 2)}
		}
	}
	return best
}

// mostFrequent returns the key with the highest count, breaking ties alphabetically.
func mostFrequent(counts map[string]int) (string, int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	bestKey, bestCount := "", 0
	for _, k := range keys {
		if counts[k] > bestCount {
			bestKey, bestCount = k, counts[k]
		}
	}
	return bestKey, bestCount
}

func matchesAny(events []models.BehaviorEvent, keywords []string) bool {
	for _, e := range events {
		text := strings.ToLower(e.Category)
		if e.Subcategory != nil {
			text += " " + strings.ToLower(*e.Subcategory)
		}
		for _, kw := range keywords {
			if strings.Contains(text, strings.ToLower(kw)) {
				return true
			}
		}
	}
	return false
}

func primaryIssue(demerits []models.BehaviorEvent) *string {
	counts := map[string]int{}
	for _, e := range demerits {
		if e.Category != "" {
			counts[e.Category]++
		}
	}
	category, count := mostFrequent(counts)
	if count == 0 {
		return nil
	}
	return &category
}

func detectPatterns(policy models.InsightPolicy, studentID string, result models.InsightResult, today time.Time) []models.BehaviorPattern {
	var patterns []models.BehaviorPattern
	add := func(kind models.PatternType, description string, confidence float64) {
		patterns = append(patterns, models.BehaviorPattern{
			StudentID:   studentID,
			PatternType: kind,
			Description: description,
			Confidence:  confidence,
			DetectedAt:  today,
		})
	}

	week, _ := result.Window(models.InsightWindow7d)
	month, _ := result.Window(models.InsightWindow30d)

	if week.EarlyConcern {
		add(models.PatternEarlyConcern, fmt.Sprintf("%d demerits in the past 7 days", week.DemeritCount), policy.EarlyConcernConfidence)
	}
	if month.Escalation {
		w := result.Weekly
		add(models.PatternEscalation, fmt.Sprintf("Weekly demerits rising: %d, %d, %d (most recent first)", w[0], w[1], w[2]), policy.EscalationConfidence)
	}
	if iso := month.ContextIsolation; iso != nil {
		confidence := iso.Share
		if confidence > 1 {
			confidence = 1
		}
		add(models.PatternContextIsolation, fmt.Sprintf("%.0f%% of demerits share the same %s (%s)", iso.Share*100, iso.Dimension, iso.Value), confidence)
	}
	if month.HasStrengthMismatch {
		add(models.PatternStrengthMismatch, InterpretationStrengthMismatch, policy.StrengthMismatchConfidence)
	}
	return patterns
}

// snapshotsFromResult converts computed windows into persistable snapshots.
func snapshotsFromResult(result models.InsightResult, computedAt time.Time) []models.StudentInsightSnapshot {
	snapshots := make([]models.StudentInsightSnapshot, 0, len(result.Windows))
	for _, wi := range result.Windows {
		snapshots = append(snapshots, models.StudentInsightSnapshot{
			StudentID:      result.StudentID,
			TimeWindow:     wi.Window,
			MeritCount:     wi.MeritCount,
			DemeritCount:   wi.DemeritCount,
			MeritPoints:    wi.MeritPoints,
			DemeritPoints:  wi.DemeritPoints,
			NetScore:       wi.NetScore,
			Trend:          wi.Trend,
			RiskLevel:      wi.RiskLevel,
			PrimaryIssue:   wi.PrimaryIssue,
			Interpretation: wi.Interpretation,
			ComputedAt:     computedAt,
		})
	}
	return snapshots
}
