package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/house-points-api/internal/models"
	appErrors "github.com/noah-isme/house-points-api/pkg/errors"
	"github.com/noah-isme/house-points-api/pkg/timeutil"
)

// NotAvailable marks a comparison that has no baseline.
const NotAvailable = "N/A"

type digestStore interface {
	StaffParticipation(ctx context.Context, start, end time.Time, roles []models.UserRole) (int, int, error)
	PointEconomy(ctx context.Context, start, end time.Time) (models.PointEconomy, error)
	CategoryBalance(ctx context.Context, start, end time.Time) ([]models.CategoryCount, error)
	HouseDistribution(ctx context.Context, start, end time.Time) ([]models.HouseTotal, error)
	AlertSummary(ctx context.Context, window models.InsightWindow) (models.AlertSummary, error)
	StaffEventCounts(ctx context.Context, start, end time.Time) ([]int, error)
	LatestHealthScore(ctx context.Context) (*models.HealthScore, error)
	UpsertMonthlySnapshot(ctx context.Context, snapshot *models.MonthlySnapshot) error
	LatestSnapshotBefore(ctx context.Context, before time.Time) (*models.MonthlySnapshot, error)
}

type tierCounter interface {
	TierCounts(ctx context.Context, start, end time.Time) (models.InterventionSummary, error)
}

type templatedEmailer interface {
	SendTemplatedEmail(ctx context.Context, templateKey, recipient string, variables map[string]interface{}) (string, bool)
}

// DigestService composes weekly digests and quarterly reports.
type DigestService struct {
	repo     digestStore
	tiers    tierCounter
	notifier templatedEmailer
	cache    *CacheService
	policy   *models.Policy
	logger   *zap.Logger
	now      func() time.Time
}

// NewDigestService constructs the service.
func NewDigestService(repo digestStore, tiers tierCounter, notifier templatedEmailer, cache *CacheService, policy *models.Policy, logger *zap.Logger) *DigestService {
	if policy == nil {
		policy = models.DefaultPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DigestService{
		repo:     repo,
		tiers:    tiers,
		notifier: notifier,
		cache:    cache,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}
}

// ConsistencyScore rates how evenly staff award points, 100 meaning every participating
// staff member recorded the same number of events. It is 100 minus the coefficient of
// variation as a percentage, floored at 0.
func ConsistencyScore(perStaff []int) float64 {
	if len(perStaff) == 0 {
		return 0
	}
	total := 0
	for _, c := range perStaff {
		total += c
	}
	if total == 0 {
		return 0
	}
	mean := float64(total) / float64(len(perStaff))
	variance := 0.0
	for _, c := range perStaff {
		d := float64(c) - mean
		variance += d * d
	}
	cv := math.Sqrt(variance/float64(len(perStaff))) / mean
	return models.RoundTo(math.Max(0, 100-cv*100), 1)
}

// BuildWeeklyDigest turns the week's inputs into at most MaxInsights insights and MaxActions
// recommended actions. Health is passed through unchanged.
func BuildWeeklyDigest(policy models.DigestPolicy, in models.DigestInput, generatedAt time.Time) models.WeeklyDigest {
	var insights, actions []string

	switch {
	case in.ParticipationRate >= policy.ParticipationExcellent:
		insights = append(insights, fmt.Sprintf("Staff participation was excellent at %.0f%% this week.", in.ParticipationRate))
	case in.ParticipationRate < policy.ParticipationReminder:
		insights = append(insights, fmt.Sprintf("Staff participation dropped to %.0f%% this week.", in.ParticipationRate))
		actions = append(actions, "Send a reminder to staff who have not recorded any points this week.")
	default:
		insights = append(insights, fmt.Sprintf("Staff participation was %.0f%% this week.", in.ParticipationRate))
	}

	if in.Economy.MeritCount+in.Economy.DemeritCount > 0 {
		ratio := in.Economy.Ratio()
		switch {
		case in.Economy.DemeritCount == 0:
			insights = append(insights, fmt.Sprintf("%d merits and no demerits were issued this week.", in.Economy.MeritCount))
		case ratio < policy.HealthyRatioLow:
			insights = append(insights, fmt.Sprintf("The merit to demerit ratio fell to %.1f:1, below the healthy %.0f:1.", ratio, policy.HealthyRatioLow))
			actions = append(actions, "Encourage staff to recognise positive behaviour to rebalance the point economy.")
		case ratio > policy.HealthyRatioHigh:
			insights = append(insights, fmt.Sprintf("The merit to demerit ratio is %.1f:1, above the usual range.", ratio))
		default:
			insights = append(insights, fmt.Sprintf("The merit to demerit ratio of %.1f:1 is in the healthy range.", ratio))
		}
	}

	if top, share, ok := dominantCategory(in.Categories); ok && share >= policy.CategoryDominance {
		insights = append(insights, fmt.Sprintf("%q accounts for %.0f%% of merits awarded.", top, share))
		actions = append(actions, fmt.Sprintf("Promote recognition in categories other than %q.", top))
	}

	if len(in.Houses) >= 2 {
		houses := append([]models.HouseTotal(nil), in.Houses...)
		sort.SliceStable(houses, func(i, j int) bool { return houses[i].Points > houses[j].Points })
		leader, trailer := houses[0], houses[len(houses)-1]
		spread := leader.Points - trailer.Points
		if spread >= policy.HouseSpreadPoints {
			insights = append(insights, fmt.Sprintf("%s leads %s by %d points.", leader.House, trailer.House, spread))
			actions = append(actions, fmt.Sprintf("Plan a house challenge to help %s close the gap.", trailer.House))
		} else {
			insights = append(insights, fmt.Sprintf("Houses are closely matched, within %d points.", spread))
		}
	}

	switch {
	case in.Alerts.Red > 0:
		insights = append(insights, fmt.Sprintf("%d students are flagged red and %d yellow.", in.Alerts.Red, in.Alerts.Yellow))
		actions = append(actions, fmt.Sprintf("Review the %d red-flagged students with the counseling team.", in.Alerts.Red))
	case in.Alerts.Yellow > 0:
		insights = append(insights, fmt.Sprintf("%d students show early signs of concern.", in.Alerts.Yellow))
	default:
		insights = append(insights, "No students are currently flagged at risk.")
	}

	if in.ConsistencyScore < policy.ConsistencyFloor {
		insights = append(insights, fmt.Sprintf("Point-giving consistency across staff is %.0f out of 100.", in.ConsistencyScore))
		actions = append(actions, "Run a calibration session so staff award points consistently.")
	}

	return models.WeeklyDigest{
		DigestInput: in,
		Insights:    capList(insights, policy.MaxInsights),
		Actions:     capList(actions, policy.MaxActions),
		GeneratedAt: generatedAt,
	}
}

func dominantCategory(categories []models.CategoryCount) (string, float64, bool) {
	total, top := 0, models.CategoryCount{}
	for _, c := range categories {
		total += c.Count
		if c.Count > top.Count {
			top = c
		}
	}
	if total == 0 {
		return "", 0, false
	}
	return top.Category, float64(top.Count) / float64(total) * 100, true
}

func capList(items []string, limit int) []string {
	if items == nil {
		items = []string{}
	}
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

// WeeklyDigest composes the digest for the seven days ending on periodEnd.
func (s *DigestService) WeeklyDigest(ctx context.Context, periodEnd time.Time) (*models.WeeklyDigest, error) {
	end := timeutil.EndOfDay(periodEnd)
	start := timeutil.AddDays(end, -6)
	key := CacheKey("digest", "weekly", timeutil.FormatDate(end))
	digest, _, err := remember(ctx, s.cache, key, 0, func(ctx context.Context) (*models.WeeklyDigest, error) {
		input, err := s.loadDigestInput(ctx, start, end)
		if err != nil {
			return nil, err
		}
		digest := BuildWeeklyDigest(s.policy.Digest, input, s.now().UTC())
		return &digest, nil
	})
	return digest, err
}

func (s *DigestService) loadDigestInput(ctx context.Context, start, end time.Time) (models.DigestInput, error) {
	in := models.DigestInput{PeriodStart: start, PeriodEnd: end}
	participating, staff, err := s.repo.StaffParticipation(ctx, start, end, models.StaffRoles)
	if err != nil {
		return in, storeError(err, "failed to load staff participation")
	}
	in.ParticipationRate = models.Percent(participating, staff)
	if in.Economy, err = s.repo.PointEconomy(ctx, start, end); err != nil {
		return in, storeError(err, "failed to load point economy")
	}
	if in.Categories, err = s.repo.CategoryBalance(ctx, start, end); err != nil {
		return in, storeError(err, "failed to load category balance")
	}
	if in.Houses, err = s.repo.HouseDistribution(ctx, start, end); err != nil {
		return in, storeError(err, "failed to load house distribution")
	}
	if in.Alerts, err = s.repo.AlertSummary(ctx, models.InsightWindow7d); err != nil {
		return in, storeError(err, "failed to load alert summary")
	}
	perStaff, err := s.repo.StaffEventCounts(ctx, start, end)
	if err != nil {
		return in, storeError(err, "failed to load staff activity")
	}
	in.ConsistencyScore = ConsistencyScore(perStaff)
	if in.Health, err = s.repo.LatestHealthScore(ctx); err != nil {
		return in, storeError(err, "failed to load health score")
	}
	return in, nil
}

// SendWeeklyDigest emails the digest to every recipient. Delivery failures are reported per
// recipient and never fail the call.
func (s *DigestService) SendWeeklyDigest(ctx context.Context, digest *models.WeeklyDigest, recipients []string) []models.DigestDispatch {
	if digest == nil || s.notifier == nil {
		return []models.DigestDispatch{}
	}
	variables := map[string]interface{}{
		"period_start":       timeutil.FormatDate(digest.PeriodStart),
		"period_end":         timeutil.FormatDate(digest.PeriodEnd),
		"participation_rate": digest.ParticipationRate,
		"insights":           digest.Insights,
		"actions":            digest.Actions,
	}
	if digest.Health != nil {
		variables["health_status"] = string(digest.Health.Status)
		variables["health_score"] = digest.Health.Score
	}
	dispatches := make([]models.DigestDispatch, 0, len(recipients))
	for _, recipient := range recipients {
		id, ok := s.notifier.SendTemplatedEmail(ctx, TemplateWeeklyDigest, recipient, variables)
		dispatches = append(dispatches, models.DigestDispatch{Recipient: recipient, MessageID: id, Sent: ok})
	}
	return dispatches
}

// periodMetrics gathers the comparable metrics of a period.
func (s *DigestService) periodMetrics(ctx context.Context, start, end time.Time) (models.MonthlySnapshot, models.InterventionSummary, error) {
	snapshot := models.MonthlySnapshot{Month: timeutil.StartOfMonth(start)}
	participating, staff, err := s.repo.StaffParticipation(ctx, start, end, models.StaffRoles)
	if err != nil {
		return snapshot, models.InterventionSummary{}, storeError(err, "failed to load staff participation")
	}
	snapshot.ParticipationRate = models.Percent(participating, staff)
	economy, err := s.repo.PointEconomy(ctx, start, end)
	if err != nil {
		return snapshot, models.InterventionSummary{}, storeError(err, "failed to load point economy")
	}
	snapshot.MeritPoints = economy.MeritPoints
	snapshot.DemeritPoints = economy.DemeritPoints
	perStaff, err := s.repo.StaffEventCounts(ctx, start, end)
	if err != nil {
		return snapshot, models.InterventionSummary{}, storeError(err, "failed to load staff activity")
	}
	snapshot.ConsistencyScore = ConsistencyScore(perStaff)

	var summary models.InterventionSummary
	if s.tiers != nil {
		if summary, err = s.tiers.TierCounts(ctx, start, end); err != nil {
			return snapshot, summary, storeError(err, "failed to count interventions")
		}
	}
	summary.DistributionHealthy = DistributionHealthy(summary.LevelA, summary.LevelB, summary.LevelC, s.policy.Analytics.HealthyLevelAShare)
	snapshot.LevelA = summary.LevelA
	snapshot.LevelB = summary.LevelB
	snapshot.LevelC = summary.LevelC
	return snapshot, summary, nil
}

// CaptureMonthlySnapshot stores the metrics of the month containing month.
func (s *DigestService) CaptureMonthlySnapshot(ctx context.Context, month time.Time) (*models.MonthlySnapshot, error) {
	start := timeutil.StartOfMonth(month)
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	snapshot, _, err := s.periodMetrics(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpsertMonthlySnapshot(ctx, &snapshot); err != nil {
		return nil, storeError(err, "failed to store monthly snapshot")
	}
	s.logger.Info("monthly snapshot captured", zap.String("month", timeutil.FormatDate(start)))
	return &snapshot, nil
}

// QuarterlyReport compares the quarter against the latest monthly snapshot taken before it.
// Counts are averaged over the months the quarter spans before they are compared. Without
// a baseline every change is reported as N/A.
func (s *DigestService) QuarterlyReport(ctx context.Context, quarterStart, quarterEnd time.Time) (*models.QuarterlyReport, error) {
	start := timeutil.StartOfDay(quarterStart)
	end := timeutil.EndOfDay(quarterEnd)
	if end.Before(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "quarter end must not be before its start")
	}
	current, summary, err := s.periodMetrics(ctx, start, end)
	if err != nil {
		return nil, err
	}
	baseline, err := s.repo.LatestSnapshotBefore(ctx, start)
	if err != nil {
		return nil, storeError(err, "failed to load monthly snapshot")
	}
	health, err := s.repo.LatestHealthScore(ctx)
	if err != nil {
		return nil, storeError(err, "failed to load health score")
	}
	if baseline == nil {
		s.logger.Warn("no monthly snapshot before quarter, deltas unavailable", zap.String("quarter_start", timeutil.FormatDate(start)))
	}
	months := MonthsSpanned(start, end)
	return &models.QuarterlyReport{
		QuarterStart: start,
		QuarterEnd:   end,
		Months:       months,
		Current:      current,
		Baseline:     baseline,
		Deltas:       QuarterDeltas(current, months, baseline),
		Summary:      summary,
		Health:       health,
		GeneratedAt:  s.now().UTC(),
	}, nil
}

// MonthsSpanned counts the calendar months touched by [start, end], at least one.
func MonthsSpanned(start, end time.Time) int {
	months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month()) + 1
	if months < 1 {
		return 1
	}
	return months
}

// QuarterDeltas lists the percentage change of each metric against the baseline. Count
// metrics of current cover months months and are compared as a monthly average; rates
// are compared as they are.
func QuarterDeltas(current models.MonthlySnapshot, months int, baseline *models.MonthlySnapshot) []models.MetricDelta {
	if months < 1 {
		months = 1
	}
	type metric struct {
		name  string
		count bool
		get   func(models.MonthlySnapshot) float64
	}
	metrics := []metric{
		{"participation_rate", false, func(m models.MonthlySnapshot) float64 { return m.ParticipationRate }},
		{"merit_points", true, func(m models.MonthlySnapshot) float64 { return float64(m.MeritPoints) }},
		{"demerit_points", true, func(m models.MonthlySnapshot) float64 { return float64(m.DemeritPoints) }},
		{"level_a", true, func(m models.MonthlySnapshot) float64 { return float64(m.LevelA) }},
		{"level_b", true, func(m models.MonthlySnapshot) float64 { return float64(m.LevelB) }},
		{"level_c", true, func(m models.MonthlySnapshot) float64 { return float64(m.LevelC) }},
		{"consistency_score", false, func(m models.MonthlySnapshot) float64 { return m.ConsistencyScore }},
	}
	deltas := make([]models.MetricDelta, 0, len(metrics))
	for _, m := range metrics {
		value := m.get(current)
		if m.count {
			value = models.RoundTo(value/float64(months), 1)
		}
		delta := models.MetricDelta{Metric: m.name, Current: value, Change: NotAvailable}
		if baseline != nil {
			previous := m.get(*baseline)
			delta.Previous = &previous
			delta.Change = percentChange(delta.Current, previous)
		}
		deltas = append(deltas, delta)
	}
	return deltas
}

func percentChange(current, previous float64) string {
	if previous == 0 {
		if current == 0 {
			return "0.0%"
		}
		return NotAvailable
	}
	return fmt.Sprintf("%+.1f%%", (current-previous)/math.Abs(previous)*100)
}
