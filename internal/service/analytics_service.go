package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/house-points-api/internal/models"
	appErrors "github.com/noah-isme/house-points-api/pkg/errors"
	"github.com/noah-isme/house-points-api/pkg/timeutil"
)

const defaultAnalyticsRangeDays = 30

// AnalyticsRepository describes the set-based counts required by AnalyticsService.
type AnalyticsRepository interface {
	TierCounts(ctx context.Context, start, end time.Time) (models.InterventionSummary, error)
	DomainCounts(ctx context.Context, start, end time.Time, repeatWindowDays int) ([]models.DomainCount, error)
	EscalationCounts(ctx context.Context, start, end time.Time) (models.EscalationCounts, error)
	OutcomeCounts(ctx context.Context, start, end time.Time) (models.OutcomeCounts, error)
	TierTimestamps(ctx context.Context, start, end time.Time) ([]models.TierTimestamp, error)
}

// RecentInterventionRepository lists the newest tiered records in a range.
type RecentInterventionRepository interface {
	ListRecentLevelA(ctx context.Context, start, end time.Time, limit int) ([]models.LevelAIntervention, error)
	ListRecentLevelB(ctx context.Context, start, end time.Time, limit int) ([]models.LevelBIntervention, error)
	ListRecentLevelC(ctx context.Context, start, end time.Time, limit int) ([]models.LevelCCase, error)
}

// RecentReentryRepository lists the newest re-entry protocols in a range.
type RecentReentryRepository interface {
	ListRecent(ctx context.Context, start, end time.Time, limit int) ([]models.ReentryProtocol, error)
}

// AnalyticsService aggregates intervention records over a date range. It never mutates them.
type AnalyticsService struct {
	repo     AnalyticsRepository
	recent   RecentInterventionRepository
	reentry  RecentReentryRepository
	cache    *CacheService
	policy   *models.Policy
	metrics  *MetricsService
	logger   *zap.Logger
	cacheTTL time.Duration
	now      func() time.Time
}

// NewAnalyticsService constructs an analytics service.
func NewAnalyticsService(repo AnalyticsRepository, recent RecentInterventionRepository, reentry RecentReentryRepository, cache *CacheService, policy *models.Policy, metrics *MetricsService, logger *zap.Logger) *AnalyticsService {
	if policy == nil {
		policy = models.DefaultPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsService{
		repo:    repo,
		recent:  recent,
		reentry: reentry,
		cache:   cache,
		policy:  policy,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// WithCacheTTL overrides the cache lifetime used for dashboards.
func (s *AnalyticsService) WithCacheTTL(ttl time.Duration) *AnalyticsService {
	s.cacheTTL = ttl
	return s
}

// ResolveRange normalises optional bounds into an inclusive range. The default is the
// trailing 30 days ending today.
func (s *AnalyticsService) ResolveRange(start, end *time.Time) (models.AnalyticsRange, error) {
	rangeEnd := timeutil.EndOfDay(s.now())
	if end != nil && !end.IsZero() {
		rangeEnd = timeutil.EndOfDay(*end)
	}
	rangeStart := timeutil.StartOfDay(timeutil.AddDays(rangeEnd, -(defaultAnalyticsRangeDays - 1)))
	if start != nil && !start.IsZero() {
		rangeStart = timeutil.StartOfDay(*start)
	}
	if rangeStart.After(rangeEnd) {
		return models.AnalyticsRange{}, appErrors.Clone(appErrors.ErrValidation, "start must not be after end")
	}
	return models.AnalyticsRange{Start: rangeStart, End: rangeEnd}, nil
}

// DistributionHealthy reports whether most incidents resolve at the lightest tier.
// It is vacuously true when there are no records.
func DistributionHealthy(levelA, levelB, levelC int, minLevelAShare float64) bool {
	total := levelA + levelB + levelC
	if total == 0 {
		return true
	}
	return levelA >= levelB && levelB >= levelC && float64(levelA)/float64(total) >= minLevelAShare
}

// Summary counts records per tier.
func (s *AnalyticsService) Summary(ctx context.Context, r models.AnalyticsRange) (models.InterventionSummary, error) {
	summary, err := observe(s, "analytics_tier_counts", func() (models.InterventionSummary, error) {
		return s.repo.TierCounts(ctx, r.Start, r.End)
	})
	if err != nil {
		return models.InterventionSummary{}, storeError(err, "failed to count interventions")
	}
	if total := summary.LevelA + summary.LevelB + summary.LevelC; total > 0 {
		summary.LevelAShare = models.RoundTo(float64(summary.LevelA)/float64(total), 3)
	}
	summary.DistributionHealthy = DistributionHealthy(summary.LevelA, summary.LevelB, summary.LevelC, s.policy.Analytics.HealthyLevelAShare)
	return summary, nil
}

// DomainMetrics returns one row per behavioural domain, including domains with no records.
func (s *AnalyticsService) DomainMetrics(ctx context.Context, r models.AnalyticsRange) ([]models.DomainMetric, error) {
	counts, err := observe(s, "analytics_domain_counts", func() ([]models.DomainCount, error) {
		return s.repo.DomainCounts(ctx, r.Start, r.End, s.policy.Analytics.RepeatWindowDays)
	})
	if err != nil {
		return nil, storeError(err, "failed to count domain activity")
	}
	return BuildDomainMetrics(s.policy, counts), nil
}

// BuildDomainMetrics merges raw counts onto the policy's domain list. The repeat rate is
// the share of a domain's Level A volume that came from repeat students.
func BuildDomainMetrics(policy *models.Policy, counts []models.DomainCount) []models.DomainMetric {
	byDomain := make(map[models.Domain]models.DomainCount, len(counts))
	for _, c := range counts {
		byDomain[c.Domain] = c
	}
	domains := policy.Domains()
	metrics := make([]models.DomainMetric, 0, len(domains))
	for _, d := range domains {
		c := byDomain[d]
		metrics = append(metrics, models.DomainMetric{
			Domain:         d,
			Label:          policy.DomainLabel(d),
			LevelA:         c.LevelA,
			LevelB:         c.LevelB,
			RepeatStudents: c.RepeatStudents,
			RepeatRate:     models.Percent(c.RepeatStudents, c.LevelA),
		})
	}
	return metrics
}

// EscalationMetrics returns the A→B and B→C rates.
func (s *AnalyticsService) EscalationMetrics(ctx context.Context, r models.AnalyticsRange) (models.EscalationMetrics, error) {
	counts, err := observe(s, "analytics_escalation_counts", func() (models.EscalationCounts, error) {
		return s.repo.EscalationCounts(ctx, r.Start, r.End)
	})
	if err != nil {
		return models.EscalationMetrics{}, storeError(err, "failed to count escalations")
	}
	return models.EscalationMetrics{
		LevelATotal:     counts.LevelATotal,
		LevelAEscalated: counts.LevelAEscalated,
		AToBRate:        models.Percent(counts.LevelAEscalated, counts.LevelATotal),
		LevelBTotal:     counts.LevelBTotal,
		LevelBEscalated: counts.LevelBEscalated,
		BToCRate:        models.Percent(counts.LevelBEscalated, counts.LevelBTotal),
	}, nil
}

// OutcomeMetrics returns success rates for completed Level B, closed Level C and completed re-entry.
func (s *AnalyticsService) OutcomeMetrics(ctx context.Context, r models.AnalyticsRange) (models.OutcomeMetrics, error) {
	counts, err := observe(s, "analytics_outcome_counts", func() (models.OutcomeCounts, error) {
		return s.repo.OutcomeCounts(ctx, r.Start, r.End)
	})
	if err != nil {
		return models.OutcomeMetrics{}, storeError(err, "failed to count outcomes")
	}
	return models.OutcomeMetrics{
		LevelBCompleted:    counts.LevelBCompleted,
		LevelBSuccessRate:  models.WholePercent(counts.LevelBSuccess, counts.LevelBCompleted),
		LevelCClosed:       counts.LevelCClosed,
		LevelCSuccessRate:  models.WholePercent(counts.LevelCSuccess, counts.LevelCClosed),
		ReentryCompleted:   counts.ReentryCompleted,
		ReentrySuccessRate: models.WholePercent(counts.ReentrySuccess, counts.ReentryCompleted),
	}, nil
}

// WeeklyTrends returns the trailing Monday-start weeks ending with the week containing end, oldest first.
func (s *AnalyticsService) WeeklyTrends(ctx context.Context, end time.Time) ([]models.WeeklyTrend, error) {
	weeks := s.policy.Analytics.TrendWeeks
	first := timeutil.AddDays(timeutil.StartOfWeek(end), -7*(weeks-1))
	last := timeutil.EndOfWeek(end)
	stamps, err := observe(s, "analytics_tier_timestamps", func() ([]models.TierTimestamp, error) {
		return s.repo.TierTimestamps(ctx, first, last)
	})
	if err != nil {
		return nil, storeError(err, "failed to load trend data")
	}
	return BucketWeeklyTrends(first, weeks, stamps), nil
}

// BucketWeeklyTrends counts timestamps into consecutive seven-day buckets starting at first.
func BucketWeeklyTrends(first time.Time, weeks int, stamps []models.TierTimestamp) []models.WeeklyTrend {
	trends := make([]models.WeeklyTrend, weeks)
	for i := range trends {
		start := timeutil.AddDays(first, 7*i)
		trends[i] = models.WeeklyTrend{WeekStart: start, WeekEnd: timeutil.EndOfDay(timeutil.AddDays(start, 6))}
	}
	for _, stamp := range stamps {
		if stamp.OccurredAt.Before(first) {
			continue
		}
		idx := timeutil.DaysAgo(stamp.OccurredAt, first) / 7
		if idx < 0 || idx >= weeks {
			continue
		}
		switch stamp.Tier {
		case models.TierA:
			trends[idx].LevelA++
		case models.TierB:
			trends[idx].LevelB++
		case models.TierC:
			trends[idx].LevelC++
		}
	}
	return trends
}

// RecentActivity merges the newest records of every tier, newest first, capped at limit.
func (s *AnalyticsService) RecentActivity(ctx context.Context, r models.AnalyticsRange, limit int) ([]models.ActivityItem, error) {
	if limit <= 0 {
		limit = s.policy.Analytics.RecentLimit
	}
	perTier := s.policy.Analytics.RecentPerTier

	var records []models.InterventionRecord
	levelA, err := s.recent.ListRecentLevelA(ctx, r.Start, r.End, perTier)
	if err != nil {
		return nil, storeError(err, "failed to list recent level a")
	}
	for i := range levelA {
		records = append(records, &levelA[i])
	}
	levelB, err := s.recent.ListRecentLevelB(ctx, r.Start, r.End, perTier)
	if err != nil {
		return nil, storeError(err, "failed to list recent level b")
	}
	for i := range levelB {
		records = append(records, &levelB[i])
	}
	levelC, err := s.recent.ListRecentLevelC(ctx, r.Start, r.End, perTier)
	if err != nil {
		return nil, storeError(err, "failed to list recent level c")
	}
	for i := range levelC {
		records = append(records, &levelC[i])
	}
	if s.reentry != nil {
		protocols, err := s.reentry.ListRecent(ctx, r.Start, r.End, perTier)
		if err != nil {
			return nil, storeError(err, "failed to list recent re-entry")
		}
		for i := range protocols {
			records = append(records, &protocols[i])
		}
	}

	return BuildActivityFeed(s.policy, records, limit), nil
}

// BuildActivityFeed sorts records newest first and renders at most limit items.
func BuildActivityFeed(policy *models.Policy, records []models.InterventionRecord, limit int) []models.ActivityItem {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].OccurredAt().After(records[j].OccurredAt())
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	items := make([]models.ActivityItem, 0, len(records))
	for _, rec := range records {
		item := models.ActivityItem{
			Tier:       rec.Tier(),
			ID:         rec.RecordID(),
			StudentID:  rec.StudentKey(),
			OccurredAt: rec.OccurredAt(),
		}
		switch v := rec.(type) {
		case *models.LevelAIntervention:
			item.Summary = fmt.Sprintf("%s: %s", policy.DomainLabel(v.Domain), v.InterventionType)
			item.Status = string(v.Outcome)
		case *models.LevelBIntervention:
			item.Summary = fmt.Sprintf("Reset conference (%s)", v.EscalationTrigger)
			item.Status = string(v.Status)
		case *models.LevelCCase:
			item.Summary = fmt.Sprintf("%s case (%s)", v.CaseType, v.TriggerType)
			item.Status = string(v.Status)
		case *models.ReentryProtocol:
			item.Summary = fmt.Sprintf("Re-entry after %s", v.SourceType)
			item.Status = string(v.Status)
		}
		items = append(items, item)
	}
	return items
}

// Dashboard combines every analytics view for the range. The boolean reports a cache hit.
func (s *AnalyticsService) Dashboard(ctx context.Context, r models.AnalyticsRange, limit int) (*models.InterventionDashboard, bool, error) {
	key := CacheKey("analytics", "interventions", r.Start.UTC().Format(time.RFC3339), r.End.UTC().Format(time.RFC3339), strconv.Itoa(limit))
	return remember(ctx, s.cache, key, s.cacheTTL, func(ctx context.Context) (*models.InterventionDashboard, error) {
		return s.buildDashboard(ctx, r, limit)
	})
}

func (s *AnalyticsService) buildDashboard(ctx context.Context, r models.AnalyticsRange, limit int) (*models.InterventionDashboard, error) {
	summary, err := s.Summary(ctx, r)
	if err != nil {
		return nil, err
	}
	domains, err := s.DomainMetrics(ctx, r)
	if err != nil {
		return nil, err
	}
	escalation, err := s.EscalationMetrics(ctx, r)
	if err != nil {
		return nil, err
	}
	outcomes, err := s.OutcomeMetrics(ctx, r)
	if err != nil {
		return nil, err
	}
	trends, err := s.WeeklyTrends(ctx, r.End)
	if err != nil {
		return nil, err
	}
	recent, err := s.RecentActivity(ctx, r, limit)
	if err != nil {
		return nil, err
	}
	return &models.InterventionDashboard{
		Range:       r,
		Summary:     summary,
		Domains:     domains,
		Escalation:  escalation,
		Outcomes:    outcomes,
		Trends:      trends,
		Recent:      recent,
		GeneratedAt: s.now().UTC(),
	}, nil
}

// InvalidateCache drops cached dashboards and digests so the next read recomputes them.
func (s *AnalyticsService) InvalidateCache(ctx context.Context) error {
	for _, prefix := range []string{"analytics", "digest"} {
		if err := s.cache.Invalidate(ctx, CacheKey(prefix, "*")); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to invalidate cache")
		}
	}
	s.logger.Info("analytics cache invalidated")
	return nil
}

// SystemMetrics returns system instrumentation snapshot.
func (s *AnalyticsService) SystemMetrics() models.SystemMetrics {
	if s.metrics == nil {
		return models.SystemMetrics{GeneratedAt: s.now().UTC()}
	}
	return s.metrics.Snapshot()
}

// observe times one store query.
func observe[T any](s *AnalyticsService, label string, query func() (T, error)) (T, error) {
	start := time.Now()
	out, err := query()
	s.metrics.ObserveDBQuery(label, time.Since(start))
	return out, err
}

func storeError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
