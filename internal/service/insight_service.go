package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/house-points-api/internal/models"
	appErrors "github.com/noah-isme/house-points-api/pkg/errors"
	"github.com/noah-isme/house-points-api/pkg/jobs"
	"github.com/noah-isme/house-points-api/pkg/timeutil"
)

// JobTypeInsightRecompute is the queue job type for a single-student recompute.
const JobTypeInsightRecompute = "insight.recompute"

type insightEventReader interface {
	ListSince(ctx context.Context, studentID string, since time.Time) ([]models.BehaviorEvent, error)
}

type insightStore interface {
	UpsertSnapshots(ctx context.Context, snapshots []models.StudentInsightSnapshot) error
	ReplacePatterns(ctx context.Context, studentID string, patterns []models.BehaviorPattern) error
	ListSnapshots(ctx context.Context, studentID string) ([]models.StudentInsightSnapshot, error)
	ListPatterns(ctx context.Context, studentID string) ([]models.BehaviorPattern, error)
	ListAtRisk(ctx context.Context, window models.InsightWindow, levels []models.RiskLevel) ([]models.StudentInsightSnapshot, error)
}

// InsightService recomputes and serves the regenerable insight snapshots and pattern tags.
type InsightService struct {
	events  insightEventReader
	store   insightStore
	policy  *models.Policy
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewInsightService constructs the service.
func NewInsightService(events insightEventReader, store insightStore, policy *models.Policy, metrics *MetricsService, logger *zap.Logger) *InsightService {
	if policy == nil {
		policy = models.DefaultPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InsightService{events: events, store: store, policy: policy, metrics: metrics, logger: logger, now: time.Now}
}

// RecomputeStudent recomputes one student's snapshots and patterns. A zero today uses the current UTC day.
func (s *InsightService) RecomputeStudent(ctx context.Context, studentID string, today time.Time) (*models.InsightResult, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	today = s.resolveToday(today)
	events, err := s.events.ListSince(ctx, studentID, timeutil.AddDays(today, -(insightHorizonDays-1)))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load behavior events")
	}
	result := ComputeInsights(s.policy.Insights, studentID, events, today)
	if err := s.persist(ctx, result); err != nil {
		s.metrics.RecordRecompute(false)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store insights")
	}
	s.metrics.RecordRecompute(true)
	return &result, nil
}

// RecomputeActive recomputes every student with an event in the trailing window. The events are read
// once up front so a read failure aborts before anything is written; each student is then written
// independently and failures are counted rather than returned.
func (s *InsightService) RecomputeActive(ctx context.Context, today time.Time) (*models.RecomputeResult, error) {
	today = s.resolveToday(today)
	events, err := s.events.ListSince(ctx, "", timeutil.AddDays(today, -(insightHorizonDays-1)))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load behavior events")
	}

	byStudent := map[string][]models.BehaviorEvent{}
	for _, e := range events {
		byStudent[e.StudentID] = append(byStudent[e.StudentID], e)
	}
	studentIDs := make([]string, 0, len(byStudent))
	for id := range byStudent {
		studentIDs = append(studentIDs, id)
	}
	sort.Strings(studentIDs)

	summary := &models.RecomputeResult{Students: len(studentIDs), Today: today}
	for _, id := range studentIDs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		result := ComputeInsights(s.policy.Insights, id, byStudent[id], today)
		if err := s.persist(ctx, result); err != nil {
			s.logger.Warn("insight recompute failed", zap.String("student_id", id), zap.Error(err))
			s.metrics.RecordRecompute(false)
			summary.Failed++
			summary.FailedIDs = append(summary.FailedIDs, id)
			continue
		}
		s.metrics.RecordRecompute(true)
		summary.Succeeded++
	}
	s.logger.Info("insight recompute finished",
		zap.Int("students", summary.Students),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

func (s *InsightService) persist(ctx context.Context, result models.InsightResult) error {
	if err := s.store.UpsertSnapshots(ctx, snapshotsFromResult(result, s.now().UTC())); err != nil {
		return err
	}
	return s.store.ReplacePatterns(ctx, result.StudentID, result.Patterns)
}

// StudentInsights returns the stored snapshots and patterns of a student.
func (s *InsightService) StudentInsights(ctx context.Context, studentID string) (*models.StudentInsights, error) {
	snapshots, err := s.store.ListSnapshots(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load insight snapshots")
	}
	patterns, err := s.store.ListPatterns(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load behaviour patterns")
	}
	if len(snapshots) == 0 && len(patterns) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no insights computed for student")
	}
	return &models.StudentInsights{StudentID: studentID, Snapshots: snapshots, Patterns: patterns}, nil
}

// AtRisk lists snapshots flagged with one of the levels. Empty levels means red and yellow.
func (s *InsightService) AtRisk(ctx context.Context, window models.InsightWindow, levels []models.RiskLevel) ([]models.StudentInsightSnapshot, error) {
	if window == "" {
		window = models.InsightWindow7d
	}
	if window != models.InsightWindow7d && window != models.InsightWindow30d {
		return nil, appErrors.Clone(appErrors.ErrValidation, "window must be 7d or 30d")
	}
	if len(levels) == 0 {
		levels = []models.RiskLevel{models.RiskRed, models.RiskYellow}
	}
	snapshots, err := s.store.ListAtRisk(ctx, window, levels)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list at-risk students")
	}
	return snapshots, nil
}

// HandleJob is the queue handler for single-student recompute jobs.
func (s *InsightService) HandleJob(ctx context.Context, job jobs.Job) error {
	studentID, ok := job.Payload.(string)
	if !ok || studentID == "" {
		return fmt.Errorf("invalid insight job payload %T", job.Payload)
	}
	_, err := s.RecomputeStudent(ctx, studentID, time.Time{})
	return err
}

func (s *InsightService) resolveToday(today time.Time) time.Time {
	if today.IsZero() {
		today = s.now()
	}
	return timeutil.StartOfDay(today)
}
