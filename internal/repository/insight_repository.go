package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/house-points-api/internal/models"
)

const snapshotColumns = `id, student_id, time_window, merit_count, demerit_count, merit_points, demerit_points, net_score, trend, risk_level, primary_issue, interpretation, computed_at`

// InsightRepository persists derived insight snapshots and behaviour patterns.
// Both tables are regenerable views over behaviour events.
type InsightRepository struct {
	db *sqlx.DB
}

// NewInsightRepository constructs the repository.
func NewInsightRepository(db *sqlx.DB) *InsightRepository {
	return &InsightRepository{db: db}
}

// UpsertSnapshots writes one snapshot per (student, window), overwriting the previous one.
func (r *InsightRepository) UpsertSnapshots(ctx context.Context, snapshots []models.StudentInsightSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	const query = `INSERT INTO student_insight_snapshots (id, student_id, time_window, merit_count, demerit_count, merit_points, demerit_points, net_score, trend, risk_level, primary_issue, interpretation, computed_at)
VALUES (:id, :student_id, :time_window, :merit_count, :demerit_count, :merit_points, :demerit_points, :net_score, :trend, :risk_level, :primary_issue, :interpretation, :computed_at)
ON CONFLICT (student_id, time_window)
DO UPDATE SET merit_count = EXCLUDED.merit_count, demerit_count = EXCLUDED.demerit_count,
              merit_points = EXCLUDED.merit_points, demerit_points = EXCLUDED.demerit_points,
              net_score = EXCLUDED.net_score, trend = EXCLUDED.trend, risk_level = EXCLUDED.risk_level,
              primary_issue = EXCLUDED.primary_issue, interpretation = EXCLUDED.interpretation,
              computed_at = EXCLUDED.computed_at`
	for i := range snapshots {
		if snapshots[i].ID == "" {
			snapshots[i].ID = uuid.NewString()
		}
		if snapshots[i].ComputedAt.IsZero() {
			snapshots[i].ComputedAt = time.Now().UTC()
		}
		if _, err := tx.NamedExecContext(ctx, query, snapshots[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert insight snapshot: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot tx: %w", err)
	}
	return nil
}

// ReplacePatterns deletes every pattern of the student and inserts the provided set.
func (r *InsightRepository) ReplacePatterns(ctx context.Context, studentID string, patterns []models.BehaviorPattern) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin pattern tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM student_behaviour_patterns WHERE student_id = $1`, studentID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete behaviour patterns: %w", err)
	}
	const insert = `INSERT INTO student_behaviour_patterns (id, student_id, pattern_type, description, confidence, detected_at)
VALUES (:id, :student_id, :pattern_type, :description, :confidence, :detected_at)`
	for i := range patterns {
		patterns[i].StudentID = studentID
		if patterns[i].ID == "" {
			patterns[i].ID = uuid.NewString()
		}
		if patterns[i].DetectedAt.IsZero() {
			patterns[i].DetectedAt = time.Now().UTC()
		}
		if _, err := tx.NamedExecContext(ctx, insert, patterns[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert behaviour pattern: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit pattern tx: %w", err)
	}
	return nil
}

// ListSnapshots returns the current snapshots of a student.
func (r *InsightRepository) ListSnapshots(ctx context.Context, studentID string) ([]models.StudentInsightSnapshot, error) {
	query := fmt.Sprintf(`SELECT %s FROM student_insight_snapshots WHERE student_id = $1 ORDER BY time_window`, snapshotColumns)
	var snapshots []models.StudentInsightSnapshot
	if err := r.db.SelectContext(ctx, &snapshots, query, studentID); err != nil {
		return nil, fmt.Errorf("list insight snapshots: %w", err)
	}
	return snapshots, nil
}

// ListPatterns returns the current patterns of a student.
func (r *InsightRepository) ListPatterns(ctx context.Context, studentID string) ([]models.BehaviorPattern, error) {
	const query = `SELECT id, student_id, pattern_type, description, confidence, detected_at
FROM student_behaviour_patterns WHERE student_id = $1 ORDER BY confidence DESC`
	var patterns []models.BehaviorPattern
	if err := r.db.SelectContext(ctx, &patterns, query, studentID); err != nil {
		return nil, fmt.Errorf("list behaviour patterns: %w", err)
	}
	return patterns, nil
}

// ListAtRisk returns snapshots of the window whose risk level is one of levels.
func (r *InsightRepository) ListAtRisk(ctx context.Context, window models.InsightWindow, levels []models.RiskLevel) ([]models.StudentInsightSnapshot, error) {
	values := make([]string, len(levels))
	for i, l := range levels {
		values[i] = string(l)
	}
	query := fmt.Sprintf(`SELECT %s FROM student_insight_snapshots
WHERE time_window = $1 AND risk_level = ANY($2)
ORDER BY CASE risk_level WHEN 'red' THEN 0 WHEN 'yellow' THEN 1 ELSE 2 END, demerit_count DESC`, snapshotColumns)
	var snapshots []models.StudentInsightSnapshot
	if err := r.db.SelectContext(ctx, &snapshots, query, window, pq.Array(values)); err != nil {
		return nil, fmt.Errorf("list at-risk snapshots: %w", err)
	}
	return snapshots, nil
}

// HasPattern reports whether the student currently carries the pattern.
func (r *InsightRepository) HasPattern(ctx context.Context, studentID string, pattern models.PatternType) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM student_behaviour_patterns WHERE student_id = $1 AND pattern_type = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, studentID, pattern); err != nil {
		return false, fmt.Errorf("check behaviour pattern: %w", err)
	}
	return exists, nil
}
