package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/house-points-api/internal/models"
)

// AnalyticsRepository exposes set-based counts over the intervention tables.
type AnalyticsRepository struct {
	db *sqlx.DB
}

// NewAnalyticsRepository instantiates the repository.
func NewAnalyticsRepository(db *sqlx.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// TierCounts returns the number of records per tier created in the range.
func (r *AnalyticsRepository) TierCounts(ctx context.Context, start, end time.Time) (models.InterventionSummary, error) {
	const query = `SELECT
    (SELECT COUNT(*) FROM level_a_interventions WHERE occurred_at BETWEEN $1 AND $2) AS level_a,
    (SELECT COUNT(*) FROM level_b_interventions WHERE created_at BETWEEN $1 AND $2) AS level_b,
    (SELECT COUNT(*) FROM level_c_cases WHERE created_at BETWEEN $1 AND $2) AS level_c,
    (SELECT COUNT(*) FROM reentry_protocols WHERE created_at BETWEEN $1 AND $2) AS reentry`
	var summary models.InterventionSummary
	if err := r.db.GetContext(ctx, &summary, query, start, end); err != nil {
		return models.InterventionSummary{}, fmt.Errorf("query tier counts: %w", err)
	}
	return summary, nil
}

// DomainCounts returns Level A and Level B volume per domain together with the number of
// students who had a second Level A in the same domain within repeatWindowDays.
func (r *AnalyticsRepository) DomainCounts(ctx context.Context, start, end time.Time, repeatWindowDays int) ([]models.DomainCount, error) {
	const query = `WITH a AS (
    SELECT domain, COUNT(*) AS level_a FROM level_a_interventions
    WHERE occurred_at BETWEEN $1 AND $2 GROUP BY domain
), b AS (
    SELECT domain, COUNT(*) AS level_b FROM level_b_interventions
    WHERE created_at BETWEEN $1 AND $2 GROUP BY domain
), rep AS (
    SELECT x.domain, COUNT(DISTINCT x.student_id) AS repeat_students
    FROM level_a_interventions x
    JOIN level_a_interventions y
      ON y.student_id = x.student_id AND y.domain = x.domain AND y.id <> x.id
     AND y.occurred_at >= x.occurred_at AND y.occurred_at <= x.occurred_at + make_interval(days => $3)
    WHERE x.occurred_at BETWEEN $1 AND $2 AND y.occurred_at BETWEEN $1 AND $2
    GROUP BY x.domain
)
SELECT d.domain, COALESCE(a.level_a, 0) AS level_a, COALESCE(b.level_b, 0) AS level_b, COALESCE(rep.repeat_students, 0) AS repeat_students
FROM (SELECT domain FROM a UNION SELECT domain FROM b) d
LEFT JOIN a ON a.domain = d.domain
LEFT JOIN b ON b.domain = d.domain
LEFT JOIN rep ON rep.domain = d.domain
ORDER BY level_a DESC, d.domain`
	var counts []models.DomainCount
	if err := r.db.SelectContext(ctx, &counts, query, start, end, repeatWindowDays); err != nil {
		return nil, fmt.Errorf("query domain counts: %w", err)
	}
	return counts, nil
}

// EscalationCounts returns tier totals and how many of them escalated.
func (r *AnalyticsRepository) EscalationCounts(ctx context.Context, start, end time.Time) (models.EscalationCounts, error) {
	const query = `SELECT a.level_a_total, a.level_a_escalated, b.level_b_total, b.level_b_escalated
FROM (SELECT COUNT(*) AS level_a_total, COUNT(*) FILTER (WHERE escalated_to_b) AS level_a_escalated
      FROM level_a_interventions WHERE occurred_at BETWEEN $1 AND $2) a,
     (SELECT COUNT(*) AS level_b_total, COUNT(*) FILTER (WHERE escalated_to_c) AS level_b_escalated
      FROM level_b_interventions WHERE created_at BETWEEN $1 AND $2) b`
	var counts models.EscalationCounts
	if err := r.db.GetContext(ctx, &counts, query, start, end); err != nil {
		return models.EscalationCounts{}, fmt.Errorf("query escalation counts: %w", err)
	}
	return counts, nil
}

// OutcomeCounts returns completed and successful records per tier.
func (r *AnalyticsRepository) OutcomeCounts(ctx context.Context, start, end time.Time) (models.OutcomeCounts, error) {
	const query = `SELECT b.level_b_completed, b.level_b_success, c.level_c_closed, c.level_c_success, re.reentry_completed, re.reentry_success
FROM (SELECT COUNT(*) FILTER (WHERE status IN ('completed_success', 'completed_escalated')) AS level_b_completed,
             COUNT(*) FILTER (WHERE status = 'completed_success') AS level_b_success
      FROM level_b_interventions WHERE created_at BETWEEN $1 AND $2) b,
     (SELECT COUNT(*) FILTER (WHERE status = 'closed') AS level_c_closed,
             COUNT(*) FILTER (WHERE status = 'closed' AND outcome_status IN ('closed_success', 'closed_continued_support')) AS level_c_success
      FROM level_c_cases WHERE created_at BETWEEN $1 AND $2) c,
     (SELECT COUNT(*) FILTER (WHERE status = 'completed') AS reentry_completed,
             COUNT(*) FILTER (WHERE status = 'completed' AND outcome IN ('success', 'partial')) AS reentry_success
      FROM reentry_protocols WHERE created_at BETWEEN $1 AND $2) re`
	var counts models.OutcomeCounts
	if err := r.db.GetContext(ctx, &counts, query, start, end); err != nil {
		return models.OutcomeCounts{}, fmt.Errorf("query outcome counts: %w", err)
	}
	return counts, nil
}

// TierTimestamps returns the timestamp of every A, B and C record in the range.
func (r *AnalyticsRepository) TierTimestamps(ctx context.Context, start, end time.Time) ([]models.TierTimestamp, error) {
	const query = `SELECT 'A' AS tier, occurred_at FROM level_a_interventions WHERE occurred_at BETWEEN $1 AND $2
UNION ALL
SELECT 'B' AS tier, created_at AS occurred_at FROM level_b_interventions WHERE created_at BETWEEN $1 AND $2
UNION ALL
SELECT 'C' AS tier, created_at AS occurred_at FROM level_c_cases WHERE created_at BETWEEN $1 AND $2`
	var stamps []models.TierTimestamp
	if err := r.db.SelectContext(ctx, &stamps, query, start, end); err != nil {
		return nil, fmt.Errorf("query tier timestamps: %w", err)
	}
	return stamps, nil
}
