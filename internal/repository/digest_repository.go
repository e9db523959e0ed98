package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/house-points-api/internal/models"
)

// DigestRepository reads the school-wide metrics digests are composed from.
type DigestRepository struct {
	db *sqlx.DB
}

// NewDigestRepository constructs the repository.
func NewDigestRepository(db *sqlx.DB) *DigestRepository {
	return &DigestRepository{db: db}
}

// StaffParticipation returns how many staff in roles recorded an event in the period and how many are active.
func (r *DigestRepository) StaffParticipation(ctx context.Context, start, end time.Time, roles []models.UserRole) (participating int, total int, err error) {
	const query = `SELECT
    (SELECT COUNT(DISTINCT e.staff_id) FROM behavior_events e
     JOIN users u ON u.id = e.staff_id
     WHERE e.event_date BETWEEN $1 AND $2 AND u.active = TRUE AND u.role = ANY($3)) AS participating,
    (SELECT COUNT(*) FROM users WHERE active = TRUE AND role = ANY($3)) AS total`
	var row struct {
		Participating int `db:"participating"`
		Total         int `db:"total"`
	}
	if err := r.db.GetContext(ctx, &row, query, start, end, pq.Array(statusStrings(roles))); err != nil {
		return 0, 0, fmt.Errorf("query staff participation: %w", err)
	}
	return row.Participating, row.Total, nil
}

// PointEconomy sums events issued in the period by kind. Both point totals are magnitudes.
func (r *DigestRepository) PointEconomy(ctx context.Context, start, end time.Time) (models.PointEconomy, error) {
	const query = `SELECT
    COUNT(*) FILTER (WHERE kind = 'merit') AS merit_count,
    COUNT(*) FILTER (WHERE kind = 'demerit') AS demerit_count,
    COALESCE(SUM(ABS(points)) FILTER (WHERE kind = 'merit'), 0) AS merit_points,
    COALESCE(SUM(ABS(points)) FILTER (WHERE kind = 'demerit'), 0) AS demerit_points
FROM behavior_events WHERE event_date BETWEEN $1 AND $2`
	var economy models.PointEconomy
	if err := r.db.GetContext(ctx, &economy, query, start, end); err != nil {
		return models.PointEconomy{}, fmt.Errorf("query point economy: %w", err)
	}
	return economy, nil
}

// CategoryBalance counts merits per category in the period, largest first.
func (r *DigestRepository) CategoryBalance(ctx context.Context, start, end time.Time) ([]models.CategoryCount, error) {
	const query = `SELECT category, COUNT(*) AS count FROM behavior_events
WHERE kind = 'merit' AND event_date BETWEEN $1 AND $2
GROUP BY category ORDER BY count DESC, category`
	var counts []models.CategoryCount
	if err := r.db.SelectContext(ctx, &counts, query, start, end); err != nil {
		return nil, fmt.Errorf("query category balance: %w", err)
	}
	return counts, nil
}

// HouseDistribution returns net points per house in the period, highest first.
// Demerits count against the house whatever sign the row was stored with.
func (r *DigestRepository) HouseDistribution(ctx context.Context, start, end time.Time) ([]models.HouseTotal, error) {
	const query = `SELECT s.house,
    COALESCE(SUM(CASE WHEN e.kind = 'merit' THEN ABS(e.points) ELSE -ABS(e.points) END), 0) AS points
FROM students s
LEFT JOIN behavior_events e ON e.student_id = s.id AND e.event_date BETWEEN $1 AND $2
WHERE s.house IS NOT NULL AND s.house <> ''
GROUP BY s.house ORDER BY points DESC, s.house`
	var houses []models.HouseTotal
	if err := r.db.SelectContext(ctx, &houses, query, start, end); err != nil {
		return nil, fmt.Errorf("query house distribution: %w", err)
	}
	return houses, nil
}

// AlertSummary counts students flagged red or yellow in the window's current snapshots.
func (r *DigestRepository) AlertSummary(ctx context.Context, window models.InsightWindow) (models.AlertSummary, error) {
	const query = `SELECT
    COUNT(*) FILTER (WHERE risk_level = 'red') AS red,
    COUNT(*) FILTER (WHERE risk_level = 'yellow') AS yellow
FROM student_insight_snapshots WHERE time_window = $1`
	var alerts models.AlertSummary
	if err := r.db.GetContext(ctx, &alerts, query, window); err != nil {
		return models.AlertSummary{}, fmt.Errorf("query alert summary: %w", err)
	}
	return alerts, nil
}

// StaffEventCounts returns the number of events each participating staff member recorded in the period.
func (r *DigestRepository) StaffEventCounts(ctx context.Context, start, end time.Time) ([]int, error) {
	const query = `SELECT COUNT(*) FROM behavior_events
WHERE staff_id IS NOT NULL AND event_date BETWEEN $1 AND $2
GROUP BY staff_id`
	var counts []int
	if err := r.db.SelectContext(ctx, &counts, query, start, end); err != nil {
		return nil, fmt.Errorf("query staff event counts: %w", err)
	}
	return counts, nil
}

// LatestHealthScore returns the newest score written by the scoring job, or nil when none exists.
func (r *DigestRepository) LatestHealthScore(ctx context.Context) (*models.HealthScore, error) {
	const query = `SELECT score, status, computed_at FROM school_health_scores ORDER BY computed_at DESC LIMIT 1`
	var score models.HealthScore
	if err := r.db.GetContext(ctx, &score, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query health score: %w", err)
	}
	return &score, nil
}

// UpsertMonthlySnapshot stores the snapshot of a month, replacing an existing one.
func (r *DigestRepository) UpsertMonthlySnapshot(ctx context.Context, snapshot *models.MonthlySnapshot) error {
	if snapshot.ID == "" {
		snapshot.ID = uuid.NewString()
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO monthly_snapshots (id, month, participation_rate, merit_points, demerit_points, level_a, level_b, level_c, consistency_score, created_at)
VALUES (:id, :month, :participation_rate, :merit_points, :demerit_points, :level_a, :level_b, :level_c, :consistency_score, :created_at)
ON CONFLICT (month) DO UPDATE SET participation_rate = EXCLUDED.participation_rate, merit_points = EXCLUDED.merit_points,
    demerit_points = EXCLUDED.demerit_points, level_a = EXCLUDED.level_a, level_b = EXCLUDED.level_b,
    level_c = EXCLUDED.level_c, consistency_score = EXCLUDED.consistency_score, created_at = EXCLUDED.created_at`
	if _, err := r.db.NamedExecContext(ctx, query, snapshot); err != nil {
		return fmt.Errorf("upsert monthly snapshot: %w", err)
	}
	return nil
}

// LatestSnapshotBefore returns the newest monthly snapshot strictly before the given month, or nil when none exists.
func (r *DigestRepository) LatestSnapshotBefore(ctx context.Context, before time.Time) (*models.MonthlySnapshot, error) {
	const query = `SELECT id, month, participation_rate, merit_points, demerit_points, level_a, level_b, level_c, consistency_score, created_at
FROM monthly_snapshots WHERE month < $1 ORDER BY month DESC LIMIT 1`
	var snapshot models.MonthlySnapshot
	if err := r.db.GetContext(ctx, &snapshot, query, before); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query monthly snapshot: %w", err)
	}
	return &snapshot, nil
}
