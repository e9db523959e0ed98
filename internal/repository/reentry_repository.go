package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/house-points-api/internal/models"
)

const reentryColumns = `id, student_id, source_type, source_id, reentry_date, monitoring_end_date, monitoring_method, reset_goal,
teacher_script, readiness_checklist, readiness_verified_by, readiness_verified_at, daily_logs, status, outcome,
outcome_notes, created_by, completed_at, created_at, updated_at`

// ReentryRepository persists re-entry protocols.
type ReentryRepository struct {
	db *sqlx.DB
}

// NewReentryRepository constructs the repository.
func NewReentryRepository(db *sqlx.DB) *ReentryRepository {
	return &ReentryRepository{db: db}
}

// Create inserts a protocol.
func (r *ReentryRepository) Create(ctx context.Context, p *models.ReentryProtocol) error {
	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = models.ReentryPending
	}
	if p.DailyLogs == nil {
		p.DailyLogs = models.DailyLogs{}
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	const query = `INSERT INTO reentry_protocols (id, student_id, source_type, source_id, reentry_date, monitoring_end_date, monitoring_method, reset_goal,
teacher_script, readiness_checklist, readiness_verified_by, readiness_verified_at, daily_logs, status, outcome,
outcome_notes, created_by, completed_at, created_at, updated_at)
VALUES (:id, :student_id, :source_type, :source_id, :reentry_date, :monitoring_end_date, :monitoring_method, :reset_goal,
:teacher_script, :readiness_checklist, :readiness_verified_by, :readiness_verified_at, :daily_logs, :status, :outcome,
:outcome_notes, :created_by, :completed_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("create reentry protocol: %w", err)
	}
	return nil
}

// FindByID loads a protocol.
func (r *ReentryRepository) FindByID(ctx context.Context, id string) (*models.ReentryProtocol, error) {
	query := fmt.Sprintf(`SELECT %s FROM reentry_protocols WHERE id = $1`, reentryColumns)
	var p models.ReentryProtocol
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		return nil, err
	}
	return &p, nil
}

// FindOpenBySource returns the newest protocol opened for the source record that is not yet
// completed. It returns sql.ErrNoRows when there is none.
func (r *ReentryRepository) FindOpenBySource(ctx context.Context, source models.ReentrySource, sourceID string) (*models.ReentryProtocol, error) {
	query := fmt.Sprintf(`SELECT %s FROM reentry_protocols
WHERE source_type = $1 AND source_id = $2 AND status <> 'completed'
ORDER BY created_at DESC LIMIT 1`, reentryColumns)
	var p models.ReentryProtocol
	if err := r.db.GetContext(ctx, &p, query, source, sourceID); err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns protocols matching the filter, newest first.
func (r *ReentryRepository) List(ctx context.Context, filter models.ReentryFilter) ([]models.ReentryProtocol, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		where = append(where, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		args = append(args, pq.Array(statusStrings(filter.Statuses)))
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	whereClause := strings.Join(where, " AND ")
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM reentry_protocols WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, reentryColumns, whereClause, size, (page-1)*size)
	var protocols []models.ReentryProtocol
	if err := r.db.SelectContext(ctx, &protocols, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list reentry protocols: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf(`SELECT COUNT(*) FROM reentry_protocols WHERE %s`, whereClause), args...); err != nil {
		return nil, 0, fmt.Errorf("count reentry protocols: %w", err)
	}
	return protocols, total, nil
}

// UpdateReentryParams describes a partial update of a protocol.
type UpdateReentryParams struct {
	ExpectedStatuses    []models.ReentryStatus
	Status              *models.ReentryStatus
	Checklist           models.Checklist
	ReadinessVerifiedBy *string
	ReadinessVerifiedAt *time.Time
	Outcome             *models.ReentryOutcome
	OutcomeNotes        *string
	CompletedAt         *time.Time
	// UnchangedSince guards checklist rewrites against concurrent item updates.
	UnchangedSince *time.Time
}

// Update applies the changes and returns the updated row. It returns sql.ErrNoRows
// when the protocol does not exist, is not in an expected status or was written
// after UnchangedSince.
func (r *ReentryRepository) Update(ctx context.Context, id string, params UpdateReentryParams) (*models.ReentryProtocol, error) {
	u := newUpdateBuilder()
	if params.Status != nil {
		u.set("status", *params.Status)
	}
	if params.Checklist != nil {
		u.set("readiness_checklist", params.Checklist)
	}
	if params.ReadinessVerifiedBy != nil {
		u.set("readiness_verified_by", *params.ReadinessVerifiedBy)
	}
	if params.ReadinessVerifiedAt != nil {
		u.set("readiness_verified_at", *params.ReadinessVerifiedAt)
	}
	if params.Outcome != nil {
		u.set("outcome", *params.Outcome)
	}
	if params.OutcomeNotes != nil {
		u.set("outcome_notes", *params.OutcomeNotes)
	}
	if params.CompletedAt != nil {
		u.set("completed_at", *params.CompletedAt)
	}
	if u.empty() {
		return nil, fmt.Errorf("update reentry protocol: no changes")
	}
	u.set("updated_at", time.Now().UTC())
	u.unchangedSince(params.UnchangedSince)

	query, args := u.build("reentry_protocols", id, statusStrings(params.ExpectedStatuses), reentryColumns)
	var p models.ReentryProtocol
	if err := r.db.GetContext(ctx, &p, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("update reentry protocol: %w", err)
	}
	return &p, nil
}

// AppendDailyLog appends a log entry to an active protocol without rewriting earlier entries.
func (r *ReentryRepository) AppendDailyLog(ctx context.Context, id string, log models.ReentryDailyLog) (*models.ReentryProtocol, error) {
	entry, err := models.DailyLogs{log}.Value()
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`UPDATE reentry_protocols
SET daily_logs = COALESCE(daily_logs, '[]'::jsonb) || $1::jsonb, updated_at = $2
WHERE id = $3 AND status = 'active'
RETURNING %s`, reentryColumns)
	var p models.ReentryProtocol
	if err := r.db.GetContext(ctx, &p, query, entry, time.Now().UTC(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("append reentry daily log: %w", err)
	}
	return &p, nil
}

// ListRecent returns the newest protocols created in the range.
func (r *ReentryRepository) ListRecent(ctx context.Context, start, end time.Time, limit int) ([]models.ReentryProtocol, error) {
	query := fmt.Sprintf(`SELECT %s FROM reentry_protocols WHERE created_at BETWEEN $1 AND $2 ORDER BY created_at DESC LIMIT $3`, reentryColumns)
	var out []models.ReentryProtocol
	if err := r.db.SelectContext(ctx, &out, query, start, end, limit); err != nil {
		return nil, fmt.Errorf("list recent reentry protocols: %w", err)
	}
	return out, nil
}
