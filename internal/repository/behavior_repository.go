package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/house-points-api/internal/models"
)

const behaviorEventColumns = `id, student_id, kind, event_date, class_context, staff_id, category, subcategory, points, notes, created_by, created_at`

// BehaviorRepository reads and appends behaviour events. Events are never updated or deleted.
type BehaviorRepository struct {
	db *sqlx.DB
}

// NewBehaviorRepository constructs a new repository.
func NewBehaviorRepository(db *sqlx.DB) *BehaviorRepository {
	return &BehaviorRepository{db: db}
}

// List returns behaviour events per provided filter.
func (r *BehaviorRepository) List(ctx context.Context, filter models.BehaviorEventFilter) ([]models.BehaviorEvent, int, error) {
	base := "FROM behavior_events"
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("event_date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("event_date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	if len(filter.Kinds) > 0 {
		values := make([]string, len(filter.Kinds))
		for i, k := range filter.Kinds {
			values[i] = string(k)
		}
		where = append(where, fmt.Sprintf("kind = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(values))
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
	offset := (page - 1) * size
	query := fmt.Sprintf(`SELECT %s
%s WHERE %s ORDER BY event_date DESC, created_at DESC LIMIT %d OFFSET %d`, behaviorEventColumns, base, whereClause, size, offset)
	var events []models.BehaviorEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list behavior events: %w", err)
	}
	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count behavior events: %w", err)
	}
	return events, total, nil
}

// ListSince returns every event dated on or after since. An empty studentID reads all students.
func (r *BehaviorRepository) ListSince(ctx context.Context, studentID string, since time.Time) ([]models.BehaviorEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM behavior_events WHERE event_date >= $1`, behaviorEventColumns)
	args := []interface{}{since}
	if studentID != "" {
		query += " AND student_id = $2"
		args = append(args, studentID)
	}
	query += " ORDER BY student_id, event_date"
	var events []models.BehaviorEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("list behavior events since: %w", err)
	}
	return events, nil
}

// Create appends a new behaviour event.
func (r *BehaviorRepository) Create(ctx context.Context, event *models.BehaviorEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO behavior_events (id, student_id, kind, event_date, class_context, staff_id, category, subcategory, points, notes, created_by, created_at)
VALUES (:id, :student_id, :kind, :event_date, :class_context, :staff_id, :category, :subcategory, :points, :notes, :created_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create behavior event: %w", err)
	}
	return nil
}

// DemeritPointsSince sums the magnitude of a student's demerit points dated on or after since.
// A zero since sums the student's whole history.
func (r *BehaviorRepository) DemeritPointsSince(ctx context.Context, studentID string, since time.Time) (int, error) {
	query := `SELECT COALESCE(SUM(ABS(points)), 0) FROM behavior_events WHERE student_id = $1 AND kind = 'demerit'`
	args := []interface{}{studentID}
	if !since.IsZero() {
		query += " AND event_date >= $2"
		args = append(args, since)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("sum demerit points: %w", err)
	}
	return total, nil
}
