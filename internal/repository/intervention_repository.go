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

const (
	levelAColumns = `id, student_id, staff_id, domain, intervention_type, description, outcome, repeated_same_day, affected_others, escalated_to_b, occurred_at, created_at`

	levelBColumns = `id, student_id, staff_id, domain, escalation_trigger, level_a_id, status,
step1_completed, regulate_notes, step2_completed, pattern_notes, step3_completed, reflection_prompts,
step4_completed, repair_action, step5_completed, replacement_skill, step6_completed, reset_goal, reset_timeline,
step7_completed, documented, monitoring_start, monitoring_end, monitoring_method, daily_success_rates,
final_success_rate, escalated_to_c, escalation_reason, completed_at, created_at, updated_at`

	levelCColumns = `id, student_id, case_manager_id, trigger_type, case_type, level_b_ids, status, context_packet,
admin_response, support_plan, monitoring_duration_days, review_dates, daily_check_ins, reentry_protocol_id,
closure_date, outcome_status, closure_notes, created_at, updated_at`
)

// InterventionRepository persists Level A, Level B and Level C records.
// Every state change is a partial update of the owning row.
type InterventionRepository struct {
	db *sqlx.DB
}

// NewInterventionRepository constructs the repository.
func NewInterventionRepository(db *sqlx.DB) *InterventionRepository {
	return &InterventionRepository{db: db}
}

const insertLevelA = `INSERT INTO level_a_interventions (id, student_id, staff_id, domain, intervention_type, description, outcome, repeated_same_day, affected_others, escalated_to_b, occurred_at, created_at)
VALUES (:id, :student_id, :staff_id, :domain, :intervention_type, :description, :outcome, :repeated_same_day, :affected_others, :escalated_to_b, :occurred_at, :created_at)`

const insertLevelB = `INSERT INTO level_b_interventions (id, student_id, staff_id, domain, escalation_trigger, level_a_id, status,
step1_completed, regulate_notes, step2_completed, pattern_notes, step3_completed, reflection_prompts,
step4_completed, repair_action, step5_completed, replacement_skill, step6_completed, reset_goal, reset_timeline,
step7_completed, documented, monitoring_start, monitoring_end, monitoring_method, daily_success_rates,
final_success_rate, escalated_to_c, escalation_reason, completed_at, created_at, updated_at)
VALUES (:id, :student_id, :staff_id, :domain, :escalation_trigger, :level_a_id, :status,
:step1_completed, :regulate_notes, :step2_completed, :pattern_notes, :step3_completed, :reflection_prompts,
:step4_completed, :repair_action, :step5_completed, :replacement_skill, :step6_completed, :reset_goal, :reset_timeline,
:step7_completed, :documented, :monitoring_start, :monitoring_end, :monitoring_method, :daily_success_rates,
:final_success_rate, :escalated_to_c, :escalation_reason, :completed_at, :created_at, :updated_at)`

// CreateLevelA inserts a Level A record. When escalation is non-nil the Level B
// record it opens is inserted in the same transaction.
func (r *InterventionRepository) CreateLevelA(ctx context.Context, a *models.LevelAIntervention, escalation *models.LevelBIntervention) error {
	now := time.Now().UTC()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.IncidentAt.IsZero() {
		a.IncidentAt = now
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin level a tx: %w", err)
	}
	if _, err := tx.NamedExecContext(ctx, insertLevelA, a); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("create level a intervention: %w", err)
	}
	if escalation != nil {
		escalation.LevelAID = &a.ID
		prepareLevelB(escalation, now)
		if _, err := tx.NamedExecContext(ctx, insertLevelB, escalation); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("create escalated level b intervention: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit level a tx: %w", err)
	}
	return nil
}

// GetLevelA loads a Level A record.
func (r *InterventionRepository) GetLevelA(ctx context.Context, id string) (*models.LevelAIntervention, error) {
	query := fmt.Sprintf(`SELECT %s FROM level_a_interventions WHERE id = $1`, levelAColumns)
	var a models.LevelAIntervention
	if err := r.db.GetContext(ctx, &a, query, id); err != nil {
		return nil, err
	}
	return &a, nil
}

// CountLevelASameDomain counts a student's Level A records in a domain since the cutoff.
func (r *InterventionRepository) CountLevelASameDomain(ctx context.Context, studentID string, domain models.Domain, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM level_a_interventions WHERE student_id = $1 AND domain = $2 AND occurred_at >= $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID, domain, since); err != nil {
		return 0, fmt.Errorf("count same-domain level a: %w", err)
	}
	return count, nil
}

// CreateLevelB inserts a Level B record.
func (r *InterventionRepository) CreateLevelB(ctx context.Context, b *models.LevelBIntervention) error {
	prepareLevelB(b, time.Now().UTC())
	if _, err := r.db.NamedExecContext(ctx, insertLevelB, b); err != nil {
		return fmt.Errorf("create level b intervention: %w", err)
	}
	return nil
}

func prepareLevelB(b *models.LevelBIntervention, now time.Time) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = models.LevelBInProgress
	}
	if b.DailyRates == nil {
		b.DailyRates = models.DailyRates{}
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

// GetLevelB loads a Level B record.
func (r *InterventionRepository) GetLevelB(ctx context.Context, id string) (*models.LevelBIntervention, error) {
	query := fmt.Sprintf(`SELECT %s FROM level_b_interventions WHERE id = $1`, levelBColumns)
	var b models.LevelBIntervention
	if err := r.db.GetContext(ctx, &b, query, id); err != nil {
		return nil, err
	}
	return &b, nil
}

// CountLevelB counts every Level B cycle a student has been through.
func (r *InterventionRepository) CountLevelB(ctx context.Context, studentID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM level_b_interventions WHERE student_id = $1`, studentID); err != nil {
		return 0, fmt.Errorf("count level b: %w", err)
	}
	return count, nil
}

// UpdateLevelBParams describes a partial update. Step flags can only be set, never cleared.
type UpdateLevelBParams struct {
	ExpectedStatuses  []models.LevelBStatus
	Status            *models.LevelBStatus
	CompleteStep      int
	RegulateNotes     *string
	PatternNotes      *string
	ReflectionPrompts []string
	RepairAction      *string
	ReplacementSkill  *string
	ResetGoal         *string
	ResetTimeline     *string
	Documented        bool
	MonitoringStart   *time.Time
	MonitoringEnd     *time.Time
	MonitoringMethod  *models.MonitoringMethod
	FinalSuccessRate  *float64
	EscalatedToC      bool
	EscalationReason  *string
	CompletedAt       *time.Time
}

// UpdateLevelB applies the changes and returns the updated row. It returns
// sql.ErrNoRows when the record does not exist or is not in an expected status.
func (r *InterventionRepository) UpdateLevelB(ctx context.Context, id string, params UpdateLevelBParams) (*models.LevelBIntervention, error) {
	query, args, err := levelBUpdate(id, params)
	if err != nil {
		return nil, err
	}
	var b models.LevelBIntervention
	if err := r.db.GetContext(ctx, &b, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("update level b intervention: %w", err)
	}
	return &b, nil
}

// EscalateLevelB closes a Level B record and inserts the Level C case it escalated to in
// one transaction. Like UpdateLevelB it returns sql.ErrNoRows when the record is not in
// an expected status, and nothing is written in that case.
func (r *InterventionRepository) EscalateLevelB(ctx context.Context, id string, params UpdateLevelBParams, c *models.LevelCCase) (*models.LevelBIntervention, error) {
	query, args, err := levelBUpdate(id, params)
	if err != nil {
		return nil, err
	}
	prepareLevelC(c, time.Now().UTC())
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin level b escalation tx: %w", err)
	}
	var b models.LevelBIntervention
	if err := tx.GetContext(ctx, &b, query, args...); err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("escalate level b intervention: %w", err)
	}
	if _, err := tx.NamedExecContext(ctx, insertLevelC, c); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("create level c case: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit level b escalation tx: %w", err)
	}
	return &b, nil
}

func levelBUpdate(id string, params UpdateLevelBParams) (string, []interface{}, error) {
	u := newUpdateBuilder()
	if params.Status != nil {
		u.set("status", *params.Status)
	}
	if params.CompleteStep >= 1 && params.CompleteStep <= models.LevelBStepCount {
		u.raw(fmt.Sprintf("step%d_completed = TRUE", params.CompleteStep))
	}
	if params.RegulateNotes != nil {
		u.set("regulate_notes", *params.RegulateNotes)
	}
	if params.PatternNotes != nil {
		u.set("pattern_notes", *params.PatternNotes)
	}
	if params.ReflectionPrompts != nil {
		u.set("reflection_prompts", pq.Array(params.ReflectionPrompts))
	}
	if params.RepairAction != nil {
		u.set("repair_action", *params.RepairAction)
	}
	if params.ReplacementSkill != nil {
		u.set("replacement_skill", *params.ReplacementSkill)
	}
	if params.ResetGoal != nil {
		u.set("reset_goal", *params.ResetGoal)
	}
	if params.ResetTimeline != nil {
		u.set("reset_timeline", *params.ResetTimeline)
	}
	if params.Documented {
		u.raw("documented = TRUE")
	}
	if params.MonitoringStart != nil {
		u.set("monitoring_start", *params.MonitoringStart)
	}
	if params.MonitoringEnd != nil {
		u.set("monitoring_end", *params.MonitoringEnd)
	}
	if params.MonitoringMethod != nil {
		u.set("monitoring_method", *params.MonitoringMethod)
	}
	if params.FinalSuccessRate != nil {
		u.set("final_success_rate", *params.FinalSuccessRate)
	}
	if params.EscalatedToC {
		u.raw("escalated_to_c = TRUE")
	}
	if params.EscalationReason != nil {
		u.set("escalation_reason", *params.EscalationReason)
	}
	if params.CompletedAt != nil {
		u.set("completed_at", *params.CompletedAt)
	}
	if u.empty() {
		return "", nil, fmt.Errorf("update level b: no changes")
	}
	u.set("updated_at", time.Now().UTC())

	query, args := u.build("level_b_interventions", id, statusStrings(params.ExpectedStatuses), levelBColumns)
	return query, args, nil
}

// AppendLevelBDailyRate merges one dated rate into the monitoring map of a record in monitoring.
func (r *InterventionRepository) AppendLevelBDailyRate(ctx context.Context, id, date string, rate float64) (*models.LevelBIntervention, error) {
	query := fmt.Sprintf(`UPDATE level_b_interventions
SET daily_success_rates = COALESCE(daily_success_rates, '{}'::jsonb) || jsonb_build_object($1::text, $2::numeric), updated_at = $3
WHERE id = $4 AND status = 'monitoring'
RETURNING %s`, levelBColumns)
	var b models.LevelBIntervention
	if err := r.db.GetContext(ctx, &b, query, date, rate, time.Now().UTC(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("append level b daily rate: %w", err)
	}
	return &b, nil
}

const insertLevelC = `INSERT INTO level_c_cases (id, student_id, case_manager_id, trigger_type, case_type, level_b_ids, status, context_packet,
admin_response, support_plan, monitoring_duration_days, review_dates, daily_check_ins, reentry_protocol_id,
closure_date, outcome_status, closure_notes, created_at, updated_at)
VALUES (:id, :student_id, :case_manager_id, :trigger_type, :case_type, :level_b_ids, :status, :context_packet,
:admin_response, :support_plan, :monitoring_duration_days, :review_dates, :daily_check_ins, :reentry_protocol_id,
:closure_date, :outcome_status, :closure_notes, :created_at, :updated_at)`

// CreateLevelC inserts a Level C case.
func (r *InterventionRepository) CreateLevelC(ctx context.Context, c *models.LevelCCase) error {
	prepareLevelC(c, time.Now().UTC())
	if _, err := r.db.NamedExecContext(ctx, insertLevelC, c); err != nil {
		return fmt.Errorf("create level c case: %w", err)
	}
	return nil
}

func prepareLevelC(c *models.LevelCCase, now time.Time) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = models.LevelCActive
	}
	if c.OutcomeStatus == "" {
		c.OutcomeStatus = models.LevelCOutcomeActive
	}
	if c.LevelBIDs == nil {
		c.LevelBIDs = pq.StringArray{}
	}
	if c.CheckIns == nil {
		c.CheckIns = models.CheckIns{}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
}

// GetLevelC loads a Level C case.
func (r *InterventionRepository) GetLevelC(ctx context.Context, id string) (*models.LevelCCase, error) {
	query := fmt.Sprintf(`SELECT %s FROM level_c_cases WHERE id = $1`, levelCColumns)
	var c models.LevelCCase
	if err := r.db.GetContext(ctx, &c, query, id); err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateLevelCParams describes a partial update of a case.
type UpdateLevelCParams struct {
	ExpectedStatuses       []models.LevelCStatus
	Status                 *models.LevelCStatus
	ContextPacket          *models.ContextPacket
	AdminResponse          *models.AdminResponse
	SupportPlan            *models.SupportPlan
	MonitoringDurationDays *int
	ReviewDates            []string
	ReentryProtocolID      *string
	ClosureDate            *time.Time
	OutcomeStatus          *models.LevelCOutcome
	ClosureNotes           *string
	// UnchangedSince guards read-modify-write updates of the JSONB columns.
	UnchangedSince *time.Time
}

// UpdateLevelC applies the changes and returns the updated row. It returns
// sql.ErrNoRows when the case does not exist, is not in an expected status or
// was written after UnchangedSince.
func (r *InterventionRepository) UpdateLevelC(ctx context.Context, id string, params UpdateLevelCParams) (*models.LevelCCase, error) {
	u := newUpdateBuilder()
	if params.Status != nil {
		u.set("status", *params.Status)
	}
	if params.ContextPacket != nil {
		u.set("context_packet", *params.ContextPacket)
	}
	if params.AdminResponse != nil {
		u.set("admin_response", *params.AdminResponse)
	}
	if params.SupportPlan != nil {
		u.set("support_plan", *params.SupportPlan)
	}
	if params.MonitoringDurationDays != nil {
		u.set("monitoring_duration_days", *params.MonitoringDurationDays)
	}
	if params.ReviewDates != nil {
		u.set("review_dates", pq.Array(params.ReviewDates))
	}
	if params.ReentryProtocolID != nil {
		u.set("reentry_protocol_id", *params.ReentryProtocolID)
	}
	if params.ClosureDate != nil {
		u.set("closure_date", *params.ClosureDate)
	}
	if params.OutcomeStatus != nil {
		u.set("outcome_status", *params.OutcomeStatus)
	}
	if params.ClosureNotes != nil {
		u.set("closure_notes", *params.ClosureNotes)
	}
	if u.empty() {
		return nil, fmt.Errorf("update level c: no changes")
	}
	u.set("updated_at", time.Now().UTC())
	u.unchangedSince(params.UnchangedSince)

	query, args := u.build("level_c_cases", id, statusStrings(params.ExpectedStatuses), levelCColumns)
	var c models.LevelCCase
	if err := r.db.GetContext(ctx, &c, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("update level c case: %w", err)
	}
	return &c, nil
}

// AppendLevelCCheckIn appends a check-in to a case in monitoring.
func (r *InterventionRepository) AppendLevelCCheckIn(ctx context.Context, id string, checkIn models.LevelCCheckIn) (*models.LevelCCase, error) {
	entry, err := models.CheckIns{checkIn}.Value()
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`UPDATE level_c_cases
SET daily_check_ins = COALESCE(daily_check_ins, '[]'::jsonb) || $1::jsonb, updated_at = $2
WHERE id = $3 AND status = 'monitoring'
RETURNING %s`, levelCColumns)
	var c models.LevelCCase
	if err := r.db.GetContext(ctx, &c, query, entry, time.Now().UTC(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("append level c check-in: %w", err)
	}
	return &c, nil
}

// ListRecentLevelA returns the newest Level A records in the range.
func (r *InterventionRepository) ListRecentLevelA(ctx context.Context, start, end time.Time, limit int) ([]models.LevelAIntervention, error) {
	query := fmt.Sprintf(`SELECT %s FROM level_a_interventions WHERE occurred_at BETWEEN $1 AND $2 ORDER BY occurred_at DESC LIMIT $3`, levelAColumns)
	var out []models.LevelAIntervention
	if err := r.db.SelectContext(ctx, &out, query, start, end, limit); err != nil {
		return nil, fmt.Errorf("list recent level a: %w", err)
	}
	return out, nil
}

// ListRecentLevelB returns the newest Level B records in the range.
func (r *InterventionRepository) ListRecentLevelB(ctx context.Context, start, end time.Time, limit int) ([]models.LevelBIntervention, error) {
	query := fmt.Sprintf(`SELECT %s FROM level_b_interventions WHERE created_at BETWEEN $1 AND $2 ORDER BY created_at DESC LIMIT $3`, levelBColumns)
	var out []models.LevelBIntervention
	if err := r.db.SelectContext(ctx, &out, query, start, end, limit); err != nil {
		return nil, fmt.Errorf("list recent level b: %w", err)
	}
	return out, nil
}

// ListRecentLevelC returns the newest Level C cases in the range.
func (r *InterventionRepository) ListRecentLevelC(ctx context.Context, start, end time.Time, limit int) ([]models.LevelCCase, error) {
	query := fmt.Sprintf(`SELECT %s FROM level_c_cases WHERE created_at BETWEEN $1 AND $2 ORDER BY created_at DESC LIMIT $3`, levelCColumns)
	var out []models.LevelCCase
	if err := r.db.SelectContext(ctx, &out, query, start, end, limit); err != nil {
		return nil, fmt.Errorf("list recent level c: %w", err)
	}
	return out, nil
}

// updateBuilder assembles "SET col = $n" lists for partial updates.
type updateBuilder struct {
	clauses   []string
	args      []interface{}
	updatedAt *time.Time
}

func newUpdateBuilder() *updateBuilder {
	return &updateBuilder{}
}

func (u *updateBuilder) set(column string, value interface{}) {
	u.args = append(u.args, value)
	u.clauses = append(u.clauses, fmt.Sprintf("%s = $%d", column, len(u.args)))
}

func (u *updateBuilder) raw(expr string) {
	u.clauses = append(u.clauses, expr)
}

// unchangedSince makes the update apply only while updated_at still holds the value read.
func (u *updateBuilder) unchangedSince(at *time.Time) {
	u.updatedAt = at
}

func (u *updateBuilder) empty() bool {
	return len(u.clauses) == 0
}

// build renders an UPDATE guarded by id and, when given, by status. An empty returning
// list omits the RETURNING clause.
func (u *updateBuilder) build(table, id string, statuses []string, returning string) (string, []interface{}) {
	args := append([]interface{}{}, u.args...)
	args = append(args, id)
	where := fmt.Sprintf("id = $%d", len(args))
	if len(statuses) > 0 {
		args = append(args, pq.Array(statuses))
		where += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}
	if u.updatedAt != nil {
		args = append(args, *u.updatedAt)
		where += fmt.Sprintf(" AND updated_at = $%d", len(args))
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(u.clauses, ", "), where)
	if returning != "" {
		query += " RETURNING " + returning
	}
	return query, args
}

func statusStrings[T ~string](statuses []T) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
