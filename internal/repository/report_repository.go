package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/house-points-api/internal/models"
)

const reportJobColumns = `id, type, params, status, progress, result_url, created_by, created_at, finished_at, error_message`

// ReportRepository stores export job rows. Rendered files live in pkg/storage.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts a job. ID, status and creation time are filled in when empty.
func (r *ReportRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ReportStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO report_jobs (` + reportJobColumns + `)
VALUES (:id, :type, :params, :status, :progress, :result_url, :created_by, :created_at, :finished_at, :error_message)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("insert report job %s: %w", job.Type, err)
	}
	return nil
}

// GetByID returns sql.ErrNoRows (wrapped) for an unknown job.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	var job models.ReportJob
	query := `SELECT ` + reportJobColumns + ` FROM report_jobs WHERE id = $1`
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, fmt.Errorf("get report job %s: %w", id, err)
	}
	return &job, nil
}

// UpdateReportJobParams lists the columns a worker may change. Nil fields are left alone.
type UpdateReportJobParams struct {
	Status       *models.ReportStatus
	Progress     *int
	ResultURL    *string
	ErrorMessage *string
	FinishedAt   *time.Time
	// ExpectedStatuses restricts the update to rows currently in one of these states.
	ExpectedStatuses []models.ReportStatus
}

// Update applies params. It returns sql.ErrNoRows when no row matched the id and status guard.
func (r *ReportRepository) Update(ctx context.Context, id string, params UpdateReportJobParams) error {
	u := newUpdateBuilder()
	if params.Status != nil {
		u.set("status", *params.Status)
	}
	if params.Progress != nil {
		u.set("progress", *params.Progress)
	}
	if params.ResultURL != nil {
		u.set("result_url", *params.ResultURL)
	}
	if params.ErrorMessage != nil {
		u.set("error_message", *params.ErrorMessage)
	}
	if params.FinishedAt != nil {
		u.set("finished_at", *params.FinishedAt)
	}
	if u.empty() {
		return nil
	}

	query, args := u.build("report_jobs", id, statusStrings(params.ExpectedStatuses), "")
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update report job %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update report job %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// ListQueued returns the oldest queued jobs so they can be replayed after a restart.
func (r *ReportRepository) ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error) {
	if limit <= 0 {
		limit = 20
	}
	return r.selectJobs(ctx, "queued",
		`WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1`, limit)
}

// ListFinishedBefore returns finished jobs whose result is older than cutoff.
func (r *ReportRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.selectJobs(ctx, "finished",
		`WHERE status = 'FINISHED' AND finished_at IS NOT NULL AND finished_at < $1 ORDER BY finished_at ASC LIMIT $2`, cutoff, limit)
}

func (r *ReportRepository) selectJobs(ctx context.Context, label, where string, args ...interface{}) ([]models.ReportJob, error) {
	jobs := []models.ReportJob{}
	query := `SELECT ` + reportJobColumns + ` FROM report_jobs ` + where
	if err := r.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("list %s report jobs: %w", label, err)
	}
	return jobs, nil
}
