package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/house-points-api/internal/models"
	"github.com/noah-isme/house-points-api/pkg/jobs"
)

// Progress milestones reported while a job renders.
const (
	progressStarted  = 10
	progressComplete = 100
)

// ReportWorker renders report.generate jobs. Failures before the last attempt put the job
// back to QUEUED so the queue's retry picks it up again.
type ReportWorker struct {
	repo       reportJobStore
	exporter   exportGenerator
	logger     *zap.Logger
	maxRetries int
	now        func() time.Time
}

// NewReportWorker constructs a worker.
func NewReportWorker(repo reportJobStore, exporter exportGenerator, maxRetries int, logger *zap.Logger) *ReportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &ReportWorker{repo: repo, exporter: exporter, logger: logger, maxRetries: maxRetries, now: time.Now}
}

// Handle is the jobs.Handler for JobTypeReportGenerate.
func (w *ReportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("load report job %s: %w", job.ID, err)
	}
	if err := markJob(ctx, w.repo, job.ID, jobUpdate(models.ReportStatusProcessing, progressStarted)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			w.logger.Info("report job no longer queued, skipping", zap.String("job_id", job.ID))
			return nil
		}
		return err
	}
	log := w.logger.With(zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))

	result, err := w.exporter.Generate(ctx, record)
	if err != nil {
		w.fail(ctx, log, job, err)
		return err
	}

	done := jobUpdate(models.ReportStatusFinished, progressComplete)
	url, cleared, at := result.URL, "", w.now().UTC()
	done.ResultURL = &url
	done.ErrorMessage = &cleared
	done.FinishedAt = &at
	if err := markJob(ctx, w.repo, job.ID, done); err != nil {
		log.Warn("failed to mark report job finished", zap.Error(err))
		return err
	}
	log.Info("report job finished", zap.String("type", string(record.Type)))
	return nil
}

func (w *ReportWorker) fail(ctx context.Context, log *zap.Logger, job jobs.Job, cause error) {
	update := jobUpdate(models.ReportStatusQueued, 0)
	reason := cause.Error()
	update.ErrorMessage = &reason
	if job.Attempt >= w.maxRetries {
		update = jobUpdate(models.ReportStatusFailed, progressComplete).failed(reason, w.now())
	}
	if err := markJob(ctx, w.repo, job.ID, update); err != nil {
		log.Warn("failed to record report job failure", zap.String("status", string(*update.Status)), zap.Error(err))
	}
}
