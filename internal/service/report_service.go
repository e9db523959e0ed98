package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/house-points-api/internal/dto"
	"github.com/noah-isme/house-points-api/internal/models"
	"github.com/noah-isme/house-points-api/internal/repository"
	appErrors "github.com/noah-isme/house-points-api/pkg/errors"
	"github.com/noah-isme/house-points-api/pkg/jobs"
	"github.com/noah-isme/house-points-api/pkg/timeutil"
)

const (
	// JobTypeReportGenerate is the queue job type for report exports.
	JobTypeReportGenerate = "report.generate"

	recoverBatch = 50
	cleanupBatch = 100
)

type reportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	GetByID(ctx context.Context, id string) (*models.ReportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type exportGenerator interface {
	Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error)
}

// ReportService accepts export requests and serves finished files.
type ReportService struct {
	repo     reportJobStore
	queue    jobDispatcher
	exporter *ExportService
	logger   *zap.Logger
	cfg      ReportServiceConfig
	now      func() time.Time
}

// ReportServiceConfig governs queue recovery and cleanup.
type ReportServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
	MaxRetries      int
}

// ReportDownload is an open export file ready to stream. The caller closes File.
type ReportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ReportFormat
	ExpiresAt time.Time
}

// NewReportService constructs the report service.
func NewReportService(repo reportJobStore, queue jobDispatcher, exporter *ExportService, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &ReportService{
		repo:     repo,
		queue:    queue,
		exporter: exporter,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// CreateJob validates the request, persists the job and enqueues processing.
func (s *ReportService) CreateJob(ctx context.Context, req dto.ReportRequest, actorID string) (*dto.ReportJobResponse, error) {
	params, err := buildReportParams(req)
	if err != nil {
		return nil, err
	}
	job := &models.ReportJob{
		Type:      req.Type,
		Params:    params,
		Status:    models.ReportStatusQueued,
		CreatedBy: actorID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: JobTypeReportGenerate}); err != nil {
		update := jobUpdate(models.ReportStatusFailed, 100).failed("could not be queued", s.now())
		if markErr := markJob(ctx, s.repo, job.ID, update); markErr != nil {
			s.logger.Warn("failed to mark report job failed", zap.String("job_id", job.ID), zap.Error(markErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
	}
	return &dto.ReportJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus exposes job metadata. Teachers may only read their own jobs.
func (s *ReportService) GetStatus(ctx context.Context, id string, actorID string, role models.UserRole) (*dto.ReportStatusResponse, error) {
	job, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if role == models.RoleTeacher && job.CreatedBy != actorID {
		return nil, appErrors.ErrForbidden
	}
	resp := &dto.ReportStatusResponse{
		ID:       job.ID,
		Type:     job.Type,
		Status:   job.Status,
		Progress: job.Progress,
	}
	if job.Status == models.ReportStatusFinished {
		resp.ResultURL = job.ResultURL
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

func (s *ReportService) load(ctx context.Context, id string) (*models.ReportJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
	case err != nil:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	return job, nil
}

// ResolveDownload validates token and opens the stored export file.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	jobID, relPath, expiresAt, err := s.exporter.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ResultURL == nil || tokenFromURL(*job.ResultURL) != token {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.ReportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report not ready")
	}
	file, err := s.exporter.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ReportDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		Format:    job.Params.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// RecoverPendingJobs replays queued jobs after a process restart.
func (s *ReportService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, recoverBatch)
	if err != nil {
		s.logger.Warn("failed to recover queued report jobs", zap.Error(err))
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: JobTypeReportGenerate}); err != nil {
			s.logger.Warn("failed to requeue pending report job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}

// StartCleanup boots a goroutine that purges expired exports periodically.
func (s *ReportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired(ctx)
			}
		}
	}()
}

func (s *ReportService) cleanupExpired(ctx context.Context) {
	cutoff := s.now().Add(-s.cfg.ResultTTL)
	for {
		expired, err := s.repo.ListFinishedBefore(ctx, cutoff, cleanupBatch)
		if err != nil {
			s.logger.Warn("report cleanup list failed", zap.Error(err))
			return
		}
		if len(expired) == 0 {
			break
		}
		for _, job := range expired {
			s.deleteResult(job)
			if err := markJob(ctx, s.repo, job.ID, jobUpdate(models.ReportStatusExpired, 100)); err != nil {
				s.logger.Warn("report cleanup update failed", zap.String("job_id", job.ID), zap.Error(err))
				return
			}
		}
		if len(expired) < cleanupBatch {
			break
		}
	}
	if _, err := s.exporter.Cleanup(s.cfg.ResultTTL); err != nil {
		s.logger.Warn("export filesystem cleanup failed", zap.Error(err))
	}
}

func (s *ReportService) deleteResult(job models.ReportJob) {
	if job.ResultURL == nil {
		return
	}
	token := tokenFromURL(*job.ResultURL)
	if token == "" {
		return
	}
	_, relPath, _, err := s.exporter.ParseToken(token, true)
	if err != nil {
		return
	}
	if err := s.exporter.Delete(relPath); err != nil {
		s.logger.Warn("report cleanup delete failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func buildReportParams(req dto.ReportRequest) (models.ReportJobParams, error) {
	params := models.ReportJobParams{Format: req.Format, Window: req.Window}
	if !req.Type.Valid() {
		return params, appErrors.Clone(appErrors.ErrValidation, "unsupported report type")
	}
	if !req.Format.Valid() {
		return params, appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}
	var err error
	if params.DateFrom, err = parseOptionalDate(req.DateFrom, "date_from"); err != nil {
		return params, err
	}
	if params.DateTo, err = parseOptionalDate(req.DateTo, "date_to"); err != nil {
		return params, err
	}
	if params.DateFrom != nil && params.DateTo != nil && params.DateFrom.After(*params.DateTo) {
		return params, appErrors.Clone(appErrors.ErrValidation, "date_from must not be after date_to")
	}
	if req.Type == models.ReportTypeStudentInsights {
		if req.Window != "" && req.Window != models.InsightWindow7d && req.Window != models.InsightWindow30d {
			return params, appErrors.Clone(appErrors.ErrValidation, "window must be 7d or 30d")
		}
		for _, level := range req.RiskLevels {
			switch level {
			case models.RiskGreen, models.RiskYellow, models.RiskRed:
				params.RiskLevels = append(params.RiskLevels, level)
			default:
				return params, appErrors.Clone(appErrors.ErrValidation, "unknown risk level "+string(level))
			}
		}
	}
	return params, nil
}

func parseOptionalDate(raw *string, field string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	t, err := timeutil.ParseDate(strings.TrimSpace(*raw))
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, field+" must be YYYY-MM-DD")
	}
	return &t, nil
}

// tokenFromURL returns the last path segment of a download URL.
func tokenFromURL(url string) string {
	return url[strings.LastIndex(url, "/")+1:]
}

// reportUpdate is a status change plus the columns that move with it.
type reportUpdate struct {
	repository.UpdateReportJobParams
}

func jobUpdate(status models.ReportStatus, progress int) reportUpdate {
	u := reportUpdate{}
	u.Status = &status
	u.Progress = &progress
	return u
}

func (u reportUpdate) failed(reason string, at time.Time) reportUpdate {
	at = at.UTC()
	u.ErrorMessage = &reason
	u.FinishedAt = &at
	return u
}

// markJob applies u only while the row sits in a status allowed to move to u.Status, so a
// stale worker or cleanup pass never rewinds a job. A refused move surfaces as sql.ErrNoRows.
func markJob(ctx context.Context, repo reportJobStore, id string, u reportUpdate) error {
	u.ExpectedStatuses = models.ReportStatusesBefore(*u.Status)
	return repo.Update(ctx, id, u.UpdateReportJobParams)
}
