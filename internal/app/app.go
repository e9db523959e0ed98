// Package app builds the service graph shared by the HTTP server and the operator CLI.
package app

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/house-points-api/internal/models"
	"github.com/noah-isme/house-points-api/internal/repository"
	"github.com/noah-isme/house-points-api/internal/service"
	"github.com/noah-isme/house-points-api/pkg/cache"
	"github.com/noah-isme/house-points-api/pkg/config"
	"github.com/noah-isme/house-points-api/pkg/database"
	"github.com/noah-isme/house-points-api/pkg/jobs"
	"github.com/noah-isme/house-points-api/pkg/mailer"
	"github.com/noah-isme/house-points-api/pkg/storage"
)

// Container holds the connections and services of one process.
type Container struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *sqlx.DB
	Redis  *redis.Client
	Queue  *jobs.Queue

	Metrics       *service.MetricsService
	Tokens        *service.TokenService
	Behavior      *service.BehaviorService
	Insights      *service.InsightService
	Interventions *service.InterventionService
	Reentry       *service.ReentryService
	Analytics     *service.AnalyticsService
	Digest        *service.DigestService
	Audit         *service.AuditService

	// Reports is nil when report exports are disabled.
	Reports *service.ReportService
}

// New connects to PostgreSQL and, when analytics caching is enabled, Redis. A Redis
// failure disables caching instead of failing start-up.
func New(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	c := &Container{Config: cfg, Logger: logger, DB: db, Metrics: service.NewMetricsService()}

	var cacheStore service.CacheRepository
	if cfg.Analytics.CacheEnabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, analytics cache disabled", zap.Error(err))
		} else {
			c.Redis = client
			cacheStore = repository.NewCacheRepository(client, logger)
		}
	}
	cacheSvc := service.NewCacheService(cacheStore, c.Metrics, cfg.Analytics.CacheTTL, logger, cacheStore != nil)

	policy := models.DefaultPolicy()
	validate := validator.New()

	behaviorRepo := repository.NewBehaviorRepository(db)
	insightRepo := repository.NewInsightRepository(db)
	interventionRepo := repository.NewInterventionRepository(db)
	reentryRepo := repository.NewReentryRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)
	digestRepo := repository.NewDigestRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	reports := repository.NewReportRepository(db)

	c.Tokens = service.NewTokenService(service.TokenConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})
	c.Insights = service.NewInsightService(behaviorRepo, insightRepo, policy, c.Metrics, logger)
	c.Reentry = service.NewReentryService(reentryRepo, auditRepo, policy, validate, c.Metrics, logger)
	c.Interventions = service.NewInterventionService(service.InterventionDeps{
		Repo:     interventionRepo,
		Points:   behaviorRepo,
		Patterns: insightRepo,
		Reentry:  c.Reentry,
		Audit:    auditRepo,
	}, policy, validate, c.Metrics, logger)
	c.Analytics = service.NewAnalyticsService(analyticsRepo, interventionRepo, reentryRepo, cacheSvc, policy, c.Metrics, logger).
		WithCacheTTL(cfg.Analytics.CacheTTL)
	notifier := service.NewNotificationService(mailer.New(cfg.Mail, logger), cfg.Mail.Templates, c.Metrics, logger)
	c.Digest = service.NewDigestService(digestRepo, analyticsRepo, notifier, cacheSvc, policy, logger)
	c.Audit = service.NewAuditService(auditRepo)

	mux := jobs.NewMux()
	mux.Handle(service.JobTypeInsightRecompute, c.Insights.HandleJob)
	workers := cfg.Insights.Workers
	retries := cfg.Insights.Retries

	var exporter *service.ExportService
	if cfg.Reports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init report storage: %w", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		exporter = service.NewExportService(c.Analytics, c.Insights, store, signer, service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Reports.SignedURLTTL,
		}, logger, nil, nil)
		worker := service.NewReportWorker(reports, exporter, cfg.Reports.WorkerRetries, logger)
		mux.Handle(service.JobTypeReportGenerate, worker.Handle)
		workers += cfg.Reports.WorkerConcurrency
		if cfg.Reports.WorkerRetries > retries {
			retries = cfg.Reports.WorkerRetries
		}
	}

	c.Queue = jobs.NewQueue("background", mux.Dispatch, jobs.QueueConfig{
		Workers:    workers,
		MaxRetries: retries,
		RetryDelay: cfg.Insights.RetryDelay,
		Logger:     logger,
	})

	if exporter != nil {
		c.Reports = service.NewReportService(reports, c.Queue, exporter, logger, service.ReportServiceConfig{
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
			MaxRetries:      cfg.Reports.WorkerRetries,
		})
	}

	var recompute interface{ TryEnqueue(jobs.Job) error }
	if cfg.Insights.QueueEnabled {
		recompute = c.Queue
	}
	c.Behavior = service.NewBehaviorService(behaviorRepo, recompute, validate, logger)
	return c, nil
}

// Start runs the background queue and, when reports are enabled, replays queued report jobs
// and schedules export cleanup. It returns once the workers are running.
func (c *Container) Start(ctx context.Context) {
	c.Queue.Start(ctx)
	if c.Reports != nil {
		c.Reports.RecoverPendingJobs(ctx)
		c.Reports.StartCleanup(ctx)
	}
}

// PingDatabase reports whether PostgreSQL answers.
func (c *Container) PingDatabase(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// PingRedis reports whether Redis answers. It is nil when caching is disabled.
func (c *Container) PingRedis(ctx context.Context) error {
	if c.Redis == nil {
		return nil
	}
	return c.Redis.Ping(ctx).Err()
}

// Close stops the queue and releases connections.
func (c *Container) Close() {
	if c.Queue != nil {
		c.Queue.Stop()
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if err := c.DB.Close(); err != nil {
		c.Logger.Warn("failed to close postgres", zap.Error(err))
	}
}
