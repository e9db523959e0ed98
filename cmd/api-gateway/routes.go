package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/house-points-api/internal/app"
	"github.com/noah-isme/house-points-api/internal/handler"
	"github.com/noah-isme/house-points-api/internal/middleware"
	"github.com/noah-isme/house-points-api/internal/models"
	"github.com/noah-isme/house-points-api/pkg/config"
)

var healthCheckPaths = []string{"/health", "/ready", "/metrics"}

var adminRoles = []models.UserRole{models.RoleSuperAdmin, models.RoleAdmin}

func registerRoutes(r *gin.Engine, cfg *config.Config, c *app.Container, logr *zap.Logger) {
	metrics := handler.NewMetricsHandler(c.Metrics, map[string]handler.ReadinessCheck{
		"postgres": c.PingDatabase,
		"redis":    c.PingRedis,
	})
	r.GET("/health", metrics.Health)
	r.GET("/ready", metrics.Ready)
	r.GET("/metrics", metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	var reports *handler.ReportHandler
	if c.Reports != nil {
		reports = handler.NewReportHandler(c.Reports, logr)
		// Download links are signed, so they are served without a bearer token.
		api.GET("/export/:token", reports.DownloadReport)
	}

	secured := api.Group("")
	secured.Use(middleware.JWT(c.Tokens))
	staff := secured.Group("", middleware.RequireRoles(models.StaffRoles...))
	managers := secured.Group("", middleware.RequireRoles(models.CaseManagerRoles...))
	admins := secured.Group("", middleware.RequireRoles(adminRoles...))

	behavior := handler.NewBehaviorHandler(c.Behavior)
	staff.GET("/behavior-events", behavior.List)
	staff.POST("/behavior-events", behavior.Create)

	insights := handler.NewInsightHandler(c.Insights)
	staff.GET("/insights/students/:id", insights.Student)
	staff.GET("/insights/at-risk", insights.AtRisk)
	staff.POST("/insights/students/:id/recompute", insights.RecomputeStudent)
	managers.POST("/insights/recompute", insights.RecomputeAll)

	interventions := handler.NewInterventionHandler(c.Interventions)
	staff.POST("/interventions/level-a", interventions.CreateLevelA)
	staff.GET("/interventions/level-a/:id", interventions.GetLevelA)
	staff.POST("/interventions/level-b", interventions.CreateLevelB)
	staff.GET("/interventions/level-b/:id", interventions.GetLevelB)
	staff.POST("/interventions/level-b/:id/steps/:step", interventions.CompleteLevelBStep)
	staff.POST("/interventions/level-b/:id/daily-rates", interventions.RecordLevelBDailyRate)
	staff.POST("/interventions/level-b/:id/close", interventions.CloseLevelB)
	staff.POST("/interventions/level-b/:id/cancel", interventions.CancelLevelB)
	managers.POST("/interventions/level-c", interventions.CreateLevelC)
	managers.GET("/interventions/level-c/:id", interventions.GetLevelC)
	managers.POST("/interventions/level-c/:id/context-packet", interventions.SubmitContextPacket)
	managers.POST("/interventions/level-c/:id/admin-response", interventions.RecordAdminResponse)
	managers.POST("/interventions/level-c/:id/support-plan", interventions.SubmitSupportPlan)
	managers.POST("/interventions/level-c/:id/checklist/:index", interventions.UpdateLevelCChecklistItem)
	managers.POST("/interventions/level-c/:id/monitoring", interventions.StartLevelCMonitoring)
	managers.POST("/interventions/level-c/:id/check-ins", interventions.LogLevelCCheckIn)
	managers.POST("/interventions/level-c/:id/close", interventions.CloseLevelC)

	reentry := handler.NewReentryHandler(c.Reentry)
	staff.GET("/reentry/script", reentry.Script)
	staff.GET("/reentry/:id", reentry.Get)
	staff.POST("/reentry/:id/logs", reentry.LogDailyEntry)
	managers.GET("/reentry", reentry.List)
	managers.POST("/reentry", reentry.Create)
	managers.POST("/reentry/:id/checklist/:index", reentry.UpdateChecklistItem)
	managers.POST("/reentry/:id/activate", reentry.Activate)
	managers.POST("/reentry/:id/complete", reentry.Complete)

	analytics := handler.NewAnalyticsHandler(c.Analytics)
	managers.GET("/analytics/interventions", analytics.Dashboard)
	managers.GET("/analytics/system", analytics.System)
	admins.DELETE("/analytics/cache", analytics.InvalidateCache)

	digests := handler.NewDigestHandler(c.Digest, cfg.Digest.Recipients)
	managers.GET("/digests/weekly", digests.Weekly)
	managers.GET("/digests/quarterly", digests.Quarterly)
	admins.POST("/digests/weekly/send", digests.SendWeekly)
	admins.POST("/digests/snapshots/monthly", digests.CaptureSnapshot)

	audit := handler.NewAuditHandler(c.Audit)
	managers.GET("/audit/:resource/:id", audit.History)

	if reports != nil {
		staff.POST("/reports/generate", reports.GenerateReport)
		staff.GET("/reports/:id", reports.ReportStatus)
	}
}
