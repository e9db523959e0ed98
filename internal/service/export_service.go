package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/house-points-api/internal/models"
	"github.com/noah-isme/house-points-api/pkg/export"
	"github.com/noah-isme/house-points-api/pkg/storage"
	"github.com/noah-isme/house-points-api/pkg/timeutil"
)

type interventionReportSource interface {
	ResolveRange(start, end *time.Time) (models.AnalyticsRange, error)
	Summary(ctx context.Context, r models.AnalyticsRange) (models.InterventionSummary, error)
	DomainMetrics(ctx context.Context, r models.AnalyticsRange) ([]models.DomainMetric, error)
	WeeklyTrends(ctx context.Context, end time.Time) ([]models.WeeklyTrend, error)
}

type atRiskSource interface {
	AtRisk(ctx context.Context, window models.InsightWindow, levels []models.RiskLevel) ([]models.StudentInsightSnapshot, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService builds report datasets and persists rendered files.
type ExportService struct {
	analytics interventionReportSource
	insights  atRiskSource
	storage   fileStorage
	csv       csvRenderer
	pdf       pdfRenderer
	signer    *storage.SignedURLSigner
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// NewExportService constructs an ExportService. Nil renderers default to the pkg/export implementations.
func NewExportService(analytics interventionReportSource, insights atRiskSource, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		analytics: analytics,
		insights:  insights,
		storage:   files,
		csv:       csv,
		pdf:       pdf,
		signer:    signer,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Generate builds the dataset for the job, renders it and stores the file behind a signed URL.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(s.buildFilename(job), payload)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Debug("report rendered",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.Int("rows", len(dataset.Rows)),
	)
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/export/%s", prefix, token),
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl, or the configured ResultTTL when ttl <= 0.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	stamp := s.now().UTC().Format("20060102_150405")
	return fmt.Sprintf("%s/%s_%s.%s", job.Type, sanitizeFilename(job.ID), stamp, job.Params.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, string, error) {
	if job.Type == models.ReportTypeStudentInsights {
		return s.buildStudentInsightDataset(ctx, job.Params)
	}
	r, err := s.analytics.ResolveRange(job.Params.DateFrom, job.Params.DateTo)
	if err != nil {
		return export.Dataset{}, "", err
	}
	switch job.Type {
	case models.ReportTypeInterventionSummary:
		return s.buildSummaryDataset(ctx, r)
	case models.ReportTypeDomainMetrics:
		return s.buildDomainDataset(ctx, r)
	case models.ReportTypeWeeklyTrends:
		return s.buildTrendDataset(ctx, r)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func (s *ExportService) buildSummaryDataset(ctx context.Context, r models.AnalyticsRange) (export.Dataset, string, error) {
	summary, err := s.analytics.Summary(ctx, r)
	if err != nil {
		return export.Dataset{}, "", err
	}
	healthy := "no"
	if summary.DistributionHealthy {
		healthy = "yes"
	}
	rows := []map[string]string{
		{"Metric": "Level A interventions", "Value": strconv.Itoa(summary.LevelA)},
		{"Metric": "Level B conferences", "Value": strconv.Itoa(summary.LevelB)},
		{"Metric": "Level C cases", "Value": strconv.Itoa(summary.LevelC)},
		{"Metric": "Re-entry protocols", "Value": strconv.Itoa(summary.Reentry)},
		{"Metric": "Level A share", "Value": fmt.Sprintf("%.1f%%", summary.LevelAShare*100)},
		{"Metric": "Healthy distribution", "Value": healthy},
	}
	return export.Dataset{Headers: []string{"Metric", "Value"}, Rows: rows}, "Intervention Summary " + rangeLabel(r), nil
}

func (s *ExportService) buildDomainDataset(ctx context.Context, r models.AnalyticsRange) (export.Dataset, string, error) {
	metrics, err := s.analytics.DomainMetrics(ctx, r)
	if err != nil {
		return export.Dataset{}, "", err
	}
	rows := make([]map[string]string, 0, len(metrics))
	for _, m := range metrics {
		rows = append(rows, map[string]string{
			"Domain":          m.Label,
			"Level A":         strconv.Itoa(m.LevelA),
			"Level B":         strconv.Itoa(m.LevelB),
			"Repeat Students": strconv.Itoa(m.RepeatStudents),
			"Repeat Rate (%)": fmt.Sprintf("%.1f", m.RepeatRate),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Domain", "Level A", "Level B", "Repeat Students", "Repeat Rate (%)"},
		Rows:    rows,
	}
	return dataset, "Domain Metrics " + rangeLabel(r), nil
}

func (s *ExportService) buildTrendDataset(ctx context.Context, r models.AnalyticsRange) (export.Dataset, string, error) {
	trends, err := s.analytics.WeeklyTrends(ctx, r.End)
	if err != nil {
		return export.Dataset{}, "", err
	}
	rows := make([]map[string]string, 0, len(trends))
	for _, w := range trends {
		rows = append(rows, map[string]string{
			"Week Start": timeutil.FormatDate(w.WeekStart),
			"Week End":   timeutil.FormatDate(w.WeekEnd),
			"Level A":    strconv.Itoa(w.LevelA),
			"Level B":    strconv.Itoa(w.LevelB),
			"Level C":    strconv.Itoa(w.LevelC),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Week Start", "Week End", "Level A", "Level B", "Level C"},
		Rows:    rows,
	}
	return dataset, "Weekly Trends to " + timeutil.FormatDate(r.End), nil
}

func (s *ExportService) buildStudentInsightDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	snapshots, err := s.insights.AtRisk(ctx, params.Window, params.RiskLevels)
	if err != nil {
		return export.Dataset{}, "", err
	}
	rows := make([]map[string]string, 0, len(snapshots))
	for _, snap := range snapshots {
		issue := ""
		if snap.PrimaryIssue != nil {
			issue = *snap.PrimaryIssue
		}
		rows = append(rows, map[string]string{
			"Student ID":    snap.StudentID,
			"Window":        string(snap.TimeWindow),
			"Risk":          string(snap.RiskLevel),
			"Trend":         string(snap.Trend),
			"Net Score":     strconv.Itoa(snap.NetScore),
			"Primary Issue": issue,
			"Computed At":   snap.ComputedAt.UTC().Format(time.RFC3339),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Student ID", "Window", "Risk", "Trend", "Net Score", "Primary Issue", "Computed At"},
		Rows:    rows,
	}
	return dataset, "Students At Risk", nil
}

func rangeLabel(r models.AnalyticsRange) string {
	return timeutil.FormatDate(r.Start) + " to " + timeutil.FormatDate(r.End)
}
