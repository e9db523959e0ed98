package dto

import "github.com/noah-isme/house-points-api/internal/models"

// ReportRequest captures POST /reports/generate payload. Dates use YYYY-MM-DD.
type ReportRequest struct {
	Type       models.ReportType    `json:"type"`
	Format     models.ReportFormat  `json:"format"`
	DateFrom   *string              `json:"date_from,omitempty"`
	DateTo     *string              `json:"date_to,omitempty"`
	Window     models.InsightWindow `json:"window,omitempty"`
	RiskLevels []models.RiskLevel   `json:"risk_levels,omitempty"`
}

// ReportJobResponse is returned after enqueueing a report.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse exposes job progress metadata.
type ReportStatusResponse struct {
	ID        string              `json:"id"`
	Type      models.ReportType   `json:"type"`
	Status    models.ReportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"result_url,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
