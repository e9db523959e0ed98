package models

import (
	"database/sql/driver"
	"time"
)

// ReportType names an exportable dataset.
type ReportType string

const (
	ReportTypeInterventionSummary ReportType = "intervention_summary"
	ReportTypeDomainMetrics       ReportType = "domain_metrics"
	ReportTypeWeeklyTrends        ReportType = "weekly_trends"
	ReportTypeStudentInsights     ReportType = "student_insights"
)

// Valid reports whether t is a known report type.
func (t ReportType) Valid() bool {
	switch t {
	case ReportTypeInterventionSummary, ReportTypeDomainMetrics, ReportTypeWeeklyTrends, ReportTypeStudentInsights:
		return true
	}
	return false
}

// ReportFormat is the rendered file type.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// Valid reports whether f can be rendered.
func (f ReportFormat) Valid() bool {
	return f == ReportFormatCSV || f == ReportFormatPDF
}

// ContentType is the MIME type served on download.
func (f ReportFormat) ContentType() string {
	if f == ReportFormatPDF {
		return "application/pdf"
	}
	return "text/csv; charset=utf-8"
}

// ReportStatus is a step in the export job lifecycle:
// QUEUED -> PROCESSING -> FINISHED -> EXPIRED, with PROCESSING falling back to QUEUED
// for a retry and QUEUED or PROCESSING ending in FAILED.
type ReportStatus string

const (
	ReportStatusQueued     ReportStatus = "QUEUED"
	ReportStatusProcessing ReportStatus = "PROCESSING"
	ReportStatusFinished   ReportStatus = "FINISHED"
	ReportStatusFailed     ReportStatus = "FAILED"
	ReportStatusExpired    ReportStatus = "EXPIRED"
)

var reportTransitions = map[ReportStatus][]ReportStatus{
	ReportStatusQueued:     {ReportStatusProcessing, ReportStatusFailed},
	ReportStatusProcessing: {ReportStatusFinished, ReportStatusQueued, ReportStatusFailed},
	ReportStatusFinished:   {ReportStatusExpired},
}

// CanTransition reports whether a job in status s may move to next.
func (s ReportStatus) CanTransition(next ReportStatus) bool {
	for _, to := range reportTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// ReportStatusesBefore lists the statuses from which next is reachable in one step.
func ReportStatusesBefore(next ReportStatus) []ReportStatus {
	var from []ReportStatus
	for _, s := range []ReportStatus{ReportStatusQueued, ReportStatusProcessing, ReportStatusFinished} {
		if s.CanTransition(next) {
			from = append(from, s)
		}
	}
	return from
}

// ReportJob is one row of report_jobs.
type ReportJob struct {
	ID           string          `db:"id" json:"id"`
	Type         ReportType      `db:"type" json:"type"`
	Params       ReportJobParams `db:"params" json:"params"`
	Status       ReportStatus    `db:"status" json:"status"`
	Progress     int             `db:"progress" json:"progress"`
	ResultURL    *string         `db:"result_url" json:"result_url,omitempty"`
	CreatedBy    string          `db:"created_by" json:"created_by"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
}

// ReportJobParams is stored in the params JSONB column.
type ReportJobParams struct {
	DateFrom   *time.Time        `json:"date_from,omitempty"`
	DateTo     *time.Time        `json:"date_to,omitempty"`
	Window     InsightWindow     `json:"window,omitempty"`
	RiskLevels []RiskLevel       `json:"risk_levels,omitempty"`
	Format     ReportFormat      `json:"format"`
	Extras     map[string]string `json:"extras,omitempty"`
}

// Value implements driver.Valuer.
func (p ReportJobParams) Value() (driver.Value, error) {
	if p.Extras == nil {
		p.Extras = map[string]string{}
	}
	return marshalJSONB(p, "report job params")
}

// Scan implements sql.Scanner. NULL leaves zero params.
func (p *ReportJobParams) Scan(value interface{}) error {
	out := ReportJobParams{}
	if _, err := unmarshalJSONB(value, &out, "report job params"); err != nil {
		return err
	}
	*p = out
	return nil
}
