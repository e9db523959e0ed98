package models

import (
	"database/sql/driver"
	"time"
)

// ReentrySource is the consequence a student is returning from.
type ReentrySource string

const (
	ReentrySourceLevelB    ReentrySource = "level_b"
	ReentrySourceDetention ReentrySource = "detention"
	ReentrySourceISS       ReentrySource = "iss"
	ReentrySourceOSS       ReentrySource = "oss"
)

// MonitoringMethod describes how a student is followed after re-entry.
type MonitoringMethod string

const (
	MonitoringChecklist  MonitoringMethod = "checklist"
	MonitoringCheckInOut MonitoringMethod = "check_in_out"
	MonitoringIntensive  MonitoringMethod = "intensive"
)

// ReentryStatus is the lifecycle of a re-entry protocol.
type ReentryStatus string

const (
	ReentryPending   ReentryStatus = "pending"
	ReentryReady     ReentryStatus = "ready"
	ReentryActive    ReentryStatus = "active"
	ReentryCompleted ReentryStatus = "completed"
)

// ReentryOutcome is the final result of a monitoring period.
type ReentryOutcome string

const (
	ReentryOutcomeSuccess   ReentryOutcome = "success"
	ReentryOutcomePartial   ReentryOutcome = "partial"
	ReentryOutcomeEscalated ReentryOutcome = "escalated"
)

// ChecklistItem is one readiness item.
type ChecklistItem struct {
	Item        string     `json:"item"`
	Completed   bool       `json:"completed"`
	Verifier    *string    `json:"verifier,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Checklist is an ordered readiness checklist persisted as JSONB.
type Checklist []ChecklistItem

// NewChecklist seeds an uncompleted checklist from item labels.
func NewChecklist(items []string) Checklist {
	list := make(Checklist, 0, len(items))
	for _, item := range items {
		list = append(list, ChecklistItem{Item: item})
	}
	return list
}

// AllCompleted reports whether every item is complete. An empty checklist is never complete.
func (c Checklist) AllCompleted() bool {
	if len(c) == 0 {
		return false
	}
	for _, item := range c {
		if !item.Completed {
			return false
		}
	}
	return true
}

// Value marshals the checklist.
func (c Checklist) Value() (driver.Value, error) {
	if c == nil {
		c = Checklist{}
	}
	return marshalJSONB([]ChecklistItem(c), "checklist")
}

// Scan unmarshals the checklist.
func (c *Checklist) Scan(value interface{}) error {
	out := Checklist{}
	if _, err := unmarshalJSONB(value, &out, "checklist"); err != nil {
		return err
	}
	*c = out
	return nil
}

// ReentryDailyLog is one entry of the monitoring log.
type ReentryDailyLog struct {
	Date     string    `json:"date"`
	Rating   int       `json:"rating"`
	Notes    string    `json:"notes,omitempty"`
	LoggedBy string    `json:"logged_by"`
	LoggedAt time.Time `json:"logged_at"`
}

// DailyLogs is the append-only log of a protocol.
type DailyLogs []ReentryDailyLog

// Value marshals the log.
func (l DailyLogs) Value() (driver.Value, error) {
	if l == nil {
		l = DailyLogs{}
	}
	return marshalJSONB([]ReentryDailyLog(l), "daily logs")
}

// Scan unmarshals the log.
func (l *DailyLogs) Scan(value interface{}) error {
	out := DailyLogs{}
	if _, err := unmarshalJSONB(value, &out, "daily logs"); err != nil {
		return err
	}
	*l = out
	return nil
}

// ReentryProtocol supervises a student's return to class after a consequence.
type ReentryProtocol struct {
	ID                  string           `db:"id" json:"id"`
	StudentID           string           `db:"student_id" json:"student_id"`
	SourceType          ReentrySource    `db:"source_type" json:"source_type"`
	SourceID            *string          `db:"source_id" json:"source_id,omitempty"`
	ReentryDate         time.Time        `db:"reentry_date" json:"reentry_date"`
	MonitoringEndDate   time.Time        `db:"monitoring_end_date" json:"monitoring_end_date"`
	MonitoringMethod    MonitoringMethod `db:"monitoring_method" json:"monitoring_method"`
	ResetGoal           string           `db:"reset_goal" json:"reset_goal"`
	TeacherScript       string           `db:"teacher_script" json:"teacher_script"`
	Checklist           Checklist        `db:"readiness_checklist" json:"readiness_checklist"`
	ReadinessVerifiedBy *string          `db:"readiness_verified_by" json:"readiness_verified_by,omitempty"`
	ReadinessVerifiedAt *time.Time       `db:"readiness_verified_at" json:"readiness_verified_at,omitempty"`
	DailyLogs           DailyLogs        `db:"daily_logs" json:"daily_logs"`
	Status              ReentryStatus    `db:"status" json:"status"`
	Outcome             *ReentryOutcome  `db:"outcome" json:"outcome,omitempty"`
	OutcomeNotes        *string          `db:"outcome_notes" json:"outcome_notes,omitempty"`
	CreatedBy           string           `db:"created_by" json:"created_by"`
	CompletedAt         *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt           time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time        `db:"updated_at" json:"updated_at"`
}

func (r *ReentryProtocol) Tier() Tier            { return TierReentry }
func (r *ReentryProtocol) RecordID() string      { return r.ID }
func (r *ReentryProtocol) StudentKey() string    { return r.StudentID }
func (r *ReentryProtocol) OccurredAt() time.Time { return r.CreatedAt }

// ReentryFilter scopes protocol listings.
type ReentryFilter struct {
	StudentID string
	Statuses  []ReentryStatus
	Page      int
	PageSize  int
}
