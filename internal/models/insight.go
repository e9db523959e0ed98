package models

import "time"

// InsightWindow is the trailing window a snapshot summarises.
type InsightWindow string

const (
	InsightWindow7d  InsightWindow = "7d"
	InsightWindow30d InsightWindow = "30d"
)

// Days returns the window length in days.
func (w InsightWindow) Days() int {
	if w == InsightWindow7d {
		return 7
	}
	return 30
}

// Trend describes the direction of weekly demerit counts.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// RiskLevel is the traffic-light classification of a snapshot.
type RiskLevel string

const (
	RiskGreen  RiskLevel = "green"
	RiskYellow RiskLevel = "yellow"
	RiskRed    RiskLevel = "red"
)

// PatternType tags a detected behaviour pattern.
type PatternType string

const (
	PatternEarlyConcern     PatternType = "early_concern"
	PatternEscalation       PatternType = "escalation"
	PatternContextIsolation PatternType = "context_isolation"
	PatternStrengthMismatch PatternType = "strength_struggle_mismatch"
)

// IsolationDimension names the grouping that concentrated a student's demerits.
type IsolationDimension string

const (
	IsolationClass IsolationDimension = "class"
	IsolationStaff IsolationDimension = "staff"
)

// StudentInsightSnapshot is the current regenerable summary for a student and window.
type StudentInsightSnapshot struct {
	ID             string        `db:"id" json:"id"`
	StudentID      string        `db:"student_id" json:"student_id"`
	TimeWindow     InsightWindow `db:"time_window" json:"time_window"`
	MeritCount     int           `db:"merit_count" json:"merit_count"`
	DemeritCount   int           `db:"demerit_count" json:"demerit_count"`
	MeritPoints    int           `db:"merit_points" json:"merit_points"`
	DemeritPoints  int           `db:"demerit_points" json:"demerit_points"`
	NetScore       int           `db:"net_score" json:"net_score"`
	Trend          Trend         `db:"trend" json:"trend"`
	RiskLevel      RiskLevel     `db:"risk_level" json:"risk_level"`
	PrimaryIssue   *string       `db:"primary_issue" json:"primary_issue,omitempty"`
	Interpretation string        `db:"interpretation" json:"interpretation"`
	ComputedAt     time.Time     `db:"computed_at" json:"computed_at"`
}

// BehaviorPattern is a derived tag for a student, replaced wholesale on recompute.
type BehaviorPattern struct {
	ID          string      `db:"id" json:"id"`
	StudentID   string      `db:"student_id" json:"student_id"`
	PatternType PatternType `db:"pattern_type" json:"pattern_type"`
	Description string      `db:"description" json:"description"`
	Confidence  float64     `db:"confidence" json:"confidence"`
	DetectedAt  time.Time   `db:"detected_at" json:"detected_at"`
}

// WeeklyDemerits holds demerit counts for the four trailing 7-day buckets, most recent first.
type WeeklyDemerits [4]int

// ContextIsolation reports the dimension concentrating a student's demerits.
type ContextIsolation struct {
	Dimension IsolationDimension `json:"dimension"`
	Value     string             `json:"value"`
	Share     float64            `json:"share"`
}

// WindowInsight is the computed view of one window before persistence.
type WindowInsight struct {
	Window              InsightWindow     `json:"window"`
	MeritCount          int               `json:"merit_count"`
	DemeritCount        int               `json:"demerit_count"`
	MeritPoints         int               `json:"merit_points"`
	DemeritPoints       int               `json:"demerit_points"`
	NetScore            int               `json:"net_score"`
	Trend               Trend             `json:"trend"`
	Escalation          bool              `json:"escalation"`
	EarlyConcern        bool              `json:"early_concern"`
	RiskLevel           RiskLevel         `json:"risk_level"`
	ContextIsolation    *ContextIsolation `json:"context_isolation,omitempty"`
	HasStrengthMismatch bool              `json:"has_strength_mismatch"`
	PrimaryIssue        *string           `json:"primary_issue,omitempty"`
	Interpretation      string            `json:"interpretation"`
}

// InsightResult bundles everything computed for one student in a single pass.
type InsightResult struct {
	StudentID string            `json:"student_id"`
	Today     time.Time         `json:"today"`
	Weekly    WeeklyDemerits    `json:"weekly_demerits"`
	Windows   []WindowInsight   `json:"windows"`
	Patterns  []BehaviorPattern `json:"patterns"`
}

// Window returns the computed insight for the requested window.
func (r InsightResult) Window(w InsightWindow) (WindowInsight, bool) {
	for _, wi := range r.Windows {
		if wi.Window == w {
			return wi, true
		}
	}
	return WindowInsight{}, false
}

// StudentInsights is the read model returned to callers.
type StudentInsights struct {
	StudentID string                   `json:"student_id"`
	Snapshots []StudentInsightSnapshot `json:"snapshots"`
	Patterns  []BehaviorPattern        `json:"patterns"`
}

// RecomputeResult summarises a batch recompute.
type RecomputeResult struct {
	Students  int       `json:"students"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	FailedIDs []string  `json:"failed_ids,omitempty"`
	Today     time.Time `json:"today"`
}
