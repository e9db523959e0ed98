package models

import "time"

// HealthStatus is the composite school health classification.
type HealthStatus string

const (
	HealthGreen HealthStatus = "GREEN"
	HealthAmber HealthStatus = "AMBER"
	HealthRed   HealthStatus = "RED"
)

// HealthScore is produced by the external scoring job and passed through unchanged.
type HealthScore struct {
	Score      float64      `db:"score" json:"score"`
	Status     HealthStatus `db:"status" json:"status"`
	ComputedAt time.Time    `db:"computed_at" json:"computed_at"`
}

// CategoryCount is the number of points awarded in one category.
type CategoryCount struct {
	Category string `db:"category" json:"category"`
	Count    int    `db:"count" json:"count"`
}

// HouseTotal is the point total of a house.
type HouseTotal struct {
	House  string `db:"house" json:"house"`
	Points int    `db:"points" json:"points"`
}

// PointEconomy summarises points issued during the period.
type PointEconomy struct {
	MeritCount    int `db:"merit_count" json:"merit_count"`
	DemeritCount  int `db:"demerit_count" json:"demerit_count"`
	MeritPoints   int `db:"merit_points" json:"merit_points"`
	DemeritPoints int `db:"demerit_points" json:"demerit_points"`
}

// Ratio returns merits per demerit, or the merit count when there were no demerits.
func (p PointEconomy) Ratio() float64 {
	if p.DemeritCount == 0 {
		return float64(p.MeritCount)
	}
	return RoundTo(float64(p.MeritCount)/float64(p.DemeritCount), 1)
}

// AlertSummary counts students currently flagged by the insight engine.
type AlertSummary struct {
	Red    int `db:"red" json:"red"`
	Yellow int `db:"yellow" json:"yellow"`
}

// DigestInput gathers everything the weekly digest is composed from.
type DigestInput struct {
	PeriodStart       time.Time       `json:"period_start"`
	PeriodEnd         time.Time       `json:"period_end"`
	ParticipationRate float64         `json:"participation_rate"`
	Economy           PointEconomy    `json:"point_economy"`
	Categories        []CategoryCount `json:"category_balance"`
	Houses            []HouseTotal    `json:"house_distribution"`
	Alerts            AlertSummary    `json:"active_alerts"`
	ConsistencyScore  float64         `json:"consistency_score"`
	Health            *HealthScore    `json:"health,omitempty"`
}

// WeeklyDigest is the composed weekly report.
type WeeklyDigest struct {
	DigestInput
	Insights    []string  `json:"insights"`
	Actions     []string  `json:"actions"`
	GeneratedAt time.Time `json:"generated_at"`
}

// MonthlySnapshot stores the metrics a quarterly report diffs against.
type MonthlySnapshot struct {
	ID                string    `db:"id" json:"id"`
	Month             time.Time `db:"month" json:"month"`
	ParticipationRate float64   `db:"participation_rate" json:"participation_rate"`
	MeritPoints       int       `db:"merit_points" json:"merit_points"`
	DemeritPoints     int       `db:"demerit_points" json:"demerit_points"`
	LevelA            int       `db:"level_a" json:"level_a"`
	LevelB            int       `db:"level_b" json:"level_b"`
	LevelC            int       `db:"level_c" json:"level_c"`
	ConsistencyScore  float64   `db:"consistency_score" json:"consistency_score"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// MetricDelta is one line of the quarter-over-quarter comparison. For count metrics Current
// is the quarter's monthly average, so it compares with a monthly snapshot.
type MetricDelta struct {
	Metric   string   `json:"metric"`
	Current  float64  `json:"current"`
	Previous *float64 `json:"previous,omitempty"`
	Change   string   `json:"change"`
}

// QuarterlyReport compares the quarter's metrics against the latest prior monthly snapshot.
type QuarterlyReport struct {
	QuarterStart time.Time           `json:"quarter_start"`
	QuarterEnd   time.Time           `json:"quarter_end"`
	Months       int                 `json:"months"`
	Current      MonthlySnapshot     `json:"current"`
	Baseline     *MonthlySnapshot    `json:"baseline,omitempty"`
	Deltas       []MetricDelta       `json:"deltas"`
	Summary      InterventionSummary `json:"intervention_summary"`
	Health       *HealthScore        `json:"health,omitempty"`
	GeneratedAt  time.Time           `json:"generated_at"`
}

// DigestDispatch records the outcome of emailing a digest.
type DigestDispatch struct {
	Recipient string `json:"recipient"`
	MessageID string `json:"message_id,omitempty"`
	Sent      bool   `json:"sent"`
}
