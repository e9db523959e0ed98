package models

import (
	"math"
	"time"
)

// AnalyticsRange scopes intervention analytics to an inclusive timestamp range.
type AnalyticsRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// InterventionSummary counts records per tier.
type InterventionSummary struct {
	LevelA              int     `db:"level_a" json:"level_a"`
	LevelB              int     `db:"level_b" json:"level_b"`
	LevelC              int     `db:"level_c" json:"level_c"`
	Reentry             int     `db:"reentry" json:"reentry"`
	LevelAShare         float64 `json:"level_a_share"`
	DistributionHealthy bool    `json:"distribution_healthy"`
}

// DomainCount is the raw per-domain count returned by the store.
type DomainCount struct {
	Domain         Domain `db:"domain" json:"domain"`
	LevelA         int    `db:"level_a" json:"level_a"`
	LevelB         int    `db:"level_b" json:"level_b"`
	RepeatStudents int    `db:"repeat_students" json:"repeat_students"`
}

// DomainMetric is the per-domain view with a repeat rate.
type DomainMetric struct {
	Domain         Domain  `json:"domain"`
	Label          string  `json:"label"`
	LevelA         int     `json:"level_a"`
	LevelB         int     `json:"level_b"`
	RepeatStudents int     `json:"repeat_students"`
	RepeatRate     float64 `json:"repeat_rate"`
}

// EscalationCounts are raw counts feeding escalation metrics.
type EscalationCounts struct {
	LevelATotal     int `db:"level_a_total"`
	LevelAEscalated int `db:"level_a_escalated"`
	LevelBTotal     int `db:"level_b_total"`
	LevelBEscalated int `db:"level_b_escalated"`
}

// EscalationMetrics reports tier-to-tier escalation rates as percentages.
type EscalationMetrics struct {
	LevelATotal     int     `json:"level_a_total"`
	LevelAEscalated int     `json:"level_a_escalated"`
	AToBRate        float64 `json:"a_to_b_rate"`
	LevelBTotal     int     `json:"level_b_total"`
	LevelBEscalated int     `json:"level_b_escalated"`
	BToCRate        float64 `json:"b_to_c_rate"`
}

// OutcomeCounts are raw counts feeding outcome metrics.
type OutcomeCounts struct {
	LevelBCompleted  int `db:"level_b_completed"`
	LevelBSuccess    int `db:"level_b_success"`
	LevelCClosed     int `db:"level_c_closed"`
	LevelCSuccess    int `db:"level_c_success"`
	ReentryCompleted int `db:"reentry_completed"`
	ReentrySuccess   int `db:"reentry_success"`
}

// OutcomeMetrics reports success rates as whole percentages.
type OutcomeMetrics struct {
	LevelBCompleted    int `json:"level_b_completed"`
	LevelBSuccessRate  int `json:"level_b_success_rate"`
	LevelCClosed       int `json:"level_c_closed"`
	LevelCSuccessRate  int `json:"level_c_success_rate"`
	ReentryCompleted   int `json:"reentry_completed"`
	ReentrySuccessRate int `json:"reentry_success_rate"`
}

// TierTimestamp is one dated record used for trend bucketing.
type TierTimestamp struct {
	Tier       Tier      `db:"tier"`
	OccurredAt time.Time `db:"occurred_at"`
}

// WeeklyTrend counts records per tier for a Monday-start week.
type WeeklyTrend struct {
	WeekStart time.Time `json:"week_start"`
	WeekEnd   time.Time `json:"week_end"`
	LevelA    int       `json:"level_a"`
	LevelB    int       `json:"level_b"`
	LevelC    int       `json:"level_c"`
}

// ActivityItem is one entry in the recent activity feed.
type ActivityItem struct {
	Tier       Tier      `json:"tier"`
	ID         string    `json:"id"`
	StudentID  string    `json:"student_id"`
	Summary    string    `json:"summary"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

// InterventionDashboard combines every analytics view for a range.
type InterventionDashboard struct {
	Range       AnalyticsRange      `json:"range"`
	Summary     InterventionSummary `json:"summary"`
	Domains     []DomainMetric      `json:"domains"`
	Escalation  EscalationMetrics   `json:"escalation"`
	Outcomes    OutcomeMetrics      `json:"outcomes"`
	Trends      []WeeklyTrend       `json:"weekly_trends"`
	Recent      []ActivityItem      `json:"recent_activity"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// SystemMetrics represents process level metrics captured from instrumentation.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	RecomputeSucceeded       uint64    `json:"recompute_succeeded"`
	RecomputeFailed          uint64    `json:"recompute_failed"`
	EmailsSent               uint64    `json:"emails_sent"`
	EmailsFailed             uint64    `json:"emails_failed"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// RoundTo rounds v to the given number of decimal places.
func RoundTo(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}

// Percent returns part/total*100 rounded to one decimal, or 0 when total is 0.
func Percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return RoundTo(float64(part)/float64(total)*100, 1)
}

// WholePercent returns part/total*100 rounded to a whole number, or 0 when total is 0.
func WholePercent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}
