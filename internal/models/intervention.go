package models

import (
	"database/sql/driver"
	"sort"
	"time"

	"github.com/lib/pq"
)

// Domain is the behavioural context an incident happened in.
type Domain string

const (
	DomainClassroom   Domain = "classroom"
	DomainHallways    Domain = "hallways"
	DomainLunchRecess Domain = "lunch_recess"
	DomainPrayerSpace Domain = "prayer_space"
	DomainRespect     Domain = "respect"
	DomainSafety      Domain = "safety"
)

// Tier identifies an intervention level.
type Tier string

const (
	TierA       Tier = "A"
	TierB       Tier = "B"
	TierC       Tier = "C"
	TierReentry Tier = "reentry"
)

// InterventionRecord is implemented by every tiered intervention record.
type InterventionRecord interface {
	Tier() Tier
	RecordID() string
	StudentKey() string
	OccurredAt() time.Time
}

// LevelAType enumerates the quick-response tactics.
type LevelAType string

const (
	LevelAProximity           LevelAType = "proximity"
	LevelANonverbalCue        LevelAType = "nonverbal_cue"
	LevelAVerbalRedirect      LevelAType = "verbal_redirect"
	LevelAPositiveNarration   LevelAType = "positive_narration"
	LevelAChoiceOffer         LevelAType = "choice_offer"
	LevelABriefReset          LevelAType = "brief_reset"
	LevelASeatChange          LevelAType = "seat_change"
	LevelAPrivateConversation LevelAType = "private_conversation"
)

// LevelAOutcome is the result of a Level A response.
type LevelAOutcome string

const (
	LevelAComplied  LevelAOutcome = "complied"
	LevelAEscalated LevelAOutcome = "escalated"
	LevelAPartial   LevelAOutcome = "partial"
)

// EscalationTrigger names the condition that moved a student up a tier.
type EscalationTrigger string

// A→B triggers.
const (
	TriggerDemeritAssigned    EscalationTrigger = "demerit_assigned"
	TriggerRepeatedDomain     EscalationTrigger = "third_incident_same_domain"
	TriggerIgnoredPrompts     EscalationTrigger = "ignored_prompts"
	TriggerPeerImpact         EscalationTrigger = "peer_impact"
	TriggerSharedSpace        EscalationTrigger = "shared_space_disruption"
	TriggerSafetyRisk         EscalationTrigger = "safety_risk"
	TriggerCumulativePoints10 EscalationTrigger = "cumulative_points_10"
)

// B→C triggers.
const (
	TriggerNoImprovement  EscalationTrigger = "no_improvement_two_cycles"
	TriggerChronicPattern EscalationTrigger = "chronic_pattern"
	TriggerSafetyIncident EscalationTrigger = "safety_incident"
	TriggerPostOSSReentry EscalationTrigger = "post_oss_reentry"
	TriggerPoints20       EscalationTrigger = "points_20"
	TriggerPoints30       EscalationTrigger = "points_30"
	TriggerPoints35       EscalationTrigger = "points_35"
	TriggerPoints40       EscalationTrigger = "points_40"
	TriggerAdminReferral  EscalationTrigger = "admin_referral"
)

// LevelBTriggers lists the triggers a Level B record may carry.
var LevelBTriggers = []EscalationTrigger{
	TriggerDemeritAssigned, TriggerRepeatedDomain, TriggerIgnoredPrompts, TriggerPeerImpact,
	TriggerSharedSpace, TriggerSafetyRisk, TriggerCumulativePoints10,
}

// LevelCTriggers lists the triggers a Level C case may carry.
var LevelCTriggers = []EscalationTrigger{
	TriggerNoImprovement, TriggerChronicPattern, TriggerSafetyIncident, TriggerPostOSSReentry,
	TriggerPoints20, TriggerPoints30, TriggerPoints35, TriggerPoints40, TriggerAdminReferral,
}

// LevelAIntervention records one minor incident and the response used.
type LevelAIntervention struct {
	ID               string        `db:"id" json:"id"`
	StudentID        string        `db:"student_id" json:"student_id"`
	StaffID          string        `db:"staff_id" json:"staff_id"`
	Domain           Domain        `db:"domain" json:"domain"`
	InterventionType LevelAType    `db:"intervention_type" json:"intervention_type"`
	Description      string        `db:"description" json:"description"`
	Outcome          LevelAOutcome `db:"outcome" json:"outcome"`
	RepeatedSameDay  bool          `db:"repeated_same_day" json:"repeated_same_day"`
	AffectedOthers   bool          `db:"affected_others" json:"affected_others"`
	EscalatedToB     bool          `db:"escalated_to_b" json:"escalated_to_b"`
	IncidentAt       time.Time     `db:"occurred_at" json:"occurred_at"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
}

func (a *LevelAIntervention) Tier() Tier            { return TierA }
func (a *LevelAIntervention) RecordID() string      { return a.ID }
func (a *LevelAIntervention) StudentKey() string    { return a.StudentID }
func (a *LevelAIntervention) OccurredAt() time.Time { return a.IncidentAt }

// LevelBStatus is the lifecycle of a Level B reset conference.
type LevelBStatus string

const (
	LevelBInProgress         LevelBStatus = "in_progress"
	LevelBMonitoring         LevelBStatus = "monitoring"
	LevelBCompletedSuccess   LevelBStatus = "completed_success"
	LevelBCompletedEscalated LevelBStatus = "completed_escalated"
	LevelBCancelled          LevelBStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed.
func (s LevelBStatus) IsTerminal() bool {
	return s == LevelBCompletedSuccess || s == LevelBCompletedEscalated || s == LevelBCancelled
}

// LevelBSteps holds the seven protocol steps and their payloads.
type LevelBSteps struct {
	Step1Completed    bool           `db:"step1_completed" json:"step1_completed"`
	RegulateNotes     *string        `db:"regulate_notes" json:"regulate_notes,omitempty"`
	Step2Completed    bool           `db:"step2_completed" json:"step2_completed"`
	PatternNotes      *string        `db:"pattern_notes" json:"pattern_notes,omitempty"`
	Step3Completed    bool           `db:"step3_completed" json:"step3_completed"`
	ReflectionPrompts pq.StringArray `db:"reflection_prompts" json:"reflection_prompts,omitempty"`
	Step4Completed    bool           `db:"step4_completed" json:"step4_completed"`
	RepairAction      *string        `db:"repair_action" json:"repair_action,omitempty"`
	Step5Completed    bool           `db:"step5_completed" json:"step5_completed"`
	ReplacementSkill  *string        `db:"replacement_skill" json:"replacement_skill,omitempty"`
	Step6Completed    bool           `db:"step6_completed" json:"step6_completed"`
	ResetGoal         *string        `db:"reset_goal" json:"reset_goal,omitempty"`
	ResetTimeline     *string        `db:"reset_timeline" json:"reset_timeline,omitempty"`
	Step7Completed    bool           `db:"step7_completed" json:"step7_completed"`
	Documented        bool           `db:"documented" json:"documented"`
}

// LevelBStepCount is the number of protocol steps.
const LevelBStepCount = 7

// Completed returns the completion flag for a 1-based step.
func (s LevelBSteps) Completed(step int) bool {
	switch step {
	case 1:
		return s.Step1Completed
	case 2:
		return s.Step2Completed
	case 3:
		return s.Step3Completed
	case 4:
		return s.Step4Completed
	case 5:
		return s.Step5Completed
	case 6:
		return s.Step6Completed
	case 7:
		return s.Step7Completed
	}
	return false
}

// AllCompleted reports whether every step flag is set.
func (s LevelBSteps) AllCompleted() bool {
	for step := 1; step <= LevelBStepCount; step++ {
		if !s.Completed(step) {
			return false
		}
	}
	return true
}

// CompletedCount returns how many steps are done.
func (s LevelBSteps) CompletedCount() int {
	count := 0
	for step := 1; step <= LevelBStepCount; step++ {
		if s.Completed(step) {
			count++
		}
	}
	return count
}

// DailyRates maps ISO dates to daily success percentages.
type DailyRates map[string]float64

// Value marshals the rates for persistence.
func (r DailyRates) Value() (driver.Value, error) {
	if r == nil {
		r = DailyRates{}
	}
	return marshalJSONB(map[string]float64(r), "daily rates")
}

// Scan unmarshals the rates.
func (r *DailyRates) Scan(value interface{}) error {
	out := DailyRates{}
	if _, err := unmarshalJSONB(value, &out, "daily rates"); err != nil {
		return err
	}
	*r = out
	return nil
}

// Mean returns the average of all rates rounded to one decimal, or 0 when empty.
func (r DailyRates) Mean() float64 {
	if len(r) == 0 {
		return 0
	}
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	total := 0.0
	for _, k := range keys {
		total += r[k]
	}
	return RoundTo(total/float64(len(r)), 1)
}

// LevelBIntervention is a structured reset conference opened for an escalated incident.
type LevelBIntervention struct {
	ID                string            `db:"id" json:"id"`
	StudentID         string            `db:"student_id" json:"student_id"`
	StaffID           string            `db:"staff_id" json:"staff_id"`
	Domain            Domain            `db:"domain" json:"domain"`
	EscalationTrigger EscalationTrigger `db:"escalation_trigger" json:"escalation_trigger"`
	LevelAID          *string           `db:"level_a_id" json:"level_a_id,omitempty"`
	Status            LevelBStatus      `db:"status" json:"status"`
	LevelBSteps
	MonitoringStart  *time.Time        `db:"monitoring_start" json:"monitoring_start,omitempty"`
	MonitoringEnd    *time.Time        `db:"monitoring_end" json:"monitoring_end,omitempty"`
	MonitoringMethod *MonitoringMethod `db:"monitoring_method" json:"monitoring_method,omitempty"`
	DailyRates       DailyRates        `db:"daily_success_rates" json:"daily_success_rates"`
	FinalSuccessRate *float64          `db:"final_success_rate" json:"final_success_rate,omitempty"`
	EscalatedToC     bool              `db:"escalated_to_c" json:"escalated_to_c"`
	EscalationReason *string           `db:"escalation_reason" json:"escalation_reason,omitempty"`
	CompletedAt      *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time         `db:"updated_at" json:"updated_at"`
}

func (b *LevelBIntervention) Tier() Tier            { return TierB }
func (b *LevelBIntervention) RecordID() string      { return b.ID }
func (b *LevelBIntervention) StudentKey() string    { return b.StudentID }
func (b *LevelBIntervention) OccurredAt() time.Time { return b.CreatedAt }

// LevelCStatus is the completed phase of a Level C case.
type LevelCStatus string

const (
	LevelCActive         LevelCStatus = "active"
	LevelCContextPacket  LevelCStatus = "context_packet"
	LevelCAdminResponse  LevelCStatus = "admin_response"
	LevelCPendingReentry LevelCStatus = "pending_reentry"
	LevelCMonitoring     LevelCStatus = "monitoring"
	LevelCClosed         LevelCStatus = "closed"
)

// LevelCCaseType scales the intensity of case management.
type LevelCCaseType string

const (
	CaseStandard  LevelCCaseType = "standard"
	CaseLite      LevelCCaseType = "lite"
	CaseIntensive LevelCCaseType = "intensive"
)

// LevelCOutcome is the closure status of a case.
type LevelCOutcome string

const (
	LevelCOutcomeActive           LevelCOutcome = "active"
	LevelCOutcomeSuccess          LevelCOutcome = "closed_success"
	LevelCOutcomeContinuedSupport LevelCOutcome = "closed_continued_support"
	LevelCOutcomeEscalated        LevelCOutcome = "closed_escalated"
)

// AdminResponseType is the administrative consequence issued for a case.
type AdminResponseType string

const (
	AdminConference  AdminResponseType = "conference"
	AdminDetention   AdminResponseType = "detention"
	AdminISS         AdminResponseType = "iss"
	AdminOSS         AdminResponseType = "oss"
	AdminRestorative AdminResponseType = "restorative"
	AdminOther       AdminResponseType = "other"
)

// ReentrySource returns the re-entry source for consequences that require one.
func (t AdminResponseType) ReentrySource() (ReentrySource, bool) {
	switch t {
	case AdminDetention:
		return ReentrySourceDetention, true
	case AdminISS:
		return ReentrySourceISS, true
	case AdminOSS:
		return ReentrySourceOSS, true
	}
	return "", false
}

// ContextPacket is the phase-one case packet.
type ContextPacket struct {
	IncidentSummary           string    `json:"incident_summary"`
	PatternReview             string    `json:"pattern_review"`
	EnvironmentalFactors      string    `json:"environmental_factors"`
	PriorInterventionsSummary string    `json:"prior_interventions_summary"`
	SubmittedBy               string    `json:"submitted_by"`
	SubmittedAt               time.Time `json:"submitted_at"`
}

// Value marshals the packet for persistence.
func (p ContextPacket) Value() (driver.Value, error) { return marshalJSONB(p, "context packet") }

// Scan unmarshals the packet.
func (p *ContextPacket) Scan(value interface{}) error {
	_, err := unmarshalJSONB(value, p, "context packet")
	return err
}

// AdminResponse is the phase-two administrative decision.
type AdminResponse struct {
	ResponseType     AdminResponseType `json:"response_type"`
	Detail           string            `json:"detail"`
	ConsequenceStart time.Time         `json:"consequence_start"`
	ConsequenceEnd   time.Time         `json:"consequence_end"`
	RecordedBy       string            `json:"recorded_by"`
	RecordedAt       time.Time         `json:"recorded_at"`
}

// Value marshals the response for persistence.
func (r AdminResponse) Value() (driver.Value, error) { return marshalJSONB(r, "admin response") }

// Scan unmarshals the response.
func (r *AdminResponse) Scan(value interface{}) error {
	_, err := unmarshalJSONB(value, r, "admin response")
	return err
}

// SupportPlan is the phase-three support and re-entry plan.
type SupportPlan struct {
	Goal               string    `json:"goal"`
	Strategies         []string  `json:"strategies"`
	MentorID           *string   `json:"mentor_id,omitempty"`
	RepairActions      []string  `json:"repair_actions"`
	ReentryDate        time.Time `json:"reentry_date"`
	ReentryType        string    `json:"reentry_type"`
	Restrictions       []string  `json:"restrictions,omitempty"`
	ReadinessChecklist Checklist `json:"readiness_checklist"`
}

// Value marshals the plan for persistence.
func (p SupportPlan) Value() (driver.Value, error) { return marshalJSONB(p, "support plan") }

// Scan unmarshals the plan.
func (p *SupportPlan) Scan(value interface{}) error {
	_, err := unmarshalJSONB(value, p, "support plan")
	return err
}

// LevelCCheckIn is one monitoring check-in.
type LevelCCheckIn struct {
	Date     string `json:"date"`
	Rating   int    `json:"rating"`
	Notes    string `json:"notes,omitempty"`
	LoggedBy string `json:"logged_by"`
}

// CheckIns is the append-only check-in log of a case.
type CheckIns []LevelCCheckIn

// Value marshals the log.
func (c CheckIns) Value() (driver.Value, error) {
	if c == nil {
		c = CheckIns{}
	}
	return marshalJSONB([]LevelCCheckIn(c), "check-ins")
}

// Scan unmarshals the log.
func (c *CheckIns) Scan(value interface{}) error {
	out := CheckIns{}
	if _, err := unmarshalJSONB(value, &out, "check-ins"); err != nil {
		return err
	}
	*c = out
	return nil
}

// LevelCCase is a case-managed student record.
type LevelCCase struct {
	ID                     string            `db:"id" json:"id"`
	StudentID              string            `db:"student_id" json:"student_id"`
	CaseManagerID          string            `db:"case_manager_id" json:"case_manager_id"`
	TriggerType            EscalationTrigger `db:"trigger_type" json:"trigger_type"`
	CaseType               LevelCCaseType    `db:"case_type" json:"case_type"`
	LevelBIDs              pq.StringArray    `db:"level_b_ids" json:"level_b_ids"`
	Status                 LevelCStatus      `db:"status" json:"status"`
	ContextPacket          *ContextPacket    `db:"context_packet" json:"context_packet,omitempty"`
	AdminResponse          *AdminResponse    `db:"admin_response" json:"admin_response,omitempty"`
	SupportPlan            *SupportPlan      `db:"support_plan" json:"support_plan,omitempty"`
	MonitoringDurationDays *int              `db:"monitoring_duration_days" json:"monitoring_duration_days,omitempty"`
	ReviewDates            pq.StringArray    `db:"review_dates" json:"review_dates,omitempty"`
	CheckIns               CheckIns          `db:"daily_check_ins" json:"daily_check_ins"`
	ReentryProtocolID      *string           `db:"reentry_protocol_id" json:"reentry_protocol_id,omitempty"`
	ClosureDate            *time.Time        `db:"closure_date" json:"closure_date,omitempty"`
	OutcomeStatus          LevelCOutcome     `db:"outcome_status" json:"outcome_status"`
	ClosureNotes           *string           `db:"closure_notes" json:"closure_notes,omitempty"`
	CreatedAt              time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time         `db:"updated_at" json:"updated_at"`
}

func (c *LevelCCase) Tier() Tier            { return TierC }
func (c *LevelCCase) RecordID() string      { return c.ID }
func (c *LevelCCase) StudentKey() string    { return c.StudentID }
func (c *LevelCCase) OccurredAt() time.Time { return c.CreatedAt }
