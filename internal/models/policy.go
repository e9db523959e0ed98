package models

// Policy carries the fixed thresholds, labels and default lists used by the
// intervention framework. It is built once at start-up and shared read-only.
type Policy struct {
	Insights  InsightPolicy
	LevelA    LevelAPolicy
	LevelC    LevelCPolicy
	Reentry   ReentryPolicy
	Analytics AnalyticsPolicy
	Digest    DigestPolicy

	DomainLabels map[Domain]string
}

// InsightPolicy holds the pattern detection thresholds.
type InsightPolicy struct {
	EarlyConcernDemerits int
	IsolationShare       float64
	StrengthKeywords     []string
	StruggleKeywords     []string

	EarlyConcernConfidence     float64
	EscalationConfidence       float64
	StrengthMismatchConfidence float64
}

// LevelAPolicy holds the A→B escalation thresholds.
type LevelAPolicy struct {
	RepeatWindowDays          int
	RepeatIncidentThreshold   int
	IgnoredPromptsThreshold   int
	CumulativePointsThreshold int
	SharedSpaces              []Domain
}

// LevelCPolicy holds the B→C escalation thresholds.
type LevelCPolicy struct {
	LevelBCycleThreshold  int
	PointThresholds       []int
	DefaultMonitoringDays int
	ReviewIntervalDays    int
}

// ReentryPolicy maps consequence sources to monitoring plans.
type ReentryPolicy struct {
	DurationDays     map[ReentrySource]int
	Methods          map[ReentrySource]MonitoringMethod
	DefaultMethod    MonitoringMethod
	DefaultChecklist []string
	ScriptTemplate   string
}

// AnalyticsPolicy holds the aggregation constants.
type AnalyticsPolicy struct {
	HealthyLevelAShare float64
	RepeatWindowDays   int
	TrendWeeks         int
	RecentPerTier      int
	RecentLimit        int
}

// DigestPolicy holds the natural-language digest thresholds.
type DigestPolicy struct {
	ParticipationExcellent float64
	ParticipationReminder  float64
	HealthyRatioLow        float64
	HealthyRatioHigh       float64
	CategoryDominance      float64
	HouseSpreadPoints      int
	ConsistencyFloor       float64
	MaxInsights            int
	MaxActions             int
}

// DefaultPolicy returns the standard school policy.
func DefaultPolicy() *Policy {
	return &Policy{
		Insights: InsightPolicy{
			EarlyConcernDemerits:       3,
			IsolationShare:             0.6,
			StrengthKeywords:           []string{"leadership", "responsibility"},
			StruggleKeywords:           []string{"disruption", "talking"},
			EarlyConcernConfidence:     0.8,
			EscalationConfidence:       0.9,
			StrengthMismatchConfidence: 0.7,
		},
		LevelA: LevelAPolicy{
			RepeatWindowDays:          10,
			RepeatIncidentThreshold:   3,
			IgnoredPromptsThreshold:   2,
			CumulativePointsThreshold: 10,
			SharedSpaces:              []Domain{DomainHallways, DomainLunchRecess, DomainPrayerSpace},
		},
		LevelC: LevelCPolicy{
			LevelBCycleThreshold:  2,
			PointThresholds:       []int{20, 30, 35, 40},
			DefaultMonitoringDays: 30,
			ReviewIntervalDays:    7,
		},
		Reentry: ReentryPolicy{
			DurationDays: map[ReentrySource]int{
				ReentrySourceLevelB:    3,
				ReentrySourceDetention: 3,
				ReentrySourceISS:       5,
				ReentrySourceOSS:       10,
			},
			Methods: map[ReentrySource]MonitoringMethod{
				ReentrySourceISS: MonitoringCheckInOut,
				ReentrySourceOSS: MonitoringIntensive,
			},
			DefaultMethod: MonitoringChecklist,
			DefaultChecklist: []string{
				"Student can articulate what happened",
				"Student can name the expectation that was broken",
				"Student has identified a repair action",
				"Student can state their reset goal",
			},
			ScriptTemplate: "Welcome back. We're glad you're here. Your goal today is to %s. I'll check in with you during class, and if you need a moment, use the signal we agreed on.",
		},
		Analytics: AnalyticsPolicy{
			HealthyLevelAShare: 0.6,
			RepeatWindowDays:   10,
			TrendWeeks:         8,
			RecentPerTier:      5,
			RecentLimit:        10,
		},
		Digest: DigestPolicy{
			ParticipationExcellent: 80,
			ParticipationReminder:  70,
			HealthyRatioLow:        3,
			HealthyRatioHigh:       5,
			CategoryDominance:      50,
			HouseSpreadPoints:      20,
			ConsistencyFloor:       60,
			MaxInsights:            5,
			MaxActions:             5,
		},
		DomainLabels: map[Domain]string{
			DomainClassroom:   "Classroom",
			DomainHallways:    "Hallways",
			DomainLunchRecess: "Lunch / Recess",
			DomainPrayerSpace: "Prayer Space",
			DomainRespect:     "Respect",
			DomainSafety:      "Safety",
		},
	}
}

// IsSharedSpace reports whether the domain is a shared space.
func (p LevelAPolicy) IsSharedSpace(d Domain) bool {
	for _, shared := range p.SharedSpaces {
		if shared == d {
			return true
		}
	}
	return false
}

// DomainLabel returns the display label for a domain, falling back to its key.
func (p *Policy) DomainLabel(d Domain) string {
	if label, ok := p.DomainLabels[d]; ok {
		return label
	}
	return string(d)
}

// Domains lists the active behavioural domains in display order.
func (p *Policy) Domains() []Domain {
	return []Domain{DomainClassroom, DomainHallways, DomainLunchRecess, DomainPrayerSpace, DomainRespect, DomainSafety}
}
