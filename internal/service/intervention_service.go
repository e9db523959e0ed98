package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/house-points-api/internal/models"
	"github.com/noah-isme/house-points-api/internal/repository"
	appErrors "github.com/noah-isme/house-points-api/pkg/errors"
)

type interventionStore interface {
	CreateLevelA(ctx context.Context, a *models.LevelAIntervention, escalation *models.LevelBIntervention) error
	GetLevelA(ctx context.Context, id string) (*models.LevelAIntervention, error)
	CountLevelASameDomain(ctx context.Context, studentID string, domain models.Domain, since time.Time) (int, error)
	CreateLevelB(ctx context.Context, b *models.LevelBIntervention) error
	GetLevelB(ctx context.Context, id string) (*models.LevelBIntervention, error)
	CountLevelB(ctx context.Context, studentID string) (int, error)
	UpdateLevelB(ctx context.Context, id string, params repository.UpdateLevelBParams) (*models.LevelBIntervention, error)
	EscalateLevelB(ctx context.Context, id string, params repository.UpdateLevelBParams, c *models.LevelCCase) (*models.LevelBIntervention, error)
	AppendLevelBDailyRate(ctx context.Context, id, date string, rate float64) (*models.LevelBIntervention, error)
	CreateLevelC(ctx context.Context, c *models.LevelCCase) error
	GetLevelC(ctx context.Context, id string) (*models.LevelCCase, error)
	UpdateLevelC(ctx context.Context, id string, params repository.UpdateLevelCParams) (*models.LevelCCase, error)
	AppendLevelCCheckIn(ctx context.Context, id string, checkIn models.LevelCCheckIn) (*models.LevelCCase, error)
}

type demeritLedger interface {
	DemeritPointsSince(ctx context.Context, studentID string, since time.Time) (int, error)
}

type patternLookup interface {
	HasPattern(ctx context.Context, studentID string, pattern models.PatternType) (bool, error)
}

type reentryOpener interface {
	CreateReentryProtocol(ctx context.Context, req CreateReentryRequest, actorID string) (*models.ReentryProtocol, error)
}

// InterventionService drives the Level A, B and C lifecycles.
type InterventionService struct {
	repo      interventionStore
	points    demeritLedger
	patterns  patternLookup
	reentry   reentryOpener
	policy    *models.Policy
	validator *validator.Validate
	audit     auditTrail
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// InterventionDeps groups the collaborators of the intervention service.
type InterventionDeps struct {
	Repo     interventionStore
	Points   demeritLedger
	Patterns patternLookup
	Reentry  reentryOpener
	Audit    auditLogger
}

// NewInterventionService constructs the service.
func NewInterventionService(deps InterventionDeps, policy *models.Policy, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *InterventionService {
	if policy == nil {
		policy = models.DefaultPolicy()
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	registerDomainValidations(validate)
	return &InterventionService{
		repo:      deps.Repo,
		points:    deps.Points,
		patterns:  deps.Patterns,
		reentry:   deps.Reentry,
		policy:    policy,
		validator: validate,
		audit:     auditTrail{store: deps.Audit, logger: logger},
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateLevelARequest records a minor incident and the quick response used.
type CreateLevelARequest struct {
	StudentID        string                   `json:"student_id" validate:"required"`
	Domain           models.Domain            `json:"domain" validate:"required,domain"`
	InterventionType models.LevelAType        `json:"intervention_type" validate:"required,level_a_type"`
	Description      string                   `json:"description" validate:"required,max=2000"`
	Outcome          models.LevelAOutcome     `json:"outcome" validate:"required,level_a_outcome"`
	RepeatedSameDay  bool                     `json:"repeated_same_day"`
	AffectedOthers   bool                     `json:"affected_others"`
	DisruptedSpace   bool                     `json:"disrupted_shared_space"`
	DemeritAssigned  bool                     `json:"demerit_assigned"`
	IgnoredPrompts   int                      `json:"ignored_prompts" validate:"min=0"`
	SafetyRisk       bool                     `json:"safety_risk"`
	Trigger          models.EscalationTrigger `json:"trigger" validate:"omitempty,level_b_trigger"`
	OccurredAt       *time.Time               `json:"occurred_at"`
}

// LevelAResult is the stored incident and, when it escalated, the Level B record it opened.
type LevelAResult struct {
	LevelA   *models.LevelAIntervention `json:"level_a"`
	LevelB   *models.LevelBIntervention `json:"level_b,omitempty"`
	Triggers []models.EscalationTrigger `json:"triggers"`
}

// LevelATriggerInput carries the facts the A→B rules look at. The domain alone never
// escalates: DisruptedSpace and SafetyRisk are reported by staff.
type LevelATriggerInput struct {
	Domain          models.Domain
	DemeritAssigned bool
	AffectedOthers  bool
	DisruptedSpace  bool
	IgnoredPrompts  int
	SafetyRisk      bool
	// SameDomainCount includes the incident being recorded.
	SameDomainCount  int
	CumulativePoints int
}

// EvaluateLevelATriggers returns every A→B trigger that fires, in rule order.
func EvaluateLevelATriggers(policy models.LevelAPolicy, in LevelATriggerInput) []models.EscalationTrigger {
	var fired []models.EscalationTrigger
	if in.DemeritAssigned {
		fired = append(fired, models.TriggerDemeritAssigned)
	}
	if in.SameDomainCount >= policy.RepeatIncidentThreshold {
		fired = append(fired, models.TriggerRepeatedDomain)
	}
	if in.IgnoredPrompts >= policy.IgnoredPromptsThreshold {
		fired = append(fired, models.TriggerIgnoredPrompts)
	}
	if in.AffectedOthers {
		fired = append(fired, models.TriggerPeerImpact)
	}
	if in.DisruptedSpace && policy.IsSharedSpace(in.Domain) {
		fired = append(fired, models.TriggerSharedSpace)
	}
	if in.SafetyRisk {
		fired = append(fired, models.TriggerSafetyRisk)
	}
	if in.CumulativePoints >= policy.CumulativePointsThreshold {
		fired = append(fired, models.TriggerCumulativePoints10)
	}
	return fired
}

// LevelCTriggerInput carries the facts the B→C rules look at.
type LevelCTriggerInput struct {
	LevelBCycles     int
	ChronicPattern   bool
	SafetyIncident   bool
	PostOSS          bool
	AdminReferral    bool
	CumulativePoints int
}

// EvaluateLevelCTriggers returns every B→C trigger that fires, in rule order. Only the highest
// point threshold crossed is reported.
func EvaluateLevelCTriggers(policy models.LevelCPolicy, in LevelCTriggerInput) []models.EscalationTrigger {
	var fired []models.EscalationTrigger
	if in.LevelBCycles >= policy.LevelBCycleThreshold {
		fired = append(fired, models.TriggerNoImprovement)
	}
	if in.ChronicPattern {
		fired = append(fired, models.TriggerChronicPattern)
	}
	if in.SafetyIncident {
		fired = append(fired, models.TriggerSafetyIncident)
	}
	if in.PostOSS {
		fired = append(fired, models.TriggerPostOSSReentry)
	}
	highest := 0
	for _, threshold := range policy.PointThresholds {
		if in.CumulativePoints >= threshold && threshold > highest {
			highest = threshold
		}
	}
	if highest > 0 {
		fired = append(fired, models.EscalationTrigger(fmt.Sprintf("points_%d", highest)))
	}
	if in.AdminReferral {
		fired = append(fired, models.TriggerAdminReferral)
	}
	return fired
}

// CreateLevelA stores the incident. A staff-reported escalation or any fired A→B rule opens a
// Level B record referencing it in the same write.
func (s *InterventionService) CreateLevelA(ctx context.Context, req CreateLevelARequest, actorID string) (*LevelAResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid payload")
	}
	occurredAt := s.now().UTC()
	if req.OccurredAt != nil && !req.OccurredAt.IsZero() {
		occurredAt = req.OccurredAt.UTC()
	}

	since := occurredAt.AddDate(0, 0, -s.policy.LevelA.RepeatWindowDays)
	sameDomain, err := s.repo.CountLevelASameDomain(ctx, req.StudentID, req.Domain, since)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count prior incidents")
	}
	points, err := s.cumulativePoints(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}

	triggers := EvaluateLevelATriggers(s.policy.LevelA, LevelATriggerInput{
		Domain:           req.Domain,
		DemeritAssigned:  req.DemeritAssigned,
		AffectedOthers:   req.AffectedOthers,
		DisruptedSpace:   req.DisruptedSpace,
		IgnoredPrompts:   req.IgnoredPrompts,
		SafetyRisk:       req.SafetyRisk,
		SameDomainCount:  sameDomain + 1,
		CumulativePoints: points,
	})
	if req.Trigger != "" {
		triggers = prependTrigger(triggers, req.Trigger)
	}
	escalate := req.Outcome == models.LevelAEscalated || len(triggers) > 0
	if escalate && len(triggers) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "an escalated incident needs an escalation trigger")
	}

	a := &models.LevelAIntervention{
		StudentID:        req.StudentID,
		StaffID:          actorID,
		Domain:           req.Domain,
		InterventionType: req.InterventionType,
		Description:      strings.TrimSpace(req.Description),
		Outcome:          req.Outcome,
		RepeatedSameDay:  req.RepeatedSameDay,
		AffectedOthers:   req.AffectedOthers,
		EscalatedToB:     escalate,
		IncidentAt:       occurredAt,
	}
	var b *models.LevelBIntervention
	if escalate {
		b = &models.LevelBIntervention{
			StudentID:         req.StudentID,
			StaffID:           actorID,
			Domain:            req.Domain,
			EscalationTrigger: triggers[0],
			Status:            models.LevelBInProgress,
		}
	}
	if err := s.repo.CreateLevelA(ctx, a, b); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record level a intervention")
	}

	s.metrics.RecordTransition(models.TierA, "create")
	s.audit.record(ctx, actorID, models.AuditActionLevelACreate, models.AuditResourceLevelA, a.ID, nil, a)
	if b != nil {
		s.metrics.RecordTransition(models.TierB, "create")
		s.audit.record(ctx, actorID, models.AuditActionLevelBCreate, models.AuditResourceLevelB, b.ID, nil, b)
		s.logger.Info("level a escalated to level b",
			zap.String("student_id", req.StudentID),
			zap.String("level_a_id", a.ID),
			zap.String("level_b_id", b.ID),
			zap.String("trigger", string(b.EscalationTrigger)),
		)
	}
	return &LevelAResult{LevelA: a, LevelB: b, Triggers: triggers}, nil
}

// GetLevelA loads a Level A record.
func (s *InterventionService) GetLevelA(ctx context.Context, id string) (*models.LevelAIntervention, error) {
	a, err := s.repo.GetLevelA(ctx, id)
	if err != nil {
		return nil, notFoundOrInternal(err, "level a intervention")
	}
	return a, nil
}

func (s *InterventionService) cumulativePoints(ctx context.Context, studentID string) (int, error) {
	if s.points == nil {
		return 0, nil
	}
	total, err := s.points.DemeritPointsSince(ctx, studentID, time.Time{})
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum demerit points")
	}
	if total < 0 {
		total = -total
	}
	return total, nil
}

func prependTrigger(triggers []models.EscalationTrigger, explicit models.EscalationTrigger) []models.EscalationTrigger {
	out := []models.EscalationTrigger{explicit}
	for _, t := range triggers {
		if t != explicit {
			out = append(out, t)
		}
	}
	return out
}

func notFoundOrInternal(err error, resource string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, resource+" not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load "+resource)
}

// conflictOrInternal maps a guarded update that matched no row to a conflict.
func conflictOrInternal(err error, resource string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrConflict, resource+" was changed by another request, retry")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update "+resource)
}
