package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/house-points-api/internal/models"
	"github.com/noah-isme/house-points-api/internal/repository"
	appErrors "github.com/noah-isme/house-points-api/pkg/errors"
	"github.com/noah-isme/house-points-api/pkg/timeutil"
)

// CreateLevelBRequest opens a reset conference directly.
type CreateLevelBRequest struct {
	StudentID string                   `json:"student_id" validate:"required"`
	Domain    models.Domain            `json:"domain" validate:"required,domain"`
	Trigger   models.EscalationTrigger `json:"trigger" validate:"required,level_b_trigger"`
	LevelAID  *string                  `json:"level_a_id"`
}

// LevelBStepRequest carries the payload of one protocol step. Which fields are
// required depends on the step.
type LevelBStepRequest struct {
	Notes             string   `json:"notes" validate:"max=4000"`
	ReflectionPrompts []string `json:"reflection_prompts" validate:"omitempty,dive,required"`
	RepairAction      string   `json:"repair_action" validate:"max=2000"`
	ReplacementSkill  string   `json:"replacement_skill" validate:"max=2000"`
	ResetGoal         string   `json:"reset_goal" validate:"max=2000"`
	ResetTimeline     string   `json:"reset_timeline" validate:"max=500"`
	Documented        bool     `json:"documented"`
}

// DailyRateRequest records one monitoring day.
type DailyRateRequest struct {
	Date string  `json:"date" validate:"required,iso_date"`
	Rate float64 `json:"rate" validate:"min=0,max=100"`
}

// CloseLevelBRequest ends monitoring. Escalate requires a reason; the remaining flags feed the B→C rules.
type CloseLevelBRequest struct {
	Escalate       bool                  `json:"escalate"`
	Reason         string                `json:"reason" validate:"max=2000"`
	SafetyIncident bool                  `json:"safety_incident"`
	PostOSS        bool                  `json:"post_oss"`
	AdminReferral  bool                  `json:"admin_referral"`
	CaseType       models.LevelCCaseType `json:"case_type" validate:"omitempty,case_type"`
	CaseManagerID  string                `json:"case_manager_id"`
}

// CancelRequest cancels an open record.
type CancelRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

// LevelBCloseResult is the closed record and, on escalation, the case it opened.
type LevelBCloseResult struct {
	LevelB   *models.LevelBIntervention `json:"level_b"`
	LevelC   *models.LevelCCase         `json:"level_c,omitempty"`
	Triggers []models.EscalationTrigger `json:"triggers,omitempty"`
}

// CreateLevelB opens a reset conference without a Level A record, or for an existing one.
func (s *InterventionService) CreateLevelB(ctx context.Context, req CreateLevelBRequest, actorID string) (*models.LevelBIntervention, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid payload")
	}
	b := &models.LevelBIntervention{
		StudentID:         req.StudentID,
		StaffID:           actorID,
		Domain:            req.Domain,
		EscalationTrigger: req.Trigger,
		LevelAID:          req.LevelAID,
		Status:            models.LevelBInProgress,
	}
	if err := s.repo.CreateLevelB(ctx, b); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create level b intervention")
	}
	s.metrics.RecordTransition(models.TierB, "create")
	s.audit.record(ctx, actorID, models.AuditActionLevelBCreate, models.AuditResourceLevelB, b.ID, nil, b)
	return b, nil
}

// GetLevelB loads a Level B record.
func (s *InterventionService) GetLevelB(ctx context.Context, id string) (*models.LevelBIntervention, error) {
	b, err := s.repo.GetLevelB(ctx, id)
	if err != nil {
		return nil, notFoundOrInternal(err, "level b intervention")
	}
	return b, nil
}

// CompleteLevelBStep marks one step done with its payload. The write that completes the last
// step also moves the record to monitoring and stamps the monitoring window. Repeating a step
// of a record whose steps are all done but which is still in progress starts monitoring.
func (s *InterventionService) CompleteLevelBStep(ctx context.Context, id string, step int, req LevelBStepRequest, actorID string) (*models.LevelBIntervention, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid payload")
	}
	params, err := levelBStepParams(step, req)
	if err != nil {
		return nil, err
	}
	b, err := s.GetLevelB(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != models.LevelBInProgress {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "steps can only be recorded while the intervention is in progress")
	}
	if b.Completed(step) {
		if b.AllCompleted() {
			return s.startLevelBMonitoring(ctx, b, actorID)
		}
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("step %d already completed", step))
	}

	params.ExpectedStatuses = []models.LevelBStatus{models.LevelBInProgress}
	last := b.CompletedCount() == models.LevelBStepCount-1
	if last {
		s.stampLevelBMonitoring(&params)
	}
	updated, err := s.repo.UpdateLevelB(ctx, id, params)
	if err != nil {
		return nil, conflictOrInternal(err, "level b intervention")
	}
	s.metrics.RecordTransition(models.TierB, "step")
	s.audit.record(ctx, actorID, models.AuditActionLevelBStep, models.AuditResourceLevelB, id, nil, map[string]interface{}{"step": step, "payload": req})
	if last {
		s.levelBMonitoringStarted(ctx, actorID, b, updated)
	}
	return updated, nil
}

// levelBStepParams checks the payload a step requires and maps it onto the update.
func levelBStepParams(step int, req LevelBStepRequest) (repository.UpdateLevelBParams, error) {
	params := repository.UpdateLevelBParams{CompleteStep: step}
	missing := func(field string) (repository.UpdateLevelBParams, error) {
		return params, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("step %d requires %s", step, field))
	}
	switch step {
	case 1:
		if strings.TrimSpace(req.Notes) == "" {
			return missing("regulate notes")
		}
		params.RegulateNotes = optionalString(req.Notes)
	case 2:
		if strings.TrimSpace(req.Notes) == "" {
			return missing("pattern notes")
		}
		params.PatternNotes = optionalString(req.Notes)
	case 3:
		if len(req.ReflectionPrompts) == 0 {
			return missing("the reflection prompts used")
		}
		params.ReflectionPrompts = req.ReflectionPrompts
	case 4:
		if strings.TrimSpace(req.RepairAction) == "" {
			return missing("a repair action")
		}
		params.RepairAction = optionalString(req.RepairAction)
	case 5:
		if strings.TrimSpace(req.ReplacementSkill) == "" {
			return missing("a replacement skill")
		}
		params.ReplacementSkill = optionalString(req.ReplacementSkill)
	case 6:
		if strings.TrimSpace(req.ResetGoal) == "" || strings.TrimSpace(req.ResetTimeline) == "" {
			return missing("a reset goal and timeline")
		}
		params.ResetGoal = optionalString(req.ResetGoal)
		params.ResetTimeline = optionalString(req.ResetTimeline)
	case 7:
		if !req.Documented {
			return missing("documentation to be confirmed")
		}
		params.Documented = true
	default:
		return params, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("step must be between 1 and %d", models.LevelBStepCount))
	}
	return params, nil
}

func (s *InterventionService) startLevelBMonitoring(ctx context.Context, b *models.LevelBIntervention, actorID string) (*models.LevelBIntervention, error) {
	if !b.AllCompleted() {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "all protocol steps must be completed before monitoring")
	}
	params := repository.UpdateLevelBParams{ExpectedStatuses: []models.LevelBStatus{models.LevelBInProgress}}
	s.stampLevelBMonitoring(&params)
	updated, err := s.repo.UpdateLevelB(ctx, b.ID, params)
	if err != nil {
		return nil, conflictOrInternal(err, "level b intervention")
	}
	s.levelBMonitoringStarted(ctx, actorID, b, updated)
	return updated, nil
}

// stampLevelBMonitoring adds the move to monitoring and the monitoring window to params.
func (s *InterventionService) stampLevelBMonitoring(params *repository.UpdateLevelBParams) {
	days, method := MonitoringPlan(s.policy.Reentry, models.ReentrySourceLevelB)
	start := timeutil.StartOfDay(s.now())
	end := timeutil.AddDays(start, days)
	monitoring := models.LevelBMonitoring
	params.Status = &monitoring
	params.MonitoringStart = &start
	params.MonitoringEnd = &end
	params.MonitoringMethod = &method
}

func (s *InterventionService) levelBMonitoringStarted(ctx context.Context, actorID string, before, after *models.LevelBIntervention) {
	s.metrics.RecordTransition(models.TierB, "monitoring")
	s.audit.record(ctx, actorID, models.AuditActionLevelBMonitoring, models.AuditResourceLevelB, before.ID, before.Status, after.Status)
}

// RecordLevelBDailyRate adds one day to the monitoring map.
func (s *InterventionService) RecordLevelBDailyRate(ctx context.Context, id string, req DailyRateRequest, actorID string) (*models.LevelBIntervention, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid payload")
	}
	b, err := s.GetLevelB(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != models.LevelBMonitoring {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "daily rates require a record in monitoring")
	}
	date := strings.TrimSpace(req.Date)
	updated, err := s.repo.AppendLevelBDailyRate(ctx, id, date, req.Rate)
	if err != nil {
		return nil, conflictOrInternal(err, "level b intervention")
	}
	s.audit.record(ctx, actorID, models.AuditActionLevelBDailyRate, models.AuditResourceLevelB, id, nil, req)
	return updated, nil
}

// CloseLevelBMonitoring computes the final success rate and closes the record. Escalation
// evaluates the B→C rules and opens a Level C case carrying the first trigger that fired.
func (s *InterventionService) CloseLevelBMonitoring(ctx context.Context, id string, req CloseLevelBRequest, actorID string) (*LevelBCloseResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid payload")
	}
	if req.Escalate && strings.TrimSpace(req.Reason) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "escalation requires a reason")
	}
	b, err := s.GetLevelB(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != models.LevelBMonitoring {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only records in monitoring can be closed")
	}
	if !b.AllCompleted() {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "all protocol steps must be completed before closing")
	}

	var triggers []models.EscalationTrigger
	if req.Escalate {
		triggers, err = s.levelCTriggers(ctx, b.StudentID, req)
		if err != nil {
			return nil, err
		}
	}

	final := b.DailyRates.Mean()
	now := s.now().UTC()
	params := repository.UpdateLevelBParams{
		ExpectedStatuses: []models.LevelBStatus{models.LevelBMonitoring},
		FinalSuccessRate: &final,
		CompletedAt:      &now,
	}
	status := models.LevelBCompletedSuccess
	var c *models.LevelCCase
	if req.Escalate {
		status = models.LevelBCompletedEscalated
		params.EscalatedToC = true
		params.EscalationReason = optionalString(req.Reason)
		c = escalatedCase(b, req, triggers[0], actorID)
	}
	params.Status = &status

	var updated *models.LevelBIntervention
	if c == nil {
		updated, err = s.repo.UpdateLevelB(ctx, id, params)
	} else {
		updated, err = s.repo.EscalateLevelB(ctx, id, params, c)
	}
	if err != nil {
		if c != nil {
			s.logger.Error("level b escalation rolled back",
				zap.String("level_b_id", b.ID),
				zap.Error(err),
			)
		}
		return nil, conflictOrInternal(err, "level b intervention")
	}
	s.metrics.RecordTransition(models.TierB, string(status))
	s.audit.record(ctx, actorID, models.AuditActionLevelBClose, models.AuditResourceLevelB, id, b.Status, map[string]interface{}{
		"status":             status,
		"final_success_rate": final,
		"reason":             req.Reason,
	})
	result := &LevelBCloseResult{LevelB: updated}
	if c == nil {
		return result, nil
	}
	s.metrics.RecordTransition(models.TierC, "create")
	s.audit.record(ctx, actorID, models.AuditActionLevelCCreate, models.AuditResourceLevelC, c.ID, nil, c)
	result.LevelC = c
	result.Triggers = triggers
	return result, nil
}

func escalatedCase(b *models.LevelBIntervention, req CloseLevelBRequest, trigger models.EscalationTrigger, actorID string) *models.LevelCCase {
	manager := strings.TrimSpace(req.CaseManagerID)
	if manager == "" {
		manager = actorID
	}
	caseType := req.CaseType
	if caseType == "" {
		caseType = models.CaseStandard
	}
	return &models.LevelCCase{
		StudentID:     b.StudentID,
		CaseManagerID: manager,
		TriggerType:   trigger,
		CaseType:      caseType,
		LevelBIDs:     []string{b.ID},
	}
}

// levelCTriggers gathers the B→C facts for a student. A staff escalation that matches no
// rule is recorded as an admin referral.
func (s *InterventionService) levelCTriggers(ctx context.Context, studentID string, req CloseLevelBRequest) ([]models.EscalationTrigger, error) {
	cycles, err := s.repo.CountLevelB(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count level b cycles")
	}
	chronic := false
	if s.patterns != nil {
		chronic, err = s.patterns.HasPattern(ctx, studentID, models.PatternEscalation)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check behaviour patterns")
		}
	}
	points, err := s.cumulativePoints(ctx, studentID)
	if err != nil {
		return nil, err
	}
	triggers := EvaluateLevelCTriggers(s.policy.LevelC, LevelCTriggerInput{
		LevelBCycles:     cycles,
		ChronicPattern:   chronic,
		SafetyIncident:   req.SafetyIncident,
		PostOSS:          req.PostOSS,
		AdminReferral:    req.AdminReferral,
		CumulativePoints: points,
	})
	if len(triggers) == 0 {
		triggers = []models.EscalationTrigger{models.TriggerAdminReferral}
	}
	return triggers, nil
}

// CancelLevelB cancels an open record.
func (s *InterventionService) CancelLevelB(ctx context.Context, id string, req CancelRequest, actorID string) (*models.LevelBIntervention, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid payload")
	}
	b, err := s.GetLevelB(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status.IsTerminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "record is already closed")
	}
	cancelled := models.LevelBCancelled
	now := s.now().UTC()
	updated, err := s.repo.UpdateLevelB(ctx, id, repository.UpdateLevelBParams{
		ExpectedStatuses: []models.LevelBStatus{models.LevelBInProgress, models.LevelBMonitoring},
		Status:           &cancelled,
		CompletedAt:      &now,
	})
	if err != nil {
		return nil, conflictOrInternal(err, "level b intervention")
	}
	s.metrics.RecordTransition(models.TierB, "cancel")
	s.audit.record(ctx, actorID, models.AuditActionLevelBCancel, models.AuditResourceLevelB, id, b.Status, map[string]string{"reason": strings.TrimSpace(req.Reason)})
	return updated, nil
}
