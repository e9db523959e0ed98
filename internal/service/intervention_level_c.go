package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/house-points-api/internal/models"
	"github.com/noah-isme/house-points-api/internal/repository"
	appErrors "github.com/noah-isme/house-points-api/pkg/errors"
	"github.com/noah-isme/house-points-api/pkg/timeutil"
)

// CreateLevelCRequest opens a case from prior Level B cycles or a direct trigger.
type CreateLevelCRequest struct {
	StudentID     string                   `json:"student_id" validate:"required"`
	TriggerType   models.EscalationTrigger `json:"trigger_type" validate:"required,level_c_trigger"`
	CaseType      models.LevelCCaseType    `json:"case_type" validate:"omitempty,case_type"`
	CaseManagerID string                   `json:"case_manager_id"`
	LevelBIDs     []string                 `json:"level_b_ids" validate:"omitempty,dive,required"`
}

// ContextPacketRequest is the phase-one payload.
type ContextPacketRequest struct {
	IncidentSummary           string `json:"incident_summary" validate:"required,max=4000"`
	PatternReview             string `json:"pattern_review" validate:"required,max=4000"`
	EnvironmentalFactors      string `json:"environmental_factors" validate:"required,max=4000"`
	PriorInterventionsSummary string `json:"prior_interventions_summary" validate:"required,max=4000"`
}

// AdminResponseRequest is the phase-two payload.
type AdminResponseRequest struct {
	ResponseType     models.AdminResponseType `json:"response_type" validate:"required,admin_response_type"`
	Detail           string                   `json:"detail" validate:"required,max=4000"`
	ConsequenceStart string                   `json:"consequence_start" validate:"required,iso_date"`
	ConsequenceEnd   string                   `json:"consequence_end" validate:"required,iso_date"`
}

// SupportPlanRequest is the phase-three payload. An empty checklist uses the default readiness items.
type SupportPlanRequest struct {
	Goal          string   `json:"goal" validate:"required,max=2000"`
	Strategies    []string `json:"strategies" validate:"required,min=1,dive,required"`
	MentorID      *string  `json:"mentor_id"`
	RepairActions []string `json:"repair_actions" validate:"required,min=1,dive,required"`
	ReentryDate   string   `json:"reentry_date" validate:"required,iso_date"`
	ReentryType   string   `json:"reentry_type" validate:"required,max=100"`
	Restrictions  []string `json:"restrictions" validate:"omitempty,dive,required"`
	Checklist     []string `json:"checklist" validate:"omitempty,dive,required"`
}

// StartMonitoringRequest opens the case monitoring period. Zero duration uses the default.
type StartMonitoringRequest struct {
	DurationDays int      `json:"duration_days" validate:"min=0,max=180"`
	ReviewDates  []string `json:"review_dates" validate:"omitempty,dive,iso_date"`
}

// CheckInRequest is one monitoring check-in.
type CheckInRequest struct {
	Date   string `json:"date" validate:"required,iso_date"`
	Rating int    `json:"rating" validate:"min=1,max=5"`
	Notes  string `json:"notes" validate:"max=2000"`
}

// CloseLevelCRequest closes a case.
type CloseLevelCRequest struct {
	Outcome models.LevelCOutcome `json:"outcome" validate:"required,level_c_outcome"`
	Notes   string               `json:"notes" validate:"max=4000"`
}

// CreateLevelC opens a case directly.
func (s *InterventionService) CreateLevelC(ctx context.Context, req CreateLevelCRequest, actorID string) (*models.LevelCCase, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid payload")
	}
	manager := strings.TrimSpace(req.CaseManagerID)
	if manager == "" {
		manager = actorID
	}
	caseType := req.CaseType
	if caseType == "" {
		caseType = models.CaseStandard
	}
	c := &models.LevelCCase{
		StudentID:     req.StudentID,
		CaseManagerID: manager,
		TriggerType:   req.TriggerType,
		CaseType:      caseType,
		LevelBIDs:     req.LevelBIDs,
		Status:        models.LevelCActive,
		OutcomeStatus: models.LevelCOutcomeActive,
	}
	if err := s.repo.CreateLevelC(ctx, c); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create level c case")
	}
	s.metrics.RecordTransition(models.TierC, "create")
	s.audit.record(ctx, actorID, models.AuditActionLevelCCreate, models.AuditResourceLevelC, c.ID, nil, c)
	return c, nil
}

// GetLevelC loads a case.
func (s *InterventionService) GetLevelC(ctx context.Context, id string) (*models.LevelCCase, error) {
	c, err := s.repo.GetLevelC(ctx, id)
	if err != nil {
		return nil, notFoundOrInternal(err, "level c case")
	}
	return c, nil
}

// loadLevelCPhase loads a case and checks it is in the expected phase.
func (s *InterventionService) loadLevelCPhase(ctx context.Context, id string, expected models.LevelCStatus, action string) (*models.LevelCCase, error) {
	c, err := s.GetLevelC(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != expected {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot %s while the case is %s; expected %s", action, c.Status, expected))
	}
	return c, nil
}

func (s *InterventionService) advanceLevelC(ctx context.Context, c *models.LevelCCase, params repository.UpdateLevelCParams, auditAction, actorID string, newValues interface{}) (*models.LevelCCase, error) {
	params.ExpectedStatuses = []models.LevelCStatus{c.Status}
	updated, err := s.repo.UpdateLevelC(ctx, c.ID, params)
	if err != nil {
		return nil, conflictOrInternal(err, "level c case")
	}
	if updated.Status != c.Status {
		s.metrics.RecordTransition(models.TierC, string(updated.Status))
	}
	s.audit.record(ctx, actorID, auditAction, models.AuditResourceLevelC, c.ID, c.Status, newValues)
	return updated, nil
}

// SubmitContextPacket completes phase one.
func (s *InterventionService) SubmitContextPacket(ctx context.Context, id string, req ContextPacketRequest, actorID string) (*models.LevelCCase, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid payload")
	}
	c, err := s.loadLevelCPhase(ctx, id, models.LevelCActive, "submit the context packet")
	if err != nil {
		return nil, err
	}
	packet := &models.ContextPacket{
		IncidentSummary:           strings.TrimSpace(req.IncidentSummary),
		PatternReview:             strings.TrimSpace(req.PatternReview),
		EnvironmentalFactors:      strings.TrimSpace(req.EnvironmentalFactors),
		PriorInterventionsSummary: strings.TrimSpace(req.PriorInterventionsSummary),
		SubmittedBy:               actorID,
		SubmittedAt:               s.now().UTC(),
	}
	next := models.LevelCContextPacket
	return s.advanceLevelC(ctx, c, repository.UpdateLevelCParams{Status: &next, ContextPacket: packet}, models.AuditActionLevelCContextPacket, actorID, packet)
}

// RecordAdminResponse completes phase two.
func (s *InterventionService) RecordAdminResponse(ctx context.Context, id string, req AdminResponseRequest, actorID string) (*models.LevelCCase, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid payload")
	}
	start, _ := timeutil.ParseDate(strings.TrimSpace(req.ConsequenceStart))
	end, _ := timeutil.ParseDate(strings.TrimSpace(req.ConsequenceEnd))
	if end.Before(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "consequence end must not be before its start")
	}
	c, err := s.loadLevelCPhase(ctx, id, models.LevelCContextPacket, "record the admin response")
	if err != nil {
		return nil, err
	}
	response := &models.AdminResponse{
		ResponseType:     req.ResponseType,
		Detail:           strings.TrimSpace(req.Detail),
		ConsequenceStart: start,
		ConsequenceEnd:   end,
		RecordedBy:       actorID,
		RecordedAt:       s.now().UTC(),
	}
	next := models.LevelCAdminResponse
	return s.advanceLevelC(ctx, c, repository.UpdateLevelCParams{Status: &next, AdminResponse: response}, models.AuditActionLevelCAdminResponse, actorID, response)
}

// SubmitSupportPlan completes phase three and seeds the readiness checklist.
func (s *InterventionService) SubmitSupportPlan(ctx context.Context, id string, req SupportPlanRequest, actorID string) (*models.LevelCCase, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid payload")
	}
	c, err := s.loadLevelCPhase(ctx, id, models.LevelCAdminResponse, "submit the support plan")
	if err != nil {
		return nil, err
	}
	reentryDate, _ := timeutil.ParseDate(strings.TrimSpace(req.ReentryDate))
	if c.AdminResponse != nil && reentryDate.Before(c.AdminResponse.ConsequenceStart) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "re-entry date must not be before the consequence starts")
	}
	items := req.Checklist
	if len(items) == 0 {
		items = s.policy.Reentry.DefaultChecklist
	}
	plan := &models.SupportPlan{
		Goal:               strings.TrimSpace(req.Goal),
		Strategies:         req.Strategies,
		MentorID:           req.MentorID,
		RepairActions:      req.RepairActions,
		ReentryDate:        reentryDate,
		ReentryType:        strings.TrimSpace(req.ReentryType),
		Restrictions:       req.Restrictions,
		ReadinessChecklist: models.NewChecklist(items),
	}
	next := models.LevelCPendingReentry
	return s.advanceLevelC(ctx, c, repository.UpdateLevelCParams{Status: &next, SupportPlan: plan}, models.AuditActionLevelCSupportPlan, actorID, plan)
}

// UpdateLevelCChecklistItem marks a readiness item while re-entry is pending.
func (s *InterventionService) UpdateLevelCChecklistItem(ctx context.Context, id string, index int, req ChecklistItemRequest, actorID string) (*models.LevelCCase, error) {
	c, err := s.loadLevelCPhase(ctx, id, models.LevelCPendingReentry, "update the readiness checklist")
	if err != nil {
		return nil, err
	}
	if c.SupportPlan == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "case has no support plan")
	}
	checklist, err := markChecklistItem(c.SupportPlan.ReadinessChecklist, index, req.Completed, actorID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	plan := *c.SupportPlan
	plan.ReadinessChecklist = checklist
	params := repository.UpdateLevelCParams{SupportPlan: &plan, UnchangedSince: &c.UpdatedAt}
	return s.advanceLevelC(ctx, c, params, models.AuditActionLevelCChecklist, actorID,
		map[string]interface{}{"index": index, "completed": req.Completed})
}

// StartLevelCMonitoring moves a ready case into monitoring. Detention, ISS and OSS responses
// open a re-entry protocol for the return date first; a retry after a failed case update
// reuses the protocol already opened for the case.
func (s *InterventionService) StartLevelCMonitoring(ctx context.Context, id string, req StartMonitoringRequest, actorID string) (*models.LevelCCase, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid payload")
	}
	c, err := s.loadLevelCPhase(ctx, id, models.LevelCPendingReentry, "start monitoring")
	if err != nil {
		return nil, err
	}
	if c.SupportPlan == nil || !c.SupportPlan.ReadinessChecklist.AllCompleted() {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "readiness checklist must be complete before monitoring")
	}

	duration := req.DurationDays
	if duration == 0 {
		duration = s.policy.LevelC.DefaultMonitoringDays
	}
	reviewDates := req.ReviewDates
	if len(reviewDates) == 0 {
		reviewDates = reviewSchedule(c.SupportPlan.ReentryDate, duration, s.policy.LevelC.ReviewIntervalDays)
	}
	params := repository.UpdateLevelCParams{
		MonitoringDurationDays: &duration,
		ReviewDates:            reviewDates,
	}

	if c.AdminResponse != nil && s.reentry != nil {
		if source, ok := c.AdminResponse.ResponseType.ReentrySource(); ok {
			caseID := c.ID
			protocol, err := s.reentry.CreateReentryProtocol(ctx, CreateReentryRequest{
				StudentID:   c.StudentID,
				SourceType:  source,
				SourceID:    &caseID,
				ReentryDate: timeutil.FormatDate(c.SupportPlan.ReentryDate),
				ResetGoal:   c.SupportPlan.Goal,
			}, actorID)
			if err != nil {
				return nil, err
			}
			params.ReentryProtocolID = &protocol.ID
		}
	}

	next := models.LevelCMonitoring
	params.Status = &next
	return s.advanceLevelC(ctx, c, params, models.AuditActionLevelCMonitoring, actorID, map[string]interface{}{
		"duration_days":       duration,
		"review_dates":        reviewDates,
		"reentry_protocol_id": params.ReentryProtocolID,
	})
}

// reviewSchedule lists review dates every interval days after start, within the duration.
func reviewSchedule(start time.Time, durationDays, intervalDays int) []string {
	if intervalDays <= 0 {
		return []string{}
	}
	dates := []string{}
	for offset := intervalDays; offset <= durationDays; offset += intervalDays {
		dates = append(dates, timeutil.FormatDate(timeutil.AddDays(start, offset)))
	}
	return dates
}

// LogLevelCCheckIn appends a monitoring check-in.
func (s *InterventionService) LogLevelCCheckIn(ctx context.Context, id string, req CheckInRequest, actorID string) (*models.LevelCCase, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid payload")
	}
	if _, err := s.loadLevelCPhase(ctx, id, models.LevelCMonitoring, "log a check-in"); err != nil {
		return nil, err
	}
	checkIn := models.LevelCCheckIn{
		Date:     strings.TrimSpace(req.Date),
		Rating:   req.Rating,
		Notes:    strings.TrimSpace(req.Notes),
		LoggedBy: actorID,
	}
	updated, err := s.repo.AppendLevelCCheckIn(ctx, id, checkIn)
	if err != nil {
		return nil, conflictOrInternal(err, "level c case")
	}
	s.audit.record(ctx, actorID, models.AuditActionLevelCCheckIn, models.AuditResourceLevelC, id, nil, checkIn)
	return updated, nil
}

// CloseLevelC records the closure outcome.
func (s *InterventionService) CloseLevelC(ctx context.Context, id string, req CloseLevelCRequest, actorID string) (*models.LevelCCase, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid payload")
	}
	c, err := s.loadLevelCPhase(ctx, id, models.LevelCMonitoring, "close the case")
	if err != nil {
		return nil, err
	}
	closed := models.LevelCClosed
	outcome := req.Outcome
	closedAt := s.now().UTC()
	return s.advanceLevelC(ctx, c, repository.UpdateLevelCParams{
		Status:        &closed,
		OutcomeStatus: &outcome,
		ClosureDate:   &closedAt,
		ClosureNotes:  optionalString(req.Notes),
	}, models.AuditActionLevelCClose, actorID, req)
}
