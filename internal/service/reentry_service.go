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
	"github.com/noah-isme/house-points-api/pkg/timeutil"
)

type reentryStore interface {
	Create(ctx context.Context, p *models.ReentryProtocol) error
	FindByID(ctx context.Context, id string) (*models.ReentryProtocol, error)
	FindOpenBySource(ctx context.Context, source models.ReentrySource, sourceID string) (*models.ReentryProtocol, error)
	List(ctx context.Context, filter models.ReentryFilter) ([]models.ReentryProtocol, int, error)
	Update(ctx context.Context, id string, params repository.UpdateReentryParams) (*models.ReentryProtocol, error)
	AppendDailyLog(ctx context.Context, id string, log models.ReentryDailyLog) (*models.ReentryProtocol, error)
}

// ReentryService manages return-to-class protocols.
type ReentryService struct {
	repo      reentryStore
	policy    *models.Policy
	validator *validator.Validate
	audit     auditTrail
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewReentryService constructs the service.
func NewReentryService(repo reentryStore, audit auditLogger, policy *models.Policy, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *ReentryService {
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
	return &ReentryService{
		repo:      repo,
		policy:    policy,
		validator: validate,
		audit:     auditTrail{store: audit, logger: logger},
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateReentryRequest opens a protocol.
type CreateReentryRequest struct {
	StudentID   string               `json:"student_id" validate:"required"`
	SourceType  models.ReentrySource `json:"source_type" validate:"required,reentry_source"`
	SourceID    *string              `json:"source_id"`
	ReentryDate string               `json:"reentry_date" validate:"required,iso_date"`
	ResetGoal   string               `json:"reset_goal" validate:"required"`
	Checklist   []string             `json:"checklist" validate:"omitempty,dive,required"`
}

// ChecklistItemRequest marks a readiness item.
type ChecklistItemRequest struct {
	Completed bool `json:"completed"`
}

// DailyLogRequest is one monitoring log entry.
type DailyLogRequest struct {
	Date   string `json:"date" validate:"required,iso_date"`
	Rating int    `json:"rating" validate:"min=1,max=5"`
	Notes  string `json:"notes" validate:"max=2000"`
}

// CompleteReentryRequest closes a protocol.
type CompleteReentryRequest struct {
	Outcome models.ReentryOutcome `json:"outcome" validate:"required,reentry_outcome"`
	Notes   string                `json:"notes" validate:"max=2000"`
}

// ReentryListRequest filters protocol listings.
type ReentryListRequest struct {
	StudentID string   `json:"student_id"`
	Statuses  []string `json:"statuses"`
	Page      int      `json:"page"`
	PageSize  int      `json:"page_size"`
}

// MonitoringPlan returns the monitoring length and method for a consequence source.
func MonitoringPlan(policy models.ReentryPolicy, source models.ReentrySource) (int, models.MonitoringMethod) {
	days := policy.DurationDays[source]
	method, ok := policy.Methods[source]
	if !ok {
		method = policy.DefaultMethod
	}
	return days, method
}

// GenerateTeacherScript renders the welcome-back script for a reset goal.
func (s *ReentryService) GenerateTeacherScript(goal string) string {
	return fmt.Sprintf(s.policy.Reentry.ScriptTemplate, strings.TrimSpace(goal))
}

// CreateReentryProtocol derives the monitoring plan from the source and stores a pending protocol.
// A request naming a source record that already has an open protocol returns that protocol.
func (s *ReentryService) CreateReentryProtocol(ctx context.Context, req CreateReentryRequest, actorID string) (*models.ReentryProtocol, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid payload")
	}
	if req.SourceID != nil && strings.TrimSpace(*req.SourceID) != "" {
		existing, err := s.repo.FindOpenBySource(ctx, req.SourceType, *req.SourceID)
		switch {
		case err == nil:
			return existing, nil
		case !errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up reentry protocol")
		}
	}
	reentryDate, _ := timeutil.ParseDate(strings.TrimSpace(req.ReentryDate))
	protocol := s.newProtocol(req.StudentID, req.SourceType, req.SourceID, reentryDate, req.ResetGoal, req.Checklist, actorID)
	if err := s.repo.Create(ctx, protocol); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create reentry protocol")
	}
	s.transitioned(ctx, actorID, models.AuditActionReentryCreate, protocol.ID, "create", nil, protocol)
	return protocol, nil
}

func (s *ReentryService) newProtocol(studentID string, source models.ReentrySource, sourceID *string, reentryDate time.Time, goal string, items []string, actorID string) *models.ReentryProtocol {
	days, method := MonitoringPlan(s.policy.Reentry, source)
	if len(items) == 0 {
		items = s.policy.Reentry.DefaultChecklist
	}
	reentryDate = timeutil.StartOfDay(reentryDate)
	goal = strings.TrimSpace(goal)
	return &models.ReentryProtocol{
		StudentID:         studentID,
		SourceType:        source,
		SourceID:          sourceID,
		ReentryDate:       reentryDate,
		MonitoringEndDate: timeutil.AddDays(reentryDate, days),
		MonitoringMethod:  method,
		ResetGoal:         goal,
		TeacherScript:     s.GenerateTeacherScript(goal),
		Checklist:         models.NewChecklist(items),
		DailyLogs:         models.DailyLogs{},
		Status:            models.ReentryPending,
		CreatedBy:         actorID,
	}
}

// Get loads a protocol.
func (s *ReentryService) Get(ctx context.Context, id string) (*models.ReentryProtocol, error) {
	protocol, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOrInternal(err, "reentry protocol")
	}
	return protocol, nil
}

// List returns protocols with pagination metadata.
func (s *ReentryService) List(ctx context.Context, req ReentryListRequest) ([]models.ReentryProtocol, *models.Pagination, error) {
	filter := models.ReentryFilter{StudentID: req.StudentID, Page: req.Page, PageSize: req.PageSize}
	for _, st := range req.Statuses {
		filter.Statuses = append(filter.Statuses, models.ReentryStatus(st))
	}
	protocols, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reentry protocols")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return protocols, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// UpdateChecklistItem marks a readiness item while the protocol is pending. Completing the
// last item moves the protocol to ready and stamps the verifier.
func (s *ReentryService) UpdateChecklistItem(ctx context.Context, id string, index int, req ChecklistItemRequest, actorID string) (*models.ReentryProtocol, error) {
	protocol, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if protocol.Status != models.ReentryPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "checklist can only change while the protocol is pending")
	}
	now := s.now().UTC()
	checklist, err := markChecklistItem(protocol.Checklist, index, req.Completed, actorID, now)
	if err != nil {
		return nil, err
	}

	params := repository.UpdateReentryParams{
		ExpectedStatuses: []models.ReentryStatus{models.ReentryPending},
		Checklist:        checklist,
		UnchangedSince:   &protocol.UpdatedAt,
	}
	action := models.AuditActionReentryChecklist
	if checklist.AllCompleted() {
		ready := models.ReentryReady
		params.Status = &ready
		params.ReadinessVerifiedBy = &actorID
		params.ReadinessVerifiedAt = &now
	}
	updated, err := s.update(ctx, id, params)
	if err != nil {
		return nil, err
	}
	s.transitioned(ctx, actorID, action, id, "checklist", protocol.Checklist, updated.Checklist)
	return updated, nil
}

// markChecklistItem returns a copy of the checklist with the item set. Completed items stay completed.
func markChecklistItem(list models.Checklist, index int, completed bool, actorID string, now time.Time) (models.Checklist, error) {
	if index < 0 || index >= len(list) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("checklist index %d out of range", index))
	}
	out := make(models.Checklist, len(list))
	copy(out, list)
	item := out[index]
	if item.Completed && !completed {
		return nil, appErrors.Clone(appErrors.ErrValidation, "completed checklist items cannot be reopened")
	}
	if completed && !item.Completed {
		item.Completed = true
		item.Verifier = &actorID
		item.CompletedAt = &now
	}
	out[index] = item
	return out, nil
}

// ActivateReentry starts monitoring once the student is ready.
func (s *ReentryService) ActivateReentry(ctx context.Context, id, actorID string) (*models.ReentryProtocol, error) {
	protocol, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if protocol.Status != models.ReentryReady {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "protocol must be ready before activation")
	}
	active := models.ReentryActive
	updated, err := s.update(ctx, id, repository.UpdateReentryParams{
		ExpectedStatuses: []models.ReentryStatus{models.ReentryReady},
		Status:           &active,
	})
	if err != nil {
		return nil, err
	}
	s.transitioned(ctx, actorID, models.AuditActionReentryActivate, id, "activate", protocol.Status, updated.Status)
	return updated, nil
}

// LogDailyEntry appends one entry to the monitoring log. Entries are never replaced, so callers
// retrying a failed request must check the log for the date first.
func (s *ReentryService) LogDailyEntry(ctx context.Context, id string, req DailyLogRequest, actorID string) (*models.ReentryProtocol, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid payload")
	}
	protocol, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if protocol.Status != models.ReentryActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "daily logs require an active protocol")
	}
	entry := models.ReentryDailyLog{
		Date:     strings.TrimSpace(req.Date),
		Rating:   req.Rating,
		Notes:    strings.TrimSpace(req.Notes),
		LoggedBy: actorID,
		LoggedAt: s.now().UTC(),
	}
	updated, err := s.repo.AppendDailyLog(ctx, id, entry)
	if err != nil {
		return nil, conflictOrInternal(err, "reentry protocol")
	}
	s.transitioned(ctx, actorID, models.AuditActionReentryDailyLog, id, "daily_log", nil, entry)
	return updated, nil
}

// CompleteReentry records the final outcome. Completed protocols accept no further changes.
func (s *ReentryService) CompleteReentry(ctx context.Context, id string, req CompleteReentryRequest, actorID string) (*models.ReentryProtocol, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid payload")
	}
	protocol, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if protocol.Status == models.ReentryCompleted {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "protocol already completed")
	}
	if protocol.Status != models.ReentryActive && protocol.Status != models.ReentryReady {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "protocol must be ready or active to complete")
	}
	completed := models.ReentryCompleted
	now := s.now().UTC()
	outcome := req.Outcome
	updated, err := s.update(ctx, id, repository.UpdateReentryParams{
		ExpectedStatuses: []models.ReentryStatus{models.ReentryReady, models.ReentryActive},
		Status:           &completed,
		Outcome:          &outcome,
		OutcomeNotes:     optionalString(req.Notes),
		CompletedAt:      &now,
	})
	if err != nil {
		return nil, err
	}
	s.transitioned(ctx, actorID, models.AuditActionReentryComplete, id, "complete", protocol.Status, req)
	return updated, nil
}

func (s *ReentryService) update(ctx context.Context, id string, params repository.UpdateReentryParams) (*models.ReentryProtocol, error) {
	updated, err := s.repo.Update(ctx, id, params)
	if err != nil {
		return nil, conflictOrInternal(err, "reentry protocol")
	}
	return updated, nil
}

func (s *ReentryService) transitioned(ctx context.Context, actorID, action, id, metric string, oldValues, newValues interface{}) {
	s.metrics.RecordTransition(models.TierReentry, metric)
	s.audit.record(ctx, actorID, action, models.AuditResourceReentry, id, oldValues, newValues)
}
