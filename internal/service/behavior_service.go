package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/house-points-api/internal/models"
	appErrors "github.com/noah-isme/house-points-api/pkg/errors"
	"github.com/noah-isme/house-points-api/pkg/jobs"
	"github.com/noah-isme/house-points-api/pkg/timeutil"
)

type behaviorRepository interface {
	List(ctx context.Context, filter models.BehaviorEventFilter) ([]models.BehaviorEvent, int, error)
	Create(ctx context.Context, event *models.BehaviorEvent) error
}

type jobEnqueuer interface {
	TryEnqueue(job jobs.Job) error
}

// BehaviorService records merit and demerit events. Events are append only.
type BehaviorService struct {
	repo      behaviorRepository
	queue     jobEnqueuer
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewBehaviorService constructs the service. queue may be nil, in which case demerits do not
// trigger an insight recompute.
func NewBehaviorService(repo behaviorRepository, queue jobEnqueuer, validate *validator.Validate, logger *zap.Logger) *BehaviorService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	registerDomainValidations(validate)
	return &BehaviorService{repo: repo, queue: queue, validator: validate, logger: logger, now: time.Now}
}

// BehaviorListRequest describes filters for listing events.
type BehaviorListRequest struct {
	StudentID string     `json:"student_id"`
	DateFrom  *time.Time `json:"date_from"`
	DateTo    *time.Time `json:"date_to"`
	Kinds     []string   `json:"kinds"`
	Page      int        `json:"page"`
	PageSize  int        `json:"page_size"`
}

// CreateBehaviorEventRequest describes a merit or demerit. Points are stored positive for
// merits and negative for demerits whatever sign the caller sends.
type CreateBehaviorEventRequest struct {
	StudentID    string  `json:"student_id" validate:"required"`
	Kind         string  `json:"kind" validate:"required,behavior_kind"`
	EventDate    string  `json:"event_date" validate:"omitempty,iso_date"`
	ClassContext *string `json:"class_context"`
	StaffID      *string `json:"staff_id"`
	Category     string  `json:"category" validate:"required,max=100"`
	Subcategory  *string `json:"subcategory"`
	Points       int     `json:"points" validate:"ne=0"`
	Notes        *string `json:"notes"`
}

// List returns behaviour events with pagination.
func (s *BehaviorService) List(ctx context.Context, req BehaviorListRequest) ([]models.BehaviorEvent, *models.Pagination, error) {
	filter := models.BehaviorEventFilter{
		StudentID: req.StudentID,
		DateFrom:  req.DateFrom,
		DateTo:    req.DateTo,
		Page:      req.Page,
		PageSize:  req.PageSize,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}
	if filter.PageSize > 200 {
		filter.PageSize = 200
	}
	for _, k := range req.Kinds {
		switch kind := models.BehaviorKind(strings.TrimSpace(k)); kind {
		case models.BehaviorMerit, models.BehaviorDemerit:
			filter.Kinds = append(filter.Kinds, kind)
		default:
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown behavior kind "+k)
		}
	}
	events, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list behavior events")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return events, pagination, nil
}

// Create records an event. A demerit queues a recompute of the student's insights; a full
// queue is logged and does not fail the request.
func (s *BehaviorService) Create(ctx context.Context, req CreateBehaviorEventRequest, actorID string) (*models.BehaviorEvent, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid payload")
	}
	eventDate := timeutil.StartOfDay(s.now())
	if d := strings.TrimSpace(req.EventDate); d != "" {
		eventDate, _ = timeutil.ParseDate(d)
	}
	kind := models.BehaviorKind(req.Kind)
	points := req.Points
	if points < 0 {
		points = -points
	}
	if kind == models.BehaviorDemerit {
		points = -points
	}
	staffID := req.StaffID
	if staffID == nil && actorID != "" {
		staffID = &actorID
	}

	event := &models.BehaviorEvent{
		StudentID:    req.StudentID,
		Kind:         kind,
		EventDate:    eventDate,
		ClassContext: trimmedOrNil(req.ClassContext),
		StaffID:      staffID,
		Category:     strings.TrimSpace(req.Category),
		Subcategory:  trimmedOrNil(req.Subcategory),
		Points:       points,
		Notes:        trimmedOrNil(req.Notes),
		CreatedBy:    actorID,
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record behavior event")
	}

	if kind == models.BehaviorDemerit && s.queue != nil {
		job := jobs.Job{ID: uuid.NewString(), Type: JobTypeInsightRecompute, Payload: event.StudentID}
		if err := s.queue.TryEnqueue(job); err != nil {
			s.logger.Warn("failed to queue insight recompute",
				zap.String("student_id", event.StudentID),
				zap.Error(err),
			)
		}
	}
	return event, nil
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	return optionalString(*value)
}
