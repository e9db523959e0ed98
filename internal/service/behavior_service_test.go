package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/house-points-api/internal/models"
	appErrors "github.com/noah-isme/house-points-api/pkg/errors"
	"github.com/noah-isme/house-points-api/pkg/jobs"
)

type behaviorRepoStub struct {
	created []models.BehaviorEvent
	filter  models.BehaviorEventFilter
	total   int
	err     error
}

func (b *behaviorRepoStub) List(_ context.Context, filter models.BehaviorEventFilter) ([]models.BehaviorEvent, int, error) {
	b.filter = filter
	if b.err != nil {
		return nil, 0, b.err
	}
	return b.created, b.total, nil
}

func (b *behaviorRepoStub) Create(_ context.Context, event *models.BehaviorEvent) error {
	if b.err != nil {
		return b.err
	}
	event.ID = "evt-1"
	b.created = append(b.created, *event)
	return nil
}

type enqueuerStub struct {
	jobs []jobs.Job
	err  error
}

func (e *enqueuerStub) TryEnqueue(job jobs.Job) error {
	if e.err != nil {
		return e.err
	}
	e.jobs = append(e.jobs, job)
	return nil
}

func newBehaviorFixture(queue jobEnqueuer) (*BehaviorService, *behaviorRepoStub) {
	repo := &behaviorRepoStub{}
	svc := NewBehaviorService(repo, queue, nil, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2024, 5, 6, 14, 30, 0, 0, time.UTC) }
	return svc, repo
}

func TestBehaviorCreateDemeritQueuesRecompute(t *testing.T) {
	queue := &enqueuerStub{}
	svc, repo := newBehaviorFixture(queue)

	event, err := svc.Create(context.Background(), CreateBehaviorEventRequest{
		StudentID: "stu-1",
		Kind:      "demerit",
		Category:  "respect",
		Points:    3,
	}, "staff-9")
	require.NoError(t, err)
	assert.Equal(t, -3, event.Points)
	assert.Equal(t, "2024-05-06", event.EventDate.Format("2006-01-02"))
	require.NotNil(t, event.StaffID)
	assert.Equal(t, "staff-9", *event.StaffID)
	require.Len(t, repo.created, 1)

	require.Len(t, queue.jobs, 1)
	assert.Equal(t, JobTypeInsightRecompute, queue.jobs[0].Type)
	assert.Equal(t, "stu-1", queue.jobs[0].Payload)
	assert.NotEmpty(t, queue.jobs[0].ID)
}

func TestBehaviorCreateMeritNormalisesSign(t *testing.T) {
	queue := &enqueuerStub{}
	svc, _ := newBehaviorFixture(queue)
	notes := "  "

	event, err := svc.Create(context.Background(), CreateBehaviorEventRequest{
		StudentID: "stu-1",
		Kind:      "merit",
		EventDate: "2024-05-02",
		Category:  "leadership",
		Points:    -5,
		Notes:     &notes,
	}, "staff-9")
	require.NoError(t, err)
	assert.Equal(t, 5, event.Points)
	assert.Equal(t, "2024-05-02", event.EventDate.Format("2006-01-02"))
	assert.Nil(t, event.Notes)
	assert.Empty(t, queue.jobs)
}

func TestBehaviorCreateQueueFullIsNotFatal(t *testing.T) {
	svc, repo := newBehaviorFixture(&enqueuerStub{err: jobs.ErrQueueFull})

	_, err := svc.Create(context.Background(), CreateBehaviorEventRequest{
		StudentID: "stu-1", Kind: "demerit", Category: "safety", Points: 2,
	}, "staff-9")
	require.NoError(t, err)
	assert.Len(t, repo.created, 1)
}

func TestBehaviorCreateValidation(t *testing.T) {
	svc, repo := newBehaviorFixture(nil)

	cases := []CreateBehaviorEventRequest{
		{Kind: "merit", Category: "x", Points: 1},
		{StudentID: "s", Kind: "bonus", Category: "x", Points: 1},
		{StudentID: "s", Kind: "merit", Category: "x", Points: 0},
		{StudentID: "s", Kind: "merit", Category: "x", Points: 1, EventDate: "06/05/2024"},
	}
	for _, req := range cases {
		_, err := svc.Create(context.Background(), req, "staff-9")
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
	assert.Empty(t, repo.created)
}

func TestBehaviorListNormalisesPaging(t *testing.T) {
	svc, repo := newBehaviorFixture(nil)
	repo.total = 3

	_, pagination, err := svc.List(context.Background(), BehaviorListRequest{StudentID: "stu-1", PageSize: 500, Kinds: []string{"demerit"}})
	require.NoError(t, err)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 200, pagination.PageSize)
	assert.Equal(t, 3, pagination.TotalCount)
	assert.Equal(t, []models.BehaviorKind{models.BehaviorDemerit}, repo.filter.Kinds)

	_, _, err = svc.List(context.Background(), BehaviorListRequest{Kinds: []string{"bonus"}})
	require.Error(t, err)

	repo.err = errors.New("db down")
	_, _, err = svc.List(context.Background(), BehaviorListRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}
