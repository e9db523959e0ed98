package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/house-points-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var behaviorEventRowColumns = []string{"id", "student_id", "kind", "event_date", "class_context", "staff_id", "category", "subcategory", "points", "notes", "created_by", "created_at"}

func TestBehaviorRepositoryListSinceAllStudents(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBehaviorRepository(db)

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(behaviorEventRowColumns).
		AddRow("evt-1", "stu-1", "demerit", since, "7A", "staff-1", "disruption", nil, 2, nil, "staff-1", since).
		AddRow("evt-2", "stu-2", "merit", since, nil, nil, "leadership", nil, 1, nil, "staff-2", since)
	mock.ExpectQuery(regexp.QuoteMeta("FROM behavior_events WHERE event_date >= $1 ORDER BY student_id, event_date")).
		WithArgs(since).
		WillReturnRows(rows)

	events, err := repo.ListSince(context.Background(), "", since)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.BehaviorDemerit, events[0].Kind)
	require.NotNil(t, events[0].ClassContext)
	assert.Equal(t, "7A", *events[0].ClassContext)
	assert.Nil(t, events[1].StaffID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBehaviorRepositoryListSinceScopedToStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBehaviorRepository(db)

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE event_date >= $1 AND student_id = $2")).
		WithArgs(since, "stu-1").
		WillReturnRows(sqlmock.NewRows(behaviorEventRowColumns))

	events, err := repo.ListSince(context.Background(), "stu-1", since)
	require.NoError(t, err)
	assert.Empty(t, events)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBehaviorRepositoryListSinceError(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBehaviorRepository(db)

	mock.ExpectQuery("FROM behavior_events").WillReturnError(errors.New("connection reset"))

	_, err := repo.ListSince(context.Background(), "", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list behavior events since")
}

func TestBehaviorRepositoryListWithFilter(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBehaviorRepository(db)

	from := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM behavior_events WHERE 1=1 AND student_id = $1 AND event_date >= $2 AND kind = ANY($3) ORDER BY event_date DESC, created_at DESC LIMIT 10 OFFSET 10")).
		WithArgs("stu-1", from, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(behaviorEventRowColumns).
			AddRow("evt-1", "stu-1", "demerit", from, nil, nil, "talking", nil, 1, nil, "staff-1", from))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM behavior_events WHERE 1=1 AND student_id = $1")).
		WithArgs("stu-1", from, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	events, total, err := repo.List(context.Background(), models.BehaviorEventFilter{
		StudentID: "stu-1",
		DateFrom:  &from,
		Kinds:     []models.BehaviorKind{models.BehaviorDemerit},
		Page:      2,
		PageSize:  10,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 11, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBehaviorRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBehaviorRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO behavior_events")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	event := &models.BehaviorEvent{StudentID: "stu-1", Kind: models.BehaviorMerit, EventDate: time.Now(), Category: "leadership", Points: 1, CreatedBy: "staff-1"}
	require.NoError(t, repo.Create(context.Background(), event))
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBehaviorRepositoryDemeritPointsSince(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBehaviorRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(ABS(points)), 0) FROM behavior_events WHERE student_id = $1 AND kind = 'demerit'")).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(24))

	total, err := repo.DemeritPointsSince(context.Background(), "stu-1", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 24, total)

	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("AND event_date >= $2")).
		WithArgs("stu-1", since).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(6))

	total, err = repo.DemeritPointsSince(context.Background(), "stu-1", since)
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	require.NoError(t, mock.ExpectationsWereMet())
}
