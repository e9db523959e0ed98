package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/house-points-api/internal/models"
)

func reentryRow(id, status, logs string) []driver.Value {
	date := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	return []driver.Value{
		id, "stu-1", "iss", nil, date, date.AddDate(0, 0, 5), "check_in_out", "stay in seat",
		"Welcome back.", `[{"item":"Apology letter","completed":true}]`, nil, nil, logs, status, nil,
		nil, "staff-1", nil, date, date,
	}
}

func TestReentryRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReentryRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reentry_protocols")).WillReturnResult(sqlmock.NewResult(1, 1))

	p := &models.ReentryProtocol{StudentID: "stu-1", SourceType: models.ReentrySourceISS, CreatedBy: "staff-1"}
	require.NoError(t, repo.Create(context.Background(), p))
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, models.ReentryPending, p.Status)
	assert.NotNil(t, p.DailyLogs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReentryRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReentryRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM reentry_protocols WHERE id = $1")).
		WithArgs("re-1").
		WillReturnRows(sqlmock.NewRows(splitColumns(reentryColumns)).AddRow(reentryRow("re-1", "pending", "[]")...))

	p, err := repo.FindByID(context.Background(), "re-1")
	require.NoError(t, err)
	assert.Equal(t, models.MonitoringCheckInOut, p.MonitoringMethod)
	require.Len(t, p.Checklist, 1)
	assert.True(t, p.Checklist.AllCompleted())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReentryRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReentryRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM reentry_protocols WHERE 1=1 AND student_id = $1 AND status = ANY($2) ORDER BY created_at DESC LIMIT 50 OFFSET 0")).
		WithArgs("stu-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(splitColumns(reentryColumns)).AddRow(reentryRow("re-1", "active", "[]")...))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM reentry_protocols WHERE 1=1")).
		WithArgs("stu-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := repo.List(context.Background(), models.ReentryFilter{StudentID: "stu-1", Statuses: []models.ReentryStatus{models.ReentryActive}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReentryRepositoryUpdateGuardsStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReentryRepository(db)

	status := models.ReentryActive
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE reentry_protocols SET status = $1, updated_at = $2 WHERE id = $3 AND status = ANY($4)")).
		WithArgs("active", sqlmock.AnyArg(), "re-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(splitColumns(reentryColumns)))

	_, err := repo.Update(context.Background(), "re-1", UpdateReentryParams{
		ExpectedStatuses: []models.ReentryStatus{models.ReentryReady},
		Status:           &status,
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReentryRepositoryUpdateGuardsUpdatedAt(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReentryRepository(db)

	readAt := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE reentry_protocols SET readiness_checklist = $1, updated_at = $2 WHERE id = $3 AND status = ANY($4) AND updated_at = $5")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "re-1", sqlmock.AnyArg(), readAt).
		WillReturnRows(sqlmock.NewRows(splitColumns(reentryColumns)))

	_, err := repo.Update(context.Background(), "re-1", UpdateReentryParams{
		ExpectedStatuses: []models.ReentryStatus{models.ReentryPending},
		Checklist:        models.NewChecklist([]string{"Apology letter"}),
		UnchangedSince:   &readAt,
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReentryRepositoryFindOpenBySource(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReentryRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE source_type = $1 AND source_id = $2 AND status <> 'completed'")).
		WithArgs("iss", "case-1").
		WillReturnRows(sqlmock.NewRows(splitColumns(reentryColumns)).AddRow(reentryRow("re-1", "pending", "[]")...))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE source_type = $1 AND source_id = $2")).
		WithArgs("iss", "case-2").
		WillReturnRows(sqlmock.NewRows(splitColumns(reentryColumns)))

	p, err := repo.FindOpenBySource(context.Background(), models.ReentrySourceISS, "case-1")
	require.NoError(t, err)
	assert.Equal(t, "re-1", p.ID)

	_, err = repo.FindOpenBySource(context.Background(), models.ReentrySourceISS, "case-2")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReentryRepositoryAppendDailyLogConcatenates(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReentryRepository(db)

	logs := `[{"date":"2024-01-10","rating":4,"logged_by":"staff-1"},{"date":"2024-01-11","rating":3,"logged_by":"staff-1"}]`
	mock.ExpectQuery(regexp.QuoteMeta("SET daily_logs = COALESCE(daily_logs, '[]'::jsonb) || $1::jsonb")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "re-1").
		WillReturnRows(sqlmock.NewRows(splitColumns(reentryColumns)).AddRow(reentryRow("re-1", "active", logs)...))

	p, err := repo.AppendDailyLog(context.Background(), "re-1", models.ReentryDailyLog{Date: "2024-01-11", Rating: 3, LoggedBy: "staff-1"})
	require.NoError(t, err)
	assert.Len(t, p.DailyLogs, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}
