package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/house-points-api/internal/models"
)

func TestDigestRepositoryStaffParticipation(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDigestRepository(db)

	start := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 7)
	mock.ExpectQuery(regexp.QuoteMeta("COUNT(DISTINCT e.staff_id)")).
		WithArgs(start, end, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"participating", "total"}).AddRow(17, 20))

	participating, total, err := repo.StaffParticipation(context.Background(), start, end, models.StaffRoles)
	require.NoError(t, err)
	assert.Equal(t, 17, participating)
	assert.Equal(t, 20, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDigestRepositoryPointEconomyAndCategories(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDigestRepository(db)

	start := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 7)
	mock.ExpectQuery(regexp.QuoteMeta("COUNT(*) FILTER (WHERE kind = 'merit') AS merit_count")).
		WithArgs(start, end).
		WillReturnRows(sqlmock.NewRows([]string{"merit_count", "demerit_count", "merit_points", "demerit_points"}).AddRow(120, 30, 150, 45))
	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY category ORDER BY count DESC")).
		WithArgs(start, end).
		WillReturnRows(sqlmock.NewRows([]string{"category", "count"}).AddRow("kindness", 70).AddRow("effort", 50))

	economy, err := repo.PointEconomy(context.Background(), start, end)
	require.NoError(t, err)
	assert.Equal(t, 4.0, economy.Ratio())

	categories, err := repo.CategoryBalance(context.Background(), start, end)
	require.NoError(t, err)
	require.Len(t, categories, 2)
	assert.Equal(t, "kindness", categories[0].Category)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDigestRepositoryPointEconomyUsesMagnitudes(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDigestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(SUM(ABS(points)) FILTER (WHERE kind = 'demerit'), 0) AS demerit_points")).
		WillReturnRows(sqlmock.NewRows([]string{"merit_count", "demerit_count", "merit_points", "demerit_points"}).AddRow(1, 1, 10, 5))

	economy, err := repo.PointEconomy(context.Background(), time.Now().AddDate(0, 0, -7), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 5, economy.DemeritPoints)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDigestRepositoryHouseDistributionSubtractsDemerits(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDigestRepository(db)

	start := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 7)
	mock.ExpectQuery(regexp.QuoteMeta("SUM(CASE WHEN e.kind = 'merit' THEN ABS(e.points) ELSE -ABS(e.points) END)")).
		WithArgs(start, end).
		WillReturnRows(sqlmock.NewRows([]string{"house", "points"}).AddRow("Falcon", 5).AddRow("Oak", -3))

	houses, err := repo.HouseDistribution(context.Background(), start, end)
	require.NoError(t, err)
	require.Len(t, houses, 2)
	assert.Equal(t, models.HouseTotal{House: "Falcon", Points: 5}, houses[0])
	assert.Equal(t, -3, houses[1].Points)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDigestRepositoryStaffEventCounts(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDigestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY staff_id")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10).AddRow(12))

	counts, err := repo.StaffEventCounts(context.Background(), time.Now().AddDate(0, 0, -7), time.Now())
	require.NoError(t, err)
	assert.Equal(t, []int{10, 12}, counts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDigestRepositoryLatestHealthScoreMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDigestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM school_health_scores")).WillReturnError(sql.ErrNoRows)

	score, err := repo.LatestHealthScore(context.Background())
	require.NoError(t, err)
	assert.Nil(t, score)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDigestRepositoryLatestSnapshotBefore(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDigestRepository(db)

	month := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
	before := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM monthly_snapshots WHERE month < $1 ORDER BY month DESC LIMIT 1")).
		WithArgs(before).
		WillReturnRows(sqlmock.NewRows([]string{"id", "month", "participation_rate", "merit_points", "demerit_points", "level_a", "level_b", "level_c", "consistency_score", "created_at"}).
			AddRow("snap-1", month, 82.5, 400, 90, 30, 8, 1, 71.2, month))

	snapshot, err := repo.LatestSnapshotBefore(context.Background(), before)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, 82.5, snapshot.ParticipationRate)

	mock.ExpectQuery(regexp.QuoteMeta("FROM monthly_snapshots")).WithArgs(month).WillReturnError(sql.ErrNoRows)
	snapshot, err = repo.LatestSnapshotBefore(context.Background(), month)
	require.NoError(t, err)
	assert.Nil(t, snapshot)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDigestRepositoryUpsertMonthlySnapshot(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDigestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (month) DO UPDATE")).WillReturnResult(sqlmock.NewResult(1, 1))

	snapshot := &models.MonthlySnapshot{Month: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, repo.UpsertMonthlySnapshot(context.Background(), snapshot))
	assert.NotEmpty(t, snapshot.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
