package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/house-points-api/internal/models"
)

func analyticsRange() (time.Time, time.Time) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

func TestAnalyticsRepositoryTierCounts(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)
	start, end := analyticsRange()

	mock.ExpectQuery(regexp.QuoteMeta("(SELECT COUNT(*) FROM level_a_interventions WHERE occurred_at BETWEEN $1 AND $2) AS level_a")).
		WithArgs(start, end).
		WillReturnRows(sqlmock.NewRows([]string{"level_a", "level_b", "level_c", "reentry"}).AddRow(12, 4, 1, 2))

	summary, err := repo.TierCounts(context.Background(), start, end)
	require.NoError(t, err)
	assert.Equal(t, models.InterventionSummary{LevelA: 12, LevelB: 4, LevelC: 1, Reentry: 2}, summary)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalyticsRepositoryDomainCountsUsesRepeatWindow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)
	start, end := analyticsRange()

	mock.ExpectQuery(regexp.QuoteMeta("y.occurred_at <= x.occurred_at + make_interval(days => $3)")).
		WithArgs(start, end, 10).
		WillReturnRows(sqlmock.NewRows([]string{"domain", "level_a", "level_b", "repeat_students"}).
			AddRow("hallways", 8, 2, 3).
			AddRow("classroom", 4, 1, 0))

	counts, err := repo.DomainCounts(context.Background(), start, end, 10)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, models.DomainHallways, counts[0].Domain)
	assert.Equal(t, 3, counts[0].RepeatStudents)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalyticsRepositoryEscalationAndOutcomeCounts(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)
	start, end := analyticsRange()

	mock.ExpectQuery(regexp.QuoteMeta("COUNT(*) FILTER (WHERE escalated_to_b) AS level_a_escalated")).
		WithArgs(start, end).
		WillReturnRows(sqlmock.NewRows([]string{"level_a_total", "level_a_escalated", "level_b_total", "level_b_escalated"}).AddRow(20, 5, 5, 1))
	mock.ExpectQuery(regexp.QuoteMeta("outcome_status IN ('closed_success', 'closed_continued_support')")).
		WithArgs(start, end).
		WillReturnRows(sqlmock.NewRows([]string{"level_b_completed", "level_b_success", "level_c_closed", "level_c_success", "reentry_completed", "reentry_success"}).
			AddRow(4, 3, 2, 1, 3, 2))

	escalation, err := repo.EscalationCounts(context.Background(), start, end)
	require.NoError(t, err)
	assert.Equal(t, 5, escalation.LevelAEscalated)

	outcomes, err := repo.OutcomeCounts(context.Background(), start, end)
	require.NoError(t, err)
	assert.Equal(t, 2, outcomes.ReentrySuccess)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalyticsRepositoryTierTimestamps(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)
	start, end := analyticsRange()

	mock.ExpectQuery(regexp.QuoteMeta("UNION ALL")).
		WithArgs(start, end).
		WillReturnRows(sqlmock.NewRows([]string{"tier", "occurred_at"}).
			AddRow("A", start.AddDate(0, 0, 2)).
			AddRow("C", start.AddDate(0, 0, 9)))

	stamps, err := repo.TierTimestamps(context.Background(), start, end)
	require.NoError(t, err)
	require.Len(t, stamps, 2)
	assert.Equal(t, models.TierC, stamps[1].Tier)
	require.NoError(t, mock.ExpectationsWereMet())
}
