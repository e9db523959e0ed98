package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/house-points-api/internal/models"
)

func TestInsightRepositoryUpsertSnapshots(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInsightRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (student_id, time_window)")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (student_id, time_window)")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	snapshots := []models.StudentInsightSnapshot{
		{StudentID: "stu-1", TimeWindow: models.InsightWindow7d, Trend: models.TrendStable, RiskLevel: models.RiskGreen},
		{StudentID: "stu-1", TimeWindow: models.InsightWindow30d, Trend: models.TrendStable, RiskLevel: models.RiskGreen},
	}
	require.NoError(t, repo.UpsertSnapshots(context.Background(), snapshots))
	assert.NotEmpty(t, snapshots[0].ID)
	assert.False(t, snapshots[1].ComputedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsightRepositoryUpsertSnapshotsRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInsightRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO student_insight_snapshots").WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()

	err := repo.UpsertSnapshots(context.Background(), []models.StudentInsightSnapshot{{StudentID: "stu-1", TimeWindow: models.InsightWindow7d}})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsightRepositoryReplacePatterns(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInsightRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM student_behaviour_patterns WHERE student_id = $1")).
		WithArgs("stu-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO student_behaviour_patterns")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	patterns := []models.BehaviorPattern{{PatternType: models.PatternEscalation, Description: "rising", Confidence: 0.9}}
	require.NoError(t, repo.ReplacePatterns(context.Background(), "stu-1", patterns))
	assert.Equal(t, "stu-1", patterns[0].StudentID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsightRepositoryReplacePatternsWithNoneDetected(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInsightRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM student_behaviour_patterns").WithArgs("stu-1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, repo.ReplacePatterns(context.Background(), "stu-1", nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsightRepositoryListAtRisk(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInsightRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "student_id", "time_window", "merit_count", "demerit_count", "merit_points", "demerit_points", "net_score", "trend", "risk_level", "primary_issue", "interpretation", "computed_at"}).
		AddRow("snap-1", "stu-1", "7d", 0, 5, 0, 9, -9, "declining", "red", "disruption", "Escalating", now)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE time_window = $1 AND risk_level = ANY($2)")).
		WithArgs("7d", sqlmock.AnyArg()).
		WillReturnRows(rows)

	snapshots, err := repo.ListAtRisk(context.Background(), models.InsightWindow7d, []models.RiskLevel{models.RiskRed, models.RiskYellow})
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, models.RiskRed, snapshots[0].RiskLevel)
	require.NotNil(t, snapshots[0].PrimaryIssue)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsightRepositoryHasPattern(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInsightRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("stu-1", "escalation").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.HasPattern(context.Background(), "stu-1", models.PatternEscalation)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}
