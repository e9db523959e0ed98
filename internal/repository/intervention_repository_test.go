package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/house-points-api/internal/models"
)

func splitColumns(list string) []string {
	parts := strings.Split(strings.ReplaceAll(list, "\n", " "), ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

func levelBRow(id, status string, stepsDone int) []driver.Value {
	now := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	row := []driver.Value{id, "stu-1", "staff-1", "classroom", "ignored_prompts", nil, status}
	for step := 1; step <= 7; step++ {
		row = append(row, step <= stepsDone)
		switch step {
		case 3:
			row = append(row, "{}")
		case 6:
			row = append(row, nil, nil)
		case 7:
			row = append(row, false)
		default:
			row = append(row, nil)
		}
	}
	row = append(row, nil, nil, nil, `{"2024-01-11":80}`, nil, false, nil, nil, now, now)
	return row
}

func TestInterventionRepositoryCreateLevelAWithEscalation(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInterventionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO level_a_interventions")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO level_b_interventions")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	a := &models.LevelAIntervention{StudentID: "stu-1", StaffID: "staff-1", Domain: models.DomainHallways, Outcome: models.LevelAEscalated, EscalatedToB: true}
	b := &models.LevelBIntervention{StudentID: "stu-1", StaffID: "staff-1", Domain: models.DomainHallways, EscalationTrigger: models.TriggerSharedSpace}
	require.NoError(t, repo.CreateLevelA(context.Background(), a, b))

	require.NotNil(t, b.LevelAID)
	assert.Equal(t, a.ID, *b.LevelAID)
	assert.Equal(t, models.LevelBInProgress, b.Status)
	assert.NotNil(t, b.DailyRates)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInterventionRepositoryCreateLevelARollsBackOnEscalationFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInterventionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO level_a_interventions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO level_b_interventions").WillReturnError(errors.New("constraint"))
	mock.ExpectRollback()

	err := repo.CreateLevelA(context.Background(), &models.LevelAIntervention{StudentID: "stu-1"}, &models.LevelBIntervention{StudentID: "stu-1"})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInterventionRepositoryCountLevelASameDomain(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInterventionRepository(db)

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM level_a_interventions WHERE student_id = $1 AND domain = $2 AND occurred_at >= $3")).
		WithArgs("stu-1", "classroom", since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountLevelASameDomain(context.Background(), "stu-1", models.DomainClassroom, since)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInterventionRepositoryGetLevelB(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInterventionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM level_b_interventions WHERE id = $1")).
		WithArgs("lb-1").
		WillReturnRows(sqlmock.NewRows(splitColumns(levelBColumns)).AddRow(levelBRow("lb-1", "in_progress", 3)...))

	record, err := repo.GetLevelB(context.Background(), "lb-1")
	require.NoError(t, err)
	assert.Equal(t, 3, record.CompletedCount())
	assert.Equal(t, 80.0, record.DailyRates["2024-01-11"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInterventionRepositoryUpdateLevelBSetsStepFlagOnly(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInterventionRepository(db)

	notes := "student calmed after breathing exercise"
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE level_b_interventions SET step1_completed = TRUE, regulate_notes = $1, updated_at = $2 WHERE id = $3 AND status = ANY($4) RETURNING")).
		WithArgs(notes, sqlmock.AnyArg(), "lb-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(splitColumns(levelBColumns)).AddRow(levelBRow("lb-1", "in_progress", 1)...))

	record, err := repo.UpdateLevelB(context.Background(), "lb-1", UpdateLevelBParams{
		ExpectedStatuses: []models.LevelBStatus{models.LevelBInProgress},
		CompleteStep:     1,
		RegulateNotes:    &notes,
	})
	require.NoError(t, err)
	assert.True(t, record.Step1Completed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInterventionRepositoryUpdateLevelBStatusMismatch(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInterventionRepository(db)

	status := models.LevelBCancelled
	mock.ExpectQuery("UPDATE level_b_interventions").
		WillReturnRows(sqlmock.NewRows(splitColumns(levelBColumns)))

	_, err := repo.UpdateLevelB(context.Background(), "lb-1", UpdateLevelBParams{
		ExpectedStatuses: []models.LevelBStatus{models.LevelBInProgress, models.LevelBMonitoring},
		Status:           &status,
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInterventionRepositoryUpdateLevelBRequiresChanges(t *testing.T) {
	db, _, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInterventionRepository(db)

	_, err := repo.UpdateLevelB(context.Background(), "lb-1", UpdateLevelBParams{})
	require.Error(t, err)
}

func TestInterventionRepositoryEscalateLevelBCommitsBothWrites(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInterventionRepository(db)

	status := models.LevelBCompletedEscalated
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE level_b_interventions SET status = $1, escalated_to_c = TRUE, updated_at = $2 WHERE id = $3 AND status = ANY($4) RETURNING")).
		WithArgs("completed_escalated", sqlmock.AnyArg(), "lb-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(splitColumns(levelBColumns)).AddRow(levelBRow("lb-1", "completed_escalated", 7)...))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO level_c_cases")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	c := &models.LevelCCase{StudentID: "stu-1", CaseManagerID: "staff-1", TriggerType: models.TriggerNoImprovement, LevelBIDs: []string{"lb-1"}}
	b, err := repo.EscalateLevelB(context.Background(), "lb-1", UpdateLevelBParams{
		ExpectedStatuses: []models.LevelBStatus{models.LevelBMonitoring},
		Status:           &status,
		EscalatedToC:     true,
	}, c)
	require.NoError(t, err)
	assert.Equal(t, models.LevelBCompletedEscalated, b.Status)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, models.LevelCActive, c.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInterventionRepositoryEscalateLevelBRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInterventionRepository(db)

	status := models.LevelBCompletedEscalated
	params := UpdateLevelBParams{
		ExpectedStatuses: []models.LevelBStatus{models.LevelBMonitoring},
		Status:           &status,
		EscalatedToC:     true,
	}

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE level_b_interventions").
		WillReturnRows(sqlmock.NewRows(splitColumns(levelBColumns)).AddRow(levelBRow("lb-1", "completed_escalated", 7)...))
	mock.ExpectExec("INSERT INTO level_c_cases").WillReturnError(errors.New("constraint"))
	mock.ExpectRollback()

	_, err := repo.EscalateLevelB(context.Background(), "lb-1", params, &models.LevelCCase{StudentID: "stu-1"})
	require.Error(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE level_b_interventions").
		WillReturnRows(sqlmock.NewRows(splitColumns(levelBColumns)))
	mock.ExpectRollback()

	_, err = repo.EscalateLevelB(context.Background(), "lb-1", params, &models.LevelCCase{StudentID: "stu-1"})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInterventionRepositoryAppendLevelBDailyRate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInterventionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SET daily_success_rates = COALESCE(daily_success_rates, '{}'::jsonb) || jsonb_build_object($1::text, $2::numeric)")).
		WithArgs("2024-01-11", 80.0, sqlmock.AnyArg(), "lb-1").
		WillReturnRows(sqlmock.NewRows(splitColumns(levelBColumns)).AddRow(levelBRow("lb-1", "monitoring", 7)...))

	record, err := repo.AppendLevelBDailyRate(context.Background(), "lb-1", "2024-01-11", 80)
	require.NoError(t, err)
	assert.Len(t, record.DailyRates, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInterventionRepositoryCreateLevelCDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInterventionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO level_c_cases")).WillReturnResult(sqlmock.NewResult(1, 1))

	c := &models.LevelCCase{StudentID: "stu-1", CaseManagerID: "staff-9", TriggerType: models.TriggerNoImprovement, CaseType: models.CaseStandard}
	require.NoError(t, repo.CreateLevelC(context.Background(), c))
	assert.Equal(t, models.LevelCActive, c.Status)
	assert.Equal(t, models.LevelCOutcomeActive, c.OutcomeStatus)
	assert.NotNil(t, c.LevelBIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInterventionRepositoryUpdateLevelCWritesPacket(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInterventionRepository(db)

	now := time.Date(2024, 1, 12, 8, 0, 0, 0, time.UTC)
	status := models.LevelCContextPacket
	packet := models.ContextPacket{IncidentSummary: "fight", PatternReview: "weekly", EnvironmentalFactors: "home", PriorInterventionsSummary: "two resets"}
	columns := splitColumns(levelCColumns)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE level_c_cases SET status = $1, context_packet = $2, updated_at = $3 WHERE id = $4 AND status = ANY($5) RETURNING")).
		WithArgs("context_packet", sqlmock.AnyArg(), sqlmock.AnyArg(), "lc-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			"lc-1", "stu-1", "staff-9", "no_improvement_two_cycles", "standard", "{lb-1,lb-2}", "context_packet",
			`{"incident_summary":"fight","pattern_review":"weekly","environmental_factors":"home","prior_interventions_summary":"two resets"}`,
			nil, nil, nil, nil, "[]", nil, nil, "active", nil, now, now))

	c, err := repo.UpdateLevelC(context.Background(), "lc-1", UpdateLevelCParams{
		ExpectedStatuses: []models.LevelCStatus{models.LevelCActive},
		Status:           &status,
		ContextPacket:    &packet,
	})
	require.NoError(t, err)
	require.NotNil(t, c.ContextPacket)
	assert.Equal(t, "fight", c.ContextPacket.IncidentSummary)
	assert.Nil(t, c.AdminResponse)
	assert.Equal(t, []string{"lb-1", "lb-2"}, []string(c.LevelBIDs))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInterventionRepositoryAppendLevelCCheckInOutsideMonitoring(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInterventionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("daily_check_ins = COALESCE(daily_check_ins, '[]'::jsonb) || $1::jsonb")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "lc-1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.AppendLevelCCheckIn(context.Background(), "lc-1", models.LevelCCheckIn{Date: "2024-01-15", Rating: 4})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInterventionRepositoryListRecentLevelA(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInterventionRepository(db)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	mock.ExpectQuery(regexp.QuoteMeta("FROM level_a_interventions WHERE occurred_at BETWEEN $1 AND $2 ORDER BY occurred_at DESC LIMIT $3")).
		WithArgs(start, end, 5).
		WillReturnRows(sqlmock.NewRows(splitColumns(levelAColumns)).
			AddRow("la-1", "stu-1", "staff-1", "classroom", "proximity", "calling out", "complied", false, false, false, start, start))

	records, err := repo.ListRecentLevelA(context.Background(), start, end, 5)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, start, records[0].OccurredAt())
	require.NoError(t, mock.ExpectationsWereMet())
}
