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

func TestAuditRepositoryCreateAndList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).WillReturnResult(sqlmock.NewResult(1, 1))

	resourceID := "lb-1"
	entry := &models.AuditLog{Action: models.AuditActionLevelBStep, Resource: models.AuditResourceLevelB, ResourceID: &resourceID, NewValues: []byte(`{"step":1}`)}
	require.NoError(t, repo.CreateAuditLog(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_logs WHERE resource = $1 AND resource_id = $2 ORDER BY created_at ASC")).
		WithArgs(models.AuditResourceLevelB, resourceID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "action", "resource", "resource_id", "old_values", "new_values", "created_at"}).
			AddRow(entry.ID, nil, "LEVEL_B_STEP", models.AuditResourceLevelB, resourceID, nil, []byte(`{"step":1}`), now))

	logs, err := repo.ListByResource(context.Background(), models.AuditResourceLevelB, resourceID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.AuditActionLevelBStep, logs[0].Action)
	require.NoError(t, mock.ExpectationsWereMet())
}
