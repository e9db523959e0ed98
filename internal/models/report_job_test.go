package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportStatusTransitions(t *testing.T) {
	assert.True(t, ReportStatusQueued.CanTransition(ReportStatusProcessing))
	assert.True(t, ReportStatusProcessing.CanTransition(ReportStatusQueued))
	assert.False(t, ReportStatusFinished.CanTransition(ReportStatusProcessing))
	assert.False(t, ReportStatusFailed.CanTransition(ReportStatusQueued))
	assert.False(t, ReportStatusExpired.CanTransition(ReportStatusFinished))

	assert.Equal(t, []ReportStatus{ReportStatusQueued, ReportStatusProcessing}, ReportStatusesBefore(ReportStatusFailed))
	assert.Equal(t, []ReportStatus{ReportStatusFinished}, ReportStatusesBefore(ReportStatusExpired))
	assert.Empty(t, ReportStatusesBefore(ReportStatus("")))
}

func TestReportJobParamsRoundTripThroughJSONB(t *testing.T) {
	in := ReportJobParams{Format: ReportFormatPDF, Window: InsightWindow30d, RiskLevels: []RiskLevel{RiskRed}}
	raw, err := in.Value()
	require.NoError(t, err)
	assert.Contains(t, string(raw.([]byte)), `"extras":{}`)

	var out ReportJobParams
	require.NoError(t, out.Scan(raw))
	assert.Equal(t, ReportFormatPDF, out.Format)
	assert.Equal(t, []RiskLevel{RiskRed}, out.RiskLevels)

	require.NoError(t, out.Scan(nil))
	assert.Equal(t, ReportJobParams{}, out)
	assert.Error(t, out.Scan(42))
}

func TestReportFormat(t *testing.T) {
	assert.True(t, ReportFormatCSV.Valid())
	assert.False(t, ReportFormat("xlsx").Valid())
	assert.Equal(t, "application/pdf", ReportFormatPDF.ContentType())
	assert.False(t, ReportType("attendance").Valid())
}
