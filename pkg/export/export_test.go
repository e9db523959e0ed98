package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Headers: []string{"Domain", "Level A"},
		Rows: []map[string]string{
			{"Domain": "Classroom", "Level A": "8"},
			{"Domain": "Lunch, Recess"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, "Domain,Level A\nClassroom,8\n\"Lunch, Recess\",\n", string(out))
}

func TestExportersRequireHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.ErrorIs(t, err, ErrNoHeaders)
	_, err = NewPDFExporter().Render(Dataset{}, "empty")
	assert.ErrorIs(t, err, ErrNoHeaders)
}

func TestPDFExporterRender(t *testing.T) {
	exporter := NewPDFExporter()
	exporter.now = func() time.Time { return time.Date(2024, 3, 22, 8, 0, 0, 0, time.UTC) }

	data := sampleDataset()
	for i := 0; i < 80; i++ {
		data.Rows = append(data.Rows, map[string]string{"Domain": strings.Repeat("Hallways ", 20), "Level A": "1"})
	}
	out, err := exporter.Render(data, "Domain Metrics")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestDatasetRecordsOrderByHeader(t *testing.T) {
	records := Dataset{
		Headers: []string{"b", "a"},
		Rows:    []map[string]string{{"a": "1", "b": "2", "c": "ignored"}},
	}.Records()
	assert.Equal(t, [][]string{{"2", "1"}}, records)
}
