package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartOfDayTruncatesToUTCMidnight(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	in := time.Date(2024, 3, 10, 2, 30, 0, 0, loc)

	assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), StartOfDay(in))
}

func TestDaysAgo(t *testing.T) {
	today := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, DaysAgo(today, time.Date(2024, 3, 10, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, 7, DaysAgo(today, time.Date(2024, 3, 3, 8, 0, 0, 0, time.UTC)))
	assert.Equal(t, -1, DaysAgo(today, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)))
}

func TestStartOfWeekIsMonday(t *testing.T) {
	sunday := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	monday := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, monday, StartOfWeek(sunday))
	assert.Equal(t, monday, StartOfWeek(monday))
	assert.Equal(t, time.Date(2024, 3, 10, 23, 59, 59, 999999999, time.UTC), EndOfWeek(monday))
}

func TestQuarterBoundaries(t *testing.T) {
	in := time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), StartOfQuarter(in))
	assert.Equal(t, time.Date(2024, 6, 30, 23, 59, 59, 999999999, time.UTC), EndOfQuarter(in))
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), StartOfMonth(in))
}

func TestParseAndFormatDate(t *testing.T) {
	parsed, err := ParseDate("2024-01-10")
	require.NoError(t, err)

	assert.Equal(t, "2024-01-15", FormatDate(AddDays(parsed, 5)))
}
