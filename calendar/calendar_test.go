package calendar_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/credit-engine/calendar"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// DAY COUNT
// =============================================================================

func TestDaysDiff_ThirtyDayMonths(t *testing.T) {
	cases := []struct {
		name string
		a, b time.Time
		want int
	}{
		{"mid month to next month", date(2024, 1, 15), date(2024, 2, 1), 16},
		{"day 31 counts as day 30", date(2024, 1, 31), date(2024, 2, 1), 1},
		{"february is thirty days", date(2024, 2, 1), date(2024, 3, 1), 30},
		{"full quarter", date(2024, 1, 1), date(2024, 4, 1), 90},
		{"full year", date(2024, 1, 1), date(2025, 1, 1), 360},
		{"same midnight", date(2024, 5, 1), date(2024, 5, 1), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := calendar.DaysDiff(tc.a, tc.b)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDaysDiff_PartialDayRoundsForward(t *testing.T) {
	// GIVEN: A range starting mid-morning and ending one second after midnight
	// THEN: Start truncates to its day, end rounds up to the following day
	a := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	b := time.Date(2024, 1, 16, 0, 0, 1, 0, time.UTC)

	got, err := calendar.DaysDiff(a, b)
	require.NoError(t, err)
	assert.Equal(t, 2, got)
}

func TestDaysDiff_ReversedRange(t *testing.T) {
	_, err := calendar.DaysDiff(date(2024, 3, 1), date(2024, 2, 1))
	assert.ErrorIs(t, err, calendar.ErrInvalidTimeRange)
}

// =============================================================================
// PERIOD BOUNDARIES
// =============================================================================

func TestStartOfNextPeriod(t *testing.T) {
	cases := []struct {
		name string
		d    calendar.PeriodDuration
		at   time.Time
		want time.Time
	}{
		{"monthly mid month", calendar.Monthly, time.Date(2024, 1, 15, 13, 4, 5, 0, time.UTC), date(2024, 2, 1)},
		{"monthly on boundary moves forward", calendar.Monthly, date(2024, 2, 1), date(2024, 3, 1)},
		{"quarterly", calendar.Quarterly, date(2024, 5, 10), date(2024, 7, 1)},
		{"quarterly year wrap", calendar.Quarterly, date(2024, 12, 5), date(2025, 1, 1)},
		{"semi annual", calendar.SemiAnnually, date(2024, 8, 20), date(2025, 1, 1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, calendar.StartOfNextPeriod(tc.d, tc.at))
		})
	}
}

func TestStartOfPeriod_IsAtOrBefore(t *testing.T) {
	assert.Equal(t, date(2024, 4, 1), calendar.StartOfPeriod(calendar.Quarterly, date(2024, 6, 30)))
	assert.Equal(t, date(2024, 7, 1), calendar.StartOfPeriod(calendar.SemiAnnually, date(2024, 7, 1)))
}

func TestPeriodsBetween(t *testing.T) {
	// Boundaries Feb 1 and Mar 1 fall in (Jan 15, Mar 1]
	assert.Equal(t, 2, calendar.PeriodsBetween(calendar.Monthly, date(2024, 1, 15), date(2024, 3, 1)))
	// A start exactly on a boundary does not count it
	assert.Equal(t, 0, calendar.PeriodsBetween(calendar.Monthly, date(2024, 2, 1), date(2024, 2, 15)))
	assert.Equal(t, 0, calendar.PeriodsBetween(calendar.Monthly, date(2024, 3, 1), date(2024, 2, 1)))
	assert.Equal(t, 1, calendar.PeriodsBetween(calendar.Quarterly, date(2024, 2, 1), date(2024, 4, 1)))
}

func TestMaturityDate(t *testing.T) {
	assert.Equal(t, date(2025, 1, 1), calendar.MaturityDate(calendar.Monthly, 12, date(2024, 1, 15)))
	assert.Equal(t, date(2024, 2, 1), calendar.MaturityDate(calendar.Monthly, 1, date(2024, 1, 15)))
	assert.Equal(t, date(2025, 1, 1), calendar.MaturityDate(calendar.Quarterly, 4, date(2024, 3, 3)))
}

func TestParsePeriodDuration(t *testing.T) {
	d, err := calendar.ParsePeriodDuration("Quarterly")
	require.NoError(t, err)
	assert.Equal(t, calendar.Quarterly, d)
	assert.Equal(t, 90, d.Days())

	_, err = calendar.ParsePeriodDuration("weekly")
	assert.Error(t, err)
}
