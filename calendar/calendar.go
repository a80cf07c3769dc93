/*
Package calendar provides the date arithmetic behind billing cycles.

PURPOSE:
  Every amount the engine bills is a function of "how many days" and "which
  period". This package answers both questions and nothing else. All
  functions are pure and operate in UTC.

DAY COUNT CONVENTION (30/360):
  Each calendar month counts as 30 days and a year as 360 days. A monthly
  period is therefore always 30 days long, a quarter 90 days and a half-year
  180 days, regardless of how many days the calendar month really has.

    Jan 15 -> Feb 1   = 16 days
    Jan 31 -> Feb 1   = 1 day   (day 31 is treated as day 30)
    Feb 1  -> Mar 1   = 30 days

  A partial day at the end of a range counts as a full day forward: the end
  timestamp is rounded up to the next midnight. The start is truncated to
  its own midnight, so the day a drawdown happens is always billed.

PERIOD BOUNDARIES:
  Periods are aligned to calendar months, quarters (Jan/Apr/Jul/Oct) and
  half-years (Jan/Jul). StartOfNextPeriod always moves strictly forward:
  a timestamp exactly on a boundary returns the following boundary.

SEE ALSO:
  - credit/due.go: consumes these functions to compute yield and due dates
  - credit/latefee.go: daily late-fee accrual
*/
package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// DaysInMonth is the fixed month length of the 30/360 convention.
	DaysInMonth = 30

	// DaysInYear is the fixed year length of the 30/360 convention.
	DaysInYear = 360

	// Day is one calendar day.
	Day = 24 * time.Hour
)

// ErrInvalidTimeRange is returned when a range ends before it starts.
var ErrInvalidTimeRange = errors.New("invalid time range: end before start")

// =============================================================================
// PERIOD DURATION
// =============================================================================

// PeriodDuration is the length of a billing cycle.
type PeriodDuration int

const (
	Monthly PeriodDuration = iota
	Quarterly
	SemiAnnually
)

// Months returns the number of calendar months in one period.
func (d PeriodDuration) Months() int {
	switch d {
	case Quarterly:
		return 3
	case SemiAnnually:
		return 6
	default:
		return 1
	}
}

// Days returns the number of 30/360 days in one period.
func (d PeriodDuration) Days() int { return d.Months() * DaysInMonth }

func (d PeriodDuration) String() string {
	switch d {
	case Monthly:
		return "monthly"
	case Quarterly:
		return "quarterly"
	case SemiAnnually:
		return "semi_annually"
	default:
		return fmt.Sprintf("period_duration(%d)", int(d))
	}
}

// ParsePeriodDuration converts a name like "monthly" into a PeriodDuration.
func ParsePeriodDuration(s string) (PeriodDuration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monthly", "":
		return Monthly, nil
	case "quarterly":
		return Quarterly, nil
	case "semi_annually", "semiannually", "semi-annually":
		return SemiAnnually, nil
	default:
		return Monthly, fmt.Errorf("unknown period duration %q", s)
	}
}

func (d PeriodDuration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *PeriodDuration) UnmarshalText(b []byte) error {
	parsed, err := ParsePeriodDuration(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// DAY BOUNDARIES
// =============================================================================

// StartOfDay returns midnight UTC of the day containing t.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StartOfNextDay returns midnight UTC of the day after t.
func StartOfNextDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1)
}

// =============================================================================
// PERIOD BOUNDARIES
// =============================================================================

// periodIndex numbers periods since year 0 so boundaries can be counted
// with plain integer subtraction.
func periodIndex(d PeriodDuration, t time.Time) int {
	y, m, _ := t.UTC().Date()
	return (y*12 + int(m) - 1) / d.Months()
}

// StartOfPeriod returns the period start that is <= t.
func StartOfPeriod(d PeriodDuration, t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	months := d.Months()
	first := (int(m)-1)/months*months + 1
	return time.Date(y, time.Month(first), 1, 0, 0, 0, 0, time.UTC)
}

// StartOfNextPeriod returns the smallest period start strictly after t.
func StartOfNextPeriod(d PeriodDuration, t time.Time) time.Time {
	return StartOfPeriod(d, t).AddDate(0, d.Months(), 0)
}

// PeriodsBetween counts the period boundaries b with from < b <= to.
// Returns 0 when to is not after from.
func PeriodsBetween(d PeriodDuration, from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	return periodIndex(d, to) - periodIndex(d, from)
}

// MaturityDate is the due date of the last of numOfPeriods bills for a
// credit whose first (partial) bill starts at start.
func MaturityDate(d PeriodDuration, numOfPeriods int, start time.Time) time.Time {
	first := StartOfNextPeriod(d, start)
	if numOfPeriods <= 1 {
		return first
	}
	return first.AddDate(0, (numOfPeriods-1)*d.Months(), 0)
}

// =============================================================================
// DAY COUNT
// =============================================================================

// DaysDiff returns the 30/360 day count from a to b.
func DaysDiff(a, b time.Time) (int, error) {
	if a.After(b) {
		return 0, fmt.Errorf("%w: %s > %s", ErrInvalidTimeRange,
			a.UTC().Format(time.RFC3339), b.UTC().Format(time.RFC3339))
	}

	start := StartOfDay(a)
	end := StartOfDay(b)
	if !end.Equal(b.UTC()) {
		end = end.AddDate(0, 0, 1)
	}

	y1, m1, d1 := start.Date()
	y2, m2, d2 := end.Date()
	d1 = min(d1, DaysInMonth)
	d2 = min(d2, DaysInMonth)

	days := (y2-y1)*DaysInYear + (int(m2)-int(m1))*DaysInMonth + (d2 - d1)
	if days < 0 {
		// Only reachable for ranges inside the last days of a 31-day month.
		return 0, nil
	}
	return days, nil
}
