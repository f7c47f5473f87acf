package generic

// =============================================================================
// PERIOD - Inclusive date range
// =============================================================================

// Period is an inclusive range of calendar days [Start, End].
//
// Examples:
//   - A vacation request: Apr 1 - Apr 15 (15 days)
//   - A balance year:     Jan 1 - Dec 31
type Period struct {
	Start TimePoint
	End   TimePoint
}

// Validate returns ErrInvalidPeriod when End is before Start.
func (p Period) Validate() error {
	if p.End.Before(p.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Overlaps returns true if the two periods share at least one day.
func (p Period) Overlaps(other Period) bool {
	return p.Start.BeforeOrEqual(other.End) && other.Start.BeforeOrEqual(p.End)
}

// DayCount returns the inclusive number of days (End - Start + 1).
// An inverted period has zero days.
func (p Period) DayCount() int {
	n := DaysBetween(p.Start, p.End) + 1
	if n < 0 {
		return 0
	}
	return n
}

// Days returns all days in the period as a slice of TimePoints.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	current := p.Start
	for current.BeforeOrEqual(p.End) {
		days = append(days, current)
		current = current.AddDays(1)
	}
	return days
}

// Shift moves both ends of the period by n days.
func (p Period) Shift(n int) Period {
	return Period{Start: p.Start.AddDays(n), End: p.End.AddDays(n)}
}

// WithStart returns a period of the same length beginning at start.
func (p Period) WithStart(start TimePoint) Period {
	return Period{Start: start, End: start.AddDays(p.DayCount() - 1)}
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// YearPeriod returns the calendar year containing the given year number.
func YearPeriod(year int) Period {
	return Period{Start: StartOfYear(year), End: EndOfYear(year)}
}
