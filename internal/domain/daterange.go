package domain

import (
	"fmt"
	"math"
	"time"
)

// DateLayout is the wire and storage format for date-only values.
const DateLayout = "2006-01-02"

// Day truncates t to its calendar day in t's own location and returns
// midnight UTC of that day. All reservation dates are normalised this way so
// comparisons are made on whole days, never on clock time.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a "2006-01-02" string into a normalised day.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q, expected YYYY-MM-DD", ErrValidation, s)
	}
	return Day(t), nil
}

// DateRange is a rental period. Both endpoints are inclusive at day
// granularity: [2025-06-01, 2025-06-03] occupies the 1st, 2nd and 3rd.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange builds a DateRange with both endpoints normalised to days.
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: Day(start), End: Day(end)}
}

// Overlaps reports whether r and o share at least one day.
// Two inclusive ranges [s1,e1] and [s2,e2] overlap iff s1 <= e2 && s2 <= e1.
func (r DateRange) Overlaps(o DateRange) bool {
	return !r.Start.After(o.End) && !o.Start.After(r.End)
}

// Equal reports whether r and o cover the same days.
func (r DateRange) Equal(o DateRange) bool {
	return r.Start.Equal(o.Start) && r.End.Equal(o.End)
}

// Days returns ceil((end-start)/1day), the rental length used by the
// maximum-duration policy. A same-day rental is 0 days long.
func (r DateRange) Days() int {
	return int(math.Ceil(r.End.Sub(r.Start).Hours() / 24))
}

// String renders the range as "2025-06-01 - 2025-06-03" for messages.
func (r DateRange) String() string {
	return r.Start.Format(DateLayout) + " - " + r.End.Format(DateLayout)
}
