// Package period implements calendar-correct retention arithmetic: parsing
// human-readable periods such as "5 years", computing expiration dates and
// checking a requested period against a policy's allowed list.
package period

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"mercator-hq/saturn/pkg/retention"
)

var periodPattern = regexp.MustCompile(`^\s*(\d+)\s*([A-Za-z]+)\s*$`)

// unitAliases maps accepted spellings onto canonical units.
var unitAliases = map[string]retention.Unit{
	"d":      retention.UnitDays,
	"day":    retention.UnitDays,
	"days":   retention.UnitDays,
	"w":      retention.UnitWeeks,
	"week":   retention.UnitWeeks,
	"weeks":  retention.UnitWeeks,
	"mo":     retention.UnitMonths,
	"month":  retention.UnitMonths,
	"months": retention.UnitMonths,
	"y":      retention.UnitYears,
	"yr":     retention.UnitYears,
	"year":   retention.UnitYears,
	"years":  retention.UnitYears,
}

// Period is a positive count of calendar units.
type Period struct {
	N    int
	Unit retention.Unit
}

// String renders the period the way administrators write it ("1 year",
// "6 months").
func (p Period) String() string {
	unit := string(p.Unit)
	if p.N == 1 {
		unit = strings.TrimSuffix(unit, "s")
	}
	return fmt.Sprintf("%d %s", p.N, unit)
}

// Equal reports whether two periods denote the same (count, unit) pair.
func (p Period) Equal(other Period) bool {
	return p.N == other.N && p.Unit == other.Unit
}

// Parse parses a human-readable period such as "5 years" or "30 days".
// Units are case-insensitive and accept singular and plural forms.
func Parse(s string) (Period, error) {
	m := periodPattern.FindStringSubmatch(s)
	if m == nil {
		return Period{}, retention.NewValidationError("period",
			fmt.Sprintf("cannot parse %q, expected \"<number> <unit>\"", s))
	}

	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return Period{}, retention.NewValidationError("period",
			fmt.Sprintf("count in %q must be a positive integer", s))
	}

	unit, ok := unitAliases[strings.ToLower(m[2])]
	if !ok {
		return Period{}, retention.NewValidationError("period",
			fmt.Sprintf("unknown unit %q in %q", m[2], s))
	}

	return Period{N: n, Unit: unit}, nil
}

// ParseUnit parses a unit name, accepting the same spellings as Parse.
func ParseUnit(s string) (retention.Unit, error) {
	unit, ok := unitAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", retention.NewValidationError("retention_unit",
			fmt.Sprintf("must be one of days, weeks, months, years (got %q)", s))
	}
	return unit, nil
}

// New validates a (count, unit) pair.
func New(n int, unit retention.Unit) (Period, error) {
	if n <= 0 {
		return Period{}, retention.NewValidationError("retention_period",
			fmt.Sprintf("must be positive (got %d)", n))
	}
	if !unit.Valid() {
		return Period{}, retention.NewValidationError("retention_unit",
			fmt.Sprintf("must be one of days, weeks, months, years (got %q)", unit))
	}
	return Period{N: n, Unit: unit}, nil
}

// AddTo returns the calendar date p after start. Days and weeks are added
// exactly. Months and years keep the day of month and clamp it to the last
// day of the target month, so Jan 31 + 1 month is Feb 28 (or 29).
func (p Period) AddTo(start time.Time) time.Time {
	start = retention.DateOf(start)
	switch p.Unit {
	case retention.UnitDays:
		return start.AddDate(0, 0, p.N)
	case retention.UnitWeeks:
		return start.AddDate(0, 0, 7*p.N)
	case retention.UnitMonths:
		return addMonths(start, p.N)
	case retention.UnitYears:
		return addMonths(start, 12*p.N)
	}
	return start
}

func addMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	total := int(m) - 1 + months
	year := y + total/12
	month := time.Month(total%12 + 1)
	if last := daysIn(year, month); d > last {
		d = last
	}
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	// Day 0 of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
