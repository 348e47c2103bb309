package recurrence

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRule indicates a rule payload outside its documented bounds.
var ErrInvalidRule = errors.New("recurrence: invalid rule")

// Kind discriminates the closed set of rule variants.
type Kind int

const (
	// KindUnspecified indicates the rule variant is not set.
	KindUnspecified Kind = iota
	// KindWeekday matches every date falling on a fixed weekday.
	KindWeekday
	// KindWeekdayInMonth matches the Nth occurrence of a weekday in its month.
	KindWeekdayInMonth
	// KindMonthDay matches a day-of-month ordinal, clamped against short months.
	KindMonthDay
	// KindYearDay matches a clamped day-of-month within a specific month.
	KindYearDay
)

// String returns the stable label used in persistence and logs.
func (k Kind) String() string {
	switch k {
	case KindWeekday:
		return "weekday"
	case KindWeekdayInMonth:
		return "weekday_in_month"
	case KindMonthDay:
		return "month_day"
	case KindYearDay:
		return "year_day"
	default:
		return "unspecified"
	}
}

// ParseKind converts a stable label back into a Kind.
func ParseKind(value string) (Kind, error) {
	switch value {
	case "weekday":
		return KindWeekday, nil
	case "weekday_in_month":
		return KindWeekdayInMonth, nil
	case "month_day":
		return KindMonthDay, nil
	case "year_day":
		return KindYearDay, nil
	default:
		return KindUnspecified, fmt.Errorf("%w: unknown kind %q", ErrInvalidRule, value)
	}
}

// Rule is an immutable recurrence predicate over calendar dates. Exactly one
// variant is active per instance; construct rules through the New*Rule
// functions so the payload bounds hold.
type Rule struct {
	kind       Kind
	weekday    time.Weekday
	weekNumber int
	dayNumber  int
	month      time.Month
}

// NewWeekdayRule matches every date on the given weekday.
func NewWeekdayRule(day time.Weekday) (Rule, error) {
	if day < time.Sunday || day > time.Saturday {
		return Rule{}, fmt.Errorf("%w: weekday %d out of range", ErrInvalidRule, day)
	}
	return Rule{kind: KindWeekday, weekday: day}, nil
}

// NewWeekdayInMonthRule matches the weekNumber-th (1-based) occurrence of the
// given weekday within its month, e.g. the 3rd Tuesday.
func NewWeekdayInMonthRule(day time.Weekday, weekNumber int) (Rule, error) {
	if day < time.Sunday || day > time.Saturday {
		return Rule{}, fmt.Errorf("%w: weekday %d out of range", ErrInvalidRule, day)
	}
	if weekNumber < 1 || weekNumber > 5 {
		return Rule{}, fmt.Errorf("%w: week number %d out of range", ErrInvalidRule, weekNumber)
	}
	return Rule{kind: KindWeekdayInMonth, weekday: day, weekNumber: weekNumber}, nil
}

// NewMonthDayRule matches a day-of-month ordinal. Ordinals beyond the length
// of a month clamp to its last day, so 31 fires on Feb 28/29.
func NewMonthDayRule(dayNumber int) (Rule, error) {
	if dayNumber < 1 || dayNumber > 31 {
		return Rule{}, fmt.Errorf("%w: day number %d out of range", ErrInvalidRule, dayNumber)
	}
	return Rule{kind: KindMonthDay, dayNumber: dayNumber}, nil
}

// NewYearDayRule matches a clamped day-of-month within one specific month.
func NewYearDayRule(month time.Month, dayNumber int) (Rule, error) {
	if month < time.January || month > time.December {
		return Rule{}, fmt.Errorf("%w: month %d out of range", ErrInvalidRule, month)
	}
	if dayNumber < 1 || dayNumber > 31 {
		return Rule{}, fmt.Errorf("%w: day number %d out of range", ErrInvalidRule, dayNumber)
	}
	return Rule{kind: KindYearDay, month: month, dayNumber: dayNumber}, nil
}

// Kind reports the active variant.
func (r Rule) Kind() Kind { return r.kind }

// Weekday returns the weekday payload of weekday-based variants.
func (r Rule) Weekday() time.Weekday { return r.weekday }

// WeekNumber returns the 1-based ordinal payload of KindWeekdayInMonth.
func (r Rule) WeekNumber() int { return r.weekNumber }

// DayNumber returns the day-of-month payload of day-based variants.
func (r Rule) DayNumber() int { return r.dayNumber }

// Month returns the month payload of KindYearDay.
func (r Rule) Month() time.Month { return r.month }

// Matches reports whether the calendar date of the given instant satisfies
// the rule. Only the date's year, month, day, and weekday participate.
func (r Rule) Matches(date time.Time) bool {
	switch r.kind {
	case KindWeekday:
		return date.Weekday() == r.weekday
	case KindWeekdayInMonth:
		return date.Weekday() == r.weekday && weekdayOrdinal(date) == r.weekNumber
	case KindMonthDay:
		return date.Day() == clampDay(r.dayNumber, date.Year(), date.Month())
	case KindYearDay:
		return date.Month() == r.month && date.Day() == clampDay(r.dayNumber, date.Year(), date.Month())
	default:
		return false
	}
}

// weekdayOrdinal counts which occurrence of its weekday the date is within
// its month: days 1-7 are the 1st, 8-14 the 2nd, and so on.
func weekdayOrdinal(date time.Time) int {
	return (date.Day()-1)/7 + 1
}

// clampDay caps a day ordinal to the last valid day of the target month.
func clampDay(day, year int, month time.Month) int {
	last := daysInMonth(year, month)
	if day > last {
		return last
	}
	return day
}

// daysInMonth returns the number of days in the given month. Day zero of the
// following month is the last day of this one.
func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
