package recurrence

import (
	"errors"
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock start time attached to a template, independent
// of any concrete date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// NewTimeOfDay validates clock bounds.
func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: time of day %02d:%02d out of range", ErrInvalidRule, hour, minute)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// Minutes returns the offset from midnight, the form templates persist.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// TimeOfDayFromMinutes rebuilds a TimeOfDay from its persisted form.
func TimeOfDayFromMinutes(minutes int) (TimeOfDay, error) {
	return NewTimeOfDay(minutes/60, minutes%60)
}

// Occurrence is one concrete expansion of a rule: the slot a materialized
// task would occupy.
type Occurrence struct {
	Start time.Time
	End   time.Time
}

// ErrInvalidDuration indicates a non-positive occurrence duration.
var ErrInvalidDuration = errors.New("recurrence: occurrence duration must be positive")

// Engine expands recurrence rules into concrete dates. All results are
// produced in the engine's location.
type Engine struct {
	location *time.Location
}

// NewEngine constructs an Engine that normalizes results to the provided
// location. If loc is nil, UTC is used.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{location: loc}
}

// NextOccurrence scans forward day by day, starting at searchFrom's calendar
// date inclusive, and returns the first instant at which the rule matches,
// combined with the template's time of day. Exactly horizonDays dates are
// examined; when none matches, ok is false. An exhausted horizon is an
// expected outcome, not an error: it means the rule will not recur soon.
//
// The bounded linear scan is a deliberate tradeoff over solving each variant
// analytically; the horizon keeps the cost small and the behavior testable.
func (e *Engine) NextOccurrence(rule Rule, tod TimeOfDay, searchFrom time.Time, horizonDays int) (time.Time, bool) {
	loc := e.location
	if loc == nil {
		loc = time.UTC
	}

	date := startOfDay(searchFrom.In(loc))
	for i := 0; i < horizonDays; i++ {
		if rule.Matches(date) {
			return time.Date(date.Year(), date.Month(), date.Day(), tod.Hour, tod.Minute, 0, 0, loc), true
		}
		date = date.AddDate(0, 0, 1)
	}

	return time.Time{}, false
}

// Occurrences expands every match within the horizon into a concrete slot of
// the given duration, in chronological order. Used for template previews.
func (e *Engine) Occurrences(rule Rule, tod TimeOfDay, duration time.Duration, searchFrom time.Time, horizonDays int) ([]Occurrence, error) {
	if duration <= 0 {
		return nil, ErrInvalidDuration
	}

	loc := e.location
	if loc == nil {
		loc = time.UTC
	}

	occurrences := make([]Occurrence, 0)
	date := startOfDay(searchFrom.In(loc))
	for i := 0; i < horizonDays; i++ {
		if rule.Matches(date) {
			start := time.Date(date.Year(), date.Month(), date.Day(), tod.Hour, tod.Minute, 0, 0, loc)
			occurrences = append(occurrences, Occurrence{Start: start, End: start.Add(duration)})
		}
		date = date.AddDate(0, 0, 1)
	}

	return occurrences, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
