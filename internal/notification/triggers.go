// Package notification computes when reminders for a task should fire and
// which alarm identifier each reminder owns. It performs no delivery; the
// (instant, identifier) pairs it produces are handed to an external alarm
// scheduler.
package notification

import (
	"time"

	"github.com/example/dayplan/internal/scheduler"
)

// OffsetKind identifies one reminder offset relative to a task's slot.
type OffsetKind int

const (
	// KindStart fires at the task's start.
	KindStart OffsetKind = iota
	// KindFifteenMinutesBefore fires 15 minutes before the start.
	KindFifteenMinutesBefore
	// KindOneHourBefore fires one hour before the start.
	KindOneHourBefore
	// KindThreeHoursBefore fires three hours before the start.
	KindThreeHoursBefore
	// KindOneDayBefore fires one day before the start.
	KindOneDayBefore
	// KindOneWeekBefore fires seven days before the start.
	KindOneWeekBefore
	// KindBeforeEnd fires ten seconds before the task's end.
	KindBeforeEnd
)

// String returns the stable label used in payloads and logs.
func (k OffsetKind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindFifteenMinutesBefore:
		return "fifteen_minutes_before"
	case KindOneHourBefore:
		return "one_hour_before"
	case KindThreeHoursBefore:
		return "three_hours_before"
	case KindOneDayBefore:
		return "one_day_before"
	case KindOneWeekBefore:
		return "one_week_before"
	case KindBeforeEnd:
		return "before_end"
	default:
		return "unknown"
	}
}

// IDAmount is the fixed per-kind integer added to a task's base alarm key to
// derive a collision-free alarm identifier per (task, kind) pair. External
// schedulers key on the derived integers, so the assignment never changes.
func (k OffsetKind) IDAmount() int64 {
	switch k {
	case KindStart:
		return 1
	case KindFifteenMinutesBefore:
		return 2
	case KindOneHourBefore:
		return 3
	case KindThreeHoursBefore:
		return 4
	case KindOneDayBefore:
		return 5
	case KindOneWeekBefore:
		return 6
	case KindBeforeEnd:
		return 7
	default:
		return 0
	}
}

// TriggerAt returns the absolute instant at which a reminder of the given
// kind should fire for the task occupying rng.
func TriggerAt(rng scheduler.TimeRange, kind OffsetKind) time.Time {
	switch kind {
	case KindStart:
		return rng.From
	case KindFifteenMinutesBefore:
		return rng.From.Add(-15 * time.Minute)
	case KindOneHourBefore:
		return rng.From.Add(-time.Hour)
	case KindThreeHoursBefore:
		return rng.From.Add(-3 * time.Hour)
	case KindOneDayBefore:
		return rng.From.AddDate(0, 0, -1)
	case KindOneWeekBefore:
		return rng.From.AddDate(0, 0, -7)
	case KindBeforeEnd:
		return rng.To.Add(-10 * time.Second)
	default:
		return rng.From
	}
}

// AlarmID derives the scheduler identifier for one (task, kind) pair.
func AlarmID(baseKey int64, kind OffsetKind) int64 {
	return baseKey + kind.IDAmount()
}

// Preferences selects which reminder kinds are active for a task. The
// zero value disables every reminder.
type Preferences struct {
	Enabled              bool
	FifteenMinutesBefore bool
	OneHourBefore        bool
	ThreeHoursBefore     bool
	OneDayBefore         bool
	OneWeekBefore        bool
	BeforeEnd            bool
}

// ActiveKinds lists the reminder kinds enabled by prefs. The start reminder
// is always first whenever notifications are enabled at all; the remaining
// kinds follow in declaration order. A disabled switch yields nothing.
func ActiveKinds(prefs Preferences) []OffsetKind {
	if !prefs.Enabled {
		return nil
	}

	kinds := []OffsetKind{KindStart}
	if prefs.FifteenMinutesBefore {
		kinds = append(kinds, KindFifteenMinutesBefore)
	}
	if prefs.OneHourBefore {
		kinds = append(kinds, KindOneHourBefore)
	}
	if prefs.ThreeHoursBefore {
		kinds = append(kinds, KindThreeHoursBefore)
	}
	if prefs.OneDayBefore {
		kinds = append(kinds, KindOneDayBefore)
	}
	if prefs.OneWeekBefore {
		kinds = append(kinds, KindOneWeekBefore)
	}
	if prefs.BeforeEnd {
		kinds = append(kinds, KindBeforeEnd)
	}
	return kinds
}

// Trigger pairs a reminder kind with its firing instant and alarm identifier.
type Trigger struct {
	Kind    OffsetKind
	At      time.Time
	AlarmID int64
}

// Plan computes every trigger for a task: one per active kind, each with its
// derived alarm identifier.
func Plan(rng scheduler.TimeRange, prefs Preferences, baseKey int64) []Trigger {
	kinds := ActiveKinds(prefs)
	if len(kinds) == 0 {
		return nil
	}

	triggers := make([]Trigger, 0, len(kinds))
	for _, kind := range kinds {
		triggers = append(triggers, Trigger{
			Kind:    kind,
			At:      TriggerAt(rng, kind),
			AlarmID: AlarmID(baseKey, kind),
		})
	}
	return triggers
}
