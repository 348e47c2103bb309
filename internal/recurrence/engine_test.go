package recurrence

import (
	"errors"
	"testing"
	"time"
)

func mustRule(t *testing.T) func(Rule, error) Rule {
	t.Helper()
	return func(rule Rule, err error) Rule {
		if err != nil {
			t.Fatalf("failed to build rule: %v", err)
		}
		return rule
	}
}

func TestEngine_NextOccurrence(t *testing.T) {
	t.Parallel()

	engine := NewEngine(time.UTC)
	nineThirty := TimeOfDay{Hour: 9, Minute: 30}

	t.Run("search start is inclusive", func(t *testing.T) {
		t.Parallel()

		// 2024-03-04 is a Monday.
		rule := mustRule(t)(NewWeekdayRule(time.Monday))
		searchFrom := time.Date(2024, time.March, 4, 15, 0, 0, 0, time.UTC)

		got, ok := engine.NextOccurrence(rule, nineThirty, searchFrom, 7)
		if !ok {
			t.Fatal("expected a match")
		}
		want := time.Date(2024, time.March, 4, 9, 30, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Fatalf("NextOccurrence = %v, want %v (the search day itself)", got, want)
		}
	})

	t.Run("scans forward to the first matching date", func(t *testing.T) {
		t.Parallel()

		rule := mustRule(t)(NewWeekdayRule(time.Friday))
		searchFrom := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)

		got, ok := engine.NextOccurrence(rule, nineThirty, searchFrom, 7)
		if !ok {
			t.Fatal("expected a match")
		}
		want := time.Date(2024, time.March, 8, 9, 30, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Fatalf("NextOccurrence = %v, want %v", got, want)
		}
	})

	t.Run("respects the horizon bound", func(t *testing.T) {
		t.Parallel()

		// Searching from March 5 with a 3-day horizon examines Mar 5, 6, 7;
		// the next Friday (Mar 8) is just outside.
		rule := mustRule(t)(NewWeekdayRule(time.Friday))
		searchFrom := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)

		if _, ok := engine.NextOccurrence(rule, nineThirty, searchFrom, 3); ok {
			t.Fatal("expected no match inside the 3-day horizon")
		}
		if got, ok := engine.NextOccurrence(rule, nineThirty, searchFrom, 4); !ok || got.Day() != 8 {
			t.Fatalf("expected Mar 8 with a 4-day horizon, got %v ok=%v", got, ok)
		}
	})

	t.Run("year-day rules may need a long horizon", func(t *testing.T) {
		t.Parallel()

		rule := mustRule(t)(NewYearDayRule(time.February, 29))
		searchFrom := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

		if _, ok := engine.NextOccurrence(rule, nineThirty, searchFrom, 30); ok {
			t.Fatal("February rule must not match inside a March window")
		}

		got, ok := engine.NextOccurrence(rule, nineThirty, searchFrom, 366)
		if !ok {
			t.Fatal("expected a match within a year")
		}
		// 2025 is not a leap year, so the 29th clamps to the 28th.
		want := time.Date(2025, time.February, 28, 9, 30, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Fatalf("NextOccurrence = %v, want %v", got, want)
		}
	})

	t.Run("zero horizon never matches", func(t *testing.T) {
		t.Parallel()

		rule := mustRule(t)(NewWeekdayRule(time.Monday))
		if _, ok := engine.NextOccurrence(rule, nineThirty, time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC), 0); ok {
			t.Fatal("expected no match with a zero horizon")
		}
	})

	t.Run("normalizes the search start to the engine location", func(t *testing.T) {
		t.Parallel()

		loc := time.FixedZone("UTC+9", 9*60*60)
		localized := NewEngine(loc)

		rule := mustRule(t)(NewWeekdayRule(time.Tuesday))
		// 23:00 UTC on Monday Mar 4 is already Tuesday Mar 5 in UTC+9.
		searchFrom := time.Date(2024, time.March, 4, 23, 0, 0, 0, time.UTC)

		got, ok := localized.NextOccurrence(rule, nineThirty, searchFrom, 7)
		if !ok {
			t.Fatal("expected a match")
		}
		want := time.Date(2024, time.March, 5, 9, 30, 0, 0, loc)
		if !got.Equal(want) {
			t.Fatalf("NextOccurrence = %v, want %v", got, want)
		}
	})
}

func TestEngine_Occurrences(t *testing.T) {
	t.Parallel()

	engine := NewEngine(time.UTC)
	ten := TimeOfDay{Hour: 10}

	t.Run("expands every match in the window", func(t *testing.T) {
		t.Parallel()

		rule := mustRule(t)(NewWeekdayRule(time.Monday))
		searchFrom := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)

		occurrences, err := engine.Occurrences(rule, ten, time.Hour, searchFrom, 15)
		if err != nil {
			t.Fatalf("Occurrences failed: %v", err)
		}

		wantStarts := []time.Time{
			time.Date(2024, time.March, 4, 10, 0, 0, 0, time.UTC),
			time.Date(2024, time.March, 11, 10, 0, 0, 0, time.UTC),
			time.Date(2024, time.March, 18, 10, 0, 0, 0, time.UTC),
		}
		if len(occurrences) != len(wantStarts) {
			t.Fatalf("expected %d occurrences, got %d", len(wantStarts), len(occurrences))
		}
		for i, occ := range occurrences {
			if !occ.Start.Equal(wantStarts[i]) {
				t.Fatalf("occurrence %d starts at %v, want %v", i, occ.Start, wantStarts[i])
			}
			if !occ.End.Equal(wantStarts[i].Add(time.Hour)) {
				t.Fatalf("occurrence %d ends at %v, want %v", i, occ.End, wantStarts[i].Add(time.Hour))
			}
		}
	})

	t.Run("rejects non-positive durations", func(t *testing.T) {
		t.Parallel()

		rule := mustRule(t)(NewWeekdayRule(time.Monday))
		if _, err := engine.Occurrences(rule, ten, 0, time.Now(), 7); !errors.Is(err, ErrInvalidDuration) {
			t.Fatalf("expected ErrInvalidDuration, got %v", err)
		}
	})
}

func TestTimeOfDay_MinutesRoundTrip(t *testing.T) {
	t.Parallel()

	tod, err := NewTimeOfDay(14, 45)
	if err != nil {
		t.Fatalf("NewTimeOfDay failed: %v", err)
	}
	back, err := TimeOfDayFromMinutes(tod.Minutes())
	if err != nil {
		t.Fatalf("TimeOfDayFromMinutes failed: %v", err)
	}
	if back != tod {
		t.Fatalf("round trip produced %+v, want %+v", back, tod)
	}

	if _, err := NewTimeOfDay(24, 0); !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule for hour 24, got %v", err)
	}
}
