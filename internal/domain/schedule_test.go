package domain

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestNextExecution_DailyAndWeekly(t *testing.T) {
	start := date(2024, time.March, 15, 9, 30)

	if got := NextExecution(start, FrequencyDaily); !got.Equal(date(2024, time.March, 16, 9, 30)) {
		t.Fatalf("daily: got %v", got)
	}
	if got := NextExecution(start, FrequencyWeekly); !got.Equal(date(2024, time.March, 22, 9, 30)) {
		t.Fatalf("weekly: got %v", got)
	}
}

func TestNextExecution_MonthlyClampsToShorterMonth(t *testing.T) {
	// Leap year: Jan 31 -> Feb 29, not Mar 2/3.
	if got := NextExecution(date(2024, time.January, 31, 8, 0), FrequencyMonthly); !got.Equal(date(2024, time.February, 29, 8, 0)) {
		t.Fatalf("leap-year clamp: got %v", got)
	}
	// Non-leap year: Jan 31 -> Feb 28.
	if got := NextExecution(date(2023, time.January, 31, 8, 0), FrequencyMonthly); !got.Equal(date(2023, time.February, 28, 8, 0)) {
		t.Fatalf("non-leap clamp: got %v", got)
	}
	// No clamp needed when the target month is long enough.
	if got := NextExecution(date(2024, time.April, 30, 8, 0), FrequencyMonthly); !got.Equal(date(2024, time.May, 30, 8, 0)) {
		t.Fatalf("plain monthly: got %v", got)
	}
}

func TestNextExecution_MonthlyCrossesYearBoundary(t *testing.T) {
	if got := NextExecution(date(2023, time.December, 31, 23, 45), FrequencyMonthly); !got.Equal(date(2024, time.January, 31, 23, 45)) {
		t.Fatalf("december rollover: got %v", got)
	}
}

func TestNextExecution_QuarterlyClamps(t *testing.T) {
	// Nov 30 + 3 months lands on Feb, which has no day 30.
	if got := NextExecution(date(2023, time.November, 30, 12, 0), FrequencyQuarterly); !got.Equal(date(2024, time.February, 29, 12, 0)) {
		t.Fatalf("quarterly leap clamp: got %v", got)
	}
	if got := NextExecution(date(2024, time.January, 15, 12, 0), FrequencyQuarterly); !got.Equal(date(2024, time.April, 15, 12, 0)) {
		t.Fatalf("plain quarterly: got %v", got)
	}
}

func TestNextExecution_AnnuallyClampsLeapDay(t *testing.T) {
	if got := NextExecution(date(2024, time.February, 29, 6, 15), FrequencyAnnually); !got.Equal(date(2025, time.February, 28, 6, 15)) {
		t.Fatalf("feb 29 clamp: got %v", got)
	}
	if got := NextExecution(date(2023, time.July, 4, 6, 15), FrequencyAnnually); !got.Equal(date(2024, time.July, 4, 6, 15)) {
		t.Fatalf("plain annual: got %v", got)
	}
}

func TestNextExecution_PreservesTimeOfDay(t *testing.T) {
	start := time.Date(2024, time.January, 31, 17, 42, 3, 500, time.UTC)
	got := NextExecution(start, FrequencyMonthly)
	h, m, s := got.Clock()
	if h != 17 || m != 42 || s != 3 || got.Nanosecond() != 500 {
		t.Fatalf("time-of-day not preserved: got %v", got)
	}
}

func TestNextExecution_MonotonicAcrossClampedCycles(t *testing.T) {
	// Advancing repeatedly must never move backwards, even through clamped months.
	cur := date(2024, time.January, 31, 9, 0)
	for i := 0; i < 24; i++ {
		next := NextExecution(cur, FrequencyMonthly)
		if !next.After(cur) {
			t.Fatalf("cycle %d: %v not after %v", i, next, cur)
		}
		cur = next
	}
}

func TestParseFrequency(t *testing.T) {
	if f, err := ParseFrequency(" Monthly "); err != nil || f != FrequencyMonthly {
		t.Fatalf("got %q, %v", f, err)
	}
	if _, err := ParseFrequency("fortnightly"); err == nil {
		t.Fatal("expected error for unknown frequency")
	}
}
