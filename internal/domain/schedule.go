/**
 * @description
 * Calendar math for recurring transfers. NextExecution advances a schedule date
 * by one cycle of its frequency while preserving the original time-of-day.
 *
 * @notes
 * - Month and year additions clamp to the last day of the target month instead of
 *   rolling over (Jan 31 + 1 month is Feb 28/29, not Mar 3). time.AddDate rolls,
 *   which breaks billing-cycle semantics, so the month arithmetic is done by hand.
 */

package domain

import (
	"fmt"
	"strings"
	"time"
)

// Recurring transfer frequencies.
const (
	FrequencyDaily     = "daily"
	FrequencyWeekly    = "weekly"
	FrequencyMonthly   = "monthly"
	FrequencyQuarterly = "quarterly"
	FrequencyAnnually  = "annually"
)

// ParseFrequency normalizes and validates a frequency string.
func ParseFrequency(raw string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(raw)); f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyAnnually:
		return f, nil
	default:
		return "", fmt.Errorf("unknown frequency %q", raw)
	}
}

// NextExecution returns the next execution date one cycle of frequency after
// date. The time-of-day component of date is preserved. An unknown frequency
// returns date unchanged; callers validate with ParseFrequency first.
func NextExecution(date time.Time, frequency string) time.Time {
	switch frequency {
	case FrequencyDaily:
		return date.AddDate(0, 0, 1)
	case FrequencyWeekly:
		return date.AddDate(0, 0, 7)
	case FrequencyMonthly:
		return addMonthsClamped(date, 1)
	case FrequencyQuarterly:
		return addMonthsClamped(date, 3)
	case FrequencyAnnually:
		return addMonthsClamped(date, 12)
	}
	return date
}

// addMonthsClamped adds n calendar months, clamping the day-of-month to the last
// day of the target month when the original day does not exist there. This also
// covers Feb 29 + 12 months landing on Feb 28 in a non-leap year.
func addMonthsClamped(date time.Time, n int) time.Time {
	year, month, day := date.Date()

	total := int(month) - 1 + n
	targetYear := year + total/12
	targetMonth := time.Month(total%12 + 1)

	if last := lastDayOfMonth(targetYear, targetMonth); day > last {
		day = last
	}

	hour, min, sec := date.Clock()
	return time.Date(targetYear, targetMonth, day, hour, min, sec, date.Nanosecond(), date.Location())
}

func lastDayOfMonth(year int, month time.Month) int {
	// Day 0 of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
