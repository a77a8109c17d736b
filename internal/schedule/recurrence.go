// Package schedule implements the recurrence calculator: a pure function
// computing the next run timestamp of a notification schedule from an
// interval spec, a reference time, and an optional pre/post delay anchored
// to an externally supplied event time.
package schedule

import (
	"fmt"
	"time"

	"coursepulse/internal/types"
)

// NextRun computes the next due timestamp for a schedule.
//
// The interval result is derived from lastRun (falling back to now), except
// for IntervalOnce where an explicitly supplied expected time wins. Delays
// then shift the result: an explicit expected time and a looked-up anchor
// time are two mutually exclusive sources, explicit always winning; the
// anchor is only consulted when no expected time was given.
//
// Deterministic given its inputs; depends on now only when neither lastRun
// nor expected is supplied.
func NextRun(interval types.IntervalSpec, lastRun, expected *time.Time, delay types.DelaySpec, anchor, now *time.Time) (time.Time, error) {
	ref := time.Now().UTC()
	if now != nil {
		ref = *now
	}

	base := ref
	if lastRun != nil {
		base = *lastRun
	}

	var computed time.Time
	switch interval.Kind {
	case types.IntervalOnce:
		if expected != nil {
			computed = *expected
		} else {
			computed = ref
		}
	case types.IntervalDaily:
		computed = base.AddDate(0, 0, 1)
		var err error
		computed, err = atTimeOfDay(computed, interval.TimeOfDay)
		if err != nil {
			return time.Time{}, err
		}
	case types.IntervalWeekly:
		// Strictly after base: "next Monday" never means same-day.
		days := int(interval.Weekday-base.Weekday()+7) % 7
		if days == 0 {
			days = 7
		}
		computed = base.AddDate(0, 0, days)
		var err error
		computed, err = atTimeOfDay(computed, interval.TimeOfDay)
		if err != nil {
			return time.Time{}, err
		}
	case types.IntervalMonthly:
		var err error
		computed, err = nextMonthly(base, interval.MonthDate, interval.TimeOfDay)
		if err != nil {
			return time.Time{}, err
		}
	default:
		return time.Time{}, types.NewAppError(types.ErrCodeValidationInterval,
			fmt.Sprintf("unknown interval kind %q", interval.Kind), nil)
	}

	if delay.Kind == types.DelayNone || delay.Kind == "" {
		return computed, nil
	}

	shifted := computed
	if expected != nil {
		shifted = *expected
	} else if anchor != nil {
		shifted = *anchor
	}

	switch delay.Kind {
	case types.DelayAfter:
		return shifted.Add(delay.Duration), nil
	case types.DelayBefore:
		return shifted.Add(-delay.Duration), nil
	default:
		return time.Time{}, types.NewAppError(types.ErrCodeValidationInterval,
			fmt.Sprintf("unknown delay kind %q", delay.Kind), nil)
	}
}

// nextMonthly advances to the configured day of the following month.
// A month date of 31 means "end of month" regardless of month length, so a
// 30-day target month resolves to day 30 rather than rolling over.
func nextMonthly(base time.Time, monthDate int, timeOfDay string) (time.Time, error) {
	if monthDate < 1 {
		monthDate = 1
	}
	firstOfNext := time.Date(base.Year(), base.Month()+1, 1, 0, 0, 0, 0, base.Location())

	var target time.Time
	if monthDate == 31 {
		target = firstOfNext.AddDate(0, 1, 0).AddDate(0, 0, -1)
	} else {
		target = firstOfNext.AddDate(0, 0, monthDate-1)
	}
	return atTimeOfDay(target, timeOfDay)
}

// atTimeOfDay pins a date to the configured wall-clock time. An empty
// config keeps the date's existing time components.
func atTimeOfDay(t time.Time, timeOfDay string) (time.Time, error) {
	if timeOfDay == "" {
		return t, nil
	}
	hour, minute, err := parseTimeOfDay(timeOfDay)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, t.Location()), nil
}

// parseTimeOfDay parses a "HH:MM" string into hour and minute components.
// The input must be exactly in HH:MM format (5 characters). Trailing content
// is rejected to prevent ambiguity.
func parseTimeOfDay(s string) (int, int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, 0, types.NewAppError(types.ErrCodeValidationTimeOfDay,
			fmt.Sprintf("expected format HH:MM, got %q", s), nil)
	}
	var hour, minute int
	n, err := fmt.Sscanf(s, "%d:%d", &hour, &minute)
	if err != nil || n != 2 {
		return 0, 0, types.NewAppError(types.ErrCodeValidationTimeOfDay,
			fmt.Sprintf("expected format HH:MM, got %q", s), nil)
	}
	if hour < 0 || hour > 23 {
		return 0, 0, types.NewAppError(types.ErrCodeValidationTimeOfDay,
			fmt.Sprintf("hour %d out of range [0,23]", hour), nil)
	}
	if minute < 0 || minute > 59 {
		return 0, 0, types.NewAppError(types.ErrCodeValidationTimeOfDay,
			fmt.Sprintf("minute %d out of range [0,59]", minute), nil)
	}
	return hour, minute, nil
}
