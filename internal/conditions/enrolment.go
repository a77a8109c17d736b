package conditions

import (
	"context"
	"fmt"
	"time"

	"coursepulse/internal/types"
)

// EnrolmentCondition is satisfied when the user holds an active enrolment
// in the instance's course, optionally only after a configured number of
// seconds since the enrolment was created ("seconds" in the extra data).
type EnrolmentCondition struct {
	enrolments types.EnrolmentService
	clock      types.Clock
}

// NewEnrolmentCondition creates the enrolment timing condition plugin.
func NewEnrolmentCondition(enrolments types.EnrolmentService, clock types.Clock) *EnrolmentCondition {
	return &EnrolmentCondition{enrolments: enrolments, clock: clock}
}

// IsUserCompleted implements types.ConditionPlugin. The course the setting
// belongs to travels in the extra data as "course_id", populated when the
// condition map is merged for an instance.
func (c *EnrolmentCondition) IsUserCompleted(ctx context.Context, setting types.ConditionSetting, userID int64) (bool, error) {
	courseID, err := extraInt64(setting.Extra, "course_id")
	if err != nil {
		return false, err
	}
	created, err := c.enrolments.EnrolmentCreateTime(ctx, userID, courseID)
	if err != nil {
		return false, err
	}
	if created == nil {
		return false, nil
	}

	seconds, err := extraInt64(setting.Extra, "seconds")
	if err != nil {
		return false, err
	}
	if seconds <= 0 {
		return true, nil
	}
	return !c.clock.Now().Before(created.Add(time.Duration(seconds) * time.Second)), nil
}

// extraInt64 reads a single integer out of a condition's extra data,
// returning zero when the key is absent.
func extraInt64(extra map[string]any, key string) (int64, error) {
	raw, ok := extra[key]
	if !ok || raw == nil {
		return 0, nil
	}
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("condition extra %q: unsupported type %T", key, raw)
	}
}
