package conditions

import (
	"context"
	"encoding/json"
	"fmt"

	"coursepulse/internal/types"
)

// CohortSource reports site-level cohort membership.
type CohortSource interface {
	IsMemberOfAny(ctx context.Context, userID int64, cohortIDs []int64) (bool, error)
}

// CohortCondition is satisfied when the user belongs to at least one of the
// cohorts listed in the setting's extra data ("cohort_ids").
type CohortCondition struct {
	source CohortSource
}

// NewCohortCondition creates the cohort membership condition plugin.
func NewCohortCondition(source CohortSource) *CohortCondition {
	return &CohortCondition{source: source}
}

// IsUserCompleted implements types.ConditionPlugin.
func (c *CohortCondition) IsUserCompleted(ctx context.Context, setting types.ConditionSetting, userID int64) (bool, error) {
	cohortIDs, err := extraInt64Slice(setting.Extra, "cohort_ids")
	if err != nil {
		return false, err
	}
	if len(cohortIDs) == 0 {
		// No cohorts configured means nobody matches.
		return false, nil
	}
	return c.source.IsMemberOfAny(ctx, userID, cohortIDs)
}

// extraInt64Slice reads an int64 slice out of a condition's extra data.
// JSONB round-trips numbers as float64, so both forms are accepted.
func extraInt64Slice(extra map[string]any, key string) ([]int64, error) {
	raw, ok := extra[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []int64:
		return v, nil
	case []any:
		out := make([]int64, 0, len(v))
		for _, item := range v {
			switch n := item.(type) {
			case float64:
				out = append(out, int64(n))
			case int64:
				out = append(out, n)
			case json.Number:
				i, err := n.Int64()
				if err != nil {
					return nil, fmt.Errorf("condition extra %q: %w", key, err)
				}
				out = append(out, i)
			default:
				return nil, fmt.Errorf("condition extra %q: unsupported element type %T", key, item)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("condition extra %q: unsupported type %T", key, raw)
	}
}
