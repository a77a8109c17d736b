package conditions

import (
	"context"

	"coursepulse/internal/types"
)

// CompletionCondition is satisfied when the user has completed every
// activity module listed in the setting's extra data ("module_ids").
type CompletionCondition struct {
	source types.CompletionSource
}

// NewCompletionCondition creates the activity completion condition plugin.
func NewCompletionCondition(source types.CompletionSource) *CompletionCondition {
	return &CompletionCondition{source: source}
}

// IsUserCompleted implements types.ConditionPlugin.
func (c *CompletionCondition) IsUserCompleted(ctx context.Context, setting types.ConditionSetting, userID int64) (bool, error) {
	moduleIDs, err := extraInt64Slice(setting.Extra, "module_ids")
	if err != nil {
		return false, err
	}
	if len(moduleIDs) == 0 {
		return false, nil
	}
	for _, moduleID := range moduleIDs {
		done, err := c.source.IsModuleCompleted(ctx, userID, moduleID)
		if err != nil {
			return false, err
		}
		if !done {
			return false, nil
		}
	}
	return true, nil
}
