package conditions

import (
	"context"
	"fmt"
	"sort"

	"coursepulse/internal/types"
)

// Engine aggregates an instance's condition settings through the registered
// plugins, applying the instance-level ANY/ALL operator.
type Engine struct {
	registry   *Registry
	enrolments types.EnrolmentService
	logger     types.Logger
}

// NewEngine creates a condition engine.
func NewEngine(registry *Registry, enrolments types.EnrolmentService, logger types.Logger) *Engine {
	return &Engine{
		registry:   registry,
		enrolments: enrolments,
		logger:     logger,
	}
}

// Evaluate reports whether the user qualifies under the instance's merged
// condition settings.
//
// Disabled conditions never count toward the enabled or satisfied totals.
// A FUTURE condition does not apply retroactively: an existing user whose
// enrolment was created before the condition's upcoming cutoff is exempt
// and the condition is skipped as vacuously satisfied. With the ANY
// operator the first satisfied condition short-circuits; with ALL the
// result is enabled == satisfied — deliberately, an instance with zero
// active conditions qualifies everyone.
func (e *Engine) Evaluate(ctx context.Context, eff *types.EffectiveConfig, userID int64, isNewUser bool) (bool, error) {
	operator := eff.TriggerOperator
	if operator == "" {
		operator = types.LogicAll
	}

	enabled, satisfied := 0, 0

	// Deterministic iteration keeps ANY short-circuit behavior stable.
	components := make([]string, 0, len(eff.Conditions))
	for component := range eff.Conditions {
		components = append(components, component)
	}
	sort.Strings(components)

	for _, component := range components {
		setting := eff.Conditions[component]
		if setting.Status <= types.ConditionDisabled {
			continue
		}

		if setting.Status == types.ConditionFuture && !isNewUser && setting.UpcomingTime != nil {
			created, err := e.enrolments.EnrolmentCreateTime(ctx, userID, eff.CourseID)
			if err != nil {
				return false, fmt.Errorf("looking up enrolment time for user %d: %w", userID, err)
			}
			if created != nil && created.Before(*setting.UpcomingTime) {
				continue
			}
		}

		enabled++

		plugin, ok := e.registry.Lookup(component)
		if !ok {
			// An unknown component cannot be satisfied; counting it enabled
			// keeps ALL from silently qualifying users on a bad config.
			e.logger.Warn("condition component has no registered plugin",
				"component", component,
				"instance_id", eff.InstanceID,
			)
			continue
		}

		done, err := plugin.IsUserCompleted(ctx, setting, userID)
		if err != nil {
			return false, fmt.Errorf("evaluating condition %q for user %d: %w", component, userID, err)
		}
		if done {
			satisfied++
			if operator == types.LogicAny {
				return true, nil
			}
		}
	}

	if operator == types.LogicAny {
		return satisfied >= 1, nil
	}
	return enabled == satisfied, nil
}
