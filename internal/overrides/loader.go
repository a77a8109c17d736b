package overrides

import (
	"context"

	"coursepulse/internal/types"
)

// InstanceSource is the persistence surface the loader reads from.
// Implemented by db.InstanceRepository.
type InstanceSource interface {
	InstanceWithTemplate(ctx context.Context, id string) (*types.Instance, *types.Template, error)
	ConditionsForInstance(ctx context.Context, id string) ([]types.ConditionSetting, error)
}

// Loader materializes an instance's effective configuration on demand.
// Callers hold and pass the resolved object; no process-wide current
// instance is cached.
type Loader struct {
	source InstanceSource
}

// NewLoader creates a Loader over the given source.
func NewLoader(source InstanceSource) *Loader {
	return &Loader{source: source}
}

// Effective loads an instance and its template and resolves the merged
// configuration: action fields field-by-field over template defaults, and
// condition settings over the template's trigger-condition list. Each
// merged condition carries the instance's course id in its extra data so
// course-scoped plugins can evaluate without another lookup.
func (l *Loader) Effective(ctx context.Context, instanceID string) (*types.EffectiveConfig, error) {
	instance, template, err := l.source.InstanceWithTemplate(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	instanceConds, err := l.source.ConditionsForInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	eff := Resolve(instance, template)
	eff.Conditions = MergeConditions(template.TriggerConditions, instanceConds)
	for component, setting := range eff.Conditions {
		if setting.Extra == nil {
			setting.Extra = make(map[string]any, 1)
		}
		setting.Extra["course_id"] = instance.CourseID
		eff.Conditions[component] = setting
	}
	return &eff, nil
}
