package overrides

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursepulse/internal/types"
)

type fakeInstanceSource struct {
	instance *types.Instance
	template *types.Template
	conds    []types.ConditionSetting
}

func (f *fakeInstanceSource) InstanceWithTemplate(_ context.Context, _ string) (*types.Instance, *types.Template, error) {
	return f.instance, f.template, nil
}

func (f *fakeInstanceSource) ConditionsForInstance(_ context.Context, _ string) ([]types.ConditionSetting, error) {
	return f.conds, nil
}

func TestEffective_MergesOverridesAndConditions(t *testing.T) {
	tpl := baseTemplate()
	tpl.TriggerConditions = types.ConditionMap{
		"cohort": {Status: types.ConditionAll, Extra: map[string]any{"cohort_ids": []int64{3}}},
	}
	source := &fakeInstanceSource{
		instance: &types.Instance{
			ID:         "ins_1",
			TemplateID: tpl.ID,
			CourseID:   42,
			Status:     types.StatusEnabled,
			Overrides: types.InstanceOverride{
				Subject: types.Override("Overridden subject"),
			},
		},
		template: tpl,
		conds: []types.ConditionSetting{
			{Component: "completion", Status: types.ConditionAll, Extra: map[string]any{"module_ids": []int64{100}}},
		},
	}

	eff, err := NewLoader(source).Effective(context.Background(), "ins_1")
	require.NoError(t, err)

	assert.Equal(t, "Overridden subject", eff.Config.Subject)
	assert.Equal(t, tpl.Config.Recipients, eff.Config.Recipients)

	require.Len(t, eff.Conditions, 2)
	assert.False(t, eff.Conditions["cohort"].IsOverridden)
	assert.True(t, eff.Conditions["completion"].IsOverridden)

	// Every merged condition carries the course id for course-scoped plugins.
	for component, setting := range eff.Conditions {
		assert.Equal(t, int64(42), setting.Extra["course_id"], "component %s", component)
	}
}
