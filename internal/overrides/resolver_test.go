package overrides

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursepulse/internal/types"
)

func baseTemplate() *types.Template {
	return &types.Template{
		ID:              "tpl_1",
		Title:           "Welcome sequence",
		Status:          types.StatusEnabled,
		TriggerOperator: types.LogicAll,
		Config: types.NotificationConfig{
			Recipients:    []int64{5},
			Subject:       "Welcome to {{course_fullname}}",
			StaticContent: "<p>Hello</p>",
			SenderPolicy:  types.SenderCourseTeacher,
			Interval:      types.IntervalSpec{Kind: types.IntervalDaily, TimeOfDay: "09:00"},
			NotifyLimit:   3,
		},
	}
}

func TestResolve_InheritedFallsBackToTemplate(t *testing.T) {
	in := &types.Instance{ID: "ins_1", TemplateID: "tpl_1", CourseID: 42, Status: types.StatusEnabled}

	eff := Resolve(in, baseTemplate())

	assert.Equal(t, "ins_1", eff.InstanceID)
	assert.Equal(t, int64(42), eff.CourseID)
	assert.Equal(t, "Welcome to {{course_fullname}}", eff.Config.Subject)
	assert.Equal(t, 3, eff.Config.NotifyLimit)
	assert.Equal(t, types.LogicAll, eff.TriggerOperator)
}

func TestResolve_OverriddenFieldWins(t *testing.T) {
	in := &types.Instance{
		ID:         "ins_1",
		TemplateID: "tpl_1",
		CourseID:   42,
		Overrides: types.InstanceOverride{
			Subject:     types.Override("Course-specific subject"),
			NotifyLimit: types.Override(1),
		},
	}

	eff := Resolve(in, baseTemplate())

	assert.Equal(t, "Course-specific subject", eff.Config.Subject)
	assert.Equal(t, 1, eff.Config.NotifyLimit)
	// Untouched fields still inherit.
	assert.Equal(t, []int64{5}, eff.Config.Recipients)
}

func TestResolve_ClearedFieldForcesEmpty(t *testing.T) {
	in := &types.Instance{
		ID:         "ins_1",
		TemplateID: "tpl_1",
		Overrides: types.InstanceOverride{
			StaticContent: types.Clear[string](),
			NotifyLimit:   types.Clear[int](),
		},
	}

	eff := Resolve(in, baseTemplate())

	assert.Equal(t, "", eff.Config.StaticContent)
	assert.Equal(t, 0, eff.Config.NotifyLimit, "cleared limit means unlimited, not the template's 3")
}

func TestResolve_OverriddenZeroIsNotInherited(t *testing.T) {
	in := &types.Instance{
		ID:         "ins_1",
		TemplateID: "tpl_1",
		Overrides: types.InstanceOverride{
			NotifyLimit: types.Override(0),
		},
	}

	eff := Resolve(in, baseTemplate())
	assert.Equal(t, 0, eff.Config.NotifyLimit)
}

func TestResolve_TriggerOperatorOverride(t *testing.T) {
	in := &types.Instance{
		ID:         "ins_1",
		TemplateID: "tpl_1",
		Overrides: types.InstanceOverride{
			TriggerOperator: types.Override(types.LogicAny),
		},
	}

	eff := Resolve(in, baseTemplate())
	assert.Equal(t, types.LogicAny, eff.TriggerOperator)
}

func TestMergeConditions(t *testing.T) {
	upcoming := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	templateConds := types.ConditionMap{
		"cohort":     {Status: types.ConditionAll, Extra: map[string]any{"cohort_ids": []int64{7}}},
		"completion": {Status: types.ConditionDisabled},
	}
	instanceConds := []types.ConditionSetting{
		{Component: "completion", Status: types.ConditionFuture, UpcomingTime: &upcoming},
	}

	merged := MergeConditions(templateConds, instanceConds)

	require.Len(t, merged, 2)

	cohort := merged["cohort"]
	assert.False(t, cohort.IsOverridden)
	assert.Equal(t, types.ConditionAll, cohort.Status)
	assert.Equal(t, "cohort", cohort.Component)

	completion := merged["completion"]
	assert.True(t, completion.IsOverridden)
	assert.Equal(t, types.ConditionFuture, completion.Status)
	require.NotNil(t, completion.UpcomingTime)
	assert.Equal(t, upcoming, *completion.UpcomingTime)
}

func TestMergeConditions_InstanceOnlyComponent(t *testing.T) {
	merged := MergeConditions(nil, []types.ConditionSetting{
		{Component: "enrolment", Status: types.ConditionAll},
	})

	require.Len(t, merged, 1)
	assert.True(t, merged["enrolment"].IsOverridden)
}

type fakeOverrideStore struct {
	instanceID string
	fields     []string
}

func (s *fakeOverrideStore) ClearOverrideFields(_ context.Context, instanceID string, fields []string) error {
	s.instanceID = instanceID
	s.fields = fields
	return nil
}

func TestRemoveOverrides_ValidFields(t *testing.T) {
	store := &fakeOverrideStore{}
	r := NewResolver(store)

	err := r.RemoveOverrides(context.Background(), "ins_1", []string{"subject", "notify_limit"})
	require.NoError(t, err)
	assert.Equal(t, "ins_1", store.instanceID)
	assert.Equal(t, []string{"subject", "notify_limit"}, store.fields)
}

func TestRemoveOverrides_UnknownFieldRejected(t *testing.T) {
	store := &fakeOverrideStore{}
	r := NewResolver(store)

	err := r.RemoveOverrides(context.Background(), "ins_1", []string{"subject", "bogus"})
	require.Error(t, err)
	assert.Empty(t, store.instanceID, "store must not be touched on validation failure")
}

func TestRemoveOverrides_EmptyIsNoop(t *testing.T) {
	store := &fakeOverrideStore{}
	r := NewResolver(store)

	require.NoError(t, r.RemoveOverrides(context.Background(), "ins_1", nil))
	assert.Empty(t, store.instanceID)
}
