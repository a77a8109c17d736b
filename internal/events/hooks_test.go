package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursepulse/internal/types"
)

type mockClock struct {
	now time.Time
}

func (c *mockClock) Now() time.Time { return c.now }

type mockLogger struct{}

func (l *mockLogger) Info(msg string, args ...any)  {}
func (l *mockLogger) Error(msg string, args ...any) {}
func (l *mockLogger) Warn(msg string, args ...any)  {}
func (l *mockLogger) With(args ...any) types.Logger { return l }

type upsertCall struct {
	instanceID  string
	userID      int64
	at          time.Time
	notifyCount int
	isNew       bool
}

type fakeStore struct {
	mu       sync.Mutex
	upserts  []upsertCall
	disabled []int64
	removed  []int64
}

func (s *fakeStore) Upsert(_ context.Context, instanceID string, userID int64, _ types.IntervalKind, at time.Time, notifyCount int, isNewSchedule bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts = append(s.upserts, upsertCall{instanceID, userID, at, notifyCount, isNewSchedule})
	return "sch_1", nil
}

func (s *fakeStore) Disable(_ context.Context, _ string, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled = append(s.disabled, userID)
	return nil
}

func (s *fakeStore) RemoveForUserInCourse(_ context.Context, _, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, userID)
	return nil
}

type fakeConfigs struct {
	eff *types.EffectiveConfig
}

func (f *fakeConfigs) Effective(_ context.Context, _ string) (*types.EffectiveConfig, error) {
	return f.eff, nil
}

// fakeEvaluator qualifies the users in the allow set.
type fakeEvaluator struct {
	allow map[int64]bool
}

func (f *fakeEvaluator) Evaluate(_ context.Context, _ *types.EffectiveConfig, userID int64, _ bool) (bool, error) {
	return f.allow[userID], nil
}

type fakeInstances struct {
	byCourse   []*types.Instance
	byTemplate []*types.Instance
}

func (f *fakeInstances) ListByCourse(_ context.Context, _ int64) ([]*types.Instance, error) {
	return f.byCourse, nil
}

func (f *fakeInstances) ListByTemplate(_ context.Context, _ string) ([]*types.Instance, error) {
	return f.byTemplate, nil
}

type fakeEnrolments struct {
	userIDs []int64
}

func (f *fakeEnrolments) UsersWithRoles(_ context.Context, _ int64, _ []int64) ([]types.Recipient, error) {
	return nil, nil
}
func (f *fakeEnrolments) EnrolmentCreateTime(_ context.Context, _, _ int64) (*time.Time, error) {
	return nil, nil
}
func (f *fakeEnrolments) EnrolledUserIDs(_ context.Context, _ int64) ([]int64, error) {
	return f.userIDs, nil
}
func (f *fakeEnrolments) Recipient(_ context.Context, _ int64) (*types.Recipient, error) {
	return nil, nil
}

type fakeAnchors struct{}

func (fakeAnchors) AnchorTime(_ context.Context, _ string, _ int64) (*time.Time, error) {
	return nil, nil
}

func testEff() *types.EffectiveConfig {
	return &types.EffectiveConfig{
		InstanceID: "ins_1",
		CourseID:   42,
		Status:     types.StatusEnabled,
		Config: types.NotificationConfig{
			Interval: types.IntervalSpec{Kind: types.IntervalDaily, TimeOfDay: "09:00"},
		},
	}
}

func newTestHooks(store *fakeStore, configs ConfigSource, eval Evaluator, instances InstanceLister, enrolments types.EnrolmentService, now time.Time) *Hooks {
	return NewHooks(configs, eval, store, instances, enrolments, fakeAnchors{}, &mockClock{now: now}, &mockLogger{})
}

func TestHandleUserEnrolled_QualifyingUserGetsSchedule(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{}
	instances := &fakeInstances{byCourse: []*types.Instance{
		{ID: "ins_1", Status: types.StatusEnabled},
	}}
	hooks := newTestHooks(store, &fakeConfigs{eff: testEff()}, &fakeEvaluator{allow: map[int64]bool{7: true}}, instances, &fakeEnrolments{}, now)

	require.NoError(t, hooks.HandleUserEnrolled(context.Background(), 42, 7))

	require.Len(t, store.upserts, 1)
	up := store.upserts[0]
	assert.Equal(t, "ins_1", up.instanceID)
	assert.Equal(t, int64(7), up.userID)
	assert.Equal(t, 0, up.notifyCount)
	assert.True(t, up.isNew, "enrolment qualification is a new-schedule upsert")
	assert.Equal(t, time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC), up.at)
}

func TestHandleUserEnrolled_NonQualifyingUserGetsNothing(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{}
	instances := &fakeInstances{byCourse: []*types.Instance{
		{ID: "ins_1", Status: types.StatusEnabled},
	}}
	hooks := newTestHooks(store, &fakeConfigs{eff: testEff()}, &fakeEvaluator{allow: nil}, instances, &fakeEnrolments{}, now)

	require.NoError(t, hooks.HandleUserEnrolled(context.Background(), 42, 7))
	assert.Empty(t, store.upserts)
	assert.Empty(t, store.disabled, "enrolment of a non-qualifying user is a no-op, not a disable")
}

func TestHandleUserEnrolled_SkipsDisabledInstances(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{}
	instances := &fakeInstances{byCourse: []*types.Instance{
		{ID: "ins_1", Status: types.StatusDisabled},
	}}
	hooks := newTestHooks(store, &fakeConfigs{eff: testEff()}, &fakeEvaluator{allow: map[int64]bool{7: true}}, instances, &fakeEnrolments{}, now)

	require.NoError(t, hooks.HandleUserEnrolled(context.Background(), 42, 7))
	assert.Empty(t, store.upserts)
}

func TestHandleUserUnenrolled_RemovesActiveSchedules(t *testing.T) {
	store := &fakeStore{}
	hooks := newTestHooks(store, &fakeConfigs{eff: testEff()}, &fakeEvaluator{}, &fakeInstances{}, &fakeEnrolments{}, time.Now().UTC())

	require.NoError(t, hooks.HandleUserUnenrolled(context.Background(), 42, 7))
	assert.Equal(t, []int64{7}, store.removed)
}

func TestHandleInstanceSaved_RequalifiesWholeRoster(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{}
	enrolments := &fakeEnrolments{userIDs: []int64{7, 8, 9}}
	// 7 and 9 still qualify; 8 no longer does.
	eval := &fakeEvaluator{allow: map[int64]bool{7: true, 9: true}}
	hooks := newTestHooks(store, &fakeConfigs{eff: testEff()}, eval, &fakeInstances{}, enrolments, now)

	require.NoError(t, hooks.HandleInstanceSaved(context.Background(), "ins_1"))

	assert.Len(t, store.upserts, 2)
	for _, up := range store.upserts {
		assert.False(t, up.isNew, "requalification must not resurrect sent once-only pairs")
	}
	assert.Equal(t, []int64{8}, store.disabled)
}

func TestHandleTemplateSaved_FansOutToInstances(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{}
	enrolments := &fakeEnrolments{userIDs: []int64{7}}
	instances := &fakeInstances{byTemplate: []*types.Instance{
		{ID: "ins_1"},
		{ID: "ins_2"},
	}}
	hooks := newTestHooks(store, &fakeConfigs{eff: testEff()}, &fakeEvaluator{allow: map[int64]bool{7: true}}, instances, enrolments, now)

	require.NoError(t, hooks.HandleTemplateSaved(context.Background(), "tpl_1"))

	// One requalifying upsert per bound instance.
	assert.Len(t, store.upserts, 2)
}
