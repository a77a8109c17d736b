package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursepulse/internal/types"
)

func ts(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC)
}

func TestNextRun_OncePrefersExpected(t *testing.T) {
	expected := ts(2026, 3, 10, 9, 0)
	now := ts(2026, 3, 1, 12, 0)

	got, err := NextRun(types.IntervalSpec{Kind: types.IntervalOnce}, nil, &expected, types.DelaySpec{}, nil, &now)
	require.NoError(t, err)
	assert.Equal(t, expected, got)
}

func TestNextRun_OnceFallsBackToNow(t *testing.T) {
	now := ts(2026, 3, 1, 12, 0)

	got, err := NextRun(types.IntervalSpec{Kind: types.IntervalOnce}, nil, nil, types.DelaySpec{}, nil, &now)
	require.NoError(t, err)
	assert.Equal(t, now, got)
}

func TestNextRun_DailyAdvancesOneDayAtConfiguredTime(t *testing.T) {
	last := ts(2026, 3, 1, 14, 30)

	got, err := NextRun(
		types.IntervalSpec{Kind: types.IntervalDaily, TimeOfDay: "08:15"},
		&last, nil, types.DelaySpec{}, nil, nil,
	)
	require.NoError(t, err)
	assert.Equal(t, ts(2026, 3, 2, 8, 15), got)
}

func TestNextRun_WeeklyIsStrictlyAfterBase(t *testing.T) {
	// 2026-03-02 is a Monday. Next Monday must be the 9th, never same-day.
	last := ts(2026, 3, 2, 10, 0)

	got, err := NextRun(
		types.IntervalSpec{Kind: types.IntervalWeekly, Weekday: time.Monday, TimeOfDay: "10:00"},
		&last, nil, types.DelaySpec{}, nil, nil,
	)
	require.NoError(t, err)
	assert.Equal(t, ts(2026, 3, 9, 10, 0), got)
}

func TestNextRun_WeeklyNearerWeekday(t *testing.T) {
	// From Monday 2026-03-02 the next Thursday is the 5th.
	last := ts(2026, 3, 2, 10, 0)

	got, err := NextRun(
		types.IntervalSpec{Kind: types.IntervalWeekly, Weekday: time.Thursday, TimeOfDay: "09:00"},
		&last, nil, types.DelaySpec{}, nil, nil,
	)
	require.NoError(t, err)
	assert.Equal(t, ts(2026, 3, 5, 9, 0), got)
}

func TestNextRun_MonthlyDate31ClampsToMonthEnd(t *testing.T) {
	// From March, date 31 means end of April: the 30th.
	last := ts(2026, 3, 15, 10, 0)

	got, err := NextRun(
		types.IntervalSpec{Kind: types.IntervalMonthly, MonthDate: 31, TimeOfDay: "10:00"},
		&last, nil, types.DelaySpec{}, nil, nil,
	)
	require.NoError(t, err)
	assert.Equal(t, ts(2026, 4, 30, 10, 0), got)
}

func TestNextRun_MonthlyDate31February(t *testing.T) {
	last := ts(2026, 1, 31, 10, 0)

	got, err := NextRun(
		types.IntervalSpec{Kind: types.IntervalMonthly, MonthDate: 31, TimeOfDay: "10:00"},
		&last, nil, types.DelaySpec{}, nil, nil,
	)
	require.NoError(t, err)
	assert.Equal(t, ts(2026, 2, 28, 10, 0), got)
}

func TestNextRun_MonthlyPlainDate(t *testing.T) {
	last := ts(2026, 3, 15, 10, 0)

	got, err := NextRun(
		types.IntervalSpec{Kind: types.IntervalMonthly, MonthDate: 5, TimeOfDay: "07:45"},
		&last, nil, types.DelaySpec{}, nil, nil,
	)
	require.NoError(t, err)
	assert.Equal(t, ts(2026, 4, 5, 7, 45), got)
}

func TestNextRun_DelayAfterShiftsAnchor(t *testing.T) {
	// With an anchor and no expected time, the delay applies to the anchor.
	last := ts(2026, 3, 1, 10, 0)
	anchor := ts(2026, 3, 20, 18, 0)

	got, err := NextRun(
		types.IntervalSpec{Kind: types.IntervalDaily, TimeOfDay: "10:00"},
		&last, nil,
		types.DelaySpec{Kind: types.DelayAfter, Duration: 2 * time.Hour},
		&anchor, nil,
	)
	require.NoError(t, err)
	assert.Equal(t, anchor.Add(2*time.Hour), got)
}

func TestNextRun_DelayBeforeExpectedWinsOverAnchor(t *testing.T) {
	expected := ts(2026, 3, 25, 9, 0)
	anchor := ts(2026, 3, 20, 18, 0)

	got, err := NextRun(
		types.IntervalSpec{Kind: types.IntervalOnce},
		nil, &expected,
		types.DelaySpec{Kind: types.DelayBefore, Duration: 24 * time.Hour},
		&anchor, nil,
	)
	require.NoError(t, err)
	assert.Equal(t, expected.Add(-24*time.Hour), got)
}

func TestNextRun_DelayWithoutAnchorShiftsComputed(t *testing.T) {
	last := ts(2026, 3, 1, 10, 0)

	got, err := NextRun(
		types.IntervalSpec{Kind: types.IntervalDaily, TimeOfDay: "10:00"},
		&last, nil,
		types.DelaySpec{Kind: types.DelayBefore, Duration: time.Hour},
		nil, nil,
	)
	require.NoError(t, err)
	assert.Equal(t, ts(2026, 3, 2, 9, 0), got)
}

func TestNextRun_UnknownIntervalKind(t *testing.T) {
	_, err := NextRun(types.IntervalSpec{Kind: "hourly"}, nil, nil, types.DelaySpec{}, nil, nil)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationInterval, appErr.Code)
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		hour    int
		minute  int
		wantErr bool
	}{
		{"08:15", 8, 15, false},
		{"00:00", 0, 0, false},
		{"23:59", 23, 59, false},
		{"24:00", 0, 0, true},
		{"12:60", 0, 0, true},
		{"9:15", 0, 0, true},
		{"09:15:30", 0, 0, true},
		{"", 0, 0, true},
		{"ab:cd", 0, 0, true},
	}

	for _, tc := range tests {
		hour, minute, err := parseTimeOfDay(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.hour, hour, "input %q", tc.in)
		assert.Equal(t, tc.minute, minute, "input %q", tc.in)
	}
}
