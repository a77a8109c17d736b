package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"coursepulse/internal/types"
)

// Note: mockDBTX and mockRow are defined in schedule_repo_test.go and
// reused here.

func TestAnchorRepository_AnchorTime(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAnchorRepository(db)
	ctx := context.Background()

	start := time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)
	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*time.Time) = start
			return nil
		},
	}

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sql := args.Get(1).(string)
			assert.Contains(t, sql, "ORDER BY start_time")
		}).
		Return(row)

	got, err := repo.AnchorTime(ctx, "ins_1", 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, start, *got)
	db.AssertExpectations(t)
}

func TestAnchorRepository_AnchorTime_NoBooking(t *testing.T) {
	// No booked session means no anchor; delays fall back to the computed
	// interval time.
	db := new(mockDBTX)
	repo := NewAnchorRepository(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	got, err := repo.AnchorTime(ctx, "ins_1", 7)
	require.NoError(t, err)
	assert.Nil(t, got)
	db.AssertExpectations(t)
}

func TestAnchorRepository_AnchorTime_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAnchorRepository(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: errors.New("connection refused")})

	_, err := repo.AnchorTime(ctx, "ins_1", 7)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
	db.AssertExpectations(t)
}
