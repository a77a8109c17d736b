package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"coursepulse/internal/types"
)

// Note: mockDBTX and mockRow are defined in schedule_repo_test.go and
// reused here.

func boolRow(v bool) *mockRow {
	return &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*bool) = v
			return nil
		},
	}
}

func TestCohortRepository_IsMemberOfAny(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCohortRepository(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(boolRow(true))

	ok, err := repo.IsMemberOfAny(ctx, 7, []int64{3, 5})
	require.NoError(t, err)
	assert.True(t, ok)
	db.AssertExpectations(t)
}

func TestCohortRepository_IsMemberOfAny_NoCohorts(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCohortRepository(db)
	ctx := context.Background()

	ok, err := repo.IsMemberOfAny(ctx, 7, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	db.AssertNotCalled(t, "QueryRow", mock.Anything, mock.Anything, mock.Anything)
}

func TestCompletionRepository_IsModuleCompleted(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCompletionRepository(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(boolRow(false))

	done, err := repo.IsModuleCompleted(ctx, 7, 12)
	require.NoError(t, err)
	assert.False(t, done)
	db.AssertExpectations(t)
}

func TestCourseRepository_GetByID(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCourseRepository(db)
	ctx := context.Background()

	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*int64) = 55
			*dest[1].(*string) = "Biology 101"
			*dest[2].(*bool) = true
			*dest[3].(*int64) = 2
			return nil
		},
	}

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(row)

	c, err := repo.GetByID(ctx, 55)
	require.NoError(t, err)
	assert.Equal(t, "Biology 101", c.FullName)
	assert.True(t, c.Visible)
	db.AssertExpectations(t)
}

func TestModuleRepository_ModuleIntro_MissingModule(t *testing.T) {
	// A missing module degrades to empty content rather than an error; the
	// renderer omits the dynamic section.
	db := new(mockDBTX)
	repo := NewModuleRepository(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	intro, err := repo.ModuleIntro(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, intro)
	db.AssertExpectations(t)
}

func TestModuleRepository_ModuleIntro_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewModuleRepository(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: errors.New("connection refused")})

	_, err := repo.ModuleIntro(ctx, 12)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
	db.AssertExpectations(t)
}
