package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"coursepulse/internal/types"
)

// Note: mockDBTX and mockRow are defined in schedule_repo_test.go and
// reused here.

// recipientMockRows implements pgx.Rows for UsersWithRoles.
type recipientMockRows struct {
	data   []types.Recipient
	idx    int
	closed bool
	errVal error
}

func (r *recipientMockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *recipientMockRows) Scan(dest ...any) error {
	row := r.data[r.idx]
	*dest[0].(*int64) = row.ID
	*dest[1].(*string) = row.Email
	*dest[2].(*string) = row.FullName
	return nil
}

func (r *recipientMockRows) Close()                                       { r.closed = true }
func (r *recipientMockRows) Err() error                                   { return r.errVal }
func (r *recipientMockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *recipientMockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *recipientMockRows) RawValues() [][]byte                          { return nil }
func (r *recipientMockRows) Values() ([]any, error)                       { return nil, nil }
func (r *recipientMockRows) Conn() *pgx.Conn                              { return nil }

// userIDMockRows implements pgx.Rows for EnrolledUserIDs.
type userIDMockRows struct {
	data   []int64
	idx    int
	closed bool
	errVal error
}

func (r *userIDMockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *userIDMockRows) Scan(dest ...any) error {
	*dest[0].(*int64) = r.data[r.idx]
	return nil
}

func (r *userIDMockRows) Close()                                       { r.closed = true }
func (r *userIDMockRows) Err() error                                   { return r.errVal }
func (r *userIDMockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *userIDMockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *userIDMockRows) RawValues() [][]byte                          { return nil }
func (r *userIDMockRows) Values() ([]any, error)                       { return nil, nil }
func (r *userIDMockRows) Conn() *pgx.Conn                              { return nil }

func TestEnrolmentRepository_UsersWithRoles(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEnrolmentRepository(db)
	ctx := context.Background()

	rows := &recipientMockRows{
		data: []types.Recipient{
			{ID: 3, Email: "teach@example.org", FullName: "Pat Quinn"},
		},
		idx: -1,
	}

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sql := args.Get(1).(string)
			assert.Contains(t, sql, "role_assignments")
			assert.Contains(t, sql, "NOT e.suspended")
		}).
		Return(rows, nil)

	results, err := repo.UsersWithRoles(ctx, 55, []int64{3, 4})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "teach@example.org", results[0].Email)
	db.AssertExpectations(t)
}

func TestEnrolmentRepository_UsersWithRoles_NoRoles(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEnrolmentRepository(db)
	ctx := context.Background()

	results, err := repo.UsersWithRoles(ctx, 55, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	db.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything)
}

func TestEnrolmentRepository_EnrolmentCreateTime(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEnrolmentRepository(db)
	ctx := context.Background()

	created := time.Date(2026, 1, 10, 14, 0, 0, 0, time.UTC)
	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*time.Time) = created
			return nil
		},
	}

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(row)

	got, err := repo.EnrolmentCreateTime(ctx, 7, 55)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created, *got)
	db.AssertExpectations(t)
}

func TestEnrolmentRepository_EnrolmentCreateTime_NoEnrolment(t *testing.T) {
	// No enrolment is not an error: the future-condition exemption check
	// treats a nil time as "no exemption applies".
	db := new(mockDBTX)
	repo := NewEnrolmentRepository(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	got, err := repo.EnrolmentCreateTime(ctx, 7, 55)
	require.NoError(t, err)
	assert.Nil(t, got)
	db.AssertExpectations(t)
}

func TestEnrolmentRepository_EnrolledUserIDs(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEnrolmentRepository(db)
	ctx := context.Background()

	rows := &userIDMockRows{data: []int64{7, 8, 9}, idx: -1}

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(rows, nil)

	ids, err := repo.EnrolledUserIDs(ctx, 55)
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 8, 9}, ids)
	db.AssertExpectations(t)
}

func TestEnrolmentRepository_Recipient_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEnrolmentRepository(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.Recipient(ctx, 404)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundUser, appErr.Code)
	db.AssertExpectations(t)
}
