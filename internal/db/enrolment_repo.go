package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"coursepulse/internal/types"
)

// EnrolmentRepository implements types.EnrolmentService over the host
// platform's enrolment tables (users, user_enrolments, role_assignments).
// Role and enrolment data is owned by the platform; this repository only
// reads it.
type EnrolmentRepository struct {
	db DBTX
}

// NewEnrolmentRepository creates a new EnrolmentRepository backed by the
// given database connection (pool or transaction).
func NewEnrolmentRepository(db DBTX) *EnrolmentRepository {
	return &EnrolmentRepository{db: db}
}

// UsersWithRoles returns the active, non-suspended enrolled users holding
// any of the given roles in the course.
func (r *EnrolmentRepository) UsersWithRoles(ctx context.Context, courseID int64, roleIDs []int64) ([]types.Recipient, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT u.id, u.email, u.full_name
		 FROM users u
		 JOIN role_assignments ra ON ra.user_id = u.id AND ra.course_id = $1
		 JOIN user_enrolments e ON e.user_id = u.id AND e.course_id = $1
		 WHERE ra.role_id = ANY($2)
		   AND e.status = $3
		   AND NOT e.suspended
		 ORDER BY u.id`,
		courseID,
		roleIDs,
		string(types.EnrolmentActive),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query users with roles", err)
	}
	defer rows.Close()

	var results []types.Recipient
	for rows.Next() {
		var rec types.Recipient
		if err := rows.Scan(&rec.ID, &rec.Email, &rec.FullName); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan recipient row", err)
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating recipient rows", err)
	}
	return results, nil
}

// EnrolmentCreateTime returns when the user's enrolment in the course was
// created, or nil if no enrolment exists.
func (r *EnrolmentRepository) EnrolmentCreateTime(ctx context.Context, userID, courseID int64) (*time.Time, error) {
	var created time.Time
	err := r.db.QueryRow(ctx,
		`SELECT time_created FROM user_enrolments
		 WHERE user_id = $1 AND course_id = $2`,
		userID, courseID,
	).Scan(&created)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query enrolment time", err)
	}
	return &created, nil
}

// EnrolledUserIDs lists active, non-suspended enrolled users of a course.
func (r *EnrolmentRepository) EnrolledUserIDs(ctx context.Context, courseID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id FROM user_enrolments
		 WHERE course_id = $1 AND status = $2 AND NOT suspended
		 ORDER BY user_id`,
		courseID,
		string(types.EnrolmentActive),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list enrolled users", err)
	}
	defer rows.Close()

	var results []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan user id", err)
		}
		results = append(results, id)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating user ids", err)
	}
	return results, nil
}

// Recipient resolves a single user for addressing.
func (r *EnrolmentRepository) Recipient(ctx context.Context, userID int64) (*types.Recipient, error) {
	var rec types.Recipient
	err := r.db.QueryRow(ctx,
		`SELECT id, email, full_name FROM users WHERE id = $1`,
		userID,
	).Scan(&rec.ID, &rec.Email, &rec.FullName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundUser,
			fmt.Sprintf("user %d not found", userID), err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get user", err)
	}
	return &rec, nil
}
