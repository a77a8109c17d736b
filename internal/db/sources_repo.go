package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"coursepulse/internal/types"
)

// CohortRepository implements conditions.CohortSource over the platform's
// cohort_members table.
type CohortRepository struct {
	db DBTX
}

// NewCohortRepository creates a new CohortRepository backed by the given
// database connection (pool or transaction).
func NewCohortRepository(db DBTX) *CohortRepository {
	return &CohortRepository{db: db}
}

// IsMemberOfAny reports whether the user belongs to at least one of the
// given cohorts.
func (r *CohortRepository) IsMemberOfAny(ctx context.Context, userID int64, cohortIDs []int64) (bool, error) {
	if len(cohortIDs) == 0 {
		return false, nil
	}
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM cohort_members
			WHERE user_id = $1 AND cohort_id = ANY($2)
		 )`,
		userID, cohortIDs,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check cohort membership", err)
	}
	return exists, nil
}

// CompletionRepository implements types.CompletionSource over the
// platform's module_completions table.
type CompletionRepository struct {
	db DBTX
}

// NewCompletionRepository creates a new CompletionRepository backed by the
// given database connection (pool or transaction).
func NewCompletionRepository(db DBTX) *CompletionRepository {
	return &CompletionRepository{db: db}
}

// IsModuleCompleted reports whether the user has completed the activity
// module.
func (r *CompletionRepository) IsModuleCompleted(ctx context.Context, userID, moduleID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM module_completions
			WHERE user_id = $1 AND module_id = $2 AND completed
		 )`,
		userID, moduleID,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check module completion", err)
	}
	return exists, nil
}

// CourseRepository provides the minimal course projection dispatch needs.
type CourseRepository struct {
	db DBTX
}

// NewCourseRepository creates a new CourseRepository backed by the given
// database connection (pool or transaction).
func NewCourseRepository(db DBTX) *CourseRepository {
	return &CourseRepository{db: db}
}

// GetByID retrieves a course.
func (r *CourseRepository) GetByID(ctx context.Context, id int64) (*types.Course, error) {
	var c types.Course
	err := r.db.QueryRow(ctx,
		`SELECT id, full_name, visible, category FROM courses WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.FullName, &c.Visible, &c.Category)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundInstance, "course not found", err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get course", err)
	}
	return &c, nil
}

// ModuleRepository reads activity-module content for the dynamic content
// feature of the renderer.
type ModuleRepository struct {
	db DBTX
}

// NewModuleRepository creates a new ModuleRepository backed by the given
// database connection (pool or transaction).
func NewModuleRepository(db DBTX) *ModuleRepository {
	return &ModuleRepository{db: db}
}

// ModuleIntro returns the intro content of an activity module, or empty if
// the module does not exist.
func (r *ModuleRepository) ModuleIntro(ctx context.Context, moduleID int64) (string, error) {
	var intro string
	err := r.db.QueryRow(ctx,
		`SELECT intro FROM course_modules WHERE id = $1`,
		moduleID,
	).Scan(&intro)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to get module intro", err)
	}
	return intro, nil
}
