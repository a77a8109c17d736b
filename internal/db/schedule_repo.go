package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"coursepulse/internal/types"
)

// DefaultDueBatchLimit bounds per-run work when the caller does not supply
// a batch size.
const DefaultDueBatchLimit = 200

// ScheduleRepository is the persistent queue: one row per (instance, user)
// notification schedule with a small state machine. At most one active
// (Queued or Disabled) row exists per pair; Sent rows are historical and
// accumulate, one per send.
//
// The design assumes non-overlapping dispatch invocations; the host's task
// runner must not run two loops concurrently. Overlapping runs can briefly
// violate the one-active-row invariant between two Upserts.
type ScheduleRepository struct {
	db DBTX
}

// NewScheduleRepository creates a new ScheduleRepository backed by the
// given database connection (pool or transaction).
func NewScheduleRepository(db DBTX) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Upsert arms a schedule for the pair, idempotently.
//
// If an active (Queued or Disabled) row exists it is updated in place:
// re-armed to Queued with the new schedule time and notify count, which
// makes repeated qualification checks produce exactly one active row. When
// isNewSchedule is false the re-arm keeps the row's accumulated notify
// count; a re-sync after a config edit must not reset a mid-cycle pair's
// progress toward its notify limit.
// Otherwise, if a Sent row already exists for the pair and isNewSchedule is
// false, the call returns an empty id: a re-sync (say after an interval
// edit) must not silently resurrect a user who already completed a
// once-style cycle. Only explicit new-schedule callers — the send loop's
// recurrence continuation and brand-new-user triggers — create a fresh row
// past a Sent one.
func (r *ScheduleRepository) Upsert(ctx context.Context, instanceID string, userID int64, kind types.IntervalKind, at time.Time, notifyCount int, isNewSchedule bool) (string, error) {
	var activeID string
	err := r.db.QueryRow(ctx,
		`SELECT id FROM notification_schedules
		 WHERE instance_id = $1 AND user_id = $2 AND status IN ($3, $4)
		 LIMIT 1`,
		instanceID, userID,
		int(types.ScheduleQueued), int(types.ScheduleDisabled),
	).Scan(&activeID)
	switch {
	case err == nil:
		countExpr := "$4"
		if !isNewSchedule {
			countExpr = "GREATEST(notify_count, $4)"
		}
		_, err = r.db.Exec(ctx,
			fmt.Sprintf(`UPDATE notification_schedules SET
				status = $1,
				type = $2,
				schedule_time = $3,
				notify_count = %s,
				updated_at = NOW()
			 WHERE id = $5`, countExpr),
			int(types.ScheduleQueued),
			string(kind),
			at,
			notifyCount,
			activeID,
		)
		if err != nil {
			return "", types.NewAppError(types.ErrCodeInternalDB, "failed to re-arm schedule", err)
		}
		return activeID, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to look up active schedule", err)
	}

	if !isNewSchedule {
		var sentExists bool
		err := r.db.QueryRow(ctx,
			`SELECT EXISTS (
				SELECT 1 FROM notification_schedules
				WHERE instance_id = $1 AND user_id = $2 AND status = $3
			 )`,
			instanceID, userID, int(types.ScheduleSent),
		).Scan(&sentExists)
		if err != nil {
			return "", types.NewAppError(types.ErrCodeInternalDB, "failed to check sent history", err)
		}
		if sentExists {
			return "", nil
		}
	}

	id := "sch_" + uuid.NewString()
	_, err = r.db.Exec(ctx,
		`INSERT INTO notification_schedules
		 (id, instance_id, user_id, type, status, schedule_time, notify_count, suppress_reached)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, false)`,
		id, instanceID, userID, string(kind), int(types.ScheduleQueued), at, notifyCount,
	)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to insert schedule", err)
	}
	return id, nil
}

// Disable flips the pair's active row to Disabled. Used when a user stops
// qualifying, so re-qualifying later can re-arm cheaply via Upsert without
// recomputation races.
func (r *ScheduleRepository) Disable(ctx context.Context, instanceID string, userID int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE notification_schedules SET
			status = $1,
			updated_at = NOW()
		 WHERE instance_id = $2 AND user_id = $3 AND status = $4`,
		int(types.ScheduleDisabled),
		instanceID, userID,
		int(types.ScheduleQueued),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to disable schedule", err)
	}
	return nil
}

// Remove hard-deletes the pair's active rows. Used on unenrolment;
// historical Sent rows are kept for auditing.
func (r *ScheduleRepository) Remove(ctx context.Context, instanceID string, userID int64) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM notification_schedules
		 WHERE instance_id = $1 AND user_id = $2 AND status IN ($3, $4)`,
		instanceID, userID,
		int(types.ScheduleQueued), int(types.ScheduleDisabled),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to remove schedules", err)
	}
	return nil
}

// RemoveForUserInCourse deletes a user's active rows across every instance
// of a course in one statement. Used by the unenrolment hook.
func (r *ScheduleRepository) RemoveForUserInCourse(ctx context.Context, courseID, userID int64) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM notification_schedules s
		 USING notification_instances i
		 WHERE s.instance_id = i.id
		   AND i.course_id = $1
		   AND s.user_id = $2
		   AND s.status IN ($3, $4)`,
		courseID, userID,
		int(types.ScheduleQueued), int(types.ScheduleDisabled),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to remove schedules for course", err)
	}
	return nil
}

// SelectDue returns Queued rows due at or before now, joined against the
// instance and course still being active and visible, the user still
// actively and non-suspended enrolled, and suppression not yet reached.
// Oldest-created first (FIFO), capped at limit. A non-zero userFilter
// restricts the batch to one user, for interactive trigger-now calls.
func (r *ScheduleRepository) SelectDue(ctx context.Context, now time.Time, limit int, userFilter int64) ([]*types.Schedule, error) {
	if limit <= 0 {
		limit = DefaultDueBatchLimit
	}

	query := `SELECT s.id, s.instance_id, s.user_id, s.type, s.status,
	                 s.schedule_time, s.notified_time, s.notify_count,
	                 s.suppress_reached, s.created_at, s.updated_at
	          FROM notification_schedules s
	          JOIN notification_instances i ON i.id = s.instance_id
	          JOIN notification_templates t ON t.id = i.template_id
	          JOIN courses c ON c.id = i.course_id
	          JOIN user_enrolments e
	            ON e.user_id = s.user_id AND e.course_id = i.course_id
	          WHERE s.status = $1
	            AND s.schedule_time <= $2
	            AND NOT s.suppress_reached
	            AND i.status = $3
	            AND t.status = $3
	            AND t.visible
	            AND c.visible
	            AND e.status = $4
	            AND NOT e.suspended`
	args := []any{
		int(types.ScheduleQueued),
		now,
		string(types.StatusEnabled),
		string(types.EnrolmentActive),
	}
	if userFilter != 0 {
		query += fmt.Sprintf(" AND s.user_id = $%d", len(args)+1)
		args = append(args, userFilter)
	}
	query += fmt.Sprintf(" ORDER BY s.created_at, s.id LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to select due schedules", err)
	}
	defer rows.Close()

	var results []*types.Schedule
	for rows.Next() {
		s, scanErr := scanSchedule(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan schedule row", scanErr)
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating schedule rows", err)
	}
	return results, nil
}

// MarkSent records a successful send: the row becomes Sent history with the
// notified time stamped and the notify count incremented. A single-row
// update keeps each pair's read-modify-write atomic even when sends are
// parallelized.
func (r *ScheduleRepository) MarkSent(ctx context.Context, scheduleID string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notification_schedules SET
			status = $1,
			notified_time = $2,
			notify_count = notify_count + 1,
			updated_at = NOW()
		 WHERE id = $3 AND status = $4`,
		int(types.ScheduleSent),
		at,
		scheduleID,
		int(types.ScheduleQueued),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark schedule sent", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictScheduleState,
			fmt.Sprintf("schedule %s is not queued", scheduleID), nil)
	}
	return nil
}

// SetSuppressReached flags the row so further dispatch skips it once the
// suppression gate has been reached.
func (r *ScheduleRepository) SetSuppressReached(ctx context.Context, scheduleID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE notification_schedules SET
			suppress_reached = true,
			updated_at = NOW()
		 WHERE id = $1`,
		scheduleID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set suppress reached", err)
	}
	return nil
}

// GetByID retrieves a schedule row.
func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*types.Schedule, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, instance_id, user_id, type, status, schedule_time,
		        notified_time, notify_count, suppress_reached, created_at, updated_at
		 FROM notification_schedules
		 WHERE id = $1`,
		id,
	)
	s, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSchedule,
				fmt.Sprintf("schedule %s not found", id), err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get schedule", err)
	}
	return s, nil
}

// ListStuck returns Queued rows whose schedule time is older than the
// cutoff. End users never see scheduling failures; this is the operational
// signal administrators watch for perpetually-stuck work.
func (r *ScheduleRepository) ListStuck(ctx context.Context, olderThan time.Time, limit int) ([]*types.Schedule, error) {
	if limit <= 0 {
		limit = DefaultDueBatchLimit
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, instance_id, user_id, type, status, schedule_time,
		        notified_time, notify_count, suppress_reached, created_at, updated_at
		 FROM notification_schedules
		 WHERE status = $1 AND schedule_time < $2
		 ORDER BY schedule_time, id
		 LIMIT $3`,
		int(types.ScheduleQueued),
		olderThan,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list stuck schedules", err)
	}
	defer rows.Close()

	var results []*types.Schedule
	for rows.Next() {
		s, scanErr := scanSchedule(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan schedule row", scanErr)
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating schedule rows", err)
	}
	return results, nil
}

// ListSentBefore returns historical Sent rows older than the cutoff, for
// retention archiving. FIFO by creation time.
func (r *ScheduleRepository) ListSentBefore(ctx context.Context, cutoff time.Time, limit int) ([]*types.Schedule, error) {
	if limit <= 0 {
		limit = DefaultDueBatchLimit
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, instance_id, user_id, type, status, schedule_time,
		        notified_time, notify_count, suppress_reached, created_at, updated_at
		 FROM notification_schedules
		 WHERE status = $1 AND notified_time < $2
		 ORDER BY created_at, id
		 LIMIT $3`,
		int(types.ScheduleSent),
		cutoff,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list sent schedules", err)
	}
	defer rows.Close()

	var results []*types.Schedule
	for rows.Next() {
		s, scanErr := scanSchedule(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan schedule row", scanErr)
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating schedule rows", err)
	}
	return results, nil
}

// DeleteByIDs hard-deletes the given rows. Used by the archiver after a
// successful export.
func (r *ScheduleRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx,
		`DELETE FROM notification_schedules WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete schedules", err)
	}
	return tag.RowsAffected(), nil
}

// scanSchedule scans a schedule row from either pgx.Row or pgx.Rows.
func scanSchedule(row pgx.Row) (*types.Schedule, error) {
	var (
		s         types.Schedule
		kind      string
		status    int
		updatedAt *time.Time
	)
	err := row.Scan(
		&s.ID,
		&s.InstanceID,
		&s.UserID,
		&kind,
		&status,
		&s.ScheduleTime,
		&s.NotifiedTime,
		&s.NotifyCount,
		&s.SuppressReached,
		&s.CreatedAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Type = types.IntervalKind(kind)
	s.Status = types.ScheduleStatus(status)
	if updatedAt != nil {
		s.UpdatedAt = *updatedAt
	}
	return &s, nil
}
