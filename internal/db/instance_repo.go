package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"coursepulse/internal/types"
)

// InstanceRepository provides data access for the notification_instances
// and instance_conditions tables. The sparse override record is stored as a
// single JSONB column; clearing an override removes its key so the field
// resumes tracking the template default.
type InstanceRepository struct {
	db DBTX
}

// NewInstanceRepository creates a new InstanceRepository backed by the
// given database connection (pool or transaction).
func NewInstanceRepository(db DBTX) *InstanceRepository {
	return &InstanceRepository{db: db}
}

// Create inserts a new instance binding a template to a course. If the ID
// is empty a prefixed UUID is generated.
func (r *InstanceRepository) Create(ctx context.Context, in *types.Instance) error {
	if in.ID == "" {
		in.ID = "ins_" + uuid.NewString()
	}

	overrides, err := json.Marshal(in.Overrides)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode overrides", err)
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO notification_instances
		 (id, template_id, course_id, status, overrides)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at, updated_at`,
		in.ID,
		in.TemplateID,
		in.CourseID,
		string(in.Status),
		overrides,
	)
	if err := row.Scan(&in.CreatedAt, &in.UpdatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create instance", err)
	}
	return nil
}

// GetByID retrieves an instance by its ID.
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*types.Instance, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, template_id, course_id, status, overrides, created_at, updated_at
		 FROM notification_instances
		 WHERE id = $1`,
		id,
	)
	in, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundInstance,
				fmt.Sprintf("instance %s not found", id), err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get instance", err)
	}
	return in, nil
}

// InstanceWithTemplate loads an instance together with its template in one
// round trip. Both records are required before any override resolution.
func (r *InstanceRepository) InstanceWithTemplate(ctx context.Context, id string) (*types.Instance, *types.Template, error) {
	row := r.db.QueryRow(ctx,
		`SELECT i.id, i.template_id, i.course_id, i.status, i.overrides,
		        i.created_at, i.updated_at,
		        t.id, t.title, t.visible, t.status, t.categories, t.config,
		        t.trigger_operator, t.trigger_conditions, t.created_at, t.updated_at
		 FROM notification_instances i
		 JOIN notification_templates t ON t.id = i.template_id
		 WHERE i.id = $1`,
		id,
	)

	var (
		in           types.Instance
		t            types.Template
		inStatus     string
		inOverrides  []byte
		inUpdatedAt  *time.Time
		tStatus      string
		tOperator    string
		tCfgJSON     []byte
		tUpdatedAt   *time.Time
	)
	err := row.Scan(
		&in.ID, &in.TemplateID, &in.CourseID, &inStatus, &inOverrides,
		&in.CreatedAt, &inUpdatedAt,
		&t.ID, &t.Title, &t.Visible, &tStatus, &t.Categories, &tCfgJSON,
		&tOperator, &t.TriggerConditions, &t.CreatedAt, &tUpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, types.NewAppError(types.ErrCodeNotFoundInstance,
				fmt.Sprintf("instance %s not found", id), err)
		}
		return nil, nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get instance with template", err)
	}

	in.Status = types.Status(inStatus)
	if inUpdatedAt != nil {
		in.UpdatedAt = *inUpdatedAt
	}
	if len(inOverrides) > 0 {
		if err := json.Unmarshal(inOverrides, &in.Overrides); err != nil {
			return nil, nil, types.NewAppError(types.ErrCodeInternalDB, "failed to decode overrides", err)
		}
	}

	t.Status = types.Status(tStatus)
	t.TriggerOperator = types.ConditionLogic(tOperator)
	if tUpdatedAt != nil {
		t.UpdatedAt = *tUpdatedAt
	}
	if len(tCfgJSON) > 0 {
		if err := json.Unmarshal(tCfgJSON, &t.Config); err != nil {
			return nil, nil, types.NewAppError(types.ErrCodeInternalDB, "failed to decode template config", err)
		}
	}

	return &in, &t, nil
}

// Update persists an instance's status and override record.
func (r *InstanceRepository) Update(ctx context.Context, in *types.Instance) error {
	overrides, err := json.Marshal(in.Overrides)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode overrides", err)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE notification_instances SET
			status = $1,
			overrides = $2,
			updated_at = NOW()
		 WHERE id = $3`,
		string(in.Status),
		overrides,
		in.ID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update instance", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundInstance,
			fmt.Sprintf("instance %s not found", in.ID), nil)
	}
	return nil
}

// ClearOverrideFields removes the named keys from the stored override
// record. An absent key is the inherited state, so the fields resume
// tracking subsequent template edits. Implements overrides.OverrideStore.
func (r *InstanceRepository) ClearOverrideFields(ctx context.Context, instanceID string, fields []string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notification_instances SET
			overrides = overrides - $1::text[],
			updated_at = NOW()
		 WHERE id = $2`,
		fields,
		instanceID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to clear override fields", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundInstance,
			fmt.Sprintf("instance %s not found", instanceID), nil)
	}
	return nil
}

// Delete removes an instance and all dependent data: condition overrides
// and every schedule row for the instance, historical included.
func (r *InstanceRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx,
		`DELETE FROM instance_conditions WHERE instance_id = $1`, id); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete instance conditions", err)
	}
	if _, err := r.db.Exec(ctx,
		`DELETE FROM notification_schedules WHERE instance_id = $1`, id); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete instance schedules", err)
	}
	tag, err := r.db.Exec(ctx,
		`DELETE FROM notification_instances WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete instance", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundInstance,
			fmt.Sprintf("instance %s not found", id), nil)
	}
	return nil
}

// ListByCourse returns the instances attached to a course.
func (r *InstanceRepository) ListByCourse(ctx context.Context, courseID int64) ([]*types.Instance, error) {
	return r.list(ctx,
		`SELECT id, template_id, course_id, status, overrides, created_at, updated_at
		 FROM notification_instances
		 WHERE course_id = $1
		 ORDER BY created_at, id`,
		courseID,
	)
}

// ListByTemplate returns the instances bound to a template. Used when a
// template save must re-evaluate every dependent instance.
func (r *InstanceRepository) ListByTemplate(ctx context.Context, templateID string) ([]*types.Instance, error) {
	return r.list(ctx,
		`SELECT id, template_id, course_id, status, overrides, created_at, updated_at
		 FROM notification_instances
		 WHERE template_id = $1
		 ORDER BY created_at, id`,
		templateID,
	)
}

func (r *InstanceRepository) list(ctx context.Context, query string, args ...any) ([]*types.Instance, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list instances", err)
	}
	defer rows.Close()

	var results []*types.Instance
	for rows.Next() {
		in, scanErr := scanInstance(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan instance row", scanErr)
		}
		results = append(results, in)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating instance rows", err)
	}
	return results, nil
}

// SetCondition upserts a per-instance condition override.
func (r *InstanceRepository) SetCondition(ctx context.Context, instanceID string, setting types.ConditionSetting) error {
	extra, err := json.Marshal(setting.Extra)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode condition extra", err)
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO instance_conditions
		 (instance_id, component, status, upcoming_time, is_overridden, extra)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (instance_id, component) DO UPDATE SET
			status = EXCLUDED.status,
			upcoming_time = EXCLUDED.upcoming_time,
			is_overridden = EXCLUDED.is_overridden,
			extra = EXCLUDED.extra`,
		instanceID,
		setting.Component,
		int(setting.Status),
		setting.UpcomingTime,
		setting.IsOverridden,
		extra,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set instance condition", err)
	}
	return nil
}

// ConditionsForInstance returns the instance's explicit condition overrides.
func (r *InstanceRepository) ConditionsForInstance(ctx context.Context, instanceID string) ([]types.ConditionSetting, error) {
	rows, err := r.db.Query(ctx,
		`SELECT component, status, upcoming_time, is_overridden, extra
		 FROM instance_conditions
		 WHERE instance_id = $1
		 ORDER BY component`,
		instanceID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list instance conditions", err)
	}
	defer rows.Close()

	var results []types.ConditionSetting
	for rows.Next() {
		var (
			s     types.ConditionSetting
			extra []byte
		)
		if err := rows.Scan(&s.Component, &s.Status, &s.UpcomingTime, &s.IsOverridden, &extra); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan condition row", err)
		}
		if len(extra) > 0 {
			if err := json.Unmarshal(extra, &s.Extra); err != nil {
				return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to decode condition extra", err)
			}
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating condition rows", err)
	}
	return results, nil
}

// RemoveCondition deletes an instance's explicit override for a component,
// reverting it to the template's trigger-condition default.
func (r *InstanceRepository) RemoveCondition(ctx context.Context, instanceID, component string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM instance_conditions WHERE instance_id = $1 AND component = $2`,
		instanceID, component)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to remove instance condition", err)
	}
	return nil
}

// scanInstance scans an instance row from either pgx.Row or pgx.Rows.
func scanInstance(row pgx.Row) (*types.Instance, error) {
	var (
		in        types.Instance
		status    string
		overrides []byte
		updatedAt *time.Time
	)
	err := row.Scan(
		&in.ID,
		&in.TemplateID,
		&in.CourseID,
		&status,
		&overrides,
		&in.CreatedAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	in.Status = types.Status(status)
	if updatedAt != nil {
		in.UpdatedAt = *updatedAt
	}
	if len(overrides) > 0 {
		if err := json.Unmarshal(overrides, &in.Overrides); err != nil {
			return nil, fmt.Errorf("decoding instance overrides: %w", err)
		}
	}
	return &in, nil
}
