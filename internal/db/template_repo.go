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

// TemplateRepository provides data access for the notification_templates
// table. Templates carry the default value of every overridable field plus
// the default trigger-condition set.
type TemplateRepository struct {
	db DBTX
}

// NewTemplateRepository creates a new TemplateRepository backed by the
// given database connection (pool or transaction).
func NewTemplateRepository(db DBTX) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// Create inserts a new template. If the ID is empty a prefixed UUID is
// generated.
func (r *TemplateRepository) Create(ctx context.Context, t *types.Template) error {
	if t.ID == "" {
		t.ID = "tpl_" + uuid.NewString()
	}

	cfg, err := json.Marshal(t.Config)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode template config", err)
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO notification_templates
		 (id, title, visible, status, categories, config, trigger_operator, trigger_conditions)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at, updated_at`,
		t.ID,
		t.Title,
		t.Visible,
		string(t.Status),
		t.Categories,
		cfg,
		string(t.TriggerOperator),
		t.TriggerConditions,
	)
	if err := row.Scan(&t.CreatedAt, &t.UpdatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create template", err)
	}
	return nil
}

// GetByID retrieves a template by its ID. Returns a not-found AppError when
// no row exists; this is a non-retryable configuration error at call sites.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*types.Template, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, title, visible, status, categories, config,
		        trigger_operator, trigger_conditions, created_at, updated_at
		 FROM notification_templates
		 WHERE id = $1`,
		id,
	)
	t, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundTemplate,
				fmt.Sprintf("template %s not found", id), err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get template", err)
	}
	return t, nil
}

// Update persists edits to a template's defaults. Instances that inherit a
// field pick up the new default on their next resolution; no per-instance
// work is needed here.
func (r *TemplateRepository) Update(ctx context.Context, t *types.Template) error {
	cfg, err := json.Marshal(t.Config)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode template config", err)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE notification_templates SET
			title = $1,
			visible = $2,
			status = $3,
			categories = $4,
			config = $5,
			trigger_operator = $6,
			trigger_conditions = $7,
			updated_at = NOW()
		 WHERE id = $8`,
		t.Title,
		t.Visible,
		string(t.Status),
		t.Categories,
		cfg,
		string(t.TriggerOperator),
		t.TriggerConditions,
		t.ID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update template", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTemplate,
			fmt.Sprintf("template %s not found", t.ID), nil)
	}
	return nil
}

// Delete removes a template and cascades to its instances' dependent data:
// override records are reset, instance condition overrides are deleted, and
// active schedules are removed. The instance rows themselves survive,
// disabled, so course-level history stays intact.
func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM instance_conditions
		 WHERE instance_id IN (
			SELECT id FROM notification_instances WHERE template_id = $1
		 )`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete instance conditions", err)
	}

	_, err = r.db.Exec(ctx,
		`DELETE FROM notification_schedules
		 WHERE status IN ($1, $2)
		   AND instance_id IN (
			SELECT id FROM notification_instances WHERE template_id = $3
		 )`,
		int(types.ScheduleDisabled),
		int(types.ScheduleQueued),
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete instance schedules", err)
	}

	_, err = r.db.Exec(ctx,
		`UPDATE notification_instances SET
			overrides = '{}'::jsonb,
			status = $1,
			updated_at = NOW()
		 WHERE template_id = $2`,
		string(types.StatusDisabled),
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to reset instance overrides", err)
	}

	tag, err := r.db.Exec(ctx,
		`DELETE FROM notification_templates WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete template", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTemplate,
			fmt.Sprintf("template %s not found", id), nil)
	}
	return nil
}

// List returns templates ordered by title, optionally restricted to
// visible ones.
func (r *TemplateRepository) List(ctx context.Context, onlyVisible bool) ([]*types.Template, error) {
	query := `SELECT id, title, visible, status, categories, config,
	                 trigger_operator, trigger_conditions, created_at, updated_at
	          FROM notification_templates`
	if onlyVisible {
		query += ` WHERE visible`
	}
	query += ` ORDER BY title, id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list templates", err)
	}
	defer rows.Close()

	var results []*types.Template
	for rows.Next() {
		t, scanErr := scanTemplate(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan template row", scanErr)
		}
		results = append(results, t)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating template rows", err)
	}
	return results, nil
}

// scanTemplate scans a template row from either pgx.Row or pgx.Rows.
func scanTemplate(row pgx.Row) (*types.Template, error) {
	var (
		t         types.Template
		status    string
		operator  string
		cfgJSON   []byte
		updatedAt *time.Time
	)
	err := row.Scan(
		&t.ID,
		&t.Title,
		&t.Visible,
		&status,
		&t.Categories,
		&cfgJSON,
		&operator,
		&t.TriggerConditions,
		&t.CreatedAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = types.Status(status)
	t.TriggerOperator = types.ConditionLogic(operator)
	if updatedAt != nil {
		t.UpdatedAt = *updatedAt
	}
	if len(cfgJSON) > 0 {
		if err := json.Unmarshal(cfgJSON, &t.Config); err != nil {
			return nil, fmt.Errorf("decoding template config: %w", err)
		}
	}
	return &t, nil
}
