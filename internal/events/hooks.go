// Package events reacts to platform lifecycle events: user enrolment changes
// and template or instance edits. Each hook re-derives schedule state for the
// affected (instance, user) pairs through the qualification pipeline, so the
// queue always reflects the current configuration.
package events

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"coursepulse/internal/schedule"
	"coursepulse/internal/types"
)

// qualifyParallelism bounds concurrent per-user qualification when a
// template or instance edit fans out to a whole course roster.
const qualifyParallelism = 8

// ConfigSource resolves an instance's effective configuration.
type ConfigSource interface {
	Effective(ctx context.Context, instanceID string) (*types.EffectiveConfig, error)
}

// Evaluator decides whether a user currently satisfies an instance's
// trigger conditions. Implemented by conditions.Engine.
type Evaluator interface {
	Evaluate(ctx context.Context, eff *types.EffectiveConfig, userID int64, isNewUser bool) (bool, error)
}

// ScheduleStore is the subset of the schedule repository the hooks need.
type ScheduleStore interface {
	Upsert(ctx context.Context, instanceID string, userID int64, kind types.IntervalKind, at time.Time, notifyCount int, isNewSchedule bool) (string, error)
	Disable(ctx context.Context, instanceID string, userID int64) error
	RemoveForUserInCourse(ctx context.Context, courseID, userID int64) error
}

// InstanceLister lists the instances affected by a course or template edit.
type InstanceLister interface {
	ListByCourse(ctx context.Context, courseID int64) ([]*types.Instance, error)
	ListByTemplate(ctx context.Context, templateID string) ([]*types.Instance, error)
}

// Hooks wires lifecycle events into the schedule queue.
type Hooks struct {
	configs    ConfigSource
	evaluator  Evaluator
	store      ScheduleStore
	instances  InstanceLister
	enrolments types.EnrolmentService
	anchors    types.AnchorSource
	clock      types.Clock
	logger     types.Logger
}

func NewHooks(
	configs ConfigSource,
	evaluator Evaluator,
	store ScheduleStore,
	instances InstanceLister,
	enrolments types.EnrolmentService,
	anchors types.AnchorSource,
	clock types.Clock,
	logger types.Logger,
) *Hooks {
	return &Hooks{
		configs:    configs,
		evaluator:  evaluator,
		store:      store,
		instances:  instances,
		enrolments: enrolments,
		anchors:    anchors,
		clock:      clock,
		logger:     logger,
	}
}

// HandleUserEnrolled qualifies a newly enrolled user against every enabled
// instance in the course and arms a first schedule where the trigger
// conditions hold. New users are never exempt from future-scoped conditions.
func (h *Hooks) HandleUserEnrolled(ctx context.Context, courseID, userID int64) error {
	instances, err := h.instances.ListByCourse(ctx, courseID)
	if err != nil {
		return fmt.Errorf("listing course instances: %w", err)
	}

	for _, in := range instances {
		if in.Status != types.StatusEnabled {
			continue
		}
		if err := h.qualifyUser(ctx, in.ID, userID, true); err != nil {
			h.logger.Error("enrolment qualification failed",
				"instance_id", in.ID,
				"user_id", userID,
				"error", err,
			)
		}
	}
	return nil
}

// HandleUserUnenrolled removes the user's active schedules across the
// course. Sent history is kept.
func (h *Hooks) HandleUserUnenrolled(ctx context.Context, courseID, userID int64) error {
	if err := h.store.RemoveForUserInCourse(ctx, courseID, userID); err != nil {
		return fmt.Errorf("removing schedules for unenrolled user: %w", err)
	}
	h.logger.Info("removed active schedules for unenrolled user",
		"course_id", courseID,
		"user_id", userID,
	)
	return nil
}

// HandleInstanceSaved re-qualifies every enrolled user of the instance's
// course after a configuration edit. Users who no longer qualify have their
// queued schedule disabled rather than deleted, so a later edit can re-arm
// it in place.
func (h *Hooks) HandleInstanceSaved(ctx context.Context, instanceID string) error {
	eff, err := h.configs.Effective(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("resolving instance config: %w", err)
	}
	return h.requalifyInstance(ctx, eff)
}

// HandleTemplateSaved re-qualifies every instance bound to the template.
// Per-instance failures are logged and do not stop the fan-out.
func (h *Hooks) HandleTemplateSaved(ctx context.Context, templateID string) error {
	instances, err := h.instances.ListByTemplate(ctx, templateID)
	if err != nil {
		return fmt.Errorf("listing template instances: %w", err)
	}

	for _, in := range instances {
		if err := h.HandleInstanceSaved(ctx, in.ID); err != nil {
			h.logger.Error("template fan-out requalification failed",
				"template_id", templateID,
				"instance_id", in.ID,
				"error", err,
			)
		}
	}
	return nil
}

func (h *Hooks) requalifyInstance(ctx context.Context, eff *types.EffectiveConfig) error {
	userIDs, err := h.enrolments.EnrolledUserIDs(ctx, eff.CourseID)
	if err != nil {
		return fmt.Errorf("listing enrolled users: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(qualifyParallelism)
	for _, userID := range userIDs {
		g.Go(func() error {
			if err := h.requalifyUser(gCtx, eff, userID); err != nil {
				// Do not propagate; let the remaining users requalify.
				h.logger.Error("requalification failed",
					"instance_id", eff.InstanceID,
					"user_id", userID,
					"error", err,
				)
			}
			return nil
		})
	}
	return g.Wait()
}

// requalifyUser re-runs qualification for one existing user. Re-arming an
// existing pair must not resurrect a sent once-only notification, so the
// upsert runs in non-new mode.
func (h *Hooks) requalifyUser(ctx context.Context, eff *types.EffectiveConfig, userID int64) error {
	qualifies, err := h.evaluator.Evaluate(ctx, eff, userID, false)
	if err != nil {
		return fmt.Errorf("evaluating conditions: %w", err)
	}

	if !qualifies {
		return h.store.Disable(ctx, eff.InstanceID, userID)
	}

	next, err := h.firstRun(ctx, eff, userID)
	if err != nil {
		return err
	}
	_, err = h.store.Upsert(ctx, eff.InstanceID, userID, eff.Config.Interval.Kind, next, 0, false)
	return err
}

func (h *Hooks) qualifyUser(ctx context.Context, instanceID string, userID int64, isNewUser bool) error {
	eff, err := h.configs.Effective(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("resolving instance config: %w", err)
	}

	qualifies, err := h.evaluator.Evaluate(ctx, eff, userID, isNewUser)
	if err != nil {
		return fmt.Errorf("evaluating conditions: %w", err)
	}
	if !qualifies {
		return nil
	}

	next, err := h.firstRun(ctx, eff, userID)
	if err != nil {
		return err
	}
	_, err = h.store.Upsert(ctx, instanceID, userID, eff.Config.Interval.Kind, next, 0, isNewUser)
	return err
}

// firstRun computes the initial due time for a pair that has never been
// notified.
func (h *Hooks) firstRun(ctx context.Context, eff *types.EffectiveConfig, userID int64) (time.Time, error) {
	cfg := eff.Config

	var anchor *time.Time
	if cfg.Delay.Kind != types.DelayNone && cfg.Delay.Kind != "" {
		var err error
		anchor, err = h.anchors.AnchorTime(ctx, eff.InstanceID, userID)
		if err != nil {
			return time.Time{}, fmt.Errorf("looking up delay anchor: %w", err)
		}
	}

	now := h.clock.Now()
	next, err := schedule.NextRun(cfg.Interval, nil, nil, cfg.Delay, anchor, &now)
	if err != nil {
		return time.Time{}, fmt.Errorf("computing first run: %w", err)
	}
	return next, nil
}
