// Package dispatch implements the periodic batch job that drains due
// schedule rows, sends notifications, and re-enqueues recurring work.
//
// The loop is invoked once per external trigger (a cron-style task runner
// every few minutes); within one invocation rows are processed
// oldest-created-first, and each row's read-modify-write against the
// schedule store is a single-row update, so per-user sends may be
// parallelized safely. A failed send leaves the row queued and due in the
// past, so the next invocation naturally retries it with no backoff.
package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"

	"coursepulse/internal/schedule"
	"coursepulse/internal/types"
)

// ScheduleStore is the subset of the schedule repository the loop needs.
type ScheduleStore interface {
	SelectDue(ctx context.Context, now time.Time, limit int, userFilter int64) ([]*types.Schedule, error)
	MarkSent(ctx context.Context, scheduleID string, at time.Time) error
	SetSuppressReached(ctx context.Context, scheduleID string) error
	Upsert(ctx context.Context, instanceID string, userID int64, kind types.IntervalKind, at time.Time, notifyCount int, isNewSchedule bool) (string, error)
}

// ConfigSource resolves an instance's effective configuration.
// Implemented by overrides.Loader.
type ConfigSource interface {
	Effective(ctx context.Context, instanceID string) (*types.EffectiveConfig, error)
}

// CourseSource resolves the course projection used for rendering context.
type CourseSource interface {
	GetByID(ctx context.Context, id int64) (*types.Course, error)
}

// Metrics receives dispatch telemetry. The CloudWatch implementation lives
// in metrics.go; tests use a no-op.
type Metrics interface {
	RecordSend(ctx context.Context, result SendResult)
	RecordSendLatency(ctx context.Context, d time.Duration)
	RecordBatchSize(ctx context.Context, n int)
}

// SendResult labels a send outcome for metrics dimensions.
type SendResult string

const (
	SendSuccess    SendResult = "success"
	SendFailure    SendResult = "failure"
	SendSuppressed SendResult = "suppressed"
)

// Stats summarizes one loop invocation.
type Stats struct {
	Selected   int
	Sent       int
	Failed     int
	Suppressed int
	Requeued   int
}

// Loop is the dispatch batch job.
type Loop struct {
	store      ScheduleStore
	configs    ConfigSource
	enrolments types.EnrolmentService
	courses    CourseSource
	renderer   types.ContentRenderer
	transport  types.MailTransport
	completion types.CompletionSource
	anchors    types.AnchorSource
	metrics    Metrics
	clock      types.Clock
	logger     types.Logger

	breaker *gobreaker.CircuitBreaker[struct{}]

	// parallelism bounds concurrent per-user sends within one batch.
	// 1 means fully sequential.
	parallelism int

	// systemSender is the fallback identity when no sender policy resolves.
	systemSender types.SenderIdentity
}

// Options configures a Loop.
type Options struct {
	Parallelism  int
	SystemSender types.SenderIdentity
}

// NewLoop creates a dispatch loop. The mail transport is wrapped in a
// circuit breaker so a dead provider fails the batch fast instead of
// timing out row by row; rows skipped by an open breaker stay queued and
// retry on a later run.
func NewLoop(
	store ScheduleStore,
	configs ConfigSource,
	enrolments types.EnrolmentService,
	courses CourseSource,
	renderer types.ContentRenderer,
	transport types.MailTransport,
	completion types.CompletionSource,
	anchors types.AnchorSource,
	metrics Metrics,
	clock types.Clock,
	logger types.Logger,
	opts Options,
) *Loop {
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "mail-transport",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	parallelism := opts.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}

	return &Loop{
		store:        store,
		configs:      configs,
		enrolments:   enrolments,
		courses:      courses,
		renderer:     renderer,
		transport:    transport,
		completion:   completion,
		anchors:      anchors,
		metrics:      metrics,
		clock:        clock,
		logger:       logger,
		breaker:      cb,
		parallelism:  parallelism,
		systemSender: opts.SystemSender,
	}
}

// Run executes one dispatch batch: select due rows, send each, update
// schedule state, and re-enqueue recurring work. A non-zero userFilter
// restricts the run to a single user (interactive trigger-now).
//
// Row-level problems never abort the batch; they are logged and the row is
// left for the next invocation. The returned error covers only the due-set
// selection itself.
func (l *Loop) Run(ctx context.Context, batchLimit int, userFilter int64) (Stats, error) {
	now := l.clock.Now()

	rows, err := l.store.SelectDue(ctx, now, batchLimit, userFilter)
	if err != nil {
		return Stats{}, fmt.Errorf("selecting due schedules: %w", err)
	}

	l.metrics.RecordBatchSize(ctx, len(rows))
	if len(rows) == 0 {
		return Stats{}, nil
	}

	l.logger.Info("dispatch batch starting",
		"due_rows", len(rows),
		"user_filter", userFilter,
	)

	var sent, failed, suppressed, requeued atomic.Int64

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(l.parallelism)
	for _, row := range rows {
		g.Go(func() error {
			outcome := l.processRow(gCtx, row, now)
			switch outcome.result {
			case SendSuccess:
				sent.Add(1)
				if outcome.requeued {
					requeued.Add(1)
				}
			case SendSuppressed:
				suppressed.Add(1)
			default:
				failed.Add(1)
			}
			// Row failures stay local; the batch always drains.
			return nil
		})
	}
	_ = g.Wait()

	stats := Stats{
		Selected:   len(rows),
		Sent:       int(sent.Load()),
		Failed:     int(failed.Load()),
		Suppressed: int(suppressed.Load()),
		Requeued:   int(requeued.Load()),
	}

	l.logger.Info("dispatch batch complete",
		"selected", stats.Selected,
		"sent", stats.Sent,
		"failed", stats.Failed,
		"suppressed", stats.Suppressed,
		"requeued", stats.Requeued,
	)

	return stats, nil
}

type rowOutcome struct {
	result   SendResult
	requeued bool
}

// processRow handles a single due schedule: resolve config and parties,
// render, send, mark sent, and arm the successor when the recurrence
// continues.
func (l *Loop) processRow(ctx context.Context, row *types.Schedule, now time.Time) rowOutcome {
	log := l.logger.With(
		"schedule_id", row.ID,
		"instance_id", row.InstanceID,
		"user_id", row.UserID,
	)

	eff, err := l.configs.Effective(ctx, row.InstanceID)
	if err != nil {
		// Missing instance or template is a configuration error; nothing
		// to retry until an administrator fixes it.
		log.Error("failed to resolve effective config", "error", err)
		return rowOutcome{result: SendFailure}
	}
	cfg := eff.Config

	if l.suppressionReached(ctx, cfg, row.UserID) {
		if err := l.store.SetSuppressReached(ctx, row.ID); err != nil {
			log.Error("failed to flag suppression", "error", err)
		}
		l.metrics.RecordSend(ctx, SendSuppressed)
		log.Info("suppression gate reached, send withheld")
		return rowOutcome{result: SendSuppressed}
	}

	user, err := l.enrolments.Recipient(ctx, row.UserID)
	if err != nil {
		log.Error("failed to resolve recipient", "error", err)
		return rowOutcome{result: SendFailure}
	}
	course, err := l.courses.GetByID(ctx, eff.CourseID)
	if err != nil {
		log.Error("failed to resolve course", "error", err)
		return rowOutcome{result: SendFailure}
	}

	cc, err := l.enrolments.UsersWithRoles(ctx, eff.CourseID, cfg.CC)
	if err != nil {
		log.Error("failed to resolve cc recipients", "error", err)
		return rowOutcome{result: SendFailure}
	}
	bcc, err := l.enrolments.UsersWithRoles(ctx, eff.CourseID, cfg.BCC)
	if err != nil {
		log.Error("failed to resolve bcc recipients", "error", err)
		return rowOutcome{result: SendFailure}
	}

	sender := l.resolveSender(ctx, eff)

	subject, bodyHTML, err := l.renderer.Render(ctx, cfg, *user, *course)
	if err != nil {
		log.Error("failed to render content", "error", err)
		return rowOutcome{result: SendFailure}
	}

	start := l.clock.Now()
	_, err = l.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, l.transport.Send(ctx, types.SendRequest{
			To:       *user,
			From:     sender,
			CC:       cc,
			BCC:      bcc,
			Subject:  subject,
			BodyHTML: bodyHTML,
		})
	})
	l.metrics.RecordSendLatency(ctx, l.clock.Now().Sub(start))
	if err != nil {
		// The row stays Queued with its schedule time in the past, so the
		// next invocation selects it again: unbounded, backoff-free retry.
		l.metrics.RecordSend(ctx, SendFailure)
		log.Warn("send failed, will retry next run", "error", err)
		return rowOutcome{result: SendFailure}
	}
	l.metrics.RecordSend(ctx, SendSuccess)

	if err := l.store.MarkSent(ctx, row.ID, now); err != nil {
		log.Error("send succeeded but state update failed", "error", err)
		return rowOutcome{result: SendFailure}
	}

	requeued, err := l.armSuccessor(ctx, row, eff, now)
	if err != nil {
		log.Error("failed to arm successor schedule", "error", err)
	}
	return rowOutcome{result: SendSuccess, requeued: requeued}
}

// armSuccessor creates the next occurrence for a recurring schedule. Each
// successful send schedules its own successor; there is no separate timer
// mechanism. Once-only intervals are terminal, and a reached notify limit
// ends the recurrence.
func (l *Loop) armSuccessor(ctx context.Context, row *types.Schedule, eff *types.EffectiveConfig, sentAt time.Time) (bool, error) {
	cfg := eff.Config
	if cfg.Interval.Kind == types.IntervalOnce {
		return false, nil
	}

	newCount := row.NotifyCount + 1
	if cfg.NotifyLimit > 0 && newCount >= cfg.NotifyLimit {
		return false, nil
	}

	var anchor *time.Time
	if cfg.Delay.Kind != types.DelayNone && cfg.Delay.Kind != "" {
		var err error
		anchor, err = l.anchors.AnchorTime(ctx, row.InstanceID, row.UserID)
		if err != nil {
			return false, fmt.Errorf("looking up delay anchor: %w", err)
		}
	}

	// The successor is computed from the actual send time, not wall-clock
	// drift from a fixed timer.
	next, err := schedule.NextRun(cfg.Interval, &sentAt, nil, cfg.Delay, anchor, &sentAt)
	if err != nil {
		return false, fmt.Errorf("computing next run: %w", err)
	}

	id, err := l.store.Upsert(ctx, row.InstanceID, row.UserID, cfg.Interval.Kind, next, newCount, true)
	if err != nil {
		return false, fmt.Errorf("upserting successor: %w", err)
	}
	return id != "", nil
}

// suppressionReached evaluates the suppression module gate: once the
// referenced modules are completed under the configured operator, further
// notification for the pair is withheld.
func (l *Loop) suppressionReached(ctx context.Context, cfg types.NotificationConfig, userID int64) bool {
	if len(cfg.SuppressModuleIDs) == 0 {
		return false
	}
	operator := cfg.SuppressOperator
	if operator == "" {
		operator = types.LogicAll
	}

	completed := 0
	for _, moduleID := range cfg.SuppressModuleIDs {
		done, err := l.completion.IsModuleCompleted(ctx, userID, moduleID)
		if err != nil {
			// Fail open: an unavailable completion source must not block
			// notifications.
			l.logger.Warn("suppression check failed, ignoring gate",
				"module_id", moduleID,
				"user_id", userID,
				"error", err,
			)
			return false
		}
		if done {
			if operator == types.LogicAny {
				return true
			}
			completed++
		}
	}
	return operator == types.LogicAll && completed == len(cfg.SuppressModuleIDs)
}

// resolveSender maps the configured sender policy to a concrete identity,
// falling back to the system sender.
func (l *Loop) resolveSender(ctx context.Context, eff *types.EffectiveConfig) types.SenderIdentity {
	cfg := eff.Config
	switch cfg.SenderPolicy {
	case types.SenderCustomEmail:
		if cfg.SenderEmail != "" {
			return types.SenderIdentity{Address: cfg.SenderEmail}
		}
	case types.SenderCourseTeacher, types.SenderGroupTeacher, types.SenderTenantRole:
		roleIDs := teacherRoleIDs
		if cfg.SenderPolicy == types.SenderTenantRole && cfg.SenderRoleID != 0 {
			roleIDs = []int64{cfg.SenderRoleID}
		}
		teachers, err := l.enrolments.UsersWithRoles(ctx, eff.CourseID, roleIDs)
		if err != nil {
			l.logger.Warn("failed to resolve sender role, using system sender",
				"instance_id", eff.InstanceID,
				"error", err,
			)
		} else if len(teachers) > 0 {
			return types.SenderIdentity{
				Name:    teachers[0].FullName,
				Address: teachers[0].Email,
			}
		}
	}
	return l.systemSender
}

// teacherRoleIDs are the platform's editing-teacher and teacher role ids.
var teacherRoleIDs = []int64{3, 4}
