package types

import (
	"context"
	"time"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// Logger defines the structured logging interface used throughout the service.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}

// MailTransport executes a single synchronous send. The dispatch loop only
// checks the error result: nil means sent, anything else leaves the schedule
// row queued for retry on the next run.
type MailTransport interface {
	Send(ctx context.Context, req SendRequest) error
}

// ContentRenderer substitutes placeholders into the configured content and
// returns the final subject and HTML body. Templating itself is an external
// collaborator; the dispatch loop calls it once per send.
type ContentRenderer interface {
	Render(ctx context.Context, cfg NotificationConfig, user Recipient, course Course) (subject, bodyHTML string, err error)
}

// EnrolmentService provides role and enrolment lookups. Implementations are
// assumed to be backed by the host platform's enrolment data.
type EnrolmentService interface {
	// UsersWithRoles returns the active users holding any of the roles in
	// the course context.
	UsersWithRoles(ctx context.Context, courseID int64, roleIDs []int64) ([]Recipient, error)

	// EnrolmentCreateTime returns when the user's enrolment in the course
	// was created, or nil if the user is not enrolled.
	EnrolmentCreateTime(ctx context.Context, userID, courseID int64) (*time.Time, error)

	// EnrolledUserIDs lists active, non-suspended enrolled users of a course.
	EnrolledUserIDs(ctx context.Context, courseID int64) ([]int64, error)

	// Recipient resolves a single user for addressing.
	Recipient(ctx context.Context, userID int64) (*Recipient, error)
}

// ConditionPlugin is the fixed capability a condition component provides.
// Plugins are stateless aside from reading external completion or
// enrolment data through their own dependencies.
type ConditionPlugin interface {
	// IsUserCompleted reports whether the user satisfies the condition
	// under the given merged instance setting.
	IsUserCompleted(ctx context.Context, setting ConditionSetting, userID int64) (bool, error)
}

// AnchorSource supplies the external anchor time (e.g. a linked session's
// start) that pre/post delays attach to. A nil time means no anchor exists
// for the pair.
type AnchorSource interface {
	AnchorTime(ctx context.Context, instanceID string, userID int64) (*time.Time, error)
}

// CompletionSource reports activity-module completion, used both by the
// completion condition plugin and by suppression gating.
type CompletionSource interface {
	IsModuleCompleted(ctx context.Context, userID, moduleID int64) (bool, error)
}
