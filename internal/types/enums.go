package types

// Status represents the lifecycle state of a template or instance.
type Status string

const (
	StatusEnabled  Status = "enabled"
	StatusDisabled Status = "disabled"
)

// ConditionLogic determines how multiple trigger conditions are combined.
type ConditionLogic string

const (
	LogicAny ConditionLogic = "ANY"
	LogicAll ConditionLogic = "ALL"
)

// ConditionStatus is the per-instance activation mode of a condition plugin.
type ConditionStatus int

const (
	// ConditionDisabled excludes the condition from evaluation entirely.
	ConditionDisabled ConditionStatus = 0
	// ConditionAll applies the condition to every enrolled user.
	ConditionAll ConditionStatus = 1
	// ConditionFuture applies the condition only to users enrolled at or
	// after the condition's upcoming cutoff time.
	ConditionFuture ConditionStatus = 2
)

// IntervalKind is the recurrence cadence of a notification.
type IntervalKind string

const (
	IntervalOnce    IntervalKind = "once"
	IntervalDaily   IntervalKind = "daily"
	IntervalWeekly  IntervalKind = "weekly"
	IntervalMonthly IntervalKind = "monthly"
)

// DelayKind positions the send relative to the computed due time.
type DelayKind string

const (
	DelayNone   DelayKind = "none"
	DelayBefore DelayKind = "before"
	DelayAfter  DelayKind = "after"
)

// SenderPolicy determines who a notification appears to be sent from.
type SenderPolicy string

const (
	SenderCourseTeacher SenderPolicy = "course_teacher"
	SenderGroupTeacher  SenderPolicy = "group_teacher"
	SenderTenantRole    SenderPolicy = "tenant_role"
	SenderCustomEmail   SenderPolicy = "custom_email"
)

// ScheduleStatus is the state machine value of a schedule row.
//
// Failed exists only as an initial or manually-set value; normal dispatch
// never transitions a row into it. A failed send leaves the row Queued so
// the next batch run retries it.
type ScheduleStatus int

const (
	ScheduleFailed   ScheduleStatus = 0
	ScheduleDisabled ScheduleStatus = 1
	ScheduleQueued   ScheduleStatus = 2
	ScheduleSent     ScheduleStatus = 3
)

// EnrolmentStatus represents the state of a user's course enrolment.
type EnrolmentStatus string

const (
	EnrolmentActive  EnrolmentStatus = "active"
	EnrolmentRemoved EnrolmentStatus = "removed"
)

// Built-in condition plugin component names.
const (
	ConditionCohort     = "cohort"
	ConditionCompletion = "completion"
	ConditionEnrolment  = "enrolment"
)
