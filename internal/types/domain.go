package types

import (
	"time"
)

// Template is a reusable notification automation definition. It is not bound
// to any course; instances bind it and may override any field. Deleting a
// template cascades to its instances' overrides, not to the instances
// themselves.
type Template struct {
	ID      string `json:"id" db:"id"`
	Title   string `json:"title" db:"title" validate:"required,max=255"`
	Visible bool   `json:"visible" db:"visible"`
	Status  Status `json:"status" db:"status"`

	// Categories restricts which course categories may attach this template.
	// Empty means unrestricted.
	Categories []int64 `json:"categories" db:"categories"`

	// Config holds the default value for every overridable action field.
	Config NotificationConfig `json:"config" db:"config"`

	// TriggerOperator aggregates the template's trigger conditions.
	TriggerOperator ConditionLogic `json:"trigger_operator" db:"trigger_operator"`

	// TriggerConditions is the default condition set, keyed by component.
	TriggerConditions ConditionMap `json:"trigger_conditions" db:"trigger_conditions"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NotificationConfig is the merged action configuration controlling the
// recipients, content, cadence and limits of a notification.
type NotificationConfig struct {
	// Recipient role IDs resolved via the enrolment service at send time.
	Recipients []int64 `json:"recipients"`
	CC         []int64 `json:"cc,omitempty"`
	BCC        []int64 `json:"bcc,omitempty"`

	Subject       string `json:"subject"`
	HeaderContent string `json:"header_content,omitempty"`
	StaticContent string `json:"static_content,omitempty"`
	FooterContent string `json:"footer_content,omitempty"`

	SenderPolicy SenderPolicy `json:"sender_policy"`
	// SenderEmail applies when SenderPolicy is custom_email.
	SenderEmail string `json:"sender_email,omitempty"`
	// SenderRoleID applies when SenderPolicy is tenant_role.
	SenderRoleID int64 `json:"sender_role_id,omitempty"`

	Interval IntervalSpec `json:"interval"`
	Delay    DelaySpec    `json:"delay"`

	// NotifyLimit caps sends per (instance,user). Zero means unlimited.
	NotifyLimit int `json:"notify_limit"`

	// Suppression gates further notification once the referenced module set
	// is completed, aggregated by SuppressOperator.
	SuppressModuleIDs []int64        `json:"suppress_module_ids,omitempty"`
	SuppressOperator  ConditionLogic `json:"suppress_operator,omitempty"`

	// DynamicModuleID references an activity whose intro content is appended
	// to the rendered body.
	DynamicModuleID int64 `json:"dynamic_module_id,omitempty"`
}

// IntervalSpec describes a recurrence cadence. Weekday applies to weekly,
// MonthDate to monthly; TimeOfDay ("HH:MM", 24h) to all recurring kinds.
type IntervalSpec struct {
	Kind      IntervalKind `json:"kind"`
	Weekday   time.Weekday `json:"weekday,omitempty"`
	MonthDate int          `json:"month_date,omitempty"`
	TimeOfDay string       `json:"time_of_day,omitempty"`
}

// DelaySpec offsets the computed due time, optionally anchored to an
// externally supplied event time such as a session start.
type DelaySpec struct {
	Kind     DelayKind     `json:"kind"`
	Duration time.Duration `json:"duration,omitempty"`
}

// InstanceOverride is the sparse override record of an instance. Every field
// is a tagged variant: inherited, overridden, or explicitly cleared.
// Effective config is always computed field-by-field, never as a
// whole-record fallback. Stored as a single JSONB column.
type InstanceOverride struct {
	Recipients Field[[]int64] `json:"recipients"`
	CC         Field[[]int64] `json:"cc"`
	BCC        Field[[]int64] `json:"bcc"`

	Subject       Field[string] `json:"subject"`
	HeaderContent Field[string] `json:"header_content"`
	StaticContent Field[string] `json:"static_content"`
	FooterContent Field[string] `json:"footer_content"`

	SenderPolicy Field[SenderPolicy] `json:"sender_policy"`
	SenderEmail  Field[string]       `json:"sender_email"`
	SenderRoleID Field[int64]        `json:"sender_role_id"`

	Interval Field[IntervalSpec] `json:"interval"`
	Delay    Field[DelaySpec]    `json:"delay"`

	NotifyLimit Field[int] `json:"notify_limit"`

	SuppressModuleIDs Field[[]int64]        `json:"suppress_module_ids"`
	SuppressOperator  Field[ConditionLogic] `json:"suppress_operator"`

	DynamicModuleID Field[int64] `json:"dynamic_module_id"`

	TriggerOperator Field[ConditionLogic] `json:"trigger_operator"`
}

// Instance binds a template to a course with optional field-level overrides.
type Instance struct {
	ID         string `json:"id" db:"id"`
	TemplateID string `json:"template_id" db:"template_id" validate:"required"`
	CourseID   int64  `json:"course_id" db:"course_id" validate:"required"`
	Status     Status `json:"status" db:"status"`

	Overrides InstanceOverride `json:"overrides" db:"overrides"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ConditionSetting is the per-instance (or template default) configuration
// of a single condition plugin.
type ConditionSetting struct {
	Component string          `json:"component"`
	Status    ConditionStatus `json:"status"`

	// UpcomingTime is meaningful only when Status is ConditionFuture: users
	// enrolled before this cutoff are exempt from the condition.
	UpcomingTime *time.Time `json:"upcoming_time,omitempty"`

	// IsOverridden distinguishes "instance explicitly set this" from
	// "inherited from the template's trigger-condition list".
	IsOverridden bool `json:"is_overridden"`

	// Extra carries plugin-specific data, e.g. a cohort id list.
	Extra map[string]any `json:"extra,omitempty"`
}

// Schedule is one queued, due-dated unit of work: a pending or historical
// notification send for one (instance, user) pair. At most one active
// (Queued or Disabled) row exists per pair; Sent rows accumulate as history.
type Schedule struct {
	ID         string `json:"id" db:"id"`
	InstanceID string `json:"instance_id" db:"instance_id"`
	UserID     int64  `json:"user_id" db:"user_id"`

	// Type is a copy of the interval kind at creation time.
	Type   IntervalKind   `json:"type" db:"type"`
	Status ScheduleStatus `json:"status" db:"status"`

	ScheduleTime    time.Time  `json:"schedule_time" db:"schedule_time"`
	NotifiedTime    *time.Time `json:"notified_time,omitempty" db:"notified_time"`
	NotifyCount     int        `json:"notify_count" db:"notify_count"`
	SuppressReached bool       `json:"suppress_reached" db:"suppress_reached"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Enrolment is a user's membership in a course, as exposed by the enrolment
// service backing table.
type Enrolment struct {
	UserID      int64           `db:"user_id"`
	CourseID    int64           `db:"course_id"`
	Status      EnrolmentStatus `db:"status"`
	Suspended   bool            `db:"suspended"`
	TimeCreated time.Time       `db:"time_created"`
}

// Recipient is the minimal user projection needed to address a send.
type Recipient struct {
	ID       int64  `json:"id" db:"id"`
	Email    string `json:"email" db:"email"`
	FullName string `json:"full_name" db:"full_name"`
}

// Course is the minimal course projection needed for dispatch eligibility
// and rendering context.
type Course struct {
	ID       int64  `json:"id" db:"id"`
	FullName string `json:"full_name" db:"full_name"`
	Visible  bool   `json:"visible" db:"visible"`
	Category int64  `json:"category" db:"category"`
}

// EffectiveConfig is an instance's fully resolved configuration: overrides
// applied over template defaults, condition map merged. Callers hold and
// pass this object explicitly; there is no process-wide cached instance.
type EffectiveConfig struct {
	InstanceID string
	TemplateID string
	CourseID   int64
	Status     Status

	Config          NotificationConfig
	TriggerOperator ConditionLogic
	Conditions      map[string]ConditionSetting
}

// ActiveConditions returns the settings whose status is not disabled.
func (e *EffectiveConfig) ActiveConditions() []ConditionSetting {
	var out []ConditionSetting
	for _, c := range e.Conditions {
		if c.Status > ConditionDisabled {
			out = append(out, c)
		}
	}
	return out
}

// SendRequest carries everything the mail transport needs for one message.
type SendRequest struct {
	To       Recipient
	From     SenderIdentity
	CC       []Recipient
	BCC      []Recipient
	Subject  string
	BodyText string
	BodyHTML string
}

// SenderIdentity defines the sender for outgoing mail.
type SenderIdentity struct {
	Name    string
	Address string
}

// ScheduleArchiveRecord is the exported form of a historical Sent row.
type ScheduleArchiveRecord struct {
	ID           string       `json:"id"`
	InstanceID   string       `json:"instance_id"`
	UserID       int64        `json:"user_id"`
	Type         IntervalKind `json:"type"`
	ScheduleTime time.Time    `json:"schedule_time"`
	NotifiedTime *time.Time   `json:"notified_time,omitempty"`
	NotifyCount  int          `json:"notify_count"`
	CreatedAt    time.Time    `json:"created_at"`
}
