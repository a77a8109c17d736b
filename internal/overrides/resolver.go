// Package overrides implements the sparse override-resolution model shared
// by instance config, condition config, and action config. An instance's
// effective configuration is always computed field-by-field over the
// template defaults; no record-level fallback exists.
package overrides

import (
	"context"
	"fmt"

	"coursepulse/internal/types"
)

// OverrideStore is the persistence surface the resolver needs for the
// remove-overrides operation. Implemented by db.InstanceRepository.
type OverrideStore interface {
	// ClearOverrideFields resets the named override fields of an instance
	// back to the inherited state in storage.
	ClearOverrideFields(ctx context.Context, instanceID string, fields []string) error
}

// Resolver merges sparse override records over base records and manages
// override removal. The same resolver is applied uniformly to instance
// config, condition overrides, and action overrides.
type Resolver struct {
	store OverrideStore
}

// NewResolver creates a Resolver backed by the given store.
func NewResolver(store OverrideStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve computes an instance's effective configuration from its override
// record and the template defaults. Every overridable field is resolved
// independently: overridden wins, cleared forces empty, inherited falls
// back to the template.
func Resolve(instance *types.Instance, template *types.Template) types.EffectiveConfig {
	o := instance.Overrides
	base := template.Config

	cfg := types.NotificationConfig{
		Recipients: o.Recipients.Resolve(base.Recipients),
		CC:         o.CC.Resolve(base.CC),
		BCC:        o.BCC.Resolve(base.BCC),

		Subject:       o.Subject.Resolve(base.Subject),
		HeaderContent: o.HeaderContent.Resolve(base.HeaderContent),
		StaticContent: o.StaticContent.Resolve(base.StaticContent),
		FooterContent: o.FooterContent.Resolve(base.FooterContent),

		SenderPolicy: o.SenderPolicy.Resolve(base.SenderPolicy),
		SenderEmail:  o.SenderEmail.Resolve(base.SenderEmail),
		SenderRoleID: o.SenderRoleID.Resolve(base.SenderRoleID),

		Interval: o.Interval.Resolve(base.Interval),
		Delay:    o.Delay.Resolve(base.Delay),

		NotifyLimit: o.NotifyLimit.Resolve(base.NotifyLimit),

		SuppressModuleIDs: o.SuppressModuleIDs.Resolve(base.SuppressModuleIDs),
		SuppressOperator:  o.SuppressOperator.Resolve(base.SuppressOperator),

		DynamicModuleID: o.DynamicModuleID.Resolve(base.DynamicModuleID),
	}

	return types.EffectiveConfig{
		InstanceID:      instance.ID,
		TemplateID:      template.ID,
		CourseID:        instance.CourseID,
		Status:          instance.Status,
		Config:          cfg,
		TriggerOperator: o.TriggerOperator.Resolve(template.TriggerOperator),
	}
}

// MergeConditions applies instance-level condition settings over the
// template's trigger-condition defaults. Settings the instance explicitly
// set keep is_overridden=true; everything else is the template default with
// is_overridden=false.
func MergeConditions(templateConds types.ConditionMap, instanceConds []types.ConditionSetting) map[string]types.ConditionSetting {
	merged := make(map[string]types.ConditionSetting, len(templateConds)+len(instanceConds))
	for component, setting := range templateConds.Clone() {
		setting.Component = component
		setting.IsOverridden = false
		merged[component] = setting
	}
	for _, setting := range instanceConds {
		setting.IsOverridden = true
		merged[setting.Component] = setting
	}
	return merged
}

// RemoveOverrides explicitly resets previously-overridden fields back to
// the inherited state in storage. This is a distinct operation from a field
// simply being absent: storage must remember the field no longer overrides
// so future template edits propagate again.
func (r *Resolver) RemoveOverrides(ctx context.Context, instanceID string, fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	for _, f := range fields {
		if !KnownOverrideField(f) {
			return types.NewAppError(types.ErrCodeValidationOverride,
				fmt.Sprintf("unknown override field %q", f), nil)
		}
	}
	return r.store.ClearOverrideFields(ctx, instanceID, fields)
}

// overrideFields is the complete set of overridable field names as stored
// in the instance override JSONB record.
var overrideFields = map[string]struct{}{
	"recipients":          {},
	"cc":                  {},
	"bcc":                 {},
	"subject":             {},
	"header_content":      {},
	"static_content":      {},
	"footer_content":      {},
	"sender_policy":       {},
	"sender_email":        {},
	"sender_role_id":      {},
	"interval":            {},
	"delay":               {},
	"notify_limit":        {},
	"suppress_module_ids": {},
	"suppress_operator":   {},
	"dynamic_module_id":   {},
	"trigger_operator":    {},
}

// KnownOverrideField reports whether the name is a valid overridable field.
func KnownOverrideField(name string) bool {
	_, ok := overrideFields[name]
	return ok
}
