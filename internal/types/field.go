package types

import (
	"encoding/json"
	"fmt"
)

// FieldState describes how a single overridable field relates to its
// template default.
type FieldState string

const (
	// FieldInherited means the instance carries no opinion; the template
	// default applies and future template edits propagate.
	FieldInherited FieldState = "inherited"
	// FieldOverridden means the instance pins its own value for the field.
	FieldOverridden FieldState = "overridden"
	// FieldCleared means the instance explicitly forces the field empty.
	// Distinct from Inherited: the zero value wins over the template default.
	FieldCleared FieldState = "cleared"
)

// Field is a single overridable configuration field modelled as a tagged
// variant rather than a nullable value, so "absent" and "intentionally
// empty" never conflate. The zero Field is Inherited.
type Field[T any] struct {
	state FieldState
	value T
}

// Inherit returns a field that tracks the template default.
func Inherit[T any]() Field[T] {
	return Field[T]{state: FieldInherited}
}

// Override returns a field pinned to the given value.
func Override[T any](v T) Field[T] {
	return Field[T]{state: FieldOverridden, value: v}
}

// Clear returns a field that forces the zero value regardless of the
// template default.
func Clear[T any]() Field[T] {
	return Field[T]{state: FieldCleared}
}

// State returns the field's variant tag. The zero Field reports Inherited.
func (f Field[T]) State() FieldState {
	if f.state == "" {
		return FieldInherited
	}
	return f.state
}

// IsSet reports whether the field carries an instance-level decision
// (overridden or cleared).
func (f Field[T]) IsSet() bool {
	return f.State() != FieldInherited
}

// Value returns the overridden value and whether one is present.
func (f Field[T]) Value() (T, bool) {
	if f.State() == FieldOverridden {
		return f.value, true
	}
	var zero T
	return zero, false
}

// Resolve applies the field over a base value: overridden wins, cleared
// forces the zero value, inherited falls back to base.
func (f Field[T]) Resolve(base T) T {
	switch f.State() {
	case FieldOverridden:
		return f.value
	case FieldCleared:
		var zero T
		return zero
	default:
		return base
	}
}

// fieldJSON is the stored wire form of a non-inherited field.
type fieldJSON[T any] struct {
	State FieldState      `json:"state"`
	Value json.RawMessage `json:"value,omitempty"`
}

// MarshalJSON encodes inherited fields as null so sparse override records
// stay sparse in storage.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	switch f.State() {
	case FieldInherited:
		return []byte("null"), nil
	case FieldCleared:
		return json.Marshal(fieldJSON[T]{State: FieldCleared})
	default:
		raw, err := json.Marshal(f.value)
		if err != nil {
			return nil, fmt.Errorf("marshal override value: %w", err)
		}
		return json.Marshal(fieldJSON[T]{State: FieldOverridden, Value: raw})
	}
}

// UnmarshalJSON decodes null (or absence) as Inherited and otherwise
// restores the tagged variant.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = Field[T]{state: FieldInherited}
		return nil
	}
	var wire fieldJSON[T]
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("unmarshal override field: %w", err)
	}
	switch wire.State {
	case FieldCleared:
		*f = Field[T]{state: FieldCleared}
	case FieldOverridden:
		var v T
		if len(wire.Value) > 0 {
			if err := json.Unmarshal(wire.Value, &v); err != nil {
				return fmt.Errorf("unmarshal override value: %w", err)
			}
		}
		*f = Field[T]{state: FieldOverridden, value: v}
	case FieldInherited, "":
		*f = Field[T]{state: FieldInherited}
	default:
		return fmt.Errorf("unknown override field state %q", wire.State)
	}
	return nil
}
