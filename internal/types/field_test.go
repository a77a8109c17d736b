package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestField_ZeroValueIsInherited(t *testing.T) {
	var f Field[string]
	assert.Equal(t, FieldInherited, f.State())
	assert.False(t, f.IsSet())
	assert.Equal(t, "base", f.Resolve("base"))
}

func TestField_OverriddenWins(t *testing.T) {
	f := Override("custom subject")
	assert.Equal(t, FieldOverridden, f.State())
	assert.True(t, f.IsSet())
	assert.Equal(t, "custom subject", f.Resolve("base"))
}

func TestField_ClearedForcesZero(t *testing.T) {
	f := Clear[string]()
	assert.Equal(t, FieldCleared, f.State())
	assert.Equal(t, "", f.Resolve("base"))
}

func TestField_OverriddenZeroValueStillWins(t *testing.T) {
	// Overriding with the zero value is distinct from inheriting: an
	// explicit limit of 0 must not fall back to the template's limit.
	f := Override(0)
	assert.Equal(t, 0, f.Resolve(5))
}

func TestField_MarshalInheritedAsNull(t *testing.T) {
	f := Inherit[int]()
	b, err := json.Marshal(f)
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}

func TestField_MarshalRoundTrip(t *testing.T) {
	f := Override([]int64{3, 4})
	b, err := json.Marshal(f)
	require.NoError(t, err)

	var back Field[[]int64]
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, FieldOverridden, back.State())
	v, ok := back.Value()
	require.True(t, ok)
	assert.Equal(t, []int64{3, 4}, v)
}

func TestField_UnmarshalNullIsInherited(t *testing.T) {
	var f Field[string]
	require.NoError(t, json.Unmarshal([]byte("null"), &f))
	assert.Equal(t, FieldInherited, f.State())
}

func TestField_ClearedRoundTrip(t *testing.T) {
	f := Clear[int]()
	b, err := json.Marshal(f)
	require.NoError(t, err)

	var back Field[int]
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, FieldCleared, back.State())
	assert.Equal(t, 0, back.Resolve(9))
}

func TestInstanceOverride_AbsentFieldsInherit(t *testing.T) {
	// A sparse JSON record leaves every unnamed field inherited.
	var o InstanceOverride
	require.NoError(t, json.Unmarshal([]byte(`{"subject":{"state":"overridden","value":"Hi"}}`), &o))

	assert.Equal(t, FieldOverridden, o.Subject.State())
	assert.Equal(t, FieldInherited, o.NotifyLimit.State())
	assert.Equal(t, FieldInherited, o.Interval.State())
}
