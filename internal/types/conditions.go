package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// ConditionMap holds condition settings keyed by plugin component name.
// It implements sql.Scanner and driver.Valuer for JSONB column storage.
type ConditionMap map[string]ConditionSetting

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (m *ConditionMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("condition map: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, m)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (m ConditionMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Clone returns a deep-enough copy for merge operations: settings are value
// types, Extra maps are copied.
func (m ConditionMap) Clone() ConditionMap {
	if m == nil {
		return nil
	}
	out := make(ConditionMap, len(m))
	for k, v := range m {
		if v.Extra != nil {
			extra := make(map[string]any, len(v.Extra))
			for ek, ev := range v.Extra {
				extra[ek] = ev
			}
			v.Extra = extra
		}
		out[k] = v
	}
	return out
}
