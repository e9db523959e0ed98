package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// marshalJSONB encodes a value for a JSONB column.
func marshalJSONB(v interface{}, name string) (driver.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", name, err)
	}
	return data, nil
}

// unmarshalJSONB decodes a JSONB column value. It reports false for NULL or empty payloads.
func unmarshalJSONB(value interface{}, dest interface{}, name string) (bool, error) {
	if value == nil {
		return false, nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return false, fmt.Errorf("unsupported type %T for %s", value, name)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return true, nil
}
