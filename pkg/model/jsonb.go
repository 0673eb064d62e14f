package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB is an opaque structured payload stored as a jsonb column.
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("failed to scan JSONB: %v", value)
	}
	return json.Unmarshal(bytes, j)
}

func (j JSONB) GormDataType() string {
	return "jsonb"
}

// Clone returns a deep copy via a JSON round trip.
func (j JSONB) Clone() JSONB {
	if j == nil {
		return nil
	}
	data, err := json.Marshal(j)
	if err != nil {
		return j
	}
	var out JSONB
	if err := json.Unmarshal(data, &out); err != nil {
		return j
	}
	return out
}
