package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringMap is a JSON object column of string values (header templates).
// Works with sqlx on both postgres jsonb/text and sqlite text columns.
type StringMap map[string]string

func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *StringMap) Scan(value any) error {
	var b []byte
	switch v := value.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("StringMap: expected []byte or string, got %T", value)
	}

	if len(b) == 0 {
		*m = nil
		return nil
	}

	return json.Unmarshal(b, m)
}
