package models

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"time"
)

// Millis stores a time.Time as integer milliseconds since the Unix epoch.
// The zero value maps to SQL NULL.
type Millis struct {
	time.Time
}

// NewMillis truncates t to millisecond precision in UTC.
func NewMillis(t time.Time) Millis {
	if t.IsZero() {
		return Millis{}
	}
	return Millis{Time: time.UnixMilli(t.UnixMilli()).UTC()}
}

func (m Millis) Value() (driver.Value, error) {
	if m.IsZero() {
		return nil, nil
	}
	return m.UnixMilli(), nil
}

func (m *Millis) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		m.Time = time.Time{}
		return nil
	case int64:
		m.Time = time.UnixMilli(v).UTC()
		return nil
	case []byte:
		return m.parse(string(v))
	case string:
		return m.parse(v)
	case time.Time:
		m.Time = v.UTC()
		return nil
	}
	return fmt.Errorf("Millis: unsupported type %T", value)
}

func (m *Millis) parse(s string) error {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("Millis: %w", err)
	}
	m.Time = time.UnixMilli(n).UTC()
	return nil
}
