package business

import (
	"fmt"
	"strings"
	"time"
)

var weekdayKeys = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Location loads the configured timezone, UTC when empty.
func (h *OperatingHours) Location() (*time.Location, error) {
	if h.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(h.Timezone)
}

// IsOpen reports whether now falls inside the window configured for its local weekday.
// Disabled hours are always open.
func (h *OperatingHours) IsOpen(now time.Time) (bool, error) {
	if !h.Enabled {
		return true, nil
	}
	loc, err := h.Location()
	if err != nil {
		return false, err
	}
	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()

	if day, ok := h.day(local.Weekday()); ok && day.Open {
		start, end, err := day.bounds()
		if err != nil {
			return false, err
		}
		if start <= end {
			if minute >= start && minute < end {
				return true, nil
			}
		} else if minute >= start {
			return true, nil
		}
	}

	// The tail of yesterday's window when it wraps past midnight.
	if prev, ok := h.day((local.Weekday() + 6) % 7); ok && prev.Open {
		start, end, err := prev.bounds()
		if err != nil {
			return false, err
		}
		if end < start && minute < end {
			return true, nil
		}
	}
	return false, nil
}

func (h *OperatingHours) day(wd time.Weekday) (DayHours, bool) {
	for key, d := range h.Days {
		if w, ok := weekdayKeys[strings.ToLower(key)]; ok && w == wd {
			return d, true
		}
	}
	return DayHours{}, false
}

func (d DayHours) bounds() (start, end int, err error) {
	if start, err = parseClock(d.Start); err != nil {
		return 0, 0, err
	}
	if end, err = parseClock(d.End); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// parseClock converts "HH:MM" into minutes after midnight; "24:00" is end of day.
func parseClock(s string) (int, error) {
	if s == "24:00" {
		return 24 * 60, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
