package business

import (
	"errors"
	"strings"
)

// ErrContextNotFound is returned when no business context exists for a device.
var ErrContextNotFound = errors.New("business context not found")

// ValidationError lists every problem found in a business context.
type ValidationError struct {
	DeviceID string
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid business context for device " + e.DeviceID + ": " + strings.Join(e.Problems, "; ")
}
