package billing

import (
	"errors"
	"fmt"
)

// ErrLedgerUnavailable is returned by Preflight when spend totals cannot be
// read and the governor is configured to fail closed
var ErrLedgerUnavailable = errors.New("usage ledger unavailable")

// CostLimitExceeded blocks a request whose device already spent its daily or monthly ceiling.
type CostLimitExceeded struct {
	DeviceID string
	Period   Period
	Spent    float64
	Limit    float64
}

func (e *CostLimitExceeded) Error() string {
	return fmt.Sprintf("device %s reached its %s cost limit: spent $%.4f of $%.4f", e.DeviceID, e.Period, e.Spent, e.Limit)
}
