// Package billing enforces per-device spend ceilings and records usage.
//
// Preflight and RecordUsage are not atomic: concurrent requests from one device
// can each pass preflight before either charge lands, so a ceiling may be
// overshot by the cost of the requests already in flight.
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ai_gateway/internal/models"
	"ai_gateway/internal/utils"
)

// Period names a spend window
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodMonthly Period = "monthly"
)

// DefaultAlertThreshold is used when limits carry no alert fraction
const DefaultAlertThreshold = 0.8

// costPrecision is the number of decimal places money is compared at
const costPrecision = 9

// Limits are a device's spend ceilings in USD; zero means unlimited.
type Limits struct {
	DailyUSD       float64
	MonthlyUSD     float64
	AlertThreshold float64
}

// Ledger is the append-only usage ledger
type Ledger interface {
	Append(ctx context.Context, record *models.UsageRecord) error
	SumCost(ctx context.Context, deviceID string, from, to time.Time) (float64, error)
}

// AlertStore persists threshold alerts with at most one open alert per (device, type, period)
type AlertStore interface {
	CreateIfAbsent(ctx context.Context, alert *models.CostAlert) (bool, error)
	Resolve(ctx context.Context, id uuid.UUID) error
	ListOpen(ctx context.Context, deviceID string) ([]*models.CostAlert, error)
}

// SpendTotals reports a device's spend for the day and month containing now
type SpendTotals interface {
	Totals(ctx context.Context, deviceID string, now time.Time) (daily, monthly float64, err error)
}

// SpendCounter is bumped after every successful charge
type SpendCounter interface {
	Add(ctx context.Context, deviceID string, costUSD float64, at time.Time) error
}

// Decision is the outcome of a spend check
type Decision struct {
	Allowed     bool    `json:"allowed"`
	Reason      string  `json:"reason,omitempty"`
	DailyCost   float64 `json:"daily_cost"`
	MonthlyCost float64 `json:"monthly_cost"`
}

// Spend is a device's current spend with the period keys it belongs to
type Spend struct {
	DeviceID    string  `json:"device_id"`
	Day         string  `json:"day"`
	Month       string  `json:"month"`
	DailyCost   float64 `json:"daily_cost"`
	MonthlyCost float64 `json:"monthly_cost"`
}

// Options tune a Governor
type Options struct {
	// FailOpenOnLedgerError allows requests when spend totals cannot be read
	FailOpenOnLedgerError bool
	// Location defines where days and months start; defaults to UTC
	Location *time.Location
	// Totals overrides where spend totals come from; defaults to summing the ledger
	Totals SpendTotals
	// Counter, when set, is bumped after each successful charge
	Counter SpendCounter
	// Now overrides the clock
	Now func() time.Time
}

// Governor checks spend before a provider call and records it afterwards.
type Governor struct {
	ledger   Ledger
	alerts   AlertStore
	totals   SpendTotals
	counter  SpendCounter
	failOpen bool
	location *time.Location
	now      func() time.Time
	logger   *utils.Logger
}

// NewGovernor creates a governor over a ledger and an alert store
func NewGovernor(ledger Ledger, alerts AlertStore, opts Options) *Governor {
	g := &Governor{
		ledger:   ledger,
		alerts:   alerts,
		totals:   opts.Totals,
		counter:  opts.Counter,
		failOpen: opts.FailOpenOnLedgerError,
		location: opts.Location,
		now:      opts.Now,
		logger:   utils.NewLogger("billing"),
	}
	if g.location == nil {
		g.location = time.UTC
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.totals == nil {
		g.totals = NewLedgerTotals(ledger, g.location)
	}
	return g
}

// Check evaluates the device's spend against its limits. The error is non-nil
// only when totals could not be read.
func (g *Governor) Check(ctx context.Context, deviceID string, limits Limits) (Decision, error) {
	if limits.DailyUSD <= 0 && limits.MonthlyUSD <= 0 {
		return Decision{Allowed: true}, nil
	}

	daily, monthly, err := g.totals.Totals(ctx, deviceID, g.now())
	if err != nil {
		return Decision{}, err
	}

	decision := Decision{Allowed: true, DailyCost: daily, MonthlyCost: monthly}
	if reached(daily, limits.DailyUSD) {
		decision.Allowed = false
		decision.Reason = fmt.Sprintf("daily limit of $%.2f reached", limits.DailyUSD)
	} else if reached(monthly, limits.MonthlyUSD) {
		decision.Allowed = false
		decision.Reason = fmt.Sprintf("monthly limit of $%.2f reached", limits.MonthlyUSD)
	}
	return decision, nil
}

// Preflight returns *CostLimitExceeded when either ceiling is already reached.
// A spend total exactly at the ceiling blocks.
func (g *Governor) Preflight(ctx context.Context, deviceID string, limits Limits) error {
	decision, err := g.Check(ctx, deviceID, limits)
	if err != nil {
		if g.failOpen {
			g.logger.Warn("Spend totals unavailable, allowing request", "device", deviceID, "error", err)
			return nil
		}
		g.logger.Error("Spend totals unavailable, blocking request", "device", deviceID, "error", err)
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	if decision.Allowed {
		return nil
	}

	exceeded := &CostLimitExceeded{DeviceID: deviceID}
	if reached(decision.DailyCost, limits.DailyUSD) {
		exceeded.Period, exceeded.Spent, exceeded.Limit = PeriodDaily, decision.DailyCost, limits.DailyUSD
	} else {
		exceeded.Period, exceeded.Spent, exceeded.Limit = PeriodMonthly, decision.MonthlyCost, limits.MonthlyUSD
	}
	g.logger.Info("Request blocked by cost limit", "device", deviceID, "period", exceeded.Period, "spent", exceeded.Spent, "limit", exceeded.Limit)
	return exceeded
}

// RecordUsage appends an attempt to the ledger. Failed attempts are stored
// with zero cost and an error message.
func (g *Governor) RecordUsage(ctx context.Context, record *models.UsageRecord) error {
	record.Normalize(g.now())

	if err := g.ledger.Append(ctx, record); err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}

	if g.counter != nil && record.Success && record.CostUSD > 0 {
		if err := g.counter.Add(ctx, record.DeviceID, record.CostUSD, record.CreatedAt.Time); err != nil {
			g.logger.Warn("Failed to update spend counter", "device", record.DeviceID, "error", err)
		}
	}
	return nil
}

// CheckAndAlert raises a threshold alert for each period whose spend reached
// limit × alert threshold, unless an unresolved alert for that period already
// exists. It returns the alerts it created.
func (g *Governor) CheckAndAlert(ctx context.Context, deviceID string, limits Limits, cost float64) ([]*models.CostAlert, error) {
	if cost <= 0 || (limits.DailyUSD <= 0 && limits.MonthlyUSD <= 0) {
		return nil, nil
	}

	now := g.now().In(g.location)
	daily, monthly, err := g.totals.Totals(ctx, deviceID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to read spend totals: %w", err)
	}

	fraction := limits.AlertThreshold
	if fraction <= 0 {
		fraction = DefaultAlertThreshold
	}

	checks := []struct {
		alertType models.AlertType
		period    string
		total     float64
		limit     float64
	}{
		{models.AlertTypeDailyThreshold, models.DailyPeriod(now), daily, limits.DailyUSD},
		{models.AlertTypeMonthlyThreshold, models.MonthlyPeriod(now), monthly, limits.MonthlyUSD},
	}

	var created []*models.CostAlert
	for _, c := range checks {
		if c.limit <= 0 {
			continue
		}
		threshold := decimal.NewFromFloat(c.limit).Mul(decimal.NewFromFloat(fraction)).InexactFloat64()
		if !reached(c.total, threshold) {
			continue
		}

		alert := &models.CostAlert{
			DeviceID:    deviceID,
			AlertType:   c.alertType,
			Period:      c.period,
			CurrentCost: c.total,
			LimitAmount: c.limit,
		}
		inserted, err := g.alerts.CreateIfAbsent(ctx, alert)
		if err != nil {
			return created, fmt.Errorf("failed to create %s alert: %w", c.alertType, err)
		}
		if inserted {
			g.logger.Warn("Cost alert raised", "device", deviceID, "type", c.alertType, "period", c.period, "cost", c.total, "limit", c.limit)
			created = append(created, alert)
		}
	}
	return created, nil
}

// ResolveAlert closes an alert so the next threshold crossing raises a new one
func (g *Governor) ResolveAlert(ctx context.Context, id uuid.UUID) error {
	return g.alerts.Resolve(ctx, id)
}

// OpenAlerts lists a device's unresolved alerts
func (g *Governor) OpenAlerts(ctx context.Context, deviceID string) ([]*models.CostAlert, error) {
	return g.alerts.ListOpen(ctx, deviceID)
}

// Spend reports the device's spend for the current day and month
func (g *Governor) Spend(ctx context.Context, deviceID string) (*Spend, error) {
	now := g.now().In(g.location)
	daily, monthly, err := g.totals.Totals(ctx, deviceID, now)
	if err != nil {
		return nil, err
	}
	return &Spend{
		DeviceID:    deviceID,
		Day:         models.DailyPeriod(now),
		Month:       models.MonthlyPeriod(now),
		DailyCost:   daily,
		MonthlyCost: monthly,
	}, nil
}

// reached reports whether total >= limit for a positive limit
func reached(total, limit float64) bool {
	if limit <= 0 {
		return false
	}
	t := decimal.NewFromFloat(total).Round(costPrecision)
	l := decimal.NewFromFloat(limit).Round(costPrecision)
	return t.GreaterThanOrEqual(l)
}
