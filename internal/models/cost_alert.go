package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertType distinguishes daily and monthly spend threshold alerts.
type AlertType string

const (
	AlertTypeDailyThreshold   AlertType = "daily_threshold"
	AlertTypeMonthlyThreshold AlertType = "monthly_threshold"
)

// CostAlert records that a device crossed the alert fraction of a spend limit.
// At most one unresolved alert exists per (device, type, period).
type CostAlert struct {
	ID          uuid.UUID `db:"id" json:"id"`
	DeviceID    string    `db:"device_id" json:"device_id"`
	AlertType   AlertType `db:"alert_type" json:"alert_type"`
	Period      string    `db:"period" json:"period"`
	CurrentCost float64   `db:"current_cost" json:"current_cost"`
	LimitAmount float64   `db:"limit_amount" json:"limit_amount"`
	Resolved    bool      `db:"resolved" json:"resolved"`
	ResolvedAt  Millis    `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt   Millis    `db:"created_at" json:"created_at"`
}

// DailyPeriod formats the period key of a daily alert.
func DailyPeriod(t time.Time) string {
	return t.Format("2006-01-02")
}

// MonthlyPeriod formats the period key of a monthly alert.
func MonthlyPeriod(t time.Time) string {
	return t.Format("2006-01")
}
