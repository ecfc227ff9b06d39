package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ai_gateway/internal/models"
)

// AlertRepository stores cost threshold alerts
type AlertRepository struct {
	db *DB
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// CreateIfAbsent inserts the alert unless an unresolved alert already exists for the
// same device, type and period. It reports whether a row was inserted.
func (r *AlertRepository) CreateIfAbsent(ctx context.Context, alert *models.CostAlert) (bool, error) {
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = models.NewMillis(time.Now())
	}

	query := r.db.conn.Rebind(`
		INSERT INTO cost_alerts (id, device_id, alert_type, period, current_cost, limit_amount, resolved, created_at)
		VALUES (?, ?, ?, ?, ?, ?, FALSE, ?)
		ON CONFLICT (device_id, alert_type, period) WHERE resolved = FALSE DO NOTHING
	`)

	result, err := r.db.conn.ExecContext(ctx, query,
		alert.ID, alert.DeviceID, string(alert.AlertType), alert.Period,
		alert.CurrentCost, alert.LimitAmount, alert.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert cost alert: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// Resolve marks an open alert resolved, allowing a new alert for the same period.
func (r *AlertRepository) Resolve(ctx context.Context, id uuid.UUID) error {
	query := r.db.conn.Rebind(`UPDATE cost_alerts SET resolved = TRUE, resolved_at = ? WHERE id = ? AND resolved = FALSE`)

	result, err := r.db.conn.ExecContext(ctx, query, models.NewMillis(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to resolve cost alert: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// ListOpen returns the device's unresolved alerts, newest first
func (r *AlertRepository) ListOpen(ctx context.Context, deviceID string) ([]*models.CostAlert, error) {
	return r.list(ctx, deviceID, `AND resolved = FALSE`)
}

// ListAll returns every alert of the device, newest first
func (r *AlertRepository) ListAll(ctx context.Context, deviceID string) ([]*models.CostAlert, error) {
	return r.list(ctx, deviceID, ``)
}

func (r *AlertRepository) list(ctx context.Context, deviceID, filter string) ([]*models.CostAlert, error) {
	query := r.db.conn.Rebind(`
		SELECT id, device_id, alert_type, period, current_cost, limit_amount, resolved, resolved_at, created_at
		FROM cost_alerts
		WHERE device_id = ? ` + filter + `
		ORDER BY created_at DESC, id
	`)

	var alerts []*models.CostAlert
	if err := r.db.conn.SelectContext(ctx, &alerts, query, deviceID); err != nil {
		return nil, fmt.Errorf("failed to list cost alerts: %w", err)
	}
	return alerts, nil
}
