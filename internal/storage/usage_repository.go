package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"ai_gateway/internal/models"
)

// UsageRepository is the append-only usage ledger
type UsageRepository struct {
	db *DB
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *DB) *UsageRepository {
	return &UsageRepository{db: db}
}

const insertUsageQuery = `
	INSERT INTO usage_records (id, device_id, provider, model, prompt_tokens, completion_tokens,
	                           cost_usd, success, response_time_ms, error_message, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// Create appends a usage record
func (r *UsageRepository) Create(ctx context.Context, record *models.UsageRecord) error {
	return r.insert(ctx, r.db.conn, record)
}

// CreateBatch appends records in a single transaction
func (r *UsageRepository) CreateBatch(ctx context.Context, records []*models.UsageRecord) error {
	tx, err := r.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, record := range records {
		if err := r.insert(ctx, tx, record); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *UsageRepository) insert(ctx context.Context, exec sqlx.ExtContext, record *models.UsageRecord) error {
	record.Normalize(time.Now())

	_, err := exec.ExecContext(ctx, exec.Rebind(insertUsageQuery),
		record.ID, record.DeviceID, record.Provider, record.Model,
		record.PromptTokens, record.CompletionTokens, record.CostUSD, record.Success,
		record.ResponseTimeMS, record.ErrorMessage, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}
	return nil
}

// SumCost returns the device's total cost over [from, to).
func (r *UsageRepository) SumCost(ctx context.Context, deviceID string, from, to time.Time) (float64, error) {
	var total float64
	query := r.db.conn.Rebind(`
		SELECT COALESCE(SUM(cost_usd), 0)
		FROM usage_records
		WHERE device_id = ? AND created_at >= ? AND created_at < ?
	`)

	if err := r.db.conn.GetContext(ctx, &total, query, deviceID, from.UnixMilli(), to.UnixMilli()); err != nil {
		return 0, fmt.Errorf("failed to sum usage cost: %w", err)
	}
	return total, nil
}

// ListByDevice returns the device's most recent records, newest first
func (r *UsageRepository) ListByDevice(ctx context.Context, deviceID string, limit int) ([]*models.UsageRecord, error) {
	query := r.db.conn.Rebind(`
		SELECT id, device_id, provider, model, prompt_tokens, completion_tokens, cost_usd,
		       success, response_time_ms, error_message, created_at
		FROM usage_records
		WHERE device_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`)

	var records []*models.UsageRecord
	if err := r.db.conn.SelectContext(ctx, &records, query, deviceID, limit); err != nil {
		return nil, fmt.Errorf("failed to list usage records: %w", err)
	}
	return records, nil
}
