package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ai_gateway/internal/models"
)

const modelColumns = `provider_id, model_id, input_price_per_token, output_price_per_token,
	       max_tokens, context_window, is_default, enabled, created_at, updated_at`

// ModelRepository handles model database operations
type ModelRepository struct {
	db *DB
}

// NewModelRepository creates a new model repository
func NewModelRepository(db *DB) *ModelRepository {
	return &ModelRepository{db: db}
}

// Get retrieves one model of a provider
func (r *ModelRepository) Get(ctx context.Context, providerID, modelID string) (*models.Model, error) {
	var model models.Model
	query := r.db.conn.Rebind(`SELECT ` + modelColumns + ` FROM models WHERE provider_id = ? AND model_id = ?`)

	if err := r.db.conn.GetContext(ctx, &model, query, providerID, modelID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrModelNotFound
		}
		return nil, fmt.Errorf("failed to get model: %w", err)
	}
	return &model, nil
}

// List returns every model in catalog order (per provider, oldest first)
func (r *ModelRepository) List(ctx context.Context) ([]*models.Model, error) {
	query := `SELECT ` + modelColumns + ` FROM models ORDER BY provider_id, created_at, model_id`

	var list []*models.Model
	if err := r.db.conn.SelectContext(ctx, &list, query); err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	return list, nil
}

// ListByProvider returns the models of one provider in catalog order
func (r *ModelRepository) ListByProvider(ctx context.Context, providerID string) ([]*models.Model, error) {
	query := r.db.conn.Rebind(`SELECT ` + modelColumns + ` FROM models WHERE provider_id = ? ORDER BY created_at, model_id`)

	var list []*models.Model
	if err := r.db.conn.SelectContext(ctx, &list, query, providerID); err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	return list, nil
}

// Upsert creates or updates a model
func (r *ModelRepository) Upsert(ctx context.Context, m *models.Model) error {
	now := models.NewMillis(time.Now())
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	query := r.db.conn.Rebind(`
		INSERT INTO models (provider_id, model_id, input_price_per_token, output_price_per_token,
		                    max_tokens, context_window, is_default, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider_id, model_id) DO UPDATE SET
			input_price_per_token = excluded.input_price_per_token,
			output_price_per_token = excluded.output_price_per_token,
			max_tokens = excluded.max_tokens,
			context_window = excluded.context_window,
			is_default = excluded.is_default,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`)

	_, err := r.db.conn.ExecContext(ctx, query,
		m.ProviderID, m.ModelID, m.InputPricePerToken, m.OutputPricePerToken,
		m.MaxTokens, m.ContextWindow, m.IsDefault, m.Enabled, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert model: %w", err)
	}
	return nil
}
