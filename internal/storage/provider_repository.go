package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ai_gateway/internal/models"
)

const providerColumns = `id, name, enabled, base_url, wire_format, headers, priority,
	       encrypted_api_key, created_at, updated_at`

// ProviderRepository handles provider database operations
type ProviderRepository struct {
	db  *DB
	enc *Encryption
}

// NewProviderRepository creates a new provider repository. enc may be nil when
// no credentials are stored in the database.
func NewProviderRepository(db *DB, enc *Encryption) *ProviderRepository {
	return &ProviderRepository{db: db, enc: enc}
}

// GetByID retrieves a provider by ID
func (r *ProviderRepository) GetByID(ctx context.Context, id string) (*models.Provider, error) {
	var provider models.Provider
	query := r.db.conn.Rebind(`SELECT ` + providerColumns + ` FROM providers WHERE id = ?`)

	if err := r.db.conn.GetContext(ctx, &provider, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}

	return &provider, nil
}

// List returns all providers, most preferred first
func (r *ProviderRepository) List(ctx context.Context) ([]*models.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers ORDER BY priority, id`

	var providers []*models.Provider
	if err := r.db.conn.SelectContext(ctx, &providers, query); err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}

	return providers, nil
}

// Upsert creates or updates a provider. The stored credential is left untouched.
func (r *ProviderRepository) Upsert(ctx context.Context, p *models.Provider) error {
	now := models.NewMillis(time.Now())
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	query := r.db.conn.Rebind(`
		INSERT INTO providers (id, name, enabled, base_url, wire_format, headers, priority, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			enabled = excluded.enabled,
			base_url = excluded.base_url,
			wire_format = excluded.wire_format,
			headers = excluded.headers,
			priority = excluded.priority,
			updated_at = excluded.updated_at
	`)

	_, err := r.db.conn.ExecContext(ctx, query,
		p.ID, p.Name, p.Enabled, p.BaseURL, string(p.WireFormat), p.Headers, p.Priority,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert provider: %w", err)
	}
	return nil
}

// SetAPIKey encrypts and stores the provider's API key. An empty key clears it.
func (r *ProviderRepository) SetAPIKey(ctx context.Context, providerID, apiKey string) error {
	var stored sql.NullString
	if apiKey != "" {
		if r.enc == nil {
			return ErrEncryptionNotConfigured
		}
		ciphertext, err := r.enc.Encrypt([]byte(apiKey))
		if err != nil {
			return fmt.Errorf("failed to encrypt api key: %w", err)
		}
		stored = sql.NullString{String: ciphertext, Valid: true}
	}

	query := r.db.conn.Rebind(`UPDATE providers SET encrypted_api_key = ?, updated_at = ? WHERE id = ?`)
	result, err := r.db.conn.ExecContext(ctx, query, stored, models.NewMillis(time.Now()), providerID)
	if err != nil {
		return fmt.Errorf("failed to store api key: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrProviderNotFound
	}
	return nil
}

// APIKey returns the decrypted stored key, or ErrCredentialNotStored.
func (r *ProviderRepository) APIKey(ctx context.Context, providerID string) (string, error) {
	var stored sql.NullString
	query := r.db.conn.Rebind(`SELECT encrypted_api_key FROM providers WHERE id = ?`)
	if err := r.db.conn.GetContext(ctx, &stored, query, providerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrProviderNotFound
		}
		return "", fmt.Errorf("failed to read api key: %w", err)
	}
	if !stored.Valid || stored.String == "" {
		return "", ErrCredentialNotStored
	}
	if r.enc == nil {
		return "", ErrEncryptionNotConfigured
	}

	plaintext, err := r.enc.Decrypt(stored.String)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt api key: %w", err)
	}
	return string(plaintext), nil
}
