package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ai_gateway/internal/business"
	"ai_gateway/internal/models"
)

type businessContextRow struct {
	DeviceID       string        `db:"device_id"`
	AISettings     string        `db:"ai_settings"`
	Profile        string        `db:"profile"`
	OperatingHours string        `db:"operating_hours"`
	Limits         string        `db:"limits"`
	UpdatedAt      models.Millis `db:"updated_at"`
}

// BusinessContextRepository stores business contexts as JSON columns and
// decodes them into typed, validated values on read.
type BusinessContextRepository struct {
	db               *DB
	defaultThreshold float64
}

// NewBusinessContextRepository creates a new business context repository
func NewBusinessContextRepository(db *DB, defaultAlertThreshold float64) *BusinessContextRepository {
	return &BusinessContextRepository{db: db, defaultThreshold: defaultAlertThreshold}
}

// Load implements business.Store
func (r *BusinessContextRepository) Load(ctx context.Context, deviceID string) (*business.Context, error) {
	var row businessContextRow
	query := r.db.conn.Rebind(`
		SELECT device_id, ai_settings, profile, operating_hours, limits, updated_at
		FROM business_contexts WHERE device_id = ?
	`)
	if err := r.db.conn.GetContext(ctx, &row, query, deviceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, business.ErrContextNotFound
		}
		return nil, fmt.Errorf("failed to get business context: %w", err)
	}

	c := &business.Context{DeviceID: row.DeviceID}
	columns := []struct {
		name string
		raw  string
		dst  any
	}{
		{"ai_settings", row.AISettings, &c.AI},
		{"profile", row.Profile, &c.Profile},
		{"operating_hours", row.OperatingHours, &c.OperatingHours},
		{"limits", row.Limits, &c.Limits},
	}
	var problems []string
	for _, col := range columns {
		if err := json.Unmarshal([]byte(col.raw), col.dst); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", col.name, err))
		}
	}
	if len(problems) > 0 {
		return nil, &business.ValidationError{DeviceID: deviceID, Problems: problems}
	}

	c.ApplyDefaults(r.defaultThreshold)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Save validates and upserts a business context
func (r *BusinessContextRepository) Save(ctx context.Context, c *business.Context) error {
	if err := c.Validate(); err != nil {
		return err
	}

	encoded := make([]string, 4)
	for i, v := range []any{c.AI, c.Profile, c.OperatingHours, c.Limits} {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode business context: %w", err)
		}
		encoded[i] = string(b)
	}

	query := r.db.conn.Rebind(`
		INSERT INTO business_contexts (device_id, ai_settings, profile, operating_hours, limits, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (device_id) DO UPDATE SET
			ai_settings = excluded.ai_settings,
			profile = excluded.profile,
			operating_hours = excluded.operating_hours,
			limits = excluded.limits,
			updated_at = excluded.updated_at
	`)
	_, err := r.db.conn.ExecContext(ctx, query,
		c.DeviceID, encoded[0], encoded[1], encoded[2], encoded[3], models.NewMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save business context: %w", err)
	}
	return nil
}

// CachedContextStore keeps recently loaded business contexts in an LRU cache.
type CachedContextStore struct {
	inner business.Store
	cache *LRUCache[*business.Context]
}

// NewCachedContextStore wraps inner with a cache of the given size and TTL.
func NewCachedContextStore(inner business.Store, size int, ttl time.Duration) *CachedContextStore {
	return &CachedContextStore{inner: inner, cache: NewLRUCache[*business.Context](size, ttl)}
}

// Load implements business.Store
func (s *CachedContextStore) Load(ctx context.Context, deviceID string) (*business.Context, error) {
	if c, ok := s.cache.Get(deviceID); ok {
		return c, nil
	}
	c, err := s.inner.Load(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(deviceID, c)
	return c, nil
}

// Invalidate drops a device's cached context
func (s *CachedContextStore) Invalidate(deviceID string) {
	s.cache.Delete(deviceID)
}

// Stats returns the cache statistics
func (s *CachedContextStore) Stats() CacheStats {
	return s.cache.GetStats()
}
