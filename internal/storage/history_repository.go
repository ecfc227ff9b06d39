package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ai_gateway/internal/models"
)

// HistoryRepository reads and appends the per-chat message log
type HistoryRepository struct {
	db *DB
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append adds one message to the log
func (r *HistoryRepository) Append(ctx context.Context, entry *models.HistoryEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = models.NewMillis(time.Now())
	}

	query := r.db.conn.Rebind(`
		INSERT INTO message_history (id, device_id, chat_id, direction, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	_, err := r.db.conn.ExecContext(ctx, query,
		entry.ID, entry.DeviceID, entry.ChatID, string(entry.Direction), entry.Content, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// Recent returns at most q.Limit entries inside the window, newest first.
func (r *HistoryRepository) Recent(ctx context.Context, q models.HistoryQuery) ([]*models.HistoryEntry, error) {
	if q.Limit <= 0 {
		return nil, nil
	}

	var before int64 = 1<<63 - 1
	if !q.Before.IsZero() {
		before = q.Before.UnixMilli()
	}

	query := r.db.conn.Rebind(`
		SELECT id, device_id, chat_id, direction, content, created_at
		FROM message_history
		WHERE device_id = ? AND chat_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`)

	var entries []*models.HistoryEntry
	err := r.db.conn.SelectContext(ctx, &entries, query,
		q.DeviceID, q.ChatID, q.Since.UnixMilli(), before, q.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return entries, nil
}
