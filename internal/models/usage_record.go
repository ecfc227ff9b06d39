package models

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// UsageRecord is one row of the append-only usage ledger, written for every
// provider call attempt whether or not it succeeded.
type UsageRecord struct {
	ID               uuid.UUID      `db:"id" json:"id"`
	DeviceID         string         `db:"device_id" json:"device_id"`
	Provider         string         `db:"provider" json:"provider"`
	Model            string         `db:"model" json:"model"`
	PromptTokens     int            `db:"prompt_tokens" json:"prompt_tokens"`
	CompletionTokens int            `db:"completion_tokens" json:"completion_tokens"`
	CostUSD          float64        `db:"cost_usd" json:"cost_usd"`
	Success          bool           `db:"success" json:"success"`
	ResponseTimeMS   int            `db:"response_time_ms" json:"response_time_ms"`
	ErrorMessage     sql.NullString `db:"error_message" json:"error_message"`
	CreatedAt        Millis         `db:"created_at" json:"created_at"`
}

// Normalize fills the id and timestamp and enforces that a failed attempt
// carries no cost and always has an error message.
func (r *UsageRecord) Normalize(now time.Time) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = NewMillis(now)
	}
	if !r.Success {
		r.CostUSD = 0
		if !r.ErrorMessage.Valid || r.ErrorMessage.String == "" {
			r.ErrorMessage = sql.NullString{String: "unknown error", Valid: true}
		}
	}
}

// TotalTokens returns prompt plus completion tokens.
func (r *UsageRecord) TotalTokens() int {
	return r.PromptTokens + r.CompletionTokens
}
