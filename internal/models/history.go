package models

import (
	"time"

	"github.com/google/uuid"
)

// Direction tells whether a logged message came from the customer or was sent by the business.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// HistoryEntry is one message of a chat's chronological log.
type HistoryEntry struct {
	ID        uuid.UUID `db:"id" json:"id"`
	DeviceID  string    `db:"device_id" json:"device_id"`
	ChatID    string    `db:"chat_id" json:"chat_id"`
	Direction Direction `db:"direction" json:"direction"`
	Content   string    `db:"content" json:"content"`
	CreatedAt Millis    `db:"created_at" json:"created_at"`
}

// HistoryQuery bounds a history read. Zero times leave that side unbounded.
type HistoryQuery struct {
	DeviceID string
	ChatID   string
	Since    time.Time // inclusive
	Before   time.Time // exclusive
	Limit    int
}
