// Package conversation decides whether the assistant answers an inbound
// message and builds the bounded message list sent to the provider.
package conversation

import (
	"strings"
	"time"

	"ai_gateway/internal/business"
)

// InboundMessage is a customer message delivered by the messaging transport.
type InboundMessage struct {
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	Sender    string    `json:"sender"`
	IsGroup   bool      `json:"is_group"`
	ChatID    string    `json:"chat_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Chat returns the chat the message belongs to, falling back to the sender.
func (m *InboundMessage) Chat() string {
	if m.ChatID != "" {
		return m.ChatID
	}
	return m.Sender
}

// Skip reasons returned by Decide
const (
	ReasonAIDisabled   = "ai disabled"
	ReasonNoText       = "no text"
	ReasonClosed       = "outside operating hours"
	ReasonHoursInvalid = "operating hours misconfigured"
	ReasonNoTrigger    = "no trigger matched"
)

// Decide reports whether the assistant should answer msg at now, and if not, why.
func Decide(msg *InboundMessage, bctx *business.Context, now time.Time) (bool, string) {
	ai := bctx.AI
	if !ai.Enabled {
		return false, ReasonAIDisabled
	}
	if strings.TrimSpace(msg.Content) == "" {
		return false, ReasonNoText
	}

	open, err := bctx.OperatingHours.IsOpen(now)
	if err != nil {
		return false, ReasonHoursInvalid
	}
	if !open {
		return false, ReasonClosed
	}

	if ai.RequireTrigger && !ai.AutoReply && !containsAny(msg.Content, ai.Triggers) {
		return false, ReasonNoTrigger
	}
	return true, ""
}

// ShouldRespond is Decide without the reason.
func ShouldRespond(msg *InboundMessage, bctx *business.Context, now time.Time) bool {
	ok, _ := Decide(msg, bctx, now)
	return ok
}

// containsAny reports whether any non-blank needle occurs in text, ignoring case.
func containsAny(text string, needles []string) bool {
	lower := strings.ToLower(text)
	for _, n := range needles {
		n = strings.TrimSpace(n)
		if n != "" && strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
