package conversation

import (
	"context"
	"strings"
	"time"

	"ai_gateway/internal/business"
	"ai_gateway/internal/models"
	"ai_gateway/internal/providers"
	"ai_gateway/internal/utils"
)

// HistoryReader reads a chat's log newest first; implemented by storage.HistoryRepository.
type HistoryReader interface {
	Recent(ctx context.Context, q models.HistoryQuery) ([]*models.HistoryEntry, error)
}

// Assembly is the outcome of assembling one inbound message.
// Messages is empty when ShouldRespond is false.
type Assembly struct {
	ShouldRespond bool
	SkipReason    string
	Messages      []providers.Message
	HistoryTurns  int
}

// Assembler builds the provider message list for an inbound message
type Assembler struct {
	history HistoryReader
	now     func() time.Time
	logger  *utils.Logger
}

// NewAssembler creates an assembler. history may be nil when no log is
// available; now defaults to time.Now.
func NewAssembler(history HistoryReader, now func() time.Time) *Assembler {
	if now == nil {
		now = time.Now
	}
	return &Assembler{
		history: history,
		now:     now,
		logger:  utils.NewLogger("conversation"),
	}
}

// Assemble returns the system prompt, the bounded history and the current turn.
// Nothing is fetched when the assistant should not answer. A failing history
// read degrades to a reply without history.
func (a *Assembler) Assemble(ctx context.Context, msg *InboundMessage, bctx *business.Context) (*Assembly, error) {
	now := a.now()

	ok, reason := Decide(msg, bctx, now)
	if !ok {
		a.logger.Debug("Not responding", "device", bctx.DeviceID, "chat", msg.Chat(), "reason", reason)
		return &Assembly{SkipReason: reason}, nil
	}

	messages := []providers.Message{{Role: providers.RoleSystem, Content: RenderSystemPrompt(bctx)}}

	var turns []providers.Message
	if bctx.AI.MemoryEnabled || bctx.AI.AutoReply {
		turns = a.historyTurns(ctx, msg, bctx, now)
	}
	messages = append(messages, turns...)
	messages = append(messages, providers.Message{Role: providers.RoleUser, Content: msg.Content})

	return &Assembly{
		ShouldRespond: true,
		Messages:      messages,
		HistoryTurns:  len(turns),
	}, nil
}

func (a *Assembler) historyTurns(ctx context.Context, msg *InboundMessage, bctx *business.Context, now time.Time) []providers.Message {
	if a.history == nil {
		return nil
	}

	query := HistoryWindow(msg, bctx, now)
	entries, err := a.history.Recent(ctx, query)
	if err != nil {
		a.logger.Warn("History unavailable, answering without it", "device", bctx.DeviceID, "chat", query.ChatID, "error", err)
		return nil
	}

	turns := make([]providers.Message, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if strings.TrimSpace(e.Content) == "" {
			continue
		}
		role := providers.RoleUser
		if e.Direction == models.DirectionOutbound {
			role = providers.RoleAssistant
		}
		turns = append(turns, providers.Message{Role: role, Content: e.Content})
	}
	return turns
}

// HistoryWindow bounds the history read for msg: entries after
// max(now - memory expiry, last memory clear), strictly before the current
// message, at most max history length of them.
func HistoryWindow(msg *InboundMessage, bctx *business.Context, now time.Time) models.HistoryQuery {
	ai := bctx.AI

	var since time.Time
	if ai.MemoryExpiryMinutes > 0 {
		since = now.Add(-time.Duration(ai.MemoryExpiryMinutes) * time.Minute)
	}
	if cleared := ai.LastMemoryClearedAt; cleared != nil && cleared.After(since) {
		since = *cleared
	}

	before := msg.Timestamp
	if before.IsZero() {
		before = now
	}

	limit := ai.MaxHistoryLength
	if limit <= 0 {
		limit = business.DefaultMaxHistoryLength
	}

	return models.HistoryQuery{
		DeviceID: bctx.DeviceID,
		ChatID:   msg.Chat(),
		Since:    since,
		Before:   before,
		Limit:    limit,
	}
}
