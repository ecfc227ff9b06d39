package conversation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai_gateway/internal/business"
	"ai_gateway/internal/models"
	"ai_gateway/internal/providers"
)

// fakeHistory mimics the repository: filter, newest first, limit
type fakeHistory struct {
	entries []*models.HistoryEntry
	queries []models.HistoryQuery
	err     error
}

func (f *fakeHistory) Recent(ctx context.Context, q models.HistoryQuery) ([]*models.HistoryEntry, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.HistoryEntry
	for _, e := range f.entries {
		at := e.CreatedAt.Time
		if e.DeviceID != q.DeviceID || e.ChatID != q.ChatID {
			continue
		}
		if !q.Since.IsZero() && at.Before(q.Since) {
			continue
		}
		if !q.Before.IsZero() && !at.Before(q.Before) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt.Time) })
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

var monday10 = time.Date(2025, time.March, 17, 10, 0, 0, 0, time.UTC)

func baseContext() *business.Context {
	return &business.Context{
		DeviceID: "dev-1",
		AI:       business.AISettings{Enabled: true, AutoReply: true, MaxHistoryLength: 10},
		Profile: business.Profile{
			BusinessName: "Jaya Motor",
			BrandVoice:   business.BrandVoiceCasual,
			PrimaryGoal:  business.GoalConversion,
		},
	}
}

func weekdayHours(start, end string) business.OperatingHours {
	days := map[string]business.DayHours{}
	for _, d := range []string{"monday", "tuesday", "wednesday", "thursday", "friday"} {
		days[d] = business.DayHours{Open: true, Start: start, End: end}
	}
	return business.OperatingHours{Enabled: true, Timezone: "UTC", Days: days}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *business.Context)
		text   string
		at     time.Time
		want   bool
		reason string
	}{
		{name: "auto reply answers", text: "halo", at: monday10, want: true},
		{name: "ai disabled", modify: func(c *business.Context) { c.AI.Enabled = false }, text: "halo", at: monday10, reason: ReasonAIDisabled},
		{name: "blank text", text: "   ", at: monday10, reason: ReasonNoText},
		{name: "inside hours", modify: func(c *business.Context) { c.OperatingHours = weekdayHours("09:00", "17:00") }, text: "halo", at: monday10, want: true},
		{name: "after hours", modify: func(c *business.Context) { c.OperatingHours = weekdayHours("09:00", "17:00") }, text: "halo",
			at: time.Date(2025, time.March, 17, 20, 0, 0, 0, time.UTC), reason: ReasonClosed},
		{name: "weekend closed", modify: func(c *business.Context) { c.OperatingHours = weekdayHours("09:00", "17:00") }, text: "halo",
			at: time.Date(2025, time.March, 16, 10, 0, 0, 0, time.UTC), reason: ReasonClosed},
		{name: "bad timezone", modify: func(c *business.Context) {
			c.OperatingHours = weekdayHours("09:00", "17:00")
			c.OperatingHours.Timezone = "Mars/Olympus"
		}, text: "halo", at: monday10, reason: ReasonHoursInvalid},
		{name: "trigger required and missing", modify: func(c *business.Context) {
			c.AI.AutoReply = false
			c.AI.RequireTrigger = true
			c.AI.Triggers = []string{"info", "harga"}
		}, text: "selamat pagi", at: monday10, reason: ReasonNoTrigger},
		{name: "trigger matches ignoring case", modify: func(c *business.Context) {
			c.AI.AutoReply = false
			c.AI.RequireTrigger = true
			c.AI.Triggers = []string{"harga"}
		}, text: "HARGA civic?", at: monday10, want: true},
		{name: "auto reply bypasses triggers", modify: func(c *business.Context) {
			c.AI.RequireTrigger = true
			c.AI.Triggers = []string{"harga"}
		}, text: "selamat pagi", at: monday10, want: true},
		{name: "no trigger requirement", modify: func(c *business.Context) { c.AI.AutoReply = false }, text: "selamat pagi", at: monday10, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bctx := baseContext()
			if tt.modify != nil {
				tt.modify(bctx)
			}
			got, reason := Decide(&InboundMessage{Content: tt.text, ChatID: "chat-1"}, bctx, tt.at)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.reason, reason)
			assert.Equal(t, tt.want, ShouldRespond(&InboundMessage{Content: tt.text}, bctx, tt.at))
		})
	}
}

func TestAssemble_NotRespondingFetchesNothing(t *testing.T) {
	history := &fakeHistory{}
	bctx := baseContext()
	bctx.AI.Enabled = false

	a := NewAssembler(history, func() time.Time { return monday10 })
	got, err := a.Assemble(context.Background(), &InboundMessage{Content: "halo", ChatID: "chat-1"}, bctx)
	require.NoError(t, err)
	assert.False(t, got.ShouldRespond)
	assert.Empty(t, got.Messages)
	assert.Empty(t, history.queries)
}

func TestAssemble_NoMemoryNoAutoReply(t *testing.T) {
	history := &fakeHistory{}
	bctx := baseContext()
	bctx.AI.AutoReply = false
	bctx.AI.MemoryEnabled = false

	a := NewAssembler(history, func() time.Time { return monday10 })
	got, err := a.Assemble(context.Background(), &InboundMessage{Content: "ada Civic?", ChatID: "chat-1"}, bctx)
	require.NoError(t, err)

	require.True(t, got.ShouldRespond)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, providers.RoleSystem, got.Messages[0].Role)
	assert.Equal(t, providers.Message{Role: providers.RoleUser, Content: "ada Civic?"}, got.Messages[1])
	assert.Empty(t, history.queries, "history must not be fetched")
}

func TestAssemble_HistoryWindow(t *testing.T) {
	history := &fakeHistory{}
	for i := 0; i < 5; i++ {
		dir := models.DirectionInbound
		if i%2 == 1 {
			dir = models.DirectionOutbound
		}
		history.entries = append(history.entries, &models.HistoryEntry{
			DeviceID:  "dev-1",
			ChatID:    "chat-1",
			Direction: dir,
			Content:   fmt.Sprintf("turn %d", i),
			CreatedAt: models.NewMillis(monday10.Add(time.Duration(i-10) * time.Minute)),
		})
	}
	history.entries = append(history.entries, &models.HistoryEntry{
		DeviceID: "dev-1", ChatID: "other-chat", Direction: models.DirectionInbound,
		Content: "not this chat", CreatedAt: models.NewMillis(monday10.Add(-time.Minute)),
	})

	bctx := baseContext()
	bctx.AI.MemoryEnabled = true
	bctx.AI.MaxHistoryLength = 3

	a := NewAssembler(history, func() time.Time { return monday10 })
	got, err := a.Assemble(context.Background(), &InboundMessage{Content: "berapa harganya?", ChatID: "chat-1"}, bctx)
	require.NoError(t, err)

	require.Len(t, got.Messages, 5)
	assert.Equal(t, 3, got.HistoryTurns)
	assert.Equal(t, providers.Message{Role: providers.RoleUser, Content: "turn 2"}, got.Messages[1])
	assert.Equal(t, providers.Message{Role: providers.RoleAssistant, Content: "turn 3"}, got.Messages[2])
	assert.Equal(t, providers.Message{Role: providers.RoleUser, Content: "turn 4"}, got.Messages[3])
	assert.Equal(t, "berapa harganya?", got.Messages[4].Content)
}

func TestHistoryWindow_Bounds(t *testing.T) {
	bctx := baseContext()
	bctx.AI.MemoryExpiryMinutes = 60
	bctx.AI.MaxHistoryLength = 0

	q := HistoryWindow(&InboundMessage{Sender: "628123"}, bctx, monday10)
	assert.Equal(t, "628123", q.ChatID)
	assert.Equal(t, monday10.Add(-time.Hour), q.Since)
	assert.Equal(t, monday10, q.Before)
	assert.Equal(t, business.DefaultMaxHistoryLength, q.Limit)

	cleared := monday10.Add(-10 * time.Minute)
	bctx.AI.LastMemoryClearedAt = &cleared
	sent := monday10.Add(-time.Second)
	q = HistoryWindow(&InboundMessage{ChatID: "chat-1", Timestamp: sent}, bctx, monday10)
	assert.Equal(t, cleared, q.Since, "a later memory clear wins over expiry")
	assert.Equal(t, sent, q.Before)

	old := monday10.Add(-48 * time.Hour)
	bctx.AI.LastMemoryClearedAt = &old
	q = HistoryWindow(&InboundMessage{ChatID: "chat-1"}, bctx, monday10)
	assert.Equal(t, monday10.Add(-time.Hour), q.Since)

	bctx.AI.MemoryExpiryMinutes = 0
	q = HistoryWindow(&InboundMessage{ChatID: "chat-1"}, bctx, monday10)
	assert.Equal(t, old, q.Since)
}

func TestAssemble_HistoryErrorDegrades(t *testing.T) {
	history := &fakeHistory{err: errors.New("db down")}
	bctx := baseContext()
	bctx.AI.MemoryEnabled = true

	a := NewAssembler(history, func() time.Time { return monday10 })
	got, err := a.Assemble(context.Background(), &InboundMessage{Content: "halo", ChatID: "chat-1"}, bctx)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 2)
	assert.Len(t, history.queries, 1)
}

func TestRenderSystemPrompt_ClauseOrder(t *testing.T) {
	bctx := baseContext()
	bctx.Profile = business.Profile{
		BusinessName:      "Jaya Motor",
		BusinessType:      "used car dealer",
		BrandVoice:        business.BrandVoiceFormal,
		PrimaryGoal:       business.GoalLeads,
		Language:          "Indonesian",
		ProductKnowledge:  []business.Product{{Name: "Warranty", Description: "1 year engine warranty"}},
		ProductCatalog:    []business.Product{{Name: "Honda Civic", Price: "Rp 400 juta", ImageID: "abc123"}},
		FAQ:               []business.FAQEntry{{Question: "Buka hari Minggu?", Answer: "Tidak."}},
		UpsellStrategies:  []string{"Offer the extended warranty"},
		ObjectionHandling: []business.Objection{{Objection: "too expensive", Response: "mention financing"}},
		BoundariesEnabled: true,
		SalesScript:       []business.ScriptStep{{Stage: "greeting", Script: "Greet and ask what car they want"}},
		CustomRules:       []string{"Never share the owner's phone number"},
	}

	prompt := RenderSystemPrompt(bctx)
	markers := []string{
		"You are the WhatsApp assistant of Jaya Motor.",
		"politely and professionally",
		"collect the customer's name",
		"Always reply in Indonesian.",
		"Product knowledge:\n- Warranty: 1 year engine warranty",
		"Product catalog:\n- Honda Civic (price: Rp 400 juta)",
		"Q: Buka hari Minggu?\nA: Tidak.",
		"Business type: used car dealer.",
		"- Offer the extended warranty",
		`"too expensive"`,
		"Maaf, saya hanya dapat membantu",
		business.HandoverSentinel,
		"1. greeting: Greet and ask what car they want",
		"Rules:\n1. Never share the owner's phone number",
	}
	last := -1
	for _, m := range markers {
		idx := strings.Index(prompt, m)
		require.GreaterOrEqual(t, idx, 0, "missing %q", m)
		assert.Greater(t, idx, last, "%q out of order", m)
		last = idx
	}
	assert.NotContains(t, prompt, fallbackRules[0])
	assert.Equal(t, prompt, RenderSystemPrompt(bctx), "rendering is deterministic")
}

func TestRenderSystemPrompt_OmitsEmptyClauses(t *testing.T) {
	prompt := RenderSystemPrompt(&business.Context{DeviceID: "dev-1"})

	assert.NotContains(t, prompt, "You are the WhatsApp assistant")
	assert.NotContains(t, prompt, "Product catalog")
	assert.NotContains(t, prompt, "Frequently asked questions")
	assert.NotContains(t, prompt, "Only discuss")
	assert.NotContains(t, prompt, "sales script")
	assert.Contains(t, prompt, business.HandoverSentinel)
	assert.Contains(t, prompt, "Rules:\n1. "+fallbackRules[0])
}

func TestRefusalFor(t *testing.T) {
	tests := []struct {
		lang string
		want string
	}{
		{"", refusals[0]},
		{"en-US", refusals[0]},
		{"id", refusals[1]},
		{"Bahasa Indonesia", refusals[1]},
		{"ms-MY", refusals[2]},
		{"Spanish", refusals[3]},
		{"pt-BR", refusals[4]},
		{"klingon", refusals[0]},
	}
	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			assert.Equal(t, tt.want, RefusalFor(tt.lang))
		})
	}
}
