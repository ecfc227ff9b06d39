package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai_gateway/internal/business"
	"ai_gateway/internal/models"
)

func TestProviderRepository_UpsertListAndCredentials(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	enc, err := NewEncryptionFromSecret("test-secret")
	require.NoError(t, err)
	repo := db.NewProviderRepository(enc)

	require.NoError(t, repo.Upsert(ctx, &models.Provider{
		ID: "anthropic", Name: "Anthropic", Enabled: true, BaseURL: "https://api.anthropic.com/v1",
		WireFormat: models.WireFormatAnthropic, Priority: 20,
		Headers: models.StringMap{"anthropic-version": "2023-06-01"},
	}))
	require.NoError(t, repo.Upsert(ctx, &models.Provider{
		ID: "openai", Name: "OpenAI", Enabled: true, BaseURL: "https://api.openai.com/v1",
		WireFormat: models.WireFormatOpenAI, Priority: 10,
	}))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "openai", list[0].ID, "lower priority value first")
	assert.Equal(t, "2023-06-01", list[1].Headers["anthropic-version"])
	assert.True(t, list[1].Enabled)
	assert.False(t, list[0].CreatedAt.IsZero())

	_, err = repo.APIKey(ctx, "openai")
	assert.ErrorIs(t, err, ErrCredentialNotStored)

	require.NoError(t, repo.SetAPIKey(ctx, "openai", "sk-test"))
	key, err := repo.APIKey(ctx, "openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", key)

	// Upsert leaves the stored credential alone.
	list[0].Enabled = false
	require.NoError(t, repo.Upsert(ctx, list[0]))
	key, err = repo.APIKey(ctx, "openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", key)

	p, err := repo.GetByID(ctx, "openai")
	require.NoError(t, err)
	assert.False(t, p.Enabled)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrProviderNotFound)
	assert.ErrorIs(t, repo.SetAPIKey(ctx, "missing", "k"), ErrProviderNotFound)

	noEnc := db.NewProviderRepository(nil)
	assert.ErrorIs(t, noEnc.SetAPIKey(ctx, "openai", "k"), ErrEncryptionNotConfigured)
}

func TestModelRepository_CatalogOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.NewProviderRepository(nil).Upsert(ctx, &models.Provider{
		ID: "openai", Enabled: true, BaseURL: "https://api.openai.com/v1", WireFormat: models.WireFormatOpenAI,
	}))

	repo := db.NewModelRepository()
	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"gpt-4o", "gpt-4o-mini"} {
		require.NoError(t, repo.Upsert(ctx, &models.Model{
			ProviderID: "openai", ModelID: id, Enabled: true, IsDefault: id == "gpt-4o-mini",
			InputPricePerToken: 0.0000025, OutputPricePerToken: 0.00001,
			CreatedAt: models.NewMillis(base.Add(time.Duration(i) * time.Minute)),
		}))
	}

	list, err := repo.ListByProvider(ctx, "openai")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "gpt-4o", list[0].ModelID)
	assert.True(t, list[1].IsDefault)
	assert.Equal(t, 0.0000025, list[0].InputPricePerToken)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = repo.Get(ctx, "openai", "gpt-5")
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestUsageRepository_SumCostWindow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := db.NewUsageRepository()

	day := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	records := []*models.UsageRecord{
		{DeviceID: "dev-1", Provider: "openai", Model: "gpt-4o", CostUSD: 1.5, Success: true, CreatedAt: models.NewMillis(day.Add(time.Hour))},
		{DeviceID: "dev-1", Provider: "openai", Model: "gpt-4o", CostUSD: 2.0, Success: true, CreatedAt: models.NewMillis(day.Add(-time.Hour))},
		{DeviceID: "dev-2", Provider: "openai", Model: "gpt-4o", CostUSD: 9.0, Success: true, CreatedAt: models.NewMillis(day.Add(time.Hour))},
		{DeviceID: "dev-1", Provider: "openai", Model: "gpt-4o", CostUSD: 4.0, Success: false,
			ErrorMessage: sql.NullString{String: "timeout", Valid: true}, CreatedAt: models.NewMillis(day.Add(2 * time.Hour))},
	}
	require.NoError(t, repo.CreateBatch(ctx, records[:2]))
	for _, r := range records[2:] {
		require.NoError(t, repo.Append(ctx, r))
	}

	total, err := repo.SumCost(ctx, "dev-1", day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 1.5, total, 1e-9, "failed attempts cost nothing and the earlier day is excluded")

	total, err = repo.SumCost(ctx, "dev-3", day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, total)

	list, err := repo.ListByDevice(ctx, "dev-1", 10)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.False(t, list[0].Success)
	assert.Equal(t, "timeout", list[0].ErrorMessage.String)
	assert.Zero(t, list[0].CostUSD)
}

func TestAlertRepository_DedupAndResolve(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := db.NewAlertRepository()

	newAlert := func() *models.CostAlert {
		return &models.CostAlert{
			DeviceID: "dev-1", AlertType: models.AlertTypeDailyThreshold, Period: "2026-10-19",
			CurrentCost: 8.5, LimitAmount: 10,
		}
	}

	first := newAlert()
	inserted, err := repo.CreateIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.CreateIfAbsent(ctx, newAlert())
	require.NoError(t, err)
	assert.False(t, inserted, "second unresolved alert for the same period is dropped")

	monthly := newAlert()
	monthly.AlertType = models.AlertTypeMonthlyThreshold
	monthly.Period = "2026-10"
	inserted, err = repo.CreateIfAbsent(ctx, monthly)
	require.NoError(t, err)
	assert.True(t, inserted)

	require.NoError(t, repo.Resolve(ctx, first.ID))
	assert.ErrorIs(t, repo.Resolve(ctx, first.ID), ErrAlertNotFound)

	inserted, err = repo.CreateIfAbsent(ctx, newAlert())
	require.NoError(t, err)
	assert.True(t, inserted, "a resolved alert no longer blocks a new one")

	open, err := repo.ListOpen(ctx, "dev-1")
	require.NoError(t, err)
	assert.Len(t, open, 2)

	all, err := repo.ListAll(ctx, "dev-1")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	daily := 0
	for _, a := range all {
		if a.AlertType == models.AlertTypeDailyThreshold {
			daily++
			if a.ID == first.ID {
				assert.True(t, a.Resolved)
				assert.False(t, a.ResolvedAt.IsZero())
			}
		}
	}
	assert.Equal(t, 2, daily)
}

func TestHistoryRepository_Recent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := db.NewHistoryRepository()

	base := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		dir := models.DirectionInbound
		if i%2 == 1 {
			dir = models.DirectionOutbound
		}
		require.NoError(t, repo.Append(ctx, &models.HistoryEntry{
			DeviceID: "dev-1", ChatID: "chat-1", Direction: dir,
			Content: string(rune('a' + i)), CreatedAt: models.NewMillis(base.Add(time.Duration(i) * time.Minute)),
		}))
	}
	require.NoError(t, repo.Append(ctx, &models.HistoryEntry{
		DeviceID: "dev-1", ChatID: "chat-2", Direction: models.DirectionInbound, Content: "other chat",
		CreatedAt: models.NewMillis(base),
	}))

	entries, err := repo.Recent(ctx, models.HistoryQuery{DeviceID: "dev-1", ChatID: "chat-1", Limit: 3})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "e", entries[0].Content, "newest first")
	assert.Equal(t, "c", entries[2].Content)
	assert.Equal(t, models.DirectionOutbound, entries[1].Direction)

	entries, err = repo.Recent(ctx, models.HistoryQuery{
		DeviceID: "dev-1", ChatID: "chat-1", Since: base.Add(time.Minute), Before: base.Add(4 * time.Minute), Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "d", entries[0].Content)
	assert.Equal(t, "b", entries[2].Content)

	entries, err = repo.Recent(ctx, models.HistoryQuery{DeviceID: "dev-1", ChatID: "chat-1", Limit: 0})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBusinessContextRepository_SaveLoad(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := db.NewBusinessContextRepository(0.9)

	cleared := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	in := &business.Context{
		DeviceID: "dev-1",
		AI:       business.AISettings{Enabled: true, Provider: "openai", MemoryEnabled: true, LastMemoryClearedAt: &cleared},
		Profile: business.Profile{
			BusinessName:   "Maju Motor",
			ProductCatalog: []business.Product{{Name: "Honda Civic", ImageID: "abc123"}},
			SalesScript:    []business.ScriptStep{{Stage: "greeting", Script: "Halo!"}},
		},
		Limits: business.CostLimits{DailyUSD: 5},
	}
	require.NoError(t, repo.Save(ctx, in))

	out, err := repo.Load(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "Maju Motor", out.Profile.BusinessName)
	assert.Equal(t, "abc123", out.Profile.ProductCatalog[0].ImageID)
	assert.Equal(t, "Halo!", out.Profile.SalesScript[0].Script)
	assert.Equal(t, 0.9, out.Limits.AlertThreshold)
	assert.Equal(t, business.DefaultMaxHistoryLength, out.AI.MaxHistoryLength)
	require.NotNil(t, out.AI.LastMemoryClearedAt)
	assert.True(t, cleared.Equal(*out.AI.LastMemoryClearedAt))

	_, err = repo.Load(ctx, "missing")
	assert.ErrorIs(t, err, business.ErrContextNotFound)

	bad := *in
	bad.AI.Temperature = 9
	var verr *business.ValidationError
	assert.ErrorAs(t, repo.Save(ctx, &bad), &verr)
}

type countingStore struct {
	calls int
}

func (s *countingStore) Load(ctx context.Context, deviceID string) (*business.Context, error) {
	s.calls++
	if deviceID == "missing" {
		return nil, business.ErrContextNotFound
	}
	return &business.Context{DeviceID: deviceID}, nil
}

func TestCachedContextStore(t *testing.T) {
	inner := &countingStore{}
	store := NewCachedContextStore(inner, 10, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c, err := store.Load(ctx, "dev-1")
		require.NoError(t, err)
		assert.Equal(t, "dev-1", c.DeviceID)
	}
	assert.Equal(t, 1, inner.calls)

	store.Invalidate("dev-1")
	_, err := store.Load(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)

	_, err = store.Load(ctx, "missing")
	assert.ErrorIs(t, err, business.ErrContextNotFound)
	_, _ = store.Load(ctx, "missing")
	assert.Equal(t, 4, inner.calls, "errors are not cached")
	assert.Equal(t, int64(2), store.Stats().Hits)
}
