package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai_gateway/internal/models"
	"ai_gateway/internal/queue"
)

// mockUsageWriter simulates database writes for testing
type mockUsageWriter struct {
	mu          sync.Mutex
	records     []*models.UsageRecord
	batchFails  bool
	createFails int
}

func (m *mockUsageWriter) Create(ctx context.Context, record *models.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createFails > 0 {
		m.createFails--
		return fmt.Errorf("simulated database error")
	}
	m.records = append(m.records, record)
	return nil
}

func (m *mockUsageWriter) CreateBatch(ctx context.Context, records []*models.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.batchFails {
		return fmt.Errorf("simulated batch error")
	}
	m.records = append(m.records, records...)
	return nil
}

func (m *mockUsageWriter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func testQueueConfig() *queue.Config {
	cfg := queue.DefaultConfig("test-usage")
	cfg.BatchSize = 5
	cfg.BatchTimeout = 20 * time.Millisecond
	cfg.RetryBackoff = time.Millisecond
	cfg.MaxRetries = 2
	return cfg
}

func TestUsageQueueWorker_WritesBatches(t *testing.T) {
	cfg := testQueueConfig()
	writer := &mockUsageWriter{}
	worker := NewUsageQueueWorker(queue.NewMemoryQueue(cfg), queue.NewMemoryDeadLetterQueue(), writer, cfg)

	ctx := context.Background()
	for i := 0; i < 12; i++ {
		require.NoError(t, worker.Enqueue(ctx, &models.UsageRecord{DeviceID: "dev-1", Success: true, CostUSD: 0.01}))
	}

	worker.Start(ctx)
	require.Eventually(t, func() bool { return writer.count() == 12 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, worker.Stop())

	n, err := worker.QueueLength(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUsageQueueWorker_StopDrainsQueue(t *testing.T) {
	cfg := testQueueConfig()
	writer := &mockUsageWriter{}
	q := queue.NewMemoryQueue(cfg)
	worker := NewUsageQueueWorker(q, nil, writer, cfg)

	ctx := context.Background()
	worker.Start(ctx)
	for i := 0; i < 7; i++ {
		require.NoError(t, worker.Enqueue(ctx, &models.UsageRecord{DeviceID: "dev-1"}))
	}
	require.NoError(t, worker.Stop())

	assert.Equal(t, 7, writer.count())
}

func TestUsageQueueWorker_FallbackAndDeadLetter(t *testing.T) {
	cfg := testQueueConfig()
	writer := &mockUsageWriter{batchFails: true, createFails: 3}
	dlq := queue.NewMemoryDeadLetterQueue()
	q := queue.NewMemoryQueue(cfg)
	worker := NewUsageQueueWorker(q, dlq, writer, cfg)

	ctx := context.Background()
	require.NoError(t, worker.Enqueue(ctx, &models.UsageRecord{DeviceID: "poison"}))
	require.NoError(t, worker.Enqueue(ctx, &models.UsageRecord{DeviceID: "fine"}))

	worker.processBatch(ctx)

	// Three failures exhaust the first record's retries; the second succeeds.
	assert.Equal(t, 1, writer.count())
	items, err := worker.DeadLetterItems(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)

	require.NoError(t, worker.RetryDeadLetterItem(ctx, items[0].ID))
	n, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.ErrorIs(t, worker.RetryDeadLetterItem(ctx, "unknown"), queue.ErrItemNotFound)
}

func TestUsageQueueWorker_FailedRecordsAreNormalized(t *testing.T) {
	cfg := testQueueConfig()
	worker := NewUsageQueueWorker(queue.NewMemoryQueue(cfg), nil, &mockUsageWriter{}, cfg)

	record := &models.UsageRecord{DeviceID: "dev-1", CostUSD: 3, Success: false}
	require.NoError(t, worker.Enqueue(context.Background(), record))
	assert.Zero(t, record.CostUSD)
	assert.True(t, record.ErrorMessage.Valid)
}

func TestAsyncLedger(t *testing.T) {
	db := newTestDB(t)
	repo := db.NewUsageRepository()
	cfg := testQueueConfig()
	worker := NewUsageQueueWorker(queue.NewMemoryQueue(cfg), nil, repo, cfg)
	ledger := NewAsyncLedger(worker, repo)

	ctx := context.Background()
	now := time.Now()
	from, to := now.Add(-time.Minute), now.Add(time.Minute)

	require.NoError(t, ledger.Append(ctx, &models.UsageRecord{
		DeviceID: "dev-1", Provider: "openai", Model: "gpt-4o", CostUSD: 0.25, Success: true,
	}))
	require.NoError(t, ledger.Append(ctx, &models.UsageRecord{
		DeviceID: "dev-1", Provider: "openai", Model: "gpt-4o", CostUSD: 0.5, Success: false,
	}))

	// Queued but not written yet: the charge already counts.
	total, err := ledger.SumCost(ctx, "dev-1", from, to)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, total, 1e-9)
	assert.Equal(t, 1, ledger.PendingCount())

	other, err := ledger.SumCost(ctx, "dev-2", from, to)
	require.NoError(t, err)
	assert.Zero(t, other)

	worker.Start(ctx)
	require.NoError(t, worker.Stop())

	assert.Zero(t, ledger.PendingCount())
	total, err = ledger.SumCost(ctx, "dev-1", from, to)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, total, 1e-9)

	records, err := repo.ListByDevice(ctx, "dev-1", 10)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestAsyncLedger_KeepsDeadLetteredCharges(t *testing.T) {
	cfg := testQueueConfig()
	writer := &mockUsageWriter{batchFails: true, createFails: 100}
	worker := NewUsageQueueWorker(queue.NewMemoryQueue(cfg), queue.NewMemoryDeadLetterQueue(), writer, cfg)
	ledger := NewAsyncLedger(worker, staticCost(0))

	ctx := context.Background()
	now := time.Now()
	require.NoError(t, ledger.Append(ctx, &models.UsageRecord{DeviceID: "dev-1", CostUSD: 0.4, Success: true}))

	worker.Start(ctx)
	require.NoError(t, worker.Stop())

	total, err := ledger.SumCost(ctx, "dev-1", now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	assert.InDelta(t, 0.4, total, 1e-9)
	assert.Equal(t, 1, ledger.PendingCount())
}

type staticCost float64

func (s staticCost) SumCost(ctx context.Context, deviceID string, from, to time.Time) (float64, error) {
	return float64(s), nil
}
