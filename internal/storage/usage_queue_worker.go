package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"ai_gateway/internal/models"
	"ai_gateway/internal/queue"
	"ai_gateway/internal/utils"
)

// UsageWriter persists usage records; implemented by UsageRepository.
type UsageWriter interface {
	Create(ctx context.Context, record *models.UsageRecord) error
	CreateBatch(ctx context.Context, records []*models.UsageRecord) error
}

// UsageQueueWorker drains queued usage records into the ledger in batches
type UsageQueueWorker struct {
	queue       queue.Queue
	dlq         queue.DeadLetterQueue
	writer      UsageWriter
	config      *queue.Config
	logger      *utils.Logger
	stopChan    chan struct{}
	stoppedChan chan struct{}

	hookMu    sync.Mutex
	persisted func(records []*models.UsageRecord)
}

// NewUsageQueueWorker creates a new usage queue worker
func NewUsageQueueWorker(q queue.Queue, dlq queue.DeadLetterQueue, writer UsageWriter, config *queue.Config) *UsageQueueWorker {
	if config == nil {
		config = queue.DefaultConfig("usage")
	}

	return &UsageQueueWorker{
		queue:       q,
		dlq:         dlq,
		writer:      writer,
		config:      config,
		logger:      utils.NewLogger("usage-worker"),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// OnPersisted registers fn to be called with every record the worker has
// written to the ledger.
func (w *UsageQueueWorker) OnPersisted(fn func(records []*models.UsageRecord)) {
	w.hookMu.Lock()
	defer w.hookMu.Unlock()
	w.persisted = fn
}

func (w *UsageQueueWorker) notifyPersisted(records []*models.UsageRecord) {
	w.hookMu.Lock()
	fn := w.persisted
	w.hookMu.Unlock()
	if fn != nil && len(records) > 0 {
		fn(records)
	}
}

// Start starts the worker goroutine
func (w *UsageQueueWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop drains what is already queued and stops the worker
func (w *UsageQueueWorker) Stop() error {
	close(w.stopChan)
	<-w.stoppedChan
	return nil
}

// Enqueue adds a usage record to the queue
func (w *UsageQueueWorker) Enqueue(ctx context.Context, record *models.UsageRecord) error {
	record.Normalize(time.Now())
	return w.queue.Enqueue(ctx, record)
}

func (w *UsageQueueWorker) run(ctx context.Context) {
	defer close(w.stoppedChan)

	for {
		select {
		case <-w.stopChan:
			w.drain(context.Background())
			w.logger.Info("Usage worker stopped")
			return
		case <-ctx.Done():
			w.logger.Info("Usage worker context cancelled")
			return
		default:
			w.processBatch(ctx)
		}
	}
}

// drain flushes queued records until the queue is empty.
func (w *UsageQueueWorker) drain(ctx context.Context) {
	for {
		n, err := w.queue.Length(ctx)
		if err != nil || n == 0 {
			return
		}
		if w.processBatch(ctx) == 0 {
			return
		}
	}
}

// processBatch handles one batch and returns how many items it dequeued
func (w *UsageQueueWorker) processBatch(ctx context.Context) int {
	items, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, w.config.BatchTimeout)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("Failed to dequeue usage records", "error", err)
			time.Sleep(w.config.RetryBackoff)
		}
		return 0
	}

	if len(items) == 0 {
		return 0
	}

	w.logger.Debug("Processing usage batch", "count", len(items))

	records := make([]*models.UsageRecord, 0, len(items))
	for _, item := range items {
		record, err := decodeUsageItem(item)
		if err != nil {
			w.logger.Error("Failed to decode usage record", "error", err)
			continue
		}
		records = append(records, record)
	}

	if len(records) == 0 {
		return len(items)
	}

	if err := w.writer.CreateBatch(ctx, records); err != nil {
		w.logger.Warn("Batch insert failed, falling back to individual inserts", "error", err)
		written := make([]*models.UsageRecord, 0, len(records))
		for _, record := range records {
			if err := w.processItem(ctx, record); err != nil {
				w.logger.Error("Failed to persist usage record", "id", record.ID, "error", err)
				continue
			}
			written = append(written, record)
		}
		w.notifyPersisted(written)
		return len(items)
	}
	w.notifyPersisted(records)
	return len(items)
}

// processItem writes a single record with exponential backoff, then dead-letters it
func (w *UsageQueueWorker) processItem(ctx context.Context, record *models.UsageRecord) error {
	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := w.config.RetryBackoff * time.Duration(1<<uint(attempt-1))
			w.logger.Debug("Retrying usage record", "attempt", attempt, "backoff", backoff)
			time.Sleep(backoff)
		}

		if err := w.writer.Create(ctx, record); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	if w.dlq != nil {
		if err := w.dlq.Add(ctx, record, lastErr); err != nil {
			w.logger.Error("Failed to add to dead letter queue", "error", err)
		} else {
			w.logger.Warn("Usage record moved to DLQ", "id", record.ID, "device", record.DeviceID, "error", lastErr)
		}
	}

	return fmt.Errorf("%w: %v", queue.ErrMaxRetriesExceeded, lastErr)
}

func decodeUsageItem(item interface{}) (*models.UsageRecord, error) {
	switch v := item.(type) {
	case *models.UsageRecord:
		return v, nil
	case json.RawMessage:
		var record models.UsageRecord
		if err := json.Unmarshal(v, &record); err != nil {
			return nil, err
		}
		return &record, nil
	case []byte:
		var record models.UsageRecord
		if err := json.Unmarshal(v, &record); err != nil {
			return nil, err
		}
		return &record, nil
	}
	return nil, fmt.Errorf("unexpected queue item type %T", item)
}

// QueueLength returns the number of records waiting to be written
func (w *UsageQueueWorker) QueueLength(ctx context.Context) (int, error) {
	return w.queue.Length(ctx)
}

// DeadLetterItems returns records that could not be written
func (w *UsageQueueWorker) DeadLetterItems(ctx context.Context, maxItems int) ([]queue.DeadLetterItem, error) {
	if w.dlq == nil {
		return nil, fmt.Errorf("dead letter queue not configured")
	}
	return w.dlq.List(ctx, maxItems)
}

// RetryDeadLetterItem re-enqueues a dead-lettered record
func (w *UsageQueueWorker) RetryDeadLetterItem(ctx context.Context, id string) error {
	if w.dlq == nil {
		return fmt.Errorf("dead letter queue not configured")
	}

	items, err := w.dlq.List(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to list dead letter items: %w", err)
	}

	for _, dlItem := range items {
		if dlItem.ID != id {
			continue
		}
		if err := w.queue.Enqueue(ctx, dlItem.Item); err != nil {
			return fmt.Errorf("failed to re-enqueue item: %w", err)
		}
		return w.dlq.Remove(ctx, id)
	}

	return queue.ErrItemNotFound
}

// UsageCostReader sums ledger cost; implemented by UsageRepository.
type UsageCostReader interface {
	SumCost(ctx context.Context, deviceID string, from, to time.Time) (float64, error)
}

// AsyncLedger appends through the usage queue and reads totals from the
// database plus the charges this process has queued but not yet written, so
// spend checks see a charge as soon as it is appended. A charge may be counted
// twice for the moment between its insert and the worker's notification.
// Dead-lettered charges stay counted until a retry writes them.
type AsyncLedger struct {
	worker *UsageQueueWorker
	reader UsageCostReader

	mu      sync.Mutex
	pending map[uuid.UUID]pendingCharge
}

type pendingCharge struct {
	deviceID string
	costUSD  float64
	at       time.Time
}

// NewAsyncLedger combines a queue worker and a cost reader into a ledger.
// It registers itself on the worker to learn when charges are persisted.
func NewAsyncLedger(worker *UsageQueueWorker, reader UsageCostReader) *AsyncLedger {
	l := &AsyncLedger{
		worker:  worker,
		reader:  reader,
		pending: make(map[uuid.UUID]pendingCharge),
	}
	worker.OnPersisted(l.settle)
	return l
}

// Append queues the record for persistence
func (l *AsyncLedger) Append(ctx context.Context, record *models.UsageRecord) error {
	record.Normalize(time.Now())

	charged := record.Success && record.CostUSD > 0
	if charged {
		l.mu.Lock()
		l.pending[record.ID] = pendingCharge{deviceID: record.DeviceID, costUSD: record.CostUSD, at: record.CreatedAt.Time}
		l.mu.Unlock()
	}

	if err := l.worker.Enqueue(ctx, record); err != nil {
		if charged {
			l.settle([]*models.UsageRecord{record})
		}
		return err
	}
	return nil
}

// SumCost returns persisted cost plus queued charges over [from, to)
func (l *AsyncLedger) SumCost(ctx context.Context, deviceID string, from, to time.Time) (float64, error) {
	total, err := l.reader.SumCost(ctx, deviceID, from, to)
	if err != nil {
		return 0, err
	}
	return total + l.pendingCost(deviceID, from, to), nil
}

func (l *AsyncLedger) pendingCost(deviceID string, from, to time.Time) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := 0.0
	for _, c := range l.pending {
		if c.deviceID == deviceID && !c.at.Before(from) && c.at.Before(to) {
			total += c.costUSD
		}
	}
	return total
}

// PendingCount returns how many charges are queued but not yet written
func (l *AsyncLedger) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

func (l *AsyncLedger) settle(records []*models.UsageRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range records {
		delete(l.pending, r.ID)
	}
}

// Append implements the synchronous ledger on the repository itself
func (r *UsageRepository) Append(ctx context.Context, record *models.UsageRecord) error {
	return r.Create(ctx, record)
}
