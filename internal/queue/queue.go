// Package queue provides the buffering used to write usage records off the
// request path. Two backends share one interface:
//
//  1. MemoryQueue (channel-based): no persistence, no external dependencies,
//     suited to single-instance deployments.
//  2. RedisQueue (Redis list): survives restarts and can be drained by workers
//     in other replicas.
//
// Failed items end up in a DeadLetterQueue so they can be inspected and retried.
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Queue defines the interface for message queuing
type Queue interface {
	// Enqueue adds an item to the queue
	Enqueue(ctx context.Context, item interface{}) error

	// Dequeue retrieves up to maxItems, blocking until at least one is available
	Dequeue(ctx context.Context, maxItems int) ([]interface{}, error)

	// DequeueWithTimeout returns an empty slice if nothing arrives before timeout
	DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]interface{}, error)

	// Length returns the current queue length
	Length(ctx context.Context) (int, error)

	// Close shuts down the queue gracefully
	Close() error
}

// DeadLetterQueue defines the interface for handling failed items
type DeadLetterQueue interface {
	Add(ctx context.Context, item interface{}, err error) error
	List(ctx context.Context, maxItems int) ([]DeadLetterItem, error)
	Remove(ctx context.Context, id string) error
	Close() error
}

// DeadLetterItem represents an item in the dead letter queue
type DeadLetterItem struct {
	ID        string      `json:"id"`
	Item      interface{} `json:"item"`
	Error     string      `json:"error"`
	Timestamp time.Time   `json:"timestamp"`
}

// Config holds queue configuration
type Config struct {
	// BatchSize is the maximum number of items to process in a batch
	BatchSize int

	// BatchTimeout is how long to wait before processing a partial batch
	BatchTimeout time.Duration

	// MaxRetries is the maximum number of retry attempts
	MaxRetries int

	// RetryBackoff is the initial backoff duration for retries
	RetryBackoff time.Duration

	// QueueName is the name/key for the queue
	QueueName string
}

// DefaultConfig returns default queue configuration
func DefaultConfig(queueName string) *Config {
	return &Config{
		BatchSize:    100,
		BatchTimeout: 5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 1 * time.Second,
		QueueName:    queueName,
	}
}

func newDeadLetterItem(item interface{}, err error) DeadLetterItem {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return DeadLetterItem{
		ID:        uuid.NewString(),
		Item:      item,
		Error:     msg,
		Timestamp: time.Now(),
	}
}
