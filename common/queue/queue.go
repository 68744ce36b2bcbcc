package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chronicler/mediastore/common/logger"
	"github.com/chronicler/mediastore/common/models"
	"github.com/chronicler/mediastore/common/redis"
)

// ErrQueueFull is returned when a bounded queue cannot accept more jobs.
// Callers treat enqueue failures as recoverable; the reconciliation sweep
// picks the work up again later.
var ErrQueueFull = errors.New("queue is full")

// SyncQueue carries sync jobs between the ingest service and the
// background workers. Delivery is at-least-once: consumers must tolerate
// the same job arriving twice. Jobs cross the queue as their JSON wire
// form, so payloads written by one version stay readable by another.
type SyncQueue interface {
	// Enqueue appends a job to the queue
	Enqueue(ctx context.Context, job *models.SyncJob) error

	// Dequeue blocks up to timeout for the next job. A nil job with nil
	// error means the timeout elapsed with nothing to do.
	Dequeue(ctx context.Context, timeout time.Duration) (*models.SyncJob, error)

	// Length returns the number of queued jobs
	Length(ctx context.Context) (int64, error)

	// Close releases queue resources
	Close() error
}

// RedisQueue is a Redis-list-backed SyncQueue. Jobs survive process
// restarts; RPUSH/BLPOP gives FIFO hand-off across any number of workers.
type RedisQueue struct {
	client *redis.Client
	key    string
	log    *logger.Logger
}

// NewRedisQueue creates a queue on the given Redis list key
func NewRedisQueue(client *redis.Client, key string, log *logger.Logger) *RedisQueue {
	return &RedisQueue{
		client: client,
		key:    key,
		log:    log,
	}
}

// Enqueue appends a job to the list
func (q *RedisQueue) Enqueue(ctx context.Context, job *models.SyncJob) error {
	payload, err := job.Marshal()
	if err != nil {
		return err
	}
	if err := q.client.PushToList(ctx, q.key, payload); err != nil {
		return fmt.Errorf("failed to enqueue to %s: %w", q.key, err)
	}
	return nil
}

// Dequeue pops the oldest job, blocking up to timeout
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*models.SyncJob, error) {
	result, err := q.client.BlockingPopList(ctx, timeout, q.key)
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue from %s: %w", q.key, err)
	}
	if result == nil {
		return nil, nil
	}
	// BLPOP returns [key, value]
	if len(result) < 2 {
		return nil, fmt.Errorf("unexpected BLPOP reply from %s: %d elements", q.key, len(result))
	}
	return models.UnmarshalSyncJob([]byte(result[1]))
}

// Length returns the number of queued jobs
func (q *RedisQueue) Length(ctx context.Context) (int64, error) {
	return q.client.ListLength(ctx, q.key)
}

// Close is a no-op; the shared Redis connection is closed by its owner
func (q *RedisQueue) Close() error {
	return nil
}

// MemoryQueue is an in-process SyncQueue for development and tests.
// Jobs do not survive restarts. Payloads still round-trip through the
// JSON wire form so both implementations behave identically.
type MemoryQueue struct {
	ch     chan []byte
	log    *logger.Logger
	mu     sync.Mutex
	closed bool
}

// NewMemoryQueue creates an in-memory queue holding up to 1000 jobs
func NewMemoryQueue(log *logger.Logger) *MemoryQueue {
	return &MemoryQueue{
		ch:  make(chan []byte, 1000),
		log: log,
	}
}

// Enqueue appends a job, failing fast when the buffer is full. The lock is
// held across the send so Close can never pull the channel out from under
// an in-flight enqueue.
func (q *MemoryQueue) Enqueue(ctx context.Context, job *models.SyncJob) error {
	payload, err := job.Marshal()
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	select {
	case q.ch <- payload:
		return nil
	default:
		q.log.Warn("memory queue full, dropping enqueue", "capacity", cap(q.ch))
		return ErrQueueFull
	}
}

// Dequeue pops the oldest job, blocking up to timeout
func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*models.SyncJob, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case payload, ok := <-q.ch:
		if !ok {
			return nil, fmt.Errorf("queue is closed")
		}
		return models.UnmarshalSyncJob(payload)
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Length returns the number of buffered jobs
func (q *MemoryQueue) Length(ctx context.Context) (int64, error) {
	return int64(len(q.ch)), nil
}

// Close closes the queue; subsequent enqueues fail
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	return nil
}
