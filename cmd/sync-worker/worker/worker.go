package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chronicler/mediastore/common/config"
	"github.com/chronicler/mediastore/common/logger"
	"github.com/chronicler/mediastore/common/models"
	"github.com/chronicler/mediastore/common/queue"
)

// reconcileBatch caps how many stale records one sweep re-enqueues.
// Anything beyond the cap waits for the next interval.
const reconcileBatch = 256

// reconcileLockKey is the Redis key electing one sweeper per interval
const reconcileLockKey = "mediastore:reconcile:lock"

// SyncCatalog is the slice of the media repository the worker needs
type SyncCatalog interface {
	FindByHash(ctx context.Context, hash string) (*models.MediaRecord, error)
	MarkSynced(ctx context.Context, hash string, syncedAt time.Time) (bool, error)
	ListPendingSync(ctx context.Context, olderThan time.Time, limit int) ([]*models.MediaRecord, error)
}

// BoxCatalog loads boxes and settles their accounting after upload
type BoxCatalog interface {
	GetByID(ctx context.Context, id string) (*models.StorageBox, error)
	ConfirmUsed(ctx context.Context, id string, size int64) error
}

// BoxClient uploads a local file to one storage box
type BoxClient interface {
	PutFile(ctx context.Context, key, path, contentType string) (int64, error)
}

// ClientPool hands out clients per box
type ClientPool interface {
	Client(box *models.StorageBox) (BoxClient, error)
}

// Locker elects a single sweeper across worker processes. Nil disables
// the election; a lone worker sweeps unconditionally.
type Locker interface {
	SetNX(ctx context.Context, key, value string, expiry time.Duration) (bool, error)
}

// SyncWorker drains the sync queue, uploading buffered blobs to their
// assigned storage boxes. Delivery is at-least-once: every step tolerates
// seeing the same job twice, and the synced_at latch keeps box accounting
// from counting an upload more than once.
type SyncWorker struct {
	cfg      config.SyncConfig
	queue    queue.SyncQueue
	media    SyncCatalog
	boxes    BoxCatalog
	pool     ClientPool
	locks    Locker
	log      *logger.Logger
	consumer string
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(
	cfg config.SyncConfig,
	q queue.SyncQueue,
	media SyncCatalog,
	boxes BoxCatalog,
	pool ClientPool,
	locks Locker,
	log *logger.Logger,
) *SyncWorker {
	return &SyncWorker{
		cfg:      cfg,
		queue:    q,
		media:    media,
		boxes:    boxes,
		pool:     pool,
		locks:    locks,
		log:      log,
		consumer: fmt.Sprintf("sync-worker-%s", uuid.New().String()[:8]),
	}
}

// Start begins draining the queue and sweeping for stale pending records
func (w *SyncWorker) Start(ctx context.Context) error {
	w.log.Info("starting sync worker",
		"consumer", w.consumer,
		"reconcile_interval", w.cfg.ReconcileInterval,
		"reconcile_age", w.cfg.ReconcileAge)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, 2)

	go func() {
		w.log.Info("starting queue drain goroutine")
		errChan <- w.drainQueue(ctx)
	}()

	go func() {
		w.log.Info("starting reconciliation goroutine")
		errChan <- w.reconcileLoop(ctx)
	}()

	select {
	case <-ctx.Done():
		w.log.Info("sync worker stopping")
		return nil
	case err := <-errChan:
		if err != nil {
			w.log.Error("sync worker goroutine failed", "error", err)
		}
		cancel()
		return err
	}
}

// drainQueue processes jobs until the context is cancelled
func (w *SyncWorker) drainQueue(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Info("queue drain stopping")
			return nil
		default:
			if err := w.processNext(ctx); err != nil {
				w.log.Error("failed to process sync job", "error", err)
				time.Sleep(1 * time.Second) // Back off on error
			}
		}
	}
}

// processNext pops and handles one job. A failed job goes back on the
// queue; if even that fails, the reconciliation sweep recovers the record.
func (w *SyncWorker) processNext(ctx context.Context) error {
	job, err := w.queue.Dequeue(ctx, 5*time.Second)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("dequeue error: %w", err)
	}
	if job == nil {
		// Timeout, no jobs
		return nil
	}

	if err := w.process(ctx, job); err != nil {
		if enqErr := w.queue.Enqueue(ctx, job); enqErr != nil {
			w.log.Error("failed to re-enqueue job, sweep will recover it",
				"hash", job.Hash, "error", enqErr)
		}
		return fmt.Errorf("sync of %s to box %s failed: %w", job.Hash, job.StorageBoxID, err)
	}

	return nil
}

// process uploads one job's blob and settles the record and box counters
func (w *SyncWorker) process(ctx context.Context, job *models.SyncJob) error {
	rec, err := w.media.FindByHash(ctx, job.Hash)
	if err != nil {
		return fmt.Errorf("failed to load record: %w", err)
	}
	if rec == nil {
		w.log.Warn("record vanished, dropping job", "hash", job.Hash)
		return nil
	}
	if !rec.Pending() {
		w.log.Debug("record already synced, skipping", "hash", job.Hash)
		return nil
	}
	if job.LocalPath == "" {
		w.log.Warn("job has no local path, dropping", "hash", job.Hash)
		return nil
	}

	box, err := w.boxes.GetByID(ctx, job.StorageBoxID)
	if err != nil {
		return fmt.Errorf("failed to load box: %w", err)
	}
	if box == nil {
		return fmt.Errorf("storage box %s not registered", job.StorageBoxID)
	}

	client, err := w.pool.Client(box)
	if err != nil {
		return fmt.Errorf("failed to build client for box %s: %w", box.ID, err)
	}

	if _, err := client.PutFile(ctx, job.LocationKey, job.LocalPath, rec.MimeType); err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	marked, err := w.media.MarkSynced(ctx, job.Hash, time.Now().UTC())
	if err != nil {
		// The upload landed; the retry repeats it onto the same key with
		// the same bytes, then tries the latch again.
		return fmt.Errorf("failed to mark record synced: %w", err)
	}
	if !marked {
		w.log.Debug("another worker marked the record synced", "hash", job.Hash)
		return nil
	}

	// Only the latch winner settles the counters, so a redelivered job
	// can never confirm the same bytes twice.
	if err := w.boxes.ConfirmUsed(ctx, job.StorageBoxID, job.SizeBytes); err != nil {
		w.log.Error("failed to confirm box usage",
			"box_id", job.StorageBoxID, "hash", job.Hash, "error", err)
	}

	w.log.Info("synced blob to storage box",
		"hash", job.Hash,
		"box_id", job.StorageBoxID,
		"size_bytes", job.SizeBytes,
		"queue_time_ms", time.Since(job.QueuedAt).Milliseconds())

	return nil
}

// reconcileLoop periodically re-enqueues records stuck in pending
func (w *SyncWorker) reconcileLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("reconciliation stopping")
			return nil
		case <-ticker.C:
			if err := w.reconcile(ctx); err != nil {
				w.log.Error("reconciliation sweep failed", "error", err)
			}
		}
	}
}

// reconcile re-enqueues pending records older than the reconcile age.
// A record whose job was lost (enqueue failure, worker crash, queue wipe)
// comes back through here; re-enqueueing a live one is harmless because
// processing is idempotent.
func (w *SyncWorker) reconcile(ctx context.Context) error {
	if w.locks != nil {
		ok, err := w.locks.SetNX(ctx, reconcileLockKey, w.consumer, w.cfg.ReconcileInterval)
		if err != nil {
			return fmt.Errorf("failed to acquire sweep lock: %w", err)
		}
		if !ok {
			w.log.Debug("another worker holds the sweep lock")
			return nil
		}
	}

	cutoff := time.Now().UTC().Add(-w.cfg.ReconcileAge)
	records, err := w.media.ListPendingSync(ctx, cutoff, reconcileBatch)
	if err != nil {
		return fmt.Errorf("failed to list pending records: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	requeued := 0
	for _, rec := range records {
		if rec.StorageBoxID == nil || rec.LocalPath == nil {
			w.log.Warn("pending record is missing box or local path, skipping",
				"hash", rec.Hash)
			continue
		}
		if err := w.queue.Enqueue(ctx, models.NewSyncJob(rec, *rec.StorageBoxID)); err != nil {
			w.log.Error("failed to re-enqueue pending record",
				"hash", rec.Hash, "error", err)
			continue
		}
		requeued++
	}

	w.log.Info("reconciliation sweep complete",
		"stale", len(records),
		"requeued", requeued,
		"cutoff", cutoff.Format(time.RFC3339))

	return nil
}
