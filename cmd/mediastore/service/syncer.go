package service

import (
	"context"
	"time"

	"github.com/chronicler/mediastore/common/config"
	"github.com/chronicler/mediastore/common/logger"
	"github.com/chronicler/mediastore/common/models"
	"github.com/chronicler/mediastore/common/queue"
)

// BoxClient is the upload surface of an object-store client
type BoxClient interface {
	PutFile(ctx context.Context, key, path, contentType string) (int64, error)
}

// ClientPool resolves a storage box to its object-store client
type ClientPool interface {
	Client(box *models.StorageBox) (BoxClient, error)
}

// SyncLatch records the pending-to-synced transition. The bool reports
// whether this call won the transition.
type SyncLatch interface {
	MarkSynced(ctx context.Context, hash string, syncedAt time.Time) (bool, error)
}

// UsageConfirmer settles a box reservation into used bytes
type UsageConfirmer interface {
	ConfirmUsed(ctx context.Context, id string, size int64) error
}

// SyncService moves freshly archived content toward its storage box:
// synchronously when direct upload is on, otherwise through the durable
// queue. Hand-off never fails the archival request; the worst outcome is a
// record that stays pending and servable from the local buffer.
type SyncService struct {
	cfg   config.SyncConfig
	pool  ClientPool
	queue queue.SyncQueue
	media SyncLatch
	boxes UsageConfirmer
	log   *logger.Logger
}

// NewSyncService creates a sync service
func NewSyncService(cfg config.SyncConfig, pool ClientPool, q queue.SyncQueue, media SyncLatch, boxes UsageConfirmer, log *logger.Logger) *SyncService {
	return &SyncService{
		cfg:   cfg,
		pool:  pool,
		queue: q,
		media: media,
		boxes: boxes,
		log:   log,
	}
}

// Handoff pushes a record to its box. Returns whether the record is synced
// when the call returns; false means the record is pending with a queued
// job, or pending with nothing queued after a total failure. Either way the
// local copy keeps the content servable.
func (s *SyncService) Handoff(ctx context.Context, rec *models.MediaRecord, box *models.StorageBox) bool {
	if s.cfg.DirectUpload {
		if s.uploadDirect(ctx, rec, box) {
			return true
		}
	}
	s.enqueue(ctx, rec, box)
	return false
}

// uploadDirect tries the synchronous path. Any failure is logged and
// reported as false so the caller falls back to the queue.
func (s *SyncService) uploadDirect(ctx context.Context, rec *models.MediaRecord, box *models.StorageBox) bool {
	log := s.log.WithHash(rec.Hash).WithBox(box.ID)

	if rec.LocalPath == nil {
		log.Warn("record has no local path, skipping direct upload")
		return false
	}

	client, err := s.pool.Client(box)
	if err != nil {
		log.Warn("failed to get object store client", "error", err)
		return false
	}

	if _, err := client.PutFile(ctx, rec.LocationKey, *rec.LocalPath, rec.MimeType); err != nil {
		log.Warn("direct upload failed, falling back to queue", "error", err)
		return false
	}

	now := time.Now().UTC()
	marked, err := s.media.MarkSynced(ctx, rec.Hash, now)
	if err != nil {
		// the object is uploaded; the queued job will repeat the upload
		// harmlessly and retry the transition
		log.Warn("failed to mark record synced", "error", err)
		return false
	}
	if marked {
		if err := s.boxes.ConfirmUsed(ctx, box.ID, rec.SizeBytes); err != nil {
			log.Error("failed to confirm used bytes after sync", "size", rec.SizeBytes, "error", err)
		}
		rec.SyncedAt = &now
		rec.LocalPath = nil
	}

	log.Info("synced record directly", "location_key", rec.LocationKey, "size", rec.SizeBytes)
	return true
}

// enqueue hands the record to the durable queue. Enqueue failure is logged
// and swallowed; the record stays pending with its reservation held and the
// reconciliation sweep will pick it up.
func (s *SyncService) enqueue(ctx context.Context, rec *models.MediaRecord, box *models.StorageBox) {
	log := s.log.WithHash(rec.Hash).WithBox(box.ID)

	if rec.LocalPath == nil {
		log.Warn("record has no local path, nothing to enqueue")
		return
	}

	job := models.NewSyncJob(rec, box.ID)
	if err := s.queue.Enqueue(ctx, job); err != nil {
		log.Error("failed to enqueue sync job", "error", err)
		return
	}

	log.Info("queued sync job", "location_key", rec.LocationKey, "size", rec.SizeBytes)
}
