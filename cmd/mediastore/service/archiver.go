package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/chronicler/mediastore/common/logger"
	"github.com/chronicler/mediastore/common/mediapath"
	"github.com/chronicler/mediastore/common/models"
)

// ErrEmptyBlob is returned when the inbound stream carried no bytes
var ErrEmptyBlob = errors.New("refusing to archive an empty blob")

// ErrMissingRef is returned when no logical reference accompanies the blob
var ErrMissingRef = errors.New("logical ref id is required")

// MediaCatalog is the dedup surface of the media catalog
type MediaCatalog interface {
	FindByHash(ctx context.Context, hash string) (*models.MediaRecord, error)
	CreateOrGet(ctx context.Context, rec *models.MediaRecord) (*models.MediaRecord, bool, error)
	IncrementReference(ctx context.Context, hash string) (*models.MediaRecord, error)
	Link(ctx context.Context, mediaRecordID int64, logicalRef string) error
}

// Placer chooses a destination box and reserves the bytes on it
type Placer interface {
	Select(ctx context.Context, sizeBytes int64, region string) (*models.StorageBox, error)
}

// Processor optionally rewrites a buffered blob, returning its on-disk
// size afterwards
type Processor interface {
	Process(ctx context.Context, path, filename, mimeType string, size int64) int64
}

// Synchronizer pushes an archived record toward its storage box
type Synchronizer interface {
	Handoff(ctx context.Context, rec *models.MediaRecord, box *models.StorageBox) bool
}

// ArchiveRequest carries one inbound blob and its metadata
type ArchiveRequest struct {
	Reader       io.Reader
	Filename     string
	DeclaredMime string
	RefID        string
	Region       string
	SizeHint     int64 // declared length, 0 when unknown
}

// ArchiveService runs the archival pipeline: spool and hash, dedup against
// the catalog, place and buffer new content, post-process, record, and
// hand off to sync. Identical content is stored once no matter how many
// logical refs point at it.
type ArchiveService struct {
	media    MediaCatalog
	selector Placer
	ledger   ReservationLedger
	buffer   *BufferWriter
	post     Processor
	sync     Synchronizer
	log      *logger.Logger
}

// NewArchiveService creates an archive service
func NewArchiveService(media MediaCatalog, selector Placer, ledger ReservationLedger, buffer *BufferWriter, post Processor, sync Synchronizer, log *logger.Logger) *ArchiveService {
	return &ArchiveService{
		media:    media,
		selector: selector,
		ledger:   ledger,
		buffer:   buffer,
		post:     post,
		sync:     sync,
		log:      log,
	}
}

// Archive ingests one blob. The returned bool reports deduplication: true
// means the content already existed and only a reference was added. When
// it returns without error the content is servable, locally or durably.
func (s *ArchiveService) Archive(ctx context.Context, req ArchiveRequest) (*models.MediaRecord, bool, error) {
	if req.RefID == "" {
		return nil, false, ErrMissingRef
	}

	spool, err := s.buffer.Spool(ctx, req.Reader, req.SizeHint)
	if err != nil {
		return nil, false, err
	}
	if spool.Size == 0 {
		s.buffer.Discard(spool)
		return nil, false, ErrEmptyBlob
	}

	log := s.log.WithHash(spool.Hash)

	existing, err := s.media.FindByHash(ctx, spool.Hash)
	if err != nil {
		s.buffer.Discard(spool)
		return nil, false, fmt.Errorf("failed to look up hash: %w", err)
	}
	if existing != nil {
		s.buffer.Discard(spool)
		return s.addReference(ctx, spool.Hash, req.RefID, log)
	}

	return s.storeNew(ctx, req, spool, log)
}

// addReference handles the dedup hit: bump the count, link the ref, done.
// No placement, no buffering, no sync.
func (s *ArchiveService) addReference(ctx context.Context, hash, refID string, log *logger.Logger) (*models.MediaRecord, bool, error) {
	rec, err := s.media.IncrementReference(ctx, hash)
	if err != nil {
		return nil, false, fmt.Errorf("failed to increment reference: %w", err)
	}
	if rec == nil {
		// the row was there moments ago and nothing deletes rows
		return nil, false, fmt.Errorf("record for hash %s disappeared during archival", hash)
	}
	if err := s.media.Link(ctx, rec.ID, refID); err != nil {
		return nil, false, fmt.Errorf("failed to link reference: %w", err)
	}

	log.Info("deduplicated blob", "ref_id", refID, "reference_count", rec.ReferenceCount)
	return rec, true, nil
}

// storeNew places, buffers, post-processes, records and hands off content
// the catalog has not seen. The reservation taken by Select is released on
// every abandonment path.
func (s *ArchiveService) storeNew(ctx context.Context, req ArchiveRequest, spool *Spool, log *logger.Logger) (*models.MediaRecord, bool, error) {
	box, err := s.selector.Select(ctx, spool.Size, req.Region)
	if err != nil {
		s.buffer.Discard(spool)
		return nil, false, err
	}

	path, err := s.buffer.Commit(spool, req.Filename)
	if err != nil {
		s.buffer.Discard(spool)
		s.release(ctx, box.ID, spool.Size)
		return nil, false, err
	}

	mimeType := mediapath.SafeMime(req.DeclaredMime)
	size := s.post.Process(ctx, path, req.Filename, mimeType, spool.Size)

	// held tracks what this request actually has reserved, which can
	// differ from size when the box refused to absorb transform growth
	held := spool.Size
	if size != spool.Size {
		held = s.adjustReservation(ctx, box.ID, spool.Size, size, log)
	}

	boxID := box.ID
	rec := &models.MediaRecord{
		Hash:         spool.Hash,
		LocationKey:  mediapath.LocationKey(spool.Hash, req.Filename),
		SizeBytes:    size,
		MimeType:     mimeType,
		StorageBoxID: &boxID,
		LocalPath:    &path,
	}

	stored, created, err := s.media.CreateOrGet(ctx, rec)
	if err != nil {
		s.release(ctx, box.ID, held)
		return nil, false, fmt.Errorf("failed to record blob: %w", err)
	}

	if !created {
		// a concurrent upload of the same bytes won; its copy is canonical
		// and our rename overwrote it with identical content. The conflict
		// bump inside CreateOrGet already counted this archival.
		s.release(ctx, box.ID, held)
		if err := s.media.Link(ctx, stored.ID, req.RefID); err != nil {
			return nil, false, fmt.Errorf("failed to link reference: %w", err)
		}
		log.Info("lost creation race, reusing existing record", "record_id", stored.ID)
		return stored, true, nil
	}

	if err := s.media.Link(ctx, stored.ID, req.RefID); err != nil {
		// the record stays: it owns its reservation and the sweep will
		// sync it, but this caller's ref was not attached
		return nil, false, fmt.Errorf("failed to link reference: %w", err)
	}

	synced := s.sync.Handoff(ctx, stored, box)
	log.Info("archived new blob",
		"record_id", stored.ID,
		"box_id", box.ID,
		"size", humanize.IBytes(uint64(size)),
		"ref_id", req.RefID,
		"synced", synced,
	)
	return stored, false, nil
}

// adjustReservation trues the held reservation up or down after a
// transform changed the on-disk size, returning the amount now held
func (s *ArchiveService) adjustReservation(ctx context.Context, boxID string, before, after int64, log *logger.Logger) int64 {
	delta := after - before
	if delta > 0 {
		ok, err := s.ledger.TryReserve(ctx, boxID, delta)
		if err != nil || !ok {
			// the content is already transformed and placed; carry on with
			// the counters understating by delta rather than unwinding
			log.Warn("box could not absorb transform growth", "box_id", boxID, "delta", delta, "error", err)
			return before
		}
		return after
	}
	if err := s.ledger.Release(ctx, boxID, -delta); err != nil {
		log.Warn("failed to shrink reservation after transform", "box_id", boxID, "delta", delta, "error", err)
		return before
	}
	return after
}

func (s *ArchiveService) release(ctx context.Context, boxID string, size int64) {
	if err := s.ledger.Release(ctx, boxID, size); err != nil {
		s.log.Error("failed to release reservation", "box_id", boxID, "size", size, "error", err)
	}
}
