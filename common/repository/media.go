package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chronicler/mediastore/common/db"
	"github.com/chronicler/mediastore/common/models"
)

// MediaRepository handles database operations for media records
type MediaRepository struct {
	db *db.DB
}

// NewMediaRepository creates a new media repository
func NewMediaRepository(database *db.DB) *MediaRepository {
	return &MediaRepository{db: database}
}

// FindByHash retrieves a media record by content hash.
// Returns nil when no record exists.
func (r *MediaRepository) FindByHash(ctx context.Context, hash string) (*models.MediaRecord, error) {
	query := `
		SELECT id, hash, location_key, size_bytes, mime_type, storage_box_id,
		       reference_count, local_path, synced_at, created_at, updated_at
		FROM media_records
		WHERE hash = $1
	`

	rec := &models.MediaRecord{}
	err := r.db.QueryRow(ctx, query, hash).Scan(
		&rec.ID,
		&rec.Hash,
		&rec.LocationKey,
		&rec.SizeBytes,
		&rec.MimeType,
		&rec.StorageBoxID,
		&rec.ReferenceCount,
		&rec.LocalPath,
		&rec.SyncedAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find media record: %w", err)
	}

	return rec, nil
}

// CreateOrGet inserts a new media record, or bumps the reference count of
// the existing one when another writer got there first. The unique hash
// constraint makes this the single serialization point for concurrent
// archivals of identical content. Returns the resulting row and whether
// this call inserted it.
func (r *MediaRepository) CreateOrGet(ctx context.Context, rec *models.MediaRecord) (*models.MediaRecord, bool, error) {
	query := `
		INSERT INTO media_records (hash, location_key, size_bytes, mime_type, storage_box_id, local_path)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (hash) DO UPDATE
			SET reference_count = media_records.reference_count + 1,
			    updated_at = now()
		RETURNING id, hash, location_key, size_bytes, mime_type, storage_box_id,
		          reference_count, local_path, synced_at, created_at, updated_at,
		          (xmax = 0) AS inserted
	`

	out := &models.MediaRecord{}
	var inserted bool
	err := r.db.QueryRow(ctx, query,
		rec.Hash,
		rec.LocationKey,
		rec.SizeBytes,
		rec.MimeType,
		rec.StorageBoxID,
		rec.LocalPath,
	).Scan(
		&out.ID,
		&out.Hash,
		&out.LocationKey,
		&out.SizeBytes,
		&out.MimeType,
		&out.StorageBoxID,
		&out.ReferenceCount,
		&out.LocalPath,
		&out.SyncedAt,
		&out.CreatedAt,
		&out.UpdatedAt,
		&inserted,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create media record: %w", err)
	}

	return out, inserted, nil
}

// IncrementReference bumps the reference count for existing content and
// returns the updated record. Returns nil when the hash is unknown.
func (r *MediaRepository) IncrementReference(ctx context.Context, hash string) (*models.MediaRecord, error) {
	query := `
		UPDATE media_records
		SET reference_count = reference_count + 1,
		    updated_at = now()
		WHERE hash = $1
		RETURNING id, hash, location_key, size_bytes, mime_type, storage_box_id,
		          reference_count, local_path, synced_at, created_at, updated_at
	`

	rec := &models.MediaRecord{}
	err := r.db.QueryRow(ctx, query, hash).Scan(
		&rec.ID,
		&rec.Hash,
		&rec.LocationKey,
		&rec.SizeBytes,
		&rec.MimeType,
		&rec.StorageBoxID,
		&rec.ReferenceCount,
		&rec.LocalPath,
		&rec.SyncedAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to increment reference: %w", err)
	}

	return rec, nil
}

// Link records that a logical reference points at a media record.
// Re-linking the same pair is a no-op.
func (r *MediaRepository) Link(ctx context.Context, mediaRecordID int64, logicalRef string) error {
	query := `
		INSERT INTO media_links (media_record_id, logical_ref)
		VALUES ($1, $2)
		ON CONFLICT (media_record_id, logical_ref) DO NOTHING
	`

	_, err := r.db.Exec(ctx, query, mediaRecordID, logicalRef)
	if err != nil {
		return fmt.Errorf("failed to link media record: %w", err)
	}

	return nil
}

// MarkSynced records that the durable copy exists, clearing the buffer
// path. Only pending records are updated, so redelivered sync jobs keep
// the first completion time. Returns whether this call performed the
// transition.
func (r *MediaRepository) MarkSynced(ctx context.Context, hash string, syncedAt time.Time) (bool, error) {
	query := `
		UPDATE media_records
		SET synced_at = $2,
		    local_path = NULL,
		    updated_at = now()
		WHERE hash = $1 AND synced_at IS NULL
	`

	tag, err := r.db.Exec(ctx, query, hash, syncedAt)
	if err != nil {
		return false, fmt.Errorf("failed to mark media record synced: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ListPendingSync returns records still awaiting durable sync that were
// created before the cutoff, oldest first. The reconciliation sweep uses
// this to re-enqueue work whose jobs were lost.
func (r *MediaRepository) ListPendingSync(ctx context.Context, olderThan time.Time, limit int) ([]*models.MediaRecord, error) {
	query := `
		SELECT id, hash, location_key, size_bytes, mime_type, storage_box_id,
		       reference_count, local_path, synced_at, created_at, updated_at
		FROM media_records
		WHERE synced_at IS NULL AND local_path IS NOT NULL AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending media records: %w", err)
	}
	defer rows.Close()

	var records []*models.MediaRecord
	for rows.Next() {
		rec := &models.MediaRecord{}
		err := rows.Scan(
			&rec.ID,
			&rec.Hash,
			&rec.LocationKey,
			&rec.SizeBytes,
			&rec.MimeType,
			&rec.StorageBoxID,
			&rec.ReferenceCount,
			&rec.LocalPath,
			&rec.SyncedAt,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan media record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating media records: %w", err)
	}

	return records, nil
}

// CountPending returns the number of records awaiting durable sync
func (r *MediaRepository) CountPending(ctx context.Context) (int64, error) {
	query := `SELECT COUNT(*) FROM media_records WHERE synced_at IS NULL`

	var count int64
	if err := r.db.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending media records: %w", err)
	}

	return count, nil
}

// ListByLogicalRef returns the media records linked to a logical reference
func (r *MediaRepository) ListByLogicalRef(ctx context.Context, logicalRef string) ([]*models.MediaRecord, error) {
	query := `
		SELECT m.id, m.hash, m.location_key, m.size_bytes, m.mime_type, m.storage_box_id,
		       m.reference_count, m.local_path, m.synced_at, m.created_at, m.updated_at
		FROM media_records m
		JOIN media_links l ON l.media_record_id = m.id
		WHERE l.logical_ref = $1
		ORDER BY m.created_at ASC
	`

	rows, err := r.db.Query(ctx, query, logicalRef)
	if err != nil {
		return nil, fmt.Errorf("failed to list media records by reference: %w", err)
	}
	defer rows.Close()

	var records []*models.MediaRecord
	for rows.Next() {
		rec := &models.MediaRecord{}
		err := rows.Scan(
			&rec.ID,
			&rec.Hash,
			&rec.LocationKey,
			&rec.SizeBytes,
			&rec.MimeType,
			&rec.StorageBoxID,
			&rec.ReferenceCount,
			&rec.LocalPath,
			&rec.SyncedAt,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan media record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating media records: %w", err)
	}

	return records, nil
}
