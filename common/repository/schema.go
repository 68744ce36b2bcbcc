package repository

import (
	"context"
	"fmt"

	"github.com/chronicler/mediastore/common/db"
)

// Schema contains the SQL statements to create the catalog schema.
// Every statement is idempotent so the startup hook can apply it on
// each boot.
const Schema = `
-- Storage boxes: capacity-bounded S3-compatible destinations
CREATE TABLE IF NOT EXISTS storage_boxes (
    id                      TEXT PRIMARY KEY,
    capacity_bytes          BIGINT NOT NULL,
    used_bytes              BIGINT NOT NULL DEFAULT 0,
    reserved_bytes          BIGINT NOT NULL DEFAULT 0,
    high_water_mark_percent DOUBLE PRECISION NOT NULL DEFAULT 90,
    priority                INT NOT NULL DEFAULT 0,
    region                  TEXT NOT NULL DEFAULT 'default',
    is_active               BOOLEAN NOT NULL DEFAULT TRUE,
    is_full                 BOOLEAN NOT NULL DEFAULT FALSE,
    is_readonly             BOOLEAN NOT NULL DEFAULT FALSE,
    endpoint                TEXT NOT NULL,
    access_key              TEXT NOT NULL DEFAULT '',
    secret_key              TEXT NOT NULL DEFAULT '',
    bucket                  TEXT NOT NULL,
    use_ssl                 BOOLEAN NOT NULL DEFAULT TRUE,
    created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

-- Media records: one row per unique content hash
CREATE TABLE IF NOT EXISTS media_records (
    id              BIGSERIAL PRIMARY KEY,
    hash            TEXT NOT NULL UNIQUE,
    location_key    TEXT NOT NULL,
    size_bytes      BIGINT NOT NULL,
    mime_type       TEXT NOT NULL DEFAULT 'application/octet-stream',
    storage_box_id  TEXT REFERENCES storage_boxes(id),
    reference_count BIGINT NOT NULL DEFAULT 1,
    local_path      TEXT,
    synced_at       TIMESTAMPTZ,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

-- Links: many-to-many between logical references and media records
CREATE TABLE IF NOT EXISTS media_links (
    media_record_id BIGINT NOT NULL REFERENCES media_records(id) ON DELETE CASCADE,
    logical_ref     TEXT NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (media_record_id, logical_ref)
);

CREATE INDEX IF NOT EXISTS idx_media_records_pending
    ON media_records (created_at) WHERE synced_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_media_records_box ON media_records (storage_box_id);
CREATE INDEX IF NOT EXISTS idx_media_links_ref ON media_links (logical_ref);
CREATE INDEX IF NOT EXISTS idx_storage_boxes_region ON storage_boxes (region);
`

// Migrate applies the catalog schema
func Migrate(ctx context.Context, database *db.DB) error {
	if _, err := database.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply catalog schema: %w", err)
	}
	return nil
}
