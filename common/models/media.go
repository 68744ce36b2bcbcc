package models

import "time"

// MediaRecord is one deduplicated stored object, keyed by content hash.
// Maps to: media_records table
type MediaRecord struct {
	// Catalog identifier, opaque to callers
	ID int64 `db:"id" json:"id"`

	// SHA-256 content digest, 64 lowercase hex chars (dedup key, unique)
	Hash string `db:"hash" json:"hash"`

	// Destination-relative object path, derived from hash + extension
	// (media/ab/cd/<hash><ext>); reconstructible without a lookup
	LocationKey string `db:"location_key" json:"location_key"`

	// Blob size in bytes
	SizeBytes int64 `db:"size_bytes" json:"size_bytes"`

	// Declared MIME type, application/octet-stream when unknown
	MimeType string `db:"mime_type" json:"mime_type"`

	// Storage box holding the durable copy (nil until assigned)
	StorageBoxID *string `db:"storage_box_id" json:"storage_box_id,omitempty"`

	// Number of logical references pointing at this object; never decremented here
	ReferenceCount int64 `db:"reference_count" json:"reference_count"`

	// Absolute path of the local buffer copy; cleared once durable sync completes
	LocalPath *string `db:"local_path" json:"local_path,omitempty"`

	// When the durable copy was confirmed; nil means pending sync
	SyncedAt *time.Time `db:"synced_at" json:"synced_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Pending reports whether the record still awaits durable sync
func (r *MediaRecord) Pending() bool {
	return r.SyncedAt == nil
}

// Servable reports whether any copy of the content exists.
// Every completed archival must leave this true.
func (r *MediaRecord) Servable() bool {
	return r.LocalPath != nil || r.SyncedAt != nil
}
