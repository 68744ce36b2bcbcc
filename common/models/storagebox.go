package models

import "time"

// StorageBox is one capacity-bounded storage destination backed by an
// S3-compatible object store.
// Maps to: storage_boxes table
type StorageBox struct {
	ID            string `db:"id" json:"id"`
	CapacityBytes int64  `db:"capacity_bytes" json:"capacity_bytes"`

	// Bytes confirmed on the box
	UsedBytes int64 `db:"used_bytes" json:"used_bytes"`

	// Bytes reserved for in-flight writes not yet confirmed
	ReservedBytes int64 `db:"reserved_bytes" json:"reserved_bytes"`

	// Usage percentage above which the box stops accepting new writes
	HighWaterMarkPercent float64 `db:"high_water_mark_percent" json:"high_water_mark_percent"`

	// Lower value = preferred
	Priority int `db:"priority" json:"priority"`

	Region string `db:"region" json:"region"`

	IsActive   bool `db:"is_active" json:"is_active"`
	IsFull     bool `db:"is_full" json:"is_full"`
	IsReadonly bool `db:"is_readonly" json:"is_readonly"`

	// Object store connection; the client pool re-resolves these on every
	// lookup so operator reconfiguration takes effect without a restart
	Endpoint  string `db:"endpoint" json:"endpoint"`
	AccessKey string `db:"access_key" json:"-"`
	SecretKey string `db:"secret_key" json:"-"`
	Bucket    string `db:"bucket" json:"bucket"`
	UseSSL    bool   `db:"use_ssl" json:"use_ssl"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AvailableBytes returns capacity minus confirmed and reserved bytes, floored at zero
func (b *StorageBox) AvailableBytes() int64 {
	avail := b.CapacityBytes - b.UsedBytes - b.ReservedBytes
	if avail < 0 {
		return 0
	}
	return avail
}

// UsagePercent returns used/capacity as a percentage; zero-capacity boxes read as fully used
func (b *StorageBox) UsagePercent() float64 {
	if b.CapacityBytes <= 0 {
		return 100
	}
	return float64(b.UsedBytes) / float64(b.CapacityBytes) * 100
}

// CanAcceptWrites reports whether the selector may place new content here
func (b *StorageBox) CanAcceptWrites() bool {
	return b.IsActive && !b.IsFull && !b.IsReadonly && b.UsagePercent() < b.HighWaterMarkPercent
}

// Writable reports whether the box accepts writes at all, ignoring fullness.
// Last-resort selection uses this instead of CanAcceptWrites: high-water-mark
// and is_full are soft limits, is_active and is_readonly are operator switches.
func (b *StorageBox) Writable() bool {
	return b.IsActive && !b.IsReadonly
}
