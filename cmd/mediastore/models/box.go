package models

import (
	"errors"
	"fmt"

	common "github.com/chronicler/mediastore/common/models"
)

// BoxCreateRequest is the operator payload for registering a storage box.
// Unlike the catalog model it carries credentials; it is bound from request
// bodies and never serialized back out.
type BoxCreateRequest struct {
	ID                   string  `json:"id"`
	CapacityBytes        int64   `json:"capacity_bytes"`
	HighWaterMarkPercent float64 `json:"high_water_mark_percent"`
	Priority             int     `json:"priority"`
	Region               string  `json:"region"`
	IsActive             *bool   `json:"is_active"`
	Endpoint             string  `json:"endpoint"`
	AccessKey            string  `json:"access_key"`
	SecretKey            string  `json:"secret_key"`
	Bucket               string  `json:"bucket"`
	UseSSL               bool    `json:"use_ssl"`
}

// Validate checks the request and fills defaults
func (r *BoxCreateRequest) Validate() error {
	if r.ID == "" {
		return errors.New("id is required")
	}
	if r.CapacityBytes <= 0 {
		return errors.New("capacity_bytes must be positive")
	}
	if r.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if r.Bucket == "" {
		return errors.New("bucket is required")
	}
	if r.HighWaterMarkPercent == 0 {
		r.HighWaterMarkPercent = 90
	}
	if r.HighWaterMarkPercent < 0 || r.HighWaterMarkPercent > 100 {
		return fmt.Errorf("high_water_mark_percent must be in (0, 100], got %v", r.HighWaterMarkPercent)
	}
	if r.Region == "" {
		r.Region = "default"
	}
	return nil
}

// ToModel builds the catalog row. New boxes start empty and active unless
// the request says otherwise.
func (r *BoxCreateRequest) ToModel() *common.StorageBox {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return &common.StorageBox{
		ID:                   r.ID,
		CapacityBytes:        r.CapacityBytes,
		HighWaterMarkPercent: r.HighWaterMarkPercent,
		Priority:             r.Priority,
		Region:               r.Region,
		IsActive:             active,
		Endpoint:             r.Endpoint,
		AccessKey:            r.AccessKey,
		SecretKey:            r.SecretKey,
		Bucket:               r.Bucket,
		UseSSL:               r.UseSSL,
	}
}

// BoxPatchDoc is the JSON document RFC 6902 patches apply against: exactly
// the operator-editable fields. Byte counters and the id are absent, so no
// patch can touch them. Credentials appear here because rotating them is
// the point of half these patches; the doc itself never leaves the server.
type BoxPatchDoc struct {
	CapacityBytes        int64   `json:"capacity_bytes"`
	HighWaterMarkPercent float64 `json:"high_water_mark_percent"`
	Priority             int     `json:"priority"`
	Region               string  `json:"region"`
	IsActive             bool    `json:"is_active"`
	IsFull               bool    `json:"is_full"`
	IsReadonly           bool    `json:"is_readonly"`
	Endpoint             string  `json:"endpoint"`
	AccessKey            string  `json:"access_key"`
	SecretKey            string  `json:"secret_key"`
	Bucket               string  `json:"bucket"`
	UseSSL               bool    `json:"use_ssl"`
}

// NewBoxPatchDoc snapshots a box's editable fields
func NewBoxPatchDoc(box *common.StorageBox) BoxPatchDoc {
	return BoxPatchDoc{
		CapacityBytes:        box.CapacityBytes,
		HighWaterMarkPercent: box.HighWaterMarkPercent,
		Priority:             box.Priority,
		Region:               box.Region,
		IsActive:             box.IsActive,
		IsFull:               box.IsFull,
		IsReadonly:           box.IsReadonly,
		Endpoint:             box.Endpoint,
		AccessKey:            box.AccessKey,
		SecretKey:            box.SecretKey,
		Bucket:               box.Bucket,
		UseSSL:               box.UseSSL,
	}
}

// Validate checks the patched document before it is written back
func (d *BoxPatchDoc) Validate() error {
	if d.CapacityBytes <= 0 {
		return errors.New("capacity_bytes must be positive")
	}
	if d.HighWaterMarkPercent <= 0 || d.HighWaterMarkPercent > 100 {
		return fmt.Errorf("high_water_mark_percent must be in (0, 100], got %v", d.HighWaterMarkPercent)
	}
	if d.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if d.Bucket == "" {
		return errors.New("bucket is required")
	}
	if d.Region == "" {
		return errors.New("region is required")
	}
	return nil
}

// ApplyTo writes the patched fields back onto the box
func (d *BoxPatchDoc) ApplyTo(box *common.StorageBox) {
	box.CapacityBytes = d.CapacityBytes
	box.HighWaterMarkPercent = d.HighWaterMarkPercent
	box.Priority = d.Priority
	box.Region = d.Region
	box.IsActive = d.IsActive
	box.IsFull = d.IsFull
	box.IsReadonly = d.IsReadonly
	box.Endpoint = d.Endpoint
	box.AccessKey = d.AccessKey
	box.SecretKey = d.SecretKey
	box.Bucket = d.Bucket
	box.UseSSL = d.UseSSL
}
