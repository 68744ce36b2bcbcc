package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// SyncJob instructs a background worker to upload a locally buffered object
// to its assigned storage box. Queue-resident only, never persisted
// relationally. Field names are part of the queue wire contract.
type SyncJob struct {
	Hash         string    `json:"hash"`
	LocationKey  string    `json:"location_key"`
	LocalPath    string    `json:"local_path"`
	StorageBoxID string    `json:"storage_box_id"`
	SizeBytes    int64     `json:"size_bytes"`
	QueuedAt     time.Time `json:"queued_at"`
}

// NewSyncJob builds a job for a pending record, stamped with the current UTC time
func NewSyncJob(rec *MediaRecord, boxID string) *SyncJob {
	localPath := ""
	if rec.LocalPath != nil {
		localPath = *rec.LocalPath
	}
	return &SyncJob{
		Hash:         rec.Hash,
		LocationKey:  rec.LocationKey,
		LocalPath:    localPath,
		StorageBoxID: boxID,
		SizeBytes:    rec.SizeBytes,
		QueuedAt:     time.Now().UTC(),
	}
}

// Marshal encodes the job as its queue payload
func (j *SyncJob) Marshal() ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("marshal sync job: %w", err)
	}
	return data, nil
}

// UnmarshalSyncJob decodes a queue payload
func UnmarshalSyncJob(data []byte) (*SyncJob, error) {
	var job SyncJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal sync job: %w", err)
	}
	if job.Hash == "" || job.StorageBoxID == "" {
		return nil, fmt.Errorf("sync job missing hash or storage box id")
	}
	return &job, nil
}
