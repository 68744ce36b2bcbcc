package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronicler/mediastore/common/config"
	"github.com/chronicler/mediastore/common/logger"
	"github.com/chronicler/mediastore/common/models"
	"github.com/chronicler/mediastore/common/queue"
)

type fakeSyncCatalog struct {
	byHash        map[string]*models.MediaRecord
	pending       []*models.MediaRecord
	findErr       error
	markErr       error
	forceUnmarked bool
	marked        []string
	listCalls     int
}

func (f *fakeSyncCatalog) FindByHash(ctx context.Context, hash string) (*models.MediaRecord, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.byHash[hash], nil
}

func (f *fakeSyncCatalog) MarkSynced(ctx context.Context, hash string, syncedAt time.Time) (bool, error) {
	if f.markErr != nil {
		return false, f.markErr
	}
	if f.forceUnmarked {
		return false, nil
	}
	rec, ok := f.byHash[hash]
	if !ok || rec.SyncedAt != nil {
		return false, nil
	}
	rec.SyncedAt = &syncedAt
	rec.LocalPath = nil
	f.marked = append(f.marked, hash)
	return true, nil
}

func (f *fakeSyncCatalog) ListPendingSync(ctx context.Context, olderThan time.Time, limit int) ([]*models.MediaRecord, error) {
	f.listCalls++
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

type confirmCall struct {
	boxID string
	size  int64
}

type fakeBoxCatalog struct {
	boxes      map[string]*models.StorageBox
	confirmErr error
	confirmed  []confirmCall
}

func (f *fakeBoxCatalog) GetByID(ctx context.Context, id string) (*models.StorageBox, error) {
	return f.boxes[id], nil
}

func (f *fakeBoxCatalog) ConfirmUsed(ctx context.Context, id string, size int64) error {
	if f.confirmErr != nil {
		return f.confirmErr
	}
	f.confirmed = append(f.confirmed, confirmCall{boxID: id, size: size})
	return nil
}

type putCall struct {
	key         string
	path        string
	contentType string
}

type fakeBoxClient struct {
	putErr error
	puts   []putCall
}

func (f *fakeBoxClient) PutFile(ctx context.Context, key, path, contentType string) (int64, error) {
	if f.putErr != nil {
		return 0, f.putErr
	}
	f.puts = append(f.puts, putCall{key: key, path: path, contentType: contentType})
	return 0, nil
}

type fakeClientPool struct {
	client *fakeBoxClient
	err    error
}

func (f *fakeClientPool) Client(box *models.StorageBox) (BoxClient, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.client, nil
}

type fakeLocker struct {
	allow bool
	err   error
	calls int
}

func (f *fakeLocker) SetNX(ctx context.Context, key, value string, expiry time.Duration) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.allow, nil
}

type workerFixture struct {
	w      *SyncWorker
	media  *fakeSyncCatalog
	boxes  *fakeBoxCatalog
	client *fakeBoxClient
	queue  *queue.MemoryQueue
	locks  *fakeLocker
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()

	log := logger.New("error", "console")
	f := &workerFixture{
		media:  &fakeSyncCatalog{byHash: make(map[string]*models.MediaRecord)},
		boxes:  &fakeBoxCatalog{boxes: make(map[string]*models.StorageBox)},
		client: &fakeBoxClient{},
		queue:  queue.NewMemoryQueue(log),
		locks:  &fakeLocker{allow: true},
	}
	t.Cleanup(func() { f.queue.Close() })

	cfg := config.SyncConfig{
		ReconcileInterval: time.Hour,
		ReconcileAge:      time.Minute,
	}
	f.w = NewSyncWorker(cfg, f.queue, f.media, f.boxes, &fakeClientPool{client: f.client}, f.locks, log)
	return f
}

func (f *workerFixture) addPending(hash string) *models.MediaRecord {
	boxID := "box-a"
	localPath := "/var/lib/mediastore/buffer/" + hash[0:2] + "/" + hash[2:4] + "/" + hash + ".png"
	rec := &models.MediaRecord{
		ID:             1,
		Hash:           hash,
		LocationKey:    "media/" + hash[0:2] + "/" + hash[2:4] + "/" + hash + ".png",
		SizeBytes:      42,
		MimeType:       "image/png",
		StorageBoxID:   &boxID,
		ReferenceCount: 1,
		LocalPath:      &localPath,
		CreatedAt:      time.Now().UTC().Add(-time.Hour),
	}
	f.media.byHash[hash] = rec
	f.boxes.boxes[boxID] = &models.StorageBox{
		ID:            boxID,
		Endpoint:      "minio:9000",
		Bucket:        "media",
		CapacityBytes: 1000,
		IsActive:      true,
	}
	return rec
}

const testHash = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func TestSyncWorker_UploadsAndSettles(t *testing.T) {
	f := newWorkerFixture(t)
	rec := f.addPending(testHash)
	job := models.NewSyncJob(rec, "box-a")

	err := f.w.process(context.Background(), job)
	require.NoError(t, err)

	require.Len(t, f.client.puts, 1)
	assert.Equal(t, rec.LocationKey, f.client.puts[0].key)
	assert.Equal(t, "image/png", f.client.puts[0].contentType)

	assert.Equal(t, []string{testHash}, f.media.marked)
	require.NotNil(t, rec.SyncedAt)
	assert.Nil(t, rec.LocalPath)

	require.Len(t, f.boxes.confirmed, 1)
	assert.Equal(t, confirmCall{boxID: "box-a", size: 42}, f.boxes.confirmed[0])
}

func TestSyncWorker_SkipsAlreadySynced(t *testing.T) {
	f := newWorkerFixture(t)
	rec := f.addPending(testHash)
	job := models.NewSyncJob(rec, "box-a")
	now := time.Now().UTC()
	rec.SyncedAt = &now

	err := f.w.process(context.Background(), job)
	require.NoError(t, err)
	assert.Empty(t, f.client.puts)
	assert.Empty(t, f.boxes.confirmed)
}

func TestSyncWorker_RedeliveredJobConfirmsOnce(t *testing.T) {
	f := newWorkerFixture(t)
	rec := f.addPending(testHash)
	job := models.NewSyncJob(rec, "box-a")

	require.NoError(t, f.w.process(context.Background(), job))
	require.NoError(t, f.w.process(context.Background(), job))

	assert.Len(t, f.client.puts, 1)
	assert.Len(t, f.boxes.confirmed, 1)
}

func TestSyncWorker_DropsVanishedRecord(t *testing.T) {
	f := newWorkerFixture(t)
	job := &models.SyncJob{
		Hash:         testHash,
		LocationKey:  "media/aa/aa/" + testHash + ".png",
		LocalPath:    "/tmp/blob.png",
		StorageBoxID: "box-a",
		SizeBytes:    42,
		QueuedAt:     time.Now().UTC(),
	}

	err := f.w.process(context.Background(), job)
	require.NoError(t, err)
	assert.Empty(t, f.client.puts)
}

func TestSyncWorker_DropsJobWithoutLocalPath(t *testing.T) {
	f := newWorkerFixture(t)
	rec := f.addPending(testHash)
	job := models.NewSyncJob(rec, "box-a")
	job.LocalPath = ""

	err := f.w.process(context.Background(), job)
	require.NoError(t, err)
	assert.Empty(t, f.client.puts)
}

func TestSyncWorker_UnregisteredBoxFails(t *testing.T) {
	f := newWorkerFixture(t)
	rec := f.addPending(testHash)
	job := models.NewSyncJob(rec, "box-ghost")

	err := f.w.process(context.Background(), job)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "not registered"))
}

func TestSyncWorker_UploadFailureRequeues(t *testing.T) {
	f := newWorkerFixture(t)
	rec := f.addPending(testHash)
	f.client.putErr = errors.New("connection refused")

	ctx := context.Background()
	require.NoError(t, f.queue.Enqueue(ctx, models.NewSyncJob(rec, "box-a")))

	err := f.w.processNext(ctx)
	require.Error(t, err)

	// The job went back on the queue for the next attempt
	length, err := f.queue.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)

	assert.Empty(t, f.media.marked)
	assert.Empty(t, f.boxes.confirmed)
}

func TestSyncWorker_LostLatchSkipsConfirm(t *testing.T) {
	f := newWorkerFixture(t)
	rec := f.addPending(testHash)
	f.media.forceUnmarked = true
	job := models.NewSyncJob(rec, "box-a")

	err := f.w.process(context.Background(), job)
	require.NoError(t, err)

	// Upload ran, but the latch loser never touches the counters
	assert.Len(t, f.client.puts, 1)
	assert.Empty(t, f.boxes.confirmed)
}

func TestSyncWorker_MarkFailureIsRetryable(t *testing.T) {
	f := newWorkerFixture(t)
	rec := f.addPending(testHash)
	f.media.markErr = errors.New("db gone")
	job := models.NewSyncJob(rec, "box-a")

	err := f.w.process(context.Background(), job)
	require.Error(t, err)
	assert.Empty(t, f.boxes.confirmed)
}

func TestSyncWorker_ConfirmFailureIsNotFatal(t *testing.T) {
	f := newWorkerFixture(t)
	rec := f.addPending(testHash)
	f.boxes.confirmErr = errors.New("db gone")
	job := models.NewSyncJob(rec, "box-a")

	err := f.w.process(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, []string{testHash}, f.media.marked)
}

func TestSyncWorker_ReconcileRequeuesStale(t *testing.T) {
	f := newWorkerFixture(t)
	rec := f.addPending(testHash)
	orphan := &models.MediaRecord{Hash: "b" + testHash[1:], SizeBytes: 7}
	f.media.pending = []*models.MediaRecord{rec, orphan}

	ctx := context.Background()
	require.NoError(t, f.w.reconcile(ctx))

	// Only the record with a box and local path goes back on the queue
	length, err := f.queue.Length(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), length)

	job, err := f.queue.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, testHash, job.Hash)
	assert.Equal(t, "box-a", job.StorageBoxID)
	assert.Equal(t, *rec.LocalPath, job.LocalPath)
}

func TestSyncWorker_ReconcileRespectsLock(t *testing.T) {
	f := newWorkerFixture(t)
	rec := f.addPending(testHash)
	f.media.pending = []*models.MediaRecord{rec}
	f.locks.allow = false

	ctx := context.Background()
	require.NoError(t, f.w.reconcile(ctx))

	assert.Equal(t, 0, f.media.listCalls)
	length, err := f.queue.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)
}

func TestSyncWorker_ReconcileWithoutLocker(t *testing.T) {
	f := newWorkerFixture(t)
	rec := f.addPending(testHash)
	f.media.pending = []*models.MediaRecord{rec}
	f.w.locks = nil

	ctx := context.Background()
	require.NoError(t, f.w.reconcile(ctx))

	length, err := f.queue.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)
}

func TestSyncWorker_ReconcileBatchCap(t *testing.T) {
	f := newWorkerFixture(t)
	rec := f.addPending(testHash)
	for i := 0; i < reconcileBatch+10; i++ {
		f.media.pending = append(f.media.pending, rec)
	}

	ctx := context.Background()
	require.NoError(t, f.w.reconcile(ctx))

	length, err := f.queue.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(reconcileBatch), length)
}
