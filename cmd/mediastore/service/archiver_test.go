package service

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronicler/mediastore/common/config"
	"github.com/chronicler/mediastore/common/hashing"
	"github.com/chronicler/mediastore/common/logger"
	"github.com/chronicler/mediastore/common/models"
)

type linkCall struct {
	recordID int64
	refID    string
}

type fakeMediaCatalog struct {
	byHash     map[string]*models.MediaRecord
	findErr    error
	createErr  error
	conflict   *models.MediaRecord // forces CreateOrGet to report a lost race
	linkErr    error
	links      []linkCall
	increments []string
	nextID     int64
}

func newFakeCatalog() *fakeMediaCatalog {
	return &fakeMediaCatalog{byHash: map[string]*models.MediaRecord{}}
}

func (f *fakeMediaCatalog) FindByHash(ctx context.Context, hash string) (*models.MediaRecord, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.byHash[hash], nil
}

func (f *fakeMediaCatalog) CreateOrGet(ctx context.Context, rec *models.MediaRecord) (*models.MediaRecord, bool, error) {
	if f.createErr != nil {
		return nil, false, f.createErr
	}
	if f.conflict != nil {
		f.conflict.ReferenceCount++
		return f.conflict, false, nil
	}
	f.nextID++
	stored := *rec
	stored.ID = f.nextID
	stored.ReferenceCount = 1
	f.byHash[rec.Hash] = &stored
	return &stored, true, nil
}

func (f *fakeMediaCatalog) IncrementReference(ctx context.Context, hash string) (*models.MediaRecord, error) {
	f.increments = append(f.increments, hash)
	rec := f.byHash[hash]
	if rec == nil {
		return nil, nil
	}
	rec.ReferenceCount++
	return rec, nil
}

func (f *fakeMediaCatalog) Link(ctx context.Context, mediaRecordID int64, logicalRef string) error {
	if f.linkErr != nil {
		return f.linkErr
	}
	f.links = append(f.links, linkCall{recordID: mediaRecordID, refID: logicalRef})
	return nil
}

type fakePlacer struct {
	box   *models.StorageBox
	err   error
	sizes []int64
}

func (f *fakePlacer) Select(ctx context.Context, sizeBytes int64, region string) (*models.StorageBox, error) {
	f.sizes = append(f.sizes, sizeBytes)
	if f.err != nil {
		return nil, f.err
	}
	return f.box, nil
}

type ledgerCall struct {
	boxID string
	size  int64
}

type fakeLedger struct {
	reserves      []ledgerCall
	releases      []ledgerCall
	refuseReserve bool
}

func (f *fakeLedger) TryReserve(ctx context.Context, id string, size int64) (bool, error) {
	f.reserves = append(f.reserves, ledgerCall{boxID: id, size: size})
	return !f.refuseReserve, nil
}

func (f *fakeLedger) Release(ctx context.Context, id string, size int64) error {
	f.releases = append(f.releases, ledgerCall{boxID: id, size: size})
	return nil
}

// fakeProcessor reports the size shifted by delta without touching the file
type fakeProcessor struct {
	delta int64
	calls int
}

func (f *fakeProcessor) Process(ctx context.Context, path, filename, mimeType string, size int64) int64 {
	f.calls++
	return size + f.delta
}

type fakeSynchronizer struct {
	synced  bool
	records []*models.MediaRecord
}

func (f *fakeSynchronizer) Handoff(ctx context.Context, rec *models.MediaRecord, box *models.StorageBox) bool {
	f.records = append(f.records, rec)
	return f.synced
}

type archiverFixture struct {
	svc     *ArchiveService
	catalog *fakeMediaCatalog
	placer  *fakePlacer
	ledger  *fakeLedger
	post    *fakeProcessor
	sync    *fakeSynchronizer
	dir     string
}

func newArchiverFixture(t *testing.T) *archiverFixture {
	t.Helper()
	log := logger.New("error", "console")
	dir := t.TempDir()

	f := &archiverFixture{
		catalog: newFakeCatalog(),
		placer:  &fakePlacer{box: &models.StorageBox{ID: "box-a", Region: "eu"}},
		ledger:  &fakeLedger{},
		post:    &fakeProcessor{},
		sync:    &fakeSynchronizer{},
		dir:     dir,
	}
	buffer := NewBufferWriter(config.BufferConfig{Dir: dir}, log)
	f.svc = NewArchiveService(f.catalog, f.placer, f.ledger, buffer, f.post, f.sync, log)
	return f
}

func archiveReq(content, refID string) ArchiveRequest {
	return ArchiveRequest{
		Reader:       strings.NewReader(content),
		Filename:     "clip.mp4",
		DeclaredMime: "video/mp4",
		RefID:        refID,
		Region:       "eu",
	}
}

func TestArchiveNewBlob(t *testing.T) {
	f := newArchiverFixture(t)

	rec, deduped, err := f.svc.Archive(context.Background(), archiveReq("fresh content", "ref-1"))
	require.NoError(t, err)
	assert.False(t, deduped)

	require.NotNil(t, rec)
	assert.Len(t, rec.Hash, hashing.HexLength)
	assert.Equal(t, int64(len("fresh content")), rec.SizeBytes)
	assert.Equal(t, "video/mp4", rec.MimeType)
	require.NotNil(t, rec.StorageBoxID)
	assert.Equal(t, "box-a", *rec.StorageBoxID)
	assert.Equal(t, "media/"+rec.Hash[0:2]+"/"+rec.Hash[2:4]+"/"+rec.Hash+".mp4", rec.LocationKey)

	// the blob sits in the buffer tree under its hash
	require.NotNil(t, rec.LocalPath)
	onDisk, readErr := os.ReadFile(*rec.LocalPath)
	require.NoError(t, readErr)
	assert.Equal(t, "fresh content", string(onDisk))
	assert.Zero(t, spoolDirEntries(t, f.dir), "no spool remnants after archival")

	// placement reserved the spooled size and sync got the record
	assert.Equal(t, []int64{int64(len("fresh content"))}, f.placer.sizes)
	assert.Equal(t, []linkCall{{recordID: rec.ID, refID: "ref-1"}}, f.catalog.links)
	require.Len(t, f.sync.records, 1)
	assert.Same(t, rec, f.sync.records[0])
}

func TestArchiveDedupHit(t *testing.T) {
	f := newArchiverFixture(t)

	first, _, err := f.svc.Archive(context.Background(), archiveReq("same bytes", "ref-1"))
	require.NoError(t, err)

	second, deduped, err := f.svc.Archive(context.Background(), archiveReq("same bytes", "ref-2"))
	require.NoError(t, err)

	assert.True(t, deduped)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(2), second.ReferenceCount)
	assert.Equal(t, []string{first.Hash}, f.catalog.increments)

	// dedup is metadata-only: one placement, one hand-off, both refs linked
	assert.Len(t, f.placer.sizes, 1)
	assert.Len(t, f.sync.records, 1)
	assert.Equal(t, []linkCall{
		{recordID: first.ID, refID: "ref-1"},
		{recordID: first.ID, refID: "ref-2"},
	}, f.catalog.links)
	assert.Zero(t, spoolDirEntries(t, f.dir))
}

func TestArchiveEmptyBlob(t *testing.T) {
	f := newArchiverFixture(t)

	_, _, err := f.svc.Archive(context.Background(), archiveReq("", "ref-1"))
	require.ErrorIs(t, err, ErrEmptyBlob)
	assert.Empty(t, f.placer.sizes)
	assert.Zero(t, spoolDirEntries(t, f.dir))
}

func TestArchiveMissingRef(t *testing.T) {
	f := newArchiverFixture(t)

	_, _, err := f.svc.Archive(context.Background(), archiveReq("content", ""))
	require.ErrorIs(t, err, ErrMissingRef)
}

func TestArchiveCapacityExhausted(t *testing.T) {
	f := newArchiverFixture(t)
	f.placer.err = ErrCapacityExhausted

	_, _, err := f.svc.Archive(context.Background(), archiveReq("content", "ref-1"))
	require.ErrorIs(t, err, ErrCapacityExhausted)

	// nothing recorded, nothing buffered, nothing to release
	assert.Empty(t, f.catalog.links)
	assert.Empty(t, f.ledger.releases)
	assert.Zero(t, spoolDirEntries(t, f.dir))
}

func TestArchiveLostCreationRace(t *testing.T) {
	f := newArchiverFixture(t)
	winner := &models.MediaRecord{ID: 7, Hash: "other", ReferenceCount: 1}
	f.catalog.conflict = winner

	rec, deduped, err := f.svc.Archive(context.Background(), archiveReq("contended", "ref-2"))
	require.NoError(t, err)

	assert.True(t, deduped, "losing the race is still a dedup")
	assert.Equal(t, int64(7), rec.ID)
	assert.Equal(t, int64(2), rec.ReferenceCount, "the conflict bump counts this archival")

	// the loser's reservation goes back and its ref still gets linked
	require.Len(t, f.ledger.releases, 1)
	assert.Equal(t, ledgerCall{boxID: "box-a", size: int64(len("contended"))}, f.ledger.releases[0])
	assert.Equal(t, []linkCall{{recordID: 7, refID: "ref-2"}}, f.catalog.links)
	assert.Empty(t, f.sync.records, "the winner already handed off")
}

func TestArchiveCreateFailureReleasesReservation(t *testing.T) {
	f := newArchiverFixture(t)
	f.catalog.createErr = errors.New("db down")

	_, _, err := f.svc.Archive(context.Background(), archiveReq("content", "ref-1"))
	require.Error(t, err)

	require.Len(t, f.ledger.releases, 1)
	assert.Equal(t, ledgerCall{boxID: "box-a", size: int64(len("content"))}, f.ledger.releases[0])
}

func TestArchiveLookupFailureDiscardsSpool(t *testing.T) {
	f := newArchiverFixture(t)
	f.catalog.findErr = errors.New("db down")

	_, _, err := f.svc.Archive(context.Background(), archiveReq("content", "ref-1"))
	require.Error(t, err)
	assert.Zero(t, spoolDirEntries(t, f.dir))
	assert.Empty(t, f.placer.sizes)
}

func TestArchiveTransformGrowth(t *testing.T) {
	f := newArchiverFixture(t)
	f.post.delta = 10

	rec, _, err := f.svc.Archive(context.Background(), archiveReq("0123456789", "ref-1"))
	require.NoError(t, err)

	assert.Equal(t, int64(20), rec.SizeBytes, "the record carries the stored size")
	require.Len(t, f.ledger.reserves, 1)
	assert.Equal(t, ledgerCall{boxID: "box-a", size: 10}, f.ledger.reserves[0])
	assert.Empty(t, f.ledger.releases)
}

func TestArchiveTransformShrink(t *testing.T) {
	f := newArchiverFixture(t)
	f.post.delta = -3

	rec, _, err := f.svc.Archive(context.Background(), archiveReq("0123456789", "ref-1"))
	require.NoError(t, err)

	assert.Equal(t, int64(7), rec.SizeBytes)
	require.Len(t, f.ledger.releases, 1)
	assert.Equal(t, ledgerCall{boxID: "box-a", size: 3}, f.ledger.releases[0])
}

func TestArchiveTransformGrowthRefusedIsNotFatal(t *testing.T) {
	f := newArchiverFixture(t)
	f.post.delta = 10
	f.ledger.refuseReserve = true

	rec, _, err := f.svc.Archive(context.Background(), archiveReq("0123456789", "ref-1"))
	require.NoError(t, err, "a box that cannot absorb growth must not fail the archival")
	assert.Equal(t, int64(20), rec.SizeBytes)
}

func TestArchiveRefusedGrowthReleasesOnlyHeldAmount(t *testing.T) {
	f := newArchiverFixture(t)
	f.post.delta = 10
	f.ledger.refuseReserve = true
	f.catalog.conflict = &models.MediaRecord{ID: 7, Hash: "other", ReferenceCount: 1}

	_, _, err := f.svc.Archive(context.Background(), archiveReq("0123456789", "ref-1"))
	require.NoError(t, err)

	// the delta reserve was refused, so only the original ten bytes are
	// held and only those go back
	require.Len(t, f.ledger.releases, 1)
	assert.Equal(t, ledgerCall{boxID: "box-a", size: 10}, f.ledger.releases[0])
}

func TestArchiveSucceedsWithoutDurableSync(t *testing.T) {
	f := newArchiverFixture(t)
	f.sync.synced = false

	rec, deduped, err := f.svc.Archive(context.Background(), archiveReq("content", "ref-1"))
	require.NoError(t, err)
	assert.False(t, deduped)
	require.NotNil(t, rec.LocalPath, "unsynced content stays servable from the buffer")
}

func TestArchiveLinkFailureKeepsRecord(t *testing.T) {
	f := newArchiverFixture(t)
	f.catalog.linkErr = errors.New("link table down")

	_, _, err := f.svc.Archive(context.Background(), archiveReq("content", "ref-1"))
	require.Error(t, err)

	// the record was created and owns its reservation; the sweep will
	// sync it, so nothing is released
	assert.Empty(t, f.ledger.releases)
	assert.Empty(t, f.sync.records)
}

func TestArchiveOversizedBlob(t *testing.T) {
	log := logger.New("error", "console")
	dir := t.TempDir()
	buffer := NewBufferWriter(config.BufferConfig{Dir: dir, MaxBlobBytes: 4}, log)
	catalog := newFakeCatalog()
	svc := NewArchiveService(catalog, &fakePlacer{}, &fakeLedger{}, buffer, &fakeProcessor{}, &fakeSynchronizer{}, log)

	_, _, err := svc.Archive(context.Background(), archiveReq("way past the limit", "ref-1"))
	require.ErrorIs(t, err, hashing.ErrBlobTooLarge)
	assert.Zero(t, spoolDirEntries(t, dir))
}
