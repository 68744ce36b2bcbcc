package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/chronicler/mediastore/common/config"
	"github.com/chronicler/mediastore/common/hashing"
	"github.com/chronicler/mediastore/common/logger"
	"github.com/chronicler/mediastore/common/mediapath"
	"github.com/chronicler/mediastore/common/metrics"
)

// ErrInsufficientSpace is returned when the buffer volume does not have
// enough free space for an incoming blob of known size
var ErrInsufficientSpace = errors.New("insufficient space on buffer volume")

// Spool is a fully received blob sitting in the temp area, hashed but not
// yet visible under the canonical buffer tree
type Spool struct {
	TempPath string
	Hash     string
	Size     int64
}

// BufferWriter receives inbound streams into the local buffer. Writes land
// in a temp directory on the same filesystem as the canonical tree, so
// promoting a spool is a single rename and readers never observe a partial
// file.
type BufferWriter struct {
	cfg config.BufferConfig
	log *logger.Logger
}

// NewBufferWriter creates a buffer writer rooted at cfg.Dir
func NewBufferWriter(cfg config.BufferConfig, log *logger.Logger) *BufferWriter {
	return &BufferWriter{cfg: cfg, log: log}
}

// Spool drains r into a temp file while hashing it. sizeHint is the caller's
// declared length (from Content-Length or a multipart header); pass 0 when
// unknown. The temp file is removed on every failure path.
func (w *BufferWriter) Spool(ctx context.Context, r io.Reader, sizeHint int64) (*Spool, error) {
	if w.cfg.MaxBlobBytes > 0 && sizeHint > w.cfg.MaxBlobBytes {
		return nil, fmt.Errorf("declared size %d exceeds limit %d: %w", sizeHint, w.cfg.MaxBlobBytes, hashing.ErrBlobTooLarge)
	}

	if err := w.checkFreeSpace(sizeHint); err != nil {
		return nil, err
	}

	tmpDir := filepath.Join(w.cfg.Dir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}

	f, err := os.CreateTemp(tmpDir, "spool-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}
	tmpPath := f.Name()

	if w.cfg.SpoolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.SpoolTimeout)
		defer cancel()
	}

	hash, size, err := hashing.CopyAndDigest(f, &contextReader{ctx: ctx, r: r}, w.cfg.MaxBlobBytes)
	closeErr := f.Close()
	if err != nil {
		w.remove(tmpPath)
		return nil, fmt.Errorf("failed to spool blob: %w", err)
	}
	if closeErr != nil {
		w.remove(tmpPath)
		return nil, fmt.Errorf("failed to close spool file: %w", closeErr)
	}

	return &Spool{TempPath: tmpPath, Hash: hash, Size: size}, nil
}

// Commit promotes a spool into the canonical buffer tree and returns the
// final path. The rename is atomic; renaming onto an existing path is fine
// because paths are derived from the content hash, so the bytes are
// identical.
func (w *BufferWriter) Commit(spool *Spool, filename string) (string, error) {
	dest := mediapath.BufferPath(w.cfg.Dir, spool.Hash, filename)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("failed to create buffer shard: %w", err)
	}
	if err := os.Rename(spool.TempPath, dest); err != nil {
		return "", fmt.Errorf("failed to commit spool: %w", err)
	}
	return dest, nil
}

// Discard removes a spool that will not be committed
func (w *BufferWriter) Discard(spool *Spool) {
	if spool == nil {
		return
	}
	w.remove(spool.TempPath)
}

// checkFreeSpace rejects blobs of known size that would push the buffer
// volume below its free-space floor. Unknown sizes are admitted; the
// MaxBlobBytes cap still bounds them during the copy.
func (w *BufferWriter) checkFreeSpace(sizeHint int64) error {
	if sizeHint <= 0 || w.cfg.MinFreeBytes <= 0 {
		return nil
	}
	usage, err := metrics.CaptureDiskUsage(w.cfg.Dir)
	if err != nil {
		// stat failure on a fresh volume should not block ingestion
		w.log.Warn("failed to capture buffer disk usage", "dir", w.cfg.Dir, "error", err)
		return nil
	}
	if usage.SpaceAvailable < sizeHint+w.cfg.MinFreeBytes {
		return fmt.Errorf("need %s with %s free: %w",
			humanize.IBytes(uint64(sizeHint)),
			humanize.IBytes(uint64(usage.SpaceAvailable)),
			ErrInsufficientSpace)
	}
	return nil
}

func (w *BufferWriter) remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		w.log.Warn("failed to remove spool file", "path", path, "error", err)
	}
}

// contextReader fails the copy as soon as the context is done. The digest
// loop reads in fixed chunks, so cancellation is observed at chunk
// granularity rather than mid-syscall.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
