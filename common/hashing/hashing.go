package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// ChunkSize is the unit blobs are streamed in. Content is never held in
// memory whole; the digest and the destination see one chunk at a time.
const ChunkSize = 256 * 1024

// HexLength is the length of an encoded digest
const HexLength = 64

// ErrBlobTooLarge is returned when a stream exceeds the configured maximum
var ErrBlobTooLarge = errors.New("blob exceeds maximum allowed size")

// CopyAndDigest streams src into dst while computing its SHA-256 digest.
// Returns the 64-char lowercase hex digest and the number of bytes copied.
// When max > 0 the copy aborts with ErrBlobTooLarge before writing a byte
// past the limit.
func CopyAndDigest(dst io.Writer, src io.Reader, max int64) (string, int64, error) {
	hasher := sha256.New()
	sink := io.MultiWriter(hasher, dst)

	buf := make([]byte, ChunkSize)
	var total int64

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if max > 0 && total+int64(n) > max {
				return "", total, ErrBlobTooLarge
			}
			written, writeErr := sink.Write(buf[:n])
			total += int64(written)
			if writeErr != nil {
				return "", total, fmt.Errorf("write chunk: %w", writeErr)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", total, fmt.Errorf("read chunk: %w", readErr)
		}
	}

	return hex.EncodeToString(hasher.Sum(nil)), total, nil
}

// DigestFile computes the digest and size of an existing file
func DigestFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	return CopyAndDigest(io.Discard, f, 0)
}

// IsValid reports whether s looks like an encoded SHA-256 digest
func IsValid(s string) bool {
	if len(s) != HexLength {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
