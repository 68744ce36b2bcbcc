package mediapath

import (
	"fmt"
	"mime"
	"path/filepath"
	"regexp"
	"strings"
)

// Keys follow the fixed convention media/{hash[0:2]}/{hash[2:4]}/{hash}{ext}.
// Existing objects were written under it, so it must never change shape.
const keyPrefix = "media"

// DefaultExt is used when the source filename carries no usable extension
const DefaultExt = ".bin"

// DefaultMime is the fallback content type for unparseable hints
const DefaultMime = "application/octet-stream"

var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)

// Ext extracts a normalized extension from a source filename. Anything that
// is not a short alphanumeric suffix collapses to DefaultExt so keys stay
// shell- and URL-safe.
func Ext(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if !extPattern.MatchString(ext) {
		return DefaultExt
	}
	return ext
}

// LocationKey derives the destination-relative object path for a digest.
// It is a pure function of hash and extension; no lookup is needed to
// reconstruct where an object lives.
func LocationKey(hash, filename string) string {
	return fmt.Sprintf("%s/%s/%s/%s%s", keyPrefix, hash[0:2], hash[2:4], hash, Ext(filename))
}

// BufferPath returns the local buffer location for a digest under root,
// sharded the same two levels as the object key.
func BufferPath(root, hash, filename string) string {
	return filepath.Join(root, hash[0:2], hash[2:4], hash+Ext(filename))
}

// SafeMime normalizes a declared content-type hint, falling back to
// DefaultMime when the hint is empty or unparseable.
func SafeMime(declared string) string {
	if declared == "" {
		return DefaultMime
	}
	parsed, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return DefaultMime
	}
	return parsed
}
