package mediapath

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testHash = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func TestExt(t *testing.T) {
	cases := []struct {
		filename string
		want     string
	}{
		{"video.mp4", ".mp4"},
		{"PHOTO.JPG", ".jpg"},
		{"archive.tar.gz", ".gz"},
		{"noext", ".bin"},
		{"", ".bin"},
		{"trailing.", ".bin"},
		{".hidden", ".bin"},
		{"weird.mp4?download=1", ".bin"},
		{"space.m p4", ".bin"},
		{"long.aaaaaaaaaaaaaaa", ".bin"},
		{"dir/nested/clip.webm", ".webm"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, Ext(tc.filename), "filename %q", tc.filename)
	}
}

func TestLocationKey(t *testing.T) {
	key := LocationKey(testHash, "clip.mp4")
	assert.Equal(t, "media/9f/86/"+testHash+".mp4", key)

	// pure function of hash + extension
	assert.Equal(t, key, LocationKey(testHash, "other-name.mp4"))
	assert.Equal(t, "media/9f/86/"+testHash+".bin", LocationKey(testHash, ""))
}

func TestBufferPath(t *testing.T) {
	path := BufferPath("/var/buffer", testHash, "clip.mp4")
	assert.Equal(t, filepath.Join("/var/buffer", "9f", "86", testHash+".mp4"), path)
}

func TestBufferPathMirrorsKeySharding(t *testing.T) {
	key := LocationKey(testHash, "clip.webm")
	path := BufferPath("/data", testHash, "clip.webm")

	// the relative layout under the buffer root matches the object key
	assert.Equal(t, strings.TrimPrefix(key, "media/"), filepath.ToSlash(strings.TrimPrefix(path, "/data/")))
}

func TestSafeMime(t *testing.T) {
	assert.Equal(t, "video/mp4", SafeMime("video/mp4"))
	assert.Equal(t, "video/mp4", SafeMime("video/mp4; codecs=avc1"))
	assert.Equal(t, "image/jpeg", SafeMime("IMAGE/JPEG"))
	assert.Equal(t, DefaultMime, SafeMime(""))
	assert.Equal(t, DefaultMime, SafeMime("not a mime type at all;;;"))
}
