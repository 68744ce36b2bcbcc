package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronicler/mediastore/common/config"
	"github.com/chronicler/mediastore/common/logger"
)

// writeScript drops an executable helper the transformer can shell out to
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "helper.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func writeBlob(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blob.mp4")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNopTransformer(t *testing.T) {
	out, err := NopTransformer{}.Transform(context.Background(), "/some/path")
	require.NoError(t, err)
	assert.Equal(t, "/some/path", out)
}

func TestNewExecTransformerValidatesTemplate(t *testing.T) {
	log := logger.New("error", "console")

	_, err := NewExecTransformer(config.PostProcessConfig{Command: ""}, log)
	require.Error(t, err)

	_, err = NewExecTransformer(config.PostProcessConfig{Command: "ffmpeg -i {in}"}, log)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "{out}")

	_, err = NewExecTransformer(config.PostProcessConfig{Command: "ffmpeg -i {in} {out}"}, log)
	require.NoError(t, err)
}

func TestExecTransformerSwapsOutputOverInput(t *testing.T) {
	script := writeScript(t, `printf transformed > "$2"`)
	blob := writeBlob(t, "original")

	tr, err := NewExecTransformer(config.PostProcessConfig{Command: script + " {in} {out}"}, logger.New("error", "console"))
	require.NoError(t, err)

	path, err := tr.Transform(context.Background(), blob)
	require.NoError(t, err)
	assert.Equal(t, blob, path)

	content, err := os.ReadFile(blob)
	require.NoError(t, err)
	assert.Equal(t, "transformed", string(content))

	// the sibling temp must not survive the swap
	_, err = os.Stat(blob + ".pp")
	assert.True(t, os.IsNotExist(err))
}

func TestExecTransformerFailureKeepsOriginal(t *testing.T) {
	script := writeScript(t, `printf junk > "$2"; exit 1`)
	blob := writeBlob(t, "original")

	tr, err := NewExecTransformer(config.PostProcessConfig{Command: script + " {in} {out}"}, logger.New("error", "console"))
	require.NoError(t, err)

	_, err = tr.Transform(context.Background(), blob)
	require.Error(t, err)

	content, readErr := os.ReadFile(blob)
	require.NoError(t, readErr)
	assert.Equal(t, "original", string(content))

	_, statErr := os.Stat(blob + ".pp")
	assert.True(t, os.IsNotExist(statErr), "failed transform must clean up its temp file")
}

func TestExecTransformerTimeout(t *testing.T) {
	script := writeScript(t, "exec sleep 5")
	blob := writeBlob(t, "original")

	tr, err := NewExecTransformer(config.PostProcessConfig{
		Command: script + " {in} {out}",
		Timeout: 50 * time.Millisecond,
	}, logger.New("error", "console"))
	require.NoError(t, err)

	start := time.Now()
	_, err = tr.Transform(context.Background(), blob)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second, "timeout must kill the command early")

	content, readErr := os.ReadFile(blob)
	require.NoError(t, readErr)
	assert.Equal(t, "original", string(content))
}

func TestPostProcessorDisabled(t *testing.T) {
	p, err := NewPostProcessor(config.PostProcessConfig{Enabled: false}, logger.New("error", "console"))
	require.NoError(t, err)

	blob := writeBlob(t, "original")
	size := p.Process(context.Background(), blob, "clip.mp4", "video/mp4", 8)
	assert.Equal(t, int64(8), size)

	content, readErr := os.ReadFile(blob)
	require.NoError(t, readErr)
	assert.Equal(t, "original", string(content))
}

func TestPostProcessorGateSkipsNonMatching(t *testing.T) {
	script := writeScript(t, `printf transformed > "$2"`)
	p, err := NewPostProcessor(config.PostProcessConfig{
		Enabled: true,
		Command: script + " {in} {out}",
		Gate:    `mime.startsWith("video/")`,
	}, logger.New("error", "console"))
	require.NoError(t, err)

	blob := writeBlob(t, "a png")
	size := p.Process(context.Background(), blob, "pic.png", "image/png", 5)
	assert.Equal(t, int64(5), size)

	content, readErr := os.ReadFile(blob)
	require.NoError(t, readErr)
	assert.Equal(t, "a png", string(content))
}

func TestPostProcessorTransformsMatchingBlob(t *testing.T) {
	script := writeScript(t, `printf "much longer transformed output" > "$2"`)
	p, err := NewPostProcessor(config.PostProcessConfig{
		Enabled: true,
		Command: script + " {in} {out}",
		Gate:    `mime.startsWith("video/")`,
	}, logger.New("error", "console"))
	require.NoError(t, err)

	blob := writeBlob(t, "tiny")
	size := p.Process(context.Background(), blob, "clip.mp4", "video/mp4", 4)
	assert.Equal(t, int64(len("much longer transformed output")), size)

	content, readErr := os.ReadFile(blob)
	require.NoError(t, readErr)
	assert.Equal(t, "much longer transformed output", string(content))
}

func TestPostProcessorTransformFailureIsNotFatal(t *testing.T) {
	script := writeScript(t, "exit 1")
	p, err := NewPostProcessor(config.PostProcessConfig{
		Enabled: true,
		Command: script + " {in} {out}",
		Gate:    `mime.startsWith("video/")`,
	}, logger.New("error", "console"))
	require.NoError(t, err)

	blob := writeBlob(t, "original")
	size := p.Process(context.Background(), blob, "clip.mp4", "video/mp4", 8)
	assert.Equal(t, int64(8), size, "failed transform reports the original size")

	content, readErr := os.ReadFile(blob)
	require.NoError(t, readErr)
	assert.Equal(t, "original", string(content))
}

func TestPostProcessorBadGateIsNotFatal(t *testing.T) {
	script := writeScript(t, `printf x > "$2"`)
	p, err := NewPostProcessor(config.PostProcessConfig{
		Enabled: true,
		Command: script + " {in} {out}",
		Gate:    "this is not CEL ((",
	}, logger.New("error", "console"))
	require.NoError(t, err)

	blob := writeBlob(t, "original")
	size := p.Process(context.Background(), blob, "clip.mp4", "video/mp4", 8)
	assert.Equal(t, int64(8), size)
}
