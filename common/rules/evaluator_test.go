package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateMimePrefix(t *testing.T) {
	e := NewEvaluator()

	in := Input{Mime: "video/mp4", Ext: ".mp4", Filename: "clip.mp4", SizeBytes: 2048}

	match, err := e.Evaluate(`mime.startsWith("video/")`, in)
	require.NoError(t, err)
	assert.True(t, match)

	in.Mime = "image/png"
	match, err = e.Evaluate(`mime.startsWith("video/")`, in)
	require.NoError(t, err)
	assert.False(t, match)
}

func TestEvaluateCompoundExpression(t *testing.T) {
	e := NewEvaluator()

	expr := `mime.startsWith("video/") && size_bytes > 1048576`

	match, err := e.Evaluate(expr, Input{Mime: "video/webm", SizeBytes: 2 << 20})
	require.NoError(t, err)
	assert.True(t, match)

	match, err = e.Evaluate(expr, Input{Mime: "video/webm", SizeBytes: 1024})
	require.NoError(t, err)
	assert.False(t, match)
}

func TestEvaluateExtAndFilename(t *testing.T) {
	e := NewEvaluator()

	match, err := e.Evaluate(`ext == ".gif" || filename.endsWith(".webp")`, Input{Ext: ".gif", Filename: "x.gif"})
	require.NoError(t, err)
	assert.True(t, match)
}

func TestEvaluateCachesPrograms(t *testing.T) {
	e := NewEvaluator()

	_, err := e.Evaluate(`size_bytes > 0`, Input{SizeBytes: 1})
	require.NoError(t, err)
	_, err = e.Evaluate(`size_bytes > 0`, Input{SizeBytes: 2})
	require.NoError(t, err)

	assert.Equal(t, 1, e.CacheSize())

	e.ClearCache()
	assert.Equal(t, 0, e.CacheSize())
}

func TestEvaluateRejectsNonBoolean(t *testing.T) {
	e := NewEvaluator()

	_, err := e.Evaluate(`size_bytes + 1`, Input{SizeBytes: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not return boolean")
}

func TestEvaluateRejectsBadSyntax(t *testing.T) {
	e := NewEvaluator()

	_, err := e.Evaluate(`mime.startsWith(`, Input{Mime: "video/mp4"})
	require.Error(t, err)
}

func TestEvaluateEmptyExpression(t *testing.T) {
	e := NewEvaluator()

	_, err := e.Evaluate("", Input{})
	require.Error(t, err)
}
