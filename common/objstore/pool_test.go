package objstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronicler/mediastore/common/logger"
	"github.com/chronicler/mediastore/common/models"
)

func testBox(id string) *models.StorageBox {
	return &models.StorageBox{
		ID:        id,
		Endpoint:  "store.example.com:9000",
		AccessKey: "access",
		SecretKey: "secret",
		Bucket:    "media",
		UseSSL:    true,
	}
}

func TestPoolReusesClient(t *testing.T) {
	pool := NewPool(logger.New("error", "console"))

	box := testBox("box-a")
	first, err := pool.Client(box)
	require.NoError(t, err)

	second, err := pool.Client(box)
	require.NoError(t, err)

	assert.Same(t, first, second)
}

func TestPoolRebuildsOnSettingsChange(t *testing.T) {
	pool := NewPool(logger.New("error", "console"))

	box := testBox("box-a")
	first, err := pool.Client(box)
	require.NoError(t, err)

	// operator rotates credentials
	box.SecretKey = "rotated"
	second, err := pool.Client(box)
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	// endpoint move also triggers a rebuild
	box.Endpoint = "store2.example.com:9000"
	third, err := pool.Client(box)
	require.NoError(t, err)
	assert.NotSame(t, second, third)

	// stable settings reuse the rebuilt client
	fourth, err := pool.Client(box)
	require.NoError(t, err)
	assert.Same(t, third, fourth)
}

func TestPoolIsolatesBoxes(t *testing.T) {
	pool := NewPool(logger.New("error", "console"))

	a, err := pool.Client(testBox("box-a"))
	require.NoError(t, err)
	b, err := pool.Client(testBox("box-b"))
	require.NoError(t, err)

	assert.NotSame(t, a, b)
}

func TestPoolEvict(t *testing.T) {
	pool := NewPool(logger.New("error", "console"))

	box := testBox("box-a")
	first, err := pool.Client(box)
	require.NoError(t, err)

	pool.Evict(box.ID)

	second, err := pool.Client(box)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestPoolRejectsBadEndpoint(t *testing.T) {
	pool := NewPool(logger.New("error", "console"))

	box := testBox("box-bad")
	box.Endpoint = "http://not a host"
	_, err := pool.Client(box)
	require.Error(t, err)
}
