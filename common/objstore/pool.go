package objstore

import (
	"fmt"
	"sync"

	"github.com/chronicler/mediastore/common/logger"
	"github.com/chronicler/mediastore/common/models"
)

// Pool caches one Client per storage box. Every lookup re-derives a
// fingerprint from the box's connection settings, so editing a box's
// endpoint or credentials in the catalog swaps in a fresh client on the
// next use without a restart.
type Pool struct {
	log *logger.Logger

	mu      sync.RWMutex
	clients map[string]*poolEntry
}

type poolEntry struct {
	client      *Client
	fingerprint string
}

// NewPool creates an empty client pool
func NewPool(log *logger.Logger) *Pool {
	return &Pool{
		log:     log,
		clients: make(map[string]*poolEntry),
	}
}

// Client returns the cached client for a box, rebuilding it when the
// box's connection settings have changed since the client was made.
func (p *Pool) Client(box *models.StorageBox) (*Client, error) {
	fp := fingerprint(box)

	p.mu.RLock()
	entry, ok := p.clients[box.ID]
	p.mu.RUnlock()
	if ok && entry.fingerprint == fp {
		return entry.client, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// another goroutine may have rebuilt it while we waited
	if entry, ok := p.clients[box.ID]; ok && entry.fingerprint == fp {
		return entry.client, nil
	}

	client, err := NewClient(box, p.log)
	if err != nil {
		return nil, err
	}

	if ok {
		p.log.Info("rebuilt object store client", "box_id", box.ID, "endpoint", box.Endpoint)
	}
	p.clients[box.ID] = &poolEntry{client: client, fingerprint: fp}
	return client, nil
}

// Evict drops the cached client for a box
func (p *Pool) Evict(boxID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.clients, boxID)
}

func fingerprint(box *models.StorageBox) string {
	return fmt.Sprintf("%s|%s|%s|%s|%t", box.Endpoint, box.AccessKey, box.SecretKey, box.Bucket, box.UseSSL)
}
