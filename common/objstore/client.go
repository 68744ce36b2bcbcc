package objstore

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/chronicler/mediastore/common/logger"
	"github.com/chronicler/mediastore/common/models"
)

// Client wraps an S3-compatible connection bound to one storage box's
// bucket. Any backend speaking the S3 API works; nothing here is specific
// to a vendor.
type Client struct {
	mc     *minio.Client
	bucket string
	log    *logger.Logger

	mu      sync.Mutex
	ensured bool
}

// NewClient builds a client from a box's connection settings
func NewClient(box *models.StorageBox, log *logger.Logger) (*Client, error) {
	mc, err := minio.New(box.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(box.AccessKey, box.SecretKey, ""),
		Secure: box.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build object store client for box %s: %w", box.ID, err)
	}

	return &Client{
		mc:     mc,
		bucket: box.Bucket,
		log:    log.WithBox(box.ID),
	}, nil
}

// EnsureBucket creates the bucket if it does not exist. Success is
// remembered so the existence check runs once per client; failures are
// retried on the next call.
func (c *Client) EnsureBucket(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ensured {
		return nil
	}

	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", c.bucket, err)
	}
	if !exists {
		if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", c.bucket, err)
		}
		c.log.Info("created bucket", "bucket", c.bucket)
	}

	c.ensured = true
	return nil
}

// PutFile uploads a local file under the given object key and returns the
// stored size
func (c *Client) PutFile(ctx context.Context, key, path, contentType string) (int64, error) {
	if err := c.EnsureBucket(ctx); err != nil {
		return 0, err
	}

	info, err := c.mc.FPutObject(ctx, c.bucket, key, path, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upload %s: %w", key, err)
	}

	c.log.Debug("uploaded object", "key", key, "size", info.Size)
	return info.Size, nil
}

// Get returns a reader over a stored object. The caller must close it.
func (c *Client) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := c.mc.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", key, err)
	}
	return obj, nil
}
