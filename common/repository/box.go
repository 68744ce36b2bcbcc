package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/chronicler/mediastore/common/db"
	"github.com/chronicler/mediastore/common/models"
)

const boxColumns = `id, capacity_bytes, used_bytes, reserved_bytes, high_water_mark_percent,
	       priority, region, is_active, is_full, is_readonly,
	       endpoint, access_key, secret_key, bucket, use_ssl, created_at, updated_at`

// BoxRepository handles database operations for storage boxes.
// All capacity arithmetic happens inside single UPDATE statements so
// concurrent writers on different instances cannot oversell a box.
type BoxRepository struct {
	db *db.DB
}

// NewBoxRepository creates a new storage box repository
func NewBoxRepository(database *db.DB) *BoxRepository {
	return &BoxRepository{db: database}
}

func scanBox(row pgx.Row) (*models.StorageBox, error) {
	box := &models.StorageBox{}
	err := row.Scan(
		&box.ID,
		&box.CapacityBytes,
		&box.UsedBytes,
		&box.ReservedBytes,
		&box.HighWaterMarkPercent,
		&box.Priority,
		&box.Region,
		&box.IsActive,
		&box.IsFull,
		&box.IsReadonly,
		&box.Endpoint,
		&box.AccessKey,
		&box.SecretKey,
		&box.Bucket,
		&box.UseSSL,
		&box.CreatedAt,
		&box.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return box, nil
}

// GetByID retrieves a storage box. Returns nil when it does not exist.
func (r *BoxRepository) GetByID(ctx context.Context, id string) (*models.StorageBox, error) {
	query := `SELECT ` + boxColumns + ` FROM storage_boxes WHERE id = $1`

	box, err := scanBox(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get storage box: %w", err)
	}

	return box, nil
}

// ListAll retrieves every storage box ordered by priority then id
func (r *BoxRepository) ListAll(ctx context.Context) ([]*models.StorageBox, error) {
	query := `SELECT ` + boxColumns + ` FROM storage_boxes ORDER BY priority ASC, id ASC`
	return r.list(ctx, query)
}

// ListAccepting retrieves boxes whose operator flags allow new placements,
// ordered by priority then id. An empty region matches every box. The
// high-water-mark cut is applied by the selector on top of this, since it
// depends on derived usage.
func (r *BoxRepository) ListAccepting(ctx context.Context, region string) ([]*models.StorageBox, error) {
	query := `
		SELECT ` + boxColumns + `
		FROM storage_boxes
		WHERE is_active AND NOT is_full AND NOT is_readonly
		  AND ($1 = '' OR region = $1)
		ORDER BY priority ASC, id ASC
	`
	return r.list(ctx, query, region)
}

// LeastUsed returns the writable box with the lowest usage ratio,
// disregarding fullness marks. An empty region matches every box.
// Returns nil when no box is writable.
func (r *BoxRepository) LeastUsed(ctx context.Context, region string) (*models.StorageBox, error) {
	query := `
		SELECT ` + boxColumns + `
		FROM storage_boxes
		WHERE is_active AND NOT is_readonly
		  AND ($1 = '' OR region = $1)
		ORDER BY used_bytes::double precision / NULLIF(capacity_bytes, 0) ASC NULLS LAST, priority ASC, id ASC
		LIMIT 1
	`

	box, err := scanBox(r.db.QueryRow(ctx, query, region))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get least used storage box: %w", err)
	}

	return box, nil
}

func (r *BoxRepository) list(ctx context.Context, query string, args ...any) ([]*models.StorageBox, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list storage boxes: %w", err)
	}
	defer rows.Close()

	var boxes []*models.StorageBox
	for rows.Next() {
		box, err := scanBox(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan storage box: %w", err)
		}
		boxes = append(boxes, box)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating storage boxes: %w", err)
	}

	return boxes, nil
}

// TryReserve atomically reserves bytes on a box if, and only if, the
// remaining capacity covers them. The guard and the increment live in one
// statement, so two instances reserving concurrently can never jointly
// exceed capacity. Operator switches are re-checked here; fullness marks
// are not, because the last-resort path places content on boxes already
// marked full.
func (r *BoxRepository) TryReserve(ctx context.Context, id string, size int64) (bool, error) {
	query := `
		UPDATE storage_boxes
		SET reserved_bytes = reserved_bytes + $2,
		    updated_at = now()
		WHERE id = $1
		  AND is_active AND NOT is_readonly
		  AND capacity_bytes - used_bytes - reserved_bytes >= $2
	`

	tag, err := r.db.Exec(ctx, query, id, size)
	if err != nil {
		return false, fmt.Errorf("failed to reserve on storage box: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// Release returns reserved bytes that will not be used, flooring at zero
func (r *BoxRepository) Release(ctx context.Context, id string, size int64) error {
	query := `
		UPDATE storage_boxes
		SET reserved_bytes = GREATEST(reserved_bytes - $2, 0),
		    updated_at = now()
		WHERE id = $1
	`

	if _, err := r.db.Exec(ctx, query, id, size); err != nil {
		return fmt.Errorf("failed to release reservation: %w", err)
	}

	return nil
}

// ConfirmUsed converts a reservation into confirmed usage in a single
// statement, so no interleaving can observe the bytes as both reserved
// and used, or as neither.
func (r *BoxRepository) ConfirmUsed(ctx context.Context, id string, size int64) error {
	query := `
		UPDATE storage_boxes
		SET used_bytes = used_bytes + $2,
		    reserved_bytes = GREATEST(reserved_bytes - $2, 0),
		    updated_at = now()
		WHERE id = $1
	`

	if _, err := r.db.Exec(ctx, query, id, size); err != nil {
		return fmt.Errorf("failed to confirm usage: %w", err)
	}

	return nil
}

// Create inserts a new storage box
func (r *BoxRepository) Create(ctx context.Context, box *models.StorageBox) error {
	query := `
		INSERT INTO storage_boxes (
			id, capacity_bytes, used_bytes, reserved_bytes, high_water_mark_percent,
			priority, region, is_active, is_full, is_readonly,
			endpoint, access_key, secret_key, bucket, use_ssl
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.db.Exec(ctx, query,
		box.ID,
		box.CapacityBytes,
		box.UsedBytes,
		box.ReservedBytes,
		box.HighWaterMarkPercent,
		box.Priority,
		box.Region,
		box.IsActive,
		box.IsFull,
		box.IsReadonly,
		box.Endpoint,
		box.AccessKey,
		box.SecretKey,
		box.Bucket,
		box.UseSSL,
	)
	if err != nil {
		return fmt.Errorf("failed to create storage box: %w", err)
	}

	return nil
}

// Update persists box configuration. Byte counters are deliberately not
// written here; they only move through TryReserve, Release and ConfirmUsed.
func (r *BoxRepository) Update(ctx context.Context, box *models.StorageBox) error {
	query := `
		UPDATE storage_boxes
		SET capacity_bytes = $2,
		    high_water_mark_percent = $3,
		    priority = $4,
		    region = $5,
		    is_active = $6,
		    is_full = $7,
		    is_readonly = $8,
		    endpoint = $9,
		    access_key = $10,
		    secret_key = $11,
		    bucket = $12,
		    use_ssl = $13,
		    updated_at = now()
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query,
		box.ID,
		box.CapacityBytes,
		box.HighWaterMarkPercent,
		box.Priority,
		box.Region,
		box.IsActive,
		box.IsFull,
		box.IsReadonly,
		box.Endpoint,
		box.AccessKey,
		box.SecretKey,
		box.Bucket,
		box.UseSSL,
	)
	if err != nil {
		return fmt.Errorf("failed to update storage box: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage box %s not found", box.ID)
	}

	return nil
}
