package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chronicler/mediastore/common/config"
	"github.com/chronicler/mediastore/common/logger"
	"github.com/chronicler/mediastore/common/models"
)

// ErrNoEligibleBox means no box is writable at all; nothing can be placed
var ErrNoEligibleBox = errors.New("no storage box accepts writes")

// ErrCapacityExhausted means every candidate box refused the reservation.
// Always a hard failure: content is never silently dropped.
var ErrCapacityExhausted = errors.New("storage capacity exhausted")

// ReservationLedger holds and releases byte reservations on boxes
type ReservationLedger interface {
	TryReserve(ctx context.Context, id string, size int64) (bool, error)
	Release(ctx context.Context, id string, size int64) error
}

// BoxAccounting is the slice of the box repository the selector needs
type BoxAccounting interface {
	ReservationLedger
	ListAccepting(ctx context.Context, region string) ([]*models.StorageBox, error)
	LeastUsed(ctx context.Context, region string) (*models.StorageBox, error)
}

// BoxSelector picks a destination box for new content and reserves the
// bytes on it. Placement spreads across comparably-filled boxes instead
// of hammering the single emptiest one: boxes whose usage lies within a
// tolerance band above the emptiest candidate take turns via a rotation
// cursor. The cursor is process-local; fairness holds per instance and
// approximately overall.
type BoxSelector struct {
	boxes BoxAccounting
	cfg   config.SelectorConfig
	log   *logger.Logger

	mu       sync.Mutex
	rotation map[string]int // region -> next band position
}

// NewBoxSelector creates a selector over the box catalog
func NewBoxSelector(boxes BoxAccounting, cfg config.SelectorConfig, log *logger.Logger) *BoxSelector {
	return &BoxSelector{
		boxes:    boxes,
		cfg:      cfg,
		log:      log,
		rotation: make(map[string]int),
	}
}

// Select chooses a box with room for sizeBytes and reserves the bytes on
// it. The returned box holds a live reservation: the caller must follow
// up with ConfirmUsed or Release. An empty region draws from all regions.
func (s *BoxSelector) Select(ctx context.Context, sizeBytes int64, region string) (*models.StorageBox, error) {
	candidates, err := s.boxes.ListAccepting(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("failed to list accepting boxes: %w", err)
	}

	// Flags are checked in SQL; the watermark cut needs derived usage
	eligible := make([]*models.StorageBox, 0, len(candidates))
	for _, box := range candidates {
		if box.UsagePercent() < box.HighWaterMarkPercent {
			eligible = append(eligible, box)
		}
	}

	if len(eligible) == 0 {
		return s.selectLastResort(ctx, sizeBytes, region)
	}

	attempts := 0
	for len(eligible) > 0 && attempts < s.cfg.MaxRetries {
		band := toleranceBand(eligible, s.cfg.TolerancePercent)
		chosen := band[s.advance(region, len(band))]
		attempts++

		ok, err := s.boxes.TryReserve(ctx, chosen.ID, sizeBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to reserve on box %s: %w", chosen.ID, err)
		}
		if ok {
			s.log.Debug("reserved capacity",
				"box_id", chosen.ID,
				"region", chosen.Region,
				"size_bytes", sizeBytes,
				"usage_percent", chosen.UsagePercent(),
			)
			return chosen, nil
		}

		// The box filled up between listing and reserving. Drop it and
		// retry against the remainder.
		s.log.Warn("reservation refused, excluding box",
			"box_id", chosen.ID,
			"size_bytes", sizeBytes,
			"attempt", attempts,
		)
		eligible = exclude(eligible, chosen.ID)
	}

	s.log.Error("box selection exhausted",
		"region", region,
		"size_bytes", sizeBytes,
		"attempts", attempts,
	)
	return nil, ErrCapacityExhausted
}

// selectLastResort places content on the least-used writable box even
// above its high-water mark. Watermarks and fullness marks are soft
// limits; losing content because every box is merely "full-ish" is worse
// than overshooting a watermark. The capacity guard in TryReserve still
// applies.
func (s *BoxSelector) selectLastResort(ctx context.Context, sizeBytes int64, region string) (*models.StorageBox, error) {
	box, err := s.boxes.LeastUsed(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("failed to find least used box: %w", err)
	}
	if box == nil {
		return nil, ErrNoEligibleBox
	}

	ok, err := s.boxes.TryReserve(ctx, box.ID, sizeBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve on box %s: %w", box.ID, err)
	}
	if !ok {
		return nil, ErrCapacityExhausted
	}

	s.log.Warn("placed content via last resort",
		"box_id", box.ID,
		"region", region,
		"usage_percent", box.UsagePercent(),
		"size_bytes", sizeBytes,
	)
	return box, nil
}

// advance returns the rotation position for a region and moves the cursor.
// The counter grows monotonically and is reduced at read time, so a band
// that shrinks mid-selection cannot make the cursor skip ahead twice.
func (s *BoxSelector) advance(region string, bandSize int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos := s.rotation[region] % bandSize
	s.rotation[region]++
	return pos
}

// toleranceBand returns the boxes whose usage lies within tolerance
// percentage points of the emptiest candidate. Input order (priority, id)
// is preserved so the rotation is deterministic; sorting by usage would
// reshuffle the band between calls as usage drifts.
func toleranceBand(boxes []*models.StorageBox, tolerance float64) []*models.StorageBox {
	minUsage := boxes[0].UsagePercent()
	for _, box := range boxes[1:] {
		if u := box.UsagePercent(); u < minUsage {
			minUsage = u
		}
	}

	band := make([]*models.StorageBox, 0, len(boxes))
	for _, box := range boxes {
		if box.UsagePercent() <= minUsage+tolerance {
			band = append(band, box)
		}
	}
	return band
}

func exclude(boxes []*models.StorageBox, id string) []*models.StorageBox {
	out := boxes[:0]
	for _, box := range boxes {
		if box.ID != id {
			out = append(out, box)
		}
	}
	return out
}
