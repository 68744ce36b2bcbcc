package metrics

import (
	"fmt"
	"syscall"
)

// DiskUsage represents disk space information for one filesystem
type DiskUsage struct {
	SpaceUsed      int64 `json:"space_used"`
	SpaceAvailable int64 `json:"space_available"`
	TotalSpace     int64 `json:"total_space"`
}

// CaptureDiskUsage returns space statistics for the filesystem holding
// path. The buffer writer consults this before spooling so ingest stops
// cleanly when the buffer volume runs low.
func CaptureDiskUsage(path string) (*DiskUsage, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return nil, fmt.Errorf("failed to stat filesystem at %s: %w", path, err)
	}

	// Bsize is signed on some platforms
	var bsize uint64
	if stat.Bsize > 0 {
		bsize = uint64(stat.Bsize)
	}

	totalSpace := stat.Blocks * bsize
	spaceAvailable := stat.Bavail * bsize
	spaceFree := stat.Bfree * bsize
	spaceUsed := totalSpace - spaceFree

	return &DiskUsage{
		SpaceUsed:      int64(spaceUsed),
		SpaceAvailable: int64(spaceAvailable),
		TotalSpace:     int64(totalSpace),
	}, nil
}
