//go:build !windows

package core

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// ErrInsufficientDiskSpace means the data directory's filesystem has fallen
// below the minimum free space the chain needs to keep appending blocks.
var ErrInsufficientDiskSpace = errors.New("disk space is low")

// minDiskSpace is the free-space floor, with headroom for one more block.
const minDiskSpace = 52428800 + 2*1024*1024

// CheckDiskSpace verifies the filesystem backing the data directory has room
// for additional chain data. Low space requests a shutdown rather than
// aborting mid-write.
func CheckDiskSpace(dataDir string, additional uint64) error {
	var st unix.Statfs_t
	if err := unix.Statfs(dataDir, &st); err != nil {
		return fmt.Errorf("statfs %s: %w", dataDir, err)
	}
	free := st.Bavail * uint64(st.Bsize)
	if free < minDiskSpace+additional {
		return fmt.Errorf("%w: %d bytes available in %s", ErrInsufficientDiskSpace, free, dataDir)
	}
	return nil
}
