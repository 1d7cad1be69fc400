//go:build windows

package fsutil

import "math"

// GetFreeDiskSpace is not implemented on Windows and reports unlimited space.
func GetFreeDiskSpace(path string) (uint64, error) {
	return math.MaxUint64, nil
}
