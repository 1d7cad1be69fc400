package fsutil

// HasEnoughDiskSpace checks if there is sufficient free space for a file operation
func HasEnoughDiskSpace(path string, requiredBytes uint64) (bool, error) {
	freeSpace, err := GetFreeDiskSpace(path)
	if err != nil {
		return false, err
	}
	return freeSpace >= requiredBytes, nil
}
