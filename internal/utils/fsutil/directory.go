// fsutil/directory.go
package fsutil

import (
	"fmt"
	"os"
	"strings"

	"github.com/deploymenttheory/go-rkimage/internal/utils/errors"
)

// DirExists checks if a directory exists
func DirExists(path string) bool {
	mu := GetPathMutex(path)
	mu.Lock()
	defer mu.Unlock()

	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// FileExists checks if a regular file exists
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// CreateDir creates a directory if it doesn't exist
func CreateDir(path string, perm os.FileMode) error {
	mu := GetPathMutex(path)
	mu.Lock()
	defer mu.Unlock()

	// Check again under lock
	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		return nil
	}
	if err == nil {
		return fmt.Errorf("%w: %s exists and is not a directory", errors.ErrPathNotAccessible, path)
	}
	return os.MkdirAll(path, perm)
}

// CreateDirIfNotExists creates a directory with standard permissions if it doesn't exist
func CreateDirIfNotExists(path string) error {
	return CreateDir(path, 0755)
}

// CreateFile opens path for writing. Unless overwrite is set an existing file
// is an error.
func CreateFile(path string, overwrite bool) (*os.File, error) {
	mu := GetPathMutex(path)
	mu.Lock()
	defer mu.Unlock()

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}

	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", errors.ErrOutputExists, path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", errors.ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("%w: %v", errors.ErrFileWriteError, err)
	}
	return f, nil
}

// SanitizeFileName replaces characters that are unsafe in file names. Names
// in firmware images are free text and may contain path separators.
func SanitizeFileName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f:
			return '_'
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return '_'
		}
		return r
	}, name)

	name = strings.Trim(name, ". ")
	if name == "" {
		return "unnamed"
	}
	return name
}
