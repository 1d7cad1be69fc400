// Package imagefile owns the bytes of a firmware image and hands out decoded
// views of it. Files are memory-mapped read-only.
package imagefile

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/deploymenttheory/go-rkimage/internal/rkimage"
	"github.com/edsrzf/mmap-go"
)

// ErrClosed is returned by every accessor once the image has been closed.
var ErrClosed = errors.New("image is closed")

// ErrUnsupportedFormat is returned when the image is neither an RKFW
// container nor a bare RKAF archive.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Image is a firmware image buffer. Slices returned by its accessors, and
// every view inside decoded values, point into the buffer and must not be
// used after Close.
type Image struct {
	path  string
	mu    sync.RWMutex
	buf   []byte
	unmap func() error
	close func() error
}

// Open maps the file at path read-only.
func Open(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat image: %w", err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("open image: %s is a directory", path)
	}

	// Zero-length files cannot be mapped.
	if info.Size() == 0 {
		_ = f.Close()
		return &Image{path: path, buf: []byte{}}, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("map image: %w", err)
	}

	return &Image{
		path:  path,
		buf:   m,
		unmap: m.Unmap,
		close: f.Close,
	}, nil
}

// OpenBytes wraps an in-memory image. The caller must not modify buf while
// the image is in use.
func OpenBytes(buf []byte) *Image {
	if buf == nil {
		buf = []byte{}
	}
	return &Image{buf: buf}
}

// Path returns the file the image was opened from, or "" for OpenBytes.
func (img *Image) Path() string {
	return img.path
}

// Bytes returns the whole image buffer.
func (img *Image) Bytes() ([]byte, error) {
	img.mu.RLock()
	defer img.mu.RUnlock()

	if img.buf == nil {
		return nil, ErrClosed
	}
	return img.buf, nil
}

// Size returns the image length in bytes.
func (img *Image) Size() (int, error) {
	buf, err := img.Bytes()
	if err != nil {
		return 0, err
	}
	return len(buf), nil
}

// Format sniffs the leading magic of the image.
func (img *Image) Format() (rkimage.Format, error) {
	buf, err := img.Bytes()
	if err != nil {
		return rkimage.FormatUnknown, err
	}
	return rkimage.Sniff(buf), nil
}

// Container decodes the RKFW container.
func (img *Image) Container() (*rkimage.Container, error) {
	buf, err := img.Bytes()
	if err != nil {
		return nil, err
	}
	return rkimage.DecodeContainer(buf)
}

// Archive decodes the partition archive. RKFW images are unwrapped first; a
// bare RKAF archive is decoded directly and the returned container is nil.
func (img *Image) Archive() (*rkimage.Container, *rkimage.Archive, error) {
	buf, err := img.Bytes()
	if err != nil {
		return nil, nil, err
	}

	switch rkimage.Sniff(buf) {
	case rkimage.FormatRKFW:
		c, err := rkimage.DecodeContainer(buf)
		if err != nil {
			return nil, nil, err
		}
		a, err := rkimage.DecodeArchive(c.Firmware)
		if err != nil {
			return nil, nil, err
		}
		return c, a, nil
	case rkimage.FormatRKAF:
		a, err := rkimage.DecodeArchive(buf)
		if err != nil {
			return nil, nil, err
		}
		return nil, a, nil
	default:
		return nil, nil, fmt.Errorf("%w: leading bytes %q", ErrUnsupportedFormat, head(buf, 4))
	}
}

// VerifyDigest checks the MD5 trailer of an RKFW image.
func (img *Image) VerifyDigest() error {
	buf, err := img.Bytes()
	if err != nil {
		return err
	}
	return rkimage.VerifyDigest(buf)
}

// Close releases the mapping. It is safe to call more than once.
func (img *Image) Close() error {
	img.mu.Lock()
	defer img.mu.Unlock()

	if img.buf == nil {
		return nil
	}
	img.buf = nil

	var errs []error
	if img.unmap != nil {
		errs = append(errs, img.unmap())
		img.unmap = nil
	}
	if img.close != nil {
		errs = append(errs, img.close())
		img.close = nil
	}
	return errors.Join(errs...)
}

func head(b []byte, n int) []byte {
	if len(b) < n {
		return b
	}
	return b[:n]
}
