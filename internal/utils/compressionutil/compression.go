package compression

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/deploymenttheory/go-rkimage/internal/utils/errors"
)

// Format names a stream compression applied to extracted partitions.
type Format string

const (
	None  Format = "none"
	Gzip  Format = "gzip"
	XZ    Format = "xz"
	Bzip2 Format = "bzip2"
)

var magicNumbers = map[Format][]byte{
	Gzip:  {0x1F, 0x8B},
	Bzip2: {0x42, 0x5A, 0x68},
	XZ:    {0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00},
}

// ParseFormat maps a configuration value to a Format. The empty string means
// None.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return None, nil
	case "gzip", "gz":
		return Gzip, nil
	case "xz":
		return XZ, nil
	case "bzip2", "bz2":
		return Bzip2, nil
	default:
		return "", fmt.Errorf("%w: %q", errors.ErrUnsupportedCompression, s)
	}
}

// Extension returns the file suffix for the format, including the dot.
func (f Format) Extension() string {
	switch f {
	case Gzip:
		return ".gz"
	case XZ:
		return ".xz"
	case Bzip2:
		return ".bz2"
	default:
		return ""
	}
}

// DetectFormat reports the compression of a payload from its leading magic.
// It returns None when no known magic matches.
func DetectFormat(header []byte) Format {
	for format, magic := range magicNumbers {
		if bytes.HasPrefix(header, magic) {
			return format
		}
	}
	return None
}

// NewWriter wraps w in a compressor for format. Closing the returned writer
// flushes the compressor but does not close w.
func NewWriter(format Format, w io.Writer) (io.WriteCloser, error) {
	switch format {
	case None, "":
		return nopWriteCloser{w}, nil
	case Gzip:
		return newGzipWriter(w), nil
	case XZ:
		return newXZWriter(w)
	case Bzip2:
		return newBzip2Writer(w)
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnsupportedCompression, format)
	}
}

// CompressBytes writes data to dst through a compressor for format and
// returns the number of uncompressed bytes consumed.
func CompressBytes(data []byte, dst io.Writer, format Format) (int64, error) {
	zw, err := NewWriter(format, dst)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(zw, bytes.NewReader(data))
	if err != nil {
		_ = zw.Close()
		return n, fmt.Errorf("%w: %v", errors.ErrCompressionFailed, err)
	}
	if err := zw.Close(); err != nil {
		return n, fmt.Errorf("%w: %v", errors.ErrCompressionFailed, err)
	}
	return n, nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
