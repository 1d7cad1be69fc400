package compression

import (
	"compress/gzip"
	"io"
)

func newGzipWriter(w io.Writer) io.WriteCloser {
	return gzip.NewWriter(w)
}
