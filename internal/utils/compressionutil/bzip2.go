package compression

import (
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
)

func newBzip2Writer(w io.Writer) (io.WriteCloser, error) {
	bzip2Writer, err := bzip2.NewWriter(w, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create bzip2 writer: %w", err)
	}
	return bzip2Writer, nil
}
