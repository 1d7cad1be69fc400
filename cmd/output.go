package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-rkimage/internal/config"
	"github.com/deploymenttheory/go-rkimage/internal/imagefile"
	"github.com/deploymenttheory/go-rkimage/internal/logger"
	"github.com/deploymenttheory/go-rkimage/internal/manifest"
	"github.com/deploymenttheory/go-rkimage/internal/rkimage"
)

// tableOutput reports whether results should be printed as aligned text
// rather than encoded.
func tableOutput() bool {
	f := config.Instance.Output.Format
	return f == "" || f == "table"
}

// encode writes v to the command's output in the configured format.
func encode(cmd *cobra.Command, v interface{}) error {
	return manifest.Encode(cmd.OutOrStdout(), v, config.Instance.Output.Format)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// openImage maps path. With verify_digest set the MD5 trailer of an RKFW image
// is checked before anything is decoded.
func openImage(path string) (*imagefile.Image, error) {
	img, err := imagefile.Open(path)
	if err != nil {
		return nil, err
	}

	format, err := img.Format()
	if err != nil {
		_ = img.Close()
		return nil, err
	}
	if config.Instance.VerifyDigest && format == rkimage.FormatRKFW {
		if err := img.VerifyDigest(); err != nil {
			_ = img.Close()
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	size, _ := img.Size()
	logger.LogDebug("Opened image", map[string]interface{}{
		"path":   path,
		"size":   size,
		"format": format.String(),
	})
	return img, nil
}

// hexOrDash formats a flash address, or "-" for partitions that are not
// flashed.
func hexOrDash(flashed bool, v uint32) string {
	if !flashed {
		return "-"
	}
	return fmt.Sprintf("0x%08x", v)
}
