package cmd

import (
	"encoding/xml"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-rkimage/internal/imagefile"
	"github.com/deploymenttheory/go-rkimage/internal/rkimage"
)

type digestReport struct {
	XMLName  xml.Name `json:"-" yaml:"-" xml:"digest" plist:"-"`
	Path     string   `json:"path" yaml:"path" xml:"path" plist:"path"`
	Stored   string   `json:"stored" yaml:"stored" xml:"stored" plist:"stored"`
	Computed string   `json:"computed" yaml:"computed" xml:"computed" plist:"computed"`
	Match    bool     `json:"match" yaml:"match" xml:"match" plist:"match"`
}

var verifyCmd = &cobra.Command{
	Use:   "verify <image>",
	Short: "Check the MD5 trailer of an RKFW image",
	Long: `Compare the ASCII hex MD5 stored in the last 32 bytes of an RKFW image
with the MD5 of everything before it. A mismatch is reported and the command
exits non-zero.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// The trailer is checked here, not on open.
		img, err := imagefile.Open(args[0])
		if err != nil {
			return err
		}
		defer img.Close()

		format, err := img.Format()
		if err != nil {
			return err
		}
		if format != rkimage.FormatRKFW {
			return fmt.Errorf("%w: %s is %s, only RKFW images carry a digest", imagefile.ErrUnsupportedFormat, args[0], format)
		}

		buf, err := img.Bytes()
		if err != nil {
			return err
		}
		stored, computed, err := rkimage.Digest(buf)
		if err != nil {
			return err
		}
		report := digestReport{Path: args[0], Stored: stored, Computed: computed, Match: stored == computed}

		if !tableOutput() {
			if err := encode(cmd, report); err != nil {
				return err
			}
		} else {
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintf(tw, "Stored:\t%s\n", report.Stored)
			fmt.Fprintf(tw, "Computed:\t%s\n", report.Computed)
			if report.Match {
				fmt.Fprintf(tw, "Result:\tOK\n")
			} else {
				fmt.Fprintf(tw, "Result:\tMISMATCH\n")
			}
			if err := tw.Flush(); err != nil {
				return err
			}
		}

		return rkimage.CheckDigest(len(buf), stored, computed)
	},
}
