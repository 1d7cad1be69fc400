package cmd

import (
	"encoding/xml"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-rkimage/internal/config"
	"github.com/deploymenttheory/go-rkimage/internal/manifest"
)

type partitionList struct {
	XMLName    xml.Name                 `json:"-" yaml:"-" xml:"partitions" plist:"-"`
	Partitions []manifest.PartitionInfo `json:"partitions" yaml:"partitions" xml:"partition" plist:"partitions"`
}

var partitionsCmd = &cobra.Command{
	Use:   "partitions <image>",
	Short: "List the partitions of the archive",
	Long: `List the archive partitions in on-disk order. Entries without a flash
address (package-file and similar) are hidden unless --all is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		digests, _ := cmd.Flags().GetBool("digests")

		img, err := openImage(args[0])
		if err != nil {
			return err
		}
		defer img.Close()

		container, archive, err := img.Archive()
		if err != nil {
			return err
		}

		var m *manifest.Manifest
		if digests {
			m, err = manifest.Build(container, archive, config.Instance.Extract.Workers)
		} else {
			m, err = manifest.Describe(container, archive)
		}
		if err != nil {
			return err
		}

		list := partitionList{Partitions: make([]manifest.PartitionInfo, 0, len(m.Partitions))}
		for _, p := range m.Partitions {
			if p.Flashed || all {
				list.Partitions = append(list.Partitions, p)
			}
		}

		if !tableOutput() {
			return encode(cmd, list)
		}

		tw := newTable(cmd.OutOrStdout())
		header := "INDEX\tNAME\tPATH\tFLASH\tSPACE\tSIZE\tTYPE"
		if digests {
			header += "\tSHA256"
		}
		fmt.Fprintln(tw, header)
		for _, p := range list.Partitions {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s",
				p.Index, p.Name, p.Path,
				hexOrDash(p.Flashed, p.FlashOffset), hexOrDash(p.Flashed, p.AllottedSpace),
				p.Size, p.Compression)
			if digests && p.Digests != nil {
				fmt.Fprintf(tw, "\t%s", p.Digests.SHA256)
			}
			fmt.Fprintln(tw)
		}
		return tw.Flush()
	},
}

func init() {
	partitionsCmd.Flags().BoolP("all", "a", false, "Include partitions that are not flashed")
	partitionsCmd.Flags().Bool("digests", false, "Hash every payload and show its SHA-256")
}
