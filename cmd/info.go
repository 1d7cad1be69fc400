package cmd

import (
	"encoding/xml"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-rkimage/internal/manifest"
)

type imageInfo struct {
	XMLName xml.Name `json:"-" yaml:"-" xml:"info" plist:"-"`

	Path       string                  `json:"path" yaml:"path" xml:"path" plist:"path"`
	Size       int                     `json:"size" yaml:"size" xml:"size" plist:"size"`
	Format     string                  `json:"format" yaml:"format" xml:"format" plist:"format"`
	Container  *manifest.ContainerInfo `json:"container,omitempty" yaml:"container,omitempty" xml:"container,omitempty" plist:"container,omitempty"`
	Archive    manifest.ArchiveInfo    `json:"archive" yaml:"archive" xml:"archive" plist:"archive"`
	Partitions int                     `json:"partitions" yaml:"partitions" xml:"partitions" plist:"partitions"`
	Flashed    int                     `json:"flashed" yaml:"flashed" xml:"flashed" plist:"flashed"`
	Warnings   []string                `json:"warnings,omitempty" yaml:"warnings,omitempty" xml:"warnings>warning,omitempty" plist:"warnings,omitempty"`
}

var infoCmd = &cobra.Command{
	Use:   "info <image>",
	Short: "Show the container and archive headers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := openImage(args[0])
		if err != nil {
			return err
		}
		defer img.Close()

		container, archive, err := img.Archive()
		if err != nil {
			return err
		}
		m, err := manifest.Describe(container, archive)
		if err != nil {
			return err
		}

		size, _ := img.Size()
		info := imageInfo{
			Path:       args[0],
			Size:       size,
			Format:     m.Format,
			Container:  m.Container,
			Archive:    m.Archive,
			Partitions: len(m.Partitions),
			Flashed:    len(archive.Flashable()),
			Warnings:   m.Warnings,
		}

		if !tableOutput() {
			return encode(cmd, info)
		}

		tw := newTable(cmd.OutOrStdout())
		fmt.Fprintf(tw, "Image:\t%s\n", info.Path)
		fmt.Fprintf(tw, "Format:\t%s\n", info.Format)
		fmt.Fprintf(tw, "Size:\t%d bytes\n", info.Size)
		if c := info.Container; c != nil {
			fmt.Fprintf(tw, "Version:\t%s\n", c.Version)
			fmt.Fprintf(tw, "Merge version:\t%s\n", c.MergeVersion)
			fmt.Fprintf(tw, "Build time:\t%s\n", container.Header.BuildTime)
			fmt.Fprintf(tw, "Chip:\t%s\n", c.ChipType)
			fmt.Fprintf(tw, "Boot:\toffset 0x%x, %d bytes\n", c.BootOffset, c.BootSize)
			fmt.Fprintf(tw, "Firmware:\toffset 0x%x, %d bytes\n", c.FirmwareOffset, c.FirmwareSize)
		}
		fmt.Fprintf(tw, "Model:\t%s\n", info.Archive.Model)
		fmt.Fprintf(tw, "Manufacturer:\t%s\n", info.Archive.Manufacturer)
		fmt.Fprintf(tw, "Archive version:\t%s\n", info.Archive.Version)
		fmt.Fprintf(tw, "Archive size:\t%d bytes\n", info.Archive.Size)
		fmt.Fprintf(tw, "Partitions:\t%d (%d flashed)\n", info.Partitions, info.Flashed)
		for _, w := range info.Warnings {
			fmt.Fprintf(tw, "Warning:\t%s\n", w)
		}
		return tw.Flush()
	},
}
