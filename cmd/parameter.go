package cmd

import (
	"encoding/xml"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-rkimage/internal/imagefile"
	"github.com/deploymenttheory/go-rkimage/internal/manifest"
	"github.com/deploymenttheory/go-rkimage/internal/rkimage"
)

type parameterList struct {
	XMLName    xml.Name             `json:"-" yaml:"-" xml:"parameters" plist:"-"`
	Parameters []manifest.Parameter `json:"parameters" yaml:"parameters" xml:"parameter" plist:"parameters"`
}

type mtdPartList struct {
	XMLName  xml.Name           `json:"-" yaml:"-" xml:"mtdparts" plist:"-"`
	MtdParts []manifest.MtdPart `json:"mtdparts" yaml:"mtdparts" xml:"part" plist:"mtdparts"`
}

var parameterCmd = &cobra.Command{
	Use:   "parameter <image>",
	Short: "Print the parameter table",
	Long: `Print the parameter table text. The image may be an RKFW container, an
RKAF archive or a standalone parameter file starting with PARM.

--entries prints the parsed KEY: value lines and --mtdparts the partition
layout from the CMDLINE mtdparts definition, in bytes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, _ := cmd.Flags().GetBool("entries")
		mtdparts, _ := cmd.Flags().GetBool("mtdparts")

		img, err := openImage(args[0])
		if err != nil {
			return err
		}
		defer img.Close()

		tbl, err := parameterTable(img)
		if err != nil {
			return err
		}

		switch {
		case entries:
			return printEntries(cmd, tbl)
		case mtdparts:
			return printMtdParts(cmd, tbl)
		}

		text, err := tbl.Text()
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), text)
		return err
	},
}

func init() {
	parameterCmd.Flags().Bool("entries", false, "Print parsed KEY: value entries")
	parameterCmd.Flags().Bool("mtdparts", false, "Print the CMDLINE mtdparts layout")
	parameterCmd.MarkFlagsMutuallyExclusive("entries", "mtdparts")
}

func parameterTable(img *imagefile.Image) (*rkimage.ParameterTable, error) {
	format, err := img.Format()
	if err != nil {
		return nil, err
	}
	if format == rkimage.FormatParameter {
		buf, err := img.Bytes()
		if err != nil {
			return nil, err
		}
		return rkimage.DecodeParameterTable(buf)
	}

	_, archive, err := img.Archive()
	if err != nil {
		return nil, err
	}
	return archive.ParameterTable()
}

func printEntries(cmd *cobra.Command, tbl *rkimage.ParameterTable) error {
	entries, err := tbl.Entries()
	if err != nil {
		return err
	}

	list := parameterList{Parameters: make([]manifest.Parameter, len(entries))}
	for i, e := range entries {
		list.Parameters[i] = manifest.Parameter{Key: e.Key, Value: e.Value}
	}
	if !tableOutput() {
		return encode(cmd, list)
	}

	tw := newTable(cmd.OutOrStdout())
	fmt.Fprintln(tw, "KEY\tVALUE")
	for _, p := range list.Parameters {
		fmt.Fprintf(tw, "%s\t%s\n", p.Key, p.Value)
	}
	return tw.Flush()
}

func printMtdParts(cmd *cobra.Command, tbl *rkimage.ParameterTable) error {
	parts, err := tbl.MtdParts()
	if err != nil {
		return err
	}

	list := mtdPartList{MtdParts: make([]manifest.MtdPart, len(parts))}
	for i, p := range parts {
		list.MtdParts[i] = manifest.MtdPart{
			Device:   p.Device,
			Name:     p.Name,
			Offset:   p.OffsetBytes(),
			Size:     p.SizeBytes(),
			Grow:     p.Grow,
			ReadOnly: p.ReadOnly,
		}
	}
	if !tableOutput() {
		return encode(cmd, list)
	}

	tw := newTable(cmd.OutOrStdout())
	fmt.Fprintln(tw, "NAME\tDEVICE\tOFFSET\tSIZE\tFLAGS")
	for _, p := range list.MtdParts {
		size := fmt.Sprintf("0x%x", p.Size)
		if p.Grow {
			size = "grow"
		}
		flags := "-"
		if p.ReadOnly {
			flags = "ro"
		}
		fmt.Fprintf(tw, "%s\t%s\t0x%x\t%s\t%s\n", p.Name, p.Device, p.Offset, size, flags)
	}
	return tw.Flush()
}
