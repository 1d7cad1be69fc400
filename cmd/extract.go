package cmd

import (
	"encoding/xml"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-rkimage/internal/config"
	"github.com/deploymenttheory/go-rkimage/internal/extract"
	"github.com/deploymenttheory/go-rkimage/internal/logger"
	compression "github.com/deploymenttheory/go-rkimage/internal/utils/compressionutil"
)

var extractFlags = map[string]string{
	"extract.dir":               "dir",
	"extract.compression":       "compression",
	"extract.include_unflashed": "include-unflashed",
	"extract.overwrite":         "overwrite",
	"extract.workers":           "workers",
}

type extractedFile struct {
	Name    string `json:"name" yaml:"name" xml:"name" plist:"name"`
	Index   int    `json:"index" yaml:"index" xml:"index,attr" plist:"index"`
	Path    string `json:"path" yaml:"path" xml:"path" plist:"path"`
	Size    int    `json:"size" yaml:"size" xml:"size" plist:"size"`
	SHA256  string `json:"sha256" yaml:"sha256" xml:"sha256" plist:"sha256"`
	Flashed bool   `json:"flashed" yaml:"flashed" xml:"flashed" plist:"flashed"`
}

type extractReport struct {
	XMLName     xml.Name        `json:"-" yaml:"-" xml:"extract" plist:"-"`
	Dir         string          `json:"dir" yaml:"dir" xml:"dir" plist:"dir"`
	Compression string          `json:"compression" yaml:"compression" xml:"compression" plist:"compression"`
	Files       []extractedFile `json:"files" yaml:"files" xml:"files>file" plist:"files"`
}

var extractCmd = &cobra.Command{
	Use:   "extract <image>",
	Short: "Write the boot blob and partition payloads to disk",
	Long: `Write the RKFW boot blob to boot.bin and every partition payload to
<index>_<name>.img in the output directory, optionally compressed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := bindFlags(cmd, extractFlags); err != nil {
			return err
		}
		if err := config.Validate(config.Instance); err != nil {
			return err
		}
		cfg := config.Instance.Extract

		format, err := compression.ParseFormat(cfg.Compression)
		if err != nil {
			return err
		}

		img, err := openImage(args[0])
		if err != nil {
			return err
		}
		defer img.Close()

		container, archive, err := img.Archive()
		if err != nil {
			return err
		}

		results, err := extract.Extract(cmd.Context(), archive, container, extract.Options{
			Dir:              cfg.Dir,
			Compression:      format,
			IncludeUnflashed: cfg.IncludeUnflashed,
			Overwrite:        cfg.Overwrite,
			Workers:          cfg.Workers,
		})
		if err != nil {
			return err
		}

		logger.LogInfo("Extraction complete", map[string]interface{}{
			"image": args[0],
			"dir":   cfg.Dir,
			"files": len(results),
		})

		report := extractReport{
			Dir:         cfg.Dir,
			Compression: string(format),
			Files:       make([]extractedFile, len(results)),
		}
		for i, r := range results {
			report.Files[i] = extractedFile(r)
		}
		if !tableOutput() {
			return encode(cmd, report)
		}

		tw := newTable(cmd.OutOrStdout())
		fmt.Fprintln(tw, "NAME\tFILE\tSIZE\tSHA256")
		for _, f := range report.Files {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", f.Name, f.Path, f.Size, f.SHA256)
		}
		return tw.Flush()
	},
}

func init() {
	extractCmd.Flags().StringP("dir", "d", "extracted", "Output directory")
	extractCmd.Flags().StringP("compression", "c", "none", "Compress payloads: none, gzip, xz or bzip2")
	extractCmd.Flags().Bool("include-unflashed", true, "Also write partitions that are not flashed")
	extractCmd.Flags().Bool("overwrite", false, "Replace existing files")
	extractCmd.Flags().IntP("workers", "j", 4, "Number of concurrent writers")
}
