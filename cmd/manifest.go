package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-rkimage/internal/config"
	"github.com/deploymenttheory/go-rkimage/internal/logger"
	"github.com/deploymenttheory/go-rkimage/internal/manifest"
	"github.com/deploymenttheory/go-rkimage/internal/utils/fsutil"
)

var manifestCmd = &cobra.Command{
	Use:   "manifest <image>",
	Short: "Write a manifest of headers, partitions and payload digests",
	Long: `Write a manifest describing the image headers, every partition with its
MD5, SHA-1 and SHA-256 digests, and the parsed parameter table. The table
output format is not available here; json is used instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outPath, _ := cmd.Flags().GetString("out")

		format := config.Instance.Output.Format
		if tableOutput() {
			format = "json"
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
		m, err := manifest.Build(container, archive, config.Instance.Extract.Workers)
		if err != nil {
			return err
		}
		for _, w := range m.Warnings {
			logger.LogWarn("Manifest warning", map[string]interface{}{"warning": w})
		}

		if outPath == "" {
			return manifest.Write(cmd.OutOrStdout(), m, format)
		}

		f, err := fsutil.CreateFile(outPath, true)
		if err != nil {
			return err
		}
		if err := manifest.Write(f, m, format); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to close manifest %s: %w", outPath, err)
		}

		logger.LogInfo("Manifest written", map[string]interface{}{
			"path":   outPath,
			"format": format,
		})
		return nil
	},
}

func init() {
	manifestCmd.Flags().String("out", "", "Write the manifest to this file instead of stdout")
}
