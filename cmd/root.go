package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-rkimage/internal/config"
	"github.com/deploymenttheory/go-rkimage/internal/logger"
	"github.com/deploymenttheory/go-rkimage/internal/rkimage"
)

// Version is set at build time with -ldflags "-X github.com/deploymenttheory/go-rkimage/cmd.Version=v1.2.3".
var Version = "dev"

var cfgFile string

// rootFlags maps configuration keys to the persistent flags that override them.
var rootFlags = map[string]string{
	"debug":         "debug",
	"log_format":    "log-format",
	"output.format": "format",
	"verify_digest": "verify-digest",
}

// rootCmd represents the base CLI command
var rootCmd = &cobra.Command{
	Use:   "rkimage",
	Short: "Inspect and unpack Rockchip firmware images",
	Long: `rkimage decodes Rockchip update images: the RKFW container written by
the vendor packing tools, the RKAF partition archive inside it and the PARM
parameter table that describes the flash layout.

It can list partitions, dump the parameter table, extract payloads to disk,
write a manifest with payload digests, check the MD5 trailer and look up
payload hashes on VirusTotal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// An explicit --config replaces whatever main loaded.
		if cfgFile != "" {
			if err := config.Reload(cfgFile); err != nil {
				return err
			}
		} else if err := config.Initialize(""); err != nil {
			return err
		}

		if err := bindFlags(cmd, rootFlags); err != nil {
			return err
		}
		if err := config.Validate(config.Instance); err != nil {
			return err
		}

		logConfig := logger.DefaultConfig()
		logConfig.Debug = config.Instance.Debug
		logConfig.LogFormat = config.Instance.LogFormat
		logConfig.LogFile = config.Instance.LogFile
		return logger.InitLogger(logConfig)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command. The caller reports the returned error;
// cobra's own error printing is silenced.
func Execute(ctx context.Context) error {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.LogDebug("Command execution failed", map[string]interface{}{"error": err.Error()})
		return describeError(err)
	}
	return nil
}

// describeError prefixes decode failures with what they mean for the image.
func describeError(err error) error {
	switch {
	case rkimage.IsFormatError(err):
		return fmt.Errorf("not a Rockchip firmware image: %w", err)
	case rkimage.IsBoundsError(err):
		return fmt.Errorf("image is truncated or damaged: %w", err)
	default:
		return err
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is search in standard locations)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("log-format", "human", "Log format: json or human")
	rootCmd.PersistentFlags().StringP("format", "o", "table", "Output format: table, json, yaml, xml, plist or bplist")
	rootCmd.PersistentFlags().Bool("verify-digest", false, "Check the MD5 trailer of RKFW images before decoding")

	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(partitionsCmd)
	rootCmd.AddCommand(parameterCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(manifestCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(versionCmd)
}

// bindFlags binds every flag of cmd named in keys to its configuration key.
// Flags the command does not define are ignored.
func bindFlags(cmd *cobra.Command, keys map[string]string) error {
	for key, name := range keys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			continue
		}
		if err := config.BindFlag(key, flag); err != nil {
			return err
		}
	}
	return nil
}

// versionCmd shows the application version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "rkimage %s\n", Version)
	},
}
