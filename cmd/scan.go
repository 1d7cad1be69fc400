package cmd

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-rkimage/internal/config"
	"github.com/deploymenttheory/go-rkimage/internal/logger"
	"github.com/deploymenttheory/go-rkimage/internal/utils/cryptoutil"
	"github.com/deploymenttheory/go-rkimage/internal/utils/vtutil"
)

// hashLookup is the part of vtutil.Client used by scan.
type hashLookup interface {
	LookupHash(ctx context.Context, hash string) (*vtutil.FileReport, error)
}

// newHashLookup is replaced in tests.
var newHashLookup = func(cfg vtutil.ClientConfig) (hashLookup, error) {
	c, err := vtutil.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

var scanFlags = map[string]string{
	"virustotal.api_key": "api-key",
}

// scanLookups bounds concurrent lookups; the client rate limit applies on top.
const scanLookups = 4

type scanResult struct {
	Name       string `json:"name" yaml:"name" xml:"name" plist:"name"`
	Size       int    `json:"size" yaml:"size" xml:"size" plist:"size"`
	SHA256     string `json:"sha256" yaml:"sha256" xml:"sha256" plist:"sha256"`
	Verdict    string `json:"verdict" yaml:"verdict" xml:"verdict" plist:"verdict"`
	Malicious  int    `json:"malicious" yaml:"malicious" xml:"malicious" plist:"malicious"`
	Suspicious int    `json:"suspicious" yaml:"suspicious" xml:"suspicious" plist:"suspicious"`
	Engines    int    `json:"engines" yaml:"engines" xml:"engines" plist:"engines"`
	Permalink  string `json:"permalink,omitempty" yaml:"permalink,omitempty" xml:"permalink,omitempty" plist:"permalink,omitempty"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty" xml:"error,omitempty" plist:"error,omitempty"`
}

type scanReport struct {
	XMLName xml.Name     `json:"-" yaml:"-" xml:"scan" plist:"-"`
	Results []scanResult `json:"results" yaml:"results" xml:"result" plist:"results"`
}

type scanTarget struct {
	name string
	data []byte
}

var scanCmd = &cobra.Command{
	Use:   "scan <image>",
	Short: "Look up payload hashes on VirusTotal",
	Long: `Hash the boot blob and every flashed partition payload with SHA-256 and
look the hashes up on VirusTotal. Nothing is uploaded. Requires an API key
from --api-key, virustotal.api_key or RKIMAGE_VIRUSTOTAL_API_KEY.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := bindFlags(cmd, scanFlags); err != nil {
			return err
		}
		all, _ := cmd.Flags().GetBool("all")

		vc := config.Instance.VirusTotal
		client, err := newHashLookup(vtutil.ClientConfig{
			APIKey:          vc.APIKey,
			RateLimitPerMin: vc.RateLimitPerMin,
			RetryCount:      vc.RetryCount,
			RetryDelay:      vc.RetryDelay,
			CacheSize:       vc.CacheSize,
			CacheTTL:        vc.CacheTTL,
		})
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

		var targets []scanTarget
		if container != nil {
			targets = append(targets, scanTarget{name: "BOOT", data: container.Boot})
		}
		for _, p := range archive.Partitions {
			if p.Flashed() || all {
				targets = append(targets, scanTarget{name: p.Name, data: p.Data})
			}
		}

		report := scanReport{Results: scan(cmd.Context(), client, targets)}

		failed := 0
		for _, r := range report.Results {
			if r.Error != "" {
				failed++
			}
		}
		logger.WithFields(map[string]interface{}{"image": args[0]}).Infow("Scan complete",
			"lookups", len(report.Results),
			"failed", failed)

		if !tableOutput() {
			err = encode(cmd, report)
		} else {
			err = printScan(cmd, report)
		}
		if err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d lookups failed", failed, len(report.Results))
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().String("api-key", "", "VirusTotal API key")
	scanCmd.Flags().BoolP("all", "a", false, "Include partitions that are not flashed")
}

func scan(ctx context.Context, client hashLookup, targets []scanTarget) []scanResult {
	results := make([]scanResult, len(targets))

	p := pool.New().WithMaxGoroutines(scanLookups)
	for i, t := range targets {
		i, t := i, t
		p.Go(func() {
			r := scanResult{
				Name:   t.name,
				Size:   len(t.data),
				SHA256: cryptoutil.Sum(t.data).SHA256,
			}

			report, err := client.LookupHash(ctx, r.SHA256)
			switch {
			case errors.Is(err, vtutil.ErrNotFound):
				r.Verdict = "not found"
			case err != nil:
				r.Verdict = "error"
				r.Error = err.Error()
				logger.LogError("VirusTotal lookup failed", err, map[string]interface{}{
					"partition": t.name,
					"sha256":    r.SHA256,
				})
			default:
				r.Verdict = report.ThreatLevel().String()
				r.Malicious = report.Malicious
				r.Suspicious = report.Suspicious
				r.Engines = report.TotalCount
				r.Permalink = report.Permalink
			}
			results[i] = r
		})
	}
	p.Wait()
	return results
}

func printScan(cmd *cobra.Command, report scanReport) error {
	tw := newTable(cmd.OutOrStdout())
	fmt.Fprintln(tw, "NAME\tSIZE\tSHA256\tVERDICT\tDETECTIONS")
	for _, r := range report.Results {
		detections := "-"
		if r.Engines > 0 {
			detections = fmt.Sprintf("%d/%d", r.Malicious, r.Engines)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", r.Name, r.Size, r.SHA256, r.Verdict, detections)
	}
	return tw.Flush()
}
