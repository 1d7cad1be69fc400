package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/deploymenttheory/go-rkimage/internal/config"
	"github.com/deploymenttheory/go-rkimage/internal/imagefile"
	"github.com/deploymenttheory/go-rkimage/internal/rkimage"
	"github.com/deploymenttheory/go-rkimage/internal/rkimage/rkimagetest"
	"github.com/deploymenttheory/go-rkimage/internal/utils/cryptoutil"
	rkerrors "github.com/deploymenttheory/go-rkimage/internal/utils/errors"
	"github.com/deploymenttheory/go-rkimage/internal/utils/vtutil"
)

func TestMain(m *testing.M) {
	// Keep config lookups to the package directory.
	os.Setenv("RKIMAGE_ENV", "development")
	os.Exit(m.Run())
}

// execute runs the root command with fresh flag values and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.PersistentFlags().VisitAll(reset)
	c.Flags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func writeImage(t *testing.T, buf []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "update.img")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func sampleImagePath(t *testing.T) string {
	return writeImage(t, rkimagetest.WithDigest(rkimagetest.SampleImage()))
}

func TestInfo(t *testing.T) {
	path := sampleImagePath(t)

	out, err := execute(t, "info", path)
	if err != nil {
		t.Fatalf("info failed: %v", err)
	}
	for _, want := range []string{"RKFW", "8.1.0", "R388", rkimagetest.Model, "2024-05-17 10:30:45", "5 (4 flashed)"} {
		if !strings.Contains(out, want) {
			t.Errorf("info output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "info", "-o", "json", path)
	if err != nil {
		t.Fatalf("info -o json failed: %v", err)
	}
	var info imageInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("decode json: %v\n%s", err, out)
	}
	if info.Format != "RKFW" || info.Container == nil || info.Archive.Manufacturer != rkimagetest.Manufacturer || info.Partitions != 5 {
		t.Errorf("unexpected info %+v", info)
	}
}

func TestInfoBareArchive(t *testing.T) {
	out, err := execute(t, "info", writeImage(t, rkimagetest.SampleArchive()))
	if err != nil {
		t.Fatalf("info failed: %v", err)
	}
	if !strings.Contains(out, "RKAF") || strings.Contains(out, "Chip:") {
		t.Errorf("unexpected output for bare archive:\n%s", out)
	}
}

func TestInfoErrors(t *testing.T) {
	truncated := rkimagetest.SampleImage()[:50]

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{name: "missing file", path: filepath.Join(t.TempDir(), "nope.img"), wantErr: os.ErrNotExist},
		{name: "unknown format", path: writeImage(t, []byte("JUNKJUNKJUNK")), wantErr: imagefile.ErrUnsupportedFormat},
		{name: "truncated header", path: writeImage(t, truncated), wantErr: rkimage.ErrTruncatedInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, "info", tt.path); !errors.Is(err, tt.wantErr) {
				t.Errorf("info = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDescribeError(t *testing.T) {
	_, formatErr := rkimage.DecodeContainer([]byte("JUNK"))
	_, boundsErr := rkimage.DecodeContainer(rkimagetest.SampleImage()[:50])

	tests := []struct {
		name   string
		err    error
		prefix string
	}{
		{name: "format", err: formatErr, prefix: "not a Rockchip firmware image: "},
		{name: "bounds", err: boundsErr, prefix: "image is truncated or damaged: "},
		{name: "other", err: rkerrors.ErrOutputExists, prefix: "output file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := describeError(tt.err)
			if !errors.Is(got, tt.err) {
				t.Errorf("describeError lost the cause: %v", got)
			}
			if !strings.HasPrefix(got.Error(), tt.prefix) {
				t.Errorf("describeError() = %q, want prefix %q", got, tt.prefix)
			}
		})
	}
}

func TestPartitions(t *testing.T) {
	path := sampleImagePath(t)

	out, err := execute(t, "partitions", path)
	if err != nil {
		t.Fatalf("partitions failed: %v", err)
	}
	if strings.Contains(out, "package-file") {
		t.Errorf("not-flashed partition listed without --all:\n%s", out)
	}
	for _, want := range []string{"parameter", "uboot", "0x00004000", "boot", "empty"} {
		if !strings.Contains(out, want) {
			t.Errorf("partitions output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "partitions", "--all", path)
	if err != nil {
		t.Fatalf("partitions --all failed: %v", err)
	}
	if !strings.Contains(out, "package-file") {
		t.Errorf("--all did not list package-file:\n%s", out)
	}
}

func TestPartitionsDigests(t *testing.T) {
	out, err := execute(t, "partitions", "--digests", "-o", "json", sampleImagePath(t))
	if err != nil {
		t.Fatalf("partitions failed: %v", err)
	}

	var list partitionList
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("decode json: %v\n%s", err, out)
	}
	if len(list.Partitions) != 4 {
		t.Fatalf("got %d partitions, want 4", len(list.Partitions))
	}
	boot := list.Partitions[2]
	if boot.Name != "boot" || boot.Digests == nil || boot.Digests.SHA256 != cryptoutil.Sum([]byte("ANDROID!boot")).SHA256 {
		t.Errorf("unexpected boot entry %+v", boot)
	}
}

func TestParameter(t *testing.T) {
	path := sampleImagePath(t)

	out, err := execute(t, "parameter", path)
	if err != nil {
		t.Fatalf("parameter failed: %v", err)
	}
	if out != rkimagetest.ParameterText {
		t.Errorf("parameter text = %q", out)
	}

	out, err = execute(t, "parameter", "--entries", path)
	if err != nil {
		t.Fatalf("parameter --entries failed: %v", err)
	}
	if !strings.Contains(out, "MACHINE_MODEL") || strings.Contains(out, "# comment") {
		t.Errorf("unexpected entries:\n%s", out)
	}

	out, err = execute(t, "parameter", "--mtdparts", path)
	if err != nil {
		t.Fatalf("parameter --mtdparts failed: %v", err)
	}
	if !strings.Contains(out, "userdata") || !strings.Contains(out, "grow") || !strings.Contains(out, "0x800000") {
		t.Errorf("unexpected mtdparts:\n%s", out)
	}

	if _, err := execute(t, "parameter", "--entries", "--mtdparts", path); err == nil {
		t.Error("--entries and --mtdparts together should fail")
	}
}

func TestParameterStandaloneFile(t *testing.T) {
	path := writeImage(t, rkimagetest.BuildParameter(rkimagetest.ParameterText, rkimagetest.ParameterChecksum))

	out, err := execute(t, "parameter", "--entries", "-o", "json", path)
	if err != nil {
		t.Fatalf("parameter failed: %v", err)
	}
	var list parameterList
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("decode json: %v\n%s", err, out)
	}
	if len(list.Parameters) != 6 || list.Parameters[3].Key != "TYPE" || list.Parameters[3].Value != "GPT" {
		t.Errorf("unexpected parameters %+v", list.Parameters)
	}
}

func TestExtract(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")

	out, err := execute(t, "extract", "--dir", dir, "--workers", "2", sampleImagePath(t))
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if !strings.Contains(out, "uboot") {
		t.Errorf("extract output missing uboot:\n%s", out)
	}

	got, err := os.ReadFile(filepath.Join(dir, "03_boot.img"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "ANDROID!boot" {
		t.Errorf("03_boot.img = %q", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "boot.bin")); err != nil {
		t.Errorf("boot blob not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "00_package-file.img")); err != nil {
		t.Errorf("not-flashed partition not written: %v", err)
	}

	_, err = execute(t, "extract", "--dir", dir, sampleImagePath(t))
	if !errors.Is(err, rkerrors.ErrOutputExists) {
		t.Errorf("second extract = %v, want ErrOutputExists", err)
	}
}

func TestExtractOptions(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, "extract", "-d", dir, "-c", "gzip", "--include-unflashed=false", sampleImagePath(t))
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "02_uboot.img.gz")); err != nil {
		t.Errorf("compressed uboot not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "00_package-file.img.gz")); !os.IsNotExist(err) {
		t.Errorf("not-flashed partition written with --include-unflashed=false")
	}

	if _, err := execute(t, "extract", "-d", dir, "-c", "zstd", sampleImagePath(t)); !errors.Is(err, rkerrors.ErrConfigInvalid) {
		t.Errorf("extract -c zstd = %v, want ErrConfigInvalid", err)
	}
}

func TestManifest(t *testing.T) {
	out := filepath.Join(t.TempDir(), "manifest.xml")

	if _, err := execute(t, "manifest", "-o", "xml", "--out", out, sampleImagePath(t)); err != nil {
		t.Fatalf("manifest failed: %v", err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(got, []byte("<?xml")) || !bytes.Contains(got, []byte("<manifest>")) ||
		!bytes.Contains(got, []byte("</manifest>")) {
		t.Errorf("unexpected manifest:\n%s", got)
	}

	stdout, err := execute(t, "manifest", sampleImagePath(t))
	if err != nil {
		t.Fatalf("manifest to stdout failed: %v", err)
	}
	if !strings.HasPrefix(stdout, "{") || !strings.Contains(stdout, `"sha256"`) {
		t.Errorf("table format should fall back to json:\n%s", stdout)
	}
}

func TestVerify(t *testing.T) {
	out, err := execute(t, "verify", sampleImagePath(t))
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !strings.Contains(out, "OK") {
		t.Errorf("verify output:\n%s", out)
	}

	tampered := rkimagetest.WithDigest(rkimagetest.SampleImage())
	tampered[rkimagetest.ContainerHeaderSize] ^= 0xff
	path := writeImage(t, tampered)

	out, err = execute(t, "verify", path)
	if !errors.Is(err, rkimage.ErrDigestMismatch) {
		t.Errorf("verify tampered = %v, want ErrDigestMismatch", err)
	}
	if !strings.Contains(out, "MISMATCH") {
		t.Errorf("verify output:\n%s", out)
	}

	if _, err := execute(t, "info", "--verify-digest", path); !errors.Is(err, rkimage.ErrDigestMismatch) {
		t.Errorf("info --verify-digest = %v, want ErrDigestMismatch", err)
	}
	if _, err := execute(t, "info", path); err != nil {
		t.Errorf("info without --verify-digest failed: %v", err)
	}

	if _, err := execute(t, "verify", writeImage(t, rkimagetest.SampleArchive())); !errors.Is(err, imagefile.ErrUnsupportedFormat) {
		t.Errorf("verify on RKAF = %v, want ErrUnsupportedFormat", err)
	}
}

type fakeLookup map[string]*vtutil.FileReport

func (f fakeLookup) LookupHash(ctx context.Context, hash string) (*vtutil.FileReport, error) {
	if r, ok := f[hash]; ok {
		return r, nil
	}
	return nil, vtutil.ErrNotFound
}

func TestScan(t *testing.T) {
	bootHash := cryptoutil.Sum([]byte("ANDROID!boot")).SHA256
	fake := fakeLookup{
		bootHash: {SHA256: bootHash, Malicious: 40, TotalCount: 70},
	}

	var gotKey string
	orig := newHashLookup
	newHashLookup = func(cfg vtutil.ClientConfig) (hashLookup, error) {
		gotKey = cfg.APIKey
		return fake, nil
	}
	t.Cleanup(func() { newHashLookup = orig })

	out, err := execute(t, "scan", "--api-key", "secret", "-o", "json", sampleImagePath(t))
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if gotKey != "secret" {
		t.Errorf("api key = %q", gotKey)
	}

	var report scanReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode json: %v\n%s", err, out)
	}
	// BOOT blob plus four flashed partitions.
	if len(report.Results) != 5 || report.Results[0].Name != "BOOT" {
		t.Fatalf("unexpected results %+v", report.Results)
	}
	for _, r := range report.Results {
		want := "not found"
		if r.Name == "boot" {
			want = "critical"
		}
		if r.Verdict != want {
			t.Errorf("%s verdict = %q, want %q", r.Name, r.Verdict, want)
		}
	}
}

func TestScanRequiresAPIKey(t *testing.T) {
	t.Setenv("RKIMAGE_VIRUSTOTAL_API_KEY", "")
	if _, err := execute(t, "scan", sampleImagePath(t)); !errors.Is(err, rkerrors.ErrAPIKeyMissing) {
		t.Errorf("scan without key = %v, want ErrAPIKeyMissing", err)
	}
}

func TestConfigFile(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "rkimage.yaml")
	if err := os.WriteFile(cfg, []byte("output:\n  format: yaml\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := config.Reload(""); err != nil {
			t.Errorf("reset config: %v", err)
		}
	})

	out, err := execute(t, "info", "--config", cfg, sampleImagePath(t))
	if err != nil {
		t.Fatalf("info failed: %v", err)
	}
	if !strings.Contains(out, "format: RKFW") {
		t.Errorf("config output format not applied:\n%s", out)
	}

	if _, err := execute(t, "info", "--config", filepath.Join(t.TempDir(), "missing.yaml"), sampleImagePath(t)); err == nil {
		t.Error("missing explicit config file should fail")
	}
}

func TestInvalidOutputFormat(t *testing.T) {
	if _, err := execute(t, "info", "-o", "csv", sampleImagePath(t)); !errors.Is(err, rkerrors.ErrConfigInvalid) {
		t.Errorf("info -o csv = %v, want ErrConfigInvalid", err)
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if out != "rkimage dev\n" {
		t.Errorf("version = %q", out)
	}
}
