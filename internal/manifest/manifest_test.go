package manifest

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
	"howett.net/plist"

	"github.com/deploymenttheory/go-rkimage/internal/rkimage"
	"github.com/deploymenttheory/go-rkimage/internal/rkimage/rkimagetest"
	"github.com/deploymenttheory/go-rkimage/internal/utils/cryptoutil"
	rkerrors "github.com/deploymenttheory/go-rkimage/internal/utils/errors"
)

func sampleManifest(t *testing.T) (*Manifest, *rkimage.Archive) {
	t.Helper()
	c, err := rkimage.DecodeContainer(rkimagetest.SampleImage())
	if err != nil {
		t.Fatalf("DecodeContainer failed: %v", err)
	}
	a, err := rkimage.DecodeArchive(c.Firmware)
	if err != nil {
		t.Fatalf("DecodeArchive failed: %v", err)
	}
	m, err := Build(c, a, 4)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return m, a
}

func TestBuild(t *testing.T) {
	m, a := sampleManifest(t)

	if m.Format != "RKFW" || m.Container == nil {
		t.Fatalf("format = %s, container = %v", m.Format, m.Container)
	}
	if m.Container.Version != "8.1.0" || m.Container.ChipType != "R388" || m.Container.BuildTime != "2024-05-17T10:30:45Z" {
		t.Errorf("unexpected container info %+v", m.Container)
	}
	if m.Container.BootDigests == nil || *m.Container.BootDigests != cryptoutil.Sum([]byte(rkimagetest.BootBlob)) {
		t.Errorf("boot digests = %+v", m.Container.BootDigests)
	}
	if m.Archive.Model != rkimagetest.Model || m.Archive.PartitionCount != int32(len(a.Partitions)) {
		t.Errorf("unexpected archive info %+v", m.Archive)
	}

	if len(m.Partitions) != len(a.Partitions) {
		t.Fatalf("got %d partitions", len(m.Partitions))
	}
	for i, p := range a.Partitions {
		got := m.Partitions[i]
		if got.Index != i || got.Name != p.Name || got.Size != len(p.Data) || got.Flashed != p.Flashed() {
			t.Errorf("partition %d = %+v", i, got)
		}
		if got.Digests == nil || *got.Digests != cryptoutil.Sum(p.Data) {
			t.Errorf("partition %s digests = %+v", p.Name, got.Digests)
		}
	}
	if m.Partitions[1].Compression != "parm" || m.Partitions[3].Compression != "none" {
		t.Errorf("compression labels = %q, %q", m.Partitions[1].Compression, m.Partitions[3].Compression)
	}

	if len(m.Parameters) != 6 || m.Parameters[0] != (Parameter{Key: "FIRMWARE_VER", Value: "8.1"}) {
		t.Errorf("parameters = %+v", m.Parameters)
	}
	if len(m.MtdParts) != 4 || m.MtdParts[0].Name != "uboot" || m.MtdParts[0].Offset != 0x4000*rkimage.SectorSize {
		t.Errorf("mtdparts = %+v", m.MtdParts)
	}
	if len(m.Warnings) != 0 {
		t.Errorf("unexpected warnings %v", m.Warnings)
	}
}

func TestBuildBareArchive(t *testing.T) {
	a, err := rkimage.DecodeArchive(rkimagetest.BuildArchive([]rkimagetest.Partition{
		{Name: "boot", Path: "boot.img", Data: []byte{0x1f, 0x8b, 0x08}},
	}))
	if err != nil {
		t.Fatal(err)
	}

	m, err := Build(nil, a, 0)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if m.Format != "RKAF" || m.Container != nil {
		t.Errorf("format = %s, container = %+v", m.Format, m.Container)
	}
	if m.Partitions[0].Compression != "gzip" {
		t.Errorf("compression = %q, want gzip", m.Partitions[0].Compression)
	}
	if len(m.Parameters) != 0 || len(m.Warnings) != 0 {
		t.Errorf("archive without parameter partition produced %v / %v", m.Parameters, m.Warnings)
	}
}

func TestBuildBadParameterIsWarning(t *testing.T) {
	a, err := rkimage.DecodeArchive(rkimagetest.BuildArchive([]rkimagetest.Partition{
		{Name: "parameter", Path: "parameter.txt", Data: []byte("not a table")},
	}))
	if err != nil {
		t.Fatal(err)
	}

	m, err := Build(nil, a, 1)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(m.Warnings) != 1 || !strings.Contains(m.Warnings[0], "PARM") {
		t.Errorf("warnings = %v", m.Warnings)
	}
}

func TestWrite(t *testing.T) {
	m, _ := sampleManifest(t)

	decoders := map[string]func([]byte, *Manifest) error{
		"json": func(b []byte, out *Manifest) error { return json.Unmarshal(b, out) },
		"yaml": func(b []byte, out *Manifest) error { return yaml.Unmarshal(b, out) },
		"xml":  func(b []byte, out *Manifest) error { return xml.Unmarshal(b, out) },
		"plist": func(b []byte, out *Manifest) error {
			_, err := plist.Unmarshal(b, out)
			return err
		},
		"bplist": func(b []byte, out *Manifest) error {
			_, err := plist.Unmarshal(b, out)
			return err
		},
	}

	for format, decode := range decoders {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Write(&buf, m, format); err != nil {
				t.Fatalf("Write failed: %v", err)
			}

			var got Manifest
			if err := decode(buf.Bytes(), &got); err != nil {
				t.Fatalf("decode %s: %v\n%s", format, err, buf.String())
			}
			if got.Format != m.Format || got.Archive != m.Archive {
				t.Errorf("headers differ: %+v", got)
			}
			if len(got.Partitions) != len(m.Partitions) || got.Partitions[3].Digests == nil || *got.Partitions[3].Digests != *m.Partitions[3].Digests {
				t.Errorf("partitions differ: %+v", got.Partitions)
			}
			if len(got.Parameters) != len(m.Parameters) || got.Parameters[1] != m.Parameters[1] {
				t.Errorf("parameters differ: %+v", got.Parameters)
			}
		})
	}

	var buf bytes.Buffer
	if err := Write(&buf, m, "xml"); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "<?xml") || !strings.Contains(buf.String(), `<parameter key="TYPE">GPT</parameter>`) {
		t.Errorf("unexpected xml:\n%s", buf.String())
	}
}

func TestDescribeSkipsDigests(t *testing.T) {
	c, err := rkimage.DecodeContainer(rkimagetest.SampleImage())
	if err != nil {
		t.Fatal(err)
	}
	a, err := rkimage.DecodeArchive(c.Firmware)
	if err != nil {
		t.Fatal(err)
	}

	m, err := Describe(c, a)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if m.Container.BootDigests != nil {
		t.Errorf("Describe hashed the boot blob")
	}
	for _, p := range m.Partitions {
		if p.Digests != nil {
			t.Errorf("Describe hashed partition %s", p.Name)
		}
	}

	var buf bytes.Buffer
	if err := Write(&buf, m, "json"); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "sha256") {
		t.Errorf("digests present in output:\n%s", buf.String())
	}
}

func TestWriteUnsupportedFormat(t *testing.T) {
	m, _ := sampleManifest(t)
	if err := Write(&bytes.Buffer{}, m, "csv"); !errors.Is(err, rkerrors.ErrUnsupportedOutputFormat) {
		t.Errorf("Write(csv) = %v, want ErrUnsupportedOutputFormat", err)
	}
}
