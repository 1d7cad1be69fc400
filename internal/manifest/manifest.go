// Package manifest describes a decoded firmware image as a document listing
// its headers, partitions, payload digests and parameter table.
package manifest

import (
	"encoding/xml"
	"errors"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/deploymenttheory/go-rkimage/internal/logger"
	"github.com/deploymenttheory/go-rkimage/internal/rkimage"
	compression "github.com/deploymenttheory/go-rkimage/internal/utils/compressionutil"
	"github.com/deploymenttheory/go-rkimage/internal/utils/cryptoutil"
)

// Manifest is the document written by Write.
type Manifest struct {
	XMLName xml.Name `json:"-" yaml:"-" xml:"manifest" plist:"-"`

	Format     string          `json:"format" yaml:"format" xml:"format" plist:"format"`
	Container  *ContainerInfo  `json:"container,omitempty" yaml:"container,omitempty" xml:"container,omitempty" plist:"container,omitempty"`
	Archive    ArchiveInfo     `json:"archive" yaml:"archive" xml:"archive" plist:"archive"`
	Partitions []PartitionInfo `json:"partitions" yaml:"partitions" xml:"partitions>partition" plist:"partitions"`
	Parameters []Parameter     `json:"parameters,omitempty" yaml:"parameters,omitempty" xml:"parameters>parameter,omitempty" plist:"parameters,omitempty"`
	MtdParts   []MtdPart       `json:"mtdparts,omitempty" yaml:"mtdparts,omitempty" xml:"mtdparts>part,omitempty" plist:"mtdparts,omitempty"`
	Warnings   []string        `json:"warnings,omitempty" yaml:"warnings,omitempty" xml:"warnings>warning,omitempty" plist:"warnings,omitempty"`
}

// ContainerInfo summarizes the RKFW header.
type ContainerInfo struct {
	Version        string             `json:"version" yaml:"version" xml:"version" plist:"version"`
	MergeVersion   string             `json:"merge_version" yaml:"merge_version" xml:"merge_version" plist:"merge_version"`
	BuildTime      string             `json:"build_time" yaml:"build_time" xml:"build_time" plist:"build_time"`
	ChipType       string             `json:"chip_type" yaml:"chip_type" xml:"chip_type" plist:"chip_type"`
	BootOffset     uint32             `json:"boot_offset" yaml:"boot_offset" xml:"boot_offset" plist:"boot_offset"`
	BootSize       uint32             `json:"boot_size" yaml:"boot_size" xml:"boot_size" plist:"boot_size"`
	FirmwareOffset uint32             `json:"firmware_offset" yaml:"firmware_offset" xml:"firmware_offset" plist:"firmware_offset"`
	FirmwareSize   uint32             `json:"firmware_size" yaml:"firmware_size" xml:"firmware_size" plist:"firmware_size"`
	BootDigests    *cryptoutil.Digests `json:"boot_digests,omitempty" yaml:"boot_digests,omitempty" xml:"boot_digests,omitempty" plist:"boot_digests,omitempty"`
}

// ArchiveInfo summarizes the RKAF header.
type ArchiveInfo struct {
	Model          string `json:"model" yaml:"model" xml:"model" plist:"model"`
	Manufacturer   string `json:"manufacturer" yaml:"manufacturer" xml:"manufacturer" plist:"manufacturer"`
	Version        string `json:"version" yaml:"version" xml:"version" plist:"version"`
	Size           uint32 `json:"size" yaml:"size" xml:"size" plist:"size"`
	PartitionCount int32  `json:"partition_count" yaml:"partition_count" xml:"partition_count" plist:"partition_count"`
}

// PartitionInfo describes one archive entry and its payload.
type PartitionInfo struct {
	Index         int                `json:"index" yaml:"index" xml:"index,attr" plist:"index"`
	Name          string             `json:"name" yaml:"name" xml:"name" plist:"name"`
	Path          string             `json:"path" yaml:"path" xml:"path" plist:"path"`
	Flashed       bool               `json:"flashed" yaml:"flashed" xml:"flashed" plist:"flashed"`
	FlashOffset   uint32             `json:"flash_offset" yaml:"flash_offset" xml:"flash_offset" plist:"flash_offset"`
	AllottedSpace uint32             `json:"allotted_space" yaml:"allotted_space" xml:"allotted_space" plist:"allotted_space"`
	Size          int                `json:"size" yaml:"size" xml:"size" plist:"size"`
	Compression   string             `json:"compression" yaml:"compression" xml:"compression" plist:"compression"`
	Digests       *cryptoutil.Digests `json:"digests,omitempty" yaml:"digests,omitempty" xml:"digests,omitempty" plist:"digests,omitempty"`
}

// Parameter is one KEY: value line of the parameter table.
type Parameter struct {
	Key   string `json:"key" yaml:"key" xml:"key,attr" plist:"key"`
	Value string `json:"value" yaml:"value" xml:",chardata" plist:"value"`
}

// MtdPart is one partition of the CMDLINE mtdparts layout, in bytes.
type MtdPart struct {
	Device   string `json:"device" yaml:"device" xml:"device" plist:"device"`
	Name     string `json:"name" yaml:"name" xml:"name" plist:"name"`
	Offset   uint64 `json:"offset" yaml:"offset" xml:"offset" plist:"offset"`
	Size     uint64 `json:"size" yaml:"size" xml:"size" plist:"size"`
	Grow     bool   `json:"grow" yaml:"grow" xml:"grow" plist:"grow"`
	ReadOnly bool   `json:"read_only" yaml:"read_only" xml:"read_only" plist:"read_only"`
}

// Describe summarizes archive and, when not nil, its enclosing container
// without hashing any payload. A parameter partition that fails to parse is
// reported in Warnings.
func Describe(container *rkimage.Container, archive *rkimage.Archive) (*Manifest, error) {
	if archive == nil {
		return nil, errors.New("manifest: nil archive")
	}

	m := &Manifest{
		Format: rkimage.FormatRKAF.String(),
		Archive: ArchiveInfo{
			Model:          archive.Header.Model,
			Manufacturer:   archive.Header.Manufacturer,
			Version:        rkimage.FormatVersion(archive.Header.Version),
			Size:           archive.Header.Size,
			PartitionCount: archive.Header.PartitionCount,
		},
		Partitions: make([]PartitionInfo, len(archive.Partitions)),
	}

	if container != nil {
		h := container.Header
		m.Format = rkimage.FormatRKFW.String()
		m.Container = &ContainerInfo{
			Version:        rkimage.FormatVersion(h.Version),
			MergeVersion:   rkimage.FormatVersion(h.MergeVersion),
			BuildTime:      h.BuildTime.Time().Format(time.RFC3339),
			ChipType:       rkimage.FormatChipType(h.ChipType),
			BootOffset:     h.Boot.Offset,
			BootSize:       h.Boot.Size,
			FirmwareOffset: h.Firmware.Offset,
			FirmwareSize:   h.Firmware.Size,
		}
	}

	for i, part := range archive.Partitions {
		m.Partitions[i] = PartitionInfo{
			Index:         i,
			Name:          part.Name,
			Path:          part.Path,
			Flashed:       part.Flashed(),
			FlashOffset:   part.FlashOffset,
			AllottedSpace: part.AllottedSpace,
			Size:          len(part.Data),
			Compression:   payloadKind(part),
		}
	}

	addParameters(m, archive)
	return m, nil
}

// Build is Describe plus MD5, SHA-1 and SHA-256 digests of the boot blob and
// every partition payload, computed on up to workers goroutines.
func Build(container *rkimage.Container, archive *rkimage.Archive, workers int) (*Manifest, error) {
	m, err := Describe(container, archive)
	if err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}

	p := pool.New().WithMaxGoroutines(workers)
	if container != nil {
		p.Go(func() {
			d := cryptoutil.Sum(container.Boot)
			m.Container.BootDigests = &d
		})
	}
	for i, part := range archive.Partitions {
		i, part := i, part
		p.Go(func() {
			d := cryptoutil.Sum(part.Data)
			m.Partitions[i].Digests = &d
		})
	}
	p.Wait()

	logger.LogDebug("Built manifest", map[string]interface{}{
		"format":     m.Format,
		"partitions": len(m.Partitions),
		"parameters": len(m.Parameters),
	})
	return m, nil
}

func payloadKind(p rkimage.Partition) string {
	if p.IsParameter() && rkimage.IsParameterTable(p.Data) {
		return "parm"
	}
	return string(compression.DetectFormat(p.Data))
}

func addParameters(m *Manifest, archive *rkimage.Archive) {
	tbl, err := archive.ParameterTable()
	if err != nil {
		if !errors.Is(err, rkimage.ErrPartitionNotFound) {
			m.Warnings = append(m.Warnings, err.Error())
		}
		return
	}

	entries, err := tbl.Entries()
	if err != nil {
		m.Warnings = append(m.Warnings, err.Error())
		return
	}
	for _, e := range entries {
		m.Parameters = append(m.Parameters, Parameter{Key: e.Key, Value: e.Value})
	}

	if _, ok, _ := tbl.Lookup("CMDLINE"); !ok {
		return
	}
	parts, err := tbl.MtdParts()
	if err != nil {
		m.Warnings = append(m.Warnings, err.Error())
		return
	}
	for _, mp := range parts {
		m.MtdParts = append(m.MtdParts, MtdPart{
			Device:   mp.Device,
			Name:     mp.Name,
			Offset:   mp.OffsetBytes(),
			Size:     mp.SizeBytes(),
			Grow:     mp.Grow,
			ReadOnly: mp.ReadOnly,
		})
	}
}
