package rkimage

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SectorSize is the unit of mtdparts sizes and offsets in parameter files.
const SectorSize = 512

// maxSectors is the largest sector count whose byte value fits in a uint64.
const maxSectors = math.MaxUint64 / SectorSize

// MtdPartition is one partition of an mtdparts definition. Offset and Size
// are in sectors.
type MtdPartition struct {
	Device   string
	Name     string
	Offset   uint64
	Size     uint64
	Grow     bool // size "-": extends to the end of the device
	ReadOnly bool
}

// OffsetBytes returns the partition offset in bytes.
func (p MtdPartition) OffsetBytes() uint64 { return p.Offset * SectorSize }

// SizeBytes returns the partition size in bytes. It is zero for a growing
// partition.
func (p MtdPartition) SizeBytes() uint64 { return p.Size * SectorSize }

// ParseMtdParts extracts and parses the "mtdparts=" definition from a kernel
// command line, e.g.
//
//	mtdparts=rk29xxnand:0x00002000@0x00004000(uboot),-@0x0030a000(userdata:grow)
//
// Partitions without an explicit offset follow the previous one. Offsets and
// sizes whose end or byte value does not fit in 64 bits are rejected.
func ParseMtdParts(cmdline string) ([]MtdPartition, error) {
	def := ""
	for _, field := range strings.Fields(cmdline) {
		if v, ok := strings.CutPrefix(field, "mtdparts="); ok {
			def = v
			break
		}
	}
	if def == "" {
		return nil, fmt.Errorf("%w: no mtdparts= in command line", ErrInvalidMtdParts)
	}

	var parts []MtdPartition
	for _, dev := range strings.Split(def, ";") {
		id, list, ok := strings.Cut(dev, ":")
		if !ok || id == "" || list == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidMtdParts, dev)
		}

		var next uint64
		for _, part := range strings.Split(list, ",") {
			p, err := parseMtdPartition(part, next)
			if err != nil {
				return nil, err
			}
			p.Device = id
			parts = append(parts, p)
			next = p.Offset + p.Size
		}
	}
	return parts, nil
}

// parseMtdPartition parses "<size>[@<offset>](<name>[:grow])[ro]".
func parseMtdPartition(part string, next uint64) (MtdPartition, error) {
	var p MtdPartition

	open := strings.IndexByte(part, '(')
	closing := strings.LastIndexByte(part, ')')
	if open < 0 || closing < open {
		return p, fmt.Errorf("%w: missing name in %q", ErrInvalidMtdParts, part)
	}
	name := part[open+1 : closing]
	switch suffix := part[closing+1:]; suffix {
	case "":
	case "ro":
		p.ReadOnly = true
	default:
		return p, fmt.Errorf("%w: unknown flags %q in %q", ErrInvalidMtdParts, suffix, part)
	}
	if n, ok := strings.CutSuffix(name, ":grow"); ok {
		name = n
		p.Grow = true
	}
	if name == "" {
		return p, fmt.Errorf("%w: empty name in %q", ErrInvalidMtdParts, part)
	}
	p.Name = name

	size, offset, hasOffset := strings.Cut(part[:open], "@")
	if size == "-" {
		p.Grow = true
	} else {
		v, err := strconv.ParseUint(size, 0, 64)
		if err != nil {
			return p, fmt.Errorf("%w: size %q in %q", ErrInvalidMtdParts, size, part)
		}
		p.Size = v
	}

	p.Offset = next
	if hasOffset {
		v, err := strconv.ParseUint(offset, 0, 64)
		if err != nil {
			return p, fmt.Errorf("%w: offset %q in %q", ErrInvalidMtdParts, offset, part)
		}
		p.Offset = v
	}

	if p.Size > maxSectors || p.Offset > maxSectors {
		return p, fmt.Errorf("%w: %q exceeds the addressable range", ErrInvalidMtdParts, part)
	}
	if p.Offset > maxSectors-p.Size {
		return p, fmt.Errorf("%w: end of %q exceeds the addressable range", ErrInvalidMtdParts, part)
	}
	return p, nil
}
