package rkimage

import (
	"fmt"
)

// RKAF layout
const (
	ArchiveMagic      = "RKAF"
	ArchiveHeaderSize = 140

	modelWidth        = 64
	manufacturerWidth = 60
)

// ArchiveHeader is the fixed RKAF header.
type ArchiveHeader struct {
	Magic          [4]byte
	Size           uint32
	Model          string
	Manufacturer   string
	Version        uint32
	PartitionCount int32
}

// Archive is a decoded RKAF archive. Partitions are in on-disk order, which
// is the order they are flashed in.
type Archive struct {
	Header     ArchiveHeader
	Partitions []Partition
}

// DecodeArchive validates the RKAF header in buf and resolves every
// partition entry against buf. The first bad entry fails the whole decode.
func DecodeArchive(buf []byte) (*Archive, error) {
	if err := checkMagic(buf, ArchiveMagic, LayerArchive); err != nil {
		return nil, err
	}

	r := newFieldReader(buf, LayerArchive)
	h, err := decodeArchiveHeader(r)
	if err != nil {
		return nil, err
	}

	if uint64(h.Size) > uint64(len(buf)) {
		return nil, newDecodeError(ErrDeclaredSizeExceedsBuffer, LayerArchive, "size", 4,
			fmt.Sprintf("declared 0x%x, buffer 0x%x", h.Size, len(buf)))
	}
	if h.PartitionCount < 0 {
		return nil, newDecodeError(ErrNegativePartitionCount, LayerArchive, "num_partition", 136,
			fmt.Sprintf("count=%d", h.PartitionCount))
	}

	// The count comes from the input; never reserve more entries than the
	// buffer could hold.
	capacity := int(h.PartitionCount)
	if most := r.remaining() / PartitionEntrySize; capacity > most {
		capacity = most
	}

	partitions := make([]Partition, 0, capacity)
	for i := 0; i < int(h.PartitionCount); i++ {
		pos := r.offset()
		entry, err := decodePartitionEntry(r)
		if err != nil {
			return nil, fmt.Errorf("partition entry %d: %w", i, err)
		}
		p, err := resolvePartition(buf, entry, pos)
		if err != nil {
			return nil, fmt.Errorf("partition entry %d (%s): %w", i, entry.Name, err)
		}
		partitions = append(partitions, p)
	}

	return &Archive{Header: h, Partitions: partitions}, nil
}

func decodeArchiveHeader(r *fieldReader) (ArchiveHeader, error) {
	var h ArchiveHeader
	var err error

	if h.Magic, err = r.magic("magic"); err != nil {
		return h, err
	}
	if h.Size, err = r.u32("size"); err != nil {
		return h, err
	}
	if h.Model, err = r.text("model", modelWidth); err != nil {
		return h, err
	}
	if h.Manufacturer, err = r.text("manufacturer", manufacturerWidth); err != nil {
		return h, err
	}
	if h.Version, err = r.u32("version"); err != nil {
		return h, err
	}
	if h.PartitionCount, err = r.i32("num_partition"); err != nil {
		return h, err
	}
	return h, nil
}

// Lookup returns the first partition with the given name.
func (a *Archive) Lookup(name string) (Partition, bool) {
	for _, p := range a.Partitions {
		if p.Name == name {
			return p, true
		}
	}
	return Partition{}, false
}

// ParameterTable decodes the parameter table held in the partition named
// "parameter".
func (a *Archive) ParameterTable() (*ParameterTable, error) {
	p, ok := a.Lookup(ParameterPartitionName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPartitionNotFound, ParameterPartitionName)
	}
	return DecodeParameterTable(p.Data)
}

// Flashable returns the partitions that map to a flash location, in order.
func (a *Archive) Flashable() []Partition {
	var out []Partition
	for _, p := range a.Partitions {
		if p.Flashed() {
			out = append(out, p)
		}
	}
	return out
}
