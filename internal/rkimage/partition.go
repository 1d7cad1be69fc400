package rkimage

import (
	"fmt"
)

// Partition entry layout
const (
	PartitionEntrySize = 112

	nameWidth = 32
	pathWidth = 64
)

// NotFlashed is the flash offset of entries that carry data but have no
// flash location, such as the package file or the bootloader copy.
const NotFlashed uint32 = 0xFFFFFFFF

// ParameterPartitionName names the partition holding the parameter table.
const ParameterPartitionName = "parameter"

// PartitionEntry is one raw partition record from the RKAF table.
type PartitionEntry struct {
	Name          string
	Path          string
	FileOffset    uint32
	FlashOffset   uint32
	AllottedSpace uint32
	FileSize      uint32
}

// Partition is a resolved partition entry. Data is a view into the archive
// buffer.
type Partition struct {
	Name          string
	Path          string
	FlashOffset   uint32
	AllottedSpace uint32
	Data          []byte
}

// Flashed reports whether the partition has a flash location. Callers that
// act on FlashOffset must skip partitions for which this is false.
func (p Partition) Flashed() bool {
	return p.FlashOffset != NotFlashed
}

// IsParameter reports whether the partition holds the parameter table.
func (p Partition) IsParameter() bool {
	return p.Name == ParameterPartitionName
}

func decodePartitionEntry(r *fieldReader) (PartitionEntry, error) {
	var e PartitionEntry
	var err error

	if e.Name, err = r.text("name", nameWidth); err != nil {
		return e, err
	}
	if e.Path, err = r.text("path", pathWidth); err != nil {
		return e, err
	}
	if e.FileOffset, err = r.u32("file_offset"); err != nil {
		return e, err
	}
	if e.FlashOffset, err = r.u32("flash_offset"); err != nil {
		return e, err
	}
	if e.AllottedSpace, err = r.u32("use_space"); err != nil {
		return e, err
	}
	if e.FileSize, err = r.u32("file_size"); err != nil {
		return e, err
	}
	return e, nil
}

// Field positions within a partition entry
const (
	entryFileOffsetPos = 96
	entryFileSizePos   = 108
)

// ResolvePartition checks an entry's data region against the archive buffer
// and returns the partition with its data sliced out of archive. Error
// offsets are relative to the start of the entry.
func ResolvePartition(archive []byte, e PartitionEntry) (Partition, error) {
	return resolvePartition(archive, e, 0)
}

// resolvePartition is ResolvePartition for an entry stored at entryPos in
// the archive buffer.
func resolvePartition(archive []byte, e PartitionEntry, entryPos int) (Partition, error) {
	if uint64(e.FileOffset) > uint64(len(archive)) {
		return Partition{}, newDecodeError(ErrPartitionOutOfBounds, LayerPartition, "file_offset", entryPos+entryFileOffsetPos,
			fmt.Sprintf("offset 0x%x beyond archive length 0x%x", e.FileOffset, len(archive)))
	}
	if !inBounds(e.FileOffset, e.FileSize, len(archive)) {
		return Partition{}, newDecodeError(ErrPartitionOutOfBounds, LayerPartition, "file_size", entryPos+entryFileSizePos,
			fmt.Sprintf("offset 0x%x + size 0x%x = 0x%x beyond archive length 0x%x",
				e.FileOffset, e.FileSize, uint64(e.FileOffset)+uint64(e.FileSize), len(archive)))
	}

	return Partition{
		Name:          e.Name,
		Path:          e.Path,
		FlashOffset:   e.FlashOffset,
		AllottedSpace: e.AllottedSpace,
		Data:          view(archive, e.FileOffset, e.FileSize),
	}, nil
}
