package rkimage

import (
	"fmt"
	"time"
)

// RKFW header layout
const (
	ContainerMagic      = "RKFW"
	ContainerHeaderSize = 0x66 // 102 bytes
	containerReserved   = 61
)

// BuildTime is the image build timestamp as stored in the RKFW header.
type BuildTime struct {
	Year   uint16
	Month  uint8
	Day    uint8
	Hour   uint8
	Minute uint8
	Second uint8
}

// Time converts the stored fields to a UTC time.Time. Out-of-range fields
// are normalised the way time.Date does.
func (t BuildTime) Time() time.Time {
	return time.Date(int(t.Year), time.Month(t.Month), int(t.Day),
		int(t.Hour), int(t.Minute), int(t.Second), 0, time.UTC)
}

func (t BuildTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", t.Year, t.Month, t.Day, t.Hour, t.Minute, t.Second)
}

// Region is an offset/size pair addressing part of the image.
type Region struct {
	Offset uint32
	Size   uint32
}

// End returns Offset+Size without wrapping.
func (r Region) End() uint64 {
	return uint64(r.Offset) + uint64(r.Size)
}

// ContainerHeader is the fixed RKFW outer header.
type ContainerHeader struct {
	Magic        [4]byte
	HeaderLength uint16
	Version      uint32
	MergeVersion uint32
	BuildTime    BuildTime
	ChipType     uint32
	Boot         Region
	Firmware     Region
	Reserved     []byte
}

// Container is a decoded RKFW image. Boot and Firmware are views into the
// buffer passed to DecodeContainer.
type Container struct {
	Header   ContainerHeader
	Boot     []byte
	Firmware []byte
}

// DecodeContainer validates the RKFW header in buf and slices the boot and
// firmware regions. The firmware region holds an RKAF archive; decode it
// with DecodeArchive.
func DecodeContainer(buf []byte) (*Container, error) {
	if err := checkMagic(buf, ContainerMagic, LayerContainer); err != nil {
		return nil, err
	}

	h, err := decodeContainerHeader(newFieldReader(buf, LayerContainer))
	if err != nil {
		return nil, err
	}
	if h.HeaderLength != ContainerHeaderSize {
		return nil, newDecodeError(ErrBadHeaderLength, LayerContainer, "header_len", 4,
			fmt.Sprintf("got 0x%x, want 0x%x", h.HeaderLength, ContainerHeaderSize))
	}
	if err := checkRegion(h.Boot, len(buf), "boot", 0x19); err != nil {
		return nil, err
	}
	if err := checkRegion(h.Firmware, len(buf), "firmware", 0x21); err != nil {
		return nil, err
	}

	return &Container{
		Header:   h,
		Boot:     view(buf, h.Boot.Offset, h.Boot.Size),
		Firmware: view(buf, h.Firmware.Offset, h.Firmware.Size),
	}, nil
}

func decodeContainerHeader(r *fieldReader) (ContainerHeader, error) {
	var h ContainerHeader
	var err error

	if h.Magic, err = r.magic("magic"); err != nil {
		return h, err
	}
	if h.HeaderLength, err = r.u16("header_len"); err != nil {
		return h, err
	}
	if h.Version, err = r.u32("version"); err != nil {
		return h, err
	}
	if h.MergeVersion, err = r.u32("merge_version"); err != nil {
		return h, err
	}
	if h.BuildTime, err = decodeBuildTime(r); err != nil {
		return h, err
	}
	if h.ChipType, err = r.u32("chip_type"); err != nil {
		return h, err
	}
	if h.Boot.Offset, err = r.u32("boot_offset"); err != nil {
		return h, err
	}
	if h.Boot.Size, err = r.u32("boot_size"); err != nil {
		return h, err
	}
	if h.Firmware.Offset, err = r.u32("firmware_offset"); err != nil {
		return h, err
	}
	if h.Firmware.Size, err = r.u32("firmware_size"); err != nil {
		return h, err
	}
	if h.Reserved, err = r.bytes("reserved", containerReserved); err != nil {
		return h, err
	}
	return h, nil
}

func decodeBuildTime(r *fieldReader) (BuildTime, error) {
	var t BuildTime
	var err error

	if t.Year, err = r.u16("build_time.year"); err != nil {
		return t, err
	}
	fields := []struct {
		name string
		dst  *uint8
	}{
		{"build_time.month", &t.Month},
		{"build_time.day", &t.Day},
		{"build_time.hour", &t.Hour},
		{"build_time.minute", &t.Minute},
		{"build_time.second", &t.Second},
	}
	for _, f := range fields {
		if *f.dst, err = r.u8(f.name); err != nil {
			return t, err
		}
	}
	return t, nil
}

// checkRegion validates a header region against the buffer length. headerOffset
// is the position of the region's offset field, reported on failure.
func checkRegion(reg Region, n int, name string, headerOffset int) error {
	if uint64(reg.Offset) > uint64(n) {
		return newDecodeError(ErrOffsetOutOfBounds, LayerContainer, name+"_offset", headerOffset,
			fmt.Sprintf("offset 0x%x beyond buffer length 0x%x", reg.Offset, n))
	}
	if !inBounds(reg.Offset, reg.Size, n) {
		return newDecodeError(ErrOffsetOutOfBounds, LayerContainer, name+"_size", headerOffset+4,
			fmt.Sprintf("end 0x%x beyond buffer length 0x%x", reg.End(), n))
	}
	return nil
}
