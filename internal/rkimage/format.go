package rkimage

import (
	"bytes"
	"fmt"
)

// Format identifies which layer a buffer starts with.
type Format int

const (
	FormatUnknown Format = iota
	FormatRKFW
	FormatRKAF
	FormatParameter
)

func (f Format) String() string {
	switch f {
	case FormatRKFW:
		return "RKFW"
	case FormatRKAF:
		return "RKAF"
	case FormatParameter:
		return "PARM"
	default:
		return "unknown"
	}
}

// Sniff reports the format of buf from its leading magic.
func Sniff(buf []byte) Format {
	switch {
	case bytes.HasPrefix(buf, []byte(ContainerMagic)):
		return FormatRKFW
	case bytes.HasPrefix(buf, []byte(ArchiveMagic)):
		return FormatRKAF
	case bytes.HasPrefix(buf, []byte(ParameterMagic)):
		return FormatParameter
	default:
		return FormatUnknown
	}
}

// FormatVersion renders a packed version field as major.minor.patch, with the
// major and minor numbers in the top two bytes and the patch in the low 16
// bits.
func FormatVersion(v uint32) string {
	return fmt.Sprintf("%d.%d.%d", v>>24, (v>>16)&0xff, v&0xffff)
}

// FormatChipType renders the chip type as text, in storage order, when all
// four bytes are printable ASCII, and in hex otherwise.
func FormatChipType(v uint32) string {
	b := []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("0x%08x", v)
		}
	}
	return string(b)
}
