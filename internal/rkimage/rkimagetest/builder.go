// Package rkimagetest builds synthetic Rockchip firmware images for tests.
//
// Images are laid out the way the Rockchip packing tools lay them out:
// headers first, then payloads in entry order.
package rkimagetest

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
)

// Layout constants, duplicated here so the rkimage package can use this
// builder from its own tests.
const (
	ContainerHeaderSize = 102
	ArchiveHeaderSize   = 140
	PartitionEntrySize  = 112
	NotFlashed          = 0xFFFFFFFF

	// Values written into every built header.
	Version      = 0x08010000
	MergeVersion = 0x01000000
	ChipType     = 0x38383352
	Model        = "RK3588 EVB"
	Manufacturer = "rockchip"
	BootBlob     = "LOADER-BLOB"
)

// Partition describes one archive entry and its payload.
type Partition struct {
	Name  string
	Path  string
	Flash uint32
	Space uint32
	Data  []byte
}

// ContainerHeader returns a 102-byte RKFW header with the given regions and a
// build time of 2024-05-17 10:30:45.
func ContainerHeader(bootOff, bootSize, fwOff, fwSize uint32) []byte {
	h := make([]byte, ContainerHeaderSize)
	copy(h, "RKFW")
	binary.LittleEndian.PutUint16(h[4:], ContainerHeaderSize)
	binary.LittleEndian.PutUint32(h[6:], Version)
	binary.LittleEndian.PutUint32(h[10:], MergeVersion)
	binary.LittleEndian.PutUint16(h[14:], 2024)
	h[16], h[17], h[18], h[19], h[20] = 5, 17, 10, 30, 45
	binary.LittleEndian.PutUint32(h[21:], ChipType)
	binary.LittleEndian.PutUint32(h[25:], bootOff)
	binary.LittleEndian.PutUint32(h[29:], bootSize)
	binary.LittleEndian.PutUint32(h[33:], fwOff)
	binary.LittleEndian.PutUint32(h[37:], fwSize)
	return h
}

// BuildContainer places boot right after the header and the archive after
// boot.
func BuildContainer(boot, archive []byte) []byte {
	bootOff := uint32(ContainerHeaderSize)
	fwOff := bootOff + uint32(len(boot))
	buf := ContainerHeader(bootOff, uint32(len(boot)), fwOff, uint32(len(archive)))
	buf = append(buf, boot...)
	return append(buf, archive...)
}

// WithDigest returns a copy of buf with the ASCII-hex MD5 trailer appended.
func WithDigest(buf []byte) []byte {
	sum := md5.Sum(buf)
	out := append([]byte{}, buf...)
	return append(out, hex.EncodeToString(sum[:])...)
}

// ArchiveHeader returns a 140-byte RKAF header.
func ArchiveHeader(size uint32, model, manufacturer string, count int32) []byte {
	h := make([]byte, ArchiveHeaderSize)
	copy(h, "RKAF")
	binary.LittleEndian.PutUint32(h[4:], size)
	copy(h[8:72], model)
	copy(h[72:132], manufacturer)
	binary.LittleEndian.PutUint32(h[132:], Version)
	binary.LittleEndian.PutUint32(h[136:], uint32(count))
	return h
}

// PartitionEntry returns a 112-byte partition record.
func PartitionEntry(name, path string, fileOff, flash, space, fileSize uint32) []byte {
	e := make([]byte, PartitionEntrySize)
	copy(e[:32], name)
	copy(e[32:96], path)
	binary.LittleEndian.PutUint32(e[96:], fileOff)
	binary.LittleEndian.PutUint32(e[100:], flash)
	binary.LittleEndian.PutUint32(e[104:], space)
	binary.LittleEndian.PutUint32(e[108:], fileSize)
	return e
}

// BuildArchive returns an RKAF archive holding parts in order.
func BuildArchive(parts []Partition) []byte {
	dataOff := ArchiveHeaderSize + len(parts)*PartitionEntrySize
	total := dataOff
	for _, p := range parts {
		total += len(p.Data)
	}

	buf := ArchiveHeader(uint32(total), Model, Manufacturer, int32(len(parts)))
	off := dataOff
	for _, p := range parts {
		buf = append(buf, PartitionEntry(p.Name, p.Path, uint32(off), p.Flash, p.Space, uint32(len(p.Data)))...)
		off += len(p.Data)
	}
	for _, p := range parts {
		buf = append(buf, p.Data...)
	}
	return buf
}

// BuildParameter returns a PARM table holding text.
func BuildParameter(text string, checksum uint32) []byte {
	buf := []byte("PARM")
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(text)))
	buf = append(buf, text...)
	return binary.LittleEndian.AppendUint32(buf, checksum)
}

// ParameterText is the payload of the sample parameter partition.
const ParameterText = "FIRMWARE_VER: 8.1\r\n" +
	"MACHINE_MODEL: RK3588\r\n" +
	"# comment line\r\n" +
	"\r\n" +
	"MAGIC: 0x5041524B\r\n" +
	"TYPE: GPT\r\n" +
	"CMDLINE: mtdparts=rk29xxnand:0x00002000@0x00004000(uboot),0x00002000@0x00006000(misc),0x00020000(boot),-@0x00030000(userdata:grow)\r\n" +
	"uuid:rootfs=614e0000-0000-4b53-8000-1d28000054a9\r\n"

// ParameterChecksum is stored in the sample parameter table.
const ParameterChecksum = 0xdeadbeef

// SamplePartitions returns a small partition set: a not-flashed package
// file, the parameter table, two payloads, and an empty partition.
func SamplePartitions() []Partition {
	return []Partition{
		{Name: "package-file", Path: "package-file", Flash: NotFlashed, Data: []byte("# package file\n")},
		{Name: "parameter", Path: "Image/parameter.txt", Flash: 0, Space: 0x2000, Data: BuildParameter(ParameterText, ParameterChecksum)},
		{Name: "uboot", Path: "Image/uboot.img", Flash: 0x4000, Space: 0x2000, Data: []byte{0x01, 0x02, 0x03, 0x04}},
		{Name: "boot", Path: "Image/boot.img", Flash: 0x8000, Space: 0x20000, Data: []byte("ANDROID!boot")},
		{Name: "empty", Path: "Image/empty.img", Flash: 0x30000, Space: 0, Data: nil},
	}
}

// SampleArchive returns BuildArchive(SamplePartitions()).
func SampleArchive() []byte {
	return BuildArchive(SamplePartitions())
}

// SampleImage returns an RKFW image wrapping BootBlob and SampleArchive.
func SampleImage() []byte {
	return BuildContainer([]byte(BootBlob), SampleArchive())
}
