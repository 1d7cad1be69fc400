// Package rkimage decodes Rockchip firmware images.
//
// An image nests three layers. The RKFW container wraps a bootloader blob and
// an RKAF archive; the archive lists named partitions with their flash
// offsets; the partition named "parameter" holds a PARM table of
// "KEY: value" text.
//
//	c, err := rkimage.DecodeContainer(buf)
//	a, err := rkimage.DecodeArchive(c.Firmware)
//	t, err := a.ParameterTable()
//
// Decoders never copy payload bytes. Every []byte in a decoded value is a
// sub-slice of the buffer that was decoded and is only valid while that
// buffer is. Decoders do not log, retain state, or modify their input, and
// are safe to call concurrently on the same buffer.
package rkimage
