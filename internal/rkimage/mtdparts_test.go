package rkimage

import (
	"errors"
	"testing"
)

func TestParseMtdParts(t *testing.T) {
	cmdline := "console=ttyFIQ0 androidboot.baseband=N/A " +
		"mtdparts=rk29xxnand:0x00002000@0x00004000(uboot),0x00002000@0x00006000(misc)," +
		"0x00020000(boot)ro,-@0x00030000(userdata:grow) storagemedia=emmc"

	parts, err := ParseMtdParts(cmdline)
	if err != nil {
		t.Fatalf("ParseMtdParts failed: %v", err)
	}

	want := []MtdPartition{
		{Device: "rk29xxnand", Name: "uboot", Offset: 0x4000, Size: 0x2000},
		{Device: "rk29xxnand", Name: "misc", Offset: 0x6000, Size: 0x2000},
		{Device: "rk29xxnand", Name: "boot", Offset: 0x8000, Size: 0x20000, ReadOnly: true},
		{Device: "rk29xxnand", Name: "userdata", Offset: 0x30000, Grow: true},
	}
	if len(parts) != len(want) {
		t.Fatalf("got %d partitions, want %d: %+v", len(parts), len(want), parts)
	}
	for i := range want {
		if parts[i] != want[i] {
			t.Errorf("partition %d = %+v, want %+v", i, parts[i], want[i])
		}
	}

	if got := parts[0].OffsetBytes(); got != 0x4000*SectorSize {
		t.Errorf("OffsetBytes() = 0x%x", got)
	}
	if got := parts[1].SizeBytes(); got != 0x2000*SectorSize {
		t.Errorf("SizeBytes() = 0x%x", got)
	}
}

func TestParseMtdPartsMultipleDevices(t *testing.T) {
	parts, err := ParseMtdParts("mtdparts=nand0:0x100(a),0x100(b);nor0:0x10@0x0(c)")
	if err != nil {
		t.Fatalf("ParseMtdParts failed: %v", err)
	}
	if len(parts) != 3 {
		t.Fatalf("got %d partitions", len(parts))
	}
	if parts[1].Offset != 0x100 || parts[2].Device != "nor0" || parts[2].Offset != 0 {
		t.Errorf("unexpected layout: %+v", parts)
	}
}

func TestParseMtdPartsErrors(t *testing.T) {
	tests := []struct {
		name    string
		cmdline string
	}{
		{name: "no mtdparts", cmdline: "console=ttyS2"},
		{name: "missing device", cmdline: "mtdparts=0x100(a)"},
		{name: "missing name", cmdline: "mtdparts=nand:0x100@0x0"},
		{name: "empty name", cmdline: "mtdparts=nand:0x100()"},
		{name: "bad size", cmdline: "mtdparts=nand:zz(a)"},
		{name: "bad offset", cmdline: "mtdparts=nand:0x10@qq(a)"},
		{name: "unknown flag", cmdline: "mtdparts=nand:0x10(a)rw"},
		{name: "end wraps", cmdline: "mtdparts=x:0xffffffffffffffff@0xffffffffffffffff(a),0x10(b)"},
		{name: "size too large for bytes", cmdline: "mtdparts=nand:0x80000000000000(a)"},
		{name: "offset too large for bytes", cmdline: "mtdparts=nand:0x10@0x80000000000000(a)"},
		{name: "end too large for bytes", cmdline: "mtdparts=nand:0x7fffffffffffff@0x10(a)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseMtdParts(tt.cmdline); !errors.Is(err, ErrInvalidMtdParts) {
				t.Errorf("ParseMtdParts(%q) error = %v, want ErrInvalidMtdParts", tt.cmdline, err)
			}
		})
	}
}
