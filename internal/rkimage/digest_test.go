package rkimage

import (
	"errors"
	"testing"

	"github.com/deploymenttheory/go-rkimage/internal/rkimage/rkimagetest"
)

func TestVerifyDigest(t *testing.T) {
	img := rkimagetest.WithDigest(rkimagetest.SampleImage())

	if err := VerifyDigest(img); err != nil {
		t.Fatalf("VerifyDigest failed on a good image: %v", err)
	}

	// The trailer sits after the archive, so the container still decodes.
	if _, err := DecodeContainer(img); err != nil {
		t.Fatalf("DecodeContainer failed on image with trailer: %v", err)
	}

	corrupt := append([]byte{}, img...)
	corrupt[ContainerHeaderSize] ^= 0xff
	if err := VerifyDigest(corrupt); !errors.Is(err, ErrDigestMismatch) {
		t.Errorf("VerifyDigest() on corrupt image = %v, want ErrDigestMismatch", err)
	}

	notHex := append([]byte{}, img...)
	notHex[len(notHex)-1] = 'z'
	if err := VerifyDigest(notHex); !errors.Is(err, ErrInvalidText) {
		t.Errorf("VerifyDigest() with non-hex trailer = %v, want ErrInvalidText", err)
	}

	if err := VerifyDigest(make([]byte, DigestSize-1)); !errors.Is(err, ErrTruncatedInput) {
		t.Errorf("VerifyDigest() on short buffer = %v, want ErrTruncatedInput", err)
	}
}

func TestSniff(t *testing.T) {
	tests := []struct {
		input []byte
		want  Format
	}{
		{rkimagetest.SampleImage(), FormatRKFW},
		{rkimagetest.BuildArchive(nil), FormatRKAF},
		{rkimagetest.BuildParameter("", 0), FormatParameter},
		{[]byte("RK"), FormatUnknown},
		{nil, FormatUnknown},
	}
	for _, tt := range tests {
		if got := Sniff(tt.input); got != tt.want {
			t.Errorf("Sniff(%q...) = %v, want %v", firstBytes(tt.input, 4), got, tt.want)
		}
	}
}

func TestFormatVersion(t *testing.T) {
	tests := map[uint32]string{
		0x08010000: "8.1.0",
		0x01000003: "1.0.3",
		0x0a0b0102: "10.11.258",
		0:          "0.0.0",
	}
	for v, want := range tests {
		if got := FormatVersion(v); got != want {
			t.Errorf("FormatVersion(0x%08x) = %q, want %q", v, got, want)
		}
	}
	if got := FormatChipType(0x00000001); got != "0x00000001" {
		t.Errorf("FormatChipType(1) = %q", got)
	}
}

func firstBytes(b []byte, n int) []byte {
	if len(b) < n {
		return b
	}
	return b[:n]
}

func TestCheckDigest(t *testing.T) {
	tests := []struct {
		name       string
		stored     string
		computed   string
		wantErr    error
		wantOffset int
	}{
		{name: "match", stored: "00ff", computed: "00ff"},
		{name: "mismatch", stored: "00ff", computed: "ff00", wantErr: ErrDigestMismatch, wantOffset: 100 - DigestSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckDigest(100, tt.stored, tt.computed)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CheckDigest() error = %v, want %v", err, tt.wantErr)
			}
			var de *DecodeError
			if errors.As(err, &de) && de.Offset != tt.wantOffset {
				t.Errorf("offset = %d, want %d", de.Offset, tt.wantOffset)
			}
		})
	}
}
