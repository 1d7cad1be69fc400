package compression

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"testing"

	"github.com/dsnet/compress/bzip2"
	"github.com/ulikunitz/xz"

	rkerrors "github.com/deploymenttheory/go-rkimage/internal/utils/errors"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{input: "", want: None},
		{input: "none", want: None},
		{input: "GZIP", want: Gzip},
		{input: "gz", want: Gzip},
		{input: "xz", want: XZ},
		{input: " bz2 ", want: Bzip2},
		{input: "zstd", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		if tt.wantErr {
			if !errors.Is(err, rkerrors.ErrUnsupportedCompression) {
				t.Errorf("ParseFormat(%q) error = %v, want ErrUnsupportedCompression", tt.input, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v, want %q", tt.input, got, err, tt.want)
		}
	}
}

func TestCompressBytes(t *testing.T) {
	payload := bytes.Repeat([]byte("ANDROID!boot image payload "), 64)

	decoders := map[Format]func(io.Reader) (io.Reader, error){
		None: func(r io.Reader) (io.Reader, error) { return r, nil },
		Gzip: func(r io.Reader) (io.Reader, error) { return gzip.NewReader(r) },
		XZ:   func(r io.Reader) (io.Reader, error) { return xz.NewReader(r) },
		Bzip2: func(r io.Reader) (io.Reader, error) {
			return bzip2.NewReader(r, nil)
		},
	}

	for format, decode := range decoders {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			n, err := CompressBytes(payload, &buf, format)
			if err != nil {
				t.Fatalf("CompressBytes failed: %v", err)
			}
			if n != int64(len(payload)) {
				t.Errorf("consumed %d bytes, want %d", n, len(payload))
			}
			if format != None && DetectFormat(buf.Bytes()) != format {
				t.Errorf("DetectFormat on output = %q", DetectFormat(buf.Bytes()))
			}

			r, err := decode(&buf)
			if err != nil {
				t.Fatalf("open decoder: %v", err)
			}
			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("decompress: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("round trip mismatch")
			}
		})
	}
}

func TestNewWriterUnsupported(t *testing.T) {
	if _, err := NewWriter(Format("lz4"), io.Discard); !errors.Is(err, rkerrors.ErrUnsupportedCompression) {
		t.Errorf("NewWriter(lz4) = %v, want ErrUnsupportedCompression", err)
	}
}

func TestExtension(t *testing.T) {
	want := map[Format]string{None: "", Gzip: ".gz", XZ: ".xz", Bzip2: ".bz2"}
	for f, ext := range want {
		if got := f.Extension(); got != ext {
			t.Errorf("%s.Extension() = %q, want %q", f, got, ext)
		}
	}
}

func TestDetectFormatPlain(t *testing.T) {
	if got := DetectFormat([]byte("RKFW")); got != None {
		t.Errorf("DetectFormat(RKFW) = %q, want none", got)
	}
}
