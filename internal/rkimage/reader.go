package rkimage

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
)

// fieldReader is a forward-only cursor over one layer's buffer. It reads
// little-endian scalars and fixed-width byte regions; byte regions are
// sub-slices of the source, never copies.
type fieldReader struct {
	s     cryptobyte.String
	size  int
	layer string
}

func newFieldReader(buf []byte, layer string) *fieldReader {
	return &fieldReader{s: cryptobyte.String(buf), size: len(buf), layer: layer}
}

// offset returns the number of bytes consumed so far.
func (r *fieldReader) offset() int {
	return r.size - len(r.s)
}

// remaining returns the number of unread bytes.
func (r *fieldReader) remaining() int {
	return len(r.s)
}

func (r *fieldReader) bytes(field string, n int) ([]byte, error) {
	var out []byte
	if n < 0 || !r.s.ReadBytes(&out, n) {
		return nil, r.truncated(field, n)
	}
	return out[:n:n], nil
}

func (r *fieldReader) skip(field string, n int) error {
	if n < 0 || !r.s.Skip(n) {
		return r.truncated(field, n)
	}
	return nil
}

func (r *fieldReader) u8(field string) (uint8, error) {
	var v uint8
	if !r.s.ReadUint8(&v) {
		return 0, r.truncated(field, 1)
	}
	return v, nil
}

func (r *fieldReader) u16(field string) (uint16, error) {
	b, err := r.bytes(field, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *fieldReader) u32(field string) (uint32, error) {
	b, err := r.bytes(field, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *fieldReader) i32(field string) (int32, error) {
	v, err := r.u32(field)
	return int32(v), err
}

func (r *fieldReader) magic(field string) ([4]byte, error) {
	var m [4]byte
	b, err := r.bytes(field, len(m))
	if err != nil {
		return m, err
	}
	copy(m[:], b)
	return m, nil
}

// text reads a fixed-width region and decodes it as NUL-terminated text.
func (r *fieldReader) text(field string, width int) (string, error) {
	off := r.offset()
	b, err := r.bytes(field, width)
	if err != nil {
		return "", err
	}
	s, err := decodeText(b)
	if err != nil {
		return "", newDecodeError(err, r.layer, field, off, fmt.Sprintf("width=%d", width))
	}
	return s, nil
}

func (r *fieldReader) truncated(field string, want int) error {
	return newDecodeError(ErrTruncatedInput, r.layer, field, r.offset(),
		fmt.Sprintf("need %d bytes, have %d", want, len(r.s)))
}

// inBounds reports whether [offset, offset+size) lies within a buffer of
// length n. The sum is computed in 64 bits so it cannot wrap.
func inBounds(offset, size uint32, n int) bool {
	end := uint64(offset) + uint64(size)
	return uint64(offset) <= uint64(n) && end <= uint64(n)
}

// view returns buf[offset:offset+size] with its capacity clipped, so an
// append on the view cannot write into the rest of the buffer. Callers must
// have checked the range with inBounds.
func view(buf []byte, offset, size uint32) []byte {
	end := uint64(offset) + uint64(size)
	return buf[offset:end:end]
}

// checkMagic compares the leading signature of buf with want. A buffer too
// short to hold the signature is ErrBadMagic unless what it does hold is a
// prefix of want, in which case it is ErrTruncatedInput.
func checkMagic(buf []byte, want, layer string) error {
	n := len(want)
	if len(buf) < n {
		if string(buf) == want[:len(buf)] {
			return newDecodeError(ErrTruncatedInput, layer, "magic", 0,
				fmt.Sprintf("need %d bytes, have %d", n, len(buf)))
		}
		return newDecodeError(ErrBadMagic, layer, "magic", 0, fmt.Sprintf("got %q, want %q", buf, want))
	}
	if string(buf[:n]) != want {
		return newDecodeError(ErrBadMagic, layer, "magic", 0, fmt.Sprintf("got %q, want %q", buf[:n], want))
	}
	return nil
}
