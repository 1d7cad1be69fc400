package rkimage

import (
	"errors"
	"fmt"
)

// Decode error kinds. Every error returned by a decoder in this package wraps
// exactly one of these; match them with errors.Is.
var (
	// Structural errors
	ErrBadMagic               = errors.New("bad magic")
	ErrBadHeaderLength        = errors.New("bad header length")
	ErrTruncatedInput         = errors.New("truncated input")
	ErrInvalidText            = errors.New("invalid text field")
	ErrNegativePartitionCount = errors.New("negative partition count")

	// Bounds errors
	ErrOffsetOutOfBounds         = errors.New("offset out of bounds")
	ErrDeclaredSizeExceedsBuffer = errors.New("declared size exceeds buffer")
	ErrPartitionOutOfBounds      = errors.New("partition out of bounds")

	// Lookup and verification errors
	ErrPartitionNotFound = errors.New("partition not found")
	ErrInvalidMtdParts   = errors.New("invalid mtdparts definition")
	ErrDigestMismatch    = errors.New("image digest mismatch")
)

// Layer names used in DecodeError.
const (
	LayerContainer = "RKFW"
	LayerArchive   = "RKAF"
	LayerPartition = "partition"
	LayerParameter = "PARM"
	LayerDigest    = "digest"
)

// DecodeError carries the position of a decode failure.
type DecodeError struct {
	Err    error  // One of the sentinel kinds above
	Layer  string // Format layer being decoded
	Field  string // Field or region that failed
	Offset int    // Byte offset of the field within the layer's buffer
	Detail string // Additional details, usually the offending values
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s at offset %d [%s]: %v", e.Layer, e.Field, e.Offset, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s at offset %d: %v", e.Layer, e.Field, e.Offset, e.Err)
}

// Unwrap returns the underlying error kind
func (e *DecodeError) Unwrap() error {
	return e.Err
}

func newDecodeError(err error, layer, field string, offset int, detail string) error {
	return &DecodeError{
		Err:    err,
		Layer:  layer,
		Field:  field,
		Offset: offset,
		Detail: detail,
	}
}

// IsBoundsError reports whether err was caused by an offset or size field
// addressing past the end of its buffer.
func IsBoundsError(err error) bool {
	return errors.Is(err, ErrOffsetOutOfBounds) ||
		errors.Is(err, ErrDeclaredSizeExceedsBuffer) ||
		errors.Is(err, ErrPartitionOutOfBounds) ||
		errors.Is(err, ErrTruncatedInput)
}

// IsFormatError reports whether err means the input is not the expected format
// at all, as opposed to a recognised but damaged image.
func IsFormatError(err error) bool {
	return errors.Is(err, ErrBadMagic) || errors.Is(err, ErrBadHeaderLength)
}
