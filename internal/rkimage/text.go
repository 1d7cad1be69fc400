package rkimage

import (
	"bytes"
	"unicode/utf8"
)

// decodeText returns the text of a fixed-width field up to the first NUL
// byte, or the whole region when it contains none. Invalid UTF-8 is an
// error rather than being replaced.
func decodeText(region []byte) (string, error) {
	if i := bytes.IndexByte(region, 0); i >= 0 {
		region = region[:i]
	}
	if !utf8.Valid(region) {
		return "", ErrInvalidText
	}
	return string(region), nil
}
