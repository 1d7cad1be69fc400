package rkimage

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// DigestSize is the length of the ASCII-hex MD5 trailer of an RKFW image.
const DigestSize = 2 * md5.Size

// Digest returns the stored trailer digest of an RKFW image and the MD5 of
// everything before it, both lower-case hex.
func Digest(buf []byte) (stored, computed string, err error) {
	if len(buf) < DigestSize {
		return "", "", newDecodeError(ErrTruncatedInput, LayerDigest, "trailer", 0,
			fmt.Sprintf("need %d bytes, have %d", DigestSize, len(buf)))
	}
	body := buf[:len(buf)-DigestSize]
	trailer := buf[len(buf)-DigestSize:]

	if _, err := hex.DecodeString(string(trailer)); err != nil {
		return "", "", newDecodeError(ErrInvalidText, LayerDigest, "trailer", len(body), err.Error())
	}
	sum := md5.Sum(body)
	return string(bytes.ToLower(trailer)), hex.EncodeToString(sum[:]), nil
}

// VerifyDigest checks the MD5 trailer appended to RKFW images.
func VerifyDigest(buf []byte) error {
	stored, computed, err := Digest(buf)
	if err != nil {
		return err
	}
	return CheckDigest(len(buf), stored, computed)
}

// CheckDigest compares the digests Digest returned for an image of size
// bytes and reports ErrDigestMismatch when they differ.
func CheckDigest(size int, stored, computed string) error {
	if stored != computed {
		return newDecodeError(ErrDigestMismatch, LayerDigest, "trailer", size-DigestSize,
			fmt.Sprintf("stored %s, computed %s", stored, computed))
	}
	return nil
}
