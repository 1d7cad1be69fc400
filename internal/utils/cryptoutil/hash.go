// Package cryptoutil hashes partition payloads.
package cryptoutil

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/deploymenttheory/go-rkimage/internal/utils/errors"
)

// Bytes2Hex encodes a byte slice to hex string
func Bytes2Hex(d []byte) string {
	return hex.EncodeToString(d)
}

// HashAlgorithm represents supported hash algorithms
type HashAlgorithm string

const (
	// MD5 is what Rockchip tools append to RKFW images
	MD5 HashAlgorithm = "md5"

	SHA1   HashAlgorithm = "sha1"
	SHA256 HashAlgorithm = "sha256"
	SHA512 HashAlgorithm = "sha512"
)

// Hasher provides an interface for hashing operations
type Hasher interface {
	// Hash hashes the provided data
	Hash(data []byte) (string, error)

	// HashReader hashes data from a reader
	HashReader(reader io.Reader) (string, error)

	// NewHashWriter creates a writer for streaming hash calculation
	NewHashWriter() *HashWriter

	// Verify checks if the provided hash matches the calculated hash for the data
	Verify(data []byte, expectedHash string) (bool, error)
}

type hasherImpl struct {
	algorithm HashAlgorithm
	newHash   func() hash.Hash
}

// NewHasher creates a new Hasher for the specified algorithm
func NewHasher(algorithm HashAlgorithm) (Hasher, error) {
	newHashFunc, err := hashFunc(algorithm)
	if err != nil {
		return nil, err
	}

	return &hasherImpl{
		algorithm: algorithm,
		newHash:   newHashFunc,
	}, nil
}

func hashFunc(algorithm HashAlgorithm) (func() hash.Hash, error) {
	switch HashAlgorithm(strings.ToLower(string(algorithm))) {
	case MD5:
		return md5.New, nil
	case SHA1:
		return sha1.New, nil
	case SHA256:
		return sha256.New, nil
	case SHA512:
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("%w: unsupported hash algorithm '%s'", errors.ErrInvalidArgument, algorithm)
	}
}

// Hash hashes the provided data
func (h *hasherImpl) Hash(data []byte) (string, error) {
	hasher := h.newHash()
	if _, err := hasher.Write(data); err != nil {
		return "", fmt.Errorf("hash operation failed: %w", err)
	}
	return Bytes2Hex(hasher.Sum(nil)), nil
}

// HashReader hashes data from a reader
func (h *hasherImpl) HashReader(reader io.Reader) (string, error) {
	hasher := h.newHash()
	if _, err := io.Copy(hasher, reader); err != nil {
		return "", fmt.Errorf("hash operation failed: %w", err)
	}
	return Bytes2Hex(hasher.Sum(nil)), nil
}

// NewHashWriter creates a writer for streaming hash calculation
func (h *hasherImpl) NewHashWriter() *HashWriter {
	return &HashWriter{hash: h.newHash()}
}

// Verify checks if the provided hash matches the calculated hash for the data
func (h *hasherImpl) Verify(data []byte, expectedHash string) (bool, error) {
	actualHash, err := h.Hash(data)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(actualHash, expectedHash), nil
}

// Digests holds the hex digests recorded for a partition payload.
type Digests struct {
	MD5    string `json:"md5" yaml:"md5" xml:"md5" plist:"md5"`
	SHA1   string `json:"sha1" yaml:"sha1" xml:"sha1" plist:"sha1"`
	SHA256 string `json:"sha256" yaml:"sha256" xml:"sha256" plist:"sha256"`
}

// Sum computes MD5, SHA-1 and SHA-256 of data in a single pass.
func Sum(data []byte) Digests {
	m, s1, s256 := md5.New(), sha1.New(), sha256.New()
	w := io.MultiWriter(m, s1, s256)
	// hash.Hash writes never fail
	_, _ = w.Write(data)

	return Digests{
		MD5:    Bytes2Hex(m.Sum(nil)),
		SHA1:   Bytes2Hex(s1.Sum(nil)),
		SHA256: Bytes2Hex(s256.Sum(nil)),
	}
}
