package rkimage

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ParameterMagic is the signature of a parameter table.
const ParameterMagic = "PARM"

// ParameterTable is the decoded parameter partition. Data is a view into the
// partition data passed to DecodeParameterTable.
type ParameterTable struct {
	Size     uint32
	Data     []byte
	Checksum uint32
}

// ParameterEntry is one "KEY: value" line of the parameter text.
type ParameterEntry struct {
	Key   string
	Value string
}

// DecodeParameterTable decodes the parameter table at the start of data.
// The trailing checksum is read and kept but not verified.
func DecodeParameterTable(data []byte) (*ParameterTable, error) {
	if err := checkMagic(data, ParameterMagic, LayerParameter); err != nil {
		return nil, err
	}

	r := newFieldReader(data, LayerParameter)
	if err := r.skip("magic", len(ParameterMagic)); err != nil {
		return nil, err
	}
	size, err := r.u32("size")
	if err != nil {
		return nil, err
	}
	if uint64(size) > uint64(r.remaining()) {
		return nil, newDecodeError(ErrDeclaredSizeExceedsBuffer, LayerParameter, "size", 4,
			fmt.Sprintf("declared 0x%x, remaining 0x%x", size, r.remaining()))
	}
	payload, err := r.bytes("data", int(size))
	if err != nil {
		return nil, err
	}
	checksum, err := r.u32("checksum")
	if err != nil {
		return nil, err
	}

	return &ParameterTable{Size: size, Data: payload, Checksum: checksum}, nil
}

// VerifyChecksum always succeeds: the checksum algorithm is not established
// for this format, so the stored value is carried but never checked.
//
// TODO: port the CRC routine from rkdeveloptool's crc.cpp once it has been
// confirmed against real images.
func (t *ParameterTable) VerifyChecksum() error {
	return nil
}

// Text returns the parameter payload as a string. Invalid UTF-8 is reported
// as ErrInvalidText.
func (t *ParameterTable) Text() (string, error) {
	if !utf8.Valid(t.Data) {
		return "", newDecodeError(ErrInvalidText, LayerParameter, "data", 8, "")
	}
	return string(t.Data), nil
}

// Entries parses the payload into "KEY: value" entries in file order. Blank
// lines, comment lines starting with '#', and lines without a colon are
// skipped.
func (t *ParameterTable) Entries() ([]ParameterEntry, error) {
	text, err := t.Text()
	if err != nil {
		return nil, err
	}

	var entries []ParameterEntry
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 4096), len(text)+1)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		entries = append(entries, ParameterEntry{
			Key:   strings.TrimSpace(key),
			Value: strings.TrimSpace(value),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan parameter text: %w", err)
	}
	return entries, nil
}

// Lookup returns the value of the first entry with the given key.
func (t *ParameterTable) Lookup(key string) (string, bool, error) {
	entries, err := t.Entries()
	if err != nil {
		return "", false, err
	}
	for _, e := range entries {
		if e.Key == key {
			return e.Value, true, nil
		}
	}
	return "", false, nil
}

// MtdParts parses the mtdparts definition from the CMDLINE entry.
func (t *ParameterTable) MtdParts() ([]MtdPartition, error) {
	cmdline, ok, err := t.Lookup("CMDLINE")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no CMDLINE entry", ErrInvalidMtdParts)
	}
	return ParseMtdParts(cmdline)
}

// IsParameterTable reports whether data starts with the parameter magic.
func IsParameterTable(data []byte) bool {
	return bytes.HasPrefix(data, []byte(ParameterMagic))
}
