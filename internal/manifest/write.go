package manifest

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
	"howett.net/plist"

	"github.com/deploymenttheory/go-rkimage/internal/utils/errors"
)

// Formats lists the encodings accepted by Write.
var Formats = []string{"json", "yaml", "xml", "plist", "bplist"}

// Write encodes m to w as json, yaml, xml, plist (XML property list) or
// bplist (binary property list).
func Write(w io.Writer, m *Manifest, format string) error {
	return Encode(w, m, format)
}

// Encode writes any manifest fragment in one of Formats. Values encoded as
// xml need an XMLName or a named type to give the root element.
func Encode(w io.Writer, v interface{}, format string) error {
	var err error

	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(v)

	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err = enc.Encode(v); err == nil {
			err = enc.Close()
		}

	case "xml":
		if _, err = io.WriteString(w, xml.Header); err != nil {
			break
		}
		enc := xml.NewEncoder(w)
		enc.Indent("", "  ")
		if err = enc.Encode(v); err == nil {
			_, err = io.WriteString(w, "\n")
		}

	case "plist":
		enc := plist.NewEncoderForFormat(w, plist.XMLFormat)
		enc.Indent("\t")
		err = enc.Encode(v)

	case "bplist":
		err = plist.NewEncoderForFormat(w, plist.BinaryFormat).Encode(v)

	default:
		return fmt.Errorf("%w: %q (want one of %s)", errors.ErrUnsupportedOutputFormat, format, strings.Join(Formats, ", "))
	}

	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrManifestEncode, err)
	}
	return nil
}
