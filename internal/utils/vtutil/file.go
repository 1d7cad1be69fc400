package vtutil

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	vt "github.com/VirusTotal/vt-go"

	"github.com/deploymenttheory/go-rkimage/internal/logger"
	"github.com/deploymenttheory/go-rkimage/internal/utils/errors"
)

// LookupHash returns the VirusTotal report for an MD5, SHA-1 or SHA-256
// digest. It returns ErrNotFound when VirusTotal has never seen the file.
func (c *Client) LookupHash(ctx context.Context, hash string) (*FileReport, error) {
	hash = strings.ToLower(strings.TrimSpace(hash))
	hashType := detectHashType(hash)
	if hashType == "" {
		return nil, fmt.Errorf("%w: invalid hash %q", errors.ErrInvalidArgument, hash)
	}

	if entry, ok := c.cache.get(hash); ok {
		logger.LogDebug("Retrieved file hash lookup from cache", map[string]interface{}{
			"hash": hash,
			"type": hashType,
		})
		if entry.notFound {
			return nil, ErrNotFound
		}
		return entry.report, nil
	}

	var report *FileReport
	err := c.executeWithRetry(ctx, "file_lookup:"+hash, func() error {
		var err error
		report, err = c.lookup(ctx, hash)
		return err
	})
	if err != nil {
		err = classify(err)
		if err == ErrNotFound {
			c.cache.add(hash, cacheEntry{notFound: true})
		}
		return nil, err
	}

	c.cache.add(hash, cacheEntry{report: report})
	return report, nil
}

// parseFileObject converts a VirusTotal file object into a FileReport
func parseFileObject(obj *vt.Object) *FileReport {
	r := &FileReport{}

	r.SHA256, _ = obj.GetString("sha256")
	r.SHA1, _ = obj.GetString("sha1")
	r.MD5, _ = obj.GetString("md5")

	r.Name, _ = obj.GetString("meaningful_name")
	if r.Name == "" {
		r.Name, _ = obj.GetString("name")
	}
	r.Type, _ = obj.GetString("type_description")
	if r.Type == "" {
		r.Type, _ = obj.GetString("type_tag")
	}
	if size, err := obj.GetInt64("size"); err == nil {
		r.Size = size
	}
	if date, err := obj.GetTime("last_analysis_date"); err == nil {
		r.LastAnalysis = date
	}
	if tags, err := obj.GetStringSlice("tags"); err == nil {
		r.Tags = tags
	}

	if raw, err := obj.Get("last_analysis_stats"); err == nil {
		if stats, ok := raw.(map[string]interface{}); ok {
			applyStats(r, stats)
		}
	}

	r.Permalink = fmt.Sprintf("https://www.virustotal.com/gui/file/%s/detection", r.SHA256)
	return r
}

func applyStats(r *FileReport, stats map[string]interface{}) {
	total := 0
	for category, raw := range stats {
		n := toInt(raw)
		total += n
		switch category {
		case "malicious":
			r.Malicious = n
		case "suspicious":
			r.Suspicious = n
		case "harmless":
			r.Harmless = n
		case "undetected":
			r.Undetected = n
		}
	}
	r.TotalCount = total
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int64:
		return int(n)
	case int:
		return n
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	default:
		return 0
	}
}

// detectHashType identifies a hex digest by its length
func detectHashType(hash string) string {
	if !isHexString(hash) {
		return ""
	}
	switch len(hash) {
	case 32:
		return "md5"
	case 40:
		return "sha1"
	case 64:
		return "sha256"
	default:
		return ""
	}
}

func isHexString(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return s != ""
}
