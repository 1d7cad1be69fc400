package vtutil

import (
	"time"
)

// ThreatLevel represents a standardized threat severity
type ThreatLevel int

// Threat level constants
const (
	ThreatLevelUnknown  ThreatLevel = -1
	ThreatLevelClean    ThreatLevel = 0
	ThreatLevelLow      ThreatLevel = 1
	ThreatLevelMedium   ThreatLevel = 2
	ThreatLevelHigh     ThreatLevel = 3
	ThreatLevelCritical ThreatLevel = 4
)

func (l ThreatLevel) String() string {
	switch l {
	case ThreatLevelClean:
		return "clean"
	case ThreatLevelLow:
		return "low"
	case ThreatLevelMedium:
		return "medium"
	case ThreatLevelHigh:
		return "high"
	case ThreatLevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// FileReport is the VirusTotal verdict for one payload hash.
type FileReport struct {
	SHA256 string
	SHA1   string
	MD5    string
	Name   string
	Type   string
	Size   int64

	Malicious  int
	Suspicious int
	Harmless   int
	Undetected int
	TotalCount int

	Tags         []string
	LastAnalysis time.Time
	Permalink    string
}

// ThreatLevel grades the report by the share of engines flagging the file
// as malicious.
func (r *FileReport) ThreatLevel() ThreatLevel {
	if r.TotalCount == 0 {
		return ThreatLevelUnknown
	}

	ratio := float64(r.Malicious) / float64(r.TotalCount)

	switch {
	case ratio == 0:
		return ThreatLevelClean
	case ratio < 0.05:
		return ThreatLevelLow
	case ratio < 0.15:
		return ThreatLevelMedium
	case ratio < 0.30:
		return ThreatLevelHigh
	default:
		return ThreatLevelCritical
	}
}
