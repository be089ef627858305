package patchline

import (
	"encoding/json"
	"strings"
	"time"
)

// TimestampLayout is the fixed-width UTC layout of last_checked, always with
// millisecond digits.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// VersionRecord holds the version fields embedded in a shipping binary.
// All four string fields are non-empty for a record produced by extraction.
type VersionRecord struct {
	Branch    string
	BuildDate string
	BuildVer  string
	Version   string
	// APIVersion is the tag used by the public API, see APIVersion.
	APIVersion string
	// CheckedAt is when the record was extracted.
	CheckedAt time.Time
}

// APIVersion builds "{branch}-shipping-{buildVer}-{N}" where N is the last
// dot-separated component of version without leading zeros. A component made
// only of zeros is kept as is.
func APIVersion(branch, buildVer, version string) string {
	last := version
	if idx := strings.LastIndexByte(version, '.'); idx >= 0 {
		last = version[idx+1:]
	}

	if trimmed := strings.TrimLeft(last, "0"); trimmed != "" {
		last = trimmed
	}

	return branch + "-shipping-" + buildVer + "-" + last
}

// RegionSnapshot is the persisted unit: a region merged with its version record.
type RegionSnapshot struct {
	Branch      string    `json:"branch"`
	BuildDate   string    `json:"build_date"`
	BuildVer    string    `json:"build_ver"`
	Version     string    `json:"version"`
	LastChecked time.Time `json:"last_checked"`
	APIVersion  string    `json:"version_for_api"`
	PatchURL    string    `json:"patch_url"`
	Region      string    `json:"region"`
}

// MarshalJSON writes the snapshot with LastChecked in TimestampLayout.
// Decoding needs no counterpart since time.Time parses the layout.
func (s RegionSnapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Branch      string `json:"branch"`
		BuildDate   string `json:"build_date"`
		BuildVer    string `json:"build_ver"`
		Version     string `json:"version"`
		LastChecked string `json:"last_checked"`
		APIVersion  string `json:"version_for_api"`
		PatchURL    string `json:"patch_url"`
		Region      string `json:"region"`
	}{
		Branch:      s.Branch,
		BuildDate:   s.BuildDate,
		BuildVer:    s.BuildVer,
		Version:     s.Version,
		LastChecked: s.LastChecked.UTC().Format(TimestampLayout),
		APIVersion:  s.APIVersion,
		PatchURL:    s.PatchURL,
		Region:      s.Region,
	})
}

// NewSnapshot merges a region and a version record.
func NewSnapshot(region *RegionConfig, record *VersionRecord) *RegionSnapshot {
	return &RegionSnapshot{
		Branch:      record.Branch,
		BuildDate:   record.BuildDate,
		BuildVer:    record.BuildVer,
		Version:     record.Version,
		LastChecked: record.CheckedAt.UTC(),
		APIVersion:  record.APIVersion,
		PatchURL:    region.PatchURL,
		Region:      region.Key(),
	}
}

// SameBuild reports whether two snapshots describe the same build,
// ignoring when they were checked.
func (s *RegionSnapshot) SameBuild(other *RegionSnapshot) bool {
	if s == nil || other == nil {
		return s == other
	}

	a, b := *s, *other
	a.LastChecked, b.LastChecked = time.Time{}, time.Time{}

	return a == b
}
