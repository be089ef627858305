package patchline

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrNoPatchURL is returned when a region has no retrieval source.
	ErrNoPatchURL = errors.New("patch url is empty")
	// ErrNoShards is returned when a region lists no live shards.
	ErrNoShards = errors.New("live shard list is empty")
	// ErrBadRegionKey is returned when the first shard cannot name a file.
	ErrBadRegionKey = errors.New("region key is not a valid file name")
)

// RegionConfig identifies one deployment region.
type RegionConfig struct {
	// PatchURL is the retrieval-source locator handed to the retrieval tool.
	PatchURL string
	// Shards are the live shard identifiers; the first one is the region key.
	Shards []string
}

// Key returns the canonical region key, the first live shard.
func (r *RegionConfig) Key() string {
	if len(r.Shards) == 0 {
		return ""
	}

	return r.Shards[0]
}

// Validate reports whether the region can be processed.
func (r *RegionConfig) Validate() error {
	if strings.TrimSpace(r.PatchURL) == "" {
		return ErrNoPatchURL
	}

	if len(r.Shards) == 0 {
		return ErrNoShards
	}

	return ValidateKey(r.Key())
}

// ValidateKey reports whether key can name a snapshot file inside the
// versioning directory.
func ValidateKey(key string) error {
	if key == "" || key == "." || key == ".." ||
		strings.ContainsAny(key, `/\`) || filepath.Base(key) != key {
		return fmt.Errorf("%w: %q", ErrBadRegionKey, key)
	}

	return nil
}
