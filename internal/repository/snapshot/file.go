package snapshot

import (
	"bytes"
	"context"
	"crypto"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	goupdate "github.com/doitdistributed/go-update"

	domain "github.com/oshokin/patchline-watcher/internal/domain/patchline"

	// Ensure SHA512 available for checksum verification.
	_ "crypto/sha512"
)

const (
	// fileExtension is appended to the region key to name its file.
	fileExtension = ".json"

	// fileMode is the permission of snapshot files; consumers read them.
	fileMode os.FileMode = 0o644

	// checksumFunction verifies the bytes go-update writes.
	checksumFunction = crypto.SHA512
)

// Repository defines persistence operations for region snapshots.
type Repository interface {
	Load(ctx context.Context, region string) (*domain.RegionSnapshot, error)
	Save(ctx context.Context, snapshot *domain.RegionSnapshot) error
	List(ctx context.Context) ([]*domain.RegionSnapshot, error)
}

var (
	// ErrNotFound is returned when no snapshot exists for a region.
	ErrNotFound = errors.New("snapshot not found")
	// errNoRegion is returned when saving a snapshot without a region key.
	errNoRegion = errors.New("snapshot has no region")
)

// FileRepository stores one JSON snapshot per region key.
type FileRepository struct {
	// dir is the versioning directory.
	dir string
	// mu serializes writers inside the process.
	mu sync.Mutex
}

// NewFileRepository creates a repository rooted at dir.
func NewFileRepository(dir string) *FileRepository {
	return &FileRepository{
		dir: filepath.Clean(dir),
	}
}

// Path returns the file that holds the snapshot of region.
func (r *FileRepository) Path(region string) string {
	return filepath.Join(r.dir, region+fileExtension)
}

// Load reads the snapshot of region.
func (r *FileRepository) Load(_ context.Context, region string) (*domain.RegionSnapshot, error) {
	if err := domain.ValidateKey(region); err != nil {
		return nil, err
	}

	return r.load(r.Path(region))
}

// Save replaces the snapshot of its region. Readers observe either the
// previous file or the complete new one, and a failed write leaves the
// previous file untouched.
func (r *FileRepository) Save(_ context.Context, snapshot *domain.RegionSnapshot) error {
	if snapshot == nil || snapshot.Region == "" {
		return errNoRegion
	}

	if err := domain.ValidateKey(snapshot.Region); err != nil {
		return err
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err = os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create versioning dir: %w", err)
	}

	return r.replace(r.Path(snapshot.Region), data)
}

// List reads every snapshot in the directory ordered by region key.
// Leftovers of an interrupted swap (dot files) are ignored.
func (r *FileRepository) List(_ context.Context) ([]*domain.RegionSnapshot, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("read versioning dir: %w", err)
	}

	snapshots := make([]*domain.RegionSnapshot, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != fileExtension {
			continue
		}

		snapshot, err := r.load(filepath.Join(r.dir, name))
		if err != nil {
			return nil, err
		}

		snapshots = append(snapshots, snapshot)
	}

	slices.SortFunc(snapshots, func(a, b *domain.RegionSnapshot) int {
		return strings.Compare(a.Region, b.Region)
	})

	return snapshots, nil
}

// load decodes a snapshot file.
func (r *FileRepository) load(path string) (*domain.RegionSnapshot, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read snapshot file: %w", err)
	}

	var snapshot domain.RegionSnapshot
	if err = json.Unmarshal(contents, &snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot file %s: %w", path, err)
	}

	return &snapshot, nil
}

// replace writes data to a dot-prefixed staging file through go-update, which
// verifies the checksum, then renames the staging file onto path in one step.
// path always holds either the previous record or the new one.
func (r *FileRepository) replace(path string, data []byte) error {
	staging := stagingPath(path)

	// go-update moves the existing target aside, so it must exist first.
	if _, err := os.Stat(staging); errors.Is(err, os.ErrNotExist) {
		placeholder, err := os.OpenFile(staging, os.O_CREATE|os.O_WRONLY, fileMode)
		if err != nil {
			return fmt.Errorf("create staging file: %w", err)
		}

		_ = placeholder.Close()
	}

	defer removeLeftovers(staging)

	hasher := checksumFunction.New()
	_, _ = hasher.Write(data)

	options := goupdate.Options{
		TargetPath: staging,
		TargetMode: fileMode,
		Checksum:   hasher.Sum(nil),
		Hash:       checksumFunction,
	}

	if err := goupdate.Apply(bytes.NewReader(data), options); err != nil {
		return fmt.Errorf("write snapshot file: %w", err)
	}

	if err := os.Rename(staging, path); err != nil {
		return fmt.Errorf("publish snapshot file: %w", err)
	}

	return nil
}

// stagingPath returns the hidden sibling that receives new contents of path.
func stagingPath(path string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".staging")
}

// removeLeftovers drops the staging file and the copies go-update keeps
// under either of its naming schemes.
func removeLeftovers(staging string) {
	dir, base := filepath.Dir(staging), filepath.Base(staging)

	for _, leftover := range []string{
		staging,
		staging + ".old",
		filepath.Join(dir, "."+base+".old"),
		filepath.Join(dir, "."+base+".new"),
	} {
		_ = os.Remove(leftover)
	}
}
