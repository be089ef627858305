package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/patchline-watcher/internal/domain/patchline"
)

func testSnapshot(region string) *domain.RegionSnapshot {
	return &domain.RegionSnapshot{
		Branch:      "pbe",
		BuildDate:   "Oct 19 2026",
		BuildVer:    "build123",
		Version:     "release-05.10.00.1234",
		LastChecked: time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC),
		APIVersion:  "pbe-shipping-build123-1234",
		PatchURL:    "https://patch/" + region + ".manifest",
		Region:      region,
	}
}

// TestFileRepository_NotFound verifies Load returns ErrNotFound for a missing region.
func TestFileRepository_NotFound(t *testing.T) {
	t.Parallel()

	repo := NewFileRepository(t.TempDir())
	s, err := repo.Load(context.Background(), "na")
	require.ErrorIs(t, err, ErrNotFound)
	require.Nil(t, s)
}

// TestFileRepository_SaveLoad_Roundtrip ensures Save followed by Load returns an equal snapshot.
func TestFileRepository_SaveLoad_Roundtrip(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "valorant")
	repo := NewFileRepository(dir)
	want := testSnapshot("na")

	require.NoError(t, repo.Save(context.Background(), want))

	got, err := repo.Load(context.Background(), "na")
	require.NoError(t, err)
	require.Equal(t, want, got)

	_, err = os.Stat(filepath.Join(dir, "na.json"))
	require.NoError(t, err)
}

// TestFileRepository_FileShape checks the on-disk field names and order.
func TestFileRepository_FileShape(t *testing.T) {
	t.Parallel()

	repo := NewFileRepository(t.TempDir())
	require.NoError(t, repo.Save(context.Background(), testSnapshot("eu")))

	contents, err := os.ReadFile(repo.Path("eu"))
	require.NoError(t, err)
	require.JSONEq(t, `{
		"branch": "pbe",
		"build_date": "Oct 19 2026",
		"build_ver": "build123",
		"version": "release-05.10.00.1234",
		"last_checked": "2026-10-19T08:00:00.000Z",
		"version_for_api": "pbe-shipping-build123-1234",
		"patch_url": "https://patch/eu.manifest",
		"region": "eu"
	}`, string(contents))
	require.Regexp(t, `^\{"branch":.*"build_date":.*"build_ver":.*"version":.*"last_checked":.*"version_for_api":.*"patch_url":.*"region":"eu"\}$`, string(contents))

	// Parseable without the domain type.
	var generic map[string]any
	require.NoError(t, json.Unmarshal(contents, &generic))
}

// TestFileRepository_Overwrite keeps only the latest snapshot and no swap leftovers.
func TestFileRepository_Overwrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo := NewFileRepository(dir)
	ctx := context.Background()

	first := testSnapshot("ap")
	require.NoError(t, repo.Save(ctx, first))

	second := testSnapshot("ap")
	second.BuildVer = "build124"
	second.APIVersion = "pbe-shipping-build124-1234"
	require.NoError(t, repo.Save(ctx, second))

	got, err := repo.Load(ctx, "ap")
	require.NoError(t, err)
	require.Equal(t, "build124", got.BuildVer)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "ap.json", entries[0].Name())
}

// TestFileRepository_ReadersNeverMissSnapshot loads a snapshot while it is
// being rewritten; every read sees a complete record.
func TestFileRepository_ReadersNeverMissSnapshot(t *testing.T) {
	t.Parallel()

	repo := NewFileRepository(t.TempDir())
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, testSnapshot("na")))

	stop := make(chan struct{})
	saved := make(chan error, 1)

	go func() {
		next := testSnapshot("na")

		for i := 0; ; i++ {
			select {
			case <-stop:
				saved <- nil
				return
			default:
			}

			next.BuildVer = fmt.Sprintf("build%d", i)
			if err := repo.Save(ctx, next); err != nil {
				saved <- err
				return
			}
		}
	}()

	var reads, failed int

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		got, err := repo.Load(ctx, "na")
		if err != nil || got.Region != "na" {
			failed++
		}

		reads++
	}

	close(stop)
	require.NoError(t, <-saved)
	require.Positive(t, reads)
	require.Zero(t, failed, "%d of %d reads did not see a complete snapshot", failed, reads)

	entries, err := os.ReadDir(filepath.Dir(repo.Path("na")))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

// TestFileRepository_Idempotent writes byte-identical files for the same snapshot.
func TestFileRepository_Idempotent(t *testing.T) {
	t.Parallel()

	repo := NewFileRepository(t.TempDir())
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, testSnapshot("kr")))
	first, err := os.ReadFile(repo.Path("kr"))
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, testSnapshot("kr")))
	second, err := os.ReadFile(repo.Path("kr"))
	require.NoError(t, err)

	require.Equal(t, first, second)
}

// TestFileRepository_List returns snapshots sorted by region and skips foreign files.
func TestFileRepository_List(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo := NewFileRepository(dir)
	ctx := context.Background()

	for _, region := range []string{"latam", "br", "na"} {
		require.NoError(t, repo.Save(ctx, testSnapshot(region)))
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".na.json.new"), []byte("{"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, "br", list[0].Region)
	require.Equal(t, "latam", list[1].Region)
	require.Equal(t, "na", list[2].Region)

	empty, err := NewFileRepository(filepath.Join(dir, "missing")).List(ctx)
	require.NoError(t, err)
	require.Empty(t, empty)
}

// TestFileRepository_SaveRequiresRegion rejects snapshots without a usable key.
func TestFileRepository_SaveRequiresRegion(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "valorant")
	repo := NewFileRepository(dir)
	ctx := context.Background()

	require.Error(t, repo.Save(ctx, &domain.RegionSnapshot{}))
	require.Error(t, repo.Save(ctx, nil))
	require.ErrorIs(t, repo.Save(ctx, testSnapshot("../escaped")), domain.ErrBadRegionKey)

	_, err := repo.Load(ctx, "../escaped")
	require.ErrorIs(t, err, domain.ErrBadRegionKey)

	_, err = os.Stat(filepath.Join(filepath.Dir(dir), "escaped.json"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
