package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/patchline-watcher/internal/domain/patchline"
	"github.com/oshokin/patchline-watcher/internal/repository/snapshot"
)

// TestRunCycle_OnlySuccessfulRegionWritten fails retrieval for the first of
// two regions and expects only the second snapshot.
func TestRunCycle_OnlySuccessfulRegionWritten(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	store := snapshot.NewFileRepository(cfg.VersioningDir)
	na, eu := region("na"), region("eu")

	fetch := &fakeRetriever{
		binaries: map[string][]byte{eu.PatchURL: shippingBinary(t, scenarioRecord)},
		failures: map[string]error{na.PatchURL: retrievalError(na.PatchURL)},
	}
	observer := new(recordingObserver)

	w := New(cfg,
		&fakeSource{regions: []domain.RegionConfig{na, eu}},
		NewProcessor(cfg.WorkDir, fetch, newTestExtractor(t, fixedClock), store),
		WithObservers(observer),
	)

	require.Equal(t, domain.CycleCompleted, w.RunCycle(context.Background()))
	require.Equal(t, []string{na.PatchURL, eu.PatchURL}, fetch.Calls())

	_, err := store.Load(context.Background(), "na")
	require.ErrorIs(t, err, snapshot.ErrNotFound)

	got, err := store.Load(context.Background(), "eu")
	require.NoError(t, err)
	require.Equal(t, "pbe-shipping-build123-1234", got.APIVersion)

	require.Equal(t, []domain.CycleResult{domain.CycleCompleted}, observer.cycles)
	require.Equal(t, domain.OutcomeRetrievalFailed, observer.regions["na"])
	require.Equal(t, domain.OutcomeUpdated, observer.regions["eu"])

	// Working directory is gone, versioning directory stays.
	_, err = os.Stat(cfg.WorkDir)
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = os.Stat(cfg.VersioningDir)
	require.NoError(t, err)
}

// TestRunCycle_SequentialInOrder processes regions in list order without overlap.
func TestRunCycle_SequentialInOrder(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	keys := []string{"na", "latam", "br", "eu", "ap", "kr"}
	regions := make([]domain.RegionConfig, 0, len(keys))
	fetch := &fakeRetriever{binaries: make(map[string][]byte)}

	for _, key := range keys {
		r := region(key)
		regions = append(regions, r)
		fetch.binaries[r.PatchURL] = shippingBinary(t, scenarioRecord)
	}

	w := New(cfg,
		&fakeSource{regions: regions},
		NewProcessor(cfg.WorkDir, fetch, newTestExtractor(t, fixedClock), snapshot.NewFileRepository(cfg.VersioningDir)),
	)

	w.RunCycle(context.Background())

	calls := fetch.Calls()
	require.Len(t, calls, len(keys))

	for i, key := range keys {
		require.Equal(t, region(key).PatchURL, calls[i])
	}

	require.False(t, fetch.overlap.Load())
}

// TestRunCycle_ConfigFailureSkipsCycle processes nothing when the list is unavailable.
func TestRunCycle_ConfigFailureSkipsCycle(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	processor := new(recordingProcessor)
	observer := new(recordingObserver)

	w := New(cfg, &fakeSource{err: errTestFetch}, processor, WithObservers(observer))

	require.Equal(t, domain.CycleConfigFailed, w.RunCycle(context.Background()))
	require.Empty(t, processor.processed)
	require.Equal(t, []domain.CycleResult{domain.CycleConfigFailed}, observer.cycles)

	_, err := os.Stat(cfg.WorkDir)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestRunCycle_SetupFailure skips the cycle when directories cannot be created.
func TestRunCycle_SetupFailure(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)

	// A regular file where the versioning directory should be.
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	cfg.VersioningDir = filepath.Join(blocker, "valorant")

	source := new(fakeSource)
	w := New(cfg, source, new(recordingProcessor))

	require.Equal(t, domain.CycleSetupFailed, w.RunCycle(context.Background()))
	require.Zero(t, source.calls.Load())
}

// TestRunCycle_RunsReaper calls the reaper before fetching.
func TestRunCycle_RunsReaper(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	source := new(fakeSource)

	var reaped bool

	w := New(cfg, source, new(recordingProcessor), WithReaper(func(context.Context) error {
		reaped = true

		require.Zero(t, source.calls.Load())

		return nil
	}))

	w.RunCycle(context.Background())
	require.True(t, reaped)
}

// TestRunCycle_Idempotent produces byte-identical snapshots for identical inputs.
func TestRunCycle_Idempotent(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	store := snapshot.NewFileRepository(cfg.VersioningDir)
	na := region("na")
	fetch := &fakeRetriever{binaries: map[string][]byte{na.PatchURL: shippingBinary(t, scenarioRecord)}}

	w := New(cfg,
		&fakeSource{regions: []domain.RegionConfig{na}},
		NewProcessor(cfg.WorkDir, fetch, newTestExtractor(t, fixedClock), store),
	)

	w.RunCycle(context.Background())
	first, err := os.ReadFile(store.Path("na"))
	require.NoError(t, err)

	w.RunCycle(context.Background())
	second, err := os.ReadFile(store.Path("na"))
	require.NoError(t, err)

	require.Equal(t, first, second)
}

// TestRun_SleepsBetweenCycles runs a cycle immediately, then once per interval until canceled.
func TestRun_SleepsBetweenCycles(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		cfg := testConfig(t)
		cfg.CycleInterval = 30 * time.Minute

		source := &fakeSource{regions: []domain.RegionConfig{region("na"), region("eu")}}
		processor := new(recordingProcessor)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)

		go func() {
			done <- New(cfg, source, processor).Run(ctx)
		}()

		synctest.Wait()
		require.Equal(t, int32(1), source.calls.Load())

		time.Sleep(29 * time.Minute)
		synctest.Wait()
		require.Equal(t, int32(1), source.calls.Load())

		time.Sleep(time.Minute)
		synctest.Wait()
		require.Equal(t, int32(2), source.calls.Load())
		require.Equal(t, []string{"na", "eu", "na", "eu"}, processor.processed)

		cancel()
		require.NoError(t, <-done)
	})
}

// TestRun_FailedCyclesKeepLooping keeps polling after a config failure.
func TestRun_FailedCyclesKeepLooping(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		cfg := testConfig(t)
		cfg.CycleInterval = time.Minute

		source := &fakeSource{err: errTestFetch}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)

		go func() {
			done <- New(cfg, source, new(recordingProcessor)).Run(ctx)
		}()

		time.Sleep(3*time.Minute + time.Second)
		synctest.Wait()
		require.Equal(t, int32(4), source.calls.Load())

		cancel()
		require.NoError(t, <-done)
	})
}
