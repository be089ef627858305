package watcher

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"

	"github.com/oshokin/patchline-watcher/internal/config"
	domain "github.com/oshokin/patchline-watcher/internal/domain/patchline"
	"github.com/oshokin/patchline-watcher/internal/retriever"
	"github.com/oshokin/patchline-watcher/internal/signature"
)

var errTestFetch = errors.New("test fetch error")

// testConfig returns settings rooted in a temporary directory.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()

	cfg := config.Default()
	cfg.WorkDir = filepath.Join(dir, "temp")
	cfg.VersioningDir = filepath.Join(dir, "valorant")

	return cfg
}

// shippingBinary renders a binary carrying the marker and the record.
func shippingBinary(t *testing.T, record string) []byte {
	t.Helper()

	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()

	marker, err := enc.Bytes([]byte(config.DefaultMarker))
	require.NoError(t, err)

	body, err := enc.Bytes([]byte(record))
	require.NoError(t, err)

	var buf bytes.Buffer

	buf.WriteString("MZ-header")
	buf.Write(marker)
	buf.Write(body)
	buf.Write(make([]byte, config.DefaultWindowSize))

	return buf.Bytes()
}

// newTestExtractor returns the real extractor with a fixed clock.
func newTestExtractor(t *testing.T, now func() time.Time) *signature.Extractor {
	t.Helper()

	e, err := signature.NewExtractor(config.DefaultMarker, config.DefaultWindowSize, signature.WithClock(now))
	require.NoError(t, err)

	return e
}

// fakeRetriever writes a prepared binary per source and records call order.
type fakeRetriever struct {
	mu       sync.Mutex
	binaries map[string][]byte
	failures map[string]error
	calls    []string

	active  atomic.Int32
	overlap atomic.Bool
}

func (f *fakeRetriever) Retrieve(_ context.Context, source, outputDir string) (string, error) {
	if f.active.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.active.Add(-1)

	f.mu.Lock()
	f.calls = append(f.calls, source)
	binary, failure := f.binaries[source], f.failures[source]
	f.mu.Unlock()

	// Give a concurrent caller a chance to show up.
	time.Sleep(5 * time.Millisecond)

	if failure != nil {
		return "", failure
	}

	path := filepath.Join(outputDir, filepath.FromSlash(config.DefaultTargetFile))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}

	if err := os.WriteFile(path, binary, 0o600); err != nil {
		return "", err
	}

	return path, nil
}

func (f *fakeRetriever) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.calls...)
}

// fakeSource returns a fixed region list or error.
type fakeSource struct {
	regions []domain.RegionConfig
	err     error
	calls   atomic.Int32
}

func (f *fakeSource) Fetch(context.Context) ([]domain.RegionConfig, error) {
	f.calls.Add(1)

	if f.err != nil {
		return nil, f.err
	}

	return f.regions, nil
}

// recordingProcessor remembers processed regions and returns preset outcomes.
type recordingProcessor struct {
	mu        sync.Mutex
	processed []string
	outcomes  map[string]domain.Outcome
}

func (p *recordingProcessor) Process(_ context.Context, region domain.RegionConfig) domain.Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.processed = append(p.processed, region.Key())

	if outcome, ok := p.outcomes[region.Key()]; ok {
		return outcome
	}

	return domain.OutcomeUpdated
}

// recordingObserver remembers notifications.
type recordingObserver struct {
	mu      sync.Mutex
	cycles  []domain.CycleResult
	regions map[string]domain.Outcome
}

func (o *recordingObserver) CycleCompleted(result domain.CycleResult) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.cycles = append(o.cycles, result)
}

func (o *recordingObserver) RegionProcessed(region string, outcome domain.Outcome, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.regions == nil {
		o.regions = make(map[string]domain.Outcome)
	}

	o.regions[region] = outcome
}

func region(key string) domain.RegionConfig {
	return domain.RegionConfig{
		PatchURL: "https://patch/" + key + ".manifest",
		Shards:   []string{key},
	}
}

func retrievalError(source string) error {
	return errors.Join(retriever.ErrRetrieval, errors.New("tool failed for "+source))
}
