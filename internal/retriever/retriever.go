package retriever

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oshokin/patchline-watcher/internal/config"
	"github.com/oshokin/patchline-watcher/internal/logger"
)

const (
	// outputTailSize is how much of the tool output is kept for diagnostics.
	outputTailSize = 2048

	// waitDelay bounds how long Wait blocks on output pipes after a kill.
	waitDelay = 2 * time.Second
)

var (
	// ErrRetrieval wraps every failed retrieval.
	ErrRetrieval = errors.New("retrieval failed")
	// ErrTimeout is additionally wrapped when the tool exceeded its deadline.
	ErrTimeout = errors.New("retrieval timed out")
	// errNoOutputFile is returned when the tool exited zero without the file.
	errNoOutputFile = errors.New("tool exited without producing the target file")
)

// Retriever fetches the target file for a region with a bounded run of the tool.
type Retriever struct {
	// launcher builds the platform specific command.
	launcher Launcher
	// targetFile is the in-artifact path of the binary, slash separated.
	targetFile string
	// timeout bounds one tool run.
	timeout time.Duration
}

// New creates a Retriever using the launcher and the configured timeout.
func New(cfg *config.Config, launcher Launcher) *Retriever {
	return &Retriever{
		launcher:   launcher,
		targetFile: cfg.TargetFile,
		timeout:    cfg.RetrievalTimeout,
	}
}

// Retrieve runs the tool once for source and returns the path of the fetched
// binary under outputDir. There is no retry; the next cycle tries again.
func (r *Retriever) Retrieve(ctx context.Context, source, outputDir string) (string, error) {
	path := filepath.Join(outputDir, filepath.FromSlash(r.targetFile))

	// The working directory is shared by all regions of a cycle; a file left
	// by the previous region must not pass for this region's download.
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: remove previous target: %w", ErrRetrieval, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := r.launcher.Command(runCtx, source, outputDir)
	cmd.WaitDelay = waitDelay

	output := &tailBuffer{limit: outputTailSize}
	cmd.Stdout = output
	cmd.Stderr = output

	logger.DebugKV(ctx, "Starting retrieval tool", "command", cmd.String())

	started := time.Now()

	if err := cmd.Run(); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %w after %s", ErrRetrieval, ErrTimeout, r.timeout)
		}

		return "", fmt.Errorf("%w: %w: %s", ErrRetrieval, err, output.String())
	}

	logger.DebugKV(ctx, "Retrieval tool finished", "elapsed", time.Since(started).String())

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %w: %s", ErrRetrieval, errNoOutputFile, path)
	}

	return path, nil
}

// tailBuffer keeps only the last limit bytes written to it.
type tailBuffer struct {
	buf   bytes.Buffer
	limit int
}

// Write implements io.Writer.
func (b *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) > b.limit {
		p = p[len(p)-b.limit:]
	}

	if overflow := b.buf.Len() + len(p) - b.limit; overflow > 0 {
		b.buf.Next(overflow)
	}

	b.buf.Write(p)

	return n, nil
}

// String returns the kept output with surrounding whitespace removed.
func (b *tailBuffer) String() string {
	return strings.TrimSpace(b.buf.String())
}
