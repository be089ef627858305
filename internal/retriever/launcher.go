package retriever

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/oshokin/patchline-watcher/internal/config"
)

// ErrUnsupportedPlatform indicates there is no launcher for the host OS.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// Launcher builds the retrieval tool command for one region.
// The command must place the target file under outputDir and exit zero.
type Launcher interface {
	// Command returns the process to run for source; ctx kills it on cancellation.
	Command(ctx context.Context, source, outputDir string) *exec.Cmd
	// Executable returns the tool path, used to find leftover processes.
	Executable() string
}

// toolArgs are the arguments shared by every launcher.
type toolArgs struct {
	bundleURL  string
	targetFile string
	threads    int
}

// build renders the argument vector after the executable.
func (a *toolArgs) build(source, outputDir string) []string {
	return []string{
		source,
		"-b", a.bundleURL,
		"-f", a.targetFile,
		"-o", outputDir,
		"-t", strconv.Itoa(a.threads),
	}
}

// windowsLauncher runs the tool from the working directory of the process.
type windowsLauncher struct {
	toolArgs

	executable string
}

// Command implements Launcher.
func (l *windowsLauncher) Command(ctx context.Context, source, outputDir string) *exec.Cmd {
	//nolint:gosec // Executable and arguments come from trusted configuration.
	return exec.CommandContext(ctx, l.executable, l.build(source, outputDir)...)
}

// Executable implements Launcher.
func (l *windowsLauncher) Executable() string {
	return l.executable
}

// posixLauncher runs a native build of the tool from a fixed path.
// The output directory is passed with forward slashes as the tool expects.
type posixLauncher struct {
	toolArgs

	path string
}

// Command implements Launcher.
func (l *posixLauncher) Command(ctx context.Context, source, outputDir string) *exec.Cmd {
	//nolint:gosec // Executable and arguments come from trusted configuration.
	return exec.CommandContext(ctx, l.path, l.build(source, strings.ReplaceAll(outputDir, `\`, "/"))...)
}

// Executable implements Launcher.
func (l *posixLauncher) Executable() string {
	return l.path
}

// NewLauncher picks the launcher for the host platform.
func NewLauncher(cfg *config.Config) (Launcher, error) {
	return ForPlatform(runtime.GOOS, cfg)
}

// ForPlatform picks the launcher for goos.
func ForPlatform(goos string, cfg *config.Config) (Launcher, error) {
	args := toolArgs{
		bundleURL:  cfg.BundleURL,
		targetFile: cfg.TargetFile,
		threads:    cfg.Threads,
	}

	switch strings.ToLower(goos) {
	case "windows":
		return &windowsLauncher{toolArgs: args, executable: cfg.Tool.Windows}, nil
	case "linux", "darwin", "freebsd":
		return &posixLauncher{toolArgs: args, path: cfg.Tool.Posix}, nil
	default:
		return nil, fmt.Errorf("%s: %w", goos, ErrUnsupportedPlatform)
	}
}
