package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by the watcher components.
type Config struct {
	// SourceURL is the endpoint returning the patchline configuration document.
	SourceURL string `yaml:"source_url"`
	// Namespace is the top-level key of the configuration document to read.
	Namespace string `yaml:"namespace"`
	// Platform selects the entry under platforms, e.g. "win".
	Platform string `yaml:"platform"`
	// VersioningDir is where per-region snapshot files are written.
	VersioningDir string `yaml:"versioning_dir"`
	// WorkDir is the scratch directory the retrieval tool downloads into.
	// It is removed at the end of every cycle.
	WorkDir string `yaml:"work_dir"`
	// FetchTimeout bounds the configuration source request.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	// RetrievalTimeout bounds a single retrieval tool invocation.
	RetrievalTimeout time.Duration `yaml:"retrieval_timeout"`
	// CycleInterval is the sleep between two cycles.
	CycleInterval time.Duration `yaml:"cycle_interval"`
	// Marker is the build-system tag preceding the version fields.
	Marker string `yaml:"marker"`
	// WindowSize is the number of bytes decoded after the marker.
	WindowSize int `yaml:"window_size"`
	// BundleURL is the base bundle location passed to the retrieval tool.
	BundleURL string `yaml:"bundle_url"`
	// TargetFile is the in-artifact path of the binary to fetch.
	TargetFile string `yaml:"target_file"`
	// Threads is the parallelism hint passed to the retrieval tool.
	Threads int `yaml:"threads"`
	// Tool holds the retrieval tool location per platform family.
	Tool Tool `yaml:"tool"`
	// MetricsAddress enables the Prometheus endpoint when not empty.
	MetricsAddress string `yaml:"metrics_address"`
	// HealthAddress enables the gRPC health endpoint when not empty.
	HealthAddress string `yaml:"health_address"`
	// LogLevel is the minimum level of written log entries.
	LogLevel string `yaml:"log_level"`
}

// Tool describes where the retrieval tool lives on each platform family.
type Tool struct {
	// Windows is the executable used on Windows hosts.
	Windows string `yaml:"windows"`
	// Posix is the executable used on Linux and macOS hosts.
	Posix string `yaml:"posix"`
}

const (
	// DefaultConfigFilename is the default filename for watcher settings.
	DefaultConfigFilename = "patchline-watcher.yaml"

	// DefaultSourceURL is the public client configuration endpoint.
	DefaultSourceURL = "https://clientconfig.rpg.riotgames.com/api/v1/config/public?namespace=keystone.products.valorant.patchlines"

	// DefaultNamespace is the key holding the live patchline configuration.
	DefaultNamespace = "keystone.products.valorant.patchlines.live"

	// DefaultPlatform is the platform whose configurations are watched.
	DefaultPlatform = "win"

	// DefaultVersioningDir is where snapshots are stored.
	DefaultVersioningDir = "files/valorant"

	// DefaultWorkDir is the scratch directory for retrieved artifacts.
	DefaultWorkDir = "files/temp"

	// DefaultFetchTimeout bounds the configuration request.
	DefaultFetchTimeout = time.Second

	// DefaultRetrievalTimeout bounds one retrieval tool run.
	DefaultRetrievalTimeout = 60 * time.Second

	// DefaultCycleInterval is the sleep between cycles.
	DefaultCycleInterval = 30 * time.Minute

	// DefaultMarker is the tag the build system places before the version fields.
	DefaultMarker = "++Ares-Core+"

	// DefaultWindowSize is the number of bytes decoded after the marker.
	DefaultWindowSize = 96

	// DefaultBundleURL is the base bundle location of the public channel.
	DefaultBundleURL = "https://valorant.secure.dyn.riotcdn.net/channels/public/bundles"

	// DefaultTargetFile is the shipping executable inside the artifact.
	DefaultTargetFile = "ShooterGame/Binaries/Win64/VALORANT-Win64-Shipping.exe"

	// DefaultThreads is the parallelism hint for the retrieval tool.
	DefaultThreads = 4

	// DefaultWindowsTool is the retrieval tool on Windows, resolved from the working directory.
	DefaultWindowsTool = "ManifestDownloader.exe"

	// DefaultPosixTool is the retrieval tool on Linux and macOS.
	DefaultPosixTool = "./bin/ManifestDownloader"

	// DefaultLogLevel is the log level used when none is configured.
	DefaultLogLevel = "info"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// DefaultDirPermissions is used for the working and versioning directories.
	DefaultDirPermissions = 0o755
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errMarkerRequired is returned when the marker consists of whitespace only.
	errMarkerRequired = errors.New("marker must be provided")
	// errBadWindowSize is returned for window sizes that cannot hold a record.
	errBadWindowSize = errors.New("window size must be a positive even number")
	// errBadThreads is returned for a negative parallelism hint.
	errBadThreads = errors.New("threads must not be negative")
	// errSameDirectories is returned when work and versioning directories overlap.
	errSameDirectories = errors.New("work dir and versioning dir must not contain each other")
)

// Default returns the built-in settings.
func Default() *Config {
	cfg := new(Config)

	// Validate on a zero value only fills defaults.
	_ = Validate(cfg)

	return cfg
}

// Load reads configuration from the provided path and validates it.
// A missing file at the default path yields the built-in settings so the
// watcher runs without any input.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && path == DefaultConfigFilename {
			return Default(), nil
		}

		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes Config to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate fills defaults for unset fields and checks the rest for formatting.
//
//nolint:cyclop,funlen // A flat list of defaults reads better than helpers.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	setDefault(&cfg.SourceURL, DefaultSourceURL)
	setDefault(&cfg.Namespace, DefaultNamespace)
	setDefault(&cfg.Platform, DefaultPlatform)
	setDefault(&cfg.VersioningDir, DefaultVersioningDir)
	setDefault(&cfg.WorkDir, DefaultWorkDir)
	setDefault(&cfg.Marker, DefaultMarker)
	setDefault(&cfg.BundleURL, DefaultBundleURL)
	setDefault(&cfg.TargetFile, DefaultTargetFile)
	setDefault(&cfg.Tool.Windows, DefaultWindowsTool)
	setDefault(&cfg.Tool.Posix, DefaultPosixTool)
	setDefault(&cfg.LogLevel, DefaultLogLevel)

	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}

	if cfg.RetrievalTimeout <= 0 {
		cfg.RetrievalTimeout = DefaultRetrievalTimeout
	}

	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = DefaultCycleInterval
	}

	if cfg.WindowSize == 0 {
		cfg.WindowSize = DefaultWindowSize
	}

	if cfg.Threads == 0 {
		cfg.Threads = DefaultThreads
	}

	if strings.TrimSpace(cfg.Marker) == "" {
		return errMarkerRequired
	}

	if cfg.WindowSize < 0 || cfg.WindowSize%2 != 0 {
		return fmt.Errorf("%w: %d", errBadWindowSize, cfg.WindowSize)
	}

	if cfg.Threads < 0 {
		return errBadThreads
	}

	overlap, err := overlaps(cfg.WorkDir, cfg.VersioningDir)
	if err != nil {
		return fmt.Errorf("resolve directories: %w", err)
	}

	if overlap {
		return fmt.Errorf("%w: %q, %q", errSameDirectories, cfg.WorkDir, cfg.VersioningDir)
	}

	if _, err := url.ParseRequestURI(cfg.SourceURL); err != nil {
		return fmt.Errorf("invalid source URL: %w", err)
	}

	if _, err := url.ParseRequestURI(cfg.BundleURL); err != nil {
		return fmt.Errorf("invalid bundle URL: %w", err)
	}

	for _, address := range []string{cfg.MetricsAddress, cfg.HealthAddress} {
		if address == "" {
			continue
		}

		if _, _, err := net.SplitHostPort(address); err != nil {
			return fmt.Errorf("invalid listen address %q: %w", address, err)
		}
	}

	return nil
}

// overlaps reports whether one directory is equal to or nested in the other.
// The work dir is removed after every cycle, so it must never hold snapshots.
func overlaps(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}

	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}

	return within(absA, absB) || within(absB, absA), nil
}

// within reports whether path is parent or lies below it.
func within(parent, path string) bool {
	rel, err := filepath.Rel(parent, path)
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// setDefault assigns fallback to *field when the field is empty.
func setDefault(field *string, fallback string) {
	if *field == "" {
		*field = fallback
	}
}
