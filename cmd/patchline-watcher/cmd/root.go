package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/patchline-watcher/internal/config"
	"github.com/oshokin/patchline-watcher/internal/logger"
	"github.com/oshokin/patchline-watcher/internal/service/watcher"
	"github.com/oshokin/patchline-watcher/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// logLevel overrides the configured log level.
	logLevel string
	// once runs a single cycle instead of polling forever.
	once bool

	// rootCmd represents the base command for polling patchline versions.
	rootCmd = &cobra.Command{
		Use:   "patchline-watcher",
		Short: "Track the shipping build version of every live region.",
		Long: `Long-running poller that records the shipping build version of every live region.

Every cycle fetches the region list from the client configuration endpoint,
downloads the shipping executable of each region with ManifestDownloader,
reads the version record embedded after the ++Ares-Core+ marker and writes
<versioning_dir>/<region>.json. Regions are handled one at a time; a failed
region keeps its previous snapshot. Cycles repeat every 30 minutes by default.

All settings have defaults; the configuration file is optional.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			defer logger.Sync()

			options := &watcher.Options{
				ConfigPath: configPath,
				LogLevel:   logLevel,
				Once:       once,
			}

			return watcher.Run(ctx, options)
		},
	}

	// showCmd prints stored snapshots.
	showCmd = &cobra.Command{
		Use:   "show [region]",
		Short: "Print stored region snapshots.",
		Long: `Print the snapshots written by previous cycles.

Without arguments a table of all regions is printed. With a region key the
full JSON record of that region is printed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			options := &watcher.ShowOptions{
				ConfigPath: configPath,
			}

			if len(args) > 0 {
				options.Region = args[0]
			}

			return watcher.Show(cmd.Context(), cmd.OutOrStdout(), options)
		},
	}
)

// Execute runs the patchline-watcher CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	rootCmd.AddCommand(showCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "override the configured log level")
	rootCmd.Flags().BoolVar(&once, "once", false, "run a single cycle and exit")
}
