package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/oshokin/patchline-watcher/internal/config"
	domain "github.com/oshokin/patchline-watcher/internal/domain/patchline"
	"github.com/oshokin/patchline-watcher/internal/repository/snapshot"
)

// ShowOptions controls the snapshot listing.
type ShowOptions struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// Region prints the full record of one region when set.
	Region string
}

// Show prints the stored snapshots: a table of all regions, or the JSON
// record of one region.
func Show(ctx context.Context, out io.Writer, opts *ShowOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	repo := snapshot.NewFileRepository(cfg.VersioningDir)

	if opts.Region != "" {
		s, err := repo.Load(ctx, opts.Region)
		if err != nil {
			return fmt.Errorf("load snapshot %s: %w", opts.Region, err)
		}

		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")

		return encoder.Encode(s)
	}

	snapshots, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}

	return writeTable(out, snapshots)
}

// writeTable renders one line per region.
func writeTable(out io.Writer, snapshots []*domain.RegionSnapshot) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(tw, "REGION\tVERSION FOR API\tVERSION\tBUILD DATE\tLAST CHECKED")

	for _, s := range snapshots {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			s.Region, s.APIVersion, s.Version, s.BuildDate, s.LastChecked.Format(domain.TimestampLayout))
	}

	return tw.Flush()
}
