package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/w1tte/hltv-scraper-sub000/internal/discovery"
)

// discoverFlags override the configured discovery bounds when set.
type discoverFlags struct {
	start int
	end   int
	full  bool
}

func (f *discoverFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.start, "start", 0, "first listing offset (multiple of the page size)")
	cmd.Flags().IntVar(&f.end, "end", 0, "listing offset to stop before; 0 walks to the end of the catalog")
	cmd.Flags().BoolVar(&f.full, "full", false, "revisit completed pages instead of stopping at known items")
}

func (f *discoverFlags) apply(cmd *cobra.Command, cfg discovery.Config) discovery.Config {
	if cmd.Flags().Changed("start") {
		cfg.Start = f.start
	}
	if cmd.Flags().Changed("end") {
		cfg.End = f.end
	}
	if f.full {
		cfg.Mode = discovery.ModeFull
	}
	return cfg
}

func (c *cli) newDiscoverCmd() *cobra.Command {
	var flags discoverFlags
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Walk the results listing and queue new matches",
		Long: `Fetches results listing pages in order and records every match as a
pending work item. Completed pages are skipped and, unless --full is given,
the walk stops at the first page holding only known matches.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c.svc.StartOps(cmd.Context())
			cfg := flags.apply(cmd, c.svc.DiscoveryConfig())
			rep, err := c.svc.Discover(cmd.Context(), cfg)
			printDiscovery(cmd.OutOrStdout(), rep)
			return err
		},
	}
	flags.register(cmd)
	return cmd
}

func printDiscovery(out io.Writer, rep discovery.Report) {
	fmt.Fprintf(out, "discover: pages=%d skipped=%d found=%d new=%d stop=%q\n",
		rep.PagesVisited, rep.PagesSkipped, rep.Found, rep.New, rep.StopReason)
}
