package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/w1tte/hltv-scraper-sub000/internal/app"
	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
	"github.com/w1tte/hltv-scraper-sub000/internal/pipeline"
)

// selectionFlags choose which units a scrape snapshots.
type selectionFlags struct {
	force       bool
	retryFailed bool
	maxItems    int
}

func (f *selectionFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.force, "force", false, "reprocess units already done")
	cmd.Flags().BoolVar(&f.retryFailed, "retry-failed", false, "include units that failed earlier")
	cmd.Flags().IntVar(&f.maxItems, "max-items", 0, "cap the units per stage; 0 uses pipeline.max_items")
}

func (f *selectionFlags) selection() ingest.Selection {
	return ingest.Selection{Limit: f.maxItems, RetryFailed: f.retryFailed, Force: f.force}
}

func (c *cli) newScrapeCmd() *cobra.Command {
	var (
		flags selectionFlags
		stage string
	)
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Fetch, parse and store pending matches and maps",
		Long: `Works through pending units in batches. The matches stage turns queued
matches into match, map, veto and roster records; the maps stage adds player
statistics, round outcomes and economy for each stored map. A run halts after
pipeline.failure_threshold consecutive failures.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c.svc.StartOps(cmd.Context())
			reports, err := c.svc.Scrape(cmd.Context(), stage, flags.selection())
			printReports(cmd.OutOrStdout(), reports)
			return err
		},
	}
	cmd.Flags().StringVar(&stage, "stage", app.StageAll,
		fmt.Sprintf("stage to run: %s, %s or %s", pipeline.StageMatches, pipeline.StageMaps, app.StageAll))
	flags.register(cmd)
	return cmd
}

func printReports(out io.Writer, reports []pipeline.Report) {
	for _, r := range reports {
		fmt.Fprintf(out, "%s: found=%d done=%d parsed=%d failed=%d quarantined=%d discarded=%d",
			r.Stage, r.Found, r.Done, r.Parsed, r.Failed, r.Quarantined, r.Discarded)
		switch {
		case r.Halted:
			fmt.Fprintf(out, " halted=%q", r.Reason)
		case r.Interrupted:
			fmt.Fprint(out, " interrupted")
		}
		fmt.Fprintln(out)
	}
}
