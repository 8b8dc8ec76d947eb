package cmd

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/w1tte/hltv-scraper-sub000/internal/app"
	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
)

func (c *cli) newStatusCmd() *cobra.Command {
	var runs int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue tallies and recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := c.svc.Status(cmd.Context(), runs)
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), st)
		},
	}
	cmd.Flags().IntVar(&runs, "runs", 10, "number of recent runs to list")
	return cmd
}

func printStatus(out io.Writer, st app.Status) error {
	statuses := []ingest.Status{ingest.StatusPending, ingest.StatusDone, ingest.StatusFailed}
	fmt.Fprintf(out, "pages: %d\n", st.Counts.Pages)
	for _, row := range []struct {
		name   string
		counts map[ingest.Status]int
	}{{"matches", st.Counts.Items}, {"maps", st.Counts.Maps}} {
		fmt.Fprintf(out, "%s:", row.name)
		for _, s := range statuses {
			fmt.Fprintf(out, " %s=%d", s, row.counts[s])
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "quarantined (unresolved): %d\n", st.Counts.Quarantined)

	tables := make([]string, 0, len(st.Counts.Records))
	for t := range st.Counts.Records {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, t := range tables {
		fmt.Fprintf(out, "  %s: %d\n", t, st.Counts.Records[t])
	}

	if len(st.Runs) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTAGE\tSTARTED\tSTATE\tFOUND\tNEW\tPARSED\tFAILED\tQUARANTINED\tREASON")
	for _, r := range st.Runs {
		state := "running"
		switch {
		case r.Halted:
			state = "halted"
		case r.FinishedAt != nil:
			state = "done"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.ID, r.Stage, r.StartedAt.Format(time.RFC3339), state,
			r.Counts.Found, r.Counts.New, r.Counts.Parsed, r.Counts.Failed, r.Counts.Quarantined, r.Reason)
	}
	return w.Flush()
}
