package cmd

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
)

func (c *cli) newQuarantineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quarantine",
		Short: "Review candidates rejected by validation",
	}
	cmd.AddCommand(c.newQuarantineListCmd(), c.newQuarantineResolveCmd())
	return cmd
}

func (c *cli) newQuarantineListCmd() *cobra.Command {
	var (
		all   bool
		limit int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List quarantined candidates, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := c.svc.Quarantine(cmd.Context(), all, limit)
			if err != nil {
				return err
			}
			return printQuarantine(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include resolved entries")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries to list; 0 lists all")
	return cmd
}

func (c *cli) newQuarantineResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve ID",
		Short: "Mark a quarantine entry reviewed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid quarantine id %q: %w", args[0], err)
			}
			if err := c.svc.ResolveQuarantine(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resolved %d\n", id)
			return nil
		},
	}
}

func printQuarantine(out io.Writer, entries []ingest.QuarantineEntry) error {
	if len(entries) == 0 {
		fmt.Fprintln(out, "no quarantined entries")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tPARENT\tCREATED\tRESOLVED\tDETAIL")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%s\n",
			e.ID, e.Kind, e.ParentID, e.CreatedAt.Format(time.RFC3339), e.Resolved, e.Detail)
	}
	return w.Flush()
}
