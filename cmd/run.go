package cmd

import (
	"github.com/spf13/cobra"
)

func (c *cli) newRunCmd() *cobra.Command {
	var (
		disc discoverFlags
		sel  selectionFlags
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Discover new matches, then scrape every stage",
		Long: `Runs discover followed by scrape --stage all, serving the ops endpoints
on metrics.addr while it works.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c.svc.StartOps(cmd.Context())
			drep, reports, err := c.svc.RunAll(cmd.Context(), disc.apply(cmd, c.svc.DiscoveryConfig()), sel.selection())
			printDiscovery(cmd.OutOrStdout(), drep)
			printReports(cmd.OutOrStdout(), reports)
			return err
		},
	}
	disc.register(cmd)
	sel.register(cmd)
	return cmd
}
