// Package cmd defines and implements the CLI commands for the hltv-scraper executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/w1tte/hltv-scraper-sub000/internal/app"
	"github.com/w1tte/hltv-scraper-sub000/internal/config"
	"github.com/w1tte/hltv-scraper-sub000/internal/discovery"
	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
	"github.com/w1tte/hltv-scraper-sub000/internal/logging"
	"github.com/w1tte/hltv-scraper-sub000/internal/pipeline"
	"github.com/w1tte/hltv-scraper-sub000/internal/shutdown"
)

// closeTimeout bounds flushing the run ledger and releasing services.
const closeTimeout = 15 * time.Second

// Service is what the commands need from the application container.
// *app.App satisfies it; tests inject a fake.
type Service interface {
	DiscoveryConfig() discovery.Config
	Discover(ctx context.Context, cfg discovery.Config) (discovery.Report, error)
	Scrape(ctx context.Context, stage string, sel ingest.Selection) ([]pipeline.Report, error)
	RunAll(ctx context.Context, cfg discovery.Config, sel ingest.Selection) (discovery.Report, []pipeline.Report, error)
	Status(ctx context.Context, n int) (app.Status, error)
	Quarantine(ctx context.Context, all bool, limit int) ([]ingest.QuarantineEntry, error)
	ResolveQuarantine(ctx context.Context, id int64) error
	StartOps(ctx context.Context)
	Close(ctx context.Context) error
}

// newService is the application factory. It's a variable so tests can
// replace it.
var newService = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Service, error) {
	return app.New(ctx, cfg, logger)
}

// cli carries state shared by the root hooks and the subcommands.
type cli struct {
	cfgFile string
	dataDir string

	logger *zap.Logger
	svc    Service
	stop   func()
}

// newRootCmd creates and configures the root command.
func (c *cli) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hltv-scraper",
		Short: "Resumable ingestion of professional CS match records.",
		Long: `hltv-scraper discovers completed matches from the results listing and
scrapes match pages, per-map statistics and round economy into a local
SQLite (or Postgres) database. Every stage is resumable: re-running a
command picks up where the last one stopped.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Builds the application once per invocation; commands that only read
		// the store still need it.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().StringVar(&c.dataDir, "data-dir", "", "data directory (overrides app.data_dir)")

	cmd.AddCommand(
		c.newDiscoverCmd(),
		c.newScrapeCmd(),
		c.newRunCmd(),
		c.newStatusCmd(),
		c.newQuarantineCmd(),
	)
	return cmd
}

func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return err
	}
	if c.dataDir != "" {
		cfg.App.DataDir = c.dataDir
	}

	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(logger)
	c.logger = logger

	ctx, stop := shutdown.New(logger).Context(cmd.Context())
	c.stop = stop

	svc, err := newService(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	c.svc = svc
	cmd.SetContext(ctx)
	return nil
}

// close runs whether or not the command succeeded, unlike cobra's post-run
// hooks.
func (c *cli) close() error {
	var err error
	if c.svc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		err = c.svc.Close(ctx)
		cancel()
		c.svc = nil
	}
	if c.stop != nil {
		c.stop()
	}
	if c.logger != nil {
		_ = c.logger.Sync()
	}
	return err
}

// run executes args against a fresh command tree and releases everything
// it built.
func run(ctx context.Context, args []string, out io.Writer) error {
	c := &cli{}
	root := c.newRootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	err := root.ExecuteContext(ctx)
	if cerr := c.close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}

// Execute is the main entry point. It exits non-zero when a command fails,
// including a halted scrape.
func Execute() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pipeline.ErrHalted) {
			fmt.Fprintln(os.Stderr, "halted:", err)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
