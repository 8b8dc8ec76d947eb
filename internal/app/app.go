// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/w1tte/hltv-scraper-sub000/internal/archive/gcs"
	"github.com/w1tte/hltv-scraper-sub000/internal/archive/local"
	"github.com/w1tte/hltv-scraper-sub000/internal/clock/system"
	"github.com/w1tte/hltv-scraper-sub000/internal/config"
	"github.com/w1tte/hltv-scraper-sub000/internal/fetcher"
	collyfetcher "github.com/w1tte/hltv-scraper-sub000/internal/fetcher/colly"
	"github.com/w1tte/hltv-scraper-sub000/internal/fetcher/headless"
	"github.com/w1tte/hltv-scraper-sub000/internal/hash/sha256"
	"github.com/w1tte/hltv-scraper-sub000/internal/id/uuid"
	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
	"github.com/w1tte/hltv-scraper-sub000/internal/metrics"
	"github.com/w1tte/hltv-scraper-sub000/internal/opsserver"
	"github.com/w1tte/hltv-scraper-sub000/internal/pacing"
	"github.com/w1tte/hltv-scraper-sub000/internal/parser/hltv"
	"github.com/w1tte/hltv-scraper-sub000/internal/pipeline"
	"github.com/w1tte/hltv-scraper-sub000/internal/progress"
	"github.com/w1tte/hltv-scraper-sub000/internal/progress/sinks"
	"github.com/w1tte/hltv-scraper-sub000/internal/publisher/memory"
	"github.com/w1tte/hltv-scraper-sub000/internal/publisher/pubsub"
	"github.com/w1tte/hltv-scraper-sub000/internal/storage/sqlstore"
	"github.com/w1tte/hltv-scraper-sub000/internal/validate"
)

// StageDiscover names discovery runs in the run ledger.
const StageDiscover = "discover"

// StageAll selects the match stage followed by the map stage.
const StageAll = "all"

// App holds all the shared, long-lived services for the application.
// It is built once per command and closed when the command returns.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	store     *sqlstore.Store
	hub       *progress.Hub
	snapshot  *sinks.SnapshotSink
	clock     ingest.Clock
	ids       ingest.IDGenerator
	hasher    *sha256.Hasher
	parser    *hltv.Parser
	retrier   *fetcher.Retrier
	validator *validate.Validator
	slots     []pipeline.Slot
	archive   ingest.BlobStore
	publisher ingest.Publisher

	registerer prometheus.Registerer
	closers    []func() error
	opsStop    context.CancelFunc
	opsWG      sync.WaitGroup
}

// Option customises New.
type Option func(*App)

// WithRegisterer registers progress collectors on reg instead of the
// default registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) { a.registerer = reg }
}

// WithClock replaces the system clock.
func WithClock(c ingest.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithPublisher replaces the configured completion-event publisher.
func WithPublisher(p ingest.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// New opens the store, applies the schema and wires every service named in
// cfg. It fails fast if any of them cannot be initialized; whatever was
// already opened is released.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:        cfg,
		logger:     logger,
		clock:      system.New(),
		ids:        uuid.New(),
		hasher:     sha256.New(),
		parser:     hltv.New(),
		registerer: prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(a)
	}
	defer func() {
		if err != nil {
			_ = a.closeAll()
		}
	}()

	metrics.Init()
	logger.Info("initializing application services",
		zap.String("driver", cfg.Database.Driver),
		zap.String("engine", cfg.Fetch.Engine),
		zap.Int("workers", cfg.Pipeline.Workers),
	)

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	if err := a.startHub(); err != nil {
		return nil, err
	}
	if err := a.buildSlots(); err != nil {
		return nil, err
	}
	if err := a.openArchive(ctx); err != nil {
		return nil, err
	}
	if err := a.openPublisher(ctx); err != nil {
		return nil, err
	}

	a.retrier = fetcher.NewRetrier(fetcher.RetryConfig{
		MaxAttempts: cfg.Fetch.MaxAttempts,
		BaseDelay:   cfg.Fetch.BackoffBase,
		MaxDelay:    cfg.Fetch.BackoffMax,
	}, logger)
	a.validator = validate.New(a.store, a.hasher, a.clock, logger)

	logger.Info("application services initialized")
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	store, err := sqlstore.Open(ctx, sqlstore.Config{
		Driver:   a.cfg.Database.Driver,
		DSN:      a.cfg.Database.DSN,
		DataDir:  a.cfg.App.DataDir,
		MaxConns: a.cfg.Database.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}
	return nil
}

func (a *App) startHub() error {
	prom, err := sinks.NewPrometheusSink(a.registerer)
	if err != nil {
		return err
	}
	a.snapshot = sinks.NewSnapshotSink()
	a.hub = progress.NewHub(progress.Config{Logger: a.logger},
		sinks.NewLedgerSink(a.store, a.logger),
		prom,
		a.snapshot,
		sinks.NewLogSink(a.logger),
	)
	return nil
}

// buildSlots creates one governor per worker slot, sharing the global
// governor and the rate cap between them.
func (a *App) buildSlots() error {
	p := a.cfg.Pacing
	local := pacing.Config{
		Floor:         p.Floor,
		Ceiling:       p.Ceiling,
		BackoffFactor: p.BackoffFactor,
		RecoverFactor: p.RecoverFactor,
	}
	var global *pacing.Governor
	if p.GlobalFloor > 0 {
		gcfg := local
		gcfg.Floor, gcfg.Ceiling = p.GlobalFloor, p.GlobalCeiling
		g, err := pacing.NewGovernor("global", gcfg)
		if err != nil {
			return fmt.Errorf("global governor: %w", err)
		}
		global = g
	}
	limit := pacing.NewCap(p.MaxRPS, 1)

	var shared ingest.Fetcher
	if a.cfg.Fetch.Engine == "headless" {
		hf, err := headless.NewChromedp(headless.Config{
			MaxParallel:       a.cfg.Fetch.HeadlessMaxParallel,
			UserAgent:         a.cfg.Fetch.UserAgent,
			NavigationTimeout: a.cfg.Fetch.Timeout,
			Ready:             headless.ReadySelector(a.cfg.Fetch.ReadySelector),
		})
		if err != nil {
			return fmt.Errorf("headless fetcher: %w", err)
		}
		a.closers = append(a.closers, func() error { hf.Close(); return nil })
		shared = hf
	}

	for i := range a.cfg.Pipeline.Workers {
		gov, err := pacing.NewGovernor(fmt.Sprintf("slot-%d", i), local)
		if err != nil {
			return fmt.Errorf("slot %d governor: %w", i, err)
		}
		f := shared
		if f == nil {
			f = collyfetcher.New(collyfetcher.Config{
				UserAgent: a.cfg.Fetch.UserAgent,
				Timeout:   a.cfg.Fetch.Timeout,
			})
		}
		a.slots = append(a.slots, pipeline.Slot{Fetcher: f, Pacer: pacing.NewPacer(gov, global, limit)})
	}
	return nil
}

func (a *App) openArchive(ctx context.Context) error {
	switch a.cfg.Archive.Provider {
	case "local":
		dir := a.cfg.ArchiveDir()
		arc, err := local.New(dir)
		if err != nil {
			return fmt.Errorf("local archive: %w", err)
		}
		a.logger.Info("archiving raw documents", zap.String("dir", dir))
		a.archive = arc
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create storage client: %w", err)
		}
		arc, err := gcs.New(ctx, client, gcs.Config{Bucket: a.cfg.Archive.Bucket, Prefix: a.cfg.Archive.Prefix})
		if err != nil {
			_ = client.Close()
			return fmt.Errorf("gcs archive: %w", err)
		}
		a.logger.Info("archiving raw documents", zap.String("bucket", a.cfg.Archive.Bucket))
		a.closers = append(a.closers, arc.Close)
		a.archive = arc
	}
	return nil
}

func (a *App) openPublisher(ctx context.Context) error {
	if a.publisher != nil {
		return nil
	}
	switch a.cfg.Publisher.Provider {
	case "memory":
		a.publisher = memory.New(1000)
	case "pubsub":
		pub, err := pubsub.New(ctx, a.cfg.Publisher.ProjectID)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pub.Close)
		a.publisher = pub
	}
	return nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store exposes the durable store.
func (a *App) Store() *sqlstore.Store { return a.store }

// Publisher returns the completion-event publisher, or nil when disabled.
func (a *App) Publisher() ingest.Publisher { return a.publisher }

// Progress returns live per-stage counters.
func (a *App) Progress() []sinks.StageProgress { return a.snapshot.Snapshot() }

// StartOps serves the ops endpoints on metrics.addr until ctx ends or the
// App closes. It is a no-op when no address is configured.
func (a *App) StartOps(ctx context.Context) {
	addr := a.cfg.Metrics.Addr
	if addr == "" || a.opsStop != nil {
		return
	}
	ctx, a.opsStop = context.WithCancel(ctx)
	srv := opsserver.New(a.store, a.snapshot, a.logger)
	a.opsWG.Add(1)
	go func() {
		defer a.opsWG.Done()
		if err := srv.Serve(ctx, addr); err != nil {
			a.logger.Error("ops server stopped", zap.Error(err))
		}
	}()
}

// Close flushes progress to the run ledger and releases every service in
// reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.opsStop != nil {
		a.opsStop()
		a.opsWG.Wait()
	}
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close progress hub: %w", err))
		}
		a.hub = nil
	}
	errs = append(errs, a.closeAll())
	return errors.Join(errs...)
}

func (a *App) closeAll() error {
	if a.hub != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.hub.Close(ctx)
		cancel()
		a.hub = nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
