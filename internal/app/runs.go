package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/w1tte/hltv-scraper-sub000/internal/discovery"
	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
	"github.com/w1tte/hltv-scraper-sub000/internal/pipeline"
	"github.com/w1tte/hltv-scraper-sub000/internal/progress"
)

// Status is what the status command prints.
type Status struct {
	Counts ingest.Counts `json:"counts"`
	Runs   []ingest.Run  `json:"runs"`
}

// run tracks one ledger entry from start to finish.
type run struct {
	reporter *progress.Reporter
	started  time.Time
}

func (a *App) beginRun(stage string) (*run, error) {
	id, err := a.ids.NewID()
	if err != nil {
		return nil, err
	}
	rep, err := progress.NewReporter(a.hub, id, stage, a.clock.Now)
	if err != nil {
		return nil, err
	}
	a.logger.Info("run started", zap.String("run_id", id), zap.String("stage", stage))
	rep.Emit(progress.Event{Kind: progress.KindRunStart})
	return &run{reporter: rep, started: a.clock.Now()}, nil
}

func (a *App) endRun(r *run, counts ingest.RunCounts, halted bool, note string) {
	kind := progress.KindRunDone
	if halted {
		kind = progress.KindRunHalted
	}
	r.reporter.Emit(progress.Event{
		Kind:   kind,
		Counts: counts,
		Dur:    max(a.clock.Now().Sub(r.started), 0),
		Note:   note,
	})
}

// DiscoveryConfig returns the configured discovery bounds, which commands
// override from flags.
func (a *App) DiscoveryConfig() discovery.Config {
	d := a.cfg.Discovery
	return discovery.Config{
		PageSize: d.PageSize,
		Start:    d.Start,
		End:      d.End,
		Mode:     discovery.Mode(d.Mode),
	}
}

// Discover walks listing pages within cfg and records new work items. A
// discovery error is recorded as a halted run and returned.
func (a *App) Discover(ctx context.Context, cfg discovery.Config) (discovery.Report, error) {
	if err := cfg.Validate(); err != nil {
		return discovery.Report{}, fmt.Errorf("discovery config: %w", err)
	}
	r, err := a.beginRun(StageDiscover)
	if err != nil {
		return discovery.Report{}, err
	}
	slot := a.slots[0]
	source := discovery.NewFetchingSource(a.retrier, slot.Fetcher, slot.Pacer, a.parser, a.cfg.Fetch.BaseURL)
	runner, err := discovery.NewRunner(discovery.NewQueue(a.store, cfg.PageSize), source, cfg, r.reporter, a.logger)
	if err != nil {
		a.endRun(r, ingest.RunCounts{}, true, err.Error())
		return discovery.Report{}, err
	}

	report, err := runner.Run(ctx)
	counts := ingest.RunCounts{Found: report.Found, New: report.New}
	if err != nil {
		a.endRun(r, counts, true, err.Error())
		return report, err
	}
	a.endRun(r, counts, false, report.StopReason)
	a.logger.Info("discovery finished",
		zap.Int("pages_visited", report.PagesVisited),
		zap.Int("pages_skipped", report.PagesSkipped),
		zap.Int("found", report.Found),
		zap.Int("new", report.New),
		zap.String("stop_reason", report.StopReason),
	)
	return report, nil
}

// Stages resolves a --stage value to the pipeline stages it runs, in order.
func (a *App) Stages(name string) ([]pipeline.Stage, error) {
	matches := pipeline.NewMatchStage(a.store, a.parser, a.validator, a.logger)
	maps := pipeline.NewMapStatsStage(a.store, a.parser, a.parser, a.validator, a.logger)
	switch name {
	case pipeline.StageMatches:
		return []pipeline.Stage{matches}, nil
	case pipeline.StageMaps:
		return []pipeline.Stage{maps}, nil
	case StageAll, "":
		return []pipeline.Stage{matches, maps}, nil
	default:
		return nil, fmt.Errorf("unknown stage %q (want %s, %s or %s)", name, pipeline.StageMatches, pipeline.StageMaps, StageAll)
	}
}

// Scrape runs the named stages in order, one ledger run each. A halt stops
// the remaining stages and is returned wrapping pipeline.ErrHalted. An
// interruption ends early without an error.
func (a *App) Scrape(ctx context.Context, stage string, sel ingest.Selection) ([]pipeline.Report, error) {
	stages, err := a.Stages(stage)
	if err != nil {
		return nil, err
	}
	var reports []pipeline.Report
	for _, st := range stages {
		if ctx.Err() != nil {
			break
		}
		rep, err := a.runStage(ctx, st, sel)
		reports = append(reports, rep)
		if err != nil {
			return reports, err
		}
		if rep.Interrupted {
			break
		}
	}
	return reports, nil
}

func (a *App) runStage(ctx context.Context, stage pipeline.Stage, sel ingest.Selection) (pipeline.Report, error) {
	r, err := a.beginRun(stage.Name())
	if err != nil {
		return pipeline.Report{Stage: stage.Name()}, err
	}
	opts := []pipeline.Option{pipeline.WithReporter(r.reporter)}
	if a.archive != nil {
		opts = append(opts, pipeline.WithArchive(a.archive))
	}
	if a.publisher != nil {
		opts = append(opts, pipeline.WithPublisher(a.publisher, a.cfg.Publisher.Topic))
	}
	orch, err := pipeline.New(pipeline.Config{
		BatchSize:        a.cfg.Pipeline.BatchSize,
		Stagger:          a.cfg.Pipeline.Stagger,
		FailureThreshold: a.cfg.Pipeline.FailureThreshold,
		MaxItems:         a.cfg.Pipeline.MaxItems,
	}, a.slots, a.retrier, a.hasher, a.clock, a.logger, opts...)
	if err != nil {
		a.endRun(r, ingest.RunCounts{}, true, err.Error())
		return pipeline.Report{Stage: stage.Name()}, err
	}

	rep, err := orch.Run(ctx, stage, sel)
	switch {
	case err != nil:
		reason := rep.Reason
		if !errors.Is(err, pipeline.ErrHalted) {
			reason = err.Error()
		}
		a.endRun(r, rep.Counts(), true, reason)
		return rep, err
	case rep.Interrupted:
		a.endRun(r, rep.Counts(), false, "interrupted")
	default:
		a.endRun(r, rep.Counts(), false, "")
	}
	return rep, nil
}

// RunAll discovers new work and then scrapes every stage.
func (a *App) RunAll(ctx context.Context, cfg discovery.Config, sel ingest.Selection) (discovery.Report, []pipeline.Report, error) {
	drep, err := a.Discover(ctx, cfg)
	if err != nil {
		return drep, nil, err
	}
	if drep.Interrupted {
		return drep, nil, nil
	}
	reports, err := a.Scrape(ctx, StageAll, sel)
	return drep, reports, err
}

// Status tallies the store and lists the last n runs.
func (a *App) Status(ctx context.Context, n int) (Status, error) {
	counts, err := a.store.Counts(ctx)
	if err != nil {
		return Status{}, err
	}
	runs, err := a.store.LastRuns(ctx, n)
	if err != nil {
		return Status{}, err
	}
	return Status{Counts: counts, Runs: runs}, nil
}

// Quarantine lists quarantined candidates, unresolved ones only unless all.
func (a *App) Quarantine(ctx context.Context, all bool, limit int) ([]ingest.QuarantineEntry, error) {
	return a.store.ListQuarantine(ctx, all, limit)
}

// ResolveQuarantine marks one quarantine entry reviewed.
func (a *App) ResolveQuarantine(ctx context.Context, id int64) error {
	return a.store.ResolveQuarantine(ctx, id)
}
