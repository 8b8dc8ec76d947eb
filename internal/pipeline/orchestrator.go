package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/w1tte/hltv-scraper-sub000/internal/fetcher"
	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
	"github.com/w1tte/hltv-scraper-sub000/internal/pacing"
	"github.com/w1tte/hltv-scraper-sub000/internal/progress"
)

// ErrHalted is returned when consecutive failures reach the threshold.
var ErrHalted = errors.New("pipeline halted")

// Config tunes the orchestrator.
type Config struct {
	// BatchSize is the number of units fetched before any is processed.
	BatchSize int
	// Stagger separates the starts of concurrent unit fetches.
	Stagger time.Duration
	// FailureThreshold halts the run after this many failures in a row.
	FailureThreshold int
	// MaxItems caps the snapshot when the selection sets no limit.
	MaxItems int
}

// Slot is one worker: a fetcher paced by its own governor stack.
type Slot struct {
	Fetcher ingest.Fetcher
	Pacer   fetcher.Pacer
}

// Report summarises one stage run.
type Report struct {
	Stage       string `json:"stage"`
	Found       int    `json:"found"`
	Parsed      int    `json:"parsed"`
	Done        int    `json:"done"`
	Failed      int    `json:"failed"`
	Quarantined int    `json:"quarantined"`
	Discarded   int    `json:"discarded"`
	Halted      bool   `json:"halted"`
	Reason      string `json:"reason,omitempty"`
	Interrupted bool   `json:"interrupted"`
}

// Counts converts the report for the run ledger.
func (r Report) Counts() ingest.RunCounts {
	return ingest.RunCounts{Found: r.Found, Parsed: r.Parsed, Failed: r.Failed, Quarantined: r.Quarantined}
}

// Orchestrator runs stages over a pool of worker slots.
type Orchestrator struct {
	cfg       Config
	slots     []Slot
	retrier   *fetcher.Retrier
	hasher    ingest.Hasher
	clock     ingest.Clock
	archive   ingest.BlobStore
	publisher ingest.Publisher
	topic     string
	reporter  *progress.Reporter
	logger    *zap.Logger
	sleep     func(context.Context, time.Duration) error
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithArchive stores every fetched document, keyed by content hash.
func WithArchive(b ingest.BlobStore) Option {
	return func(o *Orchestrator) { o.archive = b }
}

// WithPublisher announces every completed unit on topic.
func WithPublisher(p ingest.Publisher, topic string) Option {
	return func(o *Orchestrator) {
		o.publisher = p
		o.topic = topic
	}
}

// WithReporter emits unit progress events.
func WithReporter(r *progress.Reporter) Option {
	return func(o *Orchestrator) { o.reporter = r }
}

// WithSleeper replaces the stagger sleeper; used by tests.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

// New builds an Orchestrator. At least one slot is required.
func New(cfg Config, slots []Slot, retrier *fetcher.Retrier, hasher ingest.Hasher, clock ingest.Clock, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	if len(slots) == 0 {
		return nil, errors.New("pipeline: at least one worker slot is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = len(slots)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		cfg:     cfg,
		slots:   slots,
		retrier: retrier,
		hasher:  hasher,
		clock:   clock,
		logger:  logger.Named("pipeline"),
		sleep:   pacing.Sleep,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// fetchResult is the fetch-phase outcome of one unit.
type fetchResult struct {
	started bool
	docs    []ingest.Document
	err     error
}

// Run snapshots the stage's pending units and works through them batch by
// batch. A halt returns the report and an error wrapping ErrHalted.
// Cancelling ctx lets the in-flight batch settle and returns with
// Interrupted set.
func (o *Orchestrator) Run(ctx context.Context, stage Stage, sel ingest.Selection) (Report, error) {
	rep := Report{Stage: stage.Name()}
	if sel.Limit <= 0 {
		sel.Limit = o.cfg.MaxItems
	}
	units, err := stage.Pending(ctx, sel)
	if err != nil {
		return rep, fmt.Errorf("snapshot %s: %w", stage.Name(), err)
	}
	rep.Found = len(units)
	log := o.logger.With(zap.String("stage", stage.Name()))
	log.Info("starting stage", zap.Int("units", len(units)), zap.Int("workers", len(o.slots)))

	tracker := NewFailureTracker(o.cfg.FailureThreshold)
	for start := 0; start < len(units); start += o.cfg.BatchSize {
		if ctx.Err() != nil {
			rep.Interrupted = true
			break
		}
		end := min(start+o.cfg.BatchSize, len(units))
		o.runBatch(ctx, stage, units[start:end], tracker, &rep)
		if tracker.Halted() {
			rep.Halted = true
			rep.Reason = tracker.Reason()
			log.Error("halting stage", zap.String("reason", rep.Reason))
			return rep, fmt.Errorf("%w: %s", ErrHalted, rep.Reason)
		}
		if rep.Interrupted {
			break
		}
	}
	log.Info("stage finished",
		zap.Int("found", rep.Found),
		zap.Int("done", rep.Done),
		zap.Int("failed", rep.Failed),
		zap.Int("quarantined", rep.Quarantined),
		zap.Int("discarded", rep.Discarded),
		zap.Bool("interrupted", rep.Interrupted),
	)
	return rep, nil
}

func (o *Orchestrator) runBatch(ctx context.Context, stage Stage, batch []Unit, tracker *FailureTracker, rep *Report) {
	results := o.fetchBatch(ctx, batch)
	// Outcomes of fetched work are recorded even after cancellation.
	settle := context.WithoutCancel(ctx)

	transient, interrupted := false, false
	for i, res := range results {
		switch {
		case !res.started:
			interrupted = interrupted || ctx.Err() != nil
		case res.err == nil:
		case fetcher.IsTransient(res.err):
			transient = true
		case canceled(res.err):
			interrupted = true
		default:
			o.failUnit(settle, stage, batch[i], res.err, rep)
			if tracker.Failure() {
				return
			}
		}
	}

	if transient || interrupted {
		pending := 0
		for i, res := range results {
			if !res.started || res.err == nil || fetcher.IsTransient(res.err) || canceled(res.err) {
				o.reporter.Emit(progress.Event{Kind: progress.KindUnitDiscarded, Key: batch[i].Key})
				pending++
			}
		}
		rep.Discarded += pending
		if transient {
			o.logger.Warn("discarding batch after transient fetch failure",
				zap.String("stage", stage.Name()), zap.Int("units", pending), zap.Int("streak", tracker.Streak()+1))
			tracker.Failure()
		}
		rep.Interrupted = rep.Interrupted || interrupted
		return
	}

	for i, res := range results {
		if res.docs == nil {
			continue
		}
		o.processUnit(settle, stage, batch[i], res.docs, tracker, rep)
		if tracker.Halted() {
			return
		}
	}
}

// fetchBatch fetches every unit's documents across the slot pool. After a
// transient failure no further fetch starts.
func (o *Orchestrator) fetchBatch(ctx context.Context, batch []Unit) []fetchResult {
	results := make([]fetchResult, len(batch))
	free := make(chan Slot, len(o.slots))
	for _, s := range o.slots {
		free <- s
	}
	var aborted atomic.Bool
	var g errgroup.Group
	g.SetLimit(len(o.slots))
	for i, u := range batch {
		if i > 0 && o.cfg.Stagger > 0 {
			if err := o.sleep(ctx, o.cfg.Stagger); err != nil {
				break
			}
		}
		if aborted.Load() || ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			slot := <-free
			defer func() { free <- slot }()
			results[i] = o.fetchUnit(ctx, slot, u, &aborted)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (o *Orchestrator) fetchUnit(ctx context.Context, slot Slot, u Unit, aborted *atomic.Bool) fetchResult {
	res := fetchResult{started: true}
	for _, loc := range u.Locators {
		if aborted.Load() {
			return fetchResult{}
		}
		doc, err := o.retrier.Fetch(ctx, slot.Fetcher, slot.Pacer, loc)
		if err != nil {
			if fetcher.IsTransient(err) {
				aborted.Store(true)
			}
			res.err = err
			res.docs = nil
			return res
		}
		res.docs = append(res.docs, doc)
	}
	return res
}

func (o *Orchestrator) processUnit(ctx context.Context, stage Stage, u Unit, docs []ingest.Document, tracker *FailureTracker, rep *Report) {
	started := o.clock.Now()
	o.archiveDocs(ctx, stage.Name(), u, docs)
	out, err := stage.Process(ctx, u, docs)
	rep.Quarantined += out.Quarantined
	if err != nil {
		o.failUnit(ctx, stage, u, err, rep)
		tracker.Failure()
		return
	}
	tracker.Success()
	rep.Done++
	rep.Parsed += out.Parsed
	o.reporter.Emit(progress.Event{
		Kind:        progress.KindUnitDone,
		Key:         u.Key,
		Found:       out.Parsed,
		Quarantined: out.Quarantined,
		Dur:         max(o.clock.Now().Sub(started), 0),
	})
	o.publishDone(ctx, stage.Name(), u, out)
}

func (o *Orchestrator) failUnit(ctx context.Context, stage Stage, u Unit, cause error, rep *Report) {
	rep.Failed++
	o.logger.Warn("unit failed",
		zap.String("stage", stage.Name()),
		zap.String("key", u.Key),
		zap.String("kind", string(ingest.KindOf(cause))),
		zap.Error(cause),
	)
	if err := stage.Fail(ctx, u, cause); err != nil {
		o.logger.Error("recording unit failure", zap.String("key", u.Key), zap.Error(err))
	}
	o.reporter.Emit(progress.Event{Kind: progress.KindUnitFailed, Key: u.Key, Note: cause.Error()})
}

func canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
