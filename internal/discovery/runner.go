package discovery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/w1tte/hltv-scraper-sub000/internal/fetcher"
	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
	"github.com/w1tte/hltv-scraper-sub000/internal/progress"
)

// Stop reasons reported when a run ends without error.
const (
	StopEndOfCatalog = "end of catalog"
	StopIncremental  = "no unknown items on page"
	StopRangeEnd     = "end of requested range"
	StopInterrupted  = "interrupted"
)

// ListingSource yields the work items of one listing page.
type ListingSource interface {
	Listing(ctx context.Context, offset int) ([]ingest.WorkItem, error)
}

// FetchingSource fetches listing pages through the retrier and parses them.
type FetchingSource struct {
	retrier *fetcher.Retrier
	fetcher ingest.Fetcher
	pacer   fetcher.Pacer
	parser  ingest.ListingParser
	baseURL string
}

// NewFetchingSource wires a listing source. baseURL is the site root.
func NewFetchingSource(r *fetcher.Retrier, f ingest.Fetcher, p fetcher.Pacer, parser ingest.ListingParser, baseURL string) *FetchingSource {
	return &FetchingSource{retrier: r, fetcher: f, pacer: p, parser: parser, baseURL: strings.TrimRight(baseURL, "/")}
}

// Locator returns the listing URL for offset.
func (s *FetchingSource) Locator(offset int) string {
	if offset == 0 {
		return s.baseURL + "/results"
	}
	return s.baseURL + "/results?offset=" + strconv.Itoa(offset)
}

// Listing fetches and parses the page at offset.
func (s *FetchingSource) Listing(ctx context.Context, offset int) ([]ingest.WorkItem, error) {
	doc, err := s.retrier.Fetch(ctx, s.fetcher, s.pacer, s.Locator(offset))
	if err != nil {
		return nil, err
	}
	items, err := s.parser.ParseListing(doc)
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}
	return items, nil
}

// Report summarises a discovery run.
type Report struct {
	PagesVisited int    `json:"pages_visited"`
	PagesSkipped int    `json:"pages_skipped"`
	Found        int    `json:"found"`
	New          int    `json:"new"`
	StopReason   string `json:"stop_reason"`
	Interrupted  bool   `json:"interrupted"`
}

// Runner walks listing pages sequentially.
type Runner struct {
	queue    *Queue
	source   ListingSource
	cfg      Config
	reporter *progress.Reporter
	logger   *zap.Logger
}

// NewRunner validates cfg and builds a Runner. reporter may be nil.
func NewRunner(queue *Queue, source ListingSource, cfg Config, reporter *progress.Reporter, logger *zap.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("discovery config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{queue: queue, source: source, cfg: cfg, reporter: reporter, logger: logger.Named("discovery")}, nil
}

// Run walks pages from cfg.Start until the catalog ends, the range ends, the
// incremental-stop triggers or ctx is cancelled. Cancellation returns the
// partial report with Interrupted set and no error; every page persisted
// before it stays complete.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	var rep Report
	size := r.cfg.PageSize
	completed, err := r.queue.Completed(ctx, r.cfg.Start, r.cfg.End)
	if err != nil {
		return rep, err
	}

	prevShort := false
	if prev, ok := completed[r.cfg.Start-size]; ok && r.cfg.Start > 0 {
		prevShort = prev.ItemCount < size
	}

	for off := r.cfg.Start; r.cfg.End <= 0 || off < r.cfg.End; off += size {
		if ctx.Err() != nil {
			rep.Interrupted = true
			rep.StopReason = StopInterrupted
			return rep, nil
		}
		log := r.logger.With(zap.Int("offset", off))

		if page, ok := completed[off]; ok && r.cfg.Mode == ModeIncremental {
			rep.PagesSkipped++
			prevShort = page.ItemCount < size
			r.emitPage(off, progress.PageSkipped, page.ItemCount)
			log.Debug("skipping completed page", zap.Int("items", page.ItemCount))
			continue
		}

		items, err := r.source.Listing(ctx, off)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				rep.Interrupted = true
				rep.StopReason = StopInterrupted
				return rep, nil
			}
			return rep, fmt.Errorf("listing page %d: %w", off, err)
		}
		rep.PagesVisited++

		if len(items) == 0 {
			r.emitPage(off, progress.PageEmpty, 0)
			if prevShort {
				rep.StopReason = StopEndOfCatalog
				log.Info("reached end of catalog")
				return rep, nil
			}
			return rep, fmt.Errorf("page %d: %w", off, ErrAnomalousEmptyPage)
		}
		rep.Found += len(items)

		// A fetched page is finished even if cancellation arrived meanwhile.
		storeCtx := context.WithoutCancel(ctx)
		unknown, err := r.queue.CountUnknown(storeCtx, items)
		if err != nil {
			return rep, err
		}
		if unknown == 0 && r.cfg.Mode == ModeIncremental {
			r.emitPage(off, progress.PageKnown, len(items))
			rep.StopReason = StopIncremental
			log.Info("page holds only known items, stopping")
			return rep, nil
		}

		if err := r.queue.PersistPage(storeCtx, off, items); err != nil {
			return rep, err
		}
		rep.New += unknown
		prevShort = len(items) < size
		r.emitPage(off, progress.PagePersisted, len(items))
		log.Info("persisted listing page", zap.Int("items", len(items)), zap.Int("new", unknown))
	}
	rep.StopReason = StopRangeEnd
	return rep, nil
}

func (r *Runner) emitPage(offset int, result progress.PageResult, items int) {
	r.reporter.Emit(progress.Event{
		Kind:  progress.KindPageDone,
		Key:   strconv.Itoa(offset),
		Page:  result,
		Found: items,
	})
}
