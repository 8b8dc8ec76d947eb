// Package discovery walks the paginated results listing, turning each page
// into work items and recording completed pages so interrupted runs resume.
package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
)

// ErrAnomalousEmptyPage is returned when an empty listing page follows a full
// page. The catalog never ends that way; blocking is presumed.
var ErrAnomalousEmptyPage = errors.New("empty listing page not preceded by a short page")

// Mode selects how already-completed pages are treated.
type Mode string

// Discovery modes.
const (
	// ModeIncremental skips completed pages and stops at the first page
	// holding no unknown items.
	ModeIncremental Mode = "incremental"
	// ModeFull revisits every page in range and refreshes item metadata.
	ModeFull Mode = "full"
)

// DefaultPageSize is the number of results per listing page.
const DefaultPageSize = 100

// Config bounds a discovery run. End is exclusive; End <= 0 walks until the
// end of the catalog.
type Config struct {
	PageSize int
	Start    int
	End      int
	Mode     Mode
}

// Validate checks the offsets line up with the page size.
func (c Config) Validate() error {
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive, got %d", c.PageSize)
	}
	if c.Start < 0 || c.Start%c.PageSize != 0 {
		return fmt.Errorf("start offset %d must be a non-negative multiple of %d", c.Start, c.PageSize)
	}
	if c.End > 0 && c.End <= c.Start {
		return fmt.Errorf("end offset %d must be greater than start %d", c.End, c.Start)
	}
	switch c.Mode {
	case ModeIncremental, ModeFull:
	default:
		return fmt.Errorf("unknown discovery mode %q", c.Mode)
	}
	return nil
}

// Store is the persistence discovery needs.
type Store interface {
	KnownItems(ctx context.Context, ids []string) (map[string]bool, error)
	CompletedPages(ctx context.Context, from, to int) (map[int]ingest.Page, error)
	PersistPage(ctx context.Context, offset int, items []ingest.WorkItem) error
}

// Queue tracks page state in the store.
type Queue struct {
	store    Store
	pageSize int
}

// NewQueue builds a Queue over store.
func NewQueue(store Store, pageSize int) *Queue {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Queue{store: store, pageSize: pageSize}
}

// Completed returns the completed pages in [from, to); to <= 0 is unbounded.
// The page just before from is included so a resumed run knows whether it
// was short.
func (q *Queue) Completed(ctx context.Context, from, to int) (map[int]ingest.Page, error) {
	lo := from - q.pageSize
	if lo < 0 {
		lo = 0
	}
	hi := to
	if hi <= 0 {
		hi = -1
	}
	pages, err := q.store.CompletedPages(ctx, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("load completed pages: %w", err)
	}
	return pages, nil
}

// NextPages lists the offsets in [from, to) still to visit, ascending. Full
// mode lists every offset.
func (q *Queue) NextPages(ctx context.Context, from, to int, mode Mode) ([]int, error) {
	if to <= from {
		return nil, nil
	}
	var done map[int]ingest.Page
	if mode != ModeFull {
		var err error
		if done, err = q.store.CompletedPages(ctx, from, to); err != nil {
			return nil, fmt.Errorf("load completed pages: %w", err)
		}
	}
	var out []int
	for off := from; off < to; off += q.pageSize {
		if _, ok := done[off]; !ok {
			out = append(out, off)
		}
	}
	return out, nil
}

// CountUnknown returns how many of items the store has never seen.
func (q *Queue) CountUnknown(ctx context.Context, items []ingest.WorkItem) (int, error) {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ExternalID)
	}
	known, err := q.store.KnownItems(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("check known items: %w", err)
	}
	unknown := 0
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if known[id] || seen[id] {
			continue
		}
		seen[id] = true
		unknown++
	}
	return unknown, nil
}

// PersistPage upserts the page's items and marks it complete atomically.
func (q *Queue) PersistPage(ctx context.Context, offset int, items []ingest.WorkItem) error {
	if err := q.store.PersistPage(ctx, offset, items); err != nil {
		return fmt.Errorf("persist page %d: %w", offset, err)
	}
	return nil
}
