package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
)

const upsertWorkItemSQL = `INSERT INTO work_items
	(external_id, locator, discovered_at, status, variant, team1, team2, event, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (external_id) DO UPDATE SET
	locator = excluded.locator,
	variant = excluded.variant,
	team1 = excluded.team1,
	team2 = excluded.team2,
	event = excluded.event,
	updated_at = excluded.updated_at`

const upsertPageSQL = `INSERT INTO discovery_pages (page_offset, item_count, completed_at)
VALUES (?, ?, ?)
ON CONFLICT (page_offset) DO UPDATE SET
	item_count = excluded.item_count,
	completed_at = excluded.completed_at`

type itemRow struct {
	ExternalID   string `db:"external_id"`
	Locator      string `db:"locator"`
	DiscoveredAt dbTime `db:"discovered_at"`
	Status       string `db:"status"`
	Variant      bool   `db:"variant"`
	Team1        string `db:"team1"`
	Team2        string `db:"team2"`
	Event        string `db:"event"`
	Attempts     int    `db:"attempts"`
	LastError    string `db:"last_error"`
}

func (r itemRow) item() ingest.WorkItem {
	return ingest.WorkItem{
		ExternalID:   r.ExternalID,
		Locator:      r.Locator,
		DiscoveredAt: r.DiscoveredAt.Time,
		Status:       ingest.Status(r.Status),
		Variant:      r.Variant,
		Team1:        r.Team1,
		Team2:        r.Team2,
		Event:        r.Event,
		Attempts:     r.Attempts,
		LastError:    r.LastError,
	}
}

const itemColumns = `external_id, locator, discovered_at, status, variant, team1, team2, event, attempts, last_error`

// KnownItems reports which of ids already exist as work items.
func (s *Store) KnownItems(ctx context.Context, ids []string) (map[string]bool, error) {
	known := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return known, nil
	}
	query, args, err := sqlx.In(`SELECT external_id FROM work_items WHERE external_id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build known items query: %w", err)
	}
	var found []string
	if err := s.db.SelectContext(ctx, &found, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query known items: %w", err)
	}
	for _, id := range found {
		known[id] = true
	}
	return known, nil
}

// CompletedPages returns the completed discovery pages with offsets in [from, to).
// A negative to means unbounded.
func (s *Store) CompletedPages(ctx context.Context, from, to int) (map[int]ingest.Page, error) {
	query := `SELECT page_offset, item_count, completed_at FROM discovery_pages WHERE page_offset >= ?`
	args := []any{from}
	if to >= 0 {
		query += ` AND page_offset < ?`
		args = append(args, to)
	}
	var rows []struct {
		Offset      int    `db:"page_offset"`
		ItemCount   int    `db:"item_count"`
		CompletedAt dbTime `db:"completed_at"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query completed pages: %w", err)
	}
	pages := make(map[int]ingest.Page, len(rows))
	for _, r := range rows {
		pages[r.Offset] = ingest.Page{Offset: r.Offset, ItemCount: r.ItemCount, CompletedAt: r.CompletedAt.Time}
	}
	return pages, nil
}

// PersistPage upserts every item of a listing page and marks the page
// complete, both or neither. Existing items keep their status.
func (s *Store) PersistPage(ctx context.Context, offset int, items []ingest.WorkItem) error {
	now := s.now()
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		seen := make(map[string]bool, len(items))
		upsert := tx.Rebind(upsertWorkItemSQL)
		for _, it := range items {
			if it.ExternalID == "" || seen[it.ExternalID] {
				continue
			}
			seen[it.ExternalID] = true
			discovered := it.DiscoveredAt
			if discovered.IsZero() {
				discovered = now
			}
			if _, err := tx.ExecContext(ctx, upsert,
				it.ExternalID, it.Locator, discovered.UTC(), string(ingest.StatusPending),
				it.Variant, it.Team1, it.Team2, it.Event, now,
			); err != nil {
				return fmt.Errorf("upsert work item %s: %w", it.ExternalID, err)
			}
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(upsertPageSQL), offset, len(seen), now); err != nil {
			return fmt.Errorf("mark page %d complete: %w", offset, err)
		}
		return nil
	})
}

func statuses(sel ingest.Selection) []string {
	out := []string{string(ingest.StatusPending)}
	if sel.RetryFailed {
		out = append(out, string(ingest.StatusFailed))
	}
	if sel.Force {
		out = append(out, string(ingest.StatusDone))
	}
	return out
}

// PendingItems snapshots work items awaiting a match scrape, oldest first.
func (s *Store) PendingItems(ctx context.Context, sel ingest.Selection) ([]ingest.WorkItem, error) {
	query, args, err := sqlx.In(`SELECT `+itemColumns+` FROM work_items
		WHERE status IN (?) ORDER BY discovered_at, external_id`, statuses(sel))
	if err != nil {
		return nil, fmt.Errorf("build pending items query: %w", err)
	}
	query, args = withLimit(query, args, sel.Limit)
	var rows []itemRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query pending items: %w", err)
	}
	items := make([]ingest.WorkItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, r.item())
	}
	return items, nil
}

// Item loads one work item.
func (s *Store) Item(ctx context.Context, id string) (ingest.WorkItem, error) {
	var r itemRow
	err := s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT `+itemColumns+` FROM work_items WHERE external_id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return ingest.WorkItem{}, fmt.Errorf("work item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ingest.WorkItem{}, fmt.Errorf("get work item %s: %w", id, err)
	}
	return r.item(), nil
}

// MarkItem records the outcome of an item attempt.
func (s *Store) MarkItem(ctx context.Context, id string, status ingest.Status, reason string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE work_items
		SET status = ?, last_error = ?, attempts = attempts + 1, updated_at = ?
		WHERE external_id = ?`), string(status), truncate(reason), s.now(), id)
	if err != nil {
		return fmt.Errorf("mark work item %s: %w", id, err)
	}
	return requireRow(res, "work item "+id)
}

func withLimit(query string, args []any, limit int) (string, []any) {
	if limit <= 0 {
		return query, args
	}
	return query + ` LIMIT ?`, append(args, limit)
}

func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

const maxErrorLen = 1000

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrorLen {
		return s[:maxErrorLen]
	}
	return s
}
