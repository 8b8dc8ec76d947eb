package sqlstore

import (
	"context"
	"fmt"

	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
)

// StartRun records the beginning of a stage execution.
func (s *Store) StartRun(ctx context.Context, run ingest.Run) error {
	started := run.StartedAt
	if started.IsZero() {
		started = s.now()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO runs (run_id, stage, started_at) VALUES (?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET stage = excluded.stage, started_at = excluded.started_at`),
		run.ID, run.Stage, started.UTC())
	if err != nil {
		return fmt.Errorf("start run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun stores the final counters of a run.
func (s *Store) FinishRun(ctx context.Context, run ingest.Run) error {
	finished := s.now()
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC()
	}
	c := run.Counts
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE runs
		SET finished_at = ?, found = ?, new_items = ?, parsed = ?, failed = ?, quarantined = ?, halted = ?, reason = ?
		WHERE run_id = ?`),
		finished, c.Found, c.New, c.Parsed, c.Failed, c.Quarantined, run.Halted, truncate(run.Reason), run.ID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	return requireRow(res, "run "+run.ID)
}

// LastRuns returns the n most recent runs, newest first.
func (s *Store) LastRuns(ctx context.Context, n int) ([]ingest.Run, error) {
	query, args := withLimit(`SELECT run_id, stage, started_at, finished_at, found, new_items, parsed, failed,
		quarantined, halted, reason FROM runs ORDER BY started_at DESC, run_id DESC`, nil, n)
	var rows []struct {
		ID          string `db:"run_id"`
		Stage       string `db:"stage"`
		StartedAt   dbTime `db:"started_at"`
		FinishedAt  dbTime `db:"finished_at"`
		Found       int    `db:"found"`
		New         int    `db:"new_items"`
		Parsed      int    `db:"parsed"`
		Failed      int    `db:"failed"`
		Quarantined int    `db:"quarantined"`
		Halted      bool   `db:"halted"`
		Reason      string `db:"reason"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	runs := make([]ingest.Run, 0, len(rows))
	for _, r := range rows {
		runs = append(runs, ingest.Run{
			ID:         r.ID,
			Stage:      r.Stage,
			StartedAt:  r.StartedAt.Time,
			FinishedAt: r.FinishedAt.ptr(),
			Counts: ingest.RunCounts{
				Found: r.Found, New: r.New, Parsed: r.Parsed, Failed: r.Failed, Quarantined: r.Quarantined,
			},
			Halted: r.Halted,
			Reason: r.Reason,
		})
	}
	return runs, nil
}

var recordTables = []string{"matches", "maps", "vetoes", "rosters", "player_stats", "round_outcomes", "economy_snapshots"}

// Counts tallies the store for the status command.
func (s *Store) Counts(ctx context.Context) (ingest.Counts, error) {
	out := ingest.Counts{
		Items:   map[ingest.Status]int{},
		Maps:    map[ingest.Status]int{},
		Records: map[string]int{},
	}
	type tally struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	var items []tally
	if err := s.db.SelectContext(ctx, &items, `SELECT status, COUNT(*) AS n FROM work_items GROUP BY status`); err != nil {
		return out, fmt.Errorf("count work items: %w", err)
	}
	for _, t := range items {
		out.Items[ingest.Status(t.Status)] = t.N
	}
	var maps []tally
	if err := s.db.SelectContext(ctx, &maps, `SELECT stats_status AS status, COUNT(*) AS n FROM maps GROUP BY stats_status`); err != nil {
		return out, fmt.Errorf("count maps: %w", err)
	}
	for _, t := range maps {
		out.Maps[ingest.Status(t.Status)] = t.N
	}
	if err := s.db.GetContext(ctx, &out.Pages, `SELECT COUNT(*) FROM discovery_pages`); err != nil {
		return out, fmt.Errorf("count pages: %w", err)
	}
	if err := s.db.GetContext(ctx, &out.Quarantined,
		s.db.Rebind(`SELECT COUNT(*) FROM quarantine WHERE resolved = ?`), false); err != nil {
		return out, fmt.Errorf("count quarantine: %w", err)
	}
	for _, table := range recordTables {
		var n int
		if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM `+table); err != nil {
			return out, fmt.Errorf("count %s: %w", table, err)
		}
		out.Records[table] = n
	}
	return out, nil
}
