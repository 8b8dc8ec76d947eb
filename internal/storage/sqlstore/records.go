package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
)

const upsertMatchSQL = `INSERT INTO matches
	(match_id, team1_id, team1_name, team2_id, team2_name, team1_score, team2_score, best_of, event, played_at,
	 fetched_at, updated_at, source_locator, parser_version)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (match_id) DO UPDATE SET
	team1_id = excluded.team1_id,
	team1_name = excluded.team1_name,
	team2_id = excluded.team2_id,
	team2_name = excluded.team2_name,
	team1_score = excluded.team1_score,
	team2_score = excluded.team2_score,
	best_of = excluded.best_of,
	event = excluded.event,
	played_at = excluded.played_at,
	fetched_at = excluded.fetched_at,
	updated_at = excluded.updated_at,
	source_locator = excluded.source_locator,
	parser_version = excluded.parser_version`

// stats_status is left alone so re-scraping a match never requeues its maps.
const upsertMapSQL = `INSERT INTO maps
	(match_id, map_seq, map_name, team1_rounds, team2_rounds, stats_locator, economy_locator,
	 fetched_at, updated_at, source_locator, parser_version)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (match_id, map_seq) DO UPDATE SET
	map_name = excluded.map_name,
	team1_rounds = excluded.team1_rounds,
	team2_rounds = excluded.team2_rounds,
	stats_locator = excluded.stats_locator,
	economy_locator = excluded.economy_locator,
	fetched_at = excluded.fetched_at,
	updated_at = excluded.updated_at,
	source_locator = excluded.source_locator,
	parser_version = excluded.parser_version`

const upsertVetoSQL = `INSERT INTO vetoes
	(match_id, step, team_name, action, map_name, fetched_at, updated_at, source_locator, parser_version)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (match_id, step) DO UPDATE SET
	team_name = excluded.team_name,
	action = excluded.action,
	map_name = excluded.map_name,
	fetched_at = excluded.fetched_at,
	updated_at = excluded.updated_at,
	source_locator = excluded.source_locator,
	parser_version = excluded.parser_version`

const upsertRosterSQL = `INSERT INTO rosters
	(match_id, player_id, player_name, team_slot, fetched_at, updated_at, source_locator, parser_version)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (match_id, player_id) DO UPDATE SET
	player_name = excluded.player_name,
	team_slot = excluded.team_slot,
	fetched_at = excluded.fetched_at,
	updated_at = excluded.updated_at,
	source_locator = excluded.source_locator,
	parser_version = excluded.parser_version`

const upsertPlayerStatSQL = `INSERT INTO player_stats
	(match_id, map_seq, player_id, player_name, team_slot, kills, deaths, assists, kd_diff,
	 adr, kast, headshot_pct, rating, fetched_at, updated_at, source_locator, parser_version)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (match_id, map_seq, player_id) DO UPDATE SET
	player_name = excluded.player_name,
	team_slot = excluded.team_slot,
	kills = excluded.kills,
	deaths = excluded.deaths,
	assists = excluded.assists,
	kd_diff = excluded.kd_diff,
	adr = excluded.adr,
	kast = excluded.kast,
	headshot_pct = excluded.headshot_pct,
	rating = excluded.rating,
	fetched_at = excluded.fetched_at,
	updated_at = excluded.updated_at,
	source_locator = excluded.source_locator,
	parser_version = excluded.parser_version`

const upsertRoundSQL = `INSERT INTO round_outcomes
	(match_id, map_seq, round, winner_slot, winner_side, outcome, fetched_at, updated_at, source_locator, parser_version)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (match_id, map_seq, round) DO UPDATE SET
	winner_slot = excluded.winner_slot,
	winner_side = excluded.winner_side,
	outcome = excluded.outcome,
	fetched_at = excluded.fetched_at,
	updated_at = excluded.updated_at,
	source_locator = excluded.source_locator,
	parser_version = excluded.parser_version`

const upsertEconomySQL = `INSERT INTO economy_snapshots
	(match_id, map_seq, round, team_slot, equipment_value, buy_type, fetched_at, updated_at, source_locator, parser_version)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (match_id, map_seq, round, team_slot) DO UPDATE SET
	equipment_value = excluded.equipment_value,
	buy_type = excluded.buy_type,
	fetched_at = excluded.fetched_at,
	updated_at = excluded.updated_at,
	source_locator = excluded.source_locator,
	parser_version = excluded.parser_version`

// PersistMatch commits a match with its maps, vetoes and roster and marks
// the work item done. The work item must already exist.
func (s *Store) PersistMatch(ctx context.Context, b ingest.MatchBundle) error {
	id := b.Match.MatchID
	if id == "" {
		id = b.Item.ExternalID
	}
	now := s.now()
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := requireParent(ctx, tx, `SELECT COUNT(*) FROM work_items WHERE external_id = ?`, id); err != nil {
			return fmt.Errorf("work item %s: %w", id, err)
		}
		m := b.Match
		if _, err := tx.ExecContext(ctx, tx.Rebind(upsertMatchSQL),
			id, m.Team1ID, m.Team1Name, m.Team2ID, m.Team2Name, m.Team1Score, m.Team2Score, m.BestOf, m.Event,
			nullTime(m.PlayedAt), m.FetchedAt.UTC(), now, m.SourceLocator, m.ParserVersion,
		); err != nil {
			return fmt.Errorf("upsert match: %w", err)
		}
		for _, mp := range b.Maps {
			if mp.MatchID != id {
				return fmt.Errorf("map %d belongs to match %q: %w", mp.Seq, mp.MatchID, ingest.ErrMissingParent)
			}
			if _, err := tx.ExecContext(ctx, tx.Rebind(upsertMapSQL),
				id, mp.Seq, mp.Name, mp.Team1Rounds, mp.Team2Rounds, mp.StatsLocator, mp.EconomyLocator,
				mp.FetchedAt.UTC(), now, mp.SourceLocator, mp.ParserVersion,
			); err != nil {
				return fmt.Errorf("upsert map %d: %w", mp.Seq, err)
			}
		}
		for _, v := range b.Vetoes {
			var team any
			if v.TeamName != "" {
				team = v.TeamName
			}
			if _, err := tx.ExecContext(ctx, tx.Rebind(upsertVetoSQL),
				id, v.Step, team, string(v.Action), v.MapName,
				v.FetchedAt.UTC(), now, v.SourceLocator, v.ParserVersion,
			); err != nil {
				return fmt.Errorf("upsert veto %d: %w", v.Step, err)
			}
		}
		for _, r := range b.Roster {
			if _, err := tx.ExecContext(ctx, tx.Rebind(upsertRosterSQL),
				id, r.PlayerID, r.PlayerName, r.TeamSlot,
				r.FetchedAt.UTC(), now, r.SourceLocator, r.ParserVersion,
			); err != nil {
				return fmt.Errorf("upsert roster entry %d: %w", r.PlayerID, err)
			}
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE work_items
			SET status = ?, last_error = '', attempts = attempts + 1, updated_at = ?
			WHERE external_id = ?`), string(ingest.StatusDone), now, id); err != nil {
			return fmt.Errorf("mark work item done: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist match %s: %w", id, err)
	}
	return nil
}

type mapRow struct {
	MatchID        string `db:"match_id"`
	Seq            int    `db:"map_seq"`
	Name           string `db:"map_name"`
	Team1Rounds    int    `db:"team1_rounds"`
	Team2Rounds    int    `db:"team2_rounds"`
	StatsLocator   string `db:"stats_locator"`
	EconomyLocator string `db:"economy_locator"`
	Status         string `db:"stats_status"`
}

func (r mapRow) ref() ingest.MapRef {
	return ingest.MapRef{
		MatchID:        r.MatchID,
		Seq:            r.Seq,
		Name:           r.Name,
		Team1Rounds:    r.Team1Rounds,
		Team2Rounds:    r.Team2Rounds,
		StatsLocator:   r.StatsLocator,
		EconomyLocator: r.EconomyLocator,
		Status:         ingest.Status(r.Status),
	}
}

// PendingMaps snapshots maps whose detail stats are still to be scraped.
// Maps without a stats page are never returned.
func (s *Store) PendingMaps(ctx context.Context, sel ingest.Selection) ([]ingest.MapRef, error) {
	query, args, err := sqlx.In(`SELECT match_id, map_seq, map_name, team1_rounds, team2_rounds,
			stats_locator, economy_locator, stats_status
		FROM maps WHERE stats_status IN (?) AND stats_locator <> ''
		ORDER BY match_id, map_seq`, statuses(sel))
	if err != nil {
		return nil, fmt.Errorf("build pending maps query: %w", err)
	}
	query, args = withLimit(query, args, sel.Limit)
	var rows []mapRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query pending maps: %w", err)
	}
	refs := make([]ingest.MapRef, 0, len(rows))
	for _, r := range rows {
		refs = append(refs, r.ref())
	}
	return refs, nil
}

// MarkMap records the outcome of a map stats attempt.
func (s *Store) MarkMap(ctx context.Context, matchID string, seq int, status ingest.Status, reason string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE maps
		SET stats_status = ?, last_error = ?, attempts = attempts + 1, updated_at = ?
		WHERE match_id = ? AND map_seq = ?`), string(status), truncate(reason), s.now(), matchID, seq)
	if err != nil {
		return fmt.Errorf("mark map %s/%d: %w", matchID, seq, err)
	}
	return requireRow(res, fmt.Sprintf("map %s/%d", matchID, seq))
}

// PersistMapStats commits player stats, round outcomes and economy for one
// map and marks it done. Economy rows whose round is absent from the stored
// round set are skipped and counted.
func (s *Store) PersistMapStats(ctx context.Context, b ingest.MapStatsBundle) (ingest.MapStatsResult, error) {
	ref := b.Map
	now := s.now()
	var result ingest.MapStatsResult
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := requireParent(ctx, tx, `SELECT COUNT(*) FROM maps WHERE match_id = ? AND map_seq = ?`, ref.MatchID, ref.Seq); err != nil {
			return fmt.Errorf("map %s/%d: %w", ref.MatchID, ref.Seq, err)
		}
		for _, p := range b.Players {
			if p.MatchID != ref.MatchID || p.MapSeq != ref.Seq {
				return fmt.Errorf("player %d belongs to map %s/%d: %w", p.PlayerID, p.MatchID, p.MapSeq, ingest.ErrMissingParent)
			}
			if _, err := tx.ExecContext(ctx, tx.Rebind(upsertPlayerStatSQL),
				ref.MatchID, ref.Seq, p.PlayerID, p.PlayerName, p.TeamSlot,
				p.Kills, p.Deaths, p.Assists, p.KDDiff, p.ADR, p.KAST, p.HeadshotPct, p.Rating,
				p.FetchedAt.UTC(), now, p.SourceLocator, p.ParserVersion,
			); err != nil {
				return fmt.Errorf("upsert player stat %d: %w", p.PlayerID, err)
			}
			result.Players++
		}
		for _, r := range b.Rounds {
			if r.MatchID != ref.MatchID || r.MapSeq != ref.Seq {
				return fmt.Errorf("round %d belongs to map %s/%d: %w", r.Round, r.MatchID, r.MapSeq, ingest.ErrMissingParent)
			}
			if _, err := tx.ExecContext(ctx, tx.Rebind(upsertRoundSQL),
				ref.MatchID, ref.Seq, r.Round, r.WinnerSlot, string(r.WinnerSide), string(r.Outcome),
				r.FetchedAt.UTC(), now, r.SourceLocator, r.ParserVersion,
			); err != nil {
				return fmt.Errorf("upsert round %d: %w", r.Round, err)
			}
			result.Rounds++
		}

		var stored []int
		if err := tx.SelectContext(ctx, &stored,
			tx.Rebind(`SELECT round FROM round_outcomes WHERE match_id = ? AND map_seq = ?`), ref.MatchID, ref.Seq); err != nil {
			return fmt.Errorf("load round set: %w", err)
		}
		rounds := make(map[int]bool, len(stored))
		for _, r := range stored {
			rounds[r] = true
		}
		for _, e := range b.Economy {
			if e.MatchID != ref.MatchID || e.MapSeq != ref.Seq || !rounds[e.Round] {
				result.EconomySkipped++
				continue
			}
			if _, err := tx.ExecContext(ctx, tx.Rebind(upsertEconomySQL),
				ref.MatchID, ref.Seq, e.Round, e.TeamSlot, e.EquipmentValue, string(e.BuyType),
				e.FetchedAt.UTC(), now, e.SourceLocator, e.ParserVersion,
			); err != nil {
				return fmt.Errorf("upsert economy round %d slot %d: %w", e.Round, e.TeamSlot, err)
			}
			result.Economy++
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE maps
			SET stats_status = ?, last_error = '', attempts = attempts + 1, updated_at = ?
			WHERE match_id = ? AND map_seq = ?`), string(ingest.StatusDone), now, ref.MatchID, ref.Seq); err != nil {
			return fmt.Errorf("mark map done: %w", err)
		}
		return nil
	})
	if err != nil {
		return ingest.MapStatsResult{}, fmt.Errorf("persist map stats %s/%d: %w", ref.MatchID, ref.Seq, err)
	}
	return result, nil
}

func requireParent(ctx context.Context, tx *sqlx.Tx, query string, args ...any) error {
	var n int
	if err := tx.GetContext(ctx, &n, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("check parent: %w", err)
	}
	if n == 0 {
		return ingest.ErrMissingParent
	}
	return nil
}
