package sqlstore

import "strings"

var schemaTemplate = []string{
	`CREATE TABLE IF NOT EXISTS work_items (
		external_id   TEXT PRIMARY KEY,
		locator       TEXT NOT NULL,
		discovered_at {{ts}} NOT NULL,
		status        TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'done', 'failed')),
		variant       BOOLEAN NOT NULL DEFAULT {{false}},
		team1         TEXT NOT NULL DEFAULT '',
		team2         TEXT NOT NULL DEFAULT '',
		event         TEXT NOT NULL DEFAULT '',
		attempts      INTEGER NOT NULL DEFAULT 0,
		last_error    TEXT NOT NULL DEFAULT '',
		updated_at    {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS work_items_status_idx ON work_items (status, discovered_at)`,
	`CREATE TABLE IF NOT EXISTS discovery_pages (
		page_offset  INTEGER PRIMARY KEY,
		item_count   INTEGER NOT NULL,
		completed_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS matches (
		match_id       TEXT PRIMARY KEY REFERENCES work_items (external_id),
		team1_id       {{bigint}} NOT NULL DEFAULT 0,
		team1_name     TEXT NOT NULL,
		team2_id       {{bigint}} NOT NULL DEFAULT 0,
		team2_name     TEXT NOT NULL,
		team1_score    INTEGER NOT NULL,
		team2_score    INTEGER NOT NULL,
		best_of        INTEGER NOT NULL,
		event          TEXT NOT NULL DEFAULT '',
		played_at      {{ts}},
		{{provenance}}
	)`,
	`CREATE TABLE IF NOT EXISTS maps (
		match_id        TEXT NOT NULL REFERENCES matches (match_id),
		map_seq         INTEGER NOT NULL,
		map_name        TEXT NOT NULL,
		team1_rounds    INTEGER NOT NULL,
		team2_rounds    INTEGER NOT NULL,
		stats_locator   TEXT NOT NULL DEFAULT '',
		economy_locator TEXT NOT NULL DEFAULT '',
		stats_status    TEXT NOT NULL DEFAULT 'pending' CHECK (stats_status IN ('pending', 'done', 'failed')),
		attempts        INTEGER NOT NULL DEFAULT 0,
		last_error      TEXT NOT NULL DEFAULT '',
		{{provenance}},
		PRIMARY KEY (match_id, map_seq)
	)`,
	`CREATE INDEX IF NOT EXISTS maps_status_idx ON maps (stats_status)`,
	`CREATE TABLE IF NOT EXISTS vetoes (
		match_id  TEXT NOT NULL REFERENCES matches (match_id),
		step      INTEGER NOT NULL,
		team_name TEXT,
		action    TEXT NOT NULL,
		map_name  TEXT NOT NULL,
		{{provenance}},
		PRIMARY KEY (match_id, step)
	)`,
	`CREATE TABLE IF NOT EXISTS rosters (
		match_id    TEXT NOT NULL REFERENCES matches (match_id),
		player_id   {{bigint}} NOT NULL,
		player_name TEXT NOT NULL,
		team_slot   INTEGER NOT NULL,
		{{provenance}},
		PRIMARY KEY (match_id, player_id)
	)`,
	`CREATE TABLE IF NOT EXISTS player_stats (
		match_id     TEXT NOT NULL,
		map_seq      INTEGER NOT NULL,
		player_id    {{bigint}} NOT NULL,
		player_name  TEXT NOT NULL,
		team_slot    INTEGER NOT NULL,
		kills        INTEGER,
		deaths       INTEGER,
		assists      INTEGER,
		kd_diff      INTEGER,
		adr          {{float}},
		kast         {{float}},
		headshot_pct {{float}},
		rating       {{float}},
		{{provenance}},
		PRIMARY KEY (match_id, map_seq, player_id),
		FOREIGN KEY (match_id, map_seq) REFERENCES maps (match_id, map_seq)
	)`,
	`CREATE TABLE IF NOT EXISTS round_outcomes (
		match_id    TEXT NOT NULL,
		map_seq     INTEGER NOT NULL,
		round       INTEGER NOT NULL,
		winner_slot INTEGER NOT NULL,
		winner_side TEXT NOT NULL,
		outcome     TEXT NOT NULL,
		{{provenance}},
		PRIMARY KEY (match_id, map_seq, round),
		FOREIGN KEY (match_id, map_seq) REFERENCES maps (match_id, map_seq)
	)`,
	`CREATE TABLE IF NOT EXISTS economy_snapshots (
		match_id        TEXT NOT NULL,
		map_seq         INTEGER NOT NULL,
		round           INTEGER NOT NULL,
		team_slot       INTEGER NOT NULL,
		equipment_value INTEGER NOT NULL,
		buy_type        TEXT NOT NULL,
		{{provenance}},
		PRIMARY KEY (match_id, map_seq, round, team_slot),
		FOREIGN KEY (match_id, map_seq, round) REFERENCES round_outcomes (match_id, map_seq, round)
	)`,
	`CREATE TABLE IF NOT EXISTS quarantine (
		id           {{serial}},
		entity_kind  TEXT NOT NULL,
		parent_id    TEXT NOT NULL DEFAULT '',
		payload      TEXT NOT NULL,
		error_detail TEXT NOT NULL,
		fingerprint  TEXT NOT NULL UNIQUE,
		resolved     BOOLEAN NOT NULL DEFAULT {{false}},
		created_at   {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS quarantine_open_idx ON quarantine (resolved, id)`,
	`CREATE TABLE IF NOT EXISTS runs (
		run_id      TEXT PRIMARY KEY,
		stage       TEXT NOT NULL,
		started_at  {{ts}} NOT NULL,
		finished_at {{ts}},
		found       INTEGER NOT NULL DEFAULT 0,
		new_items   INTEGER NOT NULL DEFAULT 0,
		parsed      INTEGER NOT NULL DEFAULT 0,
		failed      INTEGER NOT NULL DEFAULT 0,
		quarantined INTEGER NOT NULL DEFAULT 0,
		halted      BOOLEAN NOT NULL DEFAULT {{false}},
		reason      TEXT NOT NULL DEFAULT ''
	)`,
}

const provenanceColumns = `fetched_at     {{ts}} NOT NULL,
		updated_at     {{ts}} NOT NULL,
		source_locator TEXT NOT NULL DEFAULT '',
		parser_version TEXT NOT NULL DEFAULT ''`

func schema(d Dialect) []string {
	pairs := []string{
		"{{ts}}", "TIMESTAMP",
		"{{float}}", "REAL",
		"{{bigint}}", "INTEGER",
		"{{serial}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{{false}}", "0",
	}
	if d == Postgres {
		pairs = []string{
			"{{ts}}", "TIMESTAMPTZ",
			"{{float}}", "DOUBLE PRECISION",
			"{{bigint}}", "BIGINT",
			"{{serial}}", "BIGSERIAL PRIMARY KEY",
			"{{false}}", "FALSE",
		}
	}
	types := strings.NewReplacer(pairs...)
	out := make([]string, 0, len(schemaTemplate))
	for _, stmt := range schemaTemplate {
		stmt = strings.ReplaceAll(stmt, "{{provenance}}", provenanceColumns)
		out = append(out, types.Replace(stmt))
	}
	return out
}
