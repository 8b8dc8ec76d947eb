// Package ingest defines the domain types shared by every stage of the scraper.
package ingest

import (
	"net/http"
	"time"
)

// Status is the lifecycle state of a work unit (work item or map).
type Status string

// Status values persisted in the store.
const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// EntityKind names a record family; used for quarantine entries and metrics.
type EntityKind string

// Entity kinds known to the validator.
const (
	KindWorkItem   EntityKind = "work_item"
	KindMatch      EntityKind = "match"
	KindMap        EntityKind = "map"
	KindVeto       EntityKind = "veto"
	KindRoster     EntityKind = "roster"
	KindPlayerStat EntityKind = "player_stat"
	KindRound      EntityKind = "round_outcome"
	KindEconomy    EntityKind = "economy"
)

// WorkItem is one discovered match result tracked through pending/done/failed.
type WorkItem struct {
	ExternalID   string    `json:"external_id"`
	Locator      string    `json:"locator"`
	DiscoveredAt time.Time `json:"discovered_at"`
	Status       Status    `json:"status"`
	// Variant marks forfeits and walkovers, which have no played maps.
	Variant   bool   `json:"variant"`
	Team1     string `json:"team1,omitempty"`
	Team2     string `json:"team2,omitempty"`
	Event     string `json:"event,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// Page is one completed offset of the results listing.
type Page struct {
	Offset      int       `json:"offset"`
	ItemCount   int       `json:"item_count"`
	CompletedAt time.Time `json:"completed_at"`
}

// Provenance is carried by every stored record.
type Provenance struct {
	FetchedAt     time.Time `json:"fetched_at"`
	SourceLocator string    `json:"source_locator"`
	ParserVersion string    `json:"parser_version"`
}

// Match is the top-level record of a played (or forfeited) series.
type Match struct {
	MatchID    string    `json:"match_id"`
	Team1ID    int64     `json:"team1_id"`
	Team1Name  string    `json:"team1_name"`
	Team2ID    int64     `json:"team2_id"`
	Team2Name  string    `json:"team2_name"`
	Team1Score int       `json:"team1_score"`
	Team2Score int       `json:"team2_score"`
	BestOf     int       `json:"best_of"`
	Event      string    `json:"event"`
	PlayedAt   time.Time `json:"played_at"`
	Provenance
}

// MapResult is one map played inside a match.
type MapResult struct {
	MatchID        string `json:"match_id"`
	Seq            int    `json:"map_seq"`
	Name           string `json:"map_name"`
	Team1Rounds    int    `json:"team1_rounds"`
	Team2Rounds    int    `json:"team2_rounds"`
	StatsLocator   string `json:"stats_locator"`
	EconomyLocator string `json:"economy_locator"`
	Provenance
}

// VetoAction is the kind of a veto step.
type VetoAction string

// Veto actions.
const (
	VetoPick     VetoAction = "pick"
	VetoBan      VetoAction = "ban"
	VetoLeftover VetoAction = "leftover"
)

// VetoStep is one line of the map veto.
type VetoStep struct {
	MatchID  string     `json:"match_id"`
	Step     int        `json:"step"`
	TeamName string     `json:"team_name,omitempty"`
	Action   VetoAction `json:"action"`
	MapName  string     `json:"map_name"`
	Provenance
}

// RosterEntry is one player fielded by a team in a match.
type RosterEntry struct {
	MatchID    string `json:"match_id"`
	PlayerID   int64  `json:"player_id"`
	PlayerName string `json:"player_name"`
	TeamSlot   int    `json:"team_slot"`
	Provenance
}

// PlayerStat is one player's scoreboard line for a map. Stat fields are
// optional because the source omits them for some older matches.
type PlayerStat struct {
	MatchID     string   `json:"match_id"`
	MapSeq      int      `json:"map_seq"`
	PlayerID    int64    `json:"player_id"`
	PlayerName  string   `json:"player_name"`
	TeamSlot    int      `json:"team_slot"`
	Kills       *int     `json:"kills"`
	Deaths      *int     `json:"deaths"`
	Assists     *int     `json:"assists"`
	KDDiff      *int     `json:"kd_diff"`
	ADR         *float64 `json:"adr"`
	KAST        *float64 `json:"kast"`
	HeadshotPct *float64 `json:"headshot_pct"`
	Rating      *float64 `json:"rating"`
	Provenance
}

// Side is a CS team side.
type Side string

// Sides.
const (
	SideCT Side = "CT"
	SideT  Side = "T"
)

// OutcomeKind is how a round ended.
type OutcomeKind string

// Round outcomes.
const (
	OutcomeElimination OutcomeKind = "elimination"
	OutcomeDetonation  OutcomeKind = "detonation"
	OutcomeDefusal     OutcomeKind = "defusal"
	OutcomeTimeExpiry  OutcomeKind = "time-expiry"
)

// RoundOutcome records the winner of one round.
type RoundOutcome struct {
	MatchID    string      `json:"match_id"`
	MapSeq     int         `json:"map_seq"`
	Round      int         `json:"round"`
	WinnerSlot int         `json:"winner_slot"`
	WinnerSide Side        `json:"winner_side"`
	Outcome    OutcomeKind `json:"outcome"`
	Provenance
}

// BuyType classifies a team's spend in a round.
type BuyType string

// Buy types.
const (
	BuyEco     BuyType = "eco"
	BuySemiEco BuyType = "semi-eco"
	BuySemiBuy BuyType = "semi-buy"
	BuyFull    BuyType = "full-buy"
)

// EconomySnapshot is one team's equipment value at the start of a round.
type EconomySnapshot struct {
	MatchID        string  `json:"match_id"`
	MapSeq         int     `json:"map_seq"`
	Round          int     `json:"round"`
	TeamSlot       int     `json:"team_slot"`
	EquipmentValue int     `json:"equipment_value"`
	BuyType        BuyType `json:"buy_type"`
	Provenance
}

// MapRef identifies a stored map awaiting (or holding) its detail stats.
type MapRef struct {
	MatchID        string `json:"match_id"`
	Seq            int    `json:"map_seq"`
	Name           string `json:"map_name"`
	Team1Rounds    int    `json:"team1_rounds"`
	Team2Rounds    int    `json:"team2_rounds"`
	StatsLocator   string `json:"stats_locator"`
	EconomyLocator string `json:"economy_locator"`
	Status         Status `json:"status"`
}

// MatchBundle is everything committed atomically for one work item.
type MatchBundle struct {
	Item   WorkItem
	Match  Match
	Maps   []MapResult
	Vetoes []VetoStep
	Roster []RosterEntry
}

// MapStats is the parsed content of a map stats document.
type MapStats struct {
	Players []PlayerStat
	Rounds  []RoundOutcome
}

// MapStatsBundle is everything committed atomically for one map.
type MapStatsBundle struct {
	Map     MapRef
	Players []PlayerStat
	Rounds  []RoundOutcome
	Economy []EconomySnapshot
}

// MapStatsResult reports what PersistMapStats actually wrote.
type MapStatsResult struct {
	Players        int
	Rounds         int
	Economy        int
	EconomySkipped int
}

// QuarantineEntry preserves a rejected candidate with its diagnostic.
type QuarantineEntry struct {
	ID          int64      `json:"id"`
	Kind        EntityKind `json:"entity_kind"`
	ParentID    string     `json:"parent_id"`
	Payload     string     `json:"payload"`
	Detail      string     `json:"error_detail"`
	Fingerprint string     `json:"fingerprint"`
	Resolved    bool       `json:"resolved"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Document is a fetched raw document.
type Document struct {
	Locator    string
	StatusCode int
	Body       []byte
	Headers    http.Header
	FetchedAt  time.Time
	Headless   bool
}

// Run is one CLI stage execution recorded in the run ledger.
type Run struct {
	ID         string     `json:"id"`
	Stage      string     `json:"stage"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Counts     RunCounts  `json:"counts"`
	Halted     bool       `json:"halted"`
	Reason     string     `json:"reason,omitempty"`
}

// RunCounts are the per-stage counters shown to the operator.
type RunCounts struct {
	Found       int `json:"found"`
	New         int `json:"new"`
	Parsed      int `json:"parsed"`
	Failed      int `json:"failed"`
	Quarantined int `json:"quarantined"`
}

// Counts tallies store contents for the status command.
type Counts struct {
	Items       map[Status]int `json:"items"`
	Maps        map[Status]int `json:"maps"`
	Pages       int            `json:"pages"`
	Quarantined int            `json:"quarantined"`
	Records     map[string]int `json:"records"`
}

// Selection chooses which work units a scrape snapshots.
type Selection struct {
	// Limit caps the snapshot; zero means no cap.
	Limit int
	// RetryFailed includes failed units.
	RetryFailed bool
	// Force includes done units for reprocessing.
	Force bool
}
