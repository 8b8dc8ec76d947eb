package validate

import (
	"fmt"
	"strconv"

	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
)

// Soft thresholds; values above them are logged, not rejected.
const (
	SuspiciousRating    = 3.0
	SuspiciousADR       = 200.0
	SuspiciousEquipment = 40000
)

// MatchSchema validates match records.
var MatchSchema = Schema[ingest.Match]{
	Kind:   ingest.KindMatch,
	Parent: func(m ingest.Match) string { return m.MatchID },
	Rules: []Rule[ingest.Match]{
		required("match_id", func(m ingest.Match) string { return m.MatchID }),
		required("team1_name", func(m ingest.Match) string { return m.Team1Name }),
		required("team2_name", func(m ingest.Match) string { return m.Team2Name }),
		nonNegative("team1_score", func(m ingest.Match) int { return m.Team1Score }),
		nonNegative("team2_score", func(m ingest.Match) int { return m.Team2Score }),
		positive("best_of", func(m ingest.Match) int { return m.BestOf }),
	},
}

// MapSchema validates played maps of a match.
var MapSchema = Schema[ingest.MapResult]{
	Kind:   ingest.KindMap,
	Parent: func(m ingest.MapResult) string { return m.MatchID },
	Rules: []Rule[ingest.MapResult]{
		required("match_id", func(m ingest.MapResult) string { return m.MatchID }),
		positive("map_seq", func(m ingest.MapResult) int { return m.Seq }),
		required("map_name", func(m ingest.MapResult) string { return m.Name }),
		nonNegative("team1_rounds", func(m ingest.MapResult) int { return m.Team1Rounds }),
		nonNegative("team2_rounds", func(m ingest.MapResult) int { return m.Team2Rounds }),
		positive("rounds", func(m ingest.MapResult) int { return m.Team1Rounds + m.Team2Rounds }),
	},
}

// VetoSchema validates veto steps.
var VetoSchema = Schema[ingest.VetoStep]{
	Kind:   ingest.KindVeto,
	Parent: func(v ingest.VetoStep) string { return v.MatchID },
	Rules: []Rule[ingest.VetoStep]{
		required("match_id", func(v ingest.VetoStep) string { return v.MatchID }),
		positive("step", func(v ingest.VetoStep) int { return v.Step }),
		required("map_name", func(v ingest.VetoStep) string { return v.MapName }),
		oneOf("action", func(v ingest.VetoStep) ingest.VetoAction { return v.Action },
			ingest.VetoPick, ingest.VetoBan, ingest.VetoLeftover),
		func(v ingest.VetoStep) string {
			if v.Action != ingest.VetoLeftover && v.TeamName == "" {
				return "team_name is required for " + string(v.Action)
			}
			return ""
		},
	},
}

// RosterSchema validates lineup entries.
var RosterSchema = Schema[ingest.RosterEntry]{
	Kind:   ingest.KindRoster,
	Parent: func(r ingest.RosterEntry) string { return r.MatchID },
	Rules: []Rule[ingest.RosterEntry]{
		required("match_id", func(r ingest.RosterEntry) string { return r.MatchID }),
		positive("player_id", func(r ingest.RosterEntry) int64 { return r.PlayerID }),
		required("player_name", func(r ingest.RosterEntry) string { return r.PlayerName }),
		teamSlot(func(r ingest.RosterEntry) int { return r.TeamSlot }),
	},
}

// PlayerStatSchema validates scoreboard lines.
var PlayerStatSchema = Schema[ingest.PlayerStat]{
	Kind:   ingest.KindPlayerStat,
	Parent: func(p ingest.PlayerStat) string { return mapParent(p.MatchID, p.MapSeq) },
	Rules: []Rule[ingest.PlayerStat]{
		required("match_id", func(p ingest.PlayerStat) string { return p.MatchID }),
		positive("map_seq", func(p ingest.PlayerStat) int { return p.MapSeq }),
		positive("player_id", func(p ingest.PlayerStat) int64 { return p.PlayerID }),
		teamSlot(func(p ingest.PlayerStat) int { return p.TeamSlot }),
		optionalIntMin("kills", func(p ingest.PlayerStat) *int { return p.Kills }, 0),
		optionalIntMin("deaths", func(p ingest.PlayerStat) *int { return p.Deaths }, 0),
		optionalIntMin("assists", func(p ingest.PlayerStat) *int { return p.Assists }, 0),
		kdDiffConsistent,
		optionalRange("kast", func(p ingest.PlayerStat) *float64 { return p.KAST }, 0, 100),
		optionalRange("headshot_pct", func(p ingest.PlayerStat) *float64 { return p.HeadshotPct }, 0, 100),
		optionalMin("adr", func(p ingest.PlayerStat) *float64 { return p.ADR }, 0),
		optionalMin("rating", func(p ingest.PlayerStat) *float64 { return p.Rating }, 0),
	},
	Warnings: []Rule[ingest.PlayerStat]{
		softMax("rating", func(p ingest.PlayerStat) *float64 { return p.Rating }, SuspiciousRating),
		softMax("adr", func(p ingest.PlayerStat) *float64 { return p.ADR }, SuspiciousADR),
	},
}

// kdDiffConsistent requires kd_diff == kills - deaths when all three are present.
func kdDiffConsistent(p ingest.PlayerStat) string {
	if p.Kills == nil || p.Deaths == nil || p.KDDiff == nil {
		return ""
	}
	if want := *p.Kills - *p.Deaths; *p.KDDiff != want {
		return fmt.Sprintf("kd_diff %d does not equal kills - deaths (%d)", *p.KDDiff, want)
	}
	return ""
}

// RoundSchema validates round outcomes.
var RoundSchema = Schema[ingest.RoundOutcome]{
	Kind:   ingest.KindRound,
	Parent: func(r ingest.RoundOutcome) string { return mapParent(r.MatchID, r.MapSeq) },
	Rules: []Rule[ingest.RoundOutcome]{
		required("match_id", func(r ingest.RoundOutcome) string { return r.MatchID }),
		positive("map_seq", func(r ingest.RoundOutcome) int { return r.MapSeq }),
		positive("round", func(r ingest.RoundOutcome) int { return r.Round }),
		teamSlot(func(r ingest.RoundOutcome) int { return r.WinnerSlot }),
		oneOf("winner_side", func(r ingest.RoundOutcome) ingest.Side { return r.WinnerSide },
			ingest.SideCT, ingest.SideT),
		oneOf("outcome", func(r ingest.RoundOutcome) ingest.OutcomeKind { return r.Outcome },
			ingest.OutcomeElimination, ingest.OutcomeDetonation, ingest.OutcomeDefusal, ingest.OutcomeTimeExpiry),
	},
}

// EconomySchema validates economy snapshots.
var EconomySchema = Schema[ingest.EconomySnapshot]{
	Kind:   ingest.KindEconomy,
	Parent: func(e ingest.EconomySnapshot) string { return mapParent(e.MatchID, e.MapSeq) },
	Rules: []Rule[ingest.EconomySnapshot]{
		required("match_id", func(e ingest.EconomySnapshot) string { return e.MatchID }),
		positive("map_seq", func(e ingest.EconomySnapshot) int { return e.MapSeq }),
		positive("round", func(e ingest.EconomySnapshot) int { return e.Round }),
		teamSlot(func(e ingest.EconomySnapshot) int { return e.TeamSlot }),
		nonNegative("equipment_value", func(e ingest.EconomySnapshot) int { return e.EquipmentValue }),
		oneOf("buy_type", func(e ingest.EconomySnapshot) ingest.BuyType { return e.BuyType },
			ingest.BuyEco, ingest.BuySemiEco, ingest.BuySemiBuy, ingest.BuyFull),
	},
	Warnings: []Rule[ingest.EconomySnapshot]{
		func(e ingest.EconomySnapshot) string {
			if e.EquipmentValue > SuspiciousEquipment {
				return fmt.Sprintf("equipment_value %d above %d", e.EquipmentValue, SuspiciousEquipment)
			}
			return ""
		},
	},
}

func mapParent(matchID string, seq int) string {
	return matchID + "/" + strconv.Itoa(seq)
}
