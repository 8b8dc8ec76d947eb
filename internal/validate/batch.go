package validate

import (
	"fmt"
	"sort"

	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
)

// PlayersPerMap is the expected scoreboard size of a completed map.
const PlayersPerMap = 10

// MapStatsWarnings runs the cardinality checks of one map. Irregular rosters
// are legitimate, so the results are warnings only.
func MapStatsWarnings(ref ingest.MapRef, players []ingest.PlayerStat, rounds []ingest.RoundOutcome, economy []ingest.EconomySnapshot) []string {
	var out []string
	if len(players) != PlayersPerMap {
		out = append(out, fmt.Sprintf("map has %d player stats, want %d", len(players), PlayersPerMap))
	}
	perSlot := map[int]int{}
	for _, p := range players {
		perSlot[p.TeamSlot]++
	}
	for _, slot := range []int{1, 2} {
		if perSlot[slot] != PlayersPerMap/2 {
			out = append(out, fmt.Sprintf("team %d has %d player stats, want %d", slot, perSlot[slot], PlayersPerMap/2))
		}
	}

	if want := ref.Team1Rounds + ref.Team2Rounds; want > 0 && len(rounds) != want {
		out = append(out, fmt.Sprintf("map has %d round outcomes, score says %d", len(rounds), want))
	}

	known := RoundSet(rounds)
	var orphans []int
	seen := map[int]bool{}
	for _, e := range economy {
		if !known[e.Round] && !seen[e.Round] {
			seen[e.Round] = true
			orphans = append(orphans, e.Round)
		}
	}
	if len(orphans) > 0 {
		sort.Ints(orphans)
		out = append(out, fmt.Sprintf("economy rounds without a round outcome: %v", orphans))
	}
	return out
}

// RoundSet indexes round numbers.
func RoundSet(rounds []ingest.RoundOutcome) map[int]bool {
	set := make(map[int]bool, len(rounds))
	for _, r := range rounds {
		set[r.Round] = true
	}
	return set
}
