package hltv

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
)

var fetchedAt = time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC)

func fixture(t *testing.T, name, locator string) ingest.Document {
	t.Helper()
	body, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return ingest.Document{Locator: locator, StatusCode: 200, Body: body, FetchedAt: fetchedAt}
}

func TestParseListing(t *testing.T) {
	t.Parallel()

	doc := fixture(t, "listing.html", "https://www.hltv.org/results?offset=0")
	items, err := New().ParseListing(doc)
	require.NoError(t, err)
	require.Len(t, items, 3, "duplicate rows collapse")

	assert.Equal(t, ingest.WorkItem{
		ExternalID:   "2371234",
		Locator:      "https://www.hltv.org/matches/2371234/alpha-vs-bravo-spring-cup",
		DiscoveredAt: fetchedAt,
		Status:       ingest.StatusPending,
		Team1:        "Alpha",
		Team2:        "Bravo",
		Event:        "Spring Cup 2024",
	}, items[0])
	assert.True(t, items[1].Variant, "def results are forfeits")
	assert.False(t, items[2].Variant)
	assert.Equal(t, "2371229", items[2].ExternalID)
}

func TestParseListingEmptyAndChallenge(t *testing.T) {
	t.Parallel()

	p := New()
	items, err := p.ParseListing(fixture(t, "listing_empty.html", "https://www.hltv.org/results?offset=9000"))
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = p.ParseListing(fixture(t, "challenge.html", "https://www.hltv.org/results?offset=0"))
	var pe *ingest.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ingest.MissingField, pe.Reason)
}

func TestParseListingRejectsForeignLinks(t *testing.T) {
	t.Parallel()

	doc := ingest.Document{
		Locator: "https://www.hltv.org/results?offset=0",
		Body:    []byte(`<div class="results-all"><div class="result-con"><a class="a-reset" href="/news/1/x">x</a></div></div>`),
	}
	_, err := New().ParseListing(doc)
	var pe *ingest.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ingest.UnexpectedShape, pe.Reason)
}

func TestParseMatch(t *testing.T) {
	t.Parallel()

	locator := "https://www.hltv.org/matches/2371234/alpha-vs-bravo-spring-cup"
	item := ingest.WorkItem{ExternalID: "2371234", Locator: locator}
	bundle, err := New().ParseMatch(fixture(t, "match.html", locator), item)
	require.NoError(t, err)

	m := bundle.Match
	assert.Equal(t, "2371234", m.MatchID)
	assert.Equal(t, int64(1001), m.Team1ID)
	assert.Equal(t, "Alpha", m.Team1Name)
	assert.Equal(t, int64(1002), m.Team2ID)
	assert.Equal(t, "Bravo", m.Team2Name)
	assert.Equal(t, 2, m.Team1Score)
	assert.Equal(t, 1, m.Team2Score)
	assert.Equal(t, 3, m.BestOf)
	assert.Equal(t, "Spring Cup 2024", m.Event)
	assert.Equal(t, time.UnixMilli(1714560000000).UTC(), m.PlayedAt)
	assert.Equal(t, Version, m.ParserVersion)
	assert.Equal(t, locator, m.SourceLocator)
	assert.Equal(t, fetchedAt, m.FetchedAt)

	require.Len(t, bundle.Maps, 3)
	first := bundle.Maps[0]
	assert.Equal(t, 1, first.Seq)
	assert.Equal(t, "Mirage", first.Name)
	assert.Equal(t, 13, first.Team1Rounds)
	assert.Equal(t, 11, first.Team2Rounds)
	assert.Equal(t, "https://www.hltv.org/stats/matches/mapstatsid/170001/alpha-vs-bravo", first.StatsLocator)
	assert.Equal(t, "https://www.hltv.org/stats/matches/economy/mapstatsid/170001/alpha-vs-bravo", first.EconomyLocator)
	assert.Equal(t, 3, bundle.Maps[2].Seq)
	assert.Equal(t, 16, bundle.Maps[2].Team1Rounds)

	require.Len(t, bundle.Vetoes, 7)
	assert.Equal(t, ingest.VetoStep{MatchID: "2371234", Step: 1, TeamName: "Alpha", Action: ingest.VetoBan, MapName: "Nuke", Provenance: m.Provenance}, bundle.Vetoes[0])
	assert.Equal(t, ingest.VetoPick, bundle.Vetoes[2].Action)
	assert.Equal(t, "Mirage", bundle.Vetoes[2].MapName)
	assert.Equal(t, ingest.VetoLeftover, bundle.Vetoes[6].Action)
	assert.Empty(t, bundle.Vetoes[6].TeamName)
	assert.Equal(t, "Inferno", bundle.Vetoes[6].MapName)

	require.Len(t, bundle.Roster, 10, "photo and name links collapse per player")
	assert.Equal(t, int64(7001), bundle.Roster[0].PlayerID)
	assert.Equal(t, "apex", bundle.Roster[0].PlayerName)
	assert.Equal(t, 1, bundle.Roster[0].TeamSlot)
	assert.Equal(t, 2, bundle.Roster[9].TeamSlot)
	assert.Equal(t, int64(8005), bundle.Roster[9].PlayerID)
}

func TestParseMatchForfeit(t *testing.T) {
	t.Parallel()

	locator := "https://www.hltv.org/matches/2371230/charlie-vs-delta-spring-cup"
	p := New()
	doc := fixture(t, "match_forfeit.html", locator)

	bundle, err := p.ParseMatch(doc, ingest.WorkItem{ExternalID: "2371230", Variant: true})
	require.NoError(t, err)
	assert.Empty(t, bundle.Maps)
	assert.Equal(t, 1, bundle.Match.BestOf)
	assert.Zero(t, bundle.Match.Team1Score)

	_, err = p.ParseMatch(doc, ingest.WorkItem{ExternalID: "2371230"})
	var pe *ingest.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ingest.UnexpectedShape, pe.Reason)
	assert.Equal(t, "score", pe.Field)
}

func TestParseMatchMissingPage(t *testing.T) {
	t.Parallel()

	_, err := New().ParseMatch(fixture(t, "challenge.html", "https://www.hltv.org/matches/1/x"), ingest.WorkItem{ExternalID: "1"})
	var pe *ingest.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ingest.MissingField, pe.Reason)
}

func TestParseMapStats(t *testing.T) {
	t.Parallel()

	ref := ingest.MapRef{MatchID: "2371234", Seq: 1, Name: "Mirage", Team1Rounds: 13, Team2Rounds: 11}
	stats, err := New().ParseMapStats(fixture(t, "mapstats.html", "https://www.hltv.org/stats/matches/mapstatsid/170001/alpha-vs-bravo"), ref)
	require.NoError(t, err)

	require.Len(t, stats.Players, 10)
	apex := stats.Players[0]
	assert.Equal(t, int64(7001), apex.PlayerID)
	assert.Equal(t, "apex", apex.PlayerName)
	assert.Equal(t, 1, apex.TeamSlot)
	assert.Equal(t, 24, *apex.Kills)
	assert.Equal(t, 15, *apex.Deaths)
	assert.Equal(t, 3, *apex.Assists)
	assert.Equal(t, 9, *apex.KDDiff)
	assert.InDelta(t, 92.4, *apex.ADR, 1e-9)
	assert.InDelta(t, 76.0, *apex.KAST, 1e-9)
	assert.InDelta(t, 1.38, *apex.Rating, 1e-9)
	assert.InDelta(t, 25.0, *apex.HeadshotPct, 1e-9)
	assert.Equal(t, 2, stats.Players[5].TeamSlot)
	assert.Equal(t, 2, *stats.Players[5].KDDiff)
	assert.Equal(t, -2, *stats.Players[2].KDDiff)

	golden := readRounds(t)
	require.Len(t, stats.Rounds, 24)
	wins := map[int]int{}
	for i, r := range stats.Rounds {
		assert.Equal(t, golden[i].round, r.Round)
		assert.Equal(t, golden[i].slot, r.WinnerSlot, "round %d", r.Round)
		want := outcomeIcons[golden[i].icon]
		assert.Equal(t, want.side, r.WinnerSide)
		assert.Equal(t, want.outcome, r.Outcome)
		wins[r.WinnerSlot]++
	}
	assert.Equal(t, 13, wins[1])
	assert.Equal(t, 11, wins[2])
}

func TestParseMapStatsRejectsDoubleWinner(t *testing.T) {
	t.Parallel()

	body := `<div class="round-history-con">
<div class="round-history-team-row"><img class="round-history-outcome" src="/ct_win.svg"></div>
<div class="round-history-team-row"><img class="round-history-outcome" src="/t_win.svg"></div>
</div>
<table class="stats-table totalstats"><tbody></tbody></table>
<table class="stats-table totalstats"><tbody></tbody></table>`
	_, err := New().ParseMapStats(ingest.Document{Locator: "loc", Body: []byte(body)}, ingest.MapRef{MatchID: "1", Seq: 1})
	var pe *ingest.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ingest.UnexpectedShape, pe.Reason)
}

func TestParseEconomy(t *testing.T) {
	t.Parallel()

	ref := ingest.MapRef{MatchID: "2371234", Seq: 1}
	snaps, err := New().ParseEconomy(fixture(t, "economy.html", "https://www.hltv.org/stats/matches/economy/mapstatsid/170001/alpha-vs-bravo"), ref)
	require.NoError(t, err)
	require.Len(t, snaps, 48)

	first := snaps[0]
	assert.Equal(t, 1, first.Round)
	assert.Equal(t, 1, first.TeamSlot)
	assert.Equal(t, 4000, first.EquipmentValue)
	assert.Equal(t, ingest.BuyEco, first.BuyType)
	assert.Equal(t, 2, snaps[24].TeamSlot)
	assert.Equal(t, 1, snaps[24].Round)

	valid := map[ingest.BuyType]bool{ingest.BuyEco: true, ingest.BuySemiEco: true, ingest.BuySemiBuy: true, ingest.BuyFull: true}
	for _, s := range snaps {
		assert.True(t, valid[s.BuyType], "round %d slot %d: %q", s.Round, s.TeamSlot, s.BuyType)
	}
}

func TestNormalizeBuyType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ingest.BuyFull, normalizeBuyType("Full buy"))
	assert.Equal(t, ingest.BuySemiBuy, normalizeBuyType("Forcebuy"))
	assert.Equal(t, ingest.BuyType("pistol-round"), normalizeBuyType("Pistol round"))
}

type goldenRound struct {
	round, slot int
	icon        string
}

func readRounds(t *testing.T) []goldenRound {
	t.Helper()
	f, err := os.Open(filepath.Join("testdata", "mapstats_rounds.golden"))
	require.NoError(t, err)
	defer f.Close()

	var out []goldenRound
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		parts := strings.Fields(sc.Text())
		require.Len(t, parts, 3)
		round, err := strconv.Atoi(parts[0])
		require.NoError(t, err)
		slot, err := strconv.Atoi(parts[1])
		require.NoError(t, err)
		out = append(out, goldenRound{round: round, slot: slot, icon: parts[2]})
	}
	require.NoError(t, sc.Err())
	return out
}
