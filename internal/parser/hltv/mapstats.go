package hltv

import (
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
)

// outcomeIcons maps round-history icons to the winning side and outcome.
var outcomeIcons = map[string]struct {
	side    ingest.Side
	outcome ingest.OutcomeKind
}{
	"ct_win.svg":        {ingest.SideCT, ingest.OutcomeElimination},
	"t_win.svg":         {ingest.SideT, ingest.OutcomeElimination},
	"bomb_exploded.svg": {ingest.SideT, ingest.OutcomeDetonation},
	"bomb_defused.svg":  {ingest.SideCT, ingest.OutcomeDefusal},
	"stopwatch.svg":     {ingest.SideCT, ingest.OutcomeTimeExpiry},
}

// ParseMapStats extracts both scoreboards and the round history of one map.
func (p *Parser) ParseMapStats(doc ingest.Document, ref ingest.MapRef) (ingest.MapStats, error) {
	root, err := load(doc)
	if err != nil {
		return ingest.MapStats{}, err
	}
	prov := provenance(doc)

	tables := root.Find("table.stats-table.totalstats")
	if tables.Length() < 2 {
		return ingest.MapStats{}, ingest.Missing(doc.Locator, "scoreboards")
	}
	var players []ingest.PlayerStat
	var tableErr error
	tables.EachWithBreak(func(i int, table *goquery.Selection) bool {
		if i > 1 {
			return false
		}
		rows, err := parseScoreboard(doc, table, ref, i+1, prov)
		if err != nil {
			tableErr = err
			return false
		}
		players = append(players, rows...)
		return true
	})
	if tableErr != nil {
		return ingest.MapStats{}, tableErr
	}

	rounds, err := parseRoundHistory(doc, root, ref, prov)
	if err != nil {
		return ingest.MapStats{}, err
	}
	return ingest.MapStats{Players: players, Rounds: rounds}, nil
}

func parseScoreboard(doc ingest.Document, table *goquery.Selection, ref ingest.MapRef, slot int, prov ingest.Provenance) ([]ingest.PlayerStat, error) {
	var (
		out    []ingest.PlayerStat
		rowErr error
	)
	table.Find("tbody tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		link := row.Find("td.st-player a").First()
		href, _ := link.Attr("href")
		stat := ingest.PlayerStat{
			MatchID:    ref.MatchID,
			MapSeq:     ref.Seq,
			PlayerID:   idFromHref(playerHrefRe, href),
			PlayerName: text(link),
			TeamSlot:   slot,
			Provenance: prov,
		}

		ints := []struct {
			class string
			dst   **int
		}{
			{"st-kills", &stat.Kills},
			{"st-assists", &stat.Assists},
			{"st-deaths", &stat.Deaths},
			{"st-kddiff", &stat.KDDiff},
		}
		for _, f := range ints {
			v, ok := leadingInt(text(row.Find("td." + f.class).First()))
			if !ok {
				rowErr = ingest.Unexpected(doc.Locator, f.class, "player %q", stat.PlayerName)
				return false
			}
			*f.dst = v
		}

		floats := []struct {
			class string
			dst   **float64
		}{
			{"st-adr", &stat.ADR},
			{"st-kast", &stat.KAST},
			{"st-rating", &stat.Rating},
		}
		for _, f := range floats {
			v, ok := optionalFloat(text(row.Find("td." + f.class).First()))
			if !ok {
				rowErr = ingest.Unexpected(doc.Locator, f.class, "player %q", stat.PlayerName)
				return false
			}
			*f.dst = v
		}

		stat.HeadshotPct = headshotPct(text(row.Find("td.st-kills").First()), stat.Kills)
		out = append(out, stat)
		return true
	})
	return out, rowErr
}

// headshotPct reads "20 (5)" as 5 headshots out of 20 kills.
func headshotPct(raw string, kills *int) *float64 {
	open := strings.Index(raw, "(")
	closing := strings.Index(raw, ")")
	if kills == nil || *kills == 0 || open < 0 || closing < open {
		return nil
	}
	hs, ok := leadingInt(raw[open+1 : closing])
	if !ok || hs == nil {
		return nil
	}
	pct := float64(*hs) * 100 / float64(*kills)
	return &pct
}

func parseRoundHistory(doc ingest.Document, root *goquery.Document, ref ingest.MapRef, prov ingest.Provenance) ([]ingest.RoundOutcome, error) {
	rows := root.Find(".round-history-con .round-history-team-row")
	if rows.Length() != 2 {
		return nil, ingest.Missing(doc.Locator, "round history")
	}
	icons := make([][]string, 2)
	rows.Each(func(i int, row *goquery.Selection) {
		row.Find("img.round-history-outcome").Each(func(_ int, img *goquery.Selection) {
			src, _ := img.Attr("src")
			icons[i] = append(icons[i], path.Base(src))
		})
	})
	if len(icons[0]) != len(icons[1]) {
		return nil, ingest.Unexpected(doc.Locator, "round history", "rows differ in length: %d vs %d", len(icons[0]), len(icons[1]))
	}

	var rounds []ingest.RoundOutcome
	for i := range icons[0] {
		won1, ok1 := outcomeIcons[icons[0][i]]
		won2, ok2 := outcomeIcons[icons[1][i]]
		switch {
		case ok1 && ok2:
			return nil, ingest.Unexpected(doc.Locator, "round history", "round %d has two winners", i+1)
		case !ok1 && !ok2:
			continue
		}
		slot, win := 1, won1
		if ok2 {
			slot, win = 2, won2
		}
		rounds = append(rounds, ingest.RoundOutcome{
			MatchID:    ref.MatchID,
			MapSeq:     ref.Seq,
			Round:      i + 1,
			WinnerSlot: slot,
			WinnerSide: win.side,
			Outcome:    win.outcome,
			Provenance: prov,
		})
	}
	return rounds, nil
}
