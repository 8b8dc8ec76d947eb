package hltv

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
)

var (
	bestOfRe   = regexp.MustCompile(`(?i)best of (\d+)`)
	vetoPickRe = regexp.MustCompile(`^(\d+)\.\s+(.+?)\s+(removed|picked)\s+(.+)$`)
	vetoLeftRe = regexp.MustCompile(`^(\d+)\.\s+(.+?)\s+was left over$`)
)

// ParseMatch extracts the match, its played maps, the veto and both lineups.
// Forfeits (item.Variant) carry no maps and may lack numeric scores.
func (p *Parser) ParseMatch(doc ingest.Document, item ingest.WorkItem) (ingest.MatchBundle, error) {
	root, err := load(doc)
	if err != nil {
		return ingest.MatchBundle{}, err
	}
	page := root.Find(".match-page")
	if page.Length() == 0 {
		return ingest.MatchBundle{}, ingest.Missing(doc.Locator, "match page")
	}
	prov := provenance(doc)

	match, err := parseMatchHeader(doc, page, item)
	if err != nil {
		return ingest.MatchBundle{}, err
	}
	match.Provenance = prov

	maps, err := parseMaps(doc, page, item.ExternalID, prov)
	if err != nil {
		return ingest.MatchBundle{}, err
	}
	if match.BestOf == 0 {
		match.BestOf = page.Find(".mapholder").Length()
	}

	return ingest.MatchBundle{
		Item:   item,
		Match:  match,
		Maps:   maps,
		Vetoes: parseVetoes(page, item.ExternalID, prov),
		Roster: parseRoster(page, item.ExternalID, prov),
	}, nil
}

func parseMatchHeader(doc ingest.Document, page *goquery.Selection, item ingest.WorkItem) (ingest.Match, error) {
	box := page.Find(".teamsBox")
	if box.Length() == 0 {
		return ingest.Match{}, ingest.Missing(doc.Locator, "teams box")
	}
	team1 := box.Find(".team1-gradient")
	team2 := box.Find(".team2-gradient")
	if team1.Length() == 0 || team2.Length() == 0 {
		return ingest.Match{}, ingest.Missing(doc.Locator, "team")
	}

	m := ingest.Match{
		MatchID:   item.ExternalID,
		Team1Name: text(team1.Find(".teamName").First()),
		Team2Name: text(team2.Find(".teamName").First()),
		Event:     text(box.Find(".timeAndEvent .event").First()),
	}
	if href, ok := team1.Find("a").First().Attr("href"); ok {
		m.Team1ID = idFromHref(teamHrefRe, href)
	}
	if href, ok := team2.Find("a").First().Attr("href"); ok {
		m.Team2ID = idFromHref(teamHrefRe, href)
	}

	score1, ok1 := leadingInt(text(team1.Find(".won, .lost, .tie").First()))
	score2, ok2 := leadingInt(text(team2.Find(".won, .lost, .tie").First()))
	switch {
	case ok1 && ok2 && score1 != nil && score2 != nil:
		m.Team1Score, m.Team2Score = *score1, *score2
	case !item.Variant:
		return ingest.Match{}, ingest.Unexpected(doc.Locator, "score", "team scores are not numeric")
	}

	if unix, ok := box.Find(".timeAndEvent .time").First().Attr("data-unix"); ok {
		ms, err := strconv.ParseInt(unix, 10, 64)
		if err != nil {
			return ingest.Match{}, ingest.Unexpected(doc.Locator, "date", "bad data-unix %q", unix)
		}
		m.PlayedAt = time.UnixMilli(ms).UTC()
	}

	if bo := bestOfRe.FindStringSubmatch(text(page.Find(".preformatted-text").First())); bo != nil {
		m.BestOf, _ = strconv.Atoi(bo[1])
	}
	return m, nil
}

func parseMaps(doc ingest.Document, page *goquery.Selection, matchID string, prov ingest.Provenance) ([]ingest.MapResult, error) {
	var (
		maps   []ingest.MapResult
		mapErr error
	)
	page.Find(".mapholder").EachWithBreak(func(_ int, holder *goquery.Selection) bool {
		if holder.Find(".played").Length() == 0 {
			return true
		}
		name := text(holder.Find(".mapname").First())
		if name == "" {
			mapErr = ingest.Missing(doc.Locator, "map name")
			return false
		}
		left, okLeft := leadingInt(text(holder.Find(".results-left .results-team-score").First()))
		right, okRight := leadingInt(text(holder.Find(".results-right .results-team-score").First()))
		if !okLeft || !okRight {
			mapErr = ingest.Unexpected(doc.Locator, "map score", "map %s score is not numeric", name)
			return false
		}
		if left == nil || right == nil {
			// Listed as played but never finished (e.g. a default win).
			return true
		}
		result := ingest.MapResult{
			MatchID:     matchID,
			Seq:         len(maps) + 1,
			Name:        name,
			Team1Rounds: *left,
			Team2Rounds: *right,
			Provenance:  prov,
		}
		if href, ok := holder.Find("a.results-stats").First().Attr("href"); ok {
			result.StatsLocator = resolve(doc.Locator, href)
			result.EconomyLocator = resolve(doc.Locator, economyHref(href))
		}
		maps = append(maps, result)
		return true
	})
	return maps, mapErr
}

// economyHref maps a map stats link to the economy tab of the same map.
func economyHref(statsHref string) string {
	return strings.Replace(statsHref, "/stats/matches/mapstatsid/", "/stats/matches/economy/mapstatsid/", 1)
}

func parseVetoes(page *goquery.Selection, matchID string, prov ingest.Provenance) []ingest.VetoStep {
	var steps []ingest.VetoStep
	page.Find(".veto-box .padding > div").Each(func(_ int, line *goquery.Selection) {
		raw := text(line)
		if m := vetoPickRe.FindStringSubmatch(raw); m != nil {
			step, _ := strconv.Atoi(m[1])
			action := ingest.VetoBan
			if m[3] == "picked" {
				action = ingest.VetoPick
			}
			steps = append(steps, ingest.VetoStep{
				MatchID: matchID, Step: step, TeamName: m[2], Action: action, MapName: m[4], Provenance: prov,
			})
			return
		}
		if m := vetoLeftRe.FindStringSubmatch(raw); m != nil {
			step, _ := strconv.Atoi(m[1])
			steps = append(steps, ingest.VetoStep{
				MatchID: matchID, Step: step, Action: ingest.VetoLeftover, MapName: m[2], Provenance: prov,
			})
		}
	})
	return steps
}

func parseRoster(page *goquery.Selection, matchID string, prov ingest.Provenance) []ingest.RosterEntry {
	var roster []ingest.RosterEntry
	page.Find(".lineups .lineup").Each(func(i int, lineup *goquery.Selection) {
		if i > 1 {
			return
		}
		seen := map[int64]bool{}
		lineup.Find(`td.player a[href*="/player/"]`).Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			id := idFromHref(playerHrefRe, href)
			name := text(a.Find(".text-ellipsis").First())
			// Photo links carry no name; the name row repeats the same href.
			if id == 0 || name == "" || seen[id] {
				return
			}
			seen[id] = true
			roster = append(roster, ingest.RosterEntry{
				MatchID:    matchID,
				PlayerID:   id,
				PlayerName: name,
				TeamSlot:   i + 1,
				Provenance: prov,
			})
		})
	})
	return roster
}
