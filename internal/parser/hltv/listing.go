package hltv

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
)

// ParseListing extracts the results of one listing page in page order.
// A page with the results container but no rows is a legitimate empty page.
func (p *Parser) ParseListing(doc ingest.Document) ([]ingest.WorkItem, error) {
	root, err := load(doc)
	if err != nil {
		return nil, err
	}
	container := root.Find(".results-all")
	if container.Length() == 0 {
		return nil, ingest.Missing(doc.Locator, "results container")
	}

	var items []ingest.WorkItem
	var rowErr error
	seen := map[string]bool{}
	container.Find(".result-con").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		href, ok := row.Find("a.a-reset").First().Attr("href")
		if !ok {
			rowErr = ingest.Missing(doc.Locator, "result link")
			return false
		}
		m := matchHrefRe.FindStringSubmatch(href)
		if m == nil {
			rowErr = ingest.Unexpected(doc.Locator, "result link", "not a match link: %q", href)
			return false
		}
		if seen[m[1]] {
			return true
		}
		seen[m[1]] = true
		items = append(items, ingest.WorkItem{
			ExternalID:   m[1],
			Locator:      resolve(doc.Locator, href),
			DiscoveredAt: doc.FetchedAt,
			Status:       ingest.StatusPending,
			Variant:      strings.EqualFold(text(row.Find(".map-text")), "def"),
			Team1:        text(row.Find(".team1 .team").First()),
			Team2:        text(row.Find(".team2 .team").First()),
			Event:        text(row.Find(".event-name").First()),
		})
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}
	return items, nil
}
