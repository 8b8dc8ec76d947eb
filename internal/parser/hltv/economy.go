package hltv

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
)

var buyTypeTitles = map[string]ingest.BuyType{
	"eco":      ingest.BuyEco,
	"semi-eco": ingest.BuySemiEco,
	"semi-buy": ingest.BuySemiBuy,
	"forcebuy": ingest.BuySemiBuy,
	"full-buy": ingest.BuyFull,
}

// ParseEconomy extracts one snapshot per team per round. Unknown buy-type
// titles are passed through so validation can reject them individually.
func (p *Parser) ParseEconomy(doc ingest.Document, ref ingest.MapRef) ([]ingest.EconomySnapshot, error) {
	root, err := load(doc)
	if err != nil {
		return nil, err
	}
	rows := root.Find("table.equipment-categories tr.team-categories")
	if rows.Length() != 2 {
		return nil, ingest.Missing(doc.Locator, "equipment categories")
	}
	prov := provenance(doc)

	var (
		out    []ingest.EconomySnapshot
		rowErr error
	)
	rows.EachWithBreak(func(i int, row *goquery.Selection) bool {
		row.Find("td.equipment-category-td").EachWithBreak(func(j int, cell *goquery.Selection) bool {
			round := j + 1
			if raw, ok := cell.Attr("data-round"); ok {
				n, err := strconv.Atoi(raw)
				if err != nil {
					rowErr = ingest.Unexpected(doc.Locator, "round", "bad data-round %q", raw)
					return false
				}
				round = n
			}
			title, _ := cell.Attr("title")
			value, ok := leadingInt(strings.TrimPrefix(title, "Equipment value: "))
			if !ok || value == nil {
				rowErr = ingest.Unexpected(doc.Locator, "equipment value", "round %d: %q", round, title)
				return false
			}
			buyTitle, _ := cell.Find("img.equipment-category").First().Attr("title")
			out = append(out, ingest.EconomySnapshot{
				MatchID:        ref.MatchID,
				MapSeq:         ref.Seq,
				Round:          round,
				TeamSlot:       i + 1,
				EquipmentValue: *value,
				BuyType:        normalizeBuyType(buyTitle),
				Provenance:     prov,
			})
			return true
		})
		return rowErr == nil
	})
	if rowErr != nil {
		return nil, rowErr
	}
	return out, nil
}

func normalizeBuyType(title string) ingest.BuyType {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(title)), " ", "-")
	if bt, ok := buyTypeTitles[key]; ok {
		return bt
	}
	return ingest.BuyType(key)
}
