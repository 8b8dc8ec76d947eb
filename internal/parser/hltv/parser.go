// Package hltv parses HLTV result listings, match pages, map stats pages and
// economy pages into ingest records. Parsing is pure: the same document always
// yields the same records.
package hltv

import (
	"bytes"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
)

// Version is stamped on every record as its parser version.
const Version = "hltv/1"

var (
	matchHrefRe  = regexp.MustCompile(`^/matches/(\d+)/`)
	teamHrefRe   = regexp.MustCompile(`/team/(\d+)/`)
	playerHrefRe = regexp.MustCompile(`/(?:stats/)?players?/(\d+)/`)
	leadingIntRe = regexp.MustCompile(`^[+-]?\d+`)
)

// Parser implements every ingest parser interface for HLTV markup.
type Parser struct{}

// New returns a Parser.
func New() *Parser { return &Parser{} }

func load(doc ingest.Document) (*goquery.Document, error) {
	root, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
	if err != nil {
		return nil, ingest.Unexpected(doc.Locator, "document", "%v", err)
	}
	return root, nil
}

func provenance(doc ingest.Document) ingest.Provenance {
	return ingest.Provenance{
		FetchedAt:     doc.FetchedAt,
		SourceLocator: doc.Locator,
		ParserVersion: Version,
	}
}

// resolve turns an href into an absolute locator relative to the document.
func resolve(base, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	b, err := url.Parse(base)
	if err != nil || !b.IsAbs() {
		return ref.String()
	}
	return b.ResolveReference(ref).String()
}

func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

func idFromHref(re *regexp.Regexp, href string) int64 {
	m := re.FindStringSubmatch(href)
	if m == nil {
		return 0
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// leadingInt parses "20 (5)" as 20 and "+5" as 5. Dashes and blanks are absent.
func leadingInt(raw string) (*int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "-" {
		return nil, true
	}
	m := leadingIntRe.FindString(raw)
	if m == "" {
		return nil, false
	}
	v, err := strconv.Atoi(strings.TrimPrefix(m, "+"))
	if err != nil {
		return nil, false
	}
	return &v, true
}

// optionalFloat parses "85.2" or "71.4%". Dashes and blanks are absent.
func optionalFloat(raw string) (*float64, bool) {
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "%")
	if raw == "" || raw == "-" {
		return nil, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, false
	}
	return &v, true
}
