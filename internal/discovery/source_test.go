package discovery

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/w1tte/hltv-scraper-sub000/internal/fetcher"
	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
	"github.com/w1tte/hltv-scraper-sub000/internal/parser/hltv"
)

type fileFetcher struct {
	body     []byte
	locators []string
}

func (f *fileFetcher) Fetch(_ context.Context, locator string) (ingest.Document, error) {
	f.locators = append(f.locators, locator)
	return ingest.Document{Locator: locator, StatusCode: 200, Body: f.body, FetchedAt: time.Now().UTC()}, nil
}

type noopPacer struct{}

func (noopPacer) Wait(context.Context) (time.Duration, error) { return 0, nil }
func (noopPacer) Backoff()                                    {}
func (noopPacer) Recover()                                    {}

func TestFetchingSourceParsesListing(t *testing.T) {
	body, err := os.ReadFile("../parser/hltv/testdata/listing.html")
	require.NoError(t, err)
	f := &fileFetcher{body: body}
	src := NewFetchingSource(fetcher.NewRetrier(fetcher.DefaultRetryConfig(), nil), f, noopPacer{}, hltv.New(), "https://www.hltv.org/")

	got, err := src.Listing(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.True(t, got[1].Variant)
	assert.Equal(t, []string{"https://www.hltv.org/results?offset=100"}, f.locators)
	assert.Equal(t, "https://www.hltv.org/results", src.Locator(0))
}

func TestFetchingSourceRejectsChallengePage(t *testing.T) {
	body, err := os.ReadFile("../parser/hltv/testdata/challenge.html")
	require.NoError(t, err)
	src := NewFetchingSource(fetcher.NewRetrier(fetcher.DefaultRetryConfig(), nil), &fileFetcher{body: body}, noopPacer{}, hltv.New(), "https://www.hltv.org")

	_, err = src.Listing(context.Background(), 0)
	var pe *ingest.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ingest.MissingField, pe.Reason)
}
