package fetcher

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/w1tte/hltv-scraper-sub000/internal/fetcher/challenge"
	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	page := []byte(`<html><body><div class="match-page">content</div></body></html>`)
	d := challenge.New(10)
	cases := []struct {
		name   string
		status int
		body   []byte
		want   ingest.ErrorKind
	}{
		{"ok", http.StatusOK, page, ""},
		{"no response", 0, nil, ingest.ErrNetwork},
		{"forbidden", http.StatusForbidden, page, ingest.ErrBlocked},
		{"unavailable", http.StatusServiceUnavailable, nil, ingest.ErrBlocked},
		{"too many", http.StatusTooManyRequests, nil, ingest.ErrRateLimited},
		{"not found", http.StatusNotFound, nil, ingest.ErrNotFound},
		{"gone", http.StatusGone, nil, ingest.ErrNotFound},
		{"bad gateway", http.StatusBadGateway, nil, ingest.ErrNetwork},
		{"bad request", http.StatusBadRequest, nil, ingest.ErrTransport},
		{"empty body", http.StatusOK, []byte("  \n"), ingest.ErrTransport},
		{"challenge", http.StatusOK, []byte(`<title>Just a moment...</title>`), ingest.ErrBlocked},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.status, tc.body, d))
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 30*time.Second, ParseRetryAfter("30", now))
	assert.Zero(t, ParseRetryAfter("", now))
	assert.Zero(t, ParseRetryAfter("-4", now))
	assert.Equal(t, 90*time.Second, ParseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), now))
	assert.Zero(t, ParseRetryAfter("soon", now))
}
