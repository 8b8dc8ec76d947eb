package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/w1tte/hltv-scraper-sub000/internal/app"
	"github.com/w1tte/hltv-scraper-sub000/internal/config"
	"github.com/w1tte/hltv-scraper-sub000/internal/discovery"
	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
	"github.com/w1tte/hltv-scraper-sub000/internal/pipeline"
	"github.com/w1tte/hltv-scraper-sub000/internal/publisher/memory"
)

// site serves the parser fixtures under the paths the listing links to.
func site(t *testing.T) *httptest.Server {
	t.Helper()
	pages := map[string]string{
		"/matches/2371234/alpha-vs-bravo-spring-cup":             "match.html",
		"/matches/2371230/charlie-vs-delta-spring-cup":           "match_forfeit.html",
		"/stats/matches/mapstatsid/170001/alpha-vs-bravo":         "mapstats.html",
		"/stats/matches/economy/mapstatsid/170001/alpha-vs-bravo": "economy.html",
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, ok := pages[r.URL.Path]
		if r.URL.Path == "/results" {
			name, ok = "listing.html", true
			if r.URL.Query().Get("offset") != "" {
				name = "listing_empty.html"
			}
		}
		if !ok {
			http.NotFound(w, r)
			return
		}
		body, err := os.ReadFile(filepath.Join("..", "parser", "hltv", "testdata", name))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(dataDir, baseURL string) config.Config {
	return config.Config{
		App:      config.AppConfig{DataDir: dataDir},
		Database: config.DatabaseConfig{Driver: "sqlite"},
		Fetch: config.FetchConfig{
			Engine:      "colly",
			BaseURL:     baseURL,
			UserAgent:   "hltv-scraper-test",
			Timeout:     5 * time.Second,
			MaxAttempts: 1,
			BackoffBase: time.Millisecond,
			BackoffMax:  time.Millisecond,
		},
		Pacing: config.PacingConfig{
			Floor:         time.Millisecond,
			Ceiling:       10 * time.Millisecond,
			BackoffFactor: 2,
			RecoverFactor: 0.5,
		},
		Discovery: config.DiscoveryConfig{PageSize: 100, Mode: "incremental"},
		Pipeline: config.PipelineConfig{
			Workers:          2,
			BatchSize:        3,
			FailureThreshold: 10,
		},
		Archive:   config.ArchiveConfig{Provider: "local"},
		Publisher: config.PublisherConfig{Provider: "memory", Topic: "hltv-units"},
	}
}

func newApp(t *testing.T, cfg config.Config) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), cfg, zap.NewNop(), app.WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	return a
}

func TestNewOnEmptyDataDir(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := newApp(t, testConfig(t.TempDir(), "http://127.0.0.1:1"))

	status, err := a.Status(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, status.Runs)
	assert.Zero(t, status.Counts.Pages)
	assert.Zero(t, status.Counts.Quarantined)

	entries, err := a.Quarantine(ctx, true, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, a.Close(ctx))
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t.TempDir(), "http://127.0.0.1:1")
	cfg.Database.Driver = "mysql"

	_, err := app.New(context.Background(), cfg, nil, app.WithRegisterer(prometheus.NewRegistry()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open store")
}

func TestStages(t *testing.T) {
	t.Parallel()
	a := newApp(t, testConfig(t.TempDir(), "http://127.0.0.1:1"))
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	all, err := a.Stages(app.StageAll)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, pipeline.StageMatches, all[0].Name())
	assert.Equal(t, pipeline.StageMaps, all[1].Name())

	maps, err := a.Stages(pipeline.StageMaps)
	require.NoError(t, err)
	require.Len(t, maps, 1)

	_, err = a.Stages("players")
	require.Error(t, err)
}

func TestDiscoverRejectsMisalignedStart(t *testing.T) {
	t.Parallel()
	a := newApp(t, testConfig(t.TempDir(), "http://127.0.0.1:1"))
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	cfg := a.DiscoveryConfig()
	cfg.Start = 50
	_, err := a.Discover(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discovery config")
}

func TestRunAllEndToEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv := site(t)
	dataDir := t.TempDir()
	cfg := testConfig(dataDir, srv.URL)

	a := newApp(t, cfg)
	drep, reports, err := a.RunAll(ctx, a.DiscoveryConfig(), ingest.Selection{})
	require.NoError(t, err)

	assert.Equal(t, 3, drep.New)
	assert.Equal(t, discovery.StopEndOfCatalog, drep.StopReason)
	require.Len(t, reports, 2)
	assert.Equal(t, 3, reports[0].Found)
	assert.Equal(t, 2, reports[0].Done)
	assert.Equal(t, 1, reports[0].Failed)
	assert.Equal(t, 3, reports[1].Found)
	assert.Equal(t, 1, reports[1].Done)
	assert.Equal(t, 2, reports[1].Failed)
	assert.False(t, reports[1].Halted)

	status, err := a.Status(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, status.Counts.Items[ingest.StatusDone])
	assert.Equal(t, 1, status.Counts.Items[ingest.StatusFailed])
	assert.Equal(t, 1, status.Counts.Maps[ingest.StatusDone])
	assert.Equal(t, 1, status.Counts.Pages)

	pub, ok := a.Publisher().(*memory.Publisher)
	require.True(t, ok)
	assert.Len(t, pub.Messages(), 3)

	archived, err := filepath.Glob(filepath.Join(dataDir, "raw", "raw", "*", "*.html"))
	require.NoError(t, err)
	assert.Len(t, archived, 4)

	require.NoError(t, a.Close(ctx))

	// The run ledger is flushed on close and survives a restart.
	again := newApp(t, cfg)
	t.Cleanup(func() { _ = again.Close(context.Background()) })
	status, err = again.Status(ctx, 10)
	require.NoError(t, err)
	require.Len(t, status.Runs, 3)
	stages := map[string]bool{}
	for _, r := range status.Runs {
		stages[r.Stage] = true
		assert.NotNil(t, r.FinishedAt)
		assert.False(t, r.Halted)
	}
	assert.Equal(t, map[string]bool{app.StageDiscover: true, pipeline.StageMatches: true, pipeline.StageMaps: true}, stages)

	// A second incremental run finds nothing new and scrapes nothing.
	drep, reports, err = again.RunAll(ctx, again.DiscoveryConfig(), ingest.Selection{})
	require.NoError(t, err)
	assert.Zero(t, drep.New)
	require.Len(t, reports, 2)
	assert.Zero(t, reports[0].Found)
	assert.Zero(t, reports[1].Found)
}

func TestScrapeRetryFailedReselectsFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv := site(t)
	a := newApp(t, testConfig(t.TempDir(), srv.URL))
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	_, err := a.Discover(ctx, a.DiscoveryConfig())
	require.NoError(t, err)
	reports, err := a.Scrape(ctx, pipeline.StageMatches, ingest.Selection{})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 1, reports[0].Failed)

	reports, err = a.Scrape(ctx, pipeline.StageMatches, ingest.Selection{RetryFailed: true})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 1, reports[0].Found)
	assert.Equal(t, 1, reports[0].Failed)
}
