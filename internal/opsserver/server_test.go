package opsserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
	"github.com/w1tte/hltv-scraper-sub000/internal/progress/sinks"
)

type fakeStatus struct {
	pingErr  error
	err      error
	counts   ingest.Counts
	runs     []ingest.Run
	entries  []ingest.QuarantineEntry
	gotLimit int
	gotAll   bool
}

func (f *fakeStatus) Ping(context.Context) error { return f.pingErr }

func (f *fakeStatus) Counts(context.Context) (ingest.Counts, error) { return f.counts, f.err }

func (f *fakeStatus) LastRuns(_ context.Context, n int) ([]ingest.Run, error) {
	f.gotLimit = n
	return f.runs, f.err
}

func (f *fakeStatus) ListQuarantine(_ context.Context, all bool, limit int) ([]ingest.QuarantineEntry, error) {
	f.gotAll, f.gotLimit = all, limit
	return f.entries, f.err
}

type fakeProgress []sinks.StageProgress

func (f fakeProgress) Snapshot() []sinks.StageProgress { return f }

func serve(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := serve(t, New(nil, nil, zap.NewNop()), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status StatusSource
		want   int
	}{
		{name: "no store", status: nil, want: http.StatusServiceUnavailable},
		{name: "store down", status: &fakeStatus{pingErr: errors.New("closed")}, want: http.StatusServiceUnavailable},
		{name: "store up", status: &fakeStatus{}, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := serve(t, New(tt.status, nil, nil), "/readyz")
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	s := New(nil, nil, nil)
	_ = serve(t, s, "/healthz")
	rec := serve(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestProgress(t *testing.T) {
	t.Parallel()

	started := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	progress := fakeProgress{{RunID: "r1", Stage: "matches", StartedAt: started, Running: true, Done: 4, Failed: 1}}
	rec := serve(t, New(nil, progress, nil), "/progress")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Stages []sinks.StageProgress `json:"stages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Stages, 1)
	assert.Equal(t, 4, body.Stages[0].Done)

	rec = serve(t, New(nil, fakeProgress(nil), nil), "/progress")
	assert.JSONEq(t, `{"stages":[]}`, rec.Body.String())

	rec = serve(t, New(nil, nil, nil), "/progress")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	status := &fakeStatus{counts: ingest.Counts{
		Items:   map[ingest.Status]int{ingest.StatusDone: 3},
		Maps:    map[ingest.Status]int{},
		Pages:   2,
		Records: map[string]int{"matches": 3},
	}}
	rec := serve(t, New(status, nil, nil), "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var got ingest.Counts
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 3, got.Items[ingest.StatusDone])
	assert.Equal(t, 2, got.Pages)

	rec = serve(t, New(&fakeStatus{err: errors.New("db gone")}, nil, nil), "/api/status")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	finished := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	status := &fakeStatus{runs: []ingest.Run{
		{ID: "b", Stage: "maps", StartedAt: finished},
		{ID: "a", Stage: "matches", StartedAt: finished.Add(-time.Hour), FinishedAt: &finished, Halted: true, Reason: "systemic failure: 5 consecutive failures"},
	}}
	s := New(status, nil, nil)

	rec := serve(t, s, "/api/runs?limit=5000")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxRunLimit, status.gotLimit)

	var body struct {
		Runs []runDTO `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 2)
	assert.True(t, body.Runs[0].Running)
	assert.False(t, body.Runs[1].Running)
	assert.True(t, body.Runs[1].Halted)

	rec = serve(t, s, "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultRunLimit, status.gotLimit)

	rec = serve(t, s, "/api/runs?limit=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListQuarantine(t *testing.T) {
	t.Parallel()

	status := &fakeStatus{entries: []ingest.QuarantineEntry{{ID: 7, Kind: ingest.KindEconomy, ParentID: "1/1"}}}
	s := New(status, nil, nil)

	rec := serve(t, s, "/api/quarantine?all=true&limit=10")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, status.gotAll)
	assert.Equal(t, 10, status.gotLimit)
	assert.Contains(t, rec.Body.String(), `"entity_kind":"economy"`)

	rec = serve(t, s, "/api/quarantine?all=maybe")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, New(&fakeStatus{}, nil, nil), "/api/quarantine")
	assert.JSONEq(t, `{"entries":[]}`, rec.Body.String())
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := New(nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
