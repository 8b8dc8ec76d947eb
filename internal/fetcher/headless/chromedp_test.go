package headless

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChromedpLimiterValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)

	f, err := NewChromedp(Config{MaxParallel: 2})
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, 2, cap(f.limiter))
	assert.Equal(t, 45*time.Second, f.cfg.NavigationTimeout)
	assert.Equal(t, 20, f.cfg.PollAttempts)
}

func TestPollReadyWaitsForPredicate(t *testing.T) {
	t.Parallel()

	calls := 0
	snapshot := func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "<html><body>loading</body></html>", nil
		}
		return `<html><body><div class="stats-table">rows</div></body></html>`, nil
	}

	html, err := pollReady(context.Background(), snapshot, ReadySelector("stats-table"), 5, time.Millisecond)
	require.NoError(t, err)
	assert.Contains(t, html, "stats-table")
	assert.Equal(t, 3, calls)
}

func TestPollReadyExhaustsBudget(t *testing.T) {
	t.Parallel()

	snapshot := func(context.Context) (string, error) { return "<html></html>", nil }
	_, err := pollReady(context.Background(), snapshot, func(html string) bool { return strings.Contains(html, "never") }, 3, time.Millisecond)
	require.ErrorIs(t, err, errNotReady)
}

func TestPollReadyPropagatesSnapshotError(t *testing.T) {
	t.Parallel()

	boom := errors.New("target closed")
	_, err := pollReady(context.Background(), func(context.Context) (string, error) { return "", boom }, nil, 3, time.Millisecond)
	require.ErrorIs(t, err, boom)

	html, err := pollReady(context.Background(), func(context.Context) (string, error) { return "<p>x</p>", nil }, nil, 1, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "<p>x</p>", html)
	assert.Nil(t, ReadySelector(""))
}

func TestResponseMetaCapture(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 500},
	})
	status, _ := meta.snapshot()
	assert.Zero(t, status)

	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  429,
			URL:     "https://example.test/matches/1/a",
			Headers: network.Headers{"Retry-After": "5"},
		},
	})
	status, headers := meta.snapshot()
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "5", headers.Get("Retry-After"))
}

func TestToNetworkHeaders(t *testing.T) {
	t.Parallel()

	h := toNetworkHeaders(http.Header{"X-One": {"a"}, "X-Many": {"a", "b"}, "X-None": {}})
	assert.Equal(t, "a", h["X-One"])
	assert.Equal(t, []string{"a", "b"}, h["X-Many"])
	_, ok := h["X-None"]
	assert.False(t, ok)
}
