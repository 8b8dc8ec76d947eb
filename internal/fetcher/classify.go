package fetcher

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/w1tte/hltv-scraper-sub000/internal/fetcher/challenge"
	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
)

// Classify maps a response to an error kind, or "" when it is usable.
// Status 0 means no response was received.
func Classify(status int, body []byte, detector *challenge.Detector) ingest.ErrorKind {
	if kind := ClassifyStatus(status); kind != "" {
		return kind
	}
	switch {
	case len(strings.TrimSpace(string(body))) == 0:
		return ingest.ErrTransport
	case detector != nil && detector.IsChallenge(body):
		return ingest.ErrBlocked
	}
	return ""
}

// ClassifyStatus maps a status code alone; 2xx yields "".
func ClassifyStatus(status int) ingest.ErrorKind {
	switch {
	case status == 0:
		return ingest.ErrNetwork
	case status == http.StatusForbidden, status == http.StatusServiceUnavailable:
		return ingest.ErrBlocked
	case status == http.StatusTooManyRequests:
		return ingest.ErrRateLimited
	case status == http.StatusNotFound, status == http.StatusGone:
		return ingest.ErrNotFound
	case status >= 500:
		return ingest.ErrNetwork
	case status < 200 || status >= 300:
		return ingest.ErrTransport
	}
	return ""
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
