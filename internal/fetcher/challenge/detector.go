// Package challenge recognises bot-check interstitials served with a 200.
package challenge

import (
	"bytes"
	"strings"
)

// Detector implements a handful of rule-based checks.
type Detector struct {
	BodyLengthThreshold int
}

// New creates a new detector.
func New(threshold int) *Detector {
	if threshold == 0 {
		threshold = 4096
	}
	return &Detector{BodyLengthThreshold: threshold}
}

var markers = [][]byte{
	[]byte("cf-browser-verification"),
	[]byte("challenge-platform"),
	[]byte("cf_chl_opt"),
	[]byte("<title>just a moment...</title>"),
	[]byte("attention required! | cloudflare"),
	[]byte("checking your browser before accessing"),
}

// IsChallenge reports whether a successful response is really a challenge page.
func (d *Detector) IsChallenge(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	lower := bytes.ToLower(body)
	for _, marker := range markers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return len(body) < d.BodyLengthThreshold && scriptDensityHigh(string(lower))
}

func scriptDensityHigh(lower string) bool {
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	scriptCoverage := 0
	searchPos := 0

	for {
		relativeStart := strings.Index(lower[searchPos:], openTag)
		if relativeStart == -1 {
			break
		}
		start := searchPos + relativeStart

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			// Unterminated tag; count the rest of the document.
			scriptCoverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		relativeEnd := strings.Index(lower[contentStart:], closeTag)
		nextSearch := total
		if relativeEnd != -1 {
			nextSearch = contentStart + relativeEnd + len(closeTag)
		}

		scriptCoverage += nextSearch - start
		searchPos = nextSearch
	}

	return scriptCoverage*100/total >= 25
}
