package opsserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
	"github.com/w1tte/hltv-scraper-sub000/internal/progress/sinks"
)

const (
	defaultRunLimit        = 20
	maxRunLimit            = 200
	defaultQuarantineLimit = 50
	maxQuarantineLimit     = 1000
)

// getProgress handles GET /progress with the live per-stage counters,
// newest run first.
func (s *Server) getProgress(w http.ResponseWriter, _ *http.Request) {
	if s.progress == nil {
		writeError(w, http.StatusServiceUnavailable, "progress unavailable")
		return
	}
	stages := s.progress.Snapshot()
	if stages == nil {
		stages = []sinks.StageProgress{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"stages": stages})
}

// getStatus handles GET /api/status with the store tallies.
func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	counts, err := s.status.Counts(ctx)
	if err != nil {
		s.logger.Error("count store failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to count store")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// listRuns handles GET /api/runs?limit=. It returns {"runs": [...]}, newest
// first, or 400 for an invalid limit.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	limit, err := parseLimit(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	runs, err := s.status.LastRuns(ctx, limit)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": toRunDTOs(runs)})
}

// listQuarantine handles GET /api/quarantine?limit=&all=. Resolved entries
// are included only with all=true.
func (s *Server) listQuarantine(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	limit, err := parseLimit(r, defaultQuarantineLimit, maxQuarantineLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	all := false
	if raw := r.URL.Query().Get("all"); raw != "" {
		if all, err = strconv.ParseBool(raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid all")
			return
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	entries, err := s.status.ListQuarantine(ctx, all, limit)
	if err != nil {
		s.logger.Error("list quarantine failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list quarantine")
		return
	}
	if entries == nil {
		entries = []ingest.QuarantineEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid limit")
	}
	return min(val, maxLimit), nil
}

type runDTO struct {
	ID          string     `json:"id"`
	Stage       string     `json:"stage"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Running     bool       `json:"running"`
	Found       int        `json:"found"`
	New         int        `json:"new"`
	Parsed      int        `json:"parsed"`
	Failed      int        `json:"failed"`
	Quarantined int        `json:"quarantined"`
	Halted      bool       `json:"halted"`
	Reason      string     `json:"reason,omitempty"`
}

func toRunDTOs(in []ingest.Run) []runDTO {
	out := make([]runDTO, 0, len(in))
	for _, run := range in {
		out = append(out, runDTO{
			ID:          run.ID,
			Stage:       run.Stage,
			StartedAt:   run.StartedAt,
			FinishedAt:  run.FinishedAt,
			Running:     run.FinishedAt == nil,
			Found:       run.Counts.Found,
			New:         run.Counts.New,
			Parsed:      run.Counts.Parsed,
			Failed:      run.Counts.Failed,
			Quarantined: run.Counts.Quarantined,
			Halted:      run.Halted,
			Reason:      run.Reason,
		})
	}
	return out
}
