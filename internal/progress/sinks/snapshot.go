package sinks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/w1tte/hltv-scraper-sub000/internal/progress"
)

// StageProgress is the live tally of one run stage.
type StageProgress struct {
	RunID       string    `json:"run_id"`
	Stage       string    `json:"stage"`
	StartedAt   time.Time `json:"started_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Running     bool      `json:"running"`
	Pages       int       `json:"pages"`
	Found       int       `json:"found"`
	Done        int       `json:"done"`
	Failed      int       `json:"failed"`
	Discarded   int       `json:"discarded"`
	Quarantined int       `json:"quarantined"`
	Halted      bool      `json:"halted"`
	Reason      string    `json:"reason,omitempty"`
	LastKey     string    `json:"last_key,omitempty"`
}

// SnapshotSink keeps per-run tallies in memory for the ops server.
type SnapshotSink struct {
	mu   sync.RWMutex
	runs map[[16]byte]*StageProgress
}

// NewSnapshotSink returns an empty SnapshotSink.
func NewSnapshotSink() *SnapshotSink {
	return &SnapshotSink{runs: make(map[[16]byte]*StageProgress)}
}

// Consume folds the batch into the per-run tallies.
func (s *SnapshotSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		p := s.runs[evt.RunID]
		if p == nil {
			p = &StageProgress{RunID: evt.RunUUID().String(), Stage: evt.Stage, StartedAt: evt.TS, Running: true}
			s.runs[evt.RunID] = p
		}
		p.UpdatedAt = evt.TS
		switch evt.Kind {
		case progress.KindPageDone:
			p.Pages++
			p.Found += evt.Found
		case progress.KindUnitDone:
			p.Done++
			p.LastKey = evt.Key
		case progress.KindUnitFailed:
			p.Failed++
			p.LastKey = evt.Key
		case progress.KindUnitDiscarded:
			p.Discarded++
		case progress.KindRunDone, progress.KindRunHalted:
			p.Running = false
			p.Halted = evt.Kind == progress.KindRunHalted
			p.Reason = evt.Note
		}
		p.Quarantined += evt.Quarantined
	}
	return nil
}

// Snapshot returns every known run, most recently started first.
func (s *SnapshotSink) Snapshot() []StageProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StageProgress, 0, len(s.runs))
	for _, p := range s.runs {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Close implements the Sink interface; it performs no action.
func (s *SnapshotSink) Close(context.Context) error {
	return nil
}
