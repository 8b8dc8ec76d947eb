package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
)

// Kind denotes the milestone an Event represents.
type Kind string

// Supported progress kinds.
const (
	KindRunStart      Kind = "RUN_START"
	KindRunDone       Kind = "RUN_DONE"
	KindRunHalted     Kind = "RUN_HALTED"
	KindPageDone      Kind = "PAGE_DONE"
	KindUnitDone      Kind = "UNIT_DONE"
	KindUnitFailed    Kind = "UNIT_FAILED"
	KindUnitDiscarded Kind = "UNIT_DISCARDED"
)

// PageResult classifies a handled discovery page.
type PageResult string

// Page results.
const (
	PagePersisted PageResult = "persisted"
	PageSkipped   PageResult = "skipped"
	PageKnown     PageResult = "known"
	PageEmpty     PageResult = "empty"
)

// Event captures one milestone of a run.
type Event struct {
	// RunID is the 16-byte form of the run's UUID.
	RunID [16]byte
	// TS is the UTC time recorded by the emitter.
	TS time.Time
	Kind Kind
	// Stage names the run stage: discover, matches or maps.
	Stage string
	// Key identifies the unit (match id, match/map) or page offset.
	Key string
	// Page is set on PAGE_DONE.
	Page PageResult
	// Found is the number of items on a page, or records parsed for a unit.
	Found int
	// Quarantined counts candidates diverted while processing a unit.
	Quarantined int
	// Counts carries final tallies on RUN_DONE and RUN_HALTED.
	Counts ingest.RunCounts
	// Dur is the unit processing time, or the run wall time on completion.
	Dur time.Duration
	// Note is low-volume context such as an error or halt reason.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Stage == "" {
		return errors.New("stage is required")
	}
	switch e.Kind {
	case KindRunStart, KindRunDone, KindRunHalted:
	case KindPageDone:
		if e.Page == "" {
			return errors.New("page event requires a result")
		}
	case KindUnitDone, KindUnitFailed, KindUnitDiscarded:
		if e.Key == "" {
			return errors.New("unit event requires a key")
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run id back to its UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// Terminal reports whether the event closes its run.
func (e Event) Terminal() bool {
	return e.Kind == KindRunDone || e.Kind == KindRunHalted
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// Reporter stamps events for one run and forwards them to an Emitter.
// A nil Reporter drops everything.
type Reporter struct {
	emitter Emitter
	runID   [16]byte
	stage   string
	now     func() time.Time
}

// NewReporter binds an emitter to a run and stage. runID must be a UUID.
func NewReporter(emitter Emitter, runID, stage string, now func() time.Time) (*Reporter, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return nil, fmt.Errorf("parse run id: %w", err)
	}
	if now == nil {
		now = time.Now
	}
	return &Reporter{emitter: emitter, runID: UUIDToBytes(id), stage: stage, now: now}, nil
}

// Emit fills in run id, stage and timestamp before forwarding evt.
func (r *Reporter) Emit(evt Event) {
	if r == nil || r.emitter == nil {
		return
	}
	evt.RunID = r.runID
	evt.Stage = r.stage
	if evt.TS.IsZero() {
		evt.TS = r.now().UTC()
	}
	r.emitter.Emit(evt)
}
