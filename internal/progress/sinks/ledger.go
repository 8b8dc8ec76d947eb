package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
	"github.com/w1tte/hltv-scraper-sub000/internal/progress"
)

// RunLedger records run lifecycles.
type RunLedger interface {
	StartRun(ctx context.Context, run ingest.Run) error
	FinishRun(ctx context.Context, run ingest.Run) error
}

// LedgerSink persists run start and finish events to the run ledger.
type LedgerSink struct {
	ledger RunLedger
	logger *zap.Logger
}

// NewLedgerSink constructs a LedgerSink for the provided ledger.
func NewLedgerSink(ledger RunLedger, logger *zap.Logger) *LedgerSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerSink{ledger: ledger, logger: logger}
}

// Consume writes lifecycle events in order and ignores the rest. Ledger
// errors are returned verbatim.
func (s *LedgerSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.ledger == nil {
		return nil
	}
	for _, evt := range batch {
		id := evt.RunUUID().String()
		switch evt.Kind {
		case progress.KindRunStart:
			if err := s.ledger.StartRun(ctx, ingest.Run{ID: id, Stage: evt.Stage, StartedAt: evt.TS}); err != nil {
				return fmt.Errorf("record run start: %w", err)
			}
		case progress.KindRunDone, progress.KindRunHalted:
			finished := evt.TS
			run := ingest.Run{
				ID:         id,
				Stage:      evt.Stage,
				FinishedAt: &finished,
				Counts:     evt.Counts,
				Halted:     evt.Kind == progress.KindRunHalted,
				Reason:     evt.Note,
			}
			if err := s.ledger.FinishRun(ctx, run); err != nil {
				return fmt.Errorf("record run finish: %w", err)
			}
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LedgerSink) Close(context.Context) error {
	return nil
}
