package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/w1tte/hltv-scraper-sub000/internal/progress"
)

// LogSink writes unit failures and run milestones at info level and every
// other event at debug level.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("progress")}
}

// Consume logs each event with structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("kind", string(evt.Kind)),
			zap.String("stage", evt.Stage),
		}
		if evt.Key != "" {
			fields = append(fields, zap.String("key", evt.Key))
		}
		if evt.Page != "" {
			fields = append(fields, zap.String("page", string(evt.Page)), zap.Int("items", evt.Found))
		}
		if evt.Quarantined > 0 {
			fields = append(fields, zap.Int("quarantined", evt.Quarantined))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		switch evt.Kind {
		case progress.KindRunStart, progress.KindRunDone, progress.KindUnitFailed:
			s.logger.Info("progress event", fields...)
		case progress.KindRunHalted:
			s.logger.Warn("progress event", fields...)
		default:
			s.logger.Debug("progress event", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
