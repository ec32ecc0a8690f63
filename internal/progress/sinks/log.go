package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/award-digest/internal/progress"
)

// LogSink emits structured logs for cycle milestones. It is useful during
// development or when no run-history store is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.Stringer("cycle_id", evt.CycleUUID()),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StageCycleStart:
			fields = append(fields,
				zap.Time("window_start", evt.WindowStart),
				zap.Time("window_end", evt.WindowEnd),
			)
		case progress.StageEndpointDone:
			fields = append(fields,
				zap.String("endpoint", evt.Endpoint),
				zap.String("outcome", string(evt.Outcome)),
				zap.Int("attempts", evt.Attempts),
				zap.Duration("dur", evt.Dur),
			)
		case progress.StageChunkDone:
			fields = append(fields,
				zap.Int("chunk", evt.Chunk),
				zap.Int64("records", evt.Records),
				zap.String("outcome", string(evt.Outcome)),
			)
		case progress.StageDigestDone:
			fields = append(fields, zap.String("outcome", string(evt.Outcome)))
		case progress.StageCycleDone:
			fields = append(fields,
				zap.String("outcome", string(evt.Outcome)),
				zap.String("endpoint", evt.Endpoint),
				zap.Int64("fetched", evt.Counts.Fetched),
				zap.Int64("retained", evt.Counts.Retained),
				zap.Int64("persisted", evt.Counts.Persisted),
				zap.Int64("failed_chunks", evt.Counts.FailedChunks),
				zap.Duration("dur", evt.Dur),
			)
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
