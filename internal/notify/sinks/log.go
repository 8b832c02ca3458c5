package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/insight-curator/internal/notify"
)

// LogSink writes each change event as a debug-level structured log line.
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

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []notify.Event) error {
	for _, evt := range batch {
		s.logger.Debug("change event",
			zap.String("kind", string(evt.Kind)),
			zap.String("source_id", evt.SourceID),
			zap.String("topic_id", evt.TopicID),
			zap.String("status", string(evt.Status)),
			zap.Time("ts", evt.TS),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
