package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/purifier-console/internal/progress"
)

// LogSink emits one structured line per progress event. `progress tail` and
// `serve` both attach it to the hub.
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
			zap.Int64("episode_id", evt.EpisodeID),
			zap.Float64("progress", evt.Progress),
			zap.String("stage", evt.Stage),
		}
		if evt.Terminal() {
			s.logger.Info("episode finished", fields...)
			continue
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
