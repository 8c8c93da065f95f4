package notifier

import (
	"context"
	"log/slog"

	"snaptrigger/internal/logging"
)

// LogSink writes notifications to the log instead of sending them anywhere.
// It is used when no messaging sink is configured.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logging.Default(logger).With("component", "log-sink")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) SendImage(_ context.Context, image []byte, caption string) error {
	s.logger.Info("image notification", "caption", caption, "bytes", len(image))
	return nil
}

func (s *LogSink) SendText(_ context.Context, text string) error {
	s.logger.Warn("text notification", "text", text)
	return nil
}
