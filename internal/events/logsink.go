package events

import (
	"context"
	"log/slog"
)

// LogSink writes every event to a structured logger.
type LogSink struct {
	Logger *slog.Logger
	Level  slog.Level
}

var _ Sink = (*LogSink)(nil)

// Deliver implements [Sink].
func (s *LogSink) Deliver(ctx context.Context, e Event) error {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Log(ctx, s.Level, "event", "kind", e.Kind, "session_id", e.SessionID, "data", e.Data)
	return nil
}
