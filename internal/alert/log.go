package alert

import (
	"context"
	"log/slog"

	"github.com/MrWong99/attune/pkg/affect"
)

// LogPublisher writes events to a structured logger. Escalations log at warn,
// de-escalations at info and turn telemetry at debug. It never fails.
type LogPublisher struct {
	logger *slog.Logger
}

var _ Publisher = (*LogPublisher)(nil)

// NewLogPublisher returns a LogPublisher writing to logger, or to the default
// logger when nil.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger.With("component", "alert")}
}

// PublishTransition implements [Publisher].
func (p *LogPublisher) PublishTransition(ctx context.Context, ev affect.CrisisTransitionEvent) error {
	level := slog.LevelInfo
	if ev.Escalation() {
		level = slog.LevelWarn
	}
	p.logger.LogAttrs(ctx, level, "crisis level changed",
		slog.String("event_id", ev.ID),
		slog.String("session_id", ev.SessionID),
		slog.String("from", ev.From.String()),
		slog.String("to", ev.To.String()),
		slog.String("reason", ev.Reason),
		slog.Time("at", ev.Timestamp),
	)
	return nil
}

// PublishTurn implements [Publisher].
func (p *LogPublisher) PublishTurn(ctx context.Context, t affect.TurnTelemetry) error {
	p.logger.LogAttrs(ctx, slog.LevelDebug, "turn processed",
		slog.String("session_id", t.SessionID),
		slog.Int("turn", t.Turn),
		slog.String("emotion", string(t.State.PrimaryEmotion)),
		slog.String("level", t.Level.String()),
		slog.Int("degraded", len(t.Degraded)),
		slog.Duration("latency", t.Latency),
	)
	return nil
}
