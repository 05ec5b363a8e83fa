package affect

import (
	"context"
	"time"
)

// Modality identifies an input branch of the pipeline.
type Modality string

const (
	ModalityVoice Modality = "voice"
	ModalityText  Modality = "text"
)

// CrisisTransitionEvent records a change of the committed crisis level of a
// session. Events are emitted for every transition, upward or downward.
type CrisisTransitionEvent struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	From      CrisisLevel `json:"from"`
	To        CrisisLevel `json:"to"`
	Timestamp time.Time   `json:"timestamp"`
	Reason    string      `json:"reason"`
}

// Escalation reports whether the event moved to a more severe level.
func (e CrisisTransitionEvent) Escalation() bool { return e.To > e.From }

// TurnTelemetry summarises one processed turn.
type TurnTelemetry struct {
	SessionID string         `json:"session_id"`
	Turn      int            `json:"turn"`
	State     EmotionalState `json:"state"`
	Level     CrisisLevel    `json:"crisis_level"`
	Degraded  []Modality     `json:"degraded,omitempty"`
	Latency   time.Duration  `json:"latency"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventSink receives the structured events of the pipeline. Implementations
// must not block the caller for longer than it takes to enqueue the event and
// must be safe for concurrent use.
type EventSink interface {
	EmitTransition(ctx context.Context, ev CrisisTransitionEvent)
	EmitTurn(ctx context.Context, t TurnTelemetry)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) EmitTransition(context.Context, CrisisTransitionEvent) {}
func (NopSink) EmitTurn(context.Context, TurnTelemetry)               {}

var _ EventSink = NopSink{}
