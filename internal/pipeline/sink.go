package pipeline

import (
	"context"

	"github.com/MrWong99/attune/internal/observe"
	"github.com/MrWong99/attune/pkg/affect"
)

// observedSink counts crisis transitions before forwarding them.
type observedSink struct {
	next    affect.EventSink
	metrics *observe.Metrics
}

func (s *observedSink) EmitTransition(ctx context.Context, ev affect.CrisisTransitionEvent) {
	s.metrics.RecordTransition(ctx, ev.From.String(), ev.To.String())
	s.next.EmitTransition(ctx, ev)
}

func (s *observedSink) EmitTurn(ctx context.Context, t affect.TurnTelemetry) {
	s.next.EmitTurn(ctx, t)
}

var _ affect.EventSink = (*observedSink)(nil)
