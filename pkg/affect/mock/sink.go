// Package mock provides an in-memory [affect.EventSink] for unit tests.
//
// The sink is safe for concurrent use and records every event in arrival
// order so tests can assert on transitions and telemetry.
//
//	sink := &mock.Sink{}
//	tracker := crisis.NewTracker(sink)
//	...
//	if got := sink.Transitions(); len(got) != 1 { ... }
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/attune/pkg/affect"
)

// Sink is a recording implementation of [affect.EventSink].
type Sink struct {
	mu          sync.Mutex
	transitions []affect.CrisisTransitionEvent
	turns       []affect.TurnTelemetry

	// OnTransition, when set, is called synchronously for every transition
	// after it has been recorded.
	OnTransition func(affect.CrisisTransitionEvent)
}

// EmitTransition implements [affect.EventSink].
func (s *Sink) EmitTransition(_ context.Context, ev affect.CrisisTransitionEvent) {
	s.mu.Lock()
	s.transitions = append(s.transitions, ev)
	fn := s.OnTransition
	s.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// EmitTurn implements [affect.EventSink].
func (s *Sink) EmitTurn(_ context.Context, t affect.TurnTelemetry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
}

// Transitions returns a copy of every recorded transition.
func (s *Sink) Transitions() []affect.CrisisTransitionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]affect.CrisisTransitionEvent, len(s.transitions))
	copy(out, s.transitions)
	return out
}

// Turns returns a copy of every recorded turn telemetry record.
func (s *Sink) Turns() []affect.TurnTelemetry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]affect.TurnTelemetry, len(s.turns))
	copy(out, s.turns)
	return out
}

// Reset discards all recorded events.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = nil
	s.turns = nil
}

var _ affect.EventSink = (*Sink)(nil)
