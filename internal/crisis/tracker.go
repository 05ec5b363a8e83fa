package crisis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/attune/pkg/affect"
)

const (
	// DefaultHysteresis is the number of consecutive lower readings required
	// before the committed level is lowered.
	DefaultHysteresis = 2

	defaultHistoryLimit = 32
)

// Reading is one per-turn level observed by the tracker.
type Reading struct {
	Level affect.CrisisLevel `json:"level"`
	At    time.Time          `json:"at"`
}

// State is a point-in-time copy of a session's crisis state.
type State struct {
	SessionID string             `json:"session_id"`
	Level     affect.CrisisLevel `json:"level"`

	// Readings are the most recent observed levels, oldest first.
	Readings []Reading `json:"readings"`

	// Transitions are the most recent committed level changes, oldest first.
	Transitions []affect.CrisisTransitionEvent `json:"transitions"`

	// PendingDowngrade counts consecutive readings below Level.
	PendingDowngrade int `json:"pending_downgrade"`

	// Acknowledged is set once an operator acknowledged the current critical
	// episode. Any later critical reading clears it.
	Acknowledged bool `json:"acknowledged"`
}

// session is the mutable state of one tracked session.
type session struct {
	mu           sync.Mutex
	level        affect.CrisisLevel
	readings     []Reading
	transitions  []affect.CrisisTransitionEvent
	pending      int
	pendingMax   affect.CrisisLevel
	acknowledged bool
}

// Tracker is the crisis escalation state machine. Escalation is immediate;
// de-escalation needs a run of consecutive lower readings and commits to the
// highest level seen in that run; critical is held until acknowledged.
//
// All exported methods are safe for concurrent use. Sessions are independent:
// each has its own lock.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]*session

	sink         affect.EventSink
	hysteresis   int
	historyLimit int
	now          func() time.Time
}

// Option configures a [Tracker].
type Option func(*Tracker)

// WithHysteresis sets the number of consecutive lower readings needed to
// downgrade. Values below 1 are ignored.
func WithHysteresis(n int) Option {
	return func(t *Tracker) {
		if n >= 1 {
			t.hysteresis = n
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithHistoryLimit bounds the readings and transitions kept per session.
func WithHistoryLimit(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.historyLimit = n
		}
	}
}

// NewTracker returns a Tracker that reports every transition to sink. A nil
// sink discards events.
func NewTracker(sink affect.EventSink, opts ...Option) *Tracker {
	if sink == nil {
		sink = affect.NopSink{}
	}
	t := &Tracker{
		sessions:     make(map[string]*session),
		sink:         sink,
		hysteresis:   DefaultHysteresis,
		historyLimit: defaultHistoryLimit,
		now:          time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// SetHysteresis changes the downgrade requirement for subsequent readings.
func (t *Tracker) SetHysteresis(n int) {
	if n < 1 {
		return
	}
	t.mu.Lock()
	t.hysteresis = n
	t.mu.Unlock()
}

// Open registers a session at level none. Opening an existing session is a
// no-op.
func (t *Tracker) Open(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sessions[id]; !ok {
		t.sessions[id] = &session{level: affect.CrisisNone}
	}
}

// Close forgets a session.
func (t *Tracker) Close(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, id)
}

func (t *Tracker) lookup(op, id string) (*session, int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[id]
	if !ok {
		return nil, 0, affect.UnknownSession(op, id)
	}
	return s, t.hysteresis, nil
}

// Observe feeds one per-turn reading into the state machine and returns the
// committed level afterwards.
func (t *Tracker) Observe(ctx context.Context, id string, level affect.CrisisLevel) (affect.CrisisLevel, error) {
	if !level.IsValid() {
		return affect.CrisisNone, &affect.InputError{Op: "crisis: observe", Reason: fmt.Sprintf("invalid level %d", int(level))}
	}
	s, hysteresis, err := t.lookup("crisis: observe", id)
	if err != nil {
		return affect.CrisisNone, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := t.now()
	s.readings = appendBounded(s.readings, Reading{Level: level, At: now}, t.historyLimit)

	switch {
	case level > s.level:
		t.transition(ctx, id, s, level, now, fmt.Sprintf("escalated on %s reading", level))
	case level == s.level:
		s.pending, s.pendingMax = 0, affect.CrisisNone
		if level == affect.CrisisCritical && s.acknowledged {
			s.acknowledged = false
			slog.Warn("crisis re-armed by new critical reading", "session_id", id)
		}
	default:
		s.pending++
		s.pendingMax = affect.MaxLevel(s.pendingMax, level)
		if s.pending >= hysteresis && (s.level != affect.CrisisCritical || s.acknowledged) {
			t.transition(ctx, id, s, s.pendingMax, now, fmt.Sprintf("de-escalated after %d lower readings", s.pending))
		}
	}
	return s.level, nil
}

// Acknowledge marks the current critical episode as handled. If enough lower
// readings are already pending the downgrade is committed immediately;
// otherwise the next run of lower readings may lower the level. Acknowledging
// a session that is not critical has no effect.
func (t *Tracker) Acknowledge(ctx context.Context, id string) error {
	s, hysteresis, err := t.lookup("crisis: acknowledge", id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.level != affect.CrisisCritical || s.acknowledged {
		return nil
	}
	s.acknowledged = true
	slog.Info("crisis acknowledged", "session_id", id, "pending", s.pending)
	if s.pending >= hysteresis {
		t.transition(ctx, id, s, s.pendingMax, t.now(), "acknowledged with lower readings pending")
	}
	return nil
}

// Level returns the committed level of a session.
func (t *Tracker) Level(id string) (affect.CrisisLevel, error) {
	s, _, err := t.lookup("crisis: level", id)
	if err != nil {
		return affect.CrisisNone, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level, nil
}

// NeedsAttention reports whether the session sits at an unacknowledged
// critical level. Unknown sessions never need attention.
func (t *Tracker) NeedsAttention(id string) bool {
	s, _, err := t.lookup("crisis: attention", id)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level == affect.CrisisCritical && !s.acknowledged
}

// State returns a copy of a session's crisis state.
func (t *Tracker) State(id string) (State, error) {
	s, _, err := t.lookup("crisis: state", id)
	if err != nil {
		return State{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		SessionID:        id,
		Level:            s.level,
		Readings:         append([]Reading(nil), s.readings...),
		Transitions:      append([]affect.CrisisTransitionEvent(nil), s.transitions...),
		PendingDowngrade: s.pending,
		Acknowledged:     s.acknowledged,
	}, nil
}

// Len returns the number of tracked sessions.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// transition commits a new level and emits the event. Callers hold s.mu.
func (t *Tracker) transition(ctx context.Context, id string, s *session, to affect.CrisisLevel, at time.Time, reason string) {
	ev := affect.CrisisTransitionEvent{
		ID:        uuid.NewString(),
		SessionID: id,
		From:      s.level,
		To:        to,
		Timestamp: at,
		Reason:    reason,
	}
	s.level = to
	s.pending, s.pendingMax = 0, affect.CrisisNone
	if to == affect.CrisisCritical {
		s.acknowledged = false
	}
	s.transitions = appendBounded(s.transitions, ev, t.historyLimit)

	slog.Debug("crisis transition", "session_id", id, "from", ev.From, "to", ev.To, "reason", reason)
	t.sink.EmitTransition(ctx, ev)
}

func appendBounded[T any](s []T, v T, limit int) []T {
	s = append(s, v)
	if len(s) > limit {
		s = append(s[:0:0], s[len(s)-limit:]...)
	}
	return s
}
