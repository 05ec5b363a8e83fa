package affect

import (
	"errors"
	"fmt"
	"time"
)

// Sentinels for errors.Is checks against the typed errors below.
var (
	ErrInput   = errors.New("affect: invalid input")
	ErrTimeout = errors.New("affect: latency budget exceeded")
	ErrState   = errors.New("affect: invalid state")
)

// InputError reports malformed input: non-finite samples, a turn carrying
// neither audio nor text, or both fusion inputs missing.
type InputError struct {
	Op     string
	Reason string
	Err    error
}

func (e *InputError) Error() string {
	msg := fmt.Sprintf("%s: invalid input: %s", e.Op, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InputError) Unwrap() error { return e.Err }

// Is matches [ErrInput].
func (e *InputError) Is(target error) bool { return target == ErrInput }

// TimeoutError reports that no modality finished within the latency budget.
type TimeoutError struct {
	Op     string
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no modality completed within %s", e.Op, e.Budget)
}

// Is matches [ErrTimeout].
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// StateError reports an operation against a session the store does not know
// or a state-machine call that is not valid in the current state.
type StateError struct {
	Op        string
	SessionID string
	Reason    string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: session %q: %s", e.Op, e.SessionID, e.Reason)
}

// Is matches [ErrState].
func (e *StateError) Is(target error) bool { return target == ErrState }

// UnknownSession builds the StateError returned for unregistered session ids.
func UnknownSession(op, id string) error {
	return &StateError{Op: op, SessionID: id, Reason: "unknown session"}
}
