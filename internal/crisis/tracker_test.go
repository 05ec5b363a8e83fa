package crisis_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/attune/internal/crisis"
	"github.com/MrWong99/attune/pkg/affect"
	"github.com/MrWong99/attune/pkg/affect/mock"
)

func newTracker(t *testing.T, opts ...crisis.Option) (*crisis.Tracker, *mock.Sink) {
	t.Helper()
	sink := &mock.Sink{}
	clock := time.Unix(1_700_000_000, 0)
	opts = append([]crisis.Option{crisis.WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})}, opts...)
	tr := crisis.NewTracker(sink, opts...)
	tr.Open("s1")
	return tr, sink
}

func observe(t *testing.T, tr *crisis.Tracker, levels ...affect.CrisisLevel) affect.CrisisLevel {
	t.Helper()
	var got affect.CrisisLevel
	for _, l := range levels {
		var err error
		got, err = tr.Observe(context.Background(), "s1", l)
		if err != nil {
			t.Fatalf("Observe(%v): %v", l, err)
		}
	}
	return got
}

func TestTracker_StartsAtNone(t *testing.T) {
	t.Parallel()
	tr, _ := newTracker(t)
	if l, err := tr.Level("s1"); err != nil || l != affect.CrisisNone {
		t.Fatalf("Level = %v, %v; want none", l, err)
	}
}

func TestTracker_ImmediateEscalation(t *testing.T) {
	t.Parallel()
	tr, sink := newTracker(t)
	if got := observe(t, tr, affect.CrisisHigh); got != affect.CrisisHigh {
		t.Fatalf("level = %v, want high", got)
	}
	ev := sink.Transitions()
	if len(ev) != 1 || ev[0].From != affect.CrisisNone || ev[0].To != affect.CrisisHigh || ev[0].SessionID != "s1" {
		t.Fatalf("events = %+v", ev)
	}
	if ev[0].ID == "" || ev[0].Timestamp.IsZero() || ev[0].Reason == "" {
		t.Errorf("event missing metadata: %+v", ev[0])
	}
}

func TestTracker_Hysteresis(t *testing.T) {
	t.Parallel()
	tr, sink := newTracker(t)
	observe(t, tr, affect.CrisisHigh)
	if got := observe(t, tr, affect.CrisisLow); got != affect.CrisisHigh {
		t.Fatalf("after one lower reading level = %v, want high", got)
	}
	if got := observe(t, tr, affect.CrisisMedium); got != affect.CrisisMedium {
		t.Fatalf("after two lower readings level = %v, want medium (highest pending)", got)
	}
	ev := sink.Transitions()
	if len(ev) != 2 || ev[1].From != affect.CrisisHigh || ev[1].To != affect.CrisisMedium {
		t.Fatalf("events = %+v", ev)
	}
}

func TestTracker_EqualReadingResetsPending(t *testing.T) {
	t.Parallel()
	tr, _ := newTracker(t)
	observe(t, tr, affect.CrisisHigh, affect.CrisisLow, affect.CrisisHigh, affect.CrisisLow)
	st, _ := tr.State("s1")
	if st.Level != affect.CrisisHigh || st.PendingDowngrade != 1 {
		t.Fatalf("state = %+v, want high with one pending", st)
	}
}

func TestTracker_CriticalPersistsUntilAck(t *testing.T) {
	t.Parallel()
	tr, sink := newTracker(t)
	observe(t, tr, affect.CrisisCritical)
	if got := observe(t, tr, affect.CrisisNone, affect.CrisisNone, affect.CrisisNone, affect.CrisisLow); got != affect.CrisisCritical {
		t.Fatalf("critical auto-downgraded to %v", got)
	}
	if !tr.NeedsAttention("s1") {
		t.Error("unacknowledged critical should need attention")
	}
	if err := tr.Acknowledge(context.Background(), "s1"); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	l, _ := tr.Level("s1")
	if l != affect.CrisisLow {
		t.Fatalf("after ack with pending readings level = %v, want low", l)
	}
	if tr.NeedsAttention("s1") {
		t.Error("acknowledged session should not need attention")
	}
	ev := sink.Transitions()
	if last := ev[len(ev)-1]; last.From != affect.CrisisCritical || last.To != affect.CrisisLow {
		t.Errorf("last event = %+v", last)
	}
}

func TestTracker_AckThenDowngrade(t *testing.T) {
	t.Parallel()
	tr, _ := newTracker(t)
	observe(t, tr, affect.CrisisCritical)
	if err := tr.Acknowledge(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	if got := observe(t, tr, affect.CrisisMedium); got != affect.CrisisCritical {
		t.Fatalf("one reading after ack level = %v, want critical", got)
	}
	if got := observe(t, tr, affect.CrisisNone); got != affect.CrisisMedium {
		t.Fatalf("level = %v, want medium", got)
	}
	// Re-entering critical clears the acknowledgement.
	observe(t, tr, affect.CrisisCritical)
	if got := observe(t, tr, affect.CrisisNone, affect.CrisisNone); got != affect.CrisisCritical {
		t.Fatalf("re-entered critical downgraded to %v without ack", got)
	}
}

func TestTracker_CriticalReadingAfterAckRearms(t *testing.T) {
	t.Parallel()
	tr, sink := newTracker(t)
	observe(t, tr, affect.CrisisCritical)
	if err := tr.Acknowledge(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	observe(t, tr, affect.CrisisCritical)
	if !tr.NeedsAttention("s1") {
		t.Error("new critical reading after ack should need attention again")
	}
	if got := observe(t, tr, affect.CrisisNone, affect.CrisisNone); got != affect.CrisisCritical {
		t.Fatalf("level = %v after lower readings, want critical until acknowledged again", got)
	}
	if st, _ := tr.State("s1"); st.Acknowledged {
		t.Error("state still reports the earlier acknowledgement")
	}
	if n := len(sink.Transitions()); n != 1 {
		t.Errorf("transitions = %d, want 1", n)
	}

	if err := tr.Acknowledge(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	if l, _ := tr.Level("s1"); l != affect.CrisisNone {
		t.Errorf("after second ack level = %v, want none", l)
	}
}

func TestTracker_AckOnNonCriticalIsNoop(t *testing.T) {
	t.Parallel()
	tr, sink := newTracker(t)
	observe(t, tr, affect.CrisisHigh)
	if err := tr.Acknowledge(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	st, _ := tr.State("s1")
	if st.Acknowledged || st.Level != affect.CrisisHigh || len(sink.Transitions()) != 1 {
		t.Errorf("ack on high changed state: %+v", st)
	}
}

func TestTracker_CustomHysteresis(t *testing.T) {
	t.Parallel()
	tr, _ := newTracker(t, crisis.WithHysteresis(3))
	observe(t, tr, affect.CrisisHigh)
	if got := observe(t, tr, affect.CrisisNone, affect.CrisisNone); got != affect.CrisisHigh {
		t.Fatalf("level = %v, want high after two of three", got)
	}
	if got := observe(t, tr, affect.CrisisNone); got != affect.CrisisNone {
		t.Fatalf("level = %v, want none", got)
	}
	tr.SetHysteresis(1)
	observe(t, tr, affect.CrisisMedium)
	if got := observe(t, tr, affect.CrisisLow); got != affect.CrisisLow {
		t.Fatalf("level = %v, want low with hysteresis 1", got)
	}
}

func TestTracker_UnknownSession(t *testing.T) {
	t.Parallel()
	tr, _ := newTracker(t)
	if _, err := tr.Observe(context.Background(), "nope", affect.CrisisLow); !errors.Is(err, affect.ErrState) {
		t.Errorf("Observe err = %v, want ErrState", err)
	}
	if err := tr.Acknowledge(context.Background(), "nope"); !errors.Is(err, affect.ErrState) {
		t.Errorf("Acknowledge err = %v, want ErrState", err)
	}
	if _, err := tr.Observe(context.Background(), "s1", affect.CrisisLevel(99)); !errors.Is(err, affect.ErrInput) {
		t.Errorf("invalid level err = %v, want ErrInput", err)
	}
	tr.Close("s1")
	if _, err := tr.Level("s1"); !errors.Is(err, affect.ErrState) {
		t.Errorf("closed session err = %v, want ErrState", err)
	}
}

func TestTracker_HistoryBounded(t *testing.T) {
	t.Parallel()
	tr, _ := newTracker(t, crisis.WithHistoryLimit(4))
	for i := 0; i < 10; i++ {
		observe(t, tr, affect.CrisisLow, affect.CrisisHigh)
	}
	st, _ := tr.State("s1")
	if len(st.Readings) != 4 || len(st.Transitions) > 4 {
		t.Errorf("history not bounded: %d readings, %d transitions", len(st.Readings), len(st.Transitions))
	}
}

func TestTracker_ConcurrentSessions(t *testing.T) {
	t.Parallel()
	tr := crisis.NewTracker(nil)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		id := string(rune('a' + i))
		tr.Open(id)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, err := tr.Observe(context.Background(), id, affect.CrisisLevel(j%5)); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
	if tr.Len() != 16 {
		t.Errorf("Len = %d, want 16", tr.Len())
	}
}
