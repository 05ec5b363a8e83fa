package postgres_test

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/attune/internal/archive/postgres"
	"github.com/MrWong99/attune/pkg/affect"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if ATTUNE_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("ATTUNE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ATTUNE_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] on a clean schema.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS turn_snapshots CASCADE",
		"DROP TABLE IF EXISTS crisis_transitions CASCADE",
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("drop schema (%s): %v", stmt, err)
		}
	}
	pool.Close()

	store, err := postgres.NewStore(ctx, dsn, postgres.WithMaxConns(4))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestNewStore_BadDSN(t *testing.T) {
	t.Parallel()
	if _, err := postgres.NewStore(context.Background(), "::not a dsn::"); err == nil {
		t.Fatal("expected error for malformed dsn")
	}
}

func TestAffectVector(t *testing.T) {
	t.Parallel()
	s := affect.EmotionalState{Pleasure: -0.5, Arousal: 0.75, Dominance: 0.25, Stress: 1}
	got := postgres.AffectVector(s)
	want := []float32{-0.5, 0.75, 0.25, 1}
	if len(got) != postgres.AffectDimensions {
		t.Fatalf("len = %d, want %d", len(got), postgres.AffectDimensions)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("component %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestStore_Transitions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	events := []affect.CrisisTransitionEvent{
		{ID: "e1", SessionID: "s1", From: affect.CrisisNone, To: affect.CrisisMedium, Timestamp: base, Reason: "score"},
		{ID: "e2", SessionID: "s1", From: affect.CrisisMedium, To: affect.CrisisCritical, Timestamp: base.Add(time.Second), Reason: "keyword"},
		{ID: "e3", SessionID: "s2", From: affect.CrisisNone, To: affect.CrisisLow, Timestamp: base, Reason: "score"},
	}
	for _, ev := range events {
		if err := store.PublishTransition(ctx, ev); err != nil {
			t.Fatalf("PublishTransition(%s): %v", ev.ID, err)
		}
	}
	// Redelivery must not duplicate.
	if err := store.PublishTransition(ctx, events[0]); err != nil {
		t.Fatalf("PublishTransition redelivery: %v", err)
	}

	got, err := store.RecentTransitions(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("RecentTransitions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d transitions, want 2", len(got))
	}
	if got[0].ID != "e2" || got[0].To != affect.CrisisCritical {
		t.Errorf("newest = %+v, want e2 to critical", got[0])
	}
	if !got[0].Timestamp.Equal(events[1].Timestamp) {
		t.Errorf("timestamp = %v, want %v", got[0].Timestamp, events[1].Timestamp)
	}

	limited, err := store.RecentTransitions(ctx, "s1", 1)
	if err != nil {
		t.Fatalf("RecentTransitions limit: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limit 1 returned %d rows", len(limited))
	}

	none, err := store.RecentTransitions(ctx, "missing", 10)
	if err != nil {
		t.Fatalf("RecentTransitions missing: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("missing session = %v, want empty non-nil slice", none)
	}
}

func TestStore_SimilarTurns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	turns := []affect.TurnTelemetry{
		{SessionID: "s1", Turn: 1, Level: affect.CrisisNone, Timestamp: now,
			State: affect.EmotionalState{PrimaryEmotion: affect.EmotionJoy, Pleasure: 0.8, Arousal: 0.6, Dominance: 0.6, Stress: 0.1}},
		{SessionID: "s1", Turn: 2, Level: affect.CrisisHigh, Timestamp: now, Degraded: []affect.Modality{affect.ModalityText},
			State: affect.EmotionalState{PrimaryEmotion: affect.EmotionFear, Pleasure: -0.7, Arousal: 0.9, Dominance: 0.2, Stress: 0.9}},
		{SessionID: "s2", Turn: 1, Level: affect.CrisisMedium, Timestamp: now,
			State: affect.EmotionalState{PrimaryEmotion: affect.EmotionSadness, Pleasure: -0.6, Arousal: 0.3, Dominance: 0.3, Stress: 0.7}},
	}
	for _, tt := range turns {
		if err := store.PublishTurn(ctx, tt); err != nil {
			t.Fatalf("PublishTurn(%s/%d): %v", tt.SessionID, tt.Turn, err)
		}
	}
	if err := store.PublishTurn(ctx, turns[0]); err != nil {
		t.Fatalf("PublishTurn redelivery: %v", err)
	}

	query := affect.EmotionalState{Pleasure: -0.7, Arousal: 0.85, Dominance: 0.2, Stress: 0.95}

	tests := []struct {
		name      string
		k         int
		filter    postgres.TurnFilter
		wantFirst string
		wantLen   int
	}{
		{name: "all", k: 10, wantFirst: "s1/2", wantLen: 3},
		{name: "top one", k: 1, wantFirst: "s1/2", wantLen: 1},
		{name: "exclude own session", k: 10, filter: postgres.TurnFilter{ExcludeSessionID: "s1"}, wantFirst: "s2/1", wantLen: 1},
		{name: "min level", k: 10, filter: postgres.TurnFilter{MinLevel: affect.CrisisMedium}, wantFirst: "s1/2", wantLen: 2},
		{name: "future cutoff", k: 10, filter: postgres.TurnFilter{After: now.Add(time.Hour)}, wantLen: 0},
		{name: "zero k", k: 0, wantLen: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := store.SimilarTurns(ctx, query, tc.k, tc.filter)
			if err != nil {
				t.Fatalf("SimilarTurns: %v", err)
			}
			if len(got) != tc.wantLen {
				t.Fatalf("got %d matches, want %d", len(got), tc.wantLen)
			}
			if tc.wantLen == 0 {
				return
			}
			first := got[0].SessionID + "/" + strconv.Itoa(got[0].Turn)
			if first != tc.wantFirst {
				t.Errorf("first match = %s, want %s", first, tc.wantFirst)
			}
			for i := 1; i < len(got); i++ {
				if got[i].Distance < got[i-1].Distance {
					t.Errorf("matches not ordered by distance: %v then %v", got[i-1].Distance, got[i].Distance)
				}
			}
		})
	}
}
