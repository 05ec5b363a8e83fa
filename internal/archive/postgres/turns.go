package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/MrWong99/attune/pkg/affect"
)

// TurnMatch is one archived turn returned by [Store.SimilarTurns].
type TurnMatch struct {
	SessionID  string
	Turn       int
	Primary    affect.Emotion
	Secondary  affect.Emotion
	Level      affect.CrisisLevel
	Intensity  float64
	Affect     [AffectDimensions]float32
	RecordedAt time.Time

	// Distance is the cosine distance to the query; lower is more similar.
	Distance float64
}

// TurnFilter narrows [Store.SimilarTurns]. Zero fields are ignored.
type TurnFilter struct {
	SessionID        string
	ExcludeSessionID string
	MinLevel         affect.CrisisLevel
	After            time.Time
}

// AffectVector projects s onto the archived (pleasure, arousal, dominance,
// stress) coordinates.
func AffectVector(s affect.EmotionalState) []float32 {
	return []float32{
		float32(s.Pleasure),
		float32(s.Arousal),
		float32(s.Dominance),
		float32(s.Stress),
	}
}

// PublishTurn persists a turn snapshot. Redelivery of the same session and
// turn is a no-op.
func (s *Store) PublishTurn(ctx context.Context, t affect.TurnTelemetry) error {
	const q = `
		INSERT INTO turn_snapshots
		    (session_id, turn, primary_emo, secondary_emo, crisis_level, intensity,
		     affect, degraded, latency_ns, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id, turn) DO NOTHING`

	degraded := make([]string, len(t.Degraded))
	for i, m := range t.Degraded {
		degraded[i] = string(m)
	}
	if _, err := s.pool.Exec(ctx, q,
		t.SessionID,
		t.Turn,
		string(t.State.PrimaryEmotion),
		string(t.State.SecondaryEmotion),
		int16(t.Level),
		t.State.EmotionalIntensity,
		pgvector.NewVector(AffectVector(t.State)),
		degraded,
		t.Latency.Nanoseconds(),
		t.Timestamp,
	); err != nil {
		return fmt.Errorf("archive: insert turn: %w", err)
	}
	return nil
}

// SimilarTurns returns the k archived turns whose affect vectors are closest
// (cosine distance) to state, optionally narrowed by filter. Results are
// ordered most similar first.
func (s *Store) SimilarTurns(ctx context.Context, state affect.EmotionalState, k int, filter TurnFilter) ([]TurnMatch, error) {
	if k < 1 {
		return []TurnMatch{}, nil
	}
	args := []any{pgvector.NewVector(AffectVector(state))} // $1 = query vector
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conditions []string
	if filter.SessionID != "" {
		conditions = append(conditions, "session_id = "+next(filter.SessionID))
	}
	if filter.ExcludeSessionID != "" {
		conditions = append(conditions, "session_id <> "+next(filter.ExcludeSessionID))
	}
	if filter.MinLevel > affect.CrisisNone {
		conditions = append(conditions, "crisis_level >= "+next(int16(filter.MinLevel)))
	}
	if !filter.After.IsZero() {
		conditions = append(conditions, "recorded_at > "+next(filter.After))
	}
	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, "\n  AND ")
	}
	limitArg := next(k)

	q := fmt.Sprintf(`
		SELECT session_id, turn, primary_emo, secondary_emo, crisis_level, intensity,
		       affect, recorded_at, affect <=> $1 AS distance
		FROM   turn_snapshots
		%s
		ORDER  BY distance
		LIMIT  %s`, whereClause, limitArg)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: similar turns: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (TurnMatch, error) {
		var (
			m                  TurnMatch
			primary, secondary string
			level              int16
			vec                pgvector.Vector
		)
		if err := row.Scan(&m.SessionID, &m.Turn, &primary, &secondary, &level,
			&m.Intensity, &vec, &m.RecordedAt, &m.Distance); err != nil {
			return TurnMatch{}, err
		}
		m.Primary, m.Secondary = affect.Emotion(primary), affect.Emotion(secondary)
		m.Level = affect.CrisisLevel(level)
		copy(m.Affect[:], vec.Slice())
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive: scan turns: %w", err)
	}
	if out == nil {
		out = []TurnMatch{}
	}
	return out, nil
}
