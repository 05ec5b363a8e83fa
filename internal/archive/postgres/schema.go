package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AffectDimensions is the length of the affect vector stored per turn.
const AffectDimensions = 4

const ddlTransitions = `
CREATE TABLE IF NOT EXISTS crisis_transitions (
    id          TEXT         PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    from_level  SMALLINT     NOT NULL,
    to_level    SMALLINT     NOT NULL,
    reason      TEXT         NOT NULL DEFAULT '',
    occurred_at TIMESTAMPTZ  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_crisis_transitions_session_time
    ON crisis_transitions (session_id, occurred_at DESC);
`

var ddlTurns = fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS turn_snapshots (
    session_id   TEXT         NOT NULL,
    turn         INTEGER      NOT NULL,
    primary_emo  TEXT         NOT NULL,
    secondary_emo TEXT        NOT NULL DEFAULT '',
    crisis_level SMALLINT     NOT NULL,
    intensity    REAL         NOT NULL,
    affect       vector(%d)   NOT NULL,
    degraded     TEXT[]       NOT NULL DEFAULT '{}',
    latency_ns   BIGINT       NOT NULL DEFAULT 0,
    recorded_at  TIMESTAMPTZ  NOT NULL,
    PRIMARY KEY (session_id, turn)
);

CREATE INDEX IF NOT EXISTS idx_turn_snapshots_recorded_at
    ON turn_snapshots (recorded_at);

CREATE INDEX IF NOT EXISTS idx_turn_snapshots_affect
    ON turn_snapshots USING hnsw (affect vector_cosine_ops);
`, AffectDimensions)

// Migrate creates the archive tables, indexes and the vector extension. It is
// idempotent and safe to call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlTransitions, ddlTurns} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("archive migrate: %w", err)
		}
	}
	return nil
}
