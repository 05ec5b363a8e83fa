package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MrWong99/attune/pkg/affect"
)

// PublishTransition persists ev. Redelivery of the same event id is a no-op,
// so retries after an ambiguous failure never duplicate rows.
func (s *Store) PublishTransition(ctx context.Context, ev affect.CrisisTransitionEvent) error {
	const q = `
		INSERT INTO crisis_transitions (id, session_id, from_level, to_level, reason, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`

	if _, err := s.pool.Exec(ctx, q,
		ev.ID,
		ev.SessionID,
		int16(ev.From),
		int16(ev.To),
		ev.Reason,
		ev.Timestamp,
	); err != nil {
		return fmt.Errorf("archive: insert transition: %w", err)
	}
	return nil
}

// RecentTransitions returns up to limit transitions of sessionID, newest
// first. A limit below 1 returns every transition.
func (s *Store) RecentTransitions(ctx context.Context, sessionID string, limit int) ([]affect.CrisisTransitionEvent, error) {
	q := `
		SELECT id, session_id, from_level, to_level, reason, occurred_at
		FROM   crisis_transitions
		WHERE  session_id = $1
		ORDER  BY occurred_at DESC, id`
	args := []any{sessionID}
	if limit > 0 {
		q += "\n\t\tLIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: query transitions: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (affect.CrisisTransitionEvent, error) {
		var (
			ev       affect.CrisisTransitionEvent
			from, to int16
		)
		if err := row.Scan(&ev.ID, &ev.SessionID, &from, &to, &ev.Reason, &ev.Timestamp); err != nil {
			return affect.CrisisTransitionEvent{}, err
		}
		ev.From, ev.To = affect.CrisisLevel(from), affect.CrisisLevel(to)
		return ev, nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive: scan transitions: %w", err)
	}
	if out == nil {
		out = []affect.CrisisTransitionEvent{}
	}
	return out, nil
}
