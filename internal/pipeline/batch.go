package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/attune/pkg/affect"
)

// BatchItem is the outcome of one turn of a batch. Result is never nil: a
// failed turn carries [affect.FallbackResult] next to its error.
type BatchItem struct {
	Result *affect.InteractionResult
	Err    error
}

// ProcessBatch runs many turns, at most BatchParallelism sessions at a time.
// Turns of the same session run one after another in input order; the
// returned items are aligned with turns. A failed turn does not stop the
// batch. The returned error is non-nil only when ctx ended; the turns that had
// not started by then carry the context error.
func (p *Pipeline) ProcessBatch(ctx context.Context, turns []Turn) ([]BatchItem, error) {
	items := make([]BatchItem, len(turns))

	// Group by session, keeping first-seen order.
	var order []string
	bySession := make(map[string][]int)
	for i, t := range turns {
		if _, ok := bySession[t.SessionID]; !ok {
			order = append(order, t.SessionID)
		}
		bySession[t.SessionID] = append(bySession[t.SessionID], i)
	}

	var g errgroup.Group
	g.SetLimit(int(p.parallelism.Load()))
	for _, id := range order {
		idx := bySession[id]
		g.Go(func() error {
			for _, i := range idx {
				if err := ctx.Err(); err != nil {
					items[i] = BatchItem{Result: affect.FallbackResult(turns[i].SessionID), Err: err}
					continue
				}
				res, err := p.Process(ctx, turns[i])
				if err != nil {
					res = affect.FallbackResult(turns[i].SessionID)
				}
				items[i] = BatchItem{Result: res, Err: err}
			}
			return nil
		})
	}
	_ = g.Wait()
	return items, ctx.Err()
}
