package query

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
)

// QueryRange yields results at from, from+step, ... up to and including to.
// Times before the entity's first event are skipped. The sequence is lazy:
// each result is resolved when requested, and ranging again re-runs the queries.
func (q *Engine) QueryRange(ctx context.Context, entityID string, from, to, step int64) iter.Seq2[*Result, error] {
	return func(yield func(*Result, error) bool) {
		if step <= 0 {
			yield(nil, fmt.Errorf("%w: %d", ErrInvalidStep, step))
			return
		}

		for t := from; t <= to; t += step {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			res, err := q.QueryAt(ctx, entityID, t)
			switch {
			case errors.Is(err, ErrTimeBeforeEntityExistence):
				// not yet in the league at t
			case err != nil:
				yield(nil, err)
				return
			default:
				if !yield(res, nil) {
					return
				}
			}

			if t > math.MaxInt64-step {
				return
			}
		}
	}
}
