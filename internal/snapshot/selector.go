package snapshot

import (
	"context"
	"fmt"
	"sort"

	"nba-temporal-panel/internal/domain"
	"nba-temporal-panel/internal/storage"
)

// Selector chooses the checkpoint times at which an entity is snapshotted.
type Selector interface {
	Select(ctx context.Context, entityID string, events storage.EventStore) ([]int64, error)
}

// SelectorFunc adapts a function to Selector.
type SelectorFunc func(ctx context.Context, entityID string, events storage.EventStore) ([]int64, error)

// Select calls f.
func (f SelectorFunc) Select(ctx context.Context, entityID string, events storage.EventStore) ([]int64, error) {
	return f(ctx, entityID, events)
}

// FixedCheckpoints selects the same times for every entity.
func FixedCheckpoints(times ...int64) Selector {
	fixed := normalizeCheckpoints(append([]int64(nil), times...))
	return SelectorFunc(func(context.Context, string, storage.EventStore) ([]int64, error) {
		return append([]int64(nil), fixed...), nil
	})
}

// GameEnds selects the last event time of every game the entity appears in.
// Events without a game id are folded but never end a game.
func GameEnds() Selector {
	return SelectorFunc(func(ctx context.Context, entityID string, events storage.EventStore) ([]int64, error) {
		return lastTimes(ctx, entityID, events, func(e *domain.Event) (string, bool) {
			return e.GameID, e.GameID != ""
		})
	})
}

// PeriodEnds selects the last event time of every (game, period) the entity appears in.
func PeriodEnds() Selector {
	return SelectorFunc(func(ctx context.Context, entityID string, events storage.EventStore) ([]int64, error) {
		return lastTimes(ctx, entityID, events, func(e *domain.Event) (string, bool) {
			if e.GameID == "" || e.Period <= 0 {
				return "", false
			}
			return fmt.Sprintf("%s|%d", e.GameID, e.Period), true
		})
	})
}

// Interval selects origin + k*step boundaries between the entity's first and
// latest event, inclusive.
func Interval(origin, step int64) Selector {
	return SelectorFunc(func(ctx context.Context, entityID string, events storage.EventStore) ([]int64, error) {
		if step <= 0 {
			return nil, fmt.Errorf("%w: interval step %d", ErrInvalidSelector, step)
		}

		first, err := events.Earliest(ctx, entityID)
		if err != nil {
			return nil, err
		}
		latest, err := events.LatestBefore(ctx, entityID, storage.Unbounded)
		if err != nil {
			return nil, err
		}

		start := origin
		if first.EventTime > origin {
			k := (first.EventTime - origin + step - 1) / step
			start = origin + k*step
		}

		var out []int64
		for b := start; b <= latest.EventTime; b += step {
			out = append(out, b)
			if b > storage.Unbounded-step {
				break
			}
		}
		return out, nil
	})
}

// lastTimes scans an entity's events and returns, per group key, the time of the last event.
func lastTimes(ctx context.Context, entityID string, events storage.EventStore, key func(*domain.Event) (string, bool)) ([]int64, error) {
	last := make(map[string]int64)
	for e, err := range events.RangeQuery(ctx, entityID, storage.Beginning, storage.Unbounded) {
		if err != nil {
			return nil, err
		}
		if k, ok := key(e); ok {
			last[k] = e.EventTime
		}
	}

	out := make([]int64, 0, len(last))
	for _, ts := range last {
		out = append(out, ts)
	}
	return normalizeCheckpoints(out), nil
}

// normalizeCheckpoints sorts ASC and drops duplicates.
func normalizeCheckpoints(cps []int64) []int64 {
	sort.Slice(cps, func(i, j int) bool { return cps[i] < cps[j] })
	out := make([]int64, 0, len(cps))
	for _, c := range cps {
		if n := len(out); n > 0 && out[n-1] == c {
			continue
		}
		out = append(out, c)
	}
	return out
}
