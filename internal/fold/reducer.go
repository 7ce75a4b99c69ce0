package fold

import (
	"fmt"

	"nba-temporal-panel/internal/domain"
)

// Reducer applies one event to a cumulative state in place.
// Implementations must be deterministic: the same ordered events always
// produce the same state.
type Reducer interface {
	Apply(state domain.State, e *domain.Event) error
}

// ReducerFunc adapts a function to Reducer.
type ReducerFunc func(state domain.State, e *domain.Event) error

// Apply calls f(state, e).
func (f ReducerFunc) Apply(state domain.State, e *domain.Event) error {
	return f(state, e)
}

// StatReducer folds counting stats: delta payloads add, absolute payloads overwrite.
// Rate stats are rejected; they are derived from counters at read time.
type StatReducer struct{}

// Apply implements Reducer.
func (StatReducer) Apply(state domain.State, e *domain.Event) error {
	for key := range e.Payload.Stats {
		if domain.IsRateStat(key) {
			return fmt.Errorf("%w: rate stat %q in %s", domain.ErrInvalidEvent, key, e)
		}
	}

	switch e.Payload.Kind {
	case domain.PayloadDelta:
		for key, v := range e.Payload.Stats {
			state[key] += v
		}
	case domain.PayloadAbsolute:
		for key, v := range e.Payload.Stats {
			state[key] = v
		}
	default:
		return fmt.Errorf("%w: payload kind %q in %s", domain.ErrInvalidEvent, e.Payload.Kind, e)
	}
	return nil
}

// Default is the reducer used by snapshot generation and queries.
var Default Reducer = StatReducer{}
