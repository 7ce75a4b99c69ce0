package fold

import (
	"fmt"
	"iter"
	"math"
	"sort"

	"nba-temporal-panel/internal/domain"
	"nba-temporal-panel/internal/statehash"
)

// Accumulator carries the running result of a fold.
type Accumulator struct {
	State       domain.State
	Count       int64 // events folded in total, including a seeding snapshot's basis
	Applied     int64 // events folded by this accumulator
	Precision   domain.Precision
	MaxSequence int64

	lastTime int64
	lastSeq  int64
	started  bool
	sources  map[domain.Source]struct{}
}

// NewAccumulator returns an empty accumulator for a fold from the first event.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		State:   make(domain.State),
		sources: make(map[domain.Source]struct{}),
	}
}

// FromSnapshot seeds an accumulator with a snapshot's state. Subsequent
// events must be strictly after the snapshot time.
func FromSnapshot(s *domain.Snapshot) *Accumulator {
	acc := NewAccumulator()
	acc.State = s.State.Clone()
	acc.Count = s.BasisEventCount
	acc.Precision = s.Precision
	acc.MaxSequence = s.LastSequence
	for _, src := range s.Sources {
		acc.sources[src] = struct{}{}
	}
	// Any event at snapshot_time was already folded into the snapshot.
	acc.lastTime = s.SnapshotTime
	acc.lastSeq = math.MaxInt64
	acc.started = true
	return acc
}

// Step folds one event. It fails with ErrInvalidOrdering if e does not
// follow the previous event in (event_time, insertion_sequence) order.
func (a *Accumulator) Step(e *domain.Event, r Reducer) error {
	if a.started && compareKey(a.lastTime, a.lastSeq, e.EventTime, e.Sequence) >= 0 {
		return fmt.Errorf("%w: %s after (%d, %d)", ErrInvalidOrdering, e, a.lastTime, a.lastSeq)
	}
	if err := r.Apply(a.State, e); err != nil {
		return err
	}

	a.lastTime, a.lastSeq, a.started = e.EventTime, e.Sequence, true
	a.Count++
	a.Applied++
	a.Precision = domain.Coarsest(a.Precision, e.Precision)
	if e.Sequence > a.MaxSequence {
		a.MaxSequence = e.Sequence
	}
	a.sources[e.Source] = struct{}{}
	return nil
}

// LastEventTime returns the event_time of the last folded event, and false
// when nothing has been folded or seeded.
func (a *Accumulator) LastEventTime() (int64, bool) {
	return a.lastTime, a.started
}

// Sources returns the distinct sources folded so far, sorted ASC.
func (a *Accumulator) Sources() []domain.Source {
	out := make([]domain.Source, 0, len(a.sources))
	for src := range a.sources {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Snapshot materializes the accumulator as a snapshot at snapshotTime.
// The returned snapshot owns a copy of the state.
func (a *Accumulator) Snapshot(entityID string, snapshotTime, generatedAt int64) *domain.Snapshot {
	state := a.State.Clone()
	return &domain.Snapshot{
		EntityID:        entityID,
		SnapshotTime:    snapshotTime,
		State:           state,
		BasisEventCount: a.Count,
		LastSequence:    a.MaxSequence,
		Precision:       a.Precision,
		Sources:         a.Sources(),
		StateDigest:     statehash.Digest(state),
		GeneratedAt:     generatedAt,
	}
}

// Fold folds every event of seq into acc, in sequence order.
func Fold(acc *Accumulator, seq iter.Seq2[*domain.Event, error], r Reducer) error {
	if r == nil {
		r = Default
	}
	for e, err := range seq {
		if err != nil {
			return err
		}
		if err := acc.Step(e, r); err != nil {
			return err
		}
	}
	return nil
}

// Slice adapts an ordered slice to the sequence form consumed by Fold.
func Slice(events []*domain.Event) iter.Seq2[*domain.Event, error] {
	return func(yield func(*domain.Event, error) bool) {
		for _, e := range events {
			if !yield(e, nil) {
				return
			}
		}
	}
}
