package memory

import (
	"context"
	"iter"
	"sort"
	"sync"
	"time"

	"nba-temporal-panel/internal/domain"
	"nba-temporal-panel/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
// Each entity's log is kept sorted by (event_time, insertion_sequence).
type EventStore struct {
	mu      sync.RWMutex
	logs    map[string][]*domain.Event // keyed by entity_id
	nextSeq int64
	now     func() time.Time
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		logs: make(map[string][]*domain.Event),
		now:  time.Now,
	}
}

// Append persists one event and assigns its insertion sequence.
func (s *EventStore) Append(_ context.Context, e *domain.Event) error {
	if e == nil || e.EntityID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.insertLocked(e, s.now().UnixMilli())
	return nil
}

// AppendBatch appends all events or none.
func (s *EventStore) AppendBatch(_ context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if e == nil || e.EntityID == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recordedAt := s.now().UnixMilli()
	for _, e := range events {
		s.insertLocked(e, recordedAt)
	}
	return nil
}

// insertLocked assigns the next sequence and places a copy in sorted position.
// The new sequence is the largest, so it goes after every event at the same time.
func (s *EventStore) insertLocked(e *domain.Event, recordedAt int64) {
	s.nextSeq++
	e.Sequence = s.nextSeq
	e.RecordedAt = recordedAt

	log := s.logs[e.EntityID]
	idx := sort.Search(len(log), func(i int) bool {
		return log[i].EventTime > e.EventTime
	})

	log = append(log, nil)
	copy(log[idx+1:], log[idx:])
	log[idx] = e.Clone()
	s.logs[e.EntityID] = log
}

// RangeQuery yields events with after < event_time <= through in fold order.
func (s *EventStore) RangeQuery(ctx context.Context, entityID string, after, through int64) iter.Seq2[*domain.Event, error] {
	return func(yield func(*domain.Event, error) bool) {
		for _, e := range s.collect(entityID, after, through) {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (s *EventStore) collect(entityID string, after, through int64) []*domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.logs[entityID]
	lo := sort.Search(len(log), func(i int) bool { return log[i].EventTime > after })
	hi := sort.Search(len(log), func(i int) bool { return log[i].EventTime > through })
	if lo >= hi {
		return nil
	}

	result := make([]*domain.Event, 0, hi-lo)
	for _, e := range log[lo:hi] {
		result = append(result, e.Clone())
	}
	return result
}

// LatestBefore returns the most recent event with event_time <= t.
func (s *EventStore) LatestBefore(_ context.Context, entityID string, t int64) (*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.logs[entityID]
	idx := sort.Search(len(log), func(i int) bool { return log[i].EventTime > t })
	if idx == 0 {
		return nil, storage.ErrNotFound
	}
	return log[idx-1].Clone(), nil
}

// Earliest returns the first event of an entity.
func (s *EventStore) Earliest(_ context.Context, entityID string) (*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.logs[entityID]
	if len(log) == 0 {
		return nil, storage.ErrNotFound
	}
	return log[0].Clone(), nil
}

// Entities returns distinct entity ids, sorted ASC.
func (s *EventStore) Entities(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.logs))
	for id, log := range s.logs {
		if len(log) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// CountThrough returns the number of events with event_time <= t.
func (s *EventStore) CountThrough(_ context.Context, entityID string, t int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.logs[entityID]
	idx := sort.Search(len(log), func(i int) bool { return log[i].EventTime > t })
	return int64(idx), nil
}

// Coverage counts events with from <= event_time <= through.
func (s *EventStore) Coverage(_ context.Context, from, through int64) (*storage.Coverage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cov := storage.NewCoverage()
	for _, log := range s.logs {
		for _, e := range log {
			if e.EventTime < from || e.EventTime > through {
				continue
			}
			cov.Total++
			cov.ByPrecision[e.Precision]++
			cov.BySource[e.Source]++
		}
	}
	return cov, nil
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)
