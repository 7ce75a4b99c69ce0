package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"nba-temporal-panel/internal/domain"
	"nba-temporal-panel/internal/storage"
)

func newEvent(entityID string, eventTime, points int64) *domain.Event {
	return &domain.Event{
		EntityID:  entityID,
		EventTime: eventTime,
		Precision: domain.PrecisionMinute,
		Source:    domain.SourceNBAAPI,
		Payload: domain.Payload{
			Kind:  domain.PayloadDelta,
			Stats: map[string]int64{domain.StatPoints: points},
		},
	}
}

func collectRange(t *testing.T, store *EventStore, entityID string, after, through int64) []*domain.Event {
	t.Helper()
	var out []*domain.Event
	for e, err := range store.RangeQuery(context.Background(), entityID, after, through) {
		if err != nil {
			t.Fatalf("RangeQuery failed: %v", err)
		}
		out = append(out, e)
	}
	return out
}

func TestEventStore_AppendAssignsSequence(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	e1 := newEvent("P1", 100, 2)
	e2 := newEvent("P2", 50, 1)

	if err := store.Append(ctx, e1); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Append(ctx, e2); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if e1.Sequence != 1 || e2.Sequence != 2 {
		t.Errorf("Expected sequences 1,2, got %d,%d", e1.Sequence, e2.Sequence)
	}
	if e1.RecordedAt == 0 {
		t.Error("Expected RecordedAt to be set")
	}
}

func TestEventStore_RangeQueryOrdering(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	// Appended out of time order; same-time events keep insertion order.
	for _, e := range []*domain.Event{
		newEvent("P1", 300, 1),
		newEvent("P1", 100, 2),
		newEvent("P1", 200, 3),
		newEvent("P1", 100, 4),
	} {
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	got := collectRange(t, store, "P1", storage.Beginning, storage.Unbounded)
	wantPoints := []int64{2, 4, 3, 1}
	if len(got) != len(wantPoints) {
		t.Fatalf("Expected %d events, got %d", len(wantPoints), len(got))
	}
	for i, e := range got {
		if e.Payload.Stats[domain.StatPoints] != wantPoints[i] {
			t.Errorf("Event %d: got pts %d, want %d", i, e.Payload.Stats[domain.StatPoints], wantPoints[i])
		}
	}
}

func TestEventStore_RangeQueryBounds(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	for _, ts := range []int64{100, 200, 300} {
		if err := store.Append(ctx, newEvent("P1", ts, 1)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	// after is exclusive, through is inclusive
	got := collectRange(t, store, "P1", 100, 300)
	if len(got) != 2 || got[0].EventTime != 200 || got[1].EventTime != 300 {
		t.Errorf("Unexpected range result: %v", got)
	}

	if got := collectRange(t, store, "P1", 300, storage.Unbounded); len(got) != 0 {
		t.Errorf("Expected empty range, got %d events", len(got))
	}
	if got := collectRange(t, store, "missing", storage.Beginning, storage.Unbounded); len(got) != 0 {
		t.Errorf("Expected no events for unknown entity, got %d", len(got))
	}
}

func TestEventStore_RangeQueryRestartable(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	if err := store.Append(ctx, newEvent("P1", 100, 1)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	seq := store.RangeQuery(ctx, "P1", storage.Beginning, storage.Unbounded)
	count := func() int {
		n := 0
		for _, err := range seq {
			if err != nil {
				t.Fatalf("RangeQuery failed: %v", err)
			}
			n++
		}
		return n
	}

	if n := count(); n != 1 {
		t.Errorf("First pass: expected 1, got %d", n)
	}

	// A second range re-reads the store.
	if err := store.Append(ctx, newEvent("P1", 200, 1)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if n := count(); n != 2 {
		t.Errorf("Second pass: expected 2, got %d", n)
	}
}

func TestEventStore_ReturnedEventsAreCopies(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	e := newEvent("P1", 100, 5)
	if err := store.Append(ctx, e); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	e.Payload.Stats[domain.StatPoints] = 99

	got, err := store.Earliest(ctx, "P1")
	if err != nil {
		t.Fatalf("Earliest failed: %v", err)
	}
	if got.Payload.Stats[domain.StatPoints] != 5 {
		t.Errorf("Stored event was mutated through caller pointer")
	}
}

func TestEventStore_LatestBefore(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	for _, e := range []*domain.Event{
		newEvent("P1", 100, 1),
		newEvent("P1", 200, 2),
		newEvent("P1", 200, 3),
	} {
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	got, err := store.LatestBefore(ctx, "P1", 250)
	if err != nil {
		t.Fatalf("LatestBefore failed: %v", err)
	}
	if got.Payload.Stats[domain.StatPoints] != 3 {
		t.Errorf("Expected highest-sequence event at 200, got %v", got)
	}

	got, err = store.LatestBefore(ctx, "P1", 100)
	if err != nil || got.EventTime != 100 {
		t.Errorf("Expected event at 100, got %v (err %v)", got, err)
	}

	_, err = store.LatestBefore(ctx, "P1", 99)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestEventStore_EarliestAndEntities(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	if _, err := store.Earliest(ctx, "P1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	for _, e := range []*domain.Event{
		newEvent("P2", 300, 1),
		newEvent("P1", 200, 1),
		newEvent("P1", 150, 1),
	} {
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	first, err := store.Earliest(ctx, "P1")
	if err != nil {
		t.Fatalf("Earliest failed: %v", err)
	}
	if first.EventTime != 150 {
		t.Errorf("Expected earliest 150, got %d", first.EventTime)
	}

	ids, err := store.Entities(ctx)
	if err != nil {
		t.Fatalf("Entities failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "P1" || ids[1] != "P2" {
		t.Errorf("Unexpected entities: %v", ids)
	}

	n, err := store.CountThrough(ctx, "P1", 150)
	if err != nil || n != 1 {
		t.Errorf("CountThrough: got %d (err %v), want 1", n, err)
	}
}

func TestEventStore_AppendBatchAllOrNothing(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	err := store.AppendBatch(ctx, []*domain.Event{newEvent("P1", 100, 1), nil})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("Expected ErrInvalidInput, got %v", err)
	}
	if n, _ := store.CountThrough(ctx, "P1", storage.Unbounded); n != 0 {
		t.Errorf("Expected no events after failed batch, got %d", n)
	}

	batch := []*domain.Event{newEvent("P1", 100, 1), newEvent("P1", 100, 2)}
	if err := store.AppendBatch(ctx, batch); err != nil {
		t.Fatalf("AppendBatch failed: %v", err)
	}
	if batch[0].Sequence >= batch[1].Sequence {
		t.Errorf("Expected batch sequences in slice order, got %d,%d", batch[0].Sequence, batch[1].Sequence)
	}
}

func TestEventStore_ConcurrentAppendUniqueSequences(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			entity := []string{"P1", "P2"}[w%2]
			for i := 0; i < perWriter; i++ {
				_ = store.Append(ctx, newEvent(entity, int64(i), 1))
			}
		}(w)
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for _, entity := range []string{"P1", "P2"} {
		for _, e := range collectRange(t, store, entity, storage.Beginning, storage.Unbounded) {
			if seen[e.Sequence] {
				t.Fatalf("Duplicate sequence %d", e.Sequence)
			}
			seen[e.Sequence] = true
		}
	}
	if len(seen) != writers*perWriter {
		t.Errorf("Expected %d events, got %d", writers*perWriter, len(seen))
	}
}

func TestEventStore_Coverage(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	day := newEvent("P1", 100, 1)
	day.Precision = domain.PrecisionDay
	year := newEvent("P1", 200, 1)
	year.Precision = domain.PrecisionYear
	year.Source = domain.SourceBasketballReference
	outside := newEvent("P2", 900, 1)

	for _, e := range []*domain.Event{day, year, outside} {
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	cov, err := store.Coverage(ctx, 100, 500)
	if err != nil {
		t.Fatalf("Coverage failed: %v", err)
	}
	if cov.Total != 2 {
		t.Errorf("Expected total 2, got %d", cov.Total)
	}
	if cov.ByPrecision[domain.PrecisionDay] != 1 || cov.ByPrecision[domain.PrecisionYear] != 1 {
		t.Errorf("Unexpected precision counts: %v", cov.ByPrecision)
	}
	if cov.AtOrFiner(domain.PrecisionDay) != 1 {
		t.Errorf("Expected 1 event at day or finer, got %d", cov.AtOrFiner(domain.PrecisionDay))
	}
	if cov.BySource[domain.SourceNBAAPI] != 1 || cov.BySource[domain.SourceBasketballReference] != 1 {
		t.Errorf("Unexpected source counts: %v", cov.BySource)
	}
}
