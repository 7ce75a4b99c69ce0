package storage

import (
	"context"
	"iter"
	"math"

	"nba-temporal-panel/internal/domain"
)

// Time range sentinels for RangeQuery and Coverage, in Unix milliseconds.
const (
	// Beginning is an exclusive lower bound that admits every event.
	Beginning int64 = math.MinInt64

	// Unbounded is an inclusive upper bound meaning "now" (open ended).
	Unbounded int64 = math.MaxInt64
)

// EventStore provides access to entity_events storage.
// Events are append-only; corrections are new compensating events.
type EventStore interface {
	// Append persists one event. It assigns e.Sequence (global, monotonic)
	// and e.RecordedAt. Returns ErrInvalidInput for a nil event or empty entity.
	Append(ctx context.Context, e *domain.Event) error

	// AppendBatch appends events atomically: either all are persisted or none.
	// Sequences are assigned in slice order.
	AppendBatch(ctx context.Context, events []*domain.Event) error

	// RangeQuery yields events for an entity with after < event_time <= through,
	// ordered by (event_time, insertion_sequence). Each range over the returned
	// sequence re-executes the read. Pass Beginning / Unbounded for open ends.
	RangeQuery(ctx context.Context, entityID string, after, through int64) iter.Seq2[*domain.Event, error]

	// LatestBefore returns the most recent event with event_time <= t.
	// Returns ErrNotFound if none exists.
	LatestBefore(ctx context.Context, entityID string, t int64) (*domain.Event, error)

	// Earliest returns the first event of an entity. Returns ErrNotFound if none exists.
	Earliest(ctx context.Context, entityID string) (*domain.Event, error)

	// Entities returns the distinct entity ids with at least one event, sorted ASC.
	Entities(ctx context.Context) ([]string, error)

	// CountThrough returns the number of events for an entity with event_time <= t.
	CountThrough(ctx context.Context, entityID string, t int64) (int64, error)

	// Coverage counts events with from <= event_time <= through by precision and source.
	Coverage(ctx context.Context, from, through int64) (*Coverage, error)
}

// SnapshotStore provides access to entity_snapshots storage.
// Snapshots are derived data keyed by (entity_id, snapshot_time).
type SnapshotStore interface {
	// Put inserts or replaces the snapshot at (entity_id, snapshot_time).
	// Readers observe either the previous or the new snapshot, never a mix.
	Put(ctx context.Context, s *domain.Snapshot) error

	// Get retrieves the snapshot at exactly snapshot_time. Returns ErrNotFound if not exists.
	Get(ctx context.Context, entityID string, snapshotTime int64) (*domain.Snapshot, error)

	// Nearest returns the snapshot with the greatest snapshot_time <= t.
	// Returns ErrNotFound if none exists.
	Nearest(ctx context.Context, entityID string, t int64) (*domain.Snapshot, error)

	// ListByEntity retrieves all snapshots for an entity, ordered by snapshot_time ASC.
	ListByEntity(ctx context.Context, entityID string) ([]*domain.Snapshot, error)

	// Delete removes the snapshot at (entity_id, snapshot_time). Returns ErrNotFound if not exists.
	Delete(ctx context.Context, entityID string, snapshotTime int64) error

	// Coverage counts snapshots with from <= snapshot_time <= through.
	// A snapshot counts once per distinct source it was folded from.
	Coverage(ctx context.Context, from, through int64) (*Coverage, error)
}
