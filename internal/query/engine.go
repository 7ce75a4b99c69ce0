// Package query answers point-in-time questions about an entity:
// the nearest snapshot at or before T plus a fold of the events after it.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"nba-temporal-panel/internal/domain"
	"nba-temporal-panel/internal/fold"
	"nba-temporal-panel/internal/logging"
	"nba-temporal-panel/internal/observability"
	"nba-temporal-panel/internal/storage"
)

// Result is the resolved state of an entity at QueryTime.
type Result struct {
	EntityID  string             `json:"entity_id"`
	QueryTime int64              `json:"query_time"`
	State     domain.State       `json:"resolved_state"`
	Rates     map[string]float64 `json:"rates,omitempty"`

	// Precision is the coarsest precision of the snapshot and every applied event.
	Precision domain.Precision `json:"precision_level"`

	// Staleness is QueryTime minus the basis time, in milliseconds. The basis is
	// the snapshot time, or the entity's first event time on the slow path.
	Staleness int64 `json:"staleness_ms"`

	// EventsApplied counts events folded on top of the basis snapshot.
	EventsApplied int64 `json:"source_events_applied"`

	BasisSnapshotTime *int64 `json:"basis_snapshot_time,omitempty"`
	SlowPath          bool   `json:"slow_path"`

	// BasisVerified is false when the basis snapshot was used without its
	// event count being checked against the event store.
	BasisVerified bool `json:"basis_verified"`

	// Reliable reports whether Precision is at or finer than the engine threshold.
	Reliable bool `json:"reliable"`
}

// Engine resolves entity state at arbitrary times.
type Engine struct {
	events      storage.EventStore
	snapshots   storage.SnapshotStore
	reducer     fold.Reducer
	threshold   domain.Precision
	verifyBasis bool
	log         zerolog.Logger
}

// Options for creating an Engine.
type Options struct {
	Events    storage.EventStore
	Snapshots storage.SnapshotStore

	// Reducer must match the one used to generate snapshots. Defaults to fold.Default.
	Reducer fold.Reducer

	// Threshold is the coarsest precision reported as reliable. Defaults to PrecisionUnknown.
	Threshold domain.Precision

	// SkipBasisCheck uses snapshots without recounting the events behind them.
	// By default a snapshot whose basis count no longer matches (late events)
	// is bypassed.
	SkipBasisCheck bool
}

// New creates a new Engine.
func New(opts Options) *Engine {
	e := &Engine{
		events:      opts.Events,
		snapshots:   opts.Snapshots,
		reducer:     opts.Reducer,
		threshold:   opts.Threshold,
		verifyBasis: !opts.SkipBasisCheck,
		log:         logging.Component("query"),
	}
	if e.reducer == nil {
		e.reducer = fold.Default
	}
	if !e.threshold.IsValid() {
		e.threshold = domain.PrecisionUnknown
	}
	return e
}

// QueryAt returns the state of entityID at queryTime.
//
// Fails with ErrEntityNotFound when nothing is known about the entity and with
// ErrTimeBeforeEntityExistence when queryTime precedes its first event.
func (q *Engine) QueryAt(ctx context.Context, entityID string, queryTime int64) (*Result, error) {
	start := time.Now()
	res, err := q.queryAt(ctx, entityID, queryTime)

	path, outcome := "snapshot", "ok"
	if res != nil && res.SlowPath {
		path = "slow"
	}
	switch {
	case errors.Is(err, ErrEntityNotFound):
		outcome = "not_found"
	case errors.Is(err, ErrTimeBeforeEntityExistence):
		outcome = "before_existence"
	case err != nil:
		outcome = "error"
	}
	observability.RecordQuery(path, outcome, time.Since(start).Seconds())
	return res, err
}

func (q *Engine) queryAt(ctx context.Context, entityID string, queryTime int64) (*Result, error) {
	first, err := q.events.Earliest(ctx, entityID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("earliest event %s: %w", entityID, err)
	}
	hasEvents := err == nil

	snap, err := q.snapshots.Nearest(ctx, entityID, queryTime)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("nearest snapshot %s@%d: %w", entityID, queryTime, err)
	}

	if !hasEvents && snap == nil {
		return nil, q.classifyMissing(ctx, entityID, queryTime)
	}
	if hasEvents && queryTime < first.EventTime {
		return nil, fmt.Errorf("%w: %s first seen at %d, asked for %d",
			ErrTimeBeforeEntityExistence, entityID, first.EventTime, queryTime)
	}

	// Without events there is nothing to recount; the snapshot is all we have.
	verified := snap == nil
	if snap != nil && q.verifyBasis && hasEvents {
		n, err := q.events.CountThrough(ctx, entityID, snap.SnapshotTime)
		if err != nil {
			return nil, fmt.Errorf("count events %s@%d: %w", entityID, snap.SnapshotTime, err)
		}
		if n != snap.BasisEventCount {
			q.log.Warn().Str("entity_id", entityID).Int64("snapshot_time", snap.SnapshotTime).
				Int64("basis", snap.BasisEventCount).Int64("events", n).
				Msg("snapshot basis out of date, folding from the first event")
			snap = nil
		}
		verified = true
	}

	var (
		acc   *fold.Accumulator
		after = storage.Beginning
	)
	if snap != nil {
		acc = fold.FromSnapshot(snap)
		after = snap.SnapshotTime
	} else {
		acc = fold.NewAccumulator()
	}

	if err := fold.Fold(acc, q.events.RangeQuery(ctx, entityID, after, queryTime), q.reducer); err != nil {
		return nil, fmt.Errorf("fold %s after %d through %d: %w", entityID, after, queryTime, err)
	}

	res := &Result{
		EntityID:      entityID,
		QueryTime:     queryTime,
		State:         acc.State,
		Rates:         acc.State.Rates(),
		Precision:     acc.Precision,
		EventsApplied: acc.Applied,
		BasisVerified: verified,
	}
	if snap != nil {
		ts := snap.SnapshotTime
		res.BasisSnapshotTime = &ts
		res.Staleness = queryTime - ts
	} else {
		res.SlowPath = true
		res.Staleness = queryTime - first.EventTime
	}
	res.Reliable = res.Precision.IsValid() && res.Precision.AtOrFiner(q.threshold)
	return res, nil
}

// classifyMissing distinguishes an unknown entity from a query that
// precedes every snapshot of an entity whose events are not visible.
func (q *Engine) classifyMissing(ctx context.Context, entityID string, queryTime int64) error {
	snaps, err := q.snapshots.ListByEntity(ctx, entityID)
	if err != nil {
		return fmt.Errorf("list snapshots %s: %w", entityID, err)
	}
	if len(snaps) == 0 {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, entityID)
	}
	return fmt.Errorf("%w: %s first snapshot at %d, asked for %d",
		ErrTimeBeforeEntityExistence, entityID, snaps[0].SnapshotTime, queryTime)
}
