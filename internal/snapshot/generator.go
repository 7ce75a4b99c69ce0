// Package snapshot materializes per-entity cumulative state at checkpoints.
//
// Every snapshot is computed in full before it is written, and each write
// replaces the stored snapshot in one step. A failed computation never
// touches what is already stored.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"nba-temporal-panel/internal/domain"
	"nba-temporal-panel/internal/fold"
	"nba-temporal-panel/internal/logging"
	"nba-temporal-panel/internal/observability"
	"nba-temporal-panel/internal/storage"
)

// Generator folds events into snapshots.
type Generator struct {
	events    storage.EventStore
	snapshots storage.SnapshotStore
	reducer   fold.Reducer
	workers   int
	now       func() time.Time
	log       zerolog.Logger
}

// Options for creating a Generator.
type Options struct {
	Events    storage.EventStore
	Snapshots storage.SnapshotStore

	// Reducer defaults to fold.Default.
	Reducer fold.Reducer

	// Workers bounds concurrent entities in GenerateAll. Defaults to GOMAXPROCS.
	Workers int

	// Now stamps GeneratedAt. Defaults to time.Now.
	Now func() time.Time
}

// New creates a new Generator.
func New(opts Options) *Generator {
	g := &Generator{
		events:    opts.Events,
		snapshots: opts.Snapshots,
		reducer:   opts.Reducer,
		workers:   opts.Workers,
		now:       opts.Now,
		log:       logging.Component("snapshot"),
	}
	if g.reducer == nil {
		g.reducer = fold.Default
	}
	if g.workers < 1 {
		g.workers = runtime.GOMAXPROCS(0)
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// Generate folds all events of entityID with event_time <= checkpoint and
// writes the snapshot. Returns ErrEmptyCheckpoint when there is nothing to fold.
func (g *Generator) Generate(ctx context.Context, entityID string, checkpoint int64) (*domain.Snapshot, error) {
	snaps, err := g.compute(ctx, entityID, []int64{checkpoint})
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, fmt.Errorf("%w: entity %s at %d", ErrEmptyCheckpoint, entityID, checkpoint)
	}

	if err := g.snapshots.Put(ctx, snaps[0]); err != nil {
		return nil, fmt.Errorf("write snapshot %s@%d: %w", entityID, checkpoint, err)
	}
	observability.RecordSnapshotsWritten(1)
	return snaps[0], nil
}

// Compute folds a snapshot at checkpoint without writing it.
func (g *Generator) Compute(ctx context.Context, entityID string, checkpoint int64) (*domain.Snapshot, error) {
	snaps, err := g.compute(ctx, entityID, []int64{checkpoint})
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, fmt.Errorf("%w: entity %s at %d", ErrEmptyCheckpoint, entityID, checkpoint)
	}
	return snaps[0], nil
}

// ComputeCheckpoints folds snapshots at every checkpoint in one pass without
// writing them. Checkpoints before the entity's first event yield nothing.
func (g *Generator) ComputeCheckpoints(ctx context.Context, entityID string, checkpoints []int64) ([]*domain.Snapshot, error) {
	return g.compute(ctx, entityID, checkpoints)
}

// Regenerate recomputes the snapshot at checkpoint and replaces the stored one.
// If recomputation fails the previous snapshot stays in place.
func (g *Generator) Regenerate(ctx context.Context, entityID string, checkpoint int64) (*domain.Snapshot, error) {
	snap, err := g.Generate(ctx, entityID, checkpoint)
	if err != nil {
		return nil, fmt.Errorf("regenerate %s@%d: %w", entityID, checkpoint, err)
	}
	g.log.Debug().Str("entity_id", entityID).Int64("checkpoint", checkpoint).
		Str("digest", snap.StateDigest).Msg("snapshot regenerated")
	return snap, nil
}

// RegenerateFrom recomputes every stored snapshot of entityID with
// snapshot_time >= from, in one ordered pass. It returns how many were replaced.
// Used when a late event lands behind existing checkpoints.
func (g *Generator) RegenerateFrom(ctx context.Context, entityID string, from int64) (int, error) {
	existing, err := g.snapshots.ListByEntity(ctx, entityID)
	if err != nil {
		return 0, fmt.Errorf("list snapshots %s: %w", entityID, err)
	}

	var checkpoints []int64
	for _, s := range existing {
		if s.SnapshotTime >= from {
			checkpoints = append(checkpoints, s.SnapshotTime)
		}
	}
	if len(checkpoints) == 0 {
		return 0, nil
	}

	n, err := g.write(ctx, entityID, checkpoints)
	if err != nil {
		return n, fmt.Errorf("regenerate %s from %d: %w", entityID, from, err)
	}
	g.log.Info().Str("entity_id", entityID).Int64("from", from).Int("snapshots", n).Msg("snapshots regenerated")
	return n, nil
}

// write computes all checkpoints, then replaces each stored snapshot.
func (g *Generator) write(ctx context.Context, entityID string, checkpoints []int64) (int, error) {
	snaps, err := g.compute(ctx, entityID, checkpoints)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, s := range snaps {
		if err := g.snapshots.Put(ctx, s); err != nil {
			observability.RecordSnapshotsWritten(written)
			return written, &checkpointError{checkpoint: s.SnapshotTime, err: err}
		}
		written++
	}
	observability.RecordSnapshotsWritten(written)
	return written, nil
}

// compute folds the entity once in (event_time, insertion_sequence) order and
// emits a snapshot at each checkpoint. Checkpoints before the first event are skipped.
func (g *Generator) compute(ctx context.Context, entityID string, checkpoints []int64) ([]*domain.Snapshot, error) {
	cps := normalizeCheckpoints(append([]int64(nil), checkpoints...))
	if len(cps) == 0 {
		return nil, nil
	}

	generatedAt := g.now().UnixMilli()
	acc := fold.NewAccumulator()
	out := make([]*domain.Snapshot, 0, len(cps))
	next := 0

	// emitBefore closes every checkpoint strictly before t.
	emitBefore := func(t int64) {
		for next < len(cps) && cps[next] < t {
			if acc.Count > 0 {
				out = append(out, acc.Snapshot(entityID, cps[next], generatedAt))
			}
			next++
		}
	}

	last := cps[len(cps)-1]
	for e, err := range g.events.RangeQuery(ctx, entityID, storage.Beginning, last) {
		if err != nil {
			return nil, &checkpointError{checkpoint: cps[next], err: err}
		}
		emitBefore(e.EventTime)
		if err := acc.Step(e, g.reducer); err != nil {
			return nil, &checkpointError{checkpoint: cps[next], err: err}
		}
	}
	emitBefore(math.MaxInt64)

	return out, nil
}

// failureCheckpoint extracts the checkpoint recorded by compute or write.
func failureCheckpoint(err error) int64 {
	var cpErr *checkpointError
	if errors.As(err, &cpErr) {
		return cpErr.checkpoint
	}
	return 0
}
