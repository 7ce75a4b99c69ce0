package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"nba-temporal-panel/internal/observability"
)

// BatchResult summarizes one GenerateAll run.
type BatchResult struct {
	RunID            string
	Entities         int
	Succeeded        int
	Skipped          int // not started or interrupted because the context was cancelled
	SnapshotsWritten int
	Failures         []*PartialBatchFailure
	StartedAt        time.Time
	Duration         time.Duration
}

// Err joins all recorded failures, or returns nil when every entity succeeded.
func (r *BatchResult) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// GenerateAll snapshots every known entity at the checkpoints chosen by sel.
//
// Entities run on a bounded worker pool; each entity is folded sequentially.
// A failing entity is recorded in BatchResult.Failures and does not stop the
// batch. Cancellation is observed between entities: entities not yet started,
// and entities interrupted by the cancellation, are counted as skipped and
// ctx.Err() is returned alongside the partial result.
func (g *Generator) GenerateAll(ctx context.Context, sel Selector) (*BatchResult, error) {
	result := &BatchResult{
		RunID:     uuid.New().String(),
		StartedAt: g.now(),
	}
	log := g.log.With().Str("run_id", result.RunID).Logger()

	entities, err := g.events.Entities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	result.Entities = len(entities)
	log.Info().Int("entities", len(entities)).Int("workers", g.workers).Msg("batch started")

	var (
		mu  sync.Mutex
		grp errgroup.Group
	)
	grp.SetLimit(g.workers)

	for _, entityID := range entities {
		grp.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				result.Skipped++
				mu.Unlock()
				return nil
			}

			written, err := g.generateEntity(ctx, entityID, sel)

			mu.Lock()
			defer mu.Unlock()
			result.SnapshotsWritten += written
			if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				result.Skipped++
				log.Debug().Str("entity_id", entityID).Err(err).Msg("entity interrupted")
				return nil
			}
			if err != nil {
				failure := &PartialBatchFailure{
					EntityID:       entityID,
					CheckpointTime: failureCheckpoint(err),
					Cause:          err,
				}
				result.Failures = append(result.Failures, failure)
				log.Warn().Str("entity_id", entityID).Int64("checkpoint", failure.CheckpointTime).
					Err(err).Msg("entity failed")
				return nil
			}
			result.Succeeded++
			return nil
		})
	}
	_ = grp.Wait()

	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].EntityID < result.Failures[j].EntityID
	})
	result.Duration = g.now().Sub(result.StartedAt)

	status := "ok"
	if len(result.Failures) > 0 || result.Skipped > 0 {
		status = "partial"
	} else {
		observability.MarkBatchSuccess(g.now().Unix())
	}
	observability.RecordBatchRun(status, result.Duration.Seconds(), len(result.Failures))

	log.Info().
		Int("succeeded", result.Succeeded).
		Int("failed", len(result.Failures)).
		Int("skipped", result.Skipped).
		Int("snapshots", result.SnapshotsWritten).
		Dur("duration", result.Duration).
		Msg("batch finished")

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("batch %s cancelled: %w", result.RunID, err)
	}
	return result, nil
}

func (g *Generator) generateEntity(ctx context.Context, entityID string, sel Selector) (int, error) {
	checkpoints, err := sel.Select(ctx, entityID, g.events)
	if err != nil {
		return 0, fmt.Errorf("select checkpoints: %w", err)
	}
	return g.write(ctx, entityID, checkpoints)
}
