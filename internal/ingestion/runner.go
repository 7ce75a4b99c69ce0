package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"nba-temporal-panel/internal/domain"
	"nba-temporal-panel/internal/eventlog"
	"nba-temporal-panel/internal/logging"
	"nba-temporal-panel/internal/observability"
	"nba-temporal-panel/internal/snapshot"
	"nba-temporal-panel/internal/storage"
)

// Runner appends feed events to the event log and regenerates snapshots that
// late events landed behind. It does not deduplicate. A Runner consumes one
// feed at a time.
type Runner struct {
	log        *eventlog.Log
	generator  *snapshot.Generator
	flushEvery int
	now        func() time.Time
	logger     zerolog.Logger

	// highWater is the latest event_time seen per entity in this run
	highWater map[string]int64
	// dirty is the earliest appended event_time per entity since the last flush
	dirty map[string]int64
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Log       *eventlog.Log
	Generator *snapshot.Generator // nil disables snapshot regeneration

	// FlushEvery regenerates affected snapshots after this many accepted
	// events. Zero regenerates only when the feed is drained.
	FlushEvery int

	Now func() time.Time
}

// RunStats summarizes one Run.
type RunStats struct {
	RunID       string
	Accepted    int
	Rejected    map[string]int // by reason
	Backdated   int            // events older than an event already stored for the entity
	Regenerated int            // snapshots replaced
	Duration    time.Duration
}

// NewRunner creates a new ingestion runner.
func NewRunner(opts RunnerOptions) *Runner {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{
		log:        opts.Log,
		generator:  opts.Generator,
		flushEvery: opts.FlushEvery,
		now:        now,
		logger:     logging.Component("ingestion"),
	}
}

// Run consumes feed until io.EOF or ctx is done.
//
// Invalid events and malformed messages are counted and skipped. Storage
// errors stop the run. Snapshot regeneration runs on every flush and once the
// feed is drained; on cancellation entities still pending are logged and left
// for a later batch.
func (r *Runner) Run(ctx context.Context, feed Feed) (*RunStats, error) {
	stats := &RunStats{
		RunID:    uuid.New().String(),
		Rejected: make(map[string]int),
	}
	start := r.now()
	r.highWater = make(map[string]int64)
	r.dirty = make(map[string]int64)

	log := r.logger.With().Str("run_id", stats.RunID).Logger()
	log.Info().Msg("ingestion started")

	sinceFlush := 0
	for {
		e, err := feed.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, ErrMalformedMessage) {
			stats.Rejected["malformed"]++
			observability.RecordEventRejected("malformed")
			log.Debug().Err(err).Msg("skipping malformed message")
			continue
		}
		if err != nil {
			stats.Duration = r.now().Sub(start)
			r.logPending(log)
			return stats, fmt.Errorf("ingestion %s: %w", stats.RunID, err)
		}

		backdated, err := r.isBackdated(ctx, e)
		if err != nil {
			stats.Duration = r.now().Sub(start)
			return stats, fmt.Errorf("ingestion %s: %w", stats.RunID, err)
		}

		if err := r.log.Append(ctx, e); err != nil {
			if isValidationError(err) {
				stats.Rejected[eventlog.RejectReason(err)]++
				continue
			}
			stats.Duration = r.now().Sub(start)
			r.logPending(log)
			return stats, fmt.Errorf("ingestion %s: %w", stats.RunID, err)
		}

		stats.Accepted++
		observability.MarkIngestionSuccess(r.now().Unix())
		r.track(e)
		if backdated {
			stats.Backdated++
			log.Debug().Str("event", e.String()).Msg("backdated event")
		}

		sinceFlush++
		if r.flushEvery > 0 && sinceFlush >= r.flushEvery {
			n, err := r.flush(ctx)
			stats.Regenerated += n
			if err != nil {
				stats.Duration = r.now().Sub(start)
				return stats, fmt.Errorf("ingestion %s: %w", stats.RunID, err)
			}
			sinceFlush = 0
		}
	}

	n, err := r.flush(ctx)
	stats.Regenerated += n
	stats.Duration = r.now().Sub(start)
	if err != nil {
		return stats, fmt.Errorf("ingestion %s: %w", stats.RunID, err)
	}

	log.Info().
		Int("accepted", stats.Accepted).
		Int("backdated", stats.Backdated).
		Int("regenerated", stats.Regenerated).
		Interface("rejected", stats.Rejected).
		Dur("duration", stats.Duration).
		Msg("ingestion finished")
	return stats, nil
}

// isBackdated reports whether e is older than the latest stored event of its
// entity. The store is consulted once per entity per run.
func (r *Runner) isBackdated(ctx context.Context, e *domain.Event) (bool, error) {
	if e == nil || e.EntityID == "" {
		return false, nil
	}
	hw, ok := r.highWater[e.EntityID]
	if !ok {
		latest, err := r.log.LatestBefore(ctx, e.EntityID, storage.Unbounded)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return false, nil
		case err != nil:
			return false, fmt.Errorf("latest event %s: %w", e.EntityID, err)
		}
		hw = latest.EventTime
		r.highWater[e.EntityID] = hw
	}
	return e.EventTime < hw, nil
}

func (r *Runner) track(e *domain.Event) {
	if hw, ok := r.highWater[e.EntityID]; !ok || e.EventTime > hw {
		r.highWater[e.EntityID] = e.EventTime
	}
	if d, ok := r.dirty[e.EntityID]; !ok || e.EventTime < d {
		r.dirty[e.EntityID] = e.EventTime
	}
}

// flush regenerates every stored snapshot at or after the earliest event
// appended for each dirty entity.
func (r *Runner) flush(ctx context.Context) (int, error) {
	if r.generator == nil || len(r.dirty) == 0 {
		r.dirty = make(map[string]int64)
		return 0, nil
	}

	entities := make([]string, 0, len(r.dirty))
	for id := range r.dirty {
		entities = append(entities, id)
	}
	sort.Strings(entities)

	total := 0
	for _, id := range entities {
		n, err := r.generator.RegenerateFrom(ctx, id, r.dirty[id])
		total += n
		if err != nil {
			return total, err
		}
		if n > 0 {
			observability.RecordBackfill()
		}
		delete(r.dirty, id)
	}
	return total, nil
}

func (r *Runner) logPending(log zerolog.Logger) {
	if len(r.dirty) == 0 {
		return
	}
	ids := make([]string, 0, len(r.dirty))
	for id := range r.dirty {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	log.Warn().Strs("entities", ids).Msg("snapshots not regenerated; run a snapshot batch")
}

func isValidationError(err error) bool {
	return errors.Is(err, domain.ErrInvalidTimestamp) ||
		errors.Is(err, domain.ErrUnknownPrecision) ||
		errors.Is(err, domain.ErrInvalidEvent)
}
