// Package eventlog is the validating write path in front of an event store.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/rs/zerolog"

	"nba-temporal-panel/internal/domain"
	"nba-temporal-panel/internal/logging"
	"nba-temporal-panel/internal/observability"
	"nba-temporal-panel/internal/storage"
)

// Log validates events before appending them to the underlying store.
// Reads pass straight through, so a Log can be used anywhere a
// storage.EventStore is expected.
type Log struct {
	store  storage.EventStore
	bounds domain.Bounds
	log    zerolog.Logger
}

// New wraps store with validation against bounds.
func New(store storage.EventStore, bounds domain.Bounds) *Log {
	return &Log{
		store:  store,
		bounds: bounds,
		log:    logging.Component("eventlog"),
	}
}

// Append validates e and appends it. Validation errors wrap
// domain.ErrInvalidTimestamp, domain.ErrUnknownPrecision or domain.ErrInvalidEvent.
func (l *Log) Append(ctx context.Context, e *domain.Event) error {
	if err := l.validate(e); err != nil {
		return err
	}
	if err := l.store.Append(ctx, e); err != nil {
		return fmt.Errorf("append %s: %w", e, err)
	}
	observability.RecordEventAppended(e.Source.String())
	return nil
}

// AppendBatch validates every event, then appends them atomically.
// A single invalid event rejects the whole batch.
func (l *Log) AppendBatch(ctx context.Context, events []*domain.Event) error {
	for i, e := range events {
		if err := l.validate(e); err != nil {
			return fmt.Errorf("batch event %d: %w", i, err)
		}
	}
	if err := l.store.AppendBatch(ctx, events); err != nil {
		return fmt.Errorf("append batch of %d: %w", len(events), err)
	}
	for _, e := range events {
		observability.RecordEventAppended(e.Source.String())
	}
	return nil
}

func (l *Log) validate(e *domain.Event) error {
	err := domain.ValidateEvent(e, l.bounds)
	if err == nil {
		return nil
	}

	reason := RejectReason(err)
	observability.RecordEventRejected(reason)

	ev := l.log.Debug().Str("reason", reason).Err(err)
	if e != nil {
		ev = ev.Str("entity_id", e.EntityID).Int64("event_time", e.EventTime)
	}
	ev.Msg("event rejected")
	return err
}

// RejectReason maps a validation error to a short metric label.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidTimestamp):
		return "invalid_timestamp"
	case errors.Is(err, domain.ErrUnknownPrecision):
		return "unknown_precision"
	case errors.Is(err, domain.ErrInvalidEvent):
		return "invalid_event"
	default:
		return "other"
	}
}

// RangeQuery implements storage.EventStore.
func (l *Log) RangeQuery(ctx context.Context, entityID string, after, through int64) iter.Seq2[*domain.Event, error] {
	return l.store.RangeQuery(ctx, entityID, after, through)
}

// LatestBefore implements storage.EventStore.
func (l *Log) LatestBefore(ctx context.Context, entityID string, t int64) (*domain.Event, error) {
	return l.store.LatestBefore(ctx, entityID, t)
}

// Earliest implements storage.EventStore.
func (l *Log) Earliest(ctx context.Context, entityID string) (*domain.Event, error) {
	return l.store.Earliest(ctx, entityID)
}

// Entities implements storage.EventStore.
func (l *Log) Entities(ctx context.Context) ([]string, error) {
	return l.store.Entities(ctx)
}

// CountThrough implements storage.EventStore.
func (l *Log) CountThrough(ctx context.Context, entityID string, t int64) (int64, error) {
	return l.store.CountThrough(ctx, entityID, t)
}

// Coverage implements storage.EventStore.
func (l *Log) Coverage(ctx context.Context, from, through int64) (*storage.Coverage, error) {
	return l.store.Coverage(ctx, from, through)
}

var _ storage.EventStore = (*Log)(nil)
