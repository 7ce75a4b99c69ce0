package eventlog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nba-temporal-panel/internal/domain"
	"nba-temporal-panel/internal/storage"
	"nba-temporal-panel/internal/storage/memory"
)

var (
	now   = time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	valid = time.Date(1996, time.April, 21, 0, 0, 0, 0, time.UTC).UnixMilli()
)

func newLog() (*Log, *memory.EventStore) {
	store := memory.NewEventStore()
	bounds := domain.Bounds{Min: domain.LeagueFounding, Now: func() time.Time { return now }}
	return New(store, bounds), store
}

func event(eventTime int64) *domain.Event {
	return &domain.Event{
		EntityID:  "jordami01",
		EventTime: eventTime,
		Precision: domain.PrecisionDay,
		Source:    domain.SourceBasketballReference,
		Payload: domain.Payload{
			Kind:  domain.PayloadDelta,
			Stats: map[string]int64{domain.StatPoints: 30},
		},
	}
}

func TestLog_AppendValid(t *testing.T) {
	l, store := newLog()
	ctx := context.Background()

	e := event(valid)
	require.NoError(t, l.Append(ctx, e))
	assert.NotZero(t, e.Sequence)

	n, err := store.CountThrough(ctx, "jordami01", storage.Unbounded)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestLog_RejectsBeforeLeagueFounding(t *testing.T) {
	l, store := newLog()
	ctx := context.Background()

	err := l.Append(ctx, event(domain.LeagueFounding.AddDate(0, 0, -1).UnixMilli()))
	assert.ErrorIs(t, err, domain.ErrInvalidTimestamp)

	_, err = store.Earliest(ctx, "jordami01")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLog_RejectsFutureAndUnknownPrecision(t *testing.T) {
	l, _ := newLog()
	ctx := context.Background()

	assert.ErrorIs(t, l.Append(ctx, event(now.Add(time.Minute).UnixMilli())), domain.ErrInvalidTimestamp)

	bad := event(valid)
	bad.Precision = 42
	assert.ErrorIs(t, l.Append(ctx, bad), domain.ErrUnknownPrecision)
}

func TestLog_BatchRejectedAsWhole(t *testing.T) {
	l, store := newLog()
	ctx := context.Background()

	rate := event(valid + 1)
	rate.Payload.Stats = map[string]int64{domain.RateTSPct: 600}

	err := l.AppendBatch(ctx, []*domain.Event{event(valid), rate})
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)

	n, err := store.CountThrough(ctx, "jordami01", storage.Unbounded)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLog_ReadsPassThrough(t *testing.T) {
	l, _ := newLog()
	ctx := context.Background()

	require.NoError(t, l.AppendBatch(ctx, []*domain.Event{event(valid), event(valid + 1000)}))

	var got []int64
	for e, err := range l.RangeQuery(ctx, "jordami01", storage.Beginning, storage.Unbounded) {
		require.NoError(t, err)
		got = append(got, e.EventTime)
	}
	assert.Equal(t, []int64{valid, valid + 1000}, got)

	latest, err := l.LatestBefore(ctx, "jordami01", valid+500)
	require.NoError(t, err)
	assert.Equal(t, valid, latest.EventTime)

	ids, err := l.Entities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"jordami01"}, ids)
}

func TestRejectReason(t *testing.T) {
	assert.Equal(t, "invalid_timestamp", RejectReason(fmt.Errorf("x: %w", domain.ErrInvalidTimestamp)))
	assert.Equal(t, "unknown_precision", RejectReason(domain.ErrUnknownPrecision))
	assert.Equal(t, "invalid_event", RejectReason(domain.ErrInvalidEvent))
	assert.Equal(t, "other", RejectReason(storage.ErrNotFound))
}
