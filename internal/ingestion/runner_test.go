package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nba-temporal-panel/internal/domain"
	"nba-temporal-panel/internal/eventlog"
	"nba-temporal-panel/internal/snapshot"
	"nba-temporal-panel/internal/storage/memory"
)

// 1991-06-12 (Bulls, Finals game 5)
const finalsDay int64 = 676684800000

type fixture struct {
	events    *memory.EventStore
	snapshots *memory.SnapshotStore
	gen       *snapshot.Generator
	runner    *Runner
}

func newFixture(flushEvery int) *fixture {
	f := &fixture{
		events:    memory.NewEventStore(),
		snapshots: memory.NewSnapshotStore(),
	}
	bounds := domain.DefaultBounds()
	bounds.NoUpperBound = true
	log := eventlog.New(f.events, bounds)
	f.gen = snapshot.New(snapshot.Options{Events: log, Snapshots: f.snapshots})
	f.runner = NewRunner(RunnerOptions{Log: log, Generator: f.gen, FlushEvery: flushEvery})
	return f
}

func line(entityID string, eventTime, pts int64) string {
	return fmt.Sprintf(`{"entity_id":%q,"event_time":%d,"precision_level":"day","source":"basketball_reference","payload":{"kind":"delta","stats":{"pts":%d}}}`,
		entityID, eventTime, pts)
}

// sliceFeed replays prepared results.
type sliceFeed struct {
	items []func() (*domain.Event, error)
}

func (s *sliceFeed) Next(context.Context) (*domain.Event, error) {
	if len(s.items) == 0 {
		return nil, io.EOF
	}
	next := s.items[0]
	s.items = s.items[1:]
	return next()
}

func TestRunner_AppendsAndCountsRejects(t *testing.T) {
	f := newFixture(0)
	ctx := context.Background()

	input := strings.Join([]string{
		line("jordami01", finalsDay, 30),
		"",
		`{"entity_id": "broken"`,
		line("jordami01", finalsDay+1000, 2),
		line("", finalsDay, 1),
		line("pippesc01", -30000000000000, 4), // before league founding
		line("pippesc01", finalsDay, 20),
	}, "\n")

	stats, err := f.runner.Run(ctx, NewJSONLFeed(strings.NewReader(input)))
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Accepted)
	assert.Equal(t, 1, stats.Rejected["malformed"])
	assert.Equal(t, 1, stats.Rejected["invalid_event"])
	assert.Equal(t, 1, stats.Rejected["invalid_timestamp"])
	assert.NotEmpty(t, stats.RunID)

	ids, err := f.events.Entities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"jordami01", "pippesc01"}, ids)
}

func TestRunner_BackdatedEventRegeneratesSnapshots(t *testing.T) {
	f := newFixture(0)
	ctx := context.Background()

	_, err := f.runner.Run(ctx, NewJSONLFeed(strings.NewReader(
		line("jordami01", finalsDay, 30)+"\n"+line("jordami01", finalsDay+2*86400000, 25),
	)))
	require.NoError(t, err)

	checkpoint := finalsDay + 86400000
	before, err := f.gen.Generate(ctx, "jordami01", checkpoint)
	require.NoError(t, err)
	assert.Equal(t, int64(30), before.State[domain.StatPoints])

	// a stat correction for the first game arrives late
	stats, err := f.runner.Run(ctx, NewJSONLFeed(strings.NewReader(line("jordami01", finalsDay+3600000, 2))))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Backdated)
	assert.Equal(t, 1, stats.Regenerated)

	after, err := f.snapshots.Get(ctx, "jordami01", checkpoint)
	require.NoError(t, err)
	assert.Equal(t, int64(32), after.State[domain.StatPoints])
	assert.Equal(t, int64(2), after.BasisEventCount)
}

func TestRunner_FlushEvery(t *testing.T) {
	f := newFixture(1)
	ctx := context.Background()

	require.NoError(t, f.events.Append(ctx, &domain.Event{
		EntityID: "P1", EventTime: finalsDay, Precision: domain.PrecisionDay, Source: domain.SourceESPN,
		Payload: domain.Payload{Kind: domain.PayloadDelta, Stats: map[string]int64{"pts": 10}},
	}))
	_, err := f.gen.Generate(ctx, "P1", finalsDay+1000)
	require.NoError(t, err)

	feed := &sliceFeed{}
	feed.items = append(feed.items,
		func() (*domain.Event, error) {
			return &domain.Event{
				EntityID: "P1", EventTime: finalsDay + 500, Precision: domain.PrecisionSecond, Source: domain.SourceNBAAPI,
				Payload: domain.Payload{Kind: domain.PayloadDelta, Stats: map[string]int64{"pts": 2}},
			}, nil
		},
		func() (*domain.Event, error) {
			// the flush has already happened by the time the feed fails
			snap, err := f.snapshots.Get(ctx, "P1", finalsDay+1000)
			require.NoError(t, err)
			assert.Equal(t, int64(12), snap.State["pts"])
			return nil, errors.New("connection reset")
		},
	)

	stats, err := f.runner.Run(ctx, feed)
	require.Error(t, err)
	assert.Equal(t, 1, stats.Accepted)
	assert.Equal(t, 1, stats.Regenerated)
}

func TestRunner_ContextCancelled(t *testing.T) {
	f := newFixture(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	block := &sliceFeed{items: []func() (*domain.Event, error){
		func() (*domain.Event, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}}

	_, err := f.runner.Run(ctx, block)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
