package provenance

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nba-temporal-panel/internal/domain"
	"nba-temporal-panel/internal/snapshot"
	"nba-temporal-panel/internal/storage"
	"nba-temporal-panel/internal/storage/memory"
)

func ms(year int, month time.Month, day int) int64 {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).UnixMilli()
}

func seed(t *testing.T) (*memory.EventStore, *memory.SnapshotStore) {
	t.Helper()
	ctx := context.Background()
	events := memory.NewEventStore()
	snapshots := memory.NewSnapshotStore()

	add := func(entity string, at int64, p domain.Precision, src domain.Source) {
		require.NoError(t, events.Append(ctx, &domain.Event{
			EntityID:  entity,
			EventTime: at,
			Precision: p,
			Source:    src,
			Payload:   domain.Payload{Kind: domain.PayloadDelta, Stats: map[string]int64{domain.StatPoints: 1}},
		}))
	}

	add("jordami01", ms(1990, 11, 2), domain.PrecisionDay, domain.SourceBasketballReference)
	add("jordami01", ms(1991, 6, 12), domain.PrecisionSecond, domain.SourceNBAAPI)
	add("pippesc01", ms(1992, 1, 1), domain.PrecisionYear, domain.SourceHoopR)
	add("pippesc01", ms(1994, 3, 5), domain.PrecisionMonth, domain.SourceBasketballReference)
	add("pippesc01", ms(1999, 1, 1), domain.PrecisionDay, domain.SourceESPN) // outside range

	gen := snapshot.New(snapshot.Options{Events: events, Snapshots: snapshots})
	_, err := gen.Generate(ctx, "jordami01", ms(1991, 6, 30))
	require.NoError(t, err)

	return events, snapshots
}

func TestCoverageReport(t *testing.T) {
	events, snapshots := seed(t)
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tracker := NewTracker(events, snapshots).WithClock(func() time.Time { return fixed })

	r, err := tracker.CoverageReport(context.Background(), ms(1990, 1, 1), ms(1995, 12, 31))
	require.NoError(t, err)

	assert.Equal(t, fixed, r.GeneratedAt)
	assert.Equal(t, int64(4), r.Events.Total)
	assert.Equal(t, int64(1), r.Snapshots.Total)

	// second + day of four events
	assert.InDelta(t, 0.5, r.ShareAtOrFiner(domain.PrecisionDay), 1e-9)
	assert.InDelta(t, 0.75, r.ShareAtOrFiner(domain.PrecisionMonth), 1e-9)
	assert.InDelta(t, 1.0, r.ShareAtOrFiner(domain.PrecisionUnknown), 1e-9)
	assert.InDelta(t, 1.0, r.SnapshotShareAtOrFiner(domain.PrecisionDay), 1e-9)

	require.Len(t, r.Precision, len(domain.AllPrecisions()))
	day := r.Precision[domain.PrecisionDay-1]
	assert.Equal(t, domain.PrecisionDay, day.Precision)
	assert.Equal(t, int64(1), day.Events)
	assert.Equal(t, int64(1), day.Snapshots)
	assert.InDelta(t, 0.5, day.CumulativeEventShare, 1e-9)

	var names []domain.Source
	for _, row := range r.Sources {
		names = append(names, row.Source)
	}
	assert.Equal(t, []domain.Source{domain.SourceBasketballReference, domain.SourceHoopR, domain.SourceNBAAPI}, names)
	assert.Equal(t, int64(2), r.Sources[0].Events)
	assert.Equal(t, int64(1), r.Sources[0].Snapshots)
}

func TestCoverageReport_IsReadOnly(t *testing.T) {
	events, snapshots := seed(t)
	ctx := context.Background()

	before, err := events.CountThrough(ctx, "pippesc01", storage.Unbounded)
	require.NoError(t, err)

	_, err = NewTracker(events, snapshots).CoverageReport(ctx, storage.Beginning, storage.Unbounded)
	require.NoError(t, err)

	after, err := events.CountThrough(ctx, "pippesc01", storage.Unbounded)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCoverageReport_InvalidRange(t *testing.T) {
	_, err := NewTracker(memory.NewEventStore(), memory.NewSnapshotStore()).
		CoverageReport(context.Background(), 10, 5)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestRenderMarkdown(t *testing.T) {
	events, snapshots := seed(t)
	r, err := NewTracker(events, snapshots).CoverageReport(context.Background(), storage.Beginning, storage.Unbounded)
	require.NoError(t, err)

	md := RenderMarkdown(r)
	assert.True(t, strings.HasPrefix(md, "# Coverage Report"))
	assert.Contains(t, md, "Range: - .. -")
	assert.Contains(t, md, "| day | 2 |")
	assert.Contains(t, md, "| espn | 1 |")

	empty, err := NewTracker(memory.NewEventStore(), memory.NewSnapshotStore()).
		CoverageReport(context.Background(), 0, 1)
	require.NoError(t, err)
	assert.Contains(t, RenderMarkdown(empty), "No events or snapshots in range.")
}

func TestRenderCSV(t *testing.T) {
	events, snapshots := seed(t)
	r, err := NewTracker(events, snapshots).CoverageReport(context.Background(), ms(1990, 1, 1), ms(1995, 12, 31))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(RenderCSV(r)), "\n")
	assert.Equal(t, "dimension,key,events,event_share,cumulative_event_share,snapshots", lines[0])
	assert.Len(t, lines, 1+len(domain.AllPrecisions())+len(r.Sources))
	assert.Contains(t, lines, "precision,second,1,0.250000,0.250000,0")
	assert.Contains(t, lines, "source,hoopr,1,0.250000,,0")
}
