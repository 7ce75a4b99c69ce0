// Package provenance reports how much of the stored history is known at each
// timestamp precision and from which sources.
package provenance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"nba-temporal-panel/internal/domain"
	"nba-temporal-panel/internal/storage"
)

// Tracker builds coverage reports. It never writes.
type Tracker struct {
	events    storage.EventStore
	snapshots storage.SnapshotStore
	now       func() time.Time // injectable clock for deterministic output
}

// NewTracker creates a tracker over the given stores.
func NewTracker(events storage.EventStore, snapshots storage.SnapshotStore) *Tracker {
	return &Tracker{
		events:    events,
		snapshots: snapshots,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// CoverageReport counts events (by event_time) and snapshots (by snapshot_time)
// in [from, through] by precision and by source.
func (t *Tracker) CoverageReport(ctx context.Context, from, through int64) (*Report, error) {
	if from > through {
		return nil, fmt.Errorf("%w: from %d after through %d", storage.ErrInvalidInput, from, through)
	}

	events, err := t.events.Coverage(ctx, from, through)
	if err != nil {
		return nil, fmt.Errorf("event coverage: %w", err)
	}
	snapshots, err := t.snapshots.Coverage(ctx, from, through)
	if err != nil {
		return nil, fmt.Errorf("snapshot coverage: %w", err)
	}

	r := &Report{
		GeneratedAt: t.now(),
		From:        from,
		Through:     through,
		Events:      events,
		Snapshots:   snapshots,
	}

	var cumulative int64
	for _, p := range domain.AllPrecisions() {
		n := events.ByPrecision[p]
		cumulative += n
		r.Precision = append(r.Precision, PrecisionRow{
			Precision:            p,
			Events:               n,
			Snapshots:            snapshots.ByPrecision[p],
			EventShare:           share(n, events.Total),
			CumulativeEventShare: share(cumulative, events.Total),
		})
	}

	seen := make(map[domain.Source]struct{})
	for _, s := range append(events.Sources(), snapshots.Sources()...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		r.Sources = append(r.Sources, SourceRow{
			Source:     s,
			Events:     events.BySource[s],
			Snapshots:  snapshots.BySource[s],
			EventShare: share(events.BySource[s], events.Total),
		})
	}
	sort.Slice(r.Sources, func(i, j int) bool { return r.Sources[i].Source < r.Sources[j].Source })

	return r, nil
}
