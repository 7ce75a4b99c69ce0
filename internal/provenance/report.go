package provenance

import (
	"time"

	"nba-temporal-panel/internal/domain"
	"nba-temporal-panel/internal/storage"
)

// Report is a read-only coverage view of events and snapshots in a time range.
type Report struct {
	GeneratedAt time.Time
	From        int64 // inclusive, Unix milliseconds
	Through     int64 // inclusive, Unix milliseconds

	Events    *storage.Coverage
	Snapshots *storage.Coverage

	Precision []PrecisionRow // one row per precision level, finest first
	Sources   []SourceRow    // one row per source seen, sorted by name
}

// PrecisionRow is the coverage of one precision level.
type PrecisionRow struct {
	Precision domain.Precision
	Events    int64
	Snapshots int64

	// EventShare is Events / total events in range.
	EventShare float64

	// CumulativeEventShare is the share of events at this precision or finer.
	CumulativeEventShare float64
}

// SourceRow is the coverage of one source.
type SourceRow struct {
	Source     domain.Source
	Events     int64
	Snapshots  int64
	EventShare float64
}

// ShareAtOrFiner returns the fraction of events in range whose timestamp
// precision is p or finer. Returns 0 when the range holds no events.
func (r *Report) ShareAtOrFiner(p domain.Precision) float64 {
	return share(r.Events.AtOrFiner(p), r.Events.Total)
}

// SnapshotShareAtOrFiner is ShareAtOrFiner for snapshots.
func (r *Report) SnapshotShareAtOrFiner(p domain.Precision) float64 {
	return share(r.Snapshots.AtOrFiner(p), r.Snapshots.Total)
}

func share(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}
