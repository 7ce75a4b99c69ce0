package domain

// Snapshot is the materialized cumulative state of an entity at SnapshotTime.
// It is derived from events and can always be regenerated.
type Snapshot struct {
	EntityID        string    // entity identifier
	SnapshotTime    int64     // checkpoint, Unix milliseconds
	State           State     // fold of all events with event_time <= SnapshotTime
	BasisEventCount int64     // number of events folded
	LastSequence    int64     // highest insertion sequence folded
	Precision       Precision // coarsest precision among folded events
	Sources         []Source  // distinct sources folded, sorted
	StateDigest     string    // base58 SHA-256 of the canonical state
	GeneratedAt     int64     // Unix milliseconds
}

// Clone returns a deep copy of s.
func (s *Snapshot) Clone() *Snapshot {
	out := *s
	out.State = s.State.Clone()
	out.Sources = append([]Source(nil), s.Sources...)
	return &out
}
