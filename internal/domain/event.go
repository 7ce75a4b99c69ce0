package domain

import "fmt"

// PayloadKind says how a payload's counters combine with the cumulative state.
type PayloadKind string

const (
	// PayloadDelta adds each counter to the cumulative value.
	PayloadDelta PayloadKind = "delta"
	// PayloadAbsolute overwrites each counter with the given value.
	PayloadAbsolute PayloadKind = "absolute"
)

// IsValid checks if the kind is a valid value.
func (k PayloadKind) IsValid() bool {
	return k == PayloadDelta || k == PayloadAbsolute
}

// Payload is the stat change carried by an event.
type Payload struct {
	Kind  PayloadKind      `json:"kind"`
	Stats map[string]int64 `json:"stats"`
}

// Event is an immutable, timestamped stat change for one entity.
// Ordering within an entity is (EventTime, Sequence).
type Event struct {
	EntityID   string    `json:"entity_id"`
	EventTime  int64     `json:"event_time"` // Unix milliseconds
	Sequence   int64     `json:"insertion_sequence"`
	Precision  Precision `json:"precision_level"`
	Source     Source    `json:"source"`
	GameID     string    `json:"game_id,omitempty"`
	Period     int       `json:"period,omitempty"`
	Payload    Payload   `json:"payload"`
	RecordedAt int64     `json:"recorded_at"` // Unix milliseconds, set by the store
}

// Clone returns a deep copy of e.
func (e *Event) Clone() *Event {
	out := *e
	out.Payload.Stats = make(map[string]int64, len(e.Payload.Stats))
	for k, v := range e.Payload.Stats {
		out.Payload.Stats[k] = v
	}
	return &out
}

// String identifies the event for logs.
func (e *Event) String() string {
	return fmt.Sprintf("%s@%d#%d", e.EntityID, e.EventTime, e.Sequence)
}
