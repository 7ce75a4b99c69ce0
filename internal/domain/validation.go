package domain

import (
	"errors"
	"fmt"
	"time"
)

// Ingestion validation errors.
var (
	// ErrInvalidTimestamp is returned when an event time is outside the plausible range.
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrUnknownPrecision is returned for a precision tag outside the enumeration.
	ErrUnknownPrecision = errors.New("unknown precision")

	// ErrInvalidEvent is returned for structurally malformed events.
	ErrInvalidEvent = errors.New("invalid event")
)

// MaxPeriod is the highest accepted period number. Regulation has four
// periods; no game has gone past six overtimes.
const MaxPeriod = 99

// LeagueFounding is the earliest plausible event time (BAA founding, 1946-06-06 UTC).
var LeagueFounding = time.Date(1946, time.June, 6, 0, 0, 0, 0, time.UTC)

// Bounds is the accepted event time window.
type Bounds struct {
	Min          time.Time        // earliest accepted event time
	MaxSkew      time.Duration    // how far past Now an event may be
	Now          func() time.Time // clock; defaults to time.Now
	NoUpperBound bool             // skip the future-time check (historical backfills)
}

// DefaultBounds accepts events from league founding up to the current time.
func DefaultBounds() Bounds {
	return Bounds{Min: LeagueFounding, Now: time.Now}
}

// ValidateEvent checks an event before it is appended.
// Returned errors wrap ErrInvalidTimestamp, ErrUnknownPrecision or ErrInvalidEvent.
func ValidateEvent(e *Event, b Bounds) error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	if e.EntityID == "" {
		return fmt.Errorf("%w: empty entity id", ErrInvalidEvent)
	}
	if !e.Precision.IsValid() {
		return fmt.Errorf("%w: %d", ErrUnknownPrecision, uint8(e.Precision))
	}
	if !e.Source.IsValid() {
		return fmt.Errorf("%w: empty source", ErrInvalidEvent)
	}

	if err := b.check(e.EventTime); err != nil {
		return err
	}

	if !e.Payload.Kind.IsValid() {
		return fmt.Errorf("%w: payload kind %q", ErrInvalidEvent, e.Payload.Kind)
	}
	if len(e.Payload.Stats) == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidEvent)
	}
	for key := range e.Payload.Stats {
		if key == "" {
			return fmt.Errorf("%w: empty stat key", ErrInvalidEvent)
		}
		if IsRateStat(key) {
			return fmt.Errorf("%w: rate stat %q cannot be folded", ErrInvalidEvent, key)
		}
	}
	if e.Period < 0 || e.Period > MaxPeriod {
		return fmt.Errorf("%w: period %d outside 0..%d", ErrInvalidEvent, e.Period, MaxPeriod)
	}

	return nil
}

func (b Bounds) check(eventTime int64) error {
	if !b.Min.IsZero() && eventTime < b.Min.UnixMilli() {
		return fmt.Errorf("%w: %d before %s", ErrInvalidTimestamp, eventTime, b.Min.Format(time.RFC3339))
	}
	if b.NoUpperBound {
		return nil
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	limit := now().Add(b.MaxSkew).UnixMilli()
	if eventTime > limit {
		return fmt.Errorf("%w: %d is in the future (limit %d)", ErrInvalidTimestamp, eventTime, limit)
	}
	return nil
}
