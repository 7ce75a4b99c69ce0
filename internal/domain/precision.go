package domain

import (
	"fmt"
	"strings"
)

// Precision is the granularity of confidence in an event timestamp.
// Values are ordered finest to coarsest; the zero value is invalid.
type Precision uint8

const (
	PrecisionMillisecond Precision = iota + 1
	PrecisionSecond
	PrecisionMinute
	PrecisionDay
	PrecisionMonth
	PrecisionYear
	PrecisionUnknown
)

var precisionNames = [...]string{
	PrecisionMillisecond: "millisecond",
	PrecisionSecond:      "second",
	PrecisionMinute:      "minute",
	PrecisionDay:         "day",
	PrecisionMonth:       "month",
	PrecisionYear:        "year",
	PrecisionUnknown:     "unknown",
}

// AllPrecisions lists every valid precision, finest first.
func AllPrecisions() []Precision {
	return []Precision{
		PrecisionMillisecond,
		PrecisionSecond,
		PrecisionMinute,
		PrecisionDay,
		PrecisionMonth,
		PrecisionYear,
		PrecisionUnknown,
	}
}

// IsValid reports whether p is one of the enumerated precisions.
func (p Precision) IsValid() bool {
	return p >= PrecisionMillisecond && p <= PrecisionUnknown
}

// String returns the lowercase tag of the precision.
func (p Precision) String() string {
	if !p.IsValid() {
		return fmt.Sprintf("precision(%d)", uint8(p))
	}
	return precisionNames[p]
}

// CoarserThan reports whether p carries less timestamp confidence than other.
func (p Precision) CoarserThan(other Precision) bool {
	return p > other
}

// AtOrFiner reports whether p is at least as precise as limit.
func (p Precision) AtOrFiner(limit Precision) bool {
	return p <= limit
}

// MarshalText implements encoding.TextMarshaler.
func (p Precision) MarshalText() ([]byte, error) {
	if !p.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPrecision, uint8(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Precision) UnmarshalText(text []byte) error {
	parsed, err := ParsePrecision(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePrecision parses a precision tag. Matching is case-insensitive.
func ParsePrecision(s string) (Precision, error) {
	tag := strings.ToLower(strings.TrimSpace(s))
	for _, p := range AllPrecisions() {
		if precisionNames[p] == tag {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPrecision, s)
}

// Coarsest returns the coarsest of the given precisions.
// Invalid (zero) values are ignored; with no valid input it returns 0.
func Coarsest(ps ...Precision) Precision {
	var out Precision
	for _, p := range ps {
		if p.IsValid() && p > out {
			out = p
		}
	}
	return out
}
