package fold

import (
	"fmt"
	"sort"

	"nba-temporal-panel/internal/domain"
)

// SortEvents orders events by (event_time ASC, insertion_sequence ASC).
// Events sharing an event_time are folded in the order they were written.
func SortEvents(events []*domain.Event) {
	sort.Slice(events, func(i, j int) bool {
		return Compare(events[i], events[j]) < 0
	})
}

// Compare returns:
//   - negative if a folds before b
//   - zero if a and b have the same fold key
//   - positive if a folds after b
func Compare(a, b *domain.Event) int {
	return compareKey(a.EventTime, a.Sequence, b.EventTime, b.Sequence)
}

func compareKey(aTime, aSeq, bTime, bSeq int64) int {
	if aTime != bTime {
		if aTime < bTime {
			return -1
		}
		return 1
	}
	if aSeq != bSeq {
		if aSeq < bSeq {
			return -1
		}
		return 1
	}
	return 0
}

// ValidateOrdering checks that events are strictly increasing by fold key.
func ValidateOrdering(events []*domain.Event) error {
	for i := 1; i < len(events); i++ {
		if Compare(events[i-1], events[i]) >= 0 {
			return fmt.Errorf("%w: %s then %s", ErrInvalidOrdering, events[i-1], events[i])
		}
	}
	return nil
}
