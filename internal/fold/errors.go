package fold

import "errors"

// ErrInvalidOrdering is returned when events are not in (event_time, insertion_sequence) order.
var ErrInvalidOrdering = errors.New("events are not in deterministic order")
