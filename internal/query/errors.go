package query

import "errors"

// Errors returned by the query engine.
var (
	// ErrEntityNotFound means there are no events and no snapshots for the entity.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrTimeBeforeEntityExistence means the query time precedes the entity's first event.
	ErrTimeBeforeEntityExistence = errors.New("query time before entity existence")

	// ErrInvalidStep is returned by QueryRange for a non-positive step.
	ErrInvalidStep = errors.New("invalid query step")
)
