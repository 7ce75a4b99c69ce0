package snapshot

import (
	"errors"
	"fmt"
)

var (
	// ErrPartialBatch marks an entity that failed during batch generation.
	// The batch itself continues.
	ErrPartialBatch = errors.New("partial batch failure")

	// ErrEmptyCheckpoint is returned when no events exist at or before a checkpoint.
	ErrEmptyCheckpoint = errors.New("no events at or before checkpoint")

	// ErrInvalidSelector is returned for a selector with unusable parameters.
	ErrInvalidSelector = errors.New("invalid checkpoint selector")
)

// PartialBatchFailure records one entity that failed during GenerateAll.
// It matches both ErrPartialBatch and its Cause with errors.Is.
type PartialBatchFailure struct {
	EntityID       string
	CheckpointTime int64 // checkpoint being produced when the failure occurred; 0 if none
	Cause          error
}

func (f *PartialBatchFailure) Error() string {
	return fmt.Sprintf("entity %s checkpoint %d: %v", f.EntityID, f.CheckpointTime, f.Cause)
}

// Unwrap exposes ErrPartialBatch and the cause.
func (f *PartialBatchFailure) Unwrap() []error {
	return []error{ErrPartialBatch, f.Cause}
}

// checkpointError tags a fold failure with the checkpoint it was building.
type checkpointError struct {
	checkpoint int64
	err        error
}

func (e *checkpointError) Error() string {
	return fmt.Sprintf("checkpoint %d: %v", e.checkpoint, e.err)
}

func (e *checkpointError) Unwrap() error { return e.err }
