package contracts

import "errors"

var (
	// ErrNotFound is returned by repositories when a row does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidProfile is returned when a ChatProfile fails validation
	ErrInvalidProfile = errors.New("invalid chat profile")

	// ErrSlotWritten is returned when a stage result slot is written twice
	ErrSlotWritten = errors.New("stage result already written")

	// ErrInvalidStage is returned for a stage outside the fixed set
	ErrInvalidStage = errors.New("invalid stage")
)
