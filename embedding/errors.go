package embedding

import "errors"

var (
	// ErrClientRequired is returned when no embedding client is supplied.
	ErrClientRequired = errors.New("embedding client is required")

	// ErrModelRequired is returned when the model name is empty.
	ErrModelRequired = errors.New("embedding model is required")

	// ErrInvalidDimension is returned when the dimension is not positive.
	ErrInvalidDimension = errors.New("embedding dimension must be greater than 0")

	// ErrDimensionMismatch is returned when the service returns vectors of the wrong length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrCountMismatch is returned when the service returns a different number of vectors than texts.
	ErrCountMismatch = errors.New("embedding count mismatch")
)
