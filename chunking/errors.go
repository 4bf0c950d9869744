package chunking

import "errors"

var (
	// ErrInvalidChunkSize is returned when the chunk size is not positive.
	ErrInvalidChunkSize = errors.New("chunk size must be greater than 0")

	// ErrInvalidOverlap is returned when the overlap is negative or not smaller than the chunk size.
	ErrInvalidOverlap = errors.New("chunk overlap must be in [0, chunk size)")
)
