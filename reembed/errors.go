package reembed

import "errors"

var (
	// ErrRepositoryRequired is returned when no chunk repository is provided.
	ErrRepositoryRequired = errors.New("chunk repository required")

	// ErrEmbedderRequired is returned when no embedder is provided.
	ErrEmbedderRequired = errors.New("embedder required")
)
