package chunkstore

import "errors"

var (
	// ErrRepositoryRequired is returned when no chunk repository is supplied.
	ErrRepositoryRequired = errors.New("chunk repository is required")

	// ErrChunkerRequired is returned when no chunker is supplied.
	ErrChunkerRequired = errors.New("chunker is required")

	// ErrEmbedderRequired is returned when no embedder is supplied.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrEmptyDocument is returned when a document has no content to chunk.
	ErrEmptyDocument = errors.New("document has no content")

	// ErrEmbeddingMismatch is returned when the embedder's model or
	// dimension differs from the vectors already stored.
	ErrEmbeddingMismatch = errors.New("embedding model does not match stored vectors")
)
