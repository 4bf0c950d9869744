package importer

import "errors"

var (
	// ErrImporterRequired is returned when no conversation importer is provided.
	ErrImporterRequired = errors.New("conversation importer required")

	// ErrInvalidConcurrency is returned for a worker count below one.
	ErrInvalidConcurrency = errors.New("concurrency must be at least 1")
)
