package badger

import "github.com/poiesic/aisync/storage"

// NewMemoryRepository creates an in-memory chunk repository for testing.
// Close releases the underlying database.
func NewMemoryRepository() (storage.ChunkRepository, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}
	return &ChunkRepository{backend: backend, ownsBackend: true}, nil
}
