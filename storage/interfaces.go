package storage

import (
	"context"
	"strings"

	"github.com/poiesic/aisync/core"
)

// ChunkFilter narrows chunk queries. Empty fields match everything.
type ChunkFilter struct {
	EntityType string
	EntityID   string

	// Source matches the label exactly.
	Source string

	// SourcePrefix matches labels starting with the value.
	SourcePrefix string

	// SourceContains matches labels containing the value.
	SourceContains string

	// FirstOnly restricts results to chunk index 0 of each entity.
	FirstOnly bool
}

// Matches reports whether record satisfies every set field of the filter.
func (f ChunkFilter) Matches(record *core.ChunkRecord) bool {
	if f.EntityType != "" && record.EntityType != f.EntityType {
		return false
	}
	if f.EntityID != "" && record.EntityID != f.EntityID {
		return false
	}
	if f.Source != "" && record.Source != f.Source {
		return false
	}
	if f.SourcePrefix != "" && !strings.HasPrefix(record.Source, f.SourcePrefix) {
		return false
	}
	if f.SourceContains != "" && !strings.Contains(record.Source, f.SourceContains) {
		return false
	}
	if f.FirstOnly && record.ChunkIndex != 0 {
		return false
	}
	return true
}

// ChunkRepository stores chunk records addressed by
// (organization, entity type, entity id, chunk index).
// Implementations must be thread-safe and support concurrent access.
type ChunkRepository interface {
	// AddChunks writes records in a single transaction.
	// Sets InsertedAt and UpdatedAt if not already set.
	// Returns ErrDuplicateKey if any address is already occupied.
	AddChunks(ctx context.Context, records ...*core.ChunkRecord) error

	// UpdateChunks overwrites existing records and refreshes UpdatedAt.
	// Returns ErrNotFound if any record doesn't exist.
	UpdateChunks(ctx context.Context, records ...*core.ChunkRecord) error

	// ReplaceChunks deletes every chunk of one entity and writes records in
	// its place within a single transaction. Every record must belong to
	// that entity. Returns the number of chunks removed.
	ReplaceChunks(ctx context.Context, orgID, entityType, entityID string, records ...*core.ChunkRecord) (int, error)

	// GetChunks returns the chunks of one entity ordered by chunk index.
	GetChunks(ctx context.Context, orgID, entityType, entityID string) ([]*core.ChunkRecord, error)

	// CountChunks returns the number of chunks stored for one entity.
	CountChunks(ctx context.Context, orgID, entityType, entityID string) (int, error)

	// FindChunks returns the organization's chunks matching filter in key order.
	FindChunks(ctx context.Context, orgID string, filter ChunkFilter) ([]*core.ChunkRecord, error)

	// DeleteChunks removes the organization's chunks matching filter and
	// returns how many were removed.
	DeleteChunks(ctx context.Context, orgID string, filter ChunkFilter) (int, error)

	// ForEachChunk calls fn for every stored chunk across organizations.
	// Iteration stops at the first error fn returns.
	ForEachChunk(ctx context.Context, fn func(*core.ChunkRecord) error) error

	// FindSimilar returns chunks matching filter whose cosine similarity to
	// vector is at least minSimilarity, best first, up to limit results.
	FindSimilar(ctx context.Context, orgID string, vector []float32, filter ChunkFilter, minSimilarity float32, limit int) ([]*core.SearchResult, error)

	// EmbeddingProfile returns the model and dimension of stored vectors.
	// Returns ErrNotFound before the first vector is written.
	EmbeddingProfile(ctx context.Context) (*core.EmbeddingProfile, error)

	// SetEmbeddingProfile records the model and dimension of stored vectors.
	SetEmbeddingProfile(ctx context.Context, profile *core.EmbeddingProfile) error

	// Close closes the storage backend and releases resources.
	Close() error
}
