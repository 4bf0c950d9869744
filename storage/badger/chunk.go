// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package badger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/aisync/core"
	"github.com/poiesic/aisync/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
type ChunkRepository struct {
	backend     *Backend
	ownsBackend bool
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a ChunkRepository on a shared backend.
// Closing the repository leaves the backend open.
func NewChunkRepository(backend *Backend) (*ChunkRepository, error) {
	if backend == nil {
		return nil, errors.New("badger backend is required")
	}
	return &ChunkRepository{backend: backend}, nil
}

// NewRepository opens a BadgerDB database at path and returns a
// repository that closes it on Close.
func NewRepository(path string) (storage.ChunkRepository, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	return &ChunkRepository{backend: backend, ownsBackend: true}, nil
}

// Close closes the backend when the repository opened it.
func (r *ChunkRepository) Close() error {
	if r.ownsBackend && !r.backend.IsClosed() {
		return r.backend.Close()
	}
	return nil
}

// AddChunks writes records in a single transaction.
func (r *ChunkRepository) AddChunks(ctx context.Context, records ...*core.ChunkRecord) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	now := time.Now().UTC()
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, record := range records {
			key, err := chunkKey(record)
			if err != nil {
				return err
			}
			_, err = tx.Get(key)
			if err == nil {
				return fmt.Errorf("%w: %s", storage.ErrDuplicateKey, key)
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			if record.InsertedAt.IsZero() {
				record.InsertedAt = now
			}
			if record.UpdatedAt.IsZero() {
				record.UpdatedAt = record.InsertedAt
			}
			if err := tx.Set(key, storage.MarshalChunkRecord(record)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// UpdateChunks overwrites existing records.
func (r *ChunkRepository) UpdateChunks(ctx context.Context, records ...*core.ChunkRecord) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	now := time.Now().UTC()
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, record := range records {
			key, err := chunkKey(record)
			if err != nil {
				return err
			}
			old, err := readChunk(tx, key)
			if err != nil {
				return err
			}
			if old == nil {
				return fmt.Errorf("%w: %s", storage.ErrNotFound, key)
			}

			if record.InsertedAt.IsZero() {
				record.InsertedAt = old.InsertedAt
			}
			record.UpdatedAt = now
			if err := tx.Set(key, storage.MarshalChunkRecord(record)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// ReplaceChunks swaps an entity's chunks for records in one transaction.
func (r *ChunkRepository) ReplaceChunks(ctx context.Context, orgID, entityType, entityID string, records ...*core.ChunkRecord) (int, error) {
	if err := r.check(ctx); err != nil {
		return 0, err
	}
	if entityType == "" || entityID == "" {
		return 0, fmt.Errorf("%w: entity type and id are required", storage.ErrInvalidKey)
	}
	prefix, err := makeScanPrefix(orgID, entityType, entityID)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	removed := 0
	err = r.backend.WithTx(func(tx *badger.Txn) error {
		var stale [][]byte
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		for iter.Rewind(); iter.Valid(); iter.Next() {
			stale = append(stale, iter.Item().KeyCopy(nil))
		}
		iter.Close()

		for _, key := range stale {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		for _, record := range records {
			if record.OrganizationID != orgID || record.EntityType != entityType || record.EntityID != entityID {
				return fmt.Errorf("%w: record %s does not belong to %s/%s", storage.ErrInvalidKey, record.ID, entityType, entityID)
			}
			key, err := chunkKey(record)
			if err != nil {
				return err
			}
			if record.InsertedAt.IsZero() {
				record.InsertedAt = now
			}
			if record.UpdatedAt.IsZero() {
				record.UpdatedAt = record.InsertedAt
			}
			if err := tx.Set(key, storage.MarshalChunkRecord(record)); err != nil {
				return err
			}
		}
		removed = len(stale)
		return tx.Commit()
	}, true)
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// GetChunks returns the chunks of one entity ordered by chunk index.
func (r *ChunkRepository) GetChunks(ctx context.Context, orgID, entityType, entityID string) ([]*core.ChunkRecord, error) {
	if entityType == "" || entityID == "" {
		return nil, fmt.Errorf("%w: entity type and id are required", storage.ErrInvalidKey)
	}
	return r.FindChunks(ctx, orgID, storage.ChunkFilter{EntityType: entityType, EntityID: entityID})
}

// CountChunks returns the number of chunks stored for one entity.
func (r *ChunkRepository) CountChunks(ctx context.Context, orgID, entityType, entityID string) (int, error) {
	if err := r.check(ctx); err != nil {
		return 0, err
	}
	if entityType == "" || entityID == "" {
		return 0, fmt.Errorf("%w: entity type and id are required", storage.ErrInvalidKey)
	}
	prefix, err := makeScanPrefix(orgID, entityType, entityID)
	if err != nil {
		return 0, err
	}

	count := 0
	err = r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// FindChunks returns the organization's chunks matching filter in key order.
func (r *ChunkRepository) FindChunks(ctx context.Context, orgID string, filter storage.ChunkFilter) ([]*core.ChunkRecord, error) {
	var results []*core.ChunkRecord
	err := r.scan(ctx, orgID, filter, func(_ []byte, record *core.ChunkRecord) error {
		results = append(results, record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// DeleteChunks removes the organization's chunks matching filter.
func (r *ChunkRepository) DeleteChunks(ctx context.Context, orgID string, filter storage.ChunkFilter) (int, error) {
	var keys [][]byte
	err := r.scan(ctx, orgID, filter, func(key []byte, _ *core.ChunkRecord) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if err := r.backend.DeleteKeys(keys); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// ForEachChunk calls fn for every stored chunk across organizations.
func (r *ChunkRepository) ForEachChunk(ctx context.Context, fn func(*core.ChunkRecord) error) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		return iterate(ctx, tx, allChunksPrefix(), func(_ []byte, record *core.ChunkRecord) error {
			return fn(record)
		})
	}, false)
}

// FindSimilar scans the organization's chunks matching filter and scores
// each vector by cosine similarity.
func (r *ChunkRepository) FindSimilar(ctx context.Context, orgID string, vector []float32, filter storage.ChunkFilter, minSimilarity float32, limit int) ([]*core.SearchResult, error) {
	var results []*core.SearchResult
	err := r.scan(ctx, orgID, filter, func(_ []byte, record *core.ChunkRecord) error {
		if len(record.Vector) == 0 {
			return nil
		}
		similarity := cosineSimilarity(vector, record.Vector)
		if similarity >= minSimilarity {
			results = append(results, &core.SearchResult{Record: record, Score: similarity})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(results, func(a, b *core.SearchResult) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// EmbeddingProfile returns the stored embedding profile.
func (r *ChunkRepository) EmbeddingProfile(ctx context.Context) (*core.EmbeddingProfile, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	var profile *core.EmbeddingProfile
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(embeddingMetaKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			profile, err = storage.UnmarshalEmbeddingProfile(val)
			return err
		})
	}, false)
	return profile, err
}

// SetEmbeddingProfile stores the embedding profile.
func (r *ChunkRepository) SetEmbeddingProfile(ctx context.Context, profile *core.EmbeddingProfile) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set([]byte(embeddingMetaKey), storage.MarshalEmbeddingProfile(profile)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Helper methods

func (r *ChunkRepository) check(ctx context.Context) error {
	if r.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	return ctx.Err()
}

// scan visits the organization's chunks matching filter in key order.
func (r *ChunkRepository) scan(ctx context.Context, orgID string, filter storage.ChunkFilter, fn func(key []byte, record *core.ChunkRecord) error) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	prefix, err := makeScanPrefix(orgID, filter.EntityType, filter.EntityID)
	if err != nil {
		return err
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		return iterate(ctx, tx, prefix, func(key []byte, record *core.ChunkRecord) error {
			if !filter.Matches(record) {
				return nil
			}
			return fn(key, record)
		})
	}, false)
}

// iterate decodes every record under prefix. Keys passed to fn are copies.
func iterate(ctx context.Context, tx *badger.Txn, prefix []byte, fn func(key []byte, record *core.ChunkRecord) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		item := iter.Item()
		var record *core.ChunkRecord
		if err := item.Value(func(val []byte) error {
			var err error
			record, err = storage.UnmarshalChunkRecord(val)
			return err
		}); err != nil {
			return fmt.Errorf("reading %s: %w", item.Key(), err)
		}
		if err := fn(item.KeyCopy(nil), record); err != nil {
			return err
		}
	}
	return nil
}

func chunkKey(record *core.ChunkRecord) ([]byte, error) {
	return makeChunkKey(record.OrganizationID, record.EntityType, record.EntityID, record.ChunkIndex)
}

// readChunk returns nil when the key is absent.
func readChunk(tx *badger.Txn, key []byte) (*core.ChunkRecord, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var record *core.ChunkRecord
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		record, unmarshalErr = storage.UnmarshalChunkRecord(val)
		return unmarshalErr
	})
	return record, err
}
