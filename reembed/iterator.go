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


package reembed

import (
	"context"

	"github.com/poiesic/aisync/core"
	"github.com/poiesic/aisync/storage"
)

const (
	// DefaultBatchSize is the default number of chunks per batch
	DefaultBatchSize = 100
)

// ChunkIterator walks every stored chunk in batches.
type ChunkIterator struct {
	repo      storage.ChunkRepository
	batchSize int
}

// NewChunkIterator creates a new chunk iterator.
// batchSize: number of chunks per batch; values <= 0 use DefaultBatchSize
func NewChunkIterator(repo storage.ChunkRepository, batchSize int) *ChunkIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ChunkIterator{repo: repo, batchSize: batchSize}
}

// Count returns the number of stored chunks across organizations.
func (it *ChunkIterator) Count(ctx context.Context) (int, error) {
	count := 0
	err := it.repo.ForEachChunk(ctx, func(*core.ChunkRecord) error {
		count++
		return nil
	})
	return count, err
}

// ForEach calls fn with consecutive batches of chunks.
// Chunks are read before the first call, so fn may write to the repository.
// Iteration stops on the first error from fn or when ctx is done.
func (it *ChunkIterator) ForEach(ctx context.Context, fn func([]*core.ChunkRecord) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var chunks []*core.ChunkRecord
	err := it.repo.ForEachChunk(ctx, func(chunk *core.ChunkRecord) error {
		chunks = append(chunks, chunk)
		return nil
	})
	if err != nil {
		return err
	}

	for start := 0; start < len(chunks); start += it.batchSize {
		end := min(start+it.batchSize, len(chunks))
		if err := fn(chunks[start:end]); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}
