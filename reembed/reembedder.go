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
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/aisync/core"
	"github.com/poiesic/aisync/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of chunks embedded per request
	BatchSize int

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int

	// BatchDelay pauses between batches to stay under provider rate limits
	BatchDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		BatchDelay:     0,
	}
}

// Reembedder re-embeds every chunk in a repository.
type Reembedder struct {
	repo      storage.ChunkRepository
	embedder  BatchEmbedder
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *ChunkIterator
	logger    *slog.Logger
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(repo storage.ChunkRepository, embedder BatchEmbedder, config *Config, progress io.Writer) (*Reembedder, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		repo:      repo,
		embedder:  embedder,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(repo, embedder),
		iterator:  NewChunkIterator(repo, config.BatchSize),
		logger:    slog.Default().With("component", "reembed"),
	}, nil
}

// Run re-embeds every stored chunk and then records the embedder's model
// and dimension as the store's embedding profile. It returns the number
// of chunks processed.
func (r *Reembedder) Run(ctx context.Context) (int, error) {
	total, err := r.iterator.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No chunks found in database (0 chunks)\n")
		return 0, r.updateProfile(ctx)
	}

	fmt.Fprintf(r.progress, "Re-embedding %d chunks with %s (batch size: %d)\n",
		total, r.embedder.Model(), r.iterator.batchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	processed := 0
	batch := 0
	err = r.iterator.ForEach(ctx, func(chunks []*core.ChunkRecord) error {
		if batch > 0 && r.config.BatchDelay > 0 {
			if err := sleep(ctx, r.config.BatchDelay); err != nil {
				return err
			}
		}
		batch++

		if err := r.processor.Process(ctx, chunks); err != nil {
			return fmt.Errorf("failed to process batch %d: %w", batch, err)
		}
		processed += len(chunks)
		tracker.Update(processed)
		return nil
	})
	if err != nil {
		r.logger.Error("re-embedding stopped", "processed", processed, "total", total, "err", err)
		return processed, err
	}

	tracker.Finish()
	if err := r.updateProfile(ctx); err != nil {
		return processed, err
	}

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Re-embedding complete. Processed %d chunks in %v (%.1f chunks/sec)\n",
		processed, elapsed.Round(time.Millisecond), float64(processed)/elapsed.Seconds())
	return processed, nil
}

func (r *Reembedder) updateProfile(ctx context.Context) error {
	profile := &core.EmbeddingProfile{Model: r.embedder.Model(), Dimension: r.embedder.Dimension()}
	if err := r.repo.SetEmbeddingProfile(ctx, profile); err != nil {
		return fmt.Errorf("failed to update embedding profile: %w", err)
	}
	r.logger.Info("embedding profile updated", "model", profile.Model, "dimension", profile.Dimension)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
