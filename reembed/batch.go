package reembed

import (
	"context"
	"fmt"

	"github.com/poiesic/aisync/core"
	"github.com/poiesic/aisync/embedding"
	"github.com/poiesic/aisync/storage"
)

// BatchEmbedder embeds texts in one request and reports the model it uses.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimension() int
}

var _ BatchEmbedder = (*embedding.Embedder)(nil)

// BatchProcessor embeds batches of chunks and writes them back.
type BatchProcessor struct {
	repo     storage.ChunkRepository
	embedder BatchEmbedder
}

// NewBatchProcessor creates a new batch processor.
func NewBatchProcessor(repo storage.ChunkRepository, embedder BatchEmbedder) *BatchProcessor {
	return &BatchProcessor{repo: repo, embedder: embedder}
}

// Process embeds the content of every chunk and updates it in place.
// Vectors are normalized to unit length before they are stored.
func (bp *BatchProcessor) Process(ctx context.Context, chunks []*core.ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	vectors, err := bp.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(chunks), len(vectors))
	}

	for i, chunk := range chunks {
		chunk.Vector = NormalizeVector(vectors[i])
	}

	if err := bp.repo.UpdateChunks(ctx, chunks...); err != nil {
		return fmt.Errorf("failed to update chunks: %w", err)
	}
	return nil
}
