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


// Package chunkstore stores documents as embedded chunks and answers
// similarity queries over them.
package chunkstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/aisync/chunking"
	"github.com/poiesic/aisync/core"
	"github.com/poiesic/aisync/embedding"
	"github.com/poiesic/aisync/storage"
)

// Search defaults.
const (
	DefaultLimit     = 10
	DefaultThreshold = 0.7
)

// Document is a unit of text to be chunked, embedded and stored.
type Document struct {
	Title      string
	Content    string
	EntityType string
	EntityID   string
	Source     string
	Metadata   map[string]string
}

// SearchOptions controls SearchSimilar. Zero Limit and Threshold use the
// defaults.
type SearchOptions struct {
	Limit          int
	Threshold      float32
	EntityType     string
	EntityID       string
	Source         string
	SourcePrefix   string
	SourceContains string
}

func (o SearchOptions) filter() storage.ChunkFilter {
	return storage.ChunkFilter{
		EntityType:     o.EntityType,
		EntityID:       o.EntityID,
		Source:         o.Source,
		SourcePrefix:   o.SourcePrefix,
		SourceContains: o.SourceContains,
	}
}

// Client writes and queries the chunk store.
type Client struct {
	repo       storage.ChunkRepository
	chunker    *chunking.Chunker
	embedder   *embedding.Embedder
	batchSize  int
	batchDelay time.Duration
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client) error

// WithRateLimit sets the embedding batch size and the pause between batches.
func WithRateLimit(batchSize int, delay time.Duration) Option {
	return func(c *Client) error {
		if batchSize <= 0 {
			return fmt.Errorf("batch size must be positive: %d", batchSize)
		}
		if delay < 0 {
			return fmt.Errorf("batch delay cannot be negative: %v", delay)
		}
		c.batchSize = batchSize
		c.batchDelay = delay
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// NewClient creates a chunk store client.
func NewClient(repo storage.ChunkRepository, chunker *chunking.Chunker, embedder *embedding.Embedder, opts ...Option) (*Client, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if chunker == nil {
		return nil, ErrChunkerRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	c := &Client{
		repo:       repo,
		chunker:    chunker,
		embedder:   embedder,
		batchSize:  embedding.DefaultBatchSize,
		batchDelay: embedding.DefaultBatchDelay,
		logger:     slog.Default().With("component", "chunkstore"),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// CreateDocument chunks, embeds and stores doc under orgID. All chunks are
// written together or not at all. Returns the number of chunks stored.
func (c *Client) CreateDocument(ctx context.Context, orgID string, doc Document) (int, error) {
	records, firstVectors, err := c.prepare(ctx, orgID, doc)
	if err != nil {
		return 0, err
	}
	if err := c.repo.AddChunks(ctx, records...); err != nil {
		return 0, fmt.Errorf("storing %s %s: %w", doc.EntityType, doc.EntityID, err)
	}
	return c.stored(ctx, orgID, doc, records, firstVectors)
}

// ReplaceDocument chunks and embeds doc, then swaps it for whatever is
// stored under the same entity in one write. A failure leaves the stored
// chunks as they were.
func (c *Client) ReplaceDocument(ctx context.Context, orgID string, doc Document) (int, error) {
	records, firstVectors, err := c.prepare(ctx, orgID, doc)
	if err != nil {
		return 0, err
	}
	if _, err := c.repo.ReplaceChunks(ctx, orgID, doc.EntityType, doc.EntityID, records...); err != nil {
		return 0, fmt.Errorf("replacing %s %s: %w", doc.EntityType, doc.EntityID, err)
	}
	return c.stored(ctx, orgID, doc, records, firstVectors)
}

// prepare validates doc and builds its embedded chunk records.
func (c *Client) prepare(ctx context.Context, orgID string, doc Document) ([]*core.ChunkRecord, bool, error) {
	if orgID == "" {
		return nil, false, core.ErrMissingOrganization
	}
	if doc.EntityType == "" || doc.EntityID == "" {
		return nil, false, core.ErrMissingEntity
	}
	if strings.TrimSpace(doc.Content) == "" {
		return nil, false, ErrEmptyDocument
	}

	firstVectors, err := c.checkProfile(ctx)
	if err != nil {
		return nil, false, err
	}

	chunks := c.chunker.ChunkText(doc.Content)
	if len(chunks) == 0 {
		return nil, false, ErrEmptyDocument
	}

	embedded, err := c.embedder.EmbedChunksWithRateLimit(ctx, chunks, c.batchSize, c.batchDelay)
	if err != nil {
		return nil, false, fmt.Errorf("embedding %s %s: %w", doc.EntityType, doc.EntityID, err)
	}

	records := make([]*core.ChunkRecord, len(embedded))
	for i, chunk := range embedded {
		records[i] = &core.ChunkRecord{
			ID:             uuid.NewString(),
			OrganizationID: orgID,
			EntityType:     doc.EntityType,
			EntityID:       doc.EntityID,
			ChunkIndex:     chunk.ChunkIndex,
			TotalChunks:    len(embedded),
			Title:          doc.Title,
			Content:        chunk.Content,
			ContentHash:    core.ContentHash(chunk.Content),
			Source:         doc.Source,
			TokenCount:     chunk.TokenCount,
			Metadata:       maps.Clone(doc.Metadata),
			Vector:         chunk.Embedding,
		}
	}
	return records, firstVectors, nil
}

func (c *Client) stored(ctx context.Context, orgID string, doc Document, records []*core.ChunkRecord, firstVectors bool) (int, error) {
	if firstVectors {
		profile := &core.EmbeddingProfile{Model: c.embedder.Model(), Dimension: c.embedder.Dimension()}
		if err := c.repo.SetEmbeddingProfile(ctx, profile); err != nil {
			return 0, fmt.Errorf("recording embedding profile: %w", err)
		}
	}

	c.logger.Debug("stored document", "org", orgID, "entityId", doc.EntityID, "chunks", len(records))
	return len(records), nil
}

// checkProfile verifies the embedder matches the stored vectors. It
// reports true when no vectors have been stored yet.
func (c *Client) checkProfile(ctx context.Context) (bool, error) {
	profile, err := c.repo.EmbeddingProfile(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if profile.Model != c.embedder.Model() || profile.Dimension != c.embedder.Dimension() {
		return false, fmt.Errorf("%w: stored %s/%d, embedder %s/%d", ErrEmbeddingMismatch,
			profile.Model, profile.Dimension, c.embedder.Model(), c.embedder.Dimension())
	}
	return false, nil
}

// SearchSimilar ranks the organization's chunks against query by cosine
// similarity. When no chunk reaches the threshold, or the query cannot be
// embedded, it falls back to keyword relevance. Results are deduplicated
// by content hash, best first.
func (c *Client) SearchSimilar(ctx context.Context, orgID, query string, opts SearchOptions) ([]*core.SearchResult, error) {
	if orgID == "" {
		return nil, core.ErrMissingOrganization
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	filter := opts.filter()

	var results []*core.SearchResult
	vector, err := c.embedder.Embed(ctx, query)
	switch {
	case err != nil && ctx.Err() != nil:
		return nil, ctx.Err()
	case err != nil:
		c.logger.Warn("query embedding failed, using text search", "err", err)
	default:
		// fetch extra so deduplication can still fill the page
		results, err = c.repo.FindSimilar(ctx, orgID, vector, filter, opts.Threshold, opts.Limit*2)
		if err != nil {
			return nil, err
		}
	}

	if len(results) == 0 {
		results, err = c.textSearch(ctx, orgID, query, filter)
		if err != nil {
			return nil, err
		}
		c.logger.Debug("text search fallback", "query", query, "results", len(results))
	}

	return dedupe(results, opts.Limit), nil
}

// textSearch scores every chunk matching filter by keyword overlap.
func (c *Client) textSearch(ctx context.Context, orgID, query string, filter storage.ChunkFilter) ([]*core.SearchResult, error) {
	terms := searchTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}
	records, err := c.repo.FindChunks(ctx, orgID, filter)
	if err != nil {
		return nil, err
	}

	var results []*core.SearchResult
	for _, record := range records {
		if score := textRelevance(record.Title, record.Content, terms); score > 0 {
			results = append(results, &core.SearchResult{Record: record, Score: score})
		}
	}
	slices.SortStableFunc(results, func(a, b *core.SearchResult) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return results, nil
}

// dedupe keeps the first result per content hash, up to limit.
func dedupe(results []*core.SearchResult, limit int) []*core.SearchResult {
	seen := make(map[string]bool, len(results))
	out := make([]*core.SearchResult, 0, min(len(results), limit))
	for _, r := range results {
		if len(out) == limit {
			break
		}
		hash := r.Record.ContentHash
		if hash == "" {
			hash = core.ContentHash(r.Record.Content)
		}
		if seen[hash] {
			continue
		}
		seen[hash] = true
		out = append(out, r)
	}
	return out
}

// Count returns the number of chunks stored for an entity.
func (c *Client) Count(ctx context.Context, orgID, entityType, entityID string) (int, error) {
	return c.repo.CountChunks(ctx, orgID, entityType, entityID)
}

// GetChunks returns an entity's chunks in chunk order.
func (c *Client) GetChunks(ctx context.Context, orgID, entityType, entityID string) ([]*core.ChunkRecord, error) {
	return c.repo.GetChunks(ctx, orgID, entityType, entityID)
}

// ListDocuments returns the first chunk of each document matching filter,
// newest first, skipping skip documents and returning at most take. A
// non-positive take returns everything after skip.
func (c *Client) ListDocuments(ctx context.Context, orgID string, filter storage.ChunkFilter, skip, take int) ([]*core.ChunkRecord, error) {
	filter.FirstOnly = true
	records, err := c.repo.FindChunks(ctx, orgID, filter)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(records, func(a, b *core.ChunkRecord) int {
		return b.InsertedAt.Compare(a.InsertedAt)
	})

	skip = max(skip, 0)
	if skip >= len(records) {
		return []*core.ChunkRecord{}, nil
	}
	records = records[skip:]
	if take > 0 && take < len(records) {
		records = records[:take]
	}
	return records, nil
}

// DeleteByEntity removes all chunks of one entity.
func (c *Client) DeleteByEntity(ctx context.Context, orgID, entityType, entityID string) (int, error) {
	if entityType == "" || entityID == "" {
		return 0, core.ErrMissingEntity
	}
	return c.repo.DeleteChunks(ctx, orgID, storage.ChunkFilter{EntityType: entityType, EntityID: entityID})
}

// DeleteBySourcePrefix removes every chunk of entityType whose source
// label starts with prefix.
func (c *Client) DeleteBySourcePrefix(ctx context.Context, orgID, entityType, prefix string) (int, error) {
	if prefix == "" {
		return 0, fmt.Errorf("%w: empty source prefix", storage.ErrInvalidKey)
	}
	return c.repo.DeleteChunks(ctx, orgID, storage.ChunkFilter{EntityType: entityType, SourcePrefix: prefix})
}

// Repository returns the underlying chunk repository.
func (c *Client) Repository() storage.ChunkRepository {
	return c.repo
}
