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


// Package embedding turns text and chunks into vectors through an ai.Embedder,
// pacing large jobs into delayed batches and retrying failed calls.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/poiesic/aisync/ai"
	"github.com/poiesic/aisync/core"
)

const (
	// DefaultBatchSize is the number of chunks sent per request.
	DefaultBatchSize = 100

	// DefaultBatchDelay is the pause between consecutive batches.
	DefaultBatchDelay = 500 * time.Millisecond

	// DefaultTimeout bounds a single request to the embedding service.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the number of retries after a failed request.
	DefaultMaxRetries = 2

	// DefaultRetryInterval is the first backoff interval.
	DefaultRetryInterval = 500 * time.Millisecond
)

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Embedder produces embeddings with a fixed model and dimension.
type Embedder struct {
	client          ai.Embedder
	model           string
	dimension       int
	timeout         time.Duration
	maxRetries      uint64
	initialInterval time.Duration
	sleep           Sleeper
	logger          *slog.Logger
}

// Option configures an Embedder.
type Option func(*Embedder) error

// WithTimeout sets the per-request timeout. Zero disables it.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Embedder) error {
		if timeout < 0 {
			return fmt.Errorf("timeout cannot be negative: %v", timeout)
		}
		e.timeout = timeout
		return nil
	}
}

// WithRetry sets how many times a failed request is retried and the
// first backoff interval.
func WithRetry(maxRetries int, initialInterval time.Duration) Option {
	return func(e *Embedder) error {
		if maxRetries < 0 {
			return fmt.Errorf("max retries cannot be negative: %d", maxRetries)
		}
		if initialInterval <= 0 {
			return fmt.Errorf("retry interval must be positive: %v", initialInterval)
		}
		e.maxRetries = uint64(maxRetries)
		e.initialInterval = initialInterval
		return nil
	}
}

// WithSleeper replaces the pause used between batches.
func WithSleeper(sleep Sleeper) Option {
	return func(e *Embedder) error {
		if sleep == nil {
			return fmt.Errorf("sleeper cannot be nil")
		}
		e.sleep = sleep
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Embedder) error {
		if logger != nil {
			e.logger = logger
		}
		return nil
	}
}

// NewEmbedder wraps client. Model and dimension are fixed for the
// lifetime of the Embedder.
func NewEmbedder(client ai.Embedder, model string, dimension int, opts ...Option) (*Embedder, error) {
	if client == nil {
		return nil, ErrClientRequired
	}
	if model == "" {
		return nil, ErrModelRequired
	}
	if dimension <= 0 {
		return nil, ErrInvalidDimension
	}

	e := &Embedder{
		client:          client,
		model:           model,
		dimension:       dimension,
		timeout:         DefaultTimeout,
		maxRetries:      DefaultMaxRetries,
		initialInterval: DefaultRetryInterval,
		sleep:           sleepContext,
		logger:          slog.Default().With("component", "embedding", "model", model),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Model returns the embedding model name.
func (e *Embedder) Model() string {
	return e.model
}

// Dimension returns the embedding vector length.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// Embed returns the embedding of a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one embedding per text, in input order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return e.request(ctx, texts)
}

// EmbedChunks embeds every chunk in a single request and returns copies
// with Embedding populated.
func (e *Embedder) EmbedChunks(ctx context.Context, chunks []core.ChunkData) ([]core.ChunkData, error) {
	out := slices.Clone(chunks)
	if len(out) == 0 {
		return out, nil
	}
	vectors, err := e.request(ctx, chunkTexts(out))
	if err != nil {
		return out, err
	}
	for i := range out {
		out[i].Embedding = vectors[i]
	}
	return out, nil
}

// EmbedChunksWithRateLimit embeds chunks in sequential batches of
// batchSize, pausing delay between batches. On failure the remaining
// batches are abandoned and the chunks are returned with the embeddings
// of the completed batches attached, together with the error.
func (e *Embedder) EmbedChunksWithRateLimit(ctx context.Context, chunks []core.ChunkData, batchSize int, delay time.Duration) ([]core.ChunkData, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if delay < 0 {
		delay = 0
	}

	out := slices.Clone(chunks)
	batches := (len(out) + batchSize - 1) / batchSize
	for b := 0; b < batches; b++ {
		if b > 0 {
			if err := e.sleep(ctx, delay); err != nil {
				return out, err
			}
		}

		start := b * batchSize
		end := min(start+batchSize, len(out))
		vectors, err := e.request(ctx, chunkTexts(out[start:end]))
		if err != nil {
			e.logger.Error("embedding batch failed", "batch", b+1, "batches", batches, "err", err)
			return out, fmt.Errorf("embedding batch %d of %d: %w", b+1, batches, err)
		}
		for i, v := range vectors {
			out[start+i].Embedding = v
		}
		e.logger.Debug("embedded batch", "batch", b+1, "batches", batches, "size", end-start)
	}
	return out, nil
}

// request sends texts to the client with a per-call timeout, retrying
// transient failures with exponential backoff.
func (e *Embedder) request(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	attempt := 0
	op := func() error {
		attempt++
		callCtx, cancel := e.callContext(ctx)
		defer cancel()

		result, err := e.client.EmbedTexts(callCtx, texts)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			e.logger.Warn("embedding request failed", "attempt", attempt, "texts", len(texts), "err", err)
			return err
		}
		if err := e.check(result, len(texts)); err != nil {
			return backoff.Permanent(err)
		}
		vectors = result
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.initialInterval
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, e.maxRetries), ctx)); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (e *Embedder) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

func (e *Embedder) check(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: got %d vectors for %d texts", ErrCountMismatch, len(vectors), want)
	}
	for i, v := range vectors {
		if len(v) != e.dimension {
			return fmt.Errorf("%w: vector %d has %d values, model %s expects %d", ErrDimensionMismatch, i, len(v), e.model, e.dimension)
		}
	}
	return nil
}

func chunkTexts(chunks []core.ChunkData) []string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	return texts
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
