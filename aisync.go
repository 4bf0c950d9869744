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


// Package aisync imports exported AI assistant conversations into a
// searchable chunk store.
//
// A Database wires the badger-backed chunk repository, the embedding
// provider, the chunker, the classifier and the ingestion service
// together. Syncs, re-embedding and the HTTP API are built from it.
package aisync

import (
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/aisync/ai"
	"github.com/poiesic/aisync/ai/openai"
	"github.com/poiesic/aisync/chunking"
	"github.com/poiesic/aisync/chunkstore"
	"github.com/poiesic/aisync/classify"
	"github.com/poiesic/aisync/embedding"
	"github.com/poiesic/aisync/importer"
	"github.com/poiesic/aisync/ingestion"
	"github.com/poiesic/aisync/reembed"
	"github.com/poiesic/aisync/storage"
	"github.com/poiesic/aisync/storage/badger"
)

type Database struct {
	backend    *badger.Backend
	repo       storage.ChunkRepository
	provider   ai.AIProvider
	embedder   *embedding.Embedder
	chunker    *chunking.Chunker
	store      *chunkstore.Client
	classifier *classify.Classifier
	service    *ingestion.Service
	logger     *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig          *ai.Config
	inMemory          bool
	provider          ai.AIProvider
	counter           chunking.TokenCounter
	tokenModel        string
	chunkSize         int
	chunkOverlap      int
	batchSize         int
	batchDelay        time.Duration
	maxRetries        int
	classifierOptions []classify.Option
	ingestionOptions  []ingestion.Option
	logger            *slog.Logger
}

// WithAIConfig sets the embedding endpoint configuration.
// Default is ai.DefaultConfig().
func WithAIConfig(cfg *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		if cfg != nil {
			o.aiConfig = cfg
		}
	}
}

// WithInMemory keeps all data in memory. The path is ignored.
func WithInMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// WithProvider uses provider instead of connecting to the configured
// OpenAI-compatible endpoint. The Database closes it on Close.
func WithProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithTokenCounter sets the chunker's token counter. By default an exact
// encoder for the embedding model is loaded, falling back to the word
// approximation.
func WithTokenCounter(counter chunking.TokenCounter) DatabaseOption {
	return func(o *databaseOptions) {
		o.counter = counter
	}
}

// WithTokenModel names the model whose tokenizer the chunker loads when no
// counter is given. Default is the embedding model.
func WithTokenModel(model string) DatabaseOption {
	return func(o *databaseOptions) {
		o.tokenModel = model
	}
}

// WithChunking sets the chunk window and overlap in tokens.
func WithChunking(size, overlap int) DatabaseOption {
	return func(o *databaseOptions) {
		o.chunkSize = size
		o.chunkOverlap = overlap
	}
}

// WithRateLimit sets the embedding batch size and the pause between batches.
func WithRateLimit(batchSize int, delay time.Duration) DatabaseOption {
	return func(o *databaseOptions) {
		o.batchSize = batchSize
		o.batchDelay = delay
	}
}

// WithEmbeddingRetries sets how many times a failed embedding request is retried.
func WithEmbeddingRetries(maxRetries int) DatabaseOption {
	return func(o *databaseOptions) {
		o.maxRetries = maxRetries
	}
}

// WithClassifierOptions configures the conversation classifier.
func WithClassifierOptions(opts ...classify.Option) DatabaseOption {
	return func(o *databaseOptions) {
		o.classifierOptions = append(o.classifierOptions, opts...)
	}
}

// WithIngestionOptions configures the ingestion service.
func WithIngestionOptions(opts ...ingestion.Option) DatabaseOption {
	return func(o *databaseOptions) {
		o.ingestionOptions = append(o.ingestionOptions, opts...)
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		aiConfig:     ai.DefaultConfig(),
		chunkSize:    chunking.DefaultChunkSize,
		chunkOverlap: chunking.DefaultChunkOverlap,
		batchSize:    embedding.DefaultBatchSize,
		batchDelay:   embedding.DefaultBatchDelay,
		maxRetries:   embedding.DefaultMaxRetries,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if err := options.aiConfig.Validate(); err != nil {
		return nil, err
	}

	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}

	repo, err := badger.NewChunkRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			backend.Close()
			return nil, err
		}
	}

	db := &Database{
		backend:  backend,
		repo:     repo,
		provider: provider,
		logger:   options.logger,
	}
	if err := db.wire(options); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (db *Database) wire(options *databaseOptions) error {
	cfg := options.aiConfig
	counter := options.counter
	if counter == nil {
		model := options.tokenModel
		if model == "" {
			model = cfg.EmbeddingModel
		}
		counter = chunking.LoadTokenCounter(model, db.logger)
	}

	var err error
	db.chunker, err = chunking.NewChunker(counter,
		chunking.WithChunkSize(options.chunkSize),
		chunking.WithChunkOverlap(options.chunkOverlap))
	if err != nil {
		return err
	}

	db.embedder, err = embedding.NewEmbedder(db.provider.Embedder(), cfg.EmbeddingModel, cfg.EmbeddingDimension,
		embedding.WithTimeout(cfg.RequestTimeout),
		embedding.WithRetry(options.maxRetries, embedding.DefaultRetryInterval),
		embedding.WithLogger(db.logger.With("component", "embedding")))
	if err != nil {
		return err
	}

	db.store, err = chunkstore.NewClient(db.repo, db.chunker, db.embedder,
		chunkstore.WithRateLimit(options.batchSize, options.batchDelay),
		chunkstore.WithLogger(db.logger.With("component", "chunkstore")))
	if err != nil {
		return err
	}

	db.classifier, err = classify.NewClassifier(options.classifierOptions...)
	if err != nil {
		return err
	}

	ingestionOptions := append([]ingestion.Option{
		ingestion.WithLogger(db.logger.With("component", "ingestion")),
	}, options.ingestionOptions...)
	db.service, err = ingestion.NewService(db.store, db.classifier, ingestionOptions...)
	return err
}

func (db *Database) Close() error {
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
	}
	if err := db.repo.Close(); err != nil {
		db.logger.Error("error closing chunk repository", "err", err)
		return err
	}
	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

func (db *Database) Repository() storage.ChunkRepository {
	return db.repo
}

func (db *Database) Store() *chunkstore.Client {
	return db.store
}

func (db *Database) Embedder() *embedding.Embedder {
	return db.embedder
}

func (db *Database) Chunker() *chunking.Chunker {
	return db.chunker
}

func (db *Database) Classifier() *classify.Classifier {
	return db.classifier
}

func (db *Database) Service() *ingestion.Service {
	return db.service
}

// NewOrchestrator creates a sync orchestrator over the ingestion service.
// Callers must Release it.
func (db *Database) NewOrchestrator(opts ...importer.Option) (*importer.Orchestrator, error) {
	opts = append([]importer.Option{importer.WithLogger(db.logger.With("component", "importer"))}, opts...)
	return importer.NewOrchestrator(db.service, opts...)
}

// NewReembedder creates a reembedder that rewrites every stored vector
// with the current embedder.
func (db *Database) NewReembedder(config *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	return reembed.NewReembedder(db.repo, db.embedder, config, progress)
}
