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


package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/aisync/chunkstore"
	"github.com/poiesic/aisync/core"
	"github.com/poiesic/aisync/dedup"
	"github.com/poiesic/aisync/storage"
)

// Metadata keys stored on every chunk of a conversation.
const (
	MetaContentHash  = "contentHash"
	MetaExternalID   = "externalId"
	MetaModel        = "model"
	MetaMessageCount = "messageCount"
	MetaAppName      = "appName"
	MetaCreatedAt    = "createdAt"
)

// Store is the chunk store the service writes to and reads from.
type Store interface {
	CreateDocument(ctx context.Context, orgID string, doc chunkstore.Document) (int, error)
	ReplaceDocument(ctx context.Context, orgID string, doc chunkstore.Document) (int, error)
	SearchSimilar(ctx context.Context, orgID, query string, opts chunkstore.SearchOptions) ([]*core.SearchResult, error)
	Count(ctx context.Context, orgID, entityType, entityID string) (int, error)
	GetChunks(ctx context.Context, orgID, entityType, entityID string) ([]*core.ChunkRecord, error)
	ListDocuments(ctx context.Context, orgID string, filter storage.ChunkFilter, skip, take int) ([]*core.ChunkRecord, error)
	DeleteByEntity(ctx context.Context, orgID, entityType, entityID string) (int, error)
	DeleteBySourcePrefix(ctx context.Context, orgID, entityType, prefix string) (int, error)
}

// Classifier assigns an app category to a conversation.
type Classifier interface {
	Classify(conv *core.ParsedConversation) core.ClassificationResult
}

var _ Store = (*chunkstore.Client)(nil)

// Service imports conversations into the chunk store and queries them.
type Service struct {
	store          Store
	classifier     Classifier
	updateOnChange bool
	logger         *slog.Logger
}

// Option configures a Service.
type Option func(*Service) error

// WithUpdateOnChange makes imports replace a stored conversation whose
// message content has changed. By default stored conversations are never
// rewritten.
func WithUpdateOnChange(enabled bool) Option {
	return func(s *Service) error {
		s.updateOnChange = enabled
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewService creates an ingestion service.
func NewService(store Store, classifier Classifier, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if classifier == nil {
		return nil, ErrClassifierRequired
	}

	s := &Service{
		store:      store,
		classifier: classifier,
		logger:     slog.Default().With("component", "ingestion"),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ImportConversation stores conv under orgID unless it is already present.
func (s *Service) ImportConversation(ctx context.Context, orgID string, conv *core.ParsedConversation) (*ImportResult, error) {
	if err := core.ValidateConversation(conv); err != nil {
		return nil, err
	}

	id := dedup.IdentityHash(conv)
	contentHash := dedup.ContentHash(conv)

	existing, err := s.store.Count(ctx, orgID, core.EntityTypeConversation, id)
	if err != nil {
		return nil, fmt.Errorf("checking conversation %s: %w", conv.ExternalID, err)
	}
	if existing > 0 {
		if !s.updateOnChange {
			return &ImportResult{ID: id, ChunkCount: existing}, nil
		}
		changed, err := s.contentChanged(ctx, orgID, id, contentHash)
		if err != nil {
			return nil, err
		}
		if !changed {
			return &ImportResult{ID: id, ChunkCount: existing}, nil
		}
	}

	classification := s.classifier.Classify(conv)
	doc := chunkstore.Document{
		Title:      conv.Title,
		Content:    RenderContent(conv),
		EntityType: core.EntityTypeConversation,
		EntityID:   id,
		Source:     Label(conv.Source, classification),
		Metadata:   conversationMetadata(conv, classification, contentHash),
	}

	if existing > 0 {
		count, err := s.store.ReplaceDocument(ctx, orgID, doc)
		if err != nil {
			return nil, fmt.Errorf("replacing conversation %s: %w", conv.ExternalID, err)
		}
		s.logger.Info("conversation changed, re-imported", "externalId", conv.ExternalID, "id", id, "chunks", count)
		return &ImportResult{ID: id, Updated: true, ChunkCount: count}, nil
	}

	count, err := s.store.CreateDocument(ctx, orgID, doc)
	if err != nil {
		return nil, fmt.Errorf("importing conversation %s: %w", conv.ExternalID, err)
	}

	s.logger.Debug("imported conversation", "externalId", conv.ExternalID, "label", doc.Source, "chunks", count)
	return &ImportResult{ID: id, IsNew: true, ChunkCount: count}, nil
}

func (s *Service) contentChanged(ctx context.Context, orgID, id, contentHash string) (bool, error) {
	chunks, err := s.store.GetChunks(ctx, orgID, core.EntityTypeConversation, id)
	if err != nil {
		return false, err
	}
	if len(chunks) == 0 {
		return true, nil
	}
	return chunks[0].Metadata[MetaContentHash] != contentHash, nil
}

// RenderContent renders messages as "ROLE: content" paragraphs.
func RenderContent(conv *core.ParsedConversation) string {
	parts := make([]string, len(conv.Messages))
	for i, msg := range conv.Messages {
		parts[i] = strings.ToUpper(string(msg.Role)) + ": " + msg.Content
	}
	return strings.Join(parts, "\n\n")
}

func conversationMetadata(conv *core.ParsedConversation, classification core.ClassificationResult, contentHash string) map[string]string {
	meta := map[string]string{
		MetaContentHash:  contentHash,
		MetaExternalID:   conv.ExternalID,
		MetaMessageCount: strconv.Itoa(len(conv.Messages)),
		MetaAppName:      classification.AppName,
	}
	if conv.Model != "" {
		meta[MetaModel] = conv.Model
	}
	if conv.CreatedAt != nil {
		meta[MetaCreatedAt] = conv.CreatedAt.UTC().Format(time.RFC3339)
	}
	return meta
}

// SearchConversations finds conversation chunks similar to query.
func (s *Service) SearchConversations(ctx context.Context, orgID, query string, opts SearchOptions) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	searchOpts := chunkstore.SearchOptions{
		Limit:      opts.Limit,
		EntityType: core.EntityTypeConversation,
	}
	switch {
	case opts.Source != "" && opts.AppName != "":
		searchOpts.Source = opts.Source + ":" + opts.AppName
	case opts.Source != "":
		searchOpts.SourcePrefix = opts.Source
	case opts.AppName != "":
		searchOpts.SourceContains = ":" + opts.AppName
	}

	hits, err := s.store.SearchSimilar(ctx, orgID, query, searchOpts)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, len(hits))
	for i, hit := range hits {
		results[i] = SearchResult{
			ConversationID: hit.Record.EntityID,
			Content:        hit.Record.Content,
			Similarity:     hit.Score,
			Title:          hit.Record.Title,
			Source:         hit.Record.Source,
		}
	}
	return results, nil
}

// GetConversations lists stored conversations, newest first.
func (s *Service) GetConversations(ctx context.Context, orgID string, opts ListOptions) ([]AiConversation, error) {
	filter := storage.ChunkFilter{EntityType: core.EntityTypeConversation}
	if opts.Source != "" {
		filter.SourcePrefix = opts.Source
	}
	if opts.AppName != "" {
		filter.SourceContains = ":" + opts.AppName
	}

	firsts, err := s.store.ListDocuments(ctx, orgID, filter, opts.Skip, opts.Take)
	if err != nil {
		return nil, err
	}

	conversations := make([]AiConversation, 0, len(firsts))
	for _, first := range firsts {
		count, err := s.store.Count(ctx, orgID, core.EntityTypeConversation, first.EntityID)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, summarize(first, count))
	}
	return conversations, nil
}

// GetConversation returns a conversation with its chunks joined in order,
// or nil when nothing is stored under id.
func (s *Service) GetConversation(ctx context.Context, orgID, id string) (*ConversationDetail, error) {
	if id == "" {
		return nil, ErrConversationIDRequired
	}
	chunks, err := s.store.GetChunks(ctx, orgID, core.EntityTypeConversation, id)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	contents := make([]string, len(chunks))
	for i, chunk := range chunks {
		contents[i] = chunk.Content
	}
	return &ConversationDetail{
		AiConversation: summarize(chunks[0], len(chunks)),
		Content:        strings.Join(contents, "\n"),
	}, nil
}

// DeleteConversation removes every chunk of a conversation.
func (s *Service) DeleteConversation(ctx context.Context, orgID, id string) (int, error) {
	if id == "" {
		return 0, ErrConversationIDRequired
	}
	return s.store.DeleteByEntity(ctx, orgID, core.EntityTypeConversation, id)
}

// DeleteBySource removes every conversation whose label starts with source.
func (s *Service) DeleteBySource(ctx context.Context, orgID string, source core.Source) (int, error) {
	if err := core.ValidateSource(source); err != nil {
		return 0, err
	}
	deleted, err := s.store.DeleteBySourcePrefix(ctx, orgID, core.EntityTypeConversation, string(source))
	if err != nil {
		return 0, err
	}
	s.logger.Info("deleted conversations by source", "source", source, "chunks", deleted)
	return deleted, nil
}

// GetSummary counts stored conversations by source and app.
func (s *Service) GetSummary(ctx context.Context, orgID string) (*Summary, error) {
	firsts, err := s.store.ListDocuments(ctx, orgID, storage.ChunkFilter{EntityType: core.EntityTypeConversation}, 0, 0)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		TotalConversations: len(firsts),
		BySource:           make(map[string]int),
		ByApp:              make(map[string]int),
	}
	for _, first := range firsts {
		if len(first.Vector) > 0 {
			summary.IndexedConversations++
		}
		source, app := SplitLabel(first.Source)
		if app == "" {
			app = UnclassifiedApp
		}
		summary.BySource[source]++
		summary.ByApp[app]++
	}
	return summary, nil
}

func summarize(first *core.ChunkRecord, chunkCount int) AiConversation {
	source, app := SplitLabel(first.Source)
	if app == "" {
		app = UnclassifiedApp
	}
	messages, _ := strconv.Atoi(first.Metadata[MetaMessageCount])
	return AiConversation{
		ID:           first.EntityID,
		Title:        first.Title,
		Source:       source,
		AppName:      app,
		ExternalID:   first.Metadata[MetaExternalID],
		Model:        first.Metadata[MetaModel],
		MessageCount: messages,
		ChunkCount:   chunkCount,
		Indexed:      len(first.Vector) > 0,
		ImportedAt:   first.InsertedAt,
	}
}
