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


// Package importer turns a raw export into imported conversations.
//
// The Orchestrator picks the parser for the export source, hands every
// parsed conversation to the ingestion service and tallies the outcome
// into a core.SyncResult. A single conversation failing is recorded and
// the run continues; a malformed export fails the whole run.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/aisync/core"
	"github.com/poiesic/aisync/ingestion"
	"github.com/poiesic/aisync/parser"
)

// Importer stores a single parsed conversation.
type Importer interface {
	ImportConversation(ctx context.Context, orgID string, conv *core.ParsedConversation) (*ingestion.ImportResult, error)
}

// Notifier is told about every finished sync.
type Notifier interface {
	PublishSyncResult(ctx context.Context, orgID string, result *core.SyncResult) error
}

var _ Importer = (*ingestion.Service)(nil)

// Orchestrator runs export syncs.
type Orchestrator struct {
	importer Importer
	notifier Notifier
	pool     *ants.Pool
	logger   *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithConcurrency imports up to n conversations at once on a worker pool.
// Default is sequential import.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) error {
		if n < 1 {
			return ErrInvalidConcurrency
		}
		if o.pool != nil {
			o.pool.Release()
			o.pool = nil
		}
		if n == 1 {
			return nil
		}
		pool, err := ants.NewPool(n)
		if err != nil {
			return err
		}
		o.pool = pool
		return nil
	}
}

// WithNotifier publishes every finished sync result.
func WithNotifier(notifier Notifier) Option {
	return func(o *Orchestrator) error {
		o.notifier = notifier
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// NewOrchestrator creates a sync orchestrator.
func NewOrchestrator(importer Importer, opts ...Option) (*Orchestrator, error) {
	if importer == nil {
		return nil, ErrImporterRequired
	}
	o := &Orchestrator{
		importer: importer,
		logger:   slog.Default().With("component", "importer"),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			o.Release()
			return nil, err
		}
	}
	return o, nil
}

// SyncFromJSON parses jsonText as an export from source and imports every
// conversation in it under orgID.
//
// The returned result is never nil. When the export itself cannot be
// processed the result has Success false, carries the error message and
// the error is returned as well.
func (o *Orchestrator) SyncFromJSON(ctx context.Context, orgID string, source core.Source, jsonText string) (*core.SyncResult, error) {
	result := &core.SyncResult{Source: source, Success: true, Errors: []string{}}

	if err := o.sync(ctx, orgID, source, jsonText, result); err != nil {
		result.Success = false
		result.Errors = append(result.Errors, err.Error())
		o.logger.Error("sync failed", "source", source, "err", err)
		o.notify(ctx, orgID, result)
		return result, err
	}

	o.logger.Info("sync finished",
		"source", source,
		"imported", result.ConversationsImported,
		"updated", result.ConversationsUpdated,
		"skipped", result.ConversationsSkipped,
		"errors", len(result.Errors))
	o.notify(ctx, orgID, result)
	return result, nil
}

func (o *Orchestrator) sync(ctx context.Context, orgID string, source core.Source, jsonText string, result *core.SyncResult) error {
	p, err := parser.ForSource(source)
	if err != nil {
		return err
	}
	conversations, err := p.Parse([]byte(jsonText))
	if err != nil {
		return err
	}
	o.logger.Debug("parsed export", "source", source, "conversations", len(conversations))

	if o.pool == nil {
		for i := range conversations {
			if err := ctx.Err(); err != nil {
				return err
			}
			o.importOne(ctx, orgID, &conversations[i], result, nil)
		}
		return nil
	}
	return o.importConcurrently(ctx, orgID, conversations, result)
}

func (o *Orchestrator) importConcurrently(ctx context.Context, orgID string, conversations []core.ParsedConversation, result *core.SyncResult) error {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for i := range conversations {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return err
		}
		conv := &conversations[i]
		wg.Add(1)
		err := o.pool.Submit(func() {
			defer wg.Done()
			o.importOne(ctx, orgID, conv, result, &mu)
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return fmt.Errorf("submitting import: %w", err)
		}
	}
	wg.Wait()
	return ctx.Err()
}

// importOne imports conv and records the outcome. mu guards result when
// imports run concurrently.
func (o *Orchestrator) importOne(ctx context.Context, orgID string, conv *core.ParsedConversation, result *core.SyncResult, mu *sync.Mutex) {
	imported, err := o.importer.ImportConversation(ctx, orgID, conv)

	if mu != nil {
		mu.Lock()
		defer mu.Unlock()
	}
	switch {
	case err != nil:
		o.logger.Warn("conversation import failed", "externalId", conv.ExternalID, "err", err)
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", conv.ExternalID, err))
	case imported.IsNew:
		result.ConversationsImported++
	case imported.Updated:
		result.ConversationsUpdated++
	default:
		result.ConversationsSkipped++
	}
}

func (o *Orchestrator) notify(ctx context.Context, orgID string, result *core.SyncResult) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.PublishSyncResult(context.WithoutCancel(ctx), orgID, result); err != nil {
		o.logger.Warn("publishing sync result failed", "err", err)
	}
}

// Release frees the worker pool, if any.
// The orchestrator should not be used after calling Release.
func (o *Orchestrator) Release() {
	if o.pool != nil {
		o.pool.Release()
	}
}
