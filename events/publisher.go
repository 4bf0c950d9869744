// Package events publishes sync notifications over NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/poiesic/aisync/core"
)

// SubjectSyncCompleted is the NATS subject for finished syncs.
const SubjectSyncCompleted = "aisync.sync.completed"

// SyncCompleted is the payload published after every sync.
type SyncCompleted struct {
	OrganizationID string    `json:"organization_id"`
	Source         string    `json:"source"`
	Success        bool      `json:"success"`
	Imported       int       `json:"imported"`
	Updated        int       `json:"updated"`
	Skipped        int       `json:"skipped"`
	Errors         []string  `json:"errors"`
	CompletedAt    time.Time `json:"completed_at"`
}

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	Close()
}

// Publisher sends sync events.
type Publisher struct {
	conn   conn
	now    func() time.Time
	logger *slog.Logger
}

// Connect dials the NATS server at url. An empty token connects without
// authentication.
func Connect(url, token string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "events")

	opts := []nats.Option{
		nats.Name("aisync"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return newPublisher(nc, logger), nil
}

func newPublisher(c conn, logger *slog.Logger) *Publisher {
	return &Publisher{conn: c, now: time.Now, logger: logger}
}

// PublishSyncResult publishes result on SubjectSyncCompleted.
func (p *Publisher) PublishSyncResult(ctx context.Context, orgID string, result *core.SyncResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	event := SyncCompleted{
		OrganizationID: orgID,
		Source:         string(result.Source),
		Success:        result.Success,
		Imported:       result.ConversationsImported,
		Updated:        result.ConversationsUpdated,
		Skipped:        result.ConversationsSkipped,
		Errors:         result.Errors,
		CompletedAt:    p.now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := p.conn.Publish(SubjectSyncCompleted, payload); err != nil {
		return fmt.Errorf("publish %s: %w", SubjectSyncCompleted, err)
	}
	p.logger.Debug("published sync event", "org", orgID, "source", event.Source)
	return nil
}

// Close closes the NATS connection.
func (p *Publisher) Close() {
	p.conn.Close()
}
