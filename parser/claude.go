package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/aisync/core"
)

const claudeModel = "claude"

type claudeConversation struct {
	UUID         string          `json:"uuid"`
	Name         string          `json:"name"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
	ChatMessages []claudeMessage `json:"chat_messages"`
}

type claudeMessage struct {
	UUID      string          `json:"uuid"`
	Sender    string          `json:"sender"`
	Text      string          `json:"text"`
	Content   []claudeContent `json:"content"`
	CreatedAt string          `json:"created_at"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (m *claudeMessage) text() string {
	if text := strings.TrimSpace(m.Text); text != "" {
		return text
	}
	var parts []string
	for _, c := range m.Content {
		if c.Type != "text" {
			continue
		}
		if s := strings.TrimSpace(c.Text); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

// ClaudeParser parses Claude exports. It accepts a bare array of
// conversations, an object with a "conversations" array, and a single
// conversation object.
type ClaudeParser struct {
	logger *slog.Logger
}

var _ Parser = (*ClaudeParser)(nil)

// NewClaudeParser creates a Claude parser. A nil logger uses slog.Default().
func NewClaudeParser(logger *slog.Logger) *ClaudeParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClaudeParser{logger: logger}
}

// Parse decodes the export and normalizes each conversation.
func (p *ClaudeParser) Parse(data []byte) ([]core.ParsedConversation, error) {
	items, err := p.container(data)
	if err != nil {
		return nil, err
	}

	var result []core.ParsedConversation
	for i, raw := range items {
		var rc claudeConversation
		if err := json.Unmarshal(raw, &rc); err != nil {
			p.logger.Warn("skipping undecodable conversation", "index", i, "err", err)
			continue
		}
		if rc.UUID == "" {
			p.logger.Warn("skipping malformed conversation", "index", i, "err", ErrMissingID)
			continue
		}
		conv := p.convert(&rc)
		if len(conv.Messages) == 0 {
			p.logger.Debug("skipping conversation without messages", "id", conv.ExternalID)
			continue
		}
		result = append(result, conv)
	}
	return result, nil
}

func (p *ClaudeParser) container(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedExport, err)
		}
		return items, nil
	}

	var envelope struct {
		Conversations []json.RawMessage `json:"conversations"`
		UUID          string            `json:"uuid"`
		ChatMessages  json.RawMessage   `json:"chat_messages"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedExport, err)
	}
	switch {
	case envelope.Conversations != nil:
		return envelope.Conversations, nil
	case envelope.UUID != "" || envelope.ChatMessages != nil:
		return []json.RawMessage{json.RawMessage(trimmed)}, nil
	}
	return nil, fmt.Errorf("%w: expected conversations or a single conversation", ErrMalformedExport)
}

func (p *ClaudeParser) convert(rc *claudeConversation) core.ParsedConversation {
	var messages []core.ParsedMessage
	for _, m := range rc.ChatMessages {
		content := m.text()
		if content == "" {
			continue
		}
		role := core.RoleAssistant
		if m.Sender == "human" {
			role = core.RoleUser
		}
		messages = append(messages, core.ParsedMessage{
			Role:      role,
			Content:   content,
			Timestamp: parseTimeString(m.CreatedAt),
		})
	}

	return core.ParsedConversation{
		Source:     core.SourceClaude,
		ExternalID: rc.UUID,
		Title:      titleOrDefault(rc.Name),
		Messages:   reindex(messages),
		CreatedAt:  parseTimeString(rc.CreatedAt),
		UpdatedAt:  parseTimeString(rc.UpdatedAt),
		Model:      claudeModel,
	}
}
