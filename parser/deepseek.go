package parser

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/aisync/core"
)

type deepSeekExport struct {
	Data []json.RawMessage `json:"data"`
}

type deepSeekConversation struct {
	ChatID    string            `json:"chat_id"`
	Title     string            `json:"title"`
	Model     string            `json:"model"`
	CreatedAt json.RawMessage   `json:"created_at"`
	UpdatedAt json.RawMessage   `json:"updated_at"`
	Messages  []deepSeekMessage `json:"messages"`
}

type deepSeekMessage struct {
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Model     string          `json:"model"`
	CreatedAt json.RawMessage `json:"created_at"`
}

// DeepSeekParser parses DeepSeek exports of the form {"data": [...]}.
type DeepSeekParser struct {
	logger *slog.Logger
}

var _ Parser = (*DeepSeekParser)(nil)

// NewDeepSeekParser creates a DeepSeek parser. A nil logger uses slog.Default().
func NewDeepSeekParser(logger *slog.Logger) *DeepSeekParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeepSeekParser{logger: logger}
}

// Parse decodes the export and normalizes each conversation.
func (p *DeepSeekParser) Parse(data []byte) ([]core.ParsedConversation, error) {
	var export deepSeekExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedExport, err)
	}
	if export.Data == nil {
		return nil, fmt.Errorf("%w: missing data array", ErrMalformedExport)
	}

	var result []core.ParsedConversation
	for i, raw := range export.Data {
		var rc deepSeekConversation
		if err := json.Unmarshal(raw, &rc); err != nil {
			p.logger.Warn("skipping undecodable conversation", "index", i, "err", err)
			continue
		}
		if rc.ChatID == "" {
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

func (p *DeepSeekParser) convert(rc *deepSeekConversation) core.ParsedConversation {
	var messages []core.ParsedMessage
	for _, m := range rc.Messages {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		role := core.Role(strings.ToLower(strings.TrimSpace(m.Role)))
		if err := core.ValidateRole(role); err != nil {
			p.logger.Debug("skipping message with unknown role", "chat_id", rc.ChatID, "role", m.Role)
			continue
		}
		messages = append(messages, core.ParsedMessage{
			Role:      role,
			Content:   content,
			Timestamp: parseFlexibleTime(m.CreatedAt),
			Model:     m.Model,
		})
	}

	return core.ParsedConversation{
		Source:     core.SourceDeepSeek,
		ExternalID: rc.ChatID,
		Title:      titleOrDefault(rc.Title),
		Messages:   reindex(messages),
		CreatedAt:  parseFlexibleTime(rc.CreatedAt),
		UpdatedAt:  parseFlexibleTime(rc.UpdatedAt),
		Model:      rc.Model,
	}
}
