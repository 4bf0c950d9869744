package parser

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/poiesic/aisync/core"
)

type chatGPTConversation struct {
	ID               string                 `json:"id"`
	ConversationID   string                 `json:"conversation_id"`
	Title            string                 `json:"title"`
	CreateTime       *float64               `json:"create_time"`
	UpdateTime       *float64               `json:"update_time"`
	DefaultModelSlug string                 `json:"default_model_slug"`
	Mapping          map[string]chatGPTNode `json:"mapping"`
}

type chatGPTNode struct {
	ID       string          `json:"id"`
	Message  *chatGPTMessage `json:"message"`
	Parent   *string         `json:"parent"`
	Children []string        `json:"children"`
}

type chatGPTMessage struct {
	Author struct {
		Role string `json:"role"`
	} `json:"author"`
	Content struct {
		ContentType string            `json:"content_type"`
		Parts       []json.RawMessage `json:"parts"`
		Text        string            `json:"text"`
	} `json:"content"`
	CreateTime *float64 `json:"create_time"`
	Metadata   struct {
		ModelSlug string `json:"model_slug"`
	} `json:"metadata"`
}

// text joins the string parts of a message. Non-string parts (images,
// attachments) are ignored.
func (m *chatGPTMessage) text() string {
	if len(m.Content.Parts) == 0 {
		return strings.TrimSpace(m.Content.Text)
	}
	var parts []string
	for _, raw := range m.Content.Parts {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

// ChatGPTParser parses the conversations.json file of a ChatGPT export.
type ChatGPTParser struct {
	logger *slog.Logger
}

var _ Parser = (*ChatGPTParser)(nil)

// NewChatGPTParser creates a ChatGPT parser. A nil logger uses slog.Default().
func NewChatGPTParser(logger *slog.Logger) *ChatGPTParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatGPTParser{logger: logger}
}

// Parse accepts a JSON array of conversations or an object with a
// "conversations" array.
func (p *ChatGPTParser) Parse(data []byte) ([]core.ParsedConversation, error) {
	items, err := decodeContainer(data)
	if err != nil {
		return nil, err
	}

	var result []core.ParsedConversation
	for i, raw := range items {
		var rc chatGPTConversation
		if err := json.Unmarshal(raw, &rc); err != nil {
			p.logger.Warn("skipping undecodable conversation", "index", i, "err", err)
			continue
		}
		conv, err := p.convert(&rc)
		if err != nil {
			p.logger.Warn("skipping malformed conversation", "index", i, "id", rc.ID, "err", err)
			continue
		}
		if len(conv.Messages) == 0 {
			p.logger.Debug("skipping conversation without messages", "id", conv.ExternalID)
			continue
		}
		result = append(result, conv)
	}
	return result, nil
}

func decodeContainer(data []byte) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err == nil {
		return items, nil
	}
	var wrapped struct {
		Conversations []json.RawMessage `json:"conversations"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedExport, err)
	}
	if wrapped.Conversations == nil {
		return nil, fmt.Errorf("%w: expected an array of conversations", ErrMalformedExport)
	}
	return wrapped.Conversations, nil
}

func (p *ChatGPTParser) convert(rc *chatGPTConversation) (core.ParsedConversation, error) {
	externalID := rc.ConversationID
	if externalID == "" {
		externalID = rc.ID
	}
	if externalID == "" {
		return core.ParsedConversation{}, ErrMissingID
	}

	order, err := walkLastChild(rc.Mapping)
	if err != nil {
		return core.ParsedConversation{}, err
	}

	var messages []core.ParsedMessage
	for walkIndex, id := range order {
		msg := rc.Mapping[id].Message
		if msg == nil {
			continue
		}
		role := core.Role(msg.Author.Role)
		if role != core.RoleUser && role != core.RoleAssistant {
			continue
		}
		content := msg.text()
		if content == "" {
			continue
		}
		messages = append(messages, core.ParsedMessage{
			Role:         role,
			Content:      content,
			MessageIndex: walkIndex,
			Timestamp:    unixSeconds(msg.CreateTime),
			Model:        msg.Metadata.ModelSlug,
		})
	}

	slices.SortStableFunc(messages, func(a, b core.ParsedMessage) int {
		return a.MessageIndex - b.MessageIndex
	})

	model := findModelSlug(rc.Mapping, order)
	if model == "" {
		model = rc.DefaultModelSlug
	}

	return core.ParsedConversation{
		Source:     core.SourceChatGPT,
		ExternalID: externalID,
		Title:      titleOrDefault(rc.Title),
		Messages:   reindex(messages),
		CreatedAt:  unixSeconds(rc.CreateTime),
		UpdatedAt:  unixSeconds(rc.UpdateTime),
		Model:      model,
	}, nil
}

// findRoot returns the parentless node. When several exist, one with
// children is preferred, then the lowest id.
func findRoot(mapping map[string]chatGPTNode) (string, error) {
	var roots []string
	for id, node := range mapping {
		if node.Parent == nil || *node.Parent == "" {
			roots = append(roots, id)
		}
	}
	if len(roots) == 0 {
		return "", ErrNoRoot
	}
	slices.Sort(roots)
	for _, id := range roots {
		if len(mapping[id].Children) > 0 {
			return id, nil
		}
	}
	return roots[0], nil
}

// walkLastChild resolves the thread the user ultimately continued by
// following the last child at every branch. The walk uses an explicit
// stack and visited set so deep or cyclic mappings are safe.
func walkLastChild(mapping map[string]chatGPTNode) ([]string, error) {
	root, err := findRoot(mapping)
	if err != nil {
		return nil, err
	}

	var order []string
	visited := make(map[string]bool, len(mapping))
	stack := []string{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true

		node, ok := mapping[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrDanglingNode, id)
		}
		order = append(order, id)
		if n := len(node.Children); n > 0 {
			stack = append(stack, node.Children[n-1])
		}
	}
	return order, nil
}

// findModelSlug returns the first model slug in walk order, then in the
// remaining nodes sorted by id.
func findModelSlug(mapping map[string]chatGPTNode, order []string) string {
	seen := make(map[string]bool, len(order))
	for _, id := range order {
		seen[id] = true
		if msg := mapping[id].Message; msg != nil && msg.Metadata.ModelSlug != "" {
			return msg.Metadata.ModelSlug
		}
	}
	var rest []string
	for id := range mapping {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	slices.Sort(rest)
	for _, id := range rest {
		if msg := mapping[id].Message; msg != nil && msg.Metadata.ModelSlug != "" {
			return msg.Metadata.ModelSlug
		}
	}
	return ""
}
