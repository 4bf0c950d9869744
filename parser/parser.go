package parser

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/aisync/core"
)

// Parser converts a raw export into normalized conversations.
// A malformed container is returned as an error; a malformed individual
// conversation is logged and left out of the result.
type Parser interface {
	Parse(data []byte) ([]core.ParsedConversation, error)
}

// ForSource returns the parser for the given export source.
func ForSource(source core.Source) (Parser, error) {
	logger := slog.Default().With("component", "parser", "source", string(source))
	switch source {
	case core.SourceChatGPT:
		return NewChatGPTParser(logger), nil
	case core.SourceClaude:
		return NewClaudeParser(logger), nil
	case core.SourceDeepSeek:
		return NewDeepSeekParser(logger), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, string(source))
}

// titleOrDefault trims a title and substitutes core.DefaultTitle when blank.
func titleOrDefault(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return core.DefaultTitle
	}
	return title
}

// reindex assigns contiguous message indexes in slice order.
func reindex(messages []core.ParsedMessage) []core.ParsedMessage {
	for i := range messages {
		messages[i].MessageIndex = i
	}
	return messages
}

// unixSeconds converts fractional UNIX seconds to a UTC time.
func unixSeconds(v *float64) *time.Time {
	if v == nil {
		return nil
	}
	sec := int64(*v)
	nsec := int64((*v - float64(sec)) * 1e9)
	t := time.Unix(sec, nsec).UTC()
	return &t
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimeString parses the timestamp formats seen in exports.
// Unparseable values yield nil.
func parseTimeString(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// parseFlexibleTime accepts a JSON string timestamp or a UNIX time number.
// Numbers above 1e12 are treated as milliseconds.
func parseFlexibleTime(raw json.RawMessage) *time.Time {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return nil
	}
	if text[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		return parseTimeString(s)
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil
	}
	if v > 1e12 {
		v /= 1000
	}
	return unixSeconds(&v)
}
