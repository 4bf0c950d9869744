package chunking

import (
	"strings"
	"unicode/utf8"

	"github.com/poiesic/aisync/core"
)

const (
	// DefaultChunkSize is the window size in tokens.
	DefaultChunkSize = 500

	// DefaultChunkOverlap is the number of tokens shared by adjacent windows.
	DefaultChunkOverlap = 50
)

// Chunker splits rendered conversations into overlapping token windows.
type Chunker struct {
	counter TokenCounter
	size    int
	overlap int
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithChunkSize sets the window size in tokens.
func WithChunkSize(size int) Option {
	return func(c *Chunker) error {
		c.size = size
		return nil
	}
}

// WithChunkOverlap sets the overlap between adjacent windows in tokens.
func WithChunkOverlap(overlap int) Option {
	return func(c *Chunker) error {
		c.overlap = overlap
		return nil
	}
}

// NewChunker creates a chunker around the given counter. A nil counter
// uses ApproximateWordCounter.
func NewChunker(counter TokenCounter, opts ...Option) (*Chunker, error) {
	if counter == nil {
		counter = ApproximateWordCounter{}
	}
	c := &Chunker{
		counter: counter,
		size:    DefaultChunkSize,
		overlap: DefaultChunkOverlap,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.size <= 0 {
		return nil, ErrInvalidChunkSize
	}
	if c.overlap < 0 || c.overlap >= c.size {
		return nil, ErrInvalidOverlap
	}
	return c, nil
}

// ChunkSize returns the configured window size.
func (c *Chunker) ChunkSize() int { return c.size }

// ChunkOverlap returns the configured overlap.
func (c *Chunker) ChunkOverlap() int { return c.overlap }

// CountTokens counts tokens with the injected counter.
func (c *Chunker) CountTokens(text string) int {
	return c.counter.CountTokens(text)
}

// ChunkConversation renders a conversation and splits it into chunks.
func (c *Chunker) ChunkConversation(conv *core.ParsedConversation) []core.ChunkData {
	return c.ChunkText(Render(conv))
}

// ChunkMessage splits a single message's content into chunks.
func (c *Chunker) ChunkMessage(msg *core.ParsedMessage) []core.ChunkData {
	return c.ChunkText(msg.Content)
}

// ChunkText splits arbitrary text. A window starts every size-overlap
// tokens until a start would fall at or past the end of the text, so the
// trailing windows may be short and may lie inside the previous overlap.
func (c *Chunker) ChunkText(text string) []core.ChunkData {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if enc, ok := c.counter.(Encoder); ok {
		return c.chunkTokens(enc, text)
	}
	return c.chunkWords(text)
}

func (c *Chunker) chunkTokens(enc Encoder, text string) []core.ChunkData {
	tokens := enc.Encode(text)
	step := c.size - c.overlap

	var chunks []core.ChunkData
	for start := 0; start < len(tokens); start += step {
		end := min(start+c.size, len(tokens))
		chunks = append(chunks, core.ChunkData{
			Content:    decodeWindow(enc, tokens[start:end]),
			ChunkIndex: len(chunks),
			TokenCount: end - start,
		})
	}
	return chunks
}

// decodeWindow drops the bytes of runes cut by the window edges. The
// overlap carries those runes whole into the neighbouring window.
func decodeWindow(enc Encoder, tokens []int) string {
	text := enc.Decode(tokens)
	if utf8.ValidString(text) {
		return text
	}
	return strings.ToValidUTF8(text, "")
}

func (c *Chunker) chunkWords(text string) []core.ChunkData {
	words := strings.Fields(text)
	perChunk := max(int(float64(c.size)*wordsPerToken), 1)
	overlap := int(float64(c.overlap) * wordsPerToken)
	step := max(perChunk-overlap, 1)

	var chunks []core.ChunkData
	for start := 0; start < len(words); start += step {
		end := min(start+perChunk, len(words))
		chunks = append(chunks, core.ChunkData{
			Content:    strings.Join(words[start:end], " "),
			ChunkIndex: len(chunks),
			TokenCount: estimateTokens(end - start),
		})
	}
	return chunks
}

// Render formats a conversation as "Title: t" followed by one
// "[Role]: content" block per message, separated by blank lines.
func Render(conv *core.ParsedConversation) string {
	var b strings.Builder
	b.WriteString("Title: ")
	b.WriteString(conv.Title)
	for _, msg := range conv.Messages {
		b.WriteString("\n\n[")
		b.WriteString(roleLabel(msg.Role))
		b.WriteString("]: ")
		b.WriteString(msg.Content)
	}
	return b.String()
}

func roleLabel(role core.Role) string {
	switch role {
	case core.RoleUser:
		return "User"
	case core.RoleAssistant:
		return "Assistant"
	case core.RoleSystem:
		return "System"
	}
	s := string(role)
	if s == "" {
		return "Unknown"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
