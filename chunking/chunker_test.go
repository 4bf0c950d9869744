package chunking

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/poiesic/aisync/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runeEncoder treats every rune as one token so decoded windows can be
// stitched back together exactly.
type runeEncoder struct{}

func (runeEncoder) Encode(text string) []int {
	runes := []rune(text)
	tokens := make([]int, len(runes))
	for i, r := range runes {
		tokens[i] = int(r)
	}
	return tokens
}

func (runeEncoder) Decode(tokens []int) string {
	runes := make([]rune, len(tokens))
	for i, t := range tokens {
		runes[i] = rune(t)
	}
	return string(runes)
}

func (e runeEncoder) CountTokens(text string) int { return len(e.Encode(text)) }

// byteEncoder treats every byte as one token, so windows can split
// multi-byte runes the way BPE encodings split CJK text.
type byteEncoder struct{}

func (byteEncoder) Encode(text string) []int {
	tokens := make([]int, len(text))
	for i := range len(text) {
		tokens[i] = int(text[i])
	}
	return tokens
}

func (byteEncoder) Decode(tokens []int) string {
	b := make([]byte, len(tokens))
	for i, t := range tokens {
		b[i] = byte(t)
	}
	return string(b)
}

func (e byteEncoder) CountTokens(text string) int { return len(text) }

func sampleConversation() *core.ParsedConversation {
	return &core.ParsedConversation{
		Source:     core.SourceClaude,
		ExternalID: "u1",
		Title:      "Trip planning",
		Messages: []core.ParsedMessage{
			{Role: core.RoleUser, Content: "Plan a trip to Kyoto", MessageIndex: 0},
			{Role: core.RoleAssistant, Content: "Here is an itinerary...", MessageIndex: 1},
			{Role: core.RoleSystem, Content: "Keep it short", MessageIndex: 2},
		},
	}
}

func TestRender(t *testing.T) {
	want := "Title: Trip planning\n\n[User]: Plan a trip to Kyoto\n\n[Assistant]: Here is an itinerary...\n\n[System]: Keep it short"
	assert.Equal(t, want, Render(sampleConversation()))
}

func TestNewChunker_Validation(t *testing.T) {
	c, err := NewChunker(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultChunkSize, c.ChunkSize())
	assert.Equal(t, DefaultChunkOverlap, c.ChunkOverlap())

	_, err = NewChunker(nil, WithChunkSize(0))
	assert.ErrorIs(t, err, ErrInvalidChunkSize)

	_, err = NewChunker(nil, WithChunkSize(50), WithChunkOverlap(50))
	assert.ErrorIs(t, err, ErrInvalidOverlap)

	_, err = NewChunker(nil, WithChunkOverlap(-1))
	assert.ErrorIs(t, err, ErrInvalidOverlap)
}

func TestChunkText_TokenWindowsCoverText(t *testing.T) {
	const size, overlap = 40, 10
	const step = size - overlap
	c, err := NewChunker(runeEncoder{}, WithChunkSize(size), WithChunkOverlap(overlap))
	require.NoError(t, err)

	text := Render(sampleConversation()) + strings.Repeat(" more words here", 10)
	runes := []rune(text)
	chunks := c.ChunkText(text)

	want := (len(runes) + step - 1) / step
	require.Len(t, chunks, want)
	for i, chunk := range chunks {
		start := i * step
		end := min(start+size, len(runes))
		assert.Equal(t, i, chunk.ChunkIndex)
		assert.Equal(t, string(runes[start:end]), chunk.Content, "chunk %d", i)
		assert.Equal(t, end-start, chunk.TokenCount)
	}
}

func TestChunkText_TrailingWindows(t *testing.T) {
	c, err := NewChunker(runeEncoder{}, WithChunkSize(10), WithChunkOverlap(2))
	require.NoError(t, err)

	chunks := c.ChunkText("abcdefghijklmnop") // 16 runes: [0,10) [8,16)
	require.Len(t, chunks, 2)
	assert.Equal(t, "abcdefghij", chunks[0].Content)
	assert.Equal(t, "ijklmnop", chunks[1].Content)
	assert.Equal(t, 8, chunks[1].TokenCount)

	// the second window starts at 8 < 10 and lies inside the first overlap
	chunks = c.ChunkText("abcdefghij")
	require.Len(t, chunks, 2)
	assert.Equal(t, "abcdefghij", chunks[0].Content)
	assert.Equal(t, "ij", chunks[1].Content)

	chunks = c.ChunkText("abcdefgh")
	require.Len(t, chunks, 1)
}

func TestChunkText_DefaultWindowPastStep(t *testing.T) {
	c, err := NewChunker(runeEncoder{})
	require.NoError(t, err)

	// 480 tokens: windows start at 0 and 450
	chunks := c.ChunkText(strings.Repeat("x", 480))
	require.Len(t, chunks, 2)
	assert.Equal(t, 480, chunks[0].TokenCount)
	assert.Equal(t, 30, chunks[1].TokenCount)

	chunks = c.ChunkText(strings.Repeat("x", 450))
	assert.Len(t, chunks, 1)
}

func TestChunkText_SplitRunesDropped(t *testing.T) {
	// 3-byte runes with a 10/4 window split runes at most edges
	c, err := NewChunker(byteEncoder{}, WithChunkSize(10), WithChunkOverlap(4))
	require.NoError(t, err)

	text := "京都旅行の計画を立てる"
	chunks := c.ChunkText(text)
	require.NotEmpty(t, chunks)

	seen := make(map[rune]bool)
	for _, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk.Content), "chunk %d: %q", chunk.ChunkIndex, chunk.Content)
		assert.NotContains(t, chunk.Content, string(utf8.RuneError))
		assert.Contains(t, text, chunk.Content)
		for _, r := range chunk.Content {
			seen[r] = true
		}
	}
	for _, r := range text {
		assert.True(t, seen[r], "rune %q lost", r)
	}
}

func TestChunkText_WordFallback(t *testing.T) {
	// size 8 -> 6 words per chunk, overlap 4 -> 3 words
	c, err := NewChunker(ApproximateWordCounter{}, WithChunkSize(8), WithChunkOverlap(4))
	require.NoError(t, err)

	words := make([]string, 14)
	for i := range words {
		words[i] = string(rune('a' + i))
	}
	chunks := c.ChunkText(strings.Join(words, "  "))

	require.Len(t, chunks, 5)
	assert.Equal(t, "a b c d e f", chunks[0].Content)
	assert.Equal(t, "d e f g h i", chunks[1].Content)
	assert.Equal(t, "g h i j k l", chunks[2].Content)
	assert.Equal(t, "j k l m n", chunks[3].Content)
	assert.Equal(t, "m n", chunks[4].Content)
	assert.Equal(t, 8, chunks[0].TokenCount)
	assert.Equal(t, 7, chunks[3].TokenCount)
	assert.Equal(t, 3, chunks[4].TokenCount)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.ChunkIndex)
	}
}

func TestChunkText_WordFallbackDefaults(t *testing.T) {
	// 375 words per chunk, 37 words overlap, step 338
	c, err := NewChunker(ApproximateWordCounter{})
	require.NoError(t, err)

	chunks := c.ChunkText(strings.TrimSpace(strings.Repeat("word ", 360)))
	require.Len(t, chunks, 2)
	assert.Len(t, strings.Fields(chunks[0].Content), 360)
	assert.Len(t, strings.Fields(chunks[1].Content), 22)
}

func TestChunkText_Empty(t *testing.T) {
	c, err := NewChunker(nil)
	require.NoError(t, err)
	assert.Empty(t, c.ChunkText("   \n"))
}

func TestChunkConversationAndMessage(t *testing.T) {
	c, err := NewChunker(ApproximateWordCounter{})
	require.NoError(t, err)

	conv := sampleConversation()
	chunks := c.ChunkConversation(conv)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, "[User]: Plan a trip to Kyoto")

	msgChunks := c.ChunkMessage(&conv.Messages[0])
	require.Len(t, msgChunks, 1)
	assert.Equal(t, "Plan a trip to Kyoto", msgChunks[0].Content)
}

func TestApproximateWordCounter(t *testing.T) {
	var counter ApproximateWordCounter
	assert.Equal(t, 0, counter.CountTokens(""))
	assert.Equal(t, 2, counter.CountTokens("one"))
	assert.Equal(t, 4, counter.CountTokens("one two three"))
	assert.Equal(t, 4, counter.CountTokens(" one\ttwo\nthree "))
}
