package chunking

import (
	"log/slog"
	"math"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// wordsPerToken is the approximation used when no encoder is available.
const wordsPerToken = 0.75

// fallbackEncoding is tried when the model has no registered encoding.
const fallbackEncoding = "cl100k_base"

// TokenCounter estimates the token length of text.
type TokenCounter interface {
	CountTokens(text string) int
}

// Encoder is a TokenCounter that can also round-trip text through tokens.
// The Chunker slides token windows when its counter is an Encoder.
type Encoder interface {
	TokenCounter
	Encode(text string) []int
	Decode(tokens []int) string
}

// ExactEncoder counts tokens with a tiktoken BPE encoding.
type ExactEncoder struct {
	encoding *tiktoken.Tiktoken
}

var _ Encoder = (*ExactEncoder)(nil)

// NewExactEncoder loads the tiktoken encoding for the given model, falling
// back to cl100k_base for models tiktoken does not know.
func NewExactEncoder(model string) (*ExactEncoder, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		var fallbackErr error
		enc, fallbackErr = tiktoken.GetEncoding(fallbackEncoding)
		if fallbackErr != nil {
			return nil, err
		}
	}
	return &ExactEncoder{encoding: enc}, nil
}

// Encode converts text to token ids.
func (e *ExactEncoder) Encode(text string) []int {
	return e.encoding.Encode(text, nil, nil)
}

// Decode converts token ids back to text.
func (e *ExactEncoder) Decode(tokens []int) string {
	return e.encoding.Decode(tokens)
}

// CountTokens returns the exact token count.
func (e *ExactEncoder) CountTokens(text string) int {
	return len(e.Encode(text))
}

// ApproximateWordCounter estimates tokens as ceil(words / 0.75).
type ApproximateWordCounter struct{}

var _ TokenCounter = ApproximateWordCounter{}

// CountTokens returns the estimated token count.
func (ApproximateWordCounter) CountTokens(text string) int {
	return estimateTokens(len(strings.Fields(text)))
}

func estimateTokens(words int) int {
	return int(math.Ceil(float64(words) / wordsPerToken))
}

// LoadTokenCounter attempts to build an ExactEncoder for model once. On
// failure it logs a warning and returns an ApproximateWordCounter. Call it
// at startup and inject the result into every Chunker.
func LoadTokenCounter(model string, logger *slog.Logger) TokenCounter {
	if logger == nil {
		logger = slog.Default()
	}
	enc, err := NewExactEncoder(model)
	if err != nil {
		logger.Warn("token encoder unavailable, using word approximation", "model", model, "err", err)
		return ApproximateWordCounter{}
	}
	return enc
}
