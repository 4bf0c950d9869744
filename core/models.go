package core

//go:generate go run ../cmd/musgen

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// Source identifies the assistant product a conversation was exported from.
type Source string

const (
	SourceChatGPT  Source = "CHATGPT"
	SourceClaude   Source = "CLAUDE"
	SourceDeepSeek Source = "DEEPSEEK"
)

// Sources lists every supported export source.
var Sources = []Source{SourceChatGPT, SourceClaude, SourceDeepSeek}

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

const (
	// DefaultTitle is used when an export carries no conversation title.
	DefaultTitle = "Untitled"

	// GeneralApp is the classification returned when no profile matches.
	GeneralApp = "general"

	// EntityTypeConversation is the chunk store entity type for imported conversations.
	EntityTypeConversation = "ai_conversation"
)

// ParsedMessage is a single normalized message within a conversation.
type ParsedMessage struct {
	Role         Role
	Content      string
	MessageIndex int        // Zero-based, contiguous after parsing
	Timestamp    *time.Time // Nil when the export has no timestamp
	Model        string     // Optional per-message model override
}

// ParsedConversation is the normalized unit of work produced by the parsers.
type ParsedConversation struct {
	Source     Source
	ExternalID string
	Title      string
	Messages   []ParsedMessage
	CreatedAt  *time.Time
	UpdatedAt  *time.Time
	Model      string
}

// ChunkData is a retrieval-sized slice of rendered conversation text.
type ChunkData struct {
	Content    string
	ChunkIndex int
	TokenCount int
	Embedding  []float32
}

// ClassificationResult is the outcome of keyword classification.
type ClassificationResult struct {
	AppName  string
	Score    float64
	Keywords []string
}

// IsGeneral reports whether the classification fell below every profile.
func (c ClassificationResult) IsGeneral() bool {
	return c.AppName == "" || c.AppName == GeneralApp
}

// SyncResult reports the outcome of one import run.
type SyncResult struct {
	Source                Source   `json:"source"`
	Success               bool     `json:"success"`
	ConversationsImported int      `json:"conversationsImported"`
	ConversationsUpdated  int      `json:"conversationsUpdated"`
	ConversationsSkipped  int      `json:"conversationsSkipped"`
	Errors                []string `json:"errors"`
}

// ChunkRecord is a persisted chunk with its embedding.
// Chunks are grouped by (OrganizationID, EntityType, EntityID) and ordered by ChunkIndex.
type ChunkRecord struct {
	ID             string
	OrganizationID string
	EntityType     string
	EntityID       string
	ChunkIndex     int
	TotalChunks    int
	Title          string
	Content        string
	ContentHash    string
	Source         string // Composite label, e.g. "CHATGPT:coding"
	TokenCount     int
	Metadata       map[string]string
	Vector         []float32
	InsertedAt     time.Time
	UpdatedAt      time.Time
}

// SearchResult pairs a chunk with its relevance score.
type SearchResult struct {
	Record *ChunkRecord
	Score  float32
}

// EmbeddingProfile records the model and dimension used for stored vectors.
type EmbeddingProfile struct {
	Model     string
	Dimension int
}

// ContentHash returns a short BLAKE2b fingerprint of normalized chunk text.
// Text is trimmed and lowercased so trivially different copies collide.
func ContentHash(text string) string {
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(strings.ToLower(strings.TrimSpace(text))))
	return hex.EncodeToString(h.Sum(nil))
}
