package ingestion

import (
	"strings"
	"time"

	"github.com/poiesic/aisync/core"
)

// UnclassifiedApp is reported for conversations whose label has no app part.
const UnclassifiedApp = "Unclassified"

// ImportResult describes the outcome of importing one conversation.
type ImportResult struct {
	ID         string `json:"id"`
	IsNew      bool   `json:"isNew"`
	Updated    bool   `json:"updated"`
	ChunkCount int    `json:"chunkCount"`
}

// SearchOptions narrows SearchConversations.
type SearchOptions struct {
	Limit   int
	AppName string
	Source  string
}

// SearchResult is a matching conversation chunk.
type SearchResult struct {
	ConversationID string  `json:"conversationId"`
	Content        string  `json:"content"`
	Similarity     float32 `json:"similarity"`
	Title          string  `json:"title"`
	Source         string  `json:"source"`
}

// ListOptions filters and pages GetConversations.
type ListOptions struct {
	Source  string
	AppName string
	Skip    int
	Take    int
}

// AiConversation summarizes a stored conversation.
type AiConversation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Source       string    `json:"source"`
	AppName      string    `json:"appName"`
	ExternalID   string    `json:"externalId,omitempty"`
	Model        string    `json:"model,omitempty"`
	MessageCount int       `json:"messageCount"`
	ChunkCount   int       `json:"chunkCount"`
	Indexed      bool      `json:"indexed"`
	ImportedAt   time.Time `json:"importedAt"`
}

// ConversationDetail is a stored conversation with its full text.
type ConversationDetail struct {
	AiConversation
	Content string `json:"content"`
}

// Summary aggregates the stored conversations of an organization.
type Summary struct {
	TotalConversations   int            `json:"totalConversations"`
	IndexedConversations int            `json:"indexedConversations"`
	BySource             map[string]int `json:"bySource"`
	ByApp                map[string]int `json:"byApp"`
}

// Label builds the composite source label for a classified conversation.
func Label(source core.Source, result core.ClassificationResult) string {
	if result.IsGeneral() {
		return string(source)
	}
	return string(source) + ":" + result.AppName
}

// SplitLabel splits a composite label into its source and app parts. The
// app is empty when the label carries none.
func SplitLabel(label string) (source, app string) {
	source, app, _ = strings.Cut(label, ":")
	return source, app
}
