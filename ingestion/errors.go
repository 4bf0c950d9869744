package ingestion

import "errors"

var (
	// ErrStoreRequired is returned when a chunk store is not provided.
	ErrStoreRequired = errors.New("chunk store required")

	// ErrClassifierRequired is returned when a classifier is not provided.
	ErrClassifierRequired = errors.New("classifier required")

	// ErrEmptyQuery is returned when a search query is blank.
	ErrEmptyQuery = errors.New("search query is empty")

	// ErrConversationIDRequired is returned when a conversation id is blank.
	ErrConversationIDRequired = errors.New("conversation id required")
)
