// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidConversation indicates a ParsedConversation failed validation.
	ErrInvalidConversation = errors.New("invalid conversation")

	// ErrInvalidChunkRecord indicates a ChunkRecord failed validation.
	ErrInvalidChunkRecord = errors.New("invalid chunk record")

	// ErrUnknownSource indicates a source name that is not supported.
	ErrUnknownSource = errors.New("unknown source")

	// ErrInvalidRole indicates a message role outside user/assistant/system.
	ErrInvalidRole = errors.New("invalid role")

	// ErrEmptyContent indicates a message or chunk has no content.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrNoMessages indicates a conversation with no messages.
	ErrNoMessages = errors.New("conversation has no messages")

	// ErrMissingExternalID indicates a conversation without a source identifier.
	ErrMissingExternalID = errors.New("external id cannot be empty")

	// ErrNonContiguousIndex indicates message indexes are not 0..N-1.
	ErrNonContiguousIndex = errors.New("message indexes are not contiguous")

	// ErrMissingOrganization indicates a chunk record without an organization.
	ErrMissingOrganization = errors.New("organization id cannot be empty")

	// ErrMissingEntity indicates a chunk record without entity type or id.
	ErrMissingEntity = errors.New("entity type and id are required")
)
