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

import (
	"fmt"
	"strings"
)

// ParseSource converts a case-insensitive source name into a Source.
func ParseSource(name string) (Source, error) {
	candidate := Source(strings.ToUpper(strings.TrimSpace(name)))
	if err := ValidateSource(candidate); err != nil {
		return "", err
	}
	return candidate, nil
}

// ValidateSource validates that a Source is one of the supported exports.
func ValidateSource(source Source) error {
	for _, s := range Sources {
		if s == source {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownSource, string(source))
}

// ValidateRole validates that a Role has a known value.
func ValidateRole(role Role) error {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidRole, string(role))
}

// ValidateConversation validates a ParsedConversation according to domain rules.
//
// Validation rules:
//   - Source must be supported
//   - ExternalID must not be empty
//   - at least one message, each with a valid role and non-blank content
//   - MessageIndex values must be 0..N-1 in order
func ValidateConversation(conv *ParsedConversation) error {
	if conv == nil {
		return fmt.Errorf("%w: conversation is nil", ErrInvalidConversation)
	}

	if err := ValidateSource(conv.Source); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConversation, err)
	}

	if conv.ExternalID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidConversation, ErrMissingExternalID)
	}

	if len(conv.Messages) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConversation, ErrNoMessages)
	}

	for i, msg := range conv.Messages {
		if err := ValidateRole(msg.Role); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConversation, err)
		}
		if strings.TrimSpace(msg.Content) == "" {
			return fmt.Errorf("%w: message %d: %w", ErrInvalidConversation, i, ErrEmptyContent)
		}
		if msg.MessageIndex != i {
			return fmt.Errorf("%w: %w", ErrInvalidConversation, ErrNonContiguousIndex)
		}
	}

	return nil
}

// ValidateChunkRecord validates a ChunkRecord before it is persisted.
//
// NOT validated:
//   - Vector (a chunk may be stored before re-embedding)
//   - ID (assigned by the repository when empty)
func ValidateChunkRecord(record *ChunkRecord) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidChunkRecord)
	}

	if record.OrganizationID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunkRecord, ErrMissingOrganization)
	}

	if record.EntityType == "" || record.EntityID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunkRecord, ErrMissingEntity)
	}

	if record.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunkRecord, ErrEmptyContent)
	}

	if record.ChunkIndex < 0 || (record.TotalChunks > 0 && record.ChunkIndex >= record.TotalChunks) {
		return fmt.Errorf("%w: chunk index %d out of range", ErrInvalidChunkRecord, record.ChunkIndex)
	}

	return nil
}
