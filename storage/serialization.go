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


package storage

import (
	"fmt"

	"github.com/poiesic/aisync/core"
)

// MarshalChunkRecord serializes a ChunkRecord to bytes.
func MarshalChunkRecord(record *core.ChunkRecord) []byte {
	buf := make([]byte, core.ChunkRecordMUS.Size(*record))
	core.ChunkRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalChunkRecord deserializes a ChunkRecord from bytes.
// Timestamps come back in UTC and empty collections as nil.
func UnmarshalChunkRecord(data []byte) (*core.ChunkRecord, error) {
	record, _, err := core.ChunkRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk record: %w", ErrSerializationFailed, err)
	}
	if len(record.Metadata) == 0 {
		record.Metadata = nil
	}
	if len(record.Vector) == 0 {
		record.Vector = nil
	}
	record.InsertedAt = record.InsertedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return &record, nil
}

// MarshalEmbeddingProfile serializes an EmbeddingProfile to bytes.
func MarshalEmbeddingProfile(profile *core.EmbeddingProfile) []byte {
	buf := make([]byte, core.EmbeddingProfileMUS.Size(*profile))
	core.EmbeddingProfileMUS.Marshal(*profile, buf)
	return buf
}

// UnmarshalEmbeddingProfile deserializes an EmbeddingProfile from bytes.
func UnmarshalEmbeddingProfile(data []byte) (*core.EmbeddingProfile, error) {
	profile, _, err := core.EmbeddingProfileMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding profile: %w", ErrSerializationFailed, err)
	}
	return &profile, nil
}
