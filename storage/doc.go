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


// Package storage defines the chunk store abstraction for aisync.
//
// Embedded conversation chunks live behind ChunkRepository so the chunk
// store and ingestion service never see the storage engine.
//
// # Constructor Return Type Pattern
//
// Public constructors in implementation packages return the interface:
//
//	repo, err := badger.NewRepository(path)  // returns storage.ChunkRepository
//
// Internal constructors may return concrete types since they're only
// used within the implementation package.
//
// # Addressing
//
// A chunk is addressed by (organization, entity type, entity id, chunk
// index). Conversations use entity type core.EntityTypeConversation and
// their identity hash as entity id. ChunkFilter narrows queries by entity
// or by the composite source label.
//
// # Serialization
//
// Records are encoded with mus-go. Collections carry a length prefix and
// times are stored as Unix microseconds.
//
// # Usage
//
//	repo, err := badger.NewMemoryRepository()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repo.Close()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
