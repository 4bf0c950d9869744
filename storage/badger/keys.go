package badger

import (
	"fmt"
	"strings"

	"github.com/poiesic/aisync/storage"
)

// Key prefixes for different data types
const (
	chunkPrefix       = "chunk"
	embeddingMetaKey  = "meta:embedding_profile"
	keySeparator      = ":"
	chunkIndexPattern = "%s:%s:%s:%s:%08d"
)

// validateKeyPart rejects components that would make keys ambiguous.
func validateKeyPart(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is empty", storage.ErrInvalidKey, name)
	}
	if strings.Contains(value, keySeparator) {
		return fmt.Errorf("%w: %s %q contains %q", storage.ErrInvalidKey, name, value, keySeparator)
	}
	return nil
}

// makeChunkKey generates the key for a chunk.
// Format: chunk:org:entityType:entityID:index with a zero-padded index so
// keys sort in chunk order.
func makeChunkKey(orgID, entityType, entityID string, index int) ([]byte, error) {
	if err := validateKeyPart("organization id", orgID); err != nil {
		return nil, err
	}
	if err := validateKeyPart("entity type", entityType); err != nil {
		return nil, err
	}
	if err := validateKeyPart("entity id", entityID); err != nil {
		return nil, err
	}
	if index < 0 {
		return nil, fmt.Errorf("%w: negative chunk index %d", storage.ErrInvalidKey, index)
	}
	return []byte(fmt.Sprintf(chunkIndexPattern, chunkPrefix, orgID, entityType, entityID, index)), nil
}

// makeScanPrefix returns the narrowest key prefix covering a query. Entity
// id is only used when entity type is also known.
func makeScanPrefix(orgID, entityType, entityID string) ([]byte, error) {
	if err := validateKeyPart("organization id", orgID); err != nil {
		return nil, err
	}
	parts := []string{chunkPrefix, orgID}
	if entityType != "" {
		if err := validateKeyPart("entity type", entityType); err != nil {
			return nil, err
		}
		parts = append(parts, entityType)
		if entityID != "" {
			if err := validateKeyPart("entity id", entityID); err != nil {
				return nil, err
			}
			parts = append(parts, entityID)
		}
	}
	return []byte(strings.Join(parts, keySeparator) + keySeparator), nil
}

func allChunksPrefix() []byte {
	return []byte(chunkPrefix + keySeparator)
}
