// Package dedup computes the fingerprints used to recognise conversations
// that were already imported.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/poiesic/aisync/core"
)

// contentPrefixRunes bounds how much of each message feeds ContentHash.
const contentPrefixRunes = 1000

// IdentityHash returns the durable identity of a conversation: the hex
// SHA-256 of "source:externalId:title". Message content does not affect it.
func IdentityHash(conv *core.ParsedConversation) string {
	sum := sha256.Sum256([]byte(string(conv.Source) + ":" + conv.ExternalID + ":" + conv.Title))
	return hex.EncodeToString(sum[:])
}

// ContentHash fingerprints the message sequence as "role:content" pairs
// (content truncated to 1000 characters) joined by "|".
func ContentHash(conv *core.ParsedConversation) string {
	parts := make([]string, len(conv.Messages))
	for i, msg := range conv.Messages {
		parts[i] = string(msg.Role) + ":" + truncateRunes(msg.Content, contentPrefixRunes)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
