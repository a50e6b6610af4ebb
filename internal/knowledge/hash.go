package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// hashDelimiter separates the normalized title and content before hashing.
// Chosen because it is unlikely to appear naturally in either field.
const hashDelimiter = "||"

// ComputeContentHash derives the deduplication fingerprint of an entry.
// Both inputs are trimmed and lowercased before hashing, so the hash is
// case- and surrounding-whitespace-insensitive. Empty inputs hash as-is;
// the function is pure and never fails.
func ComputeContentHash(title, content string) string {
	normalized := strings.ToLower(strings.TrimSpace(title)) +
		hashDelimiter +
		strings.ToLower(strings.TrimSpace(content))

	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
