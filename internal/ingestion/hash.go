package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizeTranscript collapses line endings and trims surrounding space so
// the same content always hashes the same regardless of upload platform.
func NormalizeTranscript(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}

// HashContent returns the dedup fingerprint for raw transcript text.
func HashContent(text string) string {
	sum := sha256.Sum256([]byte(NormalizeTranscript(text)))
	return hex.EncodeToString(sum[:])
}

// ChunkID returns a deterministic id for a chunk so re-upload after a retry
// upserts the same vector instead of creating a new one.
func ChunkID(kind, text string) string {
	sum := sha256.Sum256([]byte(kind + "\x00" + text))
	return "chk_" + hex.EncodeToString(sum[:])[:32]
}
