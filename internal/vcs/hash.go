package vcs

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// ContentHash returns the full SHA-256 hex digest of content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// fileHash pairs a working-file id with its content hash for commit hashing.
type fileHash struct {
	fileID string
	hash   string
}

// commitHash hashes the (fileID, hash) list sorted by file id.
func commitHash(entries []fileHash) string {
	sorted := make([]fileHash, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].fileID < sorted[j].fileID })

	var b strings.Builder
	for _, e := range sorted {
		b.WriteString(e.fileID)
		b.WriteByte(':')
		b.WriteString(e.hash)
		b.WriteByte('\n')
	}
	return ContentHash(b.String())
}
