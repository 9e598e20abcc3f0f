package testutil

import (
	"crypto/sha256"
	"encoding/hex"

	"starbase-go/internal/vcs"
)

// SHA256Hex is an independent SHA-256 hex digest for checking stored hashes.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ManifestOf builds the manifest expected for files given as path -> content.
func ManifestOf(files map[string]string) vcs.Manifest {
	m := make(vcs.Manifest, len(files))
	for p, content := range files {
		m[p] = SHA256Hex([]byte(content))
	}
	return m
}
