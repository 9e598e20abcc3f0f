package provider

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/storage"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/go-git/go-git/v5/storage/memory"

	"starbase-go/internal/vcs"
)

// NewMemoryGitProvider keeps every repository in memory. Tests use it.
func NewMemoryGitProvider(author Author) *GitProvider {
	return newGitProvider(func(vcs.RepoRef) (storage.Storer, error) {
		return memory.NewStorage(), nil
	}, author)
}

// NewFilesystemGitProvider stores bare repositories under root, one directory per repository.
func NewFilesystemGitProvider(root string, author Author) (*GitProvider, error) {
	if root == "" {
		return nil, fmt.Errorf("root directory required for git provider")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating git root %s: %w", root, err)
	}
	return newGitProvider(func(ref vcs.RepoRef) (storage.Storer, error) {
		dir := filepath.Join(root, repoDirName(ref))
		return filesystem.NewStorage(osfs.New(dir), cache.NewObjectLRUDefault()), nil
	}, author), nil
}

// repoDirName turns a repository key into a single safe directory name.
func repoDirName(ref vcs.RepoRef) string {
	key := repoKey(ref)
	if i := strings.Index(key, "://"); i >= 0 {
		key = key[i+3:]
	}
	key = strings.TrimSuffix(key, ".git")
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "._") + ".git"
}
