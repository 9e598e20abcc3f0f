package fs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"unicode/utf8"

	"starbase-go/internal/vcs"
)

// OSFileSource reads import files from the real filesystem.
type OSFileSource struct {
	ignore []string
}

// NewOSFileSource creates a file source. ignore patterns come from config and
// are combined with the root's ignore file and the defaults.
func NewOSFileSource(ignore []string) *OSFileSource {
	return &OSFileSource{ignore: ignore}
}

// FindFiles returns every regular, UTF-8 file below root that is not ignored,
// with slash-separated paths relative to root.
func (s *OSFileSource) FindFiles(root string) ([]vcs.LocalFile, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", absRoot)
	}

	filePatterns, err := ParseIgnoreFile(filepath.Join(absRoot, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	patterns := append(append(append([]string{}, defaultIgnorePatterns...), s.ignore...), filePatterns...)
	matcher := NewIgnoreMatcher(patterns)

	var files []vcs.LocalFile
	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if matcher.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("reading %s: %w", p, err)
		}
		if !utf8.Valid(data) {
			return nil
		}
		files = append(files, vcs.LocalFile{Path: filepath.ToSlash(rel), Content: string(data)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

var _ vcs.FileSource = (*OSFileSource)(nil)
