package fs

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IgnoreFileName is the ignore file read from the import root.
const IgnoreFileName = ".starbaseignore"

// defaultIgnorePatterns are applied before config and ignore-file patterns.
var defaultIgnorePatterns = []string{IgnoreFileName, ".git/", "node_modules/"}

// ignoreRule is one parsed line of an ignore list.
type ignoreRule struct {
	glob     string
	anchored bool // contains '/', matched against the whole relative path
	dirOnly  bool // trailing '/', matches directories only
	negate   bool // leading '!', re-includes a previously ignored path
}

// IgnoreMatcher decides which import paths are skipped.
// Rules follow a gitignore subset: later rules override earlier ones, '!' re-includes,
// a trailing '/' limits a rule to directories, and "**" spans directories.
type IgnoreMatcher struct {
	rules []ignoreRule
}

// NewIgnoreMatcher parses raw lines. Blank lines and '#' comments are skipped.
func NewIgnoreMatcher(lines []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var r ignoreRule
		if strings.HasPrefix(line, "!") {
			r.negate = true
			line = line[1:]
		}
		if strings.HasSuffix(line, "/") {
			r.dirOnly = true
			line = strings.TrimRight(line, "/")
		}
		r.anchored = strings.Contains(line, "/")
		r.glob = strings.TrimPrefix(line, "/")
		if r.glob == "" || !doublestar.ValidatePattern(r.glob) {
			continue
		}
		m.rules = append(m.rules, r)
	}
	return m
}

// Match reports whether relativePath is ignored. The last matching rule decides.
func (m *IgnoreMatcher) Match(relativePath string, isDir bool) bool {
	if relativePath == "" {
		return false
	}
	p := filepath.ToSlash(relativePath)
	base := path.Base(p)

	ignored := false
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		target := base
		if r.anchored {
			target = p
		}
		if ok, _ := doublestar.Match(r.glob, target); ok {
			ignored = !r.negate
		}
	}
	return ignored
}

// ParseIgnoreFile reads the lines of an ignore file. A missing file yields nil.
func ParseIgnoreFile(name string) ([]string, error) {
	f, err := os.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return lines, nil
}
