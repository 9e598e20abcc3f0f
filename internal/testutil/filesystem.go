package testutil

import (
	"fmt"
	"sort"

	"starbase-go/internal/vcs"
)

// MockFileSource is an in-memory vcs.FileSource keyed by root directory.
type MockFileSource struct {
	roots map[string]map[string]string
}

func NewMockFileSource() *MockFileSource {
	return &MockFileSource{roots: make(map[string]map[string]string)}
}

// AddFile places a file at the slash-separated path below root.
func (m *MockFileSource) AddFile(root, path, content string) {
	if m.roots[root] == nil {
		m.roots[root] = make(map[string]string)
	}
	m.roots[root][path] = content
}

func (m *MockFileSource) FindFiles(root string) ([]vcs.LocalFile, error) {
	files, ok := m.roots[root]
	if !ok {
		return nil, fmt.Errorf("directory not found: %s", root)
	}
	out := make([]vcs.LocalFile, 0, len(files))
	for p, content := range files {
		out = append(out, vcs.LocalFile{Path: p, Content: content})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

var _ vcs.FileSource = (*MockFileSource)(nil)
