package vcs

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Manifest maps a slash-separated remote path to the SHA-256 of its content.
// It is persisted as a JSON object in GitRepository.LastPushedManifest.
type Manifest map[string]string

// ParseManifest decodes a stored manifest. An empty string means "no manifest" and returns nil.
func ParseManifest(raw string) (Manifest, error) {
	if raw == "" {
		return nil, nil
	}
	m := Manifest{}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	return m, nil
}

// Encode serializes the manifest with keys in sorted order.
func (m Manifest) Encode() (string, error) {
	if m == nil {
		m = Manifest{}
	}
	data, err := json.Marshal(map[string]string(m))
	if err != nil {
		return "", fmt.Errorf("encoding manifest: %w", err)
	}
	return string(data), nil
}

// Paths returns the manifest paths in sorted order.
func (m Manifest) Paths() []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// ManifestDiff is the result of comparing a current manifest against a baseline.
type ManifestDiff struct {
	Changed []string // present now and new or different vs baseline
	Deleted []string // in baseline, gone now
}

// Diff compares m (current) against previous. A nil previous marks every path changed
// and reports no deletions; the caller reconciles deletions against the remote tree.
func (m Manifest) Diff(previous Manifest) ManifestDiff {
	var d ManifestDiff
	for _, p := range m.Paths() {
		if previous == nil {
			d.Changed = append(d.Changed, p)
			continue
		}
		if old, ok := previous[p]; !ok || old != m[p] {
			d.Changed = append(d.Changed, p)
		}
	}
	for _, p := range previous.Paths() {
		if _, ok := m[p]; !ok {
			d.Deleted = append(d.Deleted, p)
		}
	}
	return d
}
