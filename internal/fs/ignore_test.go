package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewIgnoreMatcher(t *testing.T) {
	m := NewIgnoreMatcher([]string{
		"",
		"   ",
		"# exported diagrams",
		"*.tmp",
		"/drafts",
		"build/",
		"!keep.tmp",
		"[",
	})

	want := []ignoreRule{
		{glob: "*.tmp"},
		{glob: "drafts", anchored: true},
		{glob: "build", dirOnly: true},
		{glob: "keep.tmp", negate: true},
	}
	if len(m.rules) != len(want) {
		t.Fatalf("parsed %d rules, want %d: %+v", len(m.rules), len(want), m.rules)
	}
	for i, w := range want {
		if m.rules[i] != w {
			t.Errorf("rule[%d] = %+v, want %+v", i, m.rules[i], w)
		}
	}
}

func TestIgnoreMatcher_Match(t *testing.T) {
	tests := []struct {
		name  string
		rules []string
		path  string
		isDir bool
		want  bool
	}{
		{name: "basename glob at root", rules: []string{"*.tmp"}, path: "scratch.tmp", want: true},
		{name: "basename glob in subfolder", rules: []string{"*.tmp"}, path: filepath.Join("orders", "scratch.tmp"), want: true},
		{name: "other extension", rules: []string{"*.tmp"}, path: "order.bpmn", want: false},
		{name: "anchored path", rules: []string{"/drafts"}, path: "drafts", isDir: true, want: true},
		{name: "anchored path does not float", rules: []string{"/drafts"}, path: filepath.Join("orders", "drafts"), isDir: true, want: false},
		{name: "double star spans folders", rules: []string{"orders/**/old-*.bpmn"}, path: "orders/a/b/old-intake.bpmn", want: true},
		{name: "double star at start", rules: []string{"**/generated/*.dmn"}, path: "x/generated/risk.dmn", want: true},
		{name: "directory rule matches directory", rules: []string{"build/"}, path: filepath.Join("orders", "build"), isDir: true, want: true},
		{name: "directory rule skips files", rules: []string{"build/"}, path: "build", isDir: false, want: false},
		{name: "negation re-includes", rules: []string{"*.dmn", "!risk.dmn"}, path: "rules/risk.dmn", want: false},
		{name: "later rule wins", rules: []string{"!risk.dmn", "*.dmn"}, path: "risk.dmn", want: true},
		{name: "no rules", rules: nil, path: "order.bpmn", want: false},
		{name: "empty path", rules: []string{"*"}, path: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NewIgnoreMatcher(tt.rules).Match(tt.path, tt.isDir); got != tt.want {
				t.Errorf("Match(%q, %v) = %v, want %v", tt.path, tt.isDir, got, tt.want)
			}
		})
	}
}

func TestIgnoreMatcher_Defaults(t *testing.T) {
	m := NewIgnoreMatcher(defaultIgnorePatterns)
	for _, p := range []string{".git", "node_modules", filepath.Join("web", "node_modules")} {
		if !m.Match(p, true) {
			t.Errorf("default rules do not ignore directory %q", p)
		}
	}
	if !m.Match(IgnoreFileName, false) {
		t.Errorf("default rules do not ignore %s", IgnoreFileName)
	}
	if m.Match("order.bpmn", false) {
		t.Error("default rules ignore a process file")
	}
}

func TestParseIgnoreFile(t *testing.T) {
	t.Run("returns raw lines", func(t *testing.T) {
		name := filepath.Join(t.TempDir(), IgnoreFileName)
		if err := os.WriteFile(name, []byte("*.tmp\n# comment\n\n!keep.tmp\n"), 0644); err != nil {
			t.Fatalf("writing ignore file: %v", err)
		}

		lines, err := ParseIgnoreFile(name)
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		if len(lines) != 4 {
			t.Fatalf("got %d lines, want 4", len(lines))
		}
		if got := len(NewIgnoreMatcher(lines).rules); got != 2 {
			t.Errorf("parsed %d rules, want 2", got)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		lines, err := ParseIgnoreFile(filepath.Join(t.TempDir(), IgnoreFileName))
		if err != nil || lines != nil {
			t.Errorf("ParseIgnoreFile() = %v, %v, want nil, nil", lines, err)
		}
	})
}
