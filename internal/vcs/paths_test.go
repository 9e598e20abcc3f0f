package vcs

import (
	"errors"
	"testing"

	"starbase-go/internal/model"
)

func TestSplitFilePath(t *testing.T) {
	tests := []struct {
		in       string
		wantDirs []string
		wantName string
		wantType string
		wantErr  bool
	}{
		{in: "order.bpmn", wantName: "order", wantType: "bpmn"},
		{in: "a/b/risk.DMN", wantDirs: []string{"a", "b"}, wantName: "risk", wantType: "dmn"},
		{in: "/a//b/../c/x.bpmn", wantDirs: []string{"a", "c"}, wantName: "x", wantType: "bpmn"},
		{in: `win\path\y.bpmn`, wantDirs: []string{"win", "path"}, wantName: "y", wantType: "bpmn"},
		{in: "order.v2.bpmn", wantName: "order.v2", wantType: "bpmn"},
		{in: "", wantErr: true},
		{in: "/", wantErr: true},
		{in: "README", wantErr: true},
		{in: "dir/.bpmn", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			dirs, name, fileType, err := SplitFilePath(tt.in)
			if tt.wantErr {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("SplitFilePath(%q) error = %v, want ValidationError", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("SplitFilePath(%q) error = %v", tt.in, err)
			}
			if joinDirs(dirs) != joinDirs(tt.wantDirs) || name != tt.wantName || fileType != tt.wantType {
				t.Errorf("SplitFilePath(%q) = %v, %q, %q", tt.in, dirs, name, fileType)
			}
		})
	}
}

func TestJoinFilePath(t *testing.T) {
	if got := JoinFilePath("", "order", "bpmn"); got != "order.bpmn" {
		t.Errorf("JoinFilePath(root) = %q", got)
	}
	if got := JoinFilePath("a/b", "risk", "dmn"); got != "a/b/risk.dmn" {
		t.Errorf("JoinFilePath(nested) = %q", got)
	}
}

func TestFolderPaths(t *testing.T) {
	folders := []*model.Folder{
		{ID: "c", ParentID: "b", Name: "leaf"},
		{ID: "a", Name: "root"},
		{ID: "b", ParentID: "a", Name: "mid"},
		{ID: "x", ParentID: "y", Name: "loop-x"},
		{ID: "y", ParentID: "x", Name: "loop-y"},
	}

	paths := folderPaths(folders)
	if paths["c"] != "root/mid/leaf" {
		t.Errorf("paths[c] = %q, want root/mid/leaf", paths["c"])
	}
	if paths["a"] != "root" {
		t.Errorf("paths[a] = %q, want root", paths["a"])
	}
	// A corrupt parent cycle must terminate.
	if paths["x"] == "" {
		t.Error("paths[x] is empty, want a bounded path")
	}
}

func TestIsSyncType(t *testing.T) {
	for _, ty := range []string{"bpmn", "dmn"} {
		if !IsSyncType(ty) {
			t.Errorf("IsSyncType(%q) = false", ty)
		}
	}
	for _, ty := range []string{"form", "json", ""} {
		if IsSyncType(ty) {
			t.Errorf("IsSyncType(%q) = true", ty)
		}
	}
}

func TestIsReservedMessage(t *testing.T) {
	tests := map[string]bool{
		"Sync from Starbase":              true,
		"  sync from starbase: tweak":     true,
		"Merge from draft: risk":          true,
		"PULL FROM REMOTE (main@abc1234)": true,
		"Update order.bpmn":               false,
		"":                                false,
		"merge the draft":                 false,
	}
	for msg, want := range tests {
		if got := isReservedMessage(msg); got != want {
			t.Errorf("isReservedMessage(%q) = %v, want %v", msg, got, want)
		}
	}
}

func TestContentHash(t *testing.T) {
	const emptySHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := ContentHash(""); got != emptySHA256 {
		t.Errorf("ContentHash(\"\") = %s", got)
	}
	if len(ContentHash("<bpmn/>")) != 64 {
		t.Error("ContentHash() is not a full SHA-256 hex digest")
	}
}

func TestCommitHash(t *testing.T) {
	a := []fileHash{{fileID: "f1", hash: "h1"}, {fileID: "f2", hash: "h2"}}
	b := []fileHash{{fileID: "f2", hash: "h2"}, {fileID: "f1", hash: "h1"}}

	if commitHash(a) != commitHash(b) {
		t.Error("commitHash() depends on input order")
	}
	if commitHash(a) == commitHash([]fileHash{{fileID: "f1", hash: "h1"}, {fileID: "f2", hash: "other"}}) {
		t.Error("commitHash() ignores content hashes")
	}
	if a[0].fileID != "f1" {
		t.Error("commitHash() reordered its input")
	}
}

func TestDedupeSnapshots(t *testing.T) {
	older := &model.FileSnapshot{ID: "s1", Name: "order", Type: "bpmn", ChangeType: model.ChangeUnchanged}
	changed := &model.FileSnapshot{ID: "s2", Name: "order", Type: "bpmn", Content: "<v2/>", ChangeType: model.ChangeModified}
	other := &model.FileSnapshot{ID: "s3", Name: "alpha", Type: "dmn", ChangeType: model.ChangeAdded}

	got := dedupeSnapshots([]*model.FileSnapshot{older, changed, other})
	if len(got) != 2 {
		t.Fatalf("len(dedupeSnapshots()) = %d, want 2", len(got))
	}
	if got[0].ID != "s3" || got[1].ID != "s2" {
		t.Errorf("dedupeSnapshots() = [%s %s], want [s3 s2]", got[0].ID, got[1].ID)
	}
}
