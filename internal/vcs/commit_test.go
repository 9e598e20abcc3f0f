package vcs_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"starbase-go/internal/model"
	"starbase-go/internal/testutil"
	"starbase-go/internal/vcs"
)

// setupProject creates a project and returns it with its main branch.
func setupProject(t *testing.T, env *testutil.TestEnv, name string) (*model.Project, *model.Branch) {
	t.Helper()
	ctx := context.Background()

	project, err := env.Service.CreateProject(ctx, name)
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	main, err := env.Service.MainBranch(ctx, project.ID)
	if err != nil {
		t.Fatalf("MainBranch() error = %v", err)
	}
	return project, main
}

func saveFile(t *testing.T, env *testutil.TestEnv, projectID, path, content string) *model.File {
	t.Helper()
	file, err := env.Service.SaveFile(context.Background(), vcs.SaveFileRequest{
		ProjectID: projectID,
		Path:      path,
		Content:   content,
	})
	if err != nil {
		t.Fatalf("SaveFile(%s) error = %v", path, err)
	}
	return file
}

func commit(t *testing.T, env *testutil.TestEnv, branchID, message string) *vcs.CommitInfo {
	t.Helper()
	info, err := env.Service.Commit(context.Background(), branchID, "alice", message, vcs.CommitOptions{})
	if err != nil {
		t.Fatalf("Commit(%q) error = %v", message, err)
	}
	return info
}

func TestService_CreateProject(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewTestEnv(t)

	project, main := setupProject(t, env, "orders")
	if main.Name != vcs.MainBranchName || !main.IsDefault || main.HeadCommitID != "" {
		t.Errorf("main branch = %+v", main)
	}

	t.Run("duplicate name is rejected", func(t *testing.T) {
		_, err := env.Service.CreateProject(ctx, "orders")
		var verr *vcs.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("CreateProject() error = %v, want ValidationError", err)
		}
	})

	t.Run("empty name is rejected", func(t *testing.T) {
		if _, err := env.Service.CreateProject(ctx, ""); err == nil {
			t.Error("CreateProject(\"\") expected error")
		}
	})

	t.Run("resolve by id or name", func(t *testing.T) {
		for _, key := range []string{project.ID, "orders"} {
			got, err := env.Service.ResolveProject(ctx, key)
			if err != nil || got.ID != project.ID {
				t.Errorf("ResolveProject(%q) = %v, %v", key, got, err)
			}
		}
		if _, err := env.Service.ResolveProject(ctx, "missing"); !errors.Is(err, vcs.ErrNotFound) {
			t.Errorf("ResolveProject(missing) error = %v, want ErrNotFound", err)
		}
	})
}

func TestService_SaveFile(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewTestEnv(t)
	project, _ := setupProject(t, env, "orders")

	first := saveFile(t, env, project.ID, "sales/emea/order.bpmn", "<v1/>")
	second := saveFile(t, env, project.ID, "sales/emea/order.bpmn", "<v2/>")
	if first.ID != second.ID {
		t.Errorf("saving the same path created a second file: %s != %s", first.ID, second.ID)
	}
	if second.ContentHash != testutil.SHA256Hex([]byte("<v2/>")) {
		t.Errorf("ContentHash = %s", second.ContentHash)
	}

	saveFile(t, env, project.ID, "sales/quote.dmn", "<dmn/>")

	files, err := env.Service.ListFiles(ctx, project.ID)
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	if strings.Join(paths, ",") != "sales/emea/order.bpmn,sales/quote.dmn" {
		t.Errorf("ListFiles() paths = %v", paths)
	}

	found, err := env.Service.FindFileByPath(ctx, project.ID, "/sales//emea/order.bpmn")
	if err != nil || found.ID != first.ID {
		t.Errorf("FindFileByPath() = %v, %v", found, err)
	}
	if _, err := env.Service.FindFileByPath(ctx, project.ID, "sales/none.bpmn"); !errors.Is(err, vcs.ErrNotFound) {
		t.Errorf("FindFileByPath(missing) error = %v, want ErrNotFound", err)
	}

	t.Run("unknown project", func(t *testing.T) {
		_, err := env.Service.SaveFile(ctx, vcs.SaveFileRequest{ProjectID: "nope", Path: "a.bpmn"})
		if !errors.Is(err, vcs.ErrNotFound) {
			t.Errorf("SaveFile() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("path without extension", func(t *testing.T) {
		_, err := env.Service.SaveFile(ctx, vcs.SaveFileRequest{ProjectID: project.ID, Path: "README"})
		var verr *vcs.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("SaveFile() error = %v, want ValidationError", err)
		}
	})
}

func TestService_Commit(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewTestEnv(t)
	project, main := setupProject(t, env, "orders")

	order := saveFile(t, env, project.ID, "order.bpmn", "<v1/>")
	risk := saveFile(t, env, project.ID, "risk.dmn", "<dmn/>")

	c1 := commit(t, env, main.ID, "initial")
	if c1.Changes != (vcs.ChangeCounts{Added: 2}) {
		t.Errorf("first commit changes = %+v, want 2 added", c1.Changes)
	}
	if c1.VersionNumber != 1 || c1.ParentCommitID != "" || c1.Source != model.SourceManual {
		t.Errorf("first commit = %+v", c1.Commit)
	}

	saveFile(t, env, project.ID, "order.bpmn", "<v2/>")
	c2 := commit(t, env, main.ID, "tweak order")
	if c2.Changes != (vcs.ChangeCounts{Modified: 1, Unchanged: 1}) {
		t.Errorf("second commit changes = %+v", c2.Changes)
	}
	if c2.VersionNumber != 2 || c2.ParentCommitID != c1.ID {
		t.Errorf("second commit = %+v", c2.Commit)
	}

	if err := env.Service.DeleteFile(ctx, project.ID, risk.ID); err != nil {
		t.Fatalf("DeleteFile() error = %v", err)
	}
	c3 := commit(t, env, main.ID, "drop risk table")
	if c3.Changes != (vcs.ChangeCounts{Unchanged: 1, Deleted: 1}) {
		t.Errorf("delete commit changes = %+v", c3.Changes)
	}

	saveFile(t, env, project.ID, "risk.dmn", "<dmn v2/>")
	c4 := commit(t, env, main.ID, "restore risk table")
	if c4.Changes != (vcs.ChangeCounts{Added: 1, Unchanged: 1}) {
		t.Errorf("resurrected file changes = %+v, want it counted as added", c4.Changes)
	}

	t.Run("identical trees hash identically", func(t *testing.T) {
		c5 := commit(t, env, main.ID, "no-op")
		if c5.Hash != c4.Hash {
			t.Errorf("hash changed without content change: %s != %s", c5.Hash, c4.Hash)
		}
		if c5.Changes != (vcs.ChangeCounts{Unchanged: 2}) {
			t.Errorf("no-op commit changes = %+v", c5.Changes)
		}
	})

	t.Run("history is newest first", func(t *testing.T) {
		commits, err := env.Service.GetCommits(ctx, main.ID, 2)
		if err != nil {
			t.Fatalf("GetCommits() error = %v", err)
		}
		if len(commits) != 2 || commits[0].VersionNumber != 5 || commits[1].ID != c4.ID {
			t.Errorf("GetCommits() = %v", commits)
		}
		got, err := env.Service.GetCommit(ctx, c2.ID)
		if err != nil || got.Message != "tweak order" {
			t.Errorf("GetCommit() = %v, %v", got, err)
		}
	})

	t.Run("file history follows the slot", func(t *testing.T) {
		has, err := env.Service.CommitHasFile(ctx, c2.ID, order.ID)
		if err != nil || !has {
			t.Errorf("CommitHasFile(c2, order) = %v, %v, want true", has, err)
		}
		has, err = env.Service.CommitHasFile(ctx, c3.ID, order.ID)
		if err != nil || has {
			t.Errorf("CommitHasFile(c3, order) = %v, %v, want false", has, err)
		}

		last, err := env.Service.GetLastCommitForFile(ctx, order.ID)
		if err != nil || last == nil || last.ID != c2.ID {
			t.Errorf("GetLastCommitForFile() = %v, %v, want %s", last, err, c2.ID)
		}

		versions, err := env.Service.GetFileVersions(ctx, order.ID)
		if err != nil {
			t.Fatalf("GetFileVersions() error = %v", err)
		}
		if len(versions) != 2 || versions[0].VersionNumber != 2 || versions[0].CommitID != c2.ID {
			t.Errorf("GetFileVersions() = %+v", versions)
		}
	})

	t.Run("unknown branch", func(t *testing.T) {
		_, err := env.Service.Commit(ctx, "missing", "alice", "x", vcs.CommitOptions{})
		if !errors.Is(err, vcs.ErrNotFound) {
			t.Errorf("Commit() error = %v, want ErrNotFound", err)
		}
	})
}

func TestService_ReservedMessagesKeepFileVersions(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewTestEnv(t)
	project, main := setupProject(t, env, "orders")

	file := saveFile(t, env, project.ID, "order.bpmn", "<v1/>")
	commit(t, env, main.ID, "initial")

	for i, msg := range []string{"Sync from Starbase: nightly", "Merge from draft: bob", "Pull from remote (main@abc)"} {
		saveFile(t, env, project.ID, "order.bpmn", fmt.Sprintf("<v%d/>", i+2))
		info := commit(t, env, main.ID, msg)
		if info.Changes.Modified != 1 {
			t.Fatalf("commit %q changes = %+v", msg, info.Changes)
		}
	}

	versions, err := env.Service.GetFileVersions(ctx, file.ID)
	if err != nil {
		t.Fatalf("GetFileVersions() error = %v", err)
	}
	if len(versions) != 1 {
		t.Errorf("file has %d versions, want 1", len(versions))
	}

	saveFile(t, env, project.ID, "order.bpmn", "<v9/>")
	commit(t, env, main.ID, "real edit")
	versions, _ = env.Service.GetFileVersions(ctx, file.ID)
	if len(versions) != 2 || versions[0].VersionNumber != 2 {
		t.Errorf("after a regular commit versions = %+v", versions)
	}
}

func TestService_CommitCurrentState(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewTestEnv(t)
	project, main := setupProject(t, env, "orders")

	// Draft saves touch the live file but not main's working files.
	if _, err := env.Service.SaveFile(ctx, vcs.SaveFileRequest{
		ProjectID: project.ID, Path: "flows/order.bpmn", Content: "<v1/>", UserID: "bob",
	}); err != nil {
		t.Fatalf("SaveFile(draft) error = %v", err)
	}

	info, err := env.Service.CommitCurrentState(ctx, project.ID, "bob", "snapshot", model.SourceManual)
	if err != nil {
		t.Fatalf("CommitCurrentState() error = %v", err)
	}
	if info.Changes != (vcs.ChangeCounts{Added: 1}) || info.IsRemote || info.BranchID != main.ID {
		t.Errorf("CommitCurrentState() = %+v", info)
	}

	t.Run("live deletion marks main deleted", func(t *testing.T) {
		file, err := env.Service.FindFileByPath(ctx, project.ID, "flows/order.bpmn")
		if err != nil {
			t.Fatalf("FindFileByPath() error = %v", err)
		}
		if err := env.DB.DeleteFile(ctx, file.ID); err != nil {
			t.Fatalf("DeleteFile() error = %v", err)
		}

		info, err := env.Service.CommitCurrentState(ctx, project.ID, "bob", "Sync from Starbase", model.SourceSyncPush)
		if err != nil {
			t.Fatalf("CommitCurrentState() error = %v", err)
		}
		if info.Changes != (vcs.ChangeCounts{Deleted: 1}) {
			t.Errorf("changes = %+v, want 1 deleted", info.Changes)
		}
		if !info.IsRemote || info.Source != model.SourceSyncPush {
			t.Errorf("sync commit IsRemote = %v, Source = %q", info.IsRemote, info.Source)
		}
	})

	t.Run("unknown project", func(t *testing.T) {
		_, err := env.Service.CommitCurrentState(ctx, "nope", "bob", "x", model.SourceManual)
		if !errors.Is(err, vcs.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})
}

func TestService_DiffCommits(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewTestEnv(t)
	project, main := setupProject(t, env, "orders")

	saveFile(t, env, project.ID, "flows/order.bpmn", "<start/>\n<end/>\n")
	saveFile(t, env, project.ID, "gone.dmn", "<dmn/>\n")
	c1 := commit(t, env, main.ID, "initial")

	gone, err := env.Service.FindFileByPath(ctx, project.ID, "gone.dmn")
	if err != nil {
		t.Fatalf("FindFileByPath() error = %v", err)
	}
	if err := env.Service.DeleteFile(ctx, project.ID, gone.ID); err != nil {
		t.Fatalf("DeleteFile() error = %v", err)
	}
	saveFile(t, env, project.ID, "flows/order.bpmn", "<start/>\n<task/>\n<end/>\n")
	saveFile(t, env, project.ID, "new.dmn", "<dmn/>\n")
	c2 := commit(t, env, main.ID, "rework")

	diffs, err := env.Service.DiffCommits(ctx, c1.ID, c2.ID)
	if err != nil {
		t.Fatalf("DiffCommits() error = %v", err)
	}
	want := []struct{ path, change string }{
		{"flows/order.bpmn", model.ChangeModified},
		{"gone.dmn", model.ChangeDeleted},
		{"new.dmn", model.ChangeAdded},
	}
	if len(diffs) != len(want) {
		t.Fatalf("DiffCommits() returned %d diffs, want %d: %+v", len(diffs), len(want), diffs)
	}
	for i, w := range want {
		if diffs[i].Path != w.path || diffs[i].ChangeType != w.change {
			t.Errorf("diff[%d] = %s %s, want %s %s", i, diffs[i].Path, diffs[i].ChangeType, w.path, w.change)
		}
	}
	if !strings.Contains(diffs[0].Unified, "+<task/>") || !strings.Contains(diffs[0].Unified, "--- a/flows/order.bpmn") {
		t.Errorf("unified diff = %q", diffs[0].Unified)
	}

	t.Run("empty base lists every file as added", func(t *testing.T) {
		diffs, err := env.Service.DiffCommits(ctx, "", c1.ID)
		if err != nil {
			t.Fatalf("DiffCommits() error = %v", err)
		}
		if len(diffs) != 2 || diffs[0].ChangeType != model.ChangeAdded {
			t.Errorf("DiffCommits(\"\") = %+v", diffs)
		}
	})

	t.Run("commits of different projects", func(t *testing.T) {
		other, otherMain := setupProject(t, env, "billing")
		saveFile(t, env, other.ID, "bill.bpmn", "<x/>")
		oc := commit(t, env, otherMain.ID, "bill")
		_, err := env.Service.DiffCommits(ctx, c1.ID, oc.ID)
		var verr *vcs.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("DiffCommits() error = %v, want ValidationError", err)
		}
	})
}
