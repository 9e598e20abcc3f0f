package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"starbase-go/internal/model"
	"starbase-go/internal/vcs"
)

// newTestDB creates a new in-memory database with schema applied.
func newTestDB(t *testing.T) *SQLiteDatabase {
	t.Helper()

	db, err := NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}

	if _, err := db.db.Exec(Schema); err != nil {
		db.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

var testTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func seedProject(t *testing.T, db *SQLiteDatabase, id string) (*model.Project, *model.Branch) {
	t.Helper()
	ctx := context.Background()

	p := &model.Project{ID: id, Name: "project-" + id, CreatedAt: testTime}
	if err := db.CreateProject(ctx, p); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	b := &model.Branch{ID: id + "-main", ProjectID: id, Name: "main", IsDefault: true, CreatedAt: testTime, UpdatedAt: testTime}
	if err := db.CreateBranch(ctx, b); err != nil {
		t.Fatalf("CreateBranch() error = %v", err)
	}
	return p, b
}

func seedWorkingFile(t *testing.T, db *SQLiteDatabase, branch *model.Branch, id, name, content string) *model.WorkingFile {
	t.Helper()
	wf := &model.WorkingFile{
		ID: id, BranchID: branch.ID, ProjectID: branch.ProjectID, Name: name, Type: "bpmn",
		Content: content, ContentHash: vcs.ContentHash(content), CreatedAt: testTime, UpdatedAt: testTime,
	}
	if err := db.CreateWorkingFile(context.Background(), wf); err != nil {
		t.Fatalf("CreateWorkingFile() error = %v", err)
	}
	return wf
}

func newCommit(id string, branch *model.Branch, parent string) *model.Commit {
	return &model.Commit{
		ID: id, ProjectID: branch.ProjectID, BranchID: branch.ID, ParentCommitID: parent,
		Message: "commit " + id, Hash: "hash-" + id, Source: model.SourceManual, CreatedAt: testTime,
	}
}

func TestSQLiteDatabase_Projects(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedProject(t, db, "p1")

	t.Run("find by id and name", func(t *testing.T) {
		got, err := db.FindProject(ctx, "p1")
		if err != nil || got == nil {
			t.Fatalf("FindProject() = %v, %v", got, err)
		}
		if got.Name != "project-p1" || !got.CreatedAt.Equal(testTime) {
			t.Errorf("FindProject() = %+v", got)
		}
		byName, err := db.FindProjectByName(ctx, "project-p1")
		if err != nil || byName == nil || byName.ID != "p1" {
			t.Errorf("FindProjectByName() = %v, %v", byName, err)
		}
	})

	t.Run("missing project is nil without error", func(t *testing.T) {
		got, err := db.FindProject(ctx, "nope")
		if err != nil {
			t.Fatalf("FindProject() error = %v", err)
		}
		if got != nil {
			t.Errorf("FindProject() = %+v, want nil", got)
		}
	})

	t.Run("duplicate name fails", func(t *testing.T) {
		err := db.CreateProject(ctx, &model.Project{ID: "p2", Name: "project-p1", CreatedAt: testTime})
		if err == nil {
			t.Error("CreateProject() with duplicate name expected error")
		}
	})

	t.Run("list", func(t *testing.T) {
		seedProject(t, db, "p0")
		list, err := db.ListProjects(ctx)
		if err != nil {
			t.Fatalf("ListProjects() error = %v", err)
		}
		if len(list) != 2 || list[0].ID != "p0" {
			t.Errorf("ListProjects() = %+v, want p0 first", list)
		}
	})
}

func TestSQLiteDatabase_FoldersAndFiles(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedProject(t, db, "p1")

	root := &model.Folder{ID: "f-orders", ProjectID: "p1", Name: "orders", CreatedAt: testTime}
	child := &model.Folder{ID: "f-rules", ProjectID: "p1", ParentID: "f-orders", Name: "rules", CreatedAt: testTime}
	for _, f := range []*model.Folder{root, child} {
		if err := db.CreateFolder(ctx, f); err != nil {
			t.Fatalf("CreateFolder() error = %v", err)
		}
	}

	t.Run("find folder by parent", func(t *testing.T) {
		got, err := db.FindFolder(ctx, "p1", "", "orders")
		if err != nil || got == nil || got.ID != "f-orders" {
			t.Fatalf("FindFolder(root) = %v, %v", got, err)
		}
		got, err = db.FindFolder(ctx, "p1", "f-orders", "rules")
		if err != nil || got == nil || got.ParentID != "f-orders" {
			t.Fatalf("FindFolder(child) = %v, %v", got, err)
		}
		got, err = db.FindFolder(ctx, "p1", "", "rules")
		if err != nil || got != nil {
			t.Errorf("FindFolder(rules at root) = %v, %v, want nil", got, err)
		}
	})

	t.Run("file lifecycle", func(t *testing.T) {
		f := &model.File{
			ID: "file-1", ProjectID: "p1", FolderID: "f-rules", Name: "risk", Type: "dmn",
			Content: "<v1/>", ContentHash: vcs.ContentHash("<v1/>"), CreatedAt: testTime, UpdatedAt: testTime,
		}
		if err := db.CreateFile(ctx, f); err != nil {
			t.Fatalf("CreateFile() error = %v", err)
		}

		got, err := db.FindFileByKey(ctx, "p1", f.Key())
		if err != nil || got == nil || got.ID != "file-1" {
			t.Fatalf("FindFileByKey() = %v, %v", got, err)
		}

		later := testTime.Add(time.Minute)
		if err := db.UpdateFileContent(ctx, "file-1", "<v2/>", vcs.ContentHash("<v2/>"), later); err != nil {
			t.Fatalf("UpdateFileContent() error = %v", err)
		}
		got, _ = db.FindFile(ctx, "file-1")
		if got.Content != "<v2/>" || !got.UpdatedAt.Equal(later) {
			t.Errorf("FindFile() = %+v, want updated content", got)
		}

		if err := db.DeleteFile(ctx, "file-1"); err != nil {
			t.Fatalf("DeleteFile() error = %v", err)
		}
		got, err = db.FindFile(ctx, "file-1")
		if err != nil || got != nil {
			t.Errorf("FindFile() after delete = %v, %v", got, err)
		}
	})

	t.Run("root files match on empty folder", func(t *testing.T) {
		f := &model.File{ID: "file-root", ProjectID: "p1", Name: "main", Type: "bpmn", Content: "", ContentHash: "", CreatedAt: testTime, UpdatedAt: testTime}
		if err := db.CreateFile(ctx, f); err != nil {
			t.Fatalf("CreateFile() error = %v", err)
		}
		got, err := db.FindFileByKey(ctx, "p1", model.FileKey{Name: "main", Type: "bpmn"})
		if err != nil || got == nil || got.FolderID != "" {
			t.Errorf("FindFileByKey(root) = %v, %v", got, err)
		}
	})
}

func TestSQLiteDatabase_Branches(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	_, main := seedProject(t, db, "p1")

	draft := &model.Branch{ID: "draft-alice", ProjectID: "p1", Name: "draft/alice", UserID: "alice", CreatedAt: testTime, UpdatedAt: testTime}
	if err := db.CreateBranch(ctx, draft); err != nil {
		t.Fatalf("CreateBranch() error = %v", err)
	}

	got, err := db.FindDefaultBranch(ctx, "p1")
	if err != nil || got == nil || got.ID != main.ID || got.UserID != "" || got.HeadCommitID != "" {
		t.Errorf("FindDefaultBranch() = %+v, %v", got, err)
	}
	got, err = db.FindUserBranch(ctx, "p1", "alice")
	if err != nil || got == nil || got.ID != "draft-alice" || got.IsDefault {
		t.Errorf("FindUserBranch() = %+v, %v", got, err)
	}
	got, err = db.FindUserBranch(ctx, "p1", "bob")
	if err != nil || got != nil {
		t.Errorf("FindUserBranch(bob) = %+v, %v, want nil", got, err)
	}
}

func TestSQLiteDatabase_WorkingFiles(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	_, main := seedProject(t, db, "p1")
	wf := seedWorkingFile(t, db, main, "wf-1", "order", "<v1/>")

	wf.Content = "<v2/>"
	wf.ContentHash = vcs.ContentHash("<v2/>")
	wf.IsDeleted = true
	wf.UpdatedAt = testTime.Add(time.Hour)
	if err := db.UpdateWorkingFile(ctx, wf); err != nil {
		t.Fatalf("UpdateWorkingFile() error = %v", err)
	}

	got, err := db.FindWorkingFileByKey(ctx, main.ID, wf.Key())
	if err != nil || got == nil {
		t.Fatalf("FindWorkingFileByKey() = %v, %v", got, err)
	}
	if got.Content != "<v2/>" || !got.IsDeleted || !got.UpdatedAt.Equal(wf.UpdatedAt) {
		t.Errorf("FindWorkingFileByKey() = %+v", got)
	}

	list, err := db.ListWorkingFiles(ctx, main.ID)
	if err != nil || len(list) != 1 {
		t.Errorf("ListWorkingFiles() = %v, %v", list, err)
	}

	if err := db.UpdateWorkingFile(ctx, &model.WorkingFile{ID: "missing"}); err == nil {
		t.Error("UpdateWorkingFile() of missing row expected error")
	}
}

func TestSQLiteDatabase_CreateCommit(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	_, main := seedProject(t, db, "p1")
	wf := seedWorkingFile(t, db, main, "wf-1", "order", "<v1/>")

	snap := func(id, commitID, change string) *model.FileSnapshot {
		return &model.FileSnapshot{
			ID: id, CommitID: commitID, WorkingFileID: wf.ID, Name: wf.Name, Type: wf.Type,
			Content: wf.Content, ContentHash: wf.ContentHash, ChangeType: change, CreatedAt: testTime,
		}
	}

	c1 := newCommit("c1", main, "")
	if err := db.CreateCommit(ctx, c1, []*model.FileSnapshot{snap("s1", "c1", model.ChangeAdded)}); err != nil {
		t.Fatalf("CreateCommit() error = %v", err)
	}
	c2 := newCommit("c2", main, "c1")
	if err := db.CreateCommit(ctx, c2, []*model.FileSnapshot{snap("s2", "c2", model.ChangeUnchanged)}); err != nil {
		t.Fatalf("CreateCommit() error = %v", err)
	}

	t.Run("versions are sequential per project", func(t *testing.T) {
		if c1.VersionNumber != 1 || c2.VersionNumber != 2 {
			t.Errorf("versions = %d, %d, want 1, 2", c1.VersionNumber, c2.VersionNumber)
		}
	})

	t.Run("branch head moves", func(t *testing.T) {
		b, _ := db.FindBranch(ctx, main.ID)
		if b.HeadCommitID != "c2" {
			t.Errorf("HeadCommitID = %q, want c2", b.HeadCommitID)
		}
	})

	t.Run("commits list newest first", func(t *testing.T) {
		list, err := db.ListCommitsByBranch(ctx, main.ID, 10)
		if err != nil {
			t.Fatalf("ListCommitsByBranch() error = %v", err)
		}
		if len(list) != 2 || list[0].ID != "c2" || list[0].ParentCommitID != "c1" {
			t.Errorf("ListCommitsByBranch() = %+v", list)
		}
		limited, _ := db.ListCommitsByBranch(ctx, main.ID, 1)
		if len(limited) != 1 {
			t.Errorf("len(limited) = %d, want 1", len(limited))
		}
	})

	t.Run("snapshots carry working file time", func(t *testing.T) {
		snaps, err := db.ListSnapshots(ctx, "c1")
		if err != nil || len(snaps) != 1 {
			t.Fatalf("ListSnapshots() = %v, %v", snaps, err)
		}
		if snaps[0].ChangeType != model.ChangeAdded || !snaps[0].WorkingFileUpdatedAt.Equal(testTime) {
			t.Errorf("snapshot = %+v", snaps[0])
		}
	})

	t.Run("last commit touching ignores unchanged", func(t *testing.T) {
		got, err := db.FindLastCommitTouching(ctx, "p1", wf.Key())
		if err != nil || got == nil || got.ID != "c1" {
			t.Errorf("FindLastCommitTouching() = %+v, %v, want c1", got, err)
		}
	})

	t.Run("missing branch rolls back", func(t *testing.T) {
		ghost := &model.Branch{ID: "ghost", ProjectID: "p1"}
		c := newCommit("c3", ghost, "")
		if err := db.CreateCommit(ctx, c, nil); err == nil {
			t.Fatal("CreateCommit() on missing branch expected error")
		}
		got, err := db.FindCommit(ctx, "c3")
		if err != nil || got != nil {
			t.Errorf("FindCommit(c3) = %+v, %v, want nil", got, err)
		}
	})

	t.Run("invalid change type rolls back", func(t *testing.T) {
		c := newCommit("c4", main, "c2")
		if err := db.CreateCommit(ctx, c, []*model.FileSnapshot{snap("s4", "c4", "renamed")}); err == nil {
			t.Fatal("CreateCommit() with invalid change type expected error")
		}
		b, _ := db.FindBranch(ctx, main.ID)
		if b.HeadCommitID != "c2" {
			t.Errorf("HeadCommitID = %q, want c2 after rollback", b.HeadCommitID)
		}
	})
}

func TestSQLiteDatabase_RecordFileVersion(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	_, main := seedProject(t, db, "p1")
	f := &model.File{ID: "file-1", ProjectID: "p1", Name: "order", Type: "bpmn", CreatedAt: testTime, UpdatedAt: testTime}
	if err := db.CreateFile(ctx, f); err != nil {
		t.Fatalf("CreateFile() error = %v", err)
	}
	for _, id := range []string{"c1", "c2"} {
		if err := db.CreateCommit(ctx, newCommit(id, main, ""), nil); err != nil {
			t.Fatalf("CreateCommit() error = %v", err)
		}
	}

	inserted, err := db.RecordFileVersion(ctx, "p1", "file-1", "c1", testTime)
	if err != nil || !inserted {
		t.Fatalf("RecordFileVersion(c1) = %v, %v", inserted, err)
	}
	inserted, err = db.RecordFileVersion(ctx, "p1", "file-1", "c1", testTime)
	if err != nil || inserted {
		t.Errorf("repeat RecordFileVersion(c1) = %v, %v, want no insert", inserted, err)
	}
	if _, err := db.RecordFileVersion(ctx, "p1", "file-1", "c2", testTime); err != nil {
		t.Fatalf("RecordFileVersion(c2) error = %v", err)
	}

	versions, err := db.ListFileVersions(ctx, "file-1")
	if err != nil {
		t.Fatalf("ListFileVersions() error = %v", err)
	}
	if len(versions) != 2 || versions[0].CommitID != "c2" || versions[0].VersionNumber != 2 || versions[1].VersionNumber != 1 {
		t.Errorf("ListFileVersions() = %+v", versions)
	}
}

func TestSQLiteDatabase_GitRepository(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedProject(t, db, "p1")

	t.Run("sync state needs a linked repository", func(t *testing.T) {
		if err := db.UpdateGitSyncState(ctx, "p1", vcs.GitSyncState{LastCommitSHA: "abc"}); err == nil {
			t.Error("UpdateGitSyncState() without repository expected error")
		}
	})

	repo := &model.GitRepository{
		ID: "r1", ProjectID: "p1", ProviderID: "local", RemoteURL: "file:///srv/git/acme.git",
		Namespace: "acme", RepositoryName: "flows", DefaultBranch: "main", CreatedAt: testTime, UpdatedAt: testTime,
	}
	if err := db.SaveGitRepository(ctx, repo); err != nil {
		t.Fatalf("SaveGitRepository() error = %v", err)
	}

	t.Run("fresh link has empty sync state", func(t *testing.T) {
		got, err := db.FindGitRepository(ctx, "p1")
		if err != nil || got == nil {
			t.Fatalf("FindGitRepository() = %v, %v", got, err)
		}
		if got.LastCommitSHA != "" || got.LastPushedManifest != "" || !got.LastSyncAt.IsZero() {
			t.Errorf("FindGitRepository() = %+v, want empty sync state", got)
		}
	})

	t.Run("update sync state", func(t *testing.T) {
		at := testTime.Add(time.Hour)
		state := vcs.GitSyncState{
			LastCommitSHA: "abc123", LastSyncAt: at, LastPushedManifest: `{"a.bpmn":"h"}`,
			LastPushedManifestUpdatedAt: at, LastPushedCommitID: "c9",
		}
		if err := db.UpdateGitSyncState(ctx, "p1", state); err != nil {
			t.Fatalf("UpdateGitSyncState() error = %v", err)
		}
		got, _ := db.FindGitRepository(ctx, "p1")
		if got.LastCommitSHA != "abc123" || got.LastPushedCommitID != "c9" || !got.LastSyncAt.Equal(at) {
			t.Errorf("FindGitRepository() = %+v", got)
		}
	})

	t.Run("save again upserts on project", func(t *testing.T) {
		repo.ID = "r2"
		repo.RepositoryName = "renamed"
		if err := db.SaveGitRepository(ctx, repo); err != nil {
			t.Fatalf("SaveGitRepository() error = %v", err)
		}
		got, _ := db.FindGitRepository(ctx, "p1")
		if got.ID != "r1" || got.RepositoryName != "renamed" {
			t.Errorf("FindGitRepository() = %+v, want r1 renamed", got)
		}
	})
}

func TestSQLiteDatabase_Operations(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	maxID, err := db.MaxOperationID(ctx)
	if err != nil || maxID != 0 {
		t.Fatalf("MaxOperationID() = %d, %v, want 0", maxID, err)
	}

	op1, err := db.CreateOperation(ctx, "push", "orders")
	if err != nil {
		t.Fatalf("CreateOperation() error = %v", err)
	}
	op2, _ := db.CreateOperation(ctx, "pull", "orders")
	if op2.ID <= op1.ID {
		t.Errorf("operation ids = %d, %d, want increasing", op1.ID, op2.ID)
	}
	if err := db.FinishOperation(ctx, op1.ID, "success"); err != nil {
		t.Fatalf("FinishOperation() error = %v", err)
	}

	ops, err := db.ListOperations(ctx, 10)
	if err != nil || len(ops) != 2 {
		t.Fatalf("ListOperations() = %v, %v", ops, err)
	}
	if ops[0].ID != op2.ID || ops[0].Status != "running" || !ops[0].FinishedAt.IsZero() {
		t.Errorf("ops[0] = %+v, want running pull", ops[0])
	}
	if ops[1].Status != "success" || ops[1].FinishedAt.IsZero() {
		t.Errorf("ops[1] = %+v, want finished push", ops[1])
	}

	maxID, _ = db.MaxOperationID(ctx)
	if maxID != op2.ID {
		t.Errorf("MaxOperationID() = %d, want %d", maxID, op2.ID)
	}
}

func TestSQLiteDatabase_FileMigrateAndBackup(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := NewSQLiteDatabase(filepath.Join(dir, "studio.db"))
	if err != nil {
		t.Fatalf("NewSQLiteDatabase() error = %v", err)
	}
	defer db.Close()

	if err := db.CheckMigrations(); err == nil {
		t.Error("CheckMigrations() on fresh file expected error")
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.CheckMigrations(); err != nil {
		t.Fatalf("CheckMigrations() after Migrate() error = %v", err)
	}
	seedProject(t, db, "p1")

	backupPath := filepath.Join(dir, "backup.db")
	if err := db.BackupTo(ctx, backupPath); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}

	restored, err := NewSQLiteDatabase(backupPath)
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	defer restored.Close()
	if err := restored.CheckMigrations(); err != nil {
		t.Errorf("backup CheckMigrations() error = %v", err)
	}
	p, err := restored.FindProject(ctx, "p1")
	if err != nil || p == nil {
		t.Errorf("backup FindProject() = %v, %v", p, err)
	}

	if err := db.BackupTo(ctx, filepath.Join(dir, "x.db?mode=ro")); err == nil {
		t.Error("BackupTo() with query string expected error")
	}
}
