package vcs

import (
	"context"
	"time"

	"starbase-go/internal/model"
)

// Database is the persistence port of the VCS service.
// Find* methods return (nil, nil) when the row does not exist.
type Database interface {
	// Project operations

	CreateProject(ctx context.Context, project *model.Project) error
	FindProject(ctx context.Context, id string) (*model.Project, error)
	FindProjectByName(ctx context.Context, name string) (*model.Project, error)
	ListProjects(ctx context.Context) ([]*model.Project, error)

	// Folder operations

	// ListFolders returns every folder of a project.
	ListFolders(ctx context.Context, projectID string) ([]*model.Folder, error)

	// FindFolder returns the child of parentID ("" = root) with the given name.
	FindFolder(ctx context.Context, projectID, parentID, name string) (*model.Folder, error)
	CreateFolder(ctx context.Context, folder *model.Folder) error

	// Live file operations

	ListFiles(ctx context.Context, projectID string) ([]*model.File, error)
	FindFile(ctx context.Context, id string) (*model.File, error)

	// FindFileByKey resolves a live file by (name, type, folder) within a project.
	FindFileByKey(ctx context.Context, projectID string, key model.FileKey) (*model.File, error)
	CreateFile(ctx context.Context, file *model.File) error
	UpdateFileContent(ctx context.Context, id, content, contentHash string, at time.Time) error
	DeleteFile(ctx context.Context, id string) error

	// Branch operations

	FindBranch(ctx context.Context, id string) (*model.Branch, error)
	FindDefaultBranch(ctx context.Context, projectID string) (*model.Branch, error)
	FindUserBranch(ctx context.Context, projectID, userID string) (*model.Branch, error)
	CreateBranch(ctx context.Context, branch *model.Branch) error

	// Working file operations

	ListWorkingFiles(ctx context.Context, branchID string) ([]*model.WorkingFile, error)
	FindWorkingFileByKey(ctx context.Context, branchID string, key model.FileKey) (*model.WorkingFile, error)
	CreateWorkingFile(ctx context.Context, wf *model.WorkingFile) error

	// UpdateWorkingFile overwrites content, hash, deleted marker and updated_at.
	UpdateWorkingFile(ctx context.Context, wf *model.WorkingFile) error

	// Commit operations

	// CreateCommit atomically allocates the next project version number, inserts the
	// commit and its snapshots, and moves the branch head to the new commit.
	// commit.VersionNumber is set on success.
	CreateCommit(ctx context.Context, commit *model.Commit, snapshots []*model.FileSnapshot) error
	FindCommit(ctx context.Context, id string) (*model.Commit, error)

	// ListCommitsByBranch returns commits newest first.
	ListCommitsByBranch(ctx context.Context, branchID string, limit int) ([]*model.Commit, error)

	// ListSnapshots returns the snapshots of a commit, joined with working-file updated_at.
	ListSnapshots(ctx context.Context, commitID string) ([]*model.FileSnapshot, error)

	// FindLastCommitTouching returns the newest project commit with a snapshot that
	// matches key and whose change type is not unchanged.
	FindLastCommitTouching(ctx context.Context, projectID string, key model.FileKey) (*model.Commit, error)

	// File version operations

	// RecordFileVersion inserts max(version)+1 for the file at commitID.
	// Returns false if a row for (fileID, commitID) already existed.
	RecordFileVersion(ctx context.Context, projectID, fileID, commitID string, at time.Time) (bool, error)
	ListFileVersions(ctx context.Context, fileID string) ([]*model.FileCommitVersion, error)

	// Git repository operations

	FindGitRepository(ctx context.Context, projectID string) (*model.GitRepository, error)

	// SaveGitRepository inserts or replaces the repository link of a project.
	SaveGitRepository(ctx context.Context, repo *model.GitRepository) error

	// UpdateGitSyncState writes the sync fields of a project's repository row in one statement.
	UpdateGitSyncState(ctx context.Context, projectID string, state GitSyncState) error

	// Close closes the database connection.
	Close() error
}

// GitSyncState is the set of repository fields written at the end of a push or pull.
type GitSyncState struct {
	LastCommitSHA               string
	LastSyncAt                  time.Time
	LastPushedManifest          string
	LastPushedManifestUpdatedAt time.Time
	LastPushedCommitID          string
}
