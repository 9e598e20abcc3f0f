package model

import "time"

// Change types recorded on file snapshots.
const (
	ChangeAdded     = "added"
	ChangeModified  = "modified"
	ChangeUnchanged = "unchanged"
	ChangeDeleted   = "deleted"
)

// Commit sources.
const (
	SourceManual   = "manual"
	SourceSyncPush = "sync-push"
	SourceSyncPull = "sync-pull"
	SourceMerge    = "merge"
	SourceImport   = "import"
)

// Project groups process-definition files, branches and a remote link.
type Project struct {
	ID        string // UUID
	Name      string
	CreatedAt time.Time
}

// Folder is one node of a project's folder tree. ParentID is "" for top-level folders.
type Folder struct {
	ID        string
	ProjectID string
	ParentID  string
	Name      string
	CreatedAt time.Time
}

// File is the live, shared copy of a process definition.
// Name has no extension; Type is the lower-case extension ("bpmn", "dmn").
type File struct {
	ID          string
	ProjectID   string
	FolderID    string // "" = project root
	Name        string
	Type        string
	Content     string
	ContentHash string // SHA-256 hex
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Key returns the logical identity used for history matching.
func (f *File) Key() FileKey {
	return FileKey{Name: f.Name, Type: f.Type, FolderID: f.FolderID}
}

// FileKey identifies a file slot by name, type and folder.
// History follows the slot: a rename or move produces a new key.
type FileKey struct {
	Name     string
	Type     string
	FolderID string
}

// Branch is a line of history within a project.
// UserID is "" for the shared main branch; HeadCommitID is "" before the first commit.
type Branch struct {
	ID           string
	ProjectID    string
	Name         string
	UserID       string
	HeadCommitID string
	IsDefault    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// WorkingFile is the mutable state of one file within one branch.
type WorkingFile struct {
	ID          string
	BranchID    string
	ProjectID   string
	FolderID    string
	Name        string
	Type        string
	Content     string
	ContentHash string
	IsDeleted   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Key returns the logical identity of the working file.
func (w *WorkingFile) Key() FileKey {
	return FileKey{Name: w.Name, Type: w.Type, FolderID: w.FolderID}
}

// Commit is an immutable point in a branch's linear history.
type Commit struct {
	ID             string
	ProjectID      string
	BranchID       string
	ParentCommitID string
	UserID         string
	Message        string
	Hash           string
	VersionNumber  int64 // monotonic per project
	Source         string
	IsRemote       bool
	CreatedAt      time.Time
}

// FileSnapshot is the immutable copy of one working file taken at commit time.
type FileSnapshot struct {
	ID            string
	CommitID      string
	WorkingFileID string
	FolderID      string
	Name          string
	Type          string
	Content       string
	ContentHash   string
	ChangeType    string
	CreatedAt     time.Time

	// WorkingFileUpdatedAt is joined from working_files when listing; zero if the row is gone.
	WorkingFileUpdatedAt time.Time
}

// Key returns the logical identity of the snapshot.
func (s *FileSnapshot) Key() FileKey {
	return FileKey{Name: s.Name, Type: s.Type, FolderID: s.FolderID}
}

// FileCommitVersion is the per-file version counter entry.
type FileCommitVersion struct {
	ProjectID     string
	FileID        string
	CommitID      string
	VersionNumber int64 // monotonic per file
	CreatedAt     time.Time
}

// GitRepository links a project to a remote repository and holds its sync state.
type GitRepository struct {
	ID                          string
	ProjectID                   string
	ProviderID                  string
	RemoteURL                   string
	Namespace                   string
	RepositoryName              string
	DefaultBranch               string
	LastCommitSHA               string
	LastSyncAt                  time.Time // zero if never synced
	LastPushedManifest          string    // JSON object path -> content hash; "" if none
	LastPushedManifestUpdatedAt time.Time
	LastPushedCommitID          string
	CreatedAt                   time.Time
	UpdatedAt                   time.Time
}

// Operation is a recorded CLI operation that mutated the database.
type Operation struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Operation  string
	Parameters string
	Status     string
}
