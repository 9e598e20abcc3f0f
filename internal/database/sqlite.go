package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"starbase-go/internal/database/migrations"
	"starbase-go/internal/model"
	"starbase-go/internal/vcs"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements vcs.Database using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens a SQLite database.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// OpenConnection opens and configures a SQLite connection pool.
// PRAGMAs are passed in the DSN so every pooled connection gets them.
// An in-memory database is limited to one connection, since each connection
// would otherwise see its own empty database.
func OpenConnection(path string) (*sql.DB, error) {
	dsn := path + "?_foreign_keys=1&_busy_timeout=5000&_txlock=immediate"
	inMemory := path == ":memory:"
	if inMemory {
		dsn = "file::memory:?_foreign_keys=1&_busy_timeout=5000"
	} else {
		dsn += "&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if inMemory {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// DB exposes the underlying pool for lockers and tools sharing the connection.
func (s *SQLiteDatabase) DB() *sql.DB {
	return s.db
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func timeOf(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}

// Project operations

const projectColumns = `id, name, created_at`

func scanProject(r rowScanner) (*model.Project, error) {
	var p model.Project
	if err := r.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteDatabase) CreateProject(ctx context.Context, project *model.Project) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, created_at) VALUES (?, ?, ?)`,
		project.ID, project.Name, project.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating project: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindProject(ctx context.Context, id string) (*model.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding project: %w", err)
	}
	return p, nil
}

func (s *SQLiteDatabase) FindProjectByName(ctx context.Context, name string) (*model.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding project by name: %w", err)
	}
	return p, nil
}

func (s *SQLiteDatabase) ListProjects(ctx context.Context) ([]*model.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var result []*model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// Folder operations

const folderColumns = `id, project_id, parent_id, name, created_at`

func scanFolder(r rowScanner) (*model.Folder, error) {
	var f model.Folder
	var parentID sql.NullString
	if err := r.Scan(&f.ID, &f.ProjectID, &parentID, &f.Name, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.ParentID = parentID.String
	return &f, nil
}

func (s *SQLiteDatabase) ListFolders(ctx context.Context, projectID string) ([]*model.Folder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+folderColumns+` FROM folders WHERE project_id = ? ORDER BY name`, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}
	defer rows.Close()

	var result []*model.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning folder: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) FindFolder(ctx context.Context, projectID, parentID, name string) (*model.Folder, error) {
	f, err := scanFolder(s.db.QueryRowContext(ctx,
		`SELECT `+folderColumns+` FROM folders
		 WHERE project_id = ? AND COALESCE(parent_id, '') = ? AND name = ?`,
		projectID, parentID, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding folder: %w", err)
	}
	return f, nil
}

func (s *SQLiteDatabase) CreateFolder(ctx context.Context, folder *model.Folder) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO folders (id, project_id, parent_id, name, created_at) VALUES (?, ?, ?, ?, ?)`,
		folder.ID, folder.ProjectID, nullString(folder.ParentID), folder.Name, folder.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating folder: %w", err)
	}
	return nil
}

// Live file operations

const fileColumns = `id, project_id, folder_id, name, type, content, content_hash, created_at, updated_at`

func scanFile(r rowScanner) (*model.File, error) {
	var f model.File
	var folderID sql.NullString
	if err := r.Scan(&f.ID, &f.ProjectID, &folderID, &f.Name, &f.Type,
		&f.Content, &f.ContentHash, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	f.FolderID = folderID.String
	return &f, nil
}

func (s *SQLiteDatabase) ListFiles(ctx context.Context, projectID string) ([]*model.File, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE project_id = ? ORDER BY name, type`, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	defer rows.Close()

	var result []*model.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning file: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) FindFile(ctx context.Context, id string) (*model.File, error) {
	f, err := scanFile(s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding file: %w", err)
	}
	return f, nil
}

func (s *SQLiteDatabase) FindFileByKey(ctx context.Context, projectID string, key model.FileKey) (*model.File, error) {
	f, err := scanFile(s.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files
		 WHERE project_id = ? AND name = ? AND type = ? AND COALESCE(folder_id, '') = ?`,
		projectID, key.Name, key.Type, key.FolderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding file by key: %w", err)
	}
	return f, nil
}

func (s *SQLiteDatabase) CreateFile(ctx context.Context, file *model.File) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO files (`+fileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		file.ID, file.ProjectID, nullString(file.FolderID), file.Name, file.Type,
		file.Content, file.ContentHash, file.CreatedAt, file.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) UpdateFileContent(ctx context.Context, id, content, contentHash string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE files SET content = ?, content_hash = ?, updated_at = ? WHERE id = ?`,
		content, contentHash, at, id)
	if err != nil {
		return fmt.Errorf("updating file content: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteFile(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

// Branch operations

const branchColumns = `id, project_id, name, user_id, head_commit_id, is_default, created_at, updated_at`

func scanBranch(r rowScanner) (*model.Branch, error) {
	var b model.Branch
	var userID, head sql.NullString
	if err := r.Scan(&b.ID, &b.ProjectID, &b.Name, &userID, &head, &b.IsDefault, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.UserID = userID.String
	b.HeadCommitID = head.String
	return &b, nil
}

func (s *SQLiteDatabase) findBranchWhere(ctx context.Context, where string, args ...any) (*model.Branch, error) {
	b, err := scanBranch(s.db.QueryRowContext(ctx, `SELECT `+branchColumns+` FROM branches WHERE `+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *SQLiteDatabase) FindBranch(ctx context.Context, id string) (*model.Branch, error) {
	b, err := s.findBranchWhere(ctx, `id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("finding branch: %w", err)
	}
	return b, nil
}

func (s *SQLiteDatabase) FindDefaultBranch(ctx context.Context, projectID string) (*model.Branch, error) {
	b, err := s.findBranchWhere(ctx, `project_id = ? AND is_default = 1`, projectID)
	if err != nil {
		return nil, fmt.Errorf("finding default branch: %w", err)
	}
	return b, nil
}

func (s *SQLiteDatabase) FindUserBranch(ctx context.Context, projectID, userID string) (*model.Branch, error) {
	b, err := s.findBranchWhere(ctx, `project_id = ? AND user_id = ?`, projectID, userID)
	if err != nil {
		return nil, fmt.Errorf("finding user branch: %w", err)
	}
	return b, nil
}

func (s *SQLiteDatabase) CreateBranch(ctx context.Context, branch *model.Branch) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO branches (`+branchColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		branch.ID, branch.ProjectID, branch.Name, nullString(branch.UserID), nullString(branch.HeadCommitID),
		branch.IsDefault, branch.CreatedAt, branch.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating branch: %w", err)
	}
	return nil
}

// Working file operations

const workingFileColumns = `id, branch_id, project_id, folder_id, name, type, content, content_hash, is_deleted, created_at, updated_at`

func scanWorkingFile(r rowScanner) (*model.WorkingFile, error) {
	var w model.WorkingFile
	var folderID sql.NullString
	if err := r.Scan(&w.ID, &w.BranchID, &w.ProjectID, &folderID, &w.Name, &w.Type,
		&w.Content, &w.ContentHash, &w.IsDeleted, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.FolderID = folderID.String
	return &w, nil
}

func (s *SQLiteDatabase) ListWorkingFiles(ctx context.Context, branchID string) ([]*model.WorkingFile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+workingFileColumns+` FROM working_files WHERE branch_id = ? ORDER BY id`, branchID)
	if err != nil {
		return nil, fmt.Errorf("listing working files: %w", err)
	}
	defer rows.Close()

	var result []*model.WorkingFile
	for rows.Next() {
		w, err := scanWorkingFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning working file: %w", err)
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) FindWorkingFileByKey(ctx context.Context, branchID string, key model.FileKey) (*model.WorkingFile, error) {
	w, err := scanWorkingFile(s.db.QueryRowContext(ctx,
		`SELECT `+workingFileColumns+` FROM working_files
		 WHERE branch_id = ? AND name = ? AND type = ? AND COALESCE(folder_id, '') = ?`,
		branchID, key.Name, key.Type, key.FolderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding working file: %w", err)
	}
	return w, nil
}

func (s *SQLiteDatabase) CreateWorkingFile(ctx context.Context, wf *model.WorkingFile) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO working_files (`+workingFileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		wf.ID, wf.BranchID, wf.ProjectID, nullString(wf.FolderID), wf.Name, wf.Type,
		wf.Content, wf.ContentHash, wf.IsDeleted, wf.CreatedAt, wf.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating working file: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) UpdateWorkingFile(ctx context.Context, wf *model.WorkingFile) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE working_files SET content = ?, content_hash = ?, is_deleted = ?, updated_at = ? WHERE id = ?`,
		wf.Content, wf.ContentHash, wf.IsDeleted, wf.UpdatedAt, wf.ID)
	if err != nil {
		return fmt.Errorf("updating working file: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("updating working file: %s does not exist", wf.ID)
	}
	return nil
}

// Commit operations

const commitColumns = `id, project_id, branch_id, parent_commit_id, user_id, message, hash, version_number, source, is_remote, created_at`

func scanCommit(r rowScanner) (*model.Commit, error) {
	var c model.Commit
	var parent, userID sql.NullString
	if err := r.Scan(&c.ID, &c.ProjectID, &c.BranchID, &parent, &userID, &c.Message, &c.Hash,
		&c.VersionNumber, &c.Source, &c.IsRemote, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.ParentCommitID = parent.String
	c.UserID = userID.String
	return &c, nil
}

// CreateCommit allocates the next project version, inserts the commit and its
// snapshots, and moves the branch head, all in one transaction.
func (s *SQLiteDatabase) CreateCommit(ctx context.Context, commit *model.Commit, snapshots []*model.FileSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var version int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version_number), 0) + 1 FROM commits WHERE project_id = ?`,
		commit.ProjectID).Scan(&version); err != nil {
		return fmt.Errorf("allocating version number: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO commits (`+commitColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		commit.ID, commit.ProjectID, commit.BranchID, nullString(commit.ParentCommitID), nullString(commit.UserID),
		commit.Message, commit.Hash, version, commit.Source, commit.IsRemote, commit.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting commit: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO file_snapshots (`+snapshotColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing snapshot insert: %w", err)
	}
	defer stmt.Close()

	for _, snap := range snapshots {
		_, err := stmt.ExecContext(ctx,
			snap.ID, commit.ID, snap.WorkingFileID, nullString(snap.FolderID), snap.Name, snap.Type,
			snap.Content, snap.ContentHash, snap.ChangeType, snap.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting snapshot %s: %w", snap.Name, err)
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE branches SET head_commit_id = ?, updated_at = ? WHERE id = ?`,
		commit.ID, commit.CreatedAt, commit.BranchID)
	if err != nil {
		return fmt.Errorf("moving branch head: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("moving branch head: branch %s does not exist", commit.BranchID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	commit.VersionNumber = version
	return nil
}

func (s *SQLiteDatabase) FindCommit(ctx context.Context, id string) (*model.Commit, error) {
	c, err := scanCommit(s.db.QueryRowContext(ctx, `SELECT `+commitColumns+` FROM commits WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding commit: %w", err)
	}
	return c, nil
}

func (s *SQLiteDatabase) ListCommitsByBranch(ctx context.Context, branchID string, limit int) ([]*model.Commit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+commitColumns+` FROM commits WHERE branch_id = ? ORDER BY version_number DESC LIMIT ?`,
		branchID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing commits: %w", err)
	}
	defer rows.Close()

	var result []*model.Commit
	for rows.Next() {
		c, err := scanCommit(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning commit: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

const snapshotColumns = `id, commit_id, working_file_id, folder_id, name, type, content, content_hash, change_type, created_at`

func (s *SQLiteDatabase) ListSnapshots(ctx context.Context, commitID string) ([]*model.FileSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.commit_id, s.working_file_id, s.folder_id, s.name, s.type, s.content,
		        s.content_hash, s.change_type, s.created_at, w.updated_at
		 FROM file_snapshots s
		 LEFT JOIN working_files w ON w.id = s.working_file_id
		 WHERE s.commit_id = ?
		 ORDER BY s.name, s.type, s.id`, commitID)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var result []*model.FileSnapshot
	for rows.Next() {
		var snap model.FileSnapshot
		var folderID sql.NullString
		var workingUpdatedAt sql.NullTime
		if err := rows.Scan(&snap.ID, &snap.CommitID, &snap.WorkingFileID, &folderID, &snap.Name, &snap.Type,
			&snap.Content, &snap.ContentHash, &snap.ChangeType, &snap.CreatedAt, &workingUpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snap.FolderID = folderID.String
		snap.WorkingFileUpdatedAt = timeOf(workingUpdatedAt)
		result = append(result, &snap)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) FindLastCommitTouching(ctx context.Context, projectID string, key model.FileKey) (*model.Commit, error) {
	c, err := scanCommit(s.db.QueryRowContext(ctx,
		`SELECT c.id, c.project_id, c.branch_id, c.parent_commit_id, c.user_id, c.message, c.hash,
		        c.version_number, c.source, c.is_remote, c.created_at
		 FROM commits c
		 JOIN file_snapshots s ON s.commit_id = c.id
		 WHERE c.project_id = ? AND s.name = ? AND s.type = ? AND COALESCE(s.folder_id, '') = ?
		   AND s.change_type != ?
		 ORDER BY c.version_number DESC
		 LIMIT 1`,
		projectID, key.Name, key.Type, key.FolderID, model.ChangeUnchanged))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding last commit for file: %w", err)
	}
	return c, nil
}

// File version operations

// RecordFileVersion computes and inserts the next version in a single statement.
// An existing (file, commit) row is left untouched.
func (s *SQLiteDatabase) RecordFileVersion(ctx context.Context, projectID, fileID, commitID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO file_commit_versions (project_id, file_id, commit_id, version_number, created_at)
		 SELECT ?, ?, ?, COALESCE(MAX(version_number), 0) + 1, ?
		 FROM file_commit_versions WHERE file_id = ?
		 ON CONFLICT (file_id, commit_id) DO NOTHING`,
		projectID, fileID, commitID, at, fileID)
	if err != nil {
		return false, fmt.Errorf("recording file version: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("recording file version: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteDatabase) ListFileVersions(ctx context.Context, fileID string) ([]*model.FileCommitVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT project_id, file_id, commit_id, version_number, created_at
		 FROM file_commit_versions WHERE file_id = ? ORDER BY version_number DESC`, fileID)
	if err != nil {
		return nil, fmt.Errorf("listing file versions: %w", err)
	}
	defer rows.Close()

	var result []*model.FileCommitVersion
	for rows.Next() {
		var v model.FileCommitVersion
		if err := rows.Scan(&v.ProjectID, &v.FileID, &v.CommitID, &v.VersionNumber, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning file version: %w", err)
		}
		result = append(result, &v)
	}
	return result, rows.Err()
}

// Git repository operations

const gitRepositoryColumns = `id, project_id, provider_id, remote_url, namespace, repository_name, default_branch,
	last_commit_sha, last_sync_at, last_pushed_manifest, last_pushed_manifest_updated_at, last_pushed_commit_id,
	created_at, updated_at`

func (s *SQLiteDatabase) FindGitRepository(ctx context.Context, projectID string) (*model.GitRepository, error) {
	var r model.GitRepository
	var sha, manifest, pushedCommit sql.NullString
	var syncAt, manifestAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT `+gitRepositoryColumns+` FROM git_repositories WHERE project_id = ?`, projectID).
		Scan(&r.ID, &r.ProjectID, &r.ProviderID, &r.RemoteURL, &r.Namespace, &r.RepositoryName, &r.DefaultBranch,
			&sha, &syncAt, &manifest, &manifestAt, &pushedCommit, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding git repository: %w", err)
	}
	r.LastCommitSHA = sha.String
	r.LastSyncAt = timeOf(syncAt)
	r.LastPushedManifest = manifest.String
	r.LastPushedManifestUpdatedAt = timeOf(manifestAt)
	r.LastPushedCommitID = pushedCommit.String
	return &r, nil
}

func (s *SQLiteDatabase) SaveGitRepository(ctx context.Context, repo *model.GitRepository) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO git_repositories (`+gitRepositoryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (project_id) DO UPDATE SET
		   provider_id = excluded.provider_id,
		   remote_url = excluded.remote_url,
		   namespace = excluded.namespace,
		   repository_name = excluded.repository_name,
		   default_branch = excluded.default_branch,
		   last_commit_sha = excluded.last_commit_sha,
		   last_sync_at = excluded.last_sync_at,
		   last_pushed_manifest = excluded.last_pushed_manifest,
		   last_pushed_manifest_updated_at = excluded.last_pushed_manifest_updated_at,
		   last_pushed_commit_id = excluded.last_pushed_commit_id,
		   updated_at = excluded.updated_at`,
		repo.ID, repo.ProjectID, repo.ProviderID, repo.RemoteURL, repo.Namespace, repo.RepositoryName,
		repo.DefaultBranch, nullString(repo.LastCommitSHA), nullTime(repo.LastSyncAt),
		nullString(repo.LastPushedManifest), nullTime(repo.LastPushedManifestUpdatedAt),
		nullString(repo.LastPushedCommitID), repo.CreatedAt, repo.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving git repository: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) UpdateGitSyncState(ctx context.Context, projectID string, state vcs.GitSyncState) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE git_repositories SET
		   last_commit_sha = ?,
		   last_sync_at = ?,
		   last_pushed_manifest = ?,
		   last_pushed_manifest_updated_at = ?,
		   last_pushed_commit_id = ?,
		   updated_at = ?
		 WHERE project_id = ?`,
		nullString(state.LastCommitSHA), nullTime(state.LastSyncAt), nullString(state.LastPushedManifest),
		nullTime(state.LastPushedManifestUpdatedAt), nullString(state.LastPushedCommitID), state.LastSyncAt,
		projectID)
	if err != nil {
		return fmt.Errorf("updating git sync state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("updating git sync state: project %s is not linked", projectID)
	}
	return nil
}

// Operation tracking

func (s *SQLiteDatabase) CreateOperation(ctx context.Context, operation, parameters string) (*model.Operation, error) {
	op := &model.Operation{
		StartedAt:  time.Now().UTC(),
		Operation:  operation,
		Parameters: parameters,
		Status:     "running",
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO operations (started_at, operation, parameters, status) VALUES (?, ?, ?, ?)`,
		op.StartedAt, op.Operation, op.Parameters, op.Status)
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	if op.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	return op, nil
}

func (s *SQLiteDatabase) FinishOperation(ctx context.Context, id int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE operations SET finished_at = ?, status = ? WHERE id = ?`,
		time.Now().UTC(), status, id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListOperations(ctx context.Context, limit int) ([]*model.Operation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, operation, parameters, status
		 FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var result []*model.Operation
	for rows.Next() {
		var op model.Operation
		var finished sql.NullTime
		if err := rows.Scan(&op.ID, &op.StartedAt, &finished, &op.Operation, &op.Parameters, &op.Status); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		op.FinishedAt = timeOf(finished)
		result = append(result, &op)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) MaxOperationID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM operations`).Scan(&id); err != nil {
		return 0, fmt.Errorf("getting max operation ID: %w", err)
	}
	return id, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Migrate applies pending migrations.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(ctx context.Context, destPath string) error {
	if strings.ContainsRune(destPath, '?') {
		return fmt.Errorf("backing up database: invalid destination %q", destPath)
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteDatabase implements vcs.Database interface
var _ vcs.Database = (*SQLiteDatabase)(nil)
