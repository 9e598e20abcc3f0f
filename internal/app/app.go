package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"starbase-go/internal/archive"
	"starbase-go/internal/config"
	"starbase-go/internal/credential"
	"starbase-go/internal/database"
	"starbase-go/internal/fs"
	"starbase-go/internal/lock"
	"starbase-go/internal/model"
	"starbase-go/internal/provider"
	"starbase-go/internal/vcs"
)

// ArchiveItemDB is the archive item name of database snapshots.
const ArchiveItemDB = "db"

// StarbaseApp is the application layer between the CLI and vcs.Service.
// It constructs all dependencies from config, exposes high-level operations
// that accept project names and paths, and manages the DB lifecycle on Close.
type StarbaseApp struct {
	cfg         *config.Config
	db          *database.SQLiteDatabase
	archive     archive.Store
	credentials credential.Store
	files       vcs.FileSource
	locker      vcs.Locker
	service     *vcs.Service
	op          *Operation
	logFile     *os.File

	mu       sync.Mutex
	failures []string
}

// InitDatabase creates the database described by cfg and applies all migrations.
func InitDatabase(cfg *config.Config) error {
	if cfg.Database.Type == "sqlite" {
		if err := os.MkdirAll(cfg.Database.DataDir, 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}
	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.InstanceID)
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}

// NewStarbaseApp creates a fully wired StarbaseApp from the given config.
// operation identifies the CLI command being run (e.g. "Push", "Commit").
// The caller must call Close when done.
func NewStarbaseApp(ctx context.Context, cfg *config.Config, operation, parameters string) (*StarbaseApp, error) {
	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	// An in-memory database starts empty on every run.
	if cfg.Database.Type == "memory" {
		err = db.Migrate()
	} else {
		err = db.CheckMigrations()
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	var store archive.Store
	if len(cfg.Archives) > 0 {
		store, err = archive.NewStoreFromConfig(ctx, cfg.Archives[0])
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating archive: %w", err)
		}
		if err := checkArchiveVersion(ctx, store, db, cfg.InstanceID); err != nil {
			db.Close()
			return nil, err
		}
	}

	creds, err := credential.NewStoreFromConfig(cfg.Credentials)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating credential store: %w", err)
	}

	locker, err := lock.NewLockerFromConfig(cfg.Lock, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating locker: %w", err)
	}

	registry, err := provider.NewRegistryFromConfig(cfg.Providers, provider.Author{
		Name:  cfg.Sync.AuthorName,
		Email: cfg.Sync.AuthorEmail,
	})
	if err != nil {
		closeLocker(locker)
		db.Close()
		return nil, fmt.Errorf("creating providers: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		registry.Close()
		closeLocker(locker)
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	a := &StarbaseApp{
		cfg:         cfg,
		db:          db,
		archive:     store,
		credentials: creds,
		files:       fs.NewOSFileSource(cfg.Filesystem.Ignore),
		locker:      locker,
		op:          NewOperation(operation, parameters),
		logFile:     logFile,
	}

	svc := vcs.NewService(db, registry, locker, &slogAdapter{l: logger}, vcs.RealClock{}, vcs.UUIDGenerator{})
	svc.SetAutoCommit(cfg.Sync.AutoCommit)
	svc.SetLeaseRenewal(time.Duration(cfg.Lock.TTLSeconds) * time.Second / 3)
	svc.OnFailure(a.recordFailure)
	a.service = svc

	return a, nil
}

// checkArchiveVersion refuses to run on a database older than its archived snapshot.
func checkArchiveVersion(ctx context.Context, store archive.Store, db *database.SQLiteDatabase, instanceID string) error {
	remoteVersion, err := store.Version(ctx, instanceID, ArchiveItemDB)
	if err != nil {
		return fmt.Errorf("checking archived database version: %w", err)
	}
	localMax, err := db.MaxOperationID(ctx)
	if err != nil {
		return fmt.Errorf("checking local database version: %w", err)
	}
	if remoteVersion > localMax {
		return fmt.Errorf("local database is behind archive (local=%d, archive=%d): restore from archive or re-initialize", localMax, remoteVersion)
	}
	return nil
}

func closeLocker(l vcs.Locker) {
	if c, ok := l.(io.Closer); ok {
		c.Close()
	}
}

func (a *StarbaseApp) recordFailure(task, projectID string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures = append(a.failures, fmt.Sprintf("%s failed for project %s: %v", task, projectID, err))
}

// Failures returns the best-effort background failures seen so far.
// Call it after Wait to include every task.
func (a *StarbaseApp) Failures() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.failures...)
}

// Wait blocks until background commits have finished.
func (a *StarbaseApp) Wait() {
	a.service.Wait()
}

// Config returns the configuration the app was built from.
func (a *StarbaseApp) Config() *config.Config {
	return a.cfg
}

// persistOperation saves the operation to the database, giving it an auto-increment ID.
// This should only be called for DB-mutating commands.
func (a *StarbaseApp) persistOperation(ctx context.Context) error {
	if a.op.Persisted() {
		return nil // already persisted
	}
	dbOp, err := a.db.CreateOperation(ctx, a.op.Operation, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// mutate persists the operation, runs fn, and records its outcome.
func (a *StarbaseApp) mutate(ctx context.Context, fn func() error) error {
	if err := a.persistOperation(ctx); err != nil {
		return err
	}
	return a.op.Record(fn())
}

func (a *StarbaseApp) projectID(ctx context.Context, idOrName string) (string, error) {
	p, err := a.service.ResolveProject(ctx, idOrName)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

// userID returns the configured user for draft work, or an error if none is set.
func (a *StarbaseApp) userID() (string, error) {
	if a.cfg.Sync.UserID == "" {
		return "", &vcs.ValidationError{Message: "sync.user_id must be set in the config for draft branches"}
	}
	return a.cfg.Sync.UserID, nil
}

// branch returns the user's draft branch when draft is set, otherwise main.
func (a *StarbaseApp) branch(ctx context.Context, projectID string, draft bool) (*model.Branch, string, error) {
	if !draft {
		b, err := a.service.MainBranch(ctx, projectID)
		return b, a.cfg.Sync.UserID, err
	}
	userID, err := a.userID()
	if err != nil {
		return nil, "", err
	}
	b, err := a.service.EnsureDraftBranch(ctx, projectID, userID)
	return b, userID, err
}

// CreateProject creates a project with its main branch.
func (a *StarbaseApp) CreateProject(ctx context.Context, name string) (*model.Project, error) {
	var project *model.Project
	err := a.mutate(ctx, func() error {
		var err error
		project, err = a.service.CreateProject(ctx, name)
		return err
	})
	return project, err
}

// ListProjects returns every project.
func (a *StarbaseApp) ListProjects(ctx context.Context) ([]*model.Project, error) {
	return a.service.ListProjects(ctx)
}

// SaveFile stores the content of localPath at projectPath. With draft set the
// edit lands on the configured user's draft branch.
func (a *StarbaseApp) SaveFile(ctx context.Context, project, projectPath, localPath string, draft bool) (*model.File, error) {
	content, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", localPath, err)
	}
	if projectPath == "" {
		projectPath = filepath.ToSlash(filepath.Base(localPath))
	}

	var file *model.File
	err = a.mutate(ctx, func() error {
		projectID, err := a.projectID(ctx, project)
		if err != nil {
			return err
		}
		req := vcs.SaveFileRequest{ProjectID: projectID, Path: projectPath, Content: string(content)}
		if draft {
			if req.UserID, err = a.userID(); err != nil {
				return err
			}
		}
		file, err = a.service.SaveFile(ctx, req)
		return err
	})
	return file, err
}

// ListFiles returns the live files of a project.
func (a *StarbaseApp) ListFiles(ctx context.Context, project string) ([]vcs.ProjectFile, error) {
	projectID, err := a.projectID(ctx, project)
	if err != nil {
		return nil, err
	}
	return a.service.ListFiles(ctx, projectID)
}

// DeleteFile removes the live file at projectPath.
func (a *StarbaseApp) DeleteFile(ctx context.Context, project, projectPath string) error {
	return a.mutate(ctx, func() error {
		projectID, err := a.projectID(ctx, project)
		if err != nil {
			return err
		}
		file, err := a.service.FindFileByPath(ctx, projectID, projectPath)
		if err != nil {
			return err
		}
		return a.service.DeleteFile(ctx, projectID, file.ID)
	})
}

// Import saves every BPMN/DMN file below dir into the project's main branch.
func (a *StarbaseApp) Import(ctx context.Context, project, dir string) (*vcs.ImportResult, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	var result *vcs.ImportResult
	err = a.mutate(ctx, func() error {
		projectID, err := a.projectID(ctx, project)
		if err != nil {
			return err
		}
		result, err = a.service.ImportDirectory(ctx, projectID, a.cfg.Sync.UserID, a.files, abs)
		return err
	})
	return result, err
}

// Commit snapshots the main branch, or the user's draft branch when draft is set.
func (a *StarbaseApp) Commit(ctx context.Context, project, message string, draft bool) (*vcs.CommitInfo, error) {
	var info *vcs.CommitInfo
	err := a.mutate(ctx, func() error {
		projectID, err := a.projectID(ctx, project)
		if err != nil {
			return err
		}
		branch, userID, err := a.branch(ctx, projectID, draft)
		if err != nil {
			return err
		}
		info, err = a.service.Commit(ctx, branch.ID, userID, message, vcs.CommitOptions{})
		return err
	})
	return info, err
}

// Log returns the newest commits of the main or draft branch.
func (a *StarbaseApp) Log(ctx context.Context, project string, limit int, draft bool) ([]*vcs.CommitInfo, error) {
	projectID, err := a.projectID(ctx, project)
	if err != nil {
		return nil, err
	}
	var branch *model.Branch
	if draft {
		userID, err := a.userID()
		if err != nil {
			return nil, err
		}
		// Reading history must not create the draft.
		branch, err = a.db.FindUserBranch(ctx, projectID, userID)
		if err != nil {
			return nil, err
		}
		if branch == nil {
			return nil, &vcs.NotFoundError{Resource: "draft branch", Key: userID}
		}
	} else if branch, err = a.service.MainBranch(ctx, projectID); err != nil {
		return nil, err
	}
	return a.service.GetCommits(ctx, branch.ID, limit)
}

// Show returns a commit and its deduplicated snapshots.
func (a *StarbaseApp) Show(ctx context.Context, commitID string) (*vcs.CommitInfo, []*model.FileSnapshot, error) {
	info, err := a.service.GetCommit(ctx, commitID)
	if err != nil {
		return nil, nil, err
	}
	snaps, err := a.service.GetCommitSnapshots(ctx, commitID)
	if err != nil {
		return nil, nil, err
	}
	return info, snaps, nil
}

// Diff compares two commits. An empty from diffs against the commit's parent.
func (a *StarbaseApp) Diff(ctx context.Context, from, to string) ([]vcs.FileDiff, error) {
	if from == "" {
		info, err := a.service.GetCommit(ctx, to)
		if err != nil {
			return nil, err
		}
		from = info.ParentCommitID
	}
	return a.service.DiffCommits(ctx, from, to)
}

// FileHistory is the version record of one live file.
type FileHistory struct {
	File       *model.File
	Versions   []*model.FileCommitVersion
	LastCommit *vcs.CommitInfo // nil if no commit changed the file
}

// GetFileHistory returns the per-file versions and the last commit that touched the file.
func (a *StarbaseApp) GetFileHistory(ctx context.Context, project, projectPath string) (*FileHistory, error) {
	projectID, err := a.projectID(ctx, project)
	if err != nil {
		return nil, err
	}
	file, err := a.service.FindFileByPath(ctx, projectID, projectPath)
	if err != nil {
		return nil, err
	}
	versions, err := a.service.GetFileVersions(ctx, file.ID)
	if err != nil {
		return nil, err
	}
	last, err := a.service.GetLastCommitForFile(ctx, file.ID)
	if err != nil {
		return nil, err
	}
	return &FileHistory{File: file, Versions: versions, LastCommit: last}, nil
}

// LinkRemote links a project to a remote repository. An empty provider uses the first configured one.
func (a *StarbaseApp) LinkRemote(ctx context.Context, project string, opts vcs.LinkOptions) (*model.GitRepository, error) {
	if opts.ProviderID == "" && len(a.cfg.Providers) > 0 {
		opts.ProviderID = a.cfg.Providers[0].ID
	}
	var repo *model.GitRepository
	err := a.mutate(ctx, func() error {
		projectID, err := a.projectID(ctx, project)
		if err != nil {
			return err
		}
		repo, err = a.service.LinkRemote(ctx, projectID, opts)
		return err
	})
	return repo, err
}

// GetRemote returns the repository link of a project.
func (a *StarbaseApp) GetRemote(ctx context.Context, project string) (*model.GitRepository, error) {
	projectID, err := a.projectID(ctx, project)
	if err != nil {
		return nil, err
	}
	return a.service.GetRemote(ctx, projectID)
}

// Push sends the project's changed files to its linked remote.
func (a *StarbaseApp) Push(ctx context.Context, project, token string, opts vcs.PushOptions) (*vcs.PushResult, error) {
	if opts.UserID == "" {
		opts.UserID = a.cfg.Sync.UserID
	}
	var result *vcs.PushResult
	err := a.mutate(ctx, func() error {
		projectID, err := a.projectID(ctx, project)
		if err != nil {
			return err
		}
		result, err = a.service.PushToRemote(ctx, projectID, "", token, opts)
		return err
	})
	return result, err
}

// Pull materializes the remote files of a project's linked repository.
func (a *StarbaseApp) Pull(ctx context.Context, project, token string, opts vcs.PullOptions) (*vcs.PullResult, error) {
	var result *vcs.PullResult
	err := a.mutate(ctx, func() error {
		projectID, err := a.projectID(ctx, project)
		if err != nil {
			return err
		}
		result, err = a.service.PullFromRemote(ctx, projectID, a.cfg.Sync.UserID, "", token, opts)
		return err
	})
	return result, err
}

// StartDraft returns the configured user's draft branch, creating it from main.
func (a *StarbaseApp) StartDraft(ctx context.Context, project string) (*model.Branch, error) {
	var branch *model.Branch
	err := a.mutate(ctx, func() error {
		projectID, err := a.projectID(ctx, project)
		if err != nil {
			return err
		}
		branch, _, err = a.branch(ctx, projectID, true)
		return err
	})
	return branch, err
}

// MergeDraft applies the configured user's draft to main.
func (a *StarbaseApp) MergeDraft(ctx context.Context, project, message string) (*vcs.CommitInfo, error) {
	var info *vcs.CommitInfo
	err := a.mutate(ctx, func() error {
		projectID, err := a.projectID(ctx, project)
		if err != nil {
			return err
		}
		userID, err := a.userID()
		if err != nil {
			return err
		}
		info, err = a.service.MergeDraft(ctx, projectID, userID, message)
		return err
	})
	return info, err
}

// CredentialsConfigured reports whether the token store exists, so callers
// know whether to prompt for a passphrase.
func (a *StarbaseApp) CredentialsConfigured() bool {
	if c, ok := a.credentials.(interface{ IsConfigured() bool }); ok {
		return c.IsConfigured()
	}
	return true
}

// ProviderToken returns the stored token for the project's linked provider,
// or "" when none is stored.
func (a *StarbaseApp) ProviderToken(ctx context.Context, project, passphrase string) (string, error) {
	repo, err := a.GetRemote(ctx, project)
	if err != nil {
		return "", err
	}
	token, err := a.credentials.Get(repo.ProviderID, passphrase)
	if errors.Is(err, credential.ErrNoToken) {
		return "", nil
	}
	return token, err
}

// SetToken stores a provider access token.
func (a *StarbaseApp) SetToken(providerID, token, passphrase string) error {
	if _, ok := a.cfg.Provider(providerID); !ok {
		return &vcs.NotFoundError{Resource: "provider", Key: providerID}
	}
	return a.credentials.Set(providerID, token, passphrase)
}

// ListTokens returns the provider ids that have a stored token.
func (a *StarbaseApp) ListTokens(passphrase string) ([]string, error) {
	return a.credentials.List(passphrase)
}

// DeleteToken removes a provider access token.
func (a *StarbaseApp) DeleteToken(providerID, passphrase string) error {
	return a.credentials.Delete(providerID, passphrase)
}

// GetHistory returns the most recent recorded operations.
func (a *StarbaseApp) GetHistory(ctx context.Context, limit int) ([]*model.Operation, error) {
	return a.db.ListOperations(ctx, limit)
}

// Close waits for background work, finalizes the operation and closes all resources.
// For persisted operations: finishes the operation record, snapshots the DB, and uploads it to the archive.
// For non-persisted operations: just closes the database.
func (a *StarbaseApp) Close() error {
	ctx := context.Background()
	var errs []error

	if err := a.service.Close(); err != nil {
		errs = append(errs, err)
	}
	closeLocker(a.locker)

	var snapshot string
	if a.op.Persisted() {
		if err := a.db.FinishOperation(ctx, a.op.ID, a.op.Status); err != nil {
			errs = append(errs, fmt.Errorf("finishing operation: %w", err))
		}
		if a.archive != nil {
			path, err := a.snapshotDatabase(ctx)
			if err != nil {
				errs = append(errs, err)
			}
			snapshot = path
		}
	}

	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}

	if snapshot != "" {
		if err := a.uploadSnapshot(ctx, snapshot, a.op.ID); err != nil {
			errs = append(errs, err)
		}
	}

	if a.logFile != nil {
		a.logFile.Close()
	}
	return errors.Join(errs...)
}

// snapshotDatabase copies the database into a temp file. VACUUM INTO refuses an existing file.
func (a *StarbaseApp) snapshotDatabase(ctx context.Context) (string, error) {
	dir, err := os.MkdirTemp("", "starbase-db-backup-*")
	if err != nil {
		return "", fmt.Errorf("creating temp dir for db backup: %w", err)
	}
	path := filepath.Join(dir, "snapshot.db")
	if err := a.db.BackupTo(ctx, path); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("backing up database: %w", err)
	}
	return path, nil
}

// uploadSnapshot uploads the DB snapshot to the archive with version = operation ID.
func (a *StarbaseApp) uploadSnapshot(ctx context.Context, path string, version int64) error {
	defer os.RemoveAll(filepath.Dir(path))

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening db backup for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat db backup: %w", err)
	}

	if err := a.archive.Put(ctx, a.cfg.InstanceID, ArchiveItemDB, f, info.Size(), version); err != nil {
		return fmt.Errorf("uploading database snapshot: %w", err)
	}
	return nil
}
