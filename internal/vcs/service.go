package vcs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"starbase-go/internal/model"
)

// MainBranchName is the name of every project's default branch.
const MainBranchName = "main"

// FailureHook observes best-effort work that failed after the primary operation succeeded.
// task is "mirror-commit" or "auto-commit".
type FailureHook func(task, projectID string, err error)

// Service is the VCS orchestration layer: commits, history lookups and remote sync.
// Construct it with NewService and call Close when done; it owns no global state.
type Service struct {
	database   Database
	providers  ProviderRegistry
	locker     Locker
	logger     Logger
	clock      Clock
	idgen      IDGenerator
	autoCommit bool

	leaseRenewal time.Duration

	hookMu    sync.RWMutex
	onFailure FailureHook

	background sync.WaitGroup
}

// NewService creates a Service with the provided dependencies.
func NewService(database Database, providers ProviderRegistry, locker Locker, logger Logger, clock Clock, idgen IDGenerator) *Service {
	return &Service{
		database:  database,
		providers: providers,
		locker:    locker,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,

		leaseRenewal: DefaultLeaseRenewal,
	}
}

// SetAutoCommit enables a background commit of the main branch after every SaveFile.
func (s *Service) SetAutoCommit(enabled bool) {
	s.autoCommit = enabled
}

// SetLeaseRenewal sets how often the project lease is renewed during a sync.
// Non-positive values keep the current interval.
func (s *Service) SetLeaseRenewal(every time.Duration) {
	if every > 0 {
		s.leaseRenewal = every
	}
}

// OnFailure registers a hook for failures of best-effort work.
func (s *Service) OnFailure(hook FailureHook) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.onFailure = hook
}

// reportFailure logs a best-effort failure and forwards it to the hook. It never fails the caller.
func (s *Service) reportFailure(task, projectID string, err error) {
	s.logger.Error("best-effort task failed", "task", task, "project", projectID, "error", err)

	s.hookMu.RLock()
	hook := s.onFailure
	s.hookMu.RUnlock()
	if hook != nil {
		hook(task, projectID, err)
	}
}

// runBackground runs fn detached from the caller's cancellation. Failures are reported, not returned.
func (s *Service) runBackground(ctx context.Context, task, projectID string, fn func(ctx context.Context) error) {
	bgCtx := context.WithoutCancel(ctx)
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		if err := fn(bgCtx); err != nil {
			s.reportFailure(task, projectID, err)
		}
	}()
}

// Wait blocks until all background tasks have finished.
func (s *Service) Wait() {
	s.background.Wait()
}

// Close waits for background tasks and releases cached provider clients.
// The database is owned by the caller.
func (s *Service) Close() error {
	s.Wait()
	if s.providers != nil {
		if err := s.providers.Close(); err != nil {
			return fmt.Errorf("closing provider clients: %w", err)
		}
	}
	return nil
}

// CreateProject creates a project together with its default main branch.
func (s *Service) CreateProject(ctx context.Context, name string) (*model.Project, error) {
	if name == "" {
		return nil, &ValidationError{Message: "project name is required"}
	}

	existing, err := s.database.FindProjectByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("checking for existing project: %w", err)
	}
	if existing != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("project %q already exists", name)}
	}

	project := &model.Project{
		ID:        s.idgen.New(),
		Name:      name,
		CreatedAt: s.clock.Now(),
	}
	if err := s.database.CreateProject(ctx, project); err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}

	if _, err := s.mainBranch(ctx, project.ID); err != nil {
		return nil, err
	}

	s.logger.Info("project created", "project", project.ID, "name", name)
	return project, nil
}

// ResolveProject finds a project by id, falling back to its name.
func (s *Service) ResolveProject(ctx context.Context, idOrName string) (*model.Project, error) {
	project, err := s.database.FindProject(ctx, idOrName)
	if err != nil {
		return nil, fmt.Errorf("finding project: %w", err)
	}
	if project == nil {
		project, err = s.database.FindProjectByName(ctx, idOrName)
		if err != nil {
			return nil, fmt.Errorf("finding project by name: %w", err)
		}
	}
	if project == nil {
		return nil, notFound("project", idOrName)
	}
	return project, nil
}

// ListProjects returns all projects.
func (s *Service) ListProjects(ctx context.Context) ([]*model.Project, error) {
	projects, err := s.database.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	return projects, nil
}

func (s *Service) requireProject(ctx context.Context, projectID string) (*model.Project, error) {
	project, err := s.database.FindProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("finding project: %w", err)
	}
	if project == nil {
		return nil, notFound("project", projectID)
	}
	return project, nil
}

// mainBranch returns the project's default branch, creating it on first use.
func (s *Service) mainBranch(ctx context.Context, projectID string) (*model.Branch, error) {
	branch, err := s.database.FindDefaultBranch(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("finding main branch: %w", err)
	}
	if branch != nil {
		return branch, nil
	}

	now := s.clock.Now()
	branch = &model.Branch{
		ID:        s.idgen.New(),
		ProjectID: projectID,
		Name:      MainBranchName,
		IsDefault: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.database.CreateBranch(ctx, branch); err != nil {
		return nil, fmt.Errorf("creating main branch: %w", err)
	}
	return branch, nil
}

// MainBranch returns the default branch of a project.
func (s *Service) MainBranch(ctx context.Context, projectID string) (*model.Branch, error) {
	if _, err := s.requireProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.mainBranch(ctx, projectID)
}

// EnsureDraftBranch returns the user's personal draft branch, creating it from the
// main branch's working files if it does not exist yet.
func (s *Service) EnsureDraftBranch(ctx context.Context, projectID, userID string) (*model.Branch, error) {
	if userID == "" {
		return nil, &ValidationError{Message: "user id is required for a draft branch"}
	}
	if _, err := s.requireProject(ctx, projectID); err != nil {
		return nil, err
	}

	draft, err := s.database.FindUserBranch(ctx, projectID, userID)
	if err != nil {
		return nil, fmt.Errorf("finding draft branch: %w", err)
	}
	if draft != nil {
		return draft, nil
	}

	main, err := s.mainBranch(ctx, projectID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	draft = &model.Branch{
		ID:        s.idgen.New(),
		ProjectID: projectID,
		Name:      "draft/" + userID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.database.CreateBranch(ctx, draft); err != nil {
		return nil, fmt.Errorf("creating draft branch: %w", err)
	}

	mainFiles, err := s.database.ListWorkingFiles(ctx, main.ID)
	if err != nil {
		return nil, fmt.Errorf("listing main working files: %w", err)
	}
	for _, wf := range mainFiles {
		if wf.IsDeleted {
			continue
		}
		copied := &model.WorkingFile{
			ID:          s.idgen.New(),
			BranchID:    draft.ID,
			ProjectID:   projectID,
			FolderID:    wf.FolderID,
			Name:        wf.Name,
			Type:        wf.Type,
			Content:     wf.Content,
			ContentHash: wf.ContentHash,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.database.CreateWorkingFile(ctx, copied); err != nil {
			return nil, fmt.Errorf("seeding draft working file %s: %w", wf.Name, err)
		}
	}

	s.logger.Info("draft branch created", "project", projectID, "user", userID)
	return draft, nil
}
