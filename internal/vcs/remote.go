package vcs

import (
	"context"
	"fmt"

	"starbase-go/internal/model"
)

// LinkOptions describes the remote repository a project syncs with.
type LinkOptions struct {
	ProviderID     string
	RemoteURL      string
	Namespace      string
	RepositoryName string
	DefaultBranch  string // defaults to "main"
}

// LinkRemote links a project to a remote repository, replacing any previous link.
// Relinking to a different URL or provider discards the stored sync state.
func (s *Service) LinkRemote(ctx context.Context, projectID string, opts LinkOptions) (*model.GitRepository, error) {
	if _, err := s.requireProject(ctx, projectID); err != nil {
		return nil, err
	}
	if opts.ProviderID == "" {
		return nil, &ValidationError{Message: "provider id is required"}
	}
	if opts.RemoteURL == "" && opts.RepositoryName == "" {
		return nil, &ValidationError{Message: "remote url or repository name is required"}
	}
	if opts.DefaultBranch == "" {
		opts.DefaultBranch = MainBranchName
	}

	existing, err := s.database.FindGitRepository(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("finding git repository: %w", err)
	}

	now := s.clock.Now()
	repo := &model.GitRepository{
		ID:             s.idgen.New(),
		ProjectID:      projectID,
		ProviderID:     opts.ProviderID,
		RemoteURL:      opts.RemoteURL,
		Namespace:      opts.Namespace,
		RepositoryName: opts.RepositoryName,
		DefaultBranch:  opts.DefaultBranch,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if existing != nil {
		repo.ID = existing.ID
		repo.CreatedAt = existing.CreatedAt
		if existing.RemoteURL == opts.RemoteURL && existing.ProviderID == opts.ProviderID &&
			existing.RepositoryName == opts.RepositoryName && existing.Namespace == opts.Namespace {
			repo.LastCommitSHA = existing.LastCommitSHA
			repo.LastSyncAt = existing.LastSyncAt
			repo.LastPushedManifest = existing.LastPushedManifest
			repo.LastPushedManifestUpdatedAt = existing.LastPushedManifestUpdatedAt
			repo.LastPushedCommitID = existing.LastPushedCommitID
		}
	}

	if err := s.database.SaveGitRepository(ctx, repo); err != nil {
		return nil, fmt.Errorf("saving git repository: %w", err)
	}
	s.logger.Info("remote linked", "project", projectID, "provider", opts.ProviderID, "url", opts.RemoteURL)
	return repo, nil
}

// GetRemote returns the project's repository link, or ErrNotLinked.
func (s *Service) GetRemote(ctx context.Context, projectID string) (*model.GitRepository, error) {
	if _, err := s.requireProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.linkedRepository(ctx, projectID)
}

func (s *Service) linkedRepository(ctx context.Context, projectID string) (*model.GitRepository, error) {
	repo, err := s.database.FindGitRepository(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("finding git repository: %w", err)
	}
	if repo == nil {
		return nil, ErrNotLinked
	}
	return repo, nil
}

// remoteClient resolves the provider client for a sync. An empty providerID uses the linked one.
func (s *Service) remoteClient(repo *model.GitRepository, providerID, token string) (Provider, error) {
	if providerID == "" {
		providerID = repo.ProviderID
	}
	client, err := s.providers.Client(providerID, token)
	if err != nil {
		return nil, fmt.Errorf("resolving provider %s: %w", providerID, err)
	}
	return client, nil
}

func repoRef(repo *model.GitRepository) RepoRef {
	return RepoRef{URL: repo.RemoteURL, Namespace: repo.Namespace, Name: repo.RepositoryName}
}

func syncBranch(repo *model.GitRepository, requested string) string {
	if requested != "" {
		return requested
	}
	if repo.DefaultBranch != "" {
		return repo.DefaultBranch
	}
	return MainBranchName
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
