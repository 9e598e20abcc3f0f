package vcs

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"starbase-go/internal/model"
)

// DefaultPushMessage is used when the caller supplies no commit message.
const DefaultPushMessage = "Sync from Starbase"

// PushOptions tunes a push. UserID enables the local mirror commit.
type PushOptions struct {
	UserID  string
	Branch  string // defaults to the repository's default branch
	Message string
}

// PushResult reports what a push sent.
type PushResult struct {
	Commit            *RemoteCommit // nil for a no-op push
	PushedFilesCount  int
	DeletionsCount    int
	SkippedFilesCount int
	TotalFilesCount   int
	UsedRemoteTree    bool
	ChangedPaths      []string
	DeletedPaths      []string
	MirrorCommitID    string
}

// PushToRemote pushes the BPMN/DMN files that changed since the last push, plus
// deletions, as one remote commit. The stored manifest is the baseline unless the
// remote head moved since the last sync, in which case the remote tree is used.
func (s *Service) PushToRemote(ctx context.Context, projectID, providerID, token string, opts PushOptions) (*PushResult, error) {
	if _, err := s.requireProject(ctx, projectID); err != nil {
		return nil, err
	}

	var result *PushResult
	err := s.withProjectLock(ctx, projectID, func() error {
		var err error
		result, err = s.push(ctx, projectID, providerID, token, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) push(ctx context.Context, projectID, providerID, token string, opts PushOptions) (*PushResult, error) {
	repo, err := s.linkedRepository(ctx, projectID)
	if err != nil {
		return nil, err
	}
	client, err := s.remoteClient(repo, providerID, token)
	if err != nil {
		return nil, err
	}
	ref := repoRef(repo)
	branch := syncBranch(repo, opts.Branch)

	previous, err := ParseManifest(repo.LastPushedManifest)
	if err != nil {
		s.logger.Warn("discarding unreadable manifest", "project", projectID, "error", err)
		previous = nil
	}

	branches, err := client.GetBranches(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("listing remote branches: %w", err)
	}
	var head *RemoteBranch
	for i := range branches {
		if branches[i].Name == branch {
			head = &branches[i]
			break
		}
	}

	if previous != nil && (head == nil || head.SHA != repo.LastCommitSHA) {
		headSHA := ""
		if head != nil {
			headSHA = head.SHA
		}
		s.logger.Warn("remote drift detected, comparing against remote tree",
			"project", projectID, "branch", branch, "expected", repo.LastCommitSHA, "actual", headSHA)
		previous = nil
	}

	files, err := s.projectFiles(ctx, projectID, true)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNoFilesToPush
	}

	current := make(Manifest, len(files))
	contents := make(map[string]string, len(files))
	for _, f := range files {
		current[f.Path] = ContentHash(f.Content)
		contents[f.Path] = f.Content
	}

	diff := current.Diff(previous)
	result := &PushResult{
		TotalFilesCount:   len(files),
		SkippedFilesCount: len(files) - len(diff.Changed),
		ChangedPaths:      diff.Changed,
		DeletedPaths:      diff.Deleted,
	}

	if previous == nil {
		result.UsedRemoteTree = true
		if head != nil {
			deleted, err := s.remoteDeletions(ctx, client, ref, branch, current)
			if err != nil {
				return nil, err
			}
			result.DeletedPaths = deleted
		}
	}

	if len(result.ChangedPaths) == 0 && len(result.DeletedPaths) == 0 {
		s.logger.Info("nothing to push", "project", projectID, "branch", branch, "files", len(files))
		return result, nil
	}

	message := opts.Message
	if message == "" {
		message = DefaultPushMessage
	}

	pushFiles := make([]RemoteFile, 0, len(result.ChangedPaths))
	for _, p := range result.ChangedPaths {
		pushFiles = append(pushFiles, RemoteFile{Path: p, Content: contents[p]})
	}

	commit, err := client.PushFiles(ctx, PushRequest{
		Repo:         ref,
		Branch:       branch,
		Files:        pushFiles,
		Message:      message,
		Deletions:    result.DeletedPaths,
		CreateBranch: head == nil,
	})
	if err != nil {
		return nil, fmt.Errorf("pushing to remote: %w", err)
	}
	result.Commit = commit
	result.PushedFilesCount = len(pushFiles)
	result.DeletionsCount = len(result.DeletedPaths)

	encoded, err := current.Encode()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	state := GitSyncState{
		LastCommitSHA:               commit.SHA,
		LastSyncAt:                  now,
		LastPushedManifest:          encoded,
		LastPushedManifestUpdatedAt: now,
		LastPushedCommitID:          repo.LastPushedCommitID,
	}

	if opts.UserID != "" {
		mirrorMessage := message
		if !isReservedMessage(mirrorMessage) {
			mirrorMessage = DefaultPushMessage + ": " + mirrorMessage
		}
		info, err := s.CommitCurrentState(ctx, projectID, opts.UserID, mirrorMessage, model.SourceSyncPush)
		if err != nil {
			s.reportFailure("mirror-commit", projectID, err)
		} else {
			result.MirrorCommitID = info.ID
			state.LastPushedCommitID = info.ID
		}
	}

	if err := s.database.UpdateGitSyncState(ctx, projectID, state); err != nil {
		return nil, fmt.Errorf("saving sync state: %w", err)
	}

	s.logger.Info("pushed to remote",
		"project", projectID,
		"branch", branch,
		"sha", shortSHA(commit.SHA),
		"pushed", result.PushedFilesCount,
		"deleted", result.DeletionsCount,
		"remote_tree", result.UsedRemoteTree,
	)
	return result, nil
}

// remoteDeletions lists the BPMN/DMN blobs of the remote branch that are absent locally.
func (s *Service) remoteDeletions(ctx context.Context, client Provider, ref RepoRef, branch string, current Manifest) ([]string, error) {
	tree, err := client.GetTree(ctx, ref, branch)
	if err != nil {
		return nil, fmt.Errorf("reading remote tree: %w", err)
	}

	var deleted []string
	for _, entry := range tree {
		if entry.Type != EntryBlob {
			continue
		}
		ext := strings.TrimPrefix(strings.ToLower(path.Ext(entry.Path)), ".")
		if !IsSyncType(ext) {
			continue
		}
		if _, ok := current[entry.Path]; !ok {
			deleted = append(deleted, entry.Path)
		}
	}
	sort.Strings(deleted)
	return deleted, nil
}
