package vcs

import (
	"context"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"starbase-go/internal/model"
)

// DefaultPullPatterns select the files fetched when the caller passes none.
var DefaultPullPatterns = []string{"**/*.bpmn", "**/*.dmn"}

// PullOptions tunes a pull.
type PullOptions struct {
	Branch   string   // defaults to the repository's default branch
	Patterns []string // defaults to DefaultPullPatterns
}

// PullResult reports what a pull changed locally.
type PullResult struct {
	FilesCount   int    // files created or changed
	SkippedCount int    // files identical to the local copy
	CommitID     string // "" when nothing changed
	RemoteCommit *RemoteCommit
}

// PullFromRemote materializes the remote branch's matching files into the project's
// main branch and live files, creating folders as needed. A single sync-pull commit
// is created only when at least one file changed.
func (s *Service) PullFromRemote(ctx context.Context, projectID, userID, providerID, token string, opts PullOptions) (*PullResult, error) {
	if _, err := s.requireProject(ctx, projectID); err != nil {
		return nil, err
	}

	var result *PullResult
	err := s.withProjectLock(ctx, projectID, func() error {
		var err error
		result, err = s.pull(ctx, projectID, userID, providerID, token, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) pull(ctx context.Context, projectID, userID, providerID, token string, opts PullOptions) (*PullResult, error) {
	repo, err := s.linkedRepository(ctx, projectID)
	if err != nil {
		return nil, err
	}
	client, err := s.remoteClient(repo, providerID, token)
	if err != nil {
		return nil, err
	}
	branch := syncBranch(repo, opts.Branch)
	patterns := opts.Patterns
	if len(patterns) == 0 {
		patterns = DefaultPullPatterns
	}

	resp, err := client.PullFiles(ctx, PullRequest{Repo: repoRef(repo), Branch: branch, Patterns: patterns})
	if err != nil {
		return nil, fmt.Errorf("pulling from remote: %w", err)
	}

	main, err := s.mainBranch(ctx, projectID)
	if err != nil {
		return nil, err
	}

	result := &PullResult{RemoteCommit: &resp.Commit}
	resolver := s.newFolderResolver(projectID)
	pulled := make(Manifest, len(resp.Files))

	for _, rf := range resp.Files {
		dirs, name, fileType, err := SplitFilePath(rf.Path)
		if err != nil {
			s.logger.Warn("skipping remote file", "project", projectID, "path", rf.Path, "error", err)
			continue
		}
		hash := ContentHash(rf.Content)
		pulled[rf.Path] = hash

		folderID, err := resolver.resolve(ctx, dirs)
		if err != nil {
			return nil, err
		}
		key := model.FileKey{Name: name, Type: fileType, FolderID: folderID}

		file, err := s.database.FindFileByKey(ctx, projectID, key)
		if err != nil {
			return nil, fmt.Errorf("finding file: %w", err)
		}
		// The live file is what a push sends, so it alone decides whether this is new.
		// A main working file left behind by a draft save is caught up without a commit.
		if file != nil && file.Content == rf.Content {
			if _, err := s.upsertWorkingFile(ctx, main, key, rf.Content, hash); err != nil {
				return nil, err
			}
			result.SkippedCount++
			continue
		}

		if _, err := s.upsertWorkingFile(ctx, main, key, rf.Content, hash); err != nil {
			return nil, err
		}
		if _, _, err := s.upsertLiveFile(ctx, projectID, key, rf.Content, hash); err != nil {
			return nil, err
		}
		result.FilesCount++
	}

	if result.FilesCount > 0 {
		message := resp.Commit.Message
		if message == "" {
			message = fmt.Sprintf("Pull from remote (%s@%s)", branch, shortSHA(resp.Commit.SHA))
		}
		info, err := s.commitBranch(ctx, main, userID, message, CommitOptions{IsRemote: true, Source: model.SourceSyncPull})
		if err != nil {
			return nil, err
		}
		result.CommitID = info.ID
	}

	state := GitSyncState{
		LastCommitSHA:               resp.Commit.SHA,
		LastSyncAt:                  s.clock.Now(),
		LastPushedManifest:          repo.LastPushedManifest,
		LastPushedManifestUpdatedAt: repo.LastPushedManifestUpdatedAt,
		LastPushedCommitID:          repo.LastPushedCommitID,
	}
	previous, err := ParseManifest(repo.LastPushedManifest)
	if err == nil && previous != nil {
		merged := mergePulledManifest(previous, pulled, patterns)
		encoded, err := merged.Encode()
		if err != nil {
			return nil, err
		}
		state.LastPushedManifest = encoded
		state.LastPushedManifestUpdatedAt = state.LastSyncAt
	}
	if err := s.database.UpdateGitSyncState(ctx, projectID, state); err != nil {
		return nil, fmt.Errorf("saving sync state: %w", err)
	}

	s.logger.Info("pulled from remote",
		"project", projectID,
		"branch", branch,
		"sha", shortSHA(resp.Commit.SHA),
		"changed", result.FilesCount,
		"skipped", result.SkippedCount,
	)
	return result, nil
}

// mergePulledManifest brings a stored manifest in line with a pull: pulled paths take
// their remote hash, and paths covered by the patterns but absent remotely are dropped.
func mergePulledManifest(previous, pulled Manifest, patterns []string) Manifest {
	merged := make(Manifest, len(previous)+len(pulled))
	for p, h := range previous {
		if _, ok := pulled[p]; !ok && matchesAny(patterns, p) {
			continue
		}
		merged[p] = h
	}
	for p, h := range pulled {
		merged[p] = h
	}
	return merged
}

func matchesAny(patterns []string, p string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, p); err == nil && ok {
			return true
		}
	}
	return false
}
