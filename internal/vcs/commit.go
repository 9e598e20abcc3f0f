package vcs

import (
	"context"
	"fmt"
	"strings"

	"starbase-go/internal/model"
)

// DefaultCommitLimit bounds GetCommits when the caller passes no limit.
const DefaultCommitLimit = 50

// Commit messages starting with one of these prefixes (case-insensitive) mirror
// remote or merge activity and do not bump per-file version counters.
var reservedMessagePrefixes = []string{
	"sync from starbase",
	"merge from draft",
	"pull from remote",
}

func isReservedMessage(message string) bool {
	m := strings.ToLower(strings.TrimSpace(message))
	for _, prefix := range reservedMessagePrefixes {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

// CommitOptions tags a commit's provenance.
type CommitOptions struct {
	IsRemote bool
	Source   string // defaults to model.SourceManual
}

// ChangeCounts summarizes the change types of a commit's snapshots.
type ChangeCounts struct {
	Added     int
	Modified  int
	Unchanged int
	Deleted   int
}

func (c *ChangeCounts) add(changeType string) {
	switch changeType {
	case model.ChangeAdded:
		c.Added++
	case model.ChangeModified:
		c.Modified++
	case model.ChangeUnchanged:
		c.Unchanged++
	case model.ChangeDeleted:
		c.Deleted++
	}
}

// CommitInfo is a commit as returned to callers. Changes is only filled by Commit.
type CommitInfo struct {
	model.Commit
	Changes ChangeCounts
}

// Commit snapshots every working file of the branch into a new commit.
func (s *Service) Commit(ctx context.Context, branchID, userID, message string, opts CommitOptions) (*CommitInfo, error) {
	branch, err := s.database.FindBranch(ctx, branchID)
	if err != nil {
		return nil, fmt.Errorf("finding branch: %w", err)
	}
	if branch == nil {
		return nil, notFound("branch", branchID)
	}
	return s.commitBranch(ctx, branch, userID, message, opts)
}

func (s *Service) commitBranch(ctx context.Context, branch *model.Branch, userID, message string, opts CommitOptions) (*CommitInfo, error) {
	if opts.Source == "" {
		opts.Source = model.SourceManual
	}

	working, err := s.database.ListWorkingFiles(ctx, branch.ID)
	if err != nil {
		return nil, fmt.Errorf("listing working files: %w", err)
	}

	prior := map[string]*model.FileSnapshot{}
	if branch.HeadCommitID != "" {
		snapshots, err := s.database.ListSnapshots(ctx, branch.HeadCommitID)
		if err != nil {
			return nil, fmt.Errorf("listing head snapshots: %w", err)
		}
		for _, snap := range snapshots {
			prior[snap.WorkingFileID] = snap
		}
	}

	now := s.clock.Now()
	info := &CommitInfo{
		Commit: model.Commit{
			ID:             s.idgen.New(),
			ProjectID:      branch.ProjectID,
			BranchID:       branch.ID,
			ParentCommitID: branch.HeadCommitID,
			UserID:         userID,
			Message:        message,
			Source:         opts.Source,
			IsRemote:       opts.IsRemote,
			CreatedAt:      now,
		},
	}

	snapshots := make([]*model.FileSnapshot, 0, len(working))
	hashes := make([]fileHash, 0, len(working))
	for _, wf := range working {
		snap := &model.FileSnapshot{
			ID:            s.idgen.New(),
			CommitID:      info.ID,
			WorkingFileID: wf.ID,
			FolderID:      wf.FolderID,
			Name:          wf.Name,
			Type:          wf.Type,
			Content:       wf.Content,
			ContentHash:   wf.ContentHash,
			CreatedAt:     now,
		}

		prev := prior[wf.ID]
		switch {
		case wf.IsDeleted:
			snap.ChangeType = model.ChangeDeleted
		case branch.HeadCommitID == "" || prev == nil || prev.ChangeType == model.ChangeDeleted:
			snap.ChangeType = model.ChangeAdded
		case prev.ContentHash == wf.ContentHash && prev.Name == wf.Name &&
			prev.Type == wf.Type && prev.FolderID == wf.FolderID:
			snap.ChangeType = model.ChangeUnchanged
			snap.Content = prev.Content
			snap.ContentHash = prev.ContentHash
		default:
			snap.ChangeType = model.ChangeModified
		}

		info.Changes.add(snap.ChangeType)
		snapshots = append(snapshots, snap)
		hashes = append(hashes, fileHash{fileID: wf.ID, hash: snap.ContentHash})
	}
	info.Hash = commitHash(hashes)

	if err := s.database.CreateCommit(ctx, &info.Commit, snapshots); err != nil {
		return nil, fmt.Errorf("creating commit: %w", err)
	}
	branch.HeadCommitID = info.ID
	branch.UpdatedAt = now

	if !isReservedMessage(message) {
		s.recordFileVersions(ctx, branch.ProjectID, info.ID, snapshots)
	}

	s.logger.Info("commit created",
		"project", branch.ProjectID,
		"branch", branch.Name,
		"commit", info.ID,
		"version", info.VersionNumber,
		"source", info.Source,
		"added", info.Changes.Added,
		"modified", info.Changes.Modified,
		"deleted", info.Changes.Deleted,
	)
	return info, nil
}

// recordFileVersions bumps the per-file version of every live file touched by the commit.
// Failures are logged; the commit is already durable.
func (s *Service) recordFileVersions(ctx context.Context, projectID, commitID string, snapshots []*model.FileSnapshot) {
	now := s.clock.Now()
	for _, snap := range snapshots {
		if snap.ChangeType == model.ChangeUnchanged {
			continue
		}
		file, err := s.database.FindFileByKey(ctx, projectID, snap.Key())
		if err != nil {
			s.logger.Warn("resolving file for version failed", "commit", commitID, "name", snap.Name, "error", err)
			continue
		}
		if file == nil {
			continue
		}
		if _, err := s.database.RecordFileVersion(ctx, projectID, file.ID, commitID, now); err != nil {
			s.logger.Warn("recording file version failed", "commit", commitID, "file", file.ID, "error", err)
		}
	}
}

// GetCommits returns up to limit commits of a branch, newest first.
func (s *Service) GetCommits(ctx context.Context, branchID string, limit int) ([]*CommitInfo, error) {
	branch, err := s.database.FindBranch(ctx, branchID)
	if err != nil {
		return nil, fmt.Errorf("finding branch: %w", err)
	}
	if branch == nil {
		return nil, notFound("branch", branchID)
	}
	if limit <= 0 {
		limit = DefaultCommitLimit
	}

	commits, err := s.database.ListCommitsByBranch(ctx, branch.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing commits: %w", err)
	}

	infos := make([]*CommitInfo, 0, len(commits))
	for _, c := range commits {
		infos = append(infos, &CommitInfo{Commit: *c})
	}
	return infos, nil
}

// GetCommit returns a single commit.
func (s *Service) GetCommit(ctx context.Context, commitID string) (*CommitInfo, error) {
	commit, err := s.findCommit(ctx, commitID)
	if err != nil {
		return nil, err
	}
	return &CommitInfo{Commit: *commit}, nil
}

func (s *Service) findCommit(ctx context.Context, commitID string) (*model.Commit, error) {
	commit, err := s.database.FindCommit(ctx, commitID)
	if err != nil {
		return nil, fmt.Errorf("finding commit: %w", err)
	}
	if commit == nil {
		return nil, notFound("commit", commitID)
	}
	return commit, nil
}

// CommitCurrentState commits the main branch from the live File table.
// Main's working files are first brought in line with the live files: missing ones
// are created, changed ones updated, and ones without a live file marked deleted.
// Sync sources produce remote commits.
func (s *Service) CommitCurrentState(ctx context.Context, projectID, userID, message, source string) (*CommitInfo, error) {
	if _, err := s.requireProject(ctx, projectID); err != nil {
		return nil, err
	}
	main, err := s.mainBranch(ctx, projectID)
	if err != nil {
		return nil, err
	}

	files, err := s.database.ListFiles(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	working, err := s.database.ListWorkingFiles(ctx, main.ID)
	if err != nil {
		return nil, fmt.Errorf("listing working files: %w", err)
	}

	live := make(map[model.FileKey]bool, len(files))
	for _, f := range files {
		live[f.Key()] = true
		if _, err := s.upsertWorkingFile(ctx, main, f.Key(), f.Content, f.ContentHash); err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	for _, wf := range working {
		if wf.IsDeleted || live[wf.Key()] {
			continue
		}
		wf.IsDeleted = true
		wf.UpdatedAt = now
		if err := s.database.UpdateWorkingFile(ctx, wf); err != nil {
			return nil, fmt.Errorf("marking working file deleted: %w", err)
		}
	}

	return s.commitBranch(ctx, main, userID, message, CommitOptions{
		IsRemote: source == model.SourceSyncPush || source == model.SourceSyncPull,
		Source:   source,
	})
}
