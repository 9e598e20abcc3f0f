package vcs

import (
	"context"
	"fmt"
	"sort"

	"starbase-go/internal/model"
)

// snapshotScore ranks snapshots that share a logical file key.
// Snapshots carrying content that actually changed win over unchanged copies.
func snapshotScore(snap *model.FileSnapshot) int {
	if snap.Content != "" && snap.ChangeType != model.ChangeUnchanged {
		return 1
	}
	return 0
}

// GetCommitSnapshots returns one snapshot per logical file (name, type, folder) of a commit.
// When a rename or move left several rows for the same key, the changed one wins,
// then the one whose working file was updated most recently.
func (s *Service) GetCommitSnapshots(ctx context.Context, commitID string) ([]*model.FileSnapshot, error) {
	if _, err := s.findCommit(ctx, commitID); err != nil {
		return nil, err
	}

	snapshots, err := s.database.ListSnapshots(ctx, commitID)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	return dedupeSnapshots(snapshots), nil
}

func dedupeSnapshots(snapshots []*model.FileSnapshot) []*model.FileSnapshot {
	best := make(map[model.FileKey]*model.FileSnapshot, len(snapshots))
	for _, snap := range snapshots {
		key := snap.Key()
		cur, ok := best[key]
		if !ok {
			best[key] = snap
			continue
		}
		ns, cs := snapshotScore(snap), snapshotScore(cur)
		if ns > cs || (ns == cs && snap.WorkingFileUpdatedAt.After(cur.WorkingFileUpdatedAt)) {
			best[key] = snap
		}
	}

	result := make([]*model.FileSnapshot, 0, len(best))
	for _, snap := range best {
		result = append(result, snap)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.FolderID != b.FolderID {
			return a.FolderID < b.FolderID
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Type < b.Type
	})
	return result
}

func (s *Service) findLiveFile(ctx context.Context, fileID string) (*model.File, error) {
	file, err := s.database.FindFile(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("finding file: %w", err)
	}
	if file == nil {
		return nil, notFound("file", fileID)
	}
	return file, nil
}

// CommitHasFile reports whether the commit changed the live file's slot.
// Matching is by (name, type, folder), so history follows the slot across renames.
func (s *Service) CommitHasFile(ctx context.Context, commitID, fileID string) (bool, error) {
	if _, err := s.findCommit(ctx, commitID); err != nil {
		return false, err
	}
	file, err := s.findLiveFile(ctx, fileID)
	if err != nil {
		return false, err
	}

	snapshots, err := s.database.ListSnapshots(ctx, commitID)
	if err != nil {
		return false, fmt.Errorf("listing snapshots: %w", err)
	}
	key := file.Key()
	for _, snap := range snapshots {
		if snap.Key() == key && snap.ChangeType != model.ChangeUnchanged {
			return true, nil
		}
	}
	return false, nil
}

// GetLastCommitForFile returns the newest commit that changed the live file's slot,
// or nil if no commit did.
func (s *Service) GetLastCommitForFile(ctx context.Context, fileID string) (*CommitInfo, error) {
	file, err := s.findLiveFile(ctx, fileID)
	if err != nil {
		return nil, err
	}

	commit, err := s.database.FindLastCommitTouching(ctx, file.ProjectID, file.Key())
	if err != nil {
		return nil, fmt.Errorf("finding last commit for file: %w", err)
	}
	if commit == nil {
		return nil, nil
	}
	return &CommitInfo{Commit: *commit}, nil
}

// GetFileVersions returns the version history of a live file, newest first.
func (s *Service) GetFileVersions(ctx context.Context, fileID string) ([]*model.FileCommitVersion, error) {
	if _, err := s.findLiveFile(ctx, fileID); err != nil {
		return nil, err
	}
	versions, err := s.database.ListFileVersions(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("listing file versions: %w", err)
	}
	return versions, nil
}
