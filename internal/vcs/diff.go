package vcs

import (
	"context"
	"fmt"
	"sort"

	"github.com/pmezard/go-difflib/difflib"

	"starbase-go/internal/model"
)

// FileDiff is the change of one logical file between two commits.
type FileDiff struct {
	Path       string
	ChangeType string // added, modified or deleted
	Unified    string
}

// DiffCommits compares the file sets of two commits of the same project.
// An empty fromCommitID diffs against an empty tree. Deleted snapshots count as absent.
func (s *Service) DiffCommits(ctx context.Context, fromCommitID, toCommitID string) ([]FileDiff, error) {
	to, err := s.findCommit(ctx, toCommitID)
	if err != nil {
		return nil, err
	}

	var before []*model.FileSnapshot
	if fromCommitID != "" {
		from, err := s.findCommit(ctx, fromCommitID)
		if err != nil {
			return nil, err
		}
		if from.ProjectID != to.ProjectID {
			return nil, &ValidationError{Message: "commits belong to different projects"}
		}
		if before, err = s.GetCommitSnapshots(ctx, from.ID); err != nil {
			return nil, err
		}
	}
	after, err := s.GetCommitSnapshots(ctx, to.ID)
	if err != nil {
		return nil, err
	}

	folders, err := s.database.ListFolders(ctx, to.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}
	paths := folderPaths(folders)
	pathOf := func(snap *model.FileSnapshot) string {
		return JoinFilePath(paths[snap.FolderID], snap.Name, snap.Type)
	}

	old := present(before)
	cur := present(after)

	var diffs []FileDiff
	for key, snap := range cur {
		prev, ok := old[key]
		switch {
		case !ok:
			diffs = append(diffs, newFileDiff(pathOf(snap), model.ChangeAdded, "", snap.Content))
		case prev.ContentHash != snap.ContentHash:
			diffs = append(diffs, newFileDiff(pathOf(snap), model.ChangeModified, prev.Content, snap.Content))
		}
	}
	for key, snap := range old {
		if _, ok := cur[key]; !ok {
			diffs = append(diffs, newFileDiff(pathOf(snap), model.ChangeDeleted, snap.Content, ""))
		}
	}

	sort.Slice(diffs, func(i, j int) bool { return diffs[i].Path < diffs[j].Path })
	return diffs, nil
}

func present(snapshots []*model.FileSnapshot) map[model.FileKey]*model.FileSnapshot {
	m := make(map[model.FileKey]*model.FileSnapshot, len(snapshots))
	for _, snap := range snapshots {
		if snap.ChangeType == model.ChangeDeleted {
			continue
		}
		m[snap.Key()] = snap
	}
	return m
}

func newFileDiff(p, changeType, previous, current string) FileDiff {
	d := difflib.UnifiedDiff{
		A:        difflib.SplitLines(previous),
		B:        difflib.SplitLines(current),
		FromFile: "a/" + p,
		ToFile:   "b/" + p,
		Context:  3,
	}
	unified, err := difflib.GetUnifiedDiffString(d)
	if err != nil {
		unified = ""
	}
	return FileDiff{Path: p, ChangeType: changeType, Unified: unified}
}
