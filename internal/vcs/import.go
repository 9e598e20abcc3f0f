package vcs

import (
	"context"
	"fmt"

	"starbase-go/internal/model"
)

// LocalFile is a file read from disk, addressed by its slash-separated path below the import root.
type LocalFile struct {
	Path    string
	Content string
}

// FileSource lists the files below a local directory.
// It abstracts the filesystem so imports can be tested without touching disk.
type FileSource interface {
	FindFiles(root string) ([]LocalFile, error)
}

// ImportResult summarizes an import.
type ImportResult struct {
	Imported int // created or changed files
	Skipped  int // identical content or non BPMN/DMN
	Commit   *CommitInfo
}

// ImportDirectory saves every BPMN/DMN file below root into the project's main branch
// and commits once if anything changed.
func (s *Service) ImportDirectory(ctx context.Context, projectID, userID string, source FileSource, root string) (*ImportResult, error) {
	files, err := source.FindFiles(root)
	if err != nil {
		return nil, fmt.Errorf("reading import directory: %w", err)
	}
	return s.ImportFiles(ctx, projectID, userID, root, files)
}

// ImportFiles saves files into the project's main branch and commits once if anything changed.
func (s *Service) ImportFiles(ctx context.Context, projectID, userID, origin string, files []LocalFile) (*ImportResult, error) {
	if _, err := s.requireProject(ctx, projectID); err != nil {
		return nil, err
	}

	result := &ImportResult{}
	for _, f := range files {
		_, _, fileType, err := SplitFilePath(f.Path)
		if err != nil || !IsSyncType(fileType) {
			result.Skipped++
			continue
		}
		_, changed, err := s.saveFile(ctx, SaveFileRequest{ProjectID: projectID, Path: f.Path, Content: f.Content})
		if err != nil {
			return nil, fmt.Errorf("importing %s: %w", f.Path, err)
		}
		if changed {
			result.Imported++
		} else {
			result.Skipped++
		}
	}

	if result.Imported == 0 {
		return result, nil
	}

	info, err := s.CommitCurrentState(ctx, projectID, userID, "Import from "+origin, model.SourceImport)
	if err != nil {
		return nil, err
	}
	result.Commit = info
	s.logger.Info("import completed", "project", projectID, "imported", result.Imported, "skipped", result.Skipped)
	return result, nil
}
