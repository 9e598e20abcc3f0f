package vcs

import (
	"context"
	"fmt"

	"starbase-go/internal/model"
)

// SaveFileRequest is one edit of a process definition.
type SaveFileRequest struct {
	ProjectID string
	Path      string // "folder/sub/name.bpmn"
	Content   string
	UserID    string // "" saves straight onto main
}

// SaveFile upserts the live file and the working file on the user's draft branch
// (main when UserID is empty). With auto-commit enabled, the main branch is
// committed in the background; failures are reported to the failure hook.
func (s *Service) SaveFile(ctx context.Context, req SaveFileRequest) (*model.File, error) {
	file, _, err := s.saveFile(ctx, req)
	if err != nil {
		return nil, err
	}

	if s.autoCommit {
		projectID, userID, p := req.ProjectID, req.UserID, req.Path
		s.runBackground(ctx, "auto-commit", projectID, func(ctx context.Context) error {
			return s.withProjectLock(ctx, projectID, func() error {
				_, err := s.CommitCurrentState(ctx, projectID, userID, "Update "+p, model.SourceManual)
				return err
			})
		})
	}

	return file, nil
}

func (s *Service) saveFile(ctx context.Context, req SaveFileRequest) (*model.File, bool, error) {
	if _, err := s.requireProject(ctx, req.ProjectID); err != nil {
		return nil, false, err
	}

	dirs, name, fileType, err := SplitFilePath(req.Path)
	if err != nil {
		return nil, false, err
	}

	folderID, err := s.newFolderResolver(req.ProjectID).resolve(ctx, dirs)
	if err != nil {
		return nil, false, err
	}
	key := model.FileKey{Name: name, Type: fileType, FolderID: folderID}
	hash := ContentHash(req.Content)

	file, changed, err := s.upsertLiveFile(ctx, req.ProjectID, key, req.Content, hash)
	if err != nil {
		return nil, false, err
	}

	var branch *model.Branch
	if req.UserID != "" {
		branch, err = s.EnsureDraftBranch(ctx, req.ProjectID, req.UserID)
	} else {
		branch, err = s.mainBranch(ctx, req.ProjectID)
	}
	if err != nil {
		return nil, false, err
	}

	if _, err := s.upsertWorkingFile(ctx, branch, key, req.Content, hash); err != nil {
		return nil, false, err
	}

	s.logger.Debug("file saved", "project", req.ProjectID, "path", req.Path, "branch", branch.Name, "changed", changed)
	return file, changed, nil
}

// upsertLiveFile writes content into the live File row for key, creating it if needed.
// It reports whether the row was created or its content changed.
func (s *Service) upsertLiveFile(ctx context.Context, projectID string, key model.FileKey, content, hash string) (*model.File, bool, error) {
	file, err := s.database.FindFileByKey(ctx, projectID, key)
	if err != nil {
		return nil, false, fmt.Errorf("finding file: %w", err)
	}

	now := s.clock.Now()
	if file == nil {
		file = &model.File{
			ID:          s.idgen.New(),
			ProjectID:   projectID,
			FolderID:    key.FolderID,
			Name:        key.Name,
			Type:        key.Type,
			Content:     content,
			ContentHash: hash,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.database.CreateFile(ctx, file); err != nil {
			return nil, false, fmt.Errorf("creating file: %w", err)
		}
		return file, true, nil
	}

	if file.Content == content {
		return file, false, nil
	}
	if err := s.database.UpdateFileContent(ctx, file.ID, content, hash, now); err != nil {
		return nil, false, fmt.Errorf("updating file: %w", err)
	}
	file.Content = content
	file.ContentHash = hash
	file.UpdatedAt = now
	return file, true, nil
}

// upsertWorkingFile writes content into the branch's working file for key.
// A deleted marker is cleared. It reports whether anything was written.
func (s *Service) upsertWorkingFile(ctx context.Context, branch *model.Branch, key model.FileKey, content, hash string) (bool, error) {
	wf, err := s.database.FindWorkingFileByKey(ctx, branch.ID, key)
	if err != nil {
		return false, fmt.Errorf("finding working file: %w", err)
	}

	now := s.clock.Now()
	if wf == nil {
		wf = &model.WorkingFile{
			ID:          s.idgen.New(),
			BranchID:    branch.ID,
			ProjectID:   branch.ProjectID,
			FolderID:    key.FolderID,
			Name:        key.Name,
			Type:        key.Type,
			Content:     content,
			ContentHash: hash,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.database.CreateWorkingFile(ctx, wf); err != nil {
			return false, fmt.Errorf("creating working file: %w", err)
		}
		return true, nil
	}

	if wf.Content == content && !wf.IsDeleted {
		return false, nil
	}
	wf.Content = content
	wf.ContentHash = hash
	wf.IsDeleted = false
	wf.UpdatedAt = now
	if err := s.database.UpdateWorkingFile(ctx, wf); err != nil {
		return false, fmt.Errorf("updating working file: %w", err)
	}
	return true, nil
}

// DeleteFile removes the live file and marks it deleted on the main branch.
func (s *Service) DeleteFile(ctx context.Context, projectID, fileID string) error {
	file, err := s.database.FindFile(ctx, fileID)
	if err != nil {
		return fmt.Errorf("finding file: %w", err)
	}
	if file == nil || file.ProjectID != projectID {
		return notFound("file", fileID)
	}

	main, err := s.mainBranch(ctx, projectID)
	if err != nil {
		return err
	}

	if err := s.database.DeleteFile(ctx, file.ID); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}

	wf, err := s.database.FindWorkingFileByKey(ctx, main.ID, file.Key())
	if err != nil {
		return fmt.Errorf("finding working file: %w", err)
	}
	if wf != nil && !wf.IsDeleted {
		wf.IsDeleted = true
		wf.UpdatedAt = s.clock.Now()
		if err := s.database.UpdateWorkingFile(ctx, wf); err != nil {
			return fmt.Errorf("marking working file deleted: %w", err)
		}
	}

	s.logger.Info("file deleted", "project", projectID, "file", file.ID, "name", file.Name)
	return nil
}

// ProjectFile is a live file with its resolved slash-separated path.
type ProjectFile struct {
	*model.File
	Path string
}

// ListFiles returns every live file of a project with its full path, sorted by path.
func (s *Service) ListFiles(ctx context.Context, projectID string) ([]ProjectFile, error) {
	if _, err := s.requireProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.projectFiles(ctx, projectID, false)
}

// projectFiles loads the live files of a project and resolves their paths.
// With syncOnly, only BPMN and DMN files are returned.
func (s *Service) projectFiles(ctx context.Context, projectID string, syncOnly bool) ([]ProjectFile, error) {
	folders, err := s.database.ListFolders(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}
	paths := folderPaths(folders)

	files, err := s.database.ListFiles(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}

	result := make([]ProjectFile, 0, len(files))
	for _, f := range files {
		if syncOnly && !IsSyncType(f.Type) {
			continue
		}
		result = append(result, ProjectFile{File: f, Path: JoinFilePath(paths[f.FolderID], f.Name, f.Type)})
	}
	sortProjectFiles(result)
	return result, nil
}

// FindFileByPath resolves a live file by its slash-separated path.
func (s *Service) FindFileByPath(ctx context.Context, projectID, p string) (*model.File, error) {
	files, err := s.ListFiles(ctx, projectID)
	if err != nil {
		return nil, err
	}
	dirs, name, fileType, err := SplitFilePath(p)
	if err != nil {
		return nil, err
	}
	want := JoinFilePath(joinDirs(dirs), name, fileType)
	for _, f := range files {
		if f.Path == want {
			return f.File, nil
		}
	}
	return nil, notFound("file", p)
}
