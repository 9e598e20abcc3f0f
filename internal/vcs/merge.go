package vcs

import (
	"context"
	"fmt"

	"starbase-go/internal/model"
)

// MergeDraft applies a user's draft working files to main and to the live files,
// then commits main. The commit message carries the "Merge from draft" prefix,
// so per-file versions are not bumped a second time.
func (s *Service) MergeDraft(ctx context.Context, projectID, userID, message string) (*CommitInfo, error) {
	if _, err := s.requireProject(ctx, projectID); err != nil {
		return nil, err
	}
	draft, err := s.database.FindUserBranch(ctx, projectID, userID)
	if err != nil {
		return nil, fmt.Errorf("finding draft branch: %w", err)
	}
	if draft == nil {
		return nil, notFound("draft branch", userID)
	}
	main, err := s.mainBranch(ctx, projectID)
	if err != nil {
		return nil, err
	}

	working, err := s.database.ListWorkingFiles(ctx, draft.ID)
	if err != nil {
		return nil, fmt.Errorf("listing draft working files: %w", err)
	}

	for _, wf := range working {
		key := wf.Key()
		if wf.IsDeleted {
			if err := s.removeFromMain(ctx, projectID, main, key); err != nil {
				return nil, err
			}
			continue
		}
		if _, _, err := s.upsertLiveFile(ctx, projectID, key, wf.Content, wf.ContentHash); err != nil {
			return nil, err
		}
		if _, err := s.upsertWorkingFile(ctx, main, key, wf.Content, wf.ContentHash); err != nil {
			return nil, err
		}
	}

	if message == "" {
		message = draft.Name
	}
	info, err := s.commitBranch(ctx, main, userID, "Merge from draft: "+message, CommitOptions{Source: model.SourceMerge})
	if err != nil {
		return nil, err
	}
	s.logger.Info("draft merged", "project", projectID, "user", userID, "commit", info.ID)
	return info, nil
}

// removeFromMain deletes the live file for key and marks main's working file deleted.
func (s *Service) removeFromMain(ctx context.Context, projectID string, main *model.Branch, key model.FileKey) error {
	file, err := s.database.FindFileByKey(ctx, projectID, key)
	if err != nil {
		return fmt.Errorf("finding file: %w", err)
	}
	if file != nil {
		if err := s.database.DeleteFile(ctx, file.ID); err != nil {
			return fmt.Errorf("deleting file: %w", err)
		}
	}

	wf, err := s.database.FindWorkingFileByKey(ctx, main.ID, key)
	if err != nil {
		return fmt.Errorf("finding working file: %w", err)
	}
	if wf == nil || wf.IsDeleted {
		return nil
	}
	wf.IsDeleted = true
	wf.UpdatedAt = s.clock.Now()
	if err := s.database.UpdateWorkingFile(ctx, wf); err != nil {
		return fmt.Errorf("marking working file deleted: %w", err)
	}
	return nil
}
