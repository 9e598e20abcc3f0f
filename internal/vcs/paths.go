package vcs

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"starbase-go/internal/model"
)

// Types that take part in remote sync.
const (
	TypeBPMN = "bpmn"
	TypeDMN  = "dmn"
)

// IsSyncType reports whether files of type t are pushed and pulled.
func IsSyncType(t string) bool {
	return t == TypeBPMN || t == TypeDMN
}

// SplitFilePath splits "a/b/order.bpmn" into folder segments ["a","b"], name "order" and type "bpmn".
func SplitFilePath(p string) (dirs []string, name, fileType string, err error) {
	clean := strings.Trim(path.Clean("/"+strings.ReplaceAll(p, "\\", "/")), "/")
	if clean == "" || clean == "." {
		return nil, "", "", &ValidationError{Message: fmt.Sprintf("invalid file path %q", p)}
	}

	segments := strings.Split(clean, "/")
	base := segments[len(segments)-1]
	ext := path.Ext(base)
	if ext == "" || ext == base {
		return nil, "", "", &ValidationError{Message: fmt.Sprintf("file path %q has no extension", p)}
	}

	return segments[:len(segments)-1], strings.TrimSuffix(base, ext), strings.ToLower(ext[1:]), nil
}

// JoinFilePath builds the slash-separated remote path of a file.
func JoinFilePath(folderPath, name, fileType string) string {
	base := name + "." + fileType
	if folderPath == "" {
		return base
	}
	return folderPath + "/" + base
}

// folderPaths resolves every folder id of a project to its full slash-separated path.
func folderPaths(folders []*model.Folder) map[string]string {
	byID := make(map[string]*model.Folder, len(folders))
	for _, f := range folders {
		byID[f.ID] = f
	}

	paths := make(map[string]string, len(folders))
	for _, f := range folders {
		var segments []string
		seen := map[string]bool{}
		for cur := f; cur != nil; cur = byID[cur.ParentID] {
			if seen[cur.ID] {
				break
			}
			seen[cur.ID] = true
			segments = append(segments, cur.Name)
			if cur.ParentID == "" {
				break
			}
		}
		for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
			segments[i], segments[j] = segments[j], segments[i]
		}
		paths[f.ID] = strings.Join(segments, "/")
	}
	return paths
}

// folderResolver lazily creates the folders implied by file paths.
// Paths are memoized so parents are always created before their children.
type folderResolver struct {
	s         *Service
	projectID string
	memo      map[string]string // folder path -> folder id
}

func (s *Service) newFolderResolver(projectID string) *folderResolver {
	return &folderResolver{s: s, projectID: projectID, memo: map[string]string{"": ""}}
}

// resolve returns the id of the folder at dirs, creating missing folders top-down.
func (r *folderResolver) resolve(ctx context.Context, dirs []string) (string, error) {
	parentID := ""
	for i := range dirs {
		prefix := strings.Join(dirs[:i+1], "/")
		if id, ok := r.memo[prefix]; ok {
			parentID = id
			continue
		}

		folder, err := r.s.database.FindFolder(ctx, r.projectID, parentID, dirs[i])
		if err != nil {
			return "", fmt.Errorf("finding folder %s: %w", prefix, err)
		}
		if folder == nil {
			folder = &model.Folder{
				ID:        r.s.idgen.New(),
				ProjectID: r.projectID,
				ParentID:  parentID,
				Name:      dirs[i],
				CreatedAt: r.s.clock.Now(),
			}
			if err := r.s.database.CreateFolder(ctx, folder); err != nil {
				return "", fmt.Errorf("creating folder %s: %w", prefix, err)
			}
			r.s.logger.Debug("folder created", "project", r.projectID, "path", prefix)
		}

		r.memo[prefix] = folder.ID
		parentID = folder.ID
	}
	return parentID, nil
}

func joinDirs(dirs []string) string {
	return strings.Join(dirs, "/")
}

func sortProjectFiles(files []ProjectFile) {
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
}
