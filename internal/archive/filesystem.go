package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FileSystemStore keeps items as files:
//
//	<root>/
//	  <instanceID>/
//	    <name>          (item content)
//	    <name>.version  (version marker)
type FileSystemStore struct {
	name string
	root string
}

// NewFileSystemStore creates a store rooted at root, creating the directory if needed.
func NewFileSystemStore(name, root string) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive root: %w", err)
	}
	return &FileSystemStore{name: name, root: root}, nil
}

func (s *FileSystemStore) Put(_ context.Context, instanceID, name string, r io.Reader, size int64, version int64) error {
	dir := filepath.Join(s.root, instanceID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create instance directory: %w", err)
	}
	if err := writeFile(filepath.Join(dir, name), r, size); err != nil {
		return err
	}
	versionPath := filepath.Join(dir, name+".version")
	return os.WriteFile(versionPath, []byte(strconv.FormatInt(version, 10)), 0644)
}

func (s *FileSystemStore) Get(_ context.Context, instanceID, name string, w io.Writer) error {
	f, err := os.Open(filepath.Join(s.root, instanceID, name))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s not found for instance: %s", name, instanceID)
		}
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	return nil
}

func (s *FileSystemStore) Version(_ context.Context, instanceID, name string) (int64, error) {
	data, err := os.ReadFile(filepath.Join(s.root, instanceID, name+".version"))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading version file: %w", err)
	}
	version, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

func (s *FileSystemStore) ValidateSetup(context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("archive root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("archive root is not a directory: %s", s.root)
	}
	return nil
}

// writeFile writes r to destPath through a temp file and rename.
func writeFile(destPath string, r io.Reader, expectedSize int64) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

var _ Store = (*FileSystemStore)(nil)
