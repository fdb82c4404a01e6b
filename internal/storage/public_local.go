package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LocalPublicStore keeps public files under basePath/journals/{contextID}.
type LocalPublicStore struct {
	basePath string
	baseURL  string
}

// NewLocalPublicStore creates a public file store rooted at basePath
func NewLocalPublicStore(basePath, baseURL string) (*LocalPublicStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create public directory: %w", err)
	}

	return &LocalPublicStore{
		basePath: basePath,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}, nil
}

func (s *LocalPublicStore) contextDir(contextID int64) string {
	return filepath.Join(s.basePath, "journals", strconv.FormatInt(contextID, 10))
}

// CopyContextFile copies a file into the context directory, overwriting
// any previous file of the same name
func (s *LocalPublicStore) CopyContextFile(ctx context.Context, contextID int64, sourcePath, destName string) error {
	if !validFilename(destName) {
		return ErrInvalidFilename
	}

	dir := s.contextDir(contextID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create context directory: %w", err)
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrFileNotFound
		}
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer src.Close()

	// Write next to the target and rename so readers never see a partial file
	tmp, err := os.CreateTemp(dir, "."+destName+".*")
	if err != nil {
		return fmt.Errorf("failed to create file on disk: %w", err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to copy file content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to flush file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, destName)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move file into place: %w", err)
	}

	return nil
}

// RemoveContextFile deletes a file from the context directory
func (s *LocalPublicStore) RemoveContextFile(ctx context.Context, contextID int64, filename string) error {
	if !validFilename(filename) {
		return ErrInvalidFilename
	}

	fullPath := filepath.Join(s.contextDir(contextID), filename)
	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return ErrFileNotFound
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

// ContextFileURL returns the public URL for a context file
func (s *LocalPublicStore) ContextFileURL(contextID int64, filename string) string {
	return fmt.Sprintf("%s/journals/%d/%s", s.baseURL, contextID, filename)
}
