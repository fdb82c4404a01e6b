package storage

import (
	"context"
	"errors"
	"io"
)

var (
	ErrFileNotFound    = errors.New("file not found")
	ErrInvalidFilename = errors.New("invalid filename")
)

// FileStorage defines the interface for temporary upload storage
type FileStorage interface {
	// SaveFile saves a file and returns the path it was written to
	SaveFile(ctx context.Context, file io.Reader, filename string) (string, int64, error)
	// DeleteFile deletes a file by its path
	DeleteFile(ctx context.Context, path string) error
}

// PublicFileStore holds files served to readers, grouped by the journal
// (context) that owns them.
type PublicFileStore interface {
	// CopyContextFile copies sourcePath into the context's public area as
	// destName, replacing any file with the same name.
	CopyContextFile(ctx context.Context, contextID int64, sourcePath, destName string) error
	// RemoveContextFile removes filename from the context's public area.
	// Returns ErrFileNotFound when there is nothing to remove.
	RemoveContextFile(ctx context.Context, contextID int64, filename string) error
	// ContextFileURL returns the public URL of a stored file.
	ContextFileURL(contextID int64, filename string) string
}
