package domain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/quicksubmit/backend/internal/storage"
)

// TemporaryFileService owns the lifecycle of uploads that have not been
// committed to a publication yet.
type TemporaryFileService struct {
	repo    TemporaryFileRepository
	storage storage.FileStorage
	ttl     time.Duration
	now     func() time.Time
}

func NewTemporaryFileService(repo TemporaryFileRepository, storage storage.FileStorage, ttl time.Duration) *TemporaryFileService {
	return &TemporaryFileService{
		repo:    repo,
		storage: storage,
		ttl:     ttl,
		now:     time.Now,
	}
}

// HandleUpload stores an uploaded file for userID and records it
func (s *TemporaryFileService) HandleUpload(ctx context.Context, userID uuid.UUID, file io.Reader, filename, contentType string) (*TemporaryFile, error) {
	if contentType == "" || contentType == "application/octet-stream" {
		head := make([]byte, 512)
		n, err := io.ReadFull(file, head)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to read upload: %w", err)
		}
		head = head[:n]
		contentType = http.DetectContentType(head)
		file = io.MultiReader(bytes.NewReader(head), file)
	}

	path, size, err := s.storage.SaveFile(ctx, file, filename)
	if err != nil {
		return nil, err
	}

	tmp, err := s.repo.CreateTemporaryFile(ctx, CreateTemporaryFileParams{
		UserID:           userID,
		FileName:         filepath.Base(path),
		FileType:         contentType,
		FileSize:         size,
		OriginalFileName: filepath.Base(filename),
		FilePath:         path,
	})
	if err != nil {
		// Clean up file if metadata save fails
		_ = s.storage.DeleteFile(ctx, path)
		return nil, fmt.Errorf("failed to save temporary file metadata: %w", err)
	}
	return tmp, nil
}

// GetTemporaryFile resolves an opaque id for its owner. Ids that are not
// well formed resolve to ErrTemporaryFileNotFound.
func (s *TemporaryFileService) GetTemporaryFile(ctx context.Context, id string, userID uuid.UUID) (*TemporaryFile, error) {
	fileID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrTemporaryFileNotFound
	}
	return s.repo.GetTemporaryFile(ctx, fileID, userID)
}

// DeleteByID removes a temporary file record and its content
func (s *TemporaryFileService) DeleteByID(ctx context.Context, id string, userID uuid.UUID) error {
	tmp, err := s.GetTemporaryFile(ctx, id, userID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteTemporaryFile(ctx, tmp.ID, userID); err != nil {
		return err
	}
	return s.storage.DeleteFile(ctx, tmp.FilePath)
}

// CleanupExpired removes temporary files older than the configured TTL
func (s *TemporaryFileService) CleanupExpired(ctx context.Context) (int, error) {
	expired, err := s.repo.DeleteTemporaryFilesBefore(ctx, s.now().Add(-s.ttl))
	if err != nil {
		return 0, err
	}

	var errs []error
	for _, tmp := range expired {
		if err := s.storage.DeleteFile(ctx, tmp.FilePath); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", tmp.ID, err))
		}
	}
	return len(expired), errors.Join(errs...)
}

// StartCleanupWorker starts a background worker that expires temporary files
func (s *TemporaryFileService) StartCleanupWorker(ctx context.Context, interval time.Duration, onError func(error)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.CleanupExpired(ctx); err != nil && onError != nil {
					onError(err)
				}
			}
		}
	}()
}
