package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrTemporaryFileNotFound = errors.New("temporary file not found")

// TemporaryFile is an upload that has not been attached to anything yet
type TemporaryFile struct {
	ID               uuid.UUID `json:"id"`
	UserID           uuid.UUID `json:"user_id"`
	FileName         string    `json:"file_name"`
	FileType         string    `json:"file_type"`
	FileSize         int64     `json:"file_size"`
	OriginalFileName string    `json:"original_file_name"`
	FilePath         string    `json:"-"`
	DateUploaded     time.Time `json:"date_uploaded"`
}

type CreateTemporaryFileParams struct {
	UserID           uuid.UUID
	FileName         string
	FileType         string
	FileSize         int64
	OriginalFileName string
	FilePath         string
}

type TemporaryFileRepository interface {
	CreateTemporaryFile(ctx context.Context, params CreateTemporaryFileParams) (*TemporaryFile, error)
	GetTemporaryFile(ctx context.Context, id, userID uuid.UUID) (*TemporaryFile, error)
	DeleteTemporaryFile(ctx context.Context, id, userID uuid.UUID) error
	// DeleteTemporaryFilesBefore removes rows uploaded before cutoff and
	// returns them so their files can be removed too.
	DeleteTemporaryFilesBefore(ctx context.Context, cutoff time.Time) ([]*TemporaryFile, error)
}
