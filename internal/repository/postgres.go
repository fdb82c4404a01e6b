package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quicksubmit/backend/internal/domain"
)

// PostgresRepository implements the domain repositories using PostgreSQL
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Ping checks the database connection
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// GetSubmission retrieves a submission within a journal. A submission
// without a current publication has CurrentPublicationID 0.
func (r *PostgresRepository) GetSubmission(ctx context.Context, id, contextID int64) (*domain.Submission, error) {
	query := `
		SELECT submission_id, context_id, current_publication_id
		FROM submissions WHERE submission_id = $1 AND context_id = $2
	`
	var s domain.Submission
	var publicationID *int64
	err := r.db.QueryRow(ctx, query, id, contextID).Scan(&s.ID, &s.ContextID, &publicationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSubmissionNotFound
		}
		return nil, err
	}
	if publicationID != nil {
		s.CurrentPublicationID = *publicationID
	}
	return &s, nil
}

// GetPublication retrieves a publication by ID
func (r *PostgresRepository) GetPublication(ctx context.Context, id int64) (*domain.Publication, error) {
	query := `
		SELECT publication_id, submission_id, cover_image
		FROM publications WHERE publication_id = $1
	`
	var p domain.Publication
	err := r.db.QueryRow(ctx, query, id).Scan(&p.ID, &p.SubmissionID, &p.CoverImage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPublicationNotFound
		}
		return nil, err
	}
	if p.CoverImage == nil {
		p.CoverImage = domain.CoverImages{}
	}
	return &p, nil
}

// UpdatePublication writes the publication's settings. The cover image
// column is replaced as a whole.
func (r *PostgresRepository) UpdatePublication(ctx context.Context, p *domain.Publication) error {
	images := p.CoverImage
	if images == nil {
		images = domain.CoverImages{}
	}

	query := `UPDATE publications SET cover_image = $2, last_modified = NOW() WHERE publication_id = $1`
	tag, err := r.db.Exec(ctx, query, p.ID, images)
	if err != nil {
		return fmt.Errorf("failed to update publication: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPublicationNotFound
	}
	return nil
}

// CreateTemporaryFile records a new upload
func (r *PostgresRepository) CreateTemporaryFile(ctx context.Context, params domain.CreateTemporaryFileParams) (*domain.TemporaryFile, error) {
	query := `
		INSERT INTO temporary_files (user_id, file_name, file_type, file_size, original_file_name, file_path)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, user_id, file_name, file_type, file_size, original_file_name, file_path, date_uploaded
	`
	row := r.db.QueryRow(ctx, query,
		params.UserID,
		params.FileName,
		params.FileType,
		params.FileSize,
		params.OriginalFileName,
		params.FilePath,
	)
	return scanTemporaryFile(row)
}

// GetTemporaryFile retrieves an upload owned by userID
func (r *PostgresRepository) GetTemporaryFile(ctx context.Context, id, userID uuid.UUID) (*domain.TemporaryFile, error) {
	query := `
		SELECT id, user_id, file_name, file_type, file_size, original_file_name, file_path, date_uploaded
		FROM temporary_files WHERE id = $1 AND user_id = $2
	`
	return scanTemporaryFile(r.db.QueryRow(ctx, query, id, userID))
}

// DeleteTemporaryFile removes an upload record owned by userID
func (r *PostgresRepository) DeleteTemporaryFile(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM temporary_files WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete temporary file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTemporaryFileNotFound
	}
	return nil
}

// DeleteTemporaryFilesBefore removes uploads older than cutoff
func (r *PostgresRepository) DeleteTemporaryFilesBefore(ctx context.Context, cutoff time.Time) ([]*domain.TemporaryFile, error) {
	query := `
		DELETE FROM temporary_files WHERE date_uploaded < $1
		RETURNING id, user_id, file_name, file_type, file_size, original_file_name, file_path, date_uploaded
	`
	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to delete expired temporary files: %w", err)
	}
	defer rows.Close()

	var files []*domain.TemporaryFile
	for rows.Next() {
		tmp, err := scanTemporaryFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, tmp)
	}
	return files, rows.Err()
}

func scanTemporaryFile(row pgx.Row) (*domain.TemporaryFile, error) {
	var tmp domain.TemporaryFile
	err := row.Scan(
		&tmp.ID,
		&tmp.UserID,
		&tmp.FileName,
		&tmp.FileType,
		&tmp.FileSize,
		&tmp.OriginalFileName,
		&tmp.FilePath,
		&tmp.DateUploaded,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTemporaryFileNotFound
		}
		return nil, err
	}
	return &tmp, nil
}
