package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quicksubmit/backend/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteRepository implements the domain repositories on a single SQLite
// file, for local development
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens dbPath and creates the schema if needed
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer at a time
	db.SetMaxOpenConns(1)

	repo := &SQLiteRepository{db: db}
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return repo, nil
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Ping checks the database connection
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS submissions (
		submission_id INTEGER PRIMARY KEY,
		context_id INTEGER NOT NULL,
		current_publication_id INTEGER
	);
	CREATE TABLE IF NOT EXISTS publications (
		publication_id INTEGER PRIMARY KEY,
		submission_id INTEGER NOT NULL,
		cover_image TEXT NOT NULL DEFAULT '{}',
		last_modified DATETIME
	);
	CREATE TABLE IF NOT EXISTS temporary_files (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		file_name TEXT NOT NULL,
		file_type TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		original_file_name TEXT NOT NULL,
		file_path TEXT NOT NULL,
		date_uploaded DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_temporary_files_user ON temporary_files(user_id);
	CREATE INDEX IF NOT EXISTS idx_temporary_files_date_uploaded ON temporary_files(date_uploaded);
	`
	_, err := r.db.Exec(schema)
	return err
}

// CreateSubmission inserts a submission with an empty current publication.
// A zero CurrentPublicationID stores a submission without one.
func (r *SQLiteRepository) CreateSubmission(ctx context.Context, s domain.Submission) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	publicationID := sql.NullInt64{Int64: s.CurrentPublicationID, Valid: s.CurrentPublicationID != 0}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO submissions (submission_id, context_id, current_publication_id) VALUES (?, ?, ?)`,
		s.ID, s.ContextID, publicationID,
	); err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}
	if !publicationID.Valid {
		return tx.Commit()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO publications (publication_id, submission_id, cover_image, last_modified) VALUES (?, ?, '{}', ?)`,
		s.CurrentPublicationID, s.ID, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("failed to create publication: %w", err)
	}
	return tx.Commit()
}

// GetSubmission retrieves a submission within a journal. A submission
// without a current publication has CurrentPublicationID 0.
func (r *SQLiteRepository) GetSubmission(ctx context.Context, id, contextID int64) (*domain.Submission, error) {
	query := `
	SELECT submission_id, context_id, current_publication_id
	FROM submissions WHERE submission_id = ? AND context_id = ?
	`
	var s domain.Submission
	var publicationID sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, id, contextID).Scan(&s.ID, &s.ContextID, &publicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to find submission: %w", err)
	}
	s.CurrentPublicationID = publicationID.Int64
	return &s, nil
}

// GetPublication retrieves a publication by ID
func (r *SQLiteRepository) GetPublication(ctx context.Context, id int64) (*domain.Publication, error) {
	query := `SELECT publication_id, submission_id, cover_image FROM publications WHERE publication_id = ?`

	var p domain.Publication
	var raw string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.SubmissionID, &raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPublicationNotFound
		}
		return nil, fmt.Errorf("failed to find publication: %w", err)
	}

	p.CoverImage = domain.CoverImages{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.CoverImage); err != nil {
			return nil, fmt.Errorf("failed to decode cover image: %w", err)
		}
	}
	return &p, nil
}

// UpdatePublication replaces the publication's cover image setting
func (r *SQLiteRepository) UpdatePublication(ctx context.Context, p *domain.Publication) error {
	images := p.CoverImage
	if images == nil {
		images = domain.CoverImages{}
	}
	raw, err := json.Marshal(images)
	if err != nil {
		return fmt.Errorf("failed to encode cover image: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE publications SET cover_image = ?, last_modified = ? WHERE publication_id = ?`,
		string(raw), time.Now().UTC(), p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update publication: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrPublicationNotFound
	}
	return nil
}

// CreateTemporaryFile records a new upload
func (r *SQLiteRepository) CreateTemporaryFile(ctx context.Context, params domain.CreateTemporaryFileParams) (*domain.TemporaryFile, error) {
	tmp := &domain.TemporaryFile{
		ID:               uuid.New(),
		UserID:           params.UserID,
		FileName:         params.FileName,
		FileType:         params.FileType,
		FileSize:         params.FileSize,
		OriginalFileName: params.OriginalFileName,
		FilePath:         params.FilePath,
		DateUploaded:     time.Now().UTC(),
	}

	_, err := r.db.ExecContext(ctx, `
	INSERT INTO temporary_files (id, user_id, file_name, file_type, file_size, original_file_name, file_path, date_uploaded)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		tmp.ID.String(),
		tmp.UserID.String(),
		tmp.FileName,
		tmp.FileType,
		tmp.FileSize,
		tmp.OriginalFileName,
		tmp.FilePath,
		tmp.DateUploaded,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file record: %w", err)
	}
	return tmp, nil
}

const temporaryFileColumns = `id, user_id, file_name, file_type, file_size, original_file_name, file_path, date_uploaded`

// GetTemporaryFile retrieves an upload owned by userID
func (r *SQLiteRepository) GetTemporaryFile(ctx context.Context, id, userID uuid.UUID) (*domain.TemporaryFile, error) {
	query := `SELECT ` + temporaryFileColumns + ` FROM temporary_files WHERE id = ? AND user_id = ?`
	tmp, err := scanSQLiteTemporaryFile(r.db.QueryRowContext(ctx, query, id.String(), userID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTemporaryFileNotFound
		}
		return nil, fmt.Errorf("failed to find temporary file: %w", err)
	}
	return tmp, nil
}

// DeleteTemporaryFile removes an upload record owned by userID
func (r *SQLiteRepository) DeleteTemporaryFile(ctx context.Context, id, userID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM temporary_files WHERE id = ? AND user_id = ?`,
		id.String(), userID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to delete temporary file record: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrTemporaryFileNotFound
	}
	return nil
}

// DeleteTemporaryFilesBefore removes uploads older than cutoff
func (r *SQLiteRepository) DeleteTemporaryFilesBefore(ctx context.Context, cutoff time.Time) ([]*domain.TemporaryFile, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT `+temporaryFileColumns+` FROM temporary_files WHERE date_uploaded < ?`,
		cutoff.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired temporary files: %w", err)
	}

	var files []*domain.TemporaryFile
	for rows.Next() {
		tmp, err := scanSQLiteTemporaryFile(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan temporary file row: %w", err)
		}
		files = append(files, tmp)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating temporary file rows: %w", err)
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM temporary_files WHERE date_uploaded < ?`, cutoff.UTC()); err != nil {
		return nil, fmt.Errorf("failed to delete expired temporary files: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return files, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTemporaryFile(row rowScanner) (*domain.TemporaryFile, error) {
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
		return nil, err
	}
	return &tmp, nil
}
