package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrFileNotFound = errors.New("file not found")

const fileColumns = `id, batch_id, link_id, workspace_id, folder_id,
	file_name, storage_path, mime_type, size, checksum, processing_status,
	created_at, updated_at`

// FileRepository provides CRUD operations for file records.
type FileRepository struct {
	db *DB
}

// NewFileRepository creates a new FileRepository.
func NewFileRepository(db *DB) *FileRepository {
	return &FileRepository{db: db}
}

func scanFile(row pgx.Row, f *File) error {
	return row.Scan(
		&f.ID, &f.BatchID, &f.LinkID, &f.WorkspaceID, &f.FolderID,
		&f.FileName, &f.StoragePath, &f.MimeType, &f.Size, &f.Checksum,
		&f.ProcessingStatus, &f.CreatedAt, &f.UpdatedAt,
	)
}

// Create inserts a new file record, normally in pending status.
func (r *FileRepository) Create(ctx context.Context, file *File) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO files (
			id, batch_id, link_id, workspace_id, folder_id,
			file_name, storage_path, mime_type, size, checksum,
			processing_status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		file.ID, file.BatchID, file.LinkID, file.WorkspaceID, file.FolderID,
		file.FileName, file.StoragePath, file.MimeType, file.Size, file.Checksum,
		file.ProcessingStatus, file.CreatedAt, file.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	return nil
}

// GetByID retrieves a file by its ID.
func (r *FileRepository) GetByID(ctx context.Context, id uuid.UUID) (*File, error) {
	file := &File{}
	row := r.db.Pool.QueryRow(ctx,
		"SELECT "+fileColumns+" FROM files WHERE id = $1", id)
	if err := scanFile(row, file); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return file, nil
}

// MarkCompleted records a confirmed storage write on the file row.
func (r *FileRepository) MarkCompleted(ctx context.Context, id uuid.UUID, storagePath, checksum string, size int64) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE files SET
			storage_path = $2, checksum = $3, size = $4,
			processing_status = $5, updated_at = NOW()
		WHERE id = $1
	`, id, storagePath, checksum, size, FileCompleted)
	if err != nil {
		return fmt.Errorf("failed to mark file completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFileNotFound
	}
	return nil
}

// MarkFailed records a storage failure on the file row.
func (r *FileRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE files SET processing_status = $2, updated_at = NOW() WHERE id = $1
	`, id, FileFailed)
	if err != nil {
		return fmt.Errorf("failed to mark file failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFileNotFound
	}
	return nil
}

// Delete removes a file record by ID.
func (r *FileRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM files WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFileNotFound
	}
	return nil
}

// DeleteMany removes a set of file records in one statement.
func (r *FileRepository) DeleteMany(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Pool.Exec(ctx, "DELETE FROM files WHERE id = ANY($1)", ids)
	if err != nil {
		return fmt.Errorf("failed to delete files: %w", err)
	}
	return nil
}

// ListByWorkspace returns all file records in a workspace.
func (r *FileRepository) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*File, error) {
	rows, err := r.db.Pool.Query(ctx,
		"SELECT "+fileColumns+" FROM files WHERE workspace_id = $1 ORDER BY created_at DESC",
		workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()
	return collectFiles(rows)
}

// ListByLink returns all file records attached to a link.
func (r *FileRepository) ListByLink(ctx context.Context, linkID uuid.UUID) ([]*File, error) {
	rows, err := r.db.Pool.Query(ctx,
		"SELECT "+fileColumns+" FROM files WHERE link_id = $1", linkID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files by link: %w", err)
	}
	defer rows.Close()
	return collectFiles(rows)
}

// ListByFolders returns all files whose folder is in the given set.
func (r *FileRepository) ListByFolders(ctx context.Context, folderIDs []uuid.UUID) ([]*File, error) {
	if len(folderIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Pool.Query(ctx,
		"SELECT "+fileColumns+" FROM files WHERE folder_id = ANY($1)", folderIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list files by folders: %w", err)
	}
	defer rows.Close()
	return collectFiles(rows)
}

// ListStalePending returns pending files with no checksum created before the
// cutoff. These are orphaned partial uploads eligible for reaping.
func (r *FileRepository) ListStalePending(ctx context.Context, cutoff time.Time) ([]*File, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+fileColumns+`
		FROM files
		WHERE processing_status = $1 AND checksum IS NULL AND created_at < $2
	`, FilePending, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale pending files: %w", err)
	}
	defer rows.Close()
	return collectFiles(rows)
}

func collectFiles(rows pgx.Rows) ([]*File, error) {
	var files []*File
	for rows.Next() {
		file := &File{}
		if err := scanFile(rows, file); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, file)
	}
	return files, rows.Err()
}
