package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrFolderNotFound = errors.New("folder not found")

const folderColumns = `id, workspace_id, link_id, parent_folder_id, name, path, depth, created_at`

// FolderRepository provides CRUD operations for folders.
type FolderRepository struct {
	db *DB
}

// NewFolderRepository creates a new FolderRepository.
func NewFolderRepository(db *DB) *FolderRepository {
	return &FolderRepository{db: db}
}

func scanFolder(row pgx.Row, f *Folder) error {
	return row.Scan(
		&f.ID, &f.WorkspaceID, &f.LinkID, &f.ParentFolderID,
		&f.Name, &f.Path, &f.Depth, &f.CreatedAt,
	)
}

// Create inserts a new folder record.
func (r *FolderRepository) Create(ctx context.Context, folder *Folder) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO folders (id, workspace_id, link_id, parent_folder_id, name, path, depth, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		folder.ID, folder.WorkspaceID, folder.LinkID, folder.ParentFolderID,
		folder.Name, folder.Path, folder.Depth, folder.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create folder: %w", err)
	}
	return nil
}

// GetByID retrieves a folder by its ID.
func (r *FolderRepository) GetByID(ctx context.Context, id uuid.UUID) (*Folder, error) {
	folder := &Folder{}
	row := r.db.Pool.QueryRow(ctx,
		"SELECT "+folderColumns+" FROM folders WHERE id = $1", id)
	if err := scanFolder(row, folder); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFolderNotFound
		}
		return nil, fmt.Errorf("failed to get folder: %w", err)
	}
	return folder, nil
}

// ListByWorkspace returns all folders in a workspace ordered by path.
func (r *FolderRepository) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*Folder, error) {
	rows, err := r.db.Pool.Query(ctx,
		"SELECT "+folderColumns+" FROM folders WHERE workspace_id = $1 ORDER BY path",
		workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	defer rows.Close()

	var folders []*Folder
	for rows.Next() {
		folder := &Folder{}
		if err := scanFolder(rows, folder); err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		folders = append(folders, folder)
	}
	return folders, rows.Err()
}

// UpdatePlacement rewrites a folder's parent, path and depth after a
// rename or move. Paths are computed by the caller, never by clients.
func (r *FolderRepository) UpdatePlacement(ctx context.Context, id uuid.UUID, parentID *uuid.UUID, name, path string, depth int) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE folders SET parent_folder_id = $2, name = $3, path = $4, depth = $5
		WHERE id = $1
	`, id, parentID, name, path, depth)
	if err != nil {
		return fmt.Errorf("failed to update folder placement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFolderNotFound
	}
	return nil
}

// SetLink attaches or detaches the generated link for a shared folder.
func (r *FolderRepository) SetLink(ctx context.Context, id uuid.UUID, linkID *uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx,
		"UPDATE folders SET link_id = $2 WHERE id = $1", id, linkID)
	if err != nil {
		return fmt.Errorf("failed to set folder link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFolderNotFound
	}
	return nil
}

// DeleteMany removes a set of folder records. Children must be listed
// before their ancestors are deleted; one statement handles both since the
// self-reference has no cascade.
func (r *FolderRepository) DeleteMany(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Pool.Exec(ctx, "DELETE FROM folders WHERE id = ANY($1)", ids)
	if err != nil {
		return fmt.Errorf("failed to delete folders: %w", err)
	}
	return nil
}
