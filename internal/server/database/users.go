package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrWorkspaceNotFound = errors.New("workspace not found")
)

// UserRepository provides CRUD operations for users and workspaces.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert inserts a user or refreshes email/display name on conflict.
func (r *UserRepository) Upsert(ctx context.Context, user *User) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO users (id, email, display_name, storage_used, storage_limit, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			display_name = EXCLUDED.display_name,
			updated_at = EXCLUDED.updated_at
	`,
		user.ID, user.Email, user.DisplayName,
		user.StorageUsed, user.StorageLimit,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by its provider-issued ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	user := &User{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, email, display_name, storage_used, storage_limit, created_at, updated_at
		FROM users WHERE id = $1
	`, id).Scan(
		&user.ID, &user.Email, &user.DisplayName,
		&user.StorageUsed, &user.StorageLimit,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// Delete removes a user row. Dependent rows cascade at the schema level,
// but callers are expected to have cleaned up storage objects first.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// AddStorageUsed atomically applies a storage delta to the user row.
// The delta may be negative.
func (r *UserRepository) AddStorageUsed(ctx context.Context, id string, delta int64) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE users
		SET storage_used = GREATEST(storage_used + $2, 0), updated_at = NOW()
		WHERE id = $1
	`, id, delta)
	if err != nil {
		return fmt.Errorf("failed to update storage used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CreateWorkspace inserts a workspace row.
func (r *UserRepository) CreateWorkspace(ctx context.Context, ws *Workspace) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO workspaces (id, user_id, name, created_at)
		VALUES ($1, $2, $3, $4)
	`, ws.ID, ws.UserID, ws.Name, ws.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	return nil
}

// GetWorkspaceByUser retrieves the workspace owned by a user.
func (r *UserRepository) GetWorkspaceByUser(ctx context.Context, userID string) (*Workspace, error) {
	ws := &Workspace{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, user_id, name, created_at
		FROM workspaces WHERE user_id = $1
	`, userID).Scan(&ws.ID, &ws.UserID, &ws.Name, &ws.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWorkspaceNotFound
		}
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return ws, nil
}

// GetWorkspaceByID retrieves a workspace by ID.
func (r *UserRepository) GetWorkspaceByID(ctx context.Context, id uuid.UUID) (*Workspace, error) {
	ws := &Workspace{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, user_id, name, created_at
		FROM workspaces WHERE id = $1
	`, id).Scan(&ws.ID, &ws.UserID, &ws.Name, &ws.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWorkspaceNotFound
		}
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return ws, nil
}
