package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"linkdrop/internal/server/database"

	"github.com/google/uuid"
)

// workspaceCreateAttempts bounds the workspace-provisioning retry on user
// creation. This is the only retried write path in the system.
const workspaceCreateAttempts = 3

// UserService mirrors identity-provider lifecycle events into local state.
type UserService struct {
	users UserStore
	files FileStore
	store ObjectDeleter

	defaultStorageLimit int64
}

// NewUserService creates a new user service.
func NewUserService(users UserStore, files FileStore, store ObjectDeleter, defaultStorageLimit int64) *UserService {
	return &UserService{
		users:               users,
		files:               files,
		store:               store,
		defaultStorageLimit: defaultStorageLimit,
	}
}

// HandleCreated provisions the user row and its workspace. Workspace
// creation is retried a bounded number of times; a user without a
// workspace cannot hold any data.
func (s *UserService) HandleCreated(ctx context.Context, id, email, displayName string) error {
	if id == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	user := &database.User{
		ID:           id,
		Email:        email,
		DisplayName:  displayName,
		StorageLimit: s.defaultStorageLimit,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	if _, err := s.users.GetWorkspaceByUser(ctx, id); err == nil {
		return nil // already provisioned, webhook redelivery
	} else if !errors.Is(err, database.ErrWorkspaceNotFound) {
		return fmt.Errorf("failed to check workspace: %w", err)
	}

	name := displayName
	if name == "" {
		name = "Workspace"
	}

	var lastErr error
	for attempt := 1; attempt <= workspaceCreateAttempts; attempt++ {
		ws := &database.Workspace{
			ID:        uuid.New(),
			UserID:    id,
			Name:      name,
			CreatedAt: time.Now().UTC(),
		}
		if lastErr = s.users.CreateWorkspace(ctx, ws); lastErr == nil {
			slog.Info("user provisioned", "user_id", id, "workspace_id", ws.ID, "attempt", attempt)
			return nil
		}
		slog.Warn("workspace creation failed",
			"user_id", id, "attempt", attempt, "error", lastErr)
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	return fmt.Errorf("failed to create workspace after %d attempts: %w", workspaceCreateAttempts, lastErr)
}

// Workspace resolves the user's workspace.
func (s *UserService) Workspace(ctx context.Context, userID string) (*database.Workspace, error) {
	ws, err := s.users.GetWorkspaceByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrWorkspaceNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve workspace: %w", err)
	}
	return ws, nil
}

// HandleUpdated refreshes the mirrored identity fields.
func (s *UserService) HandleUpdated(ctx context.Context, id, email, displayName string) error {
	if id == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	existing, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			// Update before create can happen on webhook reordering;
			// treat it as a create.
			return s.HandleCreated(ctx, id, email, displayName)
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	existing.Email = email
	existing.DisplayName = displayName
	existing.UpdatedAt = time.Now().UTC()
	if err := s.users.Upsert(ctx, existing); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// HandleDeleted removes the user and everything they own. Storage objects
// go first in one batch; the user row delete then cascades every dependent
// row at the schema level. Cascading by workspace covers every file, since
// all files carry a workspace owner.
func (s *UserService) HandleDeleted(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	ws, err := s.users.GetWorkspaceByUser(ctx, id)
	if err != nil && !errors.Is(err, database.ErrWorkspaceNotFound) {
		return fmt.Errorf("failed to resolve workspace: %w", err)
	}

	if ws != nil {
		files, err := s.files.ListByWorkspace(ctx, ws.ID)
		if err != nil {
			return fmt.Errorf("failed to list workspace files: %w", err)
		}
		var paths []string
		for _, f := range files {
			if f.StoragePath != nil {
				paths = append(paths, *f.StoragePath)
			}
		}
		if len(paths) > 0 {
			if err := s.store.Delete(ctx, paths); err != nil {
				slog.Error("failed to delete user storage objects", "user_id", id, "error", err)
			}
		}
	}

	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil // redelivered delete, nothing left to do
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}

	slog.Info("user deleted", "user_id", id)
	return nil
}
