package service

import (
	"context"
	"time"

	"linkdrop/internal/server/database"
	"linkdrop/internal/server/realtime"

	"github.com/google/uuid"
)

// Store interfaces consumed by the services. The database package's
// repositories satisfy them; tests substitute in-memory fakes.

type LinkStore interface {
	Create(ctx context.Context, link *database.Link) error
	GetByID(ctx context.Context, id uuid.UUID) (*database.Link, error)
	GetBySlug(ctx context.Context, slug string, topic *string) (*database.LinkWithOwner, error)
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*database.Link, error)
	Update(ctx context.Context, link *database.Link) error
	Delete(ctx context.Context, id uuid.UUID) error
	ApplyUploadDelta(ctx context.Context, id uuid.UUID, fileDelta, sizeDelta int64, uploadedAt *time.Time) error
	AdjustUnread(ctx context.Context, id uuid.UUID, delta int64) error
	ResetUnread(ctx context.Context, ids []uuid.UUID) error
}

type BatchStore interface {
	Create(ctx context.Context, batch *database.Batch) error
	GetByID(ctx context.Context, id uuid.UUID) (*database.Batch, error)
	ApplyFileResult(ctx context.Context, id uuid.UUID, processedDelta, failedDelta int, sizeDelta int64) error
	SetStatus(ctx context.Context, id uuid.UUID, status string, completedAt *time.Time) error
}

type FileStore interface {
	Create(ctx context.Context, file *database.File) error
	GetByID(ctx context.Context, id uuid.UUID) (*database.File, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, storagePath, checksum string, size int64) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteMany(ctx context.Context, ids []uuid.UUID) error
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*database.File, error)
	ListByLink(ctx context.Context, linkID uuid.UUID) ([]*database.File, error)
	ListByFolders(ctx context.Context, folderIDs []uuid.UUID) ([]*database.File, error)
}

type FolderStore interface {
	Create(ctx context.Context, folder *database.Folder) error
	GetByID(ctx context.Context, id uuid.UUID) (*database.Folder, error)
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*database.Folder, error)
	UpdatePlacement(ctx context.Context, id uuid.UUID, parentID *uuid.UUID, name, path string, depth int) error
	SetLink(ctx context.Context, id uuid.UUID, linkID *uuid.UUID) error
	DeleteMany(ctx context.Context, ids []uuid.UUID) error
}

type NotificationStore interface {
	Create(ctx context.Context, n *database.Notification) error
	GetOwned(ctx context.Context, userID string, id uuid.UUID) (*database.Notification, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]*database.NotificationWithLink, error)
	MarkRead(ctx context.Context, id uuid.UUID) (bool, error)
	MarkAllRead(ctx context.Context, userID string) ([]uuid.UUID, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Publisher is the realtime fan-out surface the services publish to.
// realtime.Hub satisfies it.
type Publisher interface {
	Publish(ev realtime.Event)
}

// Limiter gates rate-limited write actions. The API package's token-bucket
// limiter satisfies it.
type Limiter interface {
	Allow(key string) bool
}

type UserStore interface {
	Upsert(ctx context.Context, user *database.User) error
	GetByID(ctx context.Context, id string) (*database.User, error)
	Delete(ctx context.Context, id string) error
	AddStorageUsed(ctx context.Context, id string, delta int64) error
	CreateWorkspace(ctx context.Context, ws *database.Workspace) error
	GetWorkspaceByUser(ctx context.Context, userID string) (*database.Workspace, error)
	GetWorkspaceByID(ctx context.Context, id uuid.UUID) (*database.Workspace, error)
}
