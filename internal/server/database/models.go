package database

import (
	"time"

	"github.com/google/uuid"
)

// User is an account mirrored from the identity provider. The ID is the
// provider-issued opaque string, not a UUID.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	StorageUsed  int64
	StorageLimit int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Workspace is a user's file storage root. 1:1 with users in current scope.
type Workspace struct {
	ID        uuid.UUID
	UserID    string
	Name      string
	CreatedAt time.Time
}

// Link is a shareable upload destination.
type Link struct {
	ID             uuid.UUID
	WorkspaceID    uuid.UUID
	Slug           string // always stored lowercase
	Topic          *string
	Title          string
	CustomMessage  string
	IsActive       bool
	IsPublic       bool
	PasswordHash   *string // nil when no password set
	RequireName    bool
	RequireEmail   bool
	RequireMessage bool
	MaxFiles       int
	MaxFileSize    int64
	TotalFiles     int64
	TotalSize      int64
	UnreadUploads  int64
	LastUploadAt   *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Batch statuses.
const (
	BatchInProgress = "in_progress"
	BatchCompleted  = "completed"
	BatchFailed     = "failed"
	BatchExpired    = "expired"
)

// Batch groups the files one uploader submitted in one session.
type Batch struct {
	ID              uuid.UUID
	LinkID          uuid.UUID
	UploaderName    string
	UploaderEmail   *string
	UploaderMessage *string
	Status          string
	TotalFiles      int
	ProcessedFiles  int
	FailedFiles     int
	TotalSize       int64
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

// File processing statuses.
const (
	FilePending   = "pending"
	FileCompleted = "completed"
	FileFailed    = "failed"
)

// File is one uploaded artifact. StoragePath is nil until the object store
// has confirmed the byte write.
type File struct {
	ID               uuid.UUID
	BatchID          *uuid.UUID
	LinkID           *uuid.UUID
	WorkspaceID      uuid.UUID
	FolderID         *uuid.UUID
	FileName         string
	StoragePath      *string
	MimeType         string
	Size             int64
	Checksum         *string
	ProcessingStatus string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Folder is a hierarchical container. Path and Depth are recomputed
// server-side on every move; they are never taken from client input.
type Folder struct {
	ID             uuid.UUID
	WorkspaceID    uuid.UUID
	LinkID         *uuid.UUID // set when the folder is shared via a generated link
	ParentFolderID *uuid.UUID
	Name           string
	Path           string
	Depth          int
	CreatedAt      time.Time
}

// Notification is one per completed batch or event.
type Notification struct {
	ID        uuid.UUID
	UserID    string
	LinkID    uuid.UUID
	BatchID   *uuid.UUID
	Title     string
	Body      string
	IsRead    bool
	ReadAt    *time.Time
	CreatedAt time.Time
}

// NotificationWithLink joins a notification with its link's title for list
// views.
type NotificationWithLink struct {
	Notification
	LinkTitle string
}

// Stats holds aggregate server statistics.
type Stats struct {
	TotalLinks          int64
	ActiveLinks         int64
	TotalFiles          int64
	TotalBatches        int64
	StorageUsed         int64
	PendingFiles        int64
	UnreadNotifications int64
}
