package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	"linkdrop/internal/server/database"
	"linkdrop/internal/server/realtime"
	"linkdrop/internal/server/storage"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// BatchNotifier receives completed-batch events. NotificationService
// satisfies it.
type BatchNotifier interface {
	BatchCompleted(ctx context.Context, userID string, link *database.Link, batch *database.Batch) error
}

// BatchFileSpec declares one file of an upload session before its bytes
// arrive.
type BatchFileSpec struct {
	FileName string
	MimeType string
	Size     int64
	FolderID *uuid.UUID
}

// StartBatchParams opens an upload session against a link.
type StartBatchParams struct {
	Slug            string
	Topic           string
	Password        string
	UploaderName    string
	UploaderEmail   string
	UploaderMessage string
	Files           []BatchFileSpec
}

// StartBatchResult is returned to the uploader so each subsequent file
// upload can reference its pre-created record.
type StartBatchResult struct {
	Batch   *database.Batch
	FileIDs []uuid.UUID
}

// UploadFileParams carries one file's bytes into a previously started batch.
type UploadFileParams struct {
	BatchID      uuid.UUID
	FileID       uuid.UUID
	LinkID       uuid.UUID
	FolderID     *uuid.UUID
	LinkSlug     string
	LinkPassword string
	FileName     string
	MimeType     string
	Size         int64
	Data         io.Reader
}

// UploadFileResult is returned after a successful file upload.
type UploadFileResult struct {
	ID       uuid.UUID `json:"id"`
	Path     string    `json:"path"`
	FileName string    `json:"fileName"`
	FileSize int64     `json:"fileSize"`
}

// UploadService contains the business logic for the upload pipeline:
// batch lifecycle, file record writing and aggregate counter propagation.
type UploadService struct {
	links    LinkStore
	batches  BatchStore
	files    FileStore
	users    UserStore
	store    storage.ObjectStore
	hub      Publisher
	notifier BatchNotifier

	maxUploadSize int64
}

// NewUploadService creates a new upload service.
func NewUploadService(links LinkStore, batches BatchStore, files FileStore, users UserStore, store storage.ObjectStore, hub Publisher, notifier BatchNotifier, maxUploadSize int64) *UploadService {
	return &UploadService{
		links:         links,
		batches:       batches,
		files:         files,
		users:         users,
		store:         store,
		hub:           hub,
		notifier:      notifier,
		maxUploadSize: maxUploadSize,
	}
}

// StartBatch validates link access including the password (this is the
// submission gate the page-render check deferred to), enforces the link's
// uploader-identity requirements, and creates the batch plus one pending
// file record per declared file.
func (s *UploadService) StartBatch(ctx context.Context, params StartBatchParams) (*StartBatchResult, error) {
	slug := strings.ToLower(strings.TrimSpace(params.Slug))
	if slug == "" {
		return nil, fmt.Errorf("%w: slug is required", ErrInvalidInput)
	}

	var topic *string
	if t := strings.ToLower(strings.TrimSpace(params.Topic)); t != "" {
		topic = &t
	}

	link, err := s.links.GetBySlug(ctx, slug, topic)
	if err != nil {
		if errors.Is(err, database.ErrLinkNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to resolve link: %w", err)
	}
	if !link.IsActive {
		return nil, ErrLinkInactive
	}

	if err := checkLinkPassword(&link.Link, params.Password); err != nil {
		return nil, err
	}

	uploaderName := strings.TrimSpace(params.UploaderName)
	if link.RequireName && uploaderName == "" {
		return nil, fmt.Errorf("%w: uploader name is required", ErrInvalidInput)
	}
	if link.RequireEmail && strings.TrimSpace(params.UploaderEmail) == "" {
		return nil, fmt.Errorf("%w: uploader email is required", ErrInvalidInput)
	}
	if link.RequireMessage && strings.TrimSpace(params.UploaderMessage) == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}

	if len(params.Files) == 0 {
		return nil, fmt.Errorf("%w: at least one file is required", ErrInvalidInput)
	}
	if int64(len(params.Files))+link.TotalFiles > int64(link.MaxFiles) {
		return nil, ErrTooManyFiles
	}
	for _, spec := range params.Files {
		if spec.Size > link.MaxFileSize || spec.Size > s.maxUploadSize {
			return nil, ErrFileTooLarge
		}
	}

	now := time.Now().UTC()
	batch := &database.Batch{
		ID:           uuid.New(),
		LinkID:       link.ID,
		UploaderName: uploaderName,
		Status:       database.BatchInProgress,
		TotalFiles:   len(params.Files),
		CreatedAt:    now,
	}
	if e := strings.TrimSpace(params.UploaderEmail); e != "" {
		batch.UploaderEmail = &e
	}
	if m := strings.TrimSpace(params.UploaderMessage); m != "" {
		batch.UploaderMessage = &m
	}

	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseFailed, err)
	}

	fileIDs := make([]uuid.UUID, 0, len(params.Files))
	for _, spec := range params.Files {
		batchID := batch.ID
		linkID := link.ID
		file := &database.File{
			ID:               uuid.New(),
			BatchID:          &batchID,
			LinkID:           &linkID,
			WorkspaceID:      link.WorkspaceID,
			FolderID:         spec.FolderID,
			FileName:         sanitizeFileName(spec.FileName),
			MimeType:         defaultMime(spec.MimeType),
			Size:             spec.Size,
			ProcessingStatus: database.FilePending,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.files.Create(ctx, file); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseFailed, err)
		}
		fileIDs = append(fileIDs, file.ID)
	}

	slog.Info("batch started",
		"batch_id", batch.ID,
		"link_id", link.ID,
		"files", len(fileIDs),
		"uploader", uploaderName,
	)
	return &StartBatchResult{Batch: batch, FileIDs: fileIDs}, nil
}

// UploadFile persists one file's bytes and metadata. The file record is
// only marked completed after the object store confirms the byte write; if
// the database update after a successful write fails, the stored object is
// deleted again so no unreachable storage is ever billed.
func (s *UploadService) UploadFile(ctx context.Context, params UploadFileParams) (*UploadFileResult, error) {
	if params.BatchID == uuid.Nil || params.FileID == uuid.Nil || params.LinkID == uuid.Nil {
		return nil, fmt.Errorf("%w: batchId, fileId and linkId are required", ErrInvalidInput)
	}
	if params.Data == nil {
		return nil, fmt.Errorf("%w: file is required", ErrInvalidInput)
	}

	batch, err := s.batches.GetByID(ctx, params.BatchID)
	if err != nil {
		if errors.Is(err, database.ErrBatchNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrDatabaseFailed, err)
	}
	if batch.LinkID != params.LinkID {
		return nil, ErrNotFound
	}
	if batch.Status != database.BatchInProgress {
		return nil, ErrBatchFinished
	}

	link, err := s.links.GetByID(ctx, params.LinkID)
	if err != nil {
		if errors.Is(err, database.ErrLinkNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrDatabaseFailed, err)
	}
	if !link.IsActive {
		return nil, ErrLinkInactive
	}
	if slug := strings.ToLower(strings.TrimSpace(params.LinkSlug)); slug != "" && slug != link.Slug {
		return nil, ErrNotFound
	}
	if err := checkLinkPassword(link, params.LinkPassword); err != nil {
		return nil, err
	}

	file, err := s.files.GetByID(ctx, params.FileID)
	if err != nil {
		if errors.Is(err, database.ErrFileNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrDatabaseFailed, err)
	}
	if file.BatchID == nil || *file.BatchID != batch.ID {
		return nil, ErrNotFound
	}
	if file.ProcessingStatus != database.FilePending {
		return nil, fmt.Errorf("%w: file was already processed", ErrInvalidInput)
	}
	// The folder was fixed when the batch was declared; a client resending
	// a different one is confused, not authoritative.
	if params.FolderID != nil {
		if file.FolderID == nil || *file.FolderID != *params.FolderID {
			return nil, fmt.Errorf("%w: folder does not match the declared file", ErrInvalidInput)
		}
	}

	if params.Size > link.MaxFileSize || params.Size > s.maxUploadSize {
		return nil, ErrFileTooLarge
	}

	ws, err := s.users.GetWorkspaceByID(ctx, link.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseFailed, err)
	}
	owner, err := s.users.GetByID(ctx, ws.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseFailed, err)
	}
	if owner.StorageUsed+params.Size > owner.StorageLimit {
		return nil, ErrStorageQuota
	}

	fileName := file.FileName
	if params.FileName != "" {
		fileName = sanitizeFileName(params.FileName)
	}
	objectPath := buildObjectPath(link.ID, batch.ID, fileName)

	hasher := sha256.New()
	tee := io.TeeReader(params.Data, hasher)

	storedPath, err := s.store.Upload(ctx, objectPath, tee, params.Size, defaultMime(params.MimeType))
	if err != nil {
		if markErr := s.files.MarkFailed(ctx, file.ID); markErr != nil {
			slog.Error("failed to mark file failed", "file_id", file.ID, "error", markErr)
		}
		if resErr := s.batches.ApplyFileResult(ctx, batch.ID, 0, 1, 0); resErr != nil {
			slog.Error("failed to record batch failure", "batch_id", batch.ID, "error", resErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	checksum := hex.EncodeToString(hasher.Sum(nil))

	if err := s.files.MarkCompleted(ctx, file.ID, storedPath, checksum, params.Size); err != nil {
		// Compensating delete: the bytes landed but the record didn't, so
		// remove the object rather than strand billed storage.
		if delErr := s.store.Delete(ctx, []string{storedPath}); delErr != nil {
			slog.Error("compensating storage delete failed", "path", storedPath, "error", delErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrDatabaseFailed, err)
	}

	// Aggregate propagation is best-effort atomic increments; a failure
	// here leaves the file intact and is logged, not surfaced.
	now := time.Now().UTC()
	if err := s.batches.ApplyFileResult(ctx, batch.ID, 1, 0, params.Size); err != nil {
		slog.Error("failed to update batch progress", "batch_id", batch.ID, "error", err)
	}
	if err := s.links.ApplyUploadDelta(ctx, link.ID, 1, params.Size, &now); err != nil {
		slog.Error("failed to update link totals", "link_id", link.ID, "error", err)
	}
	if err := s.users.AddStorageUsed(ctx, owner.ID, params.Size); err != nil {
		slog.Error("failed to update storage used", "user_id", owner.ID, "error", err)
	}

	payload := map[string]any{
		"fileId":  file.ID.String(),
		"batchId": batch.ID.String(),
		"linkId":  link.ID.String(),
	}
	s.hub.Publish(realtime.Event{Topic: realtime.TopicLinkFiles(link.ID), Kind: realtime.KindFileUpdate, Payload: payload})
	s.hub.Publish(realtime.Event{Topic: realtime.TopicUserFiles(owner.ID), Kind: realtime.KindFileUpdate, Payload: payload})
	s.hub.Publish(realtime.Event{Topic: realtime.TopicWorkspace(ws.ID), Kind: realtime.KindFileUpdate, Payload: payload})

	slog.Info("file uploaded",
		"file_id", file.ID,
		"batch_id", batch.ID,
		"link_id", link.ID,
		"size", params.Size,
		"path", storedPath,
	)

	return &UploadFileResult{
		ID:       file.ID,
		Path:     storedPath,
		FileName: fileName,
		FileSize: params.Size,
	}, nil
}

// CompleteBatch moves a batch to its terminal status and fires the
// owner-facing notification. Completion is idempotent: a batch already in
// a terminal state is returned unchanged.
func (s *UploadService) CompleteBatch(ctx context.Context, batchID uuid.UUID) (*database.Batch, error) {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, database.ErrBatchNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrDatabaseFailed, err)
	}
	if batch.Status != database.BatchInProgress {
		return batch, nil
	}

	status := database.BatchCompleted
	if batch.ProcessedFiles == 0 {
		status = database.BatchFailed
	}
	now := time.Now().UTC()
	if err := s.batches.SetStatus(ctx, batch.ID, status, &now); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseFailed, err)
	}
	batch.Status = status
	batch.CompletedAt = &now

	if status == database.BatchCompleted {
		link, err := s.links.GetByID(ctx, batch.LinkID)
		if err != nil {
			slog.Error("failed to load link for notification", "link_id", batch.LinkID, "error", err)
			return batch, nil
		}
		ws, err := s.users.GetWorkspaceByID(ctx, link.WorkspaceID)
		if err != nil {
			slog.Error("failed to resolve workspace for notification", "workspace_id", link.WorkspaceID, "error", err)
			return batch, nil
		}
		if err := s.notifier.BatchCompleted(ctx, ws.UserID, link, batch); err != nil {
			// Notifications are a UX enhancement; the batch itself is done.
			slog.Error("failed to notify batch completion", "batch_id", batch.ID, "error", err)
		}
	}

	slog.Info("batch finished", "batch_id", batch.ID, "status", status, "processed", batch.ProcessedFiles, "failed", batch.FailedFiles)
	return batch, nil
}

// DeleteFile removes an owned file: exactly one storage delete attempt for
// its path, then the row, then negative aggregate deltas.
func (s *UploadService) DeleteFile(ctx context.Context, userID string, fileID uuid.UUID) error {
	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, database.ErrFileNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrDatabaseFailed, err)
	}

	ws, err := s.users.GetWorkspaceByID(ctx, file.WorkspaceID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseFailed, err)
	}
	if ws.UserID != userID {
		return ErrNotFound
	}

	if file.StoragePath != nil {
		if err := s.store.Delete(ctx, []string{*file.StoragePath}); err != nil {
			slog.Error("failed to delete storage object", "file_id", fileID, "error", err)
		}
	}

	if err := s.files.Delete(ctx, fileID); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseFailed, err)
	}

	if file.ProcessingStatus == database.FileCompleted {
		if file.LinkID != nil {
			if err := s.links.ApplyUploadDelta(ctx, *file.LinkID, -1, -file.Size, nil); err != nil {
				slog.Error("failed to update link totals", "link_id", *file.LinkID, "error", err)
			}
		}
		if err := s.users.AddStorageUsed(ctx, userID, -file.Size); err != nil {
			slog.Error("failed to update storage used", "user_id", userID, "error", err)
		}
	}

	s.hub.Publish(realtime.Event{
		Topic:   realtime.TopicWorkspace(ws.ID),
		Kind:    realtime.KindFileUpdate,
		Payload: map[string]any{"fileId": fileID.String(), "deleted": true},
	})

	slog.Info("file deleted", "file_id", fileID, "size", file.Size)
	return nil
}

// ListFiles returns all file records in the user's workspace.
func (s *UploadService) ListFiles(ctx context.Context, userID string) ([]*database.File, error) {
	ws, err := s.users.GetWorkspaceByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace: %w", err)
	}
	return s.files.ListByWorkspace(ctx, ws.ID)
}

// --- Helpers ---

func checkLinkPassword(link *database.Link, password string) error {
	if link.PasswordHash == nil {
		return nil
	}
	if password == "" {
		return ErrPasswordRequired
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*link.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidPassword
	}
	return nil
}

// buildObjectPath embeds a millisecond timestamp next to the sanitized
// name, making path collisions between concurrent uploaders practically
// impossible while keeping the create-only store contract meaningful.
func buildObjectPath(linkID, batchID uuid.UUID, fileName string) string {
	return fmt.Sprintf("links/%s/%s/%d_%s",
		linkID, batchID, time.Now().UnixMilli(), fileName)
}

var unsafePathChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// sanitizeFileName strips directory components, replaces unsafe characters
// and limits length.
func sanitizeFileName(name string) string {
	// Normalize Windows-style backslashes before taking the base name.
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	name = unsafePathChars.ReplaceAllString(name, "_")

	if len(name) > 255 {
		ext := path.Ext(name)
		// An oversized "extension" is just a name that happens to end in a
		// dot; don't let it force the slice bound negative.
		if len(ext) > 32 {
			ext = ""
		}
		name = name[:255-len(ext)] + ext
	}

	if name == "" || name == "." || name == "_" {
		name = "upload.bin"
	}
	return name
}

func defaultMime(mime string) string {
	if mime == "" {
		return "application/octet-stream"
	}
	return mime
}
