package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"linkdrop/internal/server/database"
	"linkdrop/internal/server/realtime"
	"linkdrop/internal/server/storage"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// In-memory fakes standing in for the database repositories, the object
// store and the hub. They keep just enough state to verify counter and
// cascade behavior.

type fakeLinkStore struct {
	mu      sync.Mutex
	links   map[uuid.UUID]*database.Link
	owners  map[uuid.UUID]string // workspace owner display names by link
	creates int
}

func newFakeLinkStore() *fakeLinkStore {
	return &fakeLinkStore{
		links:  make(map[uuid.UUID]*database.Link),
		owners: make(map[uuid.UUID]string),
	}
}

func (s *fakeLinkStore) Create(ctx context.Context, link *database.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.links {
		sameTopic := (existing.Topic == nil && link.Topic == nil) ||
			(existing.Topic != nil && link.Topic != nil && *existing.Topic == *link.Topic)
		if existing.WorkspaceID == link.WorkspaceID && existing.Slug == link.Slug && sameTopic {
			return database.ErrSlugTaken
		}
	}
	cp := *link
	s.links[link.ID] = &cp
	s.creates++
	return nil
}

func (s *fakeLinkStore) GetByID(ctx context.Context, id uuid.UUID) (*database.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[id]
	if !ok {
		return nil, database.ErrLinkNotFound
	}
	cp := *link
	return &cp, nil
}

func (s *fakeLinkStore) GetBySlug(ctx context.Context, slug string, topic *string) (*database.LinkWithOwner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, link := range s.links {
		sameTopic := (link.Topic == nil && topic == nil) ||
			(link.Topic != nil && topic != nil && *link.Topic == *topic)
		if link.Slug == slug && sameTopic {
			cp := *link
			return &database.LinkWithOwner{
				Link:             cp,
				OwnerDisplayName: s.owners[link.ID],
			}, nil
		}
	}
	return nil, database.ErrLinkNotFound
}

func (s *fakeLinkStore) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*database.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*database.Link
	for _, link := range s.links {
		if link.WorkspaceID == workspaceID {
			cp := *link
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeLinkStore) Update(ctx context.Context, link *database.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[link.ID]; !ok {
		return database.ErrLinkNotFound
	}
	cp := *link
	s.links[link.ID] = &cp
	return nil
}

func (s *fakeLinkStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[id]; !ok {
		return database.ErrLinkNotFound
	}
	delete(s.links, id)
	return nil
}

func (s *fakeLinkStore) ApplyUploadDelta(ctx context.Context, id uuid.UUID, fileDelta, sizeDelta int64, uploadedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[id]
	if !ok {
		return database.ErrLinkNotFound
	}
	link.TotalFiles += fileDelta
	link.TotalSize += sizeDelta
	if link.TotalFiles < 0 {
		link.TotalFiles = 0
	}
	if link.TotalSize < 0 {
		link.TotalSize = 0
	}
	if uploadedAt != nil {
		link.LastUploadAt = uploadedAt
	}
	return nil
}

func (s *fakeLinkStore) AdjustUnread(ctx context.Context, id uuid.UUID, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[id]
	if !ok {
		return database.ErrLinkNotFound
	}
	link.UnreadUploads += delta
	if link.UnreadUploads < 0 {
		link.UnreadUploads = 0
	}
	return nil
}

func (s *fakeLinkStore) ResetUnread(ctx context.Context, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if link, ok := s.links[id]; ok {
			link.UnreadUploads = 0
		}
	}
	return nil
}

func (s *fakeLinkStore) unread(id uuid.UUID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.links[id].UnreadUploads
}

type fakeBatchStore struct {
	mu      sync.Mutex
	batches map[uuid.UUID]*database.Batch
}

func newFakeBatchStore() *fakeBatchStore {
	return &fakeBatchStore{batches: make(map[uuid.UUID]*database.Batch)}
}

func (s *fakeBatchStore) Create(ctx context.Context, batch *database.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *batch
	s.batches[batch.ID] = &cp
	return nil
}

func (s *fakeBatchStore) GetByID(ctx context.Context, id uuid.UUID) (*database.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[id]
	if !ok {
		return nil, database.ErrBatchNotFound
	}
	cp := *batch
	return &cp, nil
}

func (s *fakeBatchStore) ApplyFileResult(ctx context.Context, id uuid.UUID, processedDelta, failedDelta int, sizeDelta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[id]
	if !ok {
		return database.ErrBatchNotFound
	}
	batch.ProcessedFiles += processedDelta
	batch.FailedFiles += failedDelta
	batch.TotalSize += sizeDelta
	return nil
}

func (s *fakeBatchStore) SetStatus(ctx context.Context, id uuid.UUID, status string, completedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[id]
	if !ok {
		return database.ErrBatchNotFound
	}
	batch.Status = status
	batch.CompletedAt = completedAt
	return nil
}

type fakeFileStore struct {
	mu    sync.Mutex
	files map[uuid.UUID]*database.File

	failMarkCompleted bool
}

func newFakeFileStore() *fakeFileStore {
	return &fakeFileStore{files: make(map[uuid.UUID]*database.File)}
}

func (s *fakeFileStore) Create(ctx context.Context, file *database.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *file
	s.files[file.ID] = &cp
	return nil
}

func (s *fakeFileStore) GetByID(ctx context.Context, id uuid.UUID) (*database.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, ok := s.files[id]
	if !ok {
		return nil, database.ErrFileNotFound
	}
	cp := *file
	return &cp, nil
}

func (s *fakeFileStore) MarkCompleted(ctx context.Context, id uuid.UUID, storagePath, checksum string, size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failMarkCompleted {
		return errDeliberate
	}
	file, ok := s.files[id]
	if !ok {
		return database.ErrFileNotFound
	}
	file.StoragePath = &storagePath
	file.Checksum = &checksum
	file.Size = size
	file.ProcessingStatus = database.FileCompleted
	return nil
}

func (s *fakeFileStore) MarkFailed(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, ok := s.files[id]
	if !ok {
		return database.ErrFileNotFound
	}
	file.ProcessingStatus = database.FileFailed
	return nil
}

func (s *fakeFileStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[id]; !ok {
		return database.ErrFileNotFound
	}
	delete(s.files, id)
	return nil
}

func (s *fakeFileStore) DeleteMany(ctx context.Context, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.files, id)
	}
	return nil
}

func (s *fakeFileStore) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*database.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*database.File
	for _, file := range s.files {
		if file.WorkspaceID == workspaceID {
			cp := *file
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeFileStore) ListByLink(ctx context.Context, linkID uuid.UUID) ([]*database.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*database.File
	for _, file := range s.files {
		if file.LinkID != nil && *file.LinkID == linkID {
			cp := *file
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeFileStore) ListByFolders(ctx context.Context, folderIDs []uuid.UUID) ([]*database.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[uuid.UUID]bool, len(folderIDs))
	for _, id := range folderIDs {
		wanted[id] = true
	}
	var out []*database.File
	for _, file := range s.files {
		if file.FolderID != nil && wanted[*file.FolderID] {
			cp := *file
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeFileStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

type fakeFolderStore struct {
	mu      sync.Mutex
	folders map[uuid.UUID]*database.Folder
}

func newFakeFolderStore() *fakeFolderStore {
	return &fakeFolderStore{folders: make(map[uuid.UUID]*database.Folder)}
}

func (s *fakeFolderStore) Create(ctx context.Context, folder *database.Folder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *folder
	s.folders[folder.ID] = &cp
	return nil
}

func (s *fakeFolderStore) GetByID(ctx context.Context, id uuid.UUID) (*database.Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	folder, ok := s.folders[id]
	if !ok {
		return nil, database.ErrFolderNotFound
	}
	cp := *folder
	return &cp, nil
}

func (s *fakeFolderStore) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*database.Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*database.Folder
	for _, folder := range s.folders {
		if folder.WorkspaceID == workspaceID {
			cp := *folder
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeFolderStore) UpdatePlacement(ctx context.Context, id uuid.UUID, parentID *uuid.UUID, name, path string, depth int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	folder, ok := s.folders[id]
	if !ok {
		return database.ErrFolderNotFound
	}
	folder.ParentFolderID = parentID
	folder.Name = name
	folder.Path = path
	folder.Depth = depth
	return nil
}

func (s *fakeFolderStore) SetLink(ctx context.Context, id uuid.UUID, linkID *uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	folder, ok := s.folders[id]
	if !ok {
		return database.ErrFolderNotFound
	}
	folder.LinkID = linkID
	return nil
}

func (s *fakeFolderStore) DeleteMany(ctx context.Context, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.folders, id)
	}
	return nil
}

func (s *fakeFolderStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.folders)
}

type fakeNotificationStore struct {
	mu            sync.Mutex
	notifications map[uuid.UUID]*database.Notification
}

func newFakeNotificationStore() *fakeNotificationStore {
	return &fakeNotificationStore{notifications: make(map[uuid.UUID]*database.Notification)}
}

func (s *fakeNotificationStore) Create(ctx context.Context, n *database.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *n
	s.notifications[n.ID] = &cp
	return nil
}

func (s *fakeNotificationStore) GetOwned(ctx context.Context, userID string, id uuid.UUID) (*database.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.UserID != userID {
		return nil, database.ErrNotificationNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *fakeNotificationStore) ListForUser(ctx context.Context, userID string, limit int) ([]*database.NotificationWithLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*database.NotificationWithLink
	for _, n := range s.notifications {
		if n.UserID == userID && len(out) < limit {
			out = append(out, &database.NotificationWithLink{Notification: *n})
		}
	}
	return out, nil
}

func (s *fakeNotificationStore) MarkRead(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return false, database.ErrNotificationNotFound
	}
	if n.IsRead {
		return false, nil
	}
	n.IsRead = true
	now := time.Now().UTC()
	n.ReadAt = &now
	return true, nil
}

func (s *fakeNotificationStore) MarkAllRead(ctx context.Context, userID string) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var linkIDs []uuid.UUID
	for _, n := range s.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			linkIDs = append(linkIDs, n.LinkID)
		}
	}
	return linkIDs, nil
}

func (s *fakeNotificationStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notifications[id]; !ok {
		return database.ErrNotificationNotFound
	}
	delete(s.notifications, id)
	return nil
}

type fakeUserStore struct {
	mu         sync.Mutex
	users      map[string]*database.User
	workspaces map[uuid.UUID]*database.Workspace

	failCreateWorkspace int // fail the first N CreateWorkspace calls
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		users:      make(map[string]*database.User),
		workspaces: make(map[uuid.UUID]*database.Workspace),
	}
}

func (s *fakeUserStore) Upsert(ctx context.Context, user *database.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.users[user.ID]; ok {
		used := existing.StorageUsed
		cp := *user
		cp.StorageUsed = used
		s.users[user.ID] = &cp
		return nil
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *fakeUserStore) GetByID(ctx context.Context, id string) (*database.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, database.ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

func (s *fakeUserStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return database.ErrUserNotFound
	}
	delete(s.users, id)
	for wsID, ws := range s.workspaces {
		if ws.UserID == id {
			delete(s.workspaces, wsID)
		}
	}
	return nil
}

func (s *fakeUserStore) AddStorageUsed(ctx context.Context, id string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return database.ErrUserNotFound
	}
	user.StorageUsed += delta
	if user.StorageUsed < 0 {
		user.StorageUsed = 0
	}
	return nil
}

func (s *fakeUserStore) CreateWorkspace(ctx context.Context, ws *database.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreateWorkspace > 0 {
		s.failCreateWorkspace--
		return errDeliberate
	}
	cp := *ws
	s.workspaces[ws.ID] = &cp
	return nil
}

func (s *fakeUserStore) GetWorkspaceByUser(ctx context.Context, userID string) (*database.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ws := range s.workspaces {
		if ws.UserID == userID {
			cp := *ws
			return &cp, nil
		}
	}
	return nil, database.ErrWorkspaceNotFound
}

func (s *fakeUserStore) GetWorkspaceByID(ctx context.Context, id uuid.UUID) (*database.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.workspaces[id]
	if !ok {
		return nil, database.ErrWorkspaceNotFound
	}
	cp := *ws
	return &cp, nil
}

func (s *fakeUserStore) storageUsed(id string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id].StorageUsed
}

// fakeObjectStore records uploads and deletions. Each Delete call counts
// once regardless of how many paths it carries, so tests can assert that
// cascades batch their storage deletes.
type fakeObjectStore struct {
	mu          sync.Mutex
	objects     map[string][]byte
	deleteCalls int
	deleted     []string

	failUpload bool
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (s *fakeObjectStore) Upload(ctx context.Context, path string, data io.Reader, size int64, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpload {
		return "", errDeliberate
	}
	if _, exists := s.objects[path]; exists {
		return "", storage.ErrObjectExists
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	s.objects[path] = b
	return path, nil
}

func (s *fakeObjectStore) Delete(ctx context.Context, paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls++
	for _, p := range paths {
		delete(s.objects, p)
		s.deleted = append(s.deleted, p)
	}
	return nil
}

func (s *fakeObjectStore) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for p := range s.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeObjectStore) objectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// fakeHub records published events.
type fakeHub struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (h *fakeHub) Publish(ev realtime.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *fakeHub) kinds() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.events))
	for _, ev := range h.events {
		out = append(out, ev.Kind)
	}
	return out
}

// fakeLimiter allows or denies everything.
type fakeLimiter struct {
	allow bool
	keys  []string
}

func (l *fakeLimiter) Allow(key string) bool {
	l.keys = append(l.keys, key)
	return l.allow
}

// fakeNotifier records BatchCompleted calls.
type fakeNotifier struct {
	mu    sync.Mutex
	calls []uuid.UUID // batch IDs
}

func (n *fakeNotifier) BatchCompleted(ctx context.Context, userID string, link *database.Link, batch *database.Batch) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, batch.ID)
	return nil
}

var errDeliberate = errors.New("deliberate failure")

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}
