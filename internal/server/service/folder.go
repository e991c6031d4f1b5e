package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"linkdrop/internal/server/database"
	"linkdrop/internal/server/realtime"

	"github.com/google/uuid"
)

// maxFolderDepth caps the folder hierarchy.
const maxFolderDepth = 10

var (
	ErrFolderTooDeep = errors.New("folder nesting too deep")
	ErrFolderCycle   = errors.New("cannot move a folder into its own subtree")
)

// NodeType discriminates tree nodes.
type NodeType string

const (
	NodeFolder NodeType = "folder"
	NodeFile   NodeType = "file"
)

// TreeNode is one node of the workspace file browser tree. Type tells
// which of the folder- or file-specific fields are meaningful.
type TreeNode struct {
	Type     NodeType    `json:"type"`
	ID       uuid.UUID   `json:"id"`
	Name     string      `json:"name"`
	Path     string      `json:"path,omitempty"`
	LinkID   *uuid.UUID  `json:"linkId,omitempty"`
	Size     int64       `json:"size,omitempty"`
	MimeType string      `json:"mimeType,omitempty"`
	Children []*TreeNode `json:"children,omitempty"`
}

// LinkCreator is the slice of the link service the folder-share path needs.
type LinkCreator interface {
	Create(ctx context.Context, userID string, params CreateLinkParams) (*database.Link, error)
}

// FolderService manages the workspace folder hierarchy.
type FolderService struct {
	folders FolderStore
	files   FileStore
	links   LinkCreator
	users   UserStore
	store   ObjectDeleter
	hub     Publisher
}

// NewFolderService creates a new folder service.
func NewFolderService(folders FolderStore, files FileStore, links LinkCreator, users UserStore, store ObjectDeleter, hub Publisher) *FolderService {
	return &FolderService{
		folders: folders,
		files:   files,
		links:   links,
		users:   users,
		store:   store,
		hub:     hub,
	}
}

// Create adds a folder under the given parent (nil for the workspace
// root). Path and depth are computed here, never taken from the client.
func (s *FolderService) Create(ctx context.Context, userID, name string, parentID *uuid.UUID) (*database.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, "/\\") {
		return nil, fmt.Errorf("%w: folder name is required and may not contain slashes", ErrInvalidInput)
	}

	ws, err := s.users.GetWorkspaceByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace: %w", err)
	}

	path := "/" + name
	depth := 0
	if parentID != nil {
		parent, err := s.getOwnedFolder(ctx, ws.ID, *parentID)
		if err != nil {
			return nil, err
		}
		path = parent.Path + "/" + name
		depth = parent.Depth + 1
		if depth > maxFolderDepth {
			return nil, ErrFolderTooDeep
		}
	}

	folder := &database.Folder{
		ID:             uuid.New(),
		WorkspaceID:    ws.ID,
		ParentFolderID: parentID,
		Name:           name,
		Path:           path,
		Depth:          depth,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.folders.Create(ctx, folder); err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}

	s.publishTreeChange(ws.ID, realtime.KindFileUpdate, folder.ID)
	return folder, nil
}

// MoveFolderParams carries a rename and/or reparent. ParentID is only
// applied when Reparent is set; nil then means the workspace root. An
// unset Reparent keeps the folder where it is.
type MoveFolderParams struct {
	Name     string // empty keeps the current name
	Reparent bool
	ParentID *uuid.UUID
}

// Move renames and/or reparents a folder, recomputing the path and depth
// of the folder and its whole subtree. Moving a folder under itself or any
// of its descendants is rejected.
func (s *FolderService) Move(ctx context.Context, userID string, folderID uuid.UUID, params MoveFolderParams) (*database.Folder, error) {
	ws, err := s.users.GetWorkspaceByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace: %w", err)
	}

	folder, err := s.getOwnedFolder(ctx, ws.ID, folderID)
	if err != nil {
		return nil, err
	}

	name := folder.Name
	if n := strings.TrimSpace(params.Name); n != "" {
		if strings.ContainsAny(n, "/\\") {
			return nil, fmt.Errorf("%w: folder name may not contain slashes", ErrInvalidInput)
		}
		name = n
	}

	newParentID := folder.ParentFolderID
	if params.Reparent {
		newParentID = params.ParentID
	}

	all, err := s.folders.ListByWorkspace(ctx, ws.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	subtree := collectSubtree(all, folderID)

	parentPath := ""
	parentDepth := -1
	if newParentID != nil {
		if subtree[*newParentID] {
			return nil, ErrFolderCycle
		}
		parent, err := s.getOwnedFolder(ctx, ws.ID, *newParentID)
		if err != nil {
			return nil, err
		}
		parentPath = parent.Path
		parentDepth = parent.Depth
	}

	newPath := parentPath + "/" + name
	newDepth := parentDepth + 1
	deepest := newDepth
	for _, f := range all {
		if subtree[f.ID] && f.ID != folderID {
			deepest = max(deepest, newDepth+f.Depth-folder.Depth)
		}
	}
	if deepest > maxFolderDepth {
		return nil, ErrFolderTooDeep
	}

	if err := s.folders.UpdatePlacement(ctx, folderID, newParentID, name, newPath, newDepth); err != nil {
		return nil, fmt.Errorf("failed to move folder: %w", err)
	}

	// Rewrite descendant paths. Sequential best-effort, same as the
	// cascade delete: a failure is logged and the sweep of remaining rows
	// continues.
	oldPrefix := folder.Path
	depthShift := newDepth - folder.Depth
	for _, f := range all {
		if !subtree[f.ID] || f.ID == folderID {
			continue
		}
		rewritten := newPath + strings.TrimPrefix(f.Path, oldPrefix)
		if err := s.folders.UpdatePlacement(ctx, f.ID, f.ParentFolderID, f.Name, rewritten, f.Depth+depthShift); err != nil {
			slog.Error("failed to rewrite descendant path", "folder_id", f.ID, "error", err)
		}
	}

	folder.Name = name
	folder.ParentFolderID = newParentID
	folder.Path = newPath
	folder.Depth = newDepth

	s.publishTreeChange(ws.ID, realtime.KindFileUpdate, folderID)
	return folder, nil
}

// Share generates an upload link for the folder and attaches it. The
// link-generated event bypasses the client debounce so the folder icon
// flips immediately.
func (s *FolderService) Share(ctx context.Context, userID string, folderID uuid.UUID, params CreateLinkParams) (*database.Link, error) {
	ws, err := s.users.GetWorkspaceByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace: %w", err)
	}
	folder, err := s.getOwnedFolder(ctx, ws.ID, folderID)
	if err != nil {
		return nil, err
	}
	if folder.LinkID != nil {
		return nil, fmt.Errorf("%w: folder is already shared", ErrInvalidInput)
	}

	link, err := s.links.Create(ctx, userID, params)
	if err != nil {
		return nil, err
	}

	linkID := link.ID
	if err := s.folders.SetLink(ctx, folderID, &linkID); err != nil {
		return nil, fmt.Errorf("failed to attach link: %w", err)
	}

	s.hub.Publish(realtime.Event{
		Topic:   realtime.TopicWorkspace(ws.ID),
		Kind:    realtime.KindLinkGenerated,
		Payload: map[string]any{"folderId": folderID.String(), "linkId": linkID.String()},
	})

	slog.Info("folder shared", "folder_id", folderID, "link_id", linkID)
	return link, nil
}

// Delete removes a folder and everything under it: all descendant folders,
// all files in the subtree, and their storage objects in one batch delete.
// Storage failures are logged but never block the database cleanup.
func (s *FolderService) Delete(ctx context.Context, userID string, folderID uuid.UUID) error {
	ws, err := s.users.GetWorkspaceByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to resolve workspace: %w", err)
	}
	if _, err := s.getOwnedFolder(ctx, ws.ID, folderID); err != nil {
		return err
	}

	all, err := s.folders.ListByWorkspace(ctx, ws.ID)
	if err != nil {
		return fmt.Errorf("failed to list folders: %w", err)
	}
	subtree := collectSubtree(all, folderID)

	folderIDs := make([]uuid.UUID, 0, len(subtree))
	for id := range subtree {
		folderIDs = append(folderIDs, id)
	}

	files, err := s.files.ListByFolders(ctx, folderIDs)
	if err != nil {
		return fmt.Errorf("failed to list subtree files: %w", err)
	}

	var paths []string
	fileIDs := make([]uuid.UUID, 0, len(files))
	var reclaimed int64
	for _, f := range files {
		fileIDs = append(fileIDs, f.ID)
		if f.StoragePath != nil {
			paths = append(paths, *f.StoragePath)
		}
		if f.ProcessingStatus == database.FileCompleted {
			reclaimed += f.Size
		}
	}

	// One batch call for all storage objects in the subtree.
	if len(paths) > 0 {
		if err := s.store.Delete(ctx, paths); err != nil {
			slog.Error("failed to delete subtree storage objects", "folder_id", folderID, "error", err)
		}
	}

	if err := s.files.DeleteMany(ctx, fileIDs); err != nil {
		return fmt.Errorf("failed to delete subtree files: %w", err)
	}
	if err := s.folders.DeleteMany(ctx, folderIDs); err != nil {
		return fmt.Errorf("failed to delete folders: %w", err)
	}

	if reclaimed > 0 {
		if err := s.users.AddStorageUsed(ctx, userID, -reclaimed); err != nil {
			slog.Error("failed to reclaim storage quota", "user_id", userID, "error", err)
		}
	}

	s.publishTreeChange(ws.ID, realtime.KindFileUpdate, folderID)
	slog.Info("folder deleted",
		"folder_id", folderID,
		"folders_removed", len(folderIDs),
		"files_removed", len(fileIDs),
	)
	return nil
}

// WorkspaceTree re-nests the workspace's flat folder and file rows into a
// browsable tree under a virtual root.
func (s *FolderService) WorkspaceTree(ctx context.Context, userID string) (*TreeNode, error) {
	ws, err := s.users.GetWorkspaceByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace: %w", err)
	}

	folders, err := s.folders.ListByWorkspace(ctx, ws.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	files, err := s.files.ListByWorkspace(ctx, ws.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	return BuildTree(ws, folders, files), nil
}

// BuildTree assembles the workspace tree from flat rows.
func BuildTree(ws *database.Workspace, folders []*database.Folder, files []*database.File) *TreeNode {
	root := &TreeNode{
		Type: NodeFolder,
		ID:   ws.ID,
		Name: ws.Name,
		Path: "/",
	}

	nodes := make(map[uuid.UUID]*TreeNode, len(folders))
	for _, f := range folders {
		nodes[f.ID] = &TreeNode{
			Type:   NodeFolder,
			ID:     f.ID,
			Name:   f.Name,
			Path:   f.Path,
			LinkID: f.LinkID,
		}
	}

	for _, f := range folders {
		node := nodes[f.ID]
		if f.ParentFolderID != nil {
			if parent, ok := nodes[*f.ParentFolderID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		root.Children = append(root.Children, node)
	}

	for _, f := range files {
		node := &TreeNode{
			Type:     NodeFile,
			ID:       f.ID,
			Name:     f.FileName,
			Size:     f.Size,
			MimeType: f.MimeType,
		}
		if f.FolderID != nil {
			if parent, ok := nodes[*f.FolderID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		root.Children = append(root.Children, node)
	}

	sortTree(root)
	return root
}

// sortTree orders children folders-first, then by name, recursively.
func sortTree(node *TreeNode) {
	sort.SliceStable(node.Children, func(i, j int) bool {
		a, b := node.Children[i], node.Children[j]
		if a.Type != b.Type {
			return a.Type == NodeFolder
		}
		return a.Name < b.Name
	})
	for _, child := range node.Children {
		if child.Type == NodeFolder {
			sortTree(child)
		}
	}
}

// collectSubtree returns the IDs of the folder and all its descendants.
func collectSubtree(all []*database.Folder, rootID uuid.UUID) map[uuid.UUID]bool {
	children := make(map[uuid.UUID][]uuid.UUID)
	for _, f := range all {
		if f.ParentFolderID != nil {
			children[*f.ParentFolderID] = append(children[*f.ParentFolderID], f.ID)
		}
	}

	subtree := map[uuid.UUID]bool{rootID: true}
	queue := []uuid.UUID{rootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, child := range children[id] {
			if !subtree[child] {
				subtree[child] = true
				queue = append(queue, child)
			}
		}
	}
	return subtree
}

func (s *FolderService) getOwnedFolder(ctx context.Context, workspaceID, folderID uuid.UUID) (*database.Folder, error) {
	folder, err := s.folders.GetByID(ctx, folderID)
	if err != nil {
		if errors.Is(err, database.ErrFolderNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get folder: %w", err)
	}
	if folder.WorkspaceID != workspaceID {
		return nil, ErrNotFound
	}
	return folder, nil
}

func (s *FolderService) publishTreeChange(workspaceID uuid.UUID, kind string, folderID uuid.UUID) {
	s.hub.Publish(realtime.Event{
		Topic:   realtime.TopicWorkspace(workspaceID),
		Kind:    kind,
		Payload: map[string]any{"folderId": folderID.String()},
	})
}
