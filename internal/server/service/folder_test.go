package service

import (
	"context"
	"errors"
	"testing"

	"linkdrop/internal/server/database"
	"linkdrop/internal/server/realtime"

	"github.com/google/uuid"
)

type folderFixture struct {
	folders *fakeFolderStore
	files   *fakeFileStore
	links   *fakeLinkStore
	users   *fakeUserStore
	store   *fakeObjectStore
	hub     *fakeHub
	svc     *FolderService
	linkSvc *LinkService
	ws      *database.Workspace
}

func newFolderFixture(t *testing.T) *folderFixture {
	t.Helper()
	f := &folderFixture{
		folders: newFakeFolderStore(),
		files:   newFakeFileStore(),
		links:   newFakeLinkStore(),
		users:   newFakeUserStore(),
		store:   newFakeObjectStore(),
		hub:     &fakeHub{},
	}
	f.ws = seedUserWorkspace(f.users, "owner-1")
	f.linkSvc = NewLinkService(f.links, f.files, f.users, f.store, f.hub, &fakeLimiter{allow: true}, 100, 1<<30)
	f.svc = NewFolderService(f.folders, f.files, f.linkSvc, f.users, f.store, f.hub)
	return f
}

func (f *folderFixture) mkdir(t *testing.T, name string, parent *uuid.UUID) *database.Folder {
	t.Helper()
	folder, err := f.svc.Create(context.Background(), "owner-1", name, parent)
	if err != nil {
		t.Fatalf("Create folder %q: %v", name, err)
	}
	return folder
}

func (f *folderFixture) addFile(folderID uuid.UUID, size int64, withObject bool) uuid.UUID {
	id := uuid.New()
	file := &database.File{
		ID:               id,
		WorkspaceID:      f.ws.ID,
		FolderID:         &folderID,
		FileName:         "f.bin",
		Size:             size,
		ProcessingStatus: database.FileCompleted,
	}
	if withObject {
		path := "objects/" + id.String()
		f.store.objects[path] = []byte("x")
		file.StoragePath = &path
	}
	f.files.files[id] = file
	return id
}

func TestFolderCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("computes path and depth server-side", func(t *testing.T) {
		f := newFolderFixture(t)
		root := f.mkdir(t, "projects", nil)
		if root.Path != "/projects" || root.Depth != 0 {
			t.Errorf("root path=%q depth=%d, want /projects 0", root.Path, root.Depth)
		}
		child := f.mkdir(t, "2026", &root.ID)
		if child.Path != "/projects/2026" || child.Depth != 1 {
			t.Errorf("child path=%q depth=%d, want /projects/2026 1", child.Path, child.Depth)
		}
	})

	t.Run("rejects slashes in names", func(t *testing.T) {
		f := newFolderFixture(t)
		if _, err := f.svc.Create(ctx, "owner-1", "a/b", nil); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("got %v, want ErrInvalidInput", err)
		}
	})

	t.Run("depth cap", func(t *testing.T) {
		f := newFolderFixture(t)
		parent := f.mkdir(t, "d0", nil)
		for i := 1; i <= maxFolderDepth; i++ {
			parent = f.mkdir(t, "d", &parent.ID)
		}
		if _, err := f.svc.Create(ctx, "owner-1", "too-deep", &parent.ID); !errors.Is(err, ErrFolderTooDeep) {
			t.Errorf("got %v, want ErrFolderTooDeep", err)
		}
	})
}

func TestFolderMove(t *testing.T) {
	ctx := context.Background()

	t.Run("rewrites the subtree", func(t *testing.T) {
		f := newFolderFixture(t)
		a := f.mkdir(t, "a", nil)
		b := f.mkdir(t, "b", &a.ID)
		c := f.mkdir(t, "c", &b.ID)
		dest := f.mkdir(t, "dest", nil)

		moved, err := f.svc.Move(ctx, "owner-1", b.ID, MoveFolderParams{Reparent: true, ParentID: &dest.ID})
		if err != nil {
			t.Fatalf("Move: %v", err)
		}
		if moved.Path != "/dest/b" || moved.Depth != 1 {
			t.Errorf("moved path=%q depth=%d, want /dest/b 1", moved.Path, moved.Depth)
		}
		grandchild, _ := f.folders.GetByID(ctx, c.ID)
		if grandchild.Path != "/dest/b/c" || grandchild.Depth != 2 {
			t.Errorf("descendant path=%q depth=%d, want /dest/b/c 2", grandchild.Path, grandchild.Depth)
		}
	})

	t.Run("rejects moving into own subtree", func(t *testing.T) {
		f := newFolderFixture(t)
		a := f.mkdir(t, "a", nil)
		b := f.mkdir(t, "b", &a.ID)

		if _, err := f.svc.Move(ctx, "owner-1", a.ID, MoveFolderParams{Reparent: true, ParentID: &b.ID}); !errors.Is(err, ErrFolderCycle) {
			t.Errorf("move under child: got %v, want ErrFolderCycle", err)
		}
		if _, err := f.svc.Move(ctx, "owner-1", a.ID, MoveFolderParams{Reparent: true, ParentID: &a.ID}); !errors.Is(err, ErrFolderCycle) {
			t.Errorf("move under self: got %v, want ErrFolderCycle", err)
		}
	})

	t.Run("rename without reparent", func(t *testing.T) {
		f := newFolderFixture(t)
		a := f.mkdir(t, "old", nil)

		renamed, err := f.svc.Move(ctx, "owner-1", a.ID, MoveFolderParams{Name: "new"})
		if err != nil {
			t.Fatalf("Move: %v", err)
		}
		if renamed.Name != "new" || renamed.Path != "/new" {
			t.Errorf("renamed name=%q path=%q", renamed.Name, renamed.Path)
		}
	})

	t.Run("rename of a nested folder keeps its parent", func(t *testing.T) {
		f := newFolderFixture(t)
		parent := f.mkdir(t, "parent", nil)
		child := f.mkdir(t, "child", &parent.ID)
		grand := f.mkdir(t, "grand", &child.ID)

		renamed, err := f.svc.Move(ctx, "owner-1", child.ID, MoveFolderParams{Name: "renamed"})
		if err != nil {
			t.Fatalf("Move: %v", err)
		}
		if renamed.ParentFolderID == nil || *renamed.ParentFolderID != parent.ID {
			t.Errorf("parent = %v, want %s", renamed.ParentFolderID, parent.ID)
		}
		if renamed.Path != "/parent/renamed" || renamed.Depth != 1 {
			t.Errorf("path=%q depth=%d, want /parent/renamed 1", renamed.Path, renamed.Depth)
		}
		nested, _ := f.folders.GetByID(ctx, grand.ID)
		if nested.Path != "/parent/renamed/grand" || nested.Depth != 2 {
			t.Errorf("descendant path=%q depth=%d", nested.Path, nested.Depth)
		}
	})

	t.Run("explicit move to root", func(t *testing.T) {
		f := newFolderFixture(t)
		parent := f.mkdir(t, "parent", nil)
		child := f.mkdir(t, "child", &parent.ID)

		moved, err := f.svc.Move(ctx, "owner-1", child.ID, MoveFolderParams{Reparent: true})
		if err != nil {
			t.Fatalf("Move: %v", err)
		}
		if moved.ParentFolderID != nil {
			t.Errorf("parent = %v, want nil", moved.ParentFolderID)
		}
		if moved.Path != "/child" || moved.Depth != 0 {
			t.Errorf("path=%q depth=%d, want /child 0", moved.Path, moved.Depth)
		}
	})
}

// Deleting a folder with N descendant folders and M files removes exactly
// N+1 folder rows, M file rows, and issues one batched storage delete.
func TestFolderCascadeDelete(t *testing.T) {
	ctx := context.Background()
	f := newFolderFixture(t)

	root := f.mkdir(t, "root", nil)
	childA := f.mkdir(t, "a", &root.ID)
	childB := f.mkdir(t, "b", &root.ID)
	grand := f.mkdir(t, "deep", &childA.ID)
	outside := f.mkdir(t, "outside", nil)

	f.addFile(root.ID, 10, true)
	f.addFile(childA.ID, 20, true)
	f.addFile(grand.ID, 30, true)
	f.addFile(childB.ID, 40, false) // no storage object
	kept := f.addFile(outside.ID, 50, true)
	f.users.users["owner-1"].StorageUsed = 150

	if err := f.svc.Delete(ctx, "owner-1", root.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if got := f.folders.count(); got != 1 {
		t.Errorf("%d folders remain, want 1 (outside)", got)
	}
	if got := f.files.count(); got != 1 {
		t.Errorf("%d files remain, want 1", got)
	}
	if _, err := f.files.GetByID(ctx, kept); err != nil {
		t.Error("file outside the subtree was deleted")
	}
	if f.store.deleteCalls != 1 {
		t.Errorf("storage delete called %d times, want 1 batched call", f.store.deleteCalls)
	}
	if got := len(f.store.deleted); got != 3 {
		t.Errorf("%d storage paths deleted, want 3", got)
	}
	// 10+20+30+40 reclaimed from the 150 used.
	if got := f.users.storageUsed("owner-1"); got != 50 {
		t.Errorf("storage used = %d, want 50", got)
	}
}

func TestFolderShare(t *testing.T) {
	ctx := context.Background()
	f := newFolderFixture(t)
	folder := f.mkdir(t, "shared", nil)

	link, err := f.svc.Share(ctx, "owner-1", folder.ID, CreateLinkParams{Slug: "drop-here"})
	if err != nil {
		t.Fatalf("Share: %v", err)
	}

	got, _ := f.folders.GetByID(ctx, folder.ID)
	if got.LinkID == nil || *got.LinkID != link.ID {
		t.Error("folder not attached to the generated link")
	}

	var sawGenerated bool
	for _, ev := range f.hub.events {
		if ev.Kind == realtime.KindLinkGenerated {
			sawGenerated = true
		}
	}
	if !sawGenerated {
		t.Error("no link_generated event published")
	}

	// Sharing twice is rejected.
	if _, err := f.svc.Share(ctx, "owner-1", folder.ID, CreateLinkParams{Slug: "again"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("second share: got %v, want ErrInvalidInput", err)
	}
}

func TestBuildTree(t *testing.T) {
	f := newFolderFixture(t)
	root := f.mkdir(t, "docs", nil)
	sub := f.mkdir(t, "archive", &root.ID)
	f.mkdir(t, "zeta", nil)
	f.addFile(sub.ID, 5, false)
	looseID := uuid.New()
	f.files.files[looseID] = &database.File{
		ID:          looseID,
		WorkspaceID: f.ws.ID,
		FileName:    "loose.txt",
		Size:        1,
	}

	tree, err := f.svc.WorkspaceTree(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("WorkspaceTree: %v", err)
	}

	if tree.Type != NodeFolder || tree.ID != f.ws.ID {
		t.Fatalf("root node is %v/%s", tree.Type, tree.ID)
	}
	// Folders sort before files; "docs" before "zeta".
	if len(tree.Children) != 3 {
		t.Fatalf("root has %d children, want 3", len(tree.Children))
	}
	if tree.Children[0].Name != "docs" || tree.Children[1].Name != "zeta" {
		t.Errorf("folder order: %q, %q", tree.Children[0].Name, tree.Children[1].Name)
	}
	if tree.Children[2].Type != NodeFile || tree.Children[2].Name != "loose.txt" {
		t.Errorf("last child = %v %q, want the loose file", tree.Children[2].Type, tree.Children[2].Name)
	}

	docs := tree.Children[0]
	if len(docs.Children) != 1 || docs.Children[0].Name != "archive" {
		t.Fatalf("docs children: %+v", docs.Children)
	}
	archive := docs.Children[0]
	if len(archive.Children) != 1 || archive.Children[0].Type != NodeFile {
		t.Errorf("archive should hold the nested file, got %+v", archive.Children)
	}
}

func TestCollectSubtree(t *testing.T) {
	wsID := uuid.New()
	rootID := uuid.New()
	childID := uuid.New()
	grandID := uuid.New()
	otherID := uuid.New()

	all := []*database.Folder{
		{ID: rootID, WorkspaceID: wsID},
		{ID: childID, WorkspaceID: wsID, ParentFolderID: &rootID},
		{ID: grandID, WorkspaceID: wsID, ParentFolderID: &childID},
		{ID: otherID, WorkspaceID: wsID},
	}

	subtree := collectSubtree(all, rootID)
	if len(subtree) != 3 {
		t.Fatalf("subtree size %d, want 3", len(subtree))
	}
	if subtree[otherID] {
		t.Error("unrelated folder included")
	}
}
