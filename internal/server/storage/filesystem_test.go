package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *FileSystemStore {
	t.Helper()
	store := NewFileSystemStore(t.TempDir())
	if err := store.EnsureDir(); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	return store
}

func TestFileSystemUpload(t *testing.T) {
	ctx := context.Background()

	t.Run("writes and returns the path", func(t *testing.T) {
		store := newTestStore(t)
		path, err := store.Upload(ctx, "links/a/b/file.txt", strings.NewReader("hello"), 5, "text/plain")
		if err != nil {
			t.Fatalf("Upload: %v", err)
		}
		if path != "links/a/b/file.txt" {
			t.Errorf("returned path %q", path)
		}

		data, err := os.ReadFile(filepath.Join(store.basePath, "links", "a", "b", "file.txt"))
		if err != nil {
			t.Fatalf("read back: %v", err)
		}
		if string(data) != "hello" {
			t.Errorf("content %q, want hello", data)
		}
	})

	t.Run("create-only: existing path fails", func(t *testing.T) {
		store := newTestStore(t)
		if _, err := store.Upload(ctx, "obj", strings.NewReader("one"), 3, ""); err != nil {
			t.Fatalf("first Upload: %v", err)
		}
		_, err := store.Upload(ctx, "obj", strings.NewReader("two"), 3, "")
		if !errors.Is(err, ErrObjectExists) {
			t.Errorf("got %v, want ErrObjectExists", err)
		}
	})

	t.Run("rejects escaping paths", func(t *testing.T) {
		store := newTestStore(t)
		for _, p := range []string{"../outside", "/etc/passwd", "a/../../b"} {
			if _, err := store.Upload(ctx, p, strings.NewReader("x"), 1, ""); err == nil {
				t.Errorf("path %q accepted", p)
			}
		}
	})
}

func TestFileSystemDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, p := range []string{"a/1", "a/2", "b/3"} {
		if _, err := store.Upload(ctx, p, strings.NewReader("x"), 1, ""); err != nil {
			t.Fatalf("Upload %s: %v", p, err)
		}
	}

	// One call removes several objects; a missing path is tolerated.
	if err := store.Delete(ctx, []string{"a/1", "a/2", "never-existed"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	remaining, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(remaining) != 1 || remaining[0] != "b/3" {
		t.Errorf("remaining %v, want [b/3]", remaining)
	}
}

func TestFileSystemList(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, p := range []string{"links/l1/x", "links/l1/y", "links/l2/z"} {
		if _, err := store.Upload(ctx, p, strings.NewReader("x"), 1, ""); err != nil {
			t.Fatalf("Upload %s: %v", p, err)
		}
	}

	paths, err := store.List(ctx, "links/l1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	sort.Strings(paths)
	want := []string{"links/l1/x", "links/l1/y"}
	if len(paths) != len(want) || paths[0] != want[0] || paths[1] != want[1] {
		t.Errorf("List = %v, want %v", paths, want)
	}

	empty, err := store.List(ctx, "no/such/prefix")
	if err != nil {
		t.Fatalf("List missing prefix: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("List missing prefix = %v, want empty", empty)
	}
}
