package api

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"linkdrop/internal/server/database"
	"linkdrop/internal/server/service"
	"linkdrop/internal/server/webhook"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// memUserStore is the minimal user store the webhook lifecycle needs.
type memUserStore struct {
	users      map[string]*database.User
	workspaces map[uuid.UUID]*database.Workspace
}

func newMemUserStore() *memUserStore {
	return &memUserStore{
		users:      make(map[string]*database.User),
		workspaces: make(map[uuid.UUID]*database.Workspace),
	}
}

func (s *memUserStore) Upsert(ctx context.Context, u *database.User) error {
	s.users[u.ID] = u
	return nil
}

func (s *memUserStore) GetByID(ctx context.Context, id string) (*database.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, database.ErrUserNotFound
	}
	return u, nil
}

func (s *memUserStore) Delete(ctx context.Context, id string) error {
	if _, ok := s.users[id]; !ok {
		return database.ErrUserNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *memUserStore) AddStorageUsed(ctx context.Context, id string, delta int64) error { return nil }

func (s *memUserStore) CreateWorkspace(ctx context.Context, ws *database.Workspace) error {
	s.workspaces[ws.ID] = ws
	return nil
}

func (s *memUserStore) GetWorkspaceByUser(ctx context.Context, userID string) (*database.Workspace, error) {
	for _, ws := range s.workspaces {
		if ws.UserID == userID {
			return ws, nil
		}
	}
	return nil, database.ErrWorkspaceNotFound
}

func (s *memUserStore) GetWorkspaceByID(ctx context.Context, id uuid.UUID) (*database.Workspace, error) {
	ws, ok := s.workspaces[id]
	if !ok {
		return nil, database.ErrWorkspaceNotFound
	}
	return ws, nil
}

// memFileStore satisfies service.FileStore with empty results.
type memFileStore struct{}

func (memFileStore) Create(ctx context.Context, f *database.File) error { return nil }
func (memFileStore) GetByID(ctx context.Context, id uuid.UUID) (*database.File, error) {
	return nil, database.ErrFileNotFound
}
func (memFileStore) MarkCompleted(ctx context.Context, id uuid.UUID, storagePath, checksum string, size int64) error {
	return nil
}
func (memFileStore) MarkFailed(ctx context.Context, id uuid.UUID) error      { return nil }
func (memFileStore) Delete(ctx context.Context, id uuid.UUID) error          { return nil }
func (memFileStore) DeleteMany(ctx context.Context, ids []uuid.UUID) error   { return nil }
func (memFileStore) ListByWorkspace(ctx context.Context, id uuid.UUID) ([]*database.File, error) {
	return nil, nil
}
func (memFileStore) ListByLink(ctx context.Context, id uuid.UUID) ([]*database.File, error) {
	return nil, nil
}
func (memFileStore) ListByFolders(ctx context.Context, ids []uuid.UUID) ([]*database.File, error) {
	return nil, nil
}

type noopDeleter struct{}

func (noopDeleter) Delete(ctx context.Context, paths []string) error { return nil }

func newWebhookTestHandler(t *testing.T) (*Handler, *webhook.Verifier, *memUserStore) {
	t.Helper()
	secret := "whsec_" + base64.StdEncoding.EncodeToString([]byte("webhook-test-key"))
	verifier, err := webhook.NewVerifier(secret)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	store := newMemUserStore()
	users := service.NewUserService(store, memFileStore{}, noopDeleter{}, 1<<30)
	h := &Handler{users: users, verifier: verifier}
	return h, verifier, store
}

func deliver(t *testing.T, h *Handler, verifier *webhook.Verifier, body string, signed bool) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/auth", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if signed {
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		req.Header.Set("svix-id", "msg_1")
		req.Header.Set("svix-timestamp", ts)
		req.Header.Set("svix-signature", verifier.Sign("msg_1", ts, []byte(body)))
	}
	rec := httptest.NewRecorder()
	if err := h.HandleAuthWebhook(e.NewContext(req, rec)); err != nil {
		t.Fatalf("HandleAuthWebhook: %v", err)
	}
	return rec
}

func TestHandleAuthWebhook(t *testing.T) {
	const createdBody = `{"type":"user.created","data":{"id":"user_1","first_name":"Ada","last_name":"Lovelace","email_addresses":[{"email_address":"ada@example.com"}]}}`

	t.Run("unsigned delivery rejected", func(t *testing.T) {
		h, verifier, _ := newWebhookTestHandler(t)
		rec := deliver(t, h, verifier, createdBody, false)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status %d, want 400", rec.Code)
		}
	})

	t.Run("user.created provisions and returns 200", func(t *testing.T) {
		h, verifier, store := newWebhookTestHandler(t)
		rec := deliver(t, h, verifier, createdBody, true)
		if rec.Code != http.StatusOK {
			t.Fatalf("status %d, want 200", rec.Code)
		}
		user, ok := store.users["user_1"]
		if !ok {
			t.Fatal("user not provisioned")
		}
		if user.Email != "ada@example.com" || user.DisplayName != "Ada Lovelace" {
			t.Errorf("user %q/%q", user.Email, user.DisplayName)
		}
		if _, err := store.GetWorkspaceByUser(context.Background(), "user_1"); err != nil {
			t.Errorf("workspace not provisioned: %v", err)
		}
	})

	t.Run("user.deleted returns 200", func(t *testing.T) {
		h, verifier, store := newWebhookTestHandler(t)
		deliver(t, h, verifier, createdBody, true)

		rec := deliver(t, h, verifier, `{"type":"user.deleted","data":{"id":"user_1"}}`, true)
		if rec.Code != http.StatusOK {
			t.Fatalf("status %d, want 200", rec.Code)
		}
		if _, ok := store.users["user_1"]; ok {
			t.Error("user still present")
		}
	})

	t.Run("unknown event type still returns 200", func(t *testing.T) {
		h, verifier, _ := newWebhookTestHandler(t)
		rec := deliver(t, h, verifier, `{"type":"session.created","data":{"id":"sess_1"}}`, true)
		if rec.Code != http.StatusOK {
			t.Errorf("status %d, want 200", rec.Code)
		}
	})

	t.Run("malformed payload after valid signature returns 200", func(t *testing.T) {
		h, verifier, _ := newWebhookTestHandler(t)
		rec := deliver(t, h, verifier, `{not json`, true)
		if rec.Code != http.StatusOK {
			t.Errorf("status %d, want 200", rec.Code)
		}
	})

	t.Run("no verifier configured rejects", func(t *testing.T) {
		h := &Handler{}
		e := echo.New()
		req := httptest.NewRequest(http.MethodPost, "/webhooks/auth", strings.NewReader("{}"))
		rec := httptest.NewRecorder()
		if err := h.HandleAuthWebhook(e.NewContext(req, rec)); err != nil {
			t.Fatalf("HandleAuthWebhook: %v", err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status %d, want 400", rec.Code)
		}
	})
}
