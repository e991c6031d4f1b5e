package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"linkdrop/internal/server/database"
	"linkdrop/internal/server/realtime"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// CreateLinkParams are the owner-supplied settings for a new link.
type CreateLinkParams struct {
	Slug           string
	Topic          string
	Title          string
	CustomMessage  string
	IsPublic       bool
	Password       string
	RequireName    bool
	RequireEmail   bool
	RequireMessage bool
	MaxFiles       int
	MaxFileSize    int64
}

// UpdateLinkParams are the mutable link settings. Nil fields are left
// unchanged.
type UpdateLinkParams struct {
	Title          *string
	CustomMessage  *string
	IsActive       *bool
	IsPublic       *bool
	Password       *string // empty string clears the password
	RequireName    *bool
	RequireEmail   *bool
	RequireMessage *bool
	MaxFiles       *int
	MaxFileSize    *int64
}

// LinkService contains the business logic for shareable upload links.
type LinkService struct {
	links   LinkStore
	files   FileStore
	users   UserStore
	store   ObjectDeleter
	hub     Publisher
	limiter Limiter

	defaultMaxFiles    int
	defaultMaxFileSize int64
}

// ObjectDeleter is the slice of the object store the link service needs.
type ObjectDeleter interface {
	Delete(ctx context.Context, paths []string) error
}

// NewLinkService creates a new link service.
func NewLinkService(links LinkStore, files FileStore, users UserStore, store ObjectDeleter, hub Publisher, limiter Limiter, defaultMaxFiles int, defaultMaxFileSize int64) *LinkService {
	return &LinkService{
		links:              links,
		files:              files,
		users:              users,
		store:              store,
		hub:                hub,
		limiter:            limiter,
		defaultMaxFiles:    defaultMaxFiles,
		defaultMaxFileSize: defaultMaxFileSize,
	}
}

// Create makes a new link for the user's workspace. The rate limiter is
// consulted before anything touches the database; a denied request
// performs no mutation at all.
func (s *LinkService) Create(ctx context.Context, userID string, params CreateLinkParams) (*database.Link, error) {
	if !s.limiter.Allow("create-link:" + userID) {
		return nil, ErrRateLimited
	}

	slug := strings.ToLower(strings.TrimSpace(params.Slug))
	if !slugPattern.MatchString(slug) {
		return nil, fmt.Errorf("%w: slug must contain only lowercase letters, digits and hyphens", ErrInvalidInput)
	}

	var topic *string
	if t := strings.ToLower(strings.TrimSpace(params.Topic)); t != "" {
		topic = &t
	}

	title := strings.TrimSpace(params.Title)
	if title == "" {
		title = slug
	}

	var passwordHash *string
	if params.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		h := string(hash)
		passwordHash = &h
	}

	ws, err := s.users.GetWorkspaceByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace: %w", err)
	}

	maxFiles := params.MaxFiles
	if maxFiles <= 0 {
		maxFiles = s.defaultMaxFiles
	}
	maxFileSize := params.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = s.defaultMaxFileSize
	}

	now := time.Now().UTC()
	link := &database.Link{
		ID:             uuid.New(),
		WorkspaceID:    ws.ID,
		Slug:           slug,
		Topic:          topic,
		Title:          title,
		CustomMessage:  strings.TrimSpace(params.CustomMessage),
		IsActive:       true,
		IsPublic:       params.IsPublic,
		PasswordHash:   passwordHash,
		RequireName:    params.RequireName,
		RequireEmail:   params.RequireEmail,
		RequireMessage: params.RequireMessage,
		MaxFiles:       maxFiles,
		MaxFileSize:    maxFileSize,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.links.Create(ctx, link); err != nil {
		if errors.Is(err, database.ErrSlugTaken) {
			return nil, ErrSlugTaken
		}
		return nil, fmt.Errorf("failed to create link: %w", err)
	}

	slog.Info("link created", "link_id", link.ID, "slug", slug, "workspace_id", ws.ID)
	return link, nil
}

// List returns all links in the user's workspace.
func (s *LinkService) List(ctx context.Context, userID string) ([]*database.Link, error) {
	ws, err := s.users.GetWorkspaceByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace: %w", err)
	}
	return s.links.ListByWorkspace(ctx, ws.ID)
}

// Get returns an owned link.
func (s *LinkService) Get(ctx context.Context, userID string, linkID uuid.UUID) (*database.Link, error) {
	return s.getOwned(ctx, userID, linkID)
}

// Update applies owner-supplied settings changes to an owned link.
func (s *LinkService) Update(ctx context.Context, userID string, linkID uuid.UUID, params UpdateLinkParams) (*database.Link, error) {
	link, err := s.getOwned(ctx, userID, linkID)
	if err != nil {
		return nil, err
	}

	if params.Title != nil {
		link.Title = strings.TrimSpace(*params.Title)
	}
	if params.CustomMessage != nil {
		link.CustomMessage = strings.TrimSpace(*params.CustomMessage)
	}
	if params.IsActive != nil {
		link.IsActive = *params.IsActive
	}
	if params.IsPublic != nil {
		link.IsPublic = *params.IsPublic
	}
	if params.Password != nil {
		if *params.Password == "" {
			link.PasswordHash = nil
		} else {
			hash, err := bcrypt.GenerateFromPassword([]byte(*params.Password), bcrypt.DefaultCost)
			if err != nil {
				return nil, fmt.Errorf("failed to hash password: %w", err)
			}
			h := string(hash)
			link.PasswordHash = &h
		}
	}
	if params.RequireName != nil {
		link.RequireName = *params.RequireName
	}
	if params.RequireEmail != nil {
		link.RequireEmail = *params.RequireEmail
	}
	if params.RequireMessage != nil {
		link.RequireMessage = *params.RequireMessage
	}
	if params.MaxFiles != nil && *params.MaxFiles > 0 {
		link.MaxFiles = *params.MaxFiles
	}
	if params.MaxFileSize != nil && *params.MaxFileSize > 0 {
		link.MaxFileSize = *params.MaxFileSize
	}

	if err := s.links.Update(ctx, link); err != nil {
		return nil, fmt.Errorf("failed to update link: %w", err)
	}
	return link, nil
}

// Delete removes an owned link, its files' storage objects and, via
// cascade, its rows. Storage failures are logged and do not block the
// database cleanup.
func (s *LinkService) Delete(ctx context.Context, userID string, linkID uuid.UUID) error {
	link, err := s.getOwned(ctx, userID, linkID)
	if err != nil {
		return err
	}

	files, err := s.files.ListByLink(ctx, linkID)
	if err != nil {
		return fmt.Errorf("failed to list link files: %w", err)
	}

	var paths []string
	var reclaimed int64
	for _, f := range files {
		if f.StoragePath != nil {
			paths = append(paths, *f.StoragePath)
		}
		if f.ProcessingStatus == database.FileCompleted {
			reclaimed += f.Size
		}
	}

	if len(paths) > 0 {
		if err := s.store.Delete(ctx, paths); err != nil {
			slog.Error("failed to delete link storage objects", "link_id", linkID, "error", err)
		}
	}

	if err := s.links.Delete(ctx, linkID); err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}

	if reclaimed > 0 {
		if err := s.users.AddStorageUsed(ctx, userID, -reclaimed); err != nil {
			slog.Error("failed to reclaim storage quota", "user_id", userID, "error", err)
		}
	}

	s.hub.Publish(realtime.Event{
		Topic:   realtime.TopicWorkspace(link.WorkspaceID),
		Kind:    realtime.KindLinkDeleted,
		Payload: map[string]any{"linkId": linkID.String()},
	})

	slog.Info("link deleted", "link_id", linkID, "files", len(files), "reclaimed_bytes", reclaimed)
	return nil
}

// getOwned fetches a link and verifies the user owns it. Ownership
// failures report not-found, same as a missing row.
func (s *LinkService) getOwned(ctx context.Context, userID string, linkID uuid.UUID) (*database.Link, error) {
	link, err := s.links.GetByID(ctx, linkID)
	if err != nil {
		if errors.Is(err, database.ErrLinkNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get link: %w", err)
	}

	ws, err := s.users.GetWorkspaceByID(ctx, link.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace: %w", err)
	}
	if ws.UserID != userID {
		return nil, ErrNotFound
	}
	return link, nil
}
