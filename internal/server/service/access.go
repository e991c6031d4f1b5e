package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"linkdrop/internal/server/database"

	"github.com/google/uuid"
)

// LinkAccess is the minimal metadata an upload page needs. It deliberately
// excludes anything that would let a visitor enumerate workspace contents.
type LinkAccess struct {
	LinkID           uuid.UUID `json:"linkId"`
	IsPublic         bool      `json:"isPublic"`
	OwnerName        string    `json:"ownerName"`
	Title            string    `json:"title"`
	CustomMessage    string    `json:"customMessage,omitempty"`
	RequiresPassword bool      `json:"requiresPassword"`
	RequireName      bool      `json:"requireName"`
	RequireEmail     bool      `json:"requireEmail"`
	RequireMessage   bool      `json:"requireMessage"`
}

// AccessService resolves public link URLs to upload-page metadata.
type AccessService struct {
	links LinkStore
}

// NewAccessService creates a new access service.
func NewAccessService(links LinkStore) *AccessService {
	return &AccessService{links: links}
}

// ValidateAccess resolves a public URL path (split into segments, the
// first being the owner's handle) to a link. It checks only that the page
// may be rendered; passwords and upload permissions are enforced at
// submission time, not here.
func (s *AccessService) ValidateAccess(ctx context.Context, segments []string) (*LinkAccess, error) {
	if len(segments) < 2 {
		return nil, ErrInvalidLinkPath
	}

	slug := strings.ToLower(strings.TrimSpace(segments[1]))
	if slug == "" {
		return nil, ErrInvalidLinkPath
	}

	var topic *string
	if len(segments) >= 3 && segments[2] != "" {
		t := strings.ToLower(strings.TrimSpace(segments[2]))
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

	ownerName := link.OwnerDisplayName
	if ownerName == "" {
		ownerName = "User"
	}

	return &LinkAccess{
		LinkID:           link.ID,
		IsPublic:         link.IsPublic,
		OwnerName:        ownerName,
		Title:            link.Title,
		CustomMessage:    link.CustomMessage,
		RequiresPassword: link.PasswordHash != nil,
		RequireName:      link.RequireName,
		RequireEmail:     link.RequireEmail,
		RequireMessage:   link.RequireMessage,
	}, nil
}
