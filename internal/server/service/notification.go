package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"linkdrop/internal/server/database"
	"linkdrop/internal/server/realtime"

	"github.com/google/uuid"
)

// notificationListLimit caps the notification center list.
const notificationListLimit = 50

// NotificationService maintains the invariant that a link's unread_uploads
// counter always equals its count of unread notifications: every mutation
// path here adjusts the counter alongside the notification row.
type NotificationService struct {
	notifications NotificationStore
	links         LinkStore
	hub           Publisher
}

// NewNotificationService creates a new notification service.
func NewNotificationService(notifications NotificationStore, links LinkStore, hub Publisher) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		links:         links,
		hub:           hub,
	}
}

// BatchCompleted records an unread notification for the link owner and
// fans the event out on both the per-user and per-link topics, so the
// notification center and an open link-detail view each hear it without
// polling. Fan-out failures are swallowed; they never affect the data.
func (s *NotificationService) BatchCompleted(ctx context.Context, userID string, link *database.Link, batch *database.Batch) error {
	batchID := batch.ID
	title := fmt.Sprintf("%d new file(s) on %s", batch.ProcessedFiles, link.Title)
	body := fmt.Sprintf("%s uploaded %d file(s)", uploaderLabel(batch), batch.ProcessedFiles)

	n := &database.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		LinkID:    link.ID,
		BatchID:   &batchID,
		Title:     title,
		Body:      body,
		IsRead:    false,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.notifications.Create(ctx, n); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	if err := s.links.AdjustUnread(ctx, link.ID, 1); err != nil {
		slog.Error("failed to bump unread counter", "link_id", link.ID, "error", err)
	}

	payload := map[string]any{
		"notificationId": n.ID.String(),
		"linkId":         link.ID.String(),
		"batchId":        batchID.String(),
		"title":          title,
	}
	s.hub.Publish(realtime.Event{Topic: realtime.TopicNotifications(userID), Kind: realtime.KindNotification, Payload: payload})
	s.hub.Publish(realtime.Event{Topic: realtime.TopicLinkFiles(link.ID), Kind: realtime.KindNotification, Payload: payload})

	return nil
}

// List returns the user's newest notifications, capped at 50 and joined
// with each link's title.
func (s *NotificationService) List(ctx context.Context, userID string) ([]*database.NotificationWithLink, error) {
	return s.notifications.ListForUser(ctx, userID, notificationListLimit)
}

// MarkRead flips one owned notification to read and decrements the link's
// unread counter when the notification was actually unread.
func (s *NotificationService) MarkRead(ctx context.Context, userID string, id uuid.UUID) error {
	n, err := s.notifications.GetOwned(ctx, userID, id)
	if err != nil {
		if errors.Is(err, database.ErrNotificationNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get notification: %w", err)
	}

	flipped, err := s.notifications.MarkRead(ctx, n.ID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if flipped {
		if err := s.links.AdjustUnread(ctx, n.LinkID, -1); err != nil {
			slog.Error("failed to decrement unread counter", "link_id", n.LinkID, "error", err)
		}
	}
	return nil
}

// MarkAllRead flips every unread notification of the user and resets each
// affected link's counter to exactly zero. The reset (rather than a
// decrement) tolerates notifications created concurrently with the sweep;
// minor imprecision there is accepted. Returns the number of flipped rows.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int, error) {
	linkIDs, err := s.notifications.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark all read: %w", err)
	}
	if len(linkIDs) == 0 {
		return 0, nil
	}

	seen := make(map[uuid.UUID]bool, len(linkIDs))
	unique := make([]uuid.UUID, 0, len(linkIDs))
	for _, id := range linkIDs {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	if err := s.links.ResetUnread(ctx, unique); err != nil {
		slog.Error("failed to reset unread counters", "error", err)
	}
	return len(linkIDs), nil
}

// Delete removes one owned notification; deleting an unread notification
// decrements the link's unread counter, same as reading it would have.
func (s *NotificationService) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	n, err := s.notifications.GetOwned(ctx, userID, id)
	if err != nil {
		if errors.Is(err, database.ErrNotificationNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get notification: %w", err)
	}

	if err := s.notifications.Delete(ctx, n.ID); err != nil {
		if errors.Is(err, database.ErrNotificationNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete notification: %w", err)
	}

	if !n.IsRead {
		if err := s.links.AdjustUnread(ctx, n.LinkID, -1); err != nil {
			slog.Error("failed to decrement unread counter", "link_id", n.LinkID, "error", err)
		}
	}
	return nil
}

func uploaderLabel(batch *database.Batch) string {
	if batch.UploaderName != "" {
		return batch.UploaderName
	}
	return "Someone"
}
