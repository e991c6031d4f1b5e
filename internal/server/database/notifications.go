package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrNotificationNotFound = errors.New("notification not found")

// NotificationRepository provides CRUD operations for notifications.
type NotificationRepository struct {
	db *DB
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a new notification record.
func (r *NotificationRepository) Create(ctx context.Context, n *Notification) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO notifications (id, user_id, link_id, batch_id, title, body, is_read, read_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		n.ID, n.UserID, n.LinkID, n.BatchID, n.Title, n.Body,
		n.IsRead, n.ReadAt, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// GetOwned retrieves a notification only when it belongs to the given user.
// A row owned by someone else reports not-found, same as a missing row.
func (r *NotificationRepository) GetOwned(ctx context.Context, userID string, id uuid.UUID) (*Notification, error) {
	n := &Notification{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, user_id, link_id, batch_id, title, body, is_read, read_at, created_at
		FROM notifications WHERE id = $1 AND user_id = $2
	`, id, userID).Scan(
		&n.ID, &n.UserID, &n.LinkID, &n.BatchID, &n.Title, &n.Body,
		&n.IsRead, &n.ReadAt, &n.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

// ListForUser returns the user's newest notifications joined with the link
// title, capped at limit.
func (r *NotificationRepository) ListForUser(ctx context.Context, userID string, limit int) ([]*NotificationWithLink, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT n.id, n.user_id, n.link_id, n.batch_id, n.title, n.body,
			   n.is_read, n.read_at, n.created_at, l.title
		FROM notifications n
		JOIN links l ON l.id = n.link_id
		WHERE n.user_id = $1
		ORDER BY n.created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []*NotificationWithLink
	for rows.Next() {
		n := &NotificationWithLink{}
		if err := rows.Scan(
			&n.ID, &n.UserID, &n.LinkID, &n.BatchID, &n.Title, &n.Body,
			&n.IsRead, &n.ReadAt, &n.CreatedAt, &n.LinkTitle,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead flips a single notification to read. Returns false when the row
// was already read (or missing), so callers know whether to decrement the
// link's unread counter.
func (r *NotificationRepository) MarkRead(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = NOW()
		WHERE id = $1 AND is_read = FALSE
	`, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification read: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkAllRead flips every unread notification of the user and returns the
// IDs of the links they belonged to, one entry per flipped row.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) ([]uuid.UUID, error) {
	rows, err := r.db.Pool.Query(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = NOW()
		WHERE user_id = $1 AND is_read = FALSE
		RETURNING link_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark all read: %w", err)
	}
	defer rows.Close()

	var linkIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan link id: %w", err)
		}
		linkIDs = append(linkIDs, id)
	}
	return linkIDs, rows.Err()
}

// Delete removes a notification record by ID.
func (r *NotificationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM notifications WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
