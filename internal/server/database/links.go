package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrLinkNotFound = errors.New("link not found")
	ErrSlugTaken    = errors.New("slug already in use")
)

const linkColumns = `id, workspace_id, slug, topic, title, custom_message,
	is_active, is_public, password_hash,
	require_name, require_email, require_message,
	max_files, max_file_size, total_files, total_size,
	unread_uploads, last_upload_at, created_at, updated_at`

// LinkWithOwner joins a link with its owning user for public access checks.
type LinkWithOwner struct {
	Link
	OwnerUserID      string
	OwnerDisplayName string
}

// LinkRepository provides CRUD operations for links.
type LinkRepository struct {
	db *DB
}

// NewLinkRepository creates a new LinkRepository.
func NewLinkRepository(db *DB) *LinkRepository {
	return &LinkRepository{db: db}
}

func scanLink(row pgx.Row, l *Link) error {
	return row.Scan(
		&l.ID, &l.WorkspaceID, &l.Slug, &l.Topic, &l.Title, &l.CustomMessage,
		&l.IsActive, &l.IsPublic, &l.PasswordHash,
		&l.RequireName, &l.RequireEmail, &l.RequireMessage,
		&l.MaxFiles, &l.MaxFileSize, &l.TotalFiles, &l.TotalSize,
		&l.UnreadUploads, &l.LastUploadAt, &l.CreatedAt, &l.UpdatedAt,
	)
}

// Create inserts a new link record. Returns ErrSlugTaken when the
// (workspace, slug, topic) combination already exists.
func (r *LinkRepository) Create(ctx context.Context, link *Link) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO links (
			id, workspace_id, slug, topic, title, custom_message,
			is_active, is_public, password_hash,
			require_name, require_email, require_message,
			max_files, max_file_size, total_files, total_size,
			unread_uploads, last_upload_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`,
		link.ID, link.WorkspaceID, link.Slug, link.Topic, link.Title, link.CustomMessage,
		link.IsActive, link.IsPublic, link.PasswordHash,
		link.RequireName, link.RequireEmail, link.RequireMessage,
		link.MaxFiles, link.MaxFileSize, link.TotalFiles, link.TotalSize,
		link.UnreadUploads, link.LastUploadAt, link.CreatedAt, link.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrSlugTaken
		}
		return fmt.Errorf("failed to create link: %w", err)
	}
	return nil
}

// GetByID retrieves a link by its ID.
func (r *LinkRepository) GetByID(ctx context.Context, id uuid.UUID) (*Link, error) {
	link := &Link{}
	row := r.db.Pool.QueryRow(ctx,
		"SELECT "+linkColumns+" FROM links WHERE id = $1", id)
	if err := scanLink(row, link); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get link: %w", err)
	}
	return link, nil
}

// GetBySlug resolves a link by slug and optional topic, joined with its
// owner's identity. Slugs are stored lowercase; callers pass them lowered.
func (r *LinkRepository) GetBySlug(ctx context.Context, slug string, topic *string) (*LinkWithOwner, error) {
	lo := &LinkWithOwner{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT l.id, l.workspace_id, l.slug, l.topic, l.title, l.custom_message,
			   l.is_active, l.is_public, l.password_hash,
			   l.require_name, l.require_email, l.require_message,
			   l.max_files, l.max_file_size, l.total_files, l.total_size,
			   l.unread_uploads, l.last_upload_at, l.created_at, l.updated_at,
			   u.id, u.display_name
		FROM links l
		JOIN workspaces w ON w.id = l.workspace_id
		JOIN users u ON u.id = w.user_id
		WHERE l.slug = $1 AND COALESCE(l.topic, '') = COALESCE($2, '')
	`, slug, topic).Scan(
		&lo.ID, &lo.WorkspaceID, &lo.Slug, &lo.Topic, &lo.Title, &lo.CustomMessage,
		&lo.IsActive, &lo.IsPublic, &lo.PasswordHash,
		&lo.RequireName, &lo.RequireEmail, &lo.RequireMessage,
		&lo.MaxFiles, &lo.MaxFileSize, &lo.TotalFiles, &lo.TotalSize,
		&lo.UnreadUploads, &lo.LastUploadAt, &lo.CreatedAt, &lo.UpdatedAt,
		&lo.OwnerUserID, &lo.OwnerDisplayName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get link by slug: %w", err)
	}
	return lo, nil
}

// ListByWorkspace returns all links in a workspace, newest first.
func (r *LinkRepository) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*Link, error) {
	rows, err := r.db.Pool.Query(ctx,
		"SELECT "+linkColumns+" FROM links WHERE workspace_id = $1 ORDER BY created_at DESC",
		workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	var links []*Link
	for rows.Next() {
		link := &Link{}
		if err := scanLink(rows, link); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// Update persists mutable link settings.
func (r *LinkRepository) Update(ctx context.Context, link *Link) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE links SET
			title = $2, custom_message = $3, is_active = $4, is_public = $5,
			password_hash = $6, require_name = $7, require_email = $8,
			require_message = $9, max_files = $10, max_file_size = $11,
			updated_at = NOW()
		WHERE id = $1
	`,
		link.ID, link.Title, link.CustomMessage, link.IsActive, link.IsPublic,
		link.PasswordHash, link.RequireName, link.RequireEmail,
		link.RequireMessage, link.MaxFiles, link.MaxFileSize,
	)
	if err != nil {
		return fmt.Errorf("failed to update link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLinkNotFound
	}
	return nil
}

// Delete removes a link record by ID.
func (r *LinkRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM links WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLinkNotFound
	}
	return nil
}

// ApplyUploadDelta atomically adjusts the link's aggregate counters after a
// file upload or deletion. Deltas may be negative.
func (r *LinkRepository) ApplyUploadDelta(ctx context.Context, id uuid.UUID, fileDelta, sizeDelta int64, uploadedAt *time.Time) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE links SET
			total_files = GREATEST(total_files + $2, 0),
			total_size = GREATEST(total_size + $3, 0),
			last_upload_at = COALESCE($4, last_upload_at),
			updated_at = NOW()
		WHERE id = $1
	`, id, fileDelta, sizeDelta, uploadedAt)
	if err != nil {
		return fmt.Errorf("failed to apply upload delta: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLinkNotFound
	}
	return nil
}

// AdjustUnread atomically changes the link's unread-uploads counter.
func (r *LinkRepository) AdjustUnread(ctx context.Context, id uuid.UUID, delta int64) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE links SET unread_uploads = GREATEST(unread_uploads + $2, 0), updated_at = NOW()
		WHERE id = $1
	`, id, delta)
	if err != nil {
		return fmt.Errorf("failed to adjust unread counter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLinkNotFound
	}
	return nil
}

// ResetUnread sets the unread-uploads counter of each given link to zero.
func (r *LinkRepository) ResetUnread(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE links SET unread_uploads = 0, updated_at = NOW()
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to reset unread counters: %w", err)
	}
	return nil
}

// GetStats returns aggregate server statistics.
func (r *LinkRepository) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM links),
			(SELECT COUNT(*) FROM links WHERE is_active),
			(SELECT COUNT(*) FROM files WHERE processing_status = 'completed'),
			(SELECT COUNT(*) FROM batches),
			(SELECT COALESCE(SUM(storage_used), 0) FROM users),
			(SELECT COUNT(*) FROM files WHERE processing_status = 'pending'),
			(SELECT COUNT(*) FROM notifications WHERE NOT is_read)
	`).Scan(
		&stats.TotalLinks, &stats.ActiveLinks, &stats.TotalFiles,
		&stats.TotalBatches, &stats.StorageUsed, &stats.PendingFiles,
		&stats.UnreadNotifications,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}
