package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrations contains all database migrations in order.
// Each migration has a version key and SQL to execute.
var migrations = []struct {
	Version string
	SQL     string
}{
	{
		Version: "000001_create_users_workspaces",
		SQL: `
			CREATE TABLE IF NOT EXISTS users (
				id            VARCHAR(64)  PRIMARY KEY,
				email         VARCHAR(255) NOT NULL,
				display_name  VARCHAR(255) NOT NULL DEFAULT '',
				storage_used  BIGINT       NOT NULL DEFAULT 0,
				storage_limit BIGINT       NOT NULL,
				created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
				updated_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);
			CREATE TABLE IF NOT EXISTS workspaces (
				id         UUID         PRIMARY KEY,
				user_id    VARCHAR(64)  NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
				name       VARCHAR(255) NOT NULL,
				created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);
		`,
	},
	{
		Version: "000002_create_links",
		SQL: `
			CREATE TABLE IF NOT EXISTS links (
				id              UUID         PRIMARY KEY,
				workspace_id    UUID         NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
				slug            VARCHAR(100) NOT NULL,
				topic           VARCHAR(100),
				title           VARCHAR(255) NOT NULL,
				custom_message  TEXT         NOT NULL DEFAULT '',
				is_active       BOOLEAN      NOT NULL DEFAULT TRUE,
				is_public       BOOLEAN      NOT NULL DEFAULT TRUE,
				password_hash   VARCHAR(255),
				require_name    BOOLEAN      NOT NULL DEFAULT FALSE,
				require_email   BOOLEAN      NOT NULL DEFAULT FALSE,
				require_message BOOLEAN      NOT NULL DEFAULT FALSE,
				max_files       INTEGER      NOT NULL DEFAULT 100,
				max_file_size   BIGINT       NOT NULL DEFAULT 104857600,
				total_files     BIGINT       NOT NULL DEFAULT 0,
				total_size      BIGINT       NOT NULL DEFAULT 0,
				unread_uploads  BIGINT       NOT NULL DEFAULT 0,
				last_upload_at  TIMESTAMPTZ,
				created_at      TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
				updated_at      TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_links_workspace_slug_topic
				ON links(workspace_id, slug, COALESCE(topic, ''));
			CREATE INDEX IF NOT EXISTS idx_links_slug ON links(slug);
		`,
	},
	{
		Version: "000003_create_folders_batches_files",
		SQL: `
			CREATE TABLE IF NOT EXISTS folders (
				id               UUID         PRIMARY KEY,
				workspace_id     UUID         NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
				link_id          UUID         REFERENCES links(id) ON DELETE SET NULL,
				parent_folder_id UUID         REFERENCES folders(id),
				name             VARCHAR(255) NOT NULL,
				path             TEXT         NOT NULL,
				depth            INTEGER      NOT NULL DEFAULT 0,
				created_at       TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_folders_workspace ON folders(workspace_id);
			CREATE INDEX IF NOT EXISTS idx_folders_parent ON folders(parent_folder_id);

			CREATE TABLE IF NOT EXISTS batches (
				id               UUID         PRIMARY KEY,
				link_id          UUID         NOT NULL REFERENCES links(id) ON DELETE CASCADE,
				uploader_name    VARCHAR(255) NOT NULL DEFAULT '',
				uploader_email   VARCHAR(255),
				uploader_message TEXT,
				status           VARCHAR(20)  NOT NULL DEFAULT 'in_progress',
				total_files      INTEGER      NOT NULL DEFAULT 0,
				processed_files  INTEGER      NOT NULL DEFAULT 0,
				failed_files     INTEGER      NOT NULL DEFAULT 0,
				total_size       BIGINT       NOT NULL DEFAULT 0,
				created_at       TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
				completed_at     TIMESTAMPTZ
			);
			CREATE INDEX IF NOT EXISTS idx_batches_link ON batches(link_id);
			CREATE INDEX IF NOT EXISTS idx_batches_status_created ON batches(status, created_at);

			CREATE TABLE IF NOT EXISTS files (
				id                UUID         PRIMARY KEY,
				batch_id          UUID         REFERENCES batches(id) ON DELETE SET NULL,
				link_id           UUID         REFERENCES links(id) ON DELETE CASCADE,
				workspace_id      UUID         NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
				folder_id         UUID         REFERENCES folders(id) ON DELETE SET NULL,
				file_name         VARCHAR(255) NOT NULL,
				storage_path      TEXT,
				mime_type         VARCHAR(255) NOT NULL DEFAULT 'application/octet-stream',
				size              BIGINT       NOT NULL DEFAULT 0,
				checksum          VARCHAR(64),
				processing_status VARCHAR(20)  NOT NULL DEFAULT 'pending',
				created_at        TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
				updated_at        TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_files_workspace ON files(workspace_id);
			CREATE INDEX IF NOT EXISTS idx_files_folder ON files(folder_id);
			CREATE INDEX IF NOT EXISTS idx_files_status_created ON files(processing_status, created_at);
		`,
	},
	{
		Version: "000004_create_notifications",
		SQL: `
			CREATE TABLE IF NOT EXISTS notifications (
				id         UUID         PRIMARY KEY,
				user_id    VARCHAR(64)  NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				link_id    UUID         NOT NULL REFERENCES links(id) ON DELETE CASCADE,
				batch_id   UUID         REFERENCES batches(id) ON DELETE SET NULL,
				title      VARCHAR(255) NOT NULL,
				body       TEXT         NOT NULL DEFAULT '',
				is_read    BOOLEAN      NOT NULL DEFAULT FALSE,
				read_at    TIMESTAMPTZ,
				created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_notifications_user_created
				ON notifications(user_id, created_at DESC);
			CREATE INDEX IF NOT EXISTS idx_notifications_link_unread
				ON notifications(link_id) WHERE is_read = FALSE;
		`,
	},
}

// DB wraps a pgxpool connection pool and provides health checks and migrations.
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("connected to database")
	return &DB{Pool: pool}, nil
}

// RunMigrations applies all pending database migrations in order.
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists bool
		err := db.Pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)",
			m.Version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration status for %s: %w", m.Version, err)
		}
		if exists {
			continue
		}

		tx, err := db.Pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %s: %w", m.Version, err)
		}

		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to execute migration %s: %w", m.Version, err)
		}

		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.Version); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.Version, err)
		}

		slog.Info("applied migration", "version", m.Version)
	}

	return nil
}

// HealthCheck verifies the database connection is alive.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
