package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrBatchNotFound = errors.New("batch not found")

const batchColumns = `id, link_id, uploader_name, uploader_email, uploader_message,
	status, total_files, processed_files, failed_files, total_size,
	created_at, completed_at`

// BatchRepository provides CRUD operations for upload batches.
type BatchRepository struct {
	db *DB
}

// NewBatchRepository creates a new BatchRepository.
func NewBatchRepository(db *DB) *BatchRepository {
	return &BatchRepository{db: db}
}

func scanBatch(row pgx.Row, b *Batch) error {
	return row.Scan(
		&b.ID, &b.LinkID, &b.UploaderName, &b.UploaderEmail, &b.UploaderMessage,
		&b.Status, &b.TotalFiles, &b.ProcessedFiles, &b.FailedFiles, &b.TotalSize,
		&b.CreatedAt, &b.CompletedAt,
	)
}

// Create inserts a new batch record.
func (r *BatchRepository) Create(ctx context.Context, batch *Batch) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO batches (
			id, link_id, uploader_name, uploader_email, uploader_message,
			status, total_files, processed_files, failed_files, total_size,
			created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		batch.ID, batch.LinkID, batch.UploaderName, batch.UploaderEmail, batch.UploaderMessage,
		batch.Status, batch.TotalFiles, batch.ProcessedFiles, batch.FailedFiles, batch.TotalSize,
		batch.CreatedAt, batch.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}
	return nil
}

// GetByID retrieves a batch by its ID.
func (r *BatchRepository) GetByID(ctx context.Context, id uuid.UUID) (*Batch, error) {
	batch := &Batch{}
	row := r.db.Pool.QueryRow(ctx,
		"SELECT "+batchColumns+" FROM batches WHERE id = $1", id)
	if err := scanBatch(row, batch); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBatchNotFound
		}
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return batch, nil
}

// ApplyFileResult atomically records one file's outcome on the batch.
func (r *BatchRepository) ApplyFileResult(ctx context.Context, id uuid.UUID, processedDelta, failedDelta int, sizeDelta int64) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE batches SET
			processed_files = processed_files + $2,
			failed_files = failed_files + $3,
			total_size = GREATEST(total_size + $4, 0)
		WHERE id = $1
	`, id, processedDelta, failedDelta, sizeDelta)
	if err != nil {
		return fmt.Errorf("failed to apply file result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

// SetStatus transitions a batch to a terminal status.
func (r *BatchRepository) SetStatus(ctx context.Context, id uuid.UUID, status string, completedAt *time.Time) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE batches SET status = $2, completed_at = $3 WHERE id = $1
	`, id, status, completedAt)
	if err != nil {
		return fmt.Errorf("failed to set batch status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

// ListStale returns in-progress batches created before the cutoff.
func (r *BatchRepository) ListStale(ctx context.Context, cutoff time.Time) ([]*Batch, error) {
	rows, err := r.db.Pool.Query(ctx,
		"SELECT "+batchColumns+" FROM batches WHERE status = $1 AND created_at < $2",
		BatchInProgress, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale batches: %w", err)
	}
	defer rows.Close()

	var batches []*Batch
	for rows.Next() {
		batch := &Batch{}
		if err := scanBatch(rows, batch); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}
