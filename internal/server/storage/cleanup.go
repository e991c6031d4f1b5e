package storage

import (
	"context"
	"log/slog"
	"time"

	"linkdrop/internal/server/database"
)

// CleanupService periodically reaps orphaned partial uploads and expires
// batches that never completed. Partial uploads are pending file rows past
// the age cutoff with no checksum; their storage object (if any) is deleted
// before the row.
type CleanupService struct {
	files    *database.FileRepository
	batches  *database.BatchRepository
	store    ObjectStore
	interval time.Duration
	fileAge  time.Duration
	batchAge time.Duration
	done     chan struct{}
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(files *database.FileRepository, batches *database.BatchRepository, store ObjectStore, interval, fileAge, batchAge time.Duration) *CleanupService {
	return &CleanupService{
		files:    files,
		batches:  batches,
		store:    store,
		interval: interval,
		fileAge:  fileAge,
		batchAge: batchAge,
		done:     make(chan struct{}),
	}
}

// Start begins the cleanup loop in a background goroutine.
func (cs *CleanupService) Start(ctx context.Context) {
	slog.Info("cleanup service started", "interval", cs.interval)

	go func() {
		ticker := time.NewTicker(cs.interval)
		defer ticker.Stop()

		// Run once immediately on start
		cs.runCleanup(ctx)

		for {
			select {
			case <-ticker.C:
				cs.runCleanup(ctx)
			case <-ctx.Done():
				slog.Info("cleanup service stopping")
				close(cs.done)
				return
			}
		}
	}()
}

// Wait blocks until the cleanup service has fully stopped.
func (cs *CleanupService) Wait() {
	<-cs.done
}

func (cs *CleanupService) runCleanup(ctx context.Context) {
	slog.Info("running cleanup cycle")
	cs.reapPendingFiles(ctx)
	cs.expireStaleBatches(ctx)
}

func (cs *CleanupService) reapPendingFiles(ctx context.Context) {
	cutoff := time.Now().Add(-cs.fileAge)
	stale, err := cs.files.ListStalePending(ctx, cutoff)
	if err != nil {
		slog.Error("failed to list stale pending files", "error", err)
		return
	}
	if len(stale) == 0 {
		return
	}

	var paths []string
	var cleaned, failed int
	for _, file := range stale {
		if file.StoragePath != nil {
			paths = append(paths, *file.StoragePath)
		}
	}

	// Storage objects go first; a row without an object is harmless, an
	// object without a row is billed storage nobody can see.
	if len(paths) > 0 {
		if err := cs.store.Delete(ctx, paths); err != nil {
			slog.Error("failed to delete orphaned objects", "error", err)
		}
	}

	for _, file := range stale {
		if err := cs.files.Delete(ctx, file.ID); err != nil {
			slog.Error("failed to delete stale file row", "file_id", file.ID, "error", err)
			failed++
			continue
		}
		cleaned++
	}

	slog.Info("reaped orphaned partial uploads",
		"cleaned", cleaned,
		"failed", failed,
		"total_stale", len(stale),
	)
}

func (cs *CleanupService) expireStaleBatches(ctx context.Context) {
	cutoff := time.Now().Add(-cs.batchAge)
	stale, err := cs.batches.ListStale(ctx, cutoff)
	if err != nil {
		slog.Error("failed to list stale batches", "error", err)
		return
	}

	for _, batch := range stale {
		now := time.Now().UTC()
		if err := cs.batches.SetStatus(ctx, batch.ID, database.BatchExpired, &now); err != nil {
			slog.Error("failed to expire batch", "batch_id", batch.ID, "error", err)
			continue
		}
		slog.Info("expired stale batch",
			"batch_id", batch.ID,
			"link_id", batch.LinkID,
			"created_at", batch.CreatedAt,
		)
	}
}
