package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"linkdrop/internal/server/api"
	"linkdrop/internal/server/config"
	"linkdrop/internal/server/database"
	"linkdrop/internal/server/realtime"
	"linkdrop/internal/server/service"
	"linkdrop/internal/server/storage"
	"linkdrop/internal/server/webhook"
)

func main() {
	// Structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load config
	cfg := config.Load()
	slog.Info("configuration loaded",
		"port", cfg.Port,
		"storage_backend", cfg.StorageBackend,
		"max_upload_size", cfg.MaxUploadSize,
		"cleanup_interval", cfg.CleanupInterval,
	)

	// Connect to database
	ctx := context.Background()
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	if err := db.RunMigrations(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database migrations complete")

	// Initialize storage backend
	var store storage.ObjectStore
	switch cfg.StorageBackend {
	case "s3":
		store, err = storage.NewS3Store(storage.S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			slog.Error("failed to initialize s3 storage", "error", err)
			os.Exit(1)
		}
		slog.Info("s3 storage initialized", "bucket", cfg.S3Bucket, "region", cfg.S3Region)
	default:
		fs := storage.NewFileSystemStore(cfg.StoragePath)
		if err := fs.EnsureDir(); err != nil {
			slog.Error("failed to initialize storage", "error", err)
			os.Exit(1)
		}
		store = fs
		slog.Info("file storage initialized", "path", cfg.StoragePath)
	}

	// Initialize repositories
	userRepo := database.NewUserRepository(db)
	linkRepo := database.NewLinkRepository(db)
	batchRepo := database.NewBatchRepository(db)
	fileRepo := database.NewFileRepository(db)
	folderRepo := database.NewFolderRepository(db)
	notificationRepo := database.NewNotificationRepository(db)

	// Realtime hub and rate limiter (shared between middleware and services)
	hub := realtime.NewHub()
	limiter := api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	// Wire services
	notificationSvc := service.NewNotificationService(notificationRepo, linkRepo, hub)
	accessSvc := service.NewAccessService(linkRepo)
	linkSvc := service.NewLinkService(linkRepo, fileRepo, userRepo, store, hub, limiter,
		cfg.DefaultMaxFiles, cfg.DefaultMaxFileSize)
	uploadSvc := service.NewUploadService(linkRepo, batchRepo, fileRepo, userRepo, store, hub,
		notificationSvc, cfg.MaxUploadSize)
	folderSvc := service.NewFolderService(folderRepo, fileRepo, linkSvc, userRepo, store, hub)
	userSvc := service.NewUserService(userRepo, fileRepo, store, cfg.DefaultStorageLimit)

	// Webhook signature verification (optional; deliveries are rejected
	// when no secret is configured)
	var verifier *webhook.Verifier
	if cfg.WebhookSecret != "" {
		verifier, err = webhook.NewVerifier(cfg.WebhookSecret)
		if err != nil {
			slog.Error("invalid webhook secret", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Warn("WEBHOOK_SECRET not set, auth webhooks disabled")
	}

	// Start cleanup service
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	cleanup := storage.NewCleanupService(fileRepo, batchRepo, store,
		cfg.CleanupInterval, cfg.PendingFileMaxAge, cfg.BatchTimeout)
	cleanup.Start(cleanupCtx)

	// Setup HTTP router
	handler := api.NewHandler(accessSvc, linkSvc, uploadSvc, notificationSvc, folderSvc, userSvc,
		linkRepo, hub, verifier, db)
	e := api.SetupRouter(handler, cfg, limiter)

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr, "base_url", cfg.BaseURL)
		if err := e.Start(addr); err != nil {
			slog.Info("server stopped", "reason", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	// Stop accepting new requests, finish in-flight with 30s timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop cleanup service
	cleanupCancel()
	cleanup.Wait()

	slog.Info("server exited cleanly")
}
