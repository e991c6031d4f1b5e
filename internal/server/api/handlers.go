package api

import (
	"errors"
	"fmt"
	"net/http"

	"linkdrop/internal/server/database"
	"linkdrop/internal/server/realtime"
	"linkdrop/internal/server/service"
	"linkdrop/internal/server/webhook"

	"github.com/labstack/echo/v4"
)

// Stable machine-readable error codes carried alongside public errors.
const (
	codeInvalidIP     = "INVALID_IP"
	codeInvalidInput  = "INVALID_INPUT"
	codeUnauthorized  = "UNAUTHORIZED"
	codeNotFound      = "NOT_FOUND"
	codeStorageError  = "STORAGE_ERROR"
	codeDatabaseError = "DATABASE_ERROR"
	codeInternalError = "INTERNAL_ERROR"
)

// Handler contains the HTTP handlers for the linkdrop API.
type Handler struct {
	access        *service.AccessService
	links         *service.LinkService
	uploads       *service.UploadService
	notifications *service.NotificationService
	folders       *service.FolderService
	users         *service.UserService
	stats         *database.LinkRepository
	hub           *realtime.Hub
	verifier      *webhook.Verifier
	db            *database.DB
}

// NewHandler creates a new handler with the given service dependencies.
// verifier may be nil when no webhook secret is configured; webhook
// deliveries are then rejected.
func NewHandler(
	access *service.AccessService,
	links *service.LinkService,
	uploads *service.UploadService,
	notifications *service.NotificationService,
	folders *service.FolderService,
	users *service.UserService,
	stats *database.LinkRepository,
	hub *realtime.Hub,
	verifier *webhook.Verifier,
	db *database.DB,
) *Handler {
	return &Handler{
		access:        access,
		links:         links,
		uploads:       uploads,
		notifications: notifications,
		folders:       folders,
		users:         users,
		stats:         stats,
		hub:           hub,
		verifier:      verifier,
		db:            db,
	}
}

// HandleHealth handles GET /health.
// Returns the health status of the server, including database connectivity.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	dbStatus := "connected"

	if err := h.db.HealthCheck(c.Request().Context()); err != nil {
		status = "degraded"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":      status,
		"database":    dbStatus,
		"subscribers": h.hub.SubscriberCount(),
	})
}

// HandleStats handles GET /api/stats.
// Returns aggregate server statistics.
func (h *Handler) HandleStats(c echo.Context) error {
	stats, err := h.stats.GetStats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"success": false,
			"error":   "failed to retrieve stats",
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":              true,
		"total_links":          stats.TotalLinks,
		"active_links":         stats.ActiveLinks,
		"total_files":          stats.TotalFiles,
		"total_batches":        stats.TotalBatches,
		"storage_used_bytes":   stats.StorageUsed,
		"storage_used_human":   humanizeBytes(stats.StorageUsed),
		"pending_files":        stats.PendingFiles,
		"unread_notifications": stats.UnreadNotifications,
	})
}

// mapServiceError translates service-layer errors into structured HTTP
// responses. No error ever crosses the boundary unwrapped.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidLinkPath):
		return fail(c, http.StatusBadRequest, "Invalid link format", codeInvalidInput)
	case errors.Is(err, service.ErrLinkNotFound):
		return fail(c, http.StatusNotFound, "Link not found", codeNotFound)
	case errors.Is(err, service.ErrLinkInactive):
		return fail(c, http.StatusForbidden, "Link is inactive", codeUnauthorized)
	case errors.Is(err, service.ErrNotFound):
		return fail(c, http.StatusNotFound, "not found", codeNotFound)
	case errors.Is(err, service.ErrInvalidInput):
		return fail(c, http.StatusBadRequest, err.Error(), codeInvalidInput)
	case errors.Is(err, service.ErrPasswordRequired):
		return fail(c, http.StatusUnauthorized, "password required", codeUnauthorized)
	case errors.Is(err, service.ErrInvalidPassword):
		return fail(c, http.StatusForbidden, "invalid password", codeUnauthorized)
	case errors.Is(err, service.ErrSlugTaken):
		return fail(c, http.StatusConflict, "This URL is already in use", codeInvalidInput)
	case errors.Is(err, service.ErrRateLimited):
		return c.JSON(http.StatusTooManyRequests, echo.Map{
			"success": false,
			"blocked": true,
		})
	case errors.Is(err, service.ErrFileTooLarge):
		return fail(c, http.StatusRequestEntityTooLarge, "file exceeds the allowed size", codeInvalidInput)
	case errors.Is(err, service.ErrTooManyFiles):
		return fail(c, http.StatusBadRequest, "link file limit reached", codeInvalidInput)
	case errors.Is(err, service.ErrStorageQuota):
		return fail(c, http.StatusRequestEntityTooLarge, "workspace storage limit exceeded", codeInvalidInput)
	case errors.Is(err, service.ErrBatchFinished):
		return fail(c, http.StatusConflict, "batch is no longer accepting files", codeInvalidInput)
	case errors.Is(err, service.ErrFolderCycle), errors.Is(err, service.ErrFolderTooDeep):
		return fail(c, http.StatusBadRequest, err.Error(), codeInvalidInput)
	case errors.Is(err, service.ErrStorageFailed):
		return fail(c, http.StatusInternalServerError, "storage operation failed", codeStorageError)
	case errors.Is(err, service.ErrDatabaseFailed):
		return fail(c, http.StatusInternalServerError, "database operation failed", codeDatabaseError)
	default:
		return fail(c, http.StatusInternalServerError, "internal server error", codeInternalError)
	}
}

func fail(c echo.Context, status int, message, code string) error {
	return c.JSON(status, echo.Map{
		"success": false,
		"error":   message,
		"code":    code,
	})
}

// humanizeBytes formats a byte count into a human-readable string.
func humanizeBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
