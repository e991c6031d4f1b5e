package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// HandleListNotifications handles GET /api/notifications.
func (h *Handler) HandleListNotifications(c echo.Context) error {
	notifications, err := h.notifications.List(c.Request().Context(), currentUserID(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":       true,
		"notifications": notifications,
	})
}

// HandleMarkNotificationRead handles POST /api/notifications/:id/read.
func (h *Handler) HandleMarkNotificationRead(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid notification id", codeInvalidInput)
	}

	if err := h.notifications.MarkRead(c.Request().Context(), currentUserID(c), id); err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// HandleMarkAllNotificationsRead handles POST /api/notifications/mark-all-read.
func (h *Handler) HandleMarkAllNotificationsRead(c echo.Context) error {
	count, err := h.notifications.MarkAllRead(c.Request().Context(), currentUserID(c))
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"count":   count,
	})
}

type deleteNotificationRequest struct {
	NotificationID string `json:"notificationId"`
}

// HandleDeleteNotification handles DELETE /api/notifications. The target is
// named in the body rather than the path.
func (h *Handler) HandleDeleteNotification(c echo.Context) error {
	var req deleteNotificationRequest
	if err := c.Bind(&req); err != nil || req.NotificationID == "" {
		return fail(c, http.StatusBadRequest, "notificationId is required", codeInvalidInput)
	}

	id, err := uuid.Parse(req.NotificationID)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid notification id", codeInvalidInput)
	}

	if err := h.notifications.Delete(c.Request().Context(), currentUserID(c), id); err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "notification deleted",
	})
}
