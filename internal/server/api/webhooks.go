package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// authWebhookEvent is the identity provider's delivery envelope.
type authWebhookEvent struct {
	Type string `json:"type"`
	Data struct {
		ID             string `json:"id"`
		FirstName      string `json:"first_name"`
		LastName       string `json:"last_name"`
		EmailAddresses []struct {
			EmailAddress string `json:"email_address"`
		} `json:"email_addresses"`
	} `json:"data"`
}

// HandleAuthWebhook handles POST /webhooks/auth. A delivery with a bad
// signature is rejected with 400; once the signature passes, the response
// is always 200 so the provider never retries an event the handler merely
// failed to process. Processing errors are logged instead.
func (h *Handler) HandleAuthWebhook(c echo.Context) error {
	if h.verifier == nil {
		slog.Warn("webhook delivery rejected, no secret configured")
		return fail(c, http.StatusBadRequest, "webhooks not configured", codeInvalidInput)
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return fail(c, http.StatusBadRequest, "could not read body", codeInvalidInput)
	}

	if err := h.verifier.Verify(c.Request().Header, body); err != nil {
		slog.Warn("webhook signature verification failed", "error", err)
		return fail(c, http.StatusBadRequest, "invalid signature", codeUnauthorized)
	}

	var event authWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		slog.Error("failed to decode webhook payload", "error", err)
		return c.JSON(http.StatusOK, echo.Map{"success": true})
	}

	ctx := c.Request().Context()
	email := ""
	if len(event.Data.EmailAddresses) > 0 {
		email = event.Data.EmailAddresses[0].EmailAddress
	}
	displayName := strings.TrimSpace(event.Data.FirstName + " " + event.Data.LastName)

	switch event.Type {
	case "user.created":
		err = h.users.HandleCreated(ctx, event.Data.ID, email, displayName)
	case "user.updated":
		err = h.users.HandleUpdated(ctx, event.Data.ID, email, displayName)
	case "user.deleted":
		err = h.users.HandleDeleted(ctx, event.Data.ID)
	default:
		slog.Info("ignoring webhook event", "type", event.Type)
	}
	if err != nil {
		slog.Error("failed to process webhook event",
			"type", event.Type, "user_id", event.Data.ID, "error", err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}
