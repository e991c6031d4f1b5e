package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"linkdrop/internal/server/realtime"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 30 * time.Second

// HandleSubscribe handles GET /api/realtime/subscribe, a server-sent events
// stream of invalidation messages for the authenticated user's topics. An
// optional ?linkId= adds that link's topic after an ownership check.
//
// Events are debounced: a burst of file updates collapses into a single
// "invalidate" message, while link lifecycle and notification events bypass
// the window and flush immediately.
func (h *Handler) HandleSubscribe(c echo.Context) error {
	userID := currentUserID(c)

	ws, err := h.users.Workspace(c.Request().Context(), userID)
	if err != nil {
		return mapServiceError(c, err)
	}

	topics := []string{
		realtime.TopicNotifications(userID),
		realtime.TopicUserFiles(userID),
		realtime.TopicWorkspace(ws.ID),
	}
	if raw := c.QueryParam("linkId"); raw != "" {
		linkID, err := uuid.Parse(raw)
		if err != nil {
			return fail(c, http.StatusBadRequest, "invalid link id", codeInvalidInput)
		}
		if _, err := h.links.Get(c.Request().Context(), userID, linkID); err != nil {
			return mapServiceError(c, err)
		}
		topics = append(topics, realtime.TopicLinkFiles(linkID))
	}

	events, cancel := h.hub.Subscribe(topics...)
	defer cancel()

	// The invalidator's emit callback runs on timer goroutines, which must
	// not touch the response writer; the buffered channel carries batches
	// back onto this handler goroutine.
	out := make(chan []string, 16)
	inv := realtime.NewInvalidator(realtime.DefaultDebounce,
		[]string{realtime.KindLinkGenerated, realtime.KindLinkDeleted, realtime.KindNotification},
		func(kinds []string) {
			select {
			case out <- kinds:
			default:
			}
		})
	defer inv.Stop()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			inv.Observe(ev)
		case kinds := <-out:
			data, err := json.Marshal(echo.Map{"kinds": kinds})
			if err != nil {
				continue
			}
			fmt.Fprintf(res, "event: invalidate\ndata: %s\n\n", data)
			res.Flush()
		case <-heartbeat.C:
			fmt.Fprint(res, ": heartbeat\n\n")
			res.Flush()
		}
	}
}
