package api

import (
	"net/http"
	"strings"

	"linkdrop/internal/server/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// HandleValidateAccess handles GET /api/public/links/*.
// The wildcard path carries the public URL segments ("{handle}/{slug}" or
// "{handle}/{slug}/{topic}").
func (h *Handler) HandleValidateAccess(c echo.Context) error {
	raw := c.Param("*")
	var segments []string
	for _, s := range strings.Split(raw, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}

	access, err := h.access.ValidateAccess(c.Request().Context(), segments)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    access,
	})
}

type createLinkRequest struct {
	Slug           string `json:"slug"`
	Topic          string `json:"topic"`
	Title          string `json:"title"`
	CustomMessage  string `json:"customMessage"`
	IsPublic       *bool  `json:"isPublic"`
	Password       string `json:"password"`
	RequireName    bool   `json:"requireName"`
	RequireEmail   bool   `json:"requireEmail"`
	RequireMessage bool   `json:"requireMessage"`
	MaxFiles       int    `json:"maxFiles"`
	MaxFileSize    int64  `json:"maxFileSize"`
}

// HandleCreateLink handles POST /api/links.
func (h *Handler) HandleCreateLink(c echo.Context) error {
	var req createLinkRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body", codeInvalidInput)
	}

	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}

	link, err := h.links.Create(c.Request().Context(), currentUserID(c), service.CreateLinkParams{
		Slug:           req.Slug,
		Topic:          req.Topic,
		Title:          req.Title,
		CustomMessage:  req.CustomMessage,
		IsPublic:       isPublic,
		Password:       req.Password,
		RequireName:    req.RequireName,
		RequireEmail:   req.RequireEmail,
		RequireMessage: req.RequireMessage,
		MaxFiles:       req.MaxFiles,
		MaxFileSize:    req.MaxFileSize,
	})
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"link":    link,
	})
}

// HandleListLinks handles GET /api/links.
func (h *Handler) HandleListLinks(c echo.Context) error {
	links, err := h.links.List(c.Request().Context(), currentUserID(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"links":   links,
	})
}

type updateLinkRequest struct {
	Title          *string `json:"title"`
	CustomMessage  *string `json:"customMessage"`
	IsActive       *bool   `json:"isActive"`
	IsPublic       *bool   `json:"isPublic"`
	Password       *string `json:"password"`
	RequireName    *bool   `json:"requireName"`
	RequireEmail   *bool   `json:"requireEmail"`
	RequireMessage *bool   `json:"requireMessage"`
	MaxFiles       *int    `json:"maxFiles"`
	MaxFileSize    *int64  `json:"maxFileSize"`
}

// HandleUpdateLink handles PATCH /api/links/:id.
func (h *Handler) HandleUpdateLink(c echo.Context) error {
	linkID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid link id", codeInvalidInput)
	}

	var req updateLinkRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body", codeInvalidInput)
	}

	link, err := h.links.Update(c.Request().Context(), currentUserID(c), linkID, service.UpdateLinkParams{
		Title:          req.Title,
		CustomMessage:  req.CustomMessage,
		IsActive:       req.IsActive,
		IsPublic:       req.IsPublic,
		Password:       req.Password,
		RequireName:    req.RequireName,
		RequireEmail:   req.RequireEmail,
		RequireMessage: req.RequireMessage,
		MaxFiles:       req.MaxFiles,
		MaxFileSize:    req.MaxFileSize,
	})
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"link":    link,
	})
}

// HandleDeleteLink handles DELETE /api/links/:id.
func (h *Handler) HandleDeleteLink(c echo.Context) error {
	linkID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid link id", codeInvalidInput)
	}

	if err := h.links.Delete(c.Request().Context(), currentUserID(c), linkID); err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "link deleted successfully",
	})
}
