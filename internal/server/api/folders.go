package api

import (
	"net/http"

	"linkdrop/internal/server/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type createFolderRequest struct {
	Name     string `json:"name"`
	ParentID string `json:"parentId"`
}

// HandleCreateFolder handles POST /api/folders.
func (h *Handler) HandleCreateFolder(c echo.Context) error {
	var req createFolderRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body", codeInvalidInput)
	}

	var parentID *uuid.UUID
	if req.ParentID != "" {
		id, err := uuid.Parse(req.ParentID)
		if err != nil {
			return fail(c, http.StatusBadRequest, "invalid parent folder id", codeInvalidInput)
		}
		parentID = &id
	}

	folder, err := h.folders.Create(c.Request().Context(), currentUserID(c), req.Name, parentID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"folder":  folder,
	})
}

type moveFolderRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parentId"` // absent leaves the parent, "" moves to root
}

// HandleMoveFolder handles PATCH /api/folders/:id.
func (h *Handler) HandleMoveFolder(c echo.Context) error {
	folderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid folder id", codeInvalidInput)
	}

	var req moveFolderRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body", codeInvalidInput)
	}

	params := service.MoveFolderParams{Name: req.Name}
	if req.ParentID != nil {
		params.Reparent = true
		if *req.ParentID != "" {
			id, err := uuid.Parse(*req.ParentID)
			if err != nil {
				return fail(c, http.StatusBadRequest, "invalid parent folder id", codeInvalidInput)
			}
			params.ParentID = &id
		}
	}

	folder, err := h.folders.Move(c.Request().Context(), currentUserID(c), folderID, params)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"folder":  folder,
	})
}

// HandleShareFolder handles POST /api/folders/:id/share. The body takes the
// same settings as link creation.
func (h *Handler) HandleShareFolder(c echo.Context) error {
	folderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid folder id", codeInvalidInput)
	}

	var req createLinkRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body", codeInvalidInput)
	}

	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}

	link, err := h.folders.Share(c.Request().Context(), currentUserID(c), folderID, service.CreateLinkParams{
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

// HandleDeleteFolder handles DELETE /api/folders/:id.
func (h *Handler) HandleDeleteFolder(c echo.Context) error {
	folderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid folder id", codeInvalidInput)
	}

	if err := h.folders.Delete(c.Request().Context(), currentUserID(c), folderID); err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "folder deleted successfully",
	})
}

// HandleWorkspaceTree handles GET /api/workspace/tree.
func (h *Handler) HandleWorkspaceTree(c echo.Context) error {
	tree, err := h.folders.WorkspaceTree(c.Request().Context(), currentUserID(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"tree":    tree,
	})
}
