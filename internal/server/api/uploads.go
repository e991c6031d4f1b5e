package api

import (
	"net/http"
	"strings"

	"linkdrop/internal/server/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type startBatchFileSpec struct {
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
	FolderID string `json:"folderId"`
}

type startBatchRequest struct {
	Slug            string               `json:"slug"`
	Topic           string               `json:"topic"`
	Password        string               `json:"password"`
	UploaderName    string               `json:"uploaderName"`
	UploaderEmail   string               `json:"uploaderEmail"`
	UploaderMessage string               `json:"uploaderMessage"`
	Files           []startBatchFileSpec `json:"files"`
}

// HandleStartBatch handles POST /api/public/uploads/batches.
func (h *Handler) HandleStartBatch(c echo.Context) error {
	var req startBatchRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body", codeInvalidInput)
	}

	specs := make([]service.BatchFileSpec, 0, len(req.Files))
	for _, f := range req.Files {
		spec := service.BatchFileSpec{
			FileName: f.FileName,
			MimeType: f.MimeType,
			Size:     f.Size,
		}
		if f.FolderID != "" {
			folderID, err := uuid.Parse(f.FolderID)
			if err != nil {
				return fail(c, http.StatusBadRequest, "invalid folder id", codeInvalidInput)
			}
			spec.FolderID = &folderID
		}
		specs = append(specs, spec)
	}

	result, err := h.uploads.StartBatch(c.Request().Context(), service.StartBatchParams{
		Slug:            req.Slug,
		Topic:           req.Topic,
		Password:        req.Password,
		UploaderName:    req.UploaderName,
		UploaderEmail:   req.UploaderEmail,
		UploaderMessage: req.UploaderMessage,
		Files:           specs,
	})
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"batch":   result.Batch,
		"fileIds": result.FileIDs,
	})
}

// HandleUploadFile handles POST /api/public/uploads/link-file.
// Multipart form fields: file, batchId, fileId, linkId, and optionally
// folderId, linkSlug, linkPassword. The client IP must be resolvable or the
// request is rejected before any work happens.
func (h *Handler) HandleUploadFile(c echo.Context) error {
	if strings.TrimSpace(c.RealIP()) == "" {
		return fail(c, http.StatusBadRequest, "could not determine client address", codeInvalidIP)
	}

	batchID, err := uuid.Parse(c.FormValue("batchId"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid batch id", codeInvalidInput)
	}
	fileID, err := uuid.Parse(c.FormValue("fileId"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid file id", codeInvalidInput)
	}
	linkID, err := uuid.Parse(c.FormValue("linkId"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid link id", codeInvalidInput)
	}

	var folderID *uuid.UUID
	if raw := c.FormValue("folderId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return fail(c, http.StatusBadRequest, "invalid folder id", codeInvalidInput)
		}
		folderID = &id
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return fail(c, http.StatusBadRequest, "file is required", codeInvalidInput)
	}
	src, err := fileHeader.Open()
	if err != nil {
		return fail(c, http.StatusBadRequest, "could not read uploaded file", codeInvalidInput)
	}
	defer src.Close()

	result, err := h.uploads.UploadFile(c.Request().Context(), service.UploadFileParams{
		BatchID:      batchID,
		FileID:       fileID,
		LinkID:       linkID,
		FolderID:     folderID,
		LinkSlug:     c.FormValue("linkSlug"),
		LinkPassword: c.FormValue("linkPassword"),
		FileName:     fileHeader.Filename,
		MimeType:     fileHeader.Header.Get("Content-Type"),
		Size:         fileHeader.Size,
		Data:         src,
	})
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"file":    result,
	})
}

// HandleCompleteBatch handles POST /api/public/uploads/batches/:id/complete.
func (h *Handler) HandleCompleteBatch(c echo.Context) error {
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid batch id", codeInvalidInput)
	}

	batch, err := h.uploads.CompleteBatch(c.Request().Context(), batchID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"batch":   batch,
	})
}

// HandleListFiles handles GET /api/files.
func (h *Handler) HandleListFiles(c echo.Context) error {
	files, err := h.uploads.ListFiles(c.Request().Context(), currentUserID(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"files":   files,
	})
}

// HandleDeleteFile handles DELETE /api/files/:id.
func (h *Handler) HandleDeleteFile(c echo.Context) error {
	fileID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid file id", codeInvalidInput)
	}

	if err := h.uploads.DeleteFile(c.Request().Context(), currentUserID(c), fileID); err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "file deleted successfully",
	})
}
