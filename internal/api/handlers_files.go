// handlers_files.go - Stored rule and scenario file handlers
package api

import (
	"bytes"
	"encoding/base64"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/soa-checker/backend/internal/models"
	"github.com/soa-checker/backend/internal/storage"
)

// FileHandlerImpl implements the FileHandler interface
type FileHandlerImpl struct {
	store        storage.Store
	allowDelete  bool
	allowedTypes map[string]bool
}

// NewFileHandler creates a new file handler instance. allowedTypes lists the accepted
// file extensions ("json", ".csv", ...); an empty list accepts any file.
func NewFileHandler(store storage.Store, allowDelete bool, allowedTypes []string) FileHandler {
	h := &FileHandlerImpl{
		store:       store,
		allowDelete: allowDelete,
	}
	if len(allowedTypes) > 0 {
		h.allowedTypes = make(map[string]bool, len(allowedTypes))
		for _, ext := range allowedTypes {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext != "" && !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			h.allowedTypes[ext] = true
		}
	}
	return h
}

func (h *FileHandlerImpl) checkType(name string) error {
	if h.allowedTypes == nil {
		return nil
	}
	if !h.allowedTypes[strings.ToLower(filepath.Ext(name))] {
		return NewBadRequestError("file type not allowed: "+name, nil)
	}
	return nil
}

// HandleUploadFile accepts a file as base64 JSON and saves it to storage
func (h *FileHandlerImpl) HandleUploadFile(c echo.Context) error {
	var req uploadFileRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	if err := req.validate(); err != nil {
		return err
	}
	if err := h.checkType(req.Name); err != nil {
		return err
	}

	decoded, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return NewBadRequestError("invalid base64 data", err)
	}

	info, err := h.store.Save(req.Name, req.Kind, bytes.NewReader(decoded))
	if err != nil {
		return NewInternalError("failed to save file", err)
	}

	return c.JSON(http.StatusCreated, info)
}

// HandleUploadBinary accepts a raw file upload (multipart/form-data) with its kind in "kind"
func (h *FileHandlerImpl) HandleUploadBinary(c echo.Context) error {
	kind, err := parseFileKind(c.FormValue("kind"))
	if err != nil {
		return err
	}

	file, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no file provided", err)
	}
	if err := h.checkType(file.Filename); err != nil {
		return err
	}

	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	info, err := h.store.Save(file.Filename, kind, src)
	if err != nil {
		return NewInternalError("failed to save file", err)
	}

	return c.JSON(http.StatusCreated, info)
}

// HandleListFiles returns recently stored files, optionally filtered by ?kind=
func (h *FileHandlerImpl) HandleListFiles(c echo.Context) error {
	var kind models.FileKind
	if raw := c.QueryParam("kind"); raw != "" {
		k, err := parseFileKind(raw)
		if err != nil {
			return err
		}
		kind = k
	}
	limit, err := queryLimit(c, 50)
	if err != nil {
		return err
	}

	files, err := h.store.List(kind, limit)
	if err != nil {
		return NewInternalError("failed to list files", err)
	}
	if files == nil {
		files = []*models.FileInfo{}
	}
	return c.JSON(http.StatusOK, files)
}

// HandleGetFile returns metadata for a specific file
func (h *FileHandlerImpl) HandleGetFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	info, err := h.store.Get(id)
	if err != nil {
		return NewNotFoundError("file", id)
	}

	return c.JSON(http.StatusOK, info)
}

// HandleDeleteFile deletes a stored file
func (h *FileHandlerImpl) HandleDeleteFile(c echo.Context) error {
	if !h.allowDelete {
		return NewForbiddenError("file deletion is disabled")
	}
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	if err := h.store.Delete(id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return NewNotFoundError("file", id)
		}
		return NewInternalError("failed to delete file", err)
	}

	return c.NoContent(http.StatusNoContent)
}

// HandleRenameFile updates the name of a file
func (h *FileHandlerImpl) HandleRenameFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	var req renameFileRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	if strings.TrimSpace(req.Name) == "" {
		return NewValidationError("name")
	}

	info, err := h.store.Rename(id, req.Name)
	if err != nil {
		return NewNotFoundError("file", id)
	}

	return c.JSON(http.StatusOK, info)
}

// Request/Response types

type uploadFileRequest struct {
	Name string          `json:"name"`
	Kind models.FileKind `json:"kind"`
	Data string          `json:"data"` // Base64-encoded content
}

func (r *uploadFileRequest) validate() error {
	if r.Name == "" {
		return NewValidationError("name")
	}
	kind, err := parseFileKind(string(r.Kind))
	if err != nil {
		return err
	}
	r.Kind = kind
	if r.Data == "" {
		return NewValidationError("data")
	}
	return nil
}

type renameFileRequest struct {
	Name string `json:"name"`
}

// parseFileKind accepts "rules" or "scenarios"; empty means rules.
func parseFileKind(raw string) (models.FileKind, error) {
	switch models.FileKind(strings.ToLower(strings.TrimSpace(raw))) {
	case "", models.FileKindRules:
		return models.FileKindRules, nil
	case models.FileKindScenarios:
		return models.FileKindScenarios, nil
	default:
		return "", NewValidationError("kind")
	}
}
