// handlers_rules.go - Rule document load and export handlers
package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/soa-checker/backend/internal/models"
	"github.com/soa-checker/backend/internal/rules"
	"github.com/soa-checker/backend/internal/storage"
	"go.uber.org/zap"
)

// RulesHandlerImpl implements the RulesHandler interface
type RulesHandlerImpl struct {
	engine *rules.Engine
	store  storage.Store
	log    *zap.Logger
}

// NewRulesHandler creates a new rules handler. store may be nil, in which case uploaded
// documents are loaded but not kept.
func NewRulesHandler(engine *rules.Engine, store storage.Store, log *zap.Logger) RulesHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &RulesHandlerImpl{
		engine: engine,
		store:  store,
		log:    log,
	}
}

type loadRulesResponse struct {
	File  *models.FileInfo `json:"file,omitempty"`
	Rules rules.Info       `json:"rules"`
}

// HandleGetRules returns a summary of the loaded registry
func (h *RulesHandlerImpl) HandleGetRules(c echo.Context) error {
	return c.JSON(http.StatusOK, h.engine.Info())
}

// HandleLoadRules decodes the request body as a rule document and merges it into the registry.
// The format comes from ?format= or the Content-Type header, defaulting to JSON.
func (h *RulesHandlerImpl) HandleLoadRules(c echo.Context) error {
	format, err := requestFormat(c)
	if err != nil {
		return err
	}
	strict, err := queryBool(c, "strict")
	if err != nil {
		return err
	}

	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return NewBadRequestError("failed to read body", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return NewValidationError("body")
	}

	name := c.QueryParam("name")
	if name == "" {
		name = fmt.Sprintf("rules-%s%s", time.Now().UTC().Format("20060102-150405"), format.Extension())
	}

	var info *models.FileInfo
	if h.store != nil {
		info, err = h.store.Save(name, models.FileKindRules, bytes.NewReader(data))
		if err != nil {
			return NewInternalError("failed to save rule document", err)
		}
	}

	loadErr := h.load(data, format, strict)
	info = h.recordStatus(info, loadErr)
	if loadErr != nil {
		return mapDomainError(loadErr)
	}

	return c.JSON(http.StatusOK, loadRulesResponse{File: info, Rules: h.engine.Info()})
}

// HandleLoadRuleFile loads a previously stored rule document
func (h *RulesHandlerImpl) HandleLoadRuleFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}
	if h.store == nil {
		return NewServiceUnavailableError("file store is not configured")
	}
	strict, err := queryBool(c, "strict")
	if err != nil {
		return err
	}

	info, err := h.store.Get(id)
	if err != nil {
		return NewNotFoundError("file", id)
	}
	if info.Kind != models.FileKindRules {
		return NewBadRequestError("file is not a rule document", nil)
	}
	format, err := rules.FormatFromPath(info.Name)
	if err != nil {
		return NewBadRequestError("cannot tell the document format from the file name", err)
	}

	rc, err := h.store.Open(id)
	if err != nil {
		return NewInternalError("failed to open file", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return NewInternalError("failed to read file", err)
	}

	loadErr := h.load(data, format, strict)
	info = h.recordStatus(info, loadErr)
	if loadErr != nil {
		return mapDomainError(loadErr)
	}

	return c.JSON(http.StatusOK, loadRulesResponse{File: info, Rules: h.engine.Info()})
}

// HandleExportRules serializes the registry as JSON, YAML or msgpack
func (h *RulesHandlerImpl) HandleExportRules(c echo.Context) error {
	format := rules.FormatJSON
	if f := c.QueryParam("format"); f != "" {
		parsed, err := rules.ParseFormat(f)
		if err != nil {
			return NewBadRequestError("unsupported format", err)
		}
		format = parsed
	}

	data, err := h.engine.Export(format)
	if err != nil {
		return NewInternalError("failed to export rules", err)
	}

	if download, _ := strconv.ParseBool(c.QueryParam("download")); download {
		c.Response().Header().Set(echo.HeaderContentDisposition,
			fmt.Sprintf("attachment; filename=%q", "soa_rules"+format.Extension()))
	}
	return c.Blob(http.StatusOK, format.ContentType(), data)
}

// HandleListRuleFiles returns recently stored rule documents
func (h *RulesHandlerImpl) HandleListRuleFiles(c echo.Context) error {
	if h.store == nil {
		return c.JSON(http.StatusOK, []*models.FileInfo{})
	}
	limit, err := queryLimit(c, 50)
	if err != nil {
		return err
	}
	files, err := h.store.List(models.FileKindRules, limit)
	if err != nil {
		return NewInternalError("failed to list files", err)
	}
	return c.JSON(http.StatusOK, files)
}

func (h *RulesHandlerImpl) load(data []byte, format rules.Format, strict bool) error {
	doc, err := rules.Decode(data, format)
	if err != nil {
		return err
	}
	if strict {
		return h.engine.LoadDocumentStrict(doc)
	}
	return h.engine.LoadDocument(doc)
}

// recordStatus marks the stored file as loaded or failed and returns the updated metadata.
func (h *RulesHandlerImpl) recordStatus(info *models.FileInfo, loadErr error) *models.FileInfo {
	if info == nil || h.store == nil {
		return info
	}
	status, msg := models.FileStatusLoaded, ""
	if loadErr != nil {
		status, msg = models.FileStatusError, loadErr.Error()
	}
	if err := h.store.SetStatus(info.ID, status, msg); err != nil {
		h.log.Warn("failed to record file status", zap.String("file_id", info.ID), zap.Error(err))
		return info
	}
	if updated, err := h.store.Get(info.ID); err == nil {
		return updated
	}
	return info
}

// requestFormat picks the rule document format from ?format= or the Content-Type header.
func requestFormat(c echo.Context) (rules.Format, error) {
	if f := c.QueryParam("format"); f != "" {
		format, err := rules.ParseFormat(f)
		if err != nil {
			return "", NewBadRequestError("unsupported format", err)
		}
		return format, nil
	}
	if format, ok := rules.FormatFromContentType(c.Request().Header.Get(echo.HeaderContentType)); ok {
		return format, nil
	}
	return rules.FormatJSON, nil
}

func queryBool(c echo.Context, name string) (bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, NewValidationError(name)
	}
	return v, nil
}

func queryLimit(c echo.Context, def int) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, NewValidationError("limit")
	}
	return limit, nil
}
