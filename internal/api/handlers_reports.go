// handlers_reports.go - Report history handlers
package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/soa-checker/backend/internal/compliance"
	"github.com/soa-checker/backend/internal/history"
	"github.com/soa-checker/backend/internal/soa"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	mimeMsgpack = "application/msgpack"
	mimeXLSX    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ReportHandlerImpl implements the ReportHandler interface
type ReportHandlerImpl struct {
	history     ReportHistory
	allowDelete bool
}

// NewReportHandler creates a new report handler. A nil history answers every request with 503.
func NewReportHandler(history ReportHistory, allowDelete bool) ReportHandler {
	return &ReportHandlerImpl{
		history:     history,
		allowDelete: allowDelete,
	}
}

// HandleListReports returns report headers, newest first, optionally filtered by ?device=
func (h *ReportHandlerImpl) HandleListReports(c echo.Context) error {
	if h.history == nil {
		return NewServiceUnavailableError("report history is not configured")
	}
	limit, err := queryLimit(c, 50)
	if err != nil {
		return err
	}
	reports, err := h.history.List(c.Request().Context(), c.QueryParam("device"), limit)
	if err != nil {
		return NewInternalError("failed to list reports", err)
	}
	if reports == nil {
		reports = []history.ReportInfo{}
	}
	return c.JSON(http.StatusOK, reports)
}

// HandleGetReport returns one report as JSON, msgpack (Accept: application/msgpack) or
// an XLSX workbook (?format=xlsx)
func (h *ReportHandlerImpl) HandleGetReport(c echo.Context) error {
	if h.history == nil {
		return NewServiceUnavailableError("report history is not configured")
	}
	id := c.Param("id")
	report, err := h.history.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, soa.ErrNotFound) {
			return NewNotFoundError("report", id)
		}
		return NewInternalError("failed to load report", err)
	}

	switch {
	case strings.EqualFold(c.QueryParam("format"), "xlsx"):
		var buf bytes.Buffer
		if err := compliance.WriteReportXLSX(&buf, report); err != nil {
			return NewInternalError("failed to render workbook", err)
		}
		c.Response().Header().Set(echo.HeaderContentDisposition,
			fmt.Sprintf("attachment; filename=%q", "report-"+report.ID+".xlsx"))
		return c.Blob(http.StatusOK, mimeXLSX, buf.Bytes())
	case strings.Contains(c.Request().Header.Get(echo.HeaderAccept), mimeMsgpack):
		data, err := encodeMsgpack(report)
		if err != nil {
			return NewInternalError("failed to encode report", err)
		}
		return c.Blob(http.StatusOK, mimeMsgpack, data)
	default:
		return c.JSON(http.StatusOK, report)
	}
}

// HandleDeleteReport removes a report and its scenario rows
func (h *ReportHandlerImpl) HandleDeleteReport(c echo.Context) error {
	if !h.allowDelete {
		return NewForbiddenError("report deletion is disabled")
	}
	if h.history == nil {
		return NewServiceUnavailableError("report history is not configured")
	}
	id := c.Param("id")
	if err := h.history.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, soa.ErrNotFound) {
			return NewNotFoundError("report", id)
		}
		return NewInternalError("failed to delete report", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// encodeMsgpack encodes v with its JSON field names so both encodings share one schema.
func encodeMsgpack(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
