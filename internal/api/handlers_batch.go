// handlers_batch.go - Synchronous batch handlers
package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/soa-checker/backend/internal/compliance"
	"github.com/soa-checker/backend/internal/models"
	"github.com/soa-checker/backend/internal/storage"
	"go.uber.org/zap"
)

// BatchHandlerImpl implements the BatchHandler interface
type BatchHandlerImpl struct {
	batch        *compliance.Batch
	history      ReportHistory
	store        storage.Store
	maxScenarios int
	log          *zap.Logger
}

// NewBatchHandler creates a new batch handler. history and store may be nil.
// maxScenarios <= 0 disables the size check.
func NewBatchHandler(batch *compliance.Batch, history ReportHistory, store storage.Store, maxScenarios int, log *zap.Logger) BatchHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &BatchHandlerImpl{
		batch:        batch,
		history:      history,
		store:        store,
		maxScenarios: maxScenarios,
		log:          log,
	}
}

type batchResponse struct {
	*compliance.Report
	Persisted bool `json:"persisted"`
}

// HandleBatch runs {device, scenarios} and returns the report
func (h *BatchHandlerImpl) HandleBatch(c echo.Context) error {
	var req batchRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(h.maxScenarios); err != nil {
		return err
	}
	return h.run(c, req.Device, req.Scenarios)
}

// HandleBatchUpload runs a scenario file sent as multipart/form-data.
// The form carries the device key in "device" and the file in "file".
func (h *BatchHandlerImpl) HandleBatchUpload(c echo.Context) error {
	device, scenarios, _, err := readScenarioUpload(c, h.store, h.maxScenarios)
	if err != nil {
		return err
	}
	return h.run(c, device, scenarios)
}

func (h *BatchHandlerImpl) run(c echo.Context, device string, scenarios []compliance.Scenario) error {
	persist := true
	if c.QueryParam("persist") != "" {
		v, err := queryBool(c, "persist")
		if err != nil {
			return err
		}
		persist = v
	}

	report, err := h.batch.Run(device, scenarios)
	if err != nil {
		return mapDomainError(err)
	}

	resp := batchResponse{Report: report}
	if persist && h.history != nil {
		if err := h.history.Save(c.Request().Context(), report); err != nil {
			h.log.Error("failed to persist report", zap.String("report_id", report.ID), zap.Error(err))
		} else {
			resp.Persisted = true
		}
	}
	return c.JSON(http.StatusOK, resp)
}

type batchRequest struct {
	Device    string                `json:"device"`
	Scenarios []compliance.Scenario `json:"scenarios"`
}

func (r *batchRequest) validate(maxScenarios int) error {
	if strings.TrimSpace(r.Device) == "" {
		return NewValidationError("device")
	}
	if r.Scenarios == nil {
		return NewValidationError("scenarios")
	}
	return checkScenarioCount(len(r.Scenarios), maxScenarios)
}

func checkScenarioCount(n, maxScenarios int) error {
	if maxScenarios > 0 && n > maxScenarios {
		return NewBadRequestError(fmt.Sprintf("too many scenarios: %d (max %d)", n, maxScenarios), nil)
	}
	return nil
}

// readScenarioUpload parses the multipart scenario file and keeps a copy in store when one
// is configured. It returns the device key, the scenarios and the stored file name.
func readScenarioUpload(c echo.Context, store storage.Store, maxScenarios int) (string, []compliance.Scenario, string, error) {
	device := strings.TrimSpace(c.FormValue("device"))
	if device == "" {
		return "", nil, "", NewValidationError("device")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return "", nil, "", NewBadRequestError("no file provided", err)
	}
	format, err := compliance.FormatFromName(file.Filename)
	if err != nil {
		return "", nil, "", NewBadRequestError("unsupported scenario file", err)
	}

	src, err := file.Open()
	if err != nil {
		return "", nil, "", NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return "", nil, "", NewBadRequestError("failed to read uploaded file", err)
	}

	scenarios, err := compliance.ParseScenarios(bytes.NewReader(data), format)
	if err != nil {
		return "", nil, "", NewBadRequestError("failed to parse scenario file", err)
	}
	if err := checkScenarioCount(len(scenarios), maxScenarios); err != nil {
		return "", nil, "", err
	}

	if store != nil {
		if _, err := store.Save(file.Filename, models.FileKindScenarios, bytes.NewReader(data)); err != nil {
			return "", nil, "", NewInternalError("failed to save scenario file", err)
		}
	}
	return device, scenarios, file.Filename, nil
}
