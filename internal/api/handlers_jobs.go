// handlers_jobs.go - Background batch job handlers
package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/soa-checker/backend/internal/compliance"
	"github.com/soa-checker/backend/internal/jobs"
	"github.com/soa-checker/backend/internal/storage"
)

// JobHandlerImpl implements the JobHandler interface
type JobHandlerImpl struct {
	jobs         *jobs.Manager
	devices      compliance.DeviceSource
	store        storage.Store
	maxScenarios int
}

// NewJobHandler creates a new job handler
func NewJobHandler(mgr *jobs.Manager, devices compliance.DeviceSource, store storage.Store, maxScenarios int) JobHandler {
	return &JobHandlerImpl{
		jobs:         mgr,
		devices:      devices,
		store:        store,
		maxScenarios: maxScenarios,
	}
}

// HandleStartJob queues a batch. It accepts the same JSON body as /api/batch or a
// multipart scenario upload.
func (h *JobHandlerImpl) HandleStartJob(c echo.Context) error {
	var (
		device    string
		source    string
		scenarios []compliance.Scenario
	)

	ct := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(ct, echo.MIMEMultipartForm) {
		var err error
		device, scenarios, source, err = readScenarioUpload(c, h.store, h.maxScenarios)
		if err != nil {
			return err
		}
	} else {
		var req batchRequest
		if err := c.Bind(&req); err != nil {
			return NewBadRequestError("invalid JSON body", err)
		}
		if err := req.validate(h.maxScenarios); err != nil {
			return err
		}
		device, scenarios = req.Device, req.Scenarios
	}

	// An unknown device would only surface once the job ran.
	if _, err := h.devices.Device(device); err != nil {
		return NewUnknownDeviceError(device)
	}

	job := h.jobs.StartJob(device, source, scenarios)
	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"jobId":  job.ID,
		"status": job.Status,
	})
}

// HandleListJobs returns all known jobs, newest first
func (h *JobHandlerImpl) HandleListJobs(c echo.Context) error {
	return c.JSON(http.StatusOK, h.jobs.ListJobs())
}

// HandleGetJob returns the status of one job
func (h *JobHandlerImpl) HandleGetJob(c echo.Context) error {
	id := c.Param("id")
	job, ok := h.jobs.GetJob(id)
	if !ok {
		return NewNotFoundError("job", id)
	}
	return c.JSON(http.StatusOK, job)
}

// HandleGetJobReport returns the report of a completed job
func (h *JobHandlerImpl) HandleGetJobReport(c echo.Context) error {
	id := c.Param("id")
	job, ok := h.jobs.GetJob(id)
	if !ok {
		return NewNotFoundError("job", id)
	}
	if job.Status == jobs.StatusError {
		return NewJobFailedError(id, job.Error)
	}
	report, ok := h.jobs.Report(id)
	if !ok {
		return NewConflictError("job has no report yet: " + string(job.Status))
	}
	return c.JSON(http.StatusOK, report)
}
