// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/soa-checker/backend/internal/compliance"
	"github.com/soa-checker/backend/internal/history"
)

// HealthHandler reports server liveness
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// RulesHandler manages the loaded rule document
type RulesHandler interface {
	HandleGetRules(c echo.Context) error
	HandleLoadRules(c echo.Context) error
	HandleExportRules(c echo.Context) error
	HandleListRuleFiles(c echo.Context) error
	HandleLoadRuleFile(c echo.Context) error
}

// FileHandler manages stored rule and scenario files
type FileHandler interface {
	HandleUploadFile(c echo.Context) error
	HandleUploadBinary(c echo.Context) error
	HandleListFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
	HandleRenameFile(c echo.Context) error
}

// DeviceHandler exposes the device rule sets
type DeviceHandler interface {
	HandleListDevices(c echo.Context) error
	HandleGetDevice(c echo.Context) error
	HandleGetLimits(c echo.Context) error
	HandleGetTemplate(c echo.Context) error
}

// CheckHandler evaluates a single set of test values
type CheckHandler interface {
	HandleCheck(c echo.Context) error
}

// BatchHandler evaluates scenario batches synchronously
type BatchHandler interface {
	HandleBatch(c echo.Context) error
	HandleBatchUpload(c echo.Context) error
}

// JobHandler manages background batch jobs
type JobHandler interface {
	HandleStartJob(c echo.Context) error
	HandleListJobs(c echo.Context) error
	HandleGetJob(c echo.Context) error
	HandleGetJobReport(c echo.Context) error
}

// ReportHandler serves persisted batch reports
type ReportHandler interface {
	HandleListReports(c echo.Context) error
	HandleGetReport(c echo.Context) error
	HandleDeleteReport(c echo.Context) error
}

// ReportHistory is the persistence the report and batch handlers need.
// *history.Store implements it.
type ReportHistory interface {
	Save(ctx context.Context, report *compliance.Report) error
	Get(ctx context.Context, id string) (*compliance.Report, error)
	List(ctx context.Context, device string, limit int) ([]history.ReportInfo, error)
	Delete(ctx context.Context, id string) error
}
