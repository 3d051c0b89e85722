// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/soa-checker/backend/internal/compliance"
	"github.com/soa-checker/backend/internal/jobs"
	"github.com/soa-checker/backend/internal/rules"
	"github.com/soa-checker/backend/internal/soa"
	"github.com/soa-checker/backend/internal/storage"
	"go.uber.org/zap"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store        storage.Store
	Engine       *rules.Engine
	Checker      *compliance.Checker
	Batch        *compliance.Batch
	Jobs         *jobs.Manager
	History      ReportHistory // nil disables persistence
	Logger       *zap.Logger
	Version      string
	MaxScenarios int
	AllowDelete  bool
	AllowedTypes []string // accepted upload extensions, empty accepts all
}

// Handlers holds all handler instances
type Handlers struct {
	Health  HealthHandler
	Files   FileHandler
	Rules   RulesHandler
	Devices DeviceHandler
	Check   CheckHandler
	Batch   BatchHandler
	Jobs    JobHandler
	Reports ReportHandler
	Live    *WebSocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	mode := soa.LookupExact
	if deps.Checker != nil {
		mode = deps.Checker.Mode()
	}
	return &Handlers{
		Health:  NewHealthHandler(deps.Version, deps.Engine),
		Files:   NewFileHandler(deps.Store, deps.AllowDelete, deps.AllowedTypes),
		Rules:   NewRulesHandler(deps.Engine, deps.Store, deps.Logger),
		Devices: NewDeviceHandler(deps.Engine, mode),
		Check:   NewCheckHandler(deps.Checker),
		Batch:   NewBatchHandler(deps.Batch, deps.History, deps.Store, deps.MaxScenarios, deps.Logger),
		Jobs:    NewJobHandler(deps.Jobs, deps.Engine, deps.Store, deps.MaxScenarios),
		Reports: NewReportHandler(deps.History, deps.AllowDelete),
		Live:    NewWebSocketHandler(deps.Checker, deps.Jobs, deps.Logger),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check
	e.GET("/api/health", handlers.Health.HandleHealth)

	// Stored files
	fileGroup := e.Group("/api/files")
	fileGroup.POST("/upload", handlers.Files.HandleUploadFile)
	fileGroup.POST("/upload/binary", handlers.Files.HandleUploadBinary)
	fileGroup.GET("", handlers.Files.HandleListFiles)
	fileGroup.GET("/:id", handlers.Files.HandleGetFile)
	fileGroup.DELETE("/:id", handlers.Files.HandleDeleteFile)
	fileGroup.PUT("/:id", handlers.Files.HandleRenameFile)

	// Rule documents
	rulesGroup := e.Group("/api/rules")
	rulesGroup.GET("", handlers.Rules.HandleGetRules)
	rulesGroup.POST("", handlers.Rules.HandleLoadRules)
	rulesGroup.GET("/export", handlers.Rules.HandleExportRules)
	rulesGroup.GET("/files", handlers.Rules.HandleListRuleFiles)
	rulesGroup.POST("/files/:id/load", handlers.Rules.HandleLoadRuleFile)

	// Devices
	deviceGroup := e.Group("/api/devices")
	deviceGroup.GET("", handlers.Devices.HandleListDevices)
	deviceGroup.GET("/:key", handlers.Devices.HandleGetDevice)
	deviceGroup.GET("/:key/limits", handlers.Devices.HandleGetLimits)
	deviceGroup.GET("/:key/template", handlers.Devices.HandleGetTemplate)

	// Compliance checks
	e.POST("/api/check", handlers.Check.HandleCheck)
	e.POST("/api/batch", handlers.Batch.HandleBatch)
	e.POST("/api/batch/upload", handlers.Batch.HandleBatchUpload)

	// Background jobs
	jobGroup := e.Group("/api/jobs")
	jobGroup.POST("", handlers.Jobs.HandleStartJob)
	jobGroup.GET("", handlers.Jobs.HandleListJobs)
	jobGroup.GET("/:id", handlers.Jobs.HandleGetJob)
	jobGroup.GET("/:id/report", handlers.Jobs.HandleGetJobReport)

	// Report history
	reportGroup := e.Group("/api/reports")
	reportGroup.GET("", handlers.Reports.HandleListReports)
	reportGroup.GET("/:id", handlers.Reports.HandleGetReport)
	reportGroup.DELETE("/:id", handlers.Reports.HandleDeleteReport)

	// Interactive checks and job progress
	e.GET("/api/ws", handlers.Live.HandleWebSocket)
}

// MiddlewareOptions selects the optional middleware installed by SetupMiddleware
type MiddlewareOptions struct {
	Logger           *zap.Logger
	RequestLogging   bool
	EnableCORS       bool
	AllowOrigins     string // comma separated
	RequestTimeout   time.Duration
	EnableGzip       bool
	CompressionLevel int
	BodyLimit        string
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, opts MiddlewareOptions) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler(log)

	if opts.RequestLogging {
		e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
			LogMethod:  true,
			LogURI:     true,
			LogStatus:  true,
			LogLatency: true,
			LogError:   true,
			LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
				fields := []zap.Field{
					zap.String("method", v.Method),
					zap.String("uri", v.URI),
					zap.Int("status", v.Status),
					zap.Duration("latency", v.Latency),
				}
				if v.Error != nil {
					log.Warn("request", append(fields, zap.Error(v.Error))...)
					return nil
				}
				log.Info("request", fields...)
				return nil
			},
		}))
	}

	e.Use(middleware.Recover())

	if opts.RequestTimeout > 0 {
		e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
			Skipper: func(c echo.Context) bool {
				// the timeout writer cannot be hijacked for the websocket upgrade
				return c.Path() == "/api/ws"
			},
			Timeout: opts.RequestTimeout,
		}))
	}

	if opts.EnableCORS {
		origins := []string{"*"}
		if opts.AllowOrigins != "" {
			origins = splitList(opts.AllowOrigins)
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
		}))
	}

	if opts.EnableGzip {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: opts.CompressionLevel,
		}))
	}

	if opts.BodyLimit != "" {
		e.Use(middleware.BodyLimit(opts.BodyLimit))
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
