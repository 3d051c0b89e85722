// handlers_health.go - Health check handlers
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/soa-checker/backend/internal/rules"
)

type healthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Devices      int    `json:"devices"`
	RulesVersion string `json:"rulesVersion,omitempty"`
	Uptime       string `json:"uptime"`
}

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	engine  *rules.Engine
	started time.Time
}

func NewHealthHandler(version string, engine *rules.Engine) HealthHandler {
	return &HealthHandlerImpl{version: version, engine: engine, started: time.Now()}
}

// HandleHealth reports liveness and what the registry currently holds.
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	resp := healthResponse{
		Status:  "ok",
		Version: h.version,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
	}
	if h.engine != nil {
		info := h.engine.Info()
		resp.Devices = info.DeviceCount
		resp.RulesVersion = info.Version
	}
	return c.JSON(http.StatusOK, resp)
}
