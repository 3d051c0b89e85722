// handlers_devices.go - Device rule set handlers
package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/soa-checker/backend/internal/compliance"
	"github.com/soa-checker/backend/internal/rules"
	"github.com/soa-checker/backend/internal/soa"
)

// DeviceHandlerImpl implements the DeviceHandler interface
type DeviceHandlerImpl struct {
	engine      *rules.Engine
	defaultMode soa.LookupMode
}

// NewDeviceHandler creates a new device handler. defaultMode is used by the limits
// endpoint when the request does not pick one.
func NewDeviceHandler(engine *rules.Engine, defaultMode soa.LookupMode) DeviceHandler {
	if !defaultMode.Valid() {
		defaultMode = soa.LookupExact
	}
	return &DeviceHandlerImpl{
		engine:      engine,
		defaultMode: defaultMode,
	}
}

type deviceSummary struct {
	Key            string    `json:"key"`
	DeviceType     string    `json:"deviceType"`
	Subcategory    string    `json:"subcategory,omitempty"`
	TmaxfracLevels []float64 `json:"tmaxfracLevels"`
	ParameterCount int       `json:"parameterCount"`
}

type parameterView struct {
	Name        string               `json:"name"`
	Type        soa.Kind             `json:"type"`
	Unit        string               `json:"unit"`
	Severity    soa.Severity         `json:"severity"`
	Polarity    soa.Polarity         `json:"polarity"`
	Description string               `json:"description,omitempty"`
	Values      map[string]soa.Limit `json:"values"`
}

type deviceView struct {
	deviceSummary
	Metadata   map[string]string `json:"metadata,omitempty"`
	Parameters []parameterView   `json:"parameters"`
}

type limitsResponse struct {
	Device   string                      `json:"device"`
	Tmaxfrac float64                     `json:"tmaxfrac"`
	Mode     soa.LookupMode              `json:"mode"`
	Limits   map[string]soa.LimitSummary `json:"limits"`
}

// HandleListDevices returns every loaded device, sorted by key
func (h *DeviceHandlerImpl) HandleListDevices(c echo.Context) error {
	keys := h.engine.Keys()
	out := make([]deviceSummary, 0, len(keys))
	for _, key := range keys {
		d, err := h.engine.Device(key)
		if err != nil {
			// removed by a concurrent reload
			continue
		}
		out = append(out, summarize(key, d))
	}
	return c.JSON(http.StatusOK, out)
}

// HandleGetDevice returns one device with all of its parameters
func (h *DeviceHandlerImpl) HandleGetDevice(c echo.Context) error {
	key := c.Param("key")
	d, err := h.engine.Device(key)
	if err != nil {
		return NewUnknownDeviceError(key)
	}

	params := d.Parameters()
	view := deviceView{
		deviceSummary: summarize(key, d),
		Metadata:      d.Metadata(),
		Parameters:    make([]parameterView, 0, len(params)),
	}
	for _, p := range params {
		values := make(map[string]soa.Limit, len(p.Levels()))
		for level, limit := range p.Values() {
			values[soa.FormatNumber(level)] = limit
		}
		view.Parameters = append(view.Parameters, parameterView{
			Name:        p.Name(),
			Type:        p.Kind(),
			Unit:        p.Unit(),
			Severity:    p.Severity(),
			Polarity:    p.Polarity(),
			Description: p.Description(),
			Values:      values,
		})
	}
	return c.JSON(http.StatusOK, view)
}

// HandleGetLimits resolves every parameter of a device at ?tmaxfrac= using ?mode=
func (h *DeviceHandlerImpl) HandleGetLimits(c echo.Context) error {
	key := c.Param("key")
	raw := c.QueryParam("tmaxfrac")
	if raw == "" {
		return NewValidationError("tmaxfrac")
	}
	level, err := soa.ParseLevel(raw)
	if err != nil {
		return NewBadRequestError("invalid tmaxfrac", err)
	}

	mode := h.defaultMode
	if m := c.QueryParam("mode"); m != "" {
		mode, err = soa.ParseLookupMode(m)
		if err != nil {
			return NewBadRequestError("invalid lookup mode", err)
		}
	}

	d, err := h.engine.Device(key)
	if err != nil {
		return NewUnknownDeviceError(key)
	}

	return c.JSON(http.StatusOK, limitsResponse{
		Device:   key,
		Tmaxfrac: level,
		Mode:     mode,
		Limits:   d.LimitsAt(level, mode),
	})
}

// HandleGetTemplate serves an XLSX scenario sheet for the device, ready for /api/batch/upload
func (h *DeviceHandlerImpl) HandleGetTemplate(c echo.Context) error {
	key := c.Param("key")
	d, err := h.engine.Device(key)
	if err != nil {
		return NewUnknownDeviceError(key)
	}

	var buf bytes.Buffer
	if err := compliance.WriteScenarioTemplate(&buf, d); err != nil {
		return NewInternalError("failed to render workbook", err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", key+"_scenarios.xlsx"))
	return c.Blob(http.StatusOK, mimeXLSX, buf.Bytes())
}

func summarize(key string, d *soa.Device) deviceSummary {
	return deviceSummary{
		Key:            key,
		DeviceType:     d.DeviceType(),
		Subcategory:    d.Subcategory(),
		TmaxfracLevels: d.Levels(),
		ParameterCount: d.Len(),
	}
}
