// handlers_check.go - Single compliance check handler
package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/soa-checker/backend/internal/compliance"
)

// CheckHandlerImpl implements the CheckHandler interface
type CheckHandlerImpl struct {
	checker *compliance.Checker
}

// NewCheckHandler creates a new check handler
func NewCheckHandler(checker *compliance.Checker) CheckHandler {
	return &CheckHandlerImpl{checker: checker}
}

// HandleCheck evaluates one set of test values against a device
func (h *CheckHandlerImpl) HandleCheck(c echo.Context) error {
	var req checkRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	values, err := compliance.CoerceScenario(req.Values)
	if err != nil {
		return mapDomainError(err)
	}

	result, err := h.checker.Check(req.Device, values)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(http.StatusOK, result)
}

type checkRequest struct {
	Device string              `json:"device"`
	Values compliance.Scenario `json:"values"`
}

func (r *checkRequest) validate() error {
	if strings.TrimSpace(r.Device) == "" {
		return NewValidationError("device")
	}
	if len(r.Values) == 0 {
		return NewValidationError("values")
	}
	return nil
}
