package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/soa-checker/backend/internal/soa"
	"github.com/soa-checker/backend/internal/storage"
	"github.com/stretchr/testify/assert"
)

func TestMapDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unknown device", fmt.Errorf("device x: %w", soa.ErrUnknownDevice), http.StatusNotFound, "UNKNOWN_DEVICE"},
		{"duplicate key", fmt.Errorf("device x: %w", soa.ErrDuplicateKey), http.StatusConflict, "CONFLICT"},
		{"malformed", fmt.Errorf("%w: soa_rules", soa.ErrMalformedDocument), http.StatusBadRequest, "MALFORMED_DOCUMENT"},
		{"invalid rule", soa.ErrInvalidRule, http.StatusBadRequest, "MALFORMED_DOCUMENT"},
		{"missing field", fmt.Errorf("tmaxfrac: %w", soa.ErrMissingRequiredField), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"scenario", soa.ErrScenario, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"not found", soa.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"storage not found", fmt.Errorf("%w: f1", storage.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapDomainError(tt.err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.err.Error(), got.Details)
		})
	}
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"api error", NewNotFoundError("report", "r1"), http.StatusNotFound, "NOT_FOUND"},
		{"wrapped api error", fmt.Errorf("handler: %w", NewValidationError("device")), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"echo error", echo.NewHTTPError(http.StatusMethodNotAllowed, "nope"), http.StatusMethodNotAllowed, "HTTP_ERROR"},
		{"domain error", soa.ErrUnknownDevice, http.StatusNotFound, "UNKNOWN_DEVICE"},
	}

	handler := ErrorHandler(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			handler(tt.err, c)
			assertAPIError(t, rec, tt.wantStatus, tt.wantCode)
		})
	}
}
