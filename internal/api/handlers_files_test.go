// handlers_files_test.go - Tests for stored file handlers
package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/soa-checker/backend/internal/models"
	"github.com/soa-checker/backend/internal/testutil"
)

func TestFileHandler_HandleUploadFile(t *testing.T) {
	tests := []struct {
		name       string
		request    uploadFileRequest
		wantStatus int
		wantErr    bool
		errCode    string
		wantKind   models.FileKind
	}{
		{
			name: "rules upload defaults kind",
			request: uploadFileRequest{
				Name: "rules.json",
				Data: base64.StdEncoding.EncodeToString([]byte(`{"soa_rules":{}}`)),
			},
			wantStatus: http.StatusCreated,
			wantKind:   models.FileKindRules,
		},
		{
			name: "scenario upload",
			request: uploadFileRequest{
				Name: "cases.csv",
				Kind: models.FileKindScenarios,
				Data: base64.StdEncoding.EncodeToString([]byte("tmaxfrac\n0.1\n")),
			},
			wantStatus: http.StatusCreated,
			wantKind:   models.FileKindScenarios,
		},
		{
			name: "empty name",
			request: uploadFileRequest{
				Data: base64.StdEncoding.EncodeToString([]byte("content")),
			},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name: "unknown kind",
			request: uploadFileRequest{
				Name: "x.bin",
				Kind: "logs",
				Data: base64.StdEncoding.EncodeToString([]byte("content")),
			},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name:       "empty data",
			request:    uploadFileRequest{Name: "rules.json"},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name: "disallowed type",
			request: uploadFileRequest{
				Name: "payload.exe",
				Data: base64.StdEncoding.EncodeToString([]byte("MZ")),
			},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "BAD_REQUEST",
		},
		{
			name: "invalid base64",
			request: uploadFileRequest{
				Name: "rules.json",
				Data: "not-valid-base64!!!",
			},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "BAD_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewMockStorage()
			handler := NewFileHandler(store, true, []string{".json", "csv"})

			e := echo.New()
			body, _ := json.Marshal(tt.request)
			req := httptest.NewRequest(http.MethodPost, "/api/files/upload", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := handler.HandleUploadFile(c)

			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got nil")
					return
				}
				apiErr, ok := err.(*APIError)
				if !ok {
					t.Errorf("expected APIError, got %T", err)
					return
				}
				if apiErr.Status != tt.wantStatus {
					t.Errorf("expected status %d, got %d", tt.wantStatus, apiErr.Status)
				}
				if apiErr.Code != tt.errCode {
					t.Errorf("expected error code %s, got %s", tt.errCode, apiErr.Code)
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}

			var response models.FileInfo
			if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if response.ID == "" {
				t.Error("expected non-empty file ID")
			}
			if response.Kind != tt.wantKind {
				t.Errorf("expected kind %s, got %s", tt.wantKind, response.Kind)
			}
			if _, err := store.GetFileData(response.ID); err != nil {
				t.Errorf("file content not stored: %v", err)
			}
		})
	}
}

func TestFileHandler_HandleUploadBinary(t *testing.T) {
	store := testutil.NewMockStorage()
	handler := NewFileHandler(store, true, nil)

	body, ct := multipartScenarios(t, "", "cases.csv", "tmaxfrac,vhigh_ds_on\n0.1,1.5\n")
	req := httptest.NewRequest(http.MethodPost, "/api/files/upload/binary?kind=scenarios", body)
	req.Header.Set(echo.HeaderContentType, ct)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)

	if err := handler.HandleUploadBinary(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", rec.Code)
	}

	var info models.FileInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if info.Kind != models.FileKindScenarios {
		t.Errorf("expected kind scenarios, got %s", info.Kind)
	}
	if info.Name != "cases.csv" {
		t.Errorf("expected name cases.csv, got %s", info.Name)
	}
}

func TestFileHandler_GetRenameDelete(t *testing.T) {
	env := newTestEnv(t)
	env.store.AddFile("f1", "old.json", models.FileKindRules, []byte("{}"))

	rec := env.do(http.MethodGet, "/api/files/f1", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	rec = env.do(http.MethodPut, "/api/files/f1", strings.NewReader(`{"name":"new.json"}`), echo.MIMEApplicationJSON)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	info, _ := env.store.Get("f1")
	if info.Name != "new.json" {
		t.Errorf("expected renamed file, got %s", info.Name)
	}

	rec = env.do(http.MethodPut, "/api/files/f1", strings.NewReader(`{"name":"  "}`), echo.MIMEApplicationJSON)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for blank name, got %d", rec.Code)
	}

	rec = env.do(http.MethodDelete, "/api/files/f1", nil, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", rec.Code)
	}

	rec = env.do(http.MethodGet, "/api/files/f1", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404 after delete, got %d", rec.Code)
	}
	rec = env.do(http.MethodDelete, "/api/files/f1", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for second delete, got %d", rec.Code)
	}
}

func TestFileHandler_DeleteDisabled(t *testing.T) {
	env := newTestEnv(t, func(d *Dependencies) { d.AllowDelete = false })
	env.store.AddFile("f1", "rules.json", models.FileKindRules, []byte("{}"))

	rec := env.do(http.MethodDelete, "/api/files/f1", nil, "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", rec.Code)
	}
	if _, err := env.store.Get("f1"); err != nil {
		t.Errorf("file should still exist: %v", err)
	}
}

func TestFileHandler_ListByKind(t *testing.T) {
	env := newTestEnv(t)
	env.store.AddFile("f1", "rules.json", models.FileKindRules, []byte("{}"))
	env.store.AddFile("f2", "cases.csv", models.FileKindScenarios, []byte("x"))

	tests := []struct {
		query     string
		wantCount int
		wantCode  int
	}{
		{"", 2, http.StatusOK},
		{"?kind=scenarios", 1, http.StatusOK},
		{"?kind=rules&limit=1", 1, http.StatusOK},
		{"?kind=logs", 0, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := env.do(http.MethodGet, "/api/files"+tt.query, nil, "")
			if rec.Code != tt.wantCode {
				t.Fatalf("expected status %d, got %d", tt.wantCode, rec.Code)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var files []models.FileInfo
			if err := json.Unmarshal(rec.Body.Bytes(), &files); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if len(files) != tt.wantCount {
				t.Errorf("expected %d files, got %d", tt.wantCount, len(files))
			}
		})
	}
}
