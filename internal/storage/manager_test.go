// manager_test.go - Tests for storage layer
package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/soa-checker/backend/internal/models"
)

func createTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func TestNewLocalStore(t *testing.T) {
	t.Run("creates upload directory", func(t *testing.T) {
		uploadDir := filepath.Join(t.TempDir(), "uploads")

		if _, err := NewLocalStore(uploadDir); err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		if _, err := os.Stat(uploadDir); os.IsNotExist(err) {
			t.Error("Expected upload directory to be created")
		}
	})

	t.Run("rejects corrupt index", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, indexFile), []byte("{not json"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := NewLocalStore(dir); err == nil {
			t.Error("Expected error for corrupt index")
		}
	})
}

func TestLocalStore_Save(t *testing.T) {
	t.Run("saves file from reader", func(t *testing.T) {
		store := createTestStore(t)
		content := `{"soa_rules":{"devices":{}}}`

		info, err := store.Save("rules.json", models.FileKindRules, strings.NewReader(content))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		if info.ID == "" {
			t.Error("Expected ID to be set")
		}
		if info.Name != "rules.json" {
			t.Errorf("Expected name 'rules.json', got %s", info.Name)
		}
		if info.Kind != models.FileKindRules {
			t.Errorf("Expected kind rules, got %s", info.Kind)
		}
		if info.Size != int64(len(content)) {
			t.Errorf("Expected size %d, got %d", len(content), info.Size)
		}
		if info.Status != models.FileStatusUploaded {
			t.Errorf("Expected status 'uploaded', got %v", info.Status)
		}

		data, err := os.ReadFile(filepath.Join(store.uploadDir, info.ID))
		if err != nil {
			t.Fatalf("Failed to read saved file: %v", err)
		}
		if string(data) != content {
			t.Errorf("Expected content '%s', got '%s'", content, string(data))
		}
	})

	t.Run("saves empty file", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.Save("empty.csv", models.FileKindScenarios, strings.NewReader(""))
		if err != nil {
			t.Fatalf("Failed to save empty file: %v", err)
		}
		if info.Size != 0 {
			t.Errorf("Expected size 0, got %d", info.Size)
		}
	})
}

func TestLocalStore_GetAndOpen(t *testing.T) {
	store := createTestStore(t)

	info, err := store.Save("cases.csv", models.FileKindScenarios, strings.NewReader("tmaxfrac\n0.1\n"))
	if err != nil {
		t.Fatalf("Failed to save file: %v", err)
	}

	retrieved, err := store.Get(info.ID)
	if err != nil {
		t.Fatalf("Failed to get file: %v", err)
	}
	if retrieved.Name != "cases.csv" {
		t.Errorf("Expected name cases.csv, got %s", retrieved.Name)
	}

	rc, err := store.Open(info.ID)
	if err != nil {
		t.Fatalf("Failed to open file: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "tmaxfrac\n0.1\n" {
		t.Errorf("Unexpected content %q", data)
	}

	if _, err := store.Get("non-existent-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := store.Open("non-existent-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestLocalStore_List(t *testing.T) {
	store := createTestStore(t)

	for i := 0; i < 3; i++ {
		if _, err := store.Save("rules.json", models.FileKindRules, strings.NewReader("{}")); err != nil {
			t.Fatal(err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	last, err := store.Save("cases.csv", models.FileKindScenarios, strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}

	all, _ := store.List("", 0)
	if len(all) != 4 {
		t.Fatalf("Expected 4 files, got %d", len(all))
	}
	if all[0].ID != last.ID {
		t.Errorf("Expected newest file first, got %s", all[0].Name)
	}

	rulesOnly, _ := store.List(models.FileKindRules, 0)
	if len(rulesOnly) != 3 {
		t.Errorf("Expected 3 rule files, got %d", len(rulesOnly))
	}

	limited, _ := store.List("", 2)
	if len(limited) != 2 {
		t.Errorf("Expected 2 files with limit, got %d", len(limited))
	}
}

func TestLocalStore_DeleteRenameStatus(t *testing.T) {
	store := createTestStore(t)

	info, err := store.Save("rules.yaml", models.FileKindRules, strings.NewReader("soa_rules: {}"))
	if err != nil {
		t.Fatal(err)
	}

	renamed, err := store.Rename(info.ID, "golden.yaml")
	if err != nil {
		t.Fatalf("Failed to rename: %v", err)
	}
	if renamed.Name != "golden.yaml" {
		t.Errorf("Expected renamed file, got %s", renamed.Name)
	}

	if err := store.SetStatus(info.ID, models.FileStatusError, "malformed document"); err != nil {
		t.Fatalf("Failed to set status: %v", err)
	}
	got, _ := store.Get(info.ID)
	if got.Status != models.FileStatusError || got.Error != "malformed document" {
		t.Errorf("Unexpected status %s/%s", got.Status, got.Error)
	}

	if err := store.Delete(info.ID); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.uploadDir, info.ID)); !os.IsNotExist(err) {
		t.Error("Expected physical file to be removed")
	}
	if err := store.Delete(info.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := store.Rename("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on rename, got %v", err)
	}
}

func TestLocalStore_IndexSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	kept, err := store.Save("rules.json", models.FileKindRules, strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	lost, err := store.Save("gone.json", models.FileKindRules, strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SetStatus(kept.ID, models.FileStatusLoaded, ""); err != nil {
		t.Fatal(err)
	}
	// content removed behind the store's back
	if err := os.Remove(filepath.Join(dir, lost.ID)); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}

	got, err := reopened.Get(kept.ID)
	if err != nil {
		t.Fatalf("Expected file to survive restart: %v", err)
	}
	if got.Status != models.FileStatusLoaded {
		t.Errorf("Expected status loaded, got %s", got.Status)
	}
	if _, err := reopened.Get(lost.ID); err == nil {
		t.Error("Expected entry without content to be dropped")
	}
}

func TestLocalStore_FailedIndexWriteKeepsMetadata(t *testing.T) {
	store := createTestStore(t)

	info, err := store.Save("rules.json", models.FileKindRules, strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}

	// a non-empty directory where the index belongs makes every index write fail
	indexPath := filepath.Join(store.uploadDir, indexFile)
	if err := os.Remove(indexPath); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(indexPath, "blocked"), 0755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		op   func() error
	}{
		{"rename", func() error { _, err := store.Rename(info.ID, "other.json"); return err }},
		{"set status", func() error { return store.SetStatus(info.ID, models.FileStatusError, "boom") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.op(); err == nil {
				t.Fatal("Expected index write to fail")
			}
			got, err := store.Get(info.ID)
			if err != nil {
				t.Fatal(err)
			}
			if got.Name != info.Name || got.Status != info.Status || got.Error != info.Error {
				t.Errorf("Expected metadata to be unchanged, got %+v", got)
			}
		})
	}
}
