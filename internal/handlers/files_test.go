package handlers

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/picfort/picfort/internal/config"
)

func newFilesEnv(t *testing.T) (*echo.Echo, *config.Config) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Upload.ThumbDir = t.TempDir()
	cfg.Storage.Local.Dir = t.TempDir()
	e := echo.New()
	NewFilesHandler(cfg).Register(e)
	return e, cfg
}

func TestServeThumbnail(t *testing.T) {
	t.Parallel()
	e, cfg := newFilesEnv(t)
	path := filepath.Join(cfg.Upload.ThumbDir, "abc.png")
	if err := os.WriteFile(path, []byte("thumb-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/thumb/abc.png", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "thumb-bytes" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestServeLocalObject(t *testing.T) {
	t.Parallel()
	e, cfg := newFilesEnv(t)
	dir := filepath.Join(cfg.Storage.Local.Dir, "2025", "03")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "x.png"), []byte("object-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/2025/03/x.png", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "object-bytes" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestServeMissingFile(t *testing.T) {
	t.Parallel()
	e, _ := newFilesEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/thumb/nope.png", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestServeRootDisabledWithoutLocalBackend(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Upload.ThumbDir = t.TempDir()
	e := echo.New()
	NewFilesHandler(cfg).Register(e)

	req := httptest.NewRequest(http.MethodGet, "/2025/x.png", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
