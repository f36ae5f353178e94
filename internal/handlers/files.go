package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/picfort/picfort/internal/config"
)

// FilesHandler serves the files the pipeline stores on local disk: generated
// thumbnails always, and local-backend objects when that backend is
// configured. The recorded URLs point back at these routes.
type FilesHandler struct {
	thumbDir string
	localDir string
}

// NewFilesHandler creates the file-serving handler.
func NewFilesHandler(cfg *config.Config) *FilesHandler {
	return &FilesHandler{
		thumbDir: cfg.Upload.ThumbDir,
		localDir: cfg.Storage.Local.Dir,
	}
}

// Register mounts /thumb and, when local storage is configured, the root
// static route its object URLs resolve under. API routes take precedence
// over the root wildcard.
func (h *FilesHandler) Register(e *echo.Echo) {
	e.Static("/thumb", h.thumbDir)
	if h.localDir != "" {
		e.Static("/", h.localDir)
	}
}
