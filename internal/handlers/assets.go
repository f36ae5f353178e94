package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/picfort/picfort/internal/config"
	"github.com/picfort/picfort/internal/upload"
)

// AssetHandler serves asset lifecycle endpoints.
type AssetHandler struct {
	svc    Uploader
	cfg    *config.Config
	logger *slog.Logger
}

// NewAssetHandler creates the asset handler.
func NewAssetHandler(svc Uploader, cfg *config.Config, log *slog.Logger) *AssetHandler {
	return &AssetHandler{
		svc:    svc,
		cfg:    cfg,
		logger: log.With(slog.String("handler", "assets")),
	}
}

// Register mounts DELETE /assets/:id.
func (h *AssetHandler) Register(e *echo.Echo) {
	e.DELETE("/assets/:id", h.Delete)
}

// Delete removes an asset: the backend object, the local thumbnail, and the
// metadata record.
func (h *AssetHandler) Delete(c echo.Context) error {
	id := c.Param("id")
	err := h.svc.Delete(c.Request().Context(), h.cfg, id)
	if err == nil {
		return c.NoContent(http.StatusNoContent)
	}
	if errors.Is(err, upload.ErrAssetNotFound) {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "asset not found"})
	}
	if uerr, ok := upload.AsError(err); ok {
		h.logger.Error("delete failed",
			slog.String("asset_id", id), slog.Any("error", err))
		return c.JSON(uerr.HTTPStatus(), ErrorResponse{Error: uerr.Message})
	}
	h.logger.Error("delete failed", slog.String("asset_id", id), slog.Any("error", err))
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "delete failed"})
}
