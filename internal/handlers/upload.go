package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/picfort/picfort/internal/config"
	"github.com/picfort/picfort/internal/identity"
	"github.com/picfort/picfort/internal/upload"
)

// Uploader is the pipeline surface the HTTP layer drives.
type Uploader interface {
	Upload(ctx context.Context, cfg *config.Config, req upload.Request) (*upload.Asset, error)
	Delete(ctx context.Context, cfg *config.Config, id string) error
}

// Blocklist records abusive addresses.
type Blocklist interface {
	BlockIP(ctx context.Context, ip string) error
}

// UploadHandler serves the upload endpoints.
type UploadHandler struct {
	svc       Uploader
	blocklist Blocklist
	cfg       *config.Config
	logger    *slog.Logger
}

// NewUploadHandler creates the upload handler.
func NewUploadHandler(svc Uploader, blocklist Blocklist, cfg *config.Config, log *slog.Logger) *UploadHandler {
	return &UploadHandler{
		svc:       svc,
		blocklist: blocklist,
		cfg:       cfg,
		logger:    log.With(slog.String("handler", "upload")),
	}
}

// Register mounts POST /upload and POST /upload/guest.
func (h *UploadHandler) Register(e *echo.Echo) {
	e.POST("/upload", h.Upload)
	e.POST("/upload/guest", h.UploadGuest)
}

// Upload handles an authenticated upload. The caller's subject is taken from
// the Authorization bearer token.
func (h *UploadHandler) Upload(c echo.Context) error {
	uid := identity.FromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization), h.cfg.Auth.JWTSecret)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "authentication required"})
	}
	return h.handle(c, uid)
}

// UploadGuest handles an anonymous upload under the guest policy.
func (h *UploadHandler) UploadGuest(c echo.Context) error {
	return h.handle(c, "")
}

func (h *UploadHandler) handle(c echo.Context, uid string) error {
	file, err := c.FormFile("image")
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing image field"})
	}
	src, err := file.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unreadable image field"})
	}
	defer src.Close()

	asset, err := h.svc.Upload(c.Request().Context(), h.cfg, upload.Request{
		Body:         src,
		OriginalName: file.Filename,
		ClientMD5:    c.FormValue("md5"),
		Identity:     uid,
		IP:           c.RealIP(),
	})
	if err != nil {
		return h.uploadError(c, err)
	}
	return c.JSON(http.StatusCreated, asset)
}

// uploadError maps pipeline failures onto HTTP statuses. A moderation block
// additionally feeds the address blocklist when auto-blacklisting is on.
func (h *UploadHandler) uploadError(c echo.Context, err error) error {
	uerr, ok := upload.AsError(err)
	if !ok {
		h.logger.Error("upload failed", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "upload failed"})
	}
	if uerr.Kind == upload.KindModerationBlocked &&
		h.cfg.Moderation.AutoBlack && h.cfg.IP.Enabled && h.blocklist != nil {
		ip := c.RealIP()
		if berr := h.blocklist.BlockIP(c.Request().Context(), ip); berr != nil {
			h.logger.Warn("auto-blacklist failed",
				slog.String("ip", ip), slog.Any("error", berr))
		}
	}
	if uerr.Kind == upload.KindTransientBackend {
		h.logger.Error("backend failure",
			slog.String("backend", uerr.Backend.String()), slog.Any("error", err))
	}
	return c.JSON(uerr.HTTPStatus(), ErrorResponse{Error: uerr.Message})
}
