package modules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.uber.org/fx"

	"github.com/picfort/picfort/internal/config"
	"github.com/picfort/picfort/internal/handlers"
	"github.com/picfort/picfort/internal/server"
	"github.com/picfort/picfort/internal/upload"
	"github.com/picfort/picfort/internal/version"
)

var ServerModule = fx.Module(
	"server",
	fx.Provide(
		provideServerHandler(handlers.NewPingHandler),
		provideServerHandler(handlers.NewFilesHandler),
		provideServerHandler(provideUploadHandler),
		provideServerHandler(provideAssetHandler),
		provideServer,
	),
	fx.Invoke(startServer),
)

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideUploadHandler(svc *upload.Service, repo *upload.Repository, cfg *config.Config, log *slog.Logger) *handlers.UploadHandler {
	return handlers.NewUploadHandler(svc, repo, cfg, log)
}

func provideAssetHandler(svc *upload.Service, cfg *config.Config, log *slog.Logger) *handlers.AssetHandler {
	return handlers.NewAssetHandler(svc, cfg, log)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         *config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr,
		maxBodyMB(params.Config), params.ServerHandlers...)
}

// maxBodyMB sizes the global request cap from the largest policy limit, with
// headroom for multipart framing. Per-policy limits are enforced downstream.
func maxBodyMB(cfg *config.Config) int64 {
	limit := cfg.Policy.Default.MaxSizeMB
	if cfg.Policy.Guest.MaxSizeMB > limit {
		limit = cfg.Policy.Guest.MaxSizeMB
	}
	if limit <= 0 {
		return 0
	}
	return limit + 2
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	fmt.Printf("Starting Picfort %s\n", version.GetInfo())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
