package modules

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"

	"github.com/picfort/picfort/internal/config"
	"github.com/picfort/picfort/internal/imgproc"
	"github.com/picfort/picfort/internal/iplocate"
	"github.com/picfort/picfort/internal/moderation"
	"github.com/picfort/picfort/internal/storage"
	"github.com/picfort/picfort/internal/sweep"
	"github.com/picfort/picfort/internal/upload"
)

var PipelineModule = fx.Module(
	"pipeline",
	fx.Provide(
		provideRepository,
		imgproc.NewProcessor,
		provideInspector,
		provideLocator,
		provideUploadService,
	),
	fx.Invoke(startSweeper),
)

func provideRepository(pool *pgxpool.Pool) *upload.Repository {
	return upload.NewRepository(pool)
}

// provideInspector returns nil when moderation is off; the pipeline treats a
// nil inspector as "no safety check".
func provideInspector(cfg *config.Config, log *slog.Logger) (moderation.Inspector, error) {
	if !cfg.Moderation.Enabled {
		return nil, nil
	}
	inspector, err := moderation.New(cfg.Moderation, log)
	if err != nil {
		return nil, fmt.Errorf("moderation: %w", err)
	}
	return inspector, nil
}

func provideLocator(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) (iplocate.Locator, error) {
	if !cfg.IP.GeoEnabled || cfg.IP.XDBPath == "" {
		return iplocate.Noop{}, nil
	}
	xdb, err := iplocate.NewXDB(cfg.IP.XDBPath, log)
	if err != nil {
		return nil, fmt.Errorf("ip region database: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			xdb.Close()
			return nil
		},
	})
	return xdb, nil
}

func provideUploadService(repo *upload.Repository, registry *storage.Registry,
	processor *imgproc.Processor, inspector moderation.Inspector,
	locator iplocate.Locator, log *slog.Logger) *upload.Service {
	return upload.NewService(repo, registry, processor, inspector, locator, log)
}

func startSweeper(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) {
	if !cfg.Sweep.Enabled {
		return
	}
	sweeper := sweep.New(cfg.Sweep, cfg.Upload.SpoolDir, log)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return sweeper.Start(cfg.Sweep.Schedule)
		},
		OnStop: func(context.Context) error {
			sweeper.Stop()
			return nil
		},
	})
}
