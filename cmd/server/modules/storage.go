package modules

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/fx"

	"github.com/picfort/picfort/internal/config"
	"github.com/picfort/picfort/internal/storage"
	"github.com/picfort/picfort/internal/storage/adapters/alioss"
	"github.com/picfort/picfort/internal/storage/adapters/cloudflarer2"
	"github.com/picfort/picfort/internal/storage/adapters/ftpfs"
	"github.com/picfort/picfort/internal/storage/adapters/ghrepo"
	"github.com/picfort/picfort/internal/storage/adapters/localfs"
	"github.com/picfort/picfort/internal/storage/adapters/qiniukodo"
	"github.com/picfort/picfort/internal/storage/adapters/s3compat"
	"github.com/picfort/picfort/internal/storage/adapters/sftpfs"
	"github.com/picfort/picfort/internal/storage/adapters/tencentcos"
	"github.com/picfort/picfort/internal/storage/adapters/tgchannel"
	"github.com/picfort/picfort/internal/storage/adapters/upyunuss"
	"github.com/picfort/picfort/internal/storage/adapters/webdavfs"
)

var StorageModule = fx.Module(
	"storage",
	fx.Provide(provideStorageRegistry),
)

// provideStorageRegistry registers every backend the config carries
// credentials for. Backends left unconfigured are simply absent from the
// registry; a policy pointing at one surfaces as a configuration error at
// upload time.
func provideStorageRegistry(cfg *config.Config, log *slog.Logger) (*storage.Registry, error) {
	registry := storage.NewRegistry()
	st := cfg.Storage

	if st.Local.Dir != "" {
		if err := registry.Register(localfs.NewAdapter(st.Local, cfg.Site.URL, log)); err != nil {
			return nil, err
		}
	}
	if st.OSS.Bucket != "" {
		adapter, err := alioss.NewAdapter(st.OSS, log)
		if err != nil {
			return nil, fmt.Errorf("oss adapter: %w", err)
		}
		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
	}
	if st.COS.Bucket != "" {
		adapter, err := tencentcos.NewAdapter(st.COS, log)
		if err != nil {
			return nil, fmt.Errorf("cos adapter: %w", err)
		}
		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
	}
	if st.S3.Bucket != "" {
		adapter, err := s3compat.NewAdapter(st.S3, log)
		if err != nil {
			return nil, fmt.Errorf("s3 adapter: %w", err)
		}
		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
	}
	if st.R2.Bucket != "" {
		adapter, err := cloudflarer2.NewAdapter(context.Background(), st.R2, log)
		if err != nil {
			return nil, fmt.Errorf("r2 adapter: %w", err)
		}
		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
	}
	if st.Qiniu.Bucket != "" {
		if err := registry.Register(qiniukodo.NewAdapter(st.Qiniu, log)); err != nil {
			return nil, err
		}
	}
	if st.Upyun.Service != "" {
		if err := registry.Register(upyunuss.NewAdapter(st.Upyun, log)); err != nil {
			return nil, err
		}
	}
	if st.SFTP.Host != "" {
		if err := registry.Register(sftpfs.NewAdapter(st.SFTP, log)); err != nil {
			return nil, err
		}
	}
	if st.FTP.Host != "" {
		if err := registry.Register(ftpfs.NewAdapter(st.FTP, log)); err != nil {
			return nil, err
		}
	}
	if st.WebDAV.URL != "" {
		if err := registry.Register(webdavfs.NewAdapter(st.WebDAV, log)); err != nil {
			return nil, err
		}
	}
	if st.Telegram.BotToken != "" {
		adapter, err := tgchannel.NewAdapter(st.Telegram, log)
		if err != nil {
			return nil, fmt.Errorf("telegram adapter: %w", err)
		}
		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
	}
	if st.GitHub.Repo != "" {
		if err := registry.Register(ghrepo.NewAdapter(st.GitHub, log)); err != nil {
			return nil, err
		}
	}

	log.Info("storage backends ready", slog.Any("types", registry.Types()))
	return registry, nil
}
