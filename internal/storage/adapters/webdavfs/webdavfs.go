// Package webdavfs stores uploads on a WebDAV share.
package webdavfs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/studio-b12/gowebdav"

	"github.com/picfort/picfort/internal/config"
	"github.com/picfort/picfort/internal/storage"
	"github.com/picfort/picfort/internal/storage/adapters/adapterutil"
)

type Adapter struct {
	cfg    config.WebDAVStorageConfig
	client *gowebdav.Client
	logger *slog.Logger
}

func NewAdapter(cfg config.WebDAVStorageConfig, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		cfg:    cfg,
		client: gowebdav.NewClient(cfg.URL, cfg.Username, cfg.Password),
		logger: log.With(slog.String("adapter", "webdav")),
	}
}

func (a *Adapter) Type() storage.Type { return storage.TypeWebDAV }

func (a *Adapter) Put(_ context.Context, localPath, key string) (storage.PutResult, error) {
	remote := adapterutil.JoinKey(a.cfg.Directory, key)

	if dir := path.Dir(remote); dir != "." {
		if err := a.client.MkdirAll(dir, 0o755); err != nil {
			return storage.PutResult{}, fmt.Errorf("webdav: mkdir %s: %w", dir, err)
		}
	}

	src, err := os.Open(localPath)
	if err != nil {
		return storage.PutResult{}, fmt.Errorf("webdav: %w", err)
	}
	defer src.Close()

	if err := a.client.WriteStream(remote, src, 0o644); err != nil {
		return storage.PutResult{}, fmt.Errorf("webdav: put %s: %w", remote, err)
	}

	return storage.PutResult{
		URL: adapterutil.JoinURL(a.cfg.Domain, remote),
		Ref: remote,
	}, nil
}

func (a *Adapter) Delete(_ context.Context, ref string) error {
	if err := a.client.Remove(ref); err != nil {
		return fmt.Errorf("webdav: delete %s: %w", ref, err)
	}
	return nil
}
