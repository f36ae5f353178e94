// Package upyunuss stores uploads in an Upyun USS service bucket.
package upyunuss

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/upyun/go-sdk/v3/upyun"

	"github.com/picfort/picfort/internal/config"
	"github.com/picfort/picfort/internal/storage"
	"github.com/picfort/picfort/internal/storage/adapters/adapterutil"
)

type Adapter struct {
	cfg    config.UpyunStorageConfig
	client *upyun.UpYun
	logger *slog.Logger
}

func NewAdapter(cfg config.UpyunStorageConfig, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	client := upyun.NewUpYun(&upyun.UpYunConfig{
		Bucket:   cfg.Service,
		Operator: cfg.Operator,
		Password: cfg.Password,
	})
	return &Adapter{
		cfg:    cfg,
		client: client,
		logger: log.With(slog.String("adapter", "upyun")),
	}
}

func (a *Adapter) Type() storage.Type { return storage.TypeUpyun }

func (a *Adapter) Put(_ context.Context, localPath, key string) (storage.PutResult, error) {
	key = adapterutil.JoinKey(a.cfg.Directory, key)
	err := a.client.Put(&upyun.PutObjectConfig{
		Path:      "/" + key,
		LocalPath: localPath,
	})
	if err != nil {
		return storage.PutResult{}, fmt.Errorf("upyun: put %s: %w", key, err)
	}
	return storage.PutResult{
		URL: adapterutil.JoinURL(a.cfg.Domain, key),
		Ref: key,
	}, nil
}

func (a *Adapter) Delete(_ context.Context, ref string) error {
	err := a.client.Delete(&upyun.DeleteObjectConfig{Path: "/" + ref})
	if err != nil {
		return fmt.Errorf("upyun: delete %s: %w", ref, err)
	}
	return nil
}
