// Package qiniukodo stores uploads in a Qiniu Kodo bucket. Each Put issues a
// fresh scoped upload token from the credential pair.
package qiniukodo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/qiniu/go-sdk/v7/auth"
	qiniustorage "github.com/qiniu/go-sdk/v7/storage"

	"github.com/picfort/picfort/internal/config"
	"github.com/picfort/picfort/internal/storage"
	"github.com/picfort/picfort/internal/storage/adapters/adapterutil"
)

type Adapter struct {
	cfg      config.QiniuStorageConfig
	mac      *auth.Credentials
	uploader *qiniustorage.FormUploader
	manager  *qiniustorage.BucketManager
	logger   *slog.Logger
}

func NewAdapter(cfg config.QiniuStorageConfig, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	mac := auth.New(cfg.AccessKey, cfg.SecretKey)
	sdkCfg := &qiniustorage.Config{UseHTTPS: true}
	return &Adapter{
		cfg:      cfg,
		mac:      mac,
		uploader: qiniustorage.NewFormUploader(sdkCfg),
		manager:  qiniustorage.NewBucketManager(mac, sdkCfg),
		logger:   log.With(slog.String("adapter", "qiniu")),
	}
}

func (a *Adapter) Type() storage.Type { return storage.TypeQiniu }

func (a *Adapter) Put(ctx context.Context, localPath, key string) (storage.PutResult, error) {
	key = adapterutil.JoinKey(a.cfg.Directory, key)
	policy := qiniustorage.PutPolicy{Scope: a.cfg.Bucket}
	token := policy.UploadToken(a.mac)

	var ret qiniustorage.PutRet
	err := a.uploader.PutFile(ctx, &ret, token, key, localPath, &qiniustorage.PutExtra{})
	if err != nil {
		return storage.PutResult{}, fmt.Errorf("qiniu: put %s: %w", key, err)
	}
	return storage.PutResult{
		URL: adapterutil.JoinURL(a.domainURL(), ret.Key),
		Ref: ret.Key,
	}, nil
}

func (a *Adapter) Delete(_ context.Context, ref string) error {
	if err := a.manager.Delete(a.cfg.Bucket, ref); err != nil {
		return fmt.Errorf("qiniu: delete %s: %w", ref, err)
	}
	return nil
}

func (a *Adapter) domainURL() string {
	if strings.Contains(a.cfg.Domain, "://") {
		return a.cfg.Domain
	}
	return "http://" + a.cfg.Domain
}
