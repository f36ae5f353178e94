// Package alioss stores uploads in an Aliyun OSS bucket.
package alioss

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/picfort/picfort/internal/config"
	"github.com/picfort/picfort/internal/storage"
	"github.com/picfort/picfort/internal/storage/adapters/adapterutil"
)

type Adapter struct {
	cfg    config.OSSStorageConfig
	bucket *oss.Bucket
	logger *slog.Logger
}

func NewAdapter(cfg config.OSSStorageConfig, log *slog.Logger) (*Adapter, error) {
	if log == nil {
		log = slog.Default()
	}
	opts := []oss.ClientOption{oss.AuthVersion(oss.AuthV4)}
	if cfg.IsCname {
		opts = append(opts, oss.UseCname(true))
	}
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret, opts...)
	if err != nil {
		return nil, fmt.Errorf("oss: %w", err)
	}
	bucket, err := client.Bucket(cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("oss: %w", err)
	}
	return &Adapter{
		cfg:    cfg,
		bucket: bucket,
		logger: log.With(slog.String("adapter", "oss")),
	}, nil
}

func (a *Adapter) Type() storage.Type { return storage.TypeOSS }

func (a *Adapter) Put(ctx context.Context, localPath, key string) (storage.PutResult, error) {
	key = adapterutil.JoinKey(a.cfg.Directory, key)
	err := a.bucket.PutObjectFromFile(key, localPath,
		oss.ContentType(adapterutil.ContentTypeFor(localPath)),
		oss.ContentDisposition("inline"),
		oss.WithContext(ctx))
	if err != nil {
		return storage.PutResult{}, fmt.Errorf("oss: put %s: %w", key, err)
	}
	return storage.PutResult{URL: a.objectURL(key), Ref: key}, nil
}

func (a *Adapter) Delete(ctx context.Context, ref string) error {
	if err := a.bucket.DeleteObject(ref, oss.WithContext(ctx)); err != nil {
		return fmt.Errorf("oss: delete %s: %w", ref, err)
	}
	return nil
}

// objectURL builds the public address. With a CNAME endpoint the bucket name
// is already part of the host; otherwise it is prepended virtual-host style.
func (a *Adapter) objectURL(key string) string {
	host := strings.TrimPrefix(strings.TrimPrefix(a.cfg.Endpoint, "https://"), "http://")
	if a.cfg.IsCname {
		return fmt.Sprintf("https://%s/%s", host, key)
	}
	return fmt.Sprintf("https://%s.%s/%s", a.cfg.Bucket, host, key)
}
