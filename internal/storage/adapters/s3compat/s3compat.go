// Package s3compat stores uploads in any S3-compatible object store via the
// MinIO client.
package s3compat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/picfort/picfort/internal/config"
	"github.com/picfort/picfort/internal/storage"
	"github.com/picfort/picfort/internal/storage/adapters/adapterutil"
)

type Adapter struct {
	cfg    config.S3StorageConfig
	client *minio.Client
	logger *slog.Logger
}

// NewAdapter creates an S3 backend. cfg.Endpoint is host[:port] without a
// scheme; cfg.UseSSL selects https.
func NewAdapter(cfg config.S3StorageConfig, log *slog.Logger) (*Adapter, error) {
	if log == nil {
		log = slog.Default()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: %w", err)
	}
	return &Adapter{
		cfg:    cfg,
		client: client,
		logger: log.With(slog.String("adapter", "s3")),
	}, nil
}

func (a *Adapter) Type() storage.Type { return storage.TypeS3 }

func (a *Adapter) Put(ctx context.Context, localPath, key string) (storage.PutResult, error) {
	key = adapterutil.JoinKey(a.cfg.Directory, key)
	_, err := a.client.FPutObject(ctx, a.cfg.Bucket, key, localPath, minio.PutObjectOptions{
		ContentType: adapterutil.ContentTypeFor(localPath),
	})
	if err != nil {
		return storage.PutResult{}, fmt.Errorf("s3: put %s: %w", key, err)
	}
	return storage.PutResult{URL: a.objectURL(key), Ref: key}, nil
}

func (a *Adapter) Delete(ctx context.Context, ref string) error {
	if err := a.client.RemoveObject(ctx, a.cfg.Bucket, ref, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("s3: delete %s: %w", ref, err)
	}
	return nil
}

func (a *Adapter) objectURL(key string) string {
	if a.cfg.PublicURL != "" {
		return adapterutil.JoinURL(a.cfg.PublicURL, key)
	}
	scheme := "http"
	if a.cfg.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, a.cfg.Endpoint, a.cfg.Bucket, key)
}
