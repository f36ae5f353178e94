// Package tencentcos stores uploads in a Tencent COS bucket.
package tencentcos

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/tencentyun/cos-go-sdk-v5"

	"github.com/picfort/picfort/internal/config"
	"github.com/picfort/picfort/internal/storage"
	"github.com/picfort/picfort/internal/storage/adapters/adapterutil"
)

type Adapter struct {
	cfg       config.COSStorageConfig
	client    *cos.Client
	bucketURL string
	logger    *slog.Logger
}

func NewAdapter(cfg config.COSStorageConfig, log *slog.Logger) (*Adapter, error) {
	if log == nil {
		log = slog.Default()
	}
	bucketURL := fmt.Sprintf("https://%s.cos.%s.myqcloud.com", cfg.Bucket, cfg.Region)
	u, err := url.Parse(bucketURL)
	if err != nil {
		return nil, fmt.Errorf("cos: %w", err)
	}
	client := cos.NewClient(&cos.BaseURL{BucketURL: u}, &http.Client{
		Transport: &cos.AuthorizationTransport{
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
		},
	})
	return &Adapter{
		cfg:       cfg,
		client:    client,
		bucketURL: bucketURL,
		logger:    log.With(slog.String("adapter", "cos")),
	}, nil
}

func (a *Adapter) Type() storage.Type { return storage.TypeCOS }

func (a *Adapter) Put(ctx context.Context, localPath, key string) (storage.PutResult, error) {
	key = adapterutil.JoinKey(a.cfg.Directory, key)
	opts := &cos.ObjectPutOptions{
		ObjectPutHeaderOptions: &cos.ObjectPutHeaderOptions{
			ContentType:        adapterutil.ContentTypeFor(localPath),
			ContentDisposition: "inline",
		},
	}
	if _, err := a.client.Object.PutFromFile(ctx, key, localPath, opts); err != nil {
		return storage.PutResult{}, fmt.Errorf("cos: put %s: %w", key, err)
	}
	return storage.PutResult{
		URL: adapterutil.JoinURL(a.bucketURL, key),
		Ref: key,
	}, nil
}

func (a *Adapter) Delete(ctx context.Context, ref string) error {
	if _, err := a.client.Object.Delete(ctx, ref); err != nil {
		return fmt.Errorf("cos: delete %s: %w", ref, err)
	}
	return nil
}
