// Package cloudflarer2 stores uploads in a Cloudflare R2 bucket through the
// AWS S3 API surface.
package cloudflarer2

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/picfort/picfort/internal/config"
	"github.com/picfort/picfort/internal/storage"
	"github.com/picfort/picfort/internal/storage/adapters/adapterutil"
)

type Adapter struct {
	cfg    config.R2StorageConfig
	client *s3.Client
	logger *slog.Logger
}

// NewAdapter creates an R2 backend. Served URLs require cfg.PublicURL, the
// bucket's public development URL or a custom domain bound to it.
func NewAdapter(ctx context.Context, cfg config.R2StorageConfig, log *slog.Logger) (*Adapter, error) {
	if log == nil {
		log = slog.Default()
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("r2: %w", err)
	}
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
	return &Adapter{
		cfg:    cfg,
		client: client,
		logger: log.With(slog.String("adapter", "r2")),
	}, nil
}

func (a *Adapter) Type() storage.Type { return storage.TypeR2 }

func (a *Adapter) Put(ctx context.Context, localPath, key string) (storage.PutResult, error) {
	key = adapterutil.JoinKey(a.cfg.Directory, key)
	f, err := os.Open(localPath)
	if err != nil {
		return storage.PutResult{}, fmt.Errorf("r2: %w", err)
	}
	defer f.Close()

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(adapterutil.ContentTypeFor(localPath)),
	})
	if err != nil {
		return storage.PutResult{}, fmt.Errorf("r2: put %s: %w", key, err)
	}
	return storage.PutResult{
		URL: adapterutil.JoinURL(a.cfg.PublicURL, key),
		Ref: key,
	}, nil
}

func (a *Adapter) Delete(ctx context.Context, ref string) error {
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return fmt.Errorf("r2: delete %s: %w", ref, err)
	}
	return nil
}
