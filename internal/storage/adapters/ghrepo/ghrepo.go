// Package ghrepo stores uploads as files committed to a GitHub repository.
// Commits go through the contents API and are retried a bounded number of
// times, since the API sporadically answers 409 on concurrent commits.
package ghrepo

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/go-github/v66/github"
	"github.com/sethvargo/go-retry"
	"golang.org/x/oauth2"

	"github.com/picfort/picfort/internal/config"
	"github.com/picfort/picfort/internal/storage"
	"github.com/picfort/picfort/internal/storage/adapters/adapterutil"
)

type Adapter struct {
	cfg        config.GitHubStorageConfig
	client     *github.Client
	retryDelay time.Duration
	logger     *slog.Logger
}

func NewAdapter(cfg config.GitHubStorageConfig, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	delay := cfg.RetryDelay()
	if delay <= 0 {
		delay = 5 * time.Second
	}
	return &Adapter{
		cfg:        cfg,
		client:     github.NewClient(oauth2.NewClient(context.Background(), ts)),
		retryDelay: delay,
		logger:     log.With(slog.String("adapter", "github")),
	}
}

func (a *Adapter) Type() storage.Type { return storage.TypeGitHub }

func (a *Adapter) Put(ctx context.Context, localPath, key string) (storage.PutResult, error) {
	remote := adapterutil.JoinKey(a.cfg.Directory, key)
	data, err := os.ReadFile(localPath)
	if err != nil {
		return storage.PutResult{}, fmt.Errorf("github: %w", err)
	}

	err = a.withRetry(ctx, func(ctx context.Context) error {
		_, _, err := a.client.Repositories.CreateFile(ctx, a.cfg.Owner, a.cfg.Repo, remote,
			&github.RepositoryContentFileOptions{
				Message: github.String(fmt.Sprintf("Upload %s", remote)),
				Content: data,
				Branch:  github.String(a.cfg.Branch),
			})
		return err
	})
	if err != nil {
		return storage.PutResult{}, fmt.Errorf("github: put %s: %w", remote, err)
	}

	return storage.PutResult{URL: a.objectURL(remote), Ref: remote}, nil
}

// Delete looks up the blob SHA first; the contents API refuses deletions
// without it.
func (a *Adapter) Delete(ctx context.Context, ref string) error {
	err := a.withRetry(ctx, func(ctx context.Context) error {
		file, _, _, err := a.client.Repositories.GetContents(ctx, a.cfg.Owner, a.cfg.Repo, ref,
			&github.RepositoryContentGetOptions{Ref: a.cfg.Branch})
		if err != nil {
			return err
		}
		if file == nil || file.GetSHA() == "" {
			return fmt.Errorf("no blob SHA for %s", ref)
		}
		_, _, err = a.client.Repositories.DeleteFile(ctx, a.cfg.Owner, a.cfg.Repo, ref,
			&github.RepositoryContentFileOptions{
				Message: github.String(fmt.Sprintf("Delete %s", ref)),
				SHA:     github.String(file.GetSHA()),
				Branch:  github.String(a.cfg.Branch),
			})
		return err
	})
	if err != nil {
		return fmt.Errorf("github: delete %s: %w", ref, err)
	}
	return nil
}

func (a *Adapter) withRetry(ctx context.Context, fn func(context.Context) error) error {
	attempts := a.cfg.Retries
	if attempts < 1 {
		attempts = 1
	}
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(a.retryDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (a *Adapter) objectURL(key string) string {
	switch {
	case a.cfg.CustomDomain != "":
		return adapterutil.JoinURL(a.cfg.CustomDomain, key)
	case a.cfg.PagesDomain != "":
		return adapterutil.JoinURL(a.cfg.PagesDomain, a.cfg.Repo+"/"+key)
	default:
		return fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s/%s",
			a.cfg.Owner, a.cfg.Repo, a.cfg.Branch, key)
	}
}
