// Package ftpfs stores uploads on a remote host over FTP. Transfers are
// retried a bounded number of times with a fixed delay, since FTP servers in
// the wild drop connections routinely.
package ftpfs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/sethvargo/go-retry"

	"github.com/picfort/picfort/internal/config"
	"github.com/picfort/picfort/internal/storage"
	"github.com/picfort/picfort/internal/storage/adapters/adapterutil"
)

const defaultPort = 21

// conn is the slice of *ftp.ServerConn the adapter needs; tests substitute
// a fake through the dial hook.
type conn interface {
	Login(user, password string) error
	MakeDir(path string) error
	Stor(path string, r io.Reader) error
	Delete(path string) error
	Quit() error
}

type Adapter struct {
	cfg        config.FTPStorageConfig
	dial       func(ctx context.Context) (conn, error)
	retryDelay time.Duration
	logger     *slog.Logger
}

func NewAdapter(cfg config.FTPStorageConfig, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	delay := cfg.RetryDelay()
	if delay <= 0 {
		delay = 5 * time.Second
	}
	a := &Adapter{
		cfg:        cfg,
		retryDelay: delay,
		logger:     log.With(slog.String("adapter", "ftp")),
	}
	a.dial = a.dialServer
	return a
}

func (a *Adapter) Type() storage.Type { return storage.TypeFTP }

func (a *Adapter) Put(ctx context.Context, localPath, key string) (storage.PutResult, error) {
	remote := adapterutil.JoinKey(a.cfg.Directory, key)

	err := a.withRetry(ctx, func(ctx context.Context) error {
		c, err := a.dial(ctx)
		if err != nil {
			return err
		}
		defer c.Quit()
		if err := c.Login(a.cfg.Username, a.cfg.Password); err != nil {
			return fmt.Errorf("login: %w", err)
		}
		ensureDirs(c, path.Dir(remote))

		src, err := os.Open(localPath)
		if err != nil {
			return err
		}
		defer src.Close()
		return c.Stor(remote, src)
	})
	if err != nil {
		return storage.PutResult{}, fmt.Errorf("ftp: put %s: %w", remote, err)
	}

	return storage.PutResult{
		URL: adapterutil.JoinURL(a.cfg.Domain, remote),
		Ref: remote,
	}, nil
}

func (a *Adapter) Delete(ctx context.Context, ref string) error {
	err := a.withRetry(ctx, func(ctx context.Context) error {
		c, err := a.dial(ctx)
		if err != nil {
			return err
		}
		defer c.Quit()
		if err := c.Login(a.cfg.Username, a.cfg.Password); err != nil {
			return fmt.Errorf("login: %w", err)
		}
		return c.Delete(ref)
	})
	if err != nil {
		return fmt.Errorf("ftp: delete %s: %w", ref, err)
	}
	return nil
}

// withRetry runs fn up to cfg.Retries times total, waiting cfg.RetryDelay
// between attempts. Every failure is retryable; FTP gives no reliable way to
// tell transient faults from permanent ones.
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

func (a *Adapter) dialServer(ctx context.Context) (conn, error) {
	port := a.cfg.Port
	if port == 0 {
		port = defaultPort
	}
	c, err := ftp.Dial(fmt.Sprintf("%s:%d", a.cfg.Host, port),
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(a.cfg.ConnectTimeout()))
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return c, nil
}

// ensureDirs creates every directory segment leading to dir, ignoring
// already-exists errors the server may answer with.
func ensureDirs(c conn, dir string) {
	if dir == "." || dir == "/" || dir == "" {
		return
	}
	var prefix string
	for _, seg := range strings.Split(strings.Trim(dir, "/"), "/") {
		if prefix == "" {
			prefix = seg
		} else {
			prefix = prefix + "/" + seg
		}
		_ = c.MakeDir(prefix)
	}
}
