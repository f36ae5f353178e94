// Package localfs stores uploads on the server's own filesystem and serves
// them from the site's public address.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/picfort/picfort/internal/config"
	"github.com/picfort/picfort/internal/storage"
	"github.com/picfort/picfort/internal/storage/adapters/adapterutil"
)

type Adapter struct {
	cfg     config.LocalStorageConfig
	baseURL string
	logger  *slog.Logger
}

// NewAdapter creates a local filesystem backend rooted at cfg.Dir. Stored
// objects are addressed as baseURL/<key>.
func NewAdapter(cfg config.LocalStorageConfig, baseURL string, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		cfg:     cfg,
		baseURL: baseURL,
		logger:  log.With(slog.String("adapter", "local")),
	}
}

func (a *Adapter) Type() storage.Type { return storage.TypeLocal }

func (a *Adapter) Put(_ context.Context, localPath, key string) (storage.PutResult, error) {
	dst := filepath.Join(a.cfg.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return storage.PutResult{}, fmt.Errorf("local: %w", err)
	}
	if err := moveFile(localPath, dst); err != nil {
		return storage.PutResult{}, fmt.Errorf("local: %w", err)
	}
	return storage.PutResult{
		URL: adapterutil.JoinURL(a.baseURL, key),
		Ref: key,
	}, nil
}

func (a *Adapter) Delete(_ context.Context, ref string) error {
	err := os.Remove(filepath.Join(a.cfg.Dir, filepath.FromSlash(ref)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("local: %w", err)
	}
	return nil
}

// moveFile renames src into place, falling back to copy+remove when the
// spool directory sits on a different filesystem.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
