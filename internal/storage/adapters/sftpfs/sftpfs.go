// Package sftpfs stores uploads on a remote host over SFTP. A connection is
// dialed per operation; key-based auth is used when a private key is
// configured, password auth otherwise.
package sftpfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/picfort/picfort/internal/config"
	"github.com/picfort/picfort/internal/storage"
	"github.com/picfort/picfort/internal/storage/adapters/adapterutil"
)

const defaultPort = 22

type Adapter struct {
	cfg    config.SFTPStorageConfig
	logger *slog.Logger
}

func NewAdapter(cfg config.SFTPStorageConfig, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		cfg:    cfg,
		logger: log.With(slog.String("adapter", "sftp")),
	}
}

func (a *Adapter) Type() storage.Type { return storage.TypeSFTP }

func (a *Adapter) Put(_ context.Context, localPath, key string) (storage.PutResult, error) {
	remote := adapterutil.JoinKey(a.cfg.Directory, key)

	conn, client, err := a.connect()
	if err != nil {
		return storage.PutResult{}, err
	}
	defer conn.Close()
	defer client.Close()

	if dir := path.Dir(remote); dir != "." {
		if err := client.MkdirAll(dir); err != nil {
			return storage.PutResult{}, fmt.Errorf("sftp: mkdir %s: %w", dir, err)
		}
	}

	src, err := os.Open(localPath)
	if err != nil {
		return storage.PutResult{}, fmt.Errorf("sftp: %w", err)
	}
	defer src.Close()

	dst, err := client.Create(remote)
	if err != nil {
		return storage.PutResult{}, fmt.Errorf("sftp: create %s: %w", remote, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return storage.PutResult{}, fmt.Errorf("sftp: write %s: %w", remote, err)
	}
	if err := dst.Close(); err != nil {
		return storage.PutResult{}, fmt.Errorf("sftp: close %s: %w", remote, err)
	}

	return storage.PutResult{
		URL: adapterutil.JoinURL(a.cfg.Domain, remote),
		Ref: remote,
	}, nil
}

func (a *Adapter) Delete(_ context.Context, ref string) error {
	conn, client, err := a.connect()
	if err != nil {
		return err
	}
	defer conn.Close()
	defer client.Close()

	if err := client.Remove(ref); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("sftp: delete %s: %w", ref, err)
	}
	return nil
}

func (a *Adapter) connect() (*ssh.Client, *sftp.Client, error) {
	auth, err := a.authMethod()
	if err != nil {
		return nil, nil, err
	}
	port := a.cfg.Port
	if port == 0 {
		port = defaultPort
	}
	sshCfg := &ssh.ClientConfig{
		User:            a.cfg.Username,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         a.cfg.ConnectTimeout(),
	}
	conn, err := ssh.Dial("tcp", fmt.Sprintf("%s:%d", a.cfg.Host, port), sshCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("sftp: dial %s: %w", a.cfg.Host, err)
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("sftp: %w", err)
	}
	return conn, client, nil
}

func (a *Adapter) authMethod() (ssh.AuthMethod, error) {
	if a.cfg.PrivateKey == "" {
		return ssh.Password(a.cfg.Password), nil
	}
	var (
		signer ssh.Signer
		err    error
	)
	if a.cfg.Passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(a.cfg.PrivateKey), []byte(a.cfg.Passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey([]byte(a.cfg.PrivateKey))
	}
	if err != nil {
		return nil, fmt.Errorf("sftp: parse private key: %w", err)
	}
	return ssh.PublicKeys(signer), nil
}
