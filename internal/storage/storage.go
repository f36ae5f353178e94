// Package storage defines the backend contract every object store speaks
// and the registry that dispatches uploads to the configured backend.
package storage

import "context"

// Type identifies a storage backend.
type Type string

func (t Type) String() string { return string(t) }

const (
	TypeLocal    Type = "local"
	TypeOSS      Type = "oss"
	TypeCOS      Type = "cos"
	TypeS3       Type = "s3"
	TypeR2       Type = "r2"
	TypeQiniu    Type = "qiniu"
	TypeUpyun    Type = "upyun"
	TypeSFTP     Type = "sftp"
	TypeFTP      Type = "ftp"
	TypeWebDAV   Type = "webdav"
	TypeTelegram Type = "telegram"
	TypeGitHub   Type = "github"
)

// PutResult is what a backend hands back after a successful store.
type PutResult struct {
	// URL is the public address of the stored object.
	URL string
	// Ref is the backend-side reference needed to delete the object later.
	// For path-addressed backends it equals the key; Telegram returns the
	// message id instead.
	Ref string
}

// Adapter stores and removes objects on one backend. Put uploads the local
// file under key (a slash-separated path relative to the backend root) and
// Delete removes the object identified by a previously returned Ref.
type Adapter interface {
	Type() Type
	Put(ctx context.Context, localPath, key string) (PutResult, error)
	Delete(ctx context.Context, ref string) error
}
