package upload

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/picfort/picfort/internal/db"
)

// ErrAssetNotFound is returned when an asset id or hash matches nothing.
var ErrAssetNotFound = errors.New("asset not found")

// ErrDuplicateContent is returned when an insert loses the dedup race: the
// content hash hit the uniqueness constraint because another writer persisted
// the same bytes first. Callers reconcile by re-reading the winner.
var ErrDuplicateContent = errors.New("duplicate content hash")

const assetColumns = `id, name, filename, url, thumb, md5, sha1, safe, label,
	storage_type, file_path, user_id, width, height, size_bytes, format, ip,
	album_id, tags, remarks, created_at`

// Repository handles asset and audit persistence.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a Repository over the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// FindAssetByMD5 is the optimistic dedup lookup.
func (r *Repository) FindAssetByMD5(ctx context.Context, md5 string) (*Asset, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+assetColumns+` FROM images WHERE md5 = $1`, md5)
	a, err := scanAsset(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAssetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find asset by md5: %w", err)
	}
	return a, nil
}

// GetAsset fetches an asset by id.
func (r *Repository) GetAsset(ctx context.Context, id string) (*Asset, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+assetColumns+` FROM images WHERE id = $1`, id)
	a, err := scanAsset(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAssetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return a, nil
}

// CreateAssetWithAudit writes the asset and its audit entry in one
// transaction, so a recorded upload always carries its audit trail. The
// asset's id and creation time are filled in on success.
func (r *Repository) CreateAssetWithAudit(ctx context.Context, a *Asset, e *AuditEntry) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO images (name, filename, url, thumb, md5, sha1, safe, label,
			storage_type, file_path, user_id, width, height, size_bytes, format,
			ip, album_id, tags, remarks)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19)
		 RETURNING id, created_at`,
		a.Name, a.Filename, a.URL, a.Thumb, a.MD5, a.SHA1, a.Safe, a.Label,
		a.StorageType, a.FilePath, a.UserID, a.Width, a.Height, a.SizeBytes,
		a.Format, a.IP, a.AlbumID, a.Tags, a.Remarks,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateContent
		}
		return fmt.Errorf("insert asset: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO upload_logs (image_id, user_id, ip, country, region,
			province, city, isp, original_name, size_bytes, format, width,
			height, md5, sha1, filename)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16)`,
		a.ID, e.UserID, e.IP, e.Country, e.Region, e.Province, e.City, e.ISP,
		e.OriginalName, e.SizeBytes, e.Format, e.Width, e.Height, e.MD5,
		e.SHA1, e.Filename)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// DeleteAsset removes the asset row; audit entries cascade away with it.
func (r *Repository) DeleteAsset(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAssetNotFound
	}
	return nil
}

// CountUploadsToday counts today's audit entries for an identity, or for an
// address when the identity is empty (guest quota).
func (r *Repository) CountUploadsToday(ctx context.Context, userID *string, ip string) (int, error) {
	var (
		count int
		err   error
	)
	if userID != nil {
		err = r.db.QueryRow(ctx,
			`SELECT COUNT(*) FROM upload_logs
			 WHERE user_id = $1 AND created_at >= date_trunc('day', now())`,
			*userID).Scan(&count)
	} else {
		err = r.db.QueryRow(ctx,
			`SELECT COUNT(*) FROM upload_logs
			 WHERE user_id IS NULL AND ip = $1
			   AND created_at >= date_trunc('day', now())`,
			ip).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("count uploads: %w", err)
	}
	return count, nil
}

// IsBlocked reports whether the address is on the blacklist.
func (r *Repository) IsBlocked(ctx context.Context, ip string) (bool, error) {
	var blocked bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM blocked_ips WHERE ip = $1)`, ip).Scan(&blocked)
	if err != nil {
		return false, fmt.Errorf("check blacklist: %w", err)
	}
	return blocked, nil
}

// BlockIP adds the address to the blacklist. Adding an address twice is a
// no-op, so the auto-blacklist side effect stays idempotent.
func (r *Repository) BlockIP(ctx context.Context, ip string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO blocked_ips (ip) VALUES ($1) ON CONFLICT (ip) DO NOTHING`, ip)
	if err != nil {
		return fmt.Errorf("block ip: %w", err)
	}
	return nil
}

func scanAsset(row pgx.Row) (*Asset, error) {
	a := &Asset{}
	err := row.Scan(&a.ID, &a.Name, &a.Filename, &a.URL, &a.Thumb, &a.MD5,
		&a.SHA1, &a.Safe, &a.Label, &a.StorageType, &a.FilePath, &a.UserID,
		&a.Width, &a.Height, &a.SizeBytes, &a.Format, &a.IP, &a.AlbumID,
		&a.Tags, &a.Remarks, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}
