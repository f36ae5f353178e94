package upload

import "time"

// Asset is the persisted record of a stored image. The JSON shape is the
// wire contract of the upload endpoints.
type Asset struct {
	ID          string    `json:"_id"`
	Name        string    `json:"name"`
	Filename    string    `json:"filename"`
	URL         string    `json:"url"`
	Thumb       string    `json:"thumb"`
	MD5         string    `json:"md5"`
	SHA1        string    `json:"sha1"`
	Safe        string    `json:"safe"`
	Label       string    `json:"label"`
	StorageType string    `json:"storage_type"`
	FilePath    string    `json:"file_path"`
	UserID      *string   `json:"user_id,omitempty"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	SizeBytes   int64     `json:"size"`
	Format      string    `json:"format"`
	IP          string    `json:"ip"`
	AlbumID     *string   `json:"album_id,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Remarks     string    `json:"remarks,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// AuditEntry is the per-upload audit record. Entries cascade away with their
// asset.
type AuditEntry struct {
	ID           string
	ImageID      string
	UserID       *string
	IP           string
	Country      string
	Region       string
	Province     string
	City         string
	ISP          string
	OriginalName string
	SizeBytes    int64
	Format       string
	Width        int
	Height       int
	MD5          string
	SHA1         string
	Filename     string
	CreatedAt    time.Time
}
