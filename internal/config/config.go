// Package config loads and exposes application configuration (TOML).
//
// The loaded Config is an immutable snapshot: the upload pipeline receives it
// per call and never mutates it, so an admin config change only takes effect
// on the next upload.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath = "config.toml"
	DefaultHTTPAddr   = ":8080"
	DefaultPGHost     = "127.0.0.1"
	DefaultPGPort     = 5432
	DefaultPGUser     = "postgres"
	DefaultPGDatabase = "picfort"
	DefaultPGSSLMode  = "disable"
	DefaultSpoolDir   = "uploads/tmp"
	DefaultThumbDir   = "uploads/thumbnails"
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log        LogConfig        `toml:"log"`
	Server     ServerConfig     `toml:"server"`
	Site       SiteConfig       `toml:"site"`
	Auth       AuthConfig       `toml:"auth"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Upload     UploadConfig     `toml:"upload"`
	Policy     PolicyConfig     `toml:"policy"`
	Storage    StorageConfig    `toml:"storage"`
	Moderation ModerationConfig `toml:"moderation"`
	Watermark  WatermarkConfig  `toml:"watermark"`
	IP         IPConfig         `toml:"ip"`
	Sweep      SweepConfig      `toml:"sweep"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP server listen address.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// SiteConfig holds the public site URL used to build local asset links.
// An empty URL is a configuration error surfaced on upload.
type SiteConfig struct {
	Title string `toml:"title"`
	URL   string `toml:"url"`
}

// AuthConfig holds the JWT secret used to verify caller tokens. When the
// secret is empty tokens are decoded without verification; the pipeline only
// reads the subject claim either way.
type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// UploadConfig holds spool and thumbnail directories.
type UploadConfig struct {
	SpoolDir string `toml:"spool_dir"`
	ThumbDir string `toml:"thumb_dir"`
}

// PolicyConfig holds the resolved upload policies for regular and guest callers.
type PolicyConfig struct {
	Default UploadPolicy `toml:"default"`
	Guest   UploadPolicy `toml:"guest"`
}

// UploadPolicy is the per-role upload rule set: formats, limits, templates,
// and the storage backend selector. Read-only to the pipeline.
type UploadPolicy struct {
	AllowedFormats    []string `toml:"allowed_formats"`
	ConcurrentUploads int64    `toml:"concurrent_uploads"`
	MaxSizeMB         int64    `toml:"max_size_mb"`
	MinWidth          int      `toml:"min_width"`
	MinHeight         int      `toml:"min_height"`
	MaxWidth          int      `toml:"max_width"`
	MaxHeight         int      `toml:"max_height"`
	ConvertFormat     string   `toml:"convert_format"`
	QualityOpen       bool     `toml:"quality_open"`
	Quality           int      `toml:"quality"`
	DailyLimit        int      `toml:"daily_limit"`
	Catalogue         string   `toml:"catalogue"`
	NamingRule        string   `toml:"naming_rule"`
	StorageType       string   `toml:"storage_type"`
}

// MaxSizeBytes returns the policy byte limit, or 0 when unlimited.
func (p UploadPolicy) MaxSizeBytes() int64 {
	return p.MaxSizeMB * 1024 * 1024
}

// AllowsFormat reports whether the decoded image format is accepted.
func (p UploadPolicy) AllowsFormat(format string) bool {
	format = strings.ToLower(strings.TrimSpace(format))
	for _, f := range p.AllowedFormats {
		if strings.ToLower(f) == format {
			return true
		}
	}
	return false
}

// StorageConfig bundles the per-backend credential and connection settings.
// Exactly one backend type is active per policy at upload time.
type StorageConfig struct {
	Local    LocalStorageConfig    `toml:"local"`
	OSS      OSSStorageConfig      `toml:"oss"`
	COS      COSStorageConfig      `toml:"cos"`
	S3       S3StorageConfig       `toml:"s3"`
	R2       R2StorageConfig       `toml:"r2"`
	Qiniu    QiniuStorageConfig    `toml:"qiniu"`
	Upyun    UpyunStorageConfig    `toml:"upyun"`
	SFTP     SFTPStorageConfig     `toml:"sftp"`
	FTP      FTPStorageConfig      `toml:"ftp"`
	WebDAV   WebDAVStorageConfig   `toml:"webdav"`
	Telegram TelegramStorageConfig `toml:"telegram"`
	GitHub   GitHubStorageConfig   `toml:"github"`
}

// LocalStorageConfig holds the root directory for local filesystem storage.
type LocalStorageConfig struct {
	Dir string `toml:"dir"`
}

// OSSStorageConfig holds Aliyun OSS credentials and bucket settings.
type OSSStorageConfig struct {
	AccessKeyID     string `toml:"access_key_id"`
	AccessKeySecret string `toml:"access_key_secret"`
	Bucket          string `toml:"bucket"`
	Endpoint        string `toml:"endpoint"`
	Directory       string `toml:"directory"`
	IsCname         bool   `toml:"is_cname"`
}

// COSStorageConfig holds Tencent COS credentials and bucket settings.
type COSStorageConfig struct {
	SecretID  string `toml:"secret_id"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	Directory string `toml:"directory"`
}

// S3StorageConfig holds settings for any S3-compatible object store.
type S3StorageConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	Directory string `toml:"directory"`
	UseSSL    bool   `toml:"use_ssl"`
	PublicURL string `toml:"public_url"`
}

// R2StorageConfig holds Cloudflare R2 settings (S3 API surface).
type R2StorageConfig struct {
	AccountID string `toml:"account_id"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	Directory string `toml:"directory"`
	PublicURL string `toml:"public_url"`
}

// QiniuStorageConfig holds qiniu Kodo credentials; an upload token is issued
// per operation from the access/secret key pair.
type QiniuStorageConfig struct {
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	Domain    string `toml:"domain"`
	Directory string `toml:"directory"`
}

// UpyunStorageConfig holds upyun operator credentials and the CDN domain.
type UpyunStorageConfig struct {
	Service   string `toml:"service"`
	Operator  string `toml:"operator"`
	Password  string `toml:"password"`
	Domain    string `toml:"domain"`
	Directory string `toml:"directory"`
}

// SFTPStorageConfig holds SFTP connection settings; key-based auth is used
// when PrivateKey is set, password auth otherwise.
type SFTPStorageConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	PrivateKey     string `toml:"private_key"`
	Passphrase     string `toml:"passphrase"`
	Directory      string `toml:"directory"`
	Domain         string `toml:"domain"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ConnectTimeout returns the dial timeout as a duration.
func (c SFTPStorageConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// FTPStorageConfig holds FTP connection settings, including the bounded
// retry parameters applied to transient transfer failures.
type FTPStorageConfig struct {
	Host              string `toml:"host"`
	Port              int    `toml:"port"`
	Username          string `toml:"username"`
	Password          string `toml:"password"`
	Directory         string `toml:"directory"`
	Domain            string `toml:"domain"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	Retries           int    `toml:"retries"`
	RetryDelaySeconds int    `toml:"retry_delay_seconds"`
}

// ConnectTimeout returns the dial timeout as a duration.
func (c FTPStorageConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetryDelay returns the fixed delay between transfer attempts.
func (c FTPStorageConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// WebDAVStorageConfig holds WebDAV endpoint settings.
type WebDAVStorageConfig struct {
	URL       string `toml:"url"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	Directory string `toml:"directory"`
	Domain    string `toml:"domain"`
}

// TelegramStorageConfig holds the bot token and the public channel used as
// the storage target. The channel must be public so the rendered post can be
// scraped for the file URL.
type TelegramStorageConfig struct {
	BotToken       string `toml:"bot_token"`
	ChatID         int64  `toml:"chat_id"`
	ChannelID      string `toml:"channel_id"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Timeout returns the bot API request timeout as a duration.
func (c TelegramStorageConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GitHubStorageConfig holds repository storage settings, including the
// bounded retry parameters and the optional custom/pages domains.
type GitHubStorageConfig struct {
	Token             string `toml:"token"`
	Owner             string `toml:"owner"`
	Repo              string `toml:"repo"`
	Branch            string `toml:"branch"`
	Directory         string `toml:"directory"`
	CustomDomain      string `toml:"custom_domain"`
	PagesDomain       string `toml:"pages_domain"`
	Retries           int    `toml:"retries"`
	RetryDelaySeconds int    `toml:"retry_delay_seconds"`
}

// RetryDelay returns the fixed delay between commit attempts.
func (c GitHubStorageConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// ModerationConfig selects the image-safety provider and the policy action
// applied to a Block verdict ("reject" aborts the upload, "mark" stores the
// verdict and proceeds).
type ModerationConfig struct {
	Enabled   bool                  `toml:"enabled"`
	Provider  string                `toml:"provider"`
	Action    string                `toml:"action"`
	AutoBlack bool                  `toml:"auto_black"`
	Tencent   TencentModerationConf `toml:"tencent"`
	Aliyun    AliyunModerationConf  `toml:"aliyun"`
	NSFW      NSFWModerationConf    `toml:"nsfw"`
}

// TencentModerationConf holds Tencent IMS credentials.
type TencentModerationConf struct {
	SecretID  string `toml:"secret_id"`
	SecretKey string `toml:"secret_key"`
	Region    string `toml:"region"`
	BizType   string `toml:"biz_type"`
}

// AliyunModerationConf holds Aliyun Green credentials.
type AliyunModerationConf struct {
	AccessKeyID     string `toml:"access_key_id"`
	AccessKeySecret string `toml:"access_key_secret"`
	Region          string `toml:"region"`
	Service         string `toml:"service"`
}

// NSFWModerationConf holds the nsfwjs-compatible HTTP endpoint and the
// block threshold in percent.
type NSFWModerationConf struct {
	APIURL         string `toml:"api_url"`
	Threshold      int    `toml:"threshold"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Timeout returns the HTTP request timeout as a duration.
func (c NSFWModerationConf) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// WatermarkConfig holds the watermark stage settings.
type WatermarkConfig struct {
	Enabled bool               `toml:"enabled"`
	Type    string             `toml:"type"`
	Tile    bool               `toml:"tile"`
	Text    TextWatermarkConf  `toml:"text"`
	Image   ImageWatermarkConf `toml:"image"`
}

// TextWatermarkConf holds the text overlay settings.
type TextWatermarkConf struct {
	Content  string  `toml:"content"`
	FontSize float64 `toml:"font_size"`
	Color    string  `toml:"color"`
	Position string  `toml:"position"`
	Opacity  float64 `toml:"opacity"`
}

// ImageWatermarkConf holds the image overlay settings.
type ImageWatermarkConf struct {
	Path     string  `toml:"path"`
	Position string  `toml:"position"`
	Opacity  float64 `toml:"opacity"`
}

// IPConfig toggles address-based gating of uploads and geolocation lookups.
type IPConfig struct {
	Enabled    bool   `toml:"enabled"`
	GeoEnabled bool   `toml:"geo_enabled"`
	XDBPath    string `toml:"xdb_path"`
}

// SweepConfig drives the orphan temp-file sweeper.
type SweepConfig struct {
	Enabled     bool   `toml:"enabled"`
	Schedule    string `toml:"schedule"`
	MaxAgeHours int    `toml:"max_age_hours"`
}

// MaxAge returns the minimum age of a spool file before the sweeper removes it.
func (c SweepConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeHours) * time.Hour
}

// Load reads and parses the TOML config file at path and applies default
// values for missing fields. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Site: SiteConfig{
			Title: "picfort",
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Upload: UploadConfig{
			SpoolDir: DefaultSpoolDir,
			ThumbDir: DefaultThumbDir,
		},
		Policy: PolicyConfig{
			Default: defaultPolicy(),
			Guest:   guestPolicy(),
		},
		Storage: StorageConfig{
			Local: LocalStorageConfig{Dir: "uploads"},
			SFTP:  SFTPStorageConfig{Port: 22, TimeoutSeconds: 30},
			FTP: FTPStorageConfig{
				Port:              21,
				TimeoutSeconds:    30,
				Retries:           3,
				RetryDelaySeconds: 5,
			},
			Telegram: TelegramStorageConfig{TimeoutSeconds: 30},
			GitHub: GitHubStorageConfig{
				Branch:            "main",
				Retries:           3,
				RetryDelaySeconds: 5,
			},
		},
		Moderation: ModerationConfig{
			Action: "mark",
			NSFW:   NSFWModerationConf{Threshold: 60, TimeoutSeconds: 180},
		},
		Watermark: WatermarkConfig{
			Type: "text",
			Text: TextWatermarkConf{
				FontSize: 24,
				Color:    "#000000",
				Position: "southeast",
				Opacity:  0.5,
			},
			Image: ImageWatermarkConf{
				Position: "southeast",
				Opacity:  0.5,
			},
		},
		Sweep: SweepConfig{
			Schedule:    "@every 1h",
			MaxAgeHours: 24,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func defaultPolicy() UploadPolicy {
	return UploadPolicy{
		AllowedFormats:    []string{"jpeg", "jpg", "png", "gif", "webp", "bmp", "tiff"},
		ConcurrentUploads: 10,
		MaxSizeMB:         5,
		Quality:           80,
		DailyLimit:        100,
		Catalogue:         "{Y}/{m}/{d}",
		NamingRule:        "{uniqid}.{ext}",
		StorageType:       "local",
	}
}

func guestPolicy() UploadPolicy {
	p := defaultPolicy()
	p.ConcurrentUploads = 2
	p.DailyLimit = 10
	return p
}

// PolicyFor resolves the upload policy for the caller: the guest policy for
// anonymous uploads, the default policy otherwise.
func (c Config) PolicyFor(identity string) UploadPolicy {
	if strings.TrimSpace(identity) == "" {
		return c.Policy.Guest
	}
	return c.Policy.Default
}
