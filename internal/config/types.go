package config

import "time"

// Config is the root configuration schema.
type Config struct {
	Global        GlobalConfig        `mapstructure:"global"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Blob          BlobConfig          `mapstructure:"blob"`
	Backup        BackupConfig        `mapstructure:"backup"`
	Restore       RestoreConfig       `mapstructure:"restore"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Server        ServerConfig        `mapstructure:"server"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
}

type GlobalConfig struct {
	LogLevel         string        `mapstructure:"log_level"`
	LogFormat        string        `mapstructure:"log_format"` // json or console
	LockFile         string        `mapstructure:"lock_file"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	ConfigPassphrase string        `mapstructure:"config_passphrase"` // optional; may come from env
}

// DatabaseConfig points at the platform's relational store. The credentials
// must be service-level; they bypass row level security.
type DatabaseConfig struct {
	Type              string        `mapstructure:"type"` // postgres, sqlite, memory
	DSN               string        `mapstructure:"dsn"`
	SQLitePath        string        `mapstructure:"sqlite_path"`
	Migrate           bool          `mapstructure:"migrate"`
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
	MaxOpenConns      int           `mapstructure:"max_open_conns"`
}

// BlobConfig points at the platform's file buckets.
type BlobConfig struct {
	Type string    `mapstructure:"type"` // s3, fs, memory
	S3   BlobS3    `mapstructure:"s3"`
	FS   BlobLocal `mapstructure:"fs"`
}

type BlobS3 struct {
	Endpoint     string `mapstructure:"endpoint"`
	Region       string `mapstructure:"region"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	SessionToken string `mapstructure:"session_token"`
	PathStyle    bool   `mapstructure:"path_style"`
}

type BlobLocal struct {
	Path string `mapstructure:"path"`
}

type BackupConfig struct {
	Tables        []string      `mapstructure:"tables"`
	Buckets       []string      `mapstructure:"buckets"`
	Concurrency   int           `mapstructure:"concurrency"`
	Encryption    bool          `mapstructure:"encryption"`
	EncryptionKey string        `mapstructure:"encryption_key"`
	RetryCount    int           `mapstructure:"retry_count"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	Idempotent    bool          `mapstructure:"idempotent"`
	CreatedBy     string        `mapstructure:"created_by"`
	Retention     Retention     `mapstructure:"retention"`
}

type RestoreConfig struct {
	RestoreData    bool `mapstructure:"restore_data"`
	RestoreStorage bool `mapstructure:"restore_storage"`
	ClearExisting  bool `mapstructure:"clear_existing"`
	Concurrency    int  `mapstructure:"concurrency"`
}

type Retention struct {
	KeepLast int   `mapstructure:"keep_last"`
	KeepDays int   `mapstructure:"keep_days"`
	MaxBytes int64 `mapstructure:"max_bytes"`
}

// StorageConfig is where CLI-created archives are kept.
type StorageConfig struct {
	Backend string     `mapstructure:"backend"` // local, s3
	Local   LocalStore `mapstructure:"local"`
	S3      S3Store    `mapstructure:"s3"`
	Prefix  string     `mapstructure:"prefix"`
}

type LocalStore struct {
	Path string `mapstructure:"path"`
}

type S3Store struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKey       string `mapstructure:"access_key"`
	SecretKey       string `mapstructure:"secret_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	SessionToken    string `mapstructure:"session_token"`
	TLSInsecureSkip bool   `mapstructure:"tls_insecure_skip"`
}

type ServerConfig struct {
	Listen          string        `mapstructure:"listen"`
	JWTSecret       string        `mapstructure:"jwt_secret"`
	RequiredRole    string        `mapstructure:"required_role"`
	AdminEmails     []string      `mapstructure:"admin_emails"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       RateLimit     `mapstructure:"rate_limit"`
	TrustProxy      bool          `mapstructure:"trust_proxy"`
}

type RateLimit struct {
	Window      time.Duration `mapstructure:"window"`
	MaxRequests int           `mapstructure:"max_requests"`
}

type NotificationsConfig struct {
	Webhooks   []WebhookConfig  `mapstructure:"webhooks"`
	Mattermost []MattermostHook `mapstructure:"mattermost"`
	Matrix     []MatrixConfig   `mapstructure:"matrix"`
}

type WebhookConfig struct {
	Name    string            `mapstructure:"name"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

type MattermostHook struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

type MatrixConfig struct {
	Name        string `mapstructure:"name"`
	ServerURL   string `mapstructure:"server_url"`
	AccessToken string `mapstructure:"access_token"`
	RoomID      string `mapstructure:"room_id"`
}
