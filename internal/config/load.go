package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/fitundfun/ffbackup/internal/cryptoutil"
	"github.com/fitundfun/ffbackup/internal/schema"
)

const (
	envPrefix = "FFB"
	baseName  = "ffbackup"
)

// Load reads configuration from a file (optionally encrypted), env vars, and defaults.
func Load(path string) (*Config, error) {
	vp := viper.New()
	vp.SetEnvPrefix(envPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	setDefaults(vp)

	resolved, err := resolveConfigPath(path)
	if err != nil {
		return nil, err
	}

	if resolved != "" {
		data, readErr := os.ReadFile(resolved)
		if readErr != nil {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
		if isEncryptedPath(resolved) {
			vp.SetConfigType(configTypeFromPath(resolved))
			key := os.Getenv(envPrefix + "_CONFIG_KEY")
			if key == "" {
				key = vp.GetString("global.config_passphrase")
			}
			if key == "" {
				return nil, errors.New("config file is encrypted but FFB_CONFIG_KEY is not set")
			}
			plain, decErr := decryptConfig(data, key)
			if decErr != nil {
				return nil, fmt.Errorf("decrypt config: %w", decErr)
			}
			if err := vp.ReadConfig(bytes.NewReader(plain)); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		} else {
			vp.SetConfigFile(resolved)
			if err := vp.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := vp.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	expandEnv(&cfg)
	applyPostLoadDefaults(&cfg)
	return &cfg, nil
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	for _, t := range c.Backup.Tables {
		if !schema.IsTable(t) {
			return fmt.Errorf("backup.tables: unknown table %q", t)
		}
	}
	for _, b := range c.Backup.Buckets {
		if !schema.IsBucket(b) {
			return fmt.Errorf("backup.buckets: unknown bucket %q", b)
		}
	}
	if c.Backup.Encryption && c.Backup.EncryptionKey == "" {
		return errors.New("backup.encryption is enabled but backup.encryption_key is empty")
	}
	switch c.Database.Type {
	case "postgres", "postgresql":
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for postgres")
		}
	case "sqlite", "sqlite3":
		if c.Database.SQLitePath == "" {
			return errors.New("database.sqlite_path is required for sqlite")
		}
	}
	return nil
}

func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	if envPath := os.Getenv(envPrefix + "_CONFIG"); envPath != "" {
		return envPath, nil
	}

	candidates := []string{
		baseName + ".yaml",
		baseName + ".yml",
		baseName + ".toml",
		baseName + ".json",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}

	configDir, err := os.UserConfigDir()
	if err == nil {
		base := filepath.Join(configDir, baseName)
		for _, c := range candidates {
			p := filepath.Join(base, c)
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
			if _, err := os.Stat(p + ".enc"); err == nil {
				return p + ".enc", nil
			}
		}
	}

	return "", nil
}

func isEncryptedPath(path string) bool {
	return strings.HasSuffix(path, ".enc") || strings.HasSuffix(path, ".encrypted")
}

func configTypeFromPath(path string) string {
	trimmed := strings.TrimSuffix(strings.TrimSuffix(path, ".enc"), ".encrypted")
	switch filepath.Ext(trimmed) {
	case ".toml":
		return "toml"
	case ".json":
		return "json"
	default:
		return "yaml"
	}
}

func setDefaults(vp *viper.Viper) {
	vp.SetDefault("global.log_level", "info")
	vp.SetDefault("global.log_format", "json")
	vp.SetDefault("global.operation_timeout", "2h")
	vp.SetDefault("database.type", "postgres")
	vp.SetDefault("database.connection_timeout", "10s")
	vp.SetDefault("database.max_open_conns", 4)
	vp.SetDefault("blob.type", "s3")
	vp.SetDefault("blob.s3.region", "local")
	vp.SetDefault("blob.s3.path_style", true)
	vp.SetDefault("blob.fs.path", "./buckets")
	vp.SetDefault("backup.tables", schema.Tables)
	vp.SetDefault("backup.buckets", schema.Buckets)
	vp.SetDefault("backup.concurrency", 4)
	vp.SetDefault("backup.retry_count", 3)
	vp.SetDefault("backup.retry_backoff", "10s")
	vp.SetDefault("backup.idempotent", true)
	vp.SetDefault("restore.restore_data", true)
	vp.SetDefault("restore.restore_storage", true)
	vp.SetDefault("restore.clear_existing", false)
	vp.SetDefault("restore.concurrency", 4)
	vp.SetDefault("storage.backend", "local")
	vp.SetDefault("storage.local.path", "./backups")
	vp.SetDefault("server.listen", ":8080")
	vp.SetDefault("server.required_role", "authenticated")
	vp.SetDefault("server.max_upload_bytes", 512<<20)
	vp.SetDefault("server.read_timeout", "5m")
	vp.SetDefault("server.write_timeout", "30m")
	vp.SetDefault("server.shutdown_timeout", "30s")
	vp.SetDefault("server.rate_limit.window", "15m")
	vp.SetDefault("server.rate_limit.max_requests", 100)
}

func applyPostLoadDefaults(cfg *Config) {
	if cfg.Backup.RetryBackoff == 0 {
		cfg.Backup.RetryBackoff = 10 * time.Second
	}
	if cfg.Backup.Concurrency <= 0 {
		cfg.Backup.Concurrency = 1
	}
	if cfg.Restore.Concurrency <= 0 {
		cfg.Restore.Concurrency = 1
	}
	if cfg.Global.OperationTimeout == 0 {
		cfg.Global.OperationTimeout = 2 * time.Hour
	}
	if len(cfg.Backup.Tables) == 0 {
		cfg.Backup.Tables = append([]string(nil), schema.Tables...)
	}
	if len(cfg.Backup.Buckets) == 0 {
		cfg.Backup.Buckets = append([]string(nil), schema.Buckets...)
	}
	cfg.Database.Type = strings.ToLower(cfg.Database.Type)
	cfg.Blob.Type = strings.ToLower(cfg.Blob.Type)
	cfg.Storage.Backend = strings.ToLower(cfg.Storage.Backend)
}

func expandEnv(cfg *Config) {
	cfg.Database.DSN = os.ExpandEnv(cfg.Database.DSN)
	cfg.Blob.S3.AccessKey = os.ExpandEnv(cfg.Blob.S3.AccessKey)
	cfg.Blob.S3.SecretKey = os.ExpandEnv(cfg.Blob.S3.SecretKey)
	cfg.Blob.S3.SessionToken = os.ExpandEnv(cfg.Blob.S3.SessionToken)
	cfg.Backup.EncryptionKey = os.ExpandEnv(cfg.Backup.EncryptionKey)
	cfg.Storage.S3.AccessKey = os.ExpandEnv(cfg.Storage.S3.AccessKey)
	cfg.Storage.S3.SecretKey = os.ExpandEnv(cfg.Storage.S3.SecretKey)
	cfg.Storage.S3.SessionToken = os.ExpandEnv(cfg.Storage.S3.SessionToken)
	cfg.Server.JWTSecret = os.ExpandEnv(cfg.Server.JWTSecret)
	cfg.Notifications = expandNotificationEnv(cfg.Notifications)
}

func expandNotificationEnv(cfg NotificationsConfig) NotificationsConfig {
	for i := range cfg.Webhooks {
		cfg.Webhooks[i].URL = os.ExpandEnv(cfg.Webhooks[i].URL)
	}
	for i := range cfg.Mattermost {
		cfg.Mattermost[i].URL = os.ExpandEnv(cfg.Mattermost[i].URL)
	}
	for i := range cfg.Matrix {
		cfg.Matrix[i].ServerURL = os.ExpandEnv(cfg.Matrix[i].ServerURL)
		cfg.Matrix[i].AccessToken = os.ExpandEnv(cfg.Matrix[i].AccessToken)
		cfg.Matrix[i].RoomID = os.ExpandEnv(cfg.Matrix[i].RoomID)
	}
	return cfg
}

func decryptConfig(ciphertext []byte, key string) ([]byte, error) {
	parsed, err := cryptoutil.ParseKey(key)
	if err != nil {
		return nil, err
	}
	return cryptoutil.DecryptConfig(ciphertext, parsed)
}
