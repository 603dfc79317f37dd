// Package config loads the mirror's settings from a YAML file, environment
// variables, and flags, in increasing order of precedence. Secrets (the
// session cookie and the encryption key) come from the environment only,
// with .env files loaded via godotenv for development.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Env var names for secrets. These are never read from the config file.
const (
	EnvCookie        = "OVERCAST_COOKIE"
	EnvEncryptionKey = "ENCRYPTION_KEY"
)

const envPrefix = "OVERCAST"

// Config is the resolved runtime configuration.
type Config struct {
	// DBPath is the directory holding feeds.csv and episodes.csv.
	DBPath string `mapstructure:"db_path"`
	// CacheDir is the response cache root; the artifact cache blob lives
	// directly under it.
	CacheDir string `mapstructure:"cache_dir"`
	// Offline disables all network access.
	Offline bool `mapstructure:"offline"`
	// Verbose enables debug logging.
	Verbose bool `mapstructure:"verbose"`
	// MinRequestInterval is the minimum spacing between upstream requests.
	MinRequestInterval time.Duration `mapstructure:"min_request_interval"`
	// ArtifactCacheMaxBytes is the byte budget for the persistent value
	// cache.
	ArtifactCacheMaxBytes int64 `mapstructure:"artifact_cache_max_bytes"`
	// PurgeOlderThan is the response cache age cutoff for purge-cache.
	PurgeOlderThan time.Duration `mapstructure:"purge_older_than"`
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("db_path must be specified")
	}
	if c.CacheDir == "" {
		return errors.New("cache_dir must be specified")
	}
	if c.MinRequestInterval < 0 {
		return fmt.Errorf("min_request_interval must not be negative, got %s", c.MinRequestInterval)
	}
	if c.ArtifactCacheMaxBytes <= 0 {
		return fmt.Errorf("artifact_cache_max_bytes must be positive, got %d", c.ArtifactCacheMaxBytes)
	}
	if c.PurgeOlderThan <= 0 {
		return fmt.Errorf("purge_older_than must be positive, got %s", c.PurgeOlderThan)
	}
	return nil
}

// Load reads the config file at path when it exists, applies OVERCAST_*
// environment overrides, and validates the result. An empty path means
// defaults and environment only.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_path", ".")
	v.SetDefault("cache_dir", defaultCacheDir())
	v.SetDefault("offline", false)
	v.SetDefault("verbose", false)
	v.SetDefault("min_request_interval", time.Minute)
	v.SetDefault("artifact_cache_max_bytes", int64(2*1024*1024))
	v.SetDefault("purge_older_than", 90*24*time.Hour)
}

// defaultCacheDir is the per-user cache directory, falling back to a local
// directory when the platform exposes none.
func defaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return ".cache"
	}
	return filepath.Join(base, "overcastmirror")
}

// loadEnvFiles loads .env.local then .env when present. Missing files are
// fine; malformed ones are not worth failing a run over either, since the
// variables may already be exported.
func loadEnvFiles() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")
}
