package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

const (
	DefaultURL    = "http://localhost:8080"
	DefaultPrefix = "dkron-backup"
	rootDirName   = ".dkron-backup"
)

// Config is the full tool configuration. Fields are filled from defaults,
// then the optional YAML file, then the environment; CLI arguments are
// applied by the caller on top.
type Config struct {
	URL         string `yaml:"url" envconfig:"DKRON_URL"`
	Bucket      string `yaml:"bucket" envconfig:"DKRON_S3_BUCKET"`
	Root        string `yaml:"root" envconfig:"DKRON_BACKUP_ROOT"`
	Prefix      string `yaml:"prefix" envconfig:"DKRON_BACKUP_PREFIX"`
	OnStaleTemp string `yaml:"onStaleTemp" envconfig:"DKRON_BACKUP_ON_STALE_TEMP"` // "overwrite" or "fail"

	S3KeyPrefix       string `yaml:"s3KeyPrefix,omitempty" envconfig:"DKRON_S3_PREFIX"`
	S3Region          string `yaml:"s3Region,omitempty" envconfig:"DKRON_S3_REGION"`
	S3Endpoint        string `yaml:"s3Endpoint,omitempty" envconfig:"DKRON_S3_ENDPOINT"`
	S3AccessKeyID     string `yaml:"s3AccessKeyId,omitempty" envconfig:"DKRON_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `yaml:"s3SecretAccessKey,omitempty" envconfig:"DKRON_S3_SECRET_ACCESS_KEY"`
	S3StorageClass    string `yaml:"s3StorageClass,omitempty" envconfig:"DKRON_S3_STORAGE_CLASS"`
	S3ForcePathStyle  bool   `yaml:"s3ForcePathStyle,omitempty" envconfig:"DKRON_S3_FORCE_PATH_STYLE"`

	LogLevel  string `yaml:"logLevel" envconfig:"DKRON_BACKUP_LOG_LEVEL"`   // "debug", "info", "warn", "error"
	LogFormat string `yaml:"logFormat" envconfig:"DKRON_BACKUP_LOG_FORMAT"` // "text", "json"
}

// Defaults returns the configuration used when nothing else is set. The
// staging root lives in home.
func Defaults(home string) Config {
	return Config{
		URL:         DefaultURL,
		Root:        filepath.Join(home, rootDirName),
		Prefix:      DefaultPrefix,
		OnStaleTemp: "overwrite",
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// DKRON_BACKUP_CONFIG (if set), then environment variables. A .env file in
// the working directory is loaded first when present. The result is not
// validated: callers apply command-line overrides and then call Validate.
func Load() (*Config, error) {
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	home, err := os.UserHomeDir()
	if err != nil {
		// Fall back to the working directory like a missing $HOME would
		home = "."
	}
	cfg := Defaults(home)

	if path := Path(); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error reading environment: %w", err)
	}
	return &cfg, nil
}

// Path returns the config file named by DKRON_BACKUP_CONFIG, or "".
func Path() string {
	return os.Getenv("DKRON_BACKUP_CONFIG")
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}
	return nil
}

// Validate checks the values the workflows depend on.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: DKRON_URL", ErrInvalid)
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: DKRON_URL %q is not an http(s) URL", ErrInvalid, c.URL)
	}
	if c.Root == "" {
		return fmt.Errorf("%w: DKRON_BACKUP_ROOT", ErrInvalid)
	}
	if c.Prefix == "" || strings.ContainsAny(c.Prefix, `/\`) {
		return fmt.Errorf("%w: DKRON_BACKUP_PREFIX %q", ErrInvalid, c.Prefix)
	}
	switch c.OnStaleTemp {
	case "overwrite", "fail":
	default:
		return fmt.Errorf("%w: DKRON_BACKUP_ON_STALE_TEMP must be overwrite or fail, got %q", ErrInvalid, c.OnStaleTemp)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: DKRON_BACKUP_LOG_FORMAT must be text or json, got %q", ErrInvalid, c.LogFormat)
	}
	return nil
}

// ArchiveEnabled reports whether backups are pushed to a bucket.
func (c *Config) ArchiveEnabled() bool {
	return c.Bucket != ""
}
