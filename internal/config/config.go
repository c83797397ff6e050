// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"
)

// Backend names accepted by OBJECT_STORE and CONTENT_STORE.
const (
	ObjectStoreS3    = "s3"
	ObjectStoreMinio = "minio"
	ObjectStoreLocal = "local"

	ContentStoreIPFS  = "ipfs"
	ContentStoreLocal = "local"
)

// Config holds all runtime configuration for the service.
type Config struct {
	Server  ServerConfig
	Upload  UploadConfig
	S3      S3Config
	Objects ObjectStoreConfig
	Content ContentStoreConfig
	Auth    AuthConfig

	// LocalDataDir is the root for the local object and content stores.
	LocalDataDir string `env:"LOCAL_DATA_DIR"`
	// LedgerPath is the SQLite database recording uploads. Empty disables it.
	LedgerPath string `env:"LEDGER_PATH"`
	LogLevel   string `env:"LOG_LEVEL"`
}

// ServerConfig defines the listen address.
type ServerConfig struct {
	Host string `env:"SERVER_HOST"`
	Port int    `env:"SERVER_PORT"`
}

// UploadConfig controls upload limits and transient storage.
type UploadConfig struct {
	MaxFileSize int64 `env:"MAX_FILE_SIZE"`
	// TempDir defaults to the OS temporary directory.
	TempDir string `env:"TEMP_DIR"`
}

// S3Config addresses the object store bucket.
type S3Config struct {
	Bucket    string `env:"S3_BUCKET"`
	KeyPrefix string `env:"S3_KEY"`
	Region    string `env:"AWS_REGION"`
}

// ObjectStoreConfig selects and configures the object store backend.
type ObjectStoreConfig struct {
	Backend    string `env:"OBJECT_STORE"`
	Endpoint   string `env:"OBJECT_STORE_ENDPOINT"`
	AccessKey  string `env:"OBJECT_STORE_ACCESS_KEY"`
	SecretKey  string `env:"OBJECT_STORE_SECRET_KEY"`
	UseSSL     bool   `env:"OBJECT_STORE_USE_SSL"`
	PublicBase string `env:"OBJECT_STORE_PUBLIC_BASE"`
}

// ContentStoreConfig selects and configures the content-addressed backend.
type ContentStoreConfig struct {
	Backend     string        `env:"CONTENT_STORE"`
	IPFSAPIURL  string        `env:"IPFS_API_URL"`
	IPFSTimeout time.Duration `env:"IPFS_TIMEOUT"`
}

// AuthConfig enables Basic authentication when both Username and Password
// are set, and bearer authentication when Token is set.
type AuthConfig struct {
	Username string `env:"AUTH_USERNAME"`
	Password string `env:"AUTH_PASSWORD"`
	Token    string `env:"AUTH_TOKEN"`
}

// BasicEnabled reports whether Basic credentials are configured.
func (a AuthConfig) BasicEnabled() bool {
	return a.Username != "" && a.Password != ""
}

// Enabled reports whether any authentication is configured.
func (a AuthConfig) Enabled() bool {
	return a.BasicEnabled() || a.Token != ""
}

// Default returns the configuration used when no environment is set. It is
// the starting point for FromEnv; the bucket has no default and must be
// provided.
func Default() Config {
	return Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Upload: UploadConfig{MaxFileSize: 5_242_880, TempDir: os.TempDir()},
		S3: S3Config{
			KeyPrefix: "uploads",
			Region:    "us-east-1",
		},
		Objects:      ObjectStoreConfig{Backend: ObjectStoreS3, UseSSL: true},
		Content:      ContentStoreConfig{Backend: ContentStoreIPFS, IPFSAPIURL: "http://127.0.0.1:5001", IPFSTimeout: 60 * time.Second},
		LocalDataDir: "./data",
		LogLevel:     "info",
	}
}

// Load reads a .env file (if present) and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	} else if err != nil {
		slog.Debug("No .env file found, reading from environment")
	}

	return FromEnv()
}

// FromEnv overlays the process environment onto Default. Unset variables
// keep their default value.
func FromEnv() (Config, error) {
	cfg := Default()
	for _, target := range []any{&cfg, &cfg.Server, &cfg.Upload, &cfg.S3, &cfg.Objects, &cfg.Content, &cfg.Auth} {
		if err := env.Parse(target); err != nil {
			return Config{}, fmt.Errorf("parse environment: %w", err)
		}
	}

	if cfg.Upload.TempDir == "" {
		cfg.Upload.TempDir = os.TempDir()
	}
	cfg.Objects.Backend = strings.ToLower(cfg.Objects.Backend)
	cfg.Content.Backend = strings.ToLower(cfg.Content.Backend)

	return cfg, nil
}

// Addr returns the host:port listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate ensures that all configuration values are usable.
func (c Config) Validate() error {
	if c.S3.Bucket == "" {
		return errors.New("S3 bucket name cannot be empty")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Upload.MaxFileSize <= 0 {
		return errors.New("max file size must be greater than 0")
	}
	if c.Upload.TempDir == "" {
		return errors.New("temp dir cannot be empty")
	}

	switch c.Objects.Backend {
	case ObjectStoreS3:
	case ObjectStoreMinio:
		if c.Objects.Endpoint == "" {
			return errors.New("OBJECT_STORE_ENDPOINT is required for the minio object store")
		}
	case ObjectStoreLocal:
		if c.LocalDataDir == "" {
			return errors.New("LOCAL_DATA_DIR is required for the local object store")
		}
	default:
		return fmt.Errorf("unsupported object store %q (supported: s3, minio, local)", c.Objects.Backend)
	}

	switch c.Content.Backend {
	case ContentStoreIPFS:
		if c.Content.IPFSAPIURL == "" {
			return errors.New("IPFS_API_URL is required for the ipfs content store")
		}
	case ContentStoreLocal:
		if c.LocalDataDir == "" {
			return errors.New("LOCAL_DATA_DIR is required for the local content store")
		}
	default:
		return fmt.Errorf("unsupported content store %q (supported: ipfs, local)", c.Content.Backend)
	}

	if (c.Auth.Username == "") != (c.Auth.Password == "") {
		return errors.New("AUTH_USERNAME and AUTH_PASSWORD must be set together")
	}

	return nil
}
