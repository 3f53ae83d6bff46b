package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"time"
)

// ServerConfig is the configuration for xsyncd.
type ServerConfig struct {
	ListenAddr    string            `toml:"listen_addr"`
	LogDir        string            `toml:"log_dir"`
	LogLevel      string            `toml:"log_level"`
	HashAlgorithm string            `toml:"hash_algorithm"`
	Database      DatabaseConfig    `toml:"database"`
	ObjectStore   ObjectStoreConfig `toml:"object_store"`
	Cache         CacheConfig       `toml:"cache"`
	Auth          AuthConfig        `toml:"auth"`
	RateLimit     RateLimitConfig   `toml:"rate_limit"`
	GC            GCConfig          `toml:"gc"`
	Pool          PoolConfig        `toml:"pool"`
}

// DatabaseConfig uses a tagged union: Type selects which fields apply.
type DatabaseConfig struct {
	Type string `toml:"type"`           // "sqlite" or "memory"
	Path string `toml:"path,omitempty"` // only used for type=sqlite
}

// ObjectStoreConfig is a tagged union over the chunk payload backends.
type ObjectStoreConfig struct {
	Type string `toml:"type"` // "memory", "filesystem", "s3" or "minio"

	// type=filesystem
	FSRoot string `toml:"fs_root,omitempty"`

	// type=s3
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3Endpoint  string `toml:"s3_endpoint,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`

	// type=minio
	MinioEndpoint  string `toml:"minio_endpoint,omitempty"`
	MinioBucket    string `toml:"minio_bucket,omitempty"`
	MinioAccessKey string `toml:"minio_access_key,omitempty"`
	MinioSecretKey string `toml:"minio_secret_key,omitempty"`
	MinioUseSSL    bool   `toml:"minio_use_ssl,omitempty"`
}

// CacheConfig selects the metadata cache.
type CacheConfig struct {
	Type string   `toml:"type"`           // "none", "memory" or "bolt"
	Path string   `toml:"path,omitempty"` // only used for type=bolt
	TTL  Duration `toml:"ttl"`
}

type AuthConfig struct {
	JWTSecret string   `toml:"jwt_secret"`
	TokenTTL  Duration `toml:"token_ttl"`
}

// RateLimitConfig caps per-request transfer rates in bytes per second.
// Zero disables the limit.
type RateLimitConfig struct {
	UploadRate int `toml:"upload_rate"`
	FetchRate  int `toml:"fetch_rate"`
}

type GCConfig struct {
	Interval  Duration `toml:"interval"`
	BatchSize int      `toml:"batch_size"`
}

type PoolConfig struct {
	Workers   int `toml:"workers"`
	QueueSize int `toml:"queue_size"`
}

// NewServerConfig returns server defaults rooted at baseDir with a freshly
// generated token secret.
func NewServerConfig(baseDir string) (*ServerConfig, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generating token secret: %w", err)
	}
	return &ServerConfig{
		ListenAddr:    ":8080",
		LogDir:        filepath.Join(baseDir, "log"),
		LogLevel:      "info",
		HashAlgorithm: "SHA-256",
		Database:      DatabaseConfig{Type: "sqlite", Path: filepath.Join(baseDir, "xsync.db")},
		ObjectStore:   ObjectStoreConfig{Type: "filesystem", FSRoot: filepath.Join(baseDir, "chunks")},
		Cache:         CacheConfig{Type: "memory", TTL: Duration(30 * time.Minute)},
		Auth:          AuthConfig{JWTSecret: hex.EncodeToString(secret), TokenTTL: Duration(7 * 24 * time.Hour)},
		RateLimit:     RateLimitConfig{UploadRate: 0, FetchRate: 0},
		GC:            GCConfig{Interval: Duration(time.Hour), BatchSize: 1000},
		Pool:          PoolConfig{Workers: 8, QueueSize: 1024},
	}, nil
}

// Validate checks required fields.
func (c *ServerConfig) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("auth.jwt_secret must be at least 16 characters")
	}
	if c.GC.BatchSize < 0 {
		return fmt.Errorf("gc.batch_size must not be negative")
	}
	return nil
}
