package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the client configuration for xsync.
type Config struct {
	ServerURL         string          `toml:"server_url"`
	RootDir           string          `toml:"root_dir"`
	CacheDir          string          `toml:"cache_dir"`
	LogDir            string          `toml:"log_dir"`
	ExpectedChunkSize int             `toml:"expected_chunk_size"`
	HashAlgorithm     string          `toml:"hash_algorithm"`
	IgnoreFile        string          `toml:"ignore_file"`
	Transform         TransformConfig `toml:"transform"`
	Transfer          TransferConfig  `toml:"transfer"`
}

// TransformConfig toggles the chunk transform stages. Encryption needs the
// key file created by `xsync key init`.
type TransformConfig struct {
	Compress    bool   `toml:"compress"`
	Compression string `toml:"compression"` // "zstd" (default) or "lz4"
	Encrypt     bool   `toml:"encrypt"`
	KeyPath     string `toml:"key_path"`
}

type TransferConfig struct {
	UploadRate int      `toml:"upload_rate"` // bytes per second, 0 = unlimited
	Timeout    Duration `toml:"timeout"`
}

// NewConfig returns a client config with defaults rooted at baseDir.
func NewConfig(baseDir, rootDir string) *Config {
	return &Config{
		ServerURL:         "http://localhost:8080",
		RootDir:           rootDir,
		CacheDir:          filepath.Join(baseDir, "cache"),
		LogDir:            filepath.Join(baseDir, "log"),
		ExpectedChunkSize: 8 * 1024,
		HashAlgorithm:     "SHA-256",
		IgnoreFile:        ".xsyncignore",
		Transform: TransformConfig{
			Compression: "zstd",
			KeyPath:     filepath.Join(baseDir, "keys", "xsync.key"),
		},
		Transfer: TransferConfig{Timeout: Duration(5 * time.Minute)},
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}
	if c.RootDir == "" {
		return fmt.Errorf("root_dir is required")
	}
	if c.CacheDir == "" {
		return fmt.Errorf("cache_dir is required")
	}
	if c.ExpectedChunkSize < 64 {
		return fmt.Errorf("expected_chunk_size must be at least 64, got %d", c.ExpectedChunkSize)
	}
	if c.Transform.Encrypt && c.Transform.KeyPath == "" {
		return fmt.Errorf("transform.key_path is required when encryption is enabled")
	}
	return nil
}

// Duration is a time.Duration written as a Go duration string ("30m").
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Read decodes a configuration of type T from r.
func Read[T any](r io.Reader) (*T, error) {
	var cfg T
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes cfg to w.
func Write(w io.Writer, cfg any) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a configuration of type T from path.
func ReadFromFile[T any](path string) (*T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	cfg, err := Read[T](f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Init writes cfg to path, refusing to overwrite an existing file.
func Init(path string, cfg any) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := Write(f, cfg); err != nil {
		return fmt.Errorf("initializing config at %s: %w", path, err)
	}
	return nil
}
