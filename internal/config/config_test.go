package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestClientConfig_RoundTrip(t *testing.T) {
	t.Parallel()

	original := NewConfig("/home/user/.xsync", "/home/user/sync")
	original.Transform.Encrypt = true
	original.Transfer.UploadRate = 1 << 20

	var buf bytes.Buffer
	if err := Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got, err := Read[Config](&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.RootDir != original.RootDir {
		t.Errorf("RootDir = %q, want %q", got.RootDir, original.RootDir)
	}
	if got.ExpectedChunkSize != 8192 {
		t.Errorf("ExpectedChunkSize = %d, want 8192", got.ExpectedChunkSize)
	}
	if !got.Transform.Encrypt || got.Transform.KeyPath != original.Transform.KeyPath {
		t.Errorf("Transform = %+v, want %+v", got.Transform, original.Transform)
	}
	if got.Transfer.Timeout.Std() != 5*time.Minute {
		t.Errorf("Timeout = %v, want 5m", got.Transfer.Timeout.Std())
	}
	if got.Transfer.UploadRate != 1<<20 {
		t.Errorf("UploadRate = %d, want %d", got.Transfer.UploadRate, 1<<20)
	}
}

func TestServerConfig_RoundTrip(t *testing.T) {
	t.Parallel()

	original, err := NewServerConfig("/var/lib/xsyncd")
	if err != nil {
		t.Fatalf("NewServerConfig() error = %v", err)
	}
	original.ObjectStore = ObjectStoreConfig{Type: "minio", MinioEndpoint: "localhost:9000", MinioBucket: "chunks"}

	var buf bytes.Buffer
	if err := Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !strings.Contains(buf.String(), `ttl = "30m0s"`) {
		t.Errorf("durations should encode as strings, got:\n%s", buf.String())
	}

	got, err := Read[ServerConfig](&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.ObjectStore.Type != "minio" || got.ObjectStore.MinioBucket != "chunks" {
		t.Errorf("ObjectStore = %+v", got.ObjectStore)
	}
	if got.Cache.TTL.Std() != 30*time.Minute {
		t.Errorf("Cache.TTL = %v, want 30m", got.Cache.TTL.Std())
	}
	if got.Pool.Workers != 8 || got.Pool.QueueSize != 1024 {
		t.Errorf("Pool = %+v, want 8 workers and queue 1024", got.Pool)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestRead_InvalidDuration(t *testing.T) {
	t.Parallel()

	_, err := Read[ServerConfig](strings.NewReader("[gc]\ninterval = \"soon\"\n"))
	if err == nil {
		t.Error("Read() with bad duration succeeded")
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "missing root", mutate: func(c *Config) { c.RootDir = "" }, wantErr: true},
		{name: "tiny chunks", mutate: func(c *Config) { c.ExpectedChunkSize = 10 }, wantErr: true},
		{name: "encrypt without key path", mutate: func(c *Config) {
			c.Transform.Encrypt = true
			c.Transform.KeyPath = ""
		}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := NewConfig("/base", "/root")
			tt.mutate(c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInit(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := NewConfig("/base", "/root")
	if err := Init(path, cfg); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config mode = %v, want 0600", info.Mode().Perm())
	}

	got, err := ReadFromFile[Config](path)
	if err != nil {
		t.Fatalf("ReadFromFile() error = %v", err)
	}
	if got.ServerURL != cfg.ServerURL {
		t.Errorf("ServerURL = %q, want %q", got.ServerURL, cfg.ServerURL)
	}

	if err := Init(path, cfg); err == nil {
		t.Error("second Init() succeeded, want error")
	}
}
