package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv("XSYNC_CONFIG_PATH", "/custom/config.toml")
		t.Setenv("XSYNC_HOME", "/custom/xsync")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		want := map[string]string{
			"config_path": "/custom/config.toml",
			"base_dir":    "/custom/xsync",
			"log_dir":     "/custom/xsync/log",
			"cache_dir":   "/custom/xsync/cache",
		}
		for k, v := range want {
			if defaults[k] != v {
				t.Errorf("%s = %q, want %q", k, defaults[k], v)
			}
		}
	})

	t.Run("config follows home", func(t *testing.T) {
		t.Setenv("XSYNC_CONFIG_PATH", "")
		t.Setenv("XSYNC_HOME", "/srv/xs")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}
		if defaults["config_path"] != "/srv/xs/config.toml" {
			t.Errorf("config_path = %q", defaults["config_path"])
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv("XSYNC_CONFIG_PATH", "")
		t.Setenv("XSYNC_HOME", "")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()
		wantBase := filepath.Join(homeDir, ".xsync")
		if defaults["base_dir"] != wantBase {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], wantBase)
		}
		if want := filepath.Join(wantBase, "config.toml"); defaults["config_path"] != want {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], want)
		}
	})
}

func TestGetServerDefaults(t *testing.T) {
	t.Setenv("XSYNCD_CONFIG_PATH", "")
	t.Setenv("XSYNCD_HOME", "/var/lib/xsyncd")

	defaults, err := GetServerDefaults()
	if err != nil {
		t.Fatalf("GetServerDefaults() error = %v", err)
	}
	if defaults["config_path"] != "/var/lib/xsyncd/xsyncd.toml" {
		t.Errorf("config_path = %q", defaults["config_path"])
	}
	if defaults["log_dir"] != "/var/lib/xsyncd/log" {
		t.Errorf("log_dir = %q", defaults["log_dir"])
	}
}
