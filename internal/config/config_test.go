package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault_Sane(t *testing.T) {
	cfg := Default()
	if cfg.Server.HTTPPort == 0 || cfg.Server.TCPPort == 0 {
		t.Fatalf("default ports must be non-zero: %+v", cfg.Server)
	}
	if cfg.Server.NumShards <= 0 {
		t.Fatalf("default shard count must be positive, got %d", cfg.Server.NumShards)
	}
}

func TestReadOrInit_WritesDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tagcache.toml")

	cfg, err := readOrInit(path)
	if err != nil {
		t.Fatalf("readOrInit: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("readOrInit with missing file must return Default(), got %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("readOrInit must write the config file out: %v", err)
	}
}

func TestReadOrInit_ReadsExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tagcache.toml")
	if err := os.WriteFile(path, []byte("[server]\nhttp_port = 9090\n"), 0o644); err != nil {
		t.Fatalf("seeding config file: %v", err)
	}

	cfg, err := readOrInit(path)
	if err != nil {
		t.Fatalf("readOrInit: %v", err)
	}
	if cfg.Server.HTTPPort != 9090 {
		t.Fatalf("want http_port 9090 from file, got %d", cfg.Server.HTTPPort)
	}
	// Unset fields fall back to defaults rather than zero values.
	if cfg.Server.TCPPort != Default().Server.TCPPort {
		t.Fatalf("unset tcp_port should keep the default, got %d", cfg.Server.TCPPort)
	}
}

func TestFetch_PrimaryThenLegacy(t *testing.T) {
	const primary, legacy = "TESTCFG_PRIMARY", "TESTCFG_LEGACY"
	os.Unsetenv(primary)
	os.Unsetenv(legacy)

	if _, ok := fetch(primary, legacy); ok {
		t.Fatalf("fetch must report false when neither var is set")
	}

	os.Setenv(legacy, "from-legacy")
	defer os.Unsetenv(legacy)
	if v, ok := fetch(primary, legacy); !ok || v != "from-legacy" {
		t.Fatalf("fetch must fall back to legacy, got %q ok=%v", v, ok)
	}

	os.Setenv(primary, "from-primary")
	defer os.Unsetenv(primary)
	if v, ok := fetch(primary, legacy); !ok || v != "from-primary" {
		t.Fatalf("fetch must prefer primary over legacy, got %q ok=%v", v, ok)
	}
}

func TestApplyEnv_Overrides(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		assert func(t *testing.T, cfg Config)
	}{
		{
			name: "http port via primary name",
			env:  map[string]string{"PORT": "7000"},
			assert: func(t *testing.T, cfg Config) {
				if cfg.Server.HTTPPort != 7000 {
					t.Fatalf("want http_port 7000, got %d", cfg.Server.HTTPPort)
				}
			},
		},
		{
			name: "http port via legacy name",
			env:  map[string]string{"TC_HTTP_PORT": "7001"},
			assert: func(t *testing.T, cfg Config) {
				if cfg.Server.HTTPPort != 7001 {
					t.Fatalf("want http_port 7001, got %d", cfg.Server.HTTPPort)
				}
			},
		},
		{
			name: "cleanup interval in milliseconds rounds up to whole seconds",
			env:  map[string]string{"CLEANUP_INTERVAL_MS": "1500"},
			assert: func(t *testing.T, cfg Config) {
				if cfg.Server.CleanupIntervalSecond != 2 {
					t.Fatalf("want cleanup interval 2s from 1500ms, got %d", cfg.Server.CleanupIntervalSecond)
				}
			},
		},
		{
			name: "cleanup interval in seconds",
			env:  map[string]string{"CLEANUP_INTERVAL_SECONDS": "45"},
			assert: func(t *testing.T, cfg Config) {
				if cfg.Server.CleanupIntervalSecond != 45 {
					t.Fatalf("want cleanup interval 45s, got %d", cfg.Server.CleanupIntervalSecond)
				}
			},
		},
		{
			name: "credentials",
			env:  map[string]string{"TAGCACHE_USERNAME": "alice", "TAGCACHE_PASSWORD": "hunter2"},
			assert: func(t *testing.T, cfg Config) {
				if cfg.Authentication.Username != "alice" || cfg.Authentication.Password != "hunter2" {
					t.Fatalf("credentials override failed: %+v", cfg.Authentication)
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				os.Setenv(k, v)
				defer os.Unsetenv(k)
			}
			cfg := Default()
			applyEnv(&cfg)
			tc.assert(t, cfg)
		})
	}
}
