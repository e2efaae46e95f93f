// Package config loads tagcached's TOML configuration file and applies
// environment-variable overrides, per spec §6.3. Loading config, and the
// env-override/legacy-name fallback it implements, is explicitly scoped as
// an "external collaborator" by spec.md's Non-goals — but a deployable
// daemon needs a config loader regardless, so this package is built in the
// teacher's ambient style: a small, fully-defaulted struct plus a thin
// loader, grounded on the TOML approach XTLS/xray-core uses
// (infra/conf/serial/loader.go, github.com/pelletier/go-toml).
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/pelletier/go-toml"
)

// Server holds [server] settings.
type Server struct {
	HTTPPort              int    `toml:"http_port"`
	TCPPort               int    `toml:"tcp_port"`
	NumShards             int    `toml:"num_shards"`
	CleanupIntervalSecond int    `toml:"cleanup_interval_seconds"`
	AllowedOrigin         string `toml:"allowed_origin"`
}

// Authentication holds [authentication] settings.
type Authentication struct {
	Username           string `toml:"username"`
	Password           string `toml:"password"`
	TokenLifetimeSecond int   `toml:"token_lifetime_seconds"`
}

// CacheLimits holds [cache] settings.
type CacheLimits struct {
	DefaultTTLSeconds int `toml:"default_ttl_seconds"`
	MaxTagsPerEntry   int `toml:"max_tags_per_entry"`
	MaxKeyLength      int `toml:"max_key_length"`
	MaxValueLength    int `toml:"max_value_length"`
}

// Logging holds [logging] settings.
type Logging struct {
	Level    string `toml:"level"`
	Encoding string `toml:"encoding"`
}

// Performance holds [performance] settings. Currently advisory only; kept as
// a distinct section so operators have a stable place to tune the daemon
// without it being conflated with cache-semantics knobs.
type Performance struct {
	MaxConnections int `toml:"max_connections"`
}

// Security holds [security] settings.
type Security struct {
	RequireAuthForTCP bool `toml:"require_auth_for_tcp"`
}

// Config is the full tagcached configuration document (spec §6.3).
type Config struct {
	Server         Server         `toml:"server"`
	Authentication Authentication `toml:"authentication"`
	Cache          CacheLimits    `toml:"cache"`
	Logging        Logging        `toml:"logging"`
	Performance    Performance    `toml:"performance"`
	Security       Security       `toml:"security"`
}

// Default returns the built-in default configuration.
func Default() Config {
	return Config{
		Server: Server{
			HTTPPort:              8080,
			TCPPort:               1984,
			NumShards:             16,
			CleanupIntervalSecond: 60,
			AllowedOrigin:         "*",
		},
		Authentication: Authentication{
			Username:            "admin",
			Password:            "password",
			TokenLifetimeSecond: 3600,
		},
		Cache: CacheLimits{
			DefaultTTLSeconds: 0,
			MaxTagsPerEntry:   100,
			MaxKeyLength:      1024,
			MaxValueLength:    1 << 20,
		},
		Logging: Logging{
			Level:    "info",
			Encoding: "console",
		},
		Performance: Performance{
			MaxConnections: 0,
		},
		Security: Security{
			RequireAuthForTCP: false,
		},
	}
}

// confName is the default config file name, searched for in the current
// directory and then the user config directory (spec §6.3).
const confName = "tagcache.toml"

// Load resolves the config file from the search order in spec §6.3, writing
// out the defaults if nothing is found, then applies environment overrides.
// confName may be overridden by callers (e.g. tests); pass "" for the
// default name.
func Load(name string) (Config, error) {
	if name == "" {
		name = confName
	}

	path, err := resolvePath(name)
	if err != nil {
		return Config{}, err
	}

	cfg, err := readOrInit(path)
	if err != nil {
		return Config{}, err
	}

	applyEnv(&cfg)
	return cfg, nil
}

// resolvePath implements the search order: ./<name> first, then the user
// config dir. It never errors on a missing file — that is resolved by
// readOrInit, which writes out defaults.
func resolvePath(name string) (string, error) {
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		// No usable config dir (e.g. minimal container images); fall back
		// to the current directory, matching the local search path.
		return name, nil
	}
	return filepath.Join(dir, name), nil
}

// readOrInit reads path if it exists; otherwise it writes out Default() and
// returns it. A write failure is a ConfigIO condition (spec §7): the default
// config is still returned and used in-memory.
func readOrInit(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := Default()
		if out, mErr := toml.Marshal(cfg); mErr == nil {
			_ = os.MkdirAll(filepath.Dir(path), 0o755)
			_ = os.WriteFile(path, out, 0o644)
		}
		return cfg, nil
	}
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// fetch mirrors original_source main.rs's env-var closure: try primary, then
// a legacy alias, returning ("", false) if neither is set.
func fetch(primary, legacy string) (string, bool) {
	if v, ok := os.LookupEnv(primary); ok {
		return v, true
	}
	if v, ok := os.LookupEnv(legacy); ok {
		return v, true
	}
	return "", false
}

// applyEnv overlays the environment variables from spec §6.3 onto cfg.
func applyEnv(cfg *Config) {
	if v, ok := fetch("PORT", "TC_HTTP_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.HTTPPort = n
		}
	}
	if v, ok := fetch("TCP_PORT", "TC_TCP_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.TCPPort = n
		}
	}
	if v, ok := fetch("NUM_SHARDS", "TC_NUM_SHARDS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.NumShards = n
		}
	}
	if v, ok := fetch("ALLOWED_ORIGIN", "TC_ALLOWED_ORIGIN"); ok {
		cfg.Server.AllowedOrigin = v
	}
	if v, ok := fetch("TAGCACHE_USERNAME", "TC_USERNAME"); ok {
		cfg.Authentication.Username = v
	}
	if v, ok := fetch("TAGCACHE_PASSWORD", "TC_PASSWORD"); ok {
		cfg.Authentication.Password = v
	}
	// cleanup interval accepts either a millisecond or a seconds env var,
	// exactly as original_source's main.rs does.
	if v, ok := fetch("CLEANUP_INTERVAL_MS", "TC_SWEEP_INTERVAL_MS"); ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			cfg.Server.CleanupIntervalSecond = int((ms + 999) / 1000)
		}
	} else if v, ok := fetch("CLEANUP_INTERVAL_SECONDS", "CLEANUP_INTERVAL_SECS"); ok {
		if s, err := strconv.Atoi(v); err == nil {
			cfg.Server.CleanupIntervalSecond = s
		}
	}
}
