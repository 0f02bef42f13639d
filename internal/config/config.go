// Package config holds the YAML-driven configuration tree for the
// server: listener addresses, cache/xtea paths, the tick duration and
// per-category quotas, and logging. Values default sensibly so the
// server runs against a fixture cache directory without a config file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rt4serv/rt4serv/internal/netsession"
)

// Server holds the four listener addresses and the world loop's
// tuning knobs.
type Server struct {
	ProxyAddr     string `yaml:"proxy_addr"`
	JS5Addr       string `yaml:"js5_addr"`
	WorldlistAddr string `yaml:"worldlist_addr"`
	LoginAddr     string `yaml:"login_addr"`

	TickMillis int `yaml:"tick_millis"`

	Quotas Quotas `yaml:"quotas"`
}

// Quotas mirrors netsession.Quotas for YAML decoding.
type Quotas struct {
	ClientEvent     int `yaml:"client_event"`
	UserEvent       int `yaml:"user_event"`
	RestrictedEvent int `yaml:"restricted_event"`
}

func (q Quotas) toNetsession() netsession.Quotas {
	return netsession.Quotas{
		ClientEvent:     q.ClientEvent,
		UserEvent:       q.UserEvent,
		RestrictedEvent: q.RestrictedEvent,
	}
}

// Cache holds the on-disk paths for the JS5 cache store and the XTEA
// key table.
type Cache struct {
	Directory    string `yaml:"directory"`
	XTEAKeysPath string `yaml:"xtea_keys_path"`
}

// Log holds the structured-logging configuration.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// Config is the top-level configuration document.
type Config struct {
	Server Server `yaml:"server"`
	Cache  Cache  `yaml:"cache"`
	Log    Log    `yaml:"log"`
}

// DefaultTickFallback is used when no tick duration is configured.
const DefaultTickFallback = 600 * time.Millisecond

// TickDuration returns the configured tick as a time.Duration.
func (c Config) TickDuration() time.Duration {
	if c.Server.TickMillis <= 0 {
		return DefaultTickFallback
	}
	return time.Duration(c.Server.TickMillis) * time.Millisecond
}

// QuotasValue returns the configured per-tick category quotas in
// netsession's type.
func (c Config) QuotasValue() netsession.Quotas {
	return c.Server.Quotas.toNetsession()
}

// Default returns a Config with sensible out-of-the-box values.
func Default() Config {
	return Config{
		Server: Server{
			ProxyAddr:     ":40000",
			JS5Addr:       ":8001",
			WorldlistAddr: ":8002",
			LoginAddr:     ":40001",
			TickMillis:    600,
			Quotas: Quotas{
				ClientEvent:     netsession.DefaultQuotas.ClientEvent,
				UserEvent:       netsession.DefaultQuotas.UserEvent,
				RestrictedEvent: netsession.DefaultQuotas.RestrictedEvent,
			},
		},
		Cache: Cache{
			Directory:    "./data/cache",
			XTEAKeysPath: "./data/xtea_keys.json",
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML document from path and overlays it onto Default().
// A missing file is not an error; the defaults are returned as-is.
// A handful of fields can additionally be overridden by environment
// variables, for operators who need to flip a value without editing
// the file.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return applyEnvOverrides(cfg), nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return applyEnvOverrides(cfg), nil
}

func applyEnvOverrides(cfg Config) Config {
	if v := os.Getenv("RT4SERV_PROXY_ADDR"); v != "" {
		cfg.Server.ProxyAddr = v
	}
	if v := os.Getenv("RT4SERV_JS5_ADDR"); v != "" {
		cfg.Server.JS5Addr = v
	}
	if v := os.Getenv("RT4SERV_WORLDLIST_ADDR"); v != "" {
		cfg.Server.WorldlistAddr = v
	}
	if v := os.Getenv("RT4SERV_LOGIN_ADDR"); v != "" {
		cfg.Server.LoginAddr = v
	}
	if v := os.Getenv("RT4SERV_CACHE_DIR"); v != "" {
		cfg.Cache.Directory = v
	}
	if v := os.Getenv("RT4SERV_XTEA_KEYS_PATH"); v != "" {
		cfg.Cache.XTEAKeysPath = v
	}
	if v := os.Getenv("RT4SERV_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("RT4SERV_TICK_MILLIS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Server.TickMillis = n
		}
	}
	return cfg
}

// ParseLogLevel maps the config's level string to a slog.Level,
// defaulting to Info on anything unrecognized.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
