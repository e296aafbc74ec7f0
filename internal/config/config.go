package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type APIKey struct {
	Name string `yaml:"name"`
	Key  string `yaml:"key"`
	Role string `yaml:"role"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	SQLitePath      string        `yaml:"sqlite_path"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
}

type FreeSWITCHConfig struct {
	ConfigRoot  string `yaml:"config_root"`
	SyncOnStart bool   `yaml:"sync_on_start"`

	ReloadProbe       []string      `yaml:"reload_probe"`
	ReloadCommands    [][]string    `yaml:"reload_commands"`
	ReloadTimeout     time.Duration `yaml:"reload_timeout"`
	ReloadMinInterval time.Duration `yaml:"reload_min_interval"`
	BreakerFailures   uint32        `yaml:"breaker_failures"`
	BreakerCooldown   time.Duration `yaml:"breaker_cooldown"`
}

type HTTPConfig struct {
	CORSOrigins []string `yaml:"cors_origins"`
	// SyncRateLimit caps manual sync/test calls per client IP per minute.
	SyncRateLimit   int           `yaml:"sync_rate_limit"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Config struct {
	ListenAddr  string           `yaml:"listen_addr"`
	XMLCurlUser string           `yaml:"xmlcurl_basic_user"`
	XMLCurlPass string           `yaml:"xmlcurl_basic_pass"`
	APIKeys     []APIKey         `yaml:"api_keys"`
	LogLevel    string           `yaml:"log_level"`
	LogFormat   string           `yaml:"log_format"`
	Database    DatabaseConfig   `yaml:"database"`
	FreeSWITCH  FreeSWITCHConfig `yaml:"freeswitch"`
	HTTP        HTTPConfig       `yaml:"http"`
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const envPrefix = "PBXADMIN_"

const (
	defaultListenAddr      = ":8080"
	defaultLogLevel        = "info"
	defaultLogFormat       = "text"
	defaultSQLitePath      = "./data/pbx-admin.db"
	defaultConfigRoot      = "/etc/freeswitch"
	defaultSyncRateLimit   = 10
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// Load reads the YAML file at path, applies defaults and PBXADMIN_*
// environment overrides, and validates the result. An empty path skips the
// file.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	var cfg Config

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = defaultLogFormat
	}
	if c.Database.Driver == "" {
		if c.Database.DSN != "" {
			c.Database.Driver = DriverPostgres
		} else {
			c.Database.Driver = DriverSQLite
		}
	}
	if c.Database.Driver == DriverSQLite && c.Database.SQLitePath == "" {
		c.Database.SQLitePath = defaultSQLitePath
	}
	if c.FreeSWITCH.ConfigRoot == "" {
		c.FreeSWITCH.ConfigRoot = defaultConfigRoot
	}
	if c.HTTP.SyncRateLimit == 0 {
		c.HTTP.SyncRateLimit = defaultSyncRateLimit
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = defaultReadTimeout
	}
	// Writes wait on reload commands.
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = defaultWriteTimeout
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = defaultShutdownTimeout
	}
}

// applyEnv overrides file values with PBXADMIN_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*dst = splitList(v)
		}
	}
	var errs []error
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	str("LISTEN_ADDR", &c.ListenAddr)
	str("XMLCURL_USER", &c.XMLCurlUser)
	str("XMLCURL_PASS", &c.XMLCurlPass)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("DB_DRIVER", &c.Database.Driver)
	str("DB_DSN", &c.Database.DSN)
	str("SQLITE_PATH", &c.Database.SQLitePath)
	str("FS_CONFIG_ROOT", &c.FreeSWITCH.ConfigRoot)
	boolean("FS_SYNC_ON_START", &c.FreeSWITCH.SyncOnStart)
	dur("FS_RELOAD_TIMEOUT", &c.FreeSWITCH.ReloadTimeout)
	dur("FS_RELOAD_MIN_INTERVAL", &c.FreeSWITCH.ReloadMinInterval)
	list("CORS_ORIGINS", &c.HTTP.CORSOrigins)

	if v, ok := lookup(envPrefix + "API_KEY"); ok && v != "" {
		c.APIKeys = append(c.APIKeys, APIKey{Name: "env", Key: v, Role: "admin"})
	}
	return errors.Join(errs...)
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for the postgres driver")
		}
	case DriverSQLite:
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log_format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	if filepath.Clean(c.FreeSWITCH.ConfigRoot) == string(filepath.Separator) {
		return errors.New("freeswitch.config_root must not be the filesystem root")
	}
	for i, cmd := range c.FreeSWITCH.ReloadCommands {
		if len(cmd) == 0 || cmd[0] == "" {
			return fmt.Errorf("freeswitch.reload_commands[%d] is empty", i)
		}
	}
	if c.FreeSWITCH.ReloadTimeout < 0 || c.FreeSWITCH.ReloadMinInterval < 0 {
		return errors.New("freeswitch reload durations must not be negative")
	}
	if c.HTTP.SyncRateLimit < 0 {
		return fmt.Errorf("http.sync_rate_limit must not be negative, got %d", c.HTTP.SyncRateLimit)
	}

	if (c.XMLCurlUser == "") != (c.XMLCurlPass == "") {
		return errors.New("xmlcurl_basic_user and xmlcurl_basic_pass must both be set or both be omitted")
	}
	for i, k := range c.APIKeys {
		if k.Key == "" {
			return fmt.Errorf("api_keys[%d] (%s) has an empty key", i, k.Name)
		}
	}
	return nil
}

// SlogHandler returns a text or JSON handler at the configured level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
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

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
