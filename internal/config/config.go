package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	API      APIConfig      `koanf:"api"`
	Grid     GridConfig     `koanf:"grid"`
	Session  SessionConfig  `koanf:"session"`
	MockAPI  MockAPIConfig  `koanf:"mockapi"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

// ServerConfig holds settings for the console HTTP server.
type ServerConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	Mode       string `koanf:"mode"`
	CSRFSecret string `koanf:"csrf_secret"`
	Timeout    string `koanf:"timeout"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `koanf:"driver"`
	SQLite   SQLiteConfig   `koanf:"sqlite"`
	Postgres PostgresConfig `koanf:"postgres"`
	Pool     PoolConfig     `koanf:"pool"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	DBName   string `koanf:"dbname"`
	SSLMode  string `koanf:"sslmode"`
}

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxIdleConns    int    `koanf:"max_idle_conns"`
	MaxOpenConns    int    `koanf:"max_open_conns"`
	ConnMaxLifetime string `koanf:"conn_max_lifetime"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level           string `koanf:"level"`
	Format          string `koanf:"format"`
	Color           *bool  `koanf:"color"`
	FilePath        string `koanf:"file_path"`
	MaxSizeMB       int    `koanf:"max_size_mb"`
	RetentionDays   int    `koanf:"retention_days"`
	MaxBackups      int    `koanf:"max_backups"`
	CompressRotated *bool  `koanf:"compress_rotated"`
}

// APIConfig describes the remote REST API the console talks to.
type APIConfig struct {
	BaseURL            string `koanf:"base_url"`
	Timeout            string `koanf:"timeout"`
	RefetchAfterDelete *bool  `koanf:"refetch_after_delete"`
}

// GridConfig holds list view defaults.
type GridConfig struct {
	DefaultPageSize int   `koanf:"default_page_size"`
	PageSizeOptions []int `koanf:"page_size_options"`
}

// SessionConfig holds settings for the persisted access token.
type SessionConfig struct {
	StorageKey   string `koanf:"storage_key"`
	RefreshAhead string `koanf:"refresh_ahead"`
}

// MockAPIConfig holds settings for the demo REST backend.
type MockAPIConfig struct {
	Host         string   `koanf:"host"`
	Port         int      `koanf:"port"`
	JWTSecret    string   `koanf:"jwt_secret"`
	TokenExpiry  string   `koanf:"token_expiry"`
	AvatarDir    string   `koanf:"avatar_dir"`
	Seed         bool     `koanf:"seed"`
	AllowOrigins []string `koanf:"allow_origins"`
}

// MetricsConfig controls the Prometheus endpoint of the console.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// Defaults applied by Validate when a value is left unset.
const (
	DefaultAPITimeout      = "15s"
	DefaultPageSize        = 10
	DefaultStorageKey      = "access_token"
	DefaultRefreshAhead    = "5m"
	DefaultMetricsPath     = "/metrics"
	DefaultMockTokenExpiry = "24h"
)

// DefaultPageSizeOptions are the page sizes offered by list views.
var DefaultPageSizeOptions = []int{5, 10, 25}

// Load reads configuration from a YAML file and overlays environment variables.
// Environment variables use the prefix "APP__" and double-underscore as the
// hierarchy separator. Single underscores are preserved as part of the key name.
// For example, APP__SERVER__PORT=9090 overrides server.port and
// APP__API__BASE_URL=http://api overrides api.base_url.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
	}

	// APP__SERVER__PORT -> server.port
	// APP__DATABASE__POOL__MAX_IDLE_CONNS -> database.pool.max_idle_conns
	if err := k.Load(env.Provider("APP__", ".", func(s string) string {
		key := strings.TrimPrefix(s, "APP__")
		key = strings.ToLower(key)
		key = strings.ReplaceAll(key, "__", ".")
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints and supported values, and fills in
// defaults for optional settings.
func (c *Config) Validate() error {
	mode := strings.TrimSpace(c.Server.Mode)
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		c.Server.Mode = mode
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", c.Server.Mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", c.Server.Port)
	}

	host := strings.TrimSpace(c.Server.Host)
	if host == "" {
		return fmt.Errorf("server.host is required")
	}
	c.Server.Host = host

	if err := c.validateDatabase(); err != nil {
		return err
	}

	c.Server.Timeout = strings.TrimSpace(c.Server.Timeout)
	c.Database.Pool.ConnMaxLifetime = strings.TrimSpace(c.Database.Pool.ConnMaxLifetime)

	if err := validateOptionalDuration("server.timeout", c.Server.Timeout); err != nil {
		return err
	}
	if err := validateOptionalDuration("database.pool.conn_max_lifetime", c.Database.Pool.ConnMaxLifetime); err != nil {
		return err
	}

	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateGrid(); err != nil {
		return err
	}
	if err := c.validateSession(); err != nil {
		return err
	}
	if err := c.validateMockAPI(); err != nil {
		return err
	}

	if c.Metrics.Enabled {
		p := strings.TrimSpace(c.Metrics.Path)
		if p == "" {
			p = DefaultMetricsPath
		}
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("invalid metrics.path %q: must start with '/'", c.Metrics.Path)
		}
		c.Metrics.Path = p
	}

	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Log.Level = level
	default:
		return fmt.Errorf("invalid log.level %q: must be one of %q, %q, %q, %q", c.Log.Level, "debug", "info", "warn", "error")
	}

	format := strings.ToLower(strings.TrimSpace(c.Log.Format))
	switch format {
	case "text", "json":
		c.Log.Format = format
	default:
		return fmt.Errorf("invalid log.format %q: must be one of %q, %q", c.Log.Format, "text", "json")
	}

	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid database.driver %q: must be one of %q, %q", c.Database.Driver, "sqlite", "postgres")
	}

	if c.Database.Driver == "sqlite" {
		sqlitePath := strings.TrimSpace(c.Database.SQLite.Path)
		if sqlitePath == "" {
			return fmt.Errorf("database.sqlite.path is required when driver is sqlite")
		}
		c.Database.SQLite.Path = sqlitePath
		return nil
	}

	pg := &c.Database.Postgres
	host := strings.TrimSpace(pg.Host)
	if host == "" {
		return fmt.Errorf("database.postgres.host is required when driver is postgres")
	}
	if pg.Port < 1 || pg.Port > 65535 {
		return fmt.Errorf("invalid database.postgres.port %d: must be between 1 and 65535", pg.Port)
	}
	user := strings.TrimSpace(pg.User)
	if user == "" {
		return fmt.Errorf("database.postgres.user is required when driver is postgres")
	}
	dbName := strings.TrimSpace(pg.DBName)
	if dbName == "" {
		return fmt.Errorf("database.postgres.dbname is required when driver is postgres")
	}
	sslMode := strings.TrimSpace(pg.SSLMode)
	switch sslMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return fmt.Errorf("invalid database.postgres.sslmode %q: must be one of %q, %q, %q, %q, %q, %q", pg.SSLMode, "disable", "allow", "prefer", "require", "verify-ca", "verify-full")
	}
	if c.Server.Mode == gin.ReleaseMode {
		switch sslMode {
		case "require", "verify-ca", "verify-full":
		default:
			return fmt.Errorf("invalid database.postgres.sslmode %q for server.mode %q: must be one of %q, %q, %q", pg.SSLMode, gin.ReleaseMode, "require", "verify-ca", "verify-full")
		}
	}

	pg.Host = host
	pg.User = user
	pg.DBName = dbName
	pg.SSLMode = sslMode
	return nil
}

func (c *Config) validateAPI() error {
	base := strings.TrimSpace(c.API.BaseURL)
	if base == "" {
		return fmt.Errorf("api.base_url is required")
	}
	u, err := url.Parse(base)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid api.base_url %q: must be an absolute http(s) URL", c.API.BaseURL)
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	c.API.BaseURL = base

	c.API.Timeout = strings.TrimSpace(c.API.Timeout)
	if c.API.Timeout == "" {
		c.API.Timeout = DefaultAPITimeout
	}
	if err := validateOptionalDuration("api.timeout", c.API.Timeout); err != nil {
		return err
	}
	if c.API.RefetchAfterDelete == nil {
		refetch := true
		c.API.RefetchAfterDelete = &refetch
	}
	return nil
}

func (c *Config) validateGrid() error {
	if len(c.Grid.PageSizeOptions) == 0 {
		c.Grid.PageSizeOptions = slices.Clone(DefaultPageSizeOptions)
	}
	for idx, size := range c.Grid.PageSizeOptions {
		if size <= 0 {
			return fmt.Errorf("invalid grid.page_size_options[%d] %d: must be positive", idx, size)
		}
	}
	slices.Sort(c.Grid.PageSizeOptions)
	c.Grid.PageSizeOptions = slices.Compact(c.Grid.PageSizeOptions)

	if c.Grid.DefaultPageSize == 0 {
		c.Grid.DefaultPageSize = DefaultPageSize
	}
	if !slices.Contains(c.Grid.PageSizeOptions, c.Grid.DefaultPageSize) {
		return fmt.Errorf("invalid grid.default_page_size %d: must be one of grid.page_size_options %v", c.Grid.DefaultPageSize, c.Grid.PageSizeOptions)
	}
	return nil
}

func (c *Config) validateSession() error {
	c.Session.StorageKey = strings.TrimSpace(c.Session.StorageKey)
	if c.Session.StorageKey == "" {
		c.Session.StorageKey = DefaultStorageKey
	}
	c.Session.RefreshAhead = strings.TrimSpace(c.Session.RefreshAhead)
	if c.Session.RefreshAhead == "" {
		c.Session.RefreshAhead = DefaultRefreshAhead
	}
	return validateOptionalDuration("session.refresh_ahead", c.Session.RefreshAhead)
}

// validateMockAPI only checks the demo backend settings when a port is set;
// the console does not need them.
func (c *Config) validateMockAPI() error {
	m := &c.MockAPI
	if m.Port == 0 {
		return nil
	}
	if m.Port < 1 || m.Port > 65535 {
		return fmt.Errorf("invalid mockapi.port %d: must be between 1 and 65535", m.Port)
	}
	m.Host = strings.TrimSpace(m.Host)
	if m.Host == "" {
		return fmt.Errorf("mockapi.host is required when mockapi.port is set")
	}

	secret := strings.TrimSpace(m.JWTSecret)
	if len(secret) < 32 {
		return fmt.Errorf("invalid mockapi.jwt_secret: must be at least 32 characters")
	}
	if c.Server.Mode == gin.ReleaseMode && CountSecretClasses(secret) < 3 {
		return fmt.Errorf("mockapi.jwt_secret must include at least 3 character classes (lowercase, uppercase, digit, symbol) in release mode")
	}
	m.JWTSecret = secret

	m.TokenExpiry = strings.TrimSpace(m.TokenExpiry)
	if m.TokenExpiry == "" {
		m.TokenExpiry = DefaultMockTokenExpiry
	}
	if err := validateOptionalDuration("mockapi.token_expiry", m.TokenExpiry); err != nil {
		return err
	}
	m.AvatarDir = strings.TrimSpace(m.AvatarDir)
	return nil
}

// validateOptionalDuration accepts an empty value; anything else must parse
// as a positive Go duration.
func validateOptionalDuration(name, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if d <= 0 {
		return fmt.Errorf("invalid %s %q: must be greater than 0", name, value)
	}
	return nil
}

// MustDuration parses a duration that Validate has already checked. An empty
// value yields fallback.
func MustDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// CountSecretClasses counts how many character classes (lowercase, uppercase,
// digit, symbol) are present in the given secret string.
func CountSecretClasses(secret string) int {
	hasLower := false
	hasUpper := false
	hasDigit := false
	hasSymbol := false

	for _, r := range secret {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}

	classes := 0
	for _, ok := range []bool{hasLower, hasUpper, hasDigit, hasSymbol} {
		if ok {
			classes++
		}
	}
	return classes
}
