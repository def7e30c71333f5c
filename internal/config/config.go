package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/0xmhha/indexdb-go/index"
	"github.com/0xmhha/indexdb-go/internal/constants"
	"github.com/0xmhha/indexdb-go/storage"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for indexdb
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Index    IndexConfig    `yaml:"index"`
	API      APIConfig      `yaml:"api"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	// Backend is the storage engine: "pebble", "leveldb" or "memory"
	Backend      string `yaml:"backend"`
	Path         string `yaml:"path"`
	Cache        int    `yaml:"cache"`
	MaxOpenFiles int    `yaml:"max_open_files"`
	WriteBuffer  int    `yaml:"write_buffer"`
	ReadOnly     bool   `yaml:"readonly"`
	// DisableWAL skips syncing commits to disk
	DisableWAL bool `yaml:"disable_wal"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// IndexConfig holds account transaction index configuration
type IndexConfig struct {
	Namespace string `yaml:"namespace"`
	// PositionPolicy is one of append, strict or overwrite
	PositionPolicy string `yaml:"position_policy"`
	// PageLimit caps the number of items returned per page
	PageLimit int `yaml:"page_limit"`
}

// APIConfig holds API server configuration
type APIConfig struct {
	Enabled            bool          `yaml:"enabled"`
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	ReadTimeout        time.Duration `yaml:"read_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	IdleTimeout        time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
	EnableGraphQL      bool          `yaml:"enable_graphql"`
	EnableCORS         bool          `yaml:"enable_cors"`
	AllowedOrigins     []string      `yaml:"allowed_origins"`
	EnableRateLimit    bool          `yaml:"enable_rate_limit"`
	RateLimitPerSecond float64       `yaml:"rate_limit_per_second"`
	RateLimitBurst     int           `yaml:"rate_limit_burst"`
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	cfg := switchDefaults()
	cfg.SetDefaults()
	return cfg
}

// switchDefaults returns a Config with the on-by-default switches set.
// false is a valid setting for them, so they are seeded before any source is read.
func switchDefaults() *Config {
	return &Config{
		API: APIConfig{
			EnableGraphQL: true,
			EnableCORS:    true,
		},
	}
}

// SetDefaults sets default values for any unset field
func (c *Config) SetDefaults() {
	if c.Database.Backend == "" {
		c.Database.Backend = constants.DefaultBackend
	}
	if c.Database.Path == "" && c.Database.Backend != string(storage.BackendTypeMemory) {
		c.Database.Path = constants.DefaultDBPath
	}
	if c.Database.Cache == 0 {
		c.Database.Cache = constants.DefaultCacheSize
	}
	if c.Database.MaxOpenFiles == 0 {
		c.Database.MaxOpenFiles = constants.DefaultMaxOpenFiles
	}
	if c.Database.WriteBuffer == 0 {
		c.Database.WriteBuffer = constants.DefaultWriteBuffer
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	if c.Index.Namespace == "" {
		c.Index.Namespace = constants.DefaultNamespace
	}
	if c.Index.PositionPolicy == "" {
		c.Index.PositionPolicy = string(index.PositionsAppend)
	}
	if c.Index.PageLimit == 0 {
		c.Index.PageLimit = constants.DefaultMaxPaginationLimit
	}

	if c.API.Host == "" {
		c.API.Host = constants.DefaultAPIHost
	}
	if c.API.Port == 0 {
		c.API.Port = constants.DefaultAPIPort
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = constants.DefaultReadTimeout
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = constants.DefaultWriteTimeout
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = constants.DefaultIdleTimeout
	}
	if c.API.ShutdownTimeout == 0 {
		c.API.ShutdownTimeout = constants.DefaultShutdownTimeout
	}
	if c.API.AllowedOrigins == nil {
		c.API.AllowedOrigins = []string{"*"}
	}
	if c.API.RateLimitPerSecond == 0 {
		c.API.RateLimitPerSecond = constants.DefaultRateLimitPerSecond
	}
	if c.API.RateLimitBurst == 0 {
		c.API.RateLimitBurst = constants.DefaultRateLimitBurst
	}
}

// envString applies INDEXDB_{name} to dst when set
func envString(name string, dst *string) {
	if v := os.Getenv(constants.EnvPrefix + name); v != "" {
		*dst = v
	}
}

// envBool applies INDEXDB_{name} to dst when set
func envBool(name string, dst *bool) error {
	v := os.Getenv(constants.EnvPrefix + name)
	if v == "" {
		return nil
	}
	val, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", constants.EnvPrefix, name, err)
	}
	*dst = val
	return nil
}

// envInt applies INDEXDB_{name} to dst when set
func envInt(name string, dst *int) error {
	v := os.Getenv(constants.EnvPrefix + name)
	if v == "" {
		return nil
	}
	val, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", constants.EnvPrefix, name, err)
	}
	*dst = val
	return nil
}

// envDuration applies INDEXDB_{name} to dst when set
func envDuration(name string, dst *time.Duration) error {
	v := os.Getenv(constants.EnvPrefix + name)
	if v == "" {
		return nil
	}
	val, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", constants.EnvPrefix, name, err)
	}
	*dst = val
	return nil
}

// LoadFromEnv overrides configuration from INDEXDB_* environment variables
func (c *Config) LoadFromEnv() error {
	// Database
	envString("DB_BACKEND", &c.Database.Backend)
	envString("DB_PATH", &c.Database.Path)
	if err := envInt("DB_CACHE", &c.Database.Cache); err != nil {
		return err
	}
	if err := envBool("DB_READONLY", &c.Database.ReadOnly); err != nil {
		return err
	}
	if err := envBool("DB_DISABLE_WAL", &c.Database.DisableWAL); err != nil {
		return err
	}

	// Log
	envString("LOG_LEVEL", &c.Log.Level)
	envString("LOG_FORMAT", &c.Log.Format)

	// Index
	envString("INDEX_NAMESPACE", &c.Index.Namespace)
	envString("INDEX_POSITION_POLICY", &c.Index.PositionPolicy)
	if err := envInt("INDEX_PAGE_LIMIT", &c.Index.PageLimit); err != nil {
		return err
	}

	// API
	if err := envBool("API_ENABLED", &c.API.Enabled); err != nil {
		return err
	}
	envString("API_HOST", &c.API.Host)
	if err := envInt("API_PORT", &c.API.Port); err != nil {
		return err
	}
	if err := envDuration("API_READ_TIMEOUT", &c.API.ReadTimeout); err != nil {
		return err
	}
	if err := envDuration("API_WRITE_TIMEOUT", &c.API.WriteTimeout); err != nil {
		return err
	}
	if err := envBool("API_GRAPHQL", &c.API.EnableGraphQL); err != nil {
		return err
	}
	if err := envBool("API_CORS_ENABLED", &c.API.EnableCORS); err != nil {
		return err
	}
	if allowedOrigins := os.Getenv(constants.EnvPrefix + "API_CORS_ALLOWED_ORIGINS"); allowedOrigins != "" {
		origins := make([]string, 0)
		for _, origin := range strings.Split(allowedOrigins, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				origins = append(origins, origin)
			}
		}
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		c.API.AllowedOrigins = origins
	}
	if err := envBool("API_RATE_LIMIT_ENABLED", &c.API.EnableRateLimit); err != nil {
		return err
	}
	if err := envInt("API_RATE_LIMIT_BURST", &c.API.RateLimitBurst); err != nil {
		return err
	}
	if v := os.Getenv(constants.EnvPrefix + "API_RATE_LIMIT_PER_SECOND"); v != "" {
		val, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %sAPI_RATE_LIMIT_PER_SECOND: %w", constants.EnvPrefix, err)
		}
		c.API.RateLimitPerSecond = val
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate database configuration
	backendType := storage.BackendType(c.Database.Backend)
	if !storage.HasBackend(backendType) {
		return fmt.Errorf("invalid database backend %q, must be one of: %v", c.Database.Backend, storage.SupportedBackends())
	}
	if err := c.Database.BackendConfig().Validate(); err != nil {
		return fmt.Errorf("invalid database configuration: %w", err)
	}

	// Validate log configuration
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}

	validLogFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, console", c.Log.Format)
	}

	// Validate index configuration
	if err := index.ValidateNamespace(c.Index.Namespace); err != nil {
		return err
	}
	if err := index.PositionPolicy(c.Index.PositionPolicy).Validate(); err != nil {
		return err
	}
	if c.Index.PageLimit < constants.MinPaginationLimit || c.Index.PageLimit > constants.MaxPaginationLimitExtended {
		return fmt.Errorf("page limit must be between %d and %d", constants.MinPaginationLimit, constants.MaxPaginationLimitExtended)
	}

	// Validate API configuration
	if c.API.Enabled {
		if c.API.Port < constants.MinPort || c.API.Port > constants.MaxPort {
			return fmt.Errorf("invalid API port %d", c.API.Port)
		}
		if c.API.ReadTimeout <= 0 || c.API.WriteTimeout <= 0 {
			return fmt.Errorf("API timeouts must be positive")
		}
		if c.API.EnableRateLimit && (c.API.RateLimitPerSecond <= 0 || c.API.RateLimitBurst <= 0) {
			return fmt.Errorf("rate limit and burst must be positive")
		}
	}

	return nil
}

// BackendConfig converts the database section into a storage backend configuration
func (c *DatabaseConfig) BackendConfig() *storage.BackendConfig {
	return &storage.BackendConfig{
		Type:         storage.BackendType(c.Backend),
		Path:         c.Path,
		Cache:        c.Cache,
		MaxOpenFiles: c.MaxOpenFiles,
		WriteBuffer:  c.WriteBuffer,
		ReadOnly:     c.ReadOnly,
		DisableWAL:   c.DisableWAL,
	}
}

// AccountTxConfig converts the index section into an index configuration
func (c *IndexConfig) AccountTxConfig() *index.AccountTxConfig {
	return &index.AccountTxConfig{
		Namespace: c.Namespace,
		Positions: index.PositionPolicy(c.PositionPolicy),
	}
}

// Load is a convenience method that loads configuration in the following order:
// 1. Load from file (if provided)
// 2. Load from environment variables (override file)
// 3. Set defaults for anything still unset
// 4. Validate
func Load(configFile string) (*Config, error) {
	cfg := switchDefaults()

	// Load from file if provided
	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Load from environment variables (override file)
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Set defaults for any missing values
	cfg.SetDefaults()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
