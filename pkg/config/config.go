package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the extraction service
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	HTTP      HTTPConfig      `yaml:"http" json:"http"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	Cookie    CookieConfig    `yaml:"cookie" json:"cookie"`
	Store     StoreConfig     `yaml:"store" json:"store"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Resolver  ResolverConfig  `yaml:"resolver" json:"resolver"`
	Retry     RetryConfig     `yaml:"retry" json:"retry"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// ServerConfig holds the HTTP surface configuration
type ServerConfig struct {
	Addr            string        `yaml:"addr" json:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// HTTPConfig holds outbound provider call configuration. UserAgent is the
// fallback identity used when no profiles are configured for a platform.
type HTTPConfig struct {
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
}

// CacheConfig holds response cache configuration
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl" json:"ttl"`
	// NegativeTTL caches failure results; must stay well below TTL so a
	// transient provider failure does not shadow a good result for long.
	NegativeTTL time.Duration `yaml:"negative_ttl" json:"negative_ttl"`
}

// CookieConfig holds credential pool configuration.
// CooldownWindow and ErrorThreshold are tunables; the defaults below are
// starting points, not measured values.
type CookieConfig struct {
	CooldownWindow time.Duration `yaml:"cooldown_window" json:"cooldown_window"`
	ErrorThreshold int           `yaml:"error_threshold" json:"error_threshold"`
	PassphraseEnv  string        `yaml:"passphrase_env" json:"passphrase_env"`
}

// StoreConfig holds persistence configuration
type StoreConfig struct {
	Path string `yaml:"path" json:"path"`
}

// RateLimitConfig holds per-platform outbound rate limiting
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// ResolverConfig holds URL resolution configuration
type ResolverConfig struct {
	ShortlinkTimeout time.Duration `yaml:"shortlink_timeout" json:"shortlink_timeout"`
}

// RetryConfig holds retry configuration for outbound calls
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	File   string `yaml:"file" json:"file"`
	Pretty bool   `yaml:"pretty" json:"pretty"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		HTTP: HTTPConfig{
			Timeout:   15 * time.Second,
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		},
		Cache: CacheConfig{
			TTL:         10 * time.Minute,
			NegativeTTL: time.Minute,
		},
		Cookie: CookieConfig{
			CooldownWindow: 5 * time.Minute,
			ErrorThreshold: 5,
			PassphraseEnv:  "MEDIAGRAB_PASSPHRASE",
		},
		Store: StoreConfig{
			Path: "./data",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
		},
		Resolver: ResolverConfig{
			ShortlinkTimeout: 5 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Load builds a configuration from defaults, an optional YAML file, and
// environment variable overrides, in that precedence order
func Load(path string) (*Config, error) {
	// A .env file is optional; missing is fine.
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if err := cfg.LoadFromFile(path); err != nil {
		return nil, err
	}
	cfg.LoadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // no config file, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// findConfigFile searches for a config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".mediagrab.yaml",
		".mediagrab.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "mediagrab", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "mediagrab", "config.yml"),
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// LoadFromEnv applies environment variable overrides
func (c *Config) LoadFromEnv() {
	if addr := os.Getenv("MEDIAGRAB_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if ua := os.Getenv("MEDIAGRAB_USER_AGENT"); ua != "" {
		c.HTTP.UserAgent = ua
	}
	if path := os.Getenv("MEDIAGRAB_STORE_PATH"); path != "" {
		c.Store.Path = path
	}
	if level := os.Getenv("MEDIAGRAB_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if rpm := os.Getenv("MEDIAGRAB_REQUESTS_PER_MINUTE"); rpm != "" {
		if val, err := strconv.Atoi(rpm); err == nil && val > 0 {
			c.RateLimit.RequestsPerMinute = val
		}
	}
	if ttl := os.Getenv("MEDIAGRAB_CACHE_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil && d > 0 {
			c.Cache.TTL = d
		}
	}
	if cooldown := os.Getenv("MEDIAGRAB_COOKIE_COOLDOWN"); cooldown != "" {
		if d, err := time.ParseDuration(cooldown); err == nil && d > 0 {
			c.Cookie.CooldownWindow = d
		}
	}
	if threshold := os.Getenv("MEDIAGRAB_COOKIE_ERROR_THRESHOLD"); threshold != "" {
		if val, err := strconv.Atoi(threshold); err == nil && val > 0 {
			c.Cookie.ErrorThreshold = val
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.Timeout <= 0 {
		errs = append(errs, errors.New("http timeout must be positive"))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache ttl must be positive"))
	}
	if c.Cache.NegativeTTL <= 0 {
		errs = append(errs, errors.New("negative cache ttl must be positive"))
	}
	if c.Cache.NegativeTTL >= c.Cache.TTL {
		errs = append(errs, errors.New("negative cache ttl must be shorter than cache ttl"))
	}
	if c.Cookie.CooldownWindow <= 0 {
		errs = append(errs, errors.New("cookie cooldown window must be positive"))
	}
	if c.Cookie.ErrorThreshold <= 0 {
		errs = append(errs, errors.New("cookie error threshold must be positive"))
	}
	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry max attempts must be at least 1"))
	}
	if c.Resolver.ShortlinkTimeout <= 0 {
		errs = append(errs, errors.New("shortlink timeout must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
