package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	pstrings "cleanplate/pkg/platform/strings"
)

// Environment names select a base URL profile.
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

var baseURLs = map[string]string{
	EnvProduction:  "https://cleanplate-production.up.railway.app",
	EnvDevelopment: "http://localhost:5000",
}

// Config is the full client configuration.
type Config struct {
	Environment string         `yaml:"environment"`
	API         APIConfig      `yaml:"api"`
	Search      SearchConfig   `yaml:"search"`
	Cache       CacheConfig    `yaml:"cache"`
	Redis       RedisConfig    `yaml:"redis"`
	Database    DatabaseConfig `yaml:"database"`
	Log         LogConfig      `yaml:"log"`
	Metrics     MetricsConfig  `yaml:"metrics"`
}

// APIConfig configures the lookup service client.
type APIConfig struct {
	BaseURL        string              `yaml:"base_url"`
	Timeout        time.Duration       `yaml:"timeout"`
	MaxRetries     int                 `yaml:"max_retries"`
	InitialBackoff time.Duration       `yaml:"initial_backoff"`
	MaxBackoff     time.Duration       `yaml:"max_backoff"`
	Pins           map[string][]string `yaml:"pins"`
}

// SearchConfig configures the paginated search controller.
type SearchConfig struct {
	PageSize int           `yaml:"page_size"`
	Debounce time.Duration `yaml:"debounce"`
}

// CacheConfig selects the establishment cache backend.
type CacheConfig struct {
	Backend string        `yaml:"backend"` // memory, redis or postgres
	TTL     time.Duration `yaml:"ttl"`
}

// RedisConfig holds Redis connection settings. An empty URL disables Redis.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig holds the PostgreSQL DSN for the establishment cache.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// LogConfig configures slog.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

// MetricsConfig configures the status server of the watch command.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Defaults returns the configuration for env.
func Defaults(env string) Config {
	if _, ok := baseURLs[env]; !ok {
		env = EnvProduction
	}
	return Config{
		Environment: env,
		API: APIConfig{
			BaseURL:        baseURLs[env],
			Timeout:        20 * time.Second,
			MaxRetries:     2,
			InitialBackoff: time.Second,
			MaxBackoff:     8 * time.Second,
		},
		Search: SearchConfig{
			PageSize: 25,
			Debounce: 300 * time.Millisecond,
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     5 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
	}
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	return Load("")
}

// Load starts from the defaults of CLEANPLATE_ENV, overlays the YAML file at
// path when given, then overlays environment variables.
func Load(path string) (Config, error) {
	cfg := Defaults(getEnv("CLEANPLATE_ENV", EnvProduction))

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		before := cfg
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
		if cfg.Environment != before.Environment && cfg.API.BaseURL == before.API.BaseURL {
			cfg.API.BaseURL = Defaults(cfg.Environment).API.BaseURL
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.API.MaxRetries < 0:
		return fmt.Errorf("invalid api max_retries %d: must not be negative", c.API.MaxRetries)
	case c.API.InitialBackoff <= 0:
		return fmt.Errorf("invalid api initial_backoff %s: must be positive", c.API.InitialBackoff)
	case c.API.MaxBackoff < 0:
		return fmt.Errorf("invalid api max_backoff %s: must not be negative", c.API.MaxBackoff)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.API.BaseURL = getEnv("CLEANPLATE_API_URL", cfg.API.BaseURL)
	cfg.Cache.Backend = getEnv("CLEANPLATE_CACHE_BACKEND", cfg.Cache.Backend)
	cfg.Redis.URL = getEnv("REDIS_URL", cfg.Redis.URL)
	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
	cfg.Metrics.Addr = getEnv("METRICS_ADDR", cfg.Metrics.Addr)

	var err error
	if cfg.API.Timeout, err = getDurationEnv("CLEANPLATE_API_TIMEOUT", cfg.API.Timeout); err != nil {
		return err
	}
	if cfg.API.InitialBackoff, err = getDurationEnv("CLEANPLATE_API_INITIAL_BACKOFF", cfg.API.InitialBackoff); err != nil {
		return err
	}
	if cfg.API.MaxBackoff, err = getDurationEnv("CLEANPLATE_API_MAX_BACKOFF", cfg.API.MaxBackoff); err != nil {
		return err
	}
	if cfg.API.MaxRetries, err = getIntEnv("CLEANPLATE_API_MAX_RETRIES", cfg.API.MaxRetries); err != nil {
		return err
	}
	if cfg.Search.Debounce, err = getDurationEnv("CLEANPLATE_SEARCH_DEBOUNCE", cfg.Search.Debounce); err != nil {
		return err
	}
	if cfg.Search.PageSize, err = getIntEnv("CLEANPLATE_SEARCH_PAGE_SIZE", cfg.Search.PageSize); err != nil {
		return err
	}
	if cfg.Cache.TTL, err = getDurationEnv("CLEANPLATE_CACHE_TTL", cfg.Cache.TTL); err != nil {
		return err
	}
	if raw := os.Getenv("CLEANPLATE_TLS_PINS"); raw != "" {
		pins, err := ParsePins(raw)
		if err != nil {
			return err
		}
		cfg.API.Pins = pins
	}
	return nil
}

// ParsePins reads "host=pin|pin,host2=pin" into a host to pin list map.
func ParsePins(raw string) (map[string][]string, error) {
	pins := make(map[string][]string)
	for _, entry := range pstrings.SplitList(raw, ",") {
		host, hashes, ok := strings.Cut(entry, "=")
		host = strings.ToLower(strings.TrimSpace(host))
		if !ok || host == "" {
			return nil, fmt.Errorf("invalid pin entry %q: want host=sha256", entry)
		}
		list := pstrings.SplitList(hashes, "|")
		if len(list) == 0 {
			return nil, fmt.Errorf("invalid pin entry %q: no hashes", entry)
		}
		pins[host] = append(pins[host], list...)
	}
	return pins, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getIntEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
