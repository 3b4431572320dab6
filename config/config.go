package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-shop/models"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// PageCountLimit is the hard ceiling on pages per run, whatever MaxPageCount says.
const PageCountLimit = 10000

// Config holds scraper and server configuration.
type Config struct {
	BaseURL       string        `yaml:"base_url"`
	PageCount     int           `yaml:"page_count"`
	MaxPageCount  int           `yaml:"max_page_count"`
	Proxy         string        `yaml:"proxy"`
	Parallelism   int           `yaml:"parallelism"`
	Timeout       time.Duration `yaml:"timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
	UserAgent     string        `yaml:"user_agent"`
	CacheSize     int           `yaml:"cache_size"`
	Verbose       bool          `yaml:"verbose"`

	StorageDriver string `yaml:"storage_driver"` // json, csv, or postgres
	StoragePath   string `yaml:"storage_path"`
	DatabaseURL   string `yaml:"database_url"`

	Notifier      string `yaml:"notifier"` // console, webhook, or redis
	WebhookURL    string `yaml:"webhook_url"`
	WebhookSecret string `yaml:"webhook_secret"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisStream   string `yaml:"redis_stream"`

	ListenAddr   string   `yaml:"listen_addr"`
	APIToken     string   `yaml:"api_token"`
	RateLimitRPS float64  `yaml:"rate_limit_rps"`
	RateBurst    int      `yaml:"rate_burst"`
	CORSOrigins  []string `yaml:"cors_origins"`
	MetricsAddr  string   `yaml:"metrics_addr"`
}

// DefaultConfig returns conservative defaults for the storefront.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:       "https://dentalstall.com",
		PageCount:     2,
		MaxPageCount:  100,
		Parallelism:   1,
		Timeout:       5 * time.Second,
		RetryAttempts: 3,
		RetryBackoff:  2 * time.Second,
		UserAgent:     "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		CacheSize:     100000,
		StorageDriver: "json",
		StoragePath:   "database.json",
		Notifier:      "console",
		RedisStream:   "stream:catalog_runs",
		ListenAddr:    ":8000",
		RateLimitRPS:  1,
		RateBurst:     3,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.PageCount <= 0 {
		return fmt.Errorf("page count must be positive")
	}
	if c.MaxPageCount <= 0 || c.MaxPageCount > PageCountLimit {
		return fmt.Errorf("max page count must be between 1 and %d", PageCountLimit)
	}
	if c.PageCount > c.MaxPageCount {
		return fmt.Errorf("page count %d exceeds max page count %d", c.PageCount, c.MaxPageCount)
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.Proxy != "" {
		if err := ValidateProxy(c.Proxy); err != nil {
			return err
		}
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache size must be positive")
	}

	switch c.StorageDriver {
	case "json", "csv":
		if c.StoragePath == "" {
			return fmt.Errorf("storage path cannot be empty")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("database URL is required for postgres storage")
		}
	default:
		return fmt.Errorf("storage driver must be json, csv, or postgres")
	}

	switch c.Notifier {
	case "console":
	case "webhook":
		if c.WebhookURL == "" {
			return fmt.Errorf("webhook URL is required for webhook notifier")
		}
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("redis address is required for redis notifier")
		}
		if c.RedisStream == "" {
			return fmt.Errorf("redis stream cannot be empty")
		}
	default:
		return fmt.Errorf("notifier must be console, webhook, or redis")
	}

	if c.RateLimitRPS < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}
	if c.RateLimitRPS > 0 && c.RateBurst <= 0 {
		return fmt.Errorf("rate burst must be positive when rate limiting is enabled")
	}

	return nil
}

// RunConfig derives the per-run scrape configuration from the defaults in c.
func (c *Config) RunConfig() models.RunConfig {
	return models.RunConfig{
		PageCount:     c.PageCount,
		Proxy:         c.Proxy,
		RetryAttempts: c.RetryAttempts,
		RetryBackoff:  c.RetryBackoff,
	}
}

// ValidateRun checks a per-run configuration.
func ValidateRun(rc models.RunConfig) error {
	if rc.PageCount <= 0 {
		return fmt.Errorf("page count must be positive")
	}
	if rc.PageCount > PageCountLimit {
		return fmt.Errorf("page count cannot exceed %d", PageCountLimit)
	}
	if rc.RetryAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1")
	}
	if rc.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if rc.Proxy != "" {
		return ValidateProxy(rc.Proxy)
	}
	return nil
}

// ValidateProxy accepts http, https and socks5 proxy URLs.
func ValidateProxy(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid proxy: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return fmt.Errorf("invalid proxy: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid proxy: missing host")
	}
	return nil
}

// Load builds a Config from defaults, an optional YAML file, a .env file and the
// environment, in that order of precedence (later wins).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := EnvString("SCRAPER_BASE_URL"); ok {
		c.BaseURL = v
	}
	if v, ok, err := EnvInt("SCRAPER_PAGES"); err != nil {
		return fmt.Errorf("invalid SCRAPER_PAGES: %w", err)
	} else if ok {
		c.PageCount = v
	}
	if v, ok, err := EnvInt("SCRAPER_MAX_PAGES"); err != nil {
		return fmt.Errorf("invalid SCRAPER_MAX_PAGES: %w", err)
	} else if ok {
		c.MaxPageCount = v
	}
	if v, ok := EnvString("SCRAPER_PROXY"); ok {
		c.Proxy = v
	}
	if v, ok, err := EnvInt("SCRAPER_PARALLEL"); err != nil {
		return fmt.Errorf("invalid SCRAPER_PARALLEL: %w", err)
	} else if ok {
		c.Parallelism = v
	}
	if v, ok, err := EnvDuration("SCRAPER_TIMEOUT"); err != nil {
		return fmt.Errorf("invalid SCRAPER_TIMEOUT: %w", err)
	} else if ok {
		c.Timeout = v
	}
	if v, ok, err := EnvInt("SCRAPER_RETRY_ATTEMPTS"); err != nil {
		return fmt.Errorf("invalid SCRAPER_RETRY_ATTEMPTS: %w", err)
	} else if ok {
		c.RetryAttempts = v
	}
	if v, ok, err := EnvDuration("SCRAPER_RETRY_BACKOFF"); err != nil {
		return fmt.Errorf("invalid SCRAPER_RETRY_BACKOFF: %w", err)
	} else if ok {
		c.RetryBackoff = v
	}
	if v, ok, err := EnvBool("SCRAPER_VERBOSE"); err != nil {
		return fmt.Errorf("invalid SCRAPER_VERBOSE: %w", err)
	} else if ok {
		c.Verbose = v
	}
	if v, ok := EnvString("SCRAPER_STORAGE"); ok {
		c.StorageDriver = strings.ToLower(v)
	}
	if v, ok := EnvString("SCRAPER_STORAGE_PATH"); ok {
		c.StoragePath = v
	}
	if v, ok := EnvString("DATABASE_URL"); ok {
		c.DatabaseURL = v
	}
	if v, ok := EnvString("SCRAPER_NOTIFIER"); ok {
		c.Notifier = strings.ToLower(v)
	}
	if v, ok := EnvString("SCRAPER_WEBHOOK_URL"); ok {
		c.WebhookURL = v
	}
	if v, ok := EnvString("SCRAPER_WEBHOOK_SECRET"); ok {
		c.WebhookSecret = v
	}
	if v, ok := EnvString("REDIS_ADDR"); ok {
		c.RedisAddr = v
	}
	if v, ok := EnvString("REDIS_PASSWORD"); ok {
		c.RedisPassword = v
	}
	if v, ok := EnvString("SCRAPER_REDIS_STREAM"); ok {
		c.RedisStream = v
	}
	if v, ok := EnvString("SCRAPER_LISTEN_ADDR"); ok {
		c.ListenAddr = v
	}
	if v, ok := EnvString("SCRAPER_API_TOKEN"); ok {
		c.APIToken = v
	}
	if v, ok := EnvString("SCRAPER_CORS_ORIGINS"); ok {
		c.CORSOrigins = splitList(v)
	}
	if v, ok := EnvString("SCRAPER_METRICS_ADDR"); ok {
		c.MetricsAddr = v
	}
	return nil
}

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", false
	}
	return v, true
}

// EnvInt parses key as an integer when set.
func EnvInt(key string) (int, bool, error) {
	v, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// EnvBool parses key as a boolean when set.
func EnvBool(key string) (bool, bool, error) {
	v, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false, err
	}
	return b, true, nil
}

// EnvDuration parses key as a time.Duration when set.
func EnvDuration(key string) (time.Duration, bool, error) {
	v, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false, err
	}
	return d, true, nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
