// config.go
// ----------
// This file defines the Config structure, which carries all process-level
// settings for the dispatch layer: transport timeouts, pool limits, retry
// policy, the local rate-limit window, and file-upload ceilings.
//
// Config values come from three places, later sources overriding earlier ones:
// DefaultConfig(), an optional YAML file via LoadConfigFile(), and environment
// variables via FromEnv() (a .env file is honored when present).
package relaykit

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultMaxFileSize is the per-file and aggregate attachment ceiling (25 MiB).
const DefaultMaxFileSize = 25 * 1024 * 1024

// Config holds process-wide settings for a Relay. Zero or missing fields are
// filled in by Validate() where a sane default exists.
type Config struct {
	// BaseURL is the fallback API base used when a provider profile does not
	// set its own.
	BaseURL string

	// RequestTimeout is the default per-dispatch deadline. It doubles as the
	// transport response-header (read) timeout.
	RequestTimeout time.Duration

	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// RetryDelay is the base backoff delay; attempt n sleeps RetryDelay * 2^n.
	RetryDelay time.Duration

	// PoolSize is the maximum number of connections per host.
	PoolSize int

	// MaxKeepalive is the maximum number of idle (keep-alive) connections.
	MaxKeepalive int

	// MaxFileSize caps each attachment and the aggregate attachment size.
	MaxFileSize int64

	// AllowedFileTypes lists recognized attachment extensions (lowercase,
	// with leading dot). Unrecognized extensions are not rejected, only noted.
	AllowedFileTypes []string

	// RateLimit and RateWindow bound local outbound throughput: at most
	// RateLimit dispatches per RateWindow, enforced by a sliding window.
	RateLimit  int
	RateWindow time.Duration

	// Transport overrides the pooled transport when non-nil. Intended for
	// tests that need a scriptable round tripper.
	Transport http.RoundTripper
}

// DefaultConfig returns a Config with the reference defaults.
func DefaultConfig() *Config {
	return &Config{
		RequestTimeout:   30 * time.Second,
		MaxRetries:       3,
		RetryDelay:       1 * time.Second,
		PoolSize:         100,
		MaxKeepalive:     20,
		MaxFileSize:      DefaultMaxFileSize,
		AllowedFileTypes: []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".mp4", ".webm", ".mov"},
		RateLimit:        50,
		RateWindow:       1 * time.Second,
	}
}

// Validate fills unset fields with defaults and rejects nonsensical values.
func (c *Config) Validate() error {
	def := DefaultConfig()
	if c.RequestTimeout == 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = def.RetryDelay
	}
	if c.PoolSize == 0 {
		c.PoolSize = def.PoolSize
	}
	if c.MaxKeepalive == 0 {
		c.MaxKeepalive = def.MaxKeepalive
	}
	if c.MaxFileSize == 0 {
		c.MaxFileSize = def.MaxFileSize
	}
	if c.AllowedFileTypes == nil {
		c.AllowedFileTypes = def.AllowedFileTypes
	}
	if c.RateLimit == 0 {
		c.RateLimit = def.RateLimit
	}
	if c.RateWindow == 0 {
		c.RateWindow = def.RateWindow
	}

	if c.RequestTimeout < 0 {
		return fmt.Errorf("request timeout must be > 0, got %v", c.RequestTimeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay must be > 0, got %v", c.RetryDelay)
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("pool size must be >= 1, got %d", c.PoolSize)
	}
	if c.MaxKeepalive < 0 || c.MaxKeepalive > c.PoolSize {
		return fmt.Errorf("max keepalive must be between 0 and pool size (%d), got %d", c.PoolSize, c.MaxKeepalive)
	}
	if c.MaxFileSize < 0 {
		return fmt.Errorf("max file size must be > 0, got %d", c.MaxFileSize)
	}
	if c.RateLimit < 1 {
		return fmt.Errorf("rate limit must be >= 1, got %d", c.RateLimit)
	}
	if c.RateWindow < 0 {
		return fmt.Errorf("rate window must be > 0, got %v", c.RateWindow)
	}
	return nil
}

// FromEnv builds a Config from defaults overridden by RELAY_* environment
// variables. A .env file in the working directory is loaded first if present.
//
// Recognized variables: RELAY_API_BASE, RELAY_REQUEST_TIMEOUT,
// RELAY_MAX_RETRIES, RELAY_RETRY_DELAY, RELAY_POOL_SIZE, RELAY_MAX_KEEPALIVE,
// RELAY_MAX_FILE_SIZE, RELAY_ALLOWED_FILE_TYPES (comma-separated),
// RELAY_RATE_LIMIT, RELAY_RATE_WINDOW. Durations accept either Go duration
// strings ("30s", "1m30s") or plain seconds ("30", "1.5").
func FromEnv() (*Config, error) {
	_ = godotenv.Load()

	c := DefaultConfig()
	if v := os.Getenv("RELAY_API_BASE"); v != "" {
		c.BaseURL = v
	}
	var err error
	if c.RequestTimeout, err = envDuration("RELAY_REQUEST_TIMEOUT", c.RequestTimeout); err != nil {
		return nil, err
	}
	if c.RetryDelay, err = envDuration("RELAY_RETRY_DELAY", c.RetryDelay); err != nil {
		return nil, err
	}
	if c.RateWindow, err = envDuration("RELAY_RATE_WINDOW", c.RateWindow); err != nil {
		return nil, err
	}
	if c.MaxRetries, err = envInt("RELAY_MAX_RETRIES", c.MaxRetries); err != nil {
		return nil, err
	}
	if c.PoolSize, err = envInt("RELAY_POOL_SIZE", c.PoolSize); err != nil {
		return nil, err
	}
	if c.MaxKeepalive, err = envInt("RELAY_MAX_KEEPALIVE", c.MaxKeepalive); err != nil {
		return nil, err
	}
	if c.RateLimit, err = envInt("RELAY_RATE_LIMIT", c.RateLimit); err != nil {
		return nil, err
	}
	if v := os.Getenv("RELAY_MAX_FILE_SIZE"); v != "" {
		size, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			return nil, fmt.Errorf("RELAY_MAX_FILE_SIZE: %w", perr)
		}
		c.MaxFileSize = size
	}
	if v := os.Getenv("RELAY_ALLOWED_FILE_TYPES"); v != "" {
		var exts []string
		for _, ext := range strings.Split(v, ",") {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			exts = append(exts, ext)
		}
		c.AllowedFileTypes = exts
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// fileConfig mirrors Config for YAML decoding; durations are strings so both
// "30s" and "1m30s" forms work.
type fileConfig struct {
	BaseURL          string   `yaml:"base_url"`
	RequestTimeout   string   `yaml:"request_timeout"`
	MaxRetries       *int     `yaml:"max_retries"`
	RetryDelay       string   `yaml:"retry_delay"`
	PoolSize         *int     `yaml:"pool_size"`
	MaxKeepalive     *int     `yaml:"max_keepalive"`
	MaxFileSize      *int64   `yaml:"max_file_size"`
	AllowedFileTypes []string `yaml:"allowed_file_types"`
	RateLimit        *int     `yaml:"rate_limit"`
	RateWindow       string   `yaml:"rate_window"`
}

// LoadConfigFile reads a YAML config file and returns a validated Config with
// unset fields defaulted.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	c := DefaultConfig()
	c.BaseURL = fc.BaseURL
	if fc.RequestTimeout != "" {
		if c.RequestTimeout, err = parseDuration(fc.RequestTimeout); err != nil {
			return nil, fmt.Errorf("request_timeout: %w", err)
		}
	}
	if fc.RetryDelay != "" {
		if c.RetryDelay, err = parseDuration(fc.RetryDelay); err != nil {
			return nil, fmt.Errorf("retry_delay: %w", err)
		}
	}
	if fc.RateWindow != "" {
		if c.RateWindow, err = parseDuration(fc.RateWindow); err != nil {
			return nil, fmt.Errorf("rate_window: %w", err)
		}
	}
	if fc.MaxRetries != nil {
		c.MaxRetries = *fc.MaxRetries
	}
	if fc.PoolSize != nil {
		c.PoolSize = *fc.PoolSize
	}
	if fc.MaxKeepalive != nil {
		c.MaxKeepalive = *fc.MaxKeepalive
	}
	if fc.MaxFileSize != nil {
		c.MaxFileSize = *fc.MaxFileSize
	}
	if fc.AllowedFileTypes != nil {
		c.AllowedFileTypes = fc.AllowedFileTypes
	}
	if fc.RateLimit != nil {
		c.RateLimit = *fc.RateLimit
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := parseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// parseDuration accepts Go duration strings and bare second counts.
func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return 0, fmt.Errorf("invalid duration %q", s)
}
