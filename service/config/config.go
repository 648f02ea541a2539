package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// Every option has a default; invalid values are reported together at startup.
type Config struct {
	// Server configuration
	Host               string
	Port               int
	LogLevel           string
	CORSAllowedOrigins []string

	// Sui RPC configuration
	SuiRPCURL     string
	RPCTimeout    time.Duration
	RPCMaxRetries int
	RPCRateLimit  float64

	// Summarizer configuration. An empty API key disables the model and every
	// analysis uses the templated summary.
	GeminiAPIKey      string
	GeminiModel       string
	GeminiAPIURL      string
	SummarizerTimeout time.Duration

	// Cache configuration
	CacheTTL           time.Duration
	CacheMaxEntries    int
	CacheSweepInterval time.Duration

	AnalysisTimeout time.Duration

	// Optional integrations; empty disables them.
	DatabaseURL string
	NATSURL     string
}

// ServerAddr is the listen address built from Host and Port.
func (c *Config) ServerAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Load reads configuration from environment variables and validates it.
// Returns an error listing every invalid option.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.Host = getEnvOrDefault("HOST", "0.0.0.0")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.CORSAllowedOrigins = parseList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*"))

	port, err := parseInt("PORT", 8000)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.Port = port
	}

	// Sui RPC configuration
	cfg.SuiRPCURL = getEnvOrDefault("SUI_RPC_URL", "https://fullnode.mainnet.sui.io:443")

	if cfg.RPCTimeout, err = parseDuration("RPC_TIMEOUT", "30s"); err != nil {
		errs = append(errs, err)
	}
	if cfg.RPCMaxRetries, err = parseInt("RPC_MAX_RETRIES", 2); err != nil {
		errs = append(errs, err)
	}
	if cfg.RPCRateLimit, err = parseFloat("RPC_RATE_LIMIT", 10); err != nil {
		errs = append(errs, err)
	}

	// Summarizer configuration
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.GeminiModel = getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash")
	cfg.GeminiAPIURL = getEnvOrDefault("GEMINI_API_URL", "https://generativelanguage.googleapis.com")
	if cfg.SummarizerTimeout, err = parseDuration("SUMMARIZER_TIMEOUT", "20s"); err != nil {
		errs = append(errs, err)
	}

	// Cache configuration
	ttlSeconds, err := parseInt("CACHE_TTL_SECONDS", 3600)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.CacheTTL = time.Duration(ttlSeconds) * time.Second
	}
	if cfg.CacheMaxEntries, err = parseInt("CACHE_MAX_ENTRIES", 10000); err != nil {
		errs = append(errs, err)
	}
	if cfg.CacheSweepInterval, err = parseDuration("CACHE_SWEEP_INTERVAL", "1m"); err != nil {
		errs = append(errs, err)
	}

	if cfg.AnalysisTimeout, err = parseDuration("ANALYSIS_TIMEOUT", "60s"); err != nil {
		errs = append(errs, err)
	}

	// Optional integrations
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")

	// Parse errors first; range checks only make sense on parsed values.
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.SuiRPCURL == "" {
		errs = append(errs, fmt.Errorf("SUI_RPC_URL is required"))
	} else if u, err := url.Parse(c.SuiRPCURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("SUI_RPC_URL must be an absolute URL, got %q", c.SuiRPCURL))
	}

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}

	if c.GeminiModel == "" {
		errs = append(errs, fmt.Errorf("GEMINI_MODEL is required"))
	}

	if c.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("CACHE_TTL_SECONDS must be positive"))
	}

	if c.CacheMaxEntries < 0 {
		errs = append(errs, fmt.Errorf("CACHE_MAX_ENTRIES cannot be negative (0 means unbounded)"))
	}

	if c.RPCMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("RPC_MAX_RETRIES cannot be negative"))
	}

	if c.RPCRateLimit < 0 {
		errs = append(errs, fmt.Errorf("RPC_RATE_LIMIT cannot be negative (0 disables limiting)"))
	}

	if c.RPCTimeout <= 0 {
		errs = append(errs, fmt.Errorf("RPC_TIMEOUT must be positive"))
	}

	if c.SummarizerTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SUMMARIZER_TIMEOUT must be positive"))
	}

	if c.AnalysisTimeout < c.RPCTimeout {
		errs = append(errs, fmt.Errorf("ANALYSIS_TIMEOUT (%v) cannot be less than RPC_TIMEOUT (%v)",
			c.AnalysisTimeout, c.RPCTimeout))
	}

	if c.CacheSweepInterval < 0 {
		errs = append(errs, fmt.Errorf("CACHE_SWEEP_INTERVAL cannot be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseFloat parses a float from an environment variable or uses a default.
func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}

// parseList splits a comma-separated value, dropping empty items.
func parseList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
