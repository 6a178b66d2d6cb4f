// ABOUTME: Configuration loading and parsing for identity-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/2389/identity-gateway/internal/identity"
	"github.com/2389/identity-gateway/internal/ratelimit"
)

// Database drivers
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Rate limit backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config represents the complete identity-gateway configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Database   DatabaseConfig   `yaml:"database" toml:"database"`
	Auth       AuthConfig       `yaml:"auth" toml:"auth"`
	OAuth      OAuthConfig      `yaml:"oauth" toml:"oauth"`
	Newsletter NewsletterConfig `yaml:"newsletter" toml:"newsletter"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" toml:"rate_limit"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	// FrontendURL is where OAuth callbacks land and what the welcome email links to
	FrontendURL string `yaml:"frontend_url" toml:"frontend_url"`

	ReadHeaderTimeout    time.Duration `yaml:"-" toml:"-"`
	ReadHeaderTimeoutRaw string        `yaml:"read_header_timeout" toml:"read_header_timeout"`

	// TrustedProxies are CIDRs or addresses whose X-Forwarded-For is believed
	// when resolving client IPs. Empty means clients connect directly.
	TrustedProxies []string `yaml:"trusted_proxies" toml:"trusted_proxies"`
}

// DatabaseConfig selects and configures the store backend
type DatabaseConfig struct {
	Driver        string `yaml:"driver" toml:"driver"` // sqlite or mongo
	Path          string `yaml:"path" toml:"path"`
	MongoURI      string `yaml:"mongo_uri" toml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database" toml:"mongo_database"`
}

// AuthConfig holds session and password configuration
type AuthConfig struct {
	JWTSecret          string `yaml:"jwt_secret" toml:"jwt_secret"`
	BcryptCost         int    `yaml:"bcrypt_cost" toml:"bcrypt_cost"`
	DefaultDisplayName string `yaml:"default_display_name" toml:"default_display_name"`
	DefaultAvatarURL   string `yaml:"default_avatar_url" toml:"default_avatar_url"`

	TokenTTL    time.Duration `yaml:"-" toml:"-"`
	TokenTTLRaw string        `yaml:"token_ttl" toml:"token_ttl"`
}

// OAuthConfig holds federated login providers
type OAuthConfig struct {
	Google GoogleConfig `yaml:"google" toml:"google"`
}

// GoogleConfig holds Google sign-in configuration
type GoogleConfig struct {
	Enabled      bool   `yaml:"enabled" toml:"enabled"`
	ClientID     string `yaml:"client_id" toml:"client_id"`
	ClientSecret string `yaml:"client_secret" toml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url" toml:"redirect_url"`

	StateTTL    time.Duration `yaml:"-" toml:"-"`
	StateTTLRaw string        `yaml:"state_ttl" toml:"state_ttl"`
}

// NewsletterConfig holds the email provider configuration. An empty API key
// disables provider sync; subscriptions are still stored.
type NewsletterConfig struct {
	BrevoAPIKey       string  `yaml:"brevo_api_key" toml:"brevo_api_key"`
	SenderEmail       string  `yaml:"sender_email" toml:"sender_email"`
	SenderName        string  `yaml:"sender_name" toml:"sender_name"`
	ListID            int     `yaml:"list_id" toml:"list_id"`
	APIBaseURL        string  `yaml:"api_base_url" toml:"api_base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
}

// RateLimitConfig holds per-client request limits. A zero limit disables it.
type RateLimitConfig struct {
	Backend            string `yaml:"backend" toml:"backend"` // memory or redis
	RedisAddr          string `yaml:"redis_addr" toml:"redis_addr"`
	RedisPassword      string `yaml:"redis_password" toml:"redis_password"`
	RedisDB            int    `yaml:"redis_db" toml:"redis_db"`
	LoginPerMinute     int    `yaml:"login_per_minute" toml:"login_per_minute"`
	SignupPerMinute    int    `yaml:"signup_per_minute" toml:"signup_per_minute"`
	SubscribePerMinute int    `yaml:"subscribe_per_minute" toml:"subscribe_per_minute"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "0.0.0.0:3000"
	}
	if c.Server.FrontendURL == "" {
		c.Server.FrontendURL = "https://web3-platform-three.vercel.app"
	}
	c.Server.FrontendURL = strings.TrimRight(c.Server.FrontendURL, "/")
	if c.Server.ReadHeaderTimeout == 0 {
		c.Server.ReadHeaderTimeout = 10 * time.Second
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.MongoDatabase == "" {
		c.Database.MongoDatabase = "identity"
	}

	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = identity.DefaultTokenTTL
	}
	if c.Auth.BcryptCost == 0 {
		c.Auth.BcryptCost = bcrypt.DefaultCost
	}

	if c.OAuth.Google.StateTTL == 0 {
		c.OAuth.Google.StateTTL = 10 * time.Minute
	}

	if c.Newsletter.SenderName == "" {
		c.Newsletter.SenderName = "Web3 Platform"
	}
	if c.Newsletter.ListID == 0 {
		c.Newsletter.ListID = 2
	}

	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = BackendMemory
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if _, err := url.ParseRequestURI(c.Server.FrontendURL); err != nil {
		return fmt.Errorf("server.frontend_url is not a valid URL: %w", err)
	}
	if _, err := ratelimit.NewIPResolver(c.Server.TrustedProxies); err != nil {
		return fmt.Errorf("server.trusted_proxies: %w", err)
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DriverMongo:
		if c.Database.MongoURI == "" {
			return fmt.Errorf("database.mongo_uri is required for the mongo driver")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverMongo, c.Database.Driver)
	}

	if len(c.Auth.JWTSecret) < identity.MinSigningKeyLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", identity.MinSigningKeyLength)
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("auth.bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	if g := c.OAuth.Google; g.Enabled {
		if g.ClientID == "" || g.ClientSecret == "" || g.RedirectURL == "" {
			return fmt.Errorf("oauth.google requires client_id, client_secret and redirect_url when enabled")
		}
	}

	if c.Newsletter.BrevoAPIKey != "" && c.Newsletter.SenderEmail == "" {
		return fmt.Errorf("newsletter.sender_email is required when brevo_api_key is set")
	}
	if c.Newsletter.RequestsPerSecond < 0 {
		return fmt.Errorf("newsletter.requests_per_second must not be negative")
	}

	switch c.RateLimit.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.RateLimit.RedisAddr == "" {
			return fmt.Errorf("rate_limit.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("rate_limit.backend must be %q or %q, got %q", BackendMemory, BackendRedis, c.RateLimit.Backend)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// IdentityConfig returns the settings the identity core needs.
func (c *Config) IdentityConfig() identity.Config {
	return identity.Config{
		SigningKey:         []byte(c.Auth.JWTSecret),
		BcryptCost:         c.Auth.BcryptCost,
		TokenTTL:           c.Auth.TokenTTL,
		DefaultDisplayName: c.Auth.DefaultDisplayName,
		DefaultAvatarURL:   c.Auth.DefaultAvatarURL,
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.read_header_timeout", cfg.Server.ReadHeaderTimeoutRaw, &cfg.Server.ReadHeaderTimeout},
		{"auth.token_ttl", cfg.Auth.TokenTTLRaw, &cfg.Auth.TokenTTL},
		{"oauth.google.state_ttl", cfg.OAuth.Google.StateTTLRaw, &cfg.OAuth.Google.StateTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %q", f.name, f.raw)
		}
		*f.dst = d
	}

	return nil
}
