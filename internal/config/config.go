package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	DBAcquireTimeout  time.Duration `mapstructure:"DB_ACQUIRE_TIMEOUT"`
	DBQueryTimeout    time.Duration `mapstructure:"DB_QUERY_TIMEOUT"`
	JWTSecret         string        `mapstructure:"JWT_SECRET"`
	JWTIssuer         string        `mapstructure:"JWT_ISSUER"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	RedisURL          string        `mapstructure:"REDIS_URL"`
	AnalyticsCacheTTL time.Duration `mapstructure:"ANALYTICS_CACHE_TTL"`
	MailHost          string        `mapstructure:"MAIL_HOST"`
	MailPort          int           `mapstructure:"MAIL_PORT"`
	MailUsername      string        `mapstructure:"MAIL_USERNAME"`
	MailPassword      string        `mapstructure:"MAIL_PASSWORD"`
	MailFromAddress   string        `mapstructure:"MAIL_FROM_ADDRESS"`
	MailFromName      string        `mapstructure:"MAIL_FROM_NAME"`
	LegacyAdminSlugs  string        `mapstructure:"LEGACY_ADMIN_SLUGS"`
	ShutdownTimeout   time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	RateLimitRPS      float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int           `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit         string        `mapstructure:"BODY_LIMIT"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"DB_ACQUIRE_TIMEOUT", "DB_QUERY_TIMEOUT", "JWT_SECRET", "JWT_ISSUER",
	"CORS_ORIGINS", "REDIS_URL", "ANALYTICS_CACHE_TTL",
	"MAIL_HOST", "MAIL_PORT", "MAIL_USERNAME", "MAIL_PASSWORD",
	"MAIL_FROM_ADDRESS", "MAIL_FROM_NAME", "LEGACY_ADMIN_SLUGS", "SHUTDOWN_TIMEOUT",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_ACQUIRE_TIMEOUT", "10s")
	v.SetDefault("DB_QUERY_TIMEOUT", "30s")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("ANALYTICS_CACHE_TTL", "5m")
	v.SetDefault("MAIL_PORT", 587)
	v.SetDefault("MAIL_FROM_NAME", "DocAvailable")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("BODY_LIMIT", "1M")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = splitList(origins)
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// MailEnabled reports whether an SMTP relay is configured.
func (c *Config) MailEnabled() bool {
	return c.MailHost != ""
}

// LegacyAdmins parses LEGACY_ADMIN_SLUGS ("slug=email,slug=email") into a map.
func (c *Config) LegacyAdmins() (map[string]string, error) {
	out := make(map[string]string)
	for _, entry := range splitList(c.LegacyAdminSlugs) {
		slug, email, ok := strings.Cut(entry, "=")
		slug, email = strings.TrimSpace(slug), strings.TrimSpace(email)
		if !ok || slug == "" || email == "" {
			return nil, fmt.Errorf("LEGACY_ADMIN_SLUGS entry %q must be slug=email", entry)
		}
		out[slug] = strings.ToLower(email)
	}
	return out, nil
}

// Validate checks that the configuration is safe to run. Bearer credentials
// cannot be verified without JWT_SECRET, so it is always required.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.IsProduction() && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}
	if c.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive, got %d", c.DBMaxConns)
	}
	if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS (%d), got %d", c.DBMaxConns, c.DBMinConns)
	}
	if c.DBAcquireTimeout <= 0 {
		return fmt.Errorf("DB_ACQUIRE_TIMEOUT must be positive")
	}
	if c.MailEnabled() && c.MailFromAddress == "" {
		return fmt.Errorf("MAIL_FROM_ADDRESS is required when MAIL_HOST is set")
	}
	if _, err := c.LegacyAdmins(); err != nil {
		return err
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
