// Package config provides unified configuration for the portier gateway.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (PORTIER_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the portier gateway.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Identity      IdentityConfig      `yaml:"identity"`
	Session       SessionConfig       `yaml:"session"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // default: 8080
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 30s
}

// AuthConfig holds mechanism chain settings. Mechanisms are tried in the
// order listed.
type AuthConfig struct {
	// Mechanisms lists the chain: "basic", "apikey", "jwt", "form".
	Mechanisms []string `yaml:"mechanisms"`

	// Realm is advertised in Basic challenges. Default: "portier".
	Realm string `yaml:"realm"`

	APIKeys   []APIKeyConfig  `yaml:"api_keys"`
	JWT       JWTConfig       `yaml:"jwt"`
	Form      FormConfig      `yaml:"form"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key     string `yaml:"key"`
	KeyFile string `yaml:"key_file"` // _file variant for key
	Subject string `yaml:"subject"`
	Tier    string `yaml:"tier"`
}

// JWTConfig holds JWT mechanism settings.
type JWTConfig struct {
	Issuer    string        `yaml:"issuer"`
	Audience  string        `yaml:"audience"`
	JWKSURL   string        `yaml:"jwks_url"`
	UserClaim string        `yaml:"user_claim"` // default: "sub"
	TierClaim string        `yaml:"tier_claim"` // default: "tier"
	CacheTTL  time.Duration `yaml:"cache_ttl"`  // default: 1h
}

// FormConfig holds form mechanism settings.
type FormConfig struct {
	LoginPage     string `yaml:"login_page"`     // default: "/login"
	ActionPath    string `yaml:"action_path"`    // default: "/login"
	UsernameField string `yaml:"username_field"` // default: "username"
	PasswordField string `yaml:"password_field"` // default: "password"
}

// RateLimitConfig holds per-tier request budgets.
type RateLimitConfig struct {
	Enabled    bool           `yaml:"enabled"`
	DefaultRPM int            `yaml:"default_rpm"` // default: 600
	Tiers      map[string]int `yaml:"tiers"`       // tier name -> requests per minute
}

// IdentityConfig holds identity store settings.
type IdentityConfig struct {
	Type      string       `yaml:"type"`       // "file", default: "file"
	UsersFile string       `yaml:"users_file"` // YAML users file path
	Users     []UserConfig `yaml:"users"`      // inline users, merged after users_file
}

// UserConfig describes a single inline user entry.
type UserConfig struct {
	Name         string            `yaml:"name"`
	PasswordHash string            `yaml:"password_hash"`
	Groups       []string          `yaml:"groups"`
	Attributes   map[string]string `yaml:"attributes"`
}

// SessionConfig holds session persistence settings.
type SessionConfig struct {
	Type     string         `yaml:"type"`     // "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	TTL      time.Duration  `yaml:"ttl"`      // default: 24h
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"` // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds log level and debug category settings. Both can be
// overridden by PORTIER_LOG_LEVEL and PORTIER_DEBUG.
type LoggingConfig struct {
	Level string `yaml:"level"` // ERROR, WARN, INFO, DEBUG; default: "INFO"
	Debug string `yaml:"debug"` // comma-separated debug categories
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			Mechanisms: []string{"basic"},
			Realm:      "portier",
			RateLimit: RateLimitConfig{
				DefaultRPM: 600,
			},
		},
		Identity: IdentityConfig{
			Type: "file",
		},
		Session: SessionConfig{
			Type:    "memory",
			MaxSize: 10000,
			TTL:     24 * time.Hour,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
			Logging: LoggingConfig{
				Level: "INFO",
			},
		},
	}
}
