// Package config loads DropForge configuration from YAML files and
// environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level application configuration.
type Config struct {
	Environment string         `mapstructure:"environment"`
	Server      ServerConfig   `mapstructure:"server"`
	Log         LogConfig      `mapstructure:"log"`
	Storage     StorageConfig  `mapstructure:"storage"`
	Database    DatabaseConfig `mapstructure:"database"`
	Auth        AuthConfig     `mapstructure:"auth"`
	RateLimit   RateLimit      `mapstructure:"rate_limit"`
	Security    SecurityConfig `mapstructure:"security"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// StorageConfig selects and configures the shared counter store.
type StorageConfig struct {
	// Driver is "redis" or "memory". Memory is single-process only and is
	// meant for development; production deployments share state via Redis.
	Driver    string        `mapstructure:"driver"`
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	OpTimeout time.Duration `mapstructure:"op_timeout"`
}

// DatabaseConfig selects the relational backend for the identity service.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// AuthConfig holds token settings for the identity service.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// CategoryLimits holds the per-window request budgets for one endpoint
// category.
type CategoryLimits struct {
	PerMinute int `mapstructure:"per_minute"`
	PerHour   int `mapstructure:"per_hour"`
}

// RateLimit holds admission-control settings.
type RateLimit struct {
	Enabled       bool           `mapstructure:"enabled"`
	Auth          CategoryLimits `mapstructure:"auth"`
	API           CategoryLimits `mapstructure:"api"`
	Upload        CategoryLimits `mapstructure:"upload"`
	Admin         CategoryLimits `mapstructure:"admin"`
	BlockDuration time.Duration  `mapstructure:"block_duration"`
	WindowGrace   time.Duration  `mapstructure:"window_grace"`
}

// SecurityConfig holds security event monitor settings.
type SecurityConfig struct {
	RecentCap           int           `mapstructure:"recent_cap"`
	PerIPCap            int           `mapstructure:"per_ip_cap"`
	PerUserCap          int           `mapstructure:"per_user_cap"`
	Retention           time.Duration `mapstructure:"retention"`
	BruteForceThreshold int           `mapstructure:"brute_force_threshold"`
	BruteForceWindow    time.Duration `mapstructure:"brute_force_window"`
	AbuseThreshold      int           `mapstructure:"abuse_threshold"`
	AbuseWindow         time.Duration `mapstructure:"abuse_window"`
}

// LoadConfig loads configuration from the first config file found plus
// DROPFORGE_* environment variables.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("DROPFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if len(paths) == 0 {
		paths = []string{"./config.yaml", "./configs/config.yaml", "/etc/dropforge/config.yaml"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("log.level", "info")

	v.SetDefault("storage.driver", "redis")
	v.SetDefault("storage.addr", "localhost:6379")
	v.SetDefault("storage.password", "")
	v.SetDefault("storage.db", 0)
	v.SetDefault("storage.op_timeout", 2*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "dropforge.db")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.auth.per_minute", 5)
	v.SetDefault("rate_limit.auth.per_hour", 20)
	v.SetDefault("rate_limit.api.per_minute", 60)
	v.SetDefault("rate_limit.api.per_hour", 1000)
	v.SetDefault("rate_limit.upload.per_minute", 10)
	v.SetDefault("rate_limit.upload.per_hour", 100)
	// Admin endpoints share the general API budget.
	v.SetDefault("rate_limit.admin.per_minute", 60)
	v.SetDefault("rate_limit.admin.per_hour", 1000)
	v.SetDefault("rate_limit.block_duration", 5*time.Minute)
	v.SetDefault("rate_limit.window_grace", time.Minute)

	v.SetDefault("security.recent_cap", 1000)
	v.SetDefault("security.per_ip_cap", 500)
	v.SetDefault("security.per_user_cap", 200)
	v.SetDefault("security.retention", 24*time.Hour)
	v.SetDefault("security.brute_force_threshold", 5)
	v.SetDefault("security.brute_force_window", 10*time.Minute)
	v.SetDefault("security.abuse_threshold", 10)
	v.SetDefault("security.abuse_window", time.Hour)
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	switch cfg.Storage.Driver {
	case "redis", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	switch cfg.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	for name, cl := range map[string]CategoryLimits{
		"auth": cfg.RateLimit.Auth, "api": cfg.RateLimit.API,
		"upload": cfg.RateLimit.Upload, "admin": cfg.RateLimit.Admin,
	} {
		if cl.PerMinute <= 0 || cl.PerHour <= 0 {
			return fmt.Errorf("rate limits for %s category must be positive", name)
		}
	}
	if cfg.RateLimit.BlockDuration <= 0 {
		return fmt.Errorf("block duration must be positive")
	}
	if cfg.Environment == "production" && cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required in production")
	}
	return nil
}
