// Package config loads application configuration from file and environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Log       LogConfig       `mapstructure:"log"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // "development" or "production"
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`            // "sqlite" or "postgres"
	DSN             string `mapstructure:"dsn"`               // Connection string
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`    // Maximum idle connections (Postgres)
	MaxOpenConns    int    `mapstructure:"max_open_conns"`    // Maximum open connections (Postgres)
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // Connection max lifetime in minutes (Postgres)
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret     string `mapstructure:"jwt_secret"`     // Secret for JWT signing
	AdminEmail    string `mapstructure:"admin_email"`    // Default admin seeded on first boot
	AdminPassword string `mapstructure:"admin_password"` // Empty disables seeding
}

// QueueConfig holds run-job queue configuration
type QueueConfig struct {
	Type       string `mapstructure:"type"`        // "memory" or "valkey"
	ValkeyAddr string `mapstructure:"valkey_addr"` // Valkey address (if type=valkey), e.g., "localhost:6379"
}

// LogConfig holds logging configuration
type LogConfig struct {
	Format string `mapstructure:"format"` // "json" or "text"
	Level  string `mapstructure:"level"`  // "debug", "info", "warn", "error"
}

// EngineConfig holds external workflow engine configuration
type EngineConfig struct {
	BaseURL   string `mapstructure:"base_url"`   // Engine API base, e.g. http://localhost:5678
	PublicURL string `mapstructure:"public_url"` // Browser-reachable base for view links
	APIKey    string `mapstructure:"api_key"`    // API key auth; basic auth is used when empty
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	TimeoutS  int    `mapstructure:"timeout_s"` // Per-request timeout in seconds
}

// DiscoveryConfig bounds the polling loop that locates the engine's own
// execution id for a just-activated workflow.
type DiscoveryConfig struct {
	GraceMS     int `mapstructure:"grace_ms"`     // Initial wait before the first poll
	IntervalMS  int `mapstructure:"interval_ms"`  // Delay between polls
	MaxAttempts int `mapstructure:"max_attempts"` // Poll count bound
}

// Grace returns the initial discovery delay as a duration.
func (d DiscoveryConfig) Grace() time.Duration { return time.Duration(d.GraceMS) * time.Millisecond }

// Interval returns the poll interval as a duration.
func (d DiscoveryConfig) Interval() time.Duration {
	return time.Duration(d.IntervalMS) * time.Millisecond
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults for local development
	v.SetDefault("server.port", 8470)
	v.SetDefault("server.mode", "development")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./runforge.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60) // 60 minutes
	v.SetDefault("auth.jwt_secret", "change-me-in-production")
	v.SetDefault("auth.admin_email", "admin@runforge.local")
	v.SetDefault("auth.admin_password", "")
	v.SetDefault("queue.type", "memory")
	v.SetDefault("queue.valkey_addr", "localhost:6379")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.level", "info")
	v.SetDefault("engine.base_url", "http://localhost:5678")
	v.SetDefault("engine.public_url", "http://localhost:5678")
	v.SetDefault("engine.username", "admin")
	v.SetDefault("engine.password", "password")
	v.SetDefault("engine.timeout_s", 30)
	v.SetDefault("discovery.grace_ms", 3000)
	v.SetDefault("discovery.interval_ms", 1000)
	v.SetDefault("discovery.max_attempts", 60)

	// Read from config file if exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/runforge/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, using defaults
	}

	// Environment variables override
	v.SetEnvPrefix("RUNFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}
