package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        string `yaml:"port"`
	Environment string `yaml:"environment"`
	CORSOrigins string `yaml:"cors_origins"`
	TablePrefix string `yaml:"table_prefix"`

	// Storage: "postgres" or "badger"
	StoreDriver string `yaml:"store_driver"`
	DatabaseURL string `yaml:"database_url"`
	BadgerDir   string `yaml:"badger_dir"`

	// Change feed: "redis" or "memory"
	FeedDriver   string `yaml:"feed_driver"`
	RedisURL     string `yaml:"redis_url"`
	FeedStream   string `yaml:"feed_stream"`
	FeedGroup    string `yaml:"feed_group"`
	FeedConsumer string `yaml:"feed_consumer"`

	// Auth
	JWKSURL      string `yaml:"jwks_url"`
	JWTAudience  string `yaml:"jwt_audience"`
	AuthDisabled bool   `yaml:"auth_disabled"`
	DevUserID    string `yaml:"dev_user_id"`

	// Background work
	RepairWorkers int `yaml:"repair_workers"`

	LogDir         string `yaml:"log_dir"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// Load reads configuration from the environment. When CONFIG_FILE names a
// YAML file, its values are applied first and environment variables override them.
func Load() (*Config, error) {
	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Port:           "8080",
		Environment:    "dev",
		CORSOrigins:    "http://localhost:3000",
		StoreDriver:    "badger",
		BadgerDir:      "./data/badger",
		FeedDriver:     "memory",
		FeedStream:     "dashboards:changes",
		FeedGroup:      "audit",
		RepairWorkers:  2,
		DevUserID:      "dev-user",
		MetricsEnabled: true,
	}
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.CORSOrigins = getEnv("CORS_ORIGINS", c.CORSOrigins)
	c.TablePrefix = getTablePrefix(c.Environment, c.TablePrefix)

	c.StoreDriver = getEnv("STORE_DRIVER", c.StoreDriver)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.BadgerDir = getEnv("BADGER_DIR", c.BadgerDir)

	c.FeedDriver = getEnv("FEED_DRIVER", c.FeedDriver)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.FeedStream = getEnv("FEED_STREAM", c.FeedStream)
	c.FeedGroup = getEnv("FEED_GROUP", c.FeedGroup)
	c.FeedConsumer = getEnv("FEED_CONSUMER", c.FeedConsumer)
	if c.FeedConsumer == "" {
		host, _ := os.Hostname()
		c.FeedConsumer = getEnv("HOSTNAME", host)
	}

	c.JWKSURL = getEnv("JWKS_URL", c.JWKSURL)
	c.JWTAudience = getEnv("JWT_AUDIENCE", c.JWTAudience)
	c.AuthDisabled = getBool("AUTH_DISABLED", c.AuthDisabled)
	c.DevUserID = getEnv("DEV_USER_ID", c.DevUserID)

	c.RepairWorkers = getInt("REPAIR_WORKERS", c.RepairWorkers)
	c.LogDir = getEnv("LOG_DIR", c.LogDir)
	c.MetricsEnabled = getBool("METRICS_ENABLED", c.MetricsEnabled)
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for store driver postgres")
		}
	case "badger":
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	switch c.FeedDriver {
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for feed driver redis")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown feed driver %q", c.FeedDriver)
	}
	if !c.AuthDisabled && c.JWKSURL == "" {
		return fmt.Errorf("JWKS_URL is required unless AUTH_DISABLED=true")
	}
	if c.RepairWorkers < 1 {
		return fmt.Errorf("REPAIR_WORKERS must be at least 1")
	}
	return nil
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env, configured string) string {
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}
	if configured != "" {
		return configured
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}
