package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// SecuritySeed is a catalog entry ensured at startup.
type SecuritySeed struct {
	Ticker string `yaml:"ticker"`
	Name   string `yaml:"name"`
}

type Config struct {
	Port            string         `yaml:"port"`
	DBDriver        string         `yaml:"dbDriver"`
	DBPath          string         `yaml:"dbPath"`
	DatabaseURL     string         `yaml:"databaseURL"`
	Workers         int            `yaml:"workers"`
	LogLevel        string         `yaml:"logLevel"`
	LogFormat       string         `yaml:"logFormat"`
	RedisURL        string         `yaml:"redisURL"`
	RedisChannel    string         `yaml:"redisChannel"`
	StreamKeepAlive time.Duration  `yaml:"streamKeepAlive"`
	Securities      []SecuritySeed `yaml:"securities"`
}

func defaults() Config {
	return Config{
		Port:            "8080",
		DBDriver:        DriverSQLite,
		DBPath:          "stockdash.db",
		Workers:         5,
		LogLevel:        "info",
		LogFormat:       "text",
		RedisChannel:    "stockdash:import:status",
		StreamKeepAlive: 5 * time.Second,
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variables.
//
// The catalog starts empty: imports only accept tickers listed under
// securities: in the file or in SECURITIES ("AAPL:Apple Inc.,MSFT"),
// which replaces the file's list when set.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DBDriver = getEnv("DB_DRIVER", cfg.DBDriver)
	cfg.DBPath = getEnv("DB_PATH", cfg.DBPath)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.Workers = getEnvInt("WORKERS", cfg.Workers)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.RedisChannel = getEnv("REDIS_CHANNEL", cfg.RedisChannel)
	cfg.StreamKeepAlive = getEnvDuration("STREAM_KEEPALIVE", cfg.StreamKeepAlive)
	cfg.Securities = getEnvSecurities("SECURITIES", cfg.Securities)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %q: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for sqlite")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database url cannot be empty for postgres")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.DBDriver)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be greater than 0")
	}
	if c.StreamKeepAlive <= 0 {
		return fmt.Errorf("stream keep-alive must be greater than 0")
	}
	for i, s := range c.Securities {
		if s.Ticker == "" {
			return fmt.Errorf("security %d must have a ticker", i)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return fallback
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getEnvSecurities(key string, fallback []SecuritySeed) []SecuritySeed {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var seeds []SecuritySeed
	for _, entry := range strings.Split(v, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		ticker, name, _ := strings.Cut(entry, ":")
		seeds = append(seeds, SecuritySeed{
			Ticker: strings.ToUpper(strings.TrimSpace(ticker)),
			Name:   strings.TrimSpace(name),
		})
	}
	return seeds
}
