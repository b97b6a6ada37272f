// Package config defines configuration for the conso-platform binaries.
//
// Configuration is resolved in order: built-in defaults, then an optional
// YAML file, then CONSO_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration
type Config struct {
	Dataset  DatasetConfig  `yaml:"dataset"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatasetConfig configures the data.gouv.fr downloader
type DatasetConfig struct {
	ID                  string        `yaml:"id"`
	BaseURL             string        `yaml:"base_url"`
	Timeout             time.Duration `yaml:"timeout"`
	MaxRetries          int           `yaml:"max_retries"`
	SleepBetweenRetries time.Duration `yaml:"sleep_between_retries"`
	DownloadDir         string        `yaml:"download_dir"`

	// URLContains, when non-empty, restricts downloads to resource URLs
	// containing the substring
	URLContains string `yaml:"url_contains"`
}

// ServerConfig configures the HTTP API server
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// DatabaseConfig configures the PostgreSQL connection
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// LoggingConfig configures log output
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns a Config with sensible defaults
func Default() Config {
	return Config{
		Dataset: DatasetConfig{
			BaseURL:             "https://www.data.gouv.fr",
			Timeout:             30 * time.Second,
			MaxRetries:          3,
			SleepBetweenRetries: 2 * time.Second,
			DownloadDir:         "./data/rte",
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Password:        "postgres",
			Database:        "conso",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig builds the configuration from defaults, the file named by
// CONSO_CONFIG_FILE (when set), and CONSO_* environment variables
func LoadConfig() (Config, error) {
	cfg := Default()

	if path := os.Getenv("CONSO_CONFIG_FILE"); path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = fileCfg
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file, layered over defaults
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv overrides configuration from CONSO_* environment variables
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("CONSO_DATASET_ID"); v != "" {
		c.Dataset.ID = v
	}
	if v := os.Getenv("CONSO_DATASET_BASE_URL"); v != "" {
		c.Dataset.BaseURL = v
	}
	if v := os.Getenv("CONSO_DATASET_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse CONSO_DATASET_TIMEOUT: %w", err)
		}
		c.Dataset.Timeout = d
	}
	if v := os.Getenv("CONSO_DATASET_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse CONSO_DATASET_MAX_RETRIES: %w", err)
		}
		c.Dataset.MaxRetries = n
	}
	if v := os.Getenv("CONSO_DATASET_SLEEP_BETWEEN_RETRIES"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse CONSO_DATASET_SLEEP_BETWEEN_RETRIES: %w", err)
		}
		c.Dataset.SleepBetweenRetries = d
	}
	if v := os.Getenv("CONSO_DATASET_DOWNLOAD_DIR"); v != "" {
		c.Dataset.DownloadDir = v
	}
	if v := os.Getenv("CONSO_DATASET_URL_CONTAINS"); v != "" {
		c.Dataset.URLContains = v
	}
	if v := os.Getenv("CONSO_SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("CONSO_SERVER_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse CONSO_SERVER_PORT: %w", err)
		}
		c.Server.Port = n
	}
	if v := os.Getenv("CONSO_DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("CONSO_DB_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse CONSO_DB_PORT: %w", err)
		}
		c.Database.Port = n
	}
	if v := os.Getenv("CONSO_DB_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("CONSO_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("CONSO_DB_NAME"); v != "" {
		c.Database.Database = v
	}
	if v := os.Getenv("CONSO_DB_SSL_MODE"); v != "" {
		c.Database.SSLMode = v
	}
	if v := os.Getenv("CONSO_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Dataset.ID == "" {
		return errors.New("config: dataset id is required")
	}
	if c.Dataset.MaxRetries < 1 {
		return errors.New("config: dataset max_retries must be at least 1")
	}
	if c.Dataset.Timeout <= 0 {
		return errors.New("config: dataset timeout must be positive")
	}
	if c.Dataset.SleepBetweenRetries < 0 {
		return errors.New("config: dataset sleep_between_retries must not be negative")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("config: server port out of range")
	}
	return nil
}
