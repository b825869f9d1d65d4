package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the client
type Config struct {
	API       APIConfig       `yaml:"api"`
	Session   SessionConfig   `yaml:"session"`
	Feed      FeedConfig      `yaml:"feed"`
	Notify    NotifyConfig    `yaml:"notify"`
	Media     MediaConfig     `yaml:"media"`
	DevServer DevServerConfig `yaml:"devserver"`
	Log       LogConfig       `yaml:"log"`
}

// APIConfig holds backend endpoints
type APIConfig struct {
	BaseURL   string        `yaml:"base_url"`
	SocketURL string        `yaml:"socket_url"`
	Timeout   time.Duration `yaml:"timeout"`
}

// SessionConfig selects where the bearer token is persisted
type SessionConfig struct {
	Store string `yaml:"store"` // memory, file, sqlite, postgres
	Path  string `yaml:"path"`  // file and sqlite stores
	DSN   string `yaml:"dsn"`   // postgres store
}

// FeedConfig holds feed behaviour
type FeedConfig struct {
	SuperlikeBudget int `yaml:"superlike_budget"`
}

// NotifyConfig holds push relay configuration
type NotifyConfig struct {
	APNs APNsConfig `yaml:"apns"`
}

// APNsConfig holds Apple push credentials
type APNsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	KeyPath     string `yaml:"key_path"` // .p8 auth key
	KeyID       string `yaml:"key_id"`
	TeamID      string `yaml:"team_id"`
	Topic       string `yaml:"topic"`
	DeviceToken string `yaml:"device_token"`
	Production  bool   `yaml:"production"`
}

// MediaConfig holds S3 configuration for profile photos
type MediaConfig struct {
	Region    string `yaml:"region"`
	S3Bucket  string `yaml:"s3_bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Endpoint  string `yaml:"endpoint"`
	PublicURL string `yaml:"public_url"`
}

// DevServerConfig holds configuration of the local development backend
type DevServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:   "http://localhost:7777",
			SocketURL: "ws://localhost:7777",
			Timeout:   15 * time.Second,
		},
		Session: SessionConfig{
			Store: "file",
			Path:  defaultTokenPath(),
		},
		Feed: FeedConfig{
			SuperlikeBudget: 1,
		},
		DevServer: DevServerConfig{
			Host:      "127.0.0.1",
			Port:      7777,
			JWTSecret: "techtribe-dev-secret",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a YAML file and overlays environment variables.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that cannot be defaulted
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.Feed.SuperlikeBudget < 0 {
		return fmt.Errorf("feed.superlike_budget must not be negative")
	}
	switch c.Session.Store {
	case "memory":
	case "file", "sqlite":
		if c.Session.Path == "" {
			return fmt.Errorf("session.path is required for the %s store", c.Session.Store)
		}
	case "postgres":
		if c.Session.DSN == "" {
			return fmt.Errorf("session.dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown session store %q", c.Session.Store)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.API.BaseURL = getEnv("TECHTRIBE_BASE_URL", c.API.BaseURL)
	c.API.SocketURL = getEnv("TECHTRIBE_SOCKET_URL", c.API.SocketURL)
	c.Session.Store = getEnv("TECHTRIBE_TOKEN_STORE", c.Session.Store)
	c.Session.Path = getEnv("TECHTRIBE_TOKEN_PATH", c.Session.Path)
	c.Session.DSN = getEnv("TECHTRIBE_TOKEN_DSN", c.Session.DSN)
	c.Feed.SuperlikeBudget = getEnvAsInt("TECHTRIBE_SUPERLIKE_BUDGET", c.Feed.SuperlikeBudget)
	c.Media.S3Bucket = getEnv("TECHTRIBE_S3_BUCKET", c.Media.S3Bucket)
	c.DevServer.JWTSecret = getEnv("TECHTRIBE_DEV_JWT_SECRET", c.DevServer.JWTSecret)
	c.Log.Level = getEnv("TECHTRIBE_LOG_LEVEL", c.Log.Level)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func defaultTokenPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".techtribe-token.yaml"
	}
	return dir + "/techtribe/token.yaml"
}
