package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Redis   RedisConfig   `yaml:"redis"`
	Steam   SteamConfig   `yaml:"steam"`
	Log     LogConfig     `yaml:"log"`
	Refresh RefreshConfig `yaml:"refresh"`
	Poller  PollerConfig  `yaml:"poller"`
	RPC     RPCConfig     `yaml:"rpc"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SteamConfig holds Steam Web API and local client settings
type SteamConfig struct {
	APIKey string `yaml:"api_key"`
	// SteamID is the 64-bit id of the user. Empty means "use the local login user".
	SteamID string `yaml:"steam_id"`
	// Root is the local Steam installation directory.
	Root string `yaml:"root"`
	// TestAppID overrides the running game when non-zero.
	TestAppID int `yaml:"test_app_id"`
	// ProgressConcurrency bounds parallel Steam requests during progress calculation.
	ProgressConcurrency int `yaml:"progress_concurrency"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// RefreshConfig controls the periodic auto refresh
type RefreshConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// PollerConfig controls the overall-progress retry loop
type PollerConfig struct {
	MaxAttempts      int           `yaml:"max_attempts"`
	Delay            time.Duration `yaml:"delay"`
	InProgressMarker string        `yaml:"in_progress_marker"`
}

// RPCConfig holds settings shared by the RPC server and its clients
type RPCConfig struct {
	// URL is where clients reach the backend.
	URL     string        `yaml:"url"`
	Secret  string        `yaml:"secret"`
	Timeout time.Duration `yaml:"timeout"`
}

// Load reads configuration from an optional YAML file, a .env file next to it
// and the environment. Environment variables win over file values.
func Load(path string) (*Config, error) {
	cfg := Config{Refresh: RefreshConfig{Enabled: true}}

	if path != "" {
		envFile := filepath.Join(filepath.Dir(path), ".env")
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		// Expand environment variables
		data = []byte(os.ExpandEnv(string(data)))

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Refresh.Enabled = true
	return cfg
}

func (c *Config) applyEnv() {
	c.Steam.APIKey = getEnv("STEAM_KEY", c.Steam.APIKey)
	c.Steam.SteamID = getEnv("STEAM_ID", c.Steam.SteamID)
	c.Steam.Root = getEnv("STEAM_ROOT", c.Steam.Root)
	c.Steam.TestAppID = getEnvInt("TEST_APP_ID", c.Steam.TestAppID)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)

	c.Server.Port = getEnvInt("PORT", c.Server.Port)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)

	c.Refresh.Interval = getEnvDuration("REFRESH_INTERVAL", c.Refresh.Interval)
	if v := os.Getenv("AUTO_REFRESH"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Refresh.Enabled = enabled
		}
	}

	c.RPC.URL = getEnv("BACKEND_URL", c.RPC.URL)
	c.RPC.Secret = getEnv("RPC_SECRET", c.RPC.Secret)
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}

	if c.Steam.Root == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Steam.Root = filepath.Join(home, ".steam", "steam")
		}
	}
	if c.Steam.ProgressConcurrency == 0 {
		c.Steam.ProgressConcurrency = 4
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Refresh.Interval == 0 {
		c.Refresh.Interval = 60 * time.Second
	}

	if c.Poller.MaxAttempts == 0 {
		c.Poller.MaxAttempts = 15
	}
	if c.Poller.Delay == 0 {
		c.Poller.Delay = 1200 * time.Millisecond
	}
	if c.Poller.InProgressMarker == "" {
		c.Poller.InProgressMarker = "in progress"
	}

	if c.RPC.URL == "" {
		c.RPC.URL = fmt.Sprintf("http://localhost:%d", c.Server.Port)
	}
	if c.RPC.Timeout == 0 {
		c.RPC.Timeout = 30 * time.Second
	}
}

// Validate rejects values that cannot work at runtime
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Refresh.Interval < time.Second {
		return fmt.Errorf("refresh interval %s is below 1s", c.Refresh.Interval)
	}
	if c.Poller.MaxAttempts < 1 {
		return fmt.Errorf("poller max_attempts must be at least 1, got %d", c.Poller.MaxAttempts)
	}
	if c.Poller.Delay < 0 {
		return fmt.Errorf("poller delay must not be negative")
	}
	if c.Steam.SteamID != "" {
		if _, err := strconv.ParseUint(c.Steam.SteamID, 10, 64); err != nil {
			return fmt.Errorf("invalid steam_id %q: must be numeric", c.Steam.SteamID)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
