package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Queue     QueueConfig     `yaml:"queue"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Logging   LoggingConfig   `yaml:"logging"`
	Webhooks  WebhooksConfig  `yaml:"webhooks"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// AuthSecret enables bearer-token auth on the control API when set.
	AuthSecret        string `yaml:"auth_secret"`
	AdminPasswordHash string `yaml:"admin_password_hash"`
}

type DatabaseConfig struct {
	Path     string `yaml:"path"`
	LockPath string `yaml:"lock_path"`
}

type QueueConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	BatchSize    int           `yaml:"batch_size"`
	TickInterval time.Duration `yaml:"tick_interval"`
	// PrintTimeout bounds one driver call; zero leaves it unbounded.
	PrintTimeout time.Duration `yaml:"print_timeout"`
}

type DiscoveryConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type WebhooksConfig struct {
	Targets    []WebhookTarget `yaml:"targets"`
	RetryCount int             `yaml:"retry_count"`
	RetryDelay time.Duration   `yaml:"retry_delay"`
	Timeout    time.Duration   `yaml:"timeout"`
	Workers    int             `yaml:"workers"`
	QueueSize  int             `yaml:"queue_size"`
}

type WebhookTarget struct {
	URL    string `yaml:"url"`
	Secret string `yaml:"secret"`
	// Events limits delivery to these event types; empty means all.
	Events []string `yaml:"events"`
}

func (t WebhookTarget) Wants(event string) bool {
	if len(t.Events) == 0 {
		return true
	}
	for _, e := range t.Events {
		if e == event {
			return true
		}
	}
	return false
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8765,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:     "./data/print_queue.db",
			LockPath: "./data/spoold.lock",
		},
		Queue: QueueConfig{
			MaxRetries:   3,
			BatchSize:    5,
			TickInterval: 10 * time.Second,
		},
		Discovery: DiscoveryConfig{
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
		Webhooks: WebhooksConfig{
			RetryCount: 3,
			RetryDelay: 2 * time.Second,
			Timeout:    10 * time.Second,
			Workers:    2,
			QueueSize:  100,
		},
	}
}

// Load reads a YAML file over the defaults. A missing file is not an error.
func Load(configPath string) (*Config, error) {
	cfg := Default()
	if configPath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

func LoadFromEnv() *Config {
	cfg := Default()
	cfg.ApplyEnv()
	return cfg
}

// ApplyEnv overrides fields from SPOOL_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("SPOOL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}

	if v := os.Getenv("SPOOL_DB_PATH"); v != "" {
		c.Database.Path = v
	}

	if v := os.Getenv("SPOOL_LOCK_PATH"); v != "" {
		c.Database.LockPath = v
	}

	if v := os.Getenv("SPOOL_AUTH_SECRET"); v != "" {
		c.Server.AuthSecret = v
	}

	if v := os.Getenv("SPOOL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv("SPOOL_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Server.AdminPasswordHash != "" && c.Server.AuthSecret == "" {
		return fmt.Errorf("admin password hash requires an auth secret")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Queue.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1")
	}

	if c.Queue.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1")
	}

	if c.Queue.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive")
	}

	if c.Queue.PrintTimeout < 0 {
		return fmt.Errorf("print timeout must be non-negative")
	}

	if c.Discovery.Timeout <= 0 {
		return fmt.Errorf("discovery timeout must be positive")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"auto":    true,
		"json":    true,
		"console": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: auto, json, console)", c.Logging.Format)
	}

	validEvents := map[string]bool{
		"queue_updated": true,
		"print_success": true,
		"print_error":   true,
	}

	for i, target := range c.Webhooks.Targets {
		u, err := url.Parse(target.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("webhook %d: url must be an absolute http(s) URL, got %q", i, target.URL)
		}
		for _, e := range target.Events {
			if !validEvents[e] {
				return fmt.Errorf("webhook %d: unknown event %q", i, e)
			}
		}
	}

	return nil
}

func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
