package config

import (
	"time"

	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/choiwjun/blogflow/internal/retry"
	"github.com/choiwjun/blogflow/pkg/logger"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logger    logger.Config   `yaml:"logger"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Publisher PublisherConfig `yaml:"publisher"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
}

type SchedulerConfig struct {
	Interval string `yaml:"interval"`
	Enabled  bool   `yaml:"enabled"`
	// Secret guards the HTTP trigger endpoint via a bearer header. An empty
	// secret leaves the endpoint unauthenticated, an intentional operational
	// mode for trusted-network deployments.
	Secret string `yaml:"secret"`
}

type PublisherConfig struct {
	MaxRetries int    `yaml:"max_retries"`
	BaseDelay  string `yaml:"base_delay"`
	MaxDelay   string `yaml:"max_delay"`
	// MaxAutoRetries caps how many times the scheduler re-attempts a failed
	// post before leaving it for an explicit user retry.
	MaxAutoRetries int `yaml:"max_auto_retries"`
	BatchSize      int `yaml:"batch_size"`
}

// RetryConfig builds the backoff configuration, falling back to defaults for
// unset or malformed values.
func (c *PublisherConfig) RetryConfig() retry.Config {
	cfg := retry.DefaultConfig
	if c.MaxRetries > 0 {
		cfg.MaxRetries = c.MaxRetries
	}
	if d, err := time.ParseDuration(c.BaseDelay); err == nil && d > 0 {
		cfg.BaseDelay = d
	}
	if d, err := time.ParseDuration(c.MaxDelay); err == nil && d > 0 {
		cfg.MaxDelay = d
	}
	return cfg
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5440
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if cfg.Scheduler.Interval == "" {
		cfg.Scheduler.Interval = "1m"
	}
	if cfg.Publisher.MaxAutoRetries == 0 {
		cfg.Publisher.MaxAutoRetries = 3
	}
	if cfg.Publisher.BatchSize == 0 {
		cfg.Publisher.BatchSize = 20
	}
}

// ParseInterval returns the scheduler tick interval.
func (c *SchedulerConfig) ParseInterval() (time.Duration, error) {
	return time.ParseDuration(c.Interval)
}
