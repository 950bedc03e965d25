package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const envPrefix = "PRESI"

type Config struct {
	Spool    SpoolConfig    `yaml:"spool" envconfig:"SPOOL"`
	Printers PrintersConfig `yaml:"printers" envconfig:"PRINTERS"`
	API      APIConfig      `yaml:"api" envconfig:"API"`
	Journal  JournalConfig  `yaml:"journal" envconfig:"JOURNAL"`
	Webhooks WebhooksConfig `yaml:"webhooks" envconfig:"WEBHOOKS"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOG"`
}

type SpoolConfig struct {
	MaxJobs         int           `yaml:"max_jobs" split_words:"true"`
	MaxTypes        int           `yaml:"max_types" split_words:"true"`
	RetentionWindow time.Duration `yaml:"retention_window" split_words:"true"`
	ReapInterval    time.Duration `yaml:"reap_interval" split_words:"true"`
}

type PrintersConfig struct {
	SpoolDir          string            `yaml:"spool_dir" split_words:"true"`
	ConnectionTimeout time.Duration     `yaml:"connection_timeout" split_words:"true"`
	Devices           map[string]string `yaml:"devices" split_words:"true"`
}

type APIConfig struct {
	Enabled        bool          `yaml:"enabled" split_words:"true"`
	Addr           string        `yaml:"addr" split_words:"true"`
	JWTSecret      string        `yaml:"jwt_secret" split_words:"true"`
	RateLimitRPS   int           `yaml:"rate_limit_rps" split_words:"true"`
	RateLimitBurst int           `yaml:"rate_limit_burst" split_words:"true"`
	ReadTimeout    time.Duration `yaml:"read_timeout" split_words:"true"`
	WriteTimeout   time.Duration `yaml:"write_timeout" split_words:"true"`
}

type JournalConfig struct {
	Path          string `yaml:"path" split_words:"true"`
	RetentionDays int    `yaml:"retention_days" split_words:"true"`
	ArchiveDir    string `yaml:"archive_dir" split_words:"true"`
}

type WebhooksConfig struct {
	Endpoints  []string      `yaml:"urls" split_words:"true"`
	Secret     string        `yaml:"secret" split_words:"true"`
	RetryCount int           `yaml:"retry_count" split_words:"true"`
	Timeout    time.Duration `yaml:"timeout" split_words:"true"`
	QueueSize  int           `yaml:"queue_size" split_words:"true"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" split_words:"true"`
	Format string `yaml:"format" split_words:"true"`
}

func defaults() *Config {
	return &Config{
		Spool: SpoolConfig{
			MaxJobs:         64,
			MaxTypes:        32,
			RetentionWindow: 10 * time.Second,
			ReapInterval:    1 * time.Second,
		},
		Printers: PrintersConfig{
			SpoolDir:          "./data/spool",
			ConnectionTimeout: 10 * time.Second,
			Devices:           map[string]string{},
		},
		API: APIConfig{
			Enabled:        false,
			Addr:           "127.0.0.1:8631",
			RateLimitRPS:   20,
			RateLimitBurst: 40,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
		},
		Journal: JournalConfig{
			RetentionDays: 30,
		},
		Webhooks: WebhooksConfig{
			RetryCount: 3,
			Timeout:    10 * time.Second,
			QueueSize:  100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Default returns the built-in configuration without consulting the
// filesystem or environment.
func Default() *Config {
	return defaults()
}

// Load reads configPath over the defaults, then applies PRESI_* environment
// overrides. A missing file is not an error.
func Load(configPath string) (*Config, error) {
	cfg := defaults()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv returns the defaults with environment overrides applied.
func LoadFromEnv() (*Config, error) {
	cfg := defaults()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return fmt.Errorf("failed to apply environment: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Spool.MaxJobs < 1 || c.Spool.MaxJobs > 1024 {
		return fmt.Errorf("max jobs must be between 1 and 1024, got %d", c.Spool.MaxJobs)
	}

	if c.Spool.MaxTypes < 1 {
		return fmt.Errorf("max types must be at least 1")
	}

	if c.Spool.RetentionWindow < 0 {
		return fmt.Errorf("retention window must be non-negative")
	}

	if c.Spool.ReapInterval <= 0 {
		return fmt.Errorf("reap interval must be positive")
	}

	if c.Printers.ConnectionTimeout < 0 {
		return fmt.Errorf("connection timeout must be non-negative")
	}

	if c.API.Enabled && c.API.Addr == "" {
		return fmt.Errorf("api address is required when the api is enabled")
	}

	if c.API.RateLimitRPS < 0 || c.API.RateLimitBurst < 0 {
		return fmt.Errorf("api rate limits must be non-negative")
	}

	if c.Journal.RetentionDays < 0 {
		return fmt.Errorf("journal retention days must be non-negative")
	}

	if c.Webhooks.RetryCount < 0 {
		return fmt.Errorf("webhook retry count must be non-negative")
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
		"json":  true,
		"text":  true,
		"plain": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text, plain)", c.Logging.Format)
	}

	return nil
}
