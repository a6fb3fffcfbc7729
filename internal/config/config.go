// Package config parses and validates the queue service configuration from
// environment variables using caarlos0/env/v11.
//
// Call [Load] once at startup and pass the resulting [Config] to subcommands.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/billable/jobqueue/pkg/schedule"
)

// Config holds all service configuration sourced from environment variables.
type Config struct {
	// Database
	DatabasePath string `env:"DATABASE_PATH" envDefault:"data/queue.db"`

	// Topology. IS_PRIMARY wins when set; otherwise the node is primary when
	// PRIMARY_REGION equals FLY_REGION, or when neither is set.
	IsPrimaryOverride *bool  `env:"IS_PRIMARY"`
	PrimaryRegion     string `env:"PRIMARY_REGION"`
	Region            string `env:"FLY_REGION"`

	// Write forwarding
	BaseURL        string        `env:"BASE_URL"`
	ServiceToken   string        `env:"QUEUE_SERVICE_TOKEN"`
	ForwardTimeout time.Duration `env:"FORWARD_TIMEOUT" envDefault:"30s"`

	// Server
	ListenAddr      string        `env:"LISTEN_ADDR"      envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	RunWorker       bool          `env:"RUN_WORKER"       envDefault:"true"`

	// Worker
	PollInterval  time.Duration `env:"POLL_INTERVAL"  envDefault:"5s"`
	MaxConcurrent int           `env:"MAX_CONCURRENT" envDefault:"3"`
	BackoffBase   time.Duration `env:"BACKOFF_BASE"   envDefault:"1s"`
	BackoffMax    time.Duration `env:"BACKOFF_MAX"    envDefault:"1h"`

	// Maintenance
	CleanupSchedule  string        `env:"CLEANUP_SCHEDULE"  envDefault:"0 3 * * *"`
	CleanupRetention time.Duration `env:"CLEANUP_RETENTION" envDefault:"168h"`

	// Email
	SMTPHost     string `env:"SMTP_HOST" envDefault:"localhost"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"1025"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPTLS      bool   `env:"SMTP_TLS" envDefault:"false"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load parses Config from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsPrimary reports whether this node owns the database writes.
func (c *Config) IsPrimary() bool {
	if c.IsPrimaryOverride != nil {
		return *c.IsPrimaryOverride
	}
	return c.PrimaryRegion == c.Region
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("DATABASE_PATH is required"))
	}
	if !c.IsPrimary() {
		if c.BaseURL == "" {
			errs = append(errs, errors.New("BASE_URL is required on a replica"))
		}
		if c.ServiceToken == "" {
			errs = append(errs, errors.New("QUEUE_SERVICE_TOKEN is required on a replica"))
		}
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.PollInterval))
	}
	if c.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("MAX_CONCURRENT must be at least 1, got %d", c.MaxConcurrent))
	}
	if c.BackoffBase <= 0 || c.BackoffMax < c.BackoffBase {
		errs = append(errs, fmt.Errorf("backoff needs 0 < BACKOFF_BASE <= BACKOFF_MAX, got %s and %s", c.BackoffBase, c.BackoffMax))
	}
	if c.CleanupRetention <= 0 {
		errs = append(errs, fmt.Errorf("CLEANUP_RETENTION must be positive, got %s", c.CleanupRetention))
	}
	if _, err := schedule.ParseCron(c.CleanupSchedule); err != nil {
		errs = append(errs, fmt.Errorf("CLEANUP_SCHEDULE: %w", err))
	}
	if _, ok := parseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel))
	}
	if f := strings.ToLower(c.LogFormat); f != "json" && f != "text" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q is not json or text", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Level returns the configured log level, info when unset.
func (c *Config) Level() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "", "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// String renders the configuration with secrets masked.
func (c *Config) String() string {
	return fmt.Sprintf("Config{DatabasePath:%s Primary:%t BaseURL:%s ServiceToken:%s ListenAddr:%s PollInterval:%s MaxConcurrent:%d SMTPHost:%s SMTPPassword:%s}",
		c.DatabasePath, c.IsPrimary(), c.BaseURL, mask(c.ServiceToken), c.ListenAddr, c.PollInterval, c.MaxConcurrent, c.SMTPHost, mask(c.SMTPPassword))
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}
