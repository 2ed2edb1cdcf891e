// Package config loads service configuration from config.yaml and environment.
// Environment variables use the BACKOFFICE_ prefix with dots replaced by
// underscores, e.g. BACKOFFICE_DATABASE_DSN.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"backoffice/pkg/logger"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Labels   LabelsConfig   `mapstructure:"labels"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

type ServerConfig struct {
	Port               string        `mapstructure:"port"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	IdempotencyEnabled bool          `mapstructure:"idempotency_enabled"`
	IdempotencyTTL     time.Duration `mapstructure:"idempotency_ttl"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
	Compress    bool   `mapstructure:"compress"`
}

// ToLoggerConfig maps log settings onto pkg/logger.
func (c LogConfig) ToLoggerConfig() logger.Config {
	return logger.Config{
		Level:       c.Level,
		Development: c.Development,
		File:        c.File,
		MaxSizeMB:   c.MaxSizeMB,
		MaxBackups:  c.MaxBackups,
		MaxAgeDays:  c.MaxAgeDays,
		Compress:    c.Compress,
	}
}

type DatabaseConfig struct {
	DSN               string        `mapstructure:"dsn"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	StatementTimeout  time.Duration `mapstructure:"statement_timeout"`
}

// Allocation strategies for barcode serials.
const (
	StrategyCounter = "counter"
	StrategyScan    = "scan"
)

type LabelsConfig struct {
	// Strategy is "counter" (sys_sequences row, seeded once from existing
	// barcodes) or "scan" (max existing suffix + 1).
	Strategy string `mapstructure:"strategy"`
	// ScanWindow is how many recent serials the scan inspects.
	ScanWindow int `mapstructure:"scan_window"`

	TxTimeout           time.Duration `mapstructure:"tx_timeout"`
	RenderTimeout       time.Duration `mapstructure:"render_timeout"`
	CompensationTimeout time.Duration `mapstructure:"compensation_timeout"`
	MaxRetries          int           `mapstructure:"max_retries"`

	RenderWorkers int     `mapstructure:"render_workers"`
	Columns       int     `mapstructure:"columns"`
	RowHeightMM   float64 `mapstructure:"row_height_mm"`
	MarginMM      float64 `mapstructure:"margin_mm"`
}

type StorageConfig struct {
	Driver    string `mapstructure:"driver"` // local, s3
	Dir       string `mapstructure:"dir"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// Load reads configuration. A missing config file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./etc")

	setDefaults(v)

	v.SetEnvPrefix("BACKOFFICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.idempotency_enabled", true)
	v.SetDefault("server.idempotency_ttl", 10*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)
	v.SetDefault("database.health_check_period", time.Minute)
	v.SetDefault("database.statement_timeout", 30*time.Second)

	v.SetDefault("labels.strategy", StrategyCounter)
	v.SetDefault("labels.scan_window", 500)
	v.SetDefault("labels.tx_timeout", 10*time.Second)
	v.SetDefault("labels.render_timeout", 30*time.Second)
	v.SetDefault("labels.compensation_timeout", 10*time.Second)
	v.SetDefault("labels.max_retries", 3)
	v.SetDefault("labels.render_workers", 4)
	v.SetDefault("labels.columns", 3)
	v.SetDefault("labels.row_height_mm", 38.0)
	v.SetDefault("labels.margin_mm", 10.0)

	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.dir", "./var/artifacts")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.key_prefix", "labels")
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	switch c.Labels.Strategy {
	case StrategyCounter, StrategyScan:
	default:
		return fmt.Errorf("labels.strategy must be %q or %q, got %q", StrategyCounter, StrategyScan, c.Labels.Strategy)
	}
	switch c.Storage.Driver {
	case "local":
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage.dir is required for local storage")
		}
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Labels.Columns < 1 {
		return fmt.Errorf("labels.columns must be positive")
	}
	return nil
}
