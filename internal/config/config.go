package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Routing   RoutingConfig   `yaml:"routing"`
	Transport TransportConfig `yaml:"transport"`
	Upload    UploadConfig    `yaml:"upload"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Policy    PolicyConfig    `yaml:"policy"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

type RoutingConfig struct {
	EndpointPriority  []string `yaml:"endpoint_priority"`
	ValidatePriority  bool     `yaml:"validate_priority"`
	ValidateConflicts bool     `yaml:"validate_conflicts"`
	ConflictBehavior  string   `yaml:"conflict_behavior"`
}

type TransportConfig struct {
	BaseURL                  string        `yaml:"base_url"`
	APIKey                   string        `yaml:"api_key"`
	Timeout                  time.Duration `yaml:"timeout"`
	MaxRetries               int           `yaml:"max_retries"`
	InitialDelayMs           int           `yaml:"initial_delay_ms"`
	MaxDelayMs               int           `yaml:"max_delay_ms"`
	IdempotencyBucketSeconds int           `yaml:"idempotency_bucket_seconds"`
	FailureThreshold         int           `yaml:"failure_threshold"`
}

type UploadConfig struct {
	MaxAudioFileBytes int64 `yaml:"max_audio_file_bytes"`
	MaxImageFileBytes int64 `yaml:"max_image_file_bytes"`
}

type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPort int    `yaml:"metrics_port"`
}

type PolicyConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BundlePath        string        `yaml:"bundle_path"`
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     120 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Routing: RoutingConfig{
			ConflictBehavior: "warn",
		},
		Transport: TransportConfig{
			BaseURL:                  "https://api.openai.com",
			Timeout:                  120 * time.Second,
			MaxRetries:               2,
			InitialDelayMs:           200,
			MaxDelayMs:               5000,
			IdempotencyBucketSeconds: 60,
			FailureThreshold:         3,
		},
		Upload: UploadConfig{
			MaxAudioFileBytes: 25 * 1024 * 1024,
			MaxImageFileBytes: 4 * 1024 * 1024,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "prism",
			User:            "prism",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addresses: []string{"localhost:6379"},
			DB:        0,
			PoolSize:  50,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsPort: 9090,
		},
		Policy: PolicyConfig{
			Enabled:           false,
			BundlePath:        "/etc/prism/policies",
			EvaluationTimeout: 100 * time.Millisecond,
		},
	}
}
