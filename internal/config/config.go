// Copyright 2025 James Ross
// Package config loads VaultKeep's operator-facing deployment
// configuration: which storage backend to mount, connection parameters for
// it, and engine/observability tuning. This is distinct from
// internal/repoconfig, which is the immutable per-repository format record
// stamped into the backup root itself.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend selects which storage.Backend implementation the engine mounts.
type Backend string

const (
	BackendLocal Backend = "local"
	BackendS3    Backend = "s3"
	BackendRedis Backend = "redis"
)

type LocalConfig struct {
	Path string `mapstructure:"path"`
}

type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	Prefix          string `mapstructure:"prefix"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type StorageConfig struct {
	Backend Backend     `mapstructure:"backend"`
	Local   LocalConfig `mapstructure:"local"`
	S3      S3Config    `mapstructure:"s3"`
	Redis   RedisConfig `mapstructure:"redis"`
}

type CircuitBreaker struct {
	FailureThreshold float64       `mapstructure:"failure_threshold"`
	Window           time.Duration `mapstructure:"window"`
	CooldownPeriod   time.Duration `mapstructure:"cooldown_period"`
	MinSamples       int           `mapstructure:"min_samples"`
}

// EngineConfig tunes the ingest/materialise pipeline independent of the
// repository's fixed format (internal/repoconfig owns algorithm choice).
type EngineConfig struct {
	MaxConcurrency int            `mapstructure:"max_concurrency"`
	CircuitBreaker CircuitBreaker `mapstructure:"circuit_breaker"`
}

type TracingConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	Endpoint         string  `mapstructure:"endpoint"`
	Environment      string  `mapstructure:"environment"`
	SamplingStrategy string  `mapstructure:"sampling_strategy"`
	SamplingRate     float64 `mapstructure:"sampling_rate"`
}

type ObservabilityConfig struct {
	MetricsPort int           `mapstructure:"metrics_port"`
	LogLevel    string        `mapstructure:"log_level"`
	Tracing     TracingConfig `mapstructure:"tracing"`
}

type Config struct {
	Storage       StorageConfig       `mapstructure:"storage"`
	Engine        EngineConfig        `mapstructure:"engine"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

func defaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: BackendLocal,
			Local:   LocalConfig{Path: "./vaultkeep-data"},
			Redis:   RedisConfig{Addr: "localhost:6379", KeyPrefix: "vaultkeep:"},
		},
		Engine: EngineConfig{
			MaxConcurrency: 8,
			CircuitBreaker: CircuitBreaker{
				FailureThreshold: 0.5,
				Window:           1 * time.Minute,
				CooldownPeriod:   30 * time.Second,
				MinSamples:       20,
			},
		},
		Observability: ObservabilityConfig{
			MetricsPort: 9090,
			LogLevel:    "info",
			Tracing:     TracingConfig{Enabled: false},
		},
	}
}

// Load reads configuration from a YAML file and environment overrides, the
// same way the teacher's internal/config.Load does: viper defaults set
// first, an optional file layered on top, then automatic env overrides
// with "." replaced by "_".
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaultConfig()
	v.SetDefault("storage.backend", def.Storage.Backend)
	v.SetDefault("storage.local.path", def.Storage.Local.Path)
	v.SetDefault("storage.redis.addr", def.Storage.Redis.Addr)
	v.SetDefault("storage.redis.key_prefix", def.Storage.Redis.KeyPrefix)
	v.SetDefault("storage.redis.db", def.Storage.Redis.DB)

	v.SetDefault("engine.max_concurrency", def.Engine.MaxConcurrency)
	v.SetDefault("engine.circuit_breaker.failure_threshold", def.Engine.CircuitBreaker.FailureThreshold)
	v.SetDefault("engine.circuit_breaker.window", def.Engine.CircuitBreaker.Window)
	v.SetDefault("engine.circuit_breaker.cooldown_period", def.Engine.CircuitBreaker.CooldownPeriod)
	v.SetDefault("engine.circuit_breaker.min_samples", def.Engine.CircuitBreaker.MinSamples)

	v.SetDefault("observability.metrics_port", def.Observability.MetricsPort)
	v.SetDefault("observability.log_level", def.Observability.LogLevel)
	v.SetDefault("observability.tracing.enabled", def.Observability.Tracing.Enabled)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks config constraints and returns an error on invalid
// settings.
func Validate(cfg *Config) error {
	switch cfg.Storage.Backend {
	case BackendLocal, BackendS3, BackendRedis:
	default:
		return fmt.Errorf("storage.backend must be one of local, s3, redis; got %q", cfg.Storage.Backend)
	}
	if cfg.Storage.Backend == BackendLocal && cfg.Storage.Local.Path == "" {
		return fmt.Errorf("storage.local.path is required when storage.backend is local")
	}
	if cfg.Storage.Backend == BackendS3 && cfg.Storage.S3.Bucket == "" {
		return fmt.Errorf("storage.s3.bucket is required when storage.backend is s3")
	}
	if cfg.Storage.Backend == BackendRedis && cfg.Storage.Redis.Addr == "" {
		return fmt.Errorf("storage.redis.addr is required when storage.backend is redis")
	}
	if cfg.Engine.MaxConcurrency < 1 {
		return fmt.Errorf("engine.max_concurrency must be >= 1")
	}
	if cfg.Observability.MetricsPort <= 0 || cfg.Observability.MetricsPort > 65535 {
		return fmt.Errorf("observability.metrics_port must be 1..65535")
	}
	return nil
}
