// Package config loads service configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the session service configuration
type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	EvaluatorURL     string        `mapstructure:"EVALUATOR_URL"`
	EvaluatorTimeout time.Duration `mapstructure:"EVALUATOR_TIMEOUT"`

	MountDebounce      time.Duration `mapstructure:"MOUNT_DEBOUNCE"`
	LiveDebounce       time.Duration `mapstructure:"LIVE_DEBOUNCE"`
	DefaultPlaceholder string        `mapstructure:"DEFAULT_PLACEHOLDER"`

	DispatchWorkers int `mapstructure:"DISPATCH_WORKERS"`
	DispatchQueue   int `mapstructure:"DISPATCH_QUEUE"`

	KafkaBrokers  []string `mapstructure:"KAFKA_BROKERS"`
	CommitsTopic  string   `mapstructure:"COMMITS_TOPIC"`
	ReadingsTopic string   `mapstructure:"READINGS_TOPIC"`
	ConsumerGroup string   `mapstructure:"CONSUMER_GROUP"`
	EnsureTopics  bool     `mapstructure:"ENSURE_TOPICS"`

	OTLPEndpoint    string  `mapstructure:"OTLP_ENDPOINT"`
	TraceSampleRate float64 `mapstructure:"TRACE_SAMPLE_RATE"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"EVALUATOR_URL", "EVALUATOR_TIMEOUT",
	"MOUNT_DEBOUNCE", "LIVE_DEBOUNCE", "DEFAULT_PLACEHOLDER",
	"DISPATCH_WORKERS", "DISPATCH_QUEUE",
	"KAFKA_BROKERS", "COMMITS_TOPIC", "READINGS_TOPIC", "CONSUMER_GROUP", "ENSURE_TOPICS",
	"OTLP_ENDPOINT", "TRACE_SAMPLE_RATE",
}

// Load reads configuration. The .env file is optional.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8081")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("EVALUATOR_URL", "http://localhost:8000/api/evaluate-reading")
	v.SetDefault("EVALUATOR_TIMEOUT", "0s")
	v.SetDefault("MOUNT_DEBOUNCE", "300ms")
	v.SetDefault("LIVE_DEBOUNCE", "600ms")
	v.SetDefault("DEFAULT_PLACEHOLDER", "--")
	v.SetDefault("DISPATCH_WORKERS", 16)
	v.SetDefault("DISPATCH_QUEUE", 1024)
	v.SetDefault("COMMITS_TOPIC", "field.commits")
	v.SetDefault("READINGS_TOPIC", "field.readings")
	v.SetDefault("CONSUMER_GROUP", "field-session")
	v.SetDefault("ENSURE_TOPICS", false)
	v.SetDefault("TRACE_SAMPLE_RATE", 1.0)

	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind %s: %w", k, err)
		}
	}

	if err := v.ReadInConfig(); err != nil && !missingConfigFile(err) {
		return nil, fmt.Errorf("read .env: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// a single comma-separated env value arrives as one element
	if len(cfg.KafkaBrokers) == 1 && strings.Contains(cfg.KafkaBrokers[0], ",") {
		cfg.KafkaBrokers = strings.Split(cfg.KafkaBrokers[0], ",")
	}
	if len(cfg.KafkaBrokers) == 0 {
		if brokers := v.GetString("KAFKA_BROKERS"); brokers != "" {
			cfg.KafkaBrokers = strings.Split(brokers, ",")
		}
	}
	for i, b := range cfg.KafkaBrokers {
		cfg.KafkaBrokers[i] = strings.TrimSpace(b)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func missingConfigFile(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.Is(err, fs.ErrNotExist) || errors.As(err, &notFound)
}

// Validate checks the configuration is usable
func (c *Config) Validate() error {
	if c.EvaluatorURL == "" {
		return errors.New("EVALUATOR_URL is required")
	}
	if u, err := url.Parse(c.EvaluatorURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("EVALUATOR_URL %q is not an absolute URL", c.EvaluatorURL)
	}
	if c.EvaluatorTimeout < 0 {
		return errors.New("EVALUATOR_TIMEOUT must not be negative")
	}
	if c.MountDebounce <= 0 || c.LiveDebounce <= 0 {
		return errors.New("MOUNT_DEBOUNCE and LIVE_DEBOUNCE must be positive")
	}
	if c.DispatchWorkers <= 0 {
		return fmt.Errorf("DISPATCH_WORKERS must be positive, got %d", c.DispatchWorkers)
	}
	if c.DispatchQueue <= 0 {
		return fmt.Errorf("DISPATCH_QUEUE must be positive, got %d", c.DispatchQueue)
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		return fmt.Errorf("TRACE_SAMPLE_RATE must be within [0, 1], got %v", c.TraceSampleRate)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

// IsDev reports whether the service runs in development mode
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// KafkaEnabled reports whether brokers are configured
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// NewLogger builds the service logger at the configured level
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if c.IsDev() {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
