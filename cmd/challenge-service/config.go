package main

import (
	"fmt"
	"os"
	"time"

	"codequest/internal/common/cache"
	"codequest/internal/common/db"
	"codequest/internal/common/mq"
	"codequest/internal/submission/service"
	"codequest/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8080"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// TopicConfig names the durable topics the service talks to.
type TopicConfig struct {
	Jobs     string `yaml:"jobs"`
	Verdicts string `yaml:"verdicts"`
}

// SubmitConfig holds submission intake settings.
type SubmitConfig struct {
	MaxCodeBytes       int                   `yaml:"maxCodeBytes"`
	IdempotencyTTL     time.Duration         `yaml:"idempotencyTTL"`
	SubmissionCacheTTL time.Duration         `yaml:"submissionCacheTTL"`
	SubmissionEmptyTTL time.Duration         `yaml:"submissionEmptyTTL"`
	ChallengeCacheTTL  time.Duration         `yaml:"challengeCacheTTL"`
	ChallengeEmptyTTL  time.Duration         `yaml:"challengeEmptyTTL"`
	Timeouts           service.TimeoutConfig `yaml:"timeouts"`
}

// ConsumerConfig tunes the verdict topic subscription.
type ConsumerConfig struct {
	Group       string        `yaml:"group"`
	Concurrency int           `yaml:"concurrency"`
	MaxRetries  int           `yaml:"maxRetries"`
	RetryDelay  time.Duration `yaml:"retryDelay"`
}

// AppConfig holds the full service configuration.
type AppConfig struct {
	Server   ServerConfig      `yaml:"server"`
	Logger   logger.Config     `yaml:"logger"`
	Database db.MySQLConfig    `yaml:"database"`
	Redis    cache.RedisConfig `yaml:"redis"`
	Kafka    mq.KafkaConfig    `yaml:"kafka"`
	Topics   TopicConfig       `yaml:"topics"`
	Submit   SubmitConfig      `yaml:"submit"`
	Consumer ConsumerConfig    `yaml:"consumer"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	if cfg.Topics.Jobs == "" {
		cfg.Topics.Jobs = "submissions"
	}
	if cfg.Topics.Verdicts == "" {
		cfg.Topics.Verdicts = "verdicts"
	}
	// Both topics are declared at connect time so publishes and
	// subscriptions never race topic creation.
	if len(cfg.Kafka.Topics) == 0 {
		cfg.Kafka.Topics = []string{cfg.Topics.Jobs, cfg.Topics.Verdicts}
	}

	if cfg.Submit.MaxCodeBytes == 0 {
		cfg.Submit.MaxCodeBytes = 64 * 1024
	}
	if cfg.Submit.IdempotencyTTL == 0 {
		cfg.Submit.IdempotencyTTL = 10 * time.Minute
	}
	if cfg.Submit.SubmissionCacheTTL == 0 {
		cfg.Submit.SubmissionCacheTTL = 30 * time.Minute
	}
	if cfg.Submit.SubmissionEmptyTTL == 0 {
		cfg.Submit.SubmissionEmptyTTL = 5 * time.Minute
	}
	if cfg.Submit.ChallengeCacheTTL == 0 {
		cfg.Submit.ChallengeCacheTTL = 30 * time.Minute
	}
	if cfg.Submit.ChallengeEmptyTTL == 0 {
		cfg.Submit.ChallengeEmptyTTL = 5 * time.Minute
	}
	if cfg.Submit.Timeouts.DB == 0 {
		cfg.Submit.Timeouts.DB = 3 * time.Second
	}
	if cfg.Submit.Timeouts.Cache == 0 {
		cfg.Submit.Timeouts.Cache = 1 * time.Second
	}
	if cfg.Submit.Timeouts.MQ == 0 {
		cfg.Submit.Timeouts.MQ = 3 * time.Second
	}

	if cfg.Consumer.Concurrency == 0 {
		cfg.Consumer.Concurrency = 4
	}
	if cfg.Consumer.MaxRetries == 0 {
		cfg.Consumer.MaxRetries = 3
	}
	if cfg.Consumer.RetryDelay == 0 {
		cfg.Consumer.RetryDelay = time.Second
	}

	return &cfg, nil
}

func (c ConsumerConfig) toSubscribeOptions() mq.SubscribeOptions {
	return mq.SubscribeOptions{
		ConsumerGroup: c.Group,
		Concurrency:   c.Concurrency,
		MaxRetries:    c.MaxRetries,
		RetryDelay:    c.RetryDelay,
	}
}
