package main

import (
	"fmt"
	"os"
	"time"

	"evalhub/internal/common/storage"
	"evalhub/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8090"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultStorageTimeout  = 15 * time.Second
	defaultMappingTTL      = 24 * time.Hour
	defaultResultTTL       = 24 * time.Hour
	defaultLeaseBuffer     = 60 * time.Second
	defaultTransitionsPath = "configs/transitions.yaml"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StorageAPIConfig holds evaluation storage HTTP API settings.
type StorageAPIConfig struct {
	BaseURL string        `yaml:"baseURL"`
	Timeout time.Duration `yaml:"timeout"`
}

// BrokerConfig holds task broker settings.
type BrokerConfig struct {
	ResultTTL       time.Duration `yaml:"resultTTL"`
	InlineCodeLimit int           `yaml:"inlineCodeLimit"`
}

// LifecycleConfig holds state machine and mapping settings.
type LifecycleConfig struct {
	TransitionsPath string        `yaml:"transitionsPath"`
	MappingTTL      time.Duration `yaml:"mappingTTL"`
	LeaseBuffer     time.Duration `yaml:"leaseBuffer"`
}

// LogBatchConfig holds log batching settings.
type LogBatchConfig struct {
	BatchSize  int           `yaml:"batchSize"`
	FlushDelay time.Duration `yaml:"flushDelay"`
	TailTTL    time.Duration `yaml:"tailTTL"`
}

// KafkaConfig holds the optional status mirror settings.
type KafkaConfig struct {
	Brokers    []string `yaml:"brokers"`
	ClientID   string   `yaml:"clientID"`
	FinalTopic string   `yaml:"finalTopic"`
}

// SourceConfig holds the optional object storage offload settings.
type SourceConfig struct {
	MinIO  storage.MinIOConfig `yaml:"minio"`
	Bucket string              `yaml:"bucket"`
}

// AppConfig is the root orchestrator configuration.
type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Logger     logger.Config    `yaml:"logger"`
	Redis      RedisConfig      `yaml:"redis"`
	StorageAPI StorageAPIConfig `yaml:"storageAPI"`
	Broker     BrokerConfig     `yaml:"broker"`
	Lifecycle  LifecycleConfig  `yaml:"lifecycle"`
	LogBatch   LogBatchConfig   `yaml:"logBatch"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Source     SourceConfig     `yaml:"source"`
}

func loadAppConfig(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file failed: %w", err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config file failed: %w", err)
	}
	cfg.applyDefaults()
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if cfg.StorageAPI.BaseURL == "" {
		return nil, fmt.Errorf("storage api base url is required")
	}
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = defaultHTTPAddr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = defaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = defaultWriteTimeout
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = defaultIdleTimeout
	}
	if c.StorageAPI.Timeout == 0 {
		c.StorageAPI.Timeout = defaultStorageTimeout
	}
	if c.Broker.ResultTTL == 0 {
		c.Broker.ResultTTL = defaultResultTTL
	}
	if c.Lifecycle.TransitionsPath == "" {
		c.Lifecycle.TransitionsPath = defaultTransitionsPath
	}
	if c.Lifecycle.MappingTTL == 0 {
		c.Lifecycle.MappingTTL = defaultMappingTTL
	}
	if c.Lifecycle.LeaseBuffer == 0 {
		c.Lifecycle.LeaseBuffer = defaultLeaseBuffer
	}
}
