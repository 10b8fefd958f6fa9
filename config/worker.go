package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// KafkaConsumerConfig defines configuration for Kafka consumers
type KafkaConsumerConfig struct {
	Brokers           []string `yaml:"brokers"`
	Topic             string   `yaml:"topic"`
	GroupID           string   `yaml:"group_id"`
	Count             int      `yaml:"count"`              // Number of consumers to create
	SessionTimeout    string   `yaml:"session_timeout"`
	HeartbeatInterval string   `yaml:"heartbeat_interval"`
	AutoOffsetReset   string   `yaml:"auto_offset_reset"` // earliest/latest
}

// SetDefaults sets reasonable default values for Kafka consumer configuration
func (c *KafkaConsumerConfig) SetDefaults() {
	if c.Count <= 0 {
		c.Count = 1
		fmt.Printf("Warning: kafka_consumer.count not set or invalid, defaulting to %d\n", c.Count)
	}
	if c.SessionTimeout == "" {
		c.SessionTimeout = "30s"
	}
	if c.HeartbeatInterval == "" {
		c.HeartbeatInterval = "3s"
	}
	if c.AutoOffsetReset == "" {
		c.AutoOffsetReset = "earliest"
	}
}

// BackendConfig defines settings for the assistant backend API
type BackendConfig struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	StreamTimeout  time.Duration `yaml:"stream_timeout"`
}

// SetDefaults sets reasonable default values for backend configuration
func (c *BackendConfig) SetDefaults() {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.StreamTimeout == 0 {
		c.StreamTimeout = 60 * time.Second
		fmt.Printf("Warning: backend.stream_timeout not set, defaulting to %v\n", c.StreamTimeout)
	}
}

// ProcessingConfig defines configuration for message processing
type ProcessingConfig struct {
	Concurrency        int    `yaml:"concurrency"`          // Number of concurrent workers per consumer
	ConsumerRetryDelay string `yaml:"consumer_retry_delay"` // Delay when consumer encounters errors
	ProcessTimeout     string `yaml:"process_timeout"`      // Timeout for a full conversation turn
}

// SetDefaults sets reasonable default values for processing configuration
func (c *ProcessingConfig) SetDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
		fmt.Printf("Warning: processing.concurrency not set or invalid, defaulting to %d\n", c.Concurrency)
	}
	if c.ConsumerRetryDelay == "" {
		c.ConsumerRetryDelay = "5s"
	}
	if c.ProcessTimeout == "" {
		c.ProcessTimeout = "5m"
		fmt.Printf("Warning: processing.process_timeout not set, defaulting to %s\n", c.ProcessTimeout)
	}
}

// ReconcilerConfig defines the sweep that re-enqueues stuck entries and
// purges entries past the retention window.
type ReconcilerConfig struct {
	Interval time.Duration `yaml:"interval"`
	// Grace is how long an entry may sit PENDING or PROCESSING before the
	// sweep resets and re-enqueues it. Must exceed
	// processing.process_timeout, or the sweep re-enqueues claims that are
	// still being worked.
	Grace      time.Duration `yaml:"grace"`
	BatchLimit int           `yaml:"batch_limit"` // Max entries re-enqueued per sweep
	PurgeAge   time.Duration `yaml:"purge_age"`   // Entries older than this are deleted
}

// SetDefaults sets reasonable default values for reconciler configuration
func (c *ReconcilerConfig) SetDefaults() {
	if c.Interval == 0 {
		c.Interval = time.Minute
	}
	if c.Grace == 0 {
		c.Grace = 6 * time.Minute
		fmt.Printf("Warning: reconciler.grace not set, defaulting to %v\n", c.Grace)
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = 100
	}
	if c.PurgeAge == 0 {
		c.PurgeAge = 25 * time.Hour
		fmt.Printf("Warning: reconciler.purge_age not set, defaulting to %v\n", c.PurgeAge)
	}
}

// WorkerMonitoringConfig defines monitoring configuration for the worker
type WorkerMonitoringConfig struct {
	MetricsListenAddr string `yaml:"metrics_listen_addr"`
	MetricsPath       string `yaml:"metrics_path"`
}

// SetDefaults sets reasonable default values for monitoring configuration
func (c *WorkerMonitoringConfig) SetDefaults() {
	if c.MetricsPath == "" {
		c.MetricsPath = "/metrics"
	}
}

// WorkerConfig defines all configuration for the deferred processor
type WorkerConfig struct {
	DeploymentType  string `yaml:"deployment_type"`  // local, staging, production
	MaintenanceMode bool   `yaml:"maintenance_mode"` // Reply with a maintenance notice instead of processing

	// ChatRetentionHours is how long a conversation thread stays warm; a
	// message arriving after this window starts a new thread.
	ChatRetentionHours int `yaml:"chat_retention_hours"`

	// MaxTaskRetries is the attempt budget per delivery before it is marked
	// FAILED and the user gets a best-effort error reply.
	MaxTaskRetries int `yaml:"max_task_retries"`

	Database   DatabaseConfig         `yaml:"database"`
	Queue      QueueConfig            `yaml:"queue"`
	Backend    BackendConfig          `yaml:"backend"`
	Meta       MetaConfig             `yaml:"meta"`
	Processing ProcessingConfig       `yaml:"processing"`
	Reconciler ReconcilerConfig       `yaml:"reconciler"`
	Monitoring WorkerMonitoringConfig `yaml:"monitoring"`
}

// LoadWorkerConfig loads worker configuration from the specified YAML file path
func LoadWorkerConfig(path string) (*WorkerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read worker config file '%s': %w", path, err)
	}

	var cfg WorkerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse worker YAML config file: %w", err)
	}

	cfg.Database.SetDefaults()
	cfg.Queue.SetDefaults()
	cfg.Queue.KafkaConsumer.SetDefaults()
	cfg.Backend.SetDefaults()
	cfg.Meta.SetDefaults()
	cfg.Processing.SetDefaults()
	cfg.Reconciler.SetDefaults()
	cfg.Monitoring.SetDefaults()

	if cfg.DeploymentType == "" {
		cfg.DeploymentType = "local"
		fmt.Printf("Warning: deployment_type not set, defaulting to %s\n", cfg.DeploymentType)
	}
	if cfg.ChatRetentionHours <= 0 {
		cfg.ChatRetentionHours = 3
		fmt.Printf("Warning: chat_retention_hours not set or invalid, defaulting to %d\n", cfg.ChatRetentionHours)
	}
	if cfg.MaxTaskRetries <= 0 {
		cfg.MaxTaskRetries = 3
		fmt.Printf("Warning: max_task_retries not set or invalid, defaulting to %d\n", cfg.MaxTaskRetries)
	}

	// Validation
	if cfg.Backend.BaseURL == "" {
		return nil, fmt.Errorf("configuration error: backend.base_url must be configured")
	}
	if err := cfg.Database.Validate(); err != nil {
		return nil, fmt.Errorf("database configuration error: %w", err)
	}
	if err := cfg.Queue.Validate(); err != nil {
		return nil, fmt.Errorf("queue configuration error: %w", err)
	}

	return &cfg, nil
}
