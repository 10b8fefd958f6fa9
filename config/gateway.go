package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// KafkaProducerConfig defines configuration for the Kafka producer
type KafkaProducerConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`

	// Batch processing settings
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	BatchBytes   int           `yaml:"batch_bytes"`

	// Reliability settings
	RequiredAcks string `yaml:"required_acks"`
	Async        bool   `yaml:"async"`

	// Performance settings
	WriteTimeout time.Duration `yaml:"write_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
}

// RabbitMQConfig defines configuration for the RabbitMQ queue backend
type RabbitMQConfig struct {
	URL   string `yaml:"url"`
	Queue string `yaml:"queue"`
}

// QueueConfig selects and configures the handoff queue backend
type QueueConfig struct {
	Backend       string              `yaml:"backend"` // "kafka" or "rabbitmq"
	KafkaProducer KafkaProducerConfig `yaml:"kafka_producer"`
	KafkaConsumer KafkaConsumerConfig `yaml:"kafka_consumer"`
	RabbitMQ      RabbitMQConfig      `yaml:"rabbitmq"`
}

// SetDefaults sets reasonable default values for queue configuration
func (c *QueueConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "kafka"
		fmt.Printf("Warning: queue.backend not set, defaulting to %s\n", c.Backend)
	}
}

// Validate validates the queue configuration
func (c *QueueConfig) Validate() error {
	switch c.Backend {
	case "kafka", "rabbitmq", "mock":
		return nil
	default:
		return fmt.Errorf("unsupported queue backend: %s", c.Backend)
	}
}

// RedisConfig defines configuration for the Redis dedup cache
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"` // optional
	DB       int    `yaml:"db"`      // optional
}

// MetaConfig defines Meta Graph API settings shared by gateway and worker
type MetaConfig struct {
	GraphAPIBaseURL       string `yaml:"graph_api_base_url"`
	APIVersion            string `yaml:"api_version"`
	BusinessPhoneNumberID string `yaml:"business_phone_number_id"`
	AccessToken           string `yaml:"access_token"`
	WebhookVerifyToken    string `yaml:"webhook_verify_token"`
}

// SetDefaults sets defaults and applies environment variable overrides for
// secrets so credentials don't have to live in the YAML file.
func (c *MetaConfig) SetDefaults() {
	if c.GraphAPIBaseURL == "" {
		c.GraphAPIBaseURL = "https://graph.facebook.com"
	}
	if c.APIVersion == "" {
		c.APIVersion = "v22.0"
		fmt.Printf("Warning: meta.api_version not set, defaulting to %s\n", c.APIVersion)
	}
	if v := os.Getenv("META_BUSINESS_PHONE_NUMBER_ID"); v != "" {
		c.BusinessPhoneNumberID = v
	}
	if v := os.Getenv("META_ACCESS_TOKEN"); v != "" {
		c.AccessToken = v
	}
	if v := os.Getenv("META_WEBHOOK_VERIFY_TOKEN"); v != "" {
		c.WebhookVerifyToken = v
	}
}

// MessagesURL returns the Graph API URL for sending WhatsApp messages:
// {base}/{version}/{phone-number-id}/messages
func (c *MetaConfig) MessagesURL() string {
	return fmt.Sprintf("%s/%s/%s/messages", c.GraphAPIBaseURL, c.APIVersion, c.BusinessPhoneNumberID)
}

// HttpServerConfig defines HTTP server configuration
type HttpServerConfig struct {
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
}

// GatewayMonitoringConfig defines monitoring configuration for the gateway
type GatewayMonitoringConfig struct {
	MetricsPath     string `yaml:"metrics_path"`
	HealthCheckPath string `yaml:"health_check_path"`
}

// SetDefaults sets reasonable default values for monitoring configuration
func (c *GatewayMonitoringConfig) SetDefaults() {
	if c.MetricsPath == "" {
		c.MetricsPath = "/metrics"
	}
	if c.HealthCheckPath == "" {
		c.HealthCheckPath = "/health"
	}
}

// GatewayConfig defines all configuration required by the webhook gateway
type GatewayConfig struct {
	HttpListenAddr string `yaml:"http_listen_addr"`

	// AckDeadline bounds the ledger write + queue publish inside a request.
	// It must stay well under the upstream's retry-trigger deadline.
	AckDeadline time.Duration `yaml:"ack_deadline"`

	// FreshnessThreshold is the maximum age of an event, measured from its
	// origination timestamp, beyond which it is acknowledged and dropped.
	FreshnessThreshold time.Duration `yaml:"freshness_threshold"`

	// DedupTTLMargin is added to FreshnessThreshold to size the Redis
	// dedup key TTL so cache entries outlive the redelivery window.
	DedupTTLMargin time.Duration `yaml:"dedup_ttl_margin"`

	DeploymentType string `yaml:"deployment_type"` // local, staging, production

	Database   DatabaseConfig          `yaml:"database"`
	Redis      RedisConfig             `yaml:"redis"`
	Queue      QueueConfig             `yaml:"queue"`
	Meta       MetaConfig              `yaml:"meta"`
	HttpServer HttpServerConfig        `yaml:"http_server"`
	Monitoring GatewayMonitoringConfig `yaml:"monitoring"`
}

// LoadGatewayConfig loads gateway configuration from the specified YAML file path
func LoadGatewayConfig(path string) (*GatewayConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway config file '%s': %w", path, err)
	}

	var cfg GatewayConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse gateway YAML config file: %w", err)
	}

	cfg.Database.SetDefaults()
	cfg.Queue.SetDefaults()
	cfg.Meta.SetDefaults()
	cfg.Monitoring.SetDefaults()

	if cfg.AckDeadline == 0 {
		cfg.AckDeadline = 5 * time.Second
		fmt.Printf("Warning: ack_deadline not set, defaulting to %v\n", cfg.AckDeadline)
	}
	if cfg.FreshnessThreshold == 0 {
		cfg.FreshnessThreshold = 24 * time.Hour
		fmt.Printf("Warning: freshness_threshold not set, defaulting to %v\n", cfg.FreshnessThreshold)
	}
	if cfg.DedupTTLMargin == 0 {
		cfg.DedupTTLMargin = time.Hour
	}
	if cfg.DeploymentType == "" {
		cfg.DeploymentType = "local"
		fmt.Printf("Warning: deployment_type not set, defaulting to %s\n", cfg.DeploymentType)
	}

	// Validation
	if cfg.HttpListenAddr == "" {
		return nil, fmt.Errorf("configuration error: http_listen_addr must be configured")
	}
	if cfg.Meta.WebhookVerifyToken == "" {
		return nil, fmt.Errorf("configuration error: meta.webhook_verify_token must be configured")
	}
	if cfg.Meta.BusinessPhoneNumberID == "" {
		return nil, fmt.Errorf("configuration error: meta.business_phone_number_id must be configured")
	}
	if err := cfg.Database.Validate(); err != nil {
		return nil, fmt.Errorf("database configuration error: %w", err)
	}
	if err := cfg.Queue.Validate(); err != nil {
		return nil, fmt.Errorf("queue configuration error: %w", err)
	}

	return &cfg, nil
}
