package kafka

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Default values for the Kafka producer client
const (
	DefaultFlushTimeout    = 15 * time.Second
	DefaultDeliveryTimeout = 30 * time.Second
)

// SASLConfig holds optional SASL authentication settings.
type SASLConfig struct {
	Username         string `env:"KAFKA_SASL_USERNAME"`                               // SASL username; empty disables SASL
	Password         string `env:"KAFKA_SASL_PASSWORD"`                               // SASL password
	Mechanism        string `env:"KAFKA_SASL_MECHANISM"     envDefault:"SCRAM-SHA-512"` // SCRAM-SHA-256, SCRAM-SHA-512 or PLAIN
	SecurityProtocol string `env:"KAFKA_SECURITY_PROTOCOL"  envDefault:"SASL_SSL"`      // SASL_SSL or SASL_PLAINTEXT
}

// Enabled reports whether SASL credentials were provided.
func (s SASLConfig) Enabled() bool {
	return s.Username != ""
}

// ApplyToConfigMap sets the SASL properties on cm when SASL is enabled.
func (s SASLConfig) ApplyToConfigMap(cm *kafka.ConfigMap) {
	if !s.Enabled() {
		return
	}
	_ = cm.SetKey("security.protocol", s.SecurityProtocol)
	_ = cm.SetKey("sasl.mechanisms", s.Mechanism)
	_ = cm.SetKey("sasl.username", s.Username)
	_ = cm.SetKey("sasl.password", s.Password)
}

// ClientConfig holds the configuration for a producer Client.
//
// Brokers and log level are not part of it: they are supplied through
// Client.AddBrokers and Client.SetLogLevel.
type ClientConfig struct {
	ClientID        string            `env:"KAFKA_CLIENT_ID"        envDefault:"kafka-fanout"` // client.id reported to brokers
	Acks            string            `env:"KAFKA_ACKS"             envDefault:"all"`          // Producer acks: 0, 1 or all
	Compression     string            `env:"KAFKA_COMPRESSION"      envDefault:"none"`         // none, gzip, snappy, lz4 or zstd
	EnableLogs      bool              `env:"KAFKA_ENABLE_LOGS"      envDefault:"false"`        // Route librdkafka client logs through zap
	FlushTimeout    *time.Duration    `env:"KAFKA_FLUSH_TIMEOUT"`                              // Max time Close waits for in-flight messages
	DeliveryTimeout *time.Duration    `env:"KAFKA_DELIVERY_TIMEOUT"`                           // Default wait for a delivery report per message
	Properties      map[string]string `env:"KAFKA_PROPERTIES"`                                 // Extra librdkafka properties, key:value pairs
	SASL            SASLConfig
}

// LoadClientConfig loads the client configuration from environment variables.
func LoadClientConfig() (ClientConfig, error) {
	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("failed to parse kafka client config: %w", err)
	}
	return cfg.WithDefaults(), nil
}

// WithDefaults returns a copy of the config with default values filled in for any nil pointer fields.
// This method does not mutate the original config.
func (c ClientConfig) WithDefaults() ClientConfig {
	if c.FlushTimeout == nil {
		timeout := DefaultFlushTimeout
		c.FlushTimeout = &timeout
	}
	if c.DeliveryTimeout == nil {
		timeout := DefaultDeliveryTimeout
		c.DeliveryTimeout = &timeout
	}
	return c
}

// ConfigMap builds the librdkafka configuration for the producer handle.
// Properties are applied last and win over the typed fields.
func (c ClientConfig) ConfigMap() kafka.ConfigMap {
	cm := kafka.ConfigMap{
		"go.logs.channel.enable": c.EnableLogs,
	}
	if c.ClientID != "" {
		cm["client.id"] = c.ClientID
	}
	if c.Acks != "" {
		cm["acks"] = c.Acks
	}
	if c.Compression != "" {
		cm["compression.type"] = c.Compression
	}
	c.SASL.ApplyToConfigMap(&cm)
	for k, v := range c.Properties {
		cm[k] = v
	}
	return cm
}
