package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/kafka-fanout/pkg/kafka"
)

const (
	minLogLevel = kafka.MinLogLevel
	maxLogLevel = kafka.MaxLogLevel

	// maxPartition is the largest partition number accepted by --partition.
	maxPartition = 1<<31 - 1
)

// Config holds all configuration for the producer application
type Config struct {
	// Application settings
	Verbose bool

	// Manager setup, applied in order
	BootstrapServers string
	LogLevel         int
	Topics           []string

	// Kafka client settings
	Client       kafka.ClientConfig
	TopicHeaders map[string]string

	// Topic provisioning
	EnsureTopics                bool
	KafkaTopicNumPartitions     int
	KafkaTopicReplicationFactor int

	// Message settings
	Key       string
	Partition int32

	// run settings
	Input           string
	ContinueOnError bool

	// produce settings
	Message string
	Timeout time.Duration

	// Metrics settings
	MetricsHost   string
	MetricsPort   int
	Service       string
	Environment   string
	Region        string
	CloudProvider string
}

// MetricsAddr returns the formatted metrics address
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.MetricsHost, c.MetricsPort)
}

// KeyBytes returns the message key, or nil when no key was given.
func (c *Config) KeyBytes() []byte {
	if c.Key == "" {
		return nil
	}
	return []byte(c.Key)
}

// TopicSpecs returns the provisioning spec for every configured topic.
func (c *Config) TopicSpecs() []kafka.TopicSpec {
	specs := make([]kafka.TopicSpec, 0, len(c.Topics))
	for _, name := range c.Topics {
		specs = append(specs, kafka.TopicSpec{
			Name:              name,
			NumPartitions:     c.KafkaTopicNumPartitions,
			ReplicationFactor: c.KafkaTopicReplicationFactor,
		})
	}
	return specs
}

// buildConfig builds a Config from CLI context flags
func buildConfig(c *cli.Context) (*Config, error) {
	topics, err := parseTopics(c.String("topics"))
	if err != nil {
		return nil, err
	}

	logLevel := c.Int("log-level")
	if logLevel < minLogLevel || logLevel > maxLogLevel {
		return nil, fmt.Errorf("log-level must be between %d and %d, got %d", minLogLevel, maxLogLevel, logLevel)
	}

	partition := c.Int("partition")
	if partition < -1 || partition > maxPartition {
		return nil, fmt.Errorf("partition must be -1 or a valid partition number, got %d", partition)
	}

	props, err := parseKeyValues(c.StringSlice("kafka-property"))
	if err != nil {
		return nil, fmt.Errorf("invalid kafka-property: %w", err)
	}
	headers, err := parseKeyValues(c.StringSlice("topic-header"))
	if err != nil {
		return nil, fmt.Errorf("invalid topic-header: %w", err)
	}

	flushTimeout := c.Duration("flush-timeout")
	deliveryTimeout := c.Duration("delivery-timeout")

	return &Config{
		Verbose:          c.Bool("verbose"),
		BootstrapServers: c.String("bootstrap-servers"),
		LogLevel:         logLevel,
		Topics:           topics,
		Client: kafka.ClientConfig{
			ClientID:        c.String("client-id"),
			Acks:            c.String("acks"),
			Compression:     c.String("compression"),
			EnableLogs:      c.Bool("enable-kafka-logs"),
			FlushTimeout:    &flushTimeout,
			DeliveryTimeout: &deliveryTimeout,
			Properties:      props,
			SASL: kafka.SASLConfig{
				Username:         c.String("kafka-sasl-username"),
				Password:         c.String("kafka-sasl-password"),
				Mechanism:        c.String("kafka-sasl-mechanism"),
				SecurityProtocol: c.String("kafka-security-protocol"),
			},
		},
		TopicHeaders:                headers,
		EnsureTopics:                c.Bool("ensure-topics"),
		KafkaTopicNumPartitions:     c.Int("kafka-topic-num-partitions"),
		KafkaTopicReplicationFactor: c.Int("kafka-topic-replication-factor"),
		Key:                         c.String("key"),
		Partition:                   int32(partition),
		Input:                       c.String("input"),
		ContinueOnError:             c.Bool("continue-on-error"),
		Message:                     c.String("message"),
		Timeout:                     c.Duration("timeout"),
		MetricsHost:                 c.String("metrics-host"),
		MetricsPort:                 c.Int("metrics-port"),
		Service:                     c.String("service"),
		Environment:                 c.String("environment"),
		Region:                      c.String("region"),
		CloudProvider:               c.String("cloud-provider"),
	}, nil
}

// parseTopics splits a comma-separated topic list, keeping order and
// dropping blanks and repeats.
func parseTopics(raw string) ([]string, error) {
	var topics []string
	seen := make(map[string]struct{})
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		topics = append(topics, t)
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("at least one topic is required, got %q", raw)
	}
	return topics, nil
}

// parseKeyValues turns key=value pairs into a map. Later pairs win.
func parseKeyValues(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", p)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}
