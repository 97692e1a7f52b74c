package main

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/kafka-fanout/pkg/kafka"
)

// commonFlags returns the flags shared by every subcommand
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
		},
		// Kafka configuration flags
		&cli.StringFlag{
			Name:     "bootstrap-servers",
			Aliases:  []string{"b"},
			Usage:    "Kafka bootstrap servers (comma-separated)",
			EnvVars:  []string{"KAFKA_BOOTSTRAP_SERVERS"},
			Required: true,
		},
		&cli.StringFlag{
			Name:     "topics",
			Aliases:  []string{"t"},
			Usage:    "Kafka topics to publish to, in fan-out order (comma-separated)",
			EnvVars:  []string{"KAFKA_TOPICS"},
			Required: true,
		},
		&cli.IntFlag{
			Name:    "log-level",
			Usage:   "librdkafka log level (syslog severity 0-7)",
			EnvVars: []string{"KAFKA_LOG_LEVEL"},
			Value:   6,
		},
		&cli.StringFlag{
			Name:    "client-id",
			Usage:   "Kafka client.id",
			EnvVars: []string{"KAFKA_CLIENT_ID"},
			Value:   "kafka-fanout",
		},
		&cli.StringFlag{
			Name:    "acks",
			Usage:   "Producer acks (0, 1, all)",
			EnvVars: []string{"KAFKA_ACKS"},
			Value:   "all",
		},
		&cli.StringFlag{
			Name:    "compression",
			Usage:   "Compression codec (none, gzip, snappy, lz4, zstd)",
			EnvVars: []string{"KAFKA_COMPRESSION"},
			Value:   "none",
		},
		&cli.BoolFlag{
			Name:    "enable-kafka-logs",
			Usage:   "Enable librdkafka client logs",
			EnvVars: []string{"KAFKA_ENABLE_LOGS"},
			Value:   false,
		},
		&cli.StringSliceFlag{
			Name:    "kafka-property",
			Usage:   "Extra librdkafka property as key=value (repeatable)",
			EnvVars: []string{"KAFKA_EXTRA_PROPERTIES"},
		},
		&cli.StringSliceFlag{
			Name:    "topic-header",
			Usage:   "Header added to every message as key=value (repeatable)",
			EnvVars: []string{"KAFKA_TOPIC_HEADERS"},
		},
		&cli.DurationFlag{
			Name:    "flush-timeout",
			Usage:   "Kafka producer flush timeout when closing",
			EnvVars: []string{"KAFKA_FLUSH_TIMEOUT"},
			Value:   kafka.DefaultFlushTimeout,
		},
		&cli.DurationFlag{
			Name:    "delivery-timeout",
			Usage:   "Max wait for a delivery report per topic publish",
			EnvVars: []string{"KAFKA_DELIVERY_TIMEOUT"},
			Value:   kafka.DefaultDeliveryTimeout,
		},
		&cli.BoolFlag{
			Name:    "ensure-topics",
			Usage:   "Create missing topics (or grow partitions) before publishing",
			EnvVars: []string{"KAFKA_ENSURE_TOPICS"},
			Value:   false,
		},
		&cli.IntFlag{
			Name:    "kafka-topic-num-partitions",
			Usage:   "The number of partitions for ensured topics (must be greater than 0)",
			EnvVars: []string{"KAFKA_TOPIC_NUM_PARTITIONS"},
			Value:   1,
		},
		&cli.IntFlag{
			Name:    "kafka-topic-replication-factor",
			Usage:   "The replication factor for ensured topics (must be greater than 0)",
			EnvVars: []string{"KAFKA_TOPIC_REPLICATION_FACTOR"},
			Value:   1,
		},
		// SASL configuration flags
		&cli.StringFlag{
			Name:    "kafka-sasl-username",
			Usage:   "SASL username for Kafka authentication",
			EnvVars: []string{"KAFKA_SASL_USERNAME"},
		},
		&cli.StringFlag{
			Name:    "kafka-sasl-password",
			Usage:   "SASL password for Kafka authentication",
			EnvVars: []string{"KAFKA_SASL_PASSWORD"},
		},
		&cli.StringFlag{
			Name:    "kafka-sasl-mechanism",
			Usage:   "SASL mechanism (SCRAM-SHA-256, SCRAM-SHA-512, or PLAIN)",
			EnvVars: []string{"KAFKA_SASL_MECHANISM"},
			Value:   "SCRAM-SHA-512",
		},
		&cli.StringFlag{
			Name:    "kafka-security-protocol",
			Usage:   "Security protocol (SASL_SSL or SASL_PLAINTEXT)",
			EnvVars: []string{"KAFKA_SECURITY_PROTOCOL"},
			Value:   "SASL_SSL",
		},
		&cli.StringFlag{
			Name:    "key",
			Aliases: []string{"k"},
			Usage:   "Message key (empty means no key)",
		},
		&cli.IntFlag{
			Name:    "partition",
			Aliases: []string{"p"},
			Usage:   "Partition to publish to (-1 lets the partitioner choose)",
			Value:   -1,
		},
	}
}

// runFlags returns the flags specific to the run command
func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "input",
			Aliases: []string{"i"},
			Usage:   "File to read messages from, one per line (- for stdin)",
			Value:   "-",
		},
		&cli.BoolFlag{
			Name:  "continue-on-error",
			Usage: "Log failed publishes and keep reading instead of exiting",
		},
		// Metrics configuration flags
		&cli.StringFlag{
			Name:    "metrics-host",
			Usage:   "Host for Prometheus metrics server (empty for all interfaces)",
			EnvVars: []string{"METRICS_HOST"},
			Value:   "",
		},
		&cli.IntFlag{
			Name:    "metrics-port",
			Usage:   "Port for Prometheus metrics server",
			EnvVars: []string{"METRICS_PORT"},
			Value:   9090,
		},
		&cli.StringFlag{
			Name:    "service",
			Usage:   "Service name label for metrics",
			EnvVars: []string{"SERVICE"},
		},
		&cli.StringFlag{
			Name:    "environment",
			Usage:   "Deployment environment label for metrics (e.g., 'production', 'staging')",
			EnvVars: []string{"ENVIRONMENT"},
		},
		&cli.StringFlag{
			Name:    "region",
			Usage:   "Cloud region label for metrics (e.g., 'us-east-1')",
			EnvVars: []string{"REGION"},
		},
		&cli.StringFlag{
			Name:    "cloud-provider",
			Usage:   "Cloud provider label for metrics (e.g., 'aws', 'oci', 'gcp')",
			EnvVars: []string{"CLOUD_PROVIDER"},
		},
	}
}

// produceFlags returns the flags specific to the produce command
func produceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "message",
			Aliases:  []string{"m"},
			Usage:    "Message payload to publish",
			Required: true,
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Overall timeout for the publish",
			Value: time.Minute,
		},
	}
}
