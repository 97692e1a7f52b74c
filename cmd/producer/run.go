package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/kafka-fanout/pkg/kafka"
	"github.com/ava-labs/kafka-fanout/pkg/metrics"
	"github.com/ava-labs/kafka-fanout/pkg/notify"
	"github.com/ava-labs/kafka-fanout/pkg/producermanager"
	"github.com/ava-labs/kafka-fanout/pkg/utils"

	confluentKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

const (
	shutdownTimeout = 5 * time.Second

	// maxLineSize bounds a single input message.
	maxLineSize = 1 << 20
)

func run(c *cli.Context) error {
	// Build configuration from CLI flags
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := utils.NewSugaredLogger(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	logConfig(sugar, cfg)

	// Initialize Prometheus metrics with labels for multi-instance filtering
	registry := prometheus.NewRegistry()
	m, err := metrics.NewWithLabels(registry, metrics.Labels{
		Service:       cfg.Service,
		Environment:   cfg.Environment,
		Region:        cfg.Region,
		CloudProvider: cfg.CloudProvider,
	})
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pm, client, err := setup(ctx, cfg, sugar, m)
	if client != nil {
		defer client.Close()
	}
	if err != nil {
		return err
	}

	// Start metrics server
	metricsServer := metrics.NewServer(cfg.MetricsAddr(), registry, func() bool {
		return pm.State() == producermanager.TopicsRegistered
	})
	metricsErrCh := metricsServer.Start()
	if cfg.MetricsHost == "" {
		sugar.Infof("metrics server listening on http://0.0.0.0:%d/metrics", cfg.MetricsPort)
	} else {
		sugar.Infof("metrics server listening on http://%s/metrics", cfg.MetricsAddr())
	}

	input, closeInput, err := openInput(cfg.Input)
	if err != nil {
		return err
	}
	defer closeInput()

	g, gctx := errgroup.WithContext(ctx)

	// Publisher goroutine - returns at end of input, on shutdown, or on the first failure.
	// Stopping the parent context lets the monitor goroutines return once input ends.
	g.Go(func() error {
		defer stop()
		lines, readErrs := readLines(gctx, input)
		return publishLines(gctx, sugar, pm, lines, readErrs, cfg)
	})

	// Kafka client fatal error monitoring goroutine
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err, ok := <-client.Errors():
			if !ok || err == nil {
				return nil
			}
			return fmt.Errorf("kafka client error: %w", err)
		}
	})

	// Metrics server error monitoring goroutine
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-metricsErrCh:
			if err != nil {
				return fmt.Errorf("metrics server error: %w", err)
			}
			return nil
		}
	})

	// Wait for first error or completion from the publisher
	err = g.Wait()

	sugar.Info("shutting down metrics server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := metricsServer.Shutdown(shutdownCtx); shutdownErr != nil {
		sugar.Warnw("metrics server shutdown error", "error", shutdownErr)
	}

	sugar.Info("shutdown complete")
	return err
}

func produceOnce(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := utils.NewSugaredLogger(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	logConfig(sugar, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	pm, client, err := setup(ctx, cfg, sugar, nil)
	if client != nil {
		defer client.Close()
	}
	if err != nil {
		return err
	}

	if err := pm.ProduceToPartition(ctx, []byte(cfg.Message), cfg.KeyBytes(), cfg.Partition); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}
	sugar.Infow("message produced", "topics", pm.Topics(), "origin", pm.Origin())
	return nil
}

// setup provisions topics when requested and returns a Manager configured in
// the required order. The returned client is non-nil whenever it was created
// and must be closed by the caller.
func setup(
	ctx context.Context,
	cfg *Config,
	sugar *zap.SugaredLogger,
	m *metrics.Metrics,
) (*producermanager.Manager, *kafka.Client, error) {
	if cfg.EnsureTopics {
		if err := ensureTopics(ctx, cfg, sugar); err != nil {
			return nil, nil, err
		}
	}

	client := kafka.NewClient(ctx, cfg.Client, sugar, m)
	dispatcher := notify.NewDispatcher(
		notify.LogListener(sugar),
		notify.MetricsListener(m),
	)

	pm := producermanager.New(sugar, m).
		SetProducer(client).
		SetNotifier(dispatcher)

	if err := pm.SetLogLevel(cfg.LogLevel); err != nil {
		return nil, client, err
	}
	if err := pm.AddBrokers(cfg.BootstrapServers); err != nil {
		return nil, client, err
	}
	for _, topic := range cfg.Topics {
		if err := pm.AddTopic(topic, kafka.TopicConfig{Headers: cfg.TopicHeaders}); err != nil {
			return nil, client, err
		}
	}

	sugar.Infow("producer manager configured",
		"state", pm.State(),
		"topics", pm.Topics(),
		"brokers", client.Brokers(),
	)
	return pm, client, nil
}

func ensureTopics(ctx context.Context, cfg *Config, sugar *zap.SugaredLogger) error {
	adminConfig := adminConfigMap(cfg)
	adminClient, err := confluentKafka.NewAdminClient(&adminConfig)
	if err != nil {
		return fmt.Errorf("failed to create kafka admin client: %w", err)
	}
	defer adminClient.Close()

	if err := kafka.EnsureTopics(ctx, adminClient, cfg.TopicSpecs(), sugar); err != nil {
		return fmt.Errorf("failed to ensure kafka topics exist: %w", err)
	}
	return nil
}

// adminConfigMap carries the producer's connection settings over to the admin
// client: brokers, SASL and any extra properties such as ssl.*.
func adminConfigMap(cfg *Config) confluentKafka.ConfigMap {
	adminConfig := confluentKafka.ConfigMap{}
	cfg.Client.SASL.ApplyToConfigMap(&adminConfig)
	for k, v := range cfg.Client.Properties {
		adminConfig[k] = v
	}
	adminConfig["bootstrap.servers"] = strings.Join(brokerList(cfg), ",")
	return adminConfig
}

// brokerList merges bootstrap.servers from --kafka-property with
// --bootstrap-servers, the same way the producer client does.
func brokerList(cfg *Config) []string {
	var brokers []string
	for _, raw := range []string{cfg.Client.Properties["bootstrap.servers"], cfg.BootstrapServers} {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" && !slices.Contains(brokers, b) {
				brokers = append(brokers, b)
			}
		}
	}
	return brokers
}

// openInput returns the reader named by path, where "-" is stdin.
func openInput(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input %q: %w", path, err)
	}
	return f, func() { _ = f.Close() }, nil
}

// readLines streams non-empty lines from r until EOF or ctx is done. The scan
// runs in its own goroutine because reads from stdin cannot be interrupted.
//
// A read failure is sent on the error channel before the line channel closes.
// The error channel is closed after the line channel.
func readLines(ctx context.Context, r io.Reader) (<-chan []byte, <-chan error) {
	lines := make(chan []byte)
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			if len(scanner.Bytes()) == 0 {
				continue
			}
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- err
		}
	}()
	return lines, errs
}

// linePublisher is the part of producermanager.Manager the run loop needs.
type linePublisher interface {
	ProduceToPartition(ctx context.Context, message, key []byte, partition int32) error
}

// publishLines fans every line out through pub. A failed publish stops the
// loop unless ContinueOnError is set and the failure is a *KafkaError. Input
// read errors always stop it.
func publishLines(
	ctx context.Context,
	sugar *zap.SugaredLogger,
	pub linePublisher,
	lines <-chan []byte,
	readErrs <-chan error,
	cfg *Config,
) error {
	var published, failed int
	defer func() {
		sugar.Infow("publisher stopped", "published", published, "failed", failed)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := <-readErrs; err != nil {
					return fmt.Errorf("failed to read input: %w", err)
				}
				return nil
			}
			err := pub.ProduceToPartition(ctx, line, cfg.KeyBytes(), cfg.Partition)
			if err == nil {
				published++
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			failed++
			var kerr *producermanager.KafkaError
			if !cfg.ContinueOnError || !errors.As(err, &kerr) {
				return fmt.Errorf("failed to produce message: %w", err)
			}
			sugar.Warnw("failed to produce message, continuing", "error", err)
		}
	}
}

func logConfig(sugar *zap.SugaredLogger, cfg *Config) {
	sugar.Infow("config",
		"verbose", cfg.Verbose,
		"bootstrapServers", cfg.BootstrapServers,
		"logLevel", cfg.LogLevel,
		"topics", cfg.Topics,
		"clientID", cfg.Client.ClientID,
		"acks", cfg.Client.Acks,
		"compression", cfg.Client.Compression,
		"enableKafkaLogs", cfg.Client.EnableLogs,
		"flushTimeout", cfg.Client.FlushTimeout,
		"deliveryTimeout", cfg.Client.DeliveryTimeout,
		"saslEnabled", cfg.Client.SASL.Enabled(),
		"ensureTopics", cfg.EnsureTopics,
		"kafkaTopicNumPartitions", cfg.KafkaTopicNumPartitions,
		"kafkaTopicReplicationFactor", cfg.KafkaTopicReplicationFactor,
		"partition", cfg.Partition,
		"input", cfg.Input,
		"metricsHost", cfg.MetricsHost,
		"metricsPort", cfg.MetricsPort,
		"service", cfg.Service,
		"environment", cfg.Environment,
		"region", cfg.Region,
		"cloudProvider", cfg.CloudProvider,
	)
}
