package kafka

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"github.com/ava-labs/kafka-fanout/pkg/metrics"
	"github.com/ava-labs/kafka-fanout/pkg/producermanager"
	"github.com/ava-labs/kafka-fanout/pkg/utils"
)

const (
	// MinLogLevel and MaxLogLevel bound the syslog severities librdkafka accepts.
	MinLogLevel = 0
	MaxLogLevel = 7
)

var (
	// ErrClientStarted is returned when the librdkafka handle is already open
	// and the requested setting can no longer change.
	ErrClientStarted = errors.New("kafka client already started")

	// ErrClientClosed is returned by operations after Close.
	ErrClientClosed = errors.New("kafka client closed")

	// ErrNilClient is returned when methods are called on a nil *Client.
	ErrNilClient = errors.New("kafka client is nil")
)

// Client is a confluent-kafka-go backed producermanager.Client.
//
// Settings accumulate in a librdkafka ConfigMap until the first NewTopic
// call, which opens the producer handle. From then on SetLogLevel and
// AddBrokers return ErrClientStarted.
//
// Background goroutines process producer events and logs once the handle is
// open. Close MUST be called at least once to stop them and flush in-flight
// messages.
type Client struct {
	cfg     ClientConfig
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
	ctx     context.Context

	mu       sync.Mutex
	conf     kafka.ConfigMap
	brokers  []string
	producer *kafka.Producer
	closed   bool

	errCh      chan error
	eventsDone chan struct{}
	logsDone   chan struct{}
	closedCh   chan struct{}
	once       sync.Once
}

var _ producermanager.Client = (*Client)(nil)

// NewClient creates an unopened Client.
//
// The provided context controls the lifetime of background goroutines once
// the producer is opened. m may be nil.
//
// A bootstrap.servers entry in cfg.Properties seeds the broker list, and
// AddBrokers appends to it.
func NewClient(ctx context.Context, cfg ClientConfig, log *zap.SugaredLogger, m *metrics.Metrics) *Client {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	cfg = cfg.WithDefaults()
	conf := cfg.ConfigMap()

	var brokers []string
	if bs, ok := conf["bootstrap.servers"]; ok {
		for _, addr := range splitBrokers(fmt.Sprint(bs)) {
			if !slices.Contains(brokers, addr) {
				brokers = append(brokers, addr)
			}
		}
	}

	return &Client{
		cfg:        cfg,
		log:        log,
		metrics:    m,
		ctx:        ctx,
		conf:       conf,
		brokers:    brokers,
		errCh:      make(chan error, 1),
		eventsDone: make(chan struct{}),
		logsDone:   make(chan struct{}),
		closedCh:   make(chan struct{}),
	}
}

// SetLogLevel sets the librdkafka log_level property.
func (c *Client) SetLogLevel(level int) error {
	if c == nil {
		return ErrNilClient
	}
	if level < MinLogLevel || level > MaxLogLevel {
		return fmt.Errorf("log level must be between %d and %d, got %d", MinLogLevel, MaxLogLevel, level)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkMutable(); err != nil {
		return err
	}

	c.conf["log_level"] = level
	return nil
}

// AddBrokers appends a comma-separated list of broker addresses to
// bootstrap.servers. Addresses already present are skipped.
func (c *Client) AddBrokers(brokers string) error {
	if c == nil {
		return ErrNilClient
	}
	addrs := splitBrokers(brokers)
	if len(addrs) == 0 {
		return fmt.Errorf("no broker addresses in %q", brokers)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkMutable(); err != nil {
		return err
	}

	for _, addr := range addrs {
		if !slices.Contains(c.brokers, addr) {
			c.brokers = append(c.brokers, addr)
		}
	}
	c.conf["bootstrap.servers"] = strings.Join(c.brokers, ",")
	return nil
}

// Brokers returns the configured broker addresses in insertion order.
func (c *Client) Brokers() []string {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.brokers...)
}

// NewTopic returns a handle producing to name.
//
// conf may be nil, a TopicConfig or a *TopicConfig. The first call opens the
// producer with the topic's Properties merged in; later topics must not
// carry properties that disagree with the open producer.
func (c *Client) NewTopic(name string, conf any) (producermanager.Topic, error) {
	if c == nil {
		return nil, ErrNilClient
	}
	if name == "" {
		return nil, errors.New("topic name cannot be empty")
	}
	tc, err := topicConfigFrom(conf)
	if err != nil {
		return nil, fmt.Errorf("topic %q: %w", name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}

	if c.producer == nil {
		for k, v := range tc.Properties {
			c.conf[k] = v
		}
		if err := c.open(); err != nil {
			return nil, err
		}
	} else if err := c.checkProperties(tc.Properties); err != nil {
		return nil, fmt.Errorf("topic %q: %w", name, err)
	}

	timeout := *c.cfg.DeliveryTimeout
	if tc.DeliveryTimeout > 0 {
		timeout = tc.DeliveryTimeout
	}

	c.log.Infow("topic handle created", "topic", name, "deliveryTimeout", timeout)
	return &Topic{
		name:            name,
		client:          c,
		headers:         tc.kafkaHeaders(),
		deliveryTimeout: timeout,
	}, nil
}

// Close stops background goroutines and flushes all pending messages.
//
// Close blocks until all queued messages are delivered or FlushTimeout
// elapses, in which case the remaining messages are lost.
//
// Close must be called at least once. Calling Close multiple times does nothing.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		producer := c.producer
		c.mu.Unlock()

		defer close(c.errCh)
		if producer == nil {
			return
		}

		c.log.Info("closing kafka client")

		// Signal the monitor or logs goroutines to stop.
		close(c.closedCh)

		// Wait for the monitor or logs goroutines to stop.
		<-c.eventsDone
		<-c.logsDone

		pending := producer.Flush(int(c.cfg.FlushTimeout.Milliseconds()))
		if pending > 0 {
			c.log.Warnf("flush incomplete, messages will be lost. pending: %d", pending)
		}

		producer.Close()
		c.log.Info("kafka client closed")
	})
}

// Errors returns a channel that receives at most one fatal error.
// The channel is closed when the client shuts down.
// Non-fatal Kafka errors are logged and ignored.
//
// After receiving an error, the client is no longer usable.
// Call Close() and create a new client to recover.
func (c *Client) Errors() <-chan error {
	return c.errCh
}

// handle returns the open producer, or an error after Close.
func (c *Client) handle() (*kafka.Producer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}
	return c.producer, nil
}

// open creates the librdkafka handle. c.mu must be held.
func (c *Client) open() error {
	conf := make(kafka.ConfigMap, len(c.conf))
	for k, v := range c.conf {
		conf[k] = v
	}

	p, err := kafka.NewProducer(&conf)
	if err != nil {
		return fmt.Errorf("failed to create kafka producer: %w", err)
	}
	c.producer = p

	c.log.Infow("kafka producer opened",
		"bootstrapServers", conf["bootstrap.servers"],
		"logLevel", conf["log_level"],
		"clientID", c.cfg.ClientID)

	if c.cfg.EnableLogs {
		go c.printKafkaLogs(c.ctx, p)
	} else {
		close(c.logsDone)
	}

	go c.monitorProducerEvents(c.ctx, p)
	return nil
}

// checkMutable reports whether the ConfigMap may still change. c.mu must be held.
func (c *Client) checkMutable() error {
	if c.closed {
		return ErrClientClosed
	}
	if c.producer != nil {
		return ErrClientStarted
	}
	return nil
}

// checkProperties compares topic properties with the open producer's
// configuration. c.mu must be held.
func (c *Client) checkProperties(props kafka.ConfigMap) error {
	for k, v := range props {
		current, ok := c.conf[k]
		if !ok || fmt.Sprint(current) != fmt.Sprint(v) {
			return fmt.Errorf("property %q=%v conflicts with running producer (%v): %w", k, v, current, ErrClientStarted)
		}
	}
	return nil
}

func (c *Client) printKafkaLogs(ctx context.Context, p *kafka.Producer) {
	defer close(c.logsDone)
	for {
		select {
		case <-ctx.Done():
			c.log.Info("stopping kafka logs printing")
			return
		case <-c.closedCh:
			c.log.Info("stopping kafka logs printing, done channel closed")
			return
		case log, ok := <-p.Logs():
			if !ok {
				c.log.Info("kafka logs printing, event channel closed")
				return
			}
			c.log.Logw(utils.SyslogLevel(log.Level), log.Message, "tag", log.Tag, "name", log.Name)
		}
	}
}

func (c *Client) monitorProducerEvents(ctx context.Context, p *kafka.Producer) {
	defer close(c.eventsDone)
	for {
		select {
		case <-ctx.Done():
			c.log.Info("stopping kafka producer events monitoring, context done")
			return
		case <-c.closedCh:
			c.log.Info("stopping kafka producer events monitoring, done channel closed")
			return
		case ev, ok := <-p.Events():
			if !ok {
				c.sendErr(errors.New("kafka producer events monitoring, event channel closed"))
				return
			}

			switch e := ev.(type) {
			case *kafka.Message:
				// Per-message delivery channels are always set, so receipts
				// landing here belong to nobody.
				c.log.Warnw("orphan delivery report", "topicPartition", e.TopicPartition)
			case kafka.Error:
				fatal := e.IsFatal() || e.Code() == kafka.ErrAllBrokersDown
				c.metrics.IncKafkaError(fatal)
				if fatal {
					c.sendErr(fmt.Errorf("fatal err or ErrAllBrokersDown: %#x, %w", e.Code(), e))
					return
				}
				c.log.Warnf("ignoring unexpected kafka error: %#x, %v", e.Code(), e)
			default:
				c.metrics.IncUnknownEvent()
				c.log.Warnf("Unknown event: %+v", e)
			}
		}
	}
}

func (c *Client) sendErr(err error) {
	select {
	case c.errCh <- err:
	default:
		c.log.Warnf("error channel is full, should not happen: %v", err)
	}
}

func splitBrokers(brokers string) []string {
	var addrs []string
	for _, addr := range strings.Split(brokers, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}
