package producermanager

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/kafka-fanout/pkg/metrics"
)

// State is the setup stage a Manager has reached.
type State int

const (
	Unconfigured State = iota
	ProducerSet
	BrokersSet
	LogLevelSet
	// Configured means both brokers and log level are set but no topic is
	// registered yet.
	Configured
	TopicsRegistered
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case ProducerSet:
		return "producer_set"
	case BrokersSet:
		return "brokers_set"
	case LogLevelSet:
		return "log_level_set"
	case Configured:
		return "configured"
	case TopicsRegistered:
		return "topics_registered"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Manager configures a producer Client in a fixed order and fans produce
// calls out to every registered topic.
//
// Manager is not safe for concurrent use.
type Manager struct {
	client   Client
	brokers  *string
	logLevel *int
	topics   []Topic
	notifier Notifier

	log     *zap.SugaredLogger
	metrics *metrics.Metrics
}

// New returns an empty Manager. log and m may be nil.
func New(log *zap.SugaredLogger, m *metrics.Metrics) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Manager{
		log:     log,
		metrics: m,
	}
}

// Origin returns the tag sent to the Notifier after a successful Produce.
func (pm *Manager) Origin() string {
	return Origin
}

// SetProducer attaches the producer client. It always succeeds.
//
// Only a nil interface counts as unset. A typed nil pointer is stored as is,
// and the client's own methods decide how to fail.
func (pm *Manager) SetProducer(c Client) *Manager {
	pm.client = c
	return pm
}

// SetNotifier attaches the sink notified after each successful Produce.
// Without one, Produce skips the notification.
func (pm *Manager) SetNotifier(n Notifier) *Manager {
	pm.notifier = n
	return pm
}

// SetLogLevel forwards level to the producer client and records it.
func (pm *Manager) SetLogLevel(level int) error {
	if err := pm.checkProducerSet(); err != nil {
		return err
	}

	if err := pm.client.SetLogLevel(level); err != nil {
		pm.metrics.IncConfigError(metrics.ConfigErrorClient)
		return fmt.Errorf("failed to set log level %d: %w", level, err)
	}
	pm.logLevel = &level

	pm.log.Debugw("log level set", "level", level)
	return nil
}

// AddBrokers forwards brokers to the producer client and records them.
//
// Only the producer is required; the log level may be set before or after.
func (pm *Manager) AddBrokers(brokers string) error {
	if err := pm.checkProducerSet(); err != nil {
		return err
	}

	if err := pm.client.AddBrokers(brokers); err != nil {
		pm.metrics.IncConfigError(metrics.ConfigErrorClient)
		return fmt.Errorf("failed to add brokers %q: %w", brokers, err)
	}
	pm.brokers = &brokers

	pm.log.Debugw("brokers added", "brokers", brokers)
	return nil
}

// AddTopic creates a topic handle through the producer client and appends it
// to the fan-out list. conf is passed to the client unchanged.
func (pm *Manager) AddTopic(name string, conf any) error {
	if err := pm.checkProducerSet(); err != nil {
		return err
	}
	if err := pm.checkBrokersSet(); err != nil {
		return err
	}
	if err := pm.checkLogLevelSet(); err != nil {
		return err
	}

	topic, err := pm.client.NewTopic(name, conf)
	if err != nil {
		pm.metrics.IncConfigError(metrics.ConfigErrorClient)
		return fmt.Errorf("failed to create topic %q: %w", name, err)
	}
	pm.topics = append(pm.topics, topic)
	pm.metrics.SetRegisteredTopics(len(pm.topics))

	pm.log.Debugw("topic registered", "topic", name, "topics", len(pm.topics))
	return nil
}

// Topics returns the registered topic names in fan-out order.
func (pm *Manager) Topics() []string {
	names := make([]string, 0, len(pm.topics))
	for _, t := range pm.topics {
		names = append(names, t.Name())
	}
	return names
}

// State reports how far setup has progressed.
func (pm *Manager) State() State {
	switch {
	case pm.client == nil:
		return Unconfigured
	case len(pm.topics) > 0:
		return TopicsRegistered
	case pm.brokers != nil && pm.logLevel != nil:
		return Configured
	case pm.brokers != nil:
		return BrokersSet
	case pm.logLevel != nil:
		return LogLevelSet
	default:
		return ProducerSet
	}
}

// Produce publishes message to every registered topic, letting the client
// choose the partition. See ProduceToPartition.
func (pm *Manager) Produce(ctx context.Context, message, key []byte) error {
	return pm.ProduceToPartition(ctx, message, key, PartitionUnassigned)
}

// ProduceToPartition publishes message with key to partition of every
// registered topic, in registration order.
//
// The loop stops at the first failing topic. Topics before it remain
// published and topics after it are not attempted. The failure is returned
// as a *KafkaError holding the original error text, and no notification is
// sent. When all topics succeed, including when none are registered, the
// Notifier receives Origin once.
func (pm *Manager) ProduceToPartition(ctx context.Context, message, key []byte, partition int32) error {
	start := time.Now()

	for _, topic := range pm.topics {
		if err := topic.Produce(ctx, partition, MsgFlagsNone, message, key); err != nil {
			pm.metrics.IncTopicPublish(topic.Name(), metrics.StatusError)
			pm.metrics.ObserveProduce(metrics.StatusError, time.Since(start))
			return newKafkaError(err)
		}
		pm.metrics.IncTopicPublish(topic.Name(), metrics.StatusSuccess)
	}
	pm.metrics.ObserveProduce(metrics.StatusSuccess, time.Since(start))

	pm.notify()
	return nil
}

func (pm *Manager) notify() {
	if pm.notifier == nil {
		return
	}
	pm.notifier.Notify(pm.Origin())
}

func (pm *Manager) checkProducerSet() error {
	if pm.client == nil {
		pm.metrics.IncConfigError(metrics.ConfigErrorEntityNotSet)
		return ErrEntityNotSet
	}
	return nil
}

func (pm *Manager) checkBrokersSet() error {
	if pm.brokers == nil {
		pm.metrics.IncConfigError(metrics.ConfigErrorNoBrokerSet)
		return ErrNoBrokerSet
	}
	return nil
}

func (pm *Manager) checkLogLevelSet() error {
	if pm.logLevel == nil {
		pm.metrics.IncConfigError(metrics.ConfigErrorLogLevelNotSet)
		return ErrLogLevelNotSet
	}
	return nil
}
